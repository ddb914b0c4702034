package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Domenick1991/agrirent/config"
	"github.com/Domenick1991/agrirent/internal/domain"
)

// DemandTier applies Factor when an item has more than Above active bookings.
type DemandTier struct {
	Above  int
	Factor float64
}

// Coefficients are the documented constants of the price pipeline.
type Coefficients struct {
	// Seasonal maps a month to its multiplier; absent months are 1.0.
	Seasonal map[time.Month]float64
	// DemandTiers are checked from the highest threshold down.
	DemandTiers []DemandTier
	// FloorTrigger marks a price as undercutting the local market.
	FloorTrigger float64
	// FloorTarget is the share of the competitor mean a price is lifted to.
	FloorTarget float64
	// LiftOnlyUndercut restricts the lift to prices under FloorTrigger.
	// Prices between trigger and target then stay as computed, which is not
	// monotone in the factors.
	LiftOnlyUndercut bool
}

// DefaultCoefficients: harvest season (Sep-Nov) +15 %, sowing season
// (Mar-May) +10 %, demand above 10 active bookings +20 %, above 5 +10 %,
// undercut under 90 % of the local mean, floor at 95 % of it.
func DefaultCoefficients() Coefficients {
	return CoefficientsFromConfig(config.Default().Pricing)
}

func CoefficientsFromConfig(cfg config.PricingConfig) Coefficients {
	c := Coefficients{
		Seasonal:     make(map[time.Month]float64, len(cfg.SeasonalFactors)),
		FloorTrigger: cfg.FloorTrigger,
		FloorTarget:  cfg.FloorTarget,

		LiftOnlyUndercut: cfg.FloorMode == config.FloorModeTrigger,
	}
	for month, factor := range cfg.SeasonalFactors {
		c.Seasonal[time.Month(month)] = factor
	}
	for _, tier := range cfg.DemandTiers {
		c.DemandTiers = append(c.DemandTiers, DemandTier{Above: tier.Above, Factor: tier.Factor})
	}
	sort.Slice(c.DemandTiers, func(i, j int) bool {
		return c.DemandTiers[i].Above > c.DemandTiers[j].Above
	})
	return c
}

// Input is everything a price computation depends on.
type Input struct {
	Item    domain.Item
	Purpose string
	History []domain.Booking
	Peers   []domain.Item
	Rules   []domain.PricingRule
	Now     time.Time
}

type Quote struct {
	ItemID         string              `json:"item_id"`
	Purpose        string              `json:"purpose"`
	Price          int64               `json:"price"`
	Base           float64             `json:"base"`
	SeasonalFactor float64             `json:"seasonal_factor"`
	ActiveBookings int                 `json:"active_bookings"`
	DemandFactor   float64             `json:"demand_factor"`
	RegionalFactor float64             `json:"regional_factor"`
	Rule           *domain.PricingRule `json:"rule,omitempty"`
	RuleConflict   bool                `json:"rule_conflict"`
	CompetitorMean float64             `json:"competitor_mean"`
	PeerCount      int                 `json:"peer_count"`
	Undercut       bool                `json:"undercut"`
	FloorApplied   bool                `json:"floor_applied"`
}

type Engine struct {
	coeff Coefficients
}

func NewEngine(coeff Coefficients) *Engine {
	return &Engine{coeff: coeff}
}

// Compute runs base -> seasonal -> demand -> regional -> competitor floor -> round.
func (e *Engine) Compute(in Input) (Quote, error) {
	purpose, ok := in.Item.Purpose(in.Purpose)
	if !ok {
		return Quote{}, fmt.Errorf("purpose %q of item %s: %w", in.Purpose, in.Item.ID, domain.ErrNotFound)
	}

	q := Quote{
		ItemID:         in.Item.ID,
		Purpose:        purpose.Name,
		Base:           purpose.BasePrice,
		SeasonalFactor: e.SeasonalFactor(in.Now),
		ActiveBookings: ActiveBookings(in.History, in.Item.ID),
		RegionalFactor: 1.0,
	}
	q.DemandFactor = e.DemandFactor(q.ActiveBookings)

	rule, conflict, found := MatchRule(in.Rules, in.Item.District, in.Item.Mandal, in.Item.Category)
	if found {
		q.Rule = &rule
		q.RegionalFactor = rule.Multiplier
		q.RuleConflict = conflict
	}

	adjusted := q.Base * q.SeasonalFactor * q.DemandFactor * q.RegionalFactor

	q.CompetitorMean, q.PeerCount = CompetitorMean(in.Item, in.Purpose, in.Peers)
	if q.PeerCount > 0 && q.CompetitorMean > 0 {
		q.Undercut = adjusted < e.coeff.FloorTrigger*q.CompetitorMean
		// By default everything under the target is lifted, which keeps the
		// final price monotone in every factor.
		floor := e.coeff.FloorTarget * q.CompetitorMean
		if adjusted < floor && (q.Undercut || !e.coeff.LiftOnlyUndercut) {
			adjusted = floor
			q.FloorApplied = true
		}
	}

	q.Price = Round(adjusted)
	return q, nil
}

func (e *Engine) SeasonalFactor(now time.Time) float64 {
	if f, ok := e.coeff.Seasonal[now.Month()]; ok {
		return f
	}
	return 1.0
}

func (e *Engine) DemandFactor(active int) float64 {
	for _, tier := range e.coeff.DemandTiers {
		if active > tier.Above {
			return tier.Factor
		}
	}
	return 1.0
}

// ActiveBookings counts bookings of itemID in a demand-relevant status.
func ActiveBookings(history []domain.Booking, itemID string) int {
	count := 0
	for _, b := range history {
		if b.ItemID == itemID && b.Status.ActiveForDemand() {
			count++
		}
	}
	return count
}

// MatchRule picks the most specific active rule. When several are equally
// specific the highest multiplier wins and conflict is true.
func MatchRule(rules []domain.PricingRule, district, mandal, category string) (domain.PricingRule, bool, bool) {
	var (
		best     domain.PricingRule
		found    bool
		conflict bool
	)
	for _, r := range rules {
		if !r.Matches(district, mandal, category) {
			continue
		}
		switch {
		case !found || r.Specificity() > best.Specificity():
			best, found, conflict = r, true, false
		case r.Specificity() == best.Specificity():
			conflict = true
			if r.Multiplier > best.Multiplier || (r.Multiplier == best.Multiplier && r.ID < best.ID) {
				best = r
			}
		}
	}
	return best, conflict, found
}

// CompetitorMean averages the purpose price of items in the same category
// and location as item, excluding item itself.
func CompetitorMean(item domain.Item, purpose string, peers []domain.Item) (float64, int) {
	var (
		sum   float64
		count int
	)
	for _, peer := range peers {
		if peer.ID == item.ID {
			continue
		}
		if !strings.EqualFold(peer.Category, item.Category) || !strings.EqualFold(peer.Location, item.Location) {
			continue
		}
		p, ok := peer.Purpose(purpose)
		if !ok || p.BasePrice <= 0 {
			continue
		}
		sum += p.BasePrice
		count++
	}
	if count == 0 {
		return 0, 0
	}
	return sum / float64(count), count
}

// Round rounds to whole currency units and floors at zero.
func Round(v float64) int64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	return int64(math.Round(v))
}
