package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/Domenick1991/agrirent/internal/repository"
	"github.com/google/uuid"
)

type PricingUseCase interface {
	Suggest(ctx context.Context, itemID, purpose string) (Quote, error)
	EstimateBookingPrice(ctx context.Context, itemID, purpose string, duration time.Duration) (int64, error)
	ListRules(ctx context.Context) ([]domain.PricingRule, error)
	GetRule(ctx context.Context, id string) (*domain.PricingRule, error)
	CreateRule(ctx context.Context, input RuleInput) (*domain.PricingRule, error)
	UpdateRule(ctx context.Context, id string, input RuleInput) (*domain.PricingRule, error)
	DeleteRule(ctx context.Context, id string) error
	RecomputeAutoPrices(ctx context.Context) (int, error)
}

// RuleCache holds the active rule set. GetRules returns nil on a miss along
// with the generation the set must be stored under; SetRules refuses a set
// whose generation was invalidated in the meantime.
type RuleCache interface {
	GetRules(ctx context.Context) ([]domain.PricingRule, int64, error)
	SetRules(ctx context.Context, generation int64, rules []domain.PricingRule) (bool, error)
	InvalidateRules(ctx context.Context) error
}

type BookingHistory interface {
	ListByItem(ctx context.Context, itemID string) ([]domain.Booking, error)
}

type RuleInput struct {
	District   string  `json:"district"`
	Mandal     string  `json:"mandal"`
	Category   string  `json:"category"`
	Multiplier float64 `json:"multiplier"`
	Active     *bool   `json:"active"`
}

type PricingService struct {
	items   repository.ItemRepository
	rules   repository.PricingRuleRepository
	history BookingHistory
	cache   RuleCache
	engine  *Engine
	logger  *slog.Logger
	now     func() time.Time
}

type PricingServiceOption func(*PricingService)

func WithLogger(logger *slog.Logger) PricingServiceOption {
	return func(s *PricingService) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) PricingServiceOption {
	return func(s *PricingService) {
		s.now = now
	}
}

// WithRuleCache enables the shared rule cache. Without it every quote reads the store.
func WithRuleCache(cache RuleCache) PricingServiceOption {
	return func(s *PricingService) {
		s.cache = cache
	}
}

func NewPricingService(
	items repository.ItemRepository,
	rules repository.PricingRuleRepository,
	history BookingHistory,
	engine *Engine,
	opts ...PricingServiceOption,
) *PricingService {
	service := &PricingService{
		items:   items,
		rules:   rules,
		history: history,
		engine:  engine,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *PricingService) Suggest(ctx context.Context, itemID, purpose string) (Quote, error) {
	if itemID == "" || purpose == "" {
		return Quote{}, domain.Validation("itemId and purpose are required")
	}
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return Quote{}, err
	}
	return s.quote(ctx, item, purpose)
}

func (s *PricingService) quote(ctx context.Context, item *domain.Item, purpose string) (Quote, error) {
	history, err := s.history.ListByItem(ctx, item.ID)
	if err != nil {
		return Quote{}, fmt.Errorf("load booking history: %w", err)
	}
	peers, err := s.items.ListPeers(ctx, item.Category, item.Location)
	if err != nil {
		return Quote{}, fmt.Errorf("load peers: %w", err)
	}
	rules, err := s.activeRules(ctx)
	if err != nil {
		return Quote{}, err
	}

	q, err := s.engine.Compute(Input{
		Item:    *item,
		Purpose: purpose,
		History: history,
		Peers:   peers,
		Rules:   rules,
		Now:     s.now(),
	})
	if err != nil {
		return Quote{}, err
	}
	if q.RuleConflict {
		s.logger.Warn("equally specific pricing rules, using highest multiplier",
			slog.String("item_id", item.ID),
			slog.String("district", item.District),
			slog.String("mandal", item.Mandal),
			slog.String("category", item.Category),
			slog.String("rule_id", q.Rule.ID),
			slog.Any("error", domain.ErrRuleConflict))
	}
	return q, nil
}

// EstimateBookingPrice is the hourly quote times the estimated duration.
func (s *PricingService) EstimateBookingPrice(ctx context.Context, itemID, purpose string, duration time.Duration) (int64, error) {
	if duration <= 0 {
		return 0, domain.Validation("estimated duration must be positive")
	}
	q, err := s.Suggest(ctx, itemID, purpose)
	if err != nil {
		return 0, err
	}
	return Round(float64(q.Price) * duration.Hours()), nil
}

func (s *PricingService) activeRules(ctx context.Context) ([]domain.PricingRule, error) {
	var (
		generation int64
		cacheable  bool
	)
	if s.cache != nil {
		cached, gen, err := s.cache.GetRules(ctx)
		switch {
		case err != nil:
			s.logger.Warn("rule cache read failed", slog.Any("error", err))
		case cached != nil:
			return cached, nil
		default:
			generation, cacheable = gen, true
		}
	}

	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pricing rules: %w", err)
	}
	if cacheable {
		stored, err := s.cache.SetRules(ctx, generation, rules)
		switch {
		case err != nil:
			s.logger.Warn("rule cache write failed", slog.Any("error", err))
		case !stored:
			s.logger.Info("rules changed while loading, cache left empty", slog.Int64("generation", generation))
		}
	}
	return rules, nil
}

func (s *PricingService) ListRules(ctx context.Context) ([]domain.PricingRule, error) {
	return s.rules.List(ctx)
}

func (s *PricingService) GetRule(ctx context.Context, id string) (*domain.PricingRule, error) {
	return s.rules.GetByID(ctx, id)
}

func (s *PricingService) CreateRule(ctx context.Context, input RuleInput) (*domain.PricingRule, error) {
	rule := input.apply(domain.PricingRule{ID: uuid.NewString(), Active: true})
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if err := s.rules.Create(ctx, &rule); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.logger.Info("pricing rule created", slog.String("rule_id", rule.ID), slog.Float64("multiplier", rule.Multiplier))
	return &rule, nil
}

func (s *PricingService) UpdateRule(ctx context.Context, id string, input RuleInput) (*domain.PricingRule, error) {
	current, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rule := input.apply(*current)
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if err := s.rules.Update(ctx, &rule); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	s.logger.Info("pricing rule updated", slog.String("rule_id", rule.ID), slog.Bool("active", rule.Active))
	return &rule, nil
}

func (s *PricingService) DeleteRule(ctx context.Context, id string) error {
	if err := s.rules.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logger.Info("pricing rule deleted", slog.String("rule_id", id))
	return nil
}

func (s *PricingService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRules(ctx); err != nil {
		s.logger.Error("rule cache invalidation failed", slog.Any("error", err))
	}
}

// RecomputeAutoPrices stores a fresh optimized price for every purpose of every
// listing that opted in. One failing listing does not stop the pass.
func (s *PricingService) RecomputeAutoPrices(ctx context.Context) (int, error) {
	items, err := s.items.ListAutoOptimized(ctx)
	if err != nil {
		return 0, fmt.Errorf("list auto-optimized items: %w", err)
	}

	var (
		updated int
		errs    []error
	)
	for i := range items {
		item := &items[i]
		for _, purpose := range item.Purposes {
			if err := ctx.Err(); err != nil {
				return updated, err
			}
			q, err := s.quote(ctx, item, purpose.Name)
			if err != nil {
				errs = append(errs, fmt.Errorf("item %s purpose %s: %w", item.ID, purpose.Name, err))
				continue
			}
			if err := s.items.SaveOptimizedPrice(ctx, item.ID, purpose.Name, q.Price); err != nil {
				errs = append(errs, fmt.Errorf("item %s purpose %s: %w", item.ID, purpose.Name, err))
				continue
			}
			updated++
		}
	}

	s.logger.Info("auto prices recomputed",
		slog.Int("items", len(items)),
		slog.Int("updated", updated),
		slog.Int("failed", len(errs)))
	return updated, errors.Join(errs...)
}

func (in RuleInput) apply(rule domain.PricingRule) domain.PricingRule {
	rule.District = normalizeScope(in.District)
	rule.Mandal = normalizeScope(in.Mandal)
	rule.Category = strings.TrimSpace(in.Category)
	rule.Multiplier = in.Multiplier
	if in.Active != nil {
		rule.Active = *in.Active
	}
	return rule
}

func normalizeScope(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, domain.ScopeAll) {
		return domain.ScopeAll
	}
	return v
}

var _ PricingUseCase = (*PricingService)(nil)
