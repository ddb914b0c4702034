// Package settlement splits a completed booking's final price into the
// supplier payout and the platform commission.
package settlement

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Domenick1991/agrirent/config"
	"github.com/Domenick1991/agrirent/internal/domain"
)

const (
	ModePercent = "percent"
	ModeFlat    = "flat"
)

// Commission rates are held in basis points to keep the arithmetic integral.
const basisPoints = 10000

type Calculator struct {
	mode       string
	rateBP     int64
	flatFee    int64
	categoryBP map[string]int64
	now        func() time.Time
}

type Option func(*Calculator)

func WithClock(now func() time.Time) Option {
	return func(c *Calculator) {
		c.now = now
	}
}

func NewCalculator(cfg config.SettlementConfig, opts ...Option) *Calculator {
	c := &Calculator{
		mode:       cfg.Mode,
		rateBP:     percentToBP(cfg.Percent),
		flatFee:    cfg.FlatFee,
		categoryBP: make(map[string]int64, len(cfg.CategoryPercent)),
		now:        time.Now,
	}
	if c.mode == "" {
		c.mode = ModePercent
	}
	for category, pct := range cfg.CategoryPercent {
		c.categoryBP[strings.ToLower(category)] = percentToBP(pct)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func percentToBP(pct float64) int64 {
	return int64(math.Round(pct * 100))
}

// Settle returns the payment split for b. A booking that already carries
// payment details gets them back unchanged.
func (c *Calculator) Settle(b *domain.Booking) (domain.PaymentDetails, error) {
	if b.PaymentDetails != nil {
		return *b.PaymentDetails, nil
	}
	if b.FinalPrice == nil {
		return domain.PaymentDetails{}, fmt.Errorf("settle booking %s: %w", b.ID, domain.ErrMissingPrice)
	}
	price := *b.FinalPrice
	if price < 0 {
		return domain.PaymentDetails{}, domain.Validation("final price of booking %s is negative", b.ID)
	}

	commission := c.Commission(price, b.ItemCategory)
	return domain.PaymentDetails{
		FarmerAmount:   price,
		SupplierAmount: price - commission,
		Commission:     commission,
		PaymentDate:    c.now().UTC(),
	}, nil
}

// Commission is round-half-up(price * rate) in percent mode or the flat fee,
// clamped to [0, price].
func (c *Calculator) Commission(price int64, category string) int64 {
	var commission int64
	switch c.mode {
	case ModeFlat:
		commission = c.flatFee
	default:
		rate := c.rateBP
		if bp, ok := c.categoryBP[strings.ToLower(category)]; ok {
			rate = bp
		}
		// split the product so price*rate cannot overflow for large prices
		whole, rest := price/basisPoints, price%basisPoints
		commission = whole*rate + (rest*rate+basisPoints/2)/basisPoints
	}
	if commission < 0 {
		return 0
	}
	if commission > price {
		return price
	}
	return commission
}
