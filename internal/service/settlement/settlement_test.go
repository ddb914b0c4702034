package settlement

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Domenick1991/agrirent/config"
	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var paidAt = time.Date(2026, 10, 2, 18, 0, 0, 0, time.UTC)

func newCalculator(cfg config.SettlementConfig) *Calculator {
	return NewCalculator(cfg, WithClock(func() time.Time { return paidAt }))
}

func price(v int64) *int64 { return &v }

func TestCalculator_Settle_Percent(t *testing.T) {
	calc := newCalculator(config.SettlementConfig{Mode: ModePercent, Percent: 10})

	details, err := calc.Settle(&domain.Booking{ID: "b1", FinalPrice: price(1000)})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), details.FarmerAmount)
	assert.Equal(t, int64(900), details.SupplierAmount)
	assert.Equal(t, int64(100), details.Commission)
	assert.Equal(t, paidAt, details.PaymentDate)
	assert.True(t, details.Balanced())
}

func TestCalculator_Settle_Idempotent(t *testing.T) {
	calc := newCalculator(config.SettlementConfig{Mode: ModePercent, Percent: 10})
	b := &domain.Booking{ID: "b1", FinalPrice: price(1000)}

	first, err := calc.Settle(b)
	require.NoError(t, err)
	b.PaymentDetails = &first

	// a different rate must not change an existing split
	other := newCalculator(config.SettlementConfig{Mode: ModePercent, Percent: 25})
	second, err := other.Settle(b)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCalculator_Settle_MissingPrice(t *testing.T) {
	calc := newCalculator(config.SettlementConfig{Mode: ModePercent, Percent: 10})

	_, err := calc.Settle(&domain.Booking{ID: "b1"})
	assert.True(t, errors.Is(err, domain.ErrMissingPrice))
}

func TestCalculator_Commission(t *testing.T) {
	testCases := []struct {
		name     string
		cfg      config.SettlementConfig
		price    int64
		category string
		want     int64
	}{
		{"rounds half up", config.SettlementConfig{Mode: ModePercent, Percent: 10}, 1005, "", 101},
		{"rounds down", config.SettlementConfig{Mode: ModePercent, Percent: 10}, 1004, "", 100},
		{"fractional percent", config.SettlementConfig{Mode: ModePercent, Percent: 7.5}, 1000, "", 75},
		{"category override", config.SettlementConfig{Mode: ModePercent, Percent: 10, CategoryPercent: map[string]float64{"Harvester": 5}}, 1000, "harvester", 50},
		{"flat fee", config.SettlementConfig{Mode: ModeFlat, FlatFee: 40}, 1000, "", 40},
		{"flat fee clamped to price", config.SettlementConfig{Mode: ModeFlat, FlatFee: 40}, 25, "", 25},
		{"zero price", config.SettlementConfig{Mode: ModePercent, Percent: 10}, 0, "", 0},
		{"large price", config.SettlementConfig{Mode: ModePercent, Percent: 10}, 1_000_000_000_000_005, "", 100_000_000_000_001},
		{"max int64 price", config.SettlementConfig{Mode: ModePercent, Percent: 10}, math.MaxInt64, "", 922337203685477581},
		{"full rate on max price", config.SettlementConfig{Mode: ModePercent, Percent: 100}, math.MaxInt64, "", math.MaxInt64},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, newCalculator(tc.cfg).Commission(tc.price, tc.category))
		})
	}
}

func TestCalculator_Settle_AlwaysBalanced(t *testing.T) {
	calc := newCalculator(config.SettlementConfig{Mode: ModePercent, Percent: 12.5})
	for p := int64(0); p <= 5000; p += 37 {
		details, err := calc.Settle(&domain.Booking{ID: "b", FinalPrice: price(p)})
		require.NoError(t, err)
		assert.True(t, details.Balanced(), "price %d", p)
		assert.GreaterOrEqual(t, details.SupplierAmount, int64(0))
	}
}
