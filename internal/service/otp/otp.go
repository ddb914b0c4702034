// Package otp issues and verifies the one-time code that gates the start of
// work on site. The gate is stateless: the booking record owns the code, and
// the state machine persists whatever the gate returns.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/Domenick1991/agrirent/config"
	"github.com/Domenick1991/agrirent/internal/domain"
)

// Generator produces a numeric code of the given length.
type Generator func(length int) (string, error)

type Gate struct {
	length      int
	ttl         time.Duration
	maxAttempts int
	maxReissues int
	generate    Generator
	now         func() time.Time
}

type Option func(*Gate)

func WithGenerator(g Generator) Option {
	return func(gate *Gate) {
		gate.generate = g
	}
}

func WithClock(now func() time.Time) Option {
	return func(gate *Gate) {
		gate.now = now
	}
}

func NewGate(cfg config.OTPConfig, opts ...Option) *Gate {
	gate := &Gate{
		length:      cfg.Length,
		ttl:         cfg.TTL(),
		maxAttempts: cfg.MaxAttempts,
		maxReissues: cfg.MaxReissues,
		generate:    RandomDigits,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(gate)
	}
	return gate
}

// Issue returns a fresh code valid for the configured window.
func (g *Gate) Issue() (domain.OTP, error) {
	code, err := g.generate(g.length)
	if err != nil {
		return domain.OTP{}, fmt.Errorf("generate otp: %w", err)
	}
	if len(code) != g.length {
		return domain.OTP{}, fmt.Errorf("generate otp: got %d digits, want %d", len(code), g.length)
	}
	return domain.OTP{Code: code, ExpiresAt: g.now().Add(g.ttl)}, nil
}

// Verify compares supplied against current. It returns the OTP state to
// persist (nil when the code is consumed or burned) and a nil error only on
// a match.
func (g *Gate) Verify(current *domain.OTP, supplied string) (*domain.OTP, error) {
	if current == nil || current.Expired(g.now()) {
		return nil, &domain.OTPError{Err: domain.ErrOTPExpired}
	}
	if subtle.ConstantTimeCompare([]byte(current.Code), []byte(supplied)) == 1 {
		return nil, nil
	}

	next := *current
	next.Attempts++
	remaining := g.maxAttempts - next.Attempts
	if remaining <= 0 {
		return nil, &domain.OTPError{Err: domain.ErrOTPMismatch}
	}
	return &next, &domain.OTPError{Err: domain.ErrOTPMismatch, Remaining: remaining}
}

// CanReissue reports whether another code may be issued without an admin.
func (g *Gate) CanReissue(reissues int) bool {
	return reissues < g.maxReissues
}

func (g *Gate) MaxReissues() int {
	return g.maxReissues
}

// RandomDigits draws a uniformly random zero-padded numeric code.
func RandomDigits(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// Mask hides all but the last digit, for logs and support tooling.
func Mask(code string) string {
	if len(code) <= 1 {
		return "*"
	}
	masked := make([]byte, len(code))
	for i := range masked {
		masked[i] = '*'
	}
	masked[len(masked)-1] = code[len(code)-1]
	return string(masked)
}
