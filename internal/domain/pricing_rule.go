package domain

import (
	"fmt"
	"strings"
	"time"
)

// ScopeAll marks a rule field that matches everything.
const ScopeAll = "ALL"

// PricingRule is an admin-defined regional multiplier.
type PricingRule struct {
	ID         string    `json:"id"`
	District   string    `json:"district"`
	Mandal     string    `json:"mandal,omitempty"`
	Category   string    `json:"category,omitempty"`
	Multiplier float64   `json:"multiplier"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func scoped(v string) bool {
	return v != "" && !strings.EqualFold(v, ScopeAll)
}

// Specificity ranks how narrowly the rule is scoped:
// mandal+category 4, mandal 3, district+category 2, district 1, global 0.
func (r PricingRule) Specificity() int {
	switch {
	case !scoped(r.District):
		return 0
	case scoped(r.Mandal) && scoped(r.Category):
		return 4
	case scoped(r.Mandal):
		return 3
	case scoped(r.Category):
		return 2
	default:
		return 1
	}
}

// Matches reports whether the rule applies to the given scope. Inactive rules never match.
func (r PricingRule) Matches(district, mandal, category string) bool {
	if !r.Active {
		return false
	}
	if !scoped(r.District) {
		return !scoped(r.Category) || strings.EqualFold(r.Category, category)
	}
	if !strings.EqualFold(r.District, district) {
		return false
	}
	if scoped(r.Mandal) && !strings.EqualFold(r.Mandal, mandal) {
		return false
	}
	if scoped(r.Category) && !strings.EqualFold(r.Category, category) {
		return false
	}
	return true
}

func (r PricingRule) Validate() error {
	if strings.TrimSpace(r.District) == "" {
		return fmt.Errorf("%w: district is required (use %q for a global rule)", ErrValidation, ScopeAll)
	}
	if r.Multiplier < 1.0 {
		return fmt.Errorf("%w: multiplier must be >= 1.0", ErrValidation)
	}
	if !scoped(r.District) && scoped(r.Mandal) {
		return fmt.Errorf("%w: mandal requires a district", ErrValidation)
	}
	return nil
}
