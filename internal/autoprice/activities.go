// Package autoprice refreshes the stored price of every listing that opted
// into automatic optimization, either as a Temporal cron workflow or, when
// no Temporal cluster is configured, on a plain ticker.
package autoprice

import (
	"context"
	"log/slog"
)

// Recomputer is the pricing operation the job drives.
type Recomputer interface {
	RecomputeAutoPrices(ctx context.Context) (int, error)
}

type Result struct {
	Updated int    `json:"updated"`
	Failure string `json:"failure,omitempty"`
}

type Activities struct {
	pricing Recomputer
	logger  *slog.Logger
}

func NewActivities(pricing Recomputer, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{pricing: pricing, logger: logger}
}

// RecomputeAutoPrices fails only when nothing could be updated, so a single
// broken listing does not make Temporal retry the whole pass.
func (a *Activities) RecomputeAutoPrices(ctx context.Context) (Result, error) {
	updated, err := a.pricing.RecomputeAutoPrices(ctx)
	if err != nil && updated == 0 {
		return Result{}, err
	}

	result := Result{Updated: updated}
	if err != nil {
		result.Failure = err.Error()
		a.logger.Warn("auto price pass finished with failures",
			slog.Int("updated", updated),
			slog.Any("error", err))
	}
	return result, nil
}
