package repository

import (
	"fmt"
	"time"

	"github.com/Domenick1991/agrirent/internal/domain"
)

// applyCAS checks the expected (status, version) pair against current and
// returns the row to write. current is not modified.
func applyCAS(current *domain.Booking, expected domain.BookingStatus, expectedVersion int64, next domain.BookingStatus, patch domain.BookingPatch, now time.Time) (*domain.Booking, error) {
	if current.Status != expected || current.Version != expectedVersion {
		return nil, fmt.Errorf("booking %s is %s v%d, expected %s v%d: %w",
			current.ID, current.Status, current.Version, expected, expectedVersion, domain.ErrConcurrentModification)
	}
	if !domain.CanTransition(expected, next) {
		return nil, &domain.TransitionError{Op: "compare_and_set", From: expected, Reason: "no edge to " + string(next)}
	}

	updated := current.Clone()
	patch.ApplyTo(updated)
	updated.Status = next
	updated.Version++
	updated.UpdatedAt = now
	return updated, nil
}
