package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/agrirent/internal/domain"
)

// MemoryBookingRepository keeps bookings in process memory. The CAS check and
// write happen under one mutex, so it gives the same guarantees as the
// Postgres row lock within a single process.
type MemoryBookingRepository struct {
	mu       sync.Mutex
	bookings map[string]*domain.Booking
	now      func() time.Time
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		bookings: make(map[string]*domain.Booking),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryBookingRepository) Create(_ context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bookings[booking.ID]; exists {
		return fmt.Errorf("booking %s already exists", booking.ID)
	}
	r.bookings[booking.ID] = booking.Clone()
	return nil
}

func (r *MemoryBookingRepository) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return b.Clone(), nil
}

func (r *MemoryBookingRepository) CompareAndSetStatus(_ context.Context, id string, expected domain.BookingStatus, expectedVersion int64, next domain.BookingStatus, patch domain.BookingPatch) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	updated, err := applyCAS(current, expected, expectedVersion, next, patch, r.now())
	if err != nil {
		return nil, err
	}
	r.bookings[id] = updated
	return updated.Clone(), nil
}

func (r *MemoryBookingRepository) ListOverdue(_ context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	overdue := make([]domain.Booking, 0)
	for _, b := range r.bookings {
		if b.Status.Terminal() || b.ExpiresAt.IsZero() || b.ExpiresAt.After(now) {
			continue
		}
		overdue = append(overdue, *b.Clone())
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].ExpiresAt.Before(overdue[j].ExpiresAt)
	})
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	return overdue, nil
}

func (r *MemoryBookingRepository) ListByItem(_ context.Context, itemID string) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bookings := make([]domain.Booking, 0)
	for _, b := range r.bookings {
		if b.ItemID == itemID {
			bookings = append(bookings, *b.Clone())
		}
	}
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.Before(bookings[j].CreatedAt)
	})
	return bookings, nil
}

var _ BookingRepository = (*MemoryBookingRepository)(nil)
