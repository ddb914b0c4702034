package booking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/Domenick1991/agrirent/internal/kafka"
)

// step is what an operation decided after looking at the current booking.
// after is returned to the caller once the write succeeded.
type step struct {
	next  domain.BookingStatus
	patch domain.BookingPatch
	event string
	after error
}

// transition runs one lifecycle operation: load, check status, role and
// identity, plan, then compare-and-set against the loaded version.
func (s *BookingService) transition(
	ctx context.Context,
	op domain.Operation,
	actor domain.Actor,
	id string,
	event string,
	plan func(*domain.Booking) (step, error),
) (*domain.Booking, error) {
	if s.locker != nil {
		release, ok, err := s.locker.AcquireBookingLock(ctx, id, s.lockTTL)
		switch {
		case err != nil:
			s.logger.Warn("booking lock unavailable, relying on version check",
				slog.String("booking_id", id),
				slog.Any("error", err))
		case !ok:
			return nil, fmt.Errorf("booking %s is being modified: %w", id, domain.ErrConcurrentModification)
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn("failed to release booking lock", slog.String("booking_id", id), slog.Any("error", err))
				}
			}()
		}
	}

	current, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(op, actor, current); err != nil {
		return nil, err
	}

	st, err := plan(current)
	if err != nil {
		return nil, err
	}

	updated, err := s.bookings.CompareAndSetStatus(ctx, id, current.Status, current.Version, st.next, st.patch)
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking transition applied",
		slog.String("booking_id", id),
		slog.String("op", string(op)),
		slog.String("actor_role", string(actor.Role)),
		slog.String("from", string(current.Status)),
		slog.String("to", string(updated.Status)),
		slog.Int64("version", updated.Version))

	if updated.Status.Terminal() && current.Status.HoldsItem() {
		s.releaseItem(ctx, updated)
	}

	if st.event != "" {
		event = st.event
	}
	s.publish(ctx, event, current.Status, updated)

	if st.after != nil {
		return nil, st.after
	}
	return updated, nil
}

// authorize checks the operation table and then that the actor is the
// participant the booking names for that role.
func authorize(op domain.Operation, actor domain.Actor, b *domain.Booking) error {
	edge, ok := domain.Edges[op]
	if !ok {
		return &domain.TransitionError{Op: op, From: b.Status, Reason: "unknown operation"}
	}
	if !edge.AllowsStatus(b.Status) {
		return &domain.TransitionError{Op: op, From: b.Status}
	}
	return authorizeActor(op, actor, b)
}

func authorizeActor(op domain.Operation, actor domain.Actor, b *domain.Booking) error {
	if !domain.Edges[op].AllowsRole(actor.Role) {
		return domain.NotAuthorized("%s cannot %s", actor.Role, op)
	}

	switch actor.Role {
	case domain.RoleAdmin, domain.RoleSystem:
		return nil
	case domain.RoleFarmer:
		if actor.ID != b.FarmerID {
			return domain.NotAuthorized("farmer %s does not own booking %s", actor.ID, b.ID)
		}
	case domain.RoleSupplier:
		// an open request can be claimed by any supplier
		if op == domain.OpAccept && b.Status == domain.BookingStatusSearching {
			return nil
		}
		if actor.ID != b.SupplierID {
			return domain.NotAuthorized("supplier %s is not assigned to booking %s", actor.ID, b.ID)
		}
	case domain.RoleOperator:
		if actor.ID == "" || actor.ID != b.OperatorID {
			return domain.NotAuthorized("operator %s is not assigned to booking %s", actor.ID, b.ID)
		}
	}
	return nil
}

// releaseItem frees the listing unless another live booking still holds it.
func (s *BookingService) releaseItem(ctx context.Context, b *domain.Booking) {
	if s.items == nil || b.ItemID == "" {
		return
	}

	others, err := s.bookings.ListByItem(ctx, b.ItemID)
	if err != nil {
		s.logger.Warn("failed to check item holders, keeping item reserved",
			slog.String("booking_id", b.ID),
			slog.String("item_id", b.ItemID),
			slog.Any("error", err))
		return
	}
	for _, other := range others {
		if other.ID != b.ID && other.Status.HoldsItem() {
			s.logger.Debug("item still held by another booking",
				slog.String("booking_id", b.ID),
				slog.String("item_id", b.ItemID),
				slog.String("holder_id", other.ID))
			return
		}
	}

	if err := s.items.Release(ctx, b.ItemID); err != nil {
		s.logger.Warn("failed to release item",
			slog.String("booking_id", b.ID),
			slog.String("item_id", b.ItemID),
			slog.Any("error", err))
	}
}

func (s *BookingService) publish(ctx context.Context, eventType string, previous domain.BookingStatus, b *domain.Booking) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.NewBookingEvent(eventType, previous, b, s.now())
	if err := s.producer.Publish(ctx, s.bookingTopic, b.ID, event); err != nil {
		s.logger.Error("failed to publish booking event",
			slog.String("booking_id", b.ID),
			slog.String("type", eventType),
			slog.Any("error", err))
	}
}

// publishOTP sends the fresh code to the notifications topic only.
func (s *BookingService) publishOTP(ctx context.Context, b *domain.Booking) {
	if s.producer == nil || s.notificationsTopic == "" || b.OTP == nil {
		return
	}
	event := kafka.NewBookingEvent(kafka.EventOTPIssued, b.Status, b, s.now()).WithOTP(b.OTP)
	if err := s.producer.Publish(ctx, s.notificationsTopic, b.ID, event); err != nil {
		s.logger.Error("failed to publish otp notification",
			slog.String("booking_id", b.ID),
			slog.Any("error", err))
	}
}
