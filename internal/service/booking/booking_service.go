package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Domenick1991/agrirent/config"
	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/Domenick1991/agrirent/internal/kafka"
	"github.com/Domenick1991/agrirent/internal/repository"
	"github.com/Domenick1991/agrirent/internal/service/otp"
	"github.com/Domenick1991/agrirent/internal/service/settlement"
	"github.com/google/uuid"
)

type BookingUseCase interface {
	Create(ctx context.Context, actor domain.Actor, input CreateBookingInput) (*domain.Booking, error)
	Get(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	RequestSupplier(ctx context.Context, actor domain.Actor, id string, input RequestSupplierInput) (*domain.Booking, error)
	Accept(ctx context.Context, actor domain.Actor, id string, input AcceptInput) (*domain.Booking, error)
	Reject(ctx context.Context, actor domain.Actor, id string, reason string) (*domain.Booking, error)
	AssignOperator(ctx context.Context, actor domain.Actor, id string, operatorID string) (*domain.Booking, error)
	MarkArrived(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	StartWork(ctx context.Context, actor domain.Actor, id string, code string) (*domain.Booking, error)
	ReissueOTP(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	RevealOTP(ctx context.Context, actor domain.Actor, id string) (*domain.OTP, error)
	Complete(ctx context.Context, actor domain.Actor, id string, input CompleteInput) (*domain.Booking, error)
	RecordPayment(ctx context.Context, actor domain.Actor, id string, proof string) (*domain.Booking, error)
	Cancel(ctx context.Context, actor domain.Actor, id string, reason string) (*domain.Booking, error)
	Expire(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	ExpireOverdue(ctx context.Context) ([]domain.Booking, error)
}

// Locker serializes transitions on one booking across processes.
type Locker interface {
	AcquireBookingLock(ctx context.Context, bookingID string, ttl time.Duration) (func(context.Context) error, bool, error)
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type PriceEstimator interface {
	EstimateBookingPrice(ctx context.Context, itemID, purpose string, duration time.Duration) (int64, error)
}

// ItemAvailability marks a listing as held by an accepted booking.
type ItemAvailability interface {
	Reserve(ctx context.Context, itemID string) error
	Release(ctx context.Context, itemID string) error
}

type BookingService struct {
	bookings           repository.BookingRepository
	gate               *otp.Gate
	calculator         *settlement.Calculator
	locker             Locker
	producer           Producer
	estimator          PriceEstimator
	items              ItemAvailability
	bookingTopic       string
	notificationsTopic string
	acceptTTL          time.Duration
	arrivalGrace       time.Duration
	lockTTL            time.Duration
	sweepBatch         int
	logger             *slog.Logger
	now                func() time.Time
}

type CreateBookingInput struct {
	FarmerID          string              `json:"farmer_id"`
	ItemCategory      string              `json:"item_category"`
	ItemID            string              `json:"item_id"`
	Purpose           string              `json:"purpose"`
	Date              time.Time           `json:"date"`
	StartTime         string              `json:"start_time"`
	EstimatedDuration time.Duration       `json:"estimated_duration"`
	Location          string              `json:"location"`
	LocationCoords    *domain.Coordinates `json:"location_coords"`
}

type RequestSupplierInput struct {
	SupplierID string `json:"supplier_id"`
	ItemID     string `json:"item_id"`
}

// AcceptInput: a supplier that works the job alone leaves the operator
// fields empty. OperatorID binds a known operator immediately;
// NeedsOperator defers the choice to AssignOperator.
type AcceptInput struct {
	SupplierID    string `json:"supplier_id"`
	ItemID        string `json:"item_id"`
	FinalPrice    *int64 `json:"final_price"`
	OperatorID    string `json:"operator_id"`
	NeedsOperator bool   `json:"needs_operator"`
}

type CompleteInput struct {
	FinalPrice   *int64 `json:"final_price"`
	PaymentProof string `json:"payment_proof"`
}

type BookingServiceOption func(*BookingService)

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithProducer(producer Producer, bookingTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.bookingTopic = bookingTopic
	}
}

func WithLocker(locker Locker) BookingServiceOption {
	return func(s *BookingService) {
		s.locker = locker
	}
}

func WithPriceEstimator(estimator PriceEstimator) BookingServiceOption {
	return func(s *BookingService) {
		s.estimator = estimator
	}
}

func WithItemAvailability(items ItemAvailability) BookingServiceOption {
	return func(s *BookingService) {
		s.items = items
	}
}

func WithLogger(logger *slog.Logger) BookingServiceOption {
	return func(s *BookingService) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func WithSweepBatchSize(n int) BookingServiceOption {
	return func(s *BookingService) {
		s.sweepBatch = n
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	gate *otp.Gate,
	calculator *settlement.Calculator,
	cfg config.BookingConfig,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings:     bookings,
		gate:         gate,
		calculator:   calculator,
		acceptTTL:    cfg.AcceptTTL(),
		arrivalGrace: cfg.ArrivalGrace(),
		lockTTL:      cfg.LockTTL(),
		sweepBatch:   100,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.lockTTL <= 0 {
		service.lockTTL = 10 * time.Second
	}
	return service
}

func (s *BookingService) Create(ctx context.Context, actor domain.Actor, input CreateBookingInput) (*domain.Booking, error) {
	switch actor.Role {
	case domain.RoleFarmer:
		if input.FarmerID != "" && input.FarmerID != actor.ID {
			return nil, domain.NotAuthorized("farmer %s cannot book for %s", actor.ID, input.FarmerID)
		}
		input.FarmerID = actor.ID
	case domain.RoleAdmin:
		if input.FarmerID == "" {
			return nil, domain.Validation("farmer_id is required")
		}
	default:
		return nil, domain.NotAuthorized("%s cannot create bookings", actor.Role)
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	booking := &domain.Booking{
		ID:                uuid.NewString(),
		FarmerID:          input.FarmerID,
		ItemID:            input.ItemID,
		ItemCategory:      strings.TrimSpace(input.ItemCategory),
		Purpose:           input.Purpose,
		Status:            domain.BookingStatusSearching,
		Date:              input.Date,
		StartTime:         input.StartTime,
		EstimatedDuration: input.EstimatedDuration,
		Location:          input.Location,
		LocationCoords:    input.LocationCoords,
		ExpiresAt:         now.Add(s.acceptTTL),
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		return nil, err
	}

	s.logger.Info("booking created",
		slog.String("booking_id", booking.ID),
		slog.String("farmer_id", booking.FarmerID),
		slog.String("category", booking.ItemCategory))
	s.publish(ctx, kafka.EventBookingCreated, "", booking)
	return booking, nil
}

func (in CreateBookingInput) validate() error {
	if strings.TrimSpace(in.ItemCategory) == "" {
		return domain.Validation("item_category is required")
	}
	if in.Date.IsZero() {
		return domain.Validation("date is required")
	}
	if _, err := time.Parse("15:04", in.StartTime); err != nil {
		return domain.Validation("start_time must be HH:MM")
	}
	if in.EstimatedDuration <= 0 {
		return domain.Validation("estimated_duration must be positive")
	}
	return nil
}

func (s *BookingService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(actor, b) {
		return nil, domain.NotAuthorized("%s %s is not a participant of booking %s", actor.Role, actor.ID, id)
	}
	return b, nil
}

func canView(actor domain.Actor, b *domain.Booking) bool {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleSystem:
		return true
	case domain.RoleFarmer:
		return actor.ID == b.FarmerID
	case domain.RoleSupplier:
		// open requests are visible to every supplier so they can be claimed
		return actor.ID == b.SupplierID || (b.Status == domain.BookingStatusSearching && b.SupplierID == "")
	case domain.RoleOperator:
		return actor.ID == b.OperatorID
	}
	return false
}

func (s *BookingService) RequestSupplier(ctx context.Context, actor domain.Actor, id string, input RequestSupplierInput) (*domain.Booking, error) {
	if strings.TrimSpace(input.SupplierID) == "" {
		return nil, domain.Validation("supplier_id is required")
	}
	return s.transition(ctx, domain.OpRequestSupplier, actor, id, kafka.EventSupplierRequested,
		func(b *domain.Booking) (step, error) {
			deadline := s.now().UTC().Add(s.acceptTTL)
			patch := domain.BookingPatch{SupplierID: &input.SupplierID, ExpiresAt: &deadline}
			if input.ItemID != "" {
				patch.ItemID = &input.ItemID
			}
			return step{next: domain.BookingStatusPendingConfirmation, patch: patch}, nil
		})
}

func (s *BookingService) Accept(ctx context.Context, actor domain.Actor, id string, input AcceptInput) (*domain.Booking, error) {
	if input.SupplierID != "" && input.SupplierID != actor.ID {
		return nil, domain.NotAuthorized("supplier %s cannot accept on behalf of %s", actor.ID, input.SupplierID)
	}
	if err := validatePrice(input.FinalPrice); err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, domain.OpAccept, actor, id, kafka.EventBookingAccepted,
		func(b *domain.Booking) (step, error) {
			supplierID := actor.ID
			patch := domain.BookingPatch{SupplierID: &supplierID}

			itemID := b.ItemID
			if input.ItemID != "" {
				itemID = input.ItemID
				patch.ItemID = &itemID
			}

			switch {
			case input.FinalPrice != nil:
				patch.FinalPrice = input.FinalPrice
			case b.FinalPrice == nil:
				if price, ok := s.estimate(ctx, b, itemID); ok {
					patch.FinalPrice = &price
				}
			}

			next := domain.BookingStatusConfirmed
			deadline := s.arrivalDeadline(b)
			switch {
			case input.OperatorID != "" && input.OperatorID != supplierID:
				patch.OperatorID = &input.OperatorID
			case input.NeedsOperator:
				next = domain.BookingStatusAwaitingOperator
				deadline = s.now().UTC().Add(s.acceptTTL)
			}
			patch.ExpiresAt = &deadline
			return step{next: next, patch: patch}, nil
		})
	if err != nil {
		return nil, err
	}

	if updated.ItemID != "" && s.items != nil {
		if err := s.items.Reserve(ctx, updated.ItemID); err != nil {
			s.logger.Warn("failed to reserve item",
				slog.String("booking_id", updated.ID),
				slog.String("item_id", updated.ItemID),
				slog.Any("error", err))
		}
	}
	return updated, nil
}

func validatePrice(price *int64) error {
	if price == nil {
		return nil
	}
	if *price < 0 || *price > domain.MaxFinalPrice {
		return domain.Validation("final_price must be within [0, %d]", domain.MaxFinalPrice)
	}
	return nil
}

// estimate asks the pricing service for a booking price. Pricing problems
// never block acceptance; the price can still be set at completion.
func (s *BookingService) estimate(ctx context.Context, b *domain.Booking, itemID string) (int64, bool) {
	if s.estimator == nil || itemID == "" || b.Purpose == "" || b.EstimatedDuration <= 0 {
		return 0, false
	}
	price, err := s.estimator.EstimateBookingPrice(ctx, itemID, b.Purpose, b.EstimatedDuration)
	if err != nil {
		s.logger.Warn("price estimate failed",
			slog.String("booking_id", b.ID),
			slog.String("item_id", itemID),
			slog.Any("error", err))
		return 0, false
	}
	return price, true
}

// arrivalDeadline is the scheduled start plus the arrival grace period.
func (s *BookingService) arrivalDeadline(b *domain.Booking) time.Time {
	start := b.Date
	if t, err := time.Parse("15:04", b.StartTime); err == nil {
		start = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), t.Hour(), t.Minute(), 0, 0, b.Date.Location())
	}
	return start.Add(s.arrivalGrace).UTC()
}

func (s *BookingService) Reject(ctx context.Context, actor domain.Actor, id string, reason string) (*domain.Booking, error) {
	return s.transition(ctx, domain.OpReject, actor, id, kafka.EventBookingRejected,
		func(b *domain.Booking) (step, error) {
			msg := "rejected by supplier"
			if reason = strings.TrimSpace(reason); reason != "" {
				msg += ": " + reason
			}
			return step{
				next:  domain.BookingStatusCancelled,
				patch: domain.BookingPatch{CancelReason: &msg, ExpiresAt: &time.Time{}},
			}, nil
		})
}

func (s *BookingService) AssignOperator(ctx context.Context, actor domain.Actor, id string, operatorID string) (*domain.Booking, error) {
	if strings.TrimSpace(operatorID) == "" {
		return nil, domain.Validation("operator_id is required")
	}
	return s.transition(ctx, domain.OpAssignOperator, actor, id, kafka.EventOperatorAssigned,
		func(b *domain.Booking) (step, error) {
			deadline := s.arrivalDeadline(b)
			return step{
				next:  domain.BookingStatusConfirmed,
				patch: domain.BookingPatch{OperatorID: &operatorID, ExpiresAt: &deadline},
			}, nil
		})
}

// MarkArrived records arrival on site and issues the start-of-work code the
// farmer relays to the operator.
func (s *BookingService) MarkArrived(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	updated, err := s.transition(ctx, domain.OpArrive, actor, id, kafka.EventOperatorArrived,
		func(b *domain.Booking) (step, error) {
			code, err := s.gate.Issue()
			if err != nil {
				return step{}, err
			}
			reissues, needsAdmin := 0, false
			return step{
				next: domain.BookingStatusArrived,
				patch: domain.BookingPatch{
					OTP:         &code,
					OTPReissues: &reissues,
					NeedsAdmin:  &needsAdmin,
					ExpiresAt:   &time.Time{},
				},
			}, nil
		})
	if err != nil {
		return nil, err
	}
	s.publishOTP(ctx, updated)
	return updated, nil
}

// StartWork verifies the code. A wrong guess is recorded before the error is
// returned, so the remaining-attempts count survives concurrent callers.
func (s *BookingService) StartWork(ctx context.Context, actor domain.Actor, id string, code string) (*domain.Booking, error) {
	return s.transition(ctx, domain.OpStartWork, actor, id, kafka.EventWorkStarted,
		func(b *domain.Booking) (step, error) {
			remaining, verr := s.gate.Verify(b.OTP, strings.TrimSpace(code))
			if verr == nil {
				return step{
					next:  domain.BookingStatusInProcess,
					patch: domain.BookingPatch{ClearOTP: true, ExpiresAt: &time.Time{}},
				}, nil
			}
			if b.OTP == nil {
				return step{}, verr
			}
			patch := domain.BookingPatch{OTP: remaining, ClearOTP: remaining == nil}
			return step{
				next:  domain.BookingStatusArrived,
				patch: patch,
				event: kafka.EventOTPFailed,
				after: verr,
			}, nil
		})
}

// ReissueOTP replaces the current code. Past the reissue cap the booking is
// flagged for an admin, and only an admin may issue again.
func (s *BookingService) ReissueOTP(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	updated, err := s.transition(ctx, domain.OpReissueOTP, actor, id, kafka.EventOTPIssued,
		func(b *domain.Booking) (step, error) {
			isAdmin := actor.Role == domain.RoleAdmin
			if !isAdmin && (b.NeedsAdmin || !s.gate.CanReissue(b.OTPReissues)) {
				if b.NeedsAdmin {
					return step{}, fmt.Errorf("booking %s: %w", b.ID, domain.ErrAdminInterventionRequired)
				}
				flag := true
				return step{
					next:  domain.BookingStatusArrived,
					patch: domain.BookingPatch{NeedsAdmin: &flag, ClearOTP: true},
					event: kafka.EventAdminRequired,
					after: fmt.Errorf("booking %s reached %d reissues: %w", b.ID, s.gate.MaxReissues(), domain.ErrAdminInterventionRequired),
				}, nil
			}

			code, err := s.gate.Issue()
			if err != nil {
				return step{}, err
			}
			reissues, needsAdmin := b.OTPReissues+1, false
			if isAdmin {
				reissues = 0
			}
			return step{
				next:  domain.BookingStatusArrived,
				patch: domain.BookingPatch{OTP: &code, OTPReissues: &reissues, NeedsAdmin: &needsAdmin},
			}, nil
		})
	if err != nil {
		return nil, err
	}
	s.publishOTP(ctx, updated)
	return updated, nil
}

// RevealOTP returns the live code to the booking's farmer or an admin.
func (s *BookingService) RevealOTP(ctx context.Context, actor domain.Actor, id string) (*domain.OTP, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != domain.BookingStatusArrived {
		return nil, &domain.TransitionError{Op: "reveal_otp", From: b.Status}
	}
	switch {
	case actor.Role == domain.RoleAdmin:
	case actor.Role == domain.RoleFarmer && actor.ID == b.FarmerID:
	default:
		return nil, domain.NotAuthorized("only the booking's farmer can read the code")
	}
	if b.OTP.Expired(s.now()) {
		return nil, &domain.OTPError{Err: domain.ErrOTPExpired}
	}
	code := *b.OTP
	return &code, nil
}

func (s *BookingService) Complete(ctx context.Context, actor domain.Actor, id string, input CompleteInput) (*domain.Booking, error) {
	if err := validatePrice(input.FinalPrice); err != nil {
		return nil, err
	}
	return s.transition(ctx, domain.OpComplete, actor, id, kafka.EventWorkCompleted,
		func(b *domain.Booking) (step, error) {
			priced := b.Clone()
			if input.FinalPrice != nil {
				priced.FinalPrice = input.FinalPrice
			}
			if priced.FinalPrice == nil {
				return step{}, fmt.Errorf("complete booking %s: %w", b.ID, domain.ErrMissingPrice)
			}

			patch := domain.BookingPatch{FinalPrice: priced.FinalPrice, ExpiresAt: &time.Time{}}
			proof := strings.TrimSpace(input.PaymentProof)
			if proof == "" {
				return step{next: domain.BookingStatusPendingPayment, patch: patch}, nil
			}

			details, err := s.calculator.Settle(priced)
			if err != nil {
				return step{}, err
			}
			patch.PaymentDetails = &details
			patch.PaymentProof = &proof
			return step{next: domain.BookingStatusCompleted, patch: patch, event: kafka.EventPaymentRecorded}, nil
		})
}

// RecordPayment settles a booking awaiting payment. Recording payment on a
// booking that is already settled returns it unchanged.
func (s *BookingService) RecordPayment(ctx context.Context, actor domain.Actor, id string, proof string) (*domain.Booking, error) {
	proof = strings.TrimSpace(proof)
	if proof == "" {
		return nil, domain.Validation("payment proof is required")
	}

	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BookingStatusCompleted && b.PaymentDetails != nil {
		if err := authorizeActor(domain.OpRecordPayment, actor, b); err != nil {
			return nil, err
		}
		return b, nil
	}

	return s.transition(ctx, domain.OpRecordPayment, actor, id, kafka.EventPaymentRecorded,
		func(b *domain.Booking) (step, error) {
			details, err := s.calculator.Settle(b)
			if err != nil {
				return step{}, err
			}
			return step{
				next:  domain.BookingStatusCompleted,
				patch: domain.BookingPatch{PaymentDetails: &details, PaymentProof: &proof},
			}, nil
		})
}

func (s *BookingService) Cancel(ctx context.Context, actor domain.Actor, id string, reason string) (*domain.Booking, error) {
	return s.transition(ctx, domain.OpCancel, actor, id, kafka.EventBookingCancelled,
		func(b *domain.Booking) (step, error) {
			msg := strings.TrimSpace(reason)
			if msg == "" {
				msg = fmt.Sprintf("cancelled by %s", actor.Role)
			}
			return step{
				next:  domain.BookingStatusCancelled,
				patch: domain.BookingPatch{CancelReason: &msg, ClearOTP: true, ExpiresAt: &time.Time{}},
			}, nil
		})
}

// Expire ends a booking whose deadline has passed without the expected action.
func (s *BookingService) Expire(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return s.transition(ctx, domain.OpExpire, actor, id, kafka.EventBookingExpired,
		func(b *domain.Booking) (step, error) {
			if b.ExpiresAt.IsZero() || s.now().Before(b.ExpiresAt) {
				return step{}, &domain.TransitionError{Op: domain.OpExpire, From: b.Status, Reason: "deadline not elapsed"}
			}
			msg := fmt.Sprintf("no action before %s", b.ExpiresAt.UTC().Format(time.RFC3339))
			return step{
				next:  domain.BookingStatusExpired,
				patch: domain.BookingPatch{CancelReason: &msg, ClearOTP: true, ExpiresAt: &time.Time{}},
			}, nil
		})
}

// ExpireOverdue expires one batch of overdue bookings. Bookings a human
// moved on in the meantime are skipped.
func (s *BookingService) ExpireOverdue(ctx context.Context) ([]domain.Booking, error) {
	overdue, err := s.bookings.ListOverdue(ctx, s.now().UTC(), s.sweepBatch)
	if err != nil {
		return nil, err
	}

	expired := make([]domain.Booking, 0, len(overdue))
	for _, b := range overdue {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		updated, err := s.Expire(ctx, domain.SystemActor(), b.ID)
		if err != nil {
			if errors.Is(err, domain.ErrConcurrentModification) || errors.Is(err, domain.ErrInvalidTransition) {
				s.logger.Debug("skipping booking changed during sweep", slog.String("booking_id", b.ID), slog.Any("error", err))
				continue
			}
			s.logger.Error("failed to expire booking", slog.String("booking_id", b.ID), slog.Any("error", err))
			continue
		}
		expired = append(expired, *updated)
	}
	return expired, nil
}

var _ BookingUseCase = (*BookingService)(nil)
