// Package notify turns booking events into participant messages. Delivery
// is pluggable; the default deliverer writes to the structured log.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/Domenick1991/agrirent/internal/kafka"
	"github.com/Domenick1991/agrirent/internal/service/otp"
)

type Message struct {
	Recipient string
	Role      domain.Role
	Subject   string
	Body      string
	// Secret is set when Body carries a start-of-work code.
	Secret bool
}

type Deliverer func(ctx context.Context, msg Message) error

type Sender struct {
	logger  *slog.Logger
	deliver Deliverer
}

type Option func(*Sender)

func WithDeliverer(d Deliverer) Option {
	return func(s *Sender) {
		s.deliver = d
	}
}

func NewSender(logger *slog.Logger, opts ...Option) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sender{logger: logger}
	s.deliver = s.logDelivery
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers every message the event produces. The first failed delivery
// is returned after the rest were attempted.
func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	if event.OTPCode != "" {
		s.logger.Debug("delivering start-of-work code",
			slog.String("booking_id", event.BookingID),
			slog.String("otp", MaskedCode(event)))
	}

	var firstErr error
	for _, msg := range Compose(event) {
		if err := s.deliver(ctx, msg); err != nil {
			s.logger.Error("notification delivery failed",
				slog.String("booking_id", event.BookingID),
				slog.String("recipient", msg.Recipient),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Sender) logDelivery(_ context.Context, msg Message) error {
	body := msg.Body
	if msg.Secret {
		body = "[redacted]"
	}
	s.logger.Info("notification sent",
		slog.String("recipient", msg.Recipient),
		slog.String("role", string(msg.Role)),
		slog.String("subject", msg.Subject),
		slog.String("body", body))
	return nil
}

// Compose maps an event to the messages its participants should receive.
func Compose(event kafka.BookingEvent) []Message {
	ref := shortID(event.BookingID)
	to := func(id string, role domain.Role, subject, body string) []Message {
		if id == "" {
			return nil
		}
		return []Message{{Recipient: id, Role: role, Subject: subject, Body: body}}
	}

	var out []Message
	switch event.Type {
	case kafka.EventBookingCreated:
		out = to(event.FarmerID, domain.RoleFarmer, "Booking received", fmt.Sprintf("We are looking for equipment for booking %s.", ref))
	case kafka.EventSupplierRequested:
		out = to(event.SupplierID, domain.RoleSupplier, "New booking request", fmt.Sprintf("Booking %s is waiting for your confirmation.", ref))
	case kafka.EventBookingAccepted, kafka.EventOperatorAssigned:
		out = to(event.FarmerID, domain.RoleFarmer, "Booking confirmed", fmt.Sprintf("Booking %s is %s.", ref, humanStatus(event.Status)))
		out = append(out, to(event.OperatorID, domain.RoleOperator, "New job assigned", fmt.Sprintf("You are the operator for booking %s.", ref))...)
	case kafka.EventBookingRejected, kafka.EventBookingCancelled, kafka.EventBookingExpired:
		body := fmt.Sprintf("Booking %s is %s.", ref, humanStatus(event.Status))
		if event.Reason != "" {
			body += " Reason: " + event.Reason + "."
		}
		out = to(event.FarmerID, domain.RoleFarmer, "Booking closed", body)
		out = append(out, to(event.SupplierID, domain.RoleSupplier, "Booking closed", body)...)
	case kafka.EventOperatorArrived:
		out = to(event.FarmerID, domain.RoleFarmer, "Operator on site", fmt.Sprintf("The operator for booking %s has arrived.", ref))
	case kafka.EventOTPIssued:
		if event.OTPCode == "" {
			return nil
		}
		out = to(event.FarmerID, domain.RoleFarmer, "Start-of-work code",
			fmt.Sprintf("Share code %s with the operator to start booking %s.", event.OTPCode, ref))
		for i := range out {
			out[i].Secret = true
		}
	case kafka.EventAdminRequired:
		out = to(event.SupplierID, domain.RoleSupplier, "Support needed",
			fmt.Sprintf("Booking %s ran out of code reissues. Support will contact you.", ref))
	case kafka.EventWorkCompleted, kafka.EventPaymentRecorded:
		body := fmt.Sprintf("Booking %s is %s.", ref, humanStatus(event.Status))
		if event.Payment != nil {
			body = fmt.Sprintf("Booking %s is settled: %d paid, %d to supplier.", ref, event.Payment.FarmerAmount, event.Payment.SupplierAmount)
		}
		out = to(event.FarmerID, domain.RoleFarmer, "Work finished", body)
		out = append(out, to(event.SupplierID, domain.RoleSupplier, "Work finished", body)...)
	}
	return out
}

// MaskedCode is the form of an event's code that may appear in logs.
func MaskedCode(event kafka.BookingEvent) string {
	if event.OTPCode == "" {
		return ""
	}
	return otp.Mask(event.OTPCode)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func humanStatus(status string) string {
	switch domain.BookingStatus(status) {
	case domain.BookingStatusConfirmed:
		return "confirmed"
	case domain.BookingStatusAwaitingOperator:
		return "accepted and waiting for an operator"
	case domain.BookingStatusCancelled:
		return "cancelled"
	case domain.BookingStatusExpired:
		return "expired"
	case domain.BookingStatusPendingPayment:
		return "waiting for payment"
	case domain.BookingStatusCompleted:
		return "completed"
	}
	return status
}
