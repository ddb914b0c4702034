package kafka

import (
	"time"

	"github.com/Domenick1991/agrirent/internal/domain"
)

const (
	EventBookingCreated    = "booking_created"
	EventSupplierRequested = "supplier_requested"
	EventBookingAccepted   = "booking_accepted"
	EventBookingRejected   = "booking_rejected"
	EventOperatorAssigned  = "operator_assigned"
	EventOperatorArrived   = "operator_arrived"
	EventOTPIssued         = "otp_issued"
	EventOTPFailed         = "otp_failed"
	EventWorkStarted       = "work_started"
	EventWorkCompleted     = "work_completed"
	EventPaymentRecorded   = "payment_recorded"
	EventBookingCancelled  = "booking_cancelled"
	EventBookingExpired    = "booking_expired"
	EventAdminRequired     = "admin_intervention_required"
)

// BookingEvent is published on every applied transition. OTPCode is only
// ever filled on the notifications topic.
type BookingEvent struct {
	Type           string                 `json:"type"`
	BookingID      string                 `json:"booking_id"`
	FarmerID       string                 `json:"farmer_id"`
	SupplierID     string                 `json:"supplier_id,omitempty"`
	OperatorID     string                 `json:"operator_id,omitempty"`
	ItemID         string                 `json:"item_id,omitempty"`
	PreviousStatus string                 `json:"previous_status,omitempty"`
	Status         string                 `json:"status"`
	FinalPrice     *int64                 `json:"final_price,omitempty"`
	Payment        *domain.PaymentDetails `json:"payment,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
	OTPCode        string                 `json:"otp_code,omitempty"`
	OTPExpiresAt   *time.Time             `json:"otp_expires_at,omitempty"`
	Version        int64                  `json:"version"`
	OccurredAt     time.Time              `json:"occurred_at"`
}

// NewBookingEvent describes b after a transition out of previous.
func NewBookingEvent(eventType string, previous domain.BookingStatus, b *domain.Booking, at time.Time) BookingEvent {
	event := BookingEvent{
		Type:           eventType,
		BookingID:      b.ID,
		FarmerID:       b.FarmerID,
		SupplierID:     b.SupplierID,
		OperatorID:     b.OperatorID,
		ItemID:         b.ItemID,
		PreviousStatus: string(previous),
		Status:         string(b.Status),
		FinalPrice:     b.FinalPrice,
		Payment:        b.PaymentDetails,
		Reason:         b.CancelReason,
		Version:        b.Version,
		OccurredAt:     at.UTC(),
	}
	if previous == b.Status {
		event.PreviousStatus = ""
	}
	return event
}

// WithOTP returns a copy carrying the current code, for the notifications topic.
func (e BookingEvent) WithOTP(otp *domain.OTP) BookingEvent {
	if otp == nil {
		return e
	}
	expires := otp.ExpiresAt
	e.OTPCode = otp.Code
	e.OTPExpiresAt = &expires
	return e
}
