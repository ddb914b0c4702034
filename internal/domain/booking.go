package domain

import "time"

type BookingStatus string

const (
	BookingStatusSearching           BookingStatus = "SEARCHING"
	BookingStatusPendingConfirmation BookingStatus = "PENDING_CONFIRMATION"
	BookingStatusAwaitingOperator    BookingStatus = "AWAITING_OPERATOR"
	BookingStatusConfirmed           BookingStatus = "CONFIRMED"
	BookingStatusArrived             BookingStatus = "ARRIVED"
	BookingStatusInProcess           BookingStatus = "IN_PROCESS"
	BookingStatusPendingPayment      BookingStatus = "PENDING_PAYMENT"
	BookingStatusCompleted           BookingStatus = "COMPLETED"
	BookingStatusCancelled           BookingStatus = "CANCELLED"
	BookingStatusExpired             BookingStatus = "EXPIRED"
)

// AllBookingStatuses lists every status in lifecycle order.
var AllBookingStatuses = []BookingStatus{
	BookingStatusSearching,
	BookingStatusPendingConfirmation,
	BookingStatusAwaitingOperator,
	BookingStatusConfirmed,
	BookingStatusArrived,
	BookingStatusInProcess,
	BookingStatusPendingPayment,
	BookingStatusCompleted,
	BookingStatusCancelled,
	BookingStatusExpired,
}

func (s BookingStatus) Valid() bool {
	for _, known := range AllBookingStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusExpired:
		return true
	}
	return false
}

// MaxFinalPrice bounds a booking's price in whole currency units.
const MaxFinalPrice int64 = 1_000_000_000_000

// ItemHoldingStatuses are the statuses in which a booking has its listing reserved.
var ItemHoldingStatuses = []BookingStatus{
	BookingStatusAwaitingOperator,
	BookingStatusConfirmed,
	BookingStatusArrived,
	BookingStatusInProcess,
	BookingStatusPendingPayment,
}

func (s BookingStatus) HoldsItem() bool {
	for _, held := range ItemHoldingStatuses {
		if s == held {
			return true
		}
	}
	return false
}

// ActiveForDemand reports whether a booking in this status counts towards
// an item's demand when pricing.
func (s BookingStatus) ActiveForDemand() bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusCompleted, BookingStatusPendingPayment,
		BookingStatusArrived, BookingStatusInProcess:
		return true
	}
	return false
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// OTP is the start-of-work code. Attempts counts wrong guesses against this code.
type OTP struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

func (o *OTP) Expired(now time.Time) bool {
	return o == nil || !now.Before(o.ExpiresAt)
}

// PaymentDetails is the settlement split. FarmerAmount == SupplierAmount + Commission.
type PaymentDetails struct {
	FarmerAmount   int64     `json:"farmer_amount"`
	SupplierAmount int64     `json:"supplier_amount"`
	Commission     int64     `json:"commission"`
	PaymentDate    time.Time `json:"payment_date"`
}

func (p PaymentDetails) Balanced() bool {
	return p.FarmerAmount == p.SupplierAmount+p.Commission
}

type Booking struct {
	ID         string
	FarmerID   string
	SupplierID string
	OperatorID string

	ItemID       string
	ItemCategory string
	Purpose      string

	Status BookingStatus

	Date              time.Time
	StartTime         string
	EstimatedDuration time.Duration

	Location       string
	LocationCoords *Coordinates

	FinalPrice     *int64
	OTP            *OTP
	OTPReissues    int
	NeedsAdmin     bool
	PaymentDetails *PaymentDetails
	PaymentProof   string
	CancelReason   string

	// ExpiresAt is the deadline for the next actor action. Zero means none.
	ExpiresAt time.Time
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveOperator is the participant expected on site.
func (b *Booking) EffectiveOperator() string {
	if b.OperatorID != "" {
		return b.OperatorID
	}
	return b.SupplierID
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.LocationCoords != nil {
		coords := *b.LocationCoords
		c.LocationCoords = &coords
	}
	if b.FinalPrice != nil {
		price := *b.FinalPrice
		c.FinalPrice = &price
	}
	if b.OTP != nil {
		otp := *b.OTP
		c.OTP = &otp
	}
	if b.PaymentDetails != nil {
		pd := *b.PaymentDetails
		c.PaymentDetails = &pd
	}
	return &c
}

// BookingPatch carries the non-status fields a transition writes together with
// the status change. Nil fields are left untouched.
type BookingPatch struct {
	SupplierID     *string
	OperatorID     *string
	ItemID         *string
	FinalPrice     *int64
	OTP            *OTP
	ClearOTP       bool
	OTPReissues    *int
	NeedsAdmin     *bool
	PaymentDetails *PaymentDetails
	PaymentProof   *string
	CancelReason   *string
	ExpiresAt      *time.Time
}

func (p BookingPatch) ApplyTo(b *Booking) {
	if p.SupplierID != nil {
		b.SupplierID = *p.SupplierID
	}
	if p.OperatorID != nil {
		b.OperatorID = *p.OperatorID
	}
	if p.ItemID != nil {
		b.ItemID = *p.ItemID
	}
	if p.FinalPrice != nil {
		price := *p.FinalPrice
		b.FinalPrice = &price
	}
	if p.ClearOTP {
		b.OTP = nil
	}
	if p.OTP != nil {
		otp := *p.OTP
		b.OTP = &otp
	}
	if p.OTPReissues != nil {
		b.OTPReissues = *p.OTPReissues
	}
	if p.NeedsAdmin != nil {
		b.NeedsAdmin = *p.NeedsAdmin
	}
	// paymentDetails is write-once
	if p.PaymentDetails != nil && b.PaymentDetails == nil {
		pd := *p.PaymentDetails
		b.PaymentDetails = &pd
	}
	if p.PaymentProof != nil {
		b.PaymentProof = *p.PaymentProof
	}
	if p.CancelReason != nil {
		b.CancelReason = *p.CancelReason
	}
	if p.ExpiresAt != nil {
		b.ExpiresAt = *p.ExpiresAt
	}
}
