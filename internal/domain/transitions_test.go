package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedTransitions_CoverEveryNonTerminalStatus(t *testing.T) {
	for _, status := range AllBookingStatuses {
		_, ok := AllowedTransitions[status]
		if status.Terminal() {
			assert.False(t, ok, "terminal status %s must have no outgoing edges", status)
			continue
		}
		assert.True(t, ok, "status %s has no outgoing edges", status)
		assert.True(t, CanTransition(status, BookingStatusExpired), "%s must be expirable", status)
	}
}

func TestAllowedTransitions_NeverRevisitEarlierStatus(t *testing.T) {
	order := make(map[BookingStatus]int, len(AllBookingStatuses))
	for i, s := range AllBookingStatuses {
		order[s] = i
	}
	for from, tos := range AllowedTransitions {
		for _, to := range tos {
			if from == to {
				assert.Equal(t, BookingStatusArrived, from, "only Arrived may loop")
				continue
			}
			assert.Greater(t, order[to], order[from], "%s -> %s goes backwards", from, to)
		}
	}
}

func TestEdges_StatusesAreKnown(t *testing.T) {
	for op, edge := range Edges {
		require.NotEmpty(t, edge.From, op)
		require.NotEmpty(t, edge.Roles, op)
		for _, s := range edge.From {
			assert.True(t, s.Valid(), "%s: unknown status %s", op, s)
			assert.False(t, s.Terminal(), "%s starts from terminal status %s", op, s)
		}
	}
}

func TestEdges_CancelNotAllowedOnceWorkStarted(t *testing.T) {
	edge := Edges[OpCancel]
	assert.True(t, edge.AllowsStatus(BookingStatusConfirmed))
	assert.True(t, edge.AllowsStatus(BookingStatusArrived))
	assert.False(t, edge.AllowsStatus(BookingStatusInProcess))
	assert.False(t, edge.AllowsStatus(BookingStatusPendingPayment))
	assert.False(t, edge.AllowsRole(RoleOperator))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(BookingStatusConfirmed, BookingStatusArrived))
	assert.True(t, CanTransition(BookingStatusArrived, BookingStatusArrived))
	assert.False(t, CanTransition(BookingStatusInProcess, BookingStatusCancelled))
	assert.False(t, CanTransition(BookingStatusCompleted, BookingStatusExpired))
	assert.False(t, CanTransition(BookingStatus("BOGUS"), BookingStatusExpired))
}

func TestBookingPatch_PaymentDetailsWriteOnce(t *testing.T) {
	first := &PaymentDetails{FarmerAmount: 1000, SupplierAmount: 900, Commission: 100, PaymentDate: time.Now()}
	b := &Booking{}
	BookingPatch{PaymentDetails: first}.ApplyTo(b)
	BookingPatch{PaymentDetails: &PaymentDetails{FarmerAmount: 1}}.ApplyTo(b)

	require.NotNil(t, b.PaymentDetails)
	assert.Equal(t, int64(1000), b.PaymentDetails.FarmerAmount)
	assert.True(t, b.PaymentDetails.Balanced())
}

func TestBookingPatch_OTP(t *testing.T) {
	b := &Booking{}
	BookingPatch{OTP: &OTP{Code: "123456"}}.ApplyTo(b)
	require.NotNil(t, b.OTP)

	BookingPatch{ClearOTP: true}.ApplyTo(b)
	assert.Nil(t, b.OTP)
}

func TestBooking_CloneIsDeep(t *testing.T) {
	price := int64(500)
	b := &Booking{ID: "b1", FinalPrice: &price, OTP: &OTP{Code: "111111"}}
	c := b.Clone()
	*c.FinalPrice = 1
	c.OTP.Code = "222222"

	assert.Equal(t, int64(500), *b.FinalPrice)
	assert.Equal(t, "111111", b.OTP.Code)
}

func TestErrors_Wrapping(t *testing.T) {
	err := error(&TransitionError{Op: OpStartWork, From: BookingStatusConfirmed})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "start_work not allowed from CONFIRMED")

	otpErr := error(&OTPError{Err: ErrOTPMismatch, Remaining: 3})
	assert.True(t, errors.Is(otpErr, ErrOTPMismatch))
	remaining, ok := RemainingAttempts(otpErr)
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)

	assert.True(t, errors.Is(NotAuthorized("farmer %s", "f1"), ErrNotAuthorized))
	assert.True(t, errors.Is(Validation("bad"), ErrValidation))
}

func TestBookingStatus_HoldsItem(t *testing.T) {
	for _, st := range ItemHoldingStatuses {
		assert.True(t, st.HoldsItem(), st)
		assert.False(t, st.Terminal(), st)
	}
	for _, st := range []BookingStatus{BookingStatusSearching, BookingStatusPendingConfirmation,
		BookingStatusCompleted, BookingStatusCancelled, BookingStatusExpired} {
		assert.False(t, st.HoldsItem(), st)
	}
}
