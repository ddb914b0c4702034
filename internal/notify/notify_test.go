package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/Domenick1991/agrirent/internal/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func otpEvent() kafka.BookingEvent {
	return kafka.BookingEvent{
		Type:       kafka.EventOTPIssued,
		BookingID:  "6f1c2d3e-aaaa-bbbb-cccc-000000000001",
		FarmerID:   "farmer-1",
		SupplierID: "supplier-1",
		Status:     string(domain.BookingStatusArrived),
		OTPCode:    "482913",
	}
}

func TestCompose_OTPGoesToFarmerOnly(t *testing.T) {
	msgs := Compose(otpEvent())

	require.Len(t, msgs, 1)
	assert.Equal(t, "farmer-1", msgs[0].Recipient)
	assert.True(t, msgs[0].Secret)
	assert.Contains(t, msgs[0].Body, "482913")
	assert.Contains(t, msgs[0].Body, "6f1c2d3e")
}

func TestCompose_OTPWithoutCodeIsDropped(t *testing.T) {
	event := otpEvent()
	event.OTPCode = ""

	assert.Empty(t, Compose(event))
}

func TestCompose_Cancelled(t *testing.T) {
	msgs := Compose(kafka.BookingEvent{
		Type:       kafka.EventBookingCancelled,
		BookingID:  "b1",
		FarmerID:   "farmer-1",
		SupplierID: "supplier-1",
		Status:     string(domain.BookingStatusCancelled),
		Reason:     "rain",
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, "Booking b1 is cancelled. Reason: rain.", msgs[0].Body)
	assert.Equal(t, domain.RoleSupplier, msgs[1].Role)
}

func TestCompose_Settled(t *testing.T) {
	msgs := Compose(kafka.BookingEvent{
		Type:       kafka.EventPaymentRecorded,
		BookingID:  "b1",
		FarmerID:   "farmer-1",
		SupplierID: "supplier-1",
		Status:     string(domain.BookingStatusCompleted),
		Payment:    &domain.PaymentDetails{FarmerAmount: 1000, SupplierAmount: 900, Commission: 100},
	})

	require.Len(t, msgs, 2)
	assert.Equal(t, "Booking b1 is settled: 1000 paid, 900 to supplier.", msgs[0].Body)
}

func TestCompose_UnknownType(t *testing.T) {
	assert.Empty(t, Compose(kafka.BookingEvent{Type: "something_else", FarmerID: "f"}))
}

func TestSender_LogNeverContainsCode(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	require.NoError(t, NewSender(logger).Send(context.Background(), otpEvent()))

	assert.NotContains(t, buf.String(), "482913")
	assert.Contains(t, buf.String(), "*****3")
	assert.Contains(t, buf.String(), "notification sent")
}

func TestSender_DeliveryFailure(t *testing.T) {
	var delivered []string
	failing := errors.New("sms gateway down")
	sender := NewSender(slog.New(slog.DiscardHandler), WithDeliverer(func(_ context.Context, msg Message) error {
		delivered = append(delivered, msg.Recipient)
		if msg.Role == domain.RoleFarmer {
			return failing
		}
		return nil
	}))

	err := sender.Send(context.Background(), kafka.BookingEvent{
		Type:       kafka.EventBookingExpired,
		BookingID:  "b1",
		FarmerID:   "farmer-1",
		SupplierID: "supplier-1",
		Status:     string(domain.BookingStatusExpired),
	})

	assert.ErrorIs(t, err, failing)
	assert.Equal(t, []string{"farmer-1", "supplier-1"}, delivered)
}
