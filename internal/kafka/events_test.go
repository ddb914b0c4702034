package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBookingEvent(t *testing.T) {
	price := int64(1000)
	b := &domain.Booking{
		ID:         "b1",
		FarmerID:   "f1",
		SupplierID: "s1",
		Status:     domain.BookingStatusArrived,
		FinalPrice: &price,
		OTP:        &domain.OTP{Code: "482913", ExpiresAt: time.Now().Add(time.Minute)},
		Version:    4,
	}

	event := NewBookingEvent(EventOperatorArrived, domain.BookingStatusConfirmed, b, time.Now())
	assert.Equal(t, "b1", event.BookingID)
	assert.Equal(t, "CONFIRMED", event.PreviousStatus)
	assert.Equal(t, "ARRIVED", event.Status)
	assert.Empty(t, event.OTPCode)

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "482913")

	withCode := event.WithOTP(b.OTP)
	assert.Equal(t, "482913", withCode.OTPCode)
	assert.Empty(t, event.OTPCode)

	selfLoop := NewBookingEvent(EventOTPIssued, domain.BookingStatusArrived, b, time.Now())
	assert.Empty(t, selfLoop.PreviousStatus)
}

func TestBookingEventHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var got []BookingEvent
	handler := BookingEventHandler(logger, func(_ context.Context, e BookingEvent) error {
		got = append(got, e)
		return nil
	})

	payload, err := json.Marshal(BookingEvent{Type: EventBookingCreated, BookingID: "b1"})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), kafka.Message{Value: payload}))
	require.NoError(t, handler(context.Background(), kafka.Message{Value: []byte("not json")}))

	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].BookingID)

	failing := BookingEventHandler(logger, func(context.Context, BookingEvent) error {
		return errors.New("downstream")
	})
	assert.Error(t, failing(context.Background(), kafka.Message{Value: payload}))
}

func TestProducer_CheckConnectionWithoutBrokers(t *testing.T) {
	p := NewProducer(nil, nil)
	defer p.Close()
	assert.Error(t, p.CheckConnection(context.Background()))
}
