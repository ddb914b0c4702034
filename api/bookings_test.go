package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/Domenick1991/agrirent/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBookingUseCase is a mock implementation of booking.BookingUseCase
type MockBookingUseCase struct {
	mock.Mock
}

func (m *MockBookingUseCase) result(args mock.Arguments) (*domain.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingUseCase) Create(ctx context.Context, actor domain.Actor, input booking.CreateBookingInput) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, input))
}

func (m *MockBookingUseCase) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id))
}

func (m *MockBookingUseCase) RequestSupplier(ctx context.Context, actor domain.Actor, id string, input booking.RequestSupplierInput) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id, input))
}

func (m *MockBookingUseCase) Accept(ctx context.Context, actor domain.Actor, id string, input booking.AcceptInput) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id, input))
}

func (m *MockBookingUseCase) Reject(ctx context.Context, actor domain.Actor, id string, reason string) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id, reason))
}

func (m *MockBookingUseCase) AssignOperator(ctx context.Context, actor domain.Actor, id string, operatorID string) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id, operatorID))
}

func (m *MockBookingUseCase) MarkArrived(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id))
}

func (m *MockBookingUseCase) StartWork(ctx context.Context, actor domain.Actor, id string, code string) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id, code))
}

func (m *MockBookingUseCase) ReissueOTP(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id))
}

func (m *MockBookingUseCase) RevealOTP(ctx context.Context, actor domain.Actor, id string) (*domain.OTP, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OTP), args.Error(1)
}

func (m *MockBookingUseCase) Complete(ctx context.Context, actor domain.Actor, id string, input booking.CompleteInput) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id, input))
}

func (m *MockBookingUseCase) RecordPayment(ctx context.Context, actor domain.Actor, id string, proof string) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id, proof))
}

func (m *MockBookingUseCase) Cancel(ctx context.Context, actor domain.Actor, id string, reason string) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id, reason))
}

func (m *MockBookingUseCase) Expire(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return m.result(m.Called(ctx, actor, id))
}

func (m *MockBookingUseCase) ExpireOverdue(ctx context.Context) ([]domain.Booking, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

var (
	farmer   = domain.Actor{ID: "farmer-1", Role: domain.RoleFarmer}
	supplier = domain.Actor{ID: "supplier-1", Role: domain.RoleSupplier}
	created  = time.Date(2026, 10, 1, 6, 0, 0, 0, time.UTC)
)

func sampleBooking(status domain.BookingStatus) *domain.Booking {
	return &domain.Booking{
		ID:                "b1",
		FarmerID:          farmer.ID,
		SupplierID:        supplier.ID,
		ItemCategory:      "tractor",
		Status:            status,
		Date:              time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
		StartTime:         "07:30",
		EstimatedDuration: 4 * time.Hour,
		Version:           3,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func newTestContext(method, target string, body interface{}, actor domain.Actor) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(actorKey, actor)
	c.Params = gin.Params{{Key: "id", Value: "b1"}}
	return c, w
}

func TestBookingHandler_create(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, nil)

	c, w := newTestContext("POST", "/bookings", createBookingRequest{
		ItemCategory:             "tractor",
		Purpose:                  "ploughing",
		Date:                     "2026-10-02",
		StartTime:                "07:30",
		EstimatedDurationMinutes: 240,
		Location:                 "Guntur",
	}, farmer)

	expected := booking.CreateBookingInput{
		ItemCategory:      "tractor",
		Purpose:           "ploughing",
		Date:              time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
		StartTime:         "07:30",
		EstimatedDuration: 4 * time.Hour,
		Location:          "Guntur",
	}
	mockService.On("Create", c.Request.Context(), farmer, expected).Return(sampleBooking(domain.BookingStatusSearching), nil)

	handler.create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	var response bookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "b1", response.ID)
	assert.Equal(t, "SEARCHING", response.Status)
	assert.Equal(t, "2026-10-02", response.Date)
	assert.Equal(t, 240, response.EstimatedDurationMinutes)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_create_BadRequest(t *testing.T) {
	testCases := []struct {
		name string
		body interface{}
	}{
		{name: "missing category", body: createBookingRequest{Date: "2026-10-02", StartTime: "07:30", EstimatedDurationMinutes: 60}},
		{name: "bad date", body: createBookingRequest{ItemCategory: "tractor", Date: "02/10/2026", StartTime: "07:30", EstimatedDurationMinutes: 60}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			c, w := newTestContext("POST", "/bookings", tc.body, farmer)

			NewBookingHandler(mockService, nil).create(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			mockService.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestBookingHandler_accept(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, nil)

	price := int64(1000)
	c, w := newTestContext("POST", "/bookings/b1/accept", acceptRequest{FinalPrice: &price}, supplier)

	confirmed := sampleBooking(domain.BookingStatusConfirmed)
	confirmed.FinalPrice = &price
	mockService.On("Accept", c.Request.Context(), supplier, "b1", booking.AcceptInput{FinalPrice: &price}).Return(confirmed, nil)

	handler.accept(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response bookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "CONFIRMED", response.Status)
	require.NotNil(t, response.FinalPrice)
	assert.Equal(t, int64(1000), *response.FinalPrice)
}

func TestBookingHandler_cancel_WithoutBody(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, nil)

	c, w := newTestContext("POST", "/bookings/b1/cancel", nil, farmer)
	mockService.On("Cancel", c.Request.Context(), farmer, "b1", "").Return(sampleBooking(domain.BookingStatusCancelled), nil)

	handler.cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

func TestBookingHandler_arrive_HidesCode(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, nil)

	c, w := newTestContext("POST", "/bookings/b1/arrive", nil, supplier)
	arrived := sampleBooking(domain.BookingStatusArrived)
	arrived.OTP = &domain.OTP{Code: "482913", ExpiresAt: created.Add(15 * time.Minute)}
	mockService.On("MarkArrived", c.Request.Context(), supplier, "b1").Return(arrived, nil)

	handler.arrive(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "482913")
	assert.Contains(t, w.Body.String(), `"otp_expires_at":"2026-10-01T06:15:00Z"`)
}

func TestBookingHandler_start_Mismatch(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, nil)

	c, w := newTestContext("POST", "/bookings/b1/start", startWorkRequest{OTPCode: "000000"}, supplier)
	mockService.On("StartWork", c.Request.Context(), supplier, "b1", "000000").
		Return(nil, &domain.OTPError{Err: domain.ErrOTPMismatch, Remaining: 4})

	handler.start(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	var response errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "otp_mismatch", response.Code)
	require.NotNil(t, response.RemainingAttempts)
	assert.Equal(t, 4, *response.RemainingAttempts)
}

func TestBookingHandler_revealOTP(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, nil)

	c, w := newTestContext("GET", "/bookings/b1/otp", nil, farmer)
	mockService.On("RevealOTP", c.Request.Context(), farmer, "b1").
		Return(&domain.OTP{Code: "482913", ExpiresAt: created.Add(15 * time.Minute)}, nil)

	handler.revealOTP(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	var response otpResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "482913", response.Code)
}

func TestBookingHandler_otpQR(t *testing.T) {
	mockService := &MockBookingUseCase{}
	handler := NewBookingHandler(mockService, nil)

	c, w := newTestContext("GET", "/bookings/b1/otp/qr", nil, farmer)
	mockService.On("RevealOTP", c.Request.Context(), farmer, "b1").
		Return(&domain.OTP{Code: "482913", ExpiresAt: created.Add(15 * time.Minute)}, nil)

	handler.otpQR(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestBookingHandler_recordPayment_RequiresProof(t *testing.T) {
	mockService := &MockBookingUseCase{}
	c, w := newTestContext("POST", "/bookings/b1/payment", map[string]string{}, supplier)

	NewBookingHandler(mockService, nil).recordPayment(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBookingHandler_ErrorMapping(t *testing.T) {
	testCases := []struct {
		err    error
		status int
		code   string
	}{
		{err: domain.Validation("bad"), status: http.StatusBadRequest, code: "validation"},
		{err: domain.NotAuthorized("nope"), status: http.StatusForbidden, code: "not_authorized"},
		{err: fmt.Errorf("booking b1: %w", domain.ErrNotFound), status: http.StatusNotFound, code: "not_found"},
		{err: &domain.TransitionError{Op: domain.OpCancel, From: domain.BookingStatusInProcess}, status: http.StatusConflict, code: "invalid_transition"},
		{err: domain.ErrConcurrentModification, status: http.StatusConflict, code: "concurrent_modification"},
		{err: &domain.OTPError{Err: domain.ErrOTPExpired}, status: http.StatusConflict, code: "otp_expired"},
		{err: domain.ErrAdminInterventionRequired, status: http.StatusConflict, code: "admin_intervention_required"},
		{err: domain.ErrMissingPrice, status: http.StatusUnprocessableEntity, code: "missing_price"},
		{err: errors.New("connection reset"), status: http.StatusInternalServerError, code: "internal"},
	}

	for _, tc := range testCases {
		t.Run(tc.code, func(t *testing.T) {
			mockService := &MockBookingUseCase{}
			c, w := newTestContext("GET", "/bookings/b1", nil, farmer)
			mockService.On("Get", c.Request.Context(), farmer, "b1").Return(nil, tc.err)

			NewBookingHandler(mockService, nil).get(c)

			assert.Equal(t, tc.status, w.Code)
			var response errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tc.code, response.Code)
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", response.Error)
			}
		})
	}
}

func TestBookingHandler_InternalErrorUsesHandlerLogger(t *testing.T) {
	var logs bytes.Buffer
	mockService := &MockBookingUseCase{}
	c, w := newTestContext("GET", "/bookings/b1", nil, farmer)
	mockService.On("Get", c.Request.Context(), farmer, "b1").Return(nil, errors.New("connection reset"))

	NewBookingHandler(mockService, slog.New(slog.NewTextHandler(&logs, nil))).get(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, logs.String(), "request failed")
	assert.Contains(t, logs.String(), "connection reset")
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestBookingHandler_ClientErrorsAreNotLogged(t *testing.T) {
	var logs bytes.Buffer
	mockService := &MockBookingUseCase{}
	c, w := newTestContext("GET", "/bookings/b1", nil, farmer)
	mockService.On("Get", c.Request.Context(), farmer, "b1").Return(nil, domain.ErrNotFound)

	NewBookingHandler(mockService, slog.New(slog.NewTextHandler(&logs, nil))).get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, logs.String())
}

func TestBookingRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockService := &MockBookingUseCase{}
	router := gin.New()
	group := router.Group("/bookings", RequestID(), Actor())
	NewBookingHandler(mockService, nil).Register(group)

	mockService.On("Reject", mock.Anything, supplier, "b1", "busy").Return(sampleBooking(domain.BookingStatusCancelled), nil)

	req := httptest.NewRequest("POST", "/bookings/b1/reject", bytes.NewBufferString(`{"reason":"busy"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderActorID, supplier.ID)
	req.Header.Set(HeaderActorRole, string(supplier.Role))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	mockService.AssertExpectations(t)

	anonymous := httptest.NewRequest("GET", "/bookings/b1", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, anonymous)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
