package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/Domenick1991/agrirent/internal/service/pricing"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPricingUseCase struct {
	mock.Mock
}

func (m *MockPricingUseCase) Suggest(ctx context.Context, itemID, purpose string) (pricing.Quote, error) {
	args := m.Called(ctx, itemID, purpose)
	return args.Get(0).(pricing.Quote), args.Error(1)
}

func (m *MockPricingUseCase) EstimateBookingPrice(ctx context.Context, itemID, purpose string, duration time.Duration) (int64, error) {
	args := m.Called(ctx, itemID, purpose, duration)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPricingUseCase) ListRules(ctx context.Context) ([]domain.PricingRule, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.PricingRule), args.Error(1)
}

func (m *MockPricingUseCase) GetRule(ctx context.Context, id string) (*domain.PricingRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PricingRule), args.Error(1)
}

func (m *MockPricingUseCase) CreateRule(ctx context.Context, input pricing.RuleInput) (*domain.PricingRule, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PricingRule), args.Error(1)
}

func (m *MockPricingUseCase) UpdateRule(ctx context.Context, id string, input pricing.RuleInput) (*domain.PricingRule, error) {
	args := m.Called(ctx, id, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PricingRule), args.Error(1)
}

func (m *MockPricingUseCase) DeleteRule(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPricingUseCase) RecomputeAutoPrices(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func newPricingRouter(service pricing.PricingUseCase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewPricingHandler(service, nil).Register(
		router.Group("/pricing", Actor()),
		router.Group("/pricing-rules", Actor()),
	)
	return router
}

func serve(router *gin.Engine, method, target, body string, actor domain.Actor) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderActorID, actor.ID)
	req.Header.Set(HeaderActorRole, string(actor.Role))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPricingHandler_suggest(t *testing.T) {
	mockService := &MockPricingUseCase{}
	router := newPricingRouter(mockService)

	mockService.On("Suggest", mock.Anything, "item-1", "ploughing").
		Return(pricing.Quote{ItemID: "item-1", Purpose: "ploughing", Price: 1518}, nil)

	w := serve(router, "GET", "/pricing/suggest?itemId=item-1&purpose=ploughing", "", farmer)

	assert.Equal(t, http.StatusOK, w.Code)
	var quote pricing.Quote
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &quote))
	assert.Equal(t, int64(1518), quote.Price)
}

func TestPricingHandler_RulesAdminOnly(t *testing.T) {
	mockService := &MockPricingUseCase{}
	router := newPricingRouter(mockService)

	w := serve(router, "GET", "/pricing-rules", "", farmer)

	assert.Equal(t, http.StatusForbidden, w.Code)
	mockService.AssertNotCalled(t, "ListRules", mock.Anything)
}

func TestPricingHandler_createRule(t *testing.T) {
	mockService := &MockPricingUseCase{}
	router := newPricingRouter(mockService)
	admin := domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}

	input := pricing.RuleInput{District: "Guntur", Category: "tractor", Multiplier: 1.2}
	mockService.On("CreateRule", mock.Anything, input).
		Return(&domain.PricingRule{ID: "r1", District: "Guntur", Category: "tractor", Multiplier: 1.2, Active: true}, nil)

	w := serve(router, "POST", "/pricing-rules", `{"district":"Guntur","category":"tractor","multiplier":1.2}`, admin)

	assert.Equal(t, http.StatusCreated, w.Code)
	mockService.AssertExpectations(t)
}

func TestPricingHandler_createRule_Invalid(t *testing.T) {
	mockService := &MockPricingUseCase{}
	router := newPricingRouter(mockService)
	admin := domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}

	input := pricing.RuleInput{District: "Guntur", Multiplier: 0.5}
	mockService.On("CreateRule", mock.Anything, input).Return(nil, domain.Validation("multiplier must be >= 1"))

	w := serve(router, "POST", "/pricing-rules", `{"district":"Guntur","multiplier":0.5}`, admin)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPricingHandler_deleteRule(t *testing.T) {
	mockService := &MockPricingUseCase{}
	router := newPricingRouter(mockService)
	admin := domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}

	mockService.On("DeleteRule", mock.Anything, "r1").Return(nil)

	w := serve(router, "DELETE", "/pricing-rules/r1", "", admin)

	assert.Equal(t, http.StatusNoContent, w.Code)
}
