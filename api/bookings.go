package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/Domenick1991/agrirent/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

const dateLayout = "2006-01-02"

type BookingHandler struct {
	service booking.BookingUseCase
	logger  *slog.Logger
}

type createBookingRequest struct {
	FarmerID                 string              `json:"farmer_id"`
	ItemCategory             string              `json:"item_category" binding:"required"`
	ItemID                   string              `json:"item_id"`
	Purpose                  string              `json:"purpose"`
	Date                     string              `json:"date" binding:"required"`
	StartTime                string              `json:"start_time" binding:"required"`
	EstimatedDurationMinutes int                 `json:"estimated_duration_minutes" binding:"required"`
	Location                 string              `json:"location"`
	LocationCoords           *domain.Coordinates `json:"location_coords"`
}

type requestSupplierRequest struct {
	SupplierID string `json:"supplier_id" binding:"required"`
	ItemID     string `json:"item_id"`
}

type acceptRequest struct {
	SupplierID    string `json:"supplier_id"`
	ItemID        string `json:"item_id"`
	FinalPrice    *int64 `json:"final_price"`
	OperatorID    string `json:"operator_id"`
	NeedsOperator bool   `json:"needs_operator"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type assignOperatorRequest struct {
	OperatorID string `json:"operator_id" binding:"required"`
}

type startWorkRequest struct {
	OTPCode string `json:"otp_code" binding:"required"`
}

type completeRequest struct {
	FinalPrice   *int64 `json:"final_price"`
	PaymentProof string `json:"payment_proof"`
}

type paymentRequest struct {
	Proof string `json:"proof" binding:"required"`
}

// bookingResponse never carries the start-of-work code.
type bookingResponse struct {
	ID                       string                 `json:"id"`
	FarmerID                 string                 `json:"farmer_id"`
	SupplierID               string                 `json:"supplier_id,omitempty"`
	OperatorID               string                 `json:"operator_id,omitempty"`
	ItemID                   string                 `json:"item_id,omitempty"`
	ItemCategory             string                 `json:"item_category"`
	Purpose                  string                 `json:"purpose,omitempty"`
	Status                   string                 `json:"status"`
	Date                     string                 `json:"date"`
	StartTime                string                 `json:"start_time"`
	EstimatedDurationMinutes int                    `json:"estimated_duration_minutes"`
	Location                 string                 `json:"location,omitempty"`
	LocationCoords           *domain.Coordinates    `json:"location_coords,omitempty"`
	FinalPrice               *int64                 `json:"final_price,omitempty"`
	OTPExpiresAt             string                 `json:"otp_expires_at,omitempty"`
	OTPReissues              int                    `json:"otp_reissues"`
	NeedsAdmin               bool                   `json:"needs_admin"`
	Payment                  *domain.PaymentDetails `json:"payment,omitempty"`
	PaymentProof             string                 `json:"payment_proof,omitempty"`
	CancelReason             string                 `json:"cancel_reason,omitempty"`
	ExpiresAt                string                 `json:"expires_at,omitempty"`
	Version                  int64                  `json:"version"`
	CreatedAt                string                 `json:"created_at"`
	UpdatedAt                string                 `json:"updated_at"`
}

type otpResponse struct {
	Code      string `json:"code"`
	ExpiresAt string `json:"expires_at"`
}

func NewBookingHandler(service booking.BookingUseCase, logger *slog.Logger) *BookingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingHandler{service: service, logger: logger}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:id", h.get)
	router.POST("/:id/request", h.requestSupplier)
	router.POST("/:id/accept", h.accept)
	router.POST("/:id/reject", h.reject)
	router.POST("/:id/assign-operator", h.assignOperator)
	router.POST("/:id/arrive", h.arrive)
	router.POST("/:id/start", h.start)
	router.POST("/:id/otp/reissue", h.reissueOTP)
	router.GET("/:id/otp", h.revealOTP)
	router.GET("/:id/otp/qr", h.otpQR)
	router.POST("/:id/complete", h.complete)
	router.POST("/:id/payment", h.recordPayment)
	router.POST("/:id/cancel", h.cancel)
	router.POST("/:id/expire", h.expire)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD", Code: "validation"})
		return
	}

	b, err := h.service.Create(c.Request.Context(), actorFrom(c), booking.CreateBookingInput{
		FarmerID:          req.FarmerID,
		ItemCategory:      req.ItemCategory,
		ItemID:            req.ItemID,
		Purpose:           req.Purpose,
		Date:              date,
		StartTime:         req.StartTime,
		EstimatedDuration: time.Duration(req.EstimatedDurationMinutes) * time.Minute,
		Location:          req.Location,
		LocationCoords:    req.LocationCoords,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) get(c *gin.Context) {
	b, err := h.service.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	h.respond(c, b, err)
}

func (h *BookingHandler) requestSupplier(c *gin.Context) {
	var req requestSupplierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.service.RequestSupplier(c.Request.Context(), actorFrom(c), c.Param("id"), booking.RequestSupplierInput{
		SupplierID: req.SupplierID,
		ItemID:     req.ItemID,
	})
	h.respond(c, b, err)
}

func (h *BookingHandler) accept(c *gin.Context) {
	var req acceptRequest
	if !bindOptional(c, &req) {
		return
	}
	b, err := h.service.Accept(c.Request.Context(), actorFrom(c), c.Param("id"), booking.AcceptInput{
		SupplierID:    req.SupplierID,
		ItemID:        req.ItemID,
		FinalPrice:    req.FinalPrice,
		OperatorID:    req.OperatorID,
		NeedsOperator: req.NeedsOperator,
	})
	h.respond(c, b, err)
}

func (h *BookingHandler) reject(c *gin.Context) {
	var req reasonRequest
	if !bindOptional(c, &req) {
		return
	}
	b, err := h.service.Reject(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	h.respond(c, b, err)
}

func (h *BookingHandler) assignOperator(c *gin.Context) {
	var req assignOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.service.AssignOperator(c.Request.Context(), actorFrom(c), c.Param("id"), req.OperatorID)
	h.respond(c, b, err)
}

func (h *BookingHandler) arrive(c *gin.Context) {
	b, err := h.service.MarkArrived(c.Request.Context(), actorFrom(c), c.Param("id"))
	h.respond(c, b, err)
}

func (h *BookingHandler) start(c *gin.Context) {
	var req startWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.service.StartWork(c.Request.Context(), actorFrom(c), c.Param("id"), req.OTPCode)
	h.respond(c, b, err)
}

func (h *BookingHandler) reissueOTP(c *gin.Context) {
	b, err := h.service.ReissueOTP(c.Request.Context(), actorFrom(c), c.Param("id"))
	h.respond(c, b, err)
}

func (h *BookingHandler) revealOTP(c *gin.Context) {
	code, err := h.service.RevealOTP(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, otpResponse{Code: code.Code, ExpiresAt: code.ExpiresAt.UTC().Format(time.RFC3339)})
}

// otpQR renders the code as a PNG the operator can scan off the farmer's phone.
func (h *BookingHandler) otpQR(c *gin.Context) {
	code, err := h.service.RevealOTP(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	png, err := qrcode.Encode(code.Code, qrcode.Medium, 256)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *BookingHandler) complete(c *gin.Context) {
	var req completeRequest
	if !bindOptional(c, &req) {
		return
	}
	b, err := h.service.Complete(c.Request.Context(), actorFrom(c), c.Param("id"), booking.CompleteInput{
		FinalPrice:   req.FinalPrice,
		PaymentProof: req.PaymentProof,
	})
	h.respond(c, b, err)
}

func (h *BookingHandler) recordPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, err := h.service.RecordPayment(c.Request.Context(), actorFrom(c), c.Param("id"), req.Proof)
	h.respond(c, b, err)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	var req reasonRequest
	if !bindOptional(c, &req) {
		return
	}
	b, err := h.service.Cancel(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason)
	h.respond(c, b, err)
}

func (h *BookingHandler) expire(c *gin.Context) {
	b, err := h.service.Expire(c.Request.Context(), actorFrom(c), c.Param("id"))
	h.respond(c, b, err)
}

func (h *BookingHandler) respond(c *gin.Context, b *domain.Booking, err error) {
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

// bindOptional binds a JSON body when one was sent.
func bindOptional(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	resp := bookingResponse{
		ID:                       b.ID,
		FarmerID:                 b.FarmerID,
		SupplierID:               b.SupplierID,
		OperatorID:               b.OperatorID,
		ItemID:                   b.ItemID,
		ItemCategory:             b.ItemCategory,
		Purpose:                  b.Purpose,
		Status:                   string(b.Status),
		Date:                     b.Date.Format(dateLayout),
		StartTime:                b.StartTime,
		EstimatedDurationMinutes: int(b.EstimatedDuration / time.Minute),
		Location:                 b.Location,
		LocationCoords:           b.LocationCoords,
		FinalPrice:               b.FinalPrice,
		OTPReissues:              b.OTPReissues,
		NeedsAdmin:               b.NeedsAdmin,
		Payment:                  b.PaymentDetails,
		PaymentProof:             b.PaymentProof,
		CancelReason:             b.CancelReason,
		Version:                  b.Version,
		CreatedAt:                b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:                b.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if b.OTP != nil {
		resp.OTPExpiresAt = b.OTP.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if !b.ExpiresAt.IsZero() {
		resp.ExpiresAt = b.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return resp
}
