package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
}

// statusFor maps the domain error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrOTPMismatch):
		return http.StatusConflict, "otp_mismatch"
	case errors.Is(err, domain.ErrOTPExpired):
		return http.StatusConflict, "otp_expired"
	case errors.Is(err, domain.ErrAdminInterventionRequired):
		return http.StatusConflict, "admin_intervention_required"
	case errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrMissingPrice):
		return http.StatusUnprocessableEntity, "missing_price"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := statusFor(err)
	resp := errorResponse{Error: err.Error(), Code: code}
	if remaining, ok := domain.RemainingAttempts(err); ok {
		resp.RemainingAttempts = &remaining
	}
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("request_id", GetRequestID(c)),
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
		resp.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation"})
}
