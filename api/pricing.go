package api

import (
	"log/slog"
	"net/http"

	"github.com/Domenick1991/agrirent/internal/domain"
	"github.com/Domenick1991/agrirent/internal/service/pricing"
	"github.com/gin-gonic/gin"
)

type PricingHandler struct {
	service pricing.PricingUseCase
	logger  *slog.Logger
}

type ruleRequest struct {
	District   string  `json:"district" binding:"required"`
	Mandal     string  `json:"mandal"`
	Category   string  `json:"category"`
	Multiplier float64 `json:"multiplier" binding:"required"`
	Active     *bool   `json:"active"`
}

func NewPricingHandler(service pricing.PricingUseCase, logger *slog.Logger) *PricingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PricingHandler{service: service, logger: logger}
}

// Register mounts the suggestion endpoint on pricing and the admin-only
// rule CRUD on rules.
func (h *PricingHandler) Register(pricingGroup, rules *gin.RouterGroup) {
	pricingGroup.GET("/suggest", h.suggest)

	rules.Use(RequireRole(domain.RoleAdmin))
	rules.GET("", h.listRules)
	rules.POST("", h.createRule)
	rules.GET("/:id", h.getRule)
	rules.PUT("/:id", h.updateRule)
	rules.DELETE("/:id", h.deleteRule)
}

func (h *PricingHandler) suggest(c *gin.Context) {
	quote, err := h.service.Suggest(c.Request.Context(), c.Query("itemId"), c.Query("purpose"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *PricingHandler) listRules(c *gin.Context) {
	rules, err := h.service.ListRules(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

func (h *PricingHandler) getRule(c *gin.Context) {
	rule, err := h.service.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *PricingHandler) createRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rule, err := h.service.CreateRule(c.Request.Context(), req.input())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *PricingHandler) updateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rule, err := h.service.UpdateRule(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (h *PricingHandler) deleteRule(c *gin.Context) {
	if err := h.service.DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r ruleRequest) input() pricing.RuleInput {
	return pricing.RuleInput{
		District:   r.District,
		Mandal:     r.Mandal,
		Category:   r.Category,
		Multiplier: r.Multiplier,
		Active:     r.Active,
	}
}
