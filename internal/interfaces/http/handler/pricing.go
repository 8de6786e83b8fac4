package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	apppricing "github.com/Memoya/simfly.me-sub000/internal/application/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/dto"
)

// PricingService is the admin surface of the pricing engine
type PricingService interface {
	Recompute(ctx context.Context) (*apppricing.RecomputeResult, error)
	ListAllOffers(ctx context.Context) ([]pricing.BestOffer, error)
	GetSettings(ctx context.Context) (*pricing.Settings, error)
	UpdateSettings(ctx context.Context, settings pricing.Settings) (*pricing.Settings, error)
}

// PricingHandler handles best-offer recomputation and margin settings
type PricingHandler struct {
	BaseHandler
	pricing PricingService
}

// NewPricingHandler creates a new pricing handler
func NewPricingHandler(svc PricingService) *PricingHandler {
	return &PricingHandler{pricing: svc}
}

func (h *PricingHandler) Recompute(c *gin.Context) {
	result, err := h.pricing.Recompute(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListOffers returns the full best-offer table including cost and provider
func (h *PricingHandler) ListOffers(c *gin.Context) {
	offers, err := h.pricing.ListAllOffers(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, ToBestOfferResponses(offers), len(offers), 0)
}

// GetSettings returns the effective margin settings
func (h *PricingHandler) GetSettings(c *gin.Context) {
	settings, err := h.pricing.GetSettings(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, settings)
}

// UpdateSettings stores new margins. Prices change on the next recompute.
func (h *PricingHandler) UpdateSettings(c *gin.Context) {
	var req pricing.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidJSON, "Invalid settings body")
		return
	}

	settings, err := h.pricing.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, settings)
}
