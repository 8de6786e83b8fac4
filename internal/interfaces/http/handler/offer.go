package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/middleware"
)

// OfferReader serves the storefront projection of the best-offer table
type OfferReader interface {
	ListOffersByCountry(ctx context.Context, country string) ([]pricing.PublicOffer, error)
}

// OfferHandler serves public offers. Responses never carry cost or
// provider identity.
type OfferHandler struct {
	BaseHandler
	offers OfferReader
}

// NewOfferHandler creates a new offer handler
func NewOfferHandler(offers OfferReader) *OfferHandler {
	return &OfferHandler{offers: offers}
}

// ListOffers lists the priced offers for a country.
func (h *OfferHandler) ListOffers(c *gin.Context) {
	var q OfferQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	offers, err := h.offers.ListOffersByCountry(c.Request.Context(), q.Country)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessList(c, offers, len(offers), 0)
}
