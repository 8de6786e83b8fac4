package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	appfulfillment "github.com/Memoya/simfly.me-sub000/internal/application/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/payment"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/dto"
	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/middleware"
)

// PaymentFulfiller fulfills a verified payment
type PaymentFulfiller interface {
	HandlePaymentConfirmed(ctx context.Context, evt fulfillment.PaymentConfirmedEvent) (*appfulfillment.FulfillmentResult, error)
}

// PaymentHandler accepts payment confirmations from trusted internal callers
type PaymentHandler struct {
	BaseHandler
	fulfiller PaymentFulfiller
	validate  *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(fulfiller PaymentFulfiller) *PaymentHandler {
	return &PaymentHandler{fulfiller: fulfiller, validate: payment.NewValidator()}
}

// PaymentConfirmed fulfills a PaymentConfirmedEvent. The session id is the
// idempotency key, so a repeated session returns the existing order with
// duplicate=true.
func (h *PaymentHandler) PaymentConfirmed(c *gin.Context) {
	var evt fulfillment.PaymentConfirmedEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Invalid payment event body")
		return
	}
	if err := h.validate.Struct(evt); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.fulfiller.HandlePaymentConfirmed(c.Request.Context(), evt)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
