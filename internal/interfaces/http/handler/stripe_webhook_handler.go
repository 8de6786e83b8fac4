package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appfulfillment "github.com/Memoya/simfly.me-sub000/internal/application/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/logger"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/payment"
)

// Maximum webhook payload size (64KB - Stripe webhooks are typically small)
const maxWebhookPayloadSize = 65536

// WebhookProcessor verifies and fulfills a Stripe delivery
type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, payload []byte, signature string) (*appfulfillment.WebhookResult, error)
}

// StripeWebhookHandler handles Stripe webhook deliveries.
// These endpoints are called by Stripe and are authenticated by signature.
type StripeWebhookHandler struct {
	BaseHandler
	webhooks WebhookProcessor
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler
func NewStripeWebhookHandler(webhooks WebhookProcessor) *StripeWebhookHandler {
	return &StripeWebhookHandler{webhooks: webhooks}
}

// StripeWebhookResponse represents the response for Stripe webhook
type StripeWebhookResponse struct {
	Received  bool                              `json:"received"`
	EventID   string                            `json:"eventId,omitempty"`
	EventType string                            `json:"eventType,omitempty"`
	Duplicate bool                              `json:"duplicate,omitempty"`
	Message   string                            `json:"message,omitempty"`
	Result    *appfulfillment.FulfillmentResult `json:"result,omitempty"`
}

// HandleStripeWebhook verifies the signature and fulfills checkout.session.completed
// events. A repeated event id is acknowledged with duplicate=true.
func (h *StripeWebhookHandler) HandleStripeWebhook(c *gin.Context) {
	// Stripe requires the raw body for signature verification
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, StripeWebhookResponse{Message: "Failed to read request body"})
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		c.JSON(http.StatusRequestEntityTooLarge, StripeWebhookResponse{Message: "Payload too large"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusBadRequest, StripeWebhookResponse{Message: "Missing Stripe-Signature header"})
		return
	}

	result, err := h.webhooks.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		h.handleWebhookError(c, result, err)
		return
	}

	c.JSON(http.StatusOK, StripeWebhookResponse{
		Received:  true,
		EventID:   result.EventID,
		EventType: result.EventType,
		Duplicate: result.Duplicate,
		Message:   result.Message,
		Result:    result.Fulfillment,
	})
}

func (h *StripeWebhookHandler) handleWebhookError(c *gin.Context, result *appfulfillment.WebhookResult, err error) {
	switch {
	case errors.Is(err, payment.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, StripeWebhookResponse{Message: "Webhook signature verification failed"})
		return
	case errors.Is(err, payment.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, StripeWebhookResponse{Message: "Invalid webhook payload"})
		return
	}

	// the event id was released, a non-2xx makes Stripe redeliver
	logger.L(c.Request.Context()).Error("Stripe webhook fulfillment failed", zap.Error(err))
	resp := StripeWebhookResponse{Message: "Fulfillment failed, retry later"}
	if result != nil {
		resp.EventID = result.EventID
		resp.EventType = result.EventType
	}
	c.JSON(http.StatusInternalServerError, resp)
}
