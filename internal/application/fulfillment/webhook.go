package fulfillment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Memoya/simfly.me-sub000/internal/domain/shared"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/payment"
)

const defaultEventTTL = 72 * time.Hour

// WebhookTranslator verifies and decodes a payment provider delivery
type WebhookTranslator interface {
	Translate(payload []byte, signature string) (*payment.WebhookEvent, error)
}

// WebhookServiceConfig contains configuration for WebhookService
type WebhookServiceConfig struct {
	Translator  WebhookTranslator
	Idempotency shared.IdempotencyStore
	Fulfillment *Service
	EventTTL    time.Duration
	Logger      *zap.Logger
}

// WebhookService turns Stripe deliveries into fulfillment runs, processing
// each event id at most once while it is remembered.
type WebhookService struct {
	translator  WebhookTranslator
	idempotency shared.IdempotencyStore
	fulfillment *Service
	eventTTL    time.Duration
	logger      *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	s := &WebhookService{
		translator:  cfg.Translator,
		idempotency: cfg.Idempotency,
		fulfillment: cfg.Fulfillment,
		eventTTL:    cfg.EventTTL,
		logger:      cfg.Logger,
	}
	if s.eventTTL <= 0 {
		s.eventTTL = defaultEventTTL
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("stripe_webhook")
	return s
}

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID     string             `json:"eventId"`
	EventType   string             `json:"eventType"`
	Processed   bool               `json:"processed"`
	Duplicate   bool               `json:"duplicate"`
	Message     string             `json:"message,omitempty"`
	Fulfillment *FulfillmentResult `json:"fulfillment,omitempty"`
}

// ProcessWebhook verifies the delivery and fulfills a confirmed payment.
// A failed run releases the event id so the provider's retry is processed.
func (s *WebhookService) ProcessWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	evt, err := s.translator.Translate(payload, signature)
	if err != nil {
		s.logger.Warn("Rejected webhook delivery", zap.Error(err))
		return nil, err
	}

	result := &WebhookResult{EventID: evt.EventID, EventType: evt.EventType}
	if evt.Payment == nil {
		s.logger.Debug("Webhook event ignored",
			zap.String("event_id", evt.EventID),
			zap.String("event_type", evt.EventType),
			zap.String("reason", evt.Ignored))
		result.Message = evt.Ignored
		return result, nil
	}

	if s.idempotency != nil {
		claimed, err := s.idempotency.MarkProcessed(ctx, evt.EventID, s.eventTTL)
		switch {
		case err != nil:
			s.logger.Warn("Idempotency store unavailable, relying on session uniqueness",
				zap.String("event_id", evt.EventID), zap.Error(err))
		case !claimed:
			s.logger.Info("Duplicate webhook delivery", zap.String("event_id", evt.EventID))
			result.Duplicate = true
			result.Message = "event already processed"
			return result, nil
		}
	}

	s.logger.Info("Processing payment confirmation",
		zap.String("event_id", evt.EventID),
		zap.String("session_id", evt.Payment.SessionID),
		zap.Int("units", evt.Payment.UnitCount()))

	res, err := s.fulfillment.HandlePaymentConfirmed(ctx, *evt.Payment)
	if err != nil {
		if s.idempotency != nil {
			if rerr := s.idempotency.Release(context.WithoutCancel(ctx), evt.EventID); rerr != nil {
				s.logger.Warn("Failed to release webhook event", zap.String("event_id", evt.EventID), zap.Error(rerr))
			}
		}
		s.logger.Error("Failed to fulfill payment", zap.String("event_id", evt.EventID), zap.Error(err))
		return result, fmt.Errorf("fulfill session %s: %w", evt.Payment.SessionID, err)
	}

	result.Processed = true
	result.Duplicate = res.Duplicate
	result.Fulfillment = res
	return result, nil
}
