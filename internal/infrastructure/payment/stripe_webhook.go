// Package payment translates verified payment provider webhooks into
// PaymentConfirmedEvents.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/config"
)

// Errors for webhook translation
var (
	ErrWebhookNotConfigured = errors.New("payment: stripe webhook secret is required")
	ErrInvalidSignature     = errors.New("payment: webhook signature verification failed")
	ErrInvalidPayload       = errors.New("payment: invalid webhook payload")
)

// MetadataItemsKey is the checkout session metadata key carrying the cart
const MetadataItemsKey = "items"

// Handled Stripe event types
const (
	EventCheckoutCompleted        = "checkout.session.completed"
	EventCheckoutAsyncPaymentDone = "checkout.session.async_payment_succeeded"
)

// zeroDecimalCurrencies are charged in whole units by Stripe
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// WebhookEvent is the outcome of translating one webhook delivery.
// Payment is nil for events that do not confirm a payment.
type WebhookEvent struct {
	EventID   string
	EventType string
	Payment   *fulfillment.PaymentConfirmedEvent
	Ignored   string
}

// StripeWebhookTranslator verifies Stripe signatures and maps paid
// checkout sessions to PaymentConfirmedEvents.
type StripeWebhookTranslator struct {
	secret           string
	ignoreAPIVersion bool
	validate         *validator.Validate
}

// NewStripeWebhookTranslator creates a translator for the configured secret
func NewStripeWebhookTranslator(cfg config.StripeConfig) (*StripeWebhookTranslator, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrWebhookNotConfigured
	}
	return &StripeWebhookTranslator{
		secret:           cfg.WebhookSecret,
		ignoreAPIVersion: cfg.IgnoreAPIVersion,
		validate:         NewValidator(),
	}, nil
}

// NewValidator returns a validator reporting JSON field names
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Translate verifies payload against the Stripe-Signature header value and
// extracts the confirmed payment, if any.
func (t *StripeWebhookTranslator) Translate(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, t.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: t.ignoreAPIVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{EventID: event.ID, EventType: string(event.Type)}
	switch out.EventType {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentDone:
	default:
		out.Ignored = "event type not handled"
		return out, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", ErrInvalidPayload, err)
	}
	if session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		session.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		out.Ignored = "payment status " + string(session.PaymentStatus)
		return out, nil
	}

	payment, err := t.paymentFromSession(&session)
	if err != nil {
		return nil, err
	}
	out.Payment = payment
	return out, nil
}

func (t *StripeWebhookTranslator) paymentFromSession(s *stripe.CheckoutSession) (*fulfillment.PaymentConfirmedEvent, error) {
	raw, ok := s.Metadata[MetadataItemsKey]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: session %s has no %q metadata", ErrInvalidPayload, s.ID, MetadataItemsKey)
	}
	var items []fulfillment.LineItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("%w: session %s items: %v", ErrInvalidPayload, s.ID, err)
	}

	email := s.CustomerEmail
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		email = s.CustomerDetails.Email
	}

	evt := &fulfillment.PaymentConfirmedEvent{
		SessionID:     s.ID,
		CustomerEmail: strings.TrimSpace(email),
		Items:         items,
		Amount:        MinorUnitsToDecimal(s.AmountTotal, string(s.Currency)),
		Currency:      strings.ToUpper(string(s.Currency)),
	}
	if err := t.validate.Struct(evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return evt, nil
}

// MinorUnitsToDecimal converts a Stripe amount into major currency units
func MinorUnitsToDecimal(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}
