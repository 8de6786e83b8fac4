package payment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/config"
)

const testWebhookSecret = "whsec_test_secret"

func newTestTranslator(t *testing.T) *StripeWebhookTranslator {
	t.Helper()
	tr, err := NewStripeWebhookTranslator(config.StripeConfig{WebhookSecret: testWebhookSecret})
	require.NoError(t, err)
	return tr
}

func checkoutSession(overrides map[string]any) map[string]any {
	session := map[string]any{
		"id":             "cs_test_123",
		"object":         "checkout.session",
		"payment_status": "paid",
		"amount_total":   2450,
		"currency":       "eur",
		"customer_details": map[string]any{
			"email": "traveler@example.com",
		},
		"metadata": map[string]string{
			"items": `[{"bundleId":"DE-1024MB-7D","quantity":2,"providerHint":"esimgo"}]`,
		},
	}
	for k, v := range overrides {
		session[k] = v
	}
	return session
}

func signedEvent(t *testing.T, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_123",
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testWebhookSecret})
	return payload, signed.Header
}

func TestNewStripeWebhookTranslator_RequiresSecret(t *testing.T) {
	_, err := NewStripeWebhookTranslator(config.StripeConfig{})
	assert.ErrorIs(t, err, ErrWebhookNotConfigured)
}

func TestStripeWebhookTranslator_PaidCheckout(t *testing.T) {
	payload, sig := signedEvent(t, EventCheckoutCompleted, checkoutSession(nil))

	evt, err := newTestTranslator(t).Translate(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, "evt_123", evt.EventID)
	require.NotNil(t, evt.Payment)

	p := evt.Payment
	assert.Equal(t, "cs_test_123", p.SessionID)
	assert.Equal(t, "traveler@example.com", p.CustomerEmail)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, "24.5", p.Amount.String())
	require.Len(t, p.Items, 1)
	assert.Equal(t, "DE-1024MB-7D", p.Items[0].BundleID)
	assert.Equal(t, 2, p.Items[0].Quantity)
	assert.Equal(t, "esimgo", p.Items[0].ProviderHint)
}

func TestStripeWebhookTranslator_Signature(t *testing.T) {
	payload, _ := signedEvent(t, EventCheckoutCompleted, checkoutSession(nil))

	_, err := newTestTranslator(t).Translate(payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_other"})
	_, err = newTestTranslator(t).Translate(payload, signed.Header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeWebhookTranslator_IgnoredEvents(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		session   map[string]any
	}{
		{"other event type", "invoice.paid", checkoutSession(nil)},
		{"unpaid async checkout", EventCheckoutCompleted, checkoutSession(map[string]any{"payment_status": "unpaid"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, sig := signedEvent(t, tt.eventType, tt.session)
			evt, err := newTestTranslator(t).Translate(payload, sig)
			require.NoError(t, err)
			assert.Nil(t, evt.Payment)
			assert.NotEmpty(t, evt.Ignored)
		})
	}
}

func TestStripeWebhookTranslator_InvalidPayloads(t *testing.T) {
	tests := []struct {
		name    string
		session map[string]any
	}{
		{"missing items", checkoutSession(map[string]any{"metadata": map[string]string{}})},
		{"malformed items", checkoutSession(map[string]any{"metadata": map[string]string{"items": "[{"}})},
		{"zero quantity", checkoutSession(map[string]any{"metadata": map[string]string{"items": `[{"bundleId":"X","quantity":0}]`}})},
		{"missing email", checkoutSession(map[string]any{"customer_details": map[string]any{}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, sig := signedEvent(t, EventCheckoutAsyncPaymentDone, tt.session)
			_, err := newTestTranslator(t).Translate(payload, sig)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestMinorUnitsToDecimal(t *testing.T) {
	assert.Equal(t, "24.5", MinorUnitsToDecimal(2450, "eur").String())
	assert.Equal(t, "2450", MinorUnitsToDecimal(2450, "JPY").String())
}
