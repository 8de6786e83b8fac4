package router

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/handler"
)

func engineWithRoutes(t *testing.T) *gin.Engine {
	t.Helper()
	engine := gin.New()
	deny := func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	}
	r := RegisterEngineRoutes(engine, Handlers{
		System:    handler.NewSystemHandler("simfly-engine", "test"),
		Auth:      handler.NewAuthHandler(nil),
		Offers:    handler.NewOfferHandler(nil),
		Catalog:   handler.NewCatalogHandler(nil, nil),
		Pricing:   handler.NewPricingHandler(nil),
		Providers: handler.NewProviderHandler(nil, nil),
		Orders:    handler.NewOrderHandler(nil, nil),
		Jobs:      handler.NewJobHandler(nil),
		Payments:  handler.NewPaymentHandler(nil),
		Webhooks:  handler.NewStripeWebhookHandler(nil),
	}, deny)
	require.NotNil(t, r)
	return engine
}

func TestRegisterEngineRoutes_Table(t *testing.T) {
	engine := engineWithRoutes(t)

	got := make(map[string]bool)
	for _, ri := range engine.Routes() {
		got[ri.Method+" "+ri.Path] = true
	}

	want := []string{
		"GET /health",
		"GET /ready",
		"POST /webhooks/stripe",
		"GET /api/v1/offers",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/logout",
		"GET /api/v1/admin/system/info",
		"POST /api/v1/admin/catalog/sync",
		"POST /api/v1/admin/pricing/recompute",
		"GET /api/v1/admin/pricing/offers",
		"GET /api/v1/admin/pricing/settings",
		"PUT /api/v1/admin/pricing/settings",
		"GET /api/v1/admin/providers",
		"GET /api/v1/admin/providers/health",
		"GET /api/v1/admin/providers/:slug/balance",
		"POST /api/v1/admin/providers/:slug/activate",
		"POST /api/v1/admin/providers/:slug/deactivate",
		"GET /api/v1/admin/orders",
		"GET /api/v1/admin/orders/:id",
		"POST /api/v1/admin/orders/:id/retry",
		"GET /api/v1/admin/jobs",
		"GET /api/v1/admin/jobs/:id",
		"POST /api/v1/internal/payments/confirmed",
	}
	for _, route := range want {
		assert.True(t, got[route], "missing route %s", route)
	}
	assert.Len(t, got, len(want))
}

func TestRegisterEngineRoutes_AdminGuard(t *testing.T) {
	engine := engineWithRoutes(t)

	guarded := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/auth/logout"},
		{http.MethodPost, "/api/v1/admin/catalog/sync"},
		{http.MethodGet, "/api/v1/admin/pricing/settings"},
		{http.MethodGet, "/api/v1/admin/providers/esimgo/balance"},
		{http.MethodPost, "/api/v1/admin/orders/3f1c2a9e-0000-4000-8000-000000000001/retry"},
		{http.MethodGet, "/api/v1/admin/jobs"},
		{http.MethodPost, "/api/v1/internal/payments/confirmed"},
	}
	for _, g := range guarded {
		assert.Equal(t, http.StatusUnauthorized, serve(engine, g.method, g.path).Code, "%s %s", g.method, g.path)
	}

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/ready").Code)
}
