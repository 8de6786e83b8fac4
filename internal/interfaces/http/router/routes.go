package router

import (
	"github.com/gin-gonic/gin"

	"github.com/Memoya/simfly.me-sub000/internal/interfaces/http/handler"
)

// Handlers holds every HTTP handler of the engine API
type Handlers struct {
	System    *handler.SystemHandler
	Auth      *handler.AuthHandler
	Offers    *handler.OfferHandler
	Catalog   *handler.CatalogHandler
	Pricing   *handler.PricingHandler
	Providers *handler.ProviderHandler
	Orders    *handler.OrderHandler
	Jobs      *handler.JobHandler
	Payments  *handler.PaymentHandler
	Webhooks  *handler.StripeWebhookHandler
}

// RegisterEngineRoutes mounts the probes and the Stripe webhook on the
// engine root and the versioned API below /api/v1. adminAuth guards every
// admin and internal route.
func RegisterEngineRoutes(engine *gin.Engine, h Handlers, adminAuth gin.HandlerFunc) *Router {
	engine.GET("/health", h.System.Health)
	engine.GET("/ready", h.System.Ready)

	// Stripe authenticates with its signature header
	engine.POST("/webhooks/stripe", h.Webhooks.HandleStripeWebhook)

	r := NewRouter(engine, WithAPIVersion("v1"))

	offerRoutes := NewDomainGroup("/offers")
	offerRoutes.GET("", h.Offers.ListOffers)

	authRoutes := NewDomainGroup("/auth")
	authRoutes.POST("/login", h.Auth.Login)
	authRoutes.POST("/logout", adminAuth, h.Auth.Logout)

	adminRoutes := NewDomainGroup("/admin").Use(adminAuth)
	adminRoutes.GET("/system/info", h.System.Info)

	adminRoutes.Group("/catalog").
		POST("/sync", h.Catalog.Sync)

	adminRoutes.Group("/pricing").
		POST("/recompute", h.Pricing.Recompute).
		GET("/offers", h.Pricing.ListOffers).
		GET("/settings", h.Pricing.GetSettings).
		PUT("/settings", h.Pricing.UpdateSettings)

	adminRoutes.Group("/providers").
		GET("", h.Providers.List).
		GET("/health", h.Providers.CheckAll).
		GET("/:slug/balance", h.Providers.Balance).
		POST("/:slug/activate", h.Providers.Activate).
		POST("/:slug/deactivate", h.Providers.Deactivate)

	adminRoutes.Group("/orders").
		GET("", h.Orders.List).
		GET("/:id", h.Orders.Get).
		POST("/:id/retry", h.Orders.Retry)

	adminRoutes.Group("/jobs").
		GET("", h.Jobs.Recent).
		GET("/:id", h.Jobs.Get)

	internalRoutes := NewDomainGroup("/internal").Use(adminAuth)
	internalRoutes.POST("/payments/confirmed", h.Payments.PaymentConfirmed)

	r.Register(offerRoutes).
		Register(authRoutes).
		Register(adminRoutes).
		Register(internalRoutes)
	r.Setup()
	return r
}
