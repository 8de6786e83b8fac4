package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/Memoya/simfly.me-sub000/internal/application/health"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
)

// ProviderStore reads carriers and applies the admin override
type ProviderStore interface {
	FindAll(ctx context.Context) ([]provider.Provider, error)
	SetActive(ctx context.Context, slug string, active bool) error
}

// HealthProber probes carrier balance and reachability
type HealthProber interface {
	CheckAll(ctx context.Context) []health.ProviderHealth
	CheckProvider(ctx context.Context, slug string) (*health.ProviderHealth, error)
	Last(slug string) (health.ProviderHealth, bool)
}

// ProviderHandler serves carrier state for operators
type ProviderHandler struct {
	BaseHandler
	providers ProviderStore
	health    HealthProber
}

// NewProviderHandler creates a new provider handler
func NewProviderHandler(providers ProviderStore, prober HealthProber) *ProviderHandler {
	return &ProviderHandler{providers: providers, health: prober}
}

// List returns every registered carrier with its reliability, balance and
// last health check.
func (h *ProviderHandler) List(c *gin.Context) {
	providers, err := h.providers.FindAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]ProviderResponse, len(providers))
	for i := range providers {
		var last *health.ProviderHealth
		if h.health != nil {
			if ph, ok := h.health.Last(providers[i].Slug); ok {
				last = &ph
			}
		}
		out[i] = ToProviderResponse(&providers[i], last)
	}
	h.SuccessList(c, out, len(out), 0)
}

// Balance queries the carrier live and records the balance.
func (h *ProviderHandler) Balance(c *gin.Context) {
	result, err := h.health.CheckProvider(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// CheckAll probes every registered carrier
func (h *ProviderHandler) CheckAll(c *gin.Context) {
	results := h.health.CheckAll(c.Request.Context())
	h.SuccessList(c, results, len(results), 0)
}

// Activate re-enables a carrier and resets its reliability score
func (h *ProviderHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// Deactivate takes a carrier out of pricing and routing
func (h *ProviderHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *ProviderHandler) setActive(c *gin.Context, active bool) {
	slug := c.Param("slug")
	if err := h.providers.SetActive(c.Request.Context(), slug, active); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
