package carrier

import (
	"fmt"
	"sort"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/config"
)

// Registration binds an adapter to its routing priority
type Registration struct {
	Adapter  provider.Adapter
	Priority int
}

// StaticRegistry is an immutable slug-to-adapter lookup built at startup.
type StaticRegistry struct {
	adapters   map[string]Registration
	sortedKeys []string
}

var _ provider.Registry = (*StaticRegistry)(nil)

// NewStaticRegistry indexes regs by slug, rejecting duplicates
func NewStaticRegistry(regs ...Registration) (*StaticRegistry, error) {
	r := &StaticRegistry{adapters: make(map[string]Registration, len(regs))}
	for _, reg := range regs {
		if reg.Adapter == nil {
			return nil, provider.ErrProviderNotConfigured
		}
		slug := reg.Adapter.Slug()
		if _, dup := r.adapters[slug]; dup {
			return nil, fmt.Errorf("carrier: duplicate adapter %q", slug)
		}
		r.adapters[slug] = reg
		r.sortedKeys = append(r.sortedKeys, slug)
	}
	sort.Strings(r.sortedKeys)
	return r, nil
}

// NewRegistryFromConfig builds the adapters enabled in configuration
func NewRegistryFromConfig(cfg config.ProvidersConfig) (*StaticRegistry, error) {
	var regs []Registration

	if cfg.EsimGo.Enabled {
		a, err := NewEsimGoAdapter(&EsimGoConfig{
			APIKey:    cfg.EsimGo.APIKey,
			BaseURL:   cfg.EsimGo.BaseURL,
			Timeout:   cfg.EsimGo.Timeout,
			RateLimit: cfg.EsimGo.RateLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("carrier: esimgo: %w", err)
		}
		regs = append(regs, Registration{Adapter: a, Priority: cfg.EsimGo.Priority})
	}

	if cfg.EsimAccess.Enabled {
		a, err := NewEsimAccessAdapter(&EsimAccessConfig{
			AccessCode: cfg.EsimAccess.AccessCode,
			SecretKey:  cfg.EsimAccess.SecretKey,
			BaseURL:    cfg.EsimAccess.BaseURL,
			Timeout:    cfg.EsimAccess.Timeout,
			RateLimit:  cfg.EsimAccess.RateLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("carrier: esimaccess: %w", err)
		}
		regs = append(regs, Registration{Adapter: a, Priority: cfg.EsimAccess.Priority})
	}

	return NewStaticRegistry(regs...)
}

// Get returns the adapter for slug
func (r *StaticRegistry) Get(slug string) (provider.Adapter, error) {
	reg, ok := r.adapters[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrProviderNotFound, slug)
	}
	return reg.Adapter, nil
}

// ListAll returns every adapter ordered by slug
func (r *StaticRegistry) ListAll() []provider.Adapter {
	out := make([]provider.Adapter, 0, len(r.sortedKeys))
	for _, slug := range r.sortedKeys {
		out = append(out, r.adapters[slug].Adapter)
	}
	return out
}

// Priority returns the configured routing priority for slug, 0 if unknown
func (r *StaticRegistry) Priority(slug string) int {
	return r.adapters[slug].Priority
}
