// Package health watches carrier liveness and wholesale balances.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Memoya/simfly.me-sub000/internal/domain/notification"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
)

const defaultCheckTimeout = 20 * time.Second

// ProviderHealth is the outcome of checking one carrier
type ProviderHealth struct {
	Slug       string          `json:"slug"`
	Healthy    bool            `json:"healthy"`
	Balance    decimal.Decimal `json:"balance"`
	Currency   string          `json:"currency"`
	LowBalance bool            `json:"lowBalance"`
	Error      string          `json:"error,omitempty"`
	CheckedAt  time.Time       `json:"checkedAt"`
}

// Metrics receives health measurements
type Metrics interface {
	RecordBalance(ctx context.Context, slug string, balance float64)
	RecordHealth(ctx context.Context, slug string, healthy bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordBalance(context.Context, string, float64) {}
func (nopMetrics) RecordHealth(context.Context, string, bool)     {}

// MonitorConfig contains the collaborators of Monitor
type MonitorConfig struct {
	Registry            provider.Registry
	Providers           provider.ProviderRepository
	Alerter             notification.Alerter
	Metrics             Metrics
	LowBalanceThreshold decimal.Decimal
	CheckTimeout        time.Duration
	Logger              *zap.Logger
	Now                 func() time.Time
}

// Monitor probes every registered carrier, stores its balance and alerts
// when a carrier turns unhealthy or its balance drops below the threshold.
// Alerts fire on transitions only.
type Monitor struct {
	registry  provider.Registry
	providers provider.ProviderRepository
	alerter   notification.Alerter
	metrics   Metrics
	threshold decimal.Decimal
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time

	mu   sync.Mutex
	last map[string]ProviderHealth
}

// NewMonitor creates a new Monitor
func NewMonitor(cfg MonitorConfig) *Monitor {
	m := &Monitor{
		registry:  cfg.Registry,
		providers: cfg.Providers,
		alerter:   cfg.Alerter,
		metrics:   cfg.Metrics,
		threshold: cfg.LowBalanceThreshold,
		timeout:   cfg.CheckTimeout,
		logger:    cfg.Logger,
		now:       cfg.Now,
		last:      make(map[string]ProviderHealth),
	}
	if m.metrics == nil {
		m.metrics = nopMetrics{}
	}
	if m.timeout <= 0 {
		m.timeout = defaultCheckTimeout
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.Named("health")
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// CheckAll checks every registered carrier in slug order
func (m *Monitor) CheckAll(ctx context.Context) []ProviderHealth {
	adapters := m.registry.ListAll()
	out := make([]ProviderHealth, 0, len(adapters))
	for _, a := range adapters {
		out = append(out, m.check(ctx, a))
	}
	return out
}

// CheckProvider checks one carrier by slug
func (m *Monitor) CheckProvider(ctx context.Context, slug string) (*ProviderHealth, error) {
	a, err := m.registry.Get(slug)
	if err != nil {
		return nil, err
	}
	h := m.check(ctx, a)
	return &h, nil
}

// Last returns the most recent result for slug
func (m *Monitor) Last(slug string) (ProviderHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.last[slug]
	return h, ok
}

func (m *Monitor) check(ctx context.Context, a provider.Adapter) ProviderHealth {
	slug := a.Slug()
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	h := ProviderHealth{Slug: slug, CheckedAt: m.now()}
	h.Healthy = a.CheckHealth(ctx)

	balance, currency, err := a.GetBalance(ctx)
	if err != nil {
		h.Healthy = false
		h.Error = err.Error()
	} else {
		h.Balance = balance
		h.Currency = currency
		h.LowBalance = !m.threshold.IsZero() && balance.LessThan(m.threshold)
		if uerr := m.providers.UpdateBalance(ctx, slug, balance, currency, h.CheckedAt); uerr != nil {
			m.logger.Warn("failed to store balance", zap.String("provider", slug), zap.Error(uerr))
		}
		f, _ := balance.Float64()
		m.metrics.RecordBalance(ctx, slug, f)
	}
	m.metrics.RecordHealth(ctx, slug, h.Healthy)

	prev, seen := m.swap(h)
	m.notify(ctx, h, prev, seen)

	m.logger.Debug("provider checked",
		zap.String("provider", slug),
		zap.Bool("healthy", h.Healthy),
		zap.String("balance", h.Balance.String()),
	)
	return h
}

func (m *Monitor) swap(h ProviderHealth) (ProviderHealth, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.last[h.Slug]
	m.last[h.Slug] = h
	return prev, ok
}

func (m *Monitor) notify(ctx context.Context, h, prev ProviderHealth, seen bool) {
	if m.alerter == nil {
		return
	}
	wasHealthy := !seen || prev.Healthy
	if !h.Healthy && wasHealthy {
		m.alerter.SendAdminAlert(ctx,
			fmt.Sprintf("[%s] Provider %s health check failed", notification.SeverityWarning, h.Slug),
			fmt.Sprintf("Health check for %s failed at %s.\n\nError: %s",
				h.Slug, h.CheckedAt.Format(time.RFC3339), h.Error))
	}
	if h.LowBalance && !(seen && prev.LowBalance) {
		m.alerter.SendAdminAlert(ctx,
			fmt.Sprintf("[%s] Provider %s balance low", notification.SeverityWarning, h.Slug),
			fmt.Sprintf("Wholesale balance of %s is %s %s, below the threshold of %s.",
				h.Slug, h.Balance.StringFixed(2), h.Currency, m.threshold.StringFixed(2)))
	}
}
