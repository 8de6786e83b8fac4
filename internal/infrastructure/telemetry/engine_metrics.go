package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when EngineMetrics is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// ProviderStats supplies the periodically collected catalog gauges.
type ProviderStats interface {
	CountActiveProviders(ctx context.Context) (int64, error)
	CatalogRowsByProvider(ctx context.Context) (map[string]int64, error)
	CountBestOffers(ctx context.Context) (int64, error)
}

// EngineMetrics records sync, health and fulfillment metrics. It satisfies
// the Metrics ports of the catalog, health and fulfillment services.
type EngineMetrics struct {
	logger *zap.Logger

	syncRuns       *Counter
	syncDuration   *Histogram
	syncProducts   *Gauge
	reliability    *FloatGauge
	deactivations  *Counter
	balance        *FloatGauge
	healthy        *Gauge
	attempts       *Counter
	attemptLatency *Histogram
	items          *Counter
	orders         *Counter

	activeProviders *Gauge
	catalogRows     *Gauge
	bestOffers      *Gauge

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewEngineMetrics registers every engine instrument on meter.
func NewEngineMetrics(meter metric.Meter, logger *zap.Logger) (*EngineMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &EngineMetrics{logger: logger.Named("metrics"), stopChan: make(chan struct{})}

	var err error
	counter := func(name, desc, unit string) *Counter {
		if err != nil {
			return nil
		}
		var c *Counter
		c, err = NewCounter(meter, name, desc, unit)
		return c
	}
	gauge := func(name, desc, unit string) *Gauge {
		if err != nil {
			return nil
		}
		var g *Gauge
		g, err = NewGauge(meter, name, desc, unit)
		return g
	}
	floatGauge := func(name, desc, unit string) *FloatGauge {
		if err != nil {
			return nil
		}
		var g *FloatGauge
		g, err = NewFloatGauge(meter, name, desc, unit)
		return g
	}
	histogram := func(opts HistogramOpts) *Histogram {
		if err != nil {
			return nil
		}
		var h *Histogram
		h, err = NewHistogram(meter, opts)
		return h
	}

	m.syncRuns = counter("catalog.sync.runs", "Provider catalog syncs by outcome", "{sync}")
	m.syncDuration = histogram(HistogramOpts{
		Name:        "catalog.sync.duration",
		Description: "Duration of one provider catalog sync",
		Unit:        "s",
		Boundaries:  SyncDurationBuckets,
	})
	m.syncProducts = gauge("catalog.sync.products", "Products written by the last provider sync", "{product}")
	m.reliability = floatGauge("provider.reliability", "Provider reliability score", "1")
	m.deactivations = counter("provider.deactivations", "Automatic provider deactivations", "{event}")
	m.balance = floatGauge("provider.balance", "Prepaid wholesale balance", "{currency}")
	m.healthy = gauge("provider.healthy", "1 when the provider answered its last health check", "1")
	m.attempts = counter("fulfillment.attempts", "Carrier order attempts", "{attempt}")
	m.attemptLatency = histogram(HistogramOpts{
		Name:        "fulfillment.attempt.duration",
		Description: "Duration of one carrier order attempt",
		Unit:        "s",
		Boundaries:  CarrierDurationBuckets,
	})
	m.items = counter("fulfillment.items", "Fulfilled or failed order units", "{unit}")
	m.orders = counter("fulfillment.orders", "Processed orders by final sync status", "{order}")
	m.activeProviders = gauge("provider.active", "Active providers", "{provider}")
	m.catalogRows = gauge("catalog.rows", "Fresh catalog rows per provider", "{product}")
	m.bestOffers = gauge("pricing.best_offers", "Published best offers", "{offer}")
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *EngineMetrics) RecordProviderSync(ctx context.Context, slug, outcome string, products int, d time.Duration) {
	m.syncRuns.Inc(ctx, AttrProvider.String(slug), AttrOutcome.String(outcome))
	m.syncDuration.RecordDuration(ctx, d, AttrProvider.String(slug), AttrOutcome.String(outcome))
	m.syncProducts.Record(ctx, int64(products), AttrProvider.String(slug))
}

func (m *EngineMetrics) RecordReliability(ctx context.Context, slug string, score float64) {
	m.reliability.Record(ctx, score, AttrProvider.String(slug))
}

func (m *EngineMetrics) RecordDeactivation(ctx context.Context, slug string) {
	m.deactivations.Inc(ctx, AttrProvider.String(slug))
}

func (m *EngineMetrics) RecordBalance(ctx context.Context, slug string, balance float64) {
	m.balance.Record(ctx, balance, AttrProvider.String(slug))
}

func (m *EngineMetrics) RecordHealth(ctx context.Context, slug string, healthy bool) {
	var v int64
	if healthy {
		v = 1
	}
	m.healthy.Record(ctx, v, AttrProvider.String(slug))
}

func (m *EngineMetrics) RecordAttempt(ctx context.Context, slug string, success bool, d time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	m.attempts.Inc(ctx, AttrProvider.String(slug), AttrResult.String(result))
	m.attemptLatency.RecordDuration(ctx, d, AttrProvider.String(slug), AttrResult.String(result))
}

func (m *EngineMetrics) RecordItem(ctx context.Context, status string) {
	m.items.Inc(ctx, AttrStatus.String(status))
}

func (m *EngineMetrics) RecordOrder(ctx context.Context, status string) {
	m.orders.Inc(ctx, AttrStatus.String(status))
}

// StartPeriodicCollection samples stats every interval until ctx is done or
// Stop is called.
func (m *EngineMetrics) StartPeriodicCollection(ctx context.Context, stats ProviderStats, interval time.Duration) {
	if stats == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		m.Collect(ctx, stats)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case <-ticker.C:
				m.Collect(ctx, stats)
			}
		}
	}()
}

// Collect samples the catalog gauges once.
func (m *EngineMetrics) Collect(ctx context.Context, stats ProviderStats) {
	if n, err := stats.CountActiveProviders(ctx); err != nil {
		m.logger.Warn("Failed to count active providers", zap.Error(err))
	} else {
		m.activeProviders.Record(ctx, n)
	}

	if rows, err := stats.CatalogRowsByProvider(ctx); err != nil {
		m.logger.Warn("Failed to count catalog rows", zap.Error(err))
	} else {
		for slug, n := range rows {
			m.catalogRows.Record(ctx, n, AttrProvider.String(slug))
		}
	}

	if n, err := stats.CountBestOffers(ctx); err != nil {
		m.logger.Warn("Failed to count best offers", zap.Error(err))
	} else {
		m.bestOffers.Record(ctx, n)
	}
}

// Stop ends periodic collection.
func (m *EngineMetrics) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}
