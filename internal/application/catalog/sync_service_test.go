package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pricingapp "github.com/Memoya/simfly.me-sub000/internal/application/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/carrier"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/persistence"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/persistence/persistencetest"
)

var syncNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Test Doubles
// ---------------------------------------------------------------------------

type fakeAdapter struct {
	slug     string
	mu       sync.Mutex
	products []provider.NormalizedProduct
	err      error
	calls    int
}

func (a *fakeAdapter) Slug() string { return a.slug }
func (a *fakeAdapter) Name() string { return "Fake " + a.slug }

func (a *fakeAdapter) FetchCatalog(context.Context) ([]provider.NormalizedProduct, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.products, a.err
}

func (a *fakeAdapter) Order(context.Context, string) (*provider.OrderResult, error) {
	return nil, errors.New("not used")
}

func (a *fakeAdapter) GetBalance(context.Context) (decimal.Decimal, string, error) {
	return decimal.NewFromInt(100), "USD", nil
}

func (a *fakeAdapter) CheckHealth(context.Context) bool { return true }

type alerts struct {
	mu       sync.Mutex
	subjects []string
}

func (a *alerts) SendAdminAlert(_ context.Context, subject, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subjects = append(a.subjects, subject)
}

func (a *alerts) got() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.subjects...)
}

type fakeRecomputer struct {
	calls int
	err   error
}

func (r *fakeRecomputer) Recompute(context.Context) (*pricingapp.RecomputeResult, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &pricingapp.RecomputeResult{Offers: 1}, nil
}

type fakeArchiver struct {
	slugs  []string
	counts []int
}

func (a *fakeArchiver) ArchiveCatalog(_ context.Context, slug string, _ time.Time, products []provider.NormalizedProduct) (string, error) {
	a.slugs = append(a.slugs, slug)
	a.counts = append(a.counts, len(products))
	return "catalog/" + slug + "/snapshot.json.gz", nil
}

type recordingMetrics struct {
	mu            sync.Mutex
	outcomes      map[string]string
	deactivations []string
}

func (m *recordingMetrics) RecordProviderSync(_ context.Context, slug, outcome string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = map[string]string{}
	}
	m.outcomes[slug] = outcome
}

func (m *recordingMetrics) RecordReliability(context.Context, string, float64) {}

func (m *recordingMetrics) RecordDeactivation(_ context.Context, slug string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivations = append(m.deactivations, slug)
}

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func fakeCatalog(seed uint64, n int) []provider.NormalizedProduct {
	f := gofakeit.New(seed)
	out := make([]provider.NormalizedProduct, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, provider.NormalizedProduct{
			ID:           fmt.Sprintf("sku-%d-%s", i, f.UUID()),
			Name:         f.ProductName(),
			Price:        decimal.NewFromFloat(f.Float64Range(1, 60)).Round(2),
			Currency:     "USD",
			CountryCode:  f.CountryAbr(),
			DataAmountMB: f.IntRange(1, 20) * 512,
			ValidityDays: f.IntRange(1, 30),
		})
	}
	return out
}

type syncFixture struct {
	providers *persistence.GormProviderRepository
	products  *persistence.GormProductRepository
	alerts    *alerts
	pricing   *fakeRecomputer
	archiver  *fakeArchiver
	metrics   *recordingMetrics
	svc       *SyncService
}

func newSyncFixture(t *testing.T, adapters ...*fakeAdapter) *syncFixture {
	t.Helper()
	db := persistencetest.NewSQLite(t)

	regs := make([]carrier.Registration, 0, len(adapters))
	for i, a := range adapters {
		regs = append(regs, carrier.Registration{Adapter: a, Priority: 10 - i})
	}
	registry, err := carrier.NewStaticRegistry(regs...)
	require.NoError(t, err)

	f := &syncFixture{
		providers: persistence.NewGormProviderRepository(db),
		products:  persistence.NewGormProductRepository(db),
		alerts:    &alerts{},
		pricing:   &fakeRecomputer{},
		archiver:  &fakeArchiver{},
		metrics:   &recordingMetrics{},
	}
	f.svc = NewSyncService(SyncServiceConfig{
		Registry:  registry,
		Providers: f.providers,
		Products:  f.products,
		Pricing:   f.pricing,
		Archiver:  f.archiver,
		Alerter:   f.alerts,
		Metrics:   f.metrics,
		BatchSize: 100,
		Now:       func() time.Time { return syncNow },
	})
	return f
}

func (f *syncFixture) failTimes(t *testing.T, slug string, n int) {
	t.Helper()
	ctx := context.Background()
	_, err := f.providers.EnsureAndTouch(ctx, provider.NewProvider(slug, slug, 1), syncNow)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := f.providers.RecordSyncFailure(ctx, slug, 0.1, "earlier failure")
		require.NoError(t, err)
	}
}

// ---------------------------------------------------------------------------
// Run Tests
// ---------------------------------------------------------------------------

func TestSyncService_Run_PersistsInBatches(t *testing.T) {
	a := &fakeAdapter{slug: "alpha", products: fakeCatalog(1, 250)}
	b := &fakeAdapter{slug: "beta", products: fakeCatalog(2, 3)}
	f := newSyncFixture(t, a, b)
	ctx := context.Background()

	report, err := f.svc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Providers, 2)

	assert.Equal(t, "alpha", report.Providers[0].Slug)
	assert.Equal(t, OutcomeSynced, report.Providers[0].Outcome)
	assert.Equal(t, 250, report.Providers[0].ProductCount)
	assert.Zero(t, report.Providers[0].WriteErrors)
	assert.Equal(t, "catalog/alpha/snapshot.json.gz", report.Providers[0].SnapshotKey)
	assert.Equal(t, OutcomeSynced, report.Providers[1].Outcome)
	assert.Empty(t, report.Failed())

	n, err := f.products.CountByProvider(ctx, "alpha", false)
	require.NoError(t, err)
	assert.Equal(t, int64(250), n)

	rec, err := f.providers.FindBySlug(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Priority)
	assert.Equal(t, "Fake alpha", rec.Name)

	assert.Equal(t, 1, f.pricing.calls)
	require.NotNil(t, report.Pricing)
	assert.Equal(t, []string{"alpha", "beta"}, f.archiver.slugs)
	assert.Equal(t, []int{250, 3}, f.archiver.counts)
	assert.Equal(t, "SYNCED", f.metrics.outcomes["beta"])
	assert.Empty(t, f.alerts.got())
}

func TestSyncService_Run_IsolatesFailures(t *testing.T) {
	a := &fakeAdapter{slug: "alpha", err: provider.ErrProviderUnavailable}
	b := &fakeAdapter{slug: "beta", products: fakeCatalog(3, 5)}
	f := newSyncFixture(t, a, b)
	ctx := context.Background()

	report, err := f.svc.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, report.Providers[0].Outcome)
	assert.InDelta(t, 0.9, report.Providers[0].ReliabilityScore, 1e-9)
	assert.Contains(t, report.Providers[0].Error, "unavailable")
	assert.Equal(t, OutcomeSynced, report.Providers[1].Outcome)
	assert.Equal(t, []string{"alpha"}, report.Failed())

	rec, err := f.providers.FindBySlug(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.FailedOrders)
	assert.True(t, rec.IsActive)
	assert.NotEmpty(t, rec.LastError)

	// no alert above the warning threshold, pricing still recomputed
	assert.Empty(t, f.alerts.got())
	assert.Equal(t, 1, f.pricing.calls)
}

func TestSyncService_Run_WarningAlert(t *testing.T) {
	a := &fakeAdapter{slug: "alpha", err: errors.New("502 bad gateway")}
	f := newSyncFixture(t, a)
	f.failTimes(t, "alpha", 3)

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.6, report.Providers[0].ReliabilityScore, 1e-9)
	assert.False(t, report.Providers[0].Deactivated)
	assert.Equal(t, []string{"[WARNING] Provider alpha reliability 0.60"}, f.alerts.got())
}

func TestSyncService_Run_DeactivatesBelowCritical(t *testing.T) {
	a := &fakeAdapter{slug: "alpha", err: errors.New("timeout")}
	f := newSyncFixture(t, a)
	f.failTimes(t, "alpha", 5)
	ctx := context.Background()

	report, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Providers[0].Deactivated)
	assert.InDelta(t, 0.4, report.Providers[0].ReliabilityScore, 1e-9)
	assert.Equal(t, []string{
		"[WARNING] Provider alpha reliability 0.40",
		"[CRITICAL] Provider alpha deactivated",
	}, f.alerts.got())
	assert.Equal(t, []string{"alpha"}, f.metrics.deactivations)

	rec, err := f.providers.FindBySlug(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, rec.IsActive)

	// the next run skips the inactive provider without calling it
	report, err = f.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkippedInactive, report.Providers[0].Outcome)
	assert.Equal(t, 1, a.calls)
	assert.Len(t, f.alerts.got(), 2)
}

func TestSyncService_Run_MarksStale(t *testing.T) {
	catalog := fakeCatalog(4, 3)
	a := &fakeAdapter{slug: "alpha", products: catalog}
	f := newSyncFixture(t, a)
	ctx := context.Background()

	_, err := f.svc.Run(ctx)
	require.NoError(t, err)

	later := syncNow.Add(time.Hour)
	f.svc.now = func() time.Time { return later }
	a.products = catalog[:1]

	report, err := f.svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Providers[0].StaleMarked)

	fresh, err := f.products.CountByProvider(ctx, "alpha", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fresh)
	all, err := f.products.CountByProvider(ctx, "alpha", true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), all)
}

func TestSyncService_Run_SkipsInvalidProducts(t *testing.T) {
	products := fakeCatalog(5, 2)
	products = append(products,
		provider.NormalizedProduct{ID: "", Price: decimal.NewFromInt(1), CountryCode: "DE"},
		provider.NormalizedProduct{ID: "neg", Price: decimal.NewFromInt(-1), CountryCode: "DE"},
	)
	f := newSyncFixture(t, &fakeAdapter{slug: "alpha", products: products})

	report, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Providers[0].ProductCount)
	assert.Equal(t, 2, report.Providers[0].InvalidProducts)
}

func TestSyncService_Run_RecomputeError(t *testing.T) {
	f := newSyncFixture(t, &fakeAdapter{slug: "alpha", products: fakeCatalog(6, 1)})
	f.pricing.err = errors.New("db down")

	report, err := f.svc.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "db down", report.PricingError)
	assert.Equal(t, OutcomeSynced, report.Providers[0].Outcome)
}

func TestSyncService_Run_RejectsOverlap(t *testing.T) {
	f := newSyncFixture(t, &fakeAdapter{slug: "alpha"})
	f.svc.running.Lock()
	defer f.svc.running.Unlock()

	_, err := f.svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)
}
