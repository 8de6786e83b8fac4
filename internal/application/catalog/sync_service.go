package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	pricingapp "github.com/Memoya/simfly.me-sub000/internal/application/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/notification"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
)

// ErrSyncInProgress is returned when a sync run overlaps another one
var ErrSyncInProgress = errors.New("catalog: sync already in progress")

const (
	defaultBatchSize    = 100
	defaultFetchTimeout = 2 * time.Minute
)

// Outcome is the per-provider result of a sync run
type Outcome string

const (
	OutcomeSynced          Outcome = "SYNCED"
	OutcomeSkippedInactive Outcome = "SKIPPED_INACTIVE"
	OutcomeFailed          Outcome = "FAILED"
)

// ProviderSyncResult reports what one provider contributed to a run.
type ProviderSyncResult struct {
	Slug             string        `json:"slug"`
	Outcome          Outcome       `json:"outcome"`
	ProductCount     int           `json:"productCount"`
	InvalidProducts  int           `json:"invalidProducts"`
	WriteErrors      int           `json:"writeErrors"`
	StaleMarked      int64         `json:"staleMarked"`
	ReliabilityScore float64       `json:"reliabilityScore"`
	Deactivated      bool          `json:"deactivated"`
	SnapshotKey      string        `json:"snapshotKey,omitempty"`
	Error            string        `json:"error,omitempty"`
	Duration         time.Duration `json:"duration"`
}

// SyncReport is the structured result of SyncService.Run
type SyncReport struct {
	StartedAt    time.Time                   `json:"startedAt"`
	FinishedAt   time.Time                   `json:"finishedAt"`
	Providers    []ProviderSyncResult        `json:"providers"`
	Pricing      *pricingapp.RecomputeResult `json:"pricing,omitempty"`
	PricingError string                      `json:"pricingError,omitempty"`
}

// Failed returns the slugs whose fetch failed
func (r *SyncReport) Failed() []string {
	var out []string
	for _, p := range r.Providers {
		if p.Outcome == OutcomeFailed {
			out = append(out, p.Slug)
		}
	}
	return out
}

// Recomputer rebuilds the best-offer table after a sync
type Recomputer interface {
	Recompute(ctx context.Context) (*pricingapp.RecomputeResult, error)
}

// PriorityLookup supplies the configured priority used when a provider is
// seen for the first time
type PriorityLookup interface {
	Priority(slug string) int
}

// Metrics receives sync measurements
type Metrics interface {
	RecordProviderSync(ctx context.Context, slug, outcome string, products int, d time.Duration)
	RecordReliability(ctx context.Context, slug string, score float64)
	RecordDeactivation(ctx context.Context, slug string)
}

type nopMetrics struct{}

func (nopMetrics) RecordProviderSync(context.Context, string, string, int, time.Duration) {}
func (nopMetrics) RecordReliability(context.Context, string, float64)                     {}
func (nopMetrics) RecordDeactivation(context.Context, string)                             {}

// SyncServiceConfig contains the collaborators of SyncService
type SyncServiceConfig struct {
	Registry     provider.Registry
	Providers    provider.ProviderRepository
	Products     provider.ProductRepository
	Pricing      Recomputer
	Archiver     provider.CatalogArchiver
	Alerter      notification.Alerter
	Metrics      Metrics
	Policy       provider.HealthPolicy
	BatchSize    int
	FetchTimeout time.Duration
	Logger       *zap.Logger
	Now          func() time.Time
}

// SyncService pulls every registered carrier's catalog into
// provider_products and tracks carrier reliability.
type SyncService struct {
	registry     provider.Registry
	providers    provider.ProviderRepository
	products     provider.ProductRepository
	pricing      Recomputer
	archiver     provider.CatalogArchiver
	alerter      notification.Alerter
	metrics      Metrics
	policy       provider.HealthPolicy
	batchSize    int
	fetchTimeout time.Duration
	logger       *zap.Logger
	now          func() time.Time

	running sync.Mutex
}

// NewSyncService creates a new SyncService
func NewSyncService(cfg SyncServiceConfig) *SyncService {
	s := &SyncService{
		registry:     cfg.Registry,
		providers:    cfg.Providers,
		products:     cfg.Products,
		pricing:      cfg.Pricing,
		archiver:     cfg.Archiver,
		alerter:      cfg.Alerter,
		metrics:      cfg.Metrics,
		policy:       cfg.Policy,
		batchSize:    cfg.BatchSize,
		fetchTimeout: cfg.FetchTimeout,
		logger:       cfg.Logger,
		now:          cfg.Now,
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.policy == (provider.HealthPolicy{}) {
		s.policy = provider.DefaultHealthPolicy()
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = defaultFetchTimeout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("catalog_sync")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Run syncs every registered provider in slug order, one at a time, then
// recomputes best offers. A failing provider never stops the others.
func (s *SyncService) Run(ctx context.Context) (*SyncReport, error) {
	if !s.running.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.running.Unlock()

	report := &SyncReport{StartedAt: s.now()}
	s.logger.Info("catalog sync started", zap.Int("providers", len(s.registry.ListAll())))

	for _, adapter := range s.registry.ListAll() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Providers = append(report.Providers, s.syncProvider(ctx, adapter))
	}

	var runErr error
	if s.pricing != nil {
		res, err := s.pricing.Recompute(ctx)
		if err != nil {
			report.PricingError = err.Error()
			runErr = fmt.Errorf("recompute after sync: %w", err)
			s.logger.Error("best-offer recompute failed", zap.Error(err))
		}
		report.Pricing = res
	}

	report.FinishedAt = s.now()
	s.logger.Info("catalog sync finished",
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
		zap.Strings("failed", report.Failed()),
	)
	return report, runErr
}

func (s *SyncService) seed(adapter provider.Adapter) *provider.Provider {
	priority := 0
	if pl, ok := s.registry.(PriorityLookup); ok {
		priority = pl.Priority(adapter.Slug())
	}
	return provider.NewProvider(adapter.Slug(), adapter.Name(), priority)
}

func (s *SyncService) syncProvider(ctx context.Context, adapter provider.Adapter) ProviderSyncResult {
	slug := adapter.Slug()
	started := s.now()
	res := ProviderSyncResult{Slug: slug}
	log := s.logger.With(zap.String("provider", slug))
	defer func() {
		res.Duration = s.now().Sub(started)
		s.metrics.RecordProviderSync(ctx, slug, string(res.Outcome), res.ProductCount, res.Duration)
	}()

	rec, err := s.providers.EnsureAndTouch(ctx, s.seed(adapter), started)
	if err != nil {
		log.Error("failed to load provider record", zap.Error(err))
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		return res
	}
	res.ReliabilityScore = rec.ReliabilityScore
	if !rec.IsActive {
		log.Info("provider inactive, skipping")
		res.Outcome = OutcomeSkippedInactive
		return res
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	products, err := adapter.FetchCatalog(fetchCtx)
	cancel()
	if err != nil {
		s.handleFetchFailure(ctx, rec, err, &res)
		return res
	}

	valid := make([]provider.NormalizedProduct, 0, len(products))
	for _, p := range products {
		if verr := p.Validate(); verr != nil {
			res.InvalidProducts++
			log.Debug("skipping invalid product", zap.Error(verr))
			continue
		}
		valid = append(valid, p)
	}
	res.ProductCount = len(valid)
	res.WriteErrors = s.persist(ctx, slug, valid, started)

	if res.WriteErrors == 0 {
		stale, err := s.products.MarkStale(ctx, slug, started)
		if err != nil {
			log.Warn("failed to mark stale products", zap.Error(err))
		}
		res.StaleMarked = stale
	} else {
		log.Warn("product writes failed, stale marking skipped", zap.Int("write_errors", res.WriteErrors))
	}
	if err := s.providers.RecordSyncSuccess(ctx, slug); err != nil {
		log.Warn("failed to clear last sync error", zap.Error(err))
	}

	if s.archiver != nil {
		key, err := s.archiver.ArchiveCatalog(ctx, slug, started, products)
		if err != nil {
			log.Warn("failed to archive catalog snapshot", zap.Error(err))
		}
		res.SnapshotKey = key
	}

	res.Outcome = OutcomeSynced
	log.Info("provider synced",
		zap.Int("products", res.ProductCount),
		zap.Int("invalid", res.InvalidProducts),
		zap.Int64("stale", res.StaleMarked),
	)
	return res
}

// persist upserts products in batches. Writes run concurrently within a
// batch and batches run one after another. It returns the failed count.
func (s *SyncService) persist(ctx context.Context, slug string, products []provider.NormalizedProduct, seenAt time.Time) int {
	var failed atomic.Int64
	for start := 0; start < len(products); start += s.batchSize {
		end := min(start+s.batchSize, len(products))

		var g errgroup.Group
		for _, p := range products[start:end] {
			row := provider.NewProviderProduct(slug, p, seenAt)
			g.Go(func() error {
				if err := s.products.Upsert(ctx, &row); err != nil {
					failed.Add(1)
					s.logger.Warn("product upsert failed",
						zap.String("provider", slug),
						zap.String("sku", row.ID),
						zap.Error(err),
					)
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return int(failed.Load())
}

// handleFetchFailure lowers reliability and applies the circuit breaker.
func (s *SyncService) handleFetchFailure(ctx context.Context, rec *provider.Provider, fetchErr error, res *ProviderSyncResult) {
	slug := rec.Slug
	log := s.logger.With(zap.String("provider", slug))
	res.Outcome = OutcomeFailed
	res.Error = fetchErr.Error()
	log.Warn("catalog fetch failed", zap.Error(fetchErr))

	updated, err := s.providers.RecordSyncFailure(ctx, slug, s.policy.FailureStep, fetchErr.Error())
	if err != nil {
		log.Error("failed to record sync failure", zap.Error(err))
		return
	}
	score := updated.ReliabilityScore
	res.ReliabilityScore = score
	s.metrics.RecordReliability(ctx, slug, score)

	if s.policy.BelowWarning(score) {
		s.alert(ctx, notification.SeverityWarning,
			fmt.Sprintf("Provider %s reliability %.2f", slug, score),
			fmt.Sprintf("Catalog sync for %s failed and its reliability dropped to %.2f "+
				"(warning threshold %.2f, %d failures recorded).\n\nLast error: %s",
				slug, score, s.policy.WarningThreshold, updated.FailedOrders, fetchErr.Error()))
	}

	// deactivation escalates with a second, critical alert
	if !s.policy.BelowCritical(score) || !updated.IsActive {
		return
	}
	deactivated, err := s.providers.DeactivateIfBelow(ctx, slug, s.policy.DeactivationBound())
	if err != nil {
		log.Error("failed to deactivate provider", zap.Error(err))
		return
	}
	if !deactivated {
		return
	}
	res.Deactivated = true
	s.metrics.RecordDeactivation(ctx, slug)
	log.Error("provider deactivated", zap.Float64("reliability", score))
	s.alert(ctx, notification.SeverityCritical,
		fmt.Sprintf("Provider %s deactivated", slug),
		fmt.Sprintf("Reliability of %s dropped to %.2f, below the critical threshold %.2f. "+
			"The provider was deactivated and is excluded from pricing and fulfillment.\n\nLast error: %s",
			slug, score, s.policy.CriticalThreshold, fetchErr.Error()))
}

func (s *SyncService) alert(ctx context.Context, severity, subject, message string) {
	if s.alerter == nil {
		return
	}
	s.alerter.SendAdminAlert(ctx, fmt.Sprintf("[%s] %s", severity, subject), message)
}
