package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Memoya/simfly.me-sub000/internal/application/catalog"
	"github.com/Memoya/simfly.me-sub000/internal/application/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/application/health"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/telemetry"
)

// CatalogSyncer runs a full catalog sync
type CatalogSyncer interface {
	Run(ctx context.Context) (*catalog.SyncReport, error)
}

// HealthChecker probes every registered carrier
type HealthChecker interface {
	CheckAll(ctx context.Context) []health.ProviderHealth
}

// OrderRetrier re-runs failover for failed units
type OrderRetrier interface {
	RetryFailedItems(ctx context.Context, orderID uuid.UUID) (*fulfillment.FulfillmentResult, error)
}

// EngineExecutor dispatches jobs to the engine services
type EngineExecutor struct {
	syncer  CatalogSyncer
	checker HealthChecker
	retrier OrderRetrier
	logger  *zap.Logger
}

// NewEngineExecutor creates a new EngineExecutor. Any service may be nil,
// in which case jobs of its kind fail with ErrUnknownJobKind.
func NewEngineExecutor(syncer CatalogSyncer, checker HealthChecker, retrier OrderRetrier, logger *zap.Logger) *EngineExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngineExecutor{
		syncer:  syncer,
		checker: checker,
		retrier: retrier,
		logger:  logger.Named("executor"),
	}
}

// Execute runs job inside a span, with its kind attached as a profiling label
func (e *EngineExecutor) Execute(ctx context.Context, job Job) error {
	ctx, span := telemetry.StartSpan(ctx, "scheduler.job",
		telemetry.WithAttribute(telemetry.SpanAttrJobKind, string(job.Kind)))
	defer span.End()

	var err error
	telemetry.WithProfilingLabels(ctx, map[string]string{telemetry.ProfilingLabelJob: string(job.Kind)}, func(ctx context.Context) {
		err = e.dispatch(ctx, job)
	})
	telemetry.RecordError(span, err)
	return err
}

func (e *EngineExecutor) dispatch(ctx context.Context, job Job) error {
	switch {
	case job.Kind == JobKindCatalogSync && e.syncer != nil:
		return e.syncCatalog(ctx, job)
	case job.Kind == JobKindHealthCheck && e.checker != nil:
		return e.checkHealth(ctx)
	case job.Kind == JobKindOrderRetry && e.retrier != nil:
		return e.retryOrder(ctx, job)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
	}
}

func (e *EngineExecutor) syncCatalog(ctx context.Context, job Job) error {
	report, err := e.syncer.Run(ctx)
	if errors.Is(err, catalog.ErrSyncInProgress) {
		e.logger.Info("Catalog sync already running, job skipped", zap.String("job_id", job.ID.String()))
		return nil
	}
	if report != nil {
		e.logger.Info("Catalog sync finished",
			zap.String("job_id", job.ID.String()),
			zap.Int("providers", len(report.Providers)),
			zap.Strings("failed_providers", report.Failed()),
			zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)),
		)
	}
	return err
}

func (e *EngineExecutor) checkHealth(ctx context.Context) error {
	results := e.checker.CheckAll(ctx)
	unhealthy := 0
	for _, r := range results {
		if !r.Healthy {
			unhealthy++
		}
	}
	e.logger.Debug("Balance check finished",
		zap.Int("providers", len(results)),
		zap.Int("unhealthy", unhealthy),
	)
	return nil
}

func (e *EngineExecutor) retryOrder(ctx context.Context, job Job) error {
	if job.OrderID == nil {
		return fmt.Errorf("%w: order retry without order id", ErrInvalidConfig)
	}
	res, err := e.retrier.RetryFailedItems(ctx, *job.OrderID)
	if err != nil {
		return err
	}
	e.logger.Info("Order retry finished",
		zap.String("order_id", job.OrderID.String()),
		zap.String("status", string(res.Status)),
		zap.Int("failed", res.Failed),
	)
	return nil
}
