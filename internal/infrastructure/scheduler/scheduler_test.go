package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Memoya/simfly.me-sub000/internal/application/catalog"
	"github.com/Memoya/simfly.me-sub000/internal/application/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/application/health"
	domain "github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type funcExecutor func(ctx context.Context, job Job) error

func (f funcExecutor) Execute(ctx context.Context, job Job) error { return f(ctx, job) }

func testConfig() SchedulerConfig {
	cfg := DefaultSchedulerConfig()
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.JobTimeout = time.Second
	return cfg
}

func startScheduler(t *testing.T, cfg SchedulerConfig, exec JobExecutor) *Scheduler {
	t.Helper()
	s, err := NewScheduler(cfg, exec, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func waitForStatus(t *testing.T, s *Scheduler, id uuid.UUID, status JobStatus) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var err error
		job, err = s.Get(id)
		return err == nil && job.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

// ---------------------------------------------------------------------------
// Job Tests
// ---------------------------------------------------------------------------

func TestJob_Lifecycle(t *testing.T) {
	job := NewJob(JobKindCatalogSync, "admin", 1)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.NotEqual(t, uuid.Nil, job.ID)

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)

	job.Fail("carrier down")
	assert.True(t, job.ShouldRetry())

	job.ScheduleRetry(time.Minute)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Empty(t, job.Error)

	job.Start()
	job.Fail("still down")
	assert.False(t, job.ShouldRetry())

	orderID := uuid.New()
	retry := NewOrderRetryJob(orderID, "admin", 0)
	assert.Equal(t, JobKindOrderRetry, retry.Kind)
	assert.Equal(t, orderID, *retry.OrderID)
}

// ---------------------------------------------------------------------------
// Scheduler Tests
// ---------------------------------------------------------------------------

func TestNewScheduler_InvalidConfig(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestScheduler_RunsJobs(t *testing.T) {
	var ran atomic.Int32
	s := startScheduler(t, testConfig(), funcExecutor(func(ctx context.Context, job Job) error {
		ran.Add(1)
		return nil
	}))

	job := NewJob(JobKindHealthCheck, "test", 0)
	require.NoError(t, s.SubmitJob(job))

	done := waitForStatus(t, s, job.ID, JobStatusSuccess)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, int32(1), ran.Load())

	recent := s.Recent(10)
	require.Len(t, recent, 1)
	assert.Equal(t, job.ID, recent[0].ID)
}

func TestScheduler_RetriesFailedJobs(t *testing.T) {
	var calls atomic.Int32
	s := startScheduler(t, testConfig(), funcExecutor(func(ctx context.Context, job Job) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}))

	job := NewJob(JobKindCatalogSync, "test", 2)
	require.NoError(t, s.SubmitJob(job))

	done := waitForStatus(t, s, job.ID, JobStatusSuccess)
	assert.Equal(t, 2, done.RetryCount)
	assert.Equal(t, int32(3), calls.Load())
}

func TestScheduler_GivesUpAfterMaxRetries(t *testing.T) {
	s := startScheduler(t, testConfig(), funcExecutor(func(ctx context.Context, job Job) error {
		return errors.New("permanent")
	}))

	job := NewJob(JobKindCatalogSync, "test", 1)
	require.NoError(t, s.SubmitJob(job))

	require.Eventually(t, func() bool {
		got, err := s.Get(job.ID)
		return err == nil && got.Status == JobStatusFailed && got.RetryCount == 1
	}, 2*time.Second, 5*time.Millisecond)

	got, err := s.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "permanent", got.Error)
}

func TestScheduler_AppliesJobTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.JobTimeout = 20 * time.Millisecond
	s := startScheduler(t, cfg, funcExecutor(func(ctx context.Context, job Job) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	job := NewJob(JobKindCatalogSync, "test", 0)
	require.NoError(t, s.SubmitJob(job))

	got := waitForStatus(t, s, job.ID, JobStatusFailed)
	assert.Contains(t, got.Error, "deadline exceeded")
}

func TestScheduler_QueueFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentJobs = 1
	cfg.QueueSize = 1
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	s := startScheduler(t, cfg, funcExecutor(func(ctx context.Context, job Job) error {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))
	defer close(release)

	require.NoError(t, s.SubmitJob(NewJob(JobKindCatalogSync, "test", 0)))
	<-started
	require.NoError(t, s.SubmitJob(NewJob(JobKindCatalogSync, "test", 0)))
	assert.ErrorIs(t, s.SubmitJob(NewJob(JobKindCatalogSync, "test", 0)), ErrJobQueueFull)
}

func TestScheduler_NotRunning(t *testing.T) {
	s, err := NewScheduler(testConfig(), funcExecutor(func(context.Context, Job) error { return nil }), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, s.SubmitJob(NewJob(JobKindHealthCheck, "test", 0)), ErrSchedulerNotRunning)
	_, err = s.Get(uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestScheduler_HistoryIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.HistorySize = 2
	s := startScheduler(t, cfg, funcExecutor(func(context.Context, Job) error { return nil }))

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		job := NewJob(JobKindHealthCheck, "test", 0)
		require.NoError(t, s.SubmitJob(job))
		waitForStatus(t, s, job.ID, JobStatusSuccess)
		ids = append(ids, job.ID)
	}

	_, err := s.Get(ids[0])
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Len(t, s.Recent(10), 2)
}

// ---------------------------------------------------------------------------
// IntervalTrigger Tests
// ---------------------------------------------------------------------------

type recordingSubmitter struct {
	mu   sync.Mutex
	jobs []*Job
	err  error
}

func (r *recordingSubmitter) SubmitJob(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func TestIntervalTrigger_FiresOnStartAndEveryInterval(t *testing.T) {
	sub := &recordingSubmitter{}
	trig, err := NewIntervalTrigger(IntervalTriggerConfig{
		Kind:       JobKindCatalogSync,
		Interval:   15 * time.Millisecond,
		RunOnStart: true,
	}, sub, newTestLogger())
	require.NoError(t, err)

	require.NoError(t, trig.Start(context.Background()))
	require.Eventually(t, func() bool { return sub.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, trig.Stop(context.Background()))

	assert.False(t, trig.LastFired().IsZero())
	sub.mu.Lock()
	assert.Equal(t, JobKindCatalogSync, sub.jobs[0].Kind)
	assert.Equal(t, "interval", sub.jobs[0].Trigger)
	sub.mu.Unlock()
}

func TestIntervalTrigger_SkipsWhenQueueFull(t *testing.T) {
	sub := &recordingSubmitter{err: ErrJobQueueFull}
	trig, err := NewIntervalTrigger(IntervalTriggerConfig{Kind: JobKindHealthCheck, Interval: time.Hour}, sub, nil)
	require.NoError(t, err)

	trig.fire()
	assert.True(t, trig.LastFired().IsZero())
}

func TestNewIntervalTrigger_InvalidConfig(t *testing.T) {
	_, err := NewIntervalTrigger(IntervalTriggerConfig{Kind: JobKindHealthCheck}, &recordingSubmitter{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// ---------------------------------------------------------------------------
// EngineExecutor Tests
// ---------------------------------------------------------------------------

type fakeSyncer struct {
	err error
}

func (f fakeSyncer) Run(context.Context) (*catalog.SyncReport, error) {
	now := time.Now()
	return &catalog.SyncReport{StartedAt: now, FinishedAt: now}, f.err
}

type fakeChecker struct{ calls atomic.Int32 }

func (f *fakeChecker) CheckAll(context.Context) []health.ProviderHealth {
	f.calls.Add(1)
	return []health.ProviderHealth{{Slug: "esimgo", Healthy: false}}
}

type fakeRetrier struct {
	got uuid.UUID
	err error
}

func (f *fakeRetrier) RetryFailedItems(_ context.Context, id uuid.UUID) (*fulfillment.FulfillmentResult, error) {
	f.got = id
	if f.err != nil {
		return nil, f.err
	}
	return &fulfillment.FulfillmentResult{OrderID: id, Status: domain.SyncStatusCompleted}, nil
}

func TestEngineExecutor(t *testing.T) {
	checker := &fakeChecker{}
	retrier := &fakeRetrier{}
	exec := NewEngineExecutor(fakeSyncer{}, checker, retrier, nil)
	ctx := context.Background()

	assert.NoError(t, exec.Execute(ctx, *NewJob(JobKindCatalogSync, "test", 0)))
	assert.NoError(t, exec.Execute(ctx, *NewJob(JobKindHealthCheck, "test", 0)))
	assert.Equal(t, int32(1), checker.calls.Load())

	orderID := uuid.New()
	assert.NoError(t, exec.Execute(ctx, *NewOrderRetryJob(orderID, "test", 0)))
	assert.Equal(t, orderID, retrier.got)

	assert.ErrorIs(t, exec.Execute(ctx, Job{Kind: JobKindOrderRetry}), ErrInvalidConfig)
	assert.ErrorIs(t, exec.Execute(ctx, Job{Kind: "NOPE"}), ErrUnknownJobKind)
}

func TestEngineExecutor_SyncOverlapIsNotAFailure(t *testing.T) {
	exec := NewEngineExecutor(fakeSyncer{err: catalog.ErrSyncInProgress}, nil, nil, nil)
	assert.NoError(t, exec.Execute(context.Background(), *NewJob(JobKindCatalogSync, "test", 0)))

	exec = NewEngineExecutor(fakeSyncer{err: errors.New("recompute failed")}, nil, nil, nil)
	assert.Error(t, exec.Execute(context.Background(), *NewJob(JobKindCatalogSync, "test", 0)))

	exec = NewEngineExecutor(nil, nil, &fakeRetrier{err: domain.ErrNothingToRetry}, nil)
	assert.ErrorIs(t, exec.Execute(context.Background(), *NewOrderRetryJob(uuid.New(), "test", 0)), domain.ErrNothingToRetry)
}
