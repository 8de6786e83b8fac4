// Package scheduler runs engine jobs (catalog sync, balance checks, order
// retries) on a bounded worker pool and triggers the periodic ones.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// JobKind identifies the engine operation a job runs
type JobKind string

const (
	JobKindCatalogSync JobKind = "CATALOG_SYNC"
	JobKindHealthCheck JobKind = "HEALTH_CHECK"
	JobKindOrderRetry  JobKind = "ORDER_RETRY"
)

// Job represents one scheduled engine operation
type Job struct {
	ID          uuid.UUID  `json:"id"`
	Kind        JobKind    `json:"kind"`
	OrderID     *uuid.UUID `json:"orderId,omitempty"`
	Trigger     string     `json:"trigger"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	RetryCount  int        `json:"retryCount"`
	MaxRetries  int        `json:"maxRetries"`
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`
}

// NewJob creates a new job instance
func NewJob(kind JobKind, trigger string, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       kind,
		Trigger:    trigger,
		Status:     JobStatusPending,
		CreatedAt:  time.Now(),
		MaxRetries: maxRetries,
	}
}

// NewOrderRetryJob creates a job re-running failover for the failed units of orderID
func NewOrderRetryJob(orderID uuid.UUID, trigger string, maxRetries int) *Job {
	job := NewJob(JobKindOrderRetry, trigger, maxRetries)
	job.OrderID = &orderID
	return job
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// JobExecutor runs one job. It receives a copy and must not retain it.
type JobExecutor interface {
	Execute(ctx context.Context, job Job) error
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	MaxConcurrentJobs int
	QueueSize         int
	JobTimeout        time.Duration
	RetryDelay        time.Duration
	// HistorySize bounds the finished jobs kept for status lookups
	HistorySize int
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrentJobs: 2,
		QueueSize:         32,
		JobTimeout:        15 * time.Minute,
		RetryDelay:        time.Minute,
		HistorySize:       100,
	}
}

// Scheduler manages engine jobs on a fixed worker pool
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	history map[uuid.UUID]*Job
	order   []uuid.UUID
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) (*Scheduler, error) {
	if config.MaxConcurrentJobs < 1 || config.QueueSize < 1 || config.JobTimeout <= 0 {
		return nil, ErrInvalidConfig
	}
	if config.HistorySize < 1 {
		config.HistorySize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger.Named("scheduler"),
		jobs:     make(chan *Job, config.QueueSize),
		history:  make(map[uuid.UUID]*Job, config.HistorySize),
	}, nil
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Job scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)

	return nil
}

// Stop gracefully stops the scheduler. Queued jobs that have not started
// are abandoned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Job scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Job scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// SubmitJob queues job for execution and records it for status lookups
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
	default:
		return ErrJobQueueFull
	}
	s.remember(job)

	s.logger.Debug("Job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.String("trigger", job.Trigger),
	)
	return nil
}

// Get returns a snapshot of a submitted job
func (s *Scheduler) Get(id uuid.UUID) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.history[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

// Recent returns snapshots of the most recently submitted jobs, newest first
func (s *Scheduler) Recent(limit int) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, min(limit, len(s.order)))
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.history[s.order[i]])
	}
	return out
}

// remember must be called with s.mu held
func (s *Scheduler) remember(job *Job) {
	if _, ok := s.history[job.ID]; ok {
		return
	}
	s.history[job.ID] = job
	s.order = append(s.order, job.ID)
	for len(s.order) > s.config.HistorySize {
		oldest := s.history[s.order[0]]
		if oldest.Status == JobStatusPending || oldest.Status == JobStatusRunning {
			break
		}
		delete(s.history, s.order[0])
		s.order = s.order[1:]
	}
}

// update mutates job under the scheduler lock and returns a snapshot
func (s *Scheduler) update(job *Job, fn func(*Job)) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(job)
	return *job
}

func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case job := <-s.jobs:
			s.processJob(ctx, job, workerID)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	snapshot := s.update(job, (*Job).Start)
	log := s.logger.With(
		zap.Int("worker_id", workerID),
		zap.String("job_id", snapshot.ID.String()),
		zap.String("kind", string(snapshot.Kind)),
	)
	log.Info("Processing job")

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	err := s.executor.Execute(jobCtx, snapshot)
	if err == nil {
		s.update(job, (*Job).Complete)
		log.Info("Job completed successfully")
		return
	}

	retry := false
	failed := s.update(job, func(j *Job) {
		j.Fail(err.Error())
		if j.ShouldRetry() {
			j.ScheduleRetry(s.config.RetryDelay)
			retry = true
		}
	})
	log.Error("Job failed", zap.Error(err))
	if !retry {
		return
	}

	log.Info("Job scheduled for retry",
		zap.Int("retry_count", failed.RetryCount),
		zap.Duration("delay", s.config.RetryDelay),
	)
	go s.requeue(ctx, job, s.config.RetryDelay)
}

// requeue puts job back on the queue after delay unless the scheduler stops
func (s *Scheduler) requeue(ctx context.Context, job *Job, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	select {
	case s.jobs <- job:
	case <-ctx.Done():
	}
}
