package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobSubmitter accepts jobs for execution
type JobSubmitter interface {
	SubmitJob(job *Job) error
}

// IntervalTriggerConfig holds configuration for an interval trigger
type IntervalTriggerConfig struct {
	Kind       JobKind
	Interval   time.Duration
	RunOnStart bool
	MaxRetries int
}

// IntervalTrigger submits a job of one kind every Interval
type IntervalTrigger struct {
	config    IntervalTriggerConfig
	submitter JobSubmitter
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	lastFired time.Time
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(config IntervalTriggerConfig, submitter JobSubmitter, logger *zap.Logger) (*IntervalTrigger, error) {
	if config.Interval <= 0 || config.Kind == "" {
		return nil, ErrInvalidConfig
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntervalTrigger{
		config:    config,
		submitter: submitter,
		logger:    logger.Named("trigger").With(zap.String("kind", string(config.Kind))),
	}, nil
}

// Start starts the trigger
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Interval trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Bool("run_on_start", t.config.RunOnStart),
	)
	return nil
}

// Stop stops the trigger
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastFired returns when the trigger last submitted a job
func (t *IntervalTrigger) LastFired() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFired
}

func (t *IntervalTrigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	if t.config.RunOnStart {
		t.fire()
	}

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.fire()
		}
	}
}

// fire submits one job. A full queue skips the tick rather than piling up runs.
func (t *IntervalTrigger) fire() {
	job := NewJob(t.config.Kind, "interval", t.config.MaxRetries)
	err := t.submitter.SubmitJob(job)
	switch {
	case err == nil:
		t.mu.Lock()
		t.lastFired = time.Now()
		t.mu.Unlock()
	case errors.Is(err, ErrJobQueueFull):
		t.logger.Warn("Job queue full, skipping tick")
	default:
		t.logger.Error("Failed to submit scheduled job", zap.Error(err))
	}
}
