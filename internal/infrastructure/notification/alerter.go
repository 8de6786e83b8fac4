package notification

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Memoya/simfly.me-sub000/internal/domain/notification"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/logger"
)

// ---------------------------------------------------------------------------
// LogAlerter
// ---------------------------------------------------------------------------

// LogAlerter writes admin alerts to the structured log.
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates a log-backed alerter
func NewLogAlerter(log *zap.Logger) *LogAlerter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogAlerter{logger: log.Named("alert")}
}

// SendAdminAlert logs the alert at error level for critical subjects
func (a *LogAlerter) SendAdminAlert(_ context.Context, subject, message string) {
	fields := []zap.Field{zap.String("subject", subject), zap.String("message", message)}
	if strings.Contains(subject, notification.SeverityCritical) {
		a.logger.Error("admin alert", fields...)
		return
	}
	a.logger.Warn("admin alert", fields...)
}

// ---------------------------------------------------------------------------
// MailAlerter
// ---------------------------------------------------------------------------

// MailAlerter emails admin alerts to the operator address.
type MailAlerter struct {
	client *MailClient
	to     string
}

// NewMailAlerter creates an alerter mailing to
func NewMailAlerter(client *MailClient, to string) *MailAlerter {
	return &MailAlerter{client: client, to: to}
}

type alertView struct {
	Severity string
	Subject  string
	Message  string
}

// SendAdminAlert renders and sends the alert, logging failures
func (a *MailAlerter) SendAdminAlert(ctx context.Context, subject, message string) {
	severity := notification.SeverityWarning
	if strings.Contains(subject, notification.SeverityCritical) {
		severity = notification.SeverityCritical
	}
	rendered, err := a.client.engine.Render(TemplateAdminAlert, alertView{Severity: severity, Subject: subject, Message: message})
	if err != nil {
		logger.L(ctx).Error("failed to render admin alert", zap.Error(err))
		return
	}
	if res := a.client.Send(ctx, []string{a.to}, rendered); !res.Success {
		logger.L(ctx).Error("failed to email admin alert", zap.String("subject", subject), zap.String("error", res.Error))
	}
}

// ---------------------------------------------------------------------------
// MultiAlerter
// ---------------------------------------------------------------------------

// MultiAlerter fans an alert out to every wrapped alerter in order.
type MultiAlerter []notification.Alerter

// SendAdminAlert forwards to each alerter
func (m MultiAlerter) SendAdminAlert(ctx context.Context, subject, message string) {
	for _, a := range m {
		a.SendAdminAlert(ctx, subject, message)
	}
}

// ---------------------------------------------------------------------------
// AsyncAlerter
// ---------------------------------------------------------------------------

type queuedAlert struct {
	ctx     context.Context
	subject string
	message string
}

// AsyncAlerter decouples callers from alert delivery through a bounded
// queue drained by one worker. Alerts are dropped and logged when the queue
// is full or the alerter is closed.
type AsyncAlerter struct {
	next        notification.Alerter
	sendTimeout time.Duration
	logger      *zap.Logger

	mu      sync.RWMutex
	closed  bool
	queue   chan queuedAlert
	wg      sync.WaitGroup
	dropped atomic.Int64
}

var _ notification.Alerter = (*AsyncAlerter)(nil)

// NewAsyncAlerter starts the delivery worker
func NewAsyncAlerter(next notification.Alerter, queueSize int, sendTimeout time.Duration, log *zap.Logger) *AsyncAlerter {
	if queueSize <= 0 {
		queueSize = 256
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	a := &AsyncAlerter{
		next:        next,
		sendTimeout: sendTimeout,
		logger:      log.Named("alert"),
		queue:       make(chan queuedAlert, queueSize),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// SendAdminAlert enqueues the alert without blocking
func (a *AsyncAlerter) SendAdminAlert(ctx context.Context, subject, message string) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.drop(subject, "closed")
		return
	}
	select {
	case a.queue <- queuedAlert{ctx: context.WithoutCancel(ctx), subject: subject, message: message}:
	default:
		a.drop(subject, "queue full")
	}
}

func (a *AsyncAlerter) drop(subject, reason string) {
	a.dropped.Add(1)
	a.logger.Warn("admin alert dropped",
		zap.String("subject", subject),
		zap.String("reason", reason),
		zap.Error(notification.ErrQueueFull),
	)
}

func (a *AsyncAlerter) run() {
	defer a.wg.Done()
	for al := range a.queue {
		a.deliver(al)
	}
}

func (a *AsyncAlerter) deliver(al queuedAlert) {
	ctx, cancel := context.WithTimeout(al.ctx, a.sendTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("admin alert delivery panicked", zap.Any("panic", r), zap.String("subject", al.subject))
		}
	}()
	a.next.SendAdminAlert(ctx, al.subject, al.message)
}

// Dropped returns the number of alerts that were not queued
func (a *AsyncAlerter) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting alerts and waits for queued ones to be delivered
func (a *AsyncAlerter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}

// ---------------------------------------------------------------------------
// LogMailer
// ---------------------------------------------------------------------------

// LogMailer logs customer emails instead of sending them. It stands in when
// no mail API is configured outside production.
type LogMailer struct {
	logger *zap.Logger
}

var _ notification.Mailer = (*LogMailer)(nil)

// NewLogMailer creates a log-only mailer
func NewLogMailer(log *zap.Logger) *LogMailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogMailer{logger: log.Named("mail")}
}

// SendOrderConfirmation logs the confirmation without the matching id
func (m *LogMailer) SendOrderConfirmation(_ context.Context, msg notification.OrderConfirmation) notification.SendResult {
	m.logger.Info("order confirmation (not sent)",
		zap.String("order_id", msg.OrderID),
		zap.String("to", msg.CustomerEmail),
		zap.String("iccid", msg.ICCID),
	)
	return notification.SendResult{Success: true, ID: "log"}
}

// SendFailureNotification logs the failure notice
func (m *LogMailer) SendFailureNotification(_ context.Context, msg notification.FailureNotification) notification.SendResult {
	m.logger.Info("failure notification (not sent)",
		zap.String("order_id", msg.OrderID),
		zap.String("to", msg.CustomerEmail),
		zap.String("error", msg.Error),
	)
	return notification.SendResult{Success: true, ID: "log"}
}
