// Package fulfillment provisions eSIMs for confirmed payments with
// per-unit carrier failover.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/domain/notification"
	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/telemetry"
)

const (
	defaultAttemptTimeout = 45 * time.Second
	defaultRunTimeout     = 10 * time.Minute

	// customerFailureMessage is what the customer sees for an unprovisioned unit
	customerFailureMessage = "We could not activate this eSIM right away. Our team has been notified " +
		"and will deliver it or refund you shortly."
)

// AttemptResult records one carrier order call
type AttemptResult struct {
	ProviderSlug string        `json:"providerSlug"`
	ProductID    string        `json:"productId"`
	Success      bool          `json:"success"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// ItemResult is the outcome of one unit
type ItemResult struct {
	ItemID       uuid.UUID               `json:"itemId"`
	Position     int                     `json:"position"`
	BundleID     string                  `json:"bundleId"`
	Status       fulfillment.ItemStatus  `json:"status"`
	ProviderSlug string                  `json:"providerSlug,omitempty"`
	EmailStatus  fulfillment.EmailStatus `json:"emailStatus"`
	Attempts     []AttemptResult         `json:"attempts"`
	Error        string                  `json:"error,omitempty"`
}

// FulfillmentResult is returned by HandlePaymentConfirmed and RetryFailedItems
type FulfillmentResult struct {
	OrderID     uuid.UUID               `json:"orderId"`
	SessionID   string                  `json:"sessionId"`
	Duplicate   bool                    `json:"duplicate"`
	Resumed     bool                    `json:"resumed,omitempty"`
	Status      fulfillment.SyncStatus  `json:"status"`
	EmailStatus fulfillment.EmailStatus `json:"emailStatus"`
	Fulfilled   int                     `json:"fulfilled"`
	Failed      int                     `json:"failed"`
	Items       []ItemResult            `json:"items,omitempty"`
}

// Metrics receives fulfillment measurements
type Metrics interface {
	RecordAttempt(ctx context.Context, slug string, success bool, d time.Duration)
	RecordItem(ctx context.Context, status string)
	RecordOrder(ctx context.Context, status string)
}

type nopMetrics struct{}

func (nopMetrics) RecordAttempt(context.Context, string, bool, time.Duration) {}
func (nopMetrics) RecordItem(context.Context, string)                         {}
func (nopMetrics) RecordOrder(context.Context, string)                        {}

// ServiceConfig contains the collaborators of Service
type ServiceConfig struct {
	Orders         fulfillment.OrderRepository
	Providers      provider.ProviderRepository
	Products       provider.ProductRepository
	Offers         pricing.OfferRepository
	Registry       provider.Registry
	Mailer         notification.Mailer
	Alerter        notification.Alerter
	Publisher      fulfillment.OutcomePublisher
	Metrics        Metrics
	Validator      *validator.Validate
	AttemptTimeout time.Duration
	RunTimeout     time.Duration
	ParallelItems  int
	Logger         *zap.Logger
	Now            func() time.Time
}

// Service is the fulfillment orchestrator.
type Service struct {
	orders         fulfillment.OrderRepository
	providers      provider.ProviderRepository
	products       provider.ProductRepository
	offers         pricing.OfferRepository
	registry       provider.Registry
	mailer         notification.Mailer
	alerter        notification.Alerter
	publisher      fulfillment.OutcomePublisher
	metrics        Metrics
	validate       *validator.Validate
	attemptTimeout time.Duration
	runTimeout     time.Duration
	parallelItems  int
	logger         *zap.Logger
	now            func() time.Time

	// inflight holds the ids of orders with a run in this process
	inflight sync.Map
}

// NewService creates a new fulfillment Service
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		orders:         cfg.Orders,
		providers:      cfg.Providers,
		products:       cfg.Products,
		offers:         cfg.Offers,
		registry:       cfg.Registry,
		mailer:         cfg.Mailer,
		alerter:        cfg.Alerter,
		publisher:      cfg.Publisher,
		metrics:        cfg.Metrics,
		validate:       cfg.Validator,
		attemptTimeout: cfg.AttemptTimeout,
		runTimeout:     cfg.RunTimeout,
		parallelItems:  cfg.ParallelItems,
		logger:         cfg.Logger,
		now:            cfg.Now,
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.validate == nil {
		s.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if s.attemptTimeout <= 0 {
		s.attemptTimeout = defaultAttemptTimeout
	}
	if s.runTimeout <= 0 {
		s.runTimeout = defaultRunTimeout
	}
	if s.parallelItems < 1 {
		s.parallelItems = 1
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("fulfillment")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// HandlePaymentConfirmed creates the order for evt exactly once and
// provisions every unit. A redelivered event returns Duplicate without side
// effects, unless the earlier run stopped before finishing the order: then
// the pending units are resumed.
//
// The run is detached from ctx cancellation and bounded by the run timeout,
// so a dropped caller cannot abandon carrier orders halfway.
func (s *Service) HandlePaymentConfirmed(ctx context.Context, evt fulfillment.PaymentConfirmedEvent) (*FulfillmentResult, error) {
	if err := s.validate.Struct(evt); err != nil {
		return nil, fmt.Errorf("%w: %s", fulfillment.ErrInvalidEvent, err.Error())
	}
	ctx, cancel := s.detach(ctx)
	defer cancel()

	order, err := fulfillment.NewOrderFromEvent(evt, s.now())
	if err != nil {
		return nil, err
	}
	s.fillPrices(ctx, order)

	created, err := s.orders.CreateIfAbsent(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if !created {
		return s.redelivered(ctx, evt.SessionID)
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("session_id", order.SessionID),
		zap.Int("units", len(order.Items)),
	)

	targets := make([]*fulfillment.OrderItem, 0, len(order.Items))
	for i := range order.Items {
		targets = append(targets, &order.Items[i])
	}
	return s.runExclusive(ctx, order, targets)
}

// redelivered answers a payment event whose order already exists. An order
// still PENDING was interrupted before its aggregate was stored, so its
// pending units are provisioned now.
func (s *Service) redelivered(ctx context.Context, sessionID string) (*FulfillmentResult, error) {
	existing, err := s.orders.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load existing order: %w", err)
	}
	if existing.Sync.SyncStatus == fulfillment.SyncStatusPending {
		pending := existing.PendingItems()
		s.logger.Warn("resuming interrupted order",
			zap.String("order_id", existing.ID.String()),
			zap.String("session_id", sessionID),
			zap.Int("pending", len(pending)),
		)
		res, err := s.runExclusive(ctx, existing, pending)
		switch {
		case errors.Is(err, fulfillment.ErrOrderInProgress):
		case err != nil:
			return nil, err
		default:
			res.Resumed = true
			return res, nil
		}
	}

	s.logger.Info("duplicate payment event ignored", zap.String("session_id", sessionID))
	res := summarize(existing)
	res.Duplicate = true
	return res, nil
}

// RetryFailedItems re-runs failover for the unfinished units of an order:
// FAILED units of a PARTIAL_FAILURE order and PENDING units of an order
// whose run was interrupted.
func (s *Service) RetryFailedItems(ctx context.Context, orderID uuid.UUID) (*FulfillmentResult, error) {
	ctx, cancel := s.detach(ctx)
	defer cancel()

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	targets := order.UnfinishedItems()
	if len(targets) == 0 && order.Sync.SyncStatus != fulfillment.SyncStatusPending {
		return nil, fulfillment.ErrNothingToRetry
	}

	s.logger.Info("retrying unfinished items",
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Sync.SyncStatus)),
		zap.Int("items", len(targets)),
	)
	return s.runExclusive(ctx, order, targets)
}

// GetOrder returns the order with its items and sync record
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*fulfillment.Order, error) {
	return s.orders.FindByID(ctx, orderID)
}

// ListOrders returns recent orders in the given aggregate state
func (s *Service) ListOrders(ctx context.Context, status fulfillment.SyncStatus, limit int) ([]fulfillment.Order, error) {
	return s.orders.ListBySyncStatus(ctx, status, limit)
}

// fillPrices copies the current sell price onto units whose bundle is a
// best-offer key. Unknown bundles keep a zero price.
func (s *Service) fillPrices(ctx context.Context, order *fulfillment.Order) {
	if s.offers == nil {
		return
	}
	for i := range order.Items {
		key, err := pricing.ParseOfferKey(order.Items[i].ProductName)
		if err != nil {
			continue
		}
		offer, err := s.offers.FindByKey(ctx, key)
		if err != nil {
			continue
		}
		order.Items[i].Price = offer.SellPrice
		if order.Currency == "" {
			order.Currency = offer.Currency
		}
	}
}

func (s *Service) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
}

// runExclusive runs targets unless another run holds the order
func (s *Service) runExclusive(ctx context.Context, order *fulfillment.Order, targets []*fulfillment.OrderItem) (*FulfillmentResult, error) {
	if _, busy := s.inflight.LoadOrStore(order.ID, struct{}{}); busy {
		return nil, fulfillment.ErrOrderInProgress
	}
	defer s.inflight.Delete(order.ID)
	return s.run(ctx, order, targets)
}

func (s *Service) run(ctx context.Context, order *fulfillment.Order, targets []*fulfillment.OrderItem) (*FulfillmentResult, error) {
	active, err := s.activeProviders(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]ItemResult, len(targets))
	if s.parallelItems == 1 {
		for i, item := range targets {
			results[i] = s.fulfillItem(ctx, order, item, active)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.parallelItems)
		for i, item := range targets {
			g.Go(func() error {
				results[i] = s.fulfillItem(ctx, order, item, active)
				return nil
			})
		}
		_ = g.Wait()
	}

	order.Aggregate(s.now())
	if err := s.orders.SaveAggregate(ctx, order); err != nil {
		return nil, fmt.Errorf("save order aggregate: %w", err)
	}
	s.metrics.RecordOrder(ctx, string(order.Sync.SyncStatus))

	s.publish(ctx, order)

	res := summarize(order)
	res.Items = results
	log := s.logger.With(
		zap.String("order_id", order.ID.String()),
		zap.String("status", string(order.Sync.SyncStatus)),
		zap.Int("fulfilled", order.Sync.FulfilledCount),
		zap.Int("failed", order.Sync.FailedCount),
	)
	if order.Sync.SyncStatus == fulfillment.SyncStatusCompleted {
		log.Info("order fulfilled")
	} else {
		log.Warn("order partially fulfilled")
	}
	return res, nil
}

func (s *Service) activeProviders(ctx context.Context) (map[string]provider.Provider, error) {
	list, err := s.providers.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active providers: %w", err)
	}
	out := make(map[string]provider.Provider, len(list))
	for _, p := range list {
		out[p.Slug] = p
	}
	return out, nil
}

func (s *Service) publish(ctx context.Context, order *fulfillment.Order) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishOutcome(ctx, fulfillment.OutcomeEvent{
		OrderID:    order.ID,
		SessionID:  order.SessionID,
		Status:     order.Sync.SyncStatus,
		Fulfilled:  order.Sync.FulfilledCount,
		Failed:     order.Sync.FailedCount,
		OccurredAt: s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to publish order outcome", zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}

func summarize(order *fulfillment.Order) *FulfillmentResult {
	return &FulfillmentResult{
		OrderID:     order.ID,
		SessionID:   order.SessionID,
		Status:      order.Sync.SyncStatus,
		EmailStatus: order.Sync.EmailStatus,
		Fulfilled:   order.Sync.FulfilledCount,
		Failed:      order.Sync.FailedCount,
	}
}

// ---------------------------------------------------------------------------
// Per-unit failover
// ---------------------------------------------------------------------------

// candidateSet is the routing input for one unit together with the catalog
// rows the candidates came from
type candidateSet struct {
	ordered []fulfillment.RouteCandidate
	rows    map[string]provider.ProviderProduct
}

func rowKey(slug, sku string) string { return slug + "/" + sku }

// resolveCandidates maps a bundle id to the failover list. A bundle id is a
// best-offer key or a carrier SKU; either way every active carrier offering
// the same (country, data, validity) tuple becomes a candidate. A carrier
// offering the SKU itself is routed to that exact product.
func (s *Service) resolveCandidates(ctx context.Context, item *fulfillment.OrderItem, active map[string]provider.Provider) (*candidateSet, error) {
	sku := ""
	key, err := pricing.ParseOfferKey(item.ProductName)
	if err != nil {
		sku = item.ProductName
		skuRows, ferr := s.products.FindBySKUAnyProvider(ctx, item.ProductName)
		if ferr != nil {
			return nil, fmt.Errorf("resolve bundle %s: %w", item.ProductName, ferr)
		}
		if len(skuRows) == 0 {
			return nil, fmt.Errorf("%w: %s", fulfillment.ErrBundleNotFound, item.ProductName)
		}
		ref := skuRows[0]
		for _, r := range skuRows {
			if r.ProviderSlug == item.ProviderHint {
				ref = r
				break
			}
		}
		key = pricing.OfferKey{CountryCode: ref.CountryCode, DataAmountMB: ref.DataAmountMB, ValidityDays: ref.ValidityDays}
	}

	rows, err := s.products.FindByTuple(ctx, key.CountryCode, key.DataAmountMB, key.ValidityDays)
	if err != nil {
		return nil, fmt.Errorf("load candidates for %s: %w", key, err)
	}

	set := &candidateSet{rows: make(map[string]provider.ProviderProduct, len(rows))}
	cands := make([]fulfillment.RouteCandidate, 0, len(rows))
	for _, row := range rows {
		p, ok := active[row.ProviderSlug]
		if !ok {
			continue
		}
		set.rows[rowKey(row.ProviderSlug, row.ID)] = row
		cands = append(cands, fulfillment.RouteCandidate{
			ProviderSlug: row.ProviderSlug,
			ProductID:    row.ID,
			Priority:     p.Priority,
			Reliability:  p.ReliabilityScore,
			Cost:         row.Price,
		})
	}
	if len(cands) == 0 {
		return nil, fmt.Errorf("%w: %s", fulfillment.ErrNoCandidates, key)
	}
	set.ordered = fulfillment.OrderCandidates(item.ProviderHint, sku, cands)
	return set, nil
}

// fulfillItem tries each candidate once, in order, until one returns a
// complete credential. It only touches item. A unit that fails gets a
// failure email unless the customer was already told about it.
func (s *Service) fulfillItem(ctx context.Context, order *fulfillment.Order, item *fulfillment.OrderItem, active map[string]provider.Provider) ItemResult {
	res := ItemResult{ItemID: item.ID, Position: item.Position, BundleID: item.ProductName}
	log := s.logger.With(
		zap.String("order_id", order.ID.String()),
		zap.Int("position", item.Position),
		zap.String("bundle", item.ProductName),
	)

	var lastErr error
	set, err := s.resolveCandidates(ctx, item, active)
	if err != nil {
		lastErr = err
	} else {
		for _, cand := range set.ordered {
			attempt, orderRes := s.attempt(ctx, item, cand)
			res.Attempts = append(res.Attempts, attempt)
			if orderRes == nil {
				lastErr = errors.New(attempt.Error)
				log.Warn("carrier attempt failed",
					zap.String("provider", cand.ProviderSlug),
					zap.String("sku", cand.ProductID),
					zap.String("error", attempt.Error),
				)
				continue
			}

			item.MarkFulfilled(cand.ProviderSlug, cand.ProductID, cand.Cost, orderRes, s.now())
			if err := s.orders.SaveItem(ctx, item); err != nil {
				log.Error("failed to persist credential", zap.String("iccid", item.ICCID), zap.Error(err))
			}
			s.metrics.RecordItem(ctx, string(fulfillment.ItemStatusFulfilled))
			log.Info("unit fulfilled", zap.String("provider", cand.ProviderSlug), zap.Int("attempts", item.Attempts))

			s.sendConfirmation(ctx, order, item, set.rows[rowKey(cand.ProviderSlug, cand.ProductID)])
			s.saveItem(ctx, item, log)

			res.Status = item.Status
			res.ProviderSlug = item.ProviderSlug
			res.EmailStatus = item.EmailStatus
			return res
		}
	}

	reason := "no carrier could provision this bundle"
	if lastErr != nil {
		reason = lastErr.Error()
	}
	item.MarkFailed(reason)
	s.saveItem(ctx, item, log)
	s.metrics.RecordItem(ctx, string(fulfillment.ItemStatusFailed))
	log.Error("unit unfulfilled", zap.String("reason", reason))

	s.alertUnfulfilled(ctx, order, item, len(res.Attempts))
	if item.EmailStatus == fulfillment.EmailStatusPending {
		s.sendFailure(ctx, order, item)
		s.saveItem(ctx, item, log)
	}

	res.Status = item.Status
	res.EmailStatus = item.EmailStatus
	res.Error = reason
	return res
}

// attempt places one order under the attempt timeout. It returns a nil
// OrderResult unless the carrier delivered a complete credential.
func (s *Service) attempt(ctx context.Context, item *fulfillment.OrderItem, cand fulfillment.RouteCandidate) (AttemptResult, *provider.OrderResult) {
	out := AttemptResult{ProviderSlug: cand.ProviderSlug, ProductID: cand.ProductID}
	started := time.Now()
	item.Attempts++

	ctx, span := telemetry.StartSpan(ctx, "fulfillment.attempt",
		telemetry.WithAttribute(telemetry.SpanAttrProvider, cand.ProviderSlug),
		telemetry.WithAttribute(telemetry.SpanAttrProductID, cand.ProductID),
		telemetry.WithAttribute(telemetry.SpanAttrPosition, item.Position),
		telemetry.WithAttribute(telemetry.SpanAttrAttempt, item.Attempts),
	)
	defer span.End()

	orderRes, err := s.placeOrder(ctx, cand)
	out.Duration = time.Since(started)
	if err == nil {
		err = orderRes.Err()
	}
	s.metrics.RecordAttempt(ctx, cand.ProviderSlug, err == nil, out.Duration)
	if err != nil {
		telemetry.RecordError(span, err)
		out.Error = err.Error()
		if ierr := s.providers.IncrementFailedOrders(ctx, cand.ProviderSlug); ierr != nil {
			s.logger.Warn("failed to count failed order", zap.String("provider", cand.ProviderSlug), zap.Error(ierr))
		}
		return out, nil
	}
	out.Success = true
	return out, orderRes
}

func (s *Service) placeOrder(ctx context.Context, cand fulfillment.RouteCandidate) (*provider.OrderResult, error) {
	adapter, err := s.registry.Get(cand.ProviderSlug)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	// a complete credential is kept even when it arrives after the deadline
	orderRes, err := adapter.Order(ctx, cand.ProductID)
	if err == nil && ctx.Err() != nil && orderRes.Err() != nil {
		err = fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, ctx.Err())
	}
	return orderRes, err
}

func (s *Service) saveItem(ctx context.Context, item *fulfillment.OrderItem, log *zap.Logger) {
	if err := s.orders.SaveItem(ctx, item); err != nil {
		log.Error("failed to save order item", zap.Error(err))
	}
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

func (s *Service) sendConfirmation(ctx context.Context, order *fulfillment.Order, item *fulfillment.OrderItem, row provider.ProviderProduct) {
	if s.mailer == nil {
		item.EmailStatus = fulfillment.EmailStatusFailed
		return
	}
	name := row.Name
	if name == "" {
		name = item.ProductName
	}
	result := s.mailer.SendOrderConfirmation(ctx, notification.OrderConfirmation{
		CustomerEmail: order.CustomerEmail,
		OrderID:       order.ID.String(),
		ProductName:   name,
		ICCID:         item.ICCID,
		MatchingID:    item.MatchingID,
		SmdpAddress:   item.SmdpAddress,
		DataAmountMB:  row.DataAmountMB,
		DurationDays:  row.ValidityDays,
		Price:         item.Price,
		Currency:      order.Currency,
	})
	s.recordEmail(item, result, "confirmation")
}

func (s *Service) sendFailure(ctx context.Context, order *fulfillment.Order, item *fulfillment.OrderItem) {
	if s.mailer == nil {
		item.EmailStatus = fulfillment.EmailStatusFailed
		return
	}
	result := s.mailer.SendFailureNotification(ctx, notification.FailureNotification{
		CustomerEmail: order.CustomerEmail,
		OrderID:       order.ID.String(),
		ProductName:   item.ProductName,
		Error:         customerFailureMessage,
	})
	s.recordEmail(item, result, "failure")
}

func (s *Service) recordEmail(item *fulfillment.OrderItem, result notification.SendResult, kind string) {
	if result.Success {
		item.EmailStatus = fulfillment.EmailStatusSent
		return
	}
	item.EmailStatus = fulfillment.EmailStatusFailed
	s.logger.Warn("customer email failed",
		zap.String("kind", kind),
		zap.String("item_id", item.ID.String()),
		zap.String("error", result.Error),
	)
}

func (s *Service) alertUnfulfilled(ctx context.Context, order *fulfillment.Order, item *fulfillment.OrderItem, attempts int) {
	if s.alerter == nil {
		return
	}
	s.alerter.SendAdminAlert(ctx,
		fmt.Sprintf("[%s] Order %s unit %d unfulfilled", notification.SeverityCritical, order.ID, item.Position),
		fmt.Sprintf("Bundle %s for %s could not be provisioned after %d attempt(s).\n\n"+
			"Session: %s\nLast error: %s\n\nRetry from the admin API once a carrier recovers.",
			item.ProductName, order.CustomerEmail, attempts, order.SessionID, item.LastError))
}
