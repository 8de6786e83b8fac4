package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidEvent        = errors.New("fulfillment: invalid payment event")
	ErrOrderNotFound       = errors.New("fulfillment: order not found")
	ErrBundleNotFound      = errors.New("fulfillment: bundle cannot be resolved")
	ErrNoCandidates        = errors.New("fulfillment: no provider offers this bundle")
	ErrCandidatesExhausted = errors.New("fulfillment: all provider candidates failed")
	ErrNothingToRetry      = errors.New("fulfillment: order has no unfinished items")
	ErrOrderInProgress     = errors.New("fulfillment: order is already being fulfilled")
)

// maxUnitsPerOrder bounds line-item expansion
const maxUnitsPerOrder = 50

// OrderStatus is the order-level lifecycle state
type OrderStatus string

const (
	OrderStatusProcessing     OrderStatus = "PROCESSING"
	OrderStatusCompleted      OrderStatus = "COMPLETED"
	OrderStatusPartialFailure OrderStatus = "PARTIAL_FAILURE"
)

// ItemStatus is the per-unit fulfillment state
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "PENDING"
	ItemStatusFulfilled ItemStatus = "FULFILLED"
	ItemStatusFailed    ItemStatus = "FAILED"
)

// SyncStatus is the aggregate fulfillment state stored on ProviderSync
type SyncStatus string

const (
	SyncStatusPending        SyncStatus = "PENDING"
	SyncStatusCompleted      SyncStatus = "COMPLETED"
	SyncStatusPartialFailure SyncStatus = "PARTIAL_FAILURE"
)

// EmailStatus tracks customer notification delivery
type EmailStatus string

const (
	EmailStatusPending EmailStatus = "PENDING"
	EmailStatusSent    EmailStatus = "SENT"
	EmailStatusFailed  EmailStatus = "FAILED"
)

// ---------------------------------------------------------------------------
// Inbound event
// ---------------------------------------------------------------------------

// LineItem is one purchased bundle in a confirmed payment
type LineItem struct {
	BundleID     string `json:"bundleId" validate:"required,max=128"`
	Quantity     int    `json:"quantity" validate:"min=1,max=50"`
	ProviderHint string `json:"providerHint,omitempty" validate:"omitempty,max=64"`
}

// PaymentConfirmedEvent is emitted once payment has been verified upstream.
// SessionID is the idempotency key.
type PaymentConfirmedEvent struct {
	SessionID     string          `json:"sessionId" validate:"required,max=255"`
	CustomerEmail string          `json:"customerEmail" validate:"required,email"`
	Items         []LineItem      `json:"items" validate:"required,min=1,dive"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"omitempty,len=3"`
}

// UnitCount returns the number of eSIMs the event pays for
func (e PaymentConfirmedEvent) UnitCount() int {
	n := 0
	for _, it := range e.Items {
		n += it.Quantity
	}
	return n
}

// ---------------------------------------------------------------------------
// Order aggregate
// ---------------------------------------------------------------------------

// OrderItem is a single eSIM unit. A line item of quantity N becomes N items.
type OrderItem struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	Position          int
	ProductName       string
	Quantity          int
	Price             decimal.Decimal
	CostPrice         decimal.Decimal
	ProviderHint      string
	ProviderSlug      string
	ProviderProductID string
	ProviderOrderRef  string
	ICCID             string
	MatchingID        string
	SmdpAddress       string
	Status            ItemStatus
	EmailStatus       EmailStatus
	LastError         string
	Attempts          int
	FulfilledAt       *time.Time
}

// MarkFulfilled stores the credential returned by the winning carrier
func (i *OrderItem) MarkFulfilled(slug, productID string, cost decimal.Decimal, res *provider.OrderResult, now time.Time) {
	i.ProviderSlug = slug
	i.ProviderProductID = productID
	i.CostPrice = cost
	i.ProviderOrderRef = res.ProviderOrderRef
	i.ICCID = res.Esim.ICCID
	i.MatchingID = res.Esim.MatchingID
	i.SmdpAddress = res.Esim.SmdpAddress
	i.Status = ItemStatusFulfilled
	i.LastError = ""
	i.FulfilledAt = &now
}

// MarkFailed records exhaustion of every candidate
func (i *OrderItem) MarkFailed(reason string) {
	i.Status = ItemStatusFailed
	i.LastError = reason
}

// Credential returns the stored eSIM credential, nil when not fulfilled
func (i *OrderItem) Credential() *provider.EsimCredential {
	if i.Status != ItemStatusFulfilled {
		return nil
	}
	return &provider.EsimCredential{ICCID: i.ICCID, SmdpAddress: i.SmdpAddress, MatchingID: i.MatchingID}
}

// ProviderSync is the aggregate fulfillment and email status of an order.
type ProviderSync struct {
	OrderID        uuid.UUID
	SyncStatus     SyncStatus
	EmailStatus    EmailStatus
	FulfilledCount int
	FailedCount    int
	LastError      string
	UpdatedAt      time.Time
}

// Order is created exactly once per payment session.
type Order struct {
	ID            uuid.UUID
	SessionID     string
	CustomerEmail string
	Amount        decimal.Decimal
	Currency      string
	Status        OrderStatus
	Items         []OrderItem
	Sync          ProviderSync
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOrderFromEvent builds the order aggregate, expanding quantities into units.
func NewOrderFromEvent(evt PaymentConfirmedEvent, now time.Time) (*Order, error) {
	if strings.TrimSpace(evt.SessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidEvent)
	}
	if len(evt.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidEvent)
	}
	if evt.UnitCount() > maxUnitsPerOrder {
		return nil, fmt.Errorf("%w: %d units exceeds %d", ErrInvalidEvent, evt.UnitCount(), maxUnitsPerOrder)
	}

	orderID := uuid.New()
	order := &Order{
		ID:            orderID,
		SessionID:     evt.SessionID,
		CustomerEmail: strings.TrimSpace(evt.CustomerEmail),
		Amount:        evt.Amount,
		Currency:      strings.ToUpper(evt.Currency),
		Status:        OrderStatusProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
		Sync: ProviderSync{
			OrderID:     orderID,
			SyncStatus:  SyncStatusPending,
			EmailStatus: EmailStatusPending,
			UpdatedAt:   now,
		},
	}

	pos := 0
	for _, li := range evt.Items {
		if li.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInvalidEvent, li.BundleID)
		}
		for u := 0; u < li.Quantity; u++ {
			order.Items = append(order.Items, OrderItem{
				ID:           uuid.New(),
				OrderID:      orderID,
				Position:     pos,
				ProductName:  strings.TrimSpace(li.BundleID),
				Quantity:     1,
				ProviderHint: strings.TrimSpace(li.ProviderHint),
				Status:       ItemStatusPending,
				EmailStatus:  EmailStatusPending,
			})
			pos++
		}
	}
	return order, nil
}

// Aggregate recomputes ProviderSync and Status from the item states.
// COMPLETED requires every item to be fulfilled; nothing is rolled back.
func (o *Order) Aggregate(now time.Time) {
	fulfilled, failed := 0, 0
	emailsOK := true
	lastErr := ""
	for _, it := range o.Items {
		switch it.Status {
		case ItemStatusFulfilled:
			fulfilled++
		case ItemStatusFailed:
			failed++
			lastErr = it.LastError
		}
		if it.EmailStatus != EmailStatusSent {
			emailsOK = false
		}
	}

	o.Sync.FulfilledCount = fulfilled
	o.Sync.FailedCount = failed
	o.Sync.LastError = lastErr
	o.Sync.UpdatedAt = now
	if fulfilled == len(o.Items) {
		o.Sync.SyncStatus = SyncStatusCompleted
		o.Status = OrderStatusCompleted
	} else {
		o.Sync.SyncStatus = SyncStatusPartialFailure
		o.Status = OrderStatusPartialFailure
	}
	if emailsOK {
		o.Sync.EmailStatus = EmailStatusSent
	} else {
		o.Sync.EmailStatus = EmailStatusFailed
	}
	o.UpdatedAt = now
}

// FailedItems returns pointers to items that exhausted their candidates
func (o *Order) FailedItems() []*OrderItem {
	return o.itemsIn(ItemStatusFailed)
}

// PendingItems returns pointers to items no run has finished yet
func (o *Order) PendingItems() []*OrderItem {
	return o.itemsIn(ItemStatusPending)
}

// UnfinishedItems returns pointers to pending and failed items, in position order
func (o *Order) UnfinishedItems() []*OrderItem {
	return o.itemsIn(ItemStatusPending, ItemStatusFailed)
}

func (o *Order) itemsIn(statuses ...ItemStatus) []*OrderItem {
	var out []*OrderItem
	for i := range o.Items {
		if slices.Contains(statuses, o.Items[i].Status) {
			out = append(out, &o.Items[i])
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// OrderRepository persists orders. CreateIfAbsent is the idempotency seam.
type OrderRepository interface {
	// CreateIfAbsent inserts order, items and sync record in one transaction.
	// It returns false without writing when the session id already exists.
	CreateIfAbsent(ctx context.Context, order *Order) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (*Order, error)
	SaveItem(ctx context.Context, item *OrderItem) error
	SaveAggregate(ctx context.Context, order *Order) error
	ListBySyncStatus(ctx context.Context, status SyncStatus, limit int) ([]Order, error)
}

// OutcomeEvent announces the aggregate result of a fulfillment run
type OutcomeEvent struct {
	OrderID    uuid.UUID  `json:"orderId"`
	SessionID  string     `json:"sessionId"`
	Status     SyncStatus `json:"status"`
	Fulfilled  int        `json:"fulfilled"`
	Failed     int        `json:"failed"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// OutcomePublisher ships OutcomeEvents to downstream consumers
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, evt OutcomeEvent) error
}
