package models

import (
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderModel is one paid checkout session.
type OrderModel struct {
	ID            uuid.UUID               `gorm:"type:uuid;primaryKey"`
	SessionID     string                  `gorm:"type:varchar(255);not null;uniqueIndex"`
	CustomerEmail string                  `gorm:"type:varchar(255);not null"`
	Amount        decimal.Decimal         `gorm:"type:decimal(12,2);not null"`
	Currency      string                  `gorm:"type:varchar(3)"`
	Status        fulfillment.OrderStatus `gorm:"type:varchar(32);not null;index"`
	Items         []OrderItemModel        `gorm:"foreignKey:OrderID"`
	Sync          *ProviderSyncModel      `gorm:"foreignKey:OrderID"`
	Timestamps
}

func (OrderModel) TableName() string {
	return "orders"
}

func (m *OrderModel) ToDomain() *fulfillment.Order {
	o := &fulfillment.Order{
		ID:            m.ID,
		SessionID:     m.SessionID,
		CustomerEmail: m.CustomerEmail,
		Amount:        m.Amount,
		Currency:      m.Currency,
		Status:        m.Status,
		Items:         make([]fulfillment.OrderItem, 0, len(m.Items)),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	for i := range m.Items {
		o.Items = append(o.Items, m.Items[i].ToDomain())
	}
	if m.Sync != nil {
		o.Sync = m.Sync.ToDomain()
	} else {
		o.Sync = fulfillment.ProviderSync{OrderID: m.ID, SyncStatus: fulfillment.SyncStatusPending, EmailStatus: fulfillment.EmailStatusPending}
	}
	return o
}

// OrderModelFromDomain maps the order header only; items and sync are
// written separately.
func OrderModelFromDomain(o *fulfillment.Order) *OrderModel {
	return &OrderModel{
		ID:            o.ID,
		SessionID:     o.SessionID,
		CustomerEmail: o.CustomerEmail,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Status:        o.Status,
		Timestamps:    Timestamps{CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt},
	}
}

// OrderItemModel is one eSIM unit of an order.
type OrderItemModel struct {
	ID                uuid.UUID               `gorm:"type:uuid;primaryKey"`
	OrderID           uuid.UUID               `gorm:"type:uuid;not null;index"`
	Position          int                     `gorm:"not null"`
	ProductName       string                  `gorm:"type:varchar(128);not null"`
	Quantity          int                     `gorm:"not null"`
	Price             decimal.Decimal         `gorm:"type:decimal(12,2);not null"`
	CostPrice         decimal.Decimal         `gorm:"type:decimal(12,4);not null"`
	ProviderHint      string                  `gorm:"type:varchar(64)"`
	ProviderSlug      string                  `gorm:"type:varchar(64);index"`
	ProviderProductID string                  `gorm:"type:varchar(191)"`
	ProviderOrderRef  string                  `gorm:"type:varchar(191)"`
	ICCID             string                  `gorm:"column:iccid;type:varchar(32)"`
	MatchingID        string                  `gorm:"column:matching_id;type:varchar(191)"`
	SmdpAddress       string                  `gorm:"column:smdp_address;type:varchar(255)"`
	Status            fulfillment.ItemStatus  `gorm:"type:varchar(32);not null"`
	EmailStatus       fulfillment.EmailStatus `gorm:"type:varchar(32);not null"`
	LastError         string                  `gorm:"type:text"`
	Attempts          int                     `gorm:"not null"`
	FulfilledAt       *time.Time
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

func (m *OrderItemModel) ToDomain() fulfillment.OrderItem {
	return fulfillment.OrderItem{
		ID:                m.ID,
		OrderID:           m.OrderID,
		Position:          m.Position,
		ProductName:       m.ProductName,
		Quantity:          m.Quantity,
		Price:             m.Price,
		CostPrice:         m.CostPrice,
		ProviderHint:      m.ProviderHint,
		ProviderSlug:      m.ProviderSlug,
		ProviderProductID: m.ProviderProductID,
		ProviderOrderRef:  m.ProviderOrderRef,
		ICCID:             m.ICCID,
		MatchingID:        m.MatchingID,
		SmdpAddress:       m.SmdpAddress,
		Status:            m.Status,
		EmailStatus:       m.EmailStatus,
		LastError:         m.LastError,
		Attempts:          m.Attempts,
		FulfilledAt:       m.FulfilledAt,
	}
}

func OrderItemModelFromDomain(it *fulfillment.OrderItem) *OrderItemModel {
	return &OrderItemModel{
		ID:                it.ID,
		OrderID:           it.OrderID,
		Position:          it.Position,
		ProductName:       it.ProductName,
		Quantity:          it.Quantity,
		Price:             it.Price,
		CostPrice:         it.CostPrice,
		ProviderHint:      it.ProviderHint,
		ProviderSlug:      it.ProviderSlug,
		ProviderProductID: it.ProviderProductID,
		ProviderOrderRef:  it.ProviderOrderRef,
		ICCID:             it.ICCID,
		MatchingID:        it.MatchingID,
		SmdpAddress:       it.SmdpAddress,
		Status:            it.Status,
		EmailStatus:       it.EmailStatus,
		LastError:         it.LastError,
		Attempts:          it.Attempts,
		FulfilledAt:       it.FulfilledAt,
	}
}

// ProviderSyncModel is the aggregate fulfillment status of an order.
type ProviderSyncModel struct {
	OrderID        uuid.UUID               `gorm:"type:uuid;primaryKey"`
	SyncStatus     fulfillment.SyncStatus  `gorm:"type:varchar(32);not null;index"`
	EmailStatus    fulfillment.EmailStatus `gorm:"type:varchar(32);not null"`
	FulfilledCount int                     `gorm:"not null"`
	FailedCount    int                     `gorm:"not null"`
	LastError      string                  `gorm:"type:text"`
	UpdatedAt      time.Time               `gorm:"not null"`
}

func (ProviderSyncModel) TableName() string {
	return "provider_syncs"
}

func (m *ProviderSyncModel) ToDomain() fulfillment.ProviderSync {
	return fulfillment.ProviderSync{
		OrderID:        m.OrderID,
		SyncStatus:     m.SyncStatus,
		EmailStatus:    m.EmailStatus,
		FulfilledCount: m.FulfilledCount,
		FailedCount:    m.FailedCount,
		LastError:      m.LastError,
		UpdatedAt:      m.UpdatedAt,
	}
}

func ProviderSyncModelFromDomain(s *fulfillment.ProviderSync) *ProviderSyncModel {
	return &ProviderSyncModel{
		OrderID:        s.OrderID,
		SyncStatus:     s.SyncStatus,
		EmailStatus:    s.EmailStatus,
		FulfilledCount: s.FulfilledCount,
		FailedCount:    s.FailedCount,
		LastError:      s.LastError,
		UpdatedAt:      s.UpdatedAt,
	}
}

// All lists every model, in dependency order, for AutoMigrate in tests.
func All() []any {
	return []any{
		&ProviderModel{},
		&ProviderProductModel{},
		&BestOfferModel{},
		&PricingSettingsModel{},
		&OrderModel{},
		&OrderItemModel{},
		&ProviderSyncModel{},
	}
}
