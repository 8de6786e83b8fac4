package models

import (
	"encoding/json"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/shopspring/decimal"
)

// ProviderModel is the operational record of one carrier.
// Columns without gorm defaults so that zero values (inactive, score 0) are written as-is.
type ProviderModel struct {
	Slug             string          `gorm:"type:varchar(64);primaryKey"`
	Name             string          `gorm:"type:varchar(128);not null"`
	IsActive         bool            `gorm:"not null;index"`
	Priority         int             `gorm:"not null"`
	ReliabilityScore float64         `gorm:"not null"`
	FailedOrders     int64           `gorm:"not null"`
	LastSync         *time.Time      `gorm:"column:last_sync"`
	LastError        string          `gorm:"type:text"`
	Balance          decimal.Decimal `gorm:"type:decimal(14,4);not null"`
	BalanceCurrency  string          `gorm:"type:varchar(3)"`
	BalanceCheckedAt *time.Time
	Timestamps
}

func (ProviderModel) TableName() string {
	return "providers"
}

func (m *ProviderModel) ToDomain() *provider.Provider {
	return &provider.Provider{
		Slug:             m.Slug,
		Name:             m.Name,
		IsActive:         m.IsActive,
		Priority:         m.Priority,
		ReliabilityScore: m.ReliabilityScore,
		FailedOrders:     m.FailedOrders,
		LastSync:         m.LastSync,
		LastError:        m.LastError,
		Balance:          m.Balance,
		BalanceCurrency:  m.BalanceCurrency,
		BalanceCheckedAt: m.BalanceCheckedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func ProviderModelFromDomain(p *provider.Provider) *ProviderModel {
	return &ProviderModel{
		Slug:             p.Slug,
		Name:             p.Name,
		IsActive:         p.IsActive,
		Priority:         p.Priority,
		ReliabilityScore: p.ReliabilityScore,
		FailedOrders:     p.FailedOrders,
		LastSync:         p.LastSync,
		LastError:        p.LastError,
		Balance:          p.Balance,
		BalanceCurrency:  p.BalanceCurrency,
		BalanceCheckedAt: p.BalanceCheckedAt,
		Timestamps:       Timestamps{CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt},
	}
}

// ProviderProductModel is one catalog row, keyed by (provider_slug, provider_product_id).
type ProviderProductModel struct {
	ProviderSlug      string          `gorm:"type:varchar(64);primaryKey"`
	ProviderProductID string          `gorm:"type:varchar(191);primaryKey"`
	Name              string          `gorm:"type:varchar(255);not null"`
	Price             decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	CountryCode       string          `gorm:"type:varchar(8);not null;index:idx_provider_products_tuple,priority:1"`
	DataAmountMB      int             `gorm:"column:data_amount_mb;not null;index:idx_provider_products_tuple,priority:2"`
	ValidityDays      int             `gorm:"not null;index:idx_provider_products_tuple,priority:3"`
	IsUnlimited       bool            `gorm:"not null"`
	NetworkType       string          `gorm:"type:varchar(32)"`
	OriginalData      string          `gorm:"type:text"`
	LastSeenAt        time.Time       `gorm:"not null"`
	IsStale           bool            `gorm:"not null;index"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

func (ProviderProductModel) TableName() string {
	return "provider_products"
}

func (m *ProviderProductModel) ToDomain() provider.ProviderProduct {
	var raw json.RawMessage
	if m.OriginalData != "" {
		raw = json.RawMessage(m.OriginalData)
	}
	return provider.ProviderProduct{
		ProviderSlug: m.ProviderSlug,
		NormalizedProduct: provider.NormalizedProduct{
			ID:           m.ProviderProductID,
			Name:         m.Name,
			Price:        m.Price,
			Currency:     m.Currency,
			CountryCode:  m.CountryCode,
			DataAmountMB: m.DataAmountMB,
			ValidityDays: m.ValidityDays,
			IsUnlimited:  m.IsUnlimited,
			NetworkType:  m.NetworkType,
			OriginalData: raw,
		},
		LastSeenAt: m.LastSeenAt,
		IsStale:    m.IsStale,
		UpdatedAt:  m.UpdatedAt,
	}
}

func ProviderProductModelFromDomain(p *provider.ProviderProduct) *ProviderProductModel {
	return &ProviderProductModel{
		ProviderSlug:      p.ProviderSlug,
		ProviderProductID: p.ID,
		Name:              p.Name,
		Price:             p.Price,
		Currency:          p.Currency,
		CountryCode:       p.CountryCode,
		DataAmountMB:      p.DataAmountMB,
		ValidityDays:      p.ValidityDays,
		IsUnlimited:       p.IsUnlimited,
		NetworkType:       p.NetworkType,
		OriginalData:      string(p.OriginalData),
		LastSeenAt:        p.LastSeenAt,
		IsStale:           p.IsStale,
		UpdatedAt:         p.UpdatedAt,
	}
}
