package models

import (
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/shopspring/decimal"
)

// BestOfferModel holds the winner per (country_code, data_amount_mb, validity_days).
type BestOfferModel struct {
	CountryCode       string          `gorm:"type:varchar(8);primaryKey"`
	DataAmountMB      int             `gorm:"column:data_amount_mb;primaryKey;autoIncrement:false"`
	ValidityDays      int             `gorm:"primaryKey;autoIncrement:false"`
	ProviderSlug      string          `gorm:"type:varchar(64);not null;index"`
	ProviderProductID string          `gorm:"type:varchar(191);not null"`
	CostPrice         decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	SellPrice         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Margin            decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	Score             decimal.Decimal `gorm:"type:decimal(16,6);not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

func (BestOfferModel) TableName() string {
	return "best_offers"
}

func (m *BestOfferModel) ToDomain() pricing.BestOffer {
	return pricing.BestOffer{
		Key: pricing.OfferKey{
			CountryCode:  m.CountryCode,
			DataAmountMB: m.DataAmountMB,
			ValidityDays: m.ValidityDays,
		},
		ProviderSlug:      m.ProviderSlug,
		ProviderProductID: m.ProviderProductID,
		CostPrice:         m.CostPrice,
		SellPrice:         m.SellPrice,
		Margin:            m.Margin,
		Currency:          m.Currency,
		Score:             m.Score,
		UpdatedAt:         m.UpdatedAt,
	}
}

func BestOfferModelFromDomain(o *pricing.BestOffer) *BestOfferModel {
	return &BestOfferModel{
		CountryCode:       o.Key.CountryCode,
		DataAmountMB:      o.Key.DataAmountMB,
		ValidityDays:      o.Key.ValidityDays,
		ProviderSlug:      o.ProviderSlug,
		ProviderProductID: o.ProviderProductID,
		CostPrice:         o.CostPrice,
		SellPrice:         o.SellPrice,
		Margin:            o.Margin,
		Currency:          o.Currency,
		Score:             o.Score,
		UpdatedAt:         o.UpdatedAt,
	}
}

// PricingSettingsID is the primary key of the single settings row
const PricingSettingsID = 1

// PricingSettingsModel stores admin-editable margins. Scoring weights come
// from configuration and are not persisted.
type PricingSettingsModel struct {
	ID                    int             `gorm:"primaryKey;autoIncrement:false"`
	GlobalMarginPercent   decimal.Decimal `gorm:"type:decimal(8,4);not null"`
	GlobalMarginFixed     decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	AutoDiscountEnabled   bool            `gorm:"not null"`
	AutoDiscountPercent   decimal.Decimal `gorm:"type:decimal(8,4);not null"`
	AutoDiscountThreshold decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	MinMarginFixed        decimal.Decimal `gorm:"type:decimal(12,4);not null"`
	MinMarginPercent      decimal.Decimal `gorm:"type:decimal(8,4);not null"`
	UpdatedAt             time.Time       `gorm:"not null"`
}

func (PricingSettingsModel) TableName() string {
	return "pricing_settings"
}

func (m *PricingSettingsModel) ToDomain() *pricing.Settings {
	return &pricing.Settings{
		GlobalMarginPercent:   m.GlobalMarginPercent,
		GlobalMarginFixed:     m.GlobalMarginFixed,
		AutoDiscountEnabled:   m.AutoDiscountEnabled,
		AutoDiscountPercent:   m.AutoDiscountPercent,
		AutoDiscountThreshold: m.AutoDiscountThreshold,
		MinMarginFixed:        m.MinMarginFixed,
		MinMarginPercent:      m.MinMarginPercent,
		UpdatedAt:             m.UpdatedAt,
	}
}

func PricingSettingsModelFromDomain(s *pricing.Settings) *PricingSettingsModel {
	return &PricingSettingsModel{
		ID:                    PricingSettingsID,
		GlobalMarginPercent:   s.GlobalMarginPercent,
		GlobalMarginFixed:     s.GlobalMarginFixed,
		AutoDiscountEnabled:   s.AutoDiscountEnabled,
		AutoDiscountPercent:   s.AutoDiscountPercent,
		AutoDiscountThreshold: s.AutoDiscountThreshold,
		MinMarginFixed:        s.MinMarginFixed,
		MinMarginPercent:      s.MinMarginPercent,
		UpdatedAt:             s.UpdatedAt,
	}
}
