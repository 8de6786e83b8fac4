package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormProviderStats reads catalog gauges straight from the provider tables.
type GormProviderStats struct {
	db *gorm.DB
}

// NewGormProviderStats creates a new GormProviderStats.
func NewGormProviderStats(db *gorm.DB) *GormProviderStats {
	return &GormProviderStats{db: db}
}

// CountActiveProviders returns how many carriers are routable.
func (s *GormProviderStats) CountActiveProviders(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Table("providers").Where("is_active = ?", true).Count(&count).Error
	return count, err
}

// CatalogRowsByProvider returns the number of fresh catalog rows per carrier.
func (s *GormProviderStats) CatalogRowsByProvider(ctx context.Context) (map[string]int64, error) {
	type row struct {
		ProviderSlug string `gorm:"column:provider_slug"`
		Rows         int64  `gorm:"column:row_count"`
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Table("provider_products").
		Select("provider_slug, COUNT(*) AS row_count").
		Where("is_stale = ?", false).
		Group("provider_slug").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.ProviderSlug] = r.Rows
	}
	return out, nil
}

// CountBestOffers returns the size of the published offer table.
func (s *GormProviderStats) CountBestOffers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Table("best_offers").Count(&count).Error
	return count, err
}
