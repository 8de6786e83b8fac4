package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// productUpsertColumns are replaced on conflict; the key columns never change.
var productUpsertColumns = []string{
	"name", "price", "currency", "country_code", "data_amount_mb",
	"validity_days", "is_unlimited", "network_type", "original_data",
	"last_seen_at", "is_stale", "updated_at",
}

// GormProductRepository implements provider.ProductRepository and
// pricing.CandidateReader using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// Upsert replaces the row for (provider_slug, provider_product_id)
func (r *GormProductRepository) Upsert(ctx context.Context, product *provider.ProviderProduct) error {
	model := models.ProviderProductModelFromDomain(product)
	model.IsStale = false
	model.UpdatedAt = time.Now()

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_slug"}, {Name: "provider_product_id"}},
			DoUpdates: clause.AssignmentColumns(productUpsertColumns),
		}).
		Create(model).Error
}

// MarkStale flags rows of slug that were not seen since before
func (r *GormProductRepository) MarkStale(ctx context.Context, slug string, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ProviderProductModel{}).
		Where("provider_slug = ? AND last_seen_at < ? AND is_stale = ?", slug, before, false).
		Updates(map[string]any{
			"is_stale":   true,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// FindBySKU returns provider.ErrProductNotFound when absent
func (r *GormProductRepository) FindBySKU(ctx context.Context, slug, sku string) (*provider.ProviderProduct, error) {
	var model models.ProviderProductModel
	err := r.db.WithContext(ctx).
		Where("provider_slug = ? AND provider_product_id = ?", slug, sku).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, provider.ErrProductNotFound
		}
		return nil, err
	}
	p := model.ToDomain()
	return &p, nil
}

// FindBySKUAnyProvider returns fresh rows with the given SKU across providers
func (r *GormProductRepository) FindBySKUAnyProvider(ctx context.Context, sku string) ([]provider.ProviderProduct, error) {
	var rows []models.ProviderProductModel
	err := r.db.WithContext(ctx).
		Where("provider_product_id = ? AND is_stale = ?", sku, false).
		Order("provider_slug ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toProducts(rows), nil
}

// FindByTuple returns fresh rows of active providers for the tuple
func (r *GormProductRepository) FindByTuple(ctx context.Context, countryCode string, dataAmountMB, validityDays int) ([]provider.ProviderProduct, error) {
	var rows []models.ProviderProductModel
	err := r.db.WithContext(ctx).
		Table("provider_products AS pp").
		Select("pp.*").
		Joins("JOIN providers p ON p.slug = pp.provider_slug").
		Where("pp.country_code = ? AND pp.data_amount_mb = ? AND pp.validity_days = ?",
			strings.ToUpper(countryCode), dataAmountMB, validityDays).
		Where("pp.is_stale = ? AND p.is_active = ?", false, true).
		Order("pp.provider_slug ASC").Order("pp.price ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toProducts(rows), nil
}

// CountByProvider counts catalog rows of slug
func (r *GormProductRepository) CountByProvider(ctx context.Context, slug string, includeStale bool) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.ProviderProductModel{}).Where("provider_slug = ?", slug)
	if !includeStale {
		q = q.Where("is_stale = ?", false)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// candidateRow is the projection used by FindPricingCandidates
type candidateRow struct {
	ProviderSlug      string
	ProviderProductID string
	CountryCode       string
	DataAmountMB      int `gorm:"column:data_amount_mb"`
	ValidityDays      int
	Price             decimal.Decimal
	Currency          string
	ReliabilityScore  float64
	Priority          int
}

// FindPricingCandidates loads every fresh product of every active provider
// joined with the provider's score and priority.
func (r *GormProductRepository) FindPricingCandidates(ctx context.Context) ([]pricing.Candidate, error) {
	var rows []candidateRow
	err := r.db.WithContext(ctx).
		Table("provider_products AS pp").
		Select("pp.provider_slug, pp.provider_product_id, pp.country_code, pp.data_amount_mb, " +
			"pp.validity_days, pp.price, pp.currency, p.reliability_score, p.priority").
		Joins("JOIN providers p ON p.slug = pp.provider_slug").
		Where("pp.is_stale = ? AND p.is_active = ?", false, true).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]pricing.Candidate, 0, len(rows))
	for _, row := range rows {
		out = append(out, pricing.Candidate{
			ProviderSlug: row.ProviderSlug,
			ProductID:    row.ProviderProductID,
			Key: pricing.OfferKey{
				CountryCode:  row.CountryCode,
				DataAmountMB: row.DataAmountMB,
				ValidityDays: row.ValidityDays,
			},
			Cost:        row.Price,
			Currency:    row.Currency,
			Reliability: row.ReliabilityScore,
			Priority:    row.Priority,
		})
	}
	return out, nil
}

func toProducts(rows []models.ProviderProductModel) []provider.ProviderProduct {
	out := make([]provider.ProviderProduct, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out
}

var (
	_ provider.ProductRepository = (*GormProductRepository)(nil)
	_ pricing.CandidateReader    = (*GormProductRepository)(nil)
)
