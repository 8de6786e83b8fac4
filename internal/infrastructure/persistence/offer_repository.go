package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/Memoya/simfly.me-sub000/internal/domain/pricing"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const offerBatchSize = 200

// offerChanged is true when the incoming row differs from the stored one;
// updated_at only moves on a real change so an unchanged recompute is a no-op.
const offerChanged = "best_offers.provider_slug <> excluded.provider_slug" +
	" OR best_offers.provider_product_id <> excluded.provider_product_id" +
	" OR best_offers.cost_price <> excluded.cost_price" +
	" OR best_offers.sell_price <> excluded.sell_price" +
	" OR best_offers.currency <> excluded.currency" +
	" OR best_offers.score <> excluded.score"

// GormOfferRepository implements pricing.OfferRepository using GORM
type GormOfferRepository struct {
	db *gorm.DB
}

// NewGormOfferRepository creates a new GormOfferRepository
func NewGormOfferRepository(db *gorm.DB) *GormOfferRepository {
	return &GormOfferRepository{db: db}
}

// ReplaceAll makes the table equal to offers in one transaction: every key
// is upserted and keys absent from offers are deleted.
func (r *GormOfferRepository) ReplaceAll(ctx context.Context, offers []pricing.BestOffer) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		keep := make(map[pricing.OfferKey]struct{}, len(offers))
		rows := make([]*models.BestOfferModel, 0, len(offers))
		for i := range offers {
			keep[offers[i].Key] = struct{}{}
			rows = append(rows, models.BestOfferModelFromDomain(&offers[i]))
		}

		if len(rows) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "country_code"}, {Name: "data_amount_mb"}, {Name: "validity_days"}},
				DoUpdates: clause.Assignments(map[string]any{
					"updated_at":          gorm.Expr("CASE WHEN " + offerChanged + " THEN excluded.updated_at ELSE best_offers.updated_at END"),
					"provider_slug":       gorm.Expr("excluded.provider_slug"),
					"provider_product_id": gorm.Expr("excluded.provider_product_id"),
					"cost_price":          gorm.Expr("excluded.cost_price"),
					"sell_price":          gorm.Expr("excluded.sell_price"),
					"margin":              gorm.Expr("excluded.margin"),
					"currency":            gorm.Expr("excluded.currency"),
					"score":               gorm.Expr("excluded.score"),
				}),
			}).CreateInBatches(rows, offerBatchSize).Error
			if err != nil {
				return err
			}
		}

		var existing []pricing.OfferKey
		err := tx.Model(&models.BestOfferModel{}).
			Select("country_code, data_amount_mb, validity_days").
			Scan(&existing).Error
		if err != nil {
			return err
		}
		for _, k := range existing {
			if _, ok := keep[k]; ok {
				continue
			}
			res := tx.Where("country_code = ? AND data_amount_mb = ? AND validity_days = ?",
				k.CountryCode, k.DataAmountMB, k.ValidityDays).
				Delete(&models.BestOfferModel{})
			if res.Error != nil {
				return res.Error
			}
			removed += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// FindByCountry lists offers for one country ordered by data then validity
func (r *GormOfferRepository) FindByCountry(ctx context.Context, countryCode string) ([]pricing.BestOffer, error) {
	var rows []models.BestOfferModel
	err := r.db.WithContext(ctx).
		Where("country_code = ?", strings.ToUpper(countryCode)).
		Order("data_amount_mb ASC").Order("validity_days ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toOffers(rows), nil
}

// FindByKey returns pricing.ErrOfferNotFound when the tuple has no offer
func (r *GormOfferRepository) FindByKey(ctx context.Context, key pricing.OfferKey) (*pricing.BestOffer, error) {
	var model models.BestOfferModel
	err := r.db.WithContext(ctx).
		Where("country_code = ? AND data_amount_mb = ? AND validity_days = ?",
			key.CountryCode, key.DataAmountMB, key.ValidityDays).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pricing.ErrOfferNotFound
		}
		return nil, err
	}
	o := model.ToDomain()
	return &o, nil
}

// FindAll returns the whole table in key order
func (r *GormOfferRepository) FindAll(ctx context.Context) ([]pricing.BestOffer, error) {
	var rows []models.BestOfferModel
	err := r.db.WithContext(ctx).
		Order("country_code ASC").Order("data_amount_mb ASC").Order("validity_days ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toOffers(rows), nil
}

func toOffers(rows []models.BestOfferModel) []pricing.BestOffer {
	out := make([]pricing.BestOffer, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToDomain())
	}
	return out
}

// GormSettingsRepository implements pricing.SettingsRepository
type GormSettingsRepository struct {
	db *gorm.DB
}

// NewGormSettingsRepository creates a new GormSettingsRepository
func NewGormSettingsRepository(db *gorm.DB) *GormSettingsRepository {
	return &GormSettingsRepository{db: db}
}

// Get returns pricing.ErrSettingsNotFound when the row has never been saved
func (r *GormSettingsRepository) Get(ctx context.Context) (*pricing.Settings, error) {
	var model models.PricingSettingsModel
	err := r.db.WithContext(ctx).Where("id = ?", models.PricingSettingsID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pricing.ErrSettingsNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts the single settings row
func (r *GormSettingsRepository) Save(ctx context.Context, settings *pricing.Settings) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(models.PricingSettingsModelFromDomain(settings)).Error
}

var (
	_ pricing.OfferRepository    = (*GormOfferRepository)(nil)
	_ pricing.SettingsRepository = (*GormSettingsRepository)(nil)
)
