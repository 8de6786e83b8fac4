package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/Memoya/simfly.me-sub000/internal/domain/provider"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormProviderRepository implements provider.ProviderRepository using GORM
type GormProviderRepository struct {
	db *gorm.DB
}

// NewGormProviderRepository creates a new GormProviderRepository
func NewGormProviderRepository(db *gorm.DB) *GormProviderRepository {
	return &GormProviderRepository{db: db}
}

// EnsureAndTouch inserts seed when the slug is unknown and stamps last_sync.
// Existing priority, score and activation state are left untouched.
func (r *GormProviderRepository) EnsureAndTouch(ctx context.Context, seed *provider.Provider, now time.Time) (*provider.Provider, error) {
	model := models.ProviderModelFromDomain(seed)
	model.LastSync = &now
	model.CreatedAt = now
	model.UpdatedAt = now

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "slug"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_sync":  now,
				"updated_at": now,
			}),
		}).
		Create(model).Error
	if err != nil {
		return nil, err
	}
	return r.FindBySlug(ctx, seed.Slug)
}

// FindBySlug returns provider.ErrProviderNotFound for unknown slugs
func (r *GormProviderRepository) FindBySlug(ctx context.Context, slug string) (*provider.Provider, error) {
	var model models.ProviderModel
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, provider.ErrProviderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns every provider ordered by priority
func (r *GormProviderRepository) FindAll(ctx context.Context) ([]provider.Provider, error) {
	return r.find(ctx, r.db.WithContext(ctx))
}

// FindActive returns active providers ordered by priority
func (r *GormProviderRepository) FindActive(ctx context.Context) ([]provider.Provider, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("is_active = ?", true))
}

func (r *GormProviderRepository) find(_ context.Context, q *gorm.DB) ([]provider.Provider, error) {
	var rows []models.ProviderModel
	if err := q.Order("priority DESC").Order("slug ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]provider.Provider, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

// RecordSyncFailure lowers the score by step, clamped at zero, in a single
// UPDATE so concurrent failures never lose a decrement.
func (r *GormProviderRepository) RecordSyncFailure(ctx context.Context, slug string, step float64, errMsg string) (*provider.Provider, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ProviderModel{}).
		Where("slug = ?", slug).
		Updates(map[string]any{
			"reliability_score": gorm.Expr("CASE WHEN reliability_score - ? < 0 THEN 0 ELSE reliability_score - ? END", step, step),
			"failed_orders":     gorm.Expr("failed_orders + 1"),
			"last_error":        errMsg,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, provider.ErrProviderNotFound
	}
	return r.FindBySlug(ctx, slug)
}

// RecordSyncSuccess clears last_error
func (r *GormProviderRepository) RecordSyncSuccess(ctx context.Context, slug string) error {
	return r.update(ctx, slug, map[string]any{"last_error": ""})
}

// DeactivateIfBelow flips is_active only for an active provider under bound.
// RowsAffected tells the caller whether it won the transition, which keeps the
// critical alert to a single send.
func (r *GormProviderRepository) DeactivateIfBelow(ctx context.Context, slug string, bound float64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.ProviderModel{}).
		Where("slug = ? AND is_active = ? AND reliability_score < ?", slug, true, bound).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementFailedOrders records one failed order attempt
func (r *GormProviderRepository) IncrementFailedOrders(ctx context.Context, slug string) error {
	return r.update(ctx, slug, map[string]any{"failed_orders": gorm.Expr("failed_orders + 1")})
}

// UpdateBalance stores the most recent wholesale balance
func (r *GormProviderRepository) UpdateBalance(ctx context.Context, slug string, balance decimal.Decimal, currency string, at time.Time) error {
	return r.update(ctx, slug, map[string]any{
		"balance":            balance,
		"balance_currency":   currency,
		"balance_checked_at": at,
	})
}

// SetActive is the admin override. Re-activation also resets the score.
func (r *GormProviderRepository) SetActive(ctx context.Context, slug string, active bool) error {
	fields := map[string]any{"is_active": active}
	if active {
		fields["reliability_score"] = provider.InitialReliability
		fields["last_error"] = ""
	}
	return r.update(ctx, slug, fields)
}

func (r *GormProviderRepository) update(ctx context.Context, slug string, fields map[string]any) error {
	fields["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.ProviderModel{}).
		Where("slug = ?", slug).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return provider.ErrProviderNotFound
	}
	return nil
}

var _ provider.ProviderRepository = (*GormProviderRepository)(nil)
