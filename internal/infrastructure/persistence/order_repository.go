package persistence

import (
	"context"
	"errors"

	"github.com/Memoya/simfly.me-sub000/internal/domain/fulfillment"
	"github.com/Memoya/simfly.me-sub000/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOrderRepository implements fulfillment.OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// CreateIfAbsent inserts the order, its items and its sync record in one
// transaction. A conflicting session_id inserts nothing and returns false.
func (r *GormOrderRepository) CreateIfAbsent(ctx context.Context, order *fulfillment.Order) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}},
				DoNothing: true,
			}).
			Create(models.OrderModelFromDomain(order))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		items := make([]*models.OrderItemModel, 0, len(order.Items))
		for i := range order.Items {
			items = append(items, models.OrderItemModelFromDomain(&order.Items[i]))
		}
		if len(items) > 0 {
			if err := tx.CreateInBatches(items, 100).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(models.ProviderSyncModelFromDomain(&order.Sync)).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// FindByID loads the order with items in position order
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindBySessionID loads the order created for a payment session
func (r *GormOrderRepository) FindBySessionID(ctx context.Context, sessionID string) (*fulfillment.Order, error) {
	return r.findOne(ctx, "session_id = ?", sessionID)
}

func (r *GormOrderRepository) findOne(ctx context.Context, query string, arg any) (*fulfillment.Order, error) {
	var model models.OrderModel
	err := r.preload(r.db.WithContext(ctx)).Where(query, arg).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fulfillment.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func (r *GormOrderRepository) preload(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Sync")
}

// SaveItem writes every column of one item
func (r *GormOrderRepository) SaveItem(ctx context.Context, item *fulfillment.OrderItem) error {
	result := r.db.WithContext(ctx).
		Model(&models.OrderItemModel{}).
		Where("id = ?", item.ID).
		Select("*").Omit("id", "order_id").
		Updates(models.OrderItemModelFromDomain(item))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fulfillment.ErrOrderNotFound
	}
	return nil
}

// SaveAggregate persists the order status and its ProviderSync record
func (r *GormOrderRepository) SaveAggregate(ctx context.Context, order *fulfillment.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.OrderModel{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{
				"status":     order.Status,
				"updated_at": order.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fulfillment.ErrOrderNotFound
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			UpdateAll: true,
		}).Create(models.ProviderSyncModelFromDomain(&order.Sync)).Error
	})
}

// ListBySyncStatus returns the newest orders in the given aggregate state
func (r *GormOrderRepository) ListBySyncStatus(ctx context.Context, status fulfillment.SyncStatus, limit int) ([]fulfillment.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.OrderModel
	err := r.preload(r.db.WithContext(ctx)).
		Joins("JOIN provider_syncs ps ON ps.order_id = orders.id").
		Where("ps.sync_status = ?", status).
		Order("orders.created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]fulfillment.Order, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].ToDomain())
	}
	return out, nil
}

var _ fulfillment.OrderRepository = (*GormOrderRepository)(nil)
