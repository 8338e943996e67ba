package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
)

// uniqueViolation is the postgres error code for unique constraint violations
const uniqueViolation = "23505"

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID finds an order by its internal identity, lines included
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).Preload("Lines").First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// FindByPlatformKey finds an order by its natural key, lines included
func (r *GormOrderRepository) FindByPlatformKey(ctx context.Context, platform order.Platform, platformOrderID string) (*order.Order, error) {
	var o order.Order
	if err := r.db.WithContext(ctx).
		Preload("Lines").
		Where("platform = ? AND platform_order_id = ?", platform, platformOrderID).
		First(&o).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

// Create inserts a new order with its lines in one transaction. A concurrent
// insert of the same natural key surfaces shared.ErrAlreadyExists so the
// caller can re-fetch and merge instead.
func (r *GormOrderRepository) Create(ctx context.Context, o *order.Order) error {
	if err := o.ValidateAmounts(); err != nil {
		return err
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(o).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update persists a merged order and replaces its line set atomically
func (r *GormOrderRepository) Update(ctx context.Context, o *order.Order) error {
	if err := o.ValidateAmounts(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", o.ID).Delete(&order.Line{}).Error; err != nil {
			return err
		}
		if err := tx.Omit("Lines").Save(o).Error; err != nil {
			return err
		}
		if len(o.Lines) == 0 {
			return nil
		}
		return tx.Create(&o.Lines).Error
	})
}

// List returns orders matching the filter with a total count
func (r *GormOrderRepository) List(ctx context.Context, filter shared.Filter) ([]order.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&order.Order{})

	if platform, ok := filter.Filters["platform"]; ok {
		query = query.Where("platform = ?", platform)
	}
	if status, ok := filter.Filters["status"]; ok {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []order.Order
	if err := applyFilter(query, filter, OrderSortFields).Preload("Lines").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// PendingDispatchQuantities sums line quantities per SKU over orders that are
// paid for but not yet dispatched
func (r *GormOrderRepository) PendingDispatchQuantities(ctx context.Context) (map[string]decimal.Decimal, error) {
	type row struct {
		SKU      string
		Quantity decimal.Decimal
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&order.Line{}).
		Select("order_lines.sku AS sku, SUM(order_lines.quantity) AS quantity").
		Joins("JOIN orders ON orders.id = order_lines.order_id").
		Where("orders.status IN ?", []order.Status{order.StatusPaid, order.StatusPacking}).
		Group("order_lines.sku").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.SKU] = r.Quantity
	}
	return out, nil
}

// isUniqueViolation detects a postgres unique constraint violation. SQLite,
// used by the repository tests, reports the violation through its own error
// string, so both are recognized.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// applyFilter applies pagination and ordering from a shared.Filter. The sort
// column is checked against allowedFields before it enters the ORDER BY.
func applyFilter(query *gorm.DB, filter shared.Filter, allowedFields map[string]bool) *gorm.DB {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	orderBy := ValidateSortField(filter.OrderBy, allowedFields, "created_at")
	dir := ValidateSortOrder(filter.OrderDir)
	return query.
		Order(orderBy + " " + dir).
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize)
}

// Ensure GormOrderRepository implements the repository interface
var _ order.Repository = (*GormOrderRepository)(nil)
