package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/stock"
)

// GormMovementRepository implements stock.MovementRepository using GORM.
// The table is append-only; no update or delete path exists.
type GormMovementRepository struct {
	db *gorm.DB
}

// NewGormMovementRepository creates a new GormMovementRepository
func NewGormMovementRepository(db *gorm.DB) *GormMovementRepository {
	return &GormMovementRepository{db: db}
}

// AppendSet inserts a complete movement set atomically. The duplicate check
// and the insert share one transaction so two concurrent emitters cannot
// both pass the guard; the loser surfaces stock.ErrDuplicateMovement.
func (r *GormMovementRepository) AppendSet(ctx context.Context, movements []*stock.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	orderID := movements[0].OrderID
	cause := movements[0].Cause

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&stock.Movement{}).
			Where("order_id = ? AND cause = ?", orderID, cause).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return stock.ErrDuplicateMovement
		}
		return tx.Create(movements).Error
	})
}

// ExistsForCause reports whether a movement set referencing the order and
// cause exists
func (r *GormMovementRepository) ExistsForCause(ctx context.Context, orderID uuid.UUID, cause stock.Cause) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&stock.Movement{}).
		Where("order_id = ? AND cause = ?", orderID, cause).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByOrder returns all movements referencing an order, oldest first
func (r *GormMovementRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]stock.Movement, error) {
	var movements []stock.Movement
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("occurred_at asc").
		Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// SumByDirection aggregates quantities per warehouse+SKU up to a point in time
func (r *GormMovementRepository) SumByDirection(ctx context.Context, warehouseID uuid.UUID, sku string, direction stock.Direction, until time.Time) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	err := r.db.WithContext(ctx).Model(&stock.Movement{}).
		Select("COALESCE(SUM(quantity), 0) AS total").
		Where("warehouse_id = ? AND sku = ? AND direction = ? AND occurred_at <= ?",
			warehouseID, sku, direction, until).
		Scan(&result).Error
	if err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// ListLevels aggregates net on-hand per warehouse+SKU pair across the whole
// movement history. Reserved and available are layered on top by the stock
// service from order state; the repository only knows movements.
func (r *GormMovementRepository) ListLevels(ctx context.Context, warehouseID *uuid.UUID) ([]stock.Level, error) {
	type row struct {
		WarehouseID uuid.UUID
		SKU         string
		OnHand      decimal.Decimal
	}

	query := r.db.WithContext(ctx).Model(&stock.Movement{}).
		Select(`warehouse_id, sku,
			COALESCE(SUM(CASE WHEN direction = ? THEN quantity ELSE -quantity END), 0) AS on_hand`,
			stock.DirectionIn).
		Group("warehouse_id, sku").
		Order("warehouse_id, sku")
	if warehouseID != nil {
		query = query.Where("warehouse_id = ?", *warehouseID)
	}

	var rows []row
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	levels := make([]stock.Level, 0, len(rows))
	for _, r := range rows {
		levels = append(levels, stock.Level{
			WarehouseID: r.WarehouseID,
			SKU:         r.SKU,
			OnHand:      r.OnHand,
			Available:   r.OnHand,
		})
	}
	return levels, nil
}

// Ensure GormMovementRepository implements the repository interface
var _ stock.MovementRepository = (*GormMovementRepository)(nil)
