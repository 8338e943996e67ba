package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/shared"
)

// ErrDuplicateMovement signals that a movement set for the same (order, cause)
// already exists. The guard firing is expected behavior under the two-channel
// feed, logged at debug level, not an error condition for callers.
var ErrDuplicateMovement = shared.NewDomainError("DUPLICATE_MOVEMENT",
	"A movement set for this order and cause already exists")

// Level is the read-only aggregation of movements per product+warehouse
type Level struct {
	WarehouseID uuid.UUID       `json:"warehouse_id"`
	SKU         string          `json:"sku"`
	OnHand      decimal.Decimal `json:"on_hand"`
	Reserved    decimal.Decimal `json:"reserved"`
	Available   decimal.Decimal `json:"available"`
}

// MovementRepository is the append-only persistence boundary for stock
// movements. Movements are never updated or deleted.
type MovementRepository interface {
	// AppendSet inserts a complete movement set atomically. If any movement
	// with the same (order, cause) reference already exists, nothing is
	// inserted and ErrDuplicateMovement is returned. The existence check and
	// the insert run in one transaction so two concurrent emitters cannot
	// both pass the guard.
	AppendSet(ctx context.Context, movements []*Movement) error

	// ExistsForCause reports whether a movement set referencing the order and
	// cause exists
	ExistsForCause(ctx context.Context, orderID uuid.UUID, cause Cause) (bool, error)

	// FindByOrder returns all movements referencing an order
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]Movement, error)

	// SumByDirection aggregates quantities per warehouse+SKU up to a point in
	// time, feeding the outward stock query interface
	SumByDirection(ctx context.Context, warehouseID uuid.UUID, sku string, direction Direction, until time.Time) (decimal.Decimal, error)

	// ListLevels aggregates on-hand quantities for all warehouse+SKU pairs
	// that have at least one movement
	ListLevels(ctx context.Context, warehouseID *uuid.UUID) ([]Level, error)
}

// MovementRetryRepository persists queued movement emissions awaiting repair
type MovementRetryRepository interface {
	// Enqueue records a failed emission; re-enqueueing an existing unresolved
	// (order, cause) pair is a no-op
	Enqueue(ctx context.Context, retry *MovementRetry) error

	// FindDue returns unresolved retries whose next attempt time has passed
	FindDue(ctx context.Context, now time.Time, limit int) ([]MovementRetry, error)

	// Update persists attempt bookkeeping or resolution
	Update(ctx context.Context, retry *MovementRetry) error
}
