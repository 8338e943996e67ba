package stock

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
)

// Direction indicates whether a movement adds to or removes from stock
type Direction string

const (
	// DirectionIn adds stock to a warehouse
	DirectionIn Direction = "IN"
	// DirectionOut removes stock from a warehouse
	DirectionOut Direction = "OUT"
)

// IsValid returns true if the direction is known
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Cause names the lifecycle event that produced a movement set
type Cause string

const (
	// CauseDispatch is the OUT movement set emitted when an order ships
	CauseDispatch Cause = "DISPATCH"
	// CauseReturn is the IN movement set emitted when an order comes back
	CauseReturn Cause = "RETURN"
)

// IsValid returns true if the cause is known
func (c Cause) IsValid() bool {
	return c == CauseDispatch || c == CauseReturn
}

// DirectionFor returns the movement direction a cause implies
func (c Cause) DirectionFor() Direction {
	if c == CauseReturn {
		return DirectionIn
	}
	return DirectionOut
}

// Movement is an immutable, append-only stock fact. Once created it is never
// updated or deleted; corrections are compensating movements issued by the
// integrating system, not edits.
type Movement struct {
	shared.BaseEntity
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;index:idx_movements_wh_sku,priority:1"`
	SKU         string    `gorm:"type:varchar(64);not null;index:idx_movements_wh_sku,priority:2"`
	// ProductID is filled when the SKU resolved against product master data
	ProductID *uuid.UUID      `gorm:"type:uuid;index"`
	Direction Direction       `gorm:"type:varchar(3);not null"`
	Quantity  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	// OrderID references the canonical order that caused this movement
	OrderID    uuid.UUID `gorm:"type:uuid;not null;index:idx_movements_order_cause,priority:1"`
	Cause      Cause     `gorm:"type:varchar(16);not null;index:idx_movements_order_cause,priority:2"`
	OccurredAt time.Time `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (Movement) TableName() string {
	return "stock_movements"
}

// NewMovement creates one immutable stock movement
func NewMovement(warehouseID uuid.UUID, sku string, productID *uuid.UUID, cause Cause, quantity decimal.Decimal, orderID uuid.UUID, occurredAt time.Time) (*Movement, error) {
	if warehouseID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_WAREHOUSE", "Warehouse ID cannot be empty")
	}
	if sku == "" {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU cannot be empty")
	}
	if !cause.IsValid() {
		return nil, shared.NewDomainError("INVALID_CAUSE", "Unknown movement cause")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if orderID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_ORDER_REF", "Order reference cannot be empty")
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return &Movement{
		BaseEntity:  shared.NewBaseEntity(),
		WarehouseID: warehouseID,
		SKU:         sku,
		ProductID:   productID,
		Direction:   cause.DirectionFor(),
		Quantity:    quantity,
		OrderID:     orderID,
		Cause:       cause,
		OccurredAt:  occurredAt.UTC(),
	}, nil
}

// SetFromOrder builds the complete movement set one lifecycle event owes:
// one movement per order line, all sharing the same (order, cause) reference.
func SetFromOrder(o *order.Order, cause Cause, warehouseID uuid.UUID, occurredAt time.Time) ([]*Movement, error) {
	if len(o.Lines) == 0 {
		return nil, shared.NewDomainError("NO_LINES", "Order has no lines to move stock for")
	}
	movements := make([]*Movement, 0, len(o.Lines))
	for _, line := range o.Lines {
		m, err := NewMovement(warehouseID, line.SKU, line.ProductID, cause, line.Quantity, o.ID, occurredAt)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, nil
}
