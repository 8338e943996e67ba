package order

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/shared"
)

// Repository is the persistence boundary for canonical orders and their lines.
// Implementations must treat Create/Update of one order plus its line set as a
// single atomic write.
type Repository interface {
	// FindByID finds an order by its internal identity
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByPlatformKey finds an order by its natural key
	FindByPlatformKey(ctx context.Context, platform Platform, platformOrderID string) (*Order, error)

	// Create inserts a new order with its lines. A concurrent insert of the
	// same natural key surfaces shared.ErrAlreadyExists so the caller can
	// re-fetch and merge instead.
	Create(ctx context.Context, o *Order) error

	// Update persists a merged order and replaces its line set atomically
	Update(ctx context.Context, o *Order) error

	// List returns orders matching the filter with a total count
	List(ctx context.Context, filter shared.Filter) ([]Order, int64, error)

	// PendingDispatchQuantities sums line quantities per SKU over orders that
	// are paid for but not yet dispatched. The result backs the reserved
	// column of stock level reads.
	PendingDispatchQuantities(ctx context.Context) (map[string]decimal.Decimal, error)
}
