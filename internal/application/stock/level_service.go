package stock

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/stock"
)

// LevelService answers outward stock queries from the movement ledger. On-hand
// is the net of booked movements; reserved is what paid but undispatched
// orders will take once they ship.
type LevelService struct {
	movements stock.MovementRepository
	orders    order.Repository
	logger    *zap.Logger
}

// NewLevelService creates a new LevelService
func NewLevelService(movements stock.MovementRepository, orders order.Repository, logger *zap.Logger) *LevelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LevelService{
		movements: movements,
		orders:    orders,
		logger:    logger,
	}
}

// Levels returns current stock levels, optionally scoped to one warehouse.
// Available is on-hand minus reserved and may go negative when oversold.
func (s *LevelService) Levels(ctx context.Context, warehouseID *uuid.UUID) ([]stock.Level, error) {
	levels, err := s.movements.ListLevels(ctx, warehouseID)
	if err != nil {
		return nil, err
	}

	reserved, err := s.orders.PendingDispatchQuantities(ctx)
	if err != nil {
		return nil, err
	}

	for i := range levels {
		if qty, ok := reserved[levels[i].SKU]; ok {
			levels[i].Reserved = qty
		}
		levels[i].Available = levels[i].OnHand.Sub(levels[i].Reserved)
	}

	sort.Slice(levels, func(i, j int) bool {
		if levels[i].WarehouseID != levels[j].WarehouseID {
			return levels[i].WarehouseID.String() < levels[j].WarehouseID.String()
		}
		return levels[i].SKU < levels[j].SKU
	})
	return levels, nil
}

// OrderMovements returns every movement an order has booked, for audit views
func (s *LevelService) OrderMovements(ctx context.Context, orderID uuid.UUID) ([]stock.Movement, error) {
	return s.movements.FindByOrder(ctx, orderID)
}
