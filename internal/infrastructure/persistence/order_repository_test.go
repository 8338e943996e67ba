package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/stock"
	"github.com/ordersync/backend/internal/domain/sync"
)

// setupTestDB creates an in-memory SQLite database with the full schema
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&order.Order{}, &order.Line{},
		&stock.Movement{}, &stock.MovementRetry{},
		&sync.Job{}, &sync.Lease{}, &sync.WebhookEvent{},
	)
	require.NoError(t, err)
	return db
}

func buildTestOrder(t *testing.T, platformOrderID string) *order.Order {
	t.Helper()
	o, err := order.NewOrder(order.PlatformShopee, platformOrderID, order.StatusPaid,
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	line, err := order.NewLine("SKU-1", "Widget", decimal.NewFromInt(2),
		decimal.NewFromInt(250), decimal.Zero, "")
	require.NoError(t, err)
	o.SetLines([]order.Line{*line})

	o.SubtotalAmount = decimal.NewFromInt(500)
	o.ShippingFee = decimal.NewFromInt(40)
	o.SellerDiscountAmount = decimal.NewFromInt(20)
	o.PlatformDiscountAmount = decimal.NewFromInt(30)
	o.TotalAmount = decimal.NewFromInt(490)
	return o
}

func TestGormOrderRepository_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()

	o := buildTestOrder(t, "220301AAA")
	require.NoError(t, repo.Create(ctx, o))

	t.Run("find by id preloads lines", func(t *testing.T) {
		found, err := repo.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, o.PlatformOrderID, found.PlatformOrderID)
		require.Len(t, found.Lines, 1)
		assert.Equal(t, "SKU-1", found.Lines[0].SKU)
	})

	t.Run("find by platform key", func(t *testing.T) {
		found, err := repo.FindByPlatformKey(ctx, order.PlatformShopee, "220301AAA")
		require.NoError(t, err)
		assert.Equal(t, o.ID, found.ID)
	})

	t.Run("missing order surfaces not found", func(t *testing.T) {
		_, err := repo.FindByPlatformKey(ctx, order.PlatformLazada, "does-not-exist")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("duplicate natural key surfaces already exists", func(t *testing.T) {
		dup := buildTestOrder(t, "220301AAA")
		err := repo.Create(ctx, dup)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("invalid amounts rejected before write", func(t *testing.T) {
		bad := buildTestOrder(t, "220301BAD")
		bad.TotalAmount = decimal.NewFromInt(1)
		assert.Error(t, repo.Create(ctx, bad))
	})
}

func TestGormOrderRepository_Update(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()

	o := buildTestOrder(t, "220301AAA")
	require.NoError(t, repo.Create(ctx, o))

	t.Run("replaces line set atomically", func(t *testing.T) {
		l1, err := order.NewLine("SKU-2", "Gadget", decimal.NewFromInt(1),
			decimal.NewFromInt(300), decimal.Zero, "")
		require.NoError(t, err)
		l2, err := order.NewLine("SKU-3", "Gizmo", decimal.NewFromInt(1),
			decimal.NewFromInt(200), decimal.Zero, "")
		require.NoError(t, err)
		o.SetLines([]order.Line{*l1, *l2})
		require.NoError(t, repo.Update(ctx, o))

		found, err := repo.FindByID(ctx, o.ID)
		require.NoError(t, err)
		require.Len(t, found.Lines, 2)

		var count int64
		require.NoError(t, db.Model(&order.Line{}).Where("order_id = ?", o.ID).Count(&count).Error)
		assert.Equal(t, int64(2), count)
	})

	t.Run("persists status and event time", func(t *testing.T) {
		_, err := o.ApplyStatus(order.StatusShipped, "SHIPPED",
			time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.NoError(t, repo.Update(ctx, o))

		found, err := repo.FindByID(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusShipped, found.Status)
		require.NotNil(t, found.ShippedAt)
	})
}

func TestGormOrderRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormOrderRepository(db)
	ctx := context.Background()

	for _, id := range []string{"A1", "A2", "A3"} {
		require.NoError(t, repo.Create(ctx, buildTestOrder(t, id)))
	}
	lz, err := order.NewOrder(order.PlatformLazada, "L1", order.StatusNew,
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, lz))

	t.Run("filters by platform", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.Filters["platform"] = order.PlatformShopee
		orders, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, orders, 3)
	})

	t.Run("paginates", func(t *testing.T) {
		filter := shared.DefaultFilter()
		filter.PageSize = 2
		orders, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Len(t, orders, 2)
	})
}
