package order

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestOrder(t *testing.T) *Order {
	o, err := NewOrder(PlatformShopee, "220101ABCDEF", StatusNew, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	o.SubtotalAmount = decimal.NewFromInt(500)
	o.ShippingFee = decimal.NewFromInt(40)
	o.SellerDiscountAmount = decimal.NewFromInt(20)
	o.PlatformDiscountAmount = decimal.NewFromInt(30)
	o.TotalAmount = decimal.NewFromInt(490)
	return o
}

func testLine(t *testing.T, sku string, qty int64) Line {
	line, err := NewLine(sku, "Test Product", decimal.NewFromInt(qty), decimal.NewFromInt(100), decimal.NewFromInt(10), DiscountSourceSeller)
	require.NoError(t, err)
	return *line
}

func TestNewOrder(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		o, err := NewOrder(PlatformLazada, "ORD-1", StatusPaid, time.Now())
		require.NoError(t, err)
		assert.Equal(t, PlatformLazada, o.Platform)
		assert.Equal(t, StatusPaid, o.Status)
		assert.NotZero(t, o.ID)
	})

	t.Run("invalid platform", func(t *testing.T) {
		_, err := NewOrder(Platform("EBAY"), "ORD-1", StatusNew, time.Now())
		assert.Error(t, err)
	})

	t.Run("missing platform order id", func(t *testing.T) {
		_, err := NewOrder(PlatformShopee, "", StatusNew, time.Now())
		assert.Error(t, err)
	})

	t.Run("zero ordered-at", func(t *testing.T) {
		_, err := NewOrder(PlatformShopee, "ORD-1", StatusNew, time.Time{})
		assert.Error(t, err)
	})
}

func TestNewLine(t *testing.T) {
	t.Run("computes line total", func(t *testing.T) {
		line, err := NewLine("SKU-1", "Widget", decimal.NewFromInt(3), decimal.NewFromInt(100), decimal.NewFromInt(15), DiscountSourcePlatform)
		require.NoError(t, err)
		assert.True(t, line.LineTotal.Equal(decimal.NewFromInt(285)))
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		_, err := NewLine("SKU-1", "Widget", decimal.Zero, decimal.NewFromInt(100), decimal.Zero, "")
		assert.Error(t, err)
	})

	t.Run("rejects negative discount", func(t *testing.T) {
		_, err := NewLine("SKU-1", "Widget", decimal.NewFromInt(1), decimal.NewFromInt(100), decimal.NewFromInt(-1), "")
		assert.Error(t, err)
	})
}

func TestOrder_ValidateAmounts(t *testing.T) {
	t.Run("balanced", func(t *testing.T) {
		o := createTestOrder(t)
		assert.NoError(t, o.ValidateAmounts())
	})

	t.Run("within tolerance", func(t *testing.T) {
		o := createTestOrder(t)
		o.TotalAmount = decimal.NewFromFloat(490.01)
		assert.NoError(t, o.ValidateAmounts())
	})

	t.Run("beyond tolerance", func(t *testing.T) {
		o := createTestOrder(t)
		o.TotalAmount = decimal.NewFromFloat(490.02)
		assert.Error(t, o.ValidateAmounts())
	})

	t.Run("negative field", func(t *testing.T) {
		o := createTestOrder(t)
		o.ShippingFee = decimal.NewFromInt(-1)
		assert.Error(t, o.ValidateAmounts())
	})
}

func TestOrder_MergeFrom(t *testing.T) {
	base := func(t *testing.T) (*Order, *Order) {
		existing := createTestOrder(t)
		existing.BuyerName = "Alice"
		paid := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
		existing.PaidAt = &paid
		existing.SetLines([]Line{testLine(t, "SKU-1", 2)})

		incoming := createTestOrder(t)
		incoming.SetLines([]Line{testLine(t, "SKU-1", 2), testLine(t, "SKU-2", 1)})
		return existing, incoming
	}

	t.Run("replaces line set atomically", func(t *testing.T) {
		existing, incoming := base(t)
		require.NoError(t, existing.MergeFrom(incoming))
		assert.Len(t, existing.Lines, 2)
		for _, line := range existing.Lines {
			assert.Equal(t, existing.ID, line.OrderID)
		}
	})

	t.Run("never regresses a set timestamp", func(t *testing.T) {
		existing, incoming := base(t)
		earlier := existing.PaidAt.Add(-time.Hour)
		incoming.PaidAt = &earlier
		require.NoError(t, existing.MergeFrom(incoming))
		assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), *existing.PaidAt)
	})

	t.Run("advances a timestamp", func(t *testing.T) {
		existing, incoming := base(t)
		later := existing.PaidAt.Add(time.Hour)
		incoming.PaidAt = &later
		require.NoError(t, existing.MergeFrom(incoming))
		assert.True(t, existing.PaidAt.Equal(later))
	})

	t.Run("snapshot immutable, gaps filled", func(t *testing.T) {
		existing, incoming := base(t)
		incoming.BuyerName = "Mallory"
		incoming.ReceiverName = "Bob"
		require.NoError(t, existing.MergeFrom(incoming))
		assert.Equal(t, "Alice", existing.BuyerName)
		assert.Equal(t, "Bob", existing.ReceiverName)
	})

	t.Run("does not touch status", func(t *testing.T) {
		existing, incoming := base(t)
		existing.Status = StatusPaid
		incoming.Status = StatusShipped
		require.NoError(t, existing.MergeFrom(incoming))
		assert.Equal(t, StatusPaid, existing.Status)
	})

	t.Run("rejects key mismatch", func(t *testing.T) {
		existing, incoming := base(t)
		incoming.PlatformOrderID = "OTHER"
		assert.Error(t, existing.MergeFrom(incoming))
	})

	t.Run("rejects unbalanced incoming amounts", func(t *testing.T) {
		existing, incoming := base(t)
		incoming.TotalAmount = decimal.NewFromInt(9999)
		assert.Error(t, existing.MergeFrom(incoming))
	})

	t.Run("merge is idempotent", func(t *testing.T) {
		existing, incoming := base(t)
		require.NoError(t, existing.MergeFrom(incoming))
		linesAfterFirst := len(existing.Lines)
		paidAfterFirst := existing.PaidAt

		require.NoError(t, existing.MergeFrom(incoming))
		assert.Equal(t, linesAfterFirst, len(existing.Lines))
		assert.Equal(t, paidAfterFirst, existing.PaidAt)
	})
}
