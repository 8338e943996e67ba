package marketplace

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/sync"
)

func shopeeOrderRecord(t *testing.T, o ShopeeOrder) sync.RawRecord {
	t.Helper()
	payload, err := json.Marshal(o)
	require.NoError(t, err)
	return sync.RawRecord{
		Platform:        order.PlatformShopee,
		PlatformOrderID: o.OrderSN,
		EventAt:         time.Unix(o.UpdateTime, 0).UTC(),
		Kind:            sync.RecordKindOrder,
		Payload:         payload,
	}
}

func completeShopeeOrder() ShopeeOrder {
	return ShopeeOrder{
		OrderSN:              "220301AAA",
		OrderStatus:          "READY_TO_SHIP",
		Currency:             "THB",
		CreateTime:           1709200000,
		UpdateTime:           1709300000,
		PayTime:              1709250000,
		TotalAmount:          "490.00",
		ActualShippingFee:    "40.00",
		SellerDiscount:       "20.00",
		ShopeeDiscount:       "30.00",
		BuyerUsername:        "somchai_p",
		RecipientAddress: &ShopeeAddress{
			Name:        "Somchai P.",
			Phone:       "0812345678",
			FullAddress: "99/1 Sukhumvit Rd, Bangkok",
			Zipcode:     "10110",
		},
		ItemList: []ShopeeOrderItem{
			{ItemSKU: "SKU-1", ItemName: "Widget", ModelQuantityPurchased: 2, ModelOriginalPrice: "150.00", ModelDiscountedPrice: "150.00"},
			{ItemSKU: "SKU-2", ItemName: "Gadget", ModelQuantityPurchased: 1, ModelOriginalPrice: "200.00", ModelDiscountedPrice: "200.00"},
		},
	}
}

func TestShopeeNormalizer_Normalize(t *testing.T) {
	n := NewShopeeNormalizer()

	t.Run("complete order", func(t *testing.T) {
		result, err := n.Normalize(shopeeOrderRecord(t, completeShopeeOrder()))
		require.NoError(t, err)
		require.NotNil(t, result.Order)
		assert.Empty(t, result.Warnings)
		assert.False(t, result.StatusOnly)

		o := result.Order
		assert.Equal(t, order.PlatformShopee, o.Platform)
		assert.Equal(t, "220301AAA", o.PlatformOrderID)
		assert.Equal(t, order.StatusPaid, o.Status)
		assert.Equal(t, "READY_TO_SHIP", o.RawStatus)
		assert.Equal(t, "THB", o.Currency)

		assert.Equal(t, time.Unix(1709200000, 0).UTC(), o.OrderedAt)
		assert.Equal(t, time.Unix(1709300000, 0).UTC(), o.LastEventAt)
		require.NotNil(t, o.PaidAt)
		assert.Equal(t, time.Unix(1709250000, 0).UTC(), *o.PaidAt)

		// subtotal 500 + shipping 40 - 20 - 30 = 490
		assert.True(t, o.SubtotalAmount.Equal(decimal.NewFromInt(500)))
		assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(490)))
		assert.NoError(t, o.ValidateAmounts())

		require.Len(t, o.Lines, 2)
		assert.Equal(t, "SKU-1", o.Lines[0].SKU)
		assert.True(t, o.Lines[0].LineTotal.Equal(decimal.NewFromInt(300)))

		assert.Equal(t, "Somchai P.", o.ReceiverName)
		assert.Equal(t, "10110", o.ReceiverZip)
		assert.NotEmpty(t, o.RawPayload)
	})

	t.Run("line discount from price spread", func(t *testing.T) {
		raw := completeShopeeOrder()
		raw.ItemList = []ShopeeOrderItem{
			{ItemSKU: "SKU-1", ItemName: "Widget", ModelQuantityPurchased: 2, ModelOriginalPrice: "150.00", ModelDiscountedPrice: "120.00"},
		}
		raw.TotalAmount = "230.00" // 240 + 40 - 20 - 30
		result, err := n.Normalize(shopeeOrderRecord(t, raw))
		require.NoError(t, err)

		line := result.Order.Lines[0]
		assert.True(t, line.Discount.Equal(decimal.NewFromInt(60)))
		assert.Equal(t, order.DiscountSourcePromotion, line.DiscountSource)
		assert.True(t, line.LineTotal.Equal(decimal.NewFromInt(240)))
	})

	t.Run("model sku preferred over item sku", func(t *testing.T) {
		raw := completeShopeeOrder()
		raw.ItemList[0].ModelSKU = "SKU-1-RED"
		result, err := n.Normalize(shopeeOrderRecord(t, raw))
		require.NoError(t, err)
		assert.Equal(t, "SKU-1-RED", result.Order.Lines[0].SKU)
	})

	t.Run("unmapped status held as UNKNOWN with warning", func(t *testing.T) {
		raw := completeShopeeOrder()
		raw.OrderStatus = "SOME_NEW_STATE"
		result, err := n.Normalize(shopeeOrderRecord(t, raw))
		require.NoError(t, err)
		assert.Equal(t, order.StatusUnknown, result.Order.Status)
		require.Len(t, result.Warnings, 1)
		assert.Contains(t, result.Warnings[0], "SOME_NEW_STATE")
	})

	t.Run("total mismatch warned not corrected", func(t *testing.T) {
		raw := completeShopeeOrder()
		raw.TotalAmount = "480.00"
		result, err := n.Normalize(shopeeOrderRecord(t, raw))
		require.NoError(t, err)
		assert.True(t, result.Order.TotalAmount.Equal(decimal.NewFromInt(480)))
		require.NotEmpty(t, result.Warnings)
		assert.Contains(t, result.Warnings[0], "differs from computed")
	})

	t.Run("missing order_sn is malformed", func(t *testing.T) {
		raw := completeShopeeOrder()
		raw.OrderSN = ""
		_, err := n.Normalize(shopeeOrderRecord(t, raw))
		assert.ErrorIs(t, err, sync.ErrMalformedRecord)
	})

	t.Run("missing create_time is malformed", func(t *testing.T) {
		raw := completeShopeeOrder()
		raw.CreateTime = 0
		_, err := n.Normalize(shopeeOrderRecord(t, raw))
		assert.ErrorIs(t, err, sync.ErrMalformedRecord)
	})

	t.Run("item without sku is malformed", func(t *testing.T) {
		raw := completeShopeeOrder()
		raw.ItemList[0].ItemSKU = ""
		_, err := n.Normalize(shopeeOrderRecord(t, raw))
		assert.ErrorIs(t, err, sync.ErrMalformedRecord)
	})

	t.Run("garbage payload is malformed", func(t *testing.T) {
		_, err := n.Normalize(sync.RawRecord{
			Platform: order.PlatformShopee,
			Kind:     sync.RecordKindOrder,
			Payload:  json.RawMessage(`{"order_sn": 42`),
		})
		assert.ErrorIs(t, err, sync.ErrMalformedRecord)
	})
}

func TestShopeeNormalizer_NormalizeReturn(t *testing.T) {
	n := NewShopeeNormalizer()

	record := func(t *testing.T, ret ShopeeReturn) sync.RawRecord {
		t.Helper()
		payload, err := json.Marshal(ret)
		require.NoError(t, err)
		return sync.RawRecord{
			Platform:        order.PlatformShopee,
			PlatformOrderID: ret.OrderSN,
			EventAt:         time.Unix(ret.UpdateTime, 0).UTC(),
			Kind:            sync.RecordKindReturn,
			Payload:         payload,
		}
	}

	t.Run("concluded refund maps to RETURNED status-only", func(t *testing.T) {
		result, err := n.Normalize(record(t, ShopeeReturn{
			ReturnSN: "R-1", OrderSN: "220301AAA", Status: "REFUND_PAID", UpdateTime: 1709400000,
		}))
		require.NoError(t, err)
		assert.True(t, result.StatusOnly)
		assert.Equal(t, order.StatusReturned, result.Order.Status)
		assert.Equal(t, time.Unix(1709400000, 0).UTC(), result.Order.LastEventAt)
	})

	t.Run("open case held as UNKNOWN", func(t *testing.T) {
		result, err := n.Normalize(record(t, ShopeeReturn{
			ReturnSN: "R-2", OrderSN: "220301BBB", Status: "JUDGING", UpdateTime: 1709400000,
		}))
		require.NoError(t, err)
		assert.Equal(t, order.StatusUnknown, result.Order.Status)
		assert.Empty(t, result.Warnings)
	})
}

func TestFromShopeeOrderStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   order.Status
		mapped bool
	}{
		{"UNPAID", order.StatusNew, true},
		{"READY_TO_SHIP", order.StatusPaid, true},
		{"PROCESSED", order.StatusPacking, true},
		{"RETRY_SHIP", order.StatusPacking, true},
		{"SHIPPED", order.StatusShipped, true},
		{"TO_CONFIRM_RECEIVE", order.StatusDelivered, true},
		{"COMPLETED", order.StatusDelivered, true},
		{"CANCELLED", order.StatusCancelled, true},
		{"IN_CANCEL", order.StatusUnknown, true},
		{"TO_RETURN", order.StatusUnknown, true},
		{"NO_SUCH_STATE", order.StatusUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, mapped := fromShopeeOrderStatus(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.mapped, mapped)
		})
	}
}
