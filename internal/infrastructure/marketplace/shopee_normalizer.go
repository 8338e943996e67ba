package marketplace

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/sync"
)

// ShopeeNormalizer converts raw Shopee payloads into canonical orders. It is
// pure: no I/O, no clock reads, deterministic per record.
type ShopeeNormalizer struct{}

// NewShopeeNormalizer creates a Shopee normalizer
func NewShopeeNormalizer() *ShopeeNormalizer {
	return &ShopeeNormalizer{}
}

// Platform returns the marketplace this normalizer understands
func (n *ShopeeNormalizer) Platform() order.Platform {
	return order.PlatformShopee
}

// Normalize converts one raw Shopee record into a canonical order
func (n *ShopeeNormalizer) Normalize(record sync.RawRecord) (*sync.NormalizedOrder, error) {
	switch record.Kind {
	case sync.RecordKindOrder:
		return n.normalizeOrder(record)
	case sync.RecordKindReturn:
		return n.normalizeReturn(record)
	default:
		return nil, fmt.Errorf("%w: shopee: unknown record kind %q", sync.ErrMalformedRecord, record.Kind)
	}
}

func (n *ShopeeNormalizer) normalizeOrder(record sync.RawRecord) (*sync.NormalizedOrder, error) {
	var raw ShopeeOrder
	if err := json.Unmarshal(record.Payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: shopee: %v", sync.ErrMalformedRecord, err)
	}
	if raw.OrderSN == "" {
		return nil, fmt.Errorf("%w: shopee: order_sn missing", sync.ErrMalformedRecord)
	}
	if raw.CreateTime <= 0 {
		return nil, fmt.Errorf("%w: shopee: create_time missing on %s", sync.ErrMalformedRecord, raw.OrderSN)
	}

	var warnings []string
	status, ok := fromShopeeOrderStatus(raw.OrderStatus)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("unmapped shopee status %q held as UNKNOWN", raw.OrderStatus))
	}

	o, err := order.NewOrder(order.PlatformShopee, raw.OrderSN, status, time.Unix(raw.CreateTime, 0))
	if err != nil {
		return nil, fmt.Errorf("%w: shopee: %v", sync.ErrMalformedRecord, err)
	}
	o.RawStatus = raw.OrderStatus
	o.RawPayload = string(record.Payload)
	if raw.Currency != "" {
		o.Currency = raw.Currency
	}
	if raw.UpdateTime > 0 {
		o.LastEventAt = time.Unix(raw.UpdateTime, 0).UTC()
	}

	if raw.BuyerUsername != "" {
		o.BuyerName = raw.BuyerUsername
	}
	if addr := raw.RecipientAddress; addr != nil {
		o.ReceiverName = addr.Name
		o.ReceiverPhone = addr.Phone
		o.ReceiverAddress = addr.FullAddress
		o.ReceiverZip = addr.Zipcode
	}

	if raw.PayTime > 0 {
		t := time.Unix(raw.PayTime, 0).UTC()
		o.PaidAt = &t
	}
	if raw.PickupDoneAt > 0 {
		t := time.Unix(raw.PickupDoneAt, 0).UTC()
		o.CollectedAt = &t
	}

	lines, subtotal, lineWarnings, err := n.buildLines(raw)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, lineWarnings...)
	o.SetLines(lines)

	o.SubtotalAmount = subtotal
	o.ShippingFee = pickShippingFee(raw)
	o.SellerDiscountAmount = parseAmount(raw.SellerDiscount)
	o.PlatformDiscountAmount = parseAmount(raw.ShopeeDiscount)
	o.TotalAmount = parseAmount(raw.TotalAmount)

	expected := o.SubtotalAmount.Add(o.ShippingFee).
		Sub(o.SellerDiscountAmount).Sub(o.PlatformDiscountAmount)
	if o.TotalAmount.Sub(expected).Abs().GreaterThan(order.AmountTolerance) {
		warnings = append(warnings, fmt.Sprintf(
			"platform total %s differs from computed %s on %s",
			o.TotalAmount.StringFixed(2), expected.StringFixed(2), raw.OrderSN))
	}

	return &sync.NormalizedOrder{Order: o, Warnings: warnings}, nil
}

// buildLines converts item_list into order lines. Per-line discount is the
// original-minus-discounted price spread; the subtotal is the sum of
// discounted line totals so it lines up with the order-level discount fields.
func (n *ShopeeNormalizer) buildLines(raw ShopeeOrder) ([]order.Line, decimal.Decimal, []string, error) {
	var warnings []string
	subtotal := decimal.Zero
	lines := make([]order.Line, 0, len(raw.ItemList))
	for _, item := range raw.ItemList {
		sku := item.ModelSKU
		if sku == "" {
			sku = item.ItemSKU
		}
		if sku == "" {
			return nil, decimal.Zero, nil, fmt.Errorf(
				"%w: shopee: item %d on %s has no sku", sync.ErrMalformedRecord, item.ItemID, raw.OrderSN)
		}
		qty := decimal.NewFromInt(item.ModelQuantityPurchased)
		unitPrice := parseAmount(item.ModelOriginalPrice)
		discounted := parseAmount(item.ModelDiscountedPrice)
		discount := unitPrice.Sub(discounted).Mul(qty)
		if discount.IsNegative() {
			warnings = append(warnings, fmt.Sprintf(
				"discounted price above original on %s line %s, discount clamped to zero", raw.OrderSN, sku))
			discount = decimal.Zero
		}

		line, err := order.NewLine(sku, item.ItemName, qty, unitPrice, discount, order.DiscountSourcePromotion)
		if err != nil {
			return nil, decimal.Zero, nil, fmt.Errorf("%w: shopee: %v", sync.ErrMalformedRecord, err)
		}
		lines = append(lines, *line)
		subtotal = subtotal.Add(line.LineTotal)
	}
	return lines, subtotal, warnings, nil
}

func (n *ShopeeNormalizer) normalizeReturn(record sync.RawRecord) (*sync.NormalizedOrder, error) {
	var raw ShopeeReturn
	if err := json.Unmarshal(record.Payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: shopee: %v", sync.ErrMalformedRecord, err)
	}
	if raw.OrderSN == "" {
		return nil, fmt.Errorf("%w: shopee: return without order_sn", sync.ErrMalformedRecord)
	}

	var warnings []string
	status, ok := fromShopeeReturnStatus(raw.Status)
	if !ok {
		warnings = append(warnings, fmt.Sprintf("unmapped shopee return status %q held as UNKNOWN", raw.Status))
	}

	eventAt := record.EventAt
	if eventAt.IsZero() && raw.UpdateTime > 0 {
		eventAt = time.Unix(raw.UpdateTime, 0).UTC()
	}

	o, err := order.NewOrder(order.PlatformShopee, raw.OrderSN, status, eventAt)
	if err != nil {
		return nil, fmt.Errorf("%w: shopee: %v", sync.ErrMalformedRecord, err)
	}
	o.RawStatus = raw.Status
	o.LastEventAt = eventAt

	return &sync.NormalizedOrder{Order: o, StatusOnly: true, Warnings: warnings}, nil
}

// ---------------------------------------------------------------------------
// Status Mapping
// ---------------------------------------------------------------------------

// fromShopeeOrderStatus maps a raw Shopee order status onto the canonical
// lifecycle. Unmapped statuses are held as UNKNOWN rather than guessed; the
// second return reports whether the mapping was exact.
func fromShopeeOrderStatus(raw string) (order.Status, bool) {
	switch raw {
	case "UNPAID":
		return order.StatusNew, true
	case "READY_TO_SHIP":
		return order.StatusPaid, true
	case "PROCESSED", "RETRY_SHIP":
		return order.StatusPacking, true
	case "SHIPPED":
		return order.StatusShipped, true
	case "TO_CONFIRM_RECEIVE", "COMPLETED":
		return order.StatusDelivered, true
	case "CANCELLED":
		return order.StatusCancelled, true
	case "IN_CANCEL", "TO_RETURN":
		// Requested but not concluded; hold until the platform decides.
		return order.StatusUnknown, true
	default:
		return order.StatusUnknown, false
	}
}

// fromShopeeReturnStatus maps a return case status. Only concluded refunds
// move the order; open cases are held.
func fromShopeeReturnStatus(raw string) (order.Status, bool) {
	switch raw {
	case "ACCEPTED", "REFUND_PAID":
		return order.StatusReturned, true
	case "JUDGING", "PROCESSING", "REQUESTED", "SELLER_DISPUTE":
		return order.StatusUnknown, true
	case "CANCELLED", "CLOSED":
		// Case dismissed; the order status is whatever the order API says.
		return order.StatusUnknown, true
	default:
		return order.StatusUnknown, false
	}
}

// pickShippingFee prefers the actual shipping fee once the parcel is handed
// over; the estimate is all that exists before that.
func pickShippingFee(raw ShopeeOrder) decimal.Decimal {
	if actual := parseAmount(raw.ActualShippingFee); actual.IsPositive() {
		return actual
	}
	return parseAmount(raw.EstimatedShippingFee)
}

// parseAmount parses a platform-supplied decimal, treating absent or garbage
// values as zero. Amount consistency is enforced downstream by the money
// invariant, not here.
func parseAmount(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Ensure ShopeeNormalizer implements the Normalizer port
var _ sync.Normalizer = (*ShopeeNormalizer)(nil)
