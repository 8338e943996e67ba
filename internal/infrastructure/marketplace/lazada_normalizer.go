package marketplace

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/sync"
)

// LazadaNormalizer converts raw Lazada payloads into canonical orders. Pure,
// like its Shopee counterpart.
type LazadaNormalizer struct{}

// NewLazadaNormalizer creates a Lazada normalizer
func NewLazadaNormalizer() *LazadaNormalizer {
	return &LazadaNormalizer{}
}

// Platform returns the marketplace this normalizer understands
func (n *LazadaNormalizer) Platform() order.Platform {
	return order.PlatformLazada
}

// Normalize converts one raw Lazada record into a canonical order
func (n *LazadaNormalizer) Normalize(record sync.RawRecord) (*sync.NormalizedOrder, error) {
	var raw LazadaOrder
	if err := json.Unmarshal(record.Payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: lazada: %v", sync.ErrMalformedRecord, err)
	}
	if raw.OrderID == 0 {
		return nil, fmt.Errorf("%w: lazada: order_id missing", sync.ErrMalformedRecord)
	}

	createdAt, err := parseLazadaTime(raw.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: lazada: %v", sync.ErrMalformedRecord, err)
	}

	var warnings []string
	status, exact := pickLazadaStatus(raw.Statuses)
	if !exact {
		warnings = append(warnings, fmt.Sprintf("unmapped lazada statuses %v held as UNKNOWN", raw.Statuses))
	}

	o, err := order.NewOrder(order.PlatformLazada, strconv.FormatInt(raw.OrderID, 10), status, createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: lazada: %v", sync.ErrMalformedRecord, err)
	}
	o.RawStatus = rawStatusLabel(raw.Statuses)
	o.RawPayload = string(record.Payload)
	if updatedAt, err := parseLazadaTime(raw.UpdatedAt); err == nil {
		o.LastEventAt = updatedAt
	}

	o.BuyerName = joinName(raw.CustomerFirstName, raw.CustomerLastName)
	if addr := raw.AddressShipping; addr != nil {
		o.ReceiverName = joinName(addr.FirstName, addr.LastName)
		o.ReceiverPhone = addr.Phone
		o.ReceiverAddress = addr.Address1
		o.ReceiverZip = addr.PostCode
	}

	lines, subtotal, lineWarnings, err := n.buildLines(raw)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, lineWarnings...)
	o.SetLines(lines)

	o.SubtotalAmount = subtotal
	o.ShippingFee = parseAmount(raw.ShippingFee)
	o.SellerDiscountAmount = parseAmount(raw.VoucherSeller)
	o.PlatformDiscountAmount = parseAmount(raw.VoucherPlatform)
	o.TotalAmount = parseAmount(raw.Price)

	expected := o.SubtotalAmount.Add(o.ShippingFee).
		Sub(o.SellerDiscountAmount).Sub(o.PlatformDiscountAmount)
	if o.TotalAmount.Sub(expected).Abs().GreaterThan(order.AmountTolerance) {
		warnings = append(warnings, fmt.Sprintf(
			"platform total %s differs from computed %s on %d",
			o.TotalAmount.StringFixed(2), expected.StringFixed(2), raw.OrderID))
	}

	return &sync.NormalizedOrder{Order: o, Warnings: warnings}, nil
}

// buildLines converts item rows into order lines. Every Lazada row is one
// unit, so quantity is fixed at one; the item/paid price spread is the line
// discount, attributed to whichever voucher bucket funded more of it.
func (n *LazadaNormalizer) buildLines(raw LazadaOrder) ([]order.Line, decimal.Decimal, []string, error) {
	var warnings []string
	subtotal := decimal.Zero
	lines := make([]order.Line, 0, len(raw.Items))
	for _, item := range raw.Items {
		sku := item.ShopSKU
		if sku == "" {
			sku = item.SKU
		}
		if sku == "" {
			return nil, decimal.Zero, nil, fmt.Errorf(
				"%w: lazada: item %d on %d has no sku", sync.ErrMalformedRecord, item.OrderItemID, raw.OrderID)
		}

		unitPrice := parseAmount(item.ItemPrice)
		paid := parseAmount(item.PaidPrice)
		discount := unitPrice.Sub(paid)
		if discount.IsNegative() {
			warnings = append(warnings, fmt.Sprintf(
				"paid price above item price on %d line %s, discount clamped to zero", raw.OrderID, sku))
			discount = decimal.Zero
		}

		line, err := order.NewLine(sku, item.Name, decimal.NewFromInt(1), unitPrice, discount, lazadaDiscountSource(item))
		if err != nil {
			return nil, decimal.Zero, nil, fmt.Errorf("%w: lazada: %v", sync.ErrMalformedRecord, err)
		}
		lines = append(lines, *line)
		subtotal = subtotal.Add(line.LineTotal)
	}
	return lines, subtotal, warnings, nil
}

// lazadaDiscountSource attributes a line discount to the voucher bucket that
// funded more of it.
func lazadaDiscountSource(item LazadaOrderItem) order.DiscountSource {
	seller := parseAmount(item.VoucherSeller)
	platform := parseAmount(item.VoucherPlatform)
	switch {
	case platform.GreaterThan(seller):
		return order.DiscountSourcePlatform
	case seller.IsPositive():
		return order.DiscountSourceSeller
	default:
		return order.DiscountSourcePromotion
	}
}

// ---------------------------------------------------------------------------
// Status Mapping
// ---------------------------------------------------------------------------

// pickLazadaStatus resolves the per-item status array to one canonical
// status: the mapped status furthest along the lifecycle ordering wins, so a
// partially shipped order reads as shipped. The second return is false when
// any status failed to map.
func pickLazadaStatus(statuses []string) (order.Status, bool) {
	best := order.StatusUnknown
	exact := true
	for _, raw := range statuses {
		s, ok := fromLazadaOrderStatus(raw)
		if !ok {
			exact = false
			continue
		}
		if s.Rank() > best.Rank() {
			best = s
		}
	}
	if len(statuses) == 0 {
		return order.StatusUnknown, false
	}
	return best, exact
}

// fromLazadaOrderStatus maps a raw Lazada item status onto the canonical
// lifecycle. Unmapped statuses are held as UNKNOWN.
func fromLazadaOrderStatus(raw string) (order.Status, bool) {
	switch raw {
	case "unpaid":
		return order.StatusNew, true
	case "pending":
		return order.StatusPaid, true
	case "packed", "repacked", "ready_to_ship":
		return order.StatusPacking, true
	case "shipped":
		return order.StatusShipped, true
	case "delivered", "confirmed":
		return order.StatusDelivered, true
	case "canceled":
		return order.StatusCancelled, true
	case "returned":
		return order.StatusReturned, true
	case "failed", "failed_delivery":
		return order.StatusDeliveryFailed, true
	case "lost_by_3pl", "damaged_by_3pl":
		// In carrier dispute; hold until the platform settles it.
		return order.StatusUnknown, true
	default:
		return order.StatusUnknown, false
	}
}

// rawStatusLabel keeps the platform's own status list for diagnostics
func rawStatusLabel(statuses []string) string {
	if len(statuses) == 0 {
		return ""
	}
	label := statuses[0]
	for _, s := range statuses[1:] {
		label += "," + s
	}
	return label
}

// joinName joins a first/last name pair, tolerating either being empty
func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

// Ensure LazadaNormalizer implements the Normalizer port
var _ sync.Normalizer = (*LazadaNormalizer)(nil)
