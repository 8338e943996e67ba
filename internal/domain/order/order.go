package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/shared"
)

// Platform identifies the marketplace an order originated from
type Platform string

const (
	// PlatformShopee represents the Shopee marketplace
	PlatformShopee Platform = "SHOPEE"
	// PlatformLazada represents the Lazada marketplace
	PlatformLazada Platform = "LAZADA"
)

// IsValid returns true if the platform code is known
func (p Platform) IsValid() bool {
	switch p {
	case PlatformShopee, PlatformLazada:
		return true
	}
	return false
}

// String returns the string representation of Platform
func (p Platform) String() string {
	return string(p)
}

// AmountTolerance is the rounding tolerance applied when checking the money
// invariant and when validating platform-supplied totals against computed ones.
var AmountTolerance = decimal.NewFromFloat(0.01)

// DiscountSource tags which party funded a discount
type DiscountSource string

const (
	DiscountSourcePlatform  DiscountSource = "PLATFORM"
	DiscountSourceSeller    DiscountSource = "SELLER"
	DiscountSourcePromotion DiscountSource = "PROMOTION"
)

// IsValid returns true if the discount source is known
func (d DiscountSource) IsValid() bool {
	switch d {
	case DiscountSourcePlatform, DiscountSourceSeller, DiscountSourcePromotion:
		return true
	}
	return false
}

// Order is the canonical representation of a marketplace order, merged from
// possibly many raw fetches and webhook events. Exactly one Order exists per
// (platform, platform_order_id); that pair is the natural key, the entity ID
// is the ownership-independent internal identity.
type Order struct {
	shared.BaseEntity
	Platform        Platform `gorm:"type:varchar(20);not null;uniqueIndex:idx_orders_platform_key,priority:1"`
	PlatformOrderID string   `gorm:"type:varchar(64);not null;uniqueIndex:idx_orders_platform_key,priority:2"`

	Status Status `gorm:"type:varchar(20);not null;index"`
	// RawStatus is the platform's own status string at the last observation.
	// Diagnostic only, never used for logic.
	RawStatus string `gorm:"type:varchar(64)"`

	SubtotalAmount         decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	ShippingFee            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	SellerDiscountAmount   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PlatformDiscountAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TotalAmount            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Currency               string          `gorm:"type:varchar(8);not null"`

	// Customer/shipping snapshot, immutable after creation. Corrections go
	// through OverrideShippingSnapshot, never through merge.
	BuyerName       string `gorm:"type:varchar(128)"`
	BuyerPhone      string `gorm:"type:varchar(32)"`
	ReceiverName    string `gorm:"type:varchar(128)"`
	ReceiverPhone   string `gorm:"type:varchar(32)"`
	ReceiverAddress string `gorm:"type:varchar(512)"`
	ReceiverZip     string `gorm:"type:varchar(16)"`

	// Lifecycle timestamps. Each is optional and monotonically non-decreasing
	// once set; a later merge never regresses one.
	OrderedAt     time.Time `gorm:"not null"`
	PaidAt        *time.Time
	ReadyToShipAt *time.Time
	CollectedAt   *time.Time
	ShippedAt     *time.Time
	DeliveredAt   *time.Time
	ReturnedAt    *time.Time

	// LastEventAt is the platform-reported time of the most recent update that
	// was applied. It arbitrates poll/webhook conflicts.
	LastEventAt time.Time `gorm:"not null"`

	// RawPayload is the original platform record, retained verbatim for
	// replay and audit.
	RawPayload string `gorm:"type:text"`

	Lines []Line `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// Line is one order line. Lines are always replaced as a complete set during
// a merge because marketplaces return the full line set per poll.
type Line struct {
	shared.BaseEntity
	OrderID uuid.UUID `gorm:"type:uuid;not null;index"`
	SKU     string    `gorm:"type:varchar(64);not null"`
	// ProductID is the resolved product master reference. Lines may arrive
	// before product master data exists, so it stays optional.
	ProductID      *uuid.UUID      `gorm:"type:uuid"`
	ProductName    string          `gorm:"type:varchar(255)"`
	Quantity       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Discount       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DiscountSource DiscountSource  `gorm:"type:varchar(16)"`
	LineTotal      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (Line) TableName() string {
	return "order_lines"
}

// NewLine creates an order line and computes its total
func NewLine(sku, productName string, quantity, unitPrice, discount decimal.Decimal, source DiscountSource) (*Line, error) {
	if sku == "" {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU cannot be empty")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}
	if discount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_DISCOUNT", "Discount cannot be negative")
	}
	if source != "" && !source.IsValid() {
		return nil, shared.NewDomainError("INVALID_DISCOUNT_SOURCE", "Unknown discount source")
	}
	return &Line{
		BaseEntity:     shared.NewBaseEntity(),
		SKU:            sku,
		ProductName:    productName,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
		Discount:       discount,
		DiscountSource: source,
		LineTotal:      unitPrice.Mul(quantity).Sub(discount),
	}, nil
}

// NewOrder creates a canonical order. Amounts are validated on creation and
// again on every persisted write.
func NewOrder(platform Platform, platformOrderID string, status Status, orderedAt time.Time) (*Order, error) {
	if !platform.IsValid() {
		return nil, shared.NewDomainError("INVALID_PLATFORM", "Unknown platform code")
	}
	if platformOrderID == "" {
		return nil, shared.NewDomainError("INVALID_PLATFORM_ORDER_ID", "Platform order ID cannot be empty")
	}
	if !status.IsValid() {
		return nil, shared.NewDomainError("INVALID_STATUS", "Unknown lifecycle status")
	}
	if orderedAt.IsZero() {
		return nil, shared.NewDomainError("INVALID_ORDERED_AT", "Order creation time is required")
	}
	return &Order{
		BaseEntity:      shared.NewBaseEntity(),
		Platform:        platform,
		PlatformOrderID: platformOrderID,
		Status:          status,
		OrderedAt:       orderedAt.UTC(),
		LastEventAt:     orderedAt.UTC(),
		Currency:        "THB",
	}, nil
}

// ValidateAmounts checks the money invariant:
//
//	total = subtotal + shipping - seller discount - platform discount
//
// within AmountTolerance, and that no monetary field is negative.
func (o *Order) ValidateAmounts() error {
	for _, amt := range []decimal.Decimal{
		o.SubtotalAmount, o.ShippingFee, o.SellerDiscountAmount,
		o.PlatformDiscountAmount, o.TotalAmount,
	} {
		if amt.IsNegative() {
			return shared.NewDomainError("NEGATIVE_AMOUNT", "Monetary fields cannot be negative")
		}
	}
	expected := o.SubtotalAmount.
		Add(o.ShippingFee).
		Sub(o.SellerDiscountAmount).
		Sub(o.PlatformDiscountAmount)
	if o.TotalAmount.Sub(expected).Abs().GreaterThan(AmountTolerance) {
		return shared.NewDomainError("AMOUNT_MISMATCH",
			"Total does not equal subtotal + shipping - discounts")
	}
	return nil
}

// SetLines replaces the line set atomically. Partial line updates do not
// exist: every merge carries the full set.
func (o *Order) SetLines(lines []Line) {
	for i := range lines {
		lines[i].OrderID = o.ID
	}
	o.Lines = lines
}

// mergeTimestamp advances dst to src when src is set and not earlier than the
// current value. A set timestamp is never regressed.
func mergeTimestamp(dst **time.Time, src *time.Time) {
	if src == nil {
		return
	}
	if *dst == nil || !src.Before(**dst) {
		t := src.UTC()
		*dst = &t
	}
}

// MergeFrom merges a freshly normalized observation of the same order into
// the existing canonical one. It handles amounts, timestamps, raw payload and
// lines; the lifecycle status is deliberately NOT merged here - status moves
// only through the transition engine so that side effects fire exactly once.
func (o *Order) MergeFrom(incoming *Order) error {
	if o.Platform != incoming.Platform || o.PlatformOrderID != incoming.PlatformOrderID {
		return shared.NewDomainError("MERGE_KEY_MISMATCH",
			"Cannot merge orders with different platform identities")
	}
	if err := incoming.ValidateAmounts(); err != nil {
		return err
	}

	o.RawStatus = incoming.RawStatus
	o.SubtotalAmount = incoming.SubtotalAmount
	o.ShippingFee = incoming.ShippingFee
	o.SellerDiscountAmount = incoming.SellerDiscountAmount
	o.PlatformDiscountAmount = incoming.PlatformDiscountAmount
	o.TotalAmount = incoming.TotalAmount
	if incoming.Currency != "" {
		o.Currency = incoming.Currency
	}

	// Snapshot fields are immutable once set; only fill gaps.
	if o.BuyerName == "" {
		o.BuyerName = incoming.BuyerName
	}
	if o.BuyerPhone == "" {
		o.BuyerPhone = incoming.BuyerPhone
	}
	if o.ReceiverName == "" {
		o.ReceiverName = incoming.ReceiverName
	}
	if o.ReceiverPhone == "" {
		o.ReceiverPhone = incoming.ReceiverPhone
	}
	if o.ReceiverAddress == "" {
		o.ReceiverAddress = incoming.ReceiverAddress
	}
	if o.ReceiverZip == "" {
		o.ReceiverZip = incoming.ReceiverZip
	}

	mergeTimestamp(&o.PaidAt, incoming.PaidAt)
	mergeTimestamp(&o.ReadyToShipAt, incoming.ReadyToShipAt)
	mergeTimestamp(&o.CollectedAt, incoming.CollectedAt)
	mergeTimestamp(&o.ShippedAt, incoming.ShippedAt)
	mergeTimestamp(&o.DeliveredAt, incoming.DeliveredAt)
	mergeTimestamp(&o.ReturnedAt, incoming.ReturnedAt)

	if incoming.RawPayload != "" {
		o.RawPayload = incoming.RawPayload
	}
	o.SetLines(incoming.Lines)
	o.UpdatedAt = time.Now().UTC()
	return o.ValidateAmounts()
}

// OverrideShippingSnapshot is the explicit correction path for the otherwise
// immutable customer/shipping snapshot.
func (o *Order) OverrideShippingSnapshot(receiverName, receiverPhone, receiverAddress, receiverZip string) {
	o.ReceiverName = receiverName
	o.ReceiverPhone = receiverPhone
	o.ReceiverAddress = receiverAddress
	o.ReceiverZip = receiverZip
	o.UpdatedAt = time.Now().UTC()
}
