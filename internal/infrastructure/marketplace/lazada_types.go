package marketplace

import "encoding/json"

// ---------------------------------------------------------------------------
// Lazada API Response Types
// ---------------------------------------------------------------------------

// LazadaEnvelope is the common response wrapper of Lazada API calls. A code
// of "0" means success; anything else carries a platform error.
type LazadaEnvelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// IsSuccess returns true when the platform reported no error
func (e *LazadaEnvelope) IsSuccess() bool {
	return e.Code == "0" || e.Code == ""
}

// LazadaTokenResponse carries the renewed credentials of /auth/token/refresh.
// Unlike the data APIs, the token fields arrive at the top level of the body
// next to the result code.
type LazadaTokenResponse struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// IsSuccess returns true when the platform reported no error
func (r *LazadaTokenResponse) IsSuccess() bool {
	return r.Code == "0" || r.Code == ""
}

// LazadaOrdersData is the data block of /orders/get
type LazadaOrdersData struct {
	Count      int           `json:"count"`
	CountTotal int           `json:"countTotal"`
	Orders     []LazadaOrder `json:"orders"`
}

// LazadaOrder is one order of /orders/get. Items are not included by the
// listing API; the adapter hydrates them through /orders/items/get before
// handing the record over. Timestamps are RFC3339 with a zone offset.
type LazadaOrder struct {
	OrderID     int64    `json:"order_id"`
	OrderNumber string   `json:"order_number"`
	Statuses    []string `json:"statuses"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`

	Price           json.Number `json:"price"`
	ShippingFee     json.Number `json:"shipping_fee"`
	Voucher         json.Number `json:"voucher"`
	VoucherSeller   json.Number `json:"voucher_seller"`
	VoucherPlatform json.Number `json:"voucher_platform"`

	CustomerFirstName string         `json:"customer_first_name"`
	CustomerLastName  string         `json:"customer_last_name"`
	AddressShipping   *LazadaAddress `json:"address_shipping"`

	// Items is filled by the adapter from /orders/items/get
	Items []LazadaOrderItem `json:"items,omitempty"`
}

// LazadaAddress is the shipping address block of an order
type LazadaAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address1  string `json:"address1"`
	PostCode  string `json:"post_code"`
}

// LazadaOrderItem is one item row. Lazada lists each purchased unit as its
// own row with quantity one.
type LazadaOrderItem struct {
	OrderItemID     int64       `json:"order_item_id"`
	SKU             string      `json:"sku"`
	ShopSKU         string      `json:"shop_sku"`
	Name            string      `json:"name"`
	Status          string      `json:"status"`
	ItemPrice       json.Number `json:"item_price"`
	PaidPrice       json.Number `json:"paid_price"`
	VoucherAmount   json.Number `json:"voucher_amount"`
	VoucherSeller   json.Number `json:"voucher_seller"`
	VoucherPlatform json.Number `json:"voucher_platform"`
	UpdatedAt       string      `json:"updated_at"`
}

// LazadaOrderItemsEntry is one entry of /orders/items/get
type LazadaOrderItemsEntry struct {
	OrderID     int64             `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	OrderItems  []LazadaOrderItem `json:"order_items"`
}
