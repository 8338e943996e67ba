package marketplace

import "encoding/json"

// ---------------------------------------------------------------------------
// Shopee API Response Types
// ---------------------------------------------------------------------------

// ShopeeEnvelope is the common response wrapper of Shopee v2 API calls
type ShopeeEnvelope struct {
	RequestID string          `json:"request_id"`
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	Response  json.RawMessage `json:"response"`
}

// IsSuccess returns true when the platform reported no error
func (e *ShopeeEnvelope) IsSuccess() bool {
	return e.Error == ""
}

// ShopeeTokenResponse carries the renewed credentials of
// /api/v2/auth/access_token/get. The token fields arrive at the top level of
// the body, next to the envelope fields. Shopee rotates the refresh token on
// every renewal.
type ShopeeTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpireIn     int64  `json:"expire_in"`
}

// ShopeeOrderListResponse is the payload of /api/v2/order/get_order_list
type ShopeeOrderListResponse struct {
	More       bool               `json:"more"`
	NextCursor string             `json:"next_cursor"`
	OrderList  []ShopeeOrderBrief `json:"order_list"`
}

// ShopeeOrderBrief is a single entry of the order list response
type ShopeeOrderBrief struct {
	OrderSN     string `json:"order_sn"`
	OrderStatus string `json:"order_status"`
	UpdateTime  int64  `json:"update_time"`
}

// ShopeeOrderDetailResponse is the payload of /api/v2/order/get_order_detail
type ShopeeOrderDetailResponse struct {
	OrderList []ShopeeOrder `json:"order_list"`
}

// ShopeeOrder is the full order payload. All timestamps are unix seconds UTC.
type ShopeeOrder struct {
	OrderSN      string `json:"order_sn"`
	OrderStatus  string `json:"order_status"`
	Currency     string `json:"currency"`
	CreateTime   int64  `json:"create_time"`
	UpdateTime   int64  `json:"update_time"`
	PayTime      int64  `json:"pay_time"`
	ShipByDate   int64  `json:"ship_by_date"`
	PickupDoneAt int64  `json:"pickup_done_time"`

	TotalAmount          json.Number `json:"total_amount"`
	EstimatedShippingFee json.Number `json:"estimated_shipping_fee"`
	ActualShippingFee    json.Number `json:"actual_shipping_fee"`
	SellerDiscount       json.Number `json:"seller_discount"`
	ShopeeDiscount       json.Number `json:"shopee_discount"`

	BuyerUsername    string               `json:"buyer_username"`
	RecipientAddress *ShopeeAddress       `json:"recipient_address"`
	ItemList         []ShopeeOrderItem    `json:"item_list"`
	PackageList      []ShopeeOrderPackage `json:"package_list"`
}

// ShopeeAddress is the recipient address block of an order
type ShopeeAddress struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	FullAddress string `json:"full_address"`
	Zipcode     string `json:"zipcode"`
}

// ShopeeOrderItem is one line of an order
type ShopeeOrderItem struct {
	ItemID                 int64       `json:"item_id"`
	ItemSKU                string      `json:"item_sku"`
	ModelSKU               string      `json:"model_sku"`
	ItemName               string      `json:"item_name"`
	ModelQuantityPurchased int64       `json:"model_quantity_purchased"`
	ModelOriginalPrice     json.Number `json:"model_original_price"`
	ModelDiscountedPrice   json.Number `json:"model_discounted_price"`
}

// ShopeeOrderPackage carries fulfillment state per parcel
type ShopeeOrderPackage struct {
	PackageNumber   string `json:"package_number"`
	LogisticsStatus string `json:"logistics_status"`
}

// ShopeeReturnListResponse is the payload of /api/v2/returns/get_return_list
type ShopeeReturnListResponse struct {
	More       bool           `json:"more"`
	NextCursor string         `json:"next_cursor"`
	ReturnList []ShopeeReturn `json:"return"`
}

// ShopeeReturn is one return/refund case
type ShopeeReturn struct {
	ReturnSN   string `json:"return_sn"`
	OrderSN    string `json:"order_sn"`
	Status     string `json:"status"`
	CreateTime int64  `json:"create_time"`
	UpdateTime int64  `json:"update_time"`
	Reason     string `json:"reason"`
}
