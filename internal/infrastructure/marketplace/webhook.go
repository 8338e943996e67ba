package marketplace

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ---------------------------------------------------------------------------
// Webhook push parsing and signature verification
// ---------------------------------------------------------------------------

// PushEvent is the minimal information extracted from a platform push. The
// reconciler re-fetches order detail from the platform API, so the envelope
// only needs to identify the order and when the platform says it changed.
type PushEvent struct {
	// PlatformOrderID is the platform's order identifier
	PlatformOrderID string
	// EventType is the platform's own event classification, kept verbatim
	EventType string
	// EventAt is the platform-reported event time, nil when absent
	EventAt *time.Time
}

// ShopeePush is the envelope of a Shopee open platform push notification
type ShopeePush struct {
	Code      int            `json:"code"`
	ShopID    int64          `json:"shop_id"`
	Timestamp int64          `json:"timestamp"`
	Data      ShopeePushData `json:"data"`
}

// ShopeePushData carries the order reference of an order-status push
type ShopeePushData struct {
	OrderSN    string `json:"ordersn"`
	Status     string `json:"status"`
	UpdateTime int64  `json:"update_time"`
}

// ParseShopeePush extracts the order reference from a Shopee push body
func ParseShopeePush(body []byte) (*PushEvent, error) {
	var env ShopeePush
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("shopee push: malformed body: %w", err)
	}
	if env.Data.OrderSN == "" {
		return nil, fmt.Errorf("shopee push: missing ordersn")
	}

	event := &PushEvent{
		PlatformOrderID: env.Data.OrderSN,
		EventType:       "code_" + strconv.Itoa(env.Code),
	}
	switch {
	case env.Data.UpdateTime > 0:
		at := time.Unix(env.Data.UpdateTime, 0).UTC()
		event.EventAt = &at
	case env.Timestamp > 0:
		at := time.Unix(env.Timestamp, 0).UTC()
		event.EventAt = &at
	}
	return event, nil
}

// VerifyShopeePush checks the Authorization header of a Shopee push. Shopee
// signs HMAC-SHA256(push_partner_key, callback_url + "|" + body) and sends
// the lowercase hex digest.
func VerifyShopeePush(pushPartnerKey, callbackURL string, body []byte, authorization string) bool {
	if pushPartnerKey == "" || authorization == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(pushPartnerKey))
	h.Write([]byte(callbackURL))
	h.Write([]byte("|"))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(authorization))
}

// LazadaPush is the envelope of a Lazada open platform push notification.
// The data field arrives either as an object or as a JSON-encoded string
// depending on the platform version.
type LazadaPush struct {
	SellerID    string          `json:"seller_id"`
	MessageType int             `json:"message_type"`
	Timestamp   int64           `json:"timestamp"`
	Data        json.RawMessage `json:"data"`
}

// LazadaPushData carries the order reference of an order-status push
type LazadaPushData struct {
	TradeOrderID     string `json:"trade_order_id"`
	OrderStatus      string `json:"order_status"`
	StatusUpdateTime int64  `json:"status_update_time"`
}

// ParseLazadaPush extracts the order reference from a Lazada push body
func ParseLazadaPush(body []byte) (*PushEvent, error) {
	var env LazadaPush
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("lazada push: malformed body: %w", err)
	}

	var data LazadaPushData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		// Older pushes double-encode data as a JSON string
		var inner string
		if err2 := json.Unmarshal(env.Data, &inner); err2 != nil {
			return nil, fmt.Errorf("lazada push: malformed data: %w", err)
		}
		if err2 := json.Unmarshal([]byte(inner), &data); err2 != nil {
			return nil, fmt.Errorf("lazada push: malformed data: %w", err2)
		}
	}
	if data.TradeOrderID == "" {
		return nil, fmt.Errorf("lazada push: missing trade_order_id")
	}

	event := &PushEvent{
		PlatformOrderID: data.TradeOrderID,
		EventType:       "message_type_" + strconv.Itoa(env.MessageType),
	}
	switch {
	case data.StatusUpdateTime > 0:
		at := unixFlexible(data.StatusUpdateTime)
		event.EventAt = &at
	case env.Timestamp > 0:
		at := unixFlexible(env.Timestamp)
		event.EventAt = &at
	}
	return event, nil
}

// VerifyLazadaPush checks the Authorization header of a Lazada push. Lazada
// signs HMAC-SHA256(app_secret, app_key + body) and sends the lowercase hex
// digest.
func VerifyLazadaPush(appSecret, appKey string, body []byte, authorization string) bool {
	if appSecret == "" || authorization == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(appSecret))
	h.Write([]byte(appKey))
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(authorization))
}

// unixFlexible converts a platform timestamp to UTC, accepting either unix
// seconds or unix milliseconds. Lazada mixes both across push versions.
func unixFlexible(ts int64) time.Time {
	// Values this large cannot be seconds before the year 33658
	if ts > 1e12 {
		return time.UnixMilli(ts).UTC()
	}
	return time.Unix(ts, 0).UTC()
}
