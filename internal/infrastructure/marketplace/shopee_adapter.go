package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/sync"
)

// maxResponseSize is the maximum allowed response size from a platform API (10MB)
const maxResponseSize = 10 * 1024 * 1024

const (
	shopeeOrderListPath    = "/api/v2/order/get_order_list"
	shopeeOrderDetailPath  = "/api/v2/order/get_order_detail"
	shopeeReturnListPath   = "/api/v2/returns/get_return_list"
	shopeeTokenRefreshPath = "/api/v2/auth/access_token/get"
)

// ShopeeAdapter implements the sync.Connector port for the Shopee Open
// Platform v2 API. Order listing returns only order numbers, so each page is
// hydrated through the detail endpoint before being handed to the caller.
type ShopeeAdapter struct {
	config     *ShopeeConfig
	httpClient *http.Client
	backoff    BackoffPolicy
	now        func() time.Time
}

// NewShopeeAdapter creates a new Shopee adapter with the given configuration
func NewShopeeAdapter(config *ShopeeConfig) (*ShopeeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &ShopeeAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		backoff: DefaultBackoffPolicy(),
		now:     time.Now,
	}, nil
}

// Platform returns the marketplace this adapter serves
func (a *ShopeeAdapter) Platform() order.Platform {
	return order.PlatformShopee
}

// MaxWindow returns the longest update-time range one listing query accepts
func (a *ShopeeAdapter) MaxWindow() time.Duration {
	return shopeeMaxWindowDays * 24 * time.Hour
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// FetchOrders lists orders updated within the window and hydrates each page
// through the order detail endpoint.
func (a *ShopeeAdapter) FetchOrders(ctx context.Context, window sync.Window, status *order.Status, cursor string) (*sync.Page, error) {
	if window.Duration() > a.MaxWindow() {
		return nil, fmt.Errorf("shopee: window %s exceeds platform maximum %s: %w",
			window.Duration(), a.MaxWindow(), sync.ErrInvalidCursor)
	}

	params := url.Values{}
	params.Set("time_range_field", "update_time")
	params.Set("time_from", strconv.FormatInt(window.From.Unix(), 10))
	params.Set("time_to", strconv.FormatInt(window.To.Unix(), 10))
	params.Set("page_size", strconv.Itoa(shopeePageSize))
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if status != nil {
		if raw, ok := toShopeeOrderStatus(*status); ok {
			params.Set("order_status", raw)
		}
	}

	var list ShopeeOrderListResponse
	if err := a.call(ctx, shopeeOrderListPath, params, &list); err != nil {
		return nil, err
	}

	// has_more with no cursor cannot terminate; refuse to loop on it.
	if list.More && list.NextCursor == "" {
		return nil, fmt.Errorf("shopee: more=true with empty cursor: %w", sync.ErrInvalidCursor)
	}

	page := &sync.Page{
		NextCursor: list.NextCursor,
		HasMore:    list.More,
	}
	if len(list.OrderList) == 0 {
		return page, nil
	}

	sns := make([]string, 0, len(list.OrderList))
	for _, brief := range list.OrderList {
		sns = append(sns, brief.OrderSN)
	}
	records, err := a.fetchDetails(ctx, sns)
	if err != nil {
		return nil, err
	}
	page.Records = records
	return page, nil
}

// FetchOrderDetail fetches the full payload for a single order
func (a *ShopeeAdapter) FetchOrderDetail(ctx context.Context, platformOrderID string) (*sync.RawRecord, error) {
	records, err := a.fetchDetails(ctx, []string{platformOrderID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("shopee: order %s: %w", platformOrderID, sync.ErrMalformedRecord)
	}
	return &records[0], nil
}

// fetchDetails hydrates a batch of order numbers into raw records
func (a *ShopeeAdapter) fetchDetails(ctx context.Context, orderSNs []string) ([]sync.RawRecord, error) {
	params := url.Values{}
	params.Set("order_sn_list", strings.Join(orderSNs, ","))
	params.Set("response_optional_fields", shopeeDetailFields)

	var detail ShopeeOrderDetailResponse
	if err := a.call(ctx, shopeeOrderDetailPath, params, &detail); err != nil {
		return nil, err
	}

	records := make([]sync.RawRecord, 0, len(detail.OrderList))
	for _, o := range detail.OrderList {
		payload, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("shopee: re-encode order %s: %w", o.OrderSN, err)
		}
		records = append(records, sync.RawRecord{
			Platform:        order.PlatformShopee,
			PlatformOrderID: o.OrderSN,
			EventAt:         time.Unix(o.UpdateTime, 0).UTC(),
			Kind:            sync.RecordKindOrder,
			Payload:         payload,
		})
	}
	return records, nil
}

// FetchReturns lists return cases updated within the window. Each case is
// surfaced as a return-kind record referencing its original order.
func (a *ShopeeAdapter) FetchReturns(ctx context.Context, window sync.Window, cursor string) (*sync.Page, error) {
	params := url.Values{}
	params.Set("create_time_from", strconv.FormatInt(window.From.Unix(), 10))
	params.Set("create_time_to", strconv.FormatInt(window.To.Unix(), 10))
	params.Set("page_size", strconv.Itoa(shopeePageSize))
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	var list ShopeeReturnListResponse
	if err := a.call(ctx, shopeeReturnListPath, params, &list); err != nil {
		return nil, err
	}
	if list.More && list.NextCursor == "" {
		return nil, fmt.Errorf("shopee: more=true with empty cursor: %w", sync.ErrInvalidCursor)
	}

	page := &sync.Page{
		NextCursor: list.NextCursor,
		HasMore:    list.More,
	}
	for _, ret := range list.ReturnList {
		payload, err := json.Marshal(ret)
		if err != nil {
			return nil, fmt.Errorf("shopee: re-encode return %s: %w", ret.ReturnSN, err)
		}
		page.Records = append(page.Records, sync.RawRecord{
			Platform:        order.PlatformShopee,
			PlatformOrderID: ret.OrderSN,
			EventAt:         time.Unix(ret.UpdateTime, 0).UTC(),
			Kind:            sync.RecordKindReturn,
			Payload:         payload,
		})
	}
	return page, nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// call performs a signed GET against the Shopee API, retrying throttled and
// transient failures per the backoff policy, and decodes the envelope's
// response body into out. A rejected access token is renewed through the
// refresh token and the request repeated once; a second rejection fails.
func (a *ShopeeAdapter) call(ctx context.Context, path string, params url.Values, out any) error {
	err := a.backoff.Retry(ctx, IsRetryable, func() error {
		return a.doRequest(ctx, path, params, out)
	})
	if err == nil || !errors.Is(err, sync.ErrAuthExpired) || a.config.RefreshToken == "" {
		return err
	}
	if rerr := a.refreshAccessToken(ctx); rerr != nil {
		return rerr
	}
	return a.backoff.Retry(ctx, IsRetryable, func() error {
		return a.doRequest(ctx, path, params, out)
	})
}

// refreshAccessToken exchanges the refresh token for a new shop access token.
// The auth endpoint signs at partner level since the expired shop token
// cannot take part in its own renewal.
func (a *ShopeeAdapter) refreshAccessToken(ctx context.Context) error {
	ts := a.now().Unix()
	reqBody, err := json.Marshal(map[string]any{
		"refresh_token": a.config.RefreshToken,
		"partner_id":    a.config.PartnerID,
		"shop_id":       a.config.ShopID,
	})
	if err != nil {
		return fmt.Errorf("shopee: encode refresh request: %w", err)
	}

	q := url.Values{}
	q.Set("partner_id", a.config.partnerIDString())
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", a.config.SignPublic(shopeeTokenRefreshPath, ts))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.config.APIBaseURL+shopeeTokenRefreshPath+"?"+q.Encode(), bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("shopee: failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: token refresh: %v", sync.ErrAuthExpired, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: token refresh: read response: %v", sync.ErrAuthExpired, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: token refresh: HTTP %d", sync.ErrAuthExpired, resp.StatusCode)
	}

	var envelope ShopeeEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("shopee: failed to parse refresh response: %w", err)
	}
	if !envelope.IsSuccess() {
		return fmt.Errorf("%w: token refresh: %s - %s", sync.ErrAuthExpired, envelope.Error, envelope.Message)
	}

	var tokens ShopeeTokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil || tokens.AccessToken == "" {
		return fmt.Errorf("%w: token refresh: no access token in response", sync.ErrAuthExpired)
	}

	a.config.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		a.config.RefreshToken = tokens.RefreshToken
	}
	return nil
}

func (a *ShopeeAdapter) doRequest(ctx context.Context, path string, params url.Values, out any) error {
	ts := a.now().Unix()
	q := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("partner_id", a.config.partnerIDString())
	q.Set("shop_id", a.config.shopIDString())
	q.Set("access_token", a.config.AccessToken)
	q.Set("timestamp", strconv.FormatInt(ts, 10))
	q.Set("sign", a.config.Sign(path, ts))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.APIBaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("shopee: failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", sync.ErrTransientFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", sync.ErrTransientFetch, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", sync.ErrAuthExpired, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429", sync.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", sync.ErrTransientFetch, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("shopee: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var envelope ShopeeEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("shopee: failed to parse response: %w", err)
	}
	if !envelope.IsSuccess() {
		return classifyShopeeError(envelope.Error, envelope.Message)
	}
	if err := json.Unmarshal(envelope.Response, out); err != nil {
		return fmt.Errorf("shopee: failed to parse response body: %w", err)
	}
	return nil
}

// classifyShopeeError maps platform-level error codes onto the connector
// error taxonomy.
func classifyShopeeError(code, message string) error {
	switch code {
	case "error_auth", "invalid_access_token", "error_permission":
		return fmt.Errorf("%w: %s - %s", sync.ErrAuthExpired, code, message)
	case "error_request_limit":
		return fmt.Errorf("%w: %s - %s", sync.ErrRateLimited, code, message)
	case "error_server", "error_network":
		return fmt.Errorf("%w: %s - %s", sync.ErrTransientFetch, code, message)
	default:
		return fmt.Errorf("shopee: %s - %s", code, message)
	}
}

// toShopeeOrderStatus maps a canonical status filter onto the platform's
// listing filter value. Not every canonical status has a listing filter.
func toShopeeOrderStatus(s order.Status) (string, bool) {
	switch s {
	case order.StatusNew:
		return "UNPAID", true
	case order.StatusPaid:
		return "READY_TO_SHIP", true
	case order.StatusPacking:
		return "PROCESSED", true
	case order.StatusShipped:
		return "SHIPPED", true
	case order.StatusDelivered:
		return "COMPLETED", true
	case order.StatusCancelled:
		return "CANCELLED", true
	default:
		return "", false
	}
}

// shopeeDetailFields is the optional field list requested from the detail API
const shopeeDetailFields = "buyer_username,recipient_address,item_list,pay_time,actual_shipping_fee," +
	"estimated_shipping_fee,total_amount,seller_discount,shopee_discount,package_list,pickup_done_time"

// Ensure ShopeeAdapter implements the Connector port
var _ sync.Connector = (*ShopeeAdapter)(nil)
