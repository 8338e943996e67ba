package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/sync"
)

const (
	lazadaOrdersGetPath     = "/orders/get"
	lazadaOrderItemsGetPath = "/orders/items/get"
	lazadaOrderGetPath      = "/order/get"
	lazadaTokenRefreshPath  = "/auth/token/refresh"

	// lazadaTimeLayout is the timestamp format Lazada expects in query
	// parameters and returns in payloads
	lazadaTimeLayout = time.RFC3339
)

// LazadaAdapter implements the sync.Connector port for the Lazada Open
// Platform. The orders API paginates by offset; the adapter carries the
// offset through the opaque cursor string.
type LazadaAdapter struct {
	config     *LazadaConfig
	httpClient *http.Client
	backoff    BackoffPolicy
	now        func() time.Time
}

// NewLazadaAdapter creates a new Lazada adapter with the given configuration
func NewLazadaAdapter(config *LazadaConfig) (*LazadaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &LazadaAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		backoff: DefaultBackoffPolicy(),
		now:     time.Now,
	}, nil
}

// Platform returns the marketplace this adapter serves
func (a *LazadaAdapter) Platform() order.Platform {
	return order.PlatformLazada
}

// MaxWindow returns the longest update-time range one listing query accepts
func (a *LazadaAdapter) MaxWindow() time.Duration {
	return lazadaMaxWindowDays * 24 * time.Hour
}

// ---------------------------------------------------------------------------
// Order Operations
// ---------------------------------------------------------------------------

// FetchOrders lists orders updated within the window and hydrates each page
// with its item rows.
func (a *LazadaAdapter) FetchOrders(ctx context.Context, window sync.Window, status *order.Status, cursor string) (*sync.Page, error) {
	if window.Duration() > a.MaxWindow() {
		return nil, fmt.Errorf("lazada: window %s exceeds platform maximum %s: %w",
			window.Duration(), a.MaxWindow(), sync.ErrInvalidCursor)
	}

	offset, err := decodeOffsetCursor(cursor)
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"update_after":   window.From.Format(lazadaTimeLayout),
		"update_before":  window.To.Format(lazadaTimeLayout),
		"offset":         strconv.Itoa(offset),
		"limit":          strconv.Itoa(lazadaPageSize),
		"sort_by":        "updated_at",
		"sort_direction": "ASC",
	}
	if status != nil {
		if raw, ok := toLazadaOrderStatus(*status); ok {
			params["status"] = raw
		}
	}

	var data LazadaOrdersData
	if err := a.call(ctx, lazadaOrdersGetPath, params, &data); err != nil {
		return nil, err
	}

	orders, err := a.hydrateItems(ctx, data.Orders)
	if err != nil {
		return nil, err
	}

	records := make([]sync.RawRecord, 0, len(orders))
	for _, o := range orders {
		rec, err := lazadaOrderRecord(o)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	nextOffset := offset + len(data.Orders)
	hasMore := nextOffset < data.CountTotal && len(data.Orders) > 0
	page := &sync.Page{
		Records: records,
		HasMore: hasMore,
	}
	if hasMore {
		page.NextCursor = strconv.Itoa(nextOffset)
	}
	return page, nil
}

// FetchOrderDetail fetches the full payload for a single order
func (a *LazadaAdapter) FetchOrderDetail(ctx context.Context, platformOrderID string) (*sync.RawRecord, error) {
	params := map[string]string{"order_id": platformOrderID}

	var raw LazadaOrder
	if err := a.call(ctx, lazadaOrderGetPath, params, &raw); err != nil {
		return nil, err
	}
	orders, err := a.hydrateItems(ctx, []LazadaOrder{raw})
	if err != nil {
		return nil, err
	}
	return lazadaOrderRecord(orders[0])
}

// FetchReturns lists orders whose items entered the returned state. Lazada
// models returns as an item status rather than a separate case API, so this
// is a filtered order listing.
func (a *LazadaAdapter) FetchReturns(ctx context.Context, window sync.Window, cursor string) (*sync.Page, error) {
	returned := order.StatusReturned
	return a.FetchOrders(ctx, window, &returned, cursor)
}

// hydrateItems fills the item rows of each order through /orders/items/get
func (a *LazadaAdapter) hydrateItems(ctx context.Context, orders []LazadaOrder) ([]LazadaOrder, error) {
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, strconv.FormatInt(o.OrderID, 10))
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("lazada: encode order id list: %w", err)
	}

	var entries []LazadaOrderItemsEntry
	if err := a.call(ctx, lazadaOrderItemsGetPath, map[string]string{"order_ids": string(idsJSON)}, &entries); err != nil {
		return nil, err
	}

	itemsByOrder := make(map[int64][]LazadaOrderItem, len(entries))
	for _, entry := range entries {
		itemsByOrder[entry.OrderID] = entry.OrderItems
	}
	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].OrderID]
	}
	return orders, nil
}

// lazadaOrderRecord encodes a hydrated order into a raw record
func lazadaOrderRecord(o LazadaOrder) (*sync.RawRecord, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("lazada: re-encode order %d: %w", o.OrderID, err)
	}
	eventAt, err := parseLazadaTime(o.UpdatedAt)
	if err != nil {
		eventAt = time.Time{}
	}
	return &sync.RawRecord{
		Platform:        order.PlatformLazada,
		PlatformOrderID: strconv.FormatInt(o.OrderID, 10),
		EventAt:         eventAt,
		Kind:            sync.RecordKindOrder,
		Payload:         payload,
	}, nil
}

// decodeOffsetCursor turns the opaque cursor back into a listing offset
func decodeOffsetCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0, fmt.Errorf("lazada: cursor %q: %w", cursor, sync.ErrInvalidCursor)
	}
	return offset, nil
}

// parseLazadaTime accepts the two timestamp spellings seen in Lazada
// payloads, RFC3339 and the space-separated legacy variant, and returns the
// absolute instant in UTC.
func parseLazadaTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("lazada: empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02 15:04:05 -0700", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("lazada: timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// call performs a signed GET against the Lazada API, retrying throttled and
// transient failures per the backoff policy, and decodes the envelope's data
// block into out. A rejected access token is renewed through the refresh
// token and the request repeated once; a second rejection fails.
func (a *LazadaAdapter) call(ctx context.Context, apiPath string, params map[string]string, out any) error {
	err := a.backoff.Retry(ctx, IsRetryable, func() error {
		return a.doRequest(ctx, apiPath, params, out)
	})
	if err == nil || !errors.Is(err, sync.ErrAuthExpired) || a.config.RefreshToken == "" {
		return err
	}
	if rerr := a.refreshAccessToken(ctx); rerr != nil {
		return rerr
	}
	return a.backoff.Retry(ctx, IsRetryable, func() error {
		return a.doRequest(ctx, apiPath, params, out)
	})
}

// refreshAccessToken exchanges the refresh token for a new access token. The
// auth endpoint signs at app level since the expired token cannot take part
// in its own renewal.
func (a *LazadaAdapter) refreshAccessToken(ctx context.Context) error {
	signed := map[string]string{
		"app_key":       a.config.AppKey,
		"refresh_token": a.config.RefreshToken,
		"timestamp":     strconv.FormatInt(a.now().UnixMilli(), 10),
		"sign_method":   "sha256",
	}
	signed["sign"] = a.config.Sign(lazadaTokenRefreshPath, signed)

	q := url.Values{}
	for k, v := range signed {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.config.APIBaseURL+lazadaTokenRefreshPath+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("lazada: failed to create refresh request: %w", err)
	}

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

	var tokens LazadaTokenResponse
	if err := json.Unmarshal(body, &tokens); err != nil {
		return fmt.Errorf("lazada: failed to parse refresh response: %w", err)
	}
	if !tokens.IsSuccess() || tokens.AccessToken == "" {
		return fmt.Errorf("%w: token refresh: %s - %s", sync.ErrAuthExpired, tokens.Code, tokens.Message)
	}

	a.config.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		a.config.RefreshToken = tokens.RefreshToken
	}
	return nil
}

func (a *LazadaAdapter) doRequest(ctx context.Context, apiPath string, params map[string]string, out any) error {
	signed := make(map[string]string, len(params)+5)
	for k, v := range params {
		signed[k] = v
	}
	signed["app_key"] = a.config.AppKey
	signed["access_token"] = a.config.AccessToken
	signed["timestamp"] = strconv.FormatInt(a.now().UnixMilli(), 10)
	signed["sign_method"] = "sha256"
	signed["sign"] = a.config.Sign(apiPath, signed)

	q := url.Values{}
	for k, v := range signed {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.APIBaseURL+apiPath+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("lazada: failed to create request: %w", err)
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
		return fmt.Errorf("lazada: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var envelope LazadaEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("lazada: failed to parse response: %w", err)
	}
	if !envelope.IsSuccess() {
		return classifyLazadaError(envelope.Code, envelope.Message)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("lazada: failed to parse response body: %w", err)
	}
	return nil
}

// classifyLazadaError maps platform-level error codes onto the connector
// error taxonomy.
func classifyLazadaError(code, message string) error {
	switch code {
	case "IllegalAccessToken", "InvalidToken", "SessionExpired":
		return fmt.Errorf("%w: %s - %s", sync.ErrAuthExpired, code, message)
	case "ApiCallLimit":
		return fmt.Errorf("%w: %s - %s", sync.ErrRateLimited, code, message)
	case "ServiceUnavailable", "SystemError":
		return fmt.Errorf("%w: %s - %s", sync.ErrTransientFetch, code, message)
	default:
		return fmt.Errorf("lazada: %s - %s", code, message)
	}
}

// toLazadaOrderStatus maps a canonical status filter onto the platform's
// listing filter value.
func toLazadaOrderStatus(s order.Status) (string, bool) {
	switch s {
	case order.StatusNew:
		return "unpaid", true
	case order.StatusPaid:
		return "pending", true
	case order.StatusPacking:
		return "ready_to_ship", true
	case order.StatusShipped:
		return "shipped", true
	case order.StatusDelivered:
		return "delivered", true
	case order.StatusCancelled:
		return "canceled", true
	case order.StatusReturned:
		return "returned", true
	case order.StatusDeliveryFailed:
		return "failed", true
	default:
		return "", false
	}
}

// Ensure LazadaAdapter implements the Connector port
var _ sync.Connector = (*LazadaAdapter)(nil)
