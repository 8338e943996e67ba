package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ordersync/backend/internal/domain/order"
)

// ---------------------------------------------------------------------------
// Raw Records
// ---------------------------------------------------------------------------

// RecordKind distinguishes the API surface a raw record came from.
type RecordKind string

const (
	// RecordKindOrder is a record from the platform's order listing/detail API
	RecordKindOrder RecordKind = "ORDER"
	// RecordKindReturn is a record from the platform's return/refund API
	RecordKindReturn RecordKind = "RETURN"
)

// IsValid returns true if the record kind is valid
func (k RecordKind) IsValid() bool {
	switch k {
	case RecordKindOrder, RecordKindReturn:
		return true
	default:
		return false
	}
}

// RawRecord is a single platform order payload as fetched, before
// normalization. EventAt is the platform's own last-update time for the
// record, already converted to UTC by the connector.
type RawRecord struct {
	// Platform is the marketplace the record came from
	Platform order.Platform
	// PlatformOrderID is the order identifier in the platform's namespace
	PlatformOrderID string
	// EventAt is the platform-reported update time of the record, in UTC
	EventAt time.Time
	// Kind distinguishes order records from return records
	Kind RecordKind
	// Payload is the raw platform JSON for the record
	Payload json.RawMessage
}

// Page is one page of raw records from a platform listing call.
type Page struct {
	// Records are the raw records on this page
	Records []RawRecord
	// NextCursor resumes pagination after this page. Opaque to callers.
	NextCursor string
	// HasMore indicates whether another page exists
	HasMore bool
}

// ---------------------------------------------------------------------------
// Fetch Windows
// ---------------------------------------------------------------------------

// Window is a half-open [From, To) time range to fetch updated orders for.
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow builds a window, normalizing both bounds to UTC.
func NewWindow(from, to time.Time) Window {
	return Window{From: from.UTC(), To: to.UTC()}
}

// IsZero returns true if the window has no extent
func (w Window) IsZero() bool {
	return !w.To.After(w.From)
}

// Duration returns the window's extent
func (w Window) Duration() time.Duration {
	return w.To.Sub(w.From)
}

// Split divides the window into consecutive sub-windows no longer than max.
// Sub-windows abut exactly; no gap and no overlap is introduced. A window
// already within max is returned as a single element.
func (w Window) Split(max time.Duration) []Window {
	if w.IsZero() {
		return nil
	}
	if max <= 0 || w.Duration() <= max {
		return []Window{w}
	}
	var parts []Window
	from := w.From
	for from.Before(w.To) {
		to := from.Add(max)
		if to.After(w.To) {
			to = w.To
		}
		parts = append(parts, Window{From: from, To: to})
		from = to
	}
	return parts
}

// ---------------------------------------------------------------------------
// Connector Port
// ---------------------------------------------------------------------------

// Connector is the outbound port a marketplace adapter implements. One
// connector instance serves one platform with one set of credentials.
//
// FetchOrders callers must pass a window no longer than MaxWindow; adapters
// reject longer windows rather than silently truncating them.
type Connector interface {
	// Platform returns the marketplace this connector serves
	Platform() order.Platform

	// MaxWindow returns the longest [from, to) range the platform's listing
	// API accepts in a single query
	MaxWindow() time.Duration

	// FetchOrders lists orders updated within the window, optionally
	// filtered to a single status, resuming from cursor. An empty cursor
	// starts from the beginning of the window.
	FetchOrders(ctx context.Context, window Window, status *order.Status, cursor string) (*Page, error)

	// FetchOrderDetail fetches the full payload for a single order
	FetchOrderDetail(ctx context.Context, platformOrderID string) (*RawRecord, error)

	// FetchReturns lists return/refund records updated within the window
	FetchReturns(ctx context.Context, window Window, cursor string) (*Page, error)
}

// ---------------------------------------------------------------------------
// Normalizer Port
// ---------------------------------------------------------------------------

// NormalizedOrder is the outcome of normalizing one raw record.
type NormalizedOrder struct {
	// Order is the canonical order built from the record
	Order *order.Order
	// StatusOnly marks records that carry a status observation but no full
	// order body, such as return cases. Only the status path applies; no
	// field merge happens.
	StatusOnly bool
	// Warnings are non-fatal issues found while normalizing, such as an
	// unmapped platform status held as UNKNOWN
	Warnings []string
}

// Normalizer converts one platform's raw payloads into canonical orders.
// Implementations are pure: no I/O, no clock reads, deterministic for a
// given record.
type Normalizer interface {
	// Platform returns the marketplace this normalizer understands
	Platform() order.Platform

	// Normalize converts a raw record into a canonical order. A record that
	// cannot be converted returns ErrMalformedRecord with detail wrapped.
	Normalize(record RawRecord) (*NormalizedOrder, error)
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry resolves the connector and normalizer pair for a platform.
type Registry interface {
	// Connector returns the connector for the platform, or false if the
	// platform is not configured
	Connector(platform order.Platform) (Connector, bool)

	// Normalizer returns the normalizer for the platform, or false if the
	// platform is not configured
	Normalizer(platform order.Platform) (Normalizer, bool)

	// Platforms returns all configured platforms in stable order
	Platforms() []order.Platform
}
