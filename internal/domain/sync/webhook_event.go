package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Webhook Events
// ---------------------------------------------------------------------------

// WebhookStatus represents the processing state of a received webhook event
type WebhookStatus string

const (
	// WebhookStatusPending indicates the event is persisted but not yet applied
	WebhookStatusPending WebhookStatus = "PENDING"
	// WebhookStatusApplied indicates the event changed the order
	WebhookStatusApplied WebhookStatus = "APPLIED"
	// WebhookStatusIgnored indicates the event was stale or a no-op
	WebhookStatusIgnored WebhookStatus = "IGNORED"
	// WebhookStatusFailed indicates applying the event errored
	WebhookStatusFailed WebhookStatus = "FAILED"
)

// IsValid returns true if the webhook status is valid
func (s WebhookStatus) IsValid() bool {
	switch s {
	case WebhookStatusPending, WebhookStatusApplied, WebhookStatusIgnored, WebhookStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of WebhookStatus
func (s WebhookStatus) String() string {
	return string(s)
}

// WebhookEvent is a push notification from a platform, persisted before any
// processing so a failure while applying never loses the event. Events with
// an invalid signature are still stored and processed; SignatureValid is
// kept for audit.
type WebhookEvent struct {
	shared.BaseEntity

	// Platform is the marketplace that sent the event
	Platform order.Platform `gorm:"type:varchar(16);not null;index:idx_webhook_events_platform" json:"platform"`
	// PlatformOrderID is the order the event refers to
	PlatformOrderID string `gorm:"type:varchar(64);not null;index:idx_webhook_events_order" json:"platform_order_id"`
	// EventType is the platform's own event classification, kept verbatim
	EventType string `gorm:"type:varchar(64);not null" json:"event_type"`
	// EventAt is the platform-reported event time, UTC. Zero when the
	// payload carried none.
	EventAt *time.Time `json:"event_at,omitempty"`
	// Payload is the raw request body as received
	Payload string `gorm:"type:text;not null" json:"payload"`
	// SignatureValid records whether the request signature verified
	SignatureValid bool `gorm:"not null;default:false" json:"signature_valid"`
	// Status is the processing state
	Status WebhookStatus `gorm:"type:varchar(12);not null;default:'PENDING';index:idx_webhook_events_status" json:"status"`
	// Error holds the failure detail when Status is FAILED
	Error string `gorm:"type:text" json:"error,omitempty"`
	// ProcessedAt is when processing last ran for the event
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	// ArchiveKey is the object storage key of the archived payload, when
	// archiving is enabled
	ArchiveKey string `gorm:"type:varchar(256)" json:"archive_key,omitempty"`
}

// TableName returns the database table name for WebhookEvent
func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// NewWebhookEvent persistably captures a received webhook.
func NewWebhookEvent(platform order.Platform, platformOrderID, eventType, payload string, eventAt *time.Time, signatureValid bool) (*WebhookEvent, error) {
	if !platform.IsValid() || platformOrderID == "" || payload == "" {
		return nil, shared.ErrInvalidInput
	}
	e := &WebhookEvent{
		BaseEntity:      shared.NewBaseEntity(),
		Platform:        platform,
		PlatformOrderID: platformOrderID,
		EventType:       eventType,
		Payload:         payload,
		SignatureValid:  signatureValid,
		Status:          WebhookStatusPending,
	}
	if eventAt != nil {
		at := eventAt.UTC()
		e.EventAt = &at
	}
	return e, nil
}

// MarkApplied records that the event changed the order.
func (e *WebhookEvent) MarkApplied() {
	e.finish(WebhookStatusApplied, "")
}

// MarkIgnored records that the event was stale or carried no change.
func (e *WebhookEvent) MarkIgnored(reason string) {
	e.finish(WebhookStatusIgnored, reason)
}

// MarkFailed records that applying the event errored. Failed events remain
// replayable.
func (e *WebhookEvent) MarkFailed(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	e.finish(WebhookStatusFailed, msg)
}

// Reset returns a FAILED or IGNORED event to PENDING for replay.
func (e *WebhookEvent) Reset() error {
	if e.Status == WebhookStatusPending {
		return shared.ErrInvalidState
	}
	e.Status = WebhookStatusPending
	e.Error = ""
	e.ProcessedAt = nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (e *WebhookEvent) finish(status WebhookStatus, detail string) {
	now := time.Now().UTC()
	e.Status = status
	e.Error = detail
	e.ProcessedAt = &now
	e.UpdatedAt = now
}

// ---------------------------------------------------------------------------
// Webhook Event Repository
// ---------------------------------------------------------------------------

// WebhookEventFilter defines filter criteria for listing webhook events
type WebhookEventFilter struct {
	// Platform filters by marketplace (optional)
	Platform *order.Platform
	// Status filters by processing state (optional)
	Status *WebhookStatus
	// PlatformOrderID filters to events for one order (optional)
	PlatformOrderID string
	// Limit caps the result size; 0 means the repository default
	Limit int
	// Offset skips results for pagination
	Offset int
}

// WebhookEventRepository defines the persistence interface for webhook events
type WebhookEventRepository interface {
	// Create persists a newly received event. Must be durable before the
	// platform is acknowledged.
	Create(ctx context.Context, event *WebhookEvent) error

	// Update persists the event's processing outcome
	Update(ctx context.Context, event *WebhookEvent) error

	// FindByID retrieves an event by its identifier
	FindByID(ctx context.Context, id uuid.UUID) (*WebhookEvent, error)

	// List retrieves events matching the filter, newest first
	List(ctx context.Context, filter WebhookEventFilter) ([]WebhookEvent, int64, error)
}
