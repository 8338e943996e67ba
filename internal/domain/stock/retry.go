package stock

import (
	"time"

	"github.com/google/uuid"

	"github.com/ordersync/backend/internal/domain/shared"
)

// MovementRetry queues a movement set whose emission failed after the status
// change was already committed. Stock correctness is repaired asynchronously
// instead of blocking order visibility; the duplicate-movement guard makes
// every retry safe.
type MovementRetry struct {
	shared.BaseEntity
	OrderID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_movement_retry_order_cause,priority:1"`
	Cause         Cause     `gorm:"type:varchar(16);not null;uniqueIndex:idx_movement_retry_order_cause,priority:2"`
	Attempts      int       `gorm:"not null;default:0"`
	NextAttemptAt time.Time `gorm:"not null;index"`
	LastError     string    `gorm:"type:varchar(512)"`
	Resolved      bool      `gorm:"not null;default:false;index"`
}

// TableName returns the table name for GORM
func (MovementRetry) TableName() string {
	return "stock_movement_retries"
}

// NewMovementRetry queues a failed emission for asynchronous repair
func NewMovementRetry(orderID uuid.UUID, cause Cause, lastError string) *MovementRetry {
	return &MovementRetry{
		BaseEntity:    shared.NewBaseEntity(),
		OrderID:       orderID,
		Cause:         cause,
		NextAttemptAt: time.Now().UTC(),
		LastError:     lastError,
	}
}

// Reschedule records a failed attempt and pushes the next one out with
// exponential backoff, capped at 30 minutes.
func (r *MovementRetry) Reschedule(baseDelay time.Duration, lastError string) {
	r.Attempts++
	delay := baseDelay * time.Duration(1<<uint(r.Attempts-1))
	if delay > 30*time.Minute {
		delay = 30 * time.Minute
	}
	r.NextAttemptAt = time.Now().UTC().Add(delay)
	r.LastError = lastError
	r.UpdatedAt = time.Now().UTC()
}

// Resolve marks the queued emission as repaired
func (r *MovementRetry) Resolve() {
	r.Resolved = true
	r.UpdatedAt = time.Now().UTC()
}

// IsDue returns true when the retry is ready to attempt
func (r *MovementRetry) IsDue(now time.Time) bool {
	return !r.Resolved && !now.Before(r.NextAttemptAt)
}
