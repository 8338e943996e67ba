package sync

import (
	"context"
	"time"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Sync Lease
// ---------------------------------------------------------------------------

// Lease serializes sync runs per platform. At most one worker holds the
// lease for a platform at a time; a lease whose ExpiresAt has passed is
// considered abandoned and may be reclaimed by any worker.
type Lease struct {
	shared.BaseEntity

	// Platform is the marketplace this lease guards. One row per platform.
	Platform order.Platform `gorm:"type:varchar(16);not null;uniqueIndex:idx_sync_leases_platform" json:"platform"`
	// OwnerID identifies the worker holding the lease
	OwnerID string `gorm:"type:varchar(64);not null" json:"owner_id"`
	// ExpiresAt is when the lease lapses unless extended
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
}

// TableName returns the database table name for Lease
func (Lease) TableName() string {
	return "sync_leases"
}

// IsExpired reports whether the lease has lapsed at the given instant.
func (l *Lease) IsExpired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// LeaseRepository defines the persistence interface for sync leases.
// Acquire and Extend are atomic against concurrent workers.
type LeaseRepository interface {
	// Acquire takes the lease for the platform on behalf of ownerID for ttl.
	// Returns ErrLeaseHeld when another worker holds an unexpired lease.
	// Expired leases are reclaimed transparently.
	Acquire(ctx context.Context, platform order.Platform, ownerID string, ttl time.Duration) (*Lease, error)

	// Extend pushes the expiry of a held lease forward by ttl. Returns
	// ErrLeaseHeld when the caller no longer owns the lease.
	Extend(ctx context.Context, platform order.Platform, ownerID string, ttl time.Duration) error

	// Release gives up the lease. Releasing a lease owned by someone else
	// is a no-op.
	Release(ctx context.Context, platform order.Platform, ownerID string) error
}
