package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/sync"
)

// GormSyncLeaseRepository implements sync.LeaseRepository using GORM.
// Mutual exclusion rests on the unique platform index plus conditional
// updates, so it holds across processes sharing the database.
type GormSyncLeaseRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormSyncLeaseRepository creates a new GormSyncLeaseRepository
func NewGormSyncLeaseRepository(db *gorm.DB) *GormSyncLeaseRepository {
	return &GormSyncLeaseRepository{db: db, now: time.Now}
}

// Acquire takes the lease for the platform on behalf of ownerID for ttl.
// An expired lease is reclaimed in place via a conditional update; a live
// lease held by someone else surfaces sync.ErrLeaseHeld.
func (r *GormSyncLeaseRepository) Acquire(ctx context.Context, platform order.Platform, ownerID string, ttl time.Duration) (*sync.Lease, error) {
	now := r.now().UTC()
	lease := &sync.Lease{
		BaseEntity: shared.NewBaseEntity(),
		Platform:   platform,
		OwnerID:    ownerID,
		ExpiresAt:  now.Add(ttl),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing sync.Lease
		err := tx.Where("platform = ?", platform).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(lease).Error; err != nil {
				if isUniqueViolation(err) {
					return sync.ErrLeaseHeld
				}
				return err
			}
			return nil
		case err != nil:
			return err
		}

		if existing.OwnerID != ownerID && !existing.IsExpired(now) {
			return sync.ErrLeaseHeld
		}

		// Reclaim or re-enter. The expiry guard in the WHERE clause closes
		// the race against another worker reclaiming at the same instant.
		result := tx.Model(&sync.Lease{}).
			Where("platform = ? AND (owner_id = ? OR expires_at <= ?)", platform, ownerID, now).
			Updates(map[string]any{
				"owner_id":   ownerID,
				"expires_at": now.Add(ttl),
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return sync.ErrLeaseHeld
		}
		lease.ID = existing.ID
		lease.CreatedAt = existing.CreatedAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// Extend pushes the expiry of a held lease forward by ttl
func (r *GormSyncLeaseRepository) Extend(ctx context.Context, platform order.Platform, ownerID string, ttl time.Duration) error {
	now := r.now().UTC()
	result := r.db.WithContext(ctx).Model(&sync.Lease{}).
		Where("platform = ? AND owner_id = ? AND expires_at > ?", platform, ownerID, now).
		Updates(map[string]any{
			"expires_at": now.Add(ttl),
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return sync.ErrLeaseHeld
	}
	return nil
}

// Release gives up the lease. Releasing a lease owned by someone else is a
// no-op.
func (r *GormSyncLeaseRepository) Release(ctx context.Context, platform order.Platform, ownerID string) error {
	return r.db.WithContext(ctx).
		Where("platform = ? AND owner_id = ?", platform, ownerID).
		Delete(&sync.Lease{}).Error
}

// Ensure GormSyncLeaseRepository implements the repository interface
var _ sync.LeaseRepository = (*GormSyncLeaseRepository)(nil)
