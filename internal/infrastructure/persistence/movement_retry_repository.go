package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/stock"
)

// GormMovementRetryRepository implements stock.MovementRetryRepository using GORM
type GormMovementRetryRepository struct {
	db *gorm.DB
}

// NewGormMovementRetryRepository creates a new GormMovementRetryRepository
func NewGormMovementRetryRepository(db *gorm.DB) *GormMovementRetryRepository {
	return &GormMovementRetryRepository{db: db}
}

// Enqueue records a failed emission. Re-enqueueing an existing unresolved
// (order, cause) pair is a no-op so repeated failures do not multiply queue
// entries; a resolved row for the pair is reopened in place to respect the
// unique index.
func (r *GormMovementRetryRepository) Enqueue(ctx context.Context, retry *stock.MovementRetry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing stock.MovementRetry
		err := tx.Where("order_id = ? AND cause = ?", retry.OrderID, retry.Cause).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(retry).Error
		case err != nil:
			return err
		}
		if !existing.Resolved {
			return nil
		}
		existing.Resolved = false
		existing.Attempts = 0
		existing.NextAttemptAt = retry.NextAttemptAt
		existing.LastError = retry.LastError
		existing.UpdatedAt = time.Now().UTC()
		return tx.Save(&existing).Error
	})
}

// FindDue returns unresolved retries whose next attempt time has passed,
// oldest first
func (r *GormMovementRetryRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]stock.MovementRetry, error) {
	if limit <= 0 {
		limit = 50
	}
	var retries []stock.MovementRetry
	if err := r.db.WithContext(ctx).
		Where("resolved = ? AND next_attempt_at <= ?", false, now).
		Order("next_attempt_at asc").
		Limit(limit).
		Find(&retries).Error; err != nil {
		return nil, err
	}
	return retries, nil
}

// Update persists attempt bookkeeping or resolution
func (r *GormMovementRetryRepository) Update(ctx context.Context, retry *stock.MovementRetry) error {
	return r.db.WithContext(ctx).Save(retry).Error
}

// Ensure GormMovementRetryRepository implements the repository interface
var _ stock.MovementRetryRepository = (*GormMovementRetryRepository)(nil)
