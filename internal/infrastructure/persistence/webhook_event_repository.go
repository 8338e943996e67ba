package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/sync"
)

// GormWebhookEventRepository implements sync.WebhookEventRepository using GORM
type GormWebhookEventRepository struct {
	db *gorm.DB
}

// NewGormWebhookEventRepository creates a new GormWebhookEventRepository
func NewGormWebhookEventRepository(db *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

// Create persists a newly received event. The caller acknowledges the
// platform only after this returns.
func (r *GormWebhookEventRepository) Create(ctx context.Context, event *sync.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// Update persists the event's processing outcome
func (r *GormWebhookEventRepository) Update(ctx context.Context, event *sync.WebhookEvent) error {
	return r.db.WithContext(ctx).Save(event).Error
}

// FindByID retrieves an event by its identifier
func (r *GormWebhookEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.WebhookEvent, error) {
	var event sync.WebhookEvent
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

// List retrieves events matching the filter, newest first
func (r *GormWebhookEventRepository) List(ctx context.Context, filter sync.WebhookEventFilter) ([]sync.WebhookEvent, int64, error) {
	query := r.db.WithContext(ctx).Model(&sync.WebhookEvent{})
	if filter.Platform != nil {
		query = query.Where("platform = ?", *filter.Platform)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.PlatformOrderID != "" {
		query = query.Where("platform_order_id = ?", filter.PlatformOrderID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var events []sync.WebhookEvent
	if err := query.
		Order("created_at desc").
		Offset(filter.Offset).
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Ensure GormWebhookEventRepository implements the repository interface
var _ sync.WebhookEventRepository = (*GormWebhookEventRepository)(nil)
