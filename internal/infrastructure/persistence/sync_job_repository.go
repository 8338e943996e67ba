package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/sync"
)

// GormSyncJobRepository implements sync.JobRepository using GORM
type GormSyncJobRepository struct {
	db *gorm.DB
}

// NewGormSyncJobRepository creates a new GormSyncJobRepository
func NewGormSyncJobRepository(db *gorm.DB) *GormSyncJobRepository {
	return &GormSyncJobRepository{db: db}
}

// Create persists a new job
func (r *GormSyncJobRepository) Create(ctx context.Context, job *sync.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update persists job progress and terminal status
func (r *GormSyncJobRepository) Update(ctx context.Context, job *sync.Job) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// FindByID retrieves a job by its identifier
func (r *GormSyncJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.Job, error) {
	var job sync.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// List retrieves jobs matching the filter, newest first
func (r *GormSyncJobRepository) List(ctx context.Context, filter sync.JobFilter) ([]sync.Job, int64, error) {
	query := r.db.WithContext(ctx).Model(&sync.Job{})
	if filter.Platform != nil {
		query = query.Where("platform = ?", *filter.Platform)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	var jobs []sync.Job
	if err := query.
		Order("started_at desc").
		Offset(filter.Offset).
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// Ensure GormSyncJobRepository implements the repository interface
var _ sync.JobRepository = (*GormSyncJobRepository)(nil)
