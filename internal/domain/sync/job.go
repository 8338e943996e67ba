package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Sync Jobs
// ---------------------------------------------------------------------------

// JobStatus represents the lifecycle state of a sync run
type JobStatus string

const (
	// JobStatusRunning indicates the run is in progress
	JobStatusRunning JobStatus = "RUNNING"
	// JobStatusSuccess indicates every record in the window was applied
	JobStatusSuccess JobStatus = "SUCCESS"
	// JobStatusPartial indicates the run skipped records or aborted after
	// making progress
	JobStatusPartial JobStatus = "PARTIAL"
	// JobStatusFailed indicates the run broke before processing any records
	JobStatusFailed JobStatus = "FAILED"
)

// IsValid returns true if the job status is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusRunning, JobStatusSuccess, JobStatusPartial, JobStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// IsFinished returns true once the run has reached a terminal status
func (s JobStatus) IsFinished() bool {
	return s == JobStatusSuccess || s == JobStatusPartial || s == JobStatusFailed
}

// Job records one sync run for one platform over one requested window.
// Counts accumulate as pages are processed so an operator can watch a
// long-running job make progress.
type Job struct {
	shared.BaseEntity

	// Platform is the marketplace this run covers
	Platform order.Platform `gorm:"type:varchar(16);not null;index:idx_sync_jobs_platform" json:"platform"`
	// WindowFrom is the inclusive lower bound of the requested window, UTC
	WindowFrom time.Time `gorm:"not null" json:"window_from"`
	// WindowTo is the exclusive upper bound of the requested window, UTC
	WindowTo time.Time `gorm:"not null" json:"window_to"`
	// Status is the run's lifecycle state
	Status JobStatus `gorm:"type:varchar(12);not null;default:'RUNNING'" json:"status"`
	// Fetched counts raw records pulled from the platform
	Fetched int `gorm:"not null;default:0" json:"fetched"`
	// Created counts orders inserted for the first time
	Created int `gorm:"not null;default:0" json:"created"`
	// Updated counts orders that already existed and were merged
	Updated int `gorm:"not null;default:0" json:"updated"`
	// Skipped counts records dropped as malformed or stale
	Skipped int `gorm:"not null;default:0" json:"skipped"`
	// FirstError preserves the first failure seen, for triage
	FirstError string `gorm:"type:text" json:"first_error,omitempty"`
	// StartedAt is when the run began
	StartedAt time.Time `gorm:"not null" json:"started_at"`
	// FinishedAt is when the run reached a terminal status
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// TableName returns the database table name for Job
func (Job) TableName() string {
	return "sync_jobs"
}

// NewJob starts a RUNNING job for the given platform and window.
func NewJob(platform order.Platform, window Window) (*Job, error) {
	if !platform.IsValid() {
		return nil, shared.ErrInvalidInput
	}
	if window.IsZero() {
		return nil, shared.ErrInvalidInput
	}
	return &Job{
		BaseEntity: shared.NewBaseEntity(),
		Platform:   platform,
		WindowFrom: window.From,
		WindowTo:   window.To,
		Status:     JobStatusRunning,
		StartedAt:  time.Now().UTC(),
	}, nil
}

// Window returns the job's requested window
func (j *Job) Window() Window {
	return Window{From: j.WindowFrom, To: j.WindowTo}
}

// RecordError preserves the first error message of the run.
func (j *Job) RecordError(msg string) {
	if j.FirstError == "" {
		j.FirstError = msg
	}
}

// Finish moves the job to its terminal status. A run that covered the whole
// window lands on SUCCESS when nothing was skipped and PARTIAL otherwise.
// FAILED is reserved for runs that broke before processing a single record;
// an abort mid-window keeps the applied prefix visible as PARTIAL.
func (j *Job) Finish(aborted bool) {
	now := time.Now().UTC()
	j.FinishedAt = &now
	switch {
	case aborted && j.Fetched == 0:
		j.Status = JobStatusFailed
	case aborted || j.Skipped > 0:
		j.Status = JobStatusPartial
	default:
		j.Status = JobStatusSuccess
	}
	j.UpdatedAt = now
}

// ---------------------------------------------------------------------------
// Job Repository
// ---------------------------------------------------------------------------

// JobFilter defines filter criteria for listing sync jobs
type JobFilter struct {
	// Platform filters by marketplace (optional)
	Platform *order.Platform
	// Status filters by job status (optional)
	Status *JobStatus
	// Limit caps the result size; 0 means the repository default
	Limit int
	// Offset skips results for pagination
	Offset int
}

// JobRepository defines the persistence interface for sync jobs
type JobRepository interface {
	// Create persists a new job
	Create(ctx context.Context, job *Job) error

	// Update persists job progress and terminal status
	Update(ctx context.Context, job *Job) error

	// FindByID retrieves a job by its identifier
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// List retrieves jobs matching the filter, newest first
	List(ctx context.Context, filter JobFilter) ([]Job, int64, error)
}
