package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	syncapp "github.com/ordersync/backend/internal/application/sync"
	"github.com/ordersync/backend/internal/domain/order"
	syncdomain "github.com/ordersync/backend/internal/domain/sync"
)

// SyncRunner is the orchestrator surface the handler needs
type SyncRunner interface {
	Run(ctx context.Context, platform order.Platform, from, to time.Time) (*syncdomain.Job, error)
	RunAll(ctx context.Context) ([]*syncdomain.Job, error)
}

var _ SyncRunner = (*syncapp.Orchestrator)(nil)

// SyncHandler handles sync run triggers and job visibility endpoints
type SyncHandler struct {
	BaseHandler
	orchestrator SyncRunner
	jobs         syncdomain.JobRepository
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(orchestrator SyncRunner, jobs syncdomain.JobRepository) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		jobs:         jobs,
	}
}

// RegisterRoutes registers sync routes
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	syncGroup := rg.Group("/sync")
	{
		syncGroup.POST("/run", h.Run)
		syncGroup.POST("/run-all", h.RunAll)
		syncGroup.GET("/jobs", h.ListJobs)
		syncGroup.GET("/jobs/:id", h.GetJob)
	}
}

// RunRequest triggers one sync run over an explicit window
type RunRequest struct {
	Platform string    `json:"platform" binding:"required"`
	From     time.Time `json:"from" binding:"required"`
	To       time.Time `json:"to" binding:"required"`
}

// Run godoc
//
//	@ID			runSync
//	@Summary	Run one platform sync over an explicit window
//	@Tags		sync
//	@Accept		json
//	@Produce	json
//	@Param		request	body	RunRequest	true	"Run parameters"
//	@Success	200	{object}	dto.Response{data=sync.Job}
//	@Failure	400	{object}	dto.Response
//	@Failure	409	{object}	dto.Response	"Lease held by another worker"
//	@Router		/sync/run [post]
func (h *SyncHandler) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	platform := order.Platform(strings.ToUpper(req.Platform))
	if !platform.IsValid() {
		h.BadRequest(c, "Unknown platform")
		return
	}
	if !req.To.After(req.From) {
		h.BadRequest(c, "Window end must be after window start")
		return
	}

	job, err := h.orchestrator.Run(c.Request.Context(), platform, req.From, req.To)
	if err != nil && job == nil {
		h.HandleError(c, err)
		return
	}
	// A FAILED job is still a completed request; the job carries the detail
	h.Success(c, job)
}

// RunAll godoc
//
//	@ID			runSyncAll
//	@Summary	Run a catch-up sync for every configured platform
//	@Description	Each platform syncs from its last successful run up to now.
//	@Tags		sync
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=[]sync.Job}
//	@Router		/sync/run-all [post]
func (h *SyncHandler) RunAll(c *gin.Context) {
	jobs, err := h.orchestrator.RunAll(c.Request.Context())
	if err != nil && len(jobs) == 0 {
		h.HandleError(c, err)
		return
	}
	h.Success(c, jobs)
}

// ListJobsRequest filters the sync job list
type ListJobsRequest struct {
	Platform string `form:"platform"`
	Status   string `form:"status"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// ListJobs godoc
//
//	@ID			listSyncJobs
//	@Summary	List sync jobs, newest first
//	@Tags		sync
//	@Produce	json
//	@Param		platform	query	string	false	"Filter by platform"
//	@Param		status		query	string	false	"Filter by job status"
//	@Param		page		query	int		false	"Page number"
//	@Param		page_size	query	int		false	"Page size"
//	@Success	200	{object}	dto.Response{data=[]sync.Job}
//	@Router		/sync/jobs [get]
func (h *SyncHandler) ListJobs(c *gin.Context) {
	var req ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, "Invalid query parameters")
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 100 {
		req.PageSize = 20
	}

	filter := syncdomain.JobFilter{
		Limit:  req.PageSize,
		Offset: (req.Page - 1) * req.PageSize,
	}
	if req.Platform != "" {
		platform := order.Platform(strings.ToUpper(req.Platform))
		if !platform.IsValid() {
			h.BadRequest(c, "Unknown platform")
			return
		}
		filter.Platform = &platform
	}
	if req.Status != "" {
		status := syncdomain.JobStatus(strings.ToUpper(req.Status))
		if !status.IsValid() {
			h.BadRequest(c, "Unknown job status")
			return
		}
		filter.Status = &status
	}

	jobs, total, err := h.jobs.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, jobs, total, req.Page, req.PageSize)
}

// GetJob godoc
//
//	@ID			getSyncJob
//	@Summary	Get one sync job
//	@Tags		sync
//	@Produce	json
//	@Param		id	path	string	true	"Job ID"
//	@Success	200	{object}	dto.Response{data=sync.Job}
//	@Failure	404	{object}	dto.Response
//	@Router		/sync/jobs/{id} [get]
func (h *SyncHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid job ID")
		return
	}

	job, err := h.jobs.FindByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, job)
}
