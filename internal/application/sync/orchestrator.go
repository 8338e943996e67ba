package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// Orchestrator drives full sync runs: it splits the requested window to the
// platform's maximum, walks the pagination, normalizes every record and
// pushes each observation through the status engine. One run holds the
// platform's lease so overlapping runs against the same platform cannot
// double-process.
type Orchestrator struct {
	registry sync.Registry
	engine   *StatusEngine
	jobs     sync.JobRepository
	leases   sync.LeaseRepository
	ownerID  string
	leaseTTL time.Duration
	lookback time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator creates a new Orchestrator. ownerID identifies this
// instance on the platform leases it takes.
func NewOrchestrator(
	registry sync.Registry,
	engine *StatusEngine,
	jobs sync.JobRepository,
	leases sync.LeaseRepository,
	ownerID string,
	leaseTTL time.Duration,
	lookback time.Duration,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if leaseTTL <= 0 {
		leaseTTL = 5 * time.Minute
	}
	if lookback <= 0 {
		lookback = 72 * time.Hour
	}
	return &Orchestrator{
		registry: registry,
		engine:   engine,
		jobs:     jobs,
		leases:   leases,
		ownerID:  ownerID,
		leaseTTL: leaseTTL,
		lookback: lookback,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one sync run for one platform over [from, to). The returned
// job carries the counters and terminal status; a run that aborted on a
// platform-level failure still returns its FAILED job for visibility.
//
// A run against a platform whose lease is held elsewhere returns
// sync.ErrLeaseHeld without creating a job.
func (o *Orchestrator) Run(ctx context.Context, platform order.Platform, from, to time.Time) (*sync.Job, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "orchestrator", "run",
		attribute.String(telemetry.SpanAttrPlatform, platform.String()))
	defer span.End()

	connector, ok := o.registry.Connector(platform)
	if !ok {
		return nil, fmt.Errorf("platform %s is not configured: %w", platform, shared.ErrNotFound)
	}
	normalizer, ok := o.registry.Normalizer(platform)
	if !ok {
		return nil, fmt.Errorf("platform %s has no normalizer: %w", platform, shared.ErrNotFound)
	}

	window := sync.NewWindow(from, to)
	if window.IsZero() {
		return nil, shared.ErrInvalidInput
	}

	if _, err := o.leases.Acquire(ctx, platform, o.ownerID, o.leaseTTL); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.leases.Release(releaseCtx, platform, o.ownerID); err != nil {
			o.logger.Warn("failed to release sync lease",
				zap.String("platform", platform.String()), zap.Error(err))
		}
	}()

	job, err := sync.NewJob(platform, window)
	if err != nil {
		return nil, err
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	o.logger.Info("sync run started",
		zap.String("platform", platform.String()),
		zap.Time("from", window.From),
		zap.Time("to", window.To))

	span.SetAttributes(attribute.String(telemetry.SpanAttrJobID, job.ID.String()))

	aborted := o.runWindows(ctx, connector, normalizer, job, window)

	job.Finish(aborted)
	if err := o.jobs.Update(ctx, job); err != nil {
		return job, err
	}

	o.logger.Info("sync run finished",
		zap.String("platform", platform.String()),
		zap.String("status", job.Status.String()),
		zap.Int("fetched", job.Fetched),
		zap.Int("created", job.Created),
		zap.Int("updated", job.Updated),
		zap.Int("skipped", job.Skipped))
	return job, nil
}

// runWindows walks every sub-window for both the order feed and the return
// feed. It reports whether the run aborted on a platform-level failure.
func (o *Orchestrator) runWindows(ctx context.Context, connector sync.Connector, normalizer sync.Normalizer, job *sync.Job, window sync.Window) bool {
	for _, sub := range window.Split(connector.MaxWindow()) {
		fetchOrders := func(c context.Context, cursor string) (*sync.Page, error) {
			return connector.FetchOrders(c, sub, nil, cursor)
		}
		if aborted := o.runFeed(ctx, fetchOrders, normalizer, job); aborted {
			return true
		}

		fetchReturns := func(c context.Context, cursor string) (*sync.Page, error) {
			return connector.FetchReturns(c, sub, cursor)
		}
		if aborted := o.runFeed(ctx, fetchReturns, normalizer, job); aborted {
			return true
		}
	}
	return false
}

// runFeed paginates one feed to exhaustion. A fetch failure is platform-level
// and aborts the run; per-record failures are counted and the batch continues.
func (o *Orchestrator) runFeed(ctx context.Context, fetch func(context.Context, string) (*sync.Page, error), normalizer sync.Normalizer, job *sync.Job) bool {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			job.RecordError(err.Error())
			return true
		}

		page, err := fetch(ctx, cursor)
		if err != nil {
			job.RecordError(err.Error())
			o.logger.Error("platform fetch failed",
				zap.String("platform", job.Platform.String()), zap.Error(err))
			return true
		}

		for _, record := range page.Records {
			job.Fetched++
			o.processRecord(ctx, normalizer, job, record)
		}

		// Keep the lease and the progress counters fresh between pages
		if err := o.leases.Extend(ctx, job.Platform, o.ownerID, o.leaseTTL); err != nil {
			job.RecordError(err.Error())
			return true
		}
		if err := o.jobs.Update(ctx, job); err != nil {
			o.logger.Warn("failed to persist job progress", zap.Error(err))
		}

		if !page.HasMore {
			return false
		}
		cursor = page.NextCursor
	}
}

// processRecord normalizes and applies one raw record. Failures are recorded
// on the job and do not stop the batch.
func (o *Orchestrator) processRecord(ctx context.Context, normalizer sync.Normalizer, job *sync.Job, record sync.RawRecord) {
	normalized, err := normalizer.Normalize(record)
	if err != nil {
		job.Skipped++
		job.RecordError(err.Error())
		o.logger.Warn("record normalization failed",
			zap.String("platform", record.Platform.String()),
			zap.String("platform_order_id", record.PlatformOrderID),
			zap.Error(err))
		return
	}
	for _, warning := range normalized.Warnings {
		o.logger.Warn("normalization warning",
			zap.String("platform", record.Platform.String()),
			zap.String("platform_order_id", record.PlatformOrderID),
			zap.String("warning", warning))
	}

	res, err := o.engine.ApplyObservation(ctx, normalized)
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) || errors.Is(err, shared.ErrNotFound) {
			job.Skipped++
			job.RecordError(err.Error())
			o.logger.Warn("observation not applied",
				zap.String("platform_order_id", record.PlatformOrderID),
				zap.Error(err))
			return
		}
		job.Skipped++
		job.RecordError(err.Error())
		o.logger.Error("observation failed",
			zap.String("platform_order_id", record.PlatformOrderID),
			zap.Error(err))
		return
	}

	if res.Created {
		job.Created++
	} else if res.Updated {
		job.Updated++
	}
}

// RunAll runs a catch-up window for every configured platform, resuming each
// from its last successful run. The lookback bound keeps a platform that has
// never synced from issuing an unbounded historical fetch.
func (o *Orchestrator) RunAll(ctx context.Context) ([]*sync.Job, error) {
	now := o.now().UTC()
	platforms := o.registry.Platforms()
	jobs := make([]*sync.Job, 0, len(platforms))

	var firstErr error
	for _, platform := range platforms {
		from, err := o.resumeFrom(ctx, platform, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		job, err := o.Run(ctx, platform, from, now)
		if err != nil {
			if errors.Is(err, sync.ErrLeaseHeld) {
				o.logger.Info("platform lease held elsewhere, skipping",
					zap.String("platform", platform.String()))
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, firstErr
}

// resumeFrom picks the window start for a catch-up run: the end of the last
// successful run, clamped to the lookback bound.
func (o *Orchestrator) resumeFrom(ctx context.Context, platform order.Platform, now time.Time) (time.Time, error) {
	floor := now.Add(-o.lookback)

	status := sync.JobStatusSuccess
	recent, _, err := o.jobs.List(ctx, sync.JobFilter{
		Platform: &platform,
		Status:   &status,
		Limit:    1,
	})
	if err != nil {
		return time.Time{}, err
	}
	if len(recent) == 0 || recent[0].WindowTo.Before(floor) {
		return floor, nil
	}
	return recent[0].WindowTo, nil
}
