package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/infrastructure/cache"
)

type orchestratorFixture struct {
	orchestrator *Orchestrator
	registry     *stubRegistry
	connector    *stubConnector
	orders       *memOrderRepo
	movements    *memMovementRepo
	jobs         *memJobRepo
	leases       *memLeaseRepo
}

func newOrchestratorFixture(t *testing.T, maxWindow time.Duration, pageSize int) *orchestratorFixture {
	t.Helper()
	f := &orchestratorFixture{
		registry:  newStubRegistry(),
		connector: newStubConnector(order.PlatformShopee, maxWindow, pageSize),
		orders:    newMemOrderRepo(),
		movements: newMemMovementRepo(),
		jobs:      newMemJobRepo(),
		leases:    newMemLeaseRepo(),
	}
	f.registry.add(f.connector, &stubNormalizer{platform: order.PlatformShopee})

	engine := NewStatusEngine(f.orders, f.movements, newMemRetryRepo(),
		cache.NewInMemoryOrderLocker(), uuid.New(), zap.NewNop())
	f.orchestrator = NewOrchestrator(f.registry, engine, f.jobs, f.leases,
		"test-worker", time.Minute, 72*time.Hour, zap.NewNop())
	return f
}

func seedRecords(c *stubConnector, from time.Time, spacing time.Duration, count int) {
	for i := 0; i < count; i++ {
		eventAt := from.Add(time.Duration(i) * spacing)
		c.records = append(c.records, stubRecord(c.platform, stubPayload{
			PlatformOrderID: fmt.Sprintf("220301-%03d", i),
			Status:          order.StatusPaid,
			RawStatus:       "READY_TO_SHIP",
			EventAt:         eventAt,
			OrderedAt:       eventAt.Add(-time.Hour),
			SKU:             "SKU-1",
			Quantity:        decimal.NewFromInt(1),
			UnitPrice:       decimal.NewFromInt(50),
		}))
	}
}

func TestOrchestrator_Run_WindowSplitting(t *testing.T) {
	t.Run("45 day window against a 15 day platform splits into 3", func(t *testing.T) {
		f := newOrchestratorFixture(t, 15*24*time.Hour, 50)
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		to := from.Add(45 * 24 * time.Hour)
		// One record every 5 days, spread across all three sub-windows
		seedRecords(f.connector, from.Add(12*time.Hour), 5*24*time.Hour, 9)

		job, err := f.orchestrator.Run(context.Background(), order.PlatformShopee, from, to)
		require.NoError(t, err)
		assert.Equal(t, sync.JobStatusSuccess, job.Status)
		assert.Equal(t, 9, job.Fetched)
		assert.Equal(t, 9, job.Created)

		// Both feeds were asked for the same 3 abutting sub-windows
		distinct := map[time.Time]sync.Window{}
		for _, w := range f.connector.windows {
			assert.LessOrEqual(t, w.Duration(), 15*24*time.Hour)
			distinct[w.From] = w
		}
		require.Len(t, distinct, 3)
		assert.Equal(t, from, distinct[from].From)
		next := distinct[from].To
		assert.Equal(t, next, distinct[next].From)
		assert.Equal(t, to, distinct[distinct[next].To].To)

		// The union of split fetches covers every seeded record exactly once
		for i := 0; i < 9; i++ {
			assert.NotNil(t, f.orders.get(order.PlatformShopee, fmt.Sprintf("220301-%03d", i)))
		}
	})

	t.Run("window within the max is fetched unsplit", func(t *testing.T) {
		f := newOrchestratorFixture(t, 15*24*time.Hour, 50)
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		seedRecords(f.connector, from.Add(time.Hour), time.Hour, 3)

		job, err := f.orchestrator.Run(context.Background(), order.PlatformShopee, from, from.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, sync.JobStatusSuccess, job.Status)
		assert.Equal(t, 3, job.Created)
	})
}

func TestOrchestrator_Run_Pagination(t *testing.T) {
	t.Run("walks every page to exhaustion", func(t *testing.T) {
		f := newOrchestratorFixture(t, 15*24*time.Hour, 7)
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		seedRecords(f.connector, from.Add(time.Minute), time.Minute, 20)

		job, err := f.orchestrator.Run(context.Background(), order.PlatformShopee, from, from.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 20, job.Fetched)
		assert.Equal(t, 20, job.Created)
	})
}

func TestOrchestrator_Run_PartialFailure(t *testing.T) {
	t.Run("one malformed record out of 100 leaves 99 merged and PARTIAL", func(t *testing.T) {
		f := newOrchestratorFixture(t, 15*24*time.Hour, 25)
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		seedRecords(f.connector, from.Add(time.Minute), time.Minute, 99)
		f.connector.records = append(f.connector.records, stubRecord(order.PlatformShopee, stubPayload{
			PlatformOrderID: "BROKEN",
			Malformed:       true,
			EventAt:         from.Add(30 * time.Minute),
		}))

		job, err := f.orchestrator.Run(context.Background(), order.PlatformShopee, from, from.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, sync.JobStatusPartial, job.Status)
		assert.Equal(t, 100, job.Fetched)
		assert.Equal(t, 99, job.Created)
		assert.Equal(t, 1, job.Skipped)
		assert.NotEmpty(t, job.FirstError)
	})

	t.Run("platform fetch failure aborts the run as FAILED", func(t *testing.T) {
		f := newOrchestratorFixture(t, 15*24*time.Hour, 50)
		f.connector.failFetch = sync.ErrAuthExpired
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		job, err := f.orchestrator.Run(context.Background(), order.PlatformShopee, from, from.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, sync.JobStatusFailed, job.Status)
		assert.NotEmpty(t, job.FirstError)

		// The lease was released; a repaired platform can run again
		f.connector.failFetch = nil
		job, err = f.orchestrator.Run(context.Background(), order.PlatformShopee, from, from.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, sync.JobStatusSuccess, job.Status)
	})

	t.Run("fetch failure after applied pages lands on PARTIAL", func(t *testing.T) {
		f := newOrchestratorFixture(t, 15*24*time.Hour, 10)
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		seedRecords(f.connector, from.Add(time.Minute), time.Minute, 25)
		f.connector.failFetch = sync.ErrRateLimited
		f.connector.failFetchAfter = 1

		// The first page was applied; the run must not present it as a
		// window that did nothing.
		job, err := f.orchestrator.Run(context.Background(), order.PlatformShopee, from, from.Add(24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, sync.JobStatusPartial, job.Status)
		assert.Equal(t, 10, job.Fetched)
		assert.Equal(t, 10, job.Created)
		assert.NotEmpty(t, job.FirstError)
	})
}

func TestOrchestrator_Run_Lease(t *testing.T) {
	t.Run("held lease blocks the run without creating a job", func(t *testing.T) {
		f := newOrchestratorFixture(t, 15*24*time.Hour, 50)
		_, err := f.leases.Acquire(context.Background(), order.PlatformShopee, "other-worker", time.Minute)
		require.NoError(t, err)

		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		_, err = f.orchestrator.Run(context.Background(), order.PlatformShopee, from, from.Add(time.Hour))
		assert.ErrorIs(t, err, sync.ErrLeaseHeld)

		jobs, _, lerr := f.jobs.List(context.Background(), sync.JobFilter{})
		require.NoError(t, lerr)
		assert.Empty(t, jobs)
	})
}

func TestOrchestrator_RunAll(t *testing.T) {
	t.Run("resumes from the last successful window", func(t *testing.T) {
		f := newOrchestratorFixture(t, 15*24*time.Hour, 50)
		now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
		f.orchestrator.now = func() time.Time { return now }

		// A prior successful run covered up to 24h ago
		prior, err := sync.NewJob(order.PlatformShopee,
			sync.NewWindow(now.Add(-48*time.Hour), now.Add(-24*time.Hour)))
		require.NoError(t, err)
		prior.Finish(false)
		require.NoError(t, f.jobs.Create(context.Background(), prior))

		jobs, err := f.orchestrator.RunAll(context.Background())
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.True(t, jobs[0].WindowFrom.Equal(now.Add(-24*time.Hour)))
		assert.True(t, jobs[0].WindowTo.Equal(now))
	})

	t.Run("bounds the lookback when no run ever succeeded", func(t *testing.T) {
		f := newOrchestratorFixture(t, 15*24*time.Hour, 50)
		now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
		f.orchestrator.now = func() time.Time { return now }

		jobs, err := f.orchestrator.RunAll(context.Background())
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.True(t, jobs[0].WindowFrom.Equal(now.Add(-72*time.Hour)))
	})
}
