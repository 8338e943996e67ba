package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
	syncdomain "github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
)

type fakeRunner struct {
	lastPlatform order.Platform
	lastFrom     time.Time
	lastTo       time.Time

	job    *syncdomain.Job
	jobs   []*syncdomain.Job
	runErr error
}

func (f *fakeRunner) Run(_ context.Context, platform order.Platform, from, to time.Time) (*syncdomain.Job, error) {
	f.lastPlatform = platform
	f.lastFrom = from
	f.lastTo = to
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.job, nil
}

func (f *fakeRunner) RunAll(context.Context) ([]*syncdomain.Job, error) {
	return f.jobs, f.runErr
}

type fakeJobRepo struct {
	jobs       []syncdomain.Job
	lastFilter syncdomain.JobFilter
}

func (f *fakeJobRepo) Create(context.Context, *syncdomain.Job) error { return nil }
func (f *fakeJobRepo) Update(context.Context, *syncdomain.Job) error { return nil }

func (f *fakeJobRepo) FindByID(_ context.Context, id uuid.UUID) (*syncdomain.Job, error) {
	for i := range f.jobs {
		if f.jobs[i].ID == id {
			return &f.jobs[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeJobRepo) List(_ context.Context, filter syncdomain.JobFilter) ([]syncdomain.Job, int64, error) {
	f.lastFilter = filter
	return f.jobs, int64(len(f.jobs)), nil
}

func newSyncRouter(runner *fakeRunner, jobs *fakeJobRepo) *gin.Engine {
	engine := gin.New()
	h := NewSyncHandler(runner, jobs)
	h.RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func finishedJob(t *testing.T, platform order.Platform) *syncdomain.Job {
	t.Helper()
	window := syncdomain.NewWindow(
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
	job, err := syncdomain.NewJob(platform, window)
	require.NoError(t, err)
	job.Finish(false)
	return job
}

func TestSyncRun(t *testing.T) {
	t.Run("runs over the requested window", func(t *testing.T) {
		runner := &fakeRunner{job: finishedJob(t, order.PlatformShopee)}
		engine := newSyncRouter(runner, &fakeJobRepo{})

		body := `{"platform":"shopee","from":"2024-03-01T00:00:00Z","to":"2024-03-02T00:00:00Z"}`
		req := httptest.NewRequest("POST", "/api/v1/sync/run", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, order.PlatformShopee, runner.lastPlatform)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), runner.lastFrom.UTC())

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
	})

	t.Run("unknown platform", func(t *testing.T) {
		engine := newSyncRouter(&fakeRunner{}, &fakeJobRepo{})

		body := `{"platform":"ebay","from":"2024-03-01T00:00:00Z","to":"2024-03-02T00:00:00Z"}`
		req := httptest.NewRequest("POST", "/api/v1/sync/run", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("inverted window", func(t *testing.T) {
		engine := newSyncRouter(&fakeRunner{}, &fakeJobRepo{})

		body := `{"platform":"shopee","from":"2024-03-02T00:00:00Z","to":"2024-03-01T00:00:00Z"}`
		req := httptest.NewRequest("POST", "/api/v1/sync/run", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("lease held maps to conflict", func(t *testing.T) {
		engine := newSyncRouter(&fakeRunner{runErr: syncdomain.ErrLeaseHeld}, &fakeJobRepo{})

		body := `{"platform":"shopee","from":"2024-03-01T00:00:00Z","to":"2024-03-02T00:00:00Z"}`
		req := httptest.NewRequest("POST", "/api/v1/sync/run", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing body", func(t *testing.T) {
		engine := newSyncRouter(&fakeRunner{}, &fakeJobRepo{})

		req := httptest.NewRequest("POST", "/api/v1/sync/run", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSyncRunAll(t *testing.T) {
	runner := &fakeRunner{jobs: []*syncdomain.Job{
		finishedJob(t, order.PlatformLazada),
		finishedJob(t, order.PlatformShopee),
	}}
	engine := newSyncRouter(runner, &fakeJobRepo{})

	req := httptest.NewRequest("POST", "/api/v1/sync/run-all", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestSyncListJobs(t *testing.T) {
	job := finishedJob(t, order.PlatformShopee)
	repo := &fakeJobRepo{jobs: []syncdomain.Job{*job}}
	engine := newSyncRouter(&fakeRunner{}, repo)

	t.Run("filters parsed", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/sync/jobs?platform=shopee&status=success&page=3&page_size=5", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, repo.lastFilter.Platform)
		assert.Equal(t, order.PlatformShopee, *repo.lastFilter.Platform)
		require.NotNil(t, repo.lastFilter.Status)
		assert.Equal(t, syncdomain.JobStatusSuccess, *repo.lastFilter.Status)
		assert.Equal(t, 5, repo.lastFilter.Limit)
		assert.Equal(t, 10, repo.lastFilter.Offset)
	})

	t.Run("bad status rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/sync/jobs?status=bogus", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get by id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/sync/jobs/"+job.ID.String(), nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/v1/sync/jobs/"+uuid.NewString(), nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
