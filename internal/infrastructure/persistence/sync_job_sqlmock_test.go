package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/sync"
)

// newMockSyncJobRepository creates a GormSyncJobRepository with a mocked SQL connection
func newMockSyncJobRepository(t *testing.T) (*GormSyncJobRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormSyncJobRepository(gormDB), mock, mockDB
}

func TestGormSyncJobRepository_FindByID_SQL(t *testing.T) {
	t.Run("finds existing job", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncJobRepository(t)
		defer mockDB.Close()

		jobID := uuid.New()
		from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)

		rows := sqlmock.NewRows([]string{
			"id", "platform", "window_from", "window_to", "status",
			"fetched", "created", "updated", "skipped", "started_at",
		}).AddRow(
			jobID, "SHOPEE", from, to, "SUCCESS",
			120, 80, 40, 0, from,
		)

		mock.ExpectQuery(`SELECT \* FROM "sync_jobs" WHERE id = \$1`).
			WithArgs(jobID, 1).
			WillReturnRows(rows)

		job, err := repo.FindByID(context.Background(), jobID)

		assert.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, jobID, job.ID)
		assert.Equal(t, order.PlatformShopee, job.Platform)
		assert.Equal(t, sync.JobStatusSuccess, job.Status)
		assert.Equal(t, 120, job.Fetched)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maps record-not-found to domain error", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncJobRepository(t)
		defer mockDB.Close()

		jobID := uuid.New()

		mock.ExpectQuery(`SELECT \* FROM "sync_jobs" WHERE id = \$1`).
			WithArgs(jobID, 1).
			WillReturnError(gorm.ErrRecordNotFound)

		job, err := repo.FindByID(context.Background(), jobID)

		assert.Nil(t, job)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormSyncJobRepository_List_SQL(t *testing.T) {
	t.Run("counts then pages with filters applied", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncJobRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT count\(\*\) FROM "sync_jobs" WHERE platform = \$1`).
			WithArgs("SHOPEE").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		rows := sqlmock.NewRows([]string{"id", "platform", "status"}).
			AddRow(uuid.New(), "SHOPEE", "RUNNING")
		mock.ExpectQuery(`SELECT \* FROM "sync_jobs" WHERE platform = \$1 ORDER BY started_at desc LIMIT \$2`).
			WithArgs("SHOPEE", 20).
			WillReturnRows(rows)

		platform := order.PlatformShopee
		jobs, total, err := repo.List(context.Background(), sync.JobFilter{Platform: &platform})

		assert.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Len(t, jobs, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
