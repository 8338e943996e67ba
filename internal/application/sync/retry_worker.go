package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/stock"
)

// RetryWorker repairs movement emissions that failed after their status
// change was already committed. It periodically drains the retry queue and
// re-derives each owed movement set from the persisted order, leaning on the
// (order, cause) guard for idempotency.
type RetryWorker struct {
	retries     stock.MovementRetryRepository
	orders      order.Repository
	movements   stock.MovementRepository
	warehouseID uuid.UUID
	interval    time.Duration
	batchSize   int
	baseDelay   time.Duration
	logger      *zap.Logger
	now         func() time.Time

	stopChan  chan struct{}
	wg        gosync.WaitGroup
	startOnce gosync.Once
	stopOnce  gosync.Once
}

// NewRetryWorker creates a new RetryWorker
func NewRetryWorker(
	retries stock.MovementRetryRepository,
	orders order.Repository,
	movements stock.MovementRepository,
	warehouseID uuid.UUID,
	interval time.Duration,
	batchSize int,
	baseDelay time.Duration,
	logger *zap.Logger,
) *RetryWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	return &RetryWorker{
		retries:     retries,
		orders:      orders,
		movements:   movements,
		warehouseID: warehouseID,
		interval:    interval,
		batchSize:   batchSize,
		baseDelay:   baseDelay,
		logger:      logger,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the background drain loop. Safe to call once.
func (w *RetryWorker) Start() {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.loop()
	})
}

// Stop halts the loop and waits for an in-flight drain to finish.
// Safe to call multiple times.
func (w *RetryWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}

func (w *RetryWorker) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			if _, err := w.DrainOnce(ctx); err != nil {
				w.logger.Error("movement retry drain failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// RetryDrainStats summarizes one drain pass
type RetryDrainStats struct {
	Due         int       `json:"due"`
	Resolved    int       `json:"resolved"`
	Rescheduled int       `json:"rescheduled"`
	ProcessedAt time.Time `json:"processed_at"`
}

// DrainOnce processes every due retry entry once. Each entry is resolved when
// its movement set lands (or already exists) and rescheduled with backoff
// otherwise.
func (w *RetryWorker) DrainOnce(ctx context.Context) (*RetryDrainStats, error) {
	stats := &RetryDrainStats{ProcessedAt: w.now().UTC()}

	due, err := w.retries.FindDue(ctx, stats.ProcessedAt, w.batchSize)
	if err != nil {
		return nil, err
	}
	stats.Due = len(due)
	if stats.Due == 0 {
		return stats, nil
	}

	w.logger.Info("draining movement retries", zap.Int("due", stats.Due))

	for i := range due {
		retry := &due[i]
		if err := w.repair(ctx, retry); err != nil {
			retry.Reschedule(w.baseDelay, err.Error())
			stats.Rescheduled++
			w.logger.Warn("movement retry rescheduled",
				zap.String("order_id", retry.OrderID.String()),
				zap.String("cause", string(retry.Cause)),
				zap.Int("attempts", retry.Attempts),
				zap.Error(err))
		} else {
			retry.Resolve()
			stats.Resolved++
		}
		if uerr := w.retries.Update(ctx, retry); uerr != nil {
			w.logger.Error("failed to persist retry state",
				zap.String("order_id", retry.OrderID.String()),
				zap.Error(uerr))
		}
	}

	w.logger.Info("movement retry drain finished",
		zap.Int("resolved", stats.Resolved),
		zap.Int("rescheduled", stats.Rescheduled))
	return stats, nil
}

// repair re-derives and appends the movement set one retry entry owes
func (w *RetryWorker) repair(ctx context.Context, retry *stock.MovementRetry) error {
	o, err := w.orders.FindByID(ctx, retry.OrderID)
	if err != nil {
		return err
	}

	movements, err := stock.SetFromOrder(o, retry.Cause, w.warehouseID, movementTime(o, retry.Cause))
	if err != nil {
		return err
	}

	if err := w.movements.AppendSet(ctx, movements); err != nil {
		if errors.Is(err, stock.ErrDuplicateMovement) {
			// Someone else already emitted; the debt is paid
			return nil
		}
		return err
	}
	return nil
}
