package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/stock"
	"github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// ApplyResult describes what one observation did to the ledger
type ApplyResult struct {
	// Created is true when the order was inserted for the first time
	Created bool
	// Updated is true when an existing order was merged or moved
	Updated bool
	// Transition records the status outcome for logging
	Transition order.TransitionResult
}

// StatusEngine applies normalized observations to the canonical ledger.
// It is the single write path for order status: both the polling orchestrator
// and the webhook reconciler go through ApplyObservation, so the per-order
// lock and the duplicate-movement guard cover every source of change.
type StatusEngine struct {
	orders      order.Repository
	movements   stock.MovementRepository
	retries     stock.MovementRetryRepository
	locker      shared.OrderLocker
	warehouseID uuid.UUID
	logger      *zap.Logger
}

// NewStatusEngine creates a new StatusEngine
func NewStatusEngine(
	orders order.Repository,
	movements stock.MovementRepository,
	retries stock.MovementRetryRepository,
	locker shared.OrderLocker,
	warehouseID uuid.UUID,
	logger *zap.Logger,
) *StatusEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusEngine{
		orders:      orders,
		movements:   movements,
		retries:     retries,
		locker:      locker,
		warehouseID: warehouseID,
		logger:      logger,
	}
}

// ApplyObservation merges one normalized observation into the ledger and
// emits any stock movements the resulting status owes. The order's lock is
// held for the whole read-modify-write so concurrent observations of the
// same order serialize.
//
// A status-only observation for an order that was never synced has nothing
// to attach to and surfaces shared.ErrNotFound; the caller counts it as a
// skip and the next full sync repairs it.
func (e *StatusEngine) ApplyObservation(ctx context.Context, no *sync.NormalizedOrder) (*ApplyResult, error) {
	if no == nil || no.Order == nil {
		return nil, shared.ErrInvalidInput
	}
	incoming := no.Order

	ctx, span := telemetry.StartServiceSpan(ctx, "status_engine", "apply_observation",
		attribute.String(telemetry.SpanAttrPlatform, incoming.Platform.String()),
		attribute.String(telemetry.SpanAttrPlatformOrderID, incoming.PlatformOrderID),
		attribute.String(telemetry.SpanAttrOrderStatus, incoming.Status.String()))
	defer span.End()

	release, err := e.locker.Acquire(ctx, lockKey(incoming.Platform, incoming.PlatformOrderID))
	if err != nil {
		err = fmt.Errorf("failed to lock order %s/%s: %w",
			incoming.Platform, incoming.PlatformOrderID, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer release()

	existing, err := e.orders.FindByPlatformKey(ctx, incoming.Platform, incoming.PlatformOrderID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		if no.StatusOnly {
			err = fmt.Errorf("status-only record for unsynced order %s/%s: %w",
				incoming.Platform, incoming.PlatformOrderID, shared.ErrNotFound)
			telemetry.RecordError(span, err)
			return nil, err
		}
		return e.createFirstObservation(ctx, incoming)
	case err != nil:
		telemetry.RecordError(span, err)
		return nil, err
	}

	res, err := e.mergeObservation(ctx, existing, no)
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return res, err
}

// createFirstObservation inserts a never-before-seen order. A concurrent
// insert of the same natural key loses the race and falls through to the
// merge path against the winner's row.
func (e *StatusEngine) createFirstObservation(ctx context.Context, incoming *order.Order) (*ApplyResult, error) {
	if err := e.orders.Create(ctx, incoming); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			existing, ferr := e.orders.FindByPlatformKey(ctx, incoming.Platform, incoming.PlatformOrderID)
			if ferr != nil {
				return nil, ferr
			}
			return e.mergeObservation(ctx, existing, &sync.NormalizedOrder{Order: incoming})
		}
		return nil, err
	}

	e.logger.Info("order created",
		zap.String("platform", incoming.Platform.String()),
		zap.String("platform_order_id", incoming.PlatformOrderID),
		zap.String("status", incoming.Status.String()))

	e.emitOwedMovements(ctx, incoming)
	return &ApplyResult{Created: true, Transition: order.TransitionResult{
		From: incoming.Status, To: incoming.Status,
	}}, nil
}

// mergeObservation merges fields and applies the status observation to an
// existing order. Field merge and status application are separate on purpose:
// the status moves only through ApplyStatus so transitions fire side effects
// exactly once, and a rejected transition still leaves the merged fields
// persisted.
func (e *StatusEngine) mergeObservation(ctx context.Context, existing *order.Order, no *sync.NormalizedOrder) (*ApplyResult, error) {
	incoming := no.Order

	if !no.StatusOnly {
		if err := existing.MergeFrom(incoming); err != nil {
			return nil, err
		}
	}

	res, applyErr := existing.ApplyStatus(incoming.Status, incoming.RawStatus, incoming.LastEventAt)
	if applyErr != nil && !errors.Is(applyErr, order.ErrInvalidTransition) {
		return nil, applyErr
	}

	if err := e.orders.Update(ctx, existing); err != nil {
		return nil, err
	}

	if applyErr != nil {
		// Merged fields are persisted; the rejected transition is surfaced so
		// the caller can count and log it.
		return &ApplyResult{Updated: true, Transition: res},
			fmt.Errorf("order %s/%s: %s -> %s: %w",
				existing.Platform, existing.PlatformOrderID,
				res.From, incoming.Status, applyErr)
	}

	if res.Changed {
		e.logger.Info("order status applied",
			zap.String("platform", existing.Platform.String()),
			zap.String("platform_order_id", existing.PlatformOrderID),
			zap.String("from", res.From.String()),
			zap.String("to", res.To.String()))
	}

	e.emitOwedMovements(ctx, existing)
	return &ApplyResult{Updated: true, Transition: res}, nil
}

// emitOwedMovements emits the movement sets the order's current status owes.
// Owed causes are derived from the status rather than the single transition
// so a forward skip (first observation already DELIVERED) still books the
// dispatch it implies. The (order, cause) guard in AppendSet keeps repeated
// derivation idempotent.
//
// The order row is already committed at this point, so an emission failure
// must not fail the observation; it is queued for asynchronous repair.
func (e *StatusEngine) emitOwedMovements(ctx context.Context, o *order.Order) {
	for _, cause := range owedCauses(o.Status) {
		e.emitMovementSet(ctx, o, cause)
	}
}

func (e *StatusEngine) emitMovementSet(ctx context.Context, o *order.Order, cause stock.Cause) {
	movements, err := stock.SetFromOrder(o, cause, e.warehouseID, movementTime(o, cause))
	if err != nil {
		e.logger.Warn("cannot build movement set",
			zap.String("platform_order_id", o.PlatformOrderID),
			zap.String("cause", string(cause)),
			zap.Error(err))
		e.enqueueRetry(ctx, o.ID, cause, err)
		return
	}

	if err := e.movements.AppendSet(ctx, movements); err != nil {
		if errors.Is(err, stock.ErrDuplicateMovement) {
			e.logger.Debug("movement set already emitted",
				zap.String("platform_order_id", o.PlatformOrderID),
				zap.String("cause", string(cause)))
			return
		}
		e.logger.Warn("movement emission failed, queued for retry",
			zap.String("platform_order_id", o.PlatformOrderID),
			zap.String("cause", string(cause)),
			zap.Error(err))
		e.enqueueRetry(ctx, o.ID, cause, err)
		return
	}

	e.logger.Info("stock movements emitted",
		zap.String("platform_order_id", o.PlatformOrderID),
		zap.String("cause", string(cause)),
		zap.Int("count", len(movements)))
}

func (e *StatusEngine) enqueueRetry(ctx context.Context, orderID uuid.UUID, cause stock.Cause, emitErr error) {
	retry := stock.NewMovementRetry(orderID, cause, emitErr.Error())
	if err := e.retries.Enqueue(ctx, retry); err != nil {
		e.logger.Error("failed to enqueue movement retry",
			zap.String("order_id", orderID.String()),
			zap.String("cause", string(cause)),
			zap.Error(err))
	}
}

// owedCauses returns the movement causes an order in the given status owes.
// CANCELLED orders never shipped, so they owe nothing. RETURNED and
// DELIVERY_FAILED imply the goods went out before coming back.
func owedCauses(s order.Status) []stock.Cause {
	switch {
	case s == order.StatusCancelled:
		return nil
	case s == order.StatusReturned || s == order.StatusDeliveryFailed:
		return []stock.Cause{stock.CauseDispatch, stock.CauseReturn}
	case s.Rank() >= order.StatusShipped.Rank() && s.Rank() <= order.StatusDelivered.Rank():
		return []stock.Cause{stock.CauseDispatch}
	default:
		return nil
	}
}

// movementTime picks the platform-reported instant a movement occurred at,
// falling back to the last applied event time.
func movementTime(o *order.Order, cause stock.Cause) time.Time {
	switch cause {
	case stock.CauseDispatch:
		if o.ShippedAt != nil {
			return *o.ShippedAt
		}
	case stock.CauseReturn:
		if o.ReturnedAt != nil {
			return *o.ReturnedAt
		}
	}
	return o.LastEventAt
}

func lockKey(platform order.Platform, platformOrderID string) string {
	return platform.String() + ":" + platformOrderID
}
