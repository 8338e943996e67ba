package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// PayloadArchiver stores raw webhook payloads in long-term storage. Archival
// is best effort; the database copy on the event row is authoritative.
type PayloadArchiver interface {
	// Archive stores payload under key and returns the storage key
	Archive(ctx context.Context, key string, payload []byte) error
}

// Reconciler is the webhook ingestion path. Events are persisted verbatim
// before any processing so the platform gets its 200 on durability, not on
// outcome; processing then reuses the exact same engine path as polling so
// the two feeds cannot diverge in semantics.
type Reconciler struct {
	registry sync.Registry
	engine   *StatusEngine
	events   sync.WebhookEventRepository
	archiver PayloadArchiver
	logger   *zap.Logger
	now      func() time.Time
	inflight gosync.WaitGroup
}

// webhookProcessTimeout bounds background processing of one pushed event.
// The re-fetch retries under backoff, so this has to outlast a full cycle.
const webhookProcessTimeout = 2 * time.Minute

// NewReconciler creates a new Reconciler. archiver may be nil when payload
// archival is not configured.
func NewReconciler(
	registry sync.Registry,
	engine *StatusEngine,
	events sync.WebhookEventRepository,
	archiver PayloadArchiver,
	logger *zap.Logger,
) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		registry: registry,
		engine:   engine,
		events:   events,
		archiver: archiver,
		logger:   logger,
		now:      time.Now,
	}
}

// Ingest persists one webhook event. The caller acknowledges the platform as
// soon as this returns without error; processing is a separate step. An event
// whose signature failed verification is still ingested and processed, only
// flagged on the record.
func (r *Reconciler) Ingest(ctx context.Context, platform order.Platform, platformOrderID, eventType string, payload []byte, eventAt *time.Time, signatureValid bool) (*sync.WebhookEvent, error) {
	event, err := sync.NewWebhookEvent(platform, platformOrderID, eventType, string(payload), eventAt, signatureValid)
	if err != nil {
		return nil, err
	}

	if r.archiver != nil {
		key := archiveKey(event, r.now().UTC())
		if aerr := r.archiver.Archive(ctx, key, payload); aerr != nil {
			r.logger.Warn("webhook payload archival failed",
				zap.String("key", key), zap.Error(aerr))
		} else {
			event.ArchiveKey = key
		}
	}

	if err := r.events.Create(ctx, event); err != nil {
		return nil, err
	}

	if !signatureValid {
		r.logger.Warn("webhook accepted with invalid signature",
			zap.String("platform", platform.String()),
			zap.String("platform_order_id", platformOrderID),
			zap.String("event_id", event.ID.String()))
	}
	return event, nil
}

// Process applies one persisted event to the ledger. The webhook payload is
// not trusted as an order body; the full record is re-fetched from the
// platform and pushed through the normal normalize-and-apply path. The
// event's outcome is recorded on the event row either way.
func (r *Reconciler) Process(ctx context.Context, event *sync.WebhookEvent) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciler", "process",
		attribute.String(telemetry.SpanAttrPlatform, event.Platform.String()),
		attribute.String(telemetry.SpanAttrPlatformOrderID, event.PlatformOrderID),
		attribute.String(telemetry.SpanAttrEventID, event.ID.String()))
	defer span.End()

	outcomeErr := r.apply(ctx, event)
	if outcomeErr != nil && !errors.Is(outcomeErr, order.ErrInvalidTransition) {
		telemetry.RecordError(span, outcomeErr)
	}

	switch {
	case outcomeErr == nil:
		event.MarkApplied()
	case errors.Is(outcomeErr, order.ErrInvalidTransition):
		// The ledger is already further along; the event carries nothing new
		event.MarkIgnored(outcomeErr.Error())
	default:
		event.MarkFailed(outcomeErr)
	}

	if err := r.events.Update(ctx, event); err != nil {
		return err
	}
	return outcomeErr
}

func (r *Reconciler) apply(ctx context.Context, event *sync.WebhookEvent) error {
	connector, ok := r.registry.Connector(event.Platform)
	if !ok {
		return fmt.Errorf("platform %s is not configured: %w", event.Platform, shared.ErrNotFound)
	}
	normalizer, ok := r.registry.Normalizer(event.Platform)
	if !ok {
		return fmt.Errorf("platform %s has no normalizer: %w", event.Platform, shared.ErrNotFound)
	}

	record, err := connector.FetchOrderDetail(ctx, event.PlatformOrderID)
	if err != nil {
		return fmt.Errorf("failed to fetch order for webhook: %w", err)
	}
	// The push's own event time arbitrates when it is later than the
	// fetched record's update time.
	if event.EventAt != nil && event.EventAt.After(record.EventAt) {
		record.EventAt = event.EventAt.UTC()
	}

	normalized, err := normalizer.Normalize(*record)
	if err != nil {
		return err
	}
	for _, warning := range normalized.Warnings {
		r.logger.Warn("normalization warning",
			zap.String("platform_order_id", event.PlatformOrderID),
			zap.String("warning", warning))
	}

	_, err = r.engine.ApplyObservation(ctx, normalized)
	return err
}

// IngestAndProcess is the ingestion path used by the HTTP handler: persist,
// then process in the background. The platform's delivery succeeded the
// moment the event was durable, so the caller gets the event back still
// pending; the re-fetch happens off the request path and its outcome lands
// on the event row. Processing errors are recorded there, never returned.
func (r *Reconciler) IngestAndProcess(ctx context.Context, platform order.Platform, platformOrderID, eventType string, payload []byte, eventAt *time.Time, signatureValid bool) (*sync.WebhookEvent, error) {
	event, err := r.Ingest(ctx, platform, platformOrderID, eventType, payload, eventAt, signatureValid)
	if err != nil {
		return nil, err
	}

	acked := *event
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		// The request context dies with the response; keep its values
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), webhookProcessTimeout)
		defer cancel()
		if perr := r.Process(pctx, event); perr != nil {
			r.logger.Warn("webhook processing failed after ingest",
				zap.String("event_id", event.ID.String()),
				zap.Error(perr))
		}
	}()
	return &acked, nil
}

// Wait blocks until background event processing has drained. Called on
// shutdown so accepted webhooks are not left pending by a restart.
func (r *Reconciler) Wait() {
	r.inflight.Wait()
}

// Replay reprocesses a finished event, idempotently: the movement guard and
// the arbitration rule make a second application of the same observation a
// no-op. Pending events cannot be replayed.
func (r *Reconciler) Replay(ctx context.Context, id uuid.UUID) (*sync.WebhookEvent, error) {
	event, err := r.events.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := event.Reset(); err != nil {
		return nil, err
	}
	if err := r.events.Update(ctx, event); err != nil {
		return nil, err
	}

	if perr := r.Process(ctx, event); perr != nil {
		r.logger.Warn("webhook replay failed",
			zap.String("event_id", event.ID.String()),
			zap.Error(perr))
	}
	return event, nil
}

// archiveKey builds a date-partitioned storage key for a webhook payload
func archiveKey(event *sync.WebhookEvent, now time.Time) string {
	return fmt.Sprintf("%s/%s/%s.json",
		event.Platform, now.Format("2006-01-02"), event.ID)
}
