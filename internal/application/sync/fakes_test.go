package sync

import (
	"context"
	"encoding/json"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ordersync/backend/internal/domain/order"
	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/stock"
	"github.com/ordersync/backend/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type memOrderRepo struct {
	mu     gosync.Mutex
	byKey  map[string]*order.Order
	byID   map[uuid.UUID]*order.Order
	writes int
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{
		byKey: make(map[string]*order.Order),
		byID:  make(map[uuid.UUID]*order.Order),
	}
}

func orderKey(platform order.Platform, platformOrderID string) string {
	return platform.String() + "|" + platformOrderID
}

func cloneOrder(o *order.Order) *order.Order {
	c := *o
	c.Lines = make([]order.Line, len(o.Lines))
	copy(c.Lines, o.Lines)
	return &c
}

func (r *memOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *memOrderRepo) FindByPlatformKey(ctx context.Context, platform order.Platform, platformOrderID string) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byKey[orderKey(platform, platformOrderID)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *memOrderRepo) Create(ctx context.Context, o *order.Order) error {
	if err := o.ValidateAmounts(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := orderKey(o.Platform, o.PlatformOrderID)
	if _, exists := r.byKey[key]; exists {
		return shared.ErrAlreadyExists
	}
	stored := cloneOrder(o)
	r.byKey[key] = stored
	r.byID[o.ID] = stored
	r.writes++
	return nil
}

func (r *memOrderRepo) Update(ctx context.Context, o *order.Order) error {
	if err := o.ValidateAmounts(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := orderKey(o.Platform, o.PlatformOrderID)
	if _, exists := r.byKey[key]; !exists {
		return shared.ErrNotFound
	}
	stored := cloneOrder(o)
	r.byKey[key] = stored
	r.byID[o.ID] = stored
	r.writes++
	return nil
}

func (r *memOrderRepo) List(ctx context.Context, filter shared.Filter) ([]order.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]order.Order, 0, len(r.byKey))
	for _, o := range r.byKey {
		out = append(out, *cloneOrder(o))
	}
	return out, int64(len(out)), nil
}

func (r *memOrderRepo) PendingDispatchQuantities(ctx context.Context) (map[string]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]decimal.Decimal)
	for _, o := range r.byKey {
		if o.Status != order.StatusPaid && o.Status != order.StatusPacking {
			continue
		}
		for _, line := range o.Lines {
			out[line.SKU] = out[line.SKU].Add(line.Quantity)
		}
	}
	return out, nil
}

func (r *memOrderRepo) get(platform order.Platform, platformOrderID string) *order.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byKey[orderKey(platform, platformOrderID)]
	if !ok {
		return nil
	}
	return cloneOrder(o)
}

var _ order.Repository = (*memOrderRepo)(nil)

type memMovementRepo struct {
	mu         gosync.Mutex
	movements  []stock.Movement
	failAppend error
}

func newMemMovementRepo() *memMovementRepo {
	return &memMovementRepo{}
}

func (r *memMovementRepo) AppendSet(ctx context.Context, movements []*stock.Movement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAppend != nil {
		return r.failAppend
	}
	if len(movements) == 0 {
		return nil
	}
	for _, existing := range r.movements {
		if existing.OrderID == movements[0].OrderID && existing.Cause == movements[0].Cause {
			return stock.ErrDuplicateMovement
		}
	}
	for _, m := range movements {
		r.movements = append(r.movements, *m)
	}
	return nil
}

func (r *memMovementRepo) ExistsForCause(ctx context.Context, orderID uuid.UUID, cause stock.Cause) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.movements {
		if m.OrderID == orderID && m.Cause == cause {
			return true, nil
		}
	}
	return false, nil
}

func (r *memMovementRepo) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]stock.Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []stock.Movement
	for _, m := range r.movements {
		if m.OrderID == orderID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMovementRepo) SumByDirection(ctx context.Context, warehouseID uuid.UUID, sku string, direction stock.Direction, until time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, m := range r.movements {
		if m.WarehouseID == warehouseID && m.SKU == sku && m.Direction == direction && !m.OccurredAt.After(until) {
			sum = sum.Add(m.Quantity)
		}
	}
	return sum, nil
}

func (r *memMovementRepo) ListLevels(ctx context.Context, warehouseID *uuid.UUID) ([]stock.Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	type key struct {
		warehouse uuid.UUID
		sku       string
	}
	onHand := make(map[key]decimal.Decimal)
	for _, m := range r.movements {
		if warehouseID != nil && m.WarehouseID != *warehouseID {
			continue
		}
		k := key{m.WarehouseID, m.SKU}
		if m.Direction == stock.DirectionIn {
			onHand[k] = onHand[k].Add(m.Quantity)
		} else {
			onHand[k] = onHand[k].Sub(m.Quantity)
		}
	}
	var out []stock.Level
	for k, v := range onHand {
		out = append(out, stock.Level{WarehouseID: k.warehouse, SKU: k.sku, OnHand: v, Available: v})
	}
	return out, nil
}

func (r *memMovementRepo) countForCause(orderID uuid.UUID, cause stock.Cause) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.movements {
		if m.OrderID == orderID && m.Cause == cause {
			n++
		}
	}
	return n
}

var _ stock.MovementRepository = (*memMovementRepo)(nil)

type memRetryRepo struct {
	mu      gosync.Mutex
	entries map[string]*stock.MovementRetry
}

func newMemRetryRepo() *memRetryRepo {
	return &memRetryRepo{entries: make(map[string]*stock.MovementRetry)}
}

func retryKey(orderID uuid.UUID, cause stock.Cause) string {
	return orderID.String() + "|" + string(cause)
}

func (r *memRetryRepo) Enqueue(ctx context.Context, retry *stock.MovementRetry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := retryKey(retry.OrderID, retry.Cause)
	if existing, ok := r.entries[key]; ok && !existing.Resolved {
		return nil
	}
	c := *retry
	r.entries[key] = &c
	return nil
}

func (r *memRetryRepo) FindDue(ctx context.Context, now time.Time, limit int) ([]stock.MovementRetry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []stock.MovementRetry
	for _, e := range r.entries {
		if e.IsDue(now) {
			out = append(out, *e)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *memRetryRepo) Update(ctx context.Context, retry *stock.MovementRetry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *retry
	r.entries[retryKey(retry.OrderID, retry.Cause)] = &c
	return nil
}

func (r *memRetryRepo) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if !e.Resolved {
			n++
		}
	}
	return n
}

var _ stock.MovementRetryRepository = (*memRetryRepo)(nil)

type memJobRepo struct {
	mu   gosync.Mutex
	jobs []*sync.Job
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{}
}

func (r *memJobRepo) Create(ctx context.Context, job *sync.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *job
	r.jobs = append(r.jobs, &c)
	return nil
}

func (r *memJobRepo) Update(ctx context.Context, job *sync.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, j := range r.jobs {
		if j.ID == job.ID {
			c := *job
			r.jobs[i] = &c
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *memJobRepo) FindByID(ctx context.Context, id uuid.UUID) (*sync.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.ID == id {
			c := *j
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memJobRepo) List(ctx context.Context, filter sync.JobFilter) ([]sync.Job, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sync.Job
	// Newest first
	for i := len(r.jobs) - 1; i >= 0; i-- {
		j := r.jobs[i]
		if filter.Platform != nil && j.Platform != *filter.Platform {
			continue
		}
		if filter.Status != nil && j.Status != *filter.Status {
			continue
		}
		out = append(out, *j)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, int64(len(out)), nil
}

var _ sync.JobRepository = (*memJobRepo)(nil)

type memLease struct {
	ownerID   string
	expiresAt time.Time
}

type memLeaseRepo struct {
	mu     gosync.Mutex
	leases map[order.Platform]memLease
	now    func() time.Time
}

func newMemLeaseRepo() *memLeaseRepo {
	return &memLeaseRepo{leases: make(map[order.Platform]memLease), now: time.Now}
}

func (r *memLeaseRepo) Acquire(ctx context.Context, platform order.Platform, ownerID string, ttl time.Duration) (*sync.Lease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if l, ok := r.leases[platform]; ok && l.ownerID != ownerID && l.expiresAt.After(now) {
		return nil, sync.ErrLeaseHeld
	}
	r.leases[platform] = memLease{ownerID: ownerID, expiresAt: now.Add(ttl)}
	return &sync.Lease{Platform: platform, OwnerID: ownerID, ExpiresAt: now.Add(ttl)}, nil
}

func (r *memLeaseRepo) Extend(ctx context.Context, platform order.Platform, ownerID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	l, ok := r.leases[platform]
	if !ok || l.ownerID != ownerID || !l.expiresAt.After(now) {
		return sync.ErrLeaseHeld
	}
	l.expiresAt = now.Add(ttl)
	r.leases[platform] = l
	return nil
}

func (r *memLeaseRepo) Release(ctx context.Context, platform order.Platform, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.leases[platform]; ok && l.ownerID == ownerID {
		delete(r.leases, platform)
	}
	return nil
}

var _ sync.LeaseRepository = (*memLeaseRepo)(nil)

type memEventRepo struct {
	mu     gosync.Mutex
	events map[uuid.UUID]*sync.WebhookEvent
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: make(map[uuid.UUID]*sync.WebhookEvent)}
}

func (r *memEventRepo) Create(ctx context.Context, event *sync.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *event
	r.events[event.ID] = &c
	return nil
}

func (r *memEventRepo) Update(ctx context.Context, event *sync.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[event.ID]; !ok {
		return shared.ErrNotFound
	}
	c := *event
	r.events[event.ID] = &c
	return nil
}

func (r *memEventRepo) FindByID(ctx context.Context, id uuid.UUID) (*sync.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (r *memEventRepo) List(ctx context.Context, filter sync.WebhookEventFilter) ([]sync.WebhookEvent, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sync.WebhookEvent
	for _, e := range r.events {
		if filter.Platform != nil && e.Platform != *filter.Platform {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		out = append(out, *e)
	}
	return out, int64(len(out)), nil
}

var _ sync.WebhookEventRepository = (*memEventRepo)(nil)

// ---------------------------------------------------------------------------
// Stub platform
// ---------------------------------------------------------------------------

// stubPayload is the fixture wire format served by the stub connector and
// understood by the stub normalizer
type stubPayload struct {
	PlatformOrderID string          `json:"platform_order_id"`
	Status          order.Status    `json:"status"`
	RawStatus       string          `json:"raw_status"`
	EventAt         time.Time       `json:"event_at"`
	OrderedAt       time.Time       `json:"ordered_at"`
	SKU             string          `json:"sku"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Malformed       bool            `json:"malformed,omitempty"`
}

func stubRecord(platform order.Platform, p stubPayload) sync.RawRecord {
	payload, _ := json.Marshal(p)
	kind := sync.RecordKindOrder
	return sync.RawRecord{
		Platform:        platform,
		PlatformOrderID: p.PlatformOrderID,
		EventAt:         p.EventAt.UTC(),
		Kind:            kind,
		Payload:         payload,
	}
}

// stubConnector serves fixture records windowed by EventAt with fixed-size
// pages, recording the windows it was asked for
type stubConnector struct {
	mu        gosync.Mutex
	platform  order.Platform
	maxWindow time.Duration
	pageSize  int
	records   []sync.RawRecord
	returns   []sync.RawRecord
	details   map[string]sync.RawRecord
	windows   []sync.Window

	// failFetch fails every page fetch after failFetchAfter pages succeeded
	failFetch      error
	failFetchAfter int
	pagesServed    int

	// when set, FetchOrderDetail blocks until the channel is closed
	detailGate chan struct{}
}

func newStubConnector(platform order.Platform, maxWindow time.Duration, pageSize int) *stubConnector {
	return &stubConnector{
		platform:  platform,
		maxWindow: maxWindow,
		pageSize:  pageSize,
		details:   make(map[string]sync.RawRecord),
	}
}

func (c *stubConnector) Platform() order.Platform { return c.platform }
func (c *stubConnector) MaxWindow() time.Duration { return c.maxWindow }

func (c *stubConnector) page(source []sync.RawRecord, window sync.Window, cursor string) (*sync.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFetch != nil && c.pagesServed >= c.failFetchAfter {
		return nil, c.failFetch
	}
	c.pagesServed++
	if window.Duration() > c.maxWindow {
		return nil, sync.ErrInvalidCursor
	}
	c.windows = append(c.windows, window)

	var inWindow []sync.RawRecord
	for _, r := range source {
		if !r.EventAt.Before(window.From) && r.EventAt.Before(window.To) {
			inWindow = append(inWindow, r)
		}
	}

	offset := 0
	if cursor != "" {
		fmt.Sscanf(cursor, "%d", &offset)
	}
	end := offset + c.pageSize
	if end > len(inWindow) {
		end = len(inWindow)
	}
	page := &sync.Page{Records: inWindow[offset:end]}
	if end < len(inWindow) {
		page.HasMore = true
		page.NextCursor = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func (c *stubConnector) FetchOrders(ctx context.Context, window sync.Window, status *order.Status, cursor string) (*sync.Page, error) {
	return c.page(c.records, window, cursor)
}

func (c *stubConnector) FetchOrderDetail(ctx context.Context, platformOrderID string) (*sync.RawRecord, error) {
	if c.detailGate != nil {
		<-c.detailGate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.details[platformOrderID]
	if !ok {
		return nil, sync.ErrTransientFetch
	}
	return &r, nil
}

func (c *stubConnector) FetchReturns(ctx context.Context, window sync.Window, cursor string) (*sync.Page, error) {
	return c.page(c.returns, window, cursor)
}

var _ sync.Connector = (*stubConnector)(nil)

// stubNormalizer decodes the fixture wire format into canonical orders
type stubNormalizer struct {
	platform order.Platform
}

func (n *stubNormalizer) Platform() order.Platform { return n.platform }

func (n *stubNormalizer) Normalize(record sync.RawRecord) (*sync.NormalizedOrder, error) {
	var p stubPayload
	if err := json.Unmarshal(record.Payload, &p); err != nil || p.Malformed || p.PlatformOrderID == "" {
		return nil, fmt.Errorf("undecodable fixture payload: %w", sync.ErrMalformedRecord)
	}

	orderedAt := p.OrderedAt
	if orderedAt.IsZero() {
		orderedAt = p.EventAt
	}
	o, err := order.NewOrder(n.platform, p.PlatformOrderID, p.Status, orderedAt)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, sync.ErrMalformedRecord)
	}
	o.RawStatus = p.RawStatus
	o.LastEventAt = p.EventAt.UTC()

	line, err := order.NewLine(p.SKU, "Fixture Product", p.Quantity, p.UnitPrice, decimal.Zero, "")
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, sync.ErrMalformedRecord)
	}
	o.SetLines([]order.Line{*line})
	o.SubtotalAmount = line.LineTotal
	o.TotalAmount = line.LineTotal
	o.RawPayload = string(record.Payload)

	return &sync.NormalizedOrder{
		Order:      o,
		StatusOnly: record.Kind == sync.RecordKindReturn,
	}, nil
}

var _ sync.Normalizer = (*stubNormalizer)(nil)

// stubRegistry resolves the stub connector and normalizer
type stubRegistry struct {
	connectors  map[order.Platform]sync.Connector
	normalizers map[order.Platform]sync.Normalizer
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		connectors:  make(map[order.Platform]sync.Connector),
		normalizers: make(map[order.Platform]sync.Normalizer),
	}
}

func (r *stubRegistry) add(c sync.Connector, n sync.Normalizer) {
	r.connectors[c.Platform()] = c
	r.normalizers[n.Platform()] = n
}

func (r *stubRegistry) Connector(platform order.Platform) (sync.Connector, bool) {
	c, ok := r.connectors[platform]
	return c, ok
}

func (r *stubRegistry) Normalizer(platform order.Platform) (sync.Normalizer, bool) {
	n, ok := r.normalizers[platform]
	return n, ok
}

func (r *stubRegistry) Platforms() []order.Platform {
	var out []order.Platform
	if _, ok := r.connectors[order.PlatformLazada]; ok {
		out = append(out, order.PlatformLazada)
	}
	if _, ok := r.connectors[order.PlatformShopee]; ok {
		out = append(out, order.PlatformShopee)
	}
	return out
}

var _ sync.Registry = (*stubRegistry)(nil)
