package order

import (
	"time"

	"github.com/ordersync/backend/internal/domain/shared"
)

// ErrInvalidTransition is returned when an attempted status change is not in
// the allowed-transition table. Marketplace data is noisy; a bad transition
// must be diagnosable, never silently applied.
var ErrInvalidTransition = shared.NewDomainError("INVALID_TRANSITION",
	"Status transition is not allowed")

// SideEffect names the stock-ledger consequence a status change owes
type SideEffect string

const (
	// SideEffectNone means the transition has no stock consequence
	SideEffectNone SideEffect = ""
	// SideEffectDispatch means one OUT movement per line is due
	SideEffectDispatch SideEffect = "DISPATCH"
	// SideEffectReturn means one IN movement per line is due
	SideEffectReturn SideEffect = "RETURN"
)

// TransitionResult describes the outcome of applying an observed status
type TransitionResult struct {
	// Changed is true when the order's status actually moved
	Changed bool
	// From and To record the transition for logging
	From Status
	To   Status
	// SideEffect is the stock consequence owed by this transition. The caller
	// still runs the duplicate-movement guard before emitting.
	SideEffect SideEffect
}

// ApplyStatus applies an observed status with its platform-reported event
// time. Arbitration between the two write paths (polling and webhooks):
// the later event time wins; when event times are equal or absent the status
// further along the fixed lifecycle ordering wins. Observations that lose
// arbitration are ignored without error; observations that would move the
// lifecycle backwards are rejected with ErrInvalidTransition and leave the
// order unchanged.
func (o *Order) ApplyStatus(target Status, rawStatus string, eventAt time.Time) (TransitionResult, error) {
	res := TransitionResult{From: o.Status, To: target}

	if !target.IsValid() {
		return res, shared.NewDomainError("INVALID_STATUS", "Unknown lifecycle status")
	}

	// Re-observation of the current state: refresh bookkeeping, no transition.
	if target == o.Status {
		o.touchEvent(rawStatus, eventAt)
		return res, nil
	}

	// A held observation never displaces a concrete state.
	if target == StatusUnknown {
		return res, nil
	}

	// An observation no newer than what we already applied lost arbitration
	// unless it is further along the lifecycle (delayed delivery of a later
	// state). Ties and absent event times resolve to the state further along.
	if !eventAt.After(o.LastEventAt) && target.Rank() <= o.Status.Rank() {
		return res, nil
	}

	if !o.Status.CanTransitionTo(target) {
		return res, ErrInvalidTransition
	}

	o.Status = target
	o.touchEvent(rawStatus, eventAt)
	o.stampLifecycle(target, eventAt)
	res.Changed = true

	switch target {
	case StatusShipped:
		res.SideEffect = SideEffectDispatch
	case StatusReturned, StatusDeliveryFailed:
		res.SideEffect = SideEffectReturn
	}
	return res, nil
}

// touchEvent advances the last applied platform event time, never regressing it
func (o *Order) touchEvent(rawStatus string, eventAt time.Time) {
	if rawStatus != "" {
		o.RawStatus = rawStatus
	}
	if !eventAt.IsZero() && eventAt.After(o.LastEventAt) {
		o.LastEventAt = eventAt.UTC()
	}
	o.UpdatedAt = time.Now().UTC()
}

// stampLifecycle fills the lifecycle timestamp owned by the entered state
// when the feed did not carry one.
func (o *Order) stampLifecycle(entered Status, eventAt time.Time) {
	at := eventAt
	if at.IsZero() {
		at = time.Now()
	}
	stamp := at.UTC()
	switch entered {
	case StatusPaid:
		mergeTimestamp(&o.PaidAt, &stamp)
	case StatusPacking:
		mergeTimestamp(&o.ReadyToShipAt, &stamp)
	case StatusShipped:
		mergeTimestamp(&o.ShippedAt, &stamp)
	case StatusDelivered:
		mergeTimestamp(&o.DeliveredAt, &stamp)
	case StatusReturned:
		mergeTimestamp(&o.ReturnedAt, &stamp)
	}
}
