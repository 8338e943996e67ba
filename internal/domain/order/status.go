package order

// Status represents the normalized lifecycle status of a canonical order.
// Every marketplace vocabulary is translated into this enum at the
// normalization boundary; raw platform strings are kept for diagnostics only
// and never drive logic.
type Status string

const (
	// StatusUnknown is the conservative held state for raw statuses that have
	// no entry in a platform's translation table. Orders in this state produce
	// no stock side effects until a later sync resolves them.
	StatusUnknown Status = "UNKNOWN"
	// StatusNew indicates the order was created but not yet paid
	StatusNew Status = "NEW"
	// StatusPaid indicates payment was received
	StatusPaid Status = "PAID"
	// StatusPacking indicates the order is being prepared for shipment
	StatusPacking Status = "PACKING"
	// StatusShipped indicates the order left the warehouse
	StatusShipped Status = "SHIPPED"
	// StatusDelivered indicates the carrier confirmed delivery
	StatusDelivered Status = "DELIVERED"
	// StatusCancelled indicates the order was cancelled before dispatch
	StatusCancelled Status = "CANCELLED"
	// StatusReturned indicates the buyer returned the order after dispatch
	StatusReturned Status = "RETURNED"
	// StatusDeliveryFailed indicates the carrier could not deliver and the
	// parcel is on its way back
	StatusDeliveryFailed Status = "DELIVERY_FAILED"
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a known lifecycle status
func (s Status) IsValid() bool {
	switch s {
	case StatusUnknown, StatusNew, StatusPaid, StatusPacking, StatusShipped,
		StatusDelivered, StatusCancelled, StatusReturned, StatusDeliveryFailed:
		return true
	}
	return false
}

// IsTerminal returns true if the status has no outgoing transitions
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusReturned, StatusDeliveryFailed:
		return true
	}
	return false
}

// statusRank fixes a strict total order over the lifecycle, used to arbitrate
// conflicting updates whose platform event times are equal or absent. A state
// further along the lifecycle always outranks an earlier one; terminal states
// outrank everything on the main chain.
var statusRank = map[Status]int{
	StatusUnknown:        0,
	StatusNew:            1,
	StatusPaid:           2,
	StatusPacking:        3,
	StatusShipped:        4,
	StatusDelivered:      5,
	StatusCancelled:      6,
	StatusDeliveryFailed: 7,
	StatusReturned:       8,
}

// Rank returns the position of the status in the fixed lifecycle ordering
func (s Status) Rank() int {
	return statusRank[s]
}

// chainRank orders the main fulfilment chain; states off the chain are absent.
var chainRank = map[Status]int{
	StatusNew:       1,
	StatusPaid:      2,
	StatusPacking:   3,
	StatusShipped:   4,
	StatusDelivered: 5,
}

// CanTransitionTo reports whether the transition s -> target is in the fixed
// allowed-transition table. Marketplace feeds routinely skip intermediate
// states (a poll can observe SHIPPED while we hold PAID), so forward moves
// along the main chain are allowed to skip; backward moves never are.
func (s Status) CanTransitionTo(target Status) bool {
	if s.IsTerminal() {
		return false
	}
	if s == target {
		return false
	}
	// Anything concrete may replace the held state.
	if s == StatusUnknown {
		return target != StatusUnknown && target.IsValid()
	}
	// A held target never replaces a concrete state.
	if target == StatusUnknown {
		return false
	}
	if from, ok := chainRank[s]; ok {
		if to, ok := chainRank[target]; ok {
			return to > from
		}
	}
	switch target {
	case StatusCancelled:
		return s == StatusNew || s == StatusPaid
	case StatusReturned, StatusDeliveryFailed:
		return s == StatusShipped || s == StatusDelivered
	}
	return false
}
