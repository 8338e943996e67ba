package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_IsValid(t *testing.T) {
	tests := []struct {
		status  Status
		isValid bool
	}{
		{StatusUnknown, true},
		{StatusNew, true},
		{StatusPaid, true},
		{StatusPacking, true},
		{StatusShipped, true},
		{StatusDelivered, true},
		{StatusCancelled, true},
		{StatusReturned, true},
		{StatusDeliveryFailed, true},
		{Status("INVALID"), false},
		{Status(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.isValid, tt.status.IsValid())
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusReturned.IsTerminal())
	assert.True(t, StatusDeliveryFailed.IsTerminal())

	assert.False(t, StatusUnknown.IsTerminal())
	assert.False(t, StatusNew.IsTerminal())
	assert.False(t, StatusPaid.IsTerminal())
	assert.False(t, StatusPacking.IsTerminal())
	assert.False(t, StatusShipped.IsTerminal())
	assert.False(t, StatusDelivered.IsTerminal())
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     Status
		to       Status
		canTrans bool
	}{
		// Main chain, adjacent
		{StatusNew, StatusPaid, true},
		{StatusPaid, StatusPacking, true},
		{StatusPacking, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		// Main chain, forward skips (feeds routinely omit intermediate states)
		{StatusNew, StatusShipped, true},
		{StatusPaid, StatusShipped, true},
		{StatusPaid, StatusDelivered, true},
		// Backward moves never allowed
		{StatusPaid, StatusNew, false},
		{StatusShipped, StatusPaid, false},
		{StatusDelivered, StatusPaid, false},
		{StatusDelivered, StatusShipped, false},
		// Cancellation only before dispatch
		{StatusNew, StatusCancelled, true},
		{StatusPaid, StatusCancelled, true},
		{StatusPacking, StatusCancelled, false},
		{StatusShipped, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		// Returns only after dispatch
		{StatusShipped, StatusReturned, true},
		{StatusDelivered, StatusReturned, true},
		{StatusShipped, StatusDeliveryFailed, true},
		{StatusDelivered, StatusDeliveryFailed, true},
		{StatusPaid, StatusReturned, false},
		{StatusNew, StatusDeliveryFailed, false},
		// Terminal states have no exits
		{StatusCancelled, StatusPaid, false},
		{StatusCancelled, StatusNew, false},
		{StatusReturned, StatusShipped, false},
		{StatusDeliveryFailed, StatusDelivered, false},
		// Held state resolves to anything concrete
		{StatusUnknown, StatusNew, true},
		{StatusUnknown, StatusShipped, true},
		{StatusUnknown, StatusCancelled, true},
		{StatusUnknown, StatusUnknown, false},
		// Nothing concrete falls back to held
		{StatusNew, StatusUnknown, false},
		{StatusShipped, StatusUnknown, false},
		// Self transitions are not transitions
		{StatusPaid, StatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.canTrans, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_RankIsStrictTotalOrder(t *testing.T) {
	all := []Status{
		StatusUnknown, StatusNew, StatusPaid, StatusPacking,
		StatusShipped, StatusDelivered, StatusCancelled,
		StatusDeliveryFailed, StatusReturned,
	}
	seen := make(map[int]Status)
	for _, s := range all {
		prev, dup := seen[s.Rank()]
		assert.False(t, dup, "rank %d shared by %s and %s", s.Rank(), prev, s)
		seen[s.Rank()] = s
	}

	// SHIPPED never loses to PAID regardless of arrival order.
	assert.Greater(t, StatusShipped.Rank(), StatusPaid.Rank())
	assert.Greater(t, StatusDelivered.Rank(), StatusShipped.Rank())
}
