package shared

import "context"

// OrderLocker serializes work on a single order across concurrent appliers.
// Sync pages and webhook events for the same order can arrive at the same
// time; holding the order's lock around the read-modify-write keeps status
// application and movement emission from interleaving.
type OrderLocker interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	// The returned release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)

	// Close releases resources held by the locker
	Close() error
}
