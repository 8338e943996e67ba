package cache

import (
	"context"
	"sync"

	"github.com/ordersync/backend/internal/domain/shared"
)

// keyLock is a per-key mutex with a reference count so idle entries can be
// dropped from the map once the last holder releases
type keyLock struct {
	ch   chan struct{}
	refs int
}

// InMemoryOrderLocker implements OrderLocker using a keyed mutex map.
// This is suitable for single-instance deployments and testing.
type InMemoryOrderLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewInMemoryOrderLocker creates a new in-memory order locker
func NewInMemoryOrderLocker() *InMemoryOrderLocker {
	return &InMemoryOrderLocker{
		locks: make(map[string]*keyLock),
	}
}

// Acquire blocks until the lock for key is held or ctx is done
func (l *InMemoryOrderLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, exists := l.locks[key]
	if !exists {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		var once sync.Once
		release := func() {
			once.Do(func() {
				<-kl.ch
				l.unref(key, kl)
			})
		}
		return release, nil
	case <-ctx.Done():
		l.unref(key, kl)
		return nil, ctx.Err()
	}
}

// unref drops one reference and removes the entry once nobody waits on it
func (l *InMemoryOrderLocker) unref(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs <= 0 {
		delete(l.locks, key)
	}
}

// Close releases resources; the in-memory locker holds none beyond the map
func (l *InMemoryOrderLocker) Close() error {
	return nil
}

// Ensure InMemoryOrderLocker implements OrderLocker
var _ shared.OrderLocker = (*InMemoryOrderLocker)(nil)
