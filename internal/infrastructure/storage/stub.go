// Package storage provides the webhook payload archive backends.
package storage

import (
	"context"
	"errors"
	"sync"

	syncapp "github.com/ordersync/backend/internal/application/sync"
)

// Ensure StubArchive implements the archiver boundary
var _ syncapp.PayloadArchiver = (*StubArchive)(nil)

// StubArchive keeps payloads in memory. Used in development when no S3
// backend is configured, and by tests that want to inspect archived payloads.
type StubArchive struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

// NewStubArchive creates a new StubArchive
func NewStubArchive() *StubArchive {
	return &StubArchive{payloads: make(map[string][]byte)}
}

// Archive stores one payload in memory
func (a *StubArchive) Archive(ctx context.Context, key string, payload []byte) error {
	if key == "" {
		return errors.New("archive key is required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	stored := make([]byte, len(payload))
	copy(stored, payload)
	a.payloads[key] = stored
	return nil
}

// Get returns an archived payload and whether it exists
func (a *StubArchive) Get(key string) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	payload, ok := a.payloads[key]
	return payload, ok
}

// Len returns the number of archived payloads
func (a *StubArchive) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.payloads)
}
