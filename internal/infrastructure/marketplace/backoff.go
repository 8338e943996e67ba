package marketplace

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/ordersync/backend/internal/domain/sync"
)

// BackoffPolicy controls the retry behaviour adapters apply to throttled or
// transiently failing platform calls. Delays grow exponentially from
// BaseDelay up to MaxDelay, with up to 50% random jitter added so concurrent
// workers do not retry in lockstep.
type BackoffPolicy struct {
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
	// MaxDelay caps the per-attempt delay
	MaxDelay time.Duration
	// MaxAttempts is the total number of attempts, including the first.
	// Exceeding it surfaces the last error.
	MaxAttempts int
}

// DefaultBackoffPolicy is the policy adapters use unless configured otherwise.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the jittered delay before retry number attempt (1-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << uint(attempt-1)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d + jitter
}

// IsRetryable reports whether an error is worth retrying within the current
// call. Auth failures and protocol violations are not.
func IsRetryable(err error) bool {
	return errors.Is(err, sync.ErrRateLimited) || errors.Is(err, sync.ErrTransientFetch)
}

// Retry runs fn up to MaxAttempts times, sleeping the policy delay between
// attempts while retryable returns true for the error. Context cancellation
// cuts the wait short and returns the context error.
func (p BackoffPolicy) Retry(ctx context.Context, retryable func(error) bool, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !retryable(err) || attempt >= p.MaxAttempts {
			return err
		}
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
