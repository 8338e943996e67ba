package sync

import "github.com/ordersync/backend/internal/domain/shared"

// ---------------------------------------------------------------------------
// Connector Error Taxonomy
// ---------------------------------------------------------------------------

// Fetch failures are classified so the orchestrator can decide what is
// retryable within the current run, what aborts the platform entirely, and
// what only skips a single record.
var (
	// ErrAuthExpired indicates the platform rejected our credentials or the
	// access token has lapsed. Aborts the platform run; retrying without
	// operator intervention cannot succeed.
	ErrAuthExpired = shared.NewDomainError("SYNC_AUTH_EXPIRED", "platform credentials rejected or expired")

	// ErrRateLimited indicates the platform throttled the request. The
	// orchestrator backs off and retries the same page.
	ErrRateLimited = shared.NewDomainError("SYNC_RATE_LIMITED", "platform rate limit exceeded")

	// ErrTransientFetch indicates a network or 5xx failure that is expected
	// to clear on retry.
	ErrTransientFetch = shared.NewDomainError("SYNC_TRANSIENT_FETCH", "transient fetch failure")

	// ErrMalformedRecord indicates a single platform record could not be
	// normalized. The record is skipped and counted; the run continues.
	ErrMalformedRecord = shared.NewDomainError("SYNC_MALFORMED_RECORD", "platform record could not be normalized")

	// ErrInvalidCursor indicates the platform returned a pagination cursor
	// we cannot resume from. Treated as a protocol violation and aborts the
	// window.
	ErrInvalidCursor = shared.NewDomainError("SYNC_INVALID_CURSOR", "platform returned an unusable pagination cursor")

	// ErrLeaseHeld indicates another worker currently owns the sync lease
	// for the platform.
	ErrLeaseHeld = shared.NewDomainError("SYNC_LEASE_HELD", "sync lease is held by another worker")
)
