package pool

import "errors"

// Error taxonomy surfaced by the pool. Callers receive these directly
// and decide how to react; the pool never retries a request
// transparently on their behalf.
var (
	// ErrInvalidURL is returned when a scrape request's URL can't be
	// parsed into a domain to rate-limit against.
	ErrInvalidURL = errors.New("pool: invalid url")

	// ErrPoolFull is returned by Enqueue when contexts plus queued
	// waiters already reach the backlog cap (max contexts * 4), and by
	// CreateContext when the pool is at MaxContexts.
	ErrPoolFull = errors.New("pool: full")

	// ErrQueueTimeout is returned to a waiter that sat past its
	// deadline without being woken.
	ErrQueueTimeout = errors.New("pool: queue wait timed out")

	// ErrScrapeTimeout is returned when a dispatched request exceeds
	// its per-request timeout.
	ErrScrapeTimeout = errors.New("pool: scrape timed out")

	// ErrDriverError wraps an ordinary (non-crash) driver failure.
	ErrDriverError = errors.New("pool: driver error")

	// ErrTargetClosed signals a browser-process-level failure; the
	// pool reacts by starting a whole-browser restart.
	ErrTargetClosed = errors.New("pool: target closed")

	// ErrBrowserRestarting is returned to in-flight scrapes drained by
	// a restart in progress.
	ErrBrowserRestarting = errors.New("pool: browser restarting")

	// ErrBrowserUnavailable is returned once the restart retry budget
	// is exhausted; the pool stays degraded until an out-of-band
	// restart succeeds.
	ErrBrowserUnavailable = errors.New("pool: browser unavailable")

	// ErrShutdown is returned once the pool has begun shutting down.
	ErrShutdown = errors.New("pool: shutting down")
)
