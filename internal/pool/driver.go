package pool

import (
	"context"
	"time"
)

// DriverHandle is an opaque reference into a driver-owned browser
// context. The pool never inspects it; it only threads it back into
// CloseContext/Execute.
type DriverHandle interface{}

// BrowserDriver is the only component that talks to the real browser.
// Implementations must report a closed-target failure distinctly from
// an ordinary navigation failure (the pool distinguishes the two with
// errors.As against a driver-supplied *TargetClosed-shaped type; see
// internal/driver.TargetClosedError).
type BrowserDriver interface {
	// Launch starts (or attaches to) the underlying browser process.
	Launch(ctx context.Context) error

	// Shutdown tears the browser process down. Idempotent.
	Shutdown(ctx context.Context) error

	// NewContext creates an isolated browser context, optionally
	// bound to proxy and restored from storagePath (empty means
	// transient). Returns a handle valid until CloseContext.
	NewContext(ctx context.Context, proxy string, storagePath string, tags []string) (DriverHandle, error)

	// CloseContext releases a context's driver-side resources.
	// Idempotent.
	CloseContext(ctx context.Context, h DriverHandle) error

	// Execute performs one scrape step against the context behind h.
	Execute(ctx context.Context, h DriverHandle, req ScrapeRequest, timeout time.Duration) (ScrapeResult, error)

	// CDPTargetURL returns the URL CDP reports for h's primary page
	// target. The pool records it when the context is created or
	// recreated.
	CDPTargetURL(h DriverHandle) string
}
