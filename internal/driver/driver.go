// Package driver provides a go-rod-backed implementation of
// pool.BrowserDriver, the only component that talks to the real
// browser process.
package driver

// TargetClosedError wraps a browser-process-level failure: the
// context (or the whole browser) is gone. The pool type-asserts for
// this via errors.As to decide whether to trigger a whole-browser
// restart, as opposed to treating the failure as an ordinary
// DriverError.
type TargetClosedError struct {
	Cause error
}

func (e *TargetClosedError) Error() string {
	if e.Cause == nil {
		return "driver: target closed"
	}
	return "driver: target closed: " + e.Cause.Error()
}

func (e *TargetClosedError) Unwrap() error { return e.Cause }

// TargetClosed marks this error for pool.TargetClosedMarker.
func (e *TargetClosedError) TargetClosed() bool { return true }

// Error wraps an ordinary (non-crash) driver failure.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return "driver: " + e.Op
	}
	return "driver: " + e.Op + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }
