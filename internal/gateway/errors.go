package gateway

import (
	"errors"
	"fmt"
)

// Sentinel classifications for remote failures. Reconcilers branch on these
// to decide between skipping one item and aborting the whole cycle.
var (
	// ErrNotFound: the remote account or tweet no longer exists.
	ErrNotFound = errors.New("twitter: not found")
	// ErrUnauthorized: the bearer token was rejected (401/403).
	ErrUnauthorized = errors.New("twitter: unauthorized")
	// ErrRateLimited: quota exhausted and retries did not recover (429).
	ErrRateLimited = errors.New("twitter: rate limited")
)

// ConnectionError wraps transport-level and 5xx failures. These are
// recoverable: the affected item is skipped for the current cycle only.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("twitter: connection error on %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the remote object is gone.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsTokenError reports whether err indicates the shared bearer token is
// currently unusable. Such a failure aborts the remainder of the cycle
// instead of burning quota item by item.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrRateLimited)
}
