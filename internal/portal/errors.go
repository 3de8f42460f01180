package portal

import (
	"errors"
	"fmt"
)

var (
	// ErrNoUser means there is no authenticated user context. Views refuse
	// to mount and no poller starts.
	ErrNoUser = errors.New("no authenticated user")

	// ErrNoBackend is returned when a session is built without an API.
	ErrNoBackend = errors.New("portal backend is required")

	// ErrAlreadyMounted is returned by Mount on a mounted view.
	ErrAlreadyMounted = errors.New("view already mounted")
)

// LoadError reports that a view's first load failed. The view stays
// unmounted; calling Mount again retries.
type LoadError struct {
	View string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: initial load failed: %v", e.View, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Retryable is always true: initial load failures are transient.
func (e *LoadError) Retryable() bool {
	return true
}
