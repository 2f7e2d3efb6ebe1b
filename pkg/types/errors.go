package types

import (
	"errors"
	"fmt"
)

// Sentinel error kinds surfaced by the core. Callers classify wrapped
// errors with errors.Is and decide per kind whether a failure is fatal for
// the job or recovered on the next trigger tick.
var (
	// ErrStorageUnavailable: the index store file or its directory is
	// inaccessible, or schema initialization failed. Fatal for the job.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrEndpointUnavailable: an endpoint readiness check failed. The
	// sync aborts and retries on the next tick.
	ErrEndpointUnavailable = errors.New("endpoint unavailable")

	// ErrStateMismatch: the state manager found an inode row inconsistent
	// with the requested intent (duplicate create, modify of a missing
	// row). Logged; the affected path is skipped.
	ErrStateMismatch = errors.New("state mismatch")

	// ErrConcurrentMerge: a sync was invoked while one is in progress.
	// The second invocation is a no-op.
	ErrConcurrentMerge = errors.New("concurrent merge")

	// ErrTransportFailure: remote SDK I/O error or timeout. The sync
	// aborts and retries on the next tick.
	ErrTransportFailure = errors.New("transport failure")

	// ErrFilterConfig: an include/exclude glob failed to compile. Fatal
	// at startup.
	ErrFilterConfig = errors.New("invalid filter configuration")
)

// StorageUnavailable wraps err as an ErrStorageUnavailable.
func StorageUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

// EndpointUnavailable marks the named endpoint as not ready.
func EndpointUnavailable(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrEndpointUnavailable, name, err)
}

// StateMismatch describes an inode-row inconsistency for a path.
func StateMismatch(op, path string) error {
	return fmt.Errorf("%w: %s %s", ErrStateMismatch, op, path)
}

// TransportFailure wraps a remote SDK error.
func TransportFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrTransportFailure, err)
}
