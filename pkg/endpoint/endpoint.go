package endpoint

import (
	"context"
	"io"

	"github.com/pydio/gosync/pkg/types"
)

// Synchronizable is one side of a sync pair: an ordered, cursor-addressable
// change stream plus the mutation surface a merge needs to reconcile the
// other side against it.
type Synchronizable interface {
	// Name identifies the endpoint in logs, metrics and the cursor store.
	Name() string

	// AssertReady confirms the endpoint is reachable and in a consistent
	// state. Failures wrap types.ErrEndpointUnavailable.
	AssertReady(ctx context.Context) error

	// GetChanges returns every change with seq > cursor, ordered by
	// (node_id, seq) ascending. The result is finite and not restartable
	// within a single call.
	GetChanges(ctx context.Context, cursor int64) ([]types.Change, error)

	// Open streams the current contents of a file on this endpoint,
	// used as the source when the merge copies it to the other side.
	Open(ctx context.Context, nodePath string) (io.ReadCloser, error)

	// Apply performs one reconciliation operation on this endpoint.
	Apply(ctx context.Context, op *Operation) error
}

// ContentFunc lazily opens the content a create or modify operation should
// write. The origin endpoint supplies it; the target endpoint consumes it
// at apply time so nothing is buffered in between.
type ContentFunc func(ctx context.Context) (io.ReadCloser, error)

// Operation is one reconciliation step emitted by the merge strategy.
type Operation struct {
	Type   types.ChangeType
	Source string
	Target string
	IsDir  bool
	// Content is set for file creations and modifications only.
	Content ContentFunc
}

// Path returns the path an operation acts on, for logging.
func (op *Operation) Path() string {
	if op.Target != "" {
		return op.Target
	}
	return op.Source
}
