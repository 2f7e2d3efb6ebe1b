package endpoint

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/pydio"
	"github.com/pydio/gosync/pkg/types"
)

// Remote adapts the Pydio SDK client to the Synchronizable interface.
type Remote struct {
	client *pydio.Client
	logger zerolog.Logger
}

// NewRemote wraps an SDK client.
func NewRemote(client *pydio.Client) *Remote {
	return &Remote{
		client: client,
		logger: log.WithEndpoint("remote"),
	}
}

// Name implements Synchronizable.
func (r *Remote) Name() string { return "remote" }

// AssertReady probes the server health endpoint.
func (r *Remote) AssertReady(ctx context.Context) error {
	if err := r.client.Health(ctx); err != nil {
		return types.EndpointUnavailable("remote "+r.client.Server(), err)
	}
	return nil
}

// GetChanges fetches the remote change feed after the cursor.
func (r *Remote) GetChanges(ctx context.Context, cursor int64) ([]types.Change, error) {
	return r.client.Changes(ctx, cursor)
}

// Open streams a remote file's contents.
func (r *Remote) Open(ctx context.Context, nodePath string) (io.ReadCloser, error) {
	return r.client.Download(ctx, nodePath)
}

// Apply maps one reconciliation operation onto SDK calls.
func (r *Remote) Apply(ctx context.Context, op *Operation) error {
	switch op.Type {
	case types.ChangeCreate, types.ChangeModify:
		if op.IsDir {
			return r.client.Mkdir(ctx, op.Target)
		}
		if op.Content == nil {
			return fmt.Errorf("write %s: no content source", op.Target)
		}
		content, err := op.Content(ctx)
		if err != nil {
			return err
		}
		defer content.Close()
		return r.client.Upload(ctx, op.Target, content)

	case types.ChangeDelete:
		return r.client.Delete(ctx, op.Source)

	case types.ChangeMove:
		return r.client.Move(ctx, op.Source, op.Target)
	}
	return fmt.Errorf("unknown operation type %q", op.Type)
}
