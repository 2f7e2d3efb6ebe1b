package endpoint

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/pydio/gosync/pkg/index"
	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/types"
)

// Local is the workspace-directory endpoint, backed by the index store. Its
// change stream is the index's trigger-driven log; applying an operation
// mutates the filesystem and the index together so the next sync does not
// re-discover the applied change as new work.
type Local struct {
	root   string
	store  *index.Store
	state  *index.StateManager
	logger zerolog.Logger
}

// NewLocal builds the local endpoint for a workspace root.
func NewLocal(root string, store *index.Store) *Local {
	return &Local{
		root:   root,
		store:  store,
		state:  index.NewStateManager(store),
		logger: log.WithEndpoint("local"),
	}
}

// Name implements Synchronizable.
func (l *Local) Name() string { return "local" }

// Root returns the workspace directory.
func (l *Local) Root() string { return l.root }

// State exposes the state manager, which is also the watcher's sink.
func (l *Local) State() *index.StateManager { return l.state }

// AssertReady verifies the watched directory exists.
func (l *Local) AssertReady(ctx context.Context) error {
	info, err := os.Stat(l.root)
	if err != nil {
		return types.EndpointUnavailable("local", err)
	}
	if !info.IsDir() {
		return types.EndpointUnavailable("local", fmt.Errorf("%s is not a directory", l.root))
	}
	return nil
}

// GetChanges reads the change log after the cursor.
func (l *Local) GetChanges(ctx context.Context, cursor int64) ([]types.Change, error) {
	return l.store.Changes(ctx, cursor)
}

// Open streams a workspace file.
func (l *Local) Open(ctx context.Context, nodePath string) (io.ReadCloser, error) {
	return os.Open(l.abs(nodePath))
}

// MaxSeq returns the current high-water mark of the change log.
func (l *Local) MaxSeq(ctx context.Context) (int64, error) {
	return l.store.MaxSeq(ctx)
}

// Ack truncates the change log up to an acknowledged sequence.
func (l *Local) Ack(ctx context.Context, seq int64) error {
	return l.store.TrimChanges(ctx, seq)
}

// Apply mutates the workspace and the index for one operation. Create and
// modify intents are upserts here: whether the path is already indexed
// depends on local history the remote side cannot know about.
func (l *Local) Apply(ctx context.Context, op *Operation) error {
	switch op.Type {
	case types.ChangeCreate, types.ChangeModify:
		return l.applyWrite(ctx, op)
	case types.ChangeDelete:
		return l.applyDelete(ctx, op)
	case types.ChangeMove:
		return l.applyMove(ctx, op)
	}
	return fmt.Errorf("unknown operation type %q", op.Type)
}

func (l *Local) applyWrite(ctx context.Context, op *Operation) error {
	abs := l.abs(op.Target)

	if op.IsDir {
		if err := os.MkdirAll(abs, 0755); err != nil {
			return err
		}
		inode := &types.Inode{NodePath: op.Target, MD5: types.MD5Directory}
		if err := l.state.Create(ctx, inode, true); err != nil && !errors.Is(err, types.ErrStateMismatch) {
			return err
		}
		return nil
	}

	if op.Content == nil {
		return fmt.Errorf("write %s: no content source", op.Target)
	}
	content, err := op.Content(ctx)
	if err != nil {
		return err
	}
	defer content.Close()

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return err
	}

	// write to a temp name and rename, so watchers and readers never see
	// a half-written file; the checksum is computed on the way through
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".gosync-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		return err
	}

	inode, err := l.captureInode(op.Target, abs, hex.EncodeToString(hash.Sum(nil)), size)
	if err != nil {
		return err
	}

	err = l.state.Modify(ctx, inode, false)
	if errors.Is(err, types.ErrStateMismatch) {
		err = l.state.Create(ctx, inode, false)
	}
	return err
}

func (l *Local) applyDelete(ctx context.Context, op *Operation) error {
	if err := os.RemoveAll(l.abs(op.Source)); err != nil {
		return err
	}
	return l.state.Delete(ctx, &types.Inode{NodePath: op.Source}, op.IsDir)
}

func (l *Local) applyMove(ctx context.Context, op *Operation) error {
	dest := l.abs(op.Target)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	if err := os.Rename(l.abs(op.Source), dest); err != nil {
		return err
	}

	inode := &types.Inode{NodePath: op.Target}
	if op.IsDir {
		inode.MD5 = types.MD5Directory
	}
	err := l.state.Move(ctx, op.Source, inode, op.IsDir)
	if errors.Is(err, types.ErrStateMismatch) {
		// the source was never indexed; record the destination fresh
		l.logger.Warn().Str("source", op.Source).Str("target", op.Target).Msg("Move of unindexed path, indexing destination")
		info, statErr := os.Stat(dest)
		if statErr != nil {
			return statErr
		}
		if info.IsDir() {
			return l.state.Create(ctx, inode, true)
		}
		sum, sumErr := localMD5(dest)
		if sumErr != nil {
			return sumErr
		}
		fresh, capErr := l.captureInode(op.Target, dest, sum, info.Size())
		if capErr != nil {
			return capErr
		}
		return l.state.Create(ctx, fresh, false)
	}
	return err
}

func (l *Local) abs(nodePath string) string {
	return filepath.Join(l.root, filepath.FromSlash(nodePath))
}

// captureInode records the post-apply metadata for a written file.
func (l *Local) captureInode(nodePath, abs, sum string, size int64) (*types.Inode, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	stat, err := json.Marshal(map[string]any{
		"size":     info.Size(),
		"mode":     uint32(info.Mode()),
		"mtime_ns": info.ModTime().UnixNano(),
	})
	if err != nil {
		return nil, err
	}
	return &types.Inode{
		NodePath: nodePath,
		Bytesize: size,
		MD5:      sum,
		MTime:    float64(info.ModTime().UnixNano()) / 1e9,
		Stat:     stat,
	}, nil
}

func localMD5(abs string) (string, error) {
	f, err := os.Open(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
