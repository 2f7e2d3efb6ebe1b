package endpoint

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pydio/gosync/pkg/index"
	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func newLocal(t *testing.T) (*Local, string) {
	t.Helper()
	root := t.TempDir()
	store, err := index.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { store.Close() })
	return NewLocal(root, store), root
}

func stringContent(s string) ContentFunc {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(s)), nil
	}
}

func TestLocalAssertReady(t *testing.T) {
	l, _ := newLocal(t)
	assert.NoError(t, l.AssertReady(context.Background()))
}

func TestLocalAssertReadyMissingDirectory(t *testing.T) {
	store, err := index.OpenInMemory()
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Init(context.Background()))

	l := NewLocal("/does/not/exist", store)
	err = l.AssertReady(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEndpointUnavailable)
}

func TestLocalGetChangesReflectsState(t *testing.T) {
	l, _ := newLocal(t)
	ctx := context.Background()

	require.NoError(t, l.State().Create(ctx, &types.Inode{NodePath: "a.txt", MD5: "aa", Bytesize: 1}, false))

	changes, err := l.GetChanges(ctx, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, types.ChangeCreate, changes[0].Type)
	assert.Equal(t, "a.txt", changes[0].Target)
}

func TestLocalApplyCreateFile(t *testing.T) {
	l, root := newLocal(t)
	ctx := context.Background()

	op := &Operation{Type: types.ChangeCreate, Target: "docs/new.txt", Content: stringContent("hello")}
	require.NoError(t, l.Apply(ctx, op))

	body, err := os.ReadFile(filepath.Join(root, "docs", "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	rc, err := l.Open(ctx, "docs/new.txt")
	require.NoError(t, err)
	rc.Close()

	// the index was updated alongside the filesystem
	changes, err := l.GetChanges(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	last := changes[len(changes)-1]
	require.NotNil(t, last.Node)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", last.Node.MD5)
	assert.EqualValues(t, 5, last.Node.Bytesize)
}

func TestLocalApplyModifyUpsert(t *testing.T) {
	l, root := newLocal(t)
	ctx := context.Background()

	// a modify for a path the local index has never seen becomes a create
	op := &Operation{Type: types.ChangeModify, Target: "f.txt", Content: stringContent("v1")}
	require.NoError(t, l.Apply(ctx, op))

	op = &Operation{Type: types.ChangeModify, Target: "f.txt", Content: stringContent("v2")}
	require.NoError(t, l.Apply(ctx, op))

	body, err := os.ReadFile(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(body))
}

func TestLocalApplyCreateDirectory(t *testing.T) {
	l, root := newLocal(t)
	ctx := context.Background()

	op := &Operation{Type: types.ChangeCreate, Target: "a/b/c", IsDir: true}
	require.NoError(t, l.Apply(ctx, op))

	info, err := os.Stat(filepath.Join(root, "a", "b", "c"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// idempotent
	require.NoError(t, l.Apply(ctx, op))
}

func TestLocalApplyDeleteSubtree(t *testing.T) {
	l, root := newLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Apply(ctx, &Operation{Type: types.ChangeCreate, Target: "d", IsDir: true}))
	require.NoError(t, l.Apply(ctx, &Operation{Type: types.ChangeCreate, Target: "d/f.txt", Content: stringContent("x")}))

	require.NoError(t, l.Apply(ctx, &Operation{Type: types.ChangeDelete, Source: "d", IsDir: true}))

	_, err := os.Stat(filepath.Join(root, "d"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalApplyMove(t *testing.T) {
	l, root := newLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Apply(ctx, &Operation{Type: types.ChangeCreate, Target: "old.txt", Content: stringContent("z")}))
	require.NoError(t, l.Apply(ctx, &Operation{Type: types.ChangeMove, Source: "old.txt", Target: "sub/new.txt"}))

	_, err := os.Stat(filepath.Join(root, "old.txt"))
	assert.True(t, os.IsNotExist(err))
	body, err := os.ReadFile(filepath.Join(root, "sub", "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "z", string(body))
}

func TestLocalAckTrimsChangeLog(t *testing.T) {
	l, _ := newLocal(t)
	ctx := context.Background()

	require.NoError(t, l.Apply(ctx, &Operation{Type: types.ChangeCreate, Target: "a.txt", Content: stringContent("a")}))
	require.NoError(t, l.Apply(ctx, &Operation{Type: types.ChangeCreate, Target: "b.txt", Content: stringContent("b")}))

	max, err := l.MaxSeq(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Ack(ctx, max))

	changes, err := l.GetChanges(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, changes)
}
