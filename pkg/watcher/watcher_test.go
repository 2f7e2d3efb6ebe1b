package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startRecursive(t *testing.T, root string) *Recursive {
	t.Helper()
	w, err := NewRecursive(root)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { w.Stop() })
	return w
}

func nextEvent(t *testing.T, w *Recursive, want Op) Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "event channel closed while waiting for %s", want)
			if ev.Op == want {
				return ev
			}
			// unrelated event (e.g. a Write accompanying a create)
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func TestRecursiveDeliversCreate(t *testing.T) {
	root := t.TempDir()
	w := startRecursive(t, root)

	path := filepath.Join(root, "new.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	ev := nextEvent(t, w, OpCreated)
	assert.Equal(t, path, ev.Path)
	assert.False(t, ev.IsDir)
}

func TestRecursiveWatchesNewSubdirectories(t *testing.T) {
	root := t.TempDir()
	w := startRecursive(t, root)

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	ev := nextEvent(t, w, OpCreated)
	assert.True(t, ev.IsDir)

	// events inside the new directory are observed too
	inner := filepath.Join(sub, "inner.txt")
	require.NoError(t, os.WriteFile(inner, []byte("y"), 0644))
	ev = nextEvent(t, w, OpCreated)
	assert.Equal(t, inner, ev.Path)
}

func TestRecursiveDeliversModify(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	w := startRecursive(t, root)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))

	ev := nextEvent(t, w, OpModified)
	assert.Equal(t, path, ev.Path)
}

func TestRecursiveDeliversDelete(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	w := startRecursive(t, root)
	require.NoError(t, os.Remove(path))

	ev := nextEvent(t, w, OpDeleted)
	assert.Equal(t, path, ev.Path)
}

func TestRecursivePairsRenameIntoMove(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "name.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	w := startRecursive(t, root)

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	nextEvent(t, w, OpCreated) // the directory itself

	dest := filepath.Join(sub, "name.txt")
	require.NoError(t, os.Rename(path, dest))

	ev := nextEvent(t, w, OpMoved)
	assert.Equal(t, path, ev.OldPath)
	assert.Equal(t, dest, ev.Path)
}

func TestRecursiveUnpairedRenameDecaysToDelete(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	w := startRecursive(t, root)
	require.NoError(t, os.Rename(path, filepath.Join(outside, "f.txt")))

	ev := nextEvent(t, w, OpDeleted)
	assert.Equal(t, path, ev.Path)
}

func TestStopClosesEventChannel(t *testing.T) {
	root := t.TempDir()
	w, err := NewRecursive(root)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after Stop")
	}
}
