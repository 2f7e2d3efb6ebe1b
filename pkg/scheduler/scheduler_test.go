package scheduler

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pydio/gosync/pkg/config"
	"github.com/pydio/gosync/pkg/events"
	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/types"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// fakeServer emulates the narrow Pydio API surface a job exercises.
type fakeServer struct {
	mu      sync.Mutex
	uploads map[string][]byte
	srv     *httptest.Server
}

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{uploads: make(map[string][]byte)}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v2/health":
			w.WriteHeader(http.StatusOK)
		case strings.HasPrefix(r.URL.Path, "/api/v2/changes/"):
			w.Write([]byte("[]"))
		case r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.uploads[r.URL.Path] = body
			f.mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) uploaded(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.uploads[path]
	return body, ok
}

func jobConfig(t *testing.T, server string) (*config.Job, string, string) {
	t.Helper()
	workspace := t.TempDir()
	dataDir := t.TempDir()
	active := true
	return &config.Job{
		Directory: workspace,
		Server:    server,
		Workspace: "ws",
		Frequency: config.Frequency{Every: time.Hour},
		Timeout:   5,
		Active:    &active,
	}, workspace, dataDir
}

func TestJobLifecycle(t *testing.T) {
	remote := newFakeServer(t)
	cfg, workspace, dataDir := jobConfig(t, remote.srv.URL)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	job, err := NewJob("docs", cfg, dataDir, broker)
	require.NoError(t, err)
	require.NoError(t, job.Start(context.Background()))
	defer job.Stop()

	assert.Equal(t, types.JobStatusRunning, job.Status())

	// a new workspace file flows through watcher → index. The inode row is
	// checked rather than the change log: the startup sync may already have
	// pushed the new rows and trimmed them from the log.
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "note.txt"), []byte("hi"), 0644))
	require.Eventually(t, func() bool {
		in, err := job.store.Lookup(context.Background(), "note.txt")
		return err == nil && in != nil
	}, 3*time.Second, 20*time.Millisecond, "watcher event never reached the index")

	// a manual sync pushes it to the remote. The trigger may overlap the
	// startup sync, in which case it is skipped; retry until it lands.
	require.Eventually(t, func() bool {
		require.NoError(t, job.TriggerNow(context.Background()))
		_, ok := remote.uploaded("/api/v2/io/ws/note.txt")
		return ok
	}, 5*time.Second, 50*time.Millisecond, "note.txt was not uploaded")

	body, _ := remote.uploaded("/api/v2/io/ws/note.txt")
	assert.Equal(t, "hi", string(body))
}

func TestJobInitialScanIndexesExistingTree(t *testing.T) {
	remote := newFakeServer(t)
	cfg, workspace, dataDir := jobConfig(t, remote.srv.URL)

	require.NoError(t, os.WriteFile(filepath.Join(workspace, "pre-existing.txt"), []byte("old"), 0644))

	job, err := NewJob("docs", cfg, dataDir, nil)
	require.NoError(t, err)
	require.NoError(t, job.Start(context.Background()))
	defer job.Stop()

	n, err := job.SampleChangeLog(context.Background())
	require.NoError(t, err)
	assert.Positive(t, n, "initial scan should have indexed the existing file")
}

func TestJobDirectoryLock(t *testing.T) {
	remote := newFakeServer(t)
	cfg, _, dataDir := jobConfig(t, remote.srv.URL)

	job, err := NewJob("docs", cfg, dataDir, nil)
	require.NoError(t, err)
	defer job.Stop()

	_, err = NewJob("docs", cfg, dataDir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestJobDeviceIDPersists(t *testing.T) {
	remote := newFakeServer(t)
	cfg, _, dataDir := jobConfig(t, remote.srv.URL)

	job, err := NewJob("docs", cfg, dataDir, nil)
	require.NoError(t, err)
	first, err := os.ReadFile(filepath.Join(dataDir, "docs", "device_id"))
	require.NoError(t, err)
	job.Stop()

	job, err = NewJob("docs", cfg, dataDir, nil)
	require.NoError(t, err)
	defer job.Stop()
	second, err := os.ReadFile(filepath.Join(dataDir, "docs", "device_id"))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestSchedulerStartsActiveJobsOnly(t *testing.T) {
	remote := newFakeServer(t)
	activeCfg, _, _ := jobConfig(t, remote.srv.URL)
	inactiveCfg, _, _ := jobConfig(t, remote.srv.URL)
	inactive := false
	inactiveCfg.Active = &inactive

	cfg := &config.Config{
		DataDir: t.TempDir(),
		Jobs: map[string]*config.Job{
			"running": activeCfg,
			"paused":  inactiveCfg,
		},
	}

	s := New(cfg)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	statuses := s.Statuses()
	assert.Equal(t, types.JobStatusRunning, statuses["running"])
	assert.Equal(t, types.JobStatusStopped, statuses["paused"])

	assert.Error(t, s.TriggerNow(context.Background(), "paused"))
	assert.NoError(t, s.TriggerNow(context.Background(), "running"))
}

func TestSchedulerMarksFailedJob(t *testing.T) {
	remote := newFakeServer(t)
	okCfg, _, _ := jobConfig(t, remote.srv.URL)
	brokenCfg, _, _ := jobConfig(t, remote.srv.URL)

	// a data dir path that is actually a file cannot hold a job directory
	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "broken"), []byte("x"), 0644))

	cfg := &config.Config{
		DataDir: dataDir,
		Jobs: map[string]*config.Job{
			"ok":     okCfg,
			"broken": brokenCfg,
		},
	}

	s := New(cfg)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	statuses := s.Statuses()
	assert.Equal(t, types.JobStatusRunning, statuses["ok"])
	assert.Equal(t, types.JobStatusFailed, statuses["broken"])
}

func TestSchedulerAllJobsFailed(t *testing.T) {
	remote := newFakeServer(t)
	brokenCfg, _, _ := jobConfig(t, remote.srv.URL)

	dataDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "only"), []byte("x"), 0644))

	cfg := &config.Config{
		DataDir: dataDir,
		Jobs:    map[string]*config.Job{"only": brokenCfg},
	}

	s := New(cfg)
	err := s.Start(context.Background())
	require.Error(t, err)
	s.Stop()
}
