package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pydio/gosync/pkg/config"
	"github.com/pydio/gosync/pkg/cursor"
	"github.com/pydio/gosync/pkg/endpoint"
	"github.com/pydio/gosync/pkg/events"
	"github.com/pydio/gosync/pkg/filter"
	"github.com/pydio/gosync/pkg/index"
	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/merger"
	"github.com/pydio/gosync/pkg/pydio"
	"github.com/pydio/gosync/pkg/types"
	"github.com/pydio/gosync/pkg/watcher"
)

// Job is one configured sync pair wired into a running service tree: index
// store, watcher pipeline, endpoints, merge coordinator and trigger loop.
// The job owns its children; stopping the job stops and joins all of them.
type Job struct {
	name   string
	cfg    *config.Job
	dir    string
	broker *events.Broker
	logger zerolog.Logger

	fileLock *flock.Flock
	store    *index.Store
	cursors  *cursor.Store
	local    *endpoint.Local
	merger   *merger.Merger
	watch    *watcher.Recursive
	handler  *watcher.Handler
	looper   Looper

	mu     sync.Mutex
	status types.JobStatus
	cancel context.CancelFunc
}

// NewJob assembles a job from its configuration. The job directory under
// dataDir receives the index database, the cursor database, the flock file
// and the persisted device id.
func NewJob(name string, cfg *config.Job, dataDir string, broker *events.Broker) (*Job, error) {
	dir := filepath.Join(dataDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, types.StorageUnavailable(err)
	}

	// one daemon per job directory
	fileLock := flock.New(filepath.Join(dir, "job.lock"))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, types.StorageUnavailable(err)
	}
	if !locked {
		return nil, fmt.Errorf("job directory %s is locked by another process", dir)
	}

	j := &Job{
		name:     name,
		cfg:      cfg,
		dir:      dir,
		broker:   broker,
		logger:   log.WithJob(name),
		fileLock: fileLock,
		status:   types.JobStatusIdle,
	}
	if err := j.assemble(); err != nil {
		fileLock.Unlock()
		j.closePartial()
		return nil, err
	}
	return j, nil
}

func (j *Job) assemble() error {
	ctx := context.Background()

	store, err := index.Open(filepath.Join(j.dir, "index.db"))
	if err != nil {
		return err
	}
	j.store = store
	if err := store.Init(ctx); err != nil {
		return err
	}

	cursors, err := cursor.Open(filepath.Join(j.dir, "cursors.db"))
	if err != nil {
		return types.StorageUnavailable(err)
	}
	j.cursors = cursors

	filters, err := filter.New(j.cfg.Includes, j.cfg.Excludes)
	if err != nil {
		return err
	}

	deviceID, err := j.deviceID()
	if err != nil {
		return err
	}

	client, err := pydio.NewClient(pydio.Config{
		Server:       j.cfg.Server,
		Workspace:    j.cfg.Workspace,
		RemoteFolder: j.cfg.RemoteFolder,
		UserID:       j.cfg.UserID,
		DeviceID:     deviceID,
		TrustSSL:     j.cfg.TrustSSL,
		Proxies:      j.cfg.Proxies,
		Timeout:      j.cfg.RequestTimeout(),
	})
	if err != nil {
		return err
	}

	j.local = endpoint.NewLocal(j.cfg.Directory, store)
	remote := endpoint.NewRemote(client)
	j.merger = merger.New(j.name, j.local, remote, cursors,
		j.cfg.ParsedDirection(), j.cfg.ParsedSolve(), merger.WithBroker(j.broker))

	watch, err := watcher.NewRecursive(j.cfg.Directory)
	if err != nil {
		return err
	}
	j.watch = watch

	handler, err := watcher.NewHandler(j.cfg.Directory, filters, j.local.State())
	if err != nil {
		return err
	}
	j.handler = handler

	j.looper = FromFrequency(j.cfg.Frequency)
	return nil
}

// deviceID returns the configured device id, or a generated one persisted
// in the job directory so the server sees a stable identity across
// restarts.
func (j *Job) deviceID() (string, error) {
	if j.cfg.DeviceID != "" {
		return j.cfg.DeviceID, nil
	}
	path := filepath.Join(j.dir, "device_id")
	if data, err := os.ReadFile(path); err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", types.StorageUnavailable(err)
	}
	return id, nil
}

// Name returns the configured job name.
func (j *Job) Name() string { return j.name }

// Status returns the job's lifecycle state.
func (j *Job) Status() types.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) setStatus(s types.JobStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// Start brings the watcher pipeline up, reconciles the index with the
// current tree, and begins the trigger loop.
func (j *Job) Start(ctx context.Context) error {
	ctx, j.cancel = context.WithCancel(ctx)

	if err := j.watch.Start(); err != nil {
		return err
	}
	j.handler.Start(ctx, j.watch.Events())

	// pick up whatever changed while the daemon was down
	if err := j.handler.InitialScan(ctx); err != nil {
		j.logger.Warn().Err(err).Msg("Initial scan did not complete")
	}

	j.looper.Start(func() {
		if _, err := j.merger.Sync(ctx); err != nil {
			j.logger.Error().Err(err).Msg("Scheduled sync failed")
		}
	})

	j.setStatus(types.JobStatusRunning)
	j.publish(events.EventJobStarted, "")
	j.logger.Info().
		Str("directory", j.cfg.Directory).
		Str("server", j.cfg.Server).
		Str("workspace", j.cfg.Workspace).
		Msg("Job started")
	return nil
}

// TriggerNow runs one sync outside the schedule.
func (j *Job) TriggerNow(ctx context.Context) error {
	_, err := j.merger.Sync(ctx)
	return err
}

// SampleChangeLog reports the current change-log backlog, for the metrics
// collector.
func (j *Job) SampleChangeLog(ctx context.Context) (int64, error) {
	return j.store.ChangeLogLength(ctx)
}

// Stop tears the job down in child order: trigger loop, watcher, handler,
// stores, lock. Safe to call on a job that never started.
func (j *Job) Stop() {
	if j.cancel != nil {
		j.cancel() // unblock any in-flight sync before joining the loop
	}
	if j.looper != nil && j.Status() == types.JobStatusRunning {
		j.looper.Stop()
	}
	if j.watch != nil {
		j.watch.Stop()
	}
	if j.handler != nil && j.Status() == types.JobStatusRunning {
		j.handler.Stop()
	}
	j.closePartial()
	j.fileLock.Unlock()

	j.setStatus(types.JobStatusStopped)
	j.publish(events.EventJobStopped, "")
	j.logger.Info().Msg("Job stopped")
}

func (j *Job) closePartial() {
	if j.cursors != nil {
		j.cursors.Close()
		j.cursors = nil
	}
	if j.store != nil {
		j.store.Close()
		j.store = nil
	}
}

func (j *Job) publish(t events.EventType, msg string) {
	if j.broker == nil {
		return
	}
	j.broker.Publish(&events.Event{Type: t, Job: j.name, Message: msg})
}
