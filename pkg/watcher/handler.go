package watcher

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"hash/fnv"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pydio/gosync/pkg/filter"
	"github.com/pydio/gosync/pkg/log"
	"github.com/pydio/gosync/pkg/metrics"
	"github.com/pydio/gosync/pkg/types"
)

// StateSink receives enriched inode intents. Implemented by
// index.StateManager.
type StateSink interface {
	Create(ctx context.Context, inode *types.Inode, isDir bool) error
	Delete(ctx context.Context, inode *types.Inode, isDir bool) error
	Modify(ctx context.Context, inode *types.Inode, isDir bool) error
	Move(ctx context.Context, source string, inode *types.Inode, isDir bool) error
}

// enrichWorkers bounds the pool that performs checksum and stat IO off the
// event goroutine. Events are sharded over the pool by relative path, so two
// events for the same path are always handled in order.
const enrichWorkers = 4

// statSnapshot is the serialized stat metadata stored per inode. It is only
// compared bit-exactly against a later snapshot of the same path, so the
// shape can stay platform-neutral.
type statSnapshot struct {
	Size    int64  `json:"size"`
	Mode    uint32 `json:"mode"`
	MTimeNs int64  `json:"mtime_ns"`
}

// Handler filters, classifies, enriches and dispatches filesystem events
// into a StateSink. One handler serves one watched workspace root.
type Handler struct {
	base    string
	filters *filter.Set
	sink    StateSink
	logger  zerolog.Logger

	shards   [enrichWorkers]chan Event
	ctx      context.Context
	cancel   context.CancelFunc
	consumer sync.WaitGroup
	workers  sync.WaitGroup
}

// NewHandler builds a handler for the workspace rooted at base. A nil
// filter set applies the defaults.
func NewHandler(base string, filters *filter.Set, sink StateSink) (*Handler, error) {
	if filters == nil {
		var err error
		filters, err = filter.New(nil, nil)
		if err != nil {
			return nil, err
		}
	}
	h := &Handler{
		base:    filter.Normalize(base),
		filters: filters,
		sink:    sink,
		logger:  log.WithComponent("events"),
	}
	return h, nil
}

// Start launches the enrichment pool and begins consuming events from the
// channel until it closes or the context is cancelled.
func (h *Handler) Start(ctx context.Context, events <-chan Event) {
	h.ctx, h.cancel = context.WithCancel(ctx)

	for i := range h.shards {
		h.shards[i] = make(chan Event, 64)
		h.workers.Add(1)
		go h.worker(h.shards[i])
	}

	h.consumer.Add(1)
	go func() {
		defer h.consumer.Done()
		for {
			select {
			case <-h.ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				h.Dispatch(ev)
			}
		}
	}()
}

// Stop drains the pool and joins every worker. The event source must be
// stopped (or its channel closed) first.
func (h *Handler) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.consumer.Wait()
	for i := range h.shards {
		close(h.shards[i])
	}
	h.workers.Wait()
}

// Dispatch routes one event to its enrichment shard. Events the filter
// rejects are dropped here, before any IO.
func (h *Handler) Dispatch(ev Event) {
	rel, ok := h.relative(ev.Path)
	if !ok || !h.filters.Accept(rel) {
		h.logger.Debug().Str("path", ev.Path).Str("op", ev.Op.String()).Msg("Ignoring filtered event")
		return
	}

	shard := h.shards[pathShard(rel)]
	select {
	case shard <- ev:
	case <-h.ctx.Done():
	}
}

func (h *Handler) worker(events <-chan Event) {
	defer h.workers.Done()
	for ev := range events {
		h.handle(ev)
	}
}

func (h *Handler) handle(ev Event) {
	h.logger.Debug().Str("op", ev.Op.String()).Str("path", ev.Path).Msg("Handling event")
	metrics.WatcherEventsTotal.WithLabelValues(ev.Op.String()).Inc()

	var err error
	switch ev.Op {
	case OpCreated:
		err = h.OnCreated(h.ctx, ev)
	case OpDeleted:
		err = h.OnDeleted(h.ctx, ev)
	case OpModified:
		err = h.OnModified(h.ctx, ev)
	case OpMoved:
		err = h.OnMoved(h.ctx, ev)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		// a single unreadable file must not stop observation
		h.logger.Error().Err(err).Str("op", ev.Op.String()).Str("path", ev.Path).Msg("Event handling failed")
	}
}

// OnCreated enriches and records a newly observed inode.
func (h *Handler) OnCreated(ctx context.Context, ev Event) error {
	inode, err := h.newInode(ev.Path, ev.IsDir)
	if err != nil {
		return err
	}
	return h.sink.Create(ctx, inode, ev.IsDir)
}

// OnDeleted records a removal. No enrichment: the path is gone.
func (h *Handler) OnDeleted(ctx context.Context, ev Event) error {
	rel, _ := h.relative(ev.Path)
	return h.sink.Delete(ctx, &types.Inode{NodePath: rel}, ev.IsDir)
}

// OnModified re-enriches an existing inode.
func (h *Handler) OnModified(ctx context.Context, ev Event) error {
	inode, err := h.newInode(ev.Path, ev.IsDir)
	if err != nil {
		return err
	}
	return h.sink.Modify(ctx, inode, ev.IsDir)
}

// OnMoved records a rename. Enrichment reads the destination path.
func (h *Handler) OnMoved(ctx context.Context, ev Event) error {
	source, ok := h.relative(ev.OldPath)
	if !ok {
		// moved in from outside the workspace: a plain creation
		return h.OnCreated(ctx, ev)
	}
	inode, err := h.newInode(ev.Path, ev.IsDir)
	if err != nil {
		return err
	}
	return h.sink.Move(ctx, source, inode, ev.IsDir)
}

// InitialScan walks the workspace and records every accepted path, bringing
// a fresh index up to date without waiting for events. Paths that are
// already indexed surface ErrStateMismatch from the sink and are skipped.
func (h *Handler) InitialScan(ctx context.Context) error {
	return filepath.WalkDir(h.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			h.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path during scan")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, ok := h.relative(path)
		if !ok || rel == "" {
			return nil
		}
		if !h.filters.Accept(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		inode, err := h.newInode(path, d.IsDir())
		if err != nil {
			h.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path during scan")
			return nil
		}
		if err := h.sink.Create(ctx, inode, d.IsDir()); err != nil {
			if errors.Is(err, types.ErrStateMismatch) {
				return nil // already indexed
			}
			return err
		}
		return nil
	})
}

// relative maps an absolute event path into the workspace. The second
// return is false for paths outside the tree; the empty string identifies
// the root itself.
func (h *Handler) relative(path string) (string, bool) {
	return filter.Relative(h.base, path)
}

// newInode captures the full inode record for a path: checksum, size,
// mtime and the serialized stat snapshot.
func (h *Handler) newInode(path string, isDir bool) (*types.Inode, error) {
	rel, _ := h.relative(path)
	inode := &types.Inode{NodePath: rel}

	if isDir {
		inode.MD5 = types.MD5Directory
		return inode, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	sum, err := fileMD5(path)
	if err != nil {
		return nil, err
	}

	inode.Bytesize = info.Size()
	inode.MD5 = sum
	inode.MTime = float64(info.ModTime().UnixNano()) / 1e9
	inode.Stat, err = json.Marshal(statSnapshot{
		Size:    info.Size(),
		Mode:    uint32(info.Mode()),
		MTimeNs: info.ModTime().UnixNano(),
	})
	return inode, err
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
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

func pathShard(rel string) int {
	hash := fnv.New32a()
	hash.Write([]byte(rel))
	return int(hash.Sum32() % enrichWorkers)
}
