package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/pydio/gosync/pkg/log"
)

// Op classifies a filesystem event.
type Op int

const (
	OpCreated Op = iota
	OpDeleted
	OpModified
	OpMoved
)

func (o Op) String() string {
	switch o {
	case OpCreated:
		return "created"
	case OpDeleted:
		return "deleted"
	case OpModified:
		return "modified"
	case OpMoved:
		return "moved"
	}
	return "unknown"
}

// Event is one classified filesystem mutation. OldPath is set only for
// OpMoved; Path is the destination for moves and the affected path otherwise.
type Event struct {
	Op      Op
	Path    string
	OldPath string
	IsDir   bool
}

// renamePairWindow bounds how long a rename waits for its paired create
// before decaying into a deletion.
const renamePairWindow = 500 * time.Millisecond

// Recursive watches a directory tree with fsnotify. fsnotify watches are
// per-directory, so Recursive walks the root at start, registers every
// subdirectory, and keeps registering directories as they appear.
//
// Renames arrive from the platform as a Rename on the old path followed by a
// Create on the new one. Recursive holds the rename in a single pending slot
// for a short window and pairs it with the next create of the same base
// name; unpaired renames decay to deletions.
type Recursive struct {
	root   string
	fs     *fsnotify.Watcher
	events chan Event
	logger zerolog.Logger

	// dirs remembers which watched paths are directories, so removals and
	// renames can be classified after the inode is gone.
	mu   sync.Mutex
	dirs map[string]bool

	pendingRename *pendingRename
	// renameExpired funnels decay timers back into the delivery goroutine,
	// which is the only one allowed to emit.
	renameExpired chan *pendingRename

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

type pendingRename struct {
	path  string
	isDir bool
	timer *time.Timer
}

// NewRecursive creates a watcher rooted at root. The root must exist.
func NewRecursive(root string) (*Recursive, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Recursive{
		root:          root,
		fs:            fsw,
		events:        make(chan Event, 256),
		logger:        log.WithComponent("watcher"),
		dirs:          make(map[string]bool),
		renameExpired: make(chan *pendingRename, 8),
		done:          make(chan struct{}),
	}, nil
}

// Start registers the existing tree and begins delivering events.
func (w *Recursive) Start() error {
	err := filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path during registration")
			return nil
		}
		if info.IsDir() {
			if err := w.fs.Add(path); err != nil {
				return err
			}
			w.mu.Lock()
			w.dirs[path] = true
			w.mu.Unlock()
		}
		return nil
	})
	if err != nil {
		w.fs.Close()
		return err
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Events returns the classified event stream. The channel closes on Stop.
func (w *Recursive) Events() <-chan Event {
	return w.events
}

// Stop closes the platform watcher and joins the delivery goroutine.
func (w *Recursive) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Recursive) loop() {
	defer w.wg.Done()
	defer close(w.events)

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.classify(ev)
		case p := <-w.renameExpired:
			w.decayRename(p)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Platform watcher error")
		}
	}
}

// decayRename turns a rename whose pair never arrived into a deletion.
func (w *Recursive) decayRename(p *pendingRename) {
	w.mu.Lock()
	if w.pendingRename != p {
		w.mu.Unlock()
		return
	}
	w.pendingRename = nil
	w.mu.Unlock()
	w.emit(Event{Op: OpDeleted, Path: p.path, IsDir: p.isDir})
}

func (w *Recursive) classify(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		info, err := os.Lstat(ev.Name)
		if err != nil {
			// raced with a deletion; the corresponding Remove follows
			return
		}
		isDir := info.IsDir()
		if isDir {
			if err := w.fs.Add(ev.Name); err != nil {
				w.logger.Warn().Err(err).Str("path", ev.Name).Msg("Failed to watch new directory")
			}
			w.mu.Lock()
			w.dirs[ev.Name] = true
			w.mu.Unlock()
		}
		if old, ok := w.takePairedRename(ev.Name, isDir); ok {
			w.emit(Event{Op: OpMoved, Path: ev.Name, OldPath: old, IsDir: isDir})
			return
		}
		w.emit(Event{Op: OpCreated, Path: ev.Name, IsDir: isDir})

	case ev.Op.Has(fsnotify.Rename):
		w.holdRename(ev.Name, w.forgetDir(ev.Name))

	case ev.Op.Has(fsnotify.Remove):
		w.flushPendingRename()
		w.emit(Event{Op: OpDeleted, Path: ev.Name, IsDir: w.forgetDir(ev.Name)})

	case ev.Op.Has(fsnotify.Write):
		w.mu.Lock()
		isDir := w.dirs[ev.Name]
		w.mu.Unlock()
		w.emit(Event{Op: OpModified, Path: ev.Name, IsDir: isDir})
	}
}

func (w *Recursive) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// forgetDir reports whether path was a known directory and drops it.
func (w *Recursive) forgetDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	isDir := w.dirs[path]
	if isDir {
		delete(w.dirs, path)
	}
	return isDir
}

func (w *Recursive) holdRename(path string, isDir bool) {
	w.mu.Lock()
	prev := w.pendingRename
	if prev != nil {
		prev.timer.Stop()
	}
	p := &pendingRename{path: path, isDir: isDir}
	p.timer = time.AfterFunc(renamePairWindow, func() {
		select {
		case w.renameExpired <- p:
		case <-w.done:
		}
	})
	w.pendingRename = p
	w.mu.Unlock()

	if prev != nil {
		w.emit(Event{Op: OpDeleted, Path: prev.path, IsDir: prev.isDir})
	}
}

func (w *Recursive) takePairedRename(newPath string, isDir bool) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := w.pendingRename
	if p == nil {
		return "", false
	}
	if p.isDir != isDir || filepath.Base(p.path) != filepath.Base(newPath) {
		return "", false
	}
	p.timer.Stop()
	w.pendingRename = nil
	return p.path, true
}

func (w *Recursive) flushPendingRename() {
	w.mu.Lock()
	p := w.pendingRename
	if p == nil {
		w.mu.Unlock()
		return
	}
	p.timer.Stop()
	w.pendingRename = nil
	w.mu.Unlock()
	w.emit(Event{Op: OpDeleted, Path: p.path, IsDir: p.isDir})
}
