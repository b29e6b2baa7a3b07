// Package watcher monitors the root folder for file activity. Raw fsnotify
// events are filtered against the sync guard, debounced per path, and
// delivered to the pipeline as change/delete callbacks.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sefs-io/sefs/internal/extract"
	"github.com/sefs-io/sefs/internal/syncer"
)

// DefaultDebounce is the quiet window before pending events flush.
const DefaultDebounce = 1500 * time.Millisecond

// Action is what happened to a path.
type Action int

const (
	// ActionChange covers creation and modification.
	ActionChange Action = iota
	// ActionDelete covers removal and the source side of a move.
	ActionDelete
)

// Callbacks receive debounced paths from the watcher. Callback errors are
// logged, never propagated into the event loop.
type Callbacks struct {
	OnChange func(path string) error
	OnDelete func(path string) error
}

// Watcher owns the fsnotify subscription for one root folder.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	guard     *syncer.Guard
	callbacks Callbacks
	debounce  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	root    string
	pending map[string]*pendingEntry
	nextSeq int
	timer   *time.Timer
	running bool

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

type pendingEntry struct {
	action Action
	seq    int
}

// Option configures the Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet window for event batching.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a watcher that consults guard before accepting events.
func New(guard *syncer.Guard, callbacks Callbacks, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher; %w", err)
	}

	w := &Watcher{
		fsWatcher: fsw,
		guard:     guard,
		callbacks: callbacks,
		debounce:  DefaultDebounce,
		logger:    slog.Default(),
		pending:   make(map[string]*pendingEntry),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Watch registers root and all its subdirectories. Hidden directories are
// skipped; per-directory watch failures are logged, not fatal.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve path; %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("failed to stat path; %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absRoot)
	}

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != absRoot && strings.HasPrefix(filepath.Base(p), ".") {
			return fs.SkipDir
		}

		if err := w.fsWatcher.Add(p); err != nil {
			w.logger.Warn("failed to add watch", "path", p, "error", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory; %w", err)
	}

	w.mu.Lock()
	w.root = absRoot
	w.mu.Unlock()

	return nil
}

// Unwatch removes all watches under the current root and drops any pending
// events. Used when the daemon switches roots.
func (w *Watcher) Unwatch() {
	w.mu.Lock()
	root := w.root
	w.root = ""
	w.pending = make(map[string]*pendingEntry)
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	if root == "" {
		return
	}
	for _, watched := range w.fsWatcher.WatchList() {
		if watched == root || strings.HasPrefix(watched, root+string(filepath.Separator)) {
			_ = w.fsWatcher.Remove(watched)
		}
	}
}

// Start begins processing filesystem events.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and discards pending events.
func (w *Watcher) Stop() error {
	var stopErr error
	w.stopOnce.Do(func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.running = false
		w.mu.Unlock()

		close(w.stopCh)
		stopErr = w.fsWatcher.Close()
		<-w.doneCh
	})
	return stopErr
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleEvent filters one raw event and schedules it for the next flush.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	// New directories need their own watch; cluster folders are created at
	// runtime by the syncer.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !strings.HasPrefix(filepath.Base(path), ".") {
				if err := w.fsWatcher.Add(path); err != nil {
					w.logger.Warn("failed to watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	var action Action
	switch {
	case event.Op.Has(fsnotify.Create), event.Op.Has(fsnotify.Write):
		action = ActionChange
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		// The destination side of a move arrives separately as a Create.
		action = ActionDelete
	default:
		return
	}

	if w.shouldIgnore(path) {
		return
	}

	w.schedule(path, action)
}

// shouldIgnore applies the hidden/temp-name, supported-type, and sync-shield
// filters. Type filtering is by extension only, so it holds for deletes too.
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return true
	}
	if !extract.IsSupported(path) {
		return true
	}
	if w.guard.Locked() {
		w.logger.Debug("dropping event during sync", "path", path)
		return true
	}
	if w.guard.RecentlySynced(path) {
		w.logger.Debug("dropping event on recently-synced path", "path", path)
		return true
	}
	return false
}

// schedule records the event, last action winning per path, and re-arms the
// flush timer so the batch flushes one quiet window after the last event.
func (w *Watcher) schedule(path string, action Action) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.pending[path]; ok {
		e.action = action
	} else {
		w.pending[path] = &pendingEntry{action: action, seq: w.nextSeq}
		w.nextSeq++
	}

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush snapshots the pending map and invokes callbacks in arrival order.
// One entry failing never aborts the rest of the batch.
func (w *Watcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]*pendingEntry)
	w.timer = nil
	w.mu.Unlock()

	type flushEntry struct {
		path   string
		action Action
		seq    int
	}
	entries := make([]flushEntry, 0, len(batch))
	for p, e := range batch {
		entries = append(entries, flushEntry{p, e.action, e.seq})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	for _, e := range entries {
		w.dispatch(e.path, e.action)
	}
}

func (w *Watcher) dispatch(path string, action Action) {
	var err error
	switch action {
	case ActionChange:
		if w.callbacks.OnChange != nil {
			err = w.callbacks.OnChange(path)
		}
	case ActionDelete:
		if w.callbacks.OnDelete != nil {
			err = w.callbacks.OnDelete(path)
		}
	}
	if err != nil {
		w.logger.Error("event handler failed", "path", path, "error", err)
	}
}
