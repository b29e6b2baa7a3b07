// Package scheduler debounces recluster requests and enforces a cooldown
// between runs. The sync stage of a recluster produces filesystem events that
// flow back through the watcher and re-arm the scheduler; the cooldown bounds
// that feedback loop.
package scheduler

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultDebounce is the quiet window after the last request.
	DefaultDebounce = 2 * time.Second
	// DefaultCooldown is the minimum spacing between completed runs.
	DefaultCooldown = 5 * time.Second
)

// Scheduler coalesces recluster requests. At most one run executes at a time;
// requests landing inside the cooldown window are dropped.
type Scheduler struct {
	run      func()
	debounce time.Duration
	cooldown time.Duration
	logger   *slog.Logger

	mu            sync.Mutex
	pending       bool
	timer         *time.Timer
	lastCompleted time.Time
	stopped       bool

	execMu sync.Mutex
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithDebounce overrides the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) {
		s.debounce = d
	}
}

// WithCooldown overrides the cooldown between runs.
func WithCooldown(d time.Duration) Option {
	return func(s *Scheduler) {
		s.cooldown = d
	}
}

// WithLogger sets the logger for the scheduler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New creates a scheduler around run.
func New(run func(), opts ...Option) *Scheduler {
	s := &Scheduler{
		run:      run,
		debounce: DefaultDebounce,
		cooldown: DefaultCooldown,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Request marks a recluster as wanted and re-arms the debounce timer. Each
// call supersedes the previous timer, so the run fires one quiet window after
// the last request.
func (s *Scheduler) Request() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	s.pending = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.execute)
}

// Stop cancels any armed timer and refuses further requests. A run already
// in flight finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// execute drains pending requests, honoring the cooldown. time.Time carries
// a monotonic reading, so wall-clock jumps cannot shorten the cooldown.
func (s *Scheduler) execute() {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	for {
		s.mu.Lock()
		if !s.pending || s.stopped {
			s.mu.Unlock()
			return
		}
		s.pending = false
		inCooldown := !s.lastCompleted.IsZero() && time.Since(s.lastCompleted) < s.cooldown
		s.mu.Unlock()

		if inCooldown {
			s.logger.Debug("recluster request dropped during cooldown")
			continue
		}

		s.run()

		s.mu.Lock()
		s.lastCompleted = time.Now()
		s.mu.Unlock()
	}
}
