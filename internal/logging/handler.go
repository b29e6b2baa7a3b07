package logging

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// SwappableHandler is a slog.Handler whose backend can be replaced while
// loggers built on it stay valid. The daemon swaps the stderr bootstrap
// handler for the stderr+file fanout once the log file path is known.
type SwappableHandler struct {
	inner atomic.Pointer[slog.Handler]
}

// NewSwappableHandler wraps initial in a swappable handler.
func NewSwappableHandler(initial slog.Handler) *SwappableHandler {
	h := &SwappableHandler{}
	h.inner.Store(&initial)
	return h
}

// Swap replaces the backend. Safe to call concurrently with logging.
func (h *SwappableHandler) Swap(backend slog.Handler) {
	h.inner.Store(&backend)
}

func (h *SwappableHandler) backend() slog.Handler {
	return *h.inner.Load()
}

// Enabled reports whether the current backend handles records at level.
func (h *SwappableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.backend().Enabled(ctx, level)
}

// Handle passes the record to the current backend.
func (h *SwappableHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.backend().Handle(ctx, r)
}

// WithAttrs derives a handler carrying attrs. The derived handler does not
// follow later swaps of the parent.
func (h *SwappableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewSwappableHandler(h.backend().WithAttrs(attrs))
}

// WithGroup derives a handler scoped to the named group.
func (h *SwappableHandler) WithGroup(name string) slog.Handler {
	return NewSwappableHandler(h.backend().WithGroup(name))
}
