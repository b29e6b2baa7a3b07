package syncer

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRecentTTL is how long daemon-moved paths shield watcher events.
const DefaultRecentTTL = 5 * time.Second

// Guard tracks whether a sync is in flight and which paths the daemon itself
// touched recently. The watcher consults it to distinguish system moves from
// user activity: events are dropped while the lock is held, and events on
// recently-synced paths are dropped even after release, since filesystem
// notifications can arrive late.
type Guard struct {
	locked atomic.Bool

	mu     sync.Mutex
	recent map[string]time.Time
	ttl    time.Duration
}

// NewGuard creates a guard with the given recently-synced TTL.
// A zero ttl uses DefaultRecentTTL.
func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultRecentTTL
	}
	return &Guard{
		recent: make(map[string]time.Time),
		ttl:    ttl,
	}
}

// Lock marks a sync as in flight.
func (g *Guard) Lock() {
	g.locked.Store(true)
}

// Unlock marks the sync as finished.
func (g *Guard) Unlock() {
	g.locked.Store(false)
}

// Locked reports whether a sync is in flight.
func (g *Guard) Locked() bool {
	return g.locked.Load()
}

// MarkRecent records paths the daemon is about to touch.
func (g *Guard) MarkRecent(paths ...string) {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range paths {
		g.recent[p] = now
	}
}

// RecentlySynced reports whether the daemon touched path within the TTL.
// Expired entries are pruned on the way through.
func (g *Guard) RecentlySynced(path string) bool {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	for p, at := range g.recent {
		if now.Sub(at) > g.ttl {
			delete(g.recent, p)
		}
	}

	_, ok := g.recent[path]
	return ok
}
