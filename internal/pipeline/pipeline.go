// Package pipeline orchestrates ingestion, clustering, naming, and folder
// synchronization for the watched root. It owns the recluster lock: at most
// one full recluster runs at a time, and incremental assignment takes the
// same lock.
package pipeline

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"sync"

	"github.com/sefs-io/sefs/internal/cluster"
	"github.com/sefs-io/sefs/internal/embed"
	"github.com/sefs-io/sefs/internal/events"
	"github.com/sefs-io/sefs/internal/extract"
	"github.com/sefs-io/sefs/internal/namer"
	"github.com/sefs-io/sefs/internal/store"
	"github.com/sefs-io/sefs/internal/syncer"
)

// CoordLimit is the half-extent of the 2D map square.
const CoordLimit = 400.0

// GeneralClusterName is the single-cluster name used when only one embedded
// file exists.
const GeneralClusterName = "General"

// Pipeline ties the ingestion and organization stages together.
type Pipeline struct {
	stores    *store.Manager
	adapter   *embed.Adapter
	engine    *cluster.Engine
	namer     *namer.Namer
	syncer    *syncer.Syncer
	extractor *extract.Extractor
	bus       events.Bus
	logger    *slog.Logger

	rootMu sync.RWMutex
	root   string

	// reclusterMu serializes full reclusters and incremental assigns.
	reclusterMu sync.Mutex

	rng *rand.Rand
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a pipeline over the given collaborators, rooted at root.
func New(
	root string,
	stores *store.Manager,
	adapter *embed.Adapter,
	engine *cluster.Engine,
	nm *namer.Namer,
	sy *syncer.Syncer,
	ex *extract.Extractor,
	bus events.Bus,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		stores:    stores,
		adapter:   adapter,
		engine:    engine,
		namer:     nm,
		syncer:    sy,
		extractor: ex,
		bus:       bus,
		logger:    slog.Default(),
		root:      root,
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Root returns the currently watched root folder.
func (p *Pipeline) Root() string {
	p.rootMu.RLock()
	defer p.rootMu.RUnlock()
	return p.root
}

func (p *Pipeline) setRoot(root string) {
	p.rootMu.Lock()
	p.root = root
	p.rootMu.Unlock()
}

// Store returns the metadata store for the current root.
func (p *Pipeline) Store() *store.RootStore {
	return p.stores.Current()
}

// Adapter returns the embedding/LLM adapter.
func (p *Pipeline) Adapter() *embed.Adapter {
	return p.adapter
}

// publish broadcasts an event, logging rather than propagating failures.
func (p *Pipeline) publish(ctx context.Context, t events.EventType, payload map[string]any) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(ctx, events.NewEvent(t, payload)); err != nil {
		p.logger.Debug("event publish failed", "type", string(t), "error", err)
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
