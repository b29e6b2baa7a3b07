// Package server exposes the daemon over HTTP: a REST API for files,
// clusters, search, and settings, an SSE event stream, a WebSocket broadcast
// channel, and the RAG chat endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sefs-io/sefs/internal/chat"
	"github.com/sefs-io/sefs/internal/config"
	"github.com/sefs-io/sefs/internal/embed"
	"github.com/sefs-io/sefs/internal/events"
	"github.com/sefs-io/sefs/internal/pipeline"
	"github.com/sefs-io/sefs/internal/store"
)

// Deps are the collaborators the HTTP surface exposes.
type Deps struct {
	Stores   *store.Manager
	Global   *store.GlobalStore
	Adapter  *embed.Adapter
	Pipeline *pipeline.Pipeline
	Chat     *chat.Service
	Bus      events.Bus

	// OnRootSwitch re-targets the watcher and pipeline when the settings
	// endpoint changes the root folder.
	OnRootSwitch func(ctx context.Context, newRoot string) error
}

// Server is the HTTP server for the SEFS daemon.
// It is safe for concurrent use.
type Server struct {
	mu     sync.RWMutex
	cfg    *config.Config
	deps   Deps
	router *chi.Mux
	server *http.Server
	hub    *wsHub
	logger *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates the HTTP server and wires its routes.
func New(cfg *config.Config, deps Deps, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: chi.NewRouter(),
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.hub = newWSHub(deps.Bus, s.logger)
	s.hub.setRescan(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := s.deps.Pipeline.FullScan(ctx); err != nil {
			s.logger.Error("websocket-triggered rescan failed", "error", err)
		}
	})
	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(corsMiddleware)

	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/files", s.handleFiles)
	s.router.Get("/api/file/{id}", s.handleFile)
	s.router.Get("/api/clusters", s.handleClusters)
	s.router.Get("/api/events", s.handleEvents)
	s.router.Get("/api/search", s.handleSearch)
	s.router.Get("/api/related/{id}", s.handleRelated)
	s.router.Get("/api/graph", s.handleGraph)
	s.router.Post("/api/rescan", s.handleRescan)
	s.router.Get("/api/settings", s.handleGetSettings)
	s.router.Post("/api/settings", s.handleSaveSettings)
	s.router.Post("/api/settings/test", s.handleTestProvider)
	s.router.Post("/api/chat", s.handleChat)
	s.router.Get("/api/stream", s.handleStream)
	s.router.HandleFunc("/ws", s.hub.handleWS)
}

// Handler returns the HTTP handler for testing purposes.
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.router
}

// Start starts the HTTP server and blocks until it's stopped.
func (s *Server) Start(ctx context.Context) error {
	s.hub.start()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Bind, s.cfg.Server.Port)

	s.mu.Lock()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}
	server := s.server
	s.mu.Unlock()

	s.logger.Info("http server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error; %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server and its subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.stop()

	s.mu.RLock()
	server := s.server
	s.mu.RUnlock()

	if server == nil {
		return nil
	}

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown http server; %w", err)
	}

	return nil
}

// The front-end runs on its own dev port; allow all origins like any
// localhost-bound tool.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
