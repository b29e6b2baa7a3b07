package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sefs-io/sefs/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Localhost tool; the front-end dev server runs on another port.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsHub broadcasts bus events to all connected WebSocket clients.
type wsHub struct {
	bus    events.Bus
	logger *slog.Logger

	mu          sync.Mutex
	conns       map[*websocket.Conn]bool
	unsubscribe func()
	onRescan    func()
}

func newWSHub(bus events.Bus, logger *slog.Logger) *wsHub {
	return &wsHub{
		bus:    bus,
		logger: logger,
		conns:  make(map[*websocket.Conn]bool),
	}
}

// setRescan installs the handler for client-initiated rescan commands.
func (h *wsHub) setRescan(fn func()) {
	h.mu.Lock()
	h.onRescan = fn
	h.mu.Unlock()
}

func (h *wsHub) start() {
	if h.bus == nil {
		return
	}
	h.unsubscribe = h.bus.SubscribeAll(func(e events.Event) {
		h.broadcast(e)
	})
}

func (h *wsHub) stop() {
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
	}
	h.conns = make(map[*websocket.Conn]bool)
}

// broadcast sends an event to every client, dropping dead connections.
func (h *wsHub) broadcast(e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Warn("failed to marshal event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// handleWS upgrades the connection and serves client commands until it drops.
func (h *wsHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	total := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("websocket connected", "total", total)

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		total := len(h.conns)
		h.mu.Unlock()
		conn.Close()
		h.logger.Info("websocket disconnected", "total", total)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "ping":
			h.mu.Lock()
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
			h.mu.Unlock()
		case "rescan":
			h.mu.Lock()
			fn := h.onRescan
			h.mu.Unlock()
			if fn != nil {
				go fn()
			}
		}
	}
}
