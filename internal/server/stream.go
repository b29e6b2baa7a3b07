package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sefs-io/sefs/internal/chat"
	"github.com/sefs-io/sefs/internal/events"
)

// sseHeaders prepares w for an event stream and returns the flusher, or nil
// when the transport can't stream.
func sseHeaders(w http.ResponseWriter) http.Flusher {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher
}

// writeSSE frames one JSON-marshalable value as an SSE data event.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event; %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// handleStream subscribes the client to the live event bus over SSE.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher := sseHeaders(w)
	if flusher == nil {
		return
	}

	ch := make(chan events.Event, 16)
	unsubscribe := s.deps.Bus.SubscribeAll(func(e events.Event) {
		select {
		case ch <- e:
		default: // slow client, drop
		}
	})
	defer unsubscribe()

	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-ch:
			if err := writeSSE(w, flusher, e); err != nil {
				return
			}
		}
	}
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat streams a RAG chat answer as SSE: a sources event, token
// events, then done (or error).
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flusher := sseHeaders(w)
	if flusher == nil {
		return
	}

	err := s.deps.Chat.Stream(r.Context(), req.Message, func(e chat.Event) error {
		return writeSSE(w, flusher, e)
	})
	if err != nil {
		s.logger.Debug("chat stream ended early", "error", err)
	}
}
