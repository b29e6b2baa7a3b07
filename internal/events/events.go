// Package events provides an in-process pub/sub event bus for cross-component
// communication within the SEFS daemon. Progress events published here are
// fanned out to WebSocket and SSE subscribers by the server layer.
package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the type of event being published.
type EventType string

const (
	// ProcessingStart is published when ingestion begins for a file.
	ProcessingStart EventType = "processing_start"

	// FileAdded is published when a new file record is created.
	FileAdded EventType = "file_added"

	// FileModified is published when an existing record is re-ingested or relocated.
	FileModified EventType = "file_modified"

	// FileRemoved is published when a record is deleted.
	FileRemoved EventType = "file_removed"

	// ReclusteringStart is published when a full recluster begins.
	ReclusteringStart EventType = "reclustering_start"

	// ReclusteringEnd is published when a full recluster finishes.
	ReclusteringEnd EventType = "reclustering_end"

	// ScanStart is published when a full scan of the root begins.
	ScanStart EventType = "scan_start"

	// ScanComplete is published when a full scan finishes.
	ScanComplete EventType = "scan_complete"

	// ReembeddingStart is published when a background re-embed pass begins.
	ReembeddingStart EventType = "reembedding_start"

	// ReembeddingEnd is published when a background re-embed pass finishes.
	ReembeddingEnd EventType = "reembedding_end"

	// RootSwitching is published when a root-folder switch begins.
	RootSwitching EventType = "root_switching"

	// RootSwitched is published when a root-folder switch completes.
	RootSwitched EventType = "root_switched"
)

// Event represents a published event in the system.
type Event struct {
	// Type identifies the event type.
	Type EventType

	// Timestamp is when the event was created.
	Timestamp time.Time

	// Payload contains event-specific attributes. Values must be
	// JSON-marshalable; the transport layer serializes events verbatim.
	Payload map[string]any
}

// NewEvent creates a new event with the given type and payload.
func NewEvent(eventType EventType, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// MarshalJSON flattens the payload alongside the type tag, producing the wire
// shape consumed by the front-end: {"type": "...", ...attributes}.
func (e Event) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Payload)+1)
	for k, v := range e.Payload {
		obj[k] = v
	}
	obj["type"] = string(e.Type)
	return json.Marshal(obj)
}

// EventHandler is a function that processes events.
type EventHandler func(event Event)
