// Package chat implements retrieval-augmented chat over the file collection:
// semantic search for relevant files, collection metadata assembly, and a
// streamed LLM response.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sefs-io/sefs/internal/embed"
	"github.com/sefs-io/sefs/internal/extract"
	"github.com/sefs-io/sefs/internal/store"
)

const systemPrompt = `You are a helpful assistant for SEFS (Semantic Entropy File System), a smart file organizer.
You have access to two kinds of information:
1. **Collection metadata** — total file count, cluster/folder breakdown, file type distribution, and folder structure.
2. **Relevant file contents** — the most semantically similar files found via search for the user's question.

When the user asks about their file collection (e.g. "how many files", "what types of files",
"what clusters exist", "show me a summary"), use the collection metadata.
When the user asks about specific file contents, use the relevant file snippets.
Cite specific filenames when referencing information.
If the provided context doesn't answer the question, say so honestly.
Keep answers concise and helpful.`

// Source is one retrieved file reference sent to the client before tokens.
type Source struct {
	FileID   int64   `json:"file_id"`
	Filename string  `json:"filename"`
	Summary  string  `json:"summary"`
	Score    float64 `json:"score"`
}

// Event is one frame of a chat stream.
type Event struct {
	Type    string   `json:"type"`
	Files   []Source `json:"files,omitempty"`
	Content string   `json:"content,omitempty"`
	Message string   `json:"message,omitempty"`
}

// EmitFunc delivers one event to the client. A non-nil error stops the
// stream (client gone).
type EmitFunc func(Event) error

// Service answers questions about the collection.
type Service struct {
	stores    *store.Manager
	adapter   *embed.Adapter
	extractor *extract.Extractor
	rootFn    func() string
	logger    *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger for the chat service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a chat service. rootFn reports the current root folder.
func New(stores *store.Manager, adapter *embed.Adapter, ex *extract.Extractor, rootFn func() string, opts ...Option) *Service {
	s := &Service{
		stores:    stores,
		adapter:   adapter,
		extractor: ex,
		rootFn:    rootFn,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Stream answers one message: a sources event, then token events, then done.
// Failures surface as error events on the stream, never as a returned error;
// the returned error is only non-nil when emit itself fails.
func (s *Service) Stream(ctx context.Context, message string, emit EmitFunc) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return emit(Event{Type: "error", Message: "Empty message"})
	}

	contextFiles := s.contextFiles(ctx, message, maxContextFiles)

	sources := make([]Source, len(contextFiles))
	for i, f := range contextFiles {
		sources[i] = f.Source
	}
	if err := emit(Event{Type: "sources", Files: sources}); err != nil {
		return err
	}

	metadata := s.collectionMetadata(ctx)
	fileContext := buildContext(contextFiles)

	messages := []embed.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"=== Collection Metadata ===\n%s\n\n=== Relevant Files ===\n%s\n\nUser question: %s",
			metadata, fileContext, message,
		)},
	}

	var emitErr error
	err := s.adapter.ChatStream(ctx, messages, func(token string) error {
		if token == "" {
			return nil
		}
		emitErr = emit(Event{Type: "token", Content: token})
		return emitErr
	})
	if emitErr != nil {
		return emitErr
	}
	if err != nil {
		s.logger.Error("chat stream failed", "error", err)
		return emit(Event{Type: "error", Message: fmt.Sprintf("chat failed: %v", err)})
	}

	return emit(Event{Type: "done"})
}

// buildContext renders the retrieved files for the LLM.
func buildContext(files []contextFile) string {
	if len(files) == 0 {
		return "No relevant files found."
	}

	var b strings.Builder
	for i, f := range files {
		fmt.Fprintf(&b, "--- File %d: %s ---\n", i+1, f.Filename)
		if f.Summary != "" {
			fmt.Fprintf(&b, "Summary: %s\n", f.Summary)
		}
		if f.Snippet != "" {
			fmt.Fprintf(&b, "Content:\n%s\n", f.Snippet)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
