// Package embed generates semantic embeddings and LLM completions through a
// provider-agnostic adapter. Providers are thin HTTP clients; the adapter owns
// truncation, normalization, dimension tracking, and failure fallbacks.
package embed

import "context"

// Message is one turn of an LLM conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenFunc receives streamed completion tokens. Returning an error stops the
// stream.
type TokenFunc func(token string) error

// Provider is the capability interface implemented by each embedding/LLM
// backend.
type Provider interface {
	// Name returns the provider's identifier ("local" or "remote").
	Name() string

	// EmbedModel returns the embedding model name.
	EmbedModel() string

	// Available reports whether the provider is configured.
	Available() bool

	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Chat generates a single completion for the given conversation.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ChatStream streams completion tokens to fn.
	ChatStream(ctx context.Context, messages []Message, fn TokenFunc) error

	// CheckHealth verifies the backend is reachable.
	CheckHealth(ctx context.Context) error
}
