package embed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultDim is assumed until the active model's dimension is probed.
	DefaultDim = 768

	// DefaultMaxChars bounds text sent to embedding models. Texts over the
	// budget are truncated head+tail to keep intro and conclusion.
	DefaultMaxChars = 20000

	summarySnippetChars = 3000
	summaryMaxChars     = 300
)

// Adapter wraps a Provider with truncation, normalization, dimension
// tracking, and zero-vector fallbacks. All embedding consumers go through it.
type Adapter struct {
	mu       sync.Mutex
	provider Provider
	dimCache map[string]int // model tag -> embedding dimension
	healthy  bool
	maxChars int
	logger   *slog.Logger
}

// AdapterOption configures the Adapter.
type AdapterOption func(*Adapter)

// WithMaxChars overrides the character budget for embedding inputs.
func WithMaxChars(n int) AdapterOption {
	return func(a *Adapter) {
		a.maxChars = n
	}
}

// WithLogger sets the logger for the adapter.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// NewAdapter creates an adapter over the given provider.
func NewAdapter(provider Provider, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		provider: provider,
		dimCache: make(map[string]int),
		healthy:  true,
		maxChars: DefaultMaxChars,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// SwitchProvider swaps the active provider. The dimension cache is keyed by
// model tag, so entries for the previous provider remain valid.
func (a *Adapter) SwitchProvider(p Provider) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.provider = p
	a.healthy = true
}

// ModelTag returns the canonical "provider/model" identifier stamped on each
// embedding.
func (a *Adapter) ModelTag() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.provider.Name() + "/" + a.provider.EmbedModel()
}

// ModelMatches reports whether an embedding produced under tag is comparable
// with embeddings from the active model.
func (a *Adapter) ModelMatches(tag string) bool {
	return tag != "" && tag == a.ModelTag()
}

// Healthy reports whether the last provider call succeeded.
func (a *Adapter) Healthy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.healthy
}

// CheckHealth verifies the active provider is reachable.
func (a *Adapter) CheckHealth(ctx context.Context) error {
	a.mu.Lock()
	p := a.provider
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	err := p.CheckHealth(ctx)

	a.mu.Lock()
	a.healthy = err == nil
	a.mu.Unlock()

	return err
}

// GetEmbedding returns an L2-normalized embedding for text. It never fails:
// empty text or a provider error yields a zero vector, and provider errors
// additionally mark the adapter unhealthy.
func (a *Adapter) GetEmbedding(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return make([]float32, a.lastKnownDim())
	}

	a.mu.Lock()
	p := a.provider
	a.mu.Unlock()

	vec, err := p.Embed(ctx, truncateText(text, a.maxChars))
	if err != nil {
		a.logger.Warn("embedding failed, using zero vector",
			"provider", p.Name(),
			"error", err,
		)
		a.mu.Lock()
		a.healthy = false
		a.mu.Unlock()
		return make([]float32, a.lastKnownDim())
	}

	a.recordDim(p.Name()+"/"+p.EmbedModel(), len(vec))
	normalize(vec)
	return vec
}

// GetEmbeddingMatchingDim returns an embedding coerced to targetDim. A vector
// of the wrong dimension is padded with zeros or truncated as a last resort.
func (a *Adapter) GetEmbeddingMatchingDim(ctx context.Context, text string, targetDim int) []float32 {
	vec := a.GetEmbedding(ctx, text)
	if len(vec) == targetDim {
		return vec
	}

	if !isZero(vec) {
		a.logger.Info("embedding dimension mismatch, coercing",
			"got", len(vec),
			"want", targetDim,
		)
	}
	return PadOrTruncate(vec, targetDim)
}

// ExpectedDim returns the active model's embedding dimension, probing the
// provider once per model tag.
func (a *Adapter) ExpectedDim(ctx context.Context) (int, error) {
	a.mu.Lock()
	p := a.provider
	tag := p.Name() + "/" + p.EmbedModel()
	if dim, ok := a.dimCache[tag]; ok {
		a.mu.Unlock()
		return dim, nil
	}
	a.mu.Unlock()

	vec, err := p.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("failed to probe embedding dimension; %w", err)
	}

	a.recordDim(tag, len(vec))
	return len(vec), nil
}

// GenerateSummary produces a 1-2 sentence summary of text via the provider's
// LLM. Short texts are returned as-is; on failure the first 200 characters
// serve as the summary.
func (a *Adapter) GenerateSummary(ctx context.Context, text string) string {
	if len(strings.TrimSpace(text)) < 50 {
		return firstN(text, 200)
	}

	snippet := firstN(text, summarySnippetChars)

	a.mu.Lock()
	p := a.provider
	a.mu.Unlock()

	reply, err := p.Chat(ctx, []Message{
		{Role: "user", Content: "Summarize this document in 1-2 sentences:\n\n" + snippet},
	})
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			a.logger.Debug("summary generation failed, using excerpt", "error", err)
		}
		return strings.TrimSpace(firstN(text, 200)) + "..."
	}

	return firstN(strings.TrimSpace(reply), summaryMaxChars)
}

// Chat generates a single completion via the active provider.
func (a *Adapter) Chat(ctx context.Context, messages []Message) (string, error) {
	a.mu.Lock()
	p := a.provider
	a.mu.Unlock()
	return p.Chat(ctx, messages)
}

// ChatStream streams completion tokens via the active provider.
func (a *Adapter) ChatStream(ctx context.Context, messages []Message, fn TokenFunc) error {
	a.mu.Lock()
	p := a.provider
	a.mu.Unlock()
	return p.ChatStream(ctx, messages, fn)
}

// ProviderName returns the active provider's identifier.
func (a *Adapter) ProviderName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.provider.Name()
}

func (a *Adapter) recordDim(tag string, dim int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dimCache[tag] = dim
	a.healthy = true
}

// lastKnownDim returns the cached dimension for the active model, or
// DefaultDim when never probed.
func (a *Adapter) lastKnownDim() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	tag := a.provider.Name() + "/" + a.provider.EmbedModel()
	if dim, ok := a.dimCache[tag]; ok {
		return dim
	}
	return DefaultDim
}

// truncateText enforces the character budget, keeping the head and tail of
// over-budget texts.
func truncateText(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	half := maxChars / 2
	return text[:half] + "\n...\n" + text[len(text)-half:]
}

// normalize scales vec to unit L2 norm in place. Zero vectors are left as-is.
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// PadOrTruncate coerces vec to length n, zero-padding or dropping the tail.
func PadOrTruncate(vec []float32, n int) []float32 {
	if len(vec) == n {
		return vec
	}
	out := make([]float32, n)
	copy(out, vec)
	return out
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
