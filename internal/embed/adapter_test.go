package embed

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
)

// fakeProvider is a scriptable Provider for adapter tests.
type fakeProvider struct {
	name       string
	model      string
	embedVec   []float32
	embedErr   error
	embedCalls int
	chatReply  string
	chatErr    error
	lastInput  string
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) EmbedModel() string { return f.model }
func (f *fakeProvider) Available() bool    { return true }

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	f.embedCalls++
	f.lastInput = text
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([]float32, len(f.embedVec))
	copy(out, f.embedVec)
	return out, nil
}

func (f *fakeProvider) Chat(_ context.Context, _ []Message) (string, error) {
	return f.chatReply, f.chatErr
}

func (f *fakeProvider) ChatStream(ctx context.Context, messages []Message, fn TokenFunc) error {
	reply, err := f.Chat(ctx, messages)
	if err != nil {
		return err
	}
	return fn(reply)
}

func (f *fakeProvider) CheckHealth(_ context.Context) error {
	return f.embedErr
}

func newFake() *fakeProvider {
	return &fakeProvider{
		name:     "local",
		model:    "nomic-embed-text",
		embedVec: []float32{3, 4},
	}
}

func TestGetEmbedding_Normalizes(t *testing.T) {
	a := NewAdapter(newFake())

	vec := a.GetEmbedding(context.Background(), "some document text here please")
	if len(vec) != 2 {
		t.Fatalf("expected 2 dims, got %d", len(vec))
	}

	// [3,4] normalized is [0.6, 0.8].
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("expected normalized vector, got %v", vec)
	}
}

func TestGetEmbedding_EmptyTextReturnsZeroVector(t *testing.T) {
	f := newFake()
	a := NewAdapter(f)

	vec := a.GetEmbedding(context.Background(), "   \n  ")
	if !isZero(vec) {
		t.Errorf("expected zero vector for empty text, got %v", vec)
	}
	if f.embedCalls != 0 {
		t.Errorf("expected no provider call for empty text, got %d", f.embedCalls)
	}
	if len(vec) != DefaultDim {
		t.Errorf("expected default dim %d, got %d", DefaultDim, len(vec))
	}
}

func TestGetEmbedding_FailureReturnsZeroAndMarksUnhealthy(t *testing.T) {
	f := newFake()
	f.embedErr = errors.New("connection refused")
	a := NewAdapter(f)

	vec := a.GetEmbedding(context.Background(), "text")
	if !isZero(vec) {
		t.Errorf("expected zero vector on failure, got %v", vec)
	}
	if a.Healthy() {
		t.Error("expected adapter to be marked unhealthy after failure")
	}

	// Recovery: a successful call restores health.
	f.embedErr = nil
	a.GetEmbedding(context.Background(), "text")
	if !a.Healthy() {
		t.Error("expected adapter to recover after successful call")
	}
}

func TestGetEmbedding_TruncatesHeadAndTail(t *testing.T) {
	f := newFake()
	a := NewAdapter(f, WithMaxChars(10))

	head := strings.Repeat("a", 20)
	tail := strings.Repeat("z", 20)
	a.GetEmbedding(context.Background(), head+tail)

	if !strings.HasPrefix(f.lastInput, "aaaaa") {
		t.Errorf("expected head preserved, got %q", f.lastInput)
	}
	if !strings.HasSuffix(f.lastInput, "zzzzz") {
		t.Errorf("expected tail preserved, got %q", f.lastInput)
	}
	if !strings.Contains(f.lastInput, "\n...\n") {
		t.Errorf("expected truncation marker, got %q", f.lastInput)
	}
}

func TestGetEmbeddingMatchingDim_PadsAndTruncates(t *testing.T) {
	a := NewAdapter(newFake())
	ctx := context.Background()

	padded := a.GetEmbeddingMatchingDim(ctx, "text", 4)
	if len(padded) != 4 || padded[2] != 0 || padded[3] != 0 {
		t.Errorf("expected zero-padded vector of dim 4, got %v", padded)
	}

	truncated := a.GetEmbeddingMatchingDim(ctx, "text", 1)
	if len(truncated) != 1 {
		t.Errorf("expected truncated vector of dim 1, got %v", truncated)
	}
}

func TestExpectedDim_CachesProbe(t *testing.T) {
	f := newFake()
	a := NewAdapter(f)
	ctx := context.Background()

	dim, err := a.ExpectedDim(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dim != 2 {
		t.Errorf("expected dim 2, got %d", dim)
	}

	if _, err := a.ExpectedDim(ctx); err != nil {
		t.Fatal(err)
	}
	if f.embedCalls != 1 {
		t.Errorf("expected 1 probe call, got %d", f.embedCalls)
	}
}

func TestModelTag(t *testing.T) {
	a := NewAdapter(newFake())

	if got := a.ModelTag(); got != "local/nomic-embed-text" {
		t.Errorf("expected local/nomic-embed-text, got %q", got)
	}
	if !a.ModelMatches("local/nomic-embed-text") {
		t.Error("expected matching tag to match")
	}
	if a.ModelMatches("remote/text-embedding-3-small") {
		t.Error("expected mismatched tag not to match")
	}
	if a.ModelMatches("") {
		t.Error("expected empty tag not to match")
	}
}

func TestSwitchProvider_ChangesTagKeepsDimCache(t *testing.T) {
	f := newFake()
	a := NewAdapter(f)
	ctx := context.Background()

	if _, err := a.ExpectedDim(ctx); err != nil {
		t.Fatal(err)
	}

	remote := &fakeProvider{name: "remote", model: "text-embedding-3-small", embedVec: make([]float32, 4)}
	a.SwitchProvider(remote)

	if got := a.ModelTag(); got != "remote/text-embedding-3-small" {
		t.Errorf("expected remote tag after switch, got %q", got)
	}

	// Switching back must reuse the cached dimension without a new probe.
	a.SwitchProvider(f)
	if _, err := a.ExpectedDim(ctx); err != nil {
		t.Fatal(err)
	}
	if f.embedCalls != 1 {
		t.Errorf("expected cached dim after switch back, got %d probe calls", f.embedCalls)
	}
}

func TestGenerateSummary(t *testing.T) {
	f := newFake()
	f.chatReply = "  A concise summary of the document.  "
	a := NewAdapter(f)
	ctx := context.Background()

	long := strings.Repeat("word ", 100)
	if got := a.GenerateSummary(ctx, long); got != "A concise summary of the document." {
		t.Errorf("unexpected summary: %q", got)
	}

	// Short text is returned as-is without calling the LLM.
	if got := a.GenerateSummary(ctx, "tiny note"); got != "tiny note" {
		t.Errorf("expected short text passthrough, got %q", got)
	}

	// LLM failure falls back to an excerpt.
	f.chatErr = errors.New("model not loaded")
	got := a.GenerateSummary(ctx, long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected excerpt fallback ending in ellipsis, got %q", got)
	}
	if !strings.HasPrefix(got, "word word") {
		t.Errorf("expected excerpt from document start, got %q", got)
	}
}
