package chat

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sefs-io/sefs/internal/embed"
	"github.com/sefs-io/sefs/internal/extract"
	"github.com/sefs-io/sefs/internal/store"
)

type fakeProvider struct {
	modelName string
	tokens    []string
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) EmbedModel() string {
	if f.modelName != "" {
		return f.modelName
	}
	return "fake-embed"
}
func (f *fakeProvider) Available() bool { return true }

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	switch {
	case strings.Contains(text, "dog"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(text, "cat"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func (f *fakeProvider) Chat(context.Context, []embed.Message) (string, error) {
	return "reply", nil
}

func (f *fakeProvider) ChatStream(_ context.Context, _ []embed.Message, fn embed.TokenFunc) error {
	for _, tok := range f.tokens {
		if err := fn(tok); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeProvider) CheckHealth(context.Context) error { return nil }

func newTestService(t *testing.T) (*Service, *store.RootStore, string) {
	t.Helper()

	root := t.TempDir()
	st, err := store.Open(context.Background(), store.DBPath(root))
	if err != nil {
		t.Fatal(err)
	}
	manager := store.NewManager(st)
	t.Cleanup(func() { manager.Close() })

	adapter := embed.NewAdapter(&fakeProvider{tokens: []string{"Hel", "lo"}})
	svc := New(manager, adapter, extract.New(nil), func() string { return root })
	return svc, st, root
}

func addFile(t *testing.T, st *store.RootStore, root, name, content string, emb []float32, clusterID int64) int64 {
	t.Helper()

	path := filepath.Join(root, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	now := store.NowISO()
	id, err := st.UpsertFile(context.Background(), &store.FileRecord{
		Filename:     name,
		OriginalPath: path,
		CurrentPath:  path,
		ContentHash:  name + "-hash",
		Embedding:    emb,
		EmbedModel:   "fake/fake-embed",
		ClusterID:    clusterID,
		Summary:      "about " + name,
		FileType:     "txt",
		SizeBytes:    int64(len(content)),
		CreatedAt:    now,
		ModifiedAt:   now,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestStream_SourcesTokensDone(t *testing.T) {
	svc, st, root := newTestService(t)

	dogID := addFile(t, st, root, "dog.txt", "the dog barks", []float32{1, 0, 0}, 0)
	addFile(t, st, root, "cat.txt", "a cat sleeps", []float32{0, 1, 0}, 0)

	var eventTypes []string
	var sources []Source
	var text strings.Builder
	err := svc.Stream(context.Background(), "tell me about the dog", func(e Event) error {
		eventTypes = append(eventTypes, e.Type)
		if e.Type == "sources" {
			sources = e.Files
		}
		if e.Type == "token" {
			text.WriteString(e.Content)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if len(eventTypes) < 3 || eventTypes[0] != "sources" || eventTypes[len(eventTypes)-1] != "done" {
		t.Fatalf("expected sources ... done framing, got %v", eventTypes)
	}
	if text.String() != "Hello" {
		t.Errorf("expected streamed tokens joined to Hello, got %q", text.String())
	}

	if len(sources) == 0 {
		t.Fatal("expected at least one source")
	}
	if sources[0].FileID != dogID {
		t.Errorf("expected dog.txt ranked first, got file %d", sources[0].FileID)
	}
	if sources[0].Score <= sources[len(sources)-1].Score && len(sources) > 1 {
		t.Error("expected sources ordered by descending score")
	}
}

func TestStream_EmptyMessage(t *testing.T) {
	svc, _, _ := newTestService(t)

	var got []Event
	err := svc.Stream(context.Background(), "   ", func(e Event) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != "error" {
		t.Errorf("expected single error event for empty message, got %v", got)
	}
}

func TestCollectionMetadata(t *testing.T) {
	svc, st, root := newTestService(t)
	ctx := context.Background()

	addFile(t, st, root, "a.txt", "the dog barks", []float32{1, 0, 0}, 0)
	addFile(t, st, root, "b.txt", "a cat sleeps", []float32{0, 1, 0}, 0)
	addFile(t, st, root, "stray.txt", "something else", []float32{0, 0, 1}, store.UncategorizedCluster)

	if err := st.UpsertCluster(ctx, &store.ClusterRecord{
		ID: 0, Name: "Animals", FolderPath: filepath.Join(root, "Animals"),
		FileCount: 2, CreatedAt: store.NowISO(),
	}); err != nil {
		t.Fatal(err)
	}

	meta := svc.collectionMetadata(ctx)

	for _, want := range []string{
		"Total files: 3",
		"txt: 3",
		"Animals: 2 files",
		"Unclustered: 1 files",
		root,
	} {
		if !strings.Contains(meta, want) {
			t.Errorf("metadata missing %q:\n%s", want, meta)
		}
	}
}

func TestContextFiles_LazyReembedOnModelMismatch(t *testing.T) {
	svc, st, root := newTestService(t)
	ctx := context.Background()

	// Stored under an older model tag; the file on disk talks about dogs, so
	// re-embedding lands it on the dog axis.
	id := addFile(t, st, root, "notes.txt", "my dog journal", []float32{0, 0, 1}, 0)
	if err := st.UpdateFileEmbedding(ctx, id, []float32{0, 0, 1}, "fake/old-model"); err != nil {
		t.Fatal(err)
	}

	files := svc.contextFiles(ctx, "dog walking schedule", 5)
	if len(files) != 1 {
		t.Fatalf("expected 1 context file, got %d", len(files))
	}
	if files[0].Score < 0.9 {
		t.Errorf("expected re-embedded file to score high, got %f", files[0].Score)
	}

	rec, err := st.GetFileByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.EmbedModel != "fake/fake-embed" {
		t.Errorf("expected refreshed model tag, got %q", rec.EmbedModel)
	}
}

func TestFormatSize(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
	}
	for _, tc := range cases {
		if got := formatSize(tc.in); got != tc.want {
			t.Errorf("formatSize(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
