package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sefs-io/sefs/internal/chat"
	"github.com/sefs-io/sefs/internal/cluster"
	"github.com/sefs-io/sefs/internal/config"
	"github.com/sefs-io/sefs/internal/embed"
	"github.com/sefs-io/sefs/internal/events"
	"github.com/sefs-io/sefs/internal/extract"
	"github.com/sefs-io/sefs/internal/namer"
	"github.com/sefs-io/sefs/internal/pipeline"
	"github.com/sefs-io/sefs/internal/store"
	"github.com/sefs-io/sefs/internal/syncer"
)

type fakeProvider struct{}

func (fakeProvider) Name() string       { return "fake" }
func (fakeProvider) EmbedModel() string { return "fake-embed" }
func (fakeProvider) Available() bool    { return true }

func (fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	switch {
	case strings.Contains(text, "dog"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(text, "cat"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func (fakeProvider) Chat(context.Context, []embed.Message) (string, error) {
	return "reply", nil
}

func (fakeProvider) ChatStream(_ context.Context, _ []embed.Message, fn embed.TokenFunc) error {
	return fn("answer")
}

func (fakeProvider) CheckHealth(context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, *store.RootStore, string) {
	t.Helper()
	ctx := context.Background()

	root := t.TempDir()
	st, err := store.Open(ctx, store.DBPath(root))
	if err != nil {
		t.Fatal(err)
	}
	manager := store.NewManager(st)
	t.Cleanup(func() { manager.Close() })

	global, err := store.OpenGlobal(ctx, filepath.Join(t.TempDir(), "global.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { global.Close() })

	adapter := embed.NewAdapter(fakeProvider{})
	guard := syncer.NewGuard(100 * time.Millisecond)
	sy := syncer.New(guard, syncer.WithSettle(time.Millisecond))
	ex := extract.New(nil)
	bus := events.NewBus()
	t.Cleanup(func() { bus.Close() })

	p := pipeline.New(root, manager, adapter, cluster.New(), namer.New(adapter), sy, ex, bus)
	chatSvc := chat.New(manager, adapter, ex, p.Root)

	cfg := config.NewDefaultConfig()
	cfg.RootFolder = root

	srv := New(&cfg, Deps{
		Stores:   manager,
		Global:   global,
		Adapter:  adapter,
		Pipeline: p,
		Chat:     chatSvc,
		Bus:      bus,
	})
	return srv, st, root
}

func seedFile(t *testing.T, st *store.RootStore, name string, emb []float32, clusterID int64) int64 {
	t.Helper()
	now := store.NowISO()
	id, err := st.UpsertFile(context.Background(), &store.FileRecord{
		Filename:     name,
		OriginalPath: "/tmp/" + name,
		CurrentPath:  "/tmp/" + name,
		ContentHash:  name + "-hash",
		Embedding:    emb,
		EmbedModel:   "fake/fake-embed",
		ClusterID:    clusterID,
		Summary:      "about " + name,
		FileType:     "txt",
		CreatedAt:    now,
		ModifiedAt:   now,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	srv, st, root := newTestServer(t)
	seedFile(t, st, "a.txt", []float32{1, 0, 0}, 0)

	rec := doJSON(t, srv, "GET", "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "running" {
		t.Errorf("expected running status, got %v", resp["status"])
	}
	if resp["file_count"].(float64) != 1 {
		t.Errorf("expected 1 file, got %v", resp["file_count"])
	}
	if resp["root_folder"] != root {
		t.Errorf("expected root %s, got %v", root, resp["root_folder"])
	}
}

func TestFileEndpoints(t *testing.T) {
	srv, st, _ := newTestServer(t)
	id := seedFile(t, st, "a.txt", []float32{1, 0, 0}, 0)

	rec := doJSON(t, srv, "GET", "/api/files", "")
	var files []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	// Embeddings and hashes never leave the daemon.
	if _, ok := files[0]["embedding"]; ok {
		t.Error("embedding leaked into API response")
	}

	rec = doJSON(t, srv, "GET", "/api/file/"+jsonID(id), "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for existing file, got %d", rec.Code)
	}

	rec = doJSON(t, srv, "GET", "/api/file/99999", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing file, got %d", rec.Code)
	}
}

func TestSearchRanksBySimilarity(t *testing.T) {
	srv, st, _ := newTestServer(t)
	dogID := seedFile(t, st, "dog.txt", []float32{1, 0, 0}, 0)
	seedFile(t, st, "cat.txt", []float32{0, 1, 0}, 0)

	rec := doJSON(t, srv, "GET", "/api/search?q=dog+walking", "")
	var results []searchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].FileID != dogID {
		t.Errorf("expected dog.txt first, got file %d", results[0].FileID)
	}
	if results[0].Score <= results[1].Score {
		t.Error("expected descending score order")
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, "GET", "/api/search", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", rec.Body.String())
	}
}

func TestRelated(t *testing.T) {
	srv, st, _ := newTestServer(t)
	dogID := seedFile(t, st, "dog.txt", []float32{1, 0, 0}, 0)
	wolfID := seedFile(t, st, "wolf.txt", []float32{0.9, 0.1, 0}, 0)
	seedFile(t, st, "cat.txt", []float32{0, 1, 0}, 1)

	rec := doJSON(t, srv, "GET", "/api/related/"+jsonID(dogID), "")
	var results []searchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 || results[0].FileID != wolfID {
		t.Errorf("expected wolf.txt most related, got %v", results)
	}
	for _, r := range results {
		if r.FileID == dogID {
			t.Error("related list must not contain the file itself")
		}
	}
}

func TestGraph(t *testing.T) {
	srv, st, _ := newTestServer(t)
	seedFile(t, st, "a.txt", []float32{1, 0, 0}, 0)
	seedFile(t, st, "b.txt", []float32{0.9, 0.1, 0}, 0)
	if err := st.UpsertCluster(context.Background(), &store.ClusterRecord{
		ID: 0, Name: "Animals", FileCount: 2, CreatedAt: store.NowISO(),
	}); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, srv, "GET", "/api/graph", "")
	var resp graphResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	if len(resp.Nodes) != 3 {
		t.Errorf("expected 2 file nodes + 1 cluster node, got %d", len(resp.Nodes))
	}
	var fileToCluster, fileToFile int
	for _, l := range resp.Links {
		if strings.HasPrefix(l.Target, "cluster-") {
			fileToCluster++
		} else {
			fileToFile++
		}
	}
	if fileToCluster != 2 {
		t.Errorf("expected 2 file->cluster links, got %d", fileToCluster)
	}
	if fileToFile != 1 {
		t.Errorf("expected 1 intra-cluster link, got %d", fileToFile)
	}
}

func TestSettingsRedactsAPIKey(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/settings",
		`{"provider": "remote", "remote_api_key": "sk-secret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	if strings.Contains(rec.Body.String(), "sk-secret") {
		t.Error("API key echoed back in save response")
	}

	var resp settingsResponse
	rec = doJSON(t, srv, "GET", "/api/settings", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RemoteAPIKey != "" {
		t.Error("API key returned by GET settings")
	}
	if !resp.RemoteAPIKeySet {
		t.Error("expected remote_api_key_set true after save")
	}
	if resp.Provider != "remote" {
		t.Errorf("expected provider remote, got %s", resp.Provider)
	}

	// Provider switch took effect on the live adapter.
	if srv.deps.Adapter.ProviderName() != "remote" {
		t.Errorf("expected adapter switched to remote, got %s", srv.deps.Adapter.ProviderName())
	}
}

func TestSettingsRejectsUnknownProvider(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/settings", `{"provider": "cloud9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	var resp settingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Provider != "local" {
		t.Errorf("expected invalid provider ignored, got %s", resp.Provider)
	}
}

func TestChatStreamFraming(t *testing.T) {
	srv, st, _ := newTestServer(t)
	seedFile(t, st, "dog.txt", []float32{1, 0, 0}, 0)

	rec := doJSON(t, srv, "POST", "/api/chat", `{"message": "tell me about the dog"}`)
	body := rec.Body.String()

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %s", ct)
	}

	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	if len(frames) < 3 {
		t.Fatalf("expected at least sources/token/done frames, got %d: %s", len(frames), body)
	}
	for _, f := range frames {
		if !strings.HasPrefix(f, "data: ") {
			t.Errorf("frame missing data prefix: %q", f)
		}
	}
	if !strings.Contains(frames[0], `"type":"sources"`) {
		t.Errorf("expected first frame to be sources, got %s", frames[0])
	}
	if !strings.Contains(frames[len(frames)-1], `"type":"done"`) {
		t.Errorf("expected last frame to be done, got %s", frames[len(frames)-1])
	}
}

func TestEventsLimit(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := st.AddEvent(ctx, 0, "file_added", "x"); err != nil {
			t.Fatal(err)
		}
	}

	rec := doJSON(t, srv, "GET", "/api/events?limit=3", "")
	var evts []store.EventRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &evts); err != nil {
		t.Fatal(err)
	}
	if len(evts) != 3 {
		t.Errorf("expected 3 events, got %d", len(evts))
	}
}

func jsonID(id int64) string {
	return strconv.FormatInt(id, 10)
}
