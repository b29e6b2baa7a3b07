package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *RootStore {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), DBFileName))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return s
}

func testRecord(originalPath string) *FileRecord {
	now := NowISO()
	return &FileRecord{
		Filename:     filepath.Base(originalPath),
		OriginalPath: originalPath,
		CurrentPath:  originalPath,
		ContentHash:  "hash-" + filepath.Base(originalPath),
		Embedding:    []float32{0.1, 0.2, 0.3},
		EmbedModel:   "local/nomic-embed-text",
		ClusterID:    UncategorizedCluster,
		FileType:     "txt",
		SizeBytes:    42,
		WordCount:    7,
		PageCount:    1,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
}

func TestUpsertFile_InsertThenUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := testRecord("/root/a.txt")
	id, err := s.UpsertFile(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	// Upserting the same original_path must not create a second record.
	rec.Summary = "updated"
	id2, err := s.UpsertFile(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id2 != id {
		t.Errorf("expected stable id %d, got %d", id, id2)
	}

	got, err := s.GetFileByID(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Summary != "updated" {
		t.Errorf("expected updated summary, got %q", got.Summary)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != 0.2 {
		t.Errorf("embedding did not round-trip: %v", got.Embedding)
	}
	if got.EmbedModel != "local/nomic-embed-text" {
		t.Errorf("embed model did not round-trip: %q", got.EmbedModel)
	}
}

func TestGetFileByPath_MatchesCurrentPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertFile(ctx, testRecord("/root/a.txt"))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.UpdateFileCurrentPath(ctx, id, "/root/Cluster/a.txt"); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetFileByPath(ctx, "/root/Cluster/a.txt")
	if err != nil {
		t.Fatalf("expected lookup by current path to succeed: %v", err)
	}
	if got.ID != id {
		t.Errorf("expected id %d, got %d", id, got.ID)
	}

	// Original path still resolves too.
	if _, err := s.GetFileByPath(ctx, "/root/a.txt"); err != nil {
		t.Errorf("expected lookup by original path to succeed: %v", err)
	}
}

func TestGetFileByPath_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetFileByPath(context.Background(), "/root/missing.txt")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetFileByHash_ReturnsNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testRecord("/root/a.txt")
	a.ContentHash = "same"
	b := testRecord("/root/b.txt")
	b.ContentHash = "same"

	if _, err := s.UpsertFile(ctx, a); err != nil {
		t.Fatal(err)
	}
	idB, err := s.UpsertFile(ctx, b)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.GetFileByHash(ctx, "same")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != idB {
		t.Errorf("expected newest record %d, got %d", idB, got.ID)
	}
}

func TestBulkUpdateClusters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	idA, err := s.UpsertFile(ctx, testRecord("/root/a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	idB, err := s.UpsertFile(ctx, testRecord("/root/b.txt"))
	if err != nil {
		t.Fatal(err)
	}

	err = s.BulkUpdateClusters(ctx, []ClusterAssignment{
		{FileID: idA, ClusterID: 0, MapX: 1.5, MapY: -2.5, CurrentPath: "/root/Alpha/a.txt"},
		{FileID: idB, ClusterID: 1, MapX: 0.5, MapY: 0.5, CurrentPath: "/root/Beta/b.txt"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetFileByID(ctx, idA)
	if err != nil {
		t.Fatal(err)
	}
	if got.ClusterID != 0 || got.MapX != 1.5 || got.CurrentPath != "/root/Alpha/a.txt" {
		t.Errorf("bulk update not applied: %+v", got)
	}
}

func TestClusters_UpsertListClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	c := &ClusterRecord{
		ID:         0,
		Name:       "Tax Documents",
		FolderPath: "/root/Tax Documents",
		Centroid:   []float32{0.5, 0.5},
		FileCount:  3,
		CreatedAt:  NowISO(),
	}
	if err := s.UpsertCluster(ctx, c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clusters, err := s.ListClusters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if clusters[0].Name != "Tax Documents" || len(clusters[0].Centroid) != 2 {
		t.Errorf("cluster did not round-trip: %+v", clusters[0])
	}

	if err := s.ClearClusters(ctx); err != nil {
		t.Fatal(err)
	}
	clusters, err = s.ListClusters(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 0 {
		t.Errorf("expected no clusters after clear, got %d", len(clusters))
	}
}

func TestEvents_RecentNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddEvent(ctx, 1, "file_added", "a.txt"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.AddEvent(ctx, 2, "file_modified", "b.txt"); err != nil {
		t.Fatal(err)
	}

	events, err := s.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != "file_modified" {
		t.Errorf("expected newest first, got %q", events[0].EventType)
	}
}

func TestGlobalStore_Settings(t *testing.T) {
	ctx := context.Background()

	g, err := OpenGlobal(ctx, filepath.Join(t.TempDir(), "sefs.db"))
	if err != nil {
		t.Fatalf("failed to open global store: %v", err)
	}
	defer g.Close()

	if _, err := g.GetSetting(ctx, "provider"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unset key, got %v", err)
	}

	if err := g.SetSetting(ctx, "provider", "local"); err != nil {
		t.Fatal(err)
	}
	if err := g.SetSettings(ctx, map[string]string{
		"root_folder": "/tmp/sefs",
		"provider":    "remote",
	}); err != nil {
		t.Fatal(err)
	}

	got, err := g.GetSetting(ctx, "provider")
	if err != nil {
		t.Fatal(err)
	}
	if got != "remote" {
		t.Errorf("expected last write to win, got %q", got)
	}

	all, err := g.AllSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 settings, got %d", len(all))
	}
}

func TestManager_Switch(t *testing.T) {
	ctx := context.Background()

	rootA := t.TempDir()
	rootB := t.TempDir()

	sA, err := Open(ctx, DBPath(rootA))
	if err != nil {
		t.Fatal(err)
	}

	m := NewManager(sA)
	defer m.Close()

	if _, err := m.Current().UpsertFile(ctx, testRecord("/a/x.txt")); err != nil {
		t.Fatal(err)
	}

	if err := m.Switch(ctx, rootB); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	files, err := m.Current().ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("expected empty store after switch, got %d files", len(files))
	}

	// Switching back restores the previous root's records.
	if err := m.Switch(ctx, rootA); err != nil {
		t.Fatal(err)
	}
	files, err = m.Current().ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("expected 1 file after switching back, got %d", len(files))
	}
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	in := []float32{0, -1.25, 3.5, 1e-7}
	out := decodeVector(encodeVector(in))

	if len(out) != len(in) {
		t.Fatalf("expected %d values, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("value %d did not round-trip: %g != %g", i, in[i], out[i])
		}
	}

	if encodeVector(nil) != nil {
		t.Error("expected nil encoding for empty vector")
	}
	if decodeVector(nil) != nil {
		t.Error("expected nil decoding for empty blob")
	}
}
