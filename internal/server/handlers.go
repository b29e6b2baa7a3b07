package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sefs-io/sefs/internal/cluster"
	"github.com/sefs-io/sefs/internal/store"
)

// searchTimeout bounds the embedding call behind /api/search.
const searchTimeout = 15 * time.Second

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.deps.Stores.Current()

	files, err := st.ListFiles(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	clusters, err := st.ListClusters(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"root_folder":      s.deps.Pipeline.Root(),
		"file_count":       len(files),
		"cluster_count":    len(clusters),
		"provider":         s.deps.Adapter.ProviderName(),
		"provider_healthy": s.deps.Adapter.Healthy(),
		"status":           "running",
	})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.deps.Stores.Current().ListFiles(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if files == nil {
		files = []store.FileRecord{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	f, err := s.deps.Stores.Current().GetFileByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := s.deps.Stores.Current().ListClusters(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if clusters == nil {
		clusters = []store.ClusterRecord{}
	}
	writeJSON(w, http.StatusOK, clusters)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	evts, err := s.deps.Stores.Current().RecentEvents(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if evts == nil {
		evts = []store.EventRecord{}
	}
	writeJSON(w, http.StatusOK, evts)
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	// Detached from the request so a client disconnect can't truncate the scan.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	count, err := s.deps.Pipeline.FullScan(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Scan complete: %d files processed", count),
	})
}

// searchResult is one row of /api/search and /api/related output.
type searchResult struct {
	FileID      int64   `json:"file_id"`
	Filename    string  `json:"filename"`
	Summary     string  `json:"summary"`
	ClusterID   int64   `json:"cluster_id"`
	CurrentPath string  `json:"current_path"`
	FileType    string  `json:"file_type"`
	Score       float64 `json:"score"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 10)

	if q == "" {
		writeJSON(w, http.StatusOK, []searchResult{})
		return
	}

	files, err := s.deps.Stores.Current().ListFiles(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Embed the query at whatever dimension the stored vectors use.
	targetDim := 0
	for _, f := range files {
		if len(f.Embedding) > 0 {
			targetDim = len(f.Embedding)
			break
		}
	}
	if targetDim == 0 {
		writeJSON(w, http.StatusOK, []searchResult{})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), searchTimeout)
	defer cancel()
	queryEmb := s.deps.Adapter.GetEmbeddingMatchingDim(ctx, q, targetDim)

	results := rankBySimilarity(files, queryEmb, limit, -1)
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid file id")
		return
	}
	limit := queryInt(r, "limit", 5)

	st := s.deps.Stores.Current()
	f, err := st.GetFileByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !f.HasEmbedding() {
		writeJSON(w, http.StatusOK, []searchResult{})
		return
	}

	files, err := st.ListFiles(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := rankBySimilarity(files, f.Embedding, limit, f.ID)
	writeJSON(w, http.StatusOK, results)
}

// rankBySimilarity scores every embedded file against the query vector,
// excluding excludeID, and returns the top entries.
func rankBySimilarity(files []store.FileRecord, queryEmb []float32, limit int, excludeID int64) []searchResult {
	results := []searchResult{}
	for _, f := range files {
		if len(f.Embedding) == 0 || f.ID == excludeID {
			continue
		}
		sim := cluster.CosineSimilarity(queryEmb, f.Embedding)
		results = append(results, searchResult{
			FileID:      f.ID,
			Filename:    f.Filename,
			Summary:     f.Summary,
			ClusterID:   f.ClusterID,
			CurrentPath: f.CurrentPath,
			FileType:    f.FileType,
			Score:       math.Round(sim*10000) / 10000,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
