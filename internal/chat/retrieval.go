package chat

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/sefs-io/sefs/internal/cluster"
	"github.com/sefs-io/sefs/internal/extract"
	"github.com/sefs-io/sefs/internal/store"
)

const (
	maxContextFiles = 5
	snippetChars    = 1500
	summaryFallback = 500

	// reembedBudget caps lazy re-embeds per chat query when the stored
	// model tag no longer matches the active provider.
	reembedBudget = 5
)

type contextFile struct {
	Source
	Snippet string
}

// contextFiles retrieves the files most similar to the query.
func (s *Service) contextFiles(ctx context.Context, query string, limit int) []contextFile {
	st := s.stores.Current()

	files, err := st.ListFiles(ctx)
	if err != nil {
		s.logger.Error("failed to list files for retrieval", "error", err)
		return nil
	}

	var embedded []store.FileRecord
	for _, f := range files {
		if f.HasEmbedding() {
			embedded = append(embedded, f)
		}
	}
	if len(embedded) == 0 {
		return nil
	}

	queryEmb := s.adapter.GetEmbedding(ctx, query)
	if isZero(queryEmb) {
		s.logger.Error("failed to embed chat query")
		return nil
	}

	type scored struct {
		file store.FileRecord
		sim  float64
	}
	budget := reembedBudget
	var ranked []scored
	for i := range embedded {
		f := &embedded[i]

		if !s.adapter.ModelMatches(f.EmbedModel) && budget > 0 {
			if vec := s.reembed(ctx, f); vec != nil {
				f.Embedding = vec
				budget--
			}
		}

		sim := cluster.CosineSimilarity(queryEmb, f.Embedding)
		ranked = append(ranked, scored{*f, sim})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	result := make([]contextFile, 0, len(ranked))
	for _, r := range ranked {
		result = append(result, contextFile{
			Source: Source{
				FileID:   r.file.ID,
				Filename: r.file.Filename,
				Summary:  r.file.Summary,
				Score:    math.Round(r.sim*10000) / 10000,
			},
			Snippet: s.snippet(&r.file),
		})
	}
	return result
}

// reembed refreshes a stale-model embedding from the file's source text and
// persists it. Returns nil when nothing could be re-embedded.
func (s *Service) reembed(ctx context.Context, f *store.FileRecord) []float32 {
	var text string
	for _, p := range []string{f.CurrentPath, f.OriginalPath} {
		if p != "" && fileExists(p) && extract.IsSupported(p) {
			if res, err := s.extractor.Extract(p); err == nil && res.Text != "" {
				text = res.Text
				break
			}
		}
	}
	if text == "" {
		text = f.Summary
	}
	if text == "" {
		text = f.Filename
	}

	vec := s.adapter.GetEmbedding(ctx, text)
	if isZero(vec) {
		return nil
	}

	if err := s.stores.Current().UpdateFileEmbedding(ctx, f.ID, vec, s.adapter.ModelTag()); err != nil {
		s.logger.Warn("failed to persist re-embedded vector", "file_id", f.ID, "error", err)
	}
	return vec
}

// snippet returns the leading content of the file, or a truncated summary.
func (s *Service) snippet(f *store.FileRecord) string {
	for _, p := range []string{f.OriginalPath, f.CurrentPath} {
		if p != "" && fileExists(p) && extract.IsSupported(p) {
			if res, err := s.extractor.Extract(p); err == nil && res.Text != "" {
				return firstN(res.Text, snippetChars)
			}
		}
	}
	return firstN(f.Summary, summaryFallback)
}

// collectionMetadata summarizes the whole collection for the system context.
func (s *Service) collectionMetadata(ctx context.Context) string {
	st := s.stores.Current()
	root := s.rootFn()

	files, err := st.ListFiles(ctx)
	if err != nil {
		s.logger.Error("failed to list files for metadata", "error", err)
		return "Collection metadata unavailable."
	}
	if len(files) == 0 {
		return fmt.Sprintf("Root folder: %s\nTotal files: 0 (empty collection)", root)
	}

	clusters, err := st.ListClusters(ctx)
	if err != nil {
		s.logger.Warn("failed to list clusters for metadata", "error", err)
	}

	var totalSize int64
	typeCounts := make(map[string]int)
	clusterMembers := make(map[int64][]string)
	var unclustered []string
	for _, f := range files {
		totalSize += f.SizeBytes
		ft := f.FileType
		if ft == "" {
			ft = "unknown"
		}
		typeCounts[ft]++

		if f.ClusterID >= 0 {
			clusterMembers[f.ClusterID] = append(clusterMembers[f.ClusterID], f.Filename)
		} else {
			unclustered = append(unclustered, f.Filename)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Root folder: %s\n", root)
	fmt.Fprintf(&b, "Total files: %d\n", len(files))
	fmt.Fprintf(&b, "Total size: %s\n", formatSize(totalSize))
	fmt.Fprintf(&b, "File types: %s\n", formatTypeCounts(typeCounts))
	fmt.Fprintf(&b, "Clusters (%d):\n", len(clusters))

	byID := make(map[int64]store.ClusterRecord, len(clusters))
	var ids []int64
	for _, c := range clusters {
		byID[c.ID] = c
	}
	for id := range clusterMembers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		names := clusterMembers[id]
		label := fmt.Sprintf("Cluster %d", id)
		desc := ""
		if c, ok := byID[id]; ok {
			label = c.Name
			if c.Description != "" {
				desc = " — " + c.Description
			}
		}
		fmt.Fprintf(&b, "  • %s%s: %d files [%s]\n", label, desc, len(names), sampleList(names))
	}
	if len(unclustered) > 0 {
		fmt.Fprintf(&b, "  • Unclustered: %d files [%s]\n", len(unclustered), sampleList(unclustered))
	}

	return strings.TrimRight(b.String(), "\n")
}

// sampleList shows up to 5 names with a "+N more" tail.
func sampleList(names []string) string {
	const sample = 5
	if len(names) <= sample {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(names[:sample], ", "), len(names)-sample)
}

// formatTypeCounts renders the top 20 file types by count.
func formatTypeCounts(counts map[string]int) string {
	type tc struct {
		ext   string
		count int
	}
	ranked := make([]tc, 0, len(counts))
	for ext, c := range counts {
		ranked = append(ranked, tc{ext, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].ext < ranked[j].ext
	})
	if len(ranked) > 20 {
		ranked = ranked[:20]
	}

	parts := make([]string, len(ranked))
	for i, t := range ranked {
		parts[i] = fmt.Sprintf("%s: %d", t.ext, t.count)
	}
	return strings.Join(parts, ", ")
}

func formatSize(b int64) string {
	switch {
	case b < 1024:
		return fmt.Sprintf("%d B", b)
	case b < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(b)/(1024*1024))
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
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
