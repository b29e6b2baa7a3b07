package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sefs-io/sefs/internal/cluster"
	"github.com/sefs-io/sefs/internal/embed"
	"github.com/sefs-io/sefs/internal/events"
	"github.com/sefs-io/sefs/internal/store"
	"github.com/sefs-io/sefs/internal/syncer"
)

const maxRepresentativeTexts = 5

// FullRecluster rebuilds the entire clustering: repair stale rows, migrate
// embedding dimensions, cluster, name, atomically replace cluster records,
// and reconcile the on-disk layout. Serialized with incremental assignment.
func (p *Pipeline) FullRecluster(ctx context.Context) error {
	p.reclusterMu.Lock()
	defer p.reclusterMu.Unlock()

	root := p.Root()
	st := p.Store()

	p.publish(ctx, events.ReclusteringStart, nil)

	if err := p.repair(ctx); err != nil {
		p.logger.Warn("repair pass failed", "error", err)
	}

	all, err := st.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list files; %w", err)
	}

	var candidates []store.FileRecord
	for _, f := range all {
		if f.HasEmbedding() {
			candidates = append(candidates, f)
		}
	}

	if len(candidates) < 2 {
		if len(candidates) == 1 {
			return p.singleFileCluster(ctx, root, &candidates[0])
		}
		p.logger.Info("not enough embedded files to cluster", "count", len(candidates))
		p.publish(ctx, events.ReclusteringEnd, map[string]any{"files": 0, "clusters": 0})
		return nil
	}

	candidates = p.migrateDimensions(ctx, candidates)
	if len(candidates) < 2 {
		p.logger.Warn("too few usable embeddings after dimension migration, keeping prior clustering")
		p.publish(ctx, events.ReclusteringEnd, map[string]any{"files": len(candidates), "clusters": 0})
		return nil
	}

	embeddings := make([][]float32, len(candidates))
	for i := range candidates {
		embeddings[i] = candidates[i].Embedding
	}

	result := p.engine.Cluster(embeddings)
	cluster.Rescale(result.Coords, CoordLimit)

	records, names := p.buildClusterRecords(ctx, root, candidates, embeddings, result.Labels)

	if err := st.ClearClusters(ctx); err != nil {
		return fmt.Errorf("failed to clear clusters; %w", err)
	}
	for i := range records {
		if err := st.UpsertCluster(ctx, &records[i]); err != nil {
			return fmt.Errorf("failed to write cluster %q; %w", records[i].Name, err)
		}
	}

	assignments := make([]store.ClusterAssignment, len(candidates))
	for i, f := range candidates {
		assignments[i] = store.ClusterAssignment{
			FileID:      f.ID,
			ClusterID:   int64(result.Labels[i]),
			MapX:        result.Coords[i][0],
			MapY:        result.Coords[i][1],
			CurrentPath: f.CurrentPath,
		}
	}
	if err := st.BulkUpdateClusters(ctx, assignments); err != nil {
		return fmt.Errorf("failed to apply cluster assignments; %w", err)
	}

	plan := make([]syncer.PlanEntry, len(candidates))
	for i, f := range candidates {
		plan[i] = syncer.PlanEntry{
			FileID:       f.ID,
			CurrentPath:  f.CurrentPath,
			OriginalPath: f.OriginalPath,
			Filename:     f.Filename,
			ClusterID:    int64(result.Labels[i]),
		}
	}

	moves := p.syncer.SyncFilesToFolders(root, plan, names)
	p.applyMoves(ctx, moves)

	p.publish(ctx, events.ReclusteringEnd, map[string]any{
		"files":    len(candidates),
		"clusters": len(names),
	})
	p.logger.Info("recluster complete", "files", len(candidates), "clusters", len(names))
	return nil
}

// repair drops rows whose current and original paths are both gone from disk.
// Duplicate (hash, filename) rows left behind by interrupted moves fall out
// of the same rule.
func (p *Pipeline) repair(ctx context.Context) error {
	st := p.Store()
	files, err := st.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list files; %w", err)
	}

	removed := 0
	for _, f := range files {
		if fileExists(f.CurrentPath) || fileExists(f.OriginalPath) {
			continue
		}
		if err := st.DeleteFileByID(ctx, f.ID); err != nil {
			p.logger.Warn("failed to remove orphan row", "file_id", f.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		p.logger.Info("repaired orphan records", "removed", removed)
	}
	return nil
}

// singleFileCluster writes the one-file "General" clustering.
func (p *Pipeline) singleFileCluster(ctx context.Context, root string, f *store.FileRecord) error {
	st := p.Store()

	if err := st.ClearClusters(ctx); err != nil {
		return fmt.Errorf("failed to clear clusters; %w", err)
	}

	rec := store.ClusterRecord{
		ID:         0,
		Name:       GeneralClusterName,
		FolderPath: filepath.Join(root, GeneralClusterName),
		Centroid:   f.Embedding,
		FileCount:  1,
		CreatedAt:  store.NowISO(),
	}
	if err := st.UpsertCluster(ctx, &rec); err != nil {
		return fmt.Errorf("failed to write cluster; %w", err)
	}

	if err := st.BulkUpdateClusters(ctx, []store.ClusterAssignment{
		{FileID: f.ID, ClusterID: 0, CurrentPath: f.CurrentPath},
	}); err != nil {
		return fmt.Errorf("failed to assign file; %w", err)
	}

	moves := p.syncer.SyncFilesToFolders(root, []syncer.PlanEntry{{
		FileID:       f.ID,
		CurrentPath:  f.CurrentPath,
		OriginalPath: f.OriginalPath,
		Filename:     f.Filename,
		ClusterID:    0,
	}}, map[int64]string{0: GeneralClusterName})
	p.applyMoves(ctx, moves)

	p.publish(ctx, events.ReclusteringEnd, map[string]any{"files": 1, "clusters": 1})
	return nil
}

// migrateDimensions re-embeds records whose vector dimension no longer
// matches the active provider. When re-embedding fails, the stored vector is
// padded with zeros or truncated to match; only vectors that are still zero
// after coercion are dropped from this run.
func (p *Pipeline) migrateDimensions(ctx context.Context, candidates []store.FileRecord) []store.FileRecord {
	expected, err := p.adapter.ExpectedDim(ctx)
	if err != nil {
		p.logger.Warn("provider dimension unavailable, skipping migration", "error", err)
		return candidates
	}

	mismatched := 0
	for i := range candidates {
		if len(candidates[i].Embedding) != expected {
			mismatched++
		}
	}
	if mismatched == 0 {
		return candidates
	}

	p.publish(ctx, events.ReembeddingStart, map[string]any{"files": mismatched})

	st := p.Store()
	kept := candidates[:0]
	dropped := 0
	for i := range candidates {
		f := &candidates[i]
		if len(f.Embedding) == expected {
			kept = append(kept, *f)
			continue
		}

		vec := p.adapter.GetEmbeddingMatchingDim(ctx, p.migrationText(f), expected)
		if isZeroVec(vec) {
			// Re-embedding failed; coerce the stored vector instead.
			vec = embed.PadOrTruncate(f.Embedding, expected)
		}
		if isZeroVec(vec) {
			p.logger.Warn("dropping file with unusable embedding", "file_id", f.ID)
			dropped++
			continue
		}

		if err := st.UpdateFileEmbedding(ctx, f.ID, vec, p.adapter.ModelTag()); err != nil {
			p.logger.Warn("failed to store migrated embedding", "file_id", f.ID, "error", err)
			dropped++
			continue
		}
		f.Embedding = vec
		f.EmbedModel = p.adapter.ModelTag()
		kept = append(kept, *f)
	}

	p.publish(ctx, events.ReembeddingEnd, map[string]any{
		"migrated": mismatched - dropped,
		"dropped":  dropped,
	})
	return kept
}

// migrationText finds a text source for re-embedding, trying the current path
// first and falling back to the original.
func (p *Pipeline) migrationText(f *store.FileRecord) string {
	for _, path := range []string{f.CurrentPath, f.OriginalPath} {
		if path == "" || !fileExists(path) {
			continue
		}
		if res, err := p.extractor.Extract(path); err == nil && res.Text != "" {
			return res.Text
		}
	}
	return ""
}

// buildClusterRecords names each cluster and returns the records plus the
// id→name map for the sync plan. Names are unique within the run.
func (p *Pipeline) buildClusterRecords(
	ctx context.Context,
	root string,
	candidates []store.FileRecord,
	embeddings [][]float32,
	labels []int,
) ([]store.ClusterRecord, map[int64]string) {
	members := make(map[int][]int)
	for i, label := range labels {
		members[label] = append(members[label], i)
	}

	ids := make([]int, 0, len(members))
	for id := range members {
		if id != cluster.Noise {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	centroids := cluster.Centroids(embeddings, labels)

	var records []store.ClusterRecord
	names := make(map[int64]string, len(ids))
	used := make(map[string]bool)
	var chosen []string

	now := store.NowISO()
	for _, id := range ids {
		texts := p.representativeTexts(candidates, members[id])
		name := p.namer.GenerateClusterName(ctx, texts, chosen)
		name = uniqueName(name, used)
		used[name] = true
		chosen = append(chosen, name)

		records = append(records, store.ClusterRecord{
			ID:         int64(id),
			Name:       name,
			FolderPath: filepath.Join(root, name),
			Centroid:   centroids[id],
			FileCount:  len(members[id]),
			CreatedAt:  now,
		})
		names[int64(id)] = name
	}

	if noise := members[cluster.Noise]; len(noise) > 0 {
		records = append(records, store.ClusterRecord{
			ID:         cluster.Noise,
			Name:       syncer.UncategorizedFolder,
			FolderPath: filepath.Join(root, syncer.UncategorizedFolder),
			FileCount:  len(noise),
			CreatedAt:  now,
		})
	}

	return records, names
}

// representativeTexts gathers up to 5 texts for naming: fresh extraction
// first, then summary and filename.
func (p *Pipeline) representativeTexts(candidates []store.FileRecord, member []int) []string {
	var texts []string
	for _, idx := range member {
		if len(texts) == maxRepresentativeTexts {
			break
		}
		f := &candidates[idx]

		if fileExists(f.CurrentPath) {
			if res, err := p.extractor.Extract(f.CurrentPath); err == nil && res.Text != "" {
				texts = append(texts, res.Text)
				continue
			}
		}
		if f.Summary != "" {
			texts = append(texts, f.Summary+" "+f.Filename)
			continue
		}
		texts = append(texts, f.Filename)
	}
	return texts
}

// applyMoves records the paths the sync engine actually produced.
func (p *Pipeline) applyMoves(ctx context.Context, moves []syncer.Move) {
	st := p.Store()
	for _, m := range moves {
		if err := st.UpdateFileCurrentPath(ctx, m.FileID, m.To); err != nil {
			p.logger.Warn("failed to record move", "file_id", m.FileID, "error", err)
			continue
		}
		if err := st.UpdateFileFilename(ctx, m.FileID, filepath.Base(m.To)); err != nil {
			p.logger.Warn("failed to record filename", "file_id", m.FileID, "error", err)
		}
	}
}

// uniqueName appends _2, _3, ... until the name is unused this run.
func uniqueName(name string, used map[string]bool) string {
	if !used[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if !used[candidate] {
			return candidate
		}
	}
}

func isZeroVec(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
