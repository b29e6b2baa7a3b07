package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sefs-io/sefs/internal/cluster"
	"github.com/sefs-io/sefs/internal/store"
	"github.com/sefs-io/sefs/internal/syncer"
)

// coordJitter is the spread around the cluster's 2D mean for a new member.
const coordJitter = 20.0

// TryIncrementalAssign slots one file into an existing cluster without a full
// recluster. Returns false when no cluster is similar enough, signalling the
// caller to schedule a full recluster instead.
func (p *Pipeline) TryIncrementalAssign(ctx context.Context, fileID int64) (bool, error) {
	p.reclusterMu.Lock()
	defer p.reclusterMu.Unlock()

	st := p.Store()
	root := p.Root()

	clusters, err := st.ListClusters(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list clusters; %w", err)
	}

	var named []store.ClusterRecord
	for _, c := range clusters {
		if c.ID != store.UncategorizedCluster {
			named = append(named, c)
		}
	}
	if len(named) == 0 {
		return false, nil
	}

	file, err := st.GetFileByID(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load file; %w", err)
	}
	if !file.HasEmbedding() {
		return false, nil
	}

	all, err := st.ListFiles(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list files; %w", err)
	}

	// Stored centroids go stale after earlier incremental assigns; recompute
	// from the live members when there are any.
	bestIdx := -1
	bestSim := -1.0
	memberCache := make(map[int64][]store.FileRecord)
	for i, c := range named {
		var members []store.FileRecord
		for _, f := range all {
			if f.ClusterID == c.ID && f.ID != file.ID && f.HasEmbedding() {
				members = append(members, f)
			}
		}
		memberCache[c.ID] = members

		centroid := liveCentroid(members)
		if centroid == nil {
			centroid = c.Centroid
		}
		if centroid == nil {
			continue
		}

		sim := cluster.CosineSimilarity(file.Embedding, centroid)
		if sim > bestSim {
			bestSim = sim
			bestIdx = i
		}
	}

	if bestIdx < 0 || bestSim < p.engine.NoiseSimilarity() {
		return false, nil
	}

	best := named[bestIdx]
	members := memberCache[best.ID]

	x, y := meanCoords(members)
	x += (p.rng.Float64() - 0.5) * coordJitter
	y += (p.rng.Float64() - 0.5) * coordJitter

	if err := st.UpdateFileCluster(ctx, file.ID, best.ID); err != nil {
		return false, fmt.Errorf("failed to assign cluster; %w", err)
	}
	if err := st.UpdateFileCoords(ctx, file.ID, x, y); err != nil {
		return false, fmt.Errorf("failed to place file; %w", err)
	}

	moves := p.syncer.SyncFilesToFolders(root, []syncer.PlanEntry{{
		FileID:       file.ID,
		CurrentPath:  file.CurrentPath,
		OriginalPath: file.OriginalPath,
		Filename:     file.Filename,
		ClusterID:    best.ID,
	}}, map[int64]string{best.ID: best.Name})
	p.applyMoves(ctx, moves)

	// Fold the new file into the stored centroid and bump the count.
	withNew := append(members, *file)
	best.Centroid = liveCentroid(withNew)
	best.FileCount = len(withNew)
	if err := st.UpsertCluster(ctx, &best); err != nil {
		p.logger.Warn("failed to refresh cluster centroid", "cluster", best.Name, "error", err)
	}

	p.logger.Info("incrementally assigned file",
		"filename", file.Filename,
		"cluster", best.Name,
		"similarity", bestSim,
	)
	return true, nil
}

// liveCentroid is the arithmetic mean of the members' embeddings, or nil when
// there are none.
func liveCentroid(members []store.FileRecord) []float32 {
	if len(members) == 0 {
		return nil
	}

	dim := len(members[0].Embedding)
	sum := make([]float64, dim)
	for _, m := range members {
		for i, v := range m.Embedding {
			if i < dim {
				sum[i] += float64(v)
			}
		}
	}

	centroid := make([]float32, dim)
	for i := range sum {
		centroid[i] = float32(sum[i] / float64(len(members)))
	}
	return centroid
}

func meanCoords(members []store.FileRecord) (float64, float64) {
	if len(members) == 0 {
		return 0, 0
	}
	var sx, sy float64
	for _, m := range members {
		sx += m.MapX
		sy += m.MapY
	}
	n := float64(len(members))
	return sx / n, sy / n
}
