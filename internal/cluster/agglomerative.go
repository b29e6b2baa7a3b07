package cluster

// agglomerative merges points bottom-up with average linkage on the pairwise
// cosine-distance matrix, cutting at the configured distance threshold.
// Singleton clusters are demoted to noise; surviving labels are renumbered
// to a contiguous range in order of first appearance.
func (e *Engine) agglomerative(embeddings [][]float32) []int {
	n := len(embeddings)

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := cosineDistance(embeddings[i], embeddings[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}

	// Each point starts as its own cluster.
	groups := make([][]int, n)
	for i := range groups {
		groups[i] = []int{i}
	}

	for len(groups) > 1 {
		bestA, bestB := -1, -1
		bestD := e.distanceThreshold

		for a := 0; a < len(groups); a++ {
			for b := a + 1; b < len(groups); b++ {
				d := averageLinkage(dist, groups[a], groups[b])
				if d <= bestD {
					bestA, bestB, bestD = a, b, d
				}
			}
		}

		if bestA < 0 {
			break
		}

		groups[bestA] = append(groups[bestA], groups[bestB]...)
		groups = append(groups[:bestB], groups[bestB+1:]...)
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}

	next := 0
	// Assign labels in order of each surviving group's earliest member so the
	// numbering is deterministic.
	for _, g := range sortGroupsByFirstMember(groups) {
		if len(g) < 2 {
			continue
		}
		for _, idx := range g {
			labels[idx] = next
		}
		next++
	}

	return labels
}

// averageLinkage is the mean pairwise distance between two member sets.
func averageLinkage(dist [][]float64, a, b []int) float64 {
	var sum float64
	for _, i := range a {
		for _, j := range b {
			sum += dist[i][j]
		}
	}
	return sum / float64(len(a)*len(b))
}

func sortGroupsByFirstMember(groups [][]int) [][]int {
	sorted := make([][]int, len(groups))
	copy(sorted, groups)

	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && minMember(sorted[j]) < minMember(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted
}

func minMember(g []int) int {
	m := g[0]
	for _, v := range g {
		if v < m {
			m = v
		}
	}
	return m
}
