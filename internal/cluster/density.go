package cluster

import "math"

// Density clustering parameters. On L2-normalized vectors the Euclidean
// metric is monotone in cosine distance (d^2 = 2*(1-cos)), so the epsilon
// radius is derived from the same cosine-distance threshold the
// agglomerative stage cuts at.
const densityMinPoints = 2

// density runs a DBSCAN-style pass over L2-normalized embeddings. Points
// without enough neighbors inside the epsilon radius stay as noise.
func (e *Engine) density(embeddings [][]float32) []int {
	n := len(embeddings)

	normed := make([][]float32, n)
	for i, v := range embeddings {
		normed[i] = l2Normalized(v)
	}

	eps := math.Sqrt(2 * e.distanceThreshold)

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if euclidean(normed[i], normed[j]) <= eps {
				neighbors[i] = append(neighbors[i], j)
				neighbors[j] = append(neighbors[j], i)
			}
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}

	next := 0
	for i := 0; i < n; i++ {
		if labels[i] != Noise || len(neighbors[i]) < densityMinPoints {
			continue
		}

		// Expand a new cluster from this core point.
		labels[i] = next
		queue := append([]int(nil), neighbors[i]...)
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]

			if labels[p] != Noise {
				continue
			}
			labels[p] = next

			if len(neighbors[p]) >= densityMinPoints {
				queue = append(queue, neighbors[p]...)
			}
		}
		next++
	}

	return labels
}

func l2Normalized(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func euclidean(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
