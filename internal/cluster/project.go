package cluster

import (
	"math"
	"math/rand"
)

const (
	projectNeighbors  = 15
	projectIterations = 120
	projectMinDist    = 0.1
)

// project reduces the embedding matrix to 2D for visualization. A PCA layout
// seeds an iterative refinement that pulls cosine-nearest neighbors together
// and pushes sampled non-neighbors apart. Assignments never depend on this
// output.
func (e *Engine) project(embeddings [][]float32) [][2]float64 {
	n := len(embeddings)
	if n < 3 {
		return trivialCoords(n)
	}

	coords := pca2D(embeddings)
	if degenerate(coords) {
		// Nothing to refine on a collapsed layout.
		return trivialCoords(n)
	}

	k := projectNeighbors
	if k > n-1 {
		k = n - 1
	}
	neighbors := nearestByCosine(embeddings, k)

	// Deterministic layout: seeded sampling for repulsion.
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < projectIterations; iter++ {
		alpha := 0.1 * (1 - float64(iter)/float64(projectIterations))

		for i := 0; i < n; i++ {
			// Attraction toward neighbors.
			for _, j := range neighbors[i] {
				dx := coords[j][0] - coords[i][0]
				dy := coords[j][1] - coords[i][1]
				d := math.Hypot(dx, dy)
				if d <= projectMinDist {
					continue
				}
				pull := alpha * (d - projectMinDist) / d
				coords[i][0] += pull * dx
				coords[i][1] += pull * dy
			}

			// Repulsion from a few random non-neighbors.
			for s := 0; s < 3; s++ {
				j := rng.Intn(n)
				if j == i || contains(neighbors[i], j) {
					continue
				}
				dx := coords[i][0] - coords[j][0]
				dy := coords[i][1] - coords[j][1]
				d := math.Hypot(dx, dy)
				if d == 0 || d > 2 {
					continue
				}
				push := alpha * 0.5 / (d + 0.01)
				coords[i][0] += push * dx / d
				coords[i][1] += push * dy / d
			}
		}
	}

	return coords
}

// pca2D projects the centered matrix onto its top two principal components,
// found by power iteration with deflation.
func pca2D(embeddings [][]float32) [][2]float64 {
	n := len(embeddings)
	dim := len(embeddings[0])

	mean := make([]float64, dim)
	for _, row := range embeddings {
		for j, v := range row {
			mean[j] += float64(v)
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	centered := make([][]float64, n)
	for i, row := range embeddings {
		centered[i] = make([]float64, dim)
		for j, v := range row {
			centered[i][j] = float64(v) - mean[j]
		}
	}

	pc1 := principalComponent(centered, nil)
	pc2 := principalComponent(centered, pc1)

	coords := make([][2]float64, n)
	for i, row := range centered {
		coords[i][0] = dot64(row, pc1)
		coords[i][1] = dot64(row, pc2)
	}
	return coords
}

// principalComponent power-iterates X^T X v without materializing the
// covariance matrix. A non-nil deflate vector is projected out each step.
func principalComponent(centered [][]float64, deflate []float64) []float64 {
	dim := len(centered[0])

	v := make([]float64, dim)
	for j := range v {
		// Fixed non-uniform start so power iteration converges
		// deterministically.
		v[j] = 1 / float64(j+1)
	}

	for iter := 0; iter < 50; iter++ {
		if deflate != nil {
			projectOut(v, deflate)
		}

		next := make([]float64, dim)
		for _, row := range centered {
			d := dot64(row, v)
			for j, x := range row {
				next[j] += d * x
			}
		}

		if deflate != nil {
			projectOut(next, deflate)
		}
		if !normalize64(next) {
			break
		}
		v = next
	}

	return v
}

func projectOut(v, dir []float64) {
	d := dot64(v, dir)
	for j := range v {
		v[j] -= d * dir[j]
	}
}

func dot64(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalize64 scales v to unit norm, reporting false for a zero vector.
func normalize64(v []float64) bool {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return false
	}
	norm := math.Sqrt(sum)
	for j := range v {
		v[j] /= norm
	}
	return true
}

// nearestByCosine returns each point's k nearest neighbors by cosine
// similarity.
func nearestByCosine(embeddings [][]float32, k int) [][]int {
	n := len(embeddings)
	neighbors := make([][]int, n)

	for i := 0; i < n; i++ {
		type scored struct {
			idx int
			sim float64
		}
		cands := make([]scored, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			cands = append(cands, scored{j, CosineSimilarity(embeddings[i], embeddings[j])})
		}

		// Partial selection sort for the top k.
		for s := 0; s < k; s++ {
			best := s
			for t := s + 1; t < len(cands); t++ {
				if cands[t].sim > cands[best].sim {
					best = t
				}
			}
			cands[s], cands[best] = cands[best], cands[s]
			neighbors[i] = append(neighbors[i], cands[s].idx)
		}
	}

	return neighbors
}

func degenerate(coords [][2]float64) bool {
	for _, c := range coords[1:] {
		if c != coords[0] {
			return false
		}
	}
	return true
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
