// Package cluster groups embedding vectors into labeled clusters and produces
// 2D coordinates for visualization. Cluster decisions always operate on the
// high-dimensional vectors; the 2D projection is decorative only.
package cluster

import (
	"log/slog"
	"math"
)

// Noise is the label for points not assigned to any cluster.
const Noise = -1

const (
	// DefaultSmallCollectionMax is the largest collection clustered
	// agglomeratively instead of density-based.
	DefaultSmallCollectionMax = 25

	// DefaultDistanceThreshold is the cosine-distance cut for agglomerative
	// merging.
	DefaultDistanceThreshold = 0.52

	// DefaultNoiseSimilarity is the minimum cosine similarity for adopting a
	// noise point into its nearest cluster.
	DefaultNoiseSimilarity = 0.40
)

// Result is a clustering outcome: one label per input row (non-negative
// cluster ids, or Noise) plus 2D visualization coordinates.
type Result struct {
	Labels []int
	Coords [][2]float64
}

// Engine clusters embedding matrices under a fixed policy.
type Engine struct {
	smallMax          int
	distanceThreshold float64
	noiseSimilarity   float64
	logger            *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithSmallCollectionMax sets the agglomerative/density cutover size.
func WithSmallCollectionMax(n int) Option {
	return func(e *Engine) {
		e.smallMax = n
	}
}

// WithDistanceThreshold sets the agglomerative cosine-distance cut.
func WithDistanceThreshold(t float64) Option {
	return func(e *Engine) {
		e.distanceThreshold = t
	}
}

// WithNoiseSimilarity sets the minimum similarity for noise reassignment.
func WithNoiseSimilarity(t float64) Option {
	return func(e *Engine) {
		e.noiseSimilarity = t
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates a clustering engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		smallMax:          DefaultSmallCollectionMax,
		distanceThreshold: DefaultDistanceThreshold,
		noiseSimilarity:   DefaultNoiseSimilarity,
		logger:            slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// NoiseSimilarity returns the minimum similarity for adopting a point into a
// cluster. Incremental assignment uses the same threshold.
func (e *Engine) NoiseSimilarity() float64 {
	return e.noiseSimilarity
}

// Cluster assigns a label to every embedding and projects the matrix to 2D.
//
// Policy, in order: trivial layouts for fewer than 3 points; agglomerative
// clustering for small collections; density-based clustering otherwise, with
// an agglomerative fallback when everything comes back as noise; then noise
// points are adopted by their nearest cluster when similar enough.
func (e *Engine) Cluster(embeddings [][]float32) Result {
	n := len(embeddings)

	if n == 0 {
		return Result{}
	}
	if n < 3 {
		return Result{
			Labels: make([]int, n), // all zero
			Coords: trivialCoords(n),
		}
	}

	var labels []int
	if n <= e.smallMax {
		labels = e.agglomerative(embeddings)
	} else {
		labels = e.density(embeddings)
		if allNoise(labels) {
			e.logger.Debug("density clustering found only noise, falling back to agglomerative", "files", n)
			labels = e.agglomerative(embeddings)
		}
	}

	e.reassignNoise(embeddings, labels)

	return Result{
		Labels: labels,
		Coords: e.project(embeddings),
	}
}

// Centroids returns the arithmetic-mean embedding per non-noise label.
func Centroids(embeddings [][]float32, labels []int) map[int][]float32 {
	sums := make(map[int][]float64)
	counts := make(map[int]int)

	for i, label := range labels {
		if label < 0 {
			continue
		}
		if sums[label] == nil {
			sums[label] = make([]float64, len(embeddings[i]))
		}
		for j, v := range embeddings[i] {
			sums[label][j] += float64(v)
		}
		counts[label]++
	}

	centroids := make(map[int][]float32, len(sums))
	for label, sum := range sums {
		c := make([]float32, len(sum))
		for j, v := range sum {
			c[j] = float32(v / float64(counts[label]))
		}
		centroids[label] = c
	}

	return centroids
}

// reassignNoise adopts each noise point into the nearest cluster by centroid
// cosine similarity, when that similarity clears the threshold.
func (e *Engine) reassignNoise(embeddings [][]float32, labels []int) {
	centroids := Centroids(embeddings, labels)
	if len(centroids) == 0 {
		return
	}

	for i, label := range labels {
		if label != Noise {
			continue
		}

		best, bestSim := Noise, -1.0
		for cid, centroid := range centroids {
			sim := CosineSimilarity(embeddings[i], centroid)
			if sim > bestSim {
				best, bestSim = cid, sim
			}
		}

		if bestSim >= e.noiseSimilarity {
			labels[i] = best
		}
	}
}

// trivialCoords lays out 1 or 2 points at fixed positions.
func trivialCoords(n int) [][2]float64 {
	switch n {
	case 1:
		return [][2]float64{{0, 0}}
	case 2:
		return [][2]float64{{0, 0}, {1, 0}}
	default:
		coords := make([][2]float64, n)
		for i := range coords {
			angle := 2 * math.Pi * float64(i) / float64(n)
			coords[i] = [2]float64{math.Cos(angle), math.Sin(angle)}
		}
		return coords
	}
}

func allNoise(labels []int) bool {
	for _, l := range labels {
		if l != Noise {
			return false
		}
	}
	return true
}

// CosineSimilarity returns the cosine of the angle between a and b. Vectors
// of different lengths compare over the shorter prefix; zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// cosineDistance is 1 - cosine similarity.
func cosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
