package index

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// NoiseLabel marks points DBSCAN could not place in any cluster.
const NoiseLabel = -1

const (
	DefaultKMeansSeed    = 42
	DefaultDBSCANEps     = 0.5
	DefaultDBSCANMinPts  = 2
	DefaultWardThreshold = 1.2
	kmeansMaxIterations  = 300
)

// Clusters maps a cluster label to its member handles in ascending order.
type Clusters map[int][]Handle

// Labels returns the labels in ascending order.
func (c Clusters) Labels() []int {
	out := make([]int, 0, len(c))
	for label := range c {
		out = append(out, label)
	}
	sort.Ints(out)
	return out
}

// FeatureSpace selects the vectors clustering runs over. The zero value is
// not usable; use SemanticSpace or TfIdfSpace.
type FeatureSpace struct {
	name     string
	features func(*Snapshot) [][]float64
}

func (f FeatureSpace) String() string { return f.name }

var (
	// SemanticSpace clusters the dense embeddings.
	SemanticSpace = FeatureSpace{name: "semantic", features: func(s *Snapshot) [][]float64 {
		out := make([][]float64, len(s.semantic.embeddings))
		for i, vec := range s.semantic.embeddings {
			row := make([]float64, len(vec))
			for d, x := range vec {
				row[d] = float64(x)
			}
			out[i] = row
		}
		return out
	}}

	// TfIdfSpace clusters the densified TF-IDF rows.
	TfIdfSpace = FeatureSpace{name: "tfidf", features: func(s *Snapshot) [][]float64 {
		return s.keyword.dense()
	}}
)

// ParseFeatureSpace resolves a configured or command-line method name.
func ParseFeatureSpace(name string) (FeatureSpace, error) {
	switch name {
	case "semantic":
		return SemanticSpace, nil
	case "tfidf":
		return TfIdfSpace, nil
	default:
		return FeatureSpace{}, fmt.Errorf("unknown clustering method %q (want semantic or tfidf)", name)
	}
}

// Partitioner assigns one label per point. Implemented by KMeans, DBSCAN and
// Ward.
type Partitioner interface {
	labels(points [][]float64) []int
}

// KMeans is a fixed-k centroid partitioning seeded with k-means++. K is
// clamped to the number of points.
type KMeans struct {
	K    int
	Seed int64
}

// DBSCAN is density-based partitioning; a point counts towards its own
// neighbourhood and unreachable points are labelled NoiseLabel.
type DBSCAN struct {
	Eps        float64
	MinSamples int
}

// Ward is agglomerative clustering with Ward linkage, cut where the merge
// distance first exceeds Threshold.
type Ward struct {
	Threshold float64
}

func groupLabels(labels []int) Clusters {
	out := make(Clusters)
	for i, label := range labels {
		out[label] = append(out[label], Handle(i))
	}
	return out
}

func (km KMeans) labels(points [][]float64) []int {
	n := len(points)
	k := min(km.K, n)
	if k <= 0 {
		k = 1
	}
	rng := rand.New(rand.NewSource(km.Seed))
	centroids := seedPlusPlus(points, k, rng)

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, p := range points {
			if best := closest(p, centroids); best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		dim := len(points[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, p := range points {
			counts[labels[i]]++
			for d, x := range p {
				sums[labels[i]][d] += x
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range sums[c] {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}
	return labels
}

// seedPlusPlus picks initial centroids with probability proportional to the
// squared distance from the nearest centroid chosen so far.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	chosen := make([]bool, len(points))
	first := rng.Intn(len(points))
	chosen[first] = true
	centroids = append(centroids, append([]float64(nil), points[first]...))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			dist[i] = squaredDistance(p, centroids[closest(p, centroids)])
			total += dist[i]
		}

		pick := -1
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 && d > 0 {
					pick = i
					break
				}
			}
		}
		if pick < 0 {
			// Every remaining point coincides with a centroid.
			for i := range points {
				if !chosen[i] {
					pick = i
					break
				}
			}
		}
		chosen[pick] = true
		centroids = append(centroids, append([]float64(nil), points[pick]...))
	}
	return centroids
}

func closest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

const unvisited = -2

func (db DBSCAN) labels(points [][]float64) []int {
	eps2 := db.Eps * db.Eps
	region := func(i int) []int {
		var out []int
		for j, q := range points {
			if squaredDistance(points[i], q) <= eps2 {
				out = append(out, j)
			}
		}
		return out
	}

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}
	next := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		seeds := region(i)
		if len(seeds) < db.MinSamples {
			labels[i] = NoiseLabel
			continue
		}
		cluster := next
		next++
		labels[i] = cluster
		for q := 0; q < len(seeds); q++ {
			j := seeds[q]
			if labels[j] == NoiseLabel {
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if more := region(j); len(more) >= db.MinSamples {
				seeds = append(seeds, more...)
			}
		}
	}
	return labels
}
