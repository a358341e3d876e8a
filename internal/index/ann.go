package index

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// ANNKind names the nearest-neighbour structure a snapshot was built with.
type ANNKind string

const (
	// ANNExact scans every vector per query.
	ANNExact ANNKind = "flat"
	// ANNApproximate is an inverted-file index over k-means lists.
	ANNApproximate ANNKind = "ivf"
)

const (
	DefaultExactSearchLimit = 10000
	DefaultMaxLists         = 100
	DefaultNProbe           = 1

	ivfTrainSeed        = 1234
	ivfTrainIterations  = 25
	ivfMaxPointsPerList = 256
)

// ANNConfig selects and tunes the nearest-neighbour structure.
type ANNConfig struct {
	// ExactSearchLimit is the corpus size from which the IVF variant is used.
	ExactSearchLimit int `msgpack:"exact_search_limit"`
	// MaxLists caps the IVF list count; the count is min(MaxLists, N/10).
	MaxLists int `msgpack:"max_lists"`
	// NProbe is how many IVF lists a query visits.
	NProbe int `msgpack:"nprobe"`
}

func (c ANNConfig) withDefaults() ANNConfig {
	if c.ExactSearchLimit <= 0 {
		c.ExactSearchLimit = DefaultExactSearchLimit
	}
	if c.MaxLists <= 0 {
		c.MaxLists = DefaultMaxLists
	}
	if c.NProbe <= 0 {
		c.NProbe = DefaultNProbe
	}
	return c
}

type neighbor struct {
	pos  int
	dist float64
}

// annIndex answers k-nearest queries over the snapshot's embeddings. Both
// variants reference the embedding rows rather than copying them.
type annIndex interface {
	kind() ANNKind
	search(query []float32, k int) []neighbor
}

func buildANN(ctx context.Context, vectors [][]float32, cfg ANNConfig) (annIndex, error) {
	cfg = cfg.withDefaults()
	if len(vectors) < cfg.ExactSearchLimit {
		return &flatIndex{vectors: vectors}, nil
	}
	nlist := min(cfg.MaxLists, len(vectors)/10)
	return trainIVF(ctx, vectors, nlist, cfg.NProbe)
}

// flatIndex is the exact variant.
type flatIndex struct {
	vectors [][]float32
}

func (f *flatIndex) kind() ANNKind { return ANNExact }

func (f *flatIndex) search(query []float32, k int) []neighbor {
	all := make([]neighbor, len(f.vectors))
	for i, v := range f.vectors {
		all[i] = neighbor{pos: i, dist: squaredL2(query, v)}
	}
	return nearest(all, k)
}

// ivfIndex partitions vectors into lists around trained centroids and only
// scans the nprobe lists closest to the query.
type ivfIndex struct {
	vectors   [][]float32
	centroids [][]float32
	lists     [][]int32
	nprobe    int
}

func (v *ivfIndex) kind() ANNKind { return ANNApproximate }

func (v *ivfIndex) search(query []float32, k int) []neighbor {
	probes := make([]neighbor, len(v.centroids))
	for i, c := range v.centroids {
		probes[i] = neighbor{pos: i, dist: squaredL2(query, c)}
	}
	probes = nearest(probes, v.nprobe)

	var candidates []neighbor
	for _, p := range probes {
		for _, id := range v.lists[p.pos] {
			candidates = append(candidates, neighbor{pos: int(id), dist: squaredL2(query, v.vectors[id])})
		}
	}
	return nearest(candidates, k)
}

func trainIVF(ctx context.Context, vectors [][]float32, nlist, nprobe int) (*ivfIndex, error) {
	if nlist < 1 {
		nlist = 1
	}
	rng := rand.New(rand.NewSource(ivfTrainSeed))
	training := trainingSample(vectors, nlist*ivfMaxPointsPerList, rng)
	if len(training) < nlist {
		return nil, fmt.Errorf("%w: %d training vectors for %d lists", ErrIndexBuild, len(training), nlist)
	}

	centroids, err := trainCentroids(ctx, training, nlist, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: ivf training: %w", ErrIndexBuild, err)
	}

	idx := &ivfIndex{vectors: vectors, centroids: centroids, nprobe: min(nprobe, nlist)}
	idx.assign()
	return idx, nil
}

// assign (re)inserts every vector into the list of its nearest centroid.
func (v *ivfIndex) assign() {
	v.lists = make([][]int32, len(v.centroids))
	for i, vec := range v.vectors {
		list := nearestCentroid(vec, v.centroids)
		v.lists[list] = append(v.lists[list], int32(i))
	}
}

// trainingSample keeps at most max vectors using a seeded reservoir, so the
// same corpus always trains the same centroids.
func trainingSample(vectors [][]float32, max int, rng *rand.Rand) [][]float32 {
	if len(vectors) <= max {
		return vectors
	}
	sample := make([][]float32, 0, max)
	for i, v := range vectors {
		if len(sample) < max {
			sample = append(sample, v)
			continue
		}
		if j := rng.Intn(i + 1); j < max {
			sample[j] = v
		}
	}
	return sample
}

func trainCentroids(ctx context.Context, training [][]float32, k int, rng *rand.Rand) ([][]float32, error) {
	dim := len(training[0])
	centroids := make([][]float32, k)
	for i, p := range rng.Perm(len(training))[:k] {
		centroids[i] = append([]float32(nil), training[p]...)
	}

	assign := make([]int, len(training))
	for iter := 0; iter < ivfTrainIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := false
		for i, vec := range training {
			if best := nearestCentroid(vec, centroids); best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, vec := range training {
			c := assign[i]
			counts[c]++
			for d, x := range vec {
				sums[c][d] += float64(x)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				centroids[c] = append([]float32(nil), training[rng.Intn(len(training))]...)
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}
	return centroids, nil
}

func nearestCentroid(vec []float32, centroids [][]float32) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centroids {
		if d := squaredL2(vec, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// nearest sorts by ascending distance, ties by ascending position, and keeps k.
func nearest(all []neighbor, k int) []neighbor {
	sort.Slice(all, func(i, j int) bool {
		if all[i].dist != all[j].dist {
			return all[i].dist < all[j].dist
		}
		return all[i].pos < all[j].pos
	})
	if k < len(all) {
		all = all[:k]
	}
	return all
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
