package index

import "math"

// labels runs Ward agglomeration and stops before the first merge whose
// distance exceeds the threshold. Ward merge distances never decrease, so
// this is the same partition as cutting the full dendrogram there.
func (w Ward) labels(points [][]float64) []int {
	n := len(points)
	threshold := w.Threshold
	if threshold <= 0 {
		threshold = DefaultWardThreshold
	}

	// Squared Euclidean distances between active clusters, indexed by the
	// slot of each cluster's lowest-numbered original point.
	d := make([][]float64, n)
	for i := range d {
		d[i] = make([]float64, n)
		for j := 0; j < i; j++ {
			d[i][j] = squaredDistance(points[i], points[j])
			d[j][i] = d[i][j]
		}
	}

	size := make([]int, n)
	owner := make([]int, n)
	active := make([]bool, n)
	for i := range size {
		size[i] = 1
		owner[i] = i
		active[i] = true
	}

	for step := 0; step < n-1; step++ {
		minDist := math.MaxFloat64
		var a, b int
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && d[i][j] < minDist {
					minDist, a, b = d[i][j], i, j
				}
			}
		}
		// Threshold is on the Euclidean merge distance, not its square.
		if math.Sqrt(minDist) > threshold {
			break
		}

		// Lance-Williams update for Ward:
		// d(ab, k) = ((n_k+n_a) d(a,k) + (n_k+n_b) d(b,k) - n_k d(a,b)) / (n_k+n_a+n_b)
		na, nb := float64(size[a]), float64(size[b])
		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			nk := float64(size[k])
			merged := ((nk+na)*d[a][k] + (nk+nb)*d[b][k] - nk*minDist) / (nk + na + nb)
			d[a][k], d[k][a] = merged, merged
		}
		size[a] += size[b]
		active[b] = false
		for i := range owner {
			if owner[i] == b {
				owner[i] = a
			}
		}
	}

	labels := make([]int, n)
	remap := make(map[int]int)
	for i, slot := range owner {
		if _, ok := remap[slot]; !ok {
			remap[slot] = len(remap)
		}
		labels[i] = remap[slot]
	}
	return labels
}
