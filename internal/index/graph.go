package index

import (
	"context"
	"math"
	"runtime"
	"sort"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSimilarityThreshold = 0.3
	DefaultGraphNeighbors      = 5

	pagerankDamping   = 0.85
	pagerankMaxIter   = 100
	pagerankTolerance = 1e-6
)

// GraphConfig controls which semantic neighbours become edges.
type GraphConfig struct {
	// Threshold is the similarity an edge weight must strictly exceed.
	Threshold float64 `msgpack:"threshold"`
	// Neighbors is how many semantic neighbours each article is checked against.
	Neighbors int `msgpack:"neighbors"`
}

func (c GraphConfig) withDefaults() GraphConfig {
	if c.Neighbors <= 0 {
		c.Neighbors = DefaultGraphNeighbors
	}
	return c
}

// Edge is an undirected weighted edge between two handles.
type Edge struct {
	A      Handle  `msgpack:"a"`
	B      Handle  `msgpack:"b"`
	Weight float64 `msgpack:"w"`
}

// graph is an undirected weighted graph over every corpus position. Edges are
// kept in first-insertion order so a restored graph iterates identically.
type graph struct {
	adj   []map[Handle]float64
	edges []Edge
	slot  map[[2]Handle]int
}

func newGraph(n int) *graph {
	g := &graph{adj: make([]map[Handle]float64, n), slot: make(map[[2]Handle]int)}
	for i := range g.adj {
		g.adj[i] = make(map[Handle]float64)
	}
	return g
}

func edgeKey(a, b Handle) [2]Handle {
	if a > b {
		a, b = b, a
	}
	return [2]Handle{a, b}
}

// setEdge adds the edge or overwrites the weight of an existing one.
func (g *graph) setEdge(a, b Handle, w float64) {
	g.adj[a][b] = w
	g.adj[b][a] = w
	key := edgeKey(a, b)
	if i, ok := g.slot[key]; ok {
		g.edges[i].Weight = w
		return
	}
	g.slot[key] = len(g.edges)
	g.edges = append(g.edges, Edge{A: a, B: b, Weight: w})
}

func (g *graph) size() int { return len(g.adj) }

// buildGraph connects every article to those of its top semantic neighbours
// scoring above the threshold. Neighbour lists are computed concurrently but
// applied in corpus order, so a later article's score for a pair overwrites
// the earlier one.
func buildGraph(ctx context.Context, sem *semanticIndex, cfg GraphConfig) (*graph, error) {
	cfg = cfg.withDefaults()
	n := sem.size()
	found := make([]Matches, n)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found[i] = sem.query(Handle(i), cfg.Neighbors)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g := newGraph(n)
	for i, matches := range found {
		for _, m := range matches {
			if m.Score > cfg.Threshold {
				g.setEdge(Handle(i), m.Handle, m.Score)
			}
		}
	}
	return g, nil
}

func restoreGraph(n int, edges []Edge) *graph {
	g := newGraph(n)
	for _, e := range edges {
		g.setEdge(e.A, e.B, e.Weight)
	}
	return g
}

// neighbors returns up to k adjacent handles by descending weight, ties by
// ascending handle.
func (g *graph) neighbors(h Handle, k int) Matches {
	if !h.valid(len(g.adj)) {
		return nil
	}
	out := make(Matches, 0, len(g.adj[h]))
	for other, w := range g.adj[h] {
		out = append(out, Match{Handle: other, Score: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Handle < out[j].Handle
	})
	if k < len(out) {
		out = out[:k]
	}
	return out
}

// pagerank is weighted PageRank over the graph with each undirected edge
// walked in both directions. Mass on nodes without edges is spread
// uniformly, so an edgeless graph scores every node 1/N. If the iteration
// does not converge the last iterate is returned.
func (g *graph) pagerank() map[Handle]float64 {
	n := len(g.adj)
	if n == 0 {
		return map[Handle]float64{}
	}
	nf := float64(n)

	outWeight := make([]float64, n)
	for i, nbrs := range g.adj {
		for _, w := range nbrs {
			outWeight[i] += w
		}
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = 1 / nf
	}

	converged := false
	var delta float64
	for iter := 0; iter < pagerankMaxIter; iter++ {
		var dangling float64
		for i := range x {
			if outWeight[i] == 0 {
				dangling += x[i]
			}
		}

		next := make([]float64, n)
		for i, nbrs := range g.adj {
			if outWeight[i] == 0 {
				continue
			}
			share := pagerankDamping * x[i] / outWeight[i]
			for j, w := range nbrs {
				next[j] += share * w
			}
		}
		base := (1-pagerankDamping)/nf + pagerankDamping*dangling/nf
		delta = 0
		for i := range next {
			next[i] += base
			delta += math.Abs(next[i] - x[i])
		}
		x = next
		if delta < nf*pagerankTolerance {
			converged = true
			break
		}
	}
	if !converged {
		log.Warn("pagerank did not converge", "iterations", pagerankMaxIter, "delta", delta)
	}

	scores := make(map[Handle]float64, n)
	for i, v := range x {
		scores[Handle(i)] = v
	}
	return scores
}
