package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Settings are every tunable of a rebuild. They are stored with the snapshot
// so a loaded snapshot answers queries the way it was built.
type Settings struct {
	TitleWeight int              `msgpack:"title_weight"`
	ANN         ANNConfig        `msgpack:"ann"`
	Vectorizer  VectorizerConfig `msgpack:"vectorizer"`
	Graph       GraphConfig      `msgpack:"graph"`
}

// DefaultSettings returns the standard rebuild parameters.
func DefaultSettings() Settings {
	return Settings{
		TitleWeight: DefaultTitleWeight,
		ANN: ANNConfig{
			ExactSearchLimit: DefaultExactSearchLimit,
			MaxLists:         DefaultMaxLists,
			NProbe:           DefaultNProbe,
		},
		Vectorizer: VectorizerConfig{
			MaxFeatures: DefaultMaxFeatures,
			MaxDF:       DefaultMaxDF,
			MinDF:       DefaultMinDF,
		},
		Graph: GraphConfig{
			Threshold: DefaultSimilarityThreshold,
			Neighbors: DefaultGraphNeighbors,
		},
	}
}

// Snapshot is one complete, immutable set of index structures over a
// corpus. All queries are read-only and safe for concurrent use.
type Snapshot struct {
	generation uuid.UUID
	builtAt    time.Time
	settings   Settings

	corpus   []Article
	byID     map[int64]Handle
	semantic *semanticIndex
	keyword  *keywordIndex
	graph    *graph
}

// Build runs every build step over the corpus and returns the finished
// snapshot. Any failure aborts the whole build.
func Build(ctx context.Context, corpus []Article, embedder Embedder, settings Settings) (*Snapshot, error) {
	start := time.Now()
	corpus = append([]Article(nil), corpus...)
	texts := blobs(corpus, settings.TitleWeight)

	sem, err := buildSemantic(ctx, texts, embedder, settings.ANN)
	if err != nil {
		return nil, err
	}
	log.Debug("semantic index built", "articles", sem.size(), "dimensions", sem.dimensions(), "ann", sem.ann.kind())

	kw := buildKeyword(texts, settings.Vectorizer)
	log.Debug("keyword index built", "vocabulary", len(kw.vectorizer.Vocabulary))

	g, err := buildGraph(ctx, sem, settings.Graph)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity graph: %w", ErrIndexBuild, err)
	}
	log.Debug("similarity graph built", "nodes", g.size(), "edges", len(g.edges))

	snap := assemble(uuid.New(), time.Now().UTC(), settings, corpus, sem, kw, g)
	log.Info("index built", "articles", len(corpus), "generation", snap.generation, "elapsed", time.Since(start).Round(time.Millisecond))
	return snap, nil
}

func assemble(gen uuid.UUID, builtAt time.Time, settings Settings, corpus []Article, sem *semanticIndex, kw *keywordIndex, g *graph) *Snapshot {
	byID := make(map[int64]Handle, len(corpus))
	for i, a := range corpus {
		byID[a.ID] = Handle(i)
	}
	return &Snapshot{
		generation: gen,
		builtAt:    builtAt,
		settings:   settings,
		corpus:     corpus,
		byID:       byID,
		semantic:   sem,
		keyword:    kw,
		graph:      g,
	}
}

// Generation identifies the build that produced the snapshot.
func (s *Snapshot) Generation() uuid.UUID { return s.generation }

// BuiltAt is when the build finished.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// Settings returns the parameters the snapshot was built with.
func (s *Snapshot) Settings() Settings { return s.settings }

// Len is the corpus size N.
func (s *Snapshot) Len() int { return len(s.corpus) }

// ANNKind reports which nearest-neighbour variant was selected.
func (s *Snapshot) ANNKind() ANNKind { return s.semantic.ann.kind() }

// Dimensions is the embedding dimensionality, 0 for an empty corpus.
func (s *Snapshot) Dimensions() int { return s.semantic.dimensions() }

// VocabularySize is the number of fitted TF-IDF features.
func (s *Snapshot) VocabularySize() int { return len(s.keyword.vectorizer.Vocabulary) }

// EdgeCount is the number of similarity graph edges.
func (s *Snapshot) EdgeCount() int { return len(s.graph.edges) }

// Article returns the record at h.
func (s *Snapshot) Article(h Handle) (Article, error) {
	if !h.valid(len(s.corpus)) {
		return Article{}, fmt.Errorf("%w: handle %d outside [0, %d)", ErrInvalidQuery, h, len(s.corpus))
	}
	return s.corpus[h], nil
}

// Articles returns a copy of the corpus in handle order.
func (s *Snapshot) Articles() []Article {
	return append([]Article(nil), s.corpus...)
}

// HandleOf finds the handle of an article ID in this snapshot.
func (s *Snapshot) HandleOf(id int64) (Handle, bool) {
	h, ok := s.byID[id]
	return h, ok
}

func (s *Snapshot) check(h Handle) error {
	if !h.valid(len(s.corpus)) {
		return fmt.Errorf("%w: handle %d outside [0, %d)", ErrInvalidQuery, h, len(s.corpus))
	}
	return nil
}

// QuerySemantic returns up to k nearest neighbours of h by embedding
// distance, excluding h, best first. An empty snapshot returns no matches.
func (s *Snapshot) QuerySemantic(h Handle, k int) (Matches, error) {
	if s.Len() == 0 || k <= 0 {
		return Matches{}, nil
	}
	if err := s.check(h); err != nil {
		return nil, err
	}
	return s.semantic.query(h, k), nil
}

// QueryKeyword returns up to k articles by TF-IDF cosine similarity to h,
// excluding h. Equal scores keep corpus order.
func (s *Snapshot) QueryKeyword(h Handle, k int) (Matches, error) {
	if s.Len() == 0 || k <= 0 {
		return Matches{}, nil
	}
	if err := s.check(h); err != nil {
		return nil, err
	}
	return s.keyword.query(h, k), nil
}

// QueryKeywordText scores an arbitrary text against the corpus with the
// fitted vectorizer. Articles sharing no vocabulary with the text are left
// out.
func (s *Snapshot) QueryKeywordText(text string, k int) Matches {
	if s.Len() == 0 || k <= 0 {
		return Matches{}
	}
	ranked := s.keyword.rank(s.keyword.vectorizer.Transform(text), -1, k)
	out := ranked[:0]
	for _, m := range ranked {
		if m.Score > 0 {
			out = append(out, m)
		}
	}
	return out
}

// QueryHybrid fuses 2k semantic and 2k keyword candidates by weighted score
// sum and returns the best k. semanticWeight must be in [0, 1].
func (s *Snapshot) QueryHybrid(h Handle, k int, semanticWeight float64) (Matches, error) {
	if !(semanticWeight >= 0 && semanticWeight <= 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidWeight, semanticWeight)
	}
	if s.Len() == 0 || k <= 0 {
		return Matches{}, nil
	}
	if err := s.check(h); err != nil {
		return nil, err
	}
	return fuse(s.semantic.query(h, 2*k), s.keyword.query(h, 2*k), semanticWeight, k), nil
}

// QueryGraphNeighbors returns up to k graph neighbours of h by descending
// edge weight. A handle with no edges, or outside the graph, has none.
func (s *Snapshot) QueryGraphNeighbors(h Handle, k int) Matches {
	if k <= 0 {
		return Matches{}
	}
	if out := s.graph.neighbors(h, k); out != nil {
		return out
	}
	return Matches{}
}

// ImportanceScores is the weighted PageRank of every graph node.
func (s *Snapshot) ImportanceScores() map[Handle]float64 {
	return s.graph.pagerank()
}

// TopImportance returns the k most important articles, ties by ascending
// handle.
func (s *Snapshot) TopImportance(k int) Matches {
	scores := s.graph.pagerank()
	out := make(Matches, 0, len(scores))
	for h, score := range scores {
		out = append(out, Match{Handle: h, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Handle < out[j].Handle
	})
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// DetectClusters partitions the corpus in the given feature space: k-means
// with nClusters clusters when nClusters > 0, DBSCAN with the default radius
// and density otherwise.
func (s *Snapshot) DetectClusters(space FeatureSpace, nClusters int) Clusters {
	if nClusters > 0 {
		return s.Partition(space, KMeans{K: nClusters, Seed: DefaultKMeansSeed})
	}
	return s.Partition(space, DBSCAN{Eps: DefaultDBSCANEps, MinSamples: DefaultDBSCANMinPts})
}

// Partition runs any partitioner over the feature space. Every handle lands
// in exactly one cluster.
func (s *Snapshot) Partition(space FeatureSpace, p Partitioner) Clusters {
	if s.Len() == 0 || space.features == nil {
		return Clusters{}
	}
	return groupLabels(p.labels(space.features(s)))
}
