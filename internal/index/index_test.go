package index

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashEmbedder is a bag-of-words embedder: every token bumps one of dim
// buckets, so identical texts embed identically and disjoint texts land far
// apart.
type hashEmbedder struct {
	dim   int
	calls int
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.calls++
	dim := h.dim
	if dim == 0 {
		dim = 256
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dim)
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			f := fnv.New32a()
			f.Write([]byte(tok))
			vec[f.Sum32()%uint32(dim)]++
		}
		out[i] = vec
	}
	return out, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider unreachable")
}

type raggedEmbedder struct{}

func (raggedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, 3+i)
	}
	return out, nil
}

// fourArticles is A and B sharing identical text, with C and D unrelated.
func fourArticles() []Article {
	return []Article{
		{ID: 11, Title: "Flooding closes river bridge", LocationMention: "Riverside", OfficialsInvolved: "Mayor Lee", RelevanceCategory: "infrastructure"},
		{ID: 12, Title: "Flooding closes river bridge", LocationMention: "Riverside", OfficialsInvolved: "Mayor Lee", RelevanceCategory: "infrastructure"},
		{ID: 13, Title: "School board approves budget", LocationMention: "Northtown", OfficialsInvolved: "Superintendent Diaz", RelevanceCategory: "education"},
		{ID: 14, Title: "Hospital opens cardiac wing", LocationMention: "Eastgate", OfficialsInvolved: "Dr Patel", RelevanceCategory: "health"},
	}
}

func buildFour(t *testing.T, settings Settings) *Snapshot {
	t.Helper()
	snap, err := Build(context.Background(), fourArticles(), &hashEmbedder{}, settings)
	require.NoError(t, err)
	return snap
}

func TestBlobRepeatsTitle(t *testing.T) {
	a := Article{Title: "Title", LocationMention: "Loc", OfficialsInvolved: "Off", RelevanceCategory: "Cat"}
	assert.Equal(t, "Title Title Loc Off Cat", Blob(a, 2))
	assert.Equal(t, "Title Title Title Loc Off Cat", Blob(a, 3))
	assert.Equal(t, "Title Title Loc Off Cat", Blob(a, 0), "non-positive weight falls back to the default")
}

func TestIdenticalArticlesAreNearestNeighbours(t *testing.T) {
	snap := buildFour(t, DefaultSettings())
	require.Equal(t, 4, snap.Len())
	assert.Equal(t, ANNExact, snap.ANNKind())

	sem, err := snap.QuerySemantic(0, 1)
	require.NoError(t, err)
	require.Len(t, sem, 1)
	assert.Equal(t, Handle(1), sem[0].Handle)
	assert.InDelta(t, 1.0, sem[0].Score, 1e-9)

	kw, err := snap.QueryKeyword(0, 3)
	require.NoError(t, err)
	require.NotEmpty(t, kw)
	assert.Equal(t, Handle(1), kw[0].Handle)
	assert.InDelta(t, 1.0, kw[0].Score, 1e-9)
	for _, m := range kw {
		assert.NotEqual(t, Handle(0), m.Handle, "query article must not match itself")
	}
}

func TestSemanticQueryExcludesSelfAndOrders(t *testing.T) {
	snap := buildFour(t, DefaultSettings())
	for h := Handle(0); h < 4; h++ {
		got, err := snap.QuerySemantic(h, 10)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, m := range got {
			assert.NotEqual(t, h, m.Handle)
			if i > 0 {
				assert.GreaterOrEqual(t, got[i-1].Score, m.Score)
			}
		}
	}
}

func TestGraphConnectsOnlyTheIdenticalPair(t *testing.T) {
	snap := buildFour(t, DefaultSettings())
	assert.Equal(t, 1, snap.EdgeCount())

	nbrs := snap.QueryGraphNeighbors(0, 5)
	require.Len(t, nbrs, 1)
	assert.Equal(t, Handle(1), nbrs[0].Handle)

	assert.Empty(t, snap.QueryGraphNeighbors(2, 5))
	assert.Empty(t, snap.QueryGraphNeighbors(3, 5))
	assert.Empty(t, snap.QueryGraphNeighbors(99, 5), "unknown handles have no neighbours")
}

func TestImportanceFavoursConnectedArticles(t *testing.T) {
	snap := buildFour(t, DefaultSettings())
	scores := snap.ImportanceScores()
	require.Len(t, scores, 4)

	var sum float64
	for _, s := range scores {
		sum += s
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.InDelta(t, scores[0], scores[1], 1e-9)
	assert.Greater(t, scores[0], scores[2])
	assert.InDelta(t, scores[2], scores[3], 1e-9)
}

func TestTopImportance(t *testing.T) {
	snap := buildFour(t, DefaultSettings())

	top := snap.TopImportance(2)
	require.Len(t, top, 2)
	assert.ElementsMatch(t, []Handle{0, 1}, top.Handles())
	assert.GreaterOrEqual(t, top[0].Score, top[1].Score)

	assert.Len(t, snap.TopImportance(10), 4)
	assert.Empty(t, snap.TopImportance(0))
}

func TestUnreachableThresholdYieldsNoEdges(t *testing.T) {
	settings := DefaultSettings()
	settings.Graph.Threshold = 1.1
	snap := buildFour(t, settings)

	assert.Equal(t, 0, snap.EdgeCount())
	scores := snap.ImportanceScores()
	require.Len(t, scores, 4)
	for h, s := range scores {
		assert.InDelta(t, 0.25, s, 1e-9, "handle %d", h)
	}
}

func TestClustersNeverSplitIdenticalArticles(t *testing.T) {
	snap := buildFour(t, DefaultSettings())
	for _, space := range []FeatureSpace{TfIdfSpace, SemanticSpace} {
		clusters := snap.DetectClusters(space, 2)
		assert.LessOrEqual(t, len(clusters), 2, space.String())

		label := make(map[Handle]int)
		for l, members := range clusters {
			for _, h := range members {
				_, dup := label[h]
				assert.False(t, dup, "handle %d in two clusters", h)
				label[h] = l
			}
		}
		assert.Len(t, label, 4, space.String())
		assert.Equal(t, label[0], label[1], space.String())
	}
}

func TestDetectClustersWithoutCountUsesDBSCAN(t *testing.T) {
	snap := buildFour(t, DefaultSettings())
	clusters := snap.DetectClusters(SemanticSpace, 0)

	// A and B coincide; C and D are far from everything.
	require.Contains(t, clusters, 0)
	assert.Equal(t, []Handle{0, 1}, clusters[0])
	assert.Equal(t, []Handle{2, 3}, clusters[NoiseLabel])
}

func TestEmptyCorpus(t *testing.T) {
	embedder := &hashEmbedder{}
	snap, err := Build(context.Background(), nil, embedder, DefaultSettings())
	require.NoError(t, err)
	assert.Zero(t, embedder.calls, "no texts, no provider call")

	assert.Equal(t, 0, snap.Len())
	assert.Equal(t, 0, snap.Dimensions())

	sem, err := snap.QuerySemantic(0, 5)
	require.NoError(t, err)
	assert.Empty(t, sem)

	kw, err := snap.QueryKeyword(0, 5)
	require.NoError(t, err)
	assert.Empty(t, kw)

	hy, err := snap.QueryHybrid(0, 5, DefaultSemanticWeight)
	require.NoError(t, err)
	assert.Empty(t, hy)

	assert.Empty(t, snap.QueryGraphNeighbors(0, 5))
	assert.Empty(t, snap.QueryKeywordText("flooding", 5))
	assert.Empty(t, snap.ImportanceScores())
	assert.Empty(t, snap.DetectClusters(TfIdfSpace, 3))
	assert.Empty(t, snap.DetectClusters(SemanticSpace, 0))
}

func TestQueryValidation(t *testing.T) {
	snap := buildFour(t, DefaultSettings())

	_, err := snap.QuerySemantic(4, 1)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = snap.QueryKeyword(-1, 1)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = snap.QueryHybrid(7, 1, 0.5)
	assert.ErrorIs(t, err, ErrInvalidQuery)
	_, err = snap.Article(4)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	for _, w := range []float64{-0.1, 1.5, math.NaN()} {
		_, err = snap.QueryHybrid(0, 1, w)
		assert.ErrorIs(t, err, ErrInvalidWeight, "weight %v", w)
	}
}

func TestHybridWithFullSemanticWeightFollowsSemantic(t *testing.T) {
	snap := buildFour(t, DefaultSettings())
	for h := Handle(0); h < 4; h++ {
		sem, err := snap.QuerySemantic(h, 2)
		require.NoError(t, err)
		hy, err := snap.QueryHybrid(h, 2, 1)
		require.NoError(t, err)
		assert.Equal(t, sem.Handles(), hy.Handles(), "handle %d", h)
	}
}

func TestHybridFusesBothSides(t *testing.T) {
	got := fuse(
		Matches{{Handle: 1, Score: 0.9}, {Handle: 2, Score: 0.5}},
		Matches{{Handle: 3, Score: 1.0}, {Handle: 1, Score: 0.2}},
		0.5, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []Handle{1, 3, 2}, got.Handles())
	assert.InDelta(t, 0.55, got[0].Score, 1e-12)
	assert.InDelta(t, 0.5, got[1].Score, 1e-12)
	assert.InDelta(t, 0.25, got[2].Score, 1e-12)
}

func TestKeywordTextQuery(t *testing.T) {
	snap := buildFour(t, DefaultSettings())

	got := snap.QueryKeywordText("hospital cardiac", 5)
	require.Len(t, got, 1)
	assert.Equal(t, Handle(3), got[0].Handle)

	assert.Empty(t, snap.QueryKeywordText("completely unseen words", 5))
}

func TestVectorizerDropsStopWordsAndAddsBigrams(t *testing.T) {
	assert.Equal(t,
		[]string{"mayor", "opens", "bridge", "mayor opens", "opens bridge"},
		terms("The mayor opens the bridge"))
	assert.Empty(t, terms("a I of"))
}

func TestVocabularyCapKeepsMostFrequentTerms(t *testing.T) {
	kw := buildKeyword([]string{"alpha alpha beta", "alpha gamma", "delta"}, VectorizerConfig{MaxFeatures: 2, MaxDF: 1})
	assert.Equal(t, []string{"alpha", "alpha alpha"}, kw.vectorizer.Vocabulary)
}

func TestMaxDFFallsBackWhenEveryTermIsCommon(t *testing.T) {
	kw := buildKeyword([]string{"storm", "storm"}, VectorizerConfig{})
	assert.Equal(t, []string{"storm"}, kw.vectorizer.Vocabulary)
}

func TestEmbeddingFailureAbortsBuild(t *testing.T) {
	_, err := Build(context.Background(), fourArticles(), failingEmbedder{}, DefaultSettings())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIndexBuild)
	assert.ErrorIs(t, err, ErrEmbedding)

	_, err = Build(context.Background(), fourArticles(), raggedEmbedder{}, DefaultSettings())
	assert.ErrorIs(t, err, ErrEmbedding)

	_, err = Build(context.Background(), fourArticles(), nil, DefaultSettings())
	assert.ErrorIs(t, err, ErrIndexBuild)
}

func TestRelatedDispatch(t *testing.T) {
	snap := buildFour(t, DefaultSettings())
	for _, name := range []string{"semantic", "keyword", "hybrid", "graph"} {
		m, err := ParseMethod(name)
		require.NoError(t, err)
		got, err := snap.Related(m, 0, 1, DefaultSemanticWeight)
		require.NoError(t, err)
		require.Len(t, got, 1, name)
		assert.Equal(t, Handle(1), got[0].Handle, name)
	}
	_, err := ParseMethod("pagerank")
	assert.Error(t, err)
}

func TestHandleOf(t *testing.T) {
	snap := buildFour(t, DefaultSettings())
	h, ok := snap.HandleOf(13)
	require.True(t, ok)
	assert.Equal(t, Handle(2), h)
	_, ok = snap.HandleOf(99)
	assert.False(t, ok)
}

func TestSetEdgeOverwritesReverseWeight(t *testing.T) {
	g := newGraph(3)
	g.setEdge(0, 1, 0.4)
	g.setEdge(1, 0, 0.9)
	g.setEdge(1, 2, 0.5)

	require.Len(t, g.edges, 2)
	assert.Equal(t, Edge{A: 0, B: 1, Weight: 0.9}, g.edges[0])
	assert.Equal(t, 0.9, g.adj[0][1])
	assert.Equal(t, 0.9, g.adj[1][0])
	assert.Equal(t, Matches{{Handle: 1, Score: 0.9}}, g.neighbors(0, 5))
	assert.Equal(t, Matches{{Handle: 0, Score: 0.9}, {Handle: 2, Score: 0.5}}, g.neighbors(1, 5))
}

func TestKeywordTiesKeepRowOrder(t *testing.T) {
	same := Article{Title: "Harbor cargo strike", LocationMention: "Portside", RelevanceCategory: "labor"}
	corpus := []Article{same, same, same, same,
		{Title: "Library renovation grant", LocationMention: "Oldtown", RelevanceCategory: "culture"}}
	for i := range corpus {
		corpus[i].ID = int64(i + 1)
	}
	snap, err := Build(context.Background(), corpus, &hashEmbedder{}, DefaultSettings())
	require.NoError(t, err)

	got, err := snap.QueryKeyword(2, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []Handle{0, 1, 3}, []Handle{got[0].Handle, got[1].Handle, got[2].Handle})
	assert.InDelta(t, got[0].Score, got[2].Score, 1e-12)

	got, err = snap.QueryKeyword(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []Handle{1, 2}, []Handle{got[0].Handle, got[1].Handle})
}
