// Package pipeline runs a full index rebuild over the article store and
// writes the results back.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/TobiSchelling/NewsLinker/internal/cluster"
	"github.com/TobiSchelling/NewsLinker/internal/config"
	"github.com/TobiSchelling/NewsLinker/internal/database"
	"github.com/TobiSchelling/NewsLinker/internal/index"
)

// Store is an article source that accepts index results. Both the SQLite
// database and the Postgres store satisfy it.
type Store interface {
	LoadCorpus(ctx context.Context) ([]index.Article, error)
	ReplaceLinks(ctx context.Context, links []database.Link) error
	ReplaceImportance(ctx context.Context, scores map[int64]float64) error
	ReplaceClusters(ctx context.Context, clusters []database.Cluster) error
}

// RunRecorder is implemented by stores that keep a history of rebuilds.
type RunRecorder interface {
	InsertIndexRun(ctx context.Context, run database.IndexRun) (int64, error)
}

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Generation string
	Steps      []StepResult
}

// Failed reports whether any step returned an error.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// Pipeline orchestrates the rebuild: load, index, link, rank, cluster and
// snapshot.
type Pipeline struct {
	cfg     *config.Config
	store   Store
	indexer *index.Indexer

	corpus       []index.Article
	snap         *index.Snapshot
	clusterCount int
}

// New creates a pipeline that embeds with embedder.
func New(cfg *config.Config, store Store, embedder index.Embedder) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		indexer: index.NewIndexer(embedder, Settings(cfg)),
	}
}

// Settings maps the index section of the config onto rebuild settings.
func Settings(cfg *config.Config) index.Settings {
	s := index.DefaultSettings()
	ic := cfg.Index
	if ic.TitleWeight > 0 {
		s.TitleWeight = ic.TitleWeight
	}
	if ic.ExactSearchLimit > 0 {
		s.ANN.ExactSearchLimit = ic.ExactSearchLimit
	}
	if ic.MaxLists > 0 {
		s.ANN.MaxLists = ic.MaxLists
	}
	if ic.NProbe > 0 {
		s.ANN.NProbe = ic.NProbe
	}
	s.Graph.Threshold = ic.SimilarityThreshold
	if ic.GraphNeighbors > 0 {
		s.Graph.Neighbors = ic.GraphNeighbors
	}
	return s
}

// Partitioner picks the clustering algorithm the config asks for and a name
// to record it under: Ward when a threshold is set, k-means for a fixed
// cluster count, DBSCAN otherwise.
func Partitioner(c config.Clustering) (index.Partitioner, string) {
	switch {
	case c.WardThreshold > 0:
		return index.Ward{Threshold: c.WardThreshold}, "ward"
	case c.NClusters > 0:
		return index.KMeans{K: c.NClusters, Seed: c.Seed}, "kmeans"
	default:
		return index.DBSCAN{Eps: c.Eps, MinSamples: c.MinSamples}, "dbscan"
	}
}

// Run executes every step. Load and Index failures stop the run; later
// steps are independent of each other.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}

	// Step 1: Load
	step := p.runLoad(ctx)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	// Step 2: Index
	step = p.runIndex(ctx)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}
	r.Generation = p.snap.Generation().String()

	// Step 3: Link
	r.Steps = append(r.Steps, p.runLink(ctx))

	// Step 4: Rank
	r.Steps = append(r.Steps, p.runRank(ctx))

	// Step 5: Cluster
	r.Steps = append(r.Steps, p.runCluster(ctx))

	// Step 6: Snapshot
	r.Steps = append(r.Steps, p.runSnapshot(ctx))

	return r
}

// DryRun shows what would be done without embedding or writing anything.
func (p *Pipeline) DryRun(ctx context.Context) *Result {
	r := &Result{}

	corpus, err := p.store.LoadCorpus(ctx)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Load", Err: err})
		return r
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Load",
		Summary: fmt.Sprintf("[dry-run] %d articles in the store", len(corpus)),
	})

	settings := Settings(p.cfg)
	kind := index.ANNExact
	if len(corpus) >= settings.ANN.ExactSearchLimit {
		kind = index.ANNApproximate
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Index",
		Summary: fmt.Sprintf("[dry-run] Would embed %d articles (%s search)", len(corpus), kind),
	})

	r.Steps = append(r.Steps, StepResult{
		Name:    "Link",
		Summary: fmt.Sprintf("[dry-run] Would store up to %d %s links per article", p.cfg.Index.LinkCount, p.cfg.Index.LinkMethod),
	})
	r.Steps = append(r.Steps, StepResult{
		Name:    "Rank",
		Summary: fmt.Sprintf("[dry-run] Would rank %d articles by importance", len(corpus)),
	})

	_, name := Partitioner(p.cfg.Clustering)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Cluster",
		Summary: fmt.Sprintf("[dry-run] Would cluster with %s over %s features", name, p.cfg.Clustering.Method),
	})
	r.Steps = append(r.Steps, StepResult{
		Name:    "Snapshot",
		Summary: fmt.Sprintf("[dry-run] Would save snapshot to %s", p.cfg.SnapshotPath()),
	})

	return r
}

// Snapshot returns the snapshot built by the last Run, or nil.
func (p *Pipeline) Snapshot() *index.Snapshot {
	return p.snap
}

func (p *Pipeline) runLoad(ctx context.Context) StepResult {
	log.Info("Step 1/6: loading articles")
	corpus, err := p.store.LoadCorpus(ctx)
	if err != nil {
		return StepResult{Name: "Load", Err: err}
	}
	p.corpus = corpus
	return StepResult{
		Name:    "Load",
		Summary: fmt.Sprintf("Loaded %d articles", len(corpus)),
	}
}

func (p *Pipeline) runIndex(ctx context.Context) StepResult {
	log.Info("Step 2/6: building indexes")
	snap, err := p.indexer.Rebuild(ctx, p.corpus)
	if err != nil {
		return StepResult{Name: "Index", Err: err}
	}
	p.snap = snap
	return StepResult{
		Name: "Index",
		Summary: fmt.Sprintf("Indexed %d articles: %d dimensions (%s), %d terms, %d graph edges",
			snap.Len(), snap.Dimensions(), snap.ANNKind(), snap.VocabularySize(), snap.EdgeCount()),
	}
}

func (p *Pipeline) runLink(ctx context.Context) StepResult {
	log.Info("Step 3/6: linking related articles")
	method, err := index.ParseMethod(p.cfg.Index.LinkMethod)
	if err != nil {
		return StepResult{Name: "Link", Err: err}
	}
	links, err := Links(p.snap, method, p.cfg.Index.LinkCount, p.cfg.Index.SemanticWeight)
	if err != nil {
		return StepResult{Name: "Link", Err: err}
	}
	if err := p.store.ReplaceLinks(ctx, links); err != nil {
		return StepResult{Name: "Link", Err: fmt.Errorf("storing links: %w", err)}
	}
	return StepResult{
		Name:    "Link",
		Summary: fmt.Sprintf("Stored %d %s links", len(links), method),
	}
}

// Links returns up to k related articles per article, ranked from 1.
func Links(snap *index.Snapshot, method index.Method, k int, semanticWeight float64) ([]database.Link, error) {
	articles := snap.Articles()
	var links []database.Link
	for h, a := range articles {
		matches, err := snap.Related(method, index.Handle(h), k, semanticWeight)
		if err != nil {
			return nil, fmt.Errorf("article %d: %w", a.ID, err)
		}
		for i, m := range matches {
			links = append(links, database.Link{
				ArticleID: a.ID,
				Rank:      i + 1,
				LinkedID:  articles[m.Handle].ID,
				Score:     m.Score,
				Method:    string(method),
			})
		}
	}
	return links, nil
}

func (p *Pipeline) runRank(ctx context.Context) StepResult {
	log.Info("Step 4/6: ranking importance")
	scores := make(map[int64]float64, p.snap.Len())
	articles := p.snap.Articles()
	for h, score := range p.snap.ImportanceScores() {
		scores[articles[h].ID] = score
	}
	if err := p.store.ReplaceImportance(ctx, scores); err != nil {
		return StepResult{Name: "Rank", Err: fmt.Errorf("storing importance: %w", err)}
	}
	return StepResult{
		Name:    "Rank",
		Summary: fmt.Sprintf("Ranked %d articles", len(scores)),
	}
}

func (p *Pipeline) runCluster(ctx context.Context) StepResult {
	log.Info("Step 5/6: detecting clusters")
	space, err := index.ParseFeatureSpace(p.cfg.Clustering.Method)
	if err != nil {
		return StepResult{Name: "Cluster", Err: err}
	}
	partitioner, name := Partitioner(p.cfg.Clustering)
	assignment := p.snap.Partition(space, partitioner)
	clusters := cluster.Summarize(p.snap, assignment, name+"/"+space.String(), p.cfg.Clustering.PrioritySlots)
	if err := p.store.ReplaceClusters(ctx, clusters); err != nil {
		return StepResult{Name: "Cluster", Err: fmt.Errorf("storing clusters: %w", err)}
	}
	p.clusterCount = len(clusters)

	noise := len(assignment[index.NoiseLabel])
	return StepResult{
		Name:    "Cluster",
		Summary: fmt.Sprintf("Stored %d clusters (%s, %d unclustered)", len(clusters), name, noise),
	}
}

func (p *Pipeline) runSnapshot(ctx context.Context) StepResult {
	log.Info("Step 6/6: saving snapshot")
	path := p.cfg.SnapshotPath()
	start := time.Now()
	if err := index.Save(path, p.snap); err != nil {
		return StepResult{Name: "Snapshot", Err: err}
	}
	log.Debug("snapshot saved", "path", path, "elapsed", time.Since(start).Round(time.Millisecond))

	if rec, ok := p.store.(RunRecorder); ok {
		_, err := rec.InsertIndexRun(ctx, database.IndexRun{
			Generation:   p.snap.Generation().String(),
			ArticleCount: p.snap.Len(),
			EdgeCount:    p.snap.EdgeCount(),
			ClusterCount: p.clusterCount,
			SnapshotPath: &path,
		})
		if err != nil {
			return StepResult{Name: "Snapshot", Err: fmt.Errorf("recording index run: %w", err)}
		}
	}
	return StepResult{
		Name:    "Snapshot",
		Summary: fmt.Sprintf("Saved generation %s to %s", p.snap.Generation(), path),
	}
}
