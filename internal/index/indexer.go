package index

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Indexer owns the current snapshot. Readers take it with Snapshot and
// never see a partial rebuild; rebuilds are serialised and publish only on
// success.
type Indexer struct {
	embedder Embedder
	settings Settings

	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewIndexer starts from an empty snapshot.
func NewIndexer(embedder Embedder, settings Settings) *Indexer {
	ix := &Indexer{embedder: embedder, settings: settings}
	ix.current.Store(emptySnapshot(settings))
	return ix
}

func emptySnapshot(settings Settings) *Snapshot {
	return assemble(uuid.Nil, time.Time{}, settings, nil,
		&semanticIndex{ann: &flatIndex{}},
		buildKeyword(nil, settings.Vectorizer),
		newGraph(0))
}

// Snapshot returns the latest published snapshot.
func (ix *Indexer) Snapshot() *Snapshot {
	return ix.current.Load()
}

// Restore publishes a snapshot obtained elsewhere, typically from Load.
func (ix *Indexer) Restore(snap *Snapshot) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.current.Store(snap)
}

// Rebuild indexes corpus from scratch and publishes the result. On error the
// previous snapshot stays current.
func (ix *Indexer) Rebuild(ctx context.Context, corpus []Article) (*Snapshot, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.rebuild(ctx, corpus)
}

// AddArticles appends articles to the current corpus and rebuilds every
// structure from the full corpus.
func (ix *Indexer) AddArticles(ctx context.Context, articles ...Article) (*Snapshot, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	corpus := append(ix.current.Load().Articles(), articles...)
	return ix.rebuild(ctx, corpus)
}

func (ix *Indexer) rebuild(ctx context.Context, corpus []Article) (*Snapshot, error) {
	snap, err := Build(ctx, corpus, ix.embedder, ix.settings)
	if err != nil {
		return nil, err
	}
	ix.current.Store(snap)
	return snap, nil
}
