package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ANNSuffix is appended to the snapshot path to name the ANN artifact.
const ANNSuffix = ".ann"

const snapshotFormatVersion = 1

type snapshotFile struct {
	FormatVersion int            `msgpack:"format_version"`
	Generation    string         `msgpack:"generation"`
	BuiltAt       time.Time      `msgpack:"built_at"`
	Settings      Settings       `msgpack:"settings"`
	Corpus        []Article      `msgpack:"corpus"`
	Embeddings    [][]float32    `msgpack:"embeddings"`
	Vectorizer    *Vectorizer    `msgpack:"vectorizer"`
	Rows          []SparseVector `msgpack:"rows"`
	Edges         []Edge         `msgpack:"edges"`
}

type annFile struct {
	FormatVersion int         `msgpack:"format_version"`
	Generation    string      `msgpack:"generation"`
	Kind          ANNKind     `msgpack:"kind"`
	Count         int         `msgpack:"count"`
	Dimensions    int         `msgpack:"dimensions"`
	NProbe        int         `msgpack:"nprobe,omitempty"`
	Centroids     [][]float32 `msgpack:"centroids,omitempty"`
	Lists         [][]int32   `msgpack:"lists,omitempty"`
}

// Save writes the snapshot blob to path and the ANN structure to
// path+ANNSuffix. Each file is replaced atomically.
func Save(path string, snap *Snapshot) error {
	gen := snap.generation.String()
	blob := snapshotFile{
		FormatVersion: snapshotFormatVersion,
		Generation:    gen,
		BuiltAt:       snap.builtAt,
		Settings:      snap.settings,
		Corpus:        snap.corpus,
		Embeddings:    snap.semantic.embeddings,
		Vectorizer:    snap.keyword.vectorizer,
		Rows:          snap.keyword.rows,
		Edges:         snap.graph.edges,
	}
	if err := writeMsgpackAtomic(path, blob); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	ann := annFile{
		FormatVersion: snapshotFormatVersion,
		Generation:    gen,
		Kind:          snap.semantic.ann.kind(),
		Count:         snap.semantic.size(),
		Dimensions:    snap.semantic.dimensions(),
	}
	if ivf, ok := snap.semantic.ann.(*ivfIndex); ok {
		ann.NProbe = ivf.nprobe
		ann.Centroids = ivf.centroids
		ann.Lists = ivf.lists
	}
	if err := writeMsgpackAtomic(path+ANNSuffix, ann); err != nil {
		return fmt.Errorf("writing ann artifact: %w", err)
	}
	return nil
}

func writeMsgpackAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := msgpack.NewEncoder(tmp).Encode(v); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func decodeMsgpackFile(path string, dst any) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return msgpack.NewDecoder(file).Decode(dst)
}

// Load restores a snapshot written by Save. A missing or unusable ANN
// artifact is not fatal: the structure is rebuilt from the stored
// embeddings.
func Load(ctx context.Context, path string) (*Snapshot, error) {
	var blob snapshotFile
	if err := decodeMsgpackFile(path, &blob); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSnapshotLoad, path, err)
	}
	if blob.FormatVersion != snapshotFormatVersion {
		return nil, fmt.Errorf("%w: %s: format version %d, want %d", ErrSnapshotLoad, path, blob.FormatVersion, snapshotFormatVersion)
	}
	gen, err := uuid.Parse(blob.Generation)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: generation: %w", ErrSnapshotLoad, path, err)
	}
	n := len(blob.Corpus)
	if len(blob.Embeddings) != n || len(blob.Rows) != n {
		return nil, fmt.Errorf("%w: %s: %d articles, %d embeddings, %d tf-idf rows", ErrSnapshotLoad, path, n, len(blob.Embeddings), len(blob.Rows))
	}
	if blob.Vectorizer == nil {
		return nil, fmt.Errorf("%w: %s: missing vectorizer", ErrSnapshotLoad, path)
	}
	if err := blob.check(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSnapshotLoad, path, err)
	}

	sem := &semanticIndex{embeddings: blob.Embeddings}
	sem.ann, err = loadANN(path+ANNSuffix, blob.Generation, blob.Embeddings)
	if err != nil {
		log.Warn("rebuilding ann structure from embeddings", "path", path+ANNSuffix, "err", err)
		if sem.ann, err = buildANN(ctx, blob.Embeddings, blob.Settings.ANN); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSnapshotLoad, path, err)
		}
	}

	kw := newKeywordIndex(blob.Vectorizer, blob.Rows)
	g := restoreGraph(n, blob.Edges)
	return assemble(gen, blob.BuiltAt, blob.Settings, blob.Corpus, sem, kw, g), nil
}

// check verifies that every stored structure refers only to the corpus,
// vocabulary and dimension the blob itself declares.
func (f *snapshotFile) check() error {
	n := len(f.Corpus)
	dim := 0
	if n > 0 {
		dim = len(f.Embeddings[0])
	}
	for i, vec := range f.Embeddings {
		if len(vec) != dim {
			return fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(vec), dim)
		}
	}

	vocab := len(f.Vectorizer.Vocabulary)
	if len(f.Vectorizer.IDF) != vocab {
		return fmt.Errorf("%d idf weights for %d terms", len(f.Vectorizer.IDF), vocab)
	}
	for i, row := range f.Rows {
		if len(row.Values) != len(row.Indices) {
			return fmt.Errorf("tf-idf row %d has %d indices and %d values", i, len(row.Indices), len(row.Values))
		}
		for _, term := range row.Indices {
			if term < 0 || int(term) >= vocab {
				return fmt.Errorf("tf-idf row %d refers to term %d of %d", i, term, vocab)
			}
		}
	}

	for _, e := range f.Edges {
		if !e.A.valid(n) || !e.B.valid(n) {
			return fmt.Errorf("edge %d-%d outside corpus", e.A, e.B)
		}
	}
	return nil
}

func loadANN(path, generation string, vectors [][]float32) (annIndex, error) {
	var ann annFile
	if err := decodeMsgpackFile(path, &ann); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrANNArtifact, err)
	}
	if ann.Generation != generation {
		return nil, fmt.Errorf("%w: generation %s does not match snapshot %s", ErrANNArtifact, ann.Generation, generation)
	}
	if ann.Count != len(vectors) {
		return nil, fmt.Errorf("%w: %d vectors indexed, snapshot has %d", ErrANNArtifact, ann.Count, len(vectors))
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	if ann.Dimensions != dim {
		return nil, fmt.Errorf("%w: %d dimensions, snapshot has %d", ErrANNArtifact, ann.Dimensions, dim)
	}

	switch ann.Kind {
	case ANNExact:
		return &flatIndex{vectors: vectors}, nil
	case ANNApproximate:
		if len(ann.Centroids) == 0 || len(ann.Lists) != len(ann.Centroids) {
			return nil, fmt.Errorf("%w: %d centroids, %d lists", ErrANNArtifact, len(ann.Centroids), len(ann.Lists))
		}
		for i, c := range ann.Centroids {
			if len(c) != dim {
				return nil, fmt.Errorf("%w: centroid %d has %d dimensions, want %d", ErrANNArtifact, i, len(c), dim)
			}
		}
		total := 0
		for _, list := range ann.Lists {
			for _, id := range list {
				if int(id) < 0 || int(id) >= len(vectors) {
					return nil, fmt.Errorf("%w: list entry %d outside corpus", ErrANNArtifact, id)
				}
			}
			total += len(list)
		}
		if total != len(vectors) {
			return nil, fmt.Errorf("%w: lists hold %d vectors, snapshot has %d", ErrANNArtifact, total, len(vectors))
		}
		return &ivfIndex{vectors: vectors, centroids: ann.Centroids, lists: ann.Lists, nprobe: max(ann.NProbe, 1)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrANNArtifact, ann.Kind)
	}
}
