package index

import "errors"

var (
	// ErrEmbedding marks failures of the embedding provider, including
	// vectors of inconsistent dimensionality. Fatal to a rebuild.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndexBuild wraps every error that aborts a rebuild.
	ErrIndexBuild = errors.New("index build failed")

	// ErrInvalidQuery is returned for a handle outside [0, N).
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidWeight is returned for a hybrid weight outside [0, 1].
	ErrInvalidWeight = errors.New("semantic weight must be in [0, 1]")

	// ErrSnapshotLoad is returned when the snapshot blob cannot be restored.
	ErrSnapshotLoad = errors.New("snapshot load failed")

	// ErrANNArtifact marks a missing or unreadable ANN artifact. Load recovers
	// from it by rebuilding the nearest-neighbour structure from embeddings.
	ErrANNArtifact = errors.New("ann artifact unavailable")
)
