package index

import (
	"context"
	"fmt"
)

// Embedder turns texts into fixed-length vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type semanticIndex struct {
	embeddings [][]float32
	ann        annIndex
}

func buildSemantic(ctx context.Context, texts []string, embedder Embedder, cfg ANNConfig) (*semanticIndex, error) {
	if len(texts) == 0 {
		return &semanticIndex{ann: &flatIndex{}}, nil
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", ErrIndexBuild)
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrIndexBuild, ErrEmbedding, err)
	}
	if err := checkDimensions(vectors, len(texts)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexBuild, err)
	}

	ann, err := buildANN(ctx, vectors, cfg)
	if err != nil {
		return nil, err
	}
	return &semanticIndex{embeddings: vectors, ann: ann}, nil
}

func checkDimensions(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), want)
	}
	dim := len(vectors[0])
	if dim == 0 {
		return fmt.Errorf("%w: empty vector for position 0", ErrEmbedding)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrEmbedding, i, len(v), dim)
		}
	}
	return nil
}

func (s *semanticIndex) size() int {
	return len(s.embeddings)
}

func (s *semanticIndex) dimensions() int {
	if len(s.embeddings) == 0 {
		return 0
	}
	return len(s.embeddings[0])
}

// query asks for one extra neighbour so the query article can be dropped
// from its own result list.
func (s *semanticIndex) query(h Handle, k int) Matches {
	found := s.ann.search(s.embeddings[h], k+1)
	out := make(Matches, 0, k)
	for _, n := range found {
		if n.pos == int(h) {
			continue
		}
		out = append(out, Match{Handle: Handle(n.pos), Score: 1 / (1 + n.dist)})
		if len(out) >= k {
			break
		}
	}
	return out
}
