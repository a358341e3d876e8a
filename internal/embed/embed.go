// Package embed turns article texts into vectors through a hosted embedding
// model. Every provider satisfies index.Embedder.
package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/NewsLinker/internal/index"
)

const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

// Provider is an embedding backend that can report whether it is usable.
type Provider interface {
	index.Embedder
	Name() string
	IsConfigured(ctx context.Context) bool
}

// Options selects and configures a provider.
type Options struct {
	Provider    string // "ollama" or "openai"
	Model       string // Ollama model
	OllamaURL   string
	OpenAIModel string
	OpenAIURL   string
	APIKeyEnv   string
	BatchSize   int
	Concurrency int
}

// CreateProvider returns the configured provider, falling back from Ollama
// to OpenAI when the Ollama model is not available. The result is batched.
func CreateProvider(ctx context.Context, opts Options) (*Batched, error) {
	var tried []string
	if strings.ToLower(opts.Provider) == "ollama" {
		p, err := NewOllamaEmbedder(opts.Model, opts.OllamaURL)
		if err != nil {
			return nil, err
		}
		if p.IsConfigured(ctx) {
			log.Info("using ollama embeddings", "model", opts.Model)
			return NewBatched(p, opts.BatchSize, opts.Concurrency), nil
		}
		log.Warn("ollama not available, trying openai fallback", "url", opts.OllamaURL, "model", opts.Model)
		tried = append(tried, "ollama")
	}

	p := NewOpenAIEmbedder(opts.OpenAIModel, opts.OpenAIURL, opts.APIKeyEnv)
	if p.IsConfigured(ctx) {
		log.Info("using openai embeddings", "model", opts.OpenAIModel)
		return NewBatched(p, opts.BatchSize, opts.Concurrency), nil
	}
	tried = append(tried, "openai")
	return nil, fmt.Errorf("no embedding provider available (tried %s): check Ollama is running or set %s",
		strings.Join(tried, ", "), opts.APIKeyEnv)
}

// Batched splits large inputs into fixed-size requests and runs a bounded
// number of them at once. Output order always matches input order.
type Batched struct {
	provider    Provider
	batchSize   int
	concurrency int
}

// NewBatched wraps p. Non-positive sizes fall back to the defaults.
func NewBatched(p Provider, batchSize, concurrency int) *Batched {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Batched{provider: p, batchSize: batchSize, concurrency: concurrency}
}

// Name reports the wrapped provider.
func (b *Batched) Name() string { return b.provider.Name() }

// IsConfigured delegates to the wrapped provider.
func (b *Batched) IsConfigured(ctx context.Context) bool { return b.provider.IsConfigured(ctx) }

// Embed embeds texts batch by batch. The first failing batch cancels the rest.
func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(b.concurrency)
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		eg.Go(func() error {
			vecs, err := b.provider.Embed(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("%s batch %d-%d: %w", b.provider.Name(), start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("%s batch %d-%d: got %d vectors for %d texts", b.provider.Name(), start, end, len(vecs), end-start)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	log.Debug("embedded texts", "provider", b.provider.Name(), "texts", len(texts), "batch_size", b.batchSize)
	return out, nil
}
