package embed

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	Model  string
	APIKey string
	client openai.Client
}

// NewOpenAIEmbedder reads the API key from apiKeyEnv. An empty baseURL means
// the public OpenAI API.
func NewOpenAIEmbedder(model, baseURL, apiKeyEnv string, extra ...option.RequestOption) *OpenAIEmbedder {
	key := os.Getenv(apiKeyEnv)
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	return &OpenAIEmbedder{
		Model:  model,
		APIKey: key,
		client: openai.NewClient(opts...),
	}
}

func (o *OpenAIEmbedder) Name() string { return "openai" }

// IsConfigured checks if the API key is set.
func (o *OpenAIEmbedder) IsConfigured(context.Context) bool {
	return o.APIKey != ""
}

// Embed sends all texts in one request and orders the result by the index
// the API reports for each vector.
func (o *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: o.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings error: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(texts) || out[i] != nil {
			return nil, fmt.Errorf("OpenAI returned unexpected embedding index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			vec[j] = float32(x)
		}
		out[i] = vec
	}
	return out, nil
}
