package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ollama/ollama/api"
)

const DefaultOllamaURL = "http://localhost:11434"

// OllamaEmbedder generates embeddings via a local Ollama server.
type OllamaEmbedder struct {
	Model   string
	BaseURL string
	client  *api.Client
}

// NewOllamaEmbedder creates an embedder for model on the server at baseURL.
func NewOllamaEmbedder(model, baseURL string) (*OllamaEmbedder, error) {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama url %q: %w", baseURL, err)
	}
	return &OllamaEmbedder{
		Model:   model,
		BaseURL: baseURL,
		client:  api.NewClient(u, &http.Client{Timeout: 120 * time.Second}),
	}, nil
}

func (e *OllamaEmbedder) Name() string { return "ollama" }

// IsConfigured checks that Ollama is running and has the model pulled.
func (e *OllamaEmbedder) IsConfigured(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	list, err := e.client.List(ctx)
	if err != nil {
		return false
	}
	modelBase := strings.SplitN(e.Model, ":", 2)[0]
	for _, m := range list.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	log.Warn("ollama model not found", "model", e.Model)
	return false
}

// Embed generates one embedding per text in a single request.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embed error: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}
