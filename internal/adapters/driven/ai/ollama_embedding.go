package ai

import (
	"context"
	"net/http"
	"strings"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

// Ollama defaults
const (
	DefaultOllamaBaseURL        = "http://localhost:11434"
	DefaultOllamaEmbeddingModel = "nomic-embed-text"
	DefaultOllamaDimensions     = 768
)

var _ driven.EmbeddingService = (*OllamaEmbedding)(nil)

// OllamaEmbedding implements EmbeddingService with Ollama's batch /api/embed endpoint.
type OllamaEmbedding struct {
	baseURL    string
	model      string
	dimensions int
	batchSize  int
	client     *restClient
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedding creates an Ollama embedding service. No API key is needed.
func NewOllamaEmbedding(cfg EmbeddingConfig) *OllamaEmbedding {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaEmbeddingModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultOllamaDimensions
	}
	cfg.applyDefaults()

	return &OllamaEmbedding{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		client:     newRestClient("ollama", cfg.Timeout, cfg.RequestsPerSecond, domain.ErrEmbeddingUnavailable),
	}
}

// Embed generates one vector per text, in input order.
func (o *OllamaEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.batchSize {
		end := min(start+o.batchSize, len(texts))

		var resp ollamaEmbedResponse
		req := ollamaEmbedRequest{Model: o.model, Input: texts[start:end]}
		if err := o.client.do(ctx, http.MethodPost, o.baseURL+"/api/embed", nil, req, &resp); err != nil {
			return nil, err
		}

		batch := make([][]float32, end-start)
		copy(batch, resp.Embeddings)
		if err := checkVectors(batch, o.dimensions); err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

// EmbedQuery embeds a single question.
func (o *OllamaEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := o.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (o *OllamaEmbedding) Dimensions() int { return o.dimensions }

func (o *OllamaEmbedding) Model() string { return o.model }

// HealthCheck calls /api/tags, which does not load the model.
func (o *OllamaEmbedding) HealthCheck(ctx context.Context) error {
	return o.client.do(ctx, http.MethodGet, o.baseURL+"/api/tags", nil, nil, nil)
}

func (o *OllamaEmbedding) Close() error {
	o.client.close()
	return nil
}
