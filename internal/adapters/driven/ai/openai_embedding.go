package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

// Embedding defaults
const (
	DefaultOpenAIBaseURL        = "https://api.openai.com/v1"
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultBatchSize            = 100
	DefaultEmbedTimeout         = 30 * time.Second
)

// Ensure OpenAIEmbedding implements EmbeddingService
var _ driven.EmbeddingService = (*OpenAIEmbedding)(nil)

// Model dimensions for OpenAI embedding models
var openAIModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// EmbeddingConfig configures an embedding adapter
type EmbeddingConfig struct {
	APIKey  string
	Model   string
	BaseURL string

	// Dimensions overrides the model's native size. text-embedding-3 models
	// are asked to shorten their output to it.
	Dimensions int

	BatchSize         int
	Timeout           time.Duration // per HTTP call
	RequestsPerSecond float64       // 0 disables throttling
}

func (c *EmbeddingConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultEmbedTimeout
	}
}

// OpenAIEmbedding implements EmbeddingService against an OpenAI-compatible /embeddings API
type OpenAIEmbedding struct {
	apiKey     string
	model      string
	baseURL    string
	dimensions int
	shorten    bool
	batchSize  int
	client     *restClient
}

// NewOpenAIEmbedding creates a new OpenAI embedding service
func NewOpenAIEmbedding(cfg EmbeddingConfig) (*OpenAIEmbedding, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIEmbeddingModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.applyDefaults()

	native, known := openAIModelDimensions[cfg.Model]
	if !known {
		// Default to 1536 for unknown models
		native = 1536
	}
	dimensions := native
	shorten := false
	if cfg.Dimensions > 0 && cfg.Dimensions != native {
		dimensions = cfg.Dimensions
		shorten = strings.HasPrefix(cfg.Model, "text-embedding-3")
	}

	return &OpenAIEmbedding{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		dimensions: dimensions,
		shorten:    shorten,
		batchSize:  cfg.BatchSize,
		client:     newRestClient("openai", cfg.Timeout, cfg.RequestsPerSecond, domain.ErrEmbeddingUnavailable),
	}, nil
}

// embeddingRequest is the request body for OpenAI embedding API
type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
	Dimensions     int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the response from OpenAI embedding API
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
}

// Embed generates embeddings for multiple texts, splitting them into batches
func (e *OpenAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, batch...)
	}
	return embeddings, nil
}

func (e *OpenAIEmbedding) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: "float",
	}
	if e.shorten {
		req.Dimensions = e.dimensions
	}

	var resp embeddingResponse
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	if err := e.client.do(ctx, http.MethodPost, e.baseURL+"/embeddings", headers, req, &resp); err != nil {
		return nil, err
	}

	// Order by index so the output matches the input
	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(embeddings) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, checkVectors(embeddings, e.dimensions)
}

// EmbedQuery generates an embedding for a question
func (e *OpenAIEmbedding) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := e.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Dimensions returns the embedding dimension size
func (e *OpenAIEmbedding) Dimensions() int {
	return e.dimensions
}

// Model returns the model name being used
func (e *OpenAIEmbedding) Model() string {
	return e.model
}

// HealthCheck verifies the embedding service is available
func (e *OpenAIEmbedding) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedQuery(ctx, "health check")
	return err
}

// Close releases resources held by the embedding service
func (e *OpenAIEmbedding) Close() error {
	e.client.close()
	return nil
}

// checkVectors rejects a response with missing entries or the wrong vector size.
func checkVectors(vectors [][]float32, dimensions int) error {
	for i, v := range vectors {
		if v == nil {
			return fmt.Errorf("no embedding returned for input %d", i)
		}
		if len(v) != dimensions {
			return fmt.Errorf("embedding has %d dimensions, want %d: %w", len(v), dimensions, domain.ErrConfiguration)
		}
	}
	return nil
}
