package ai

import (
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

// Ensure Factory implements AIServiceFactory
var _ driven.AIServiceFactory = (*Factory)(nil)

// FactoryOptions holds the transport settings shared by every adapter the factory builds
type FactoryOptions struct {
	EmbedTimeout      time.Duration
	GenerationTimeout time.Duration
	BatchSize         int
	RequestsPerSecond float64
	QueryCacheTTL     time.Duration // 0 uses DefaultQueryCacheTTL, negative disables the cache
}

// Factory creates AI services based on configuration
type Factory struct {
	opts FactoryOptions
}

// NewFactory creates a new AI service factory
func NewFactory(opts FactoryOptions) *Factory {
	return &Factory{opts: opts}
}

// CreateEmbeddingService creates an embedding service from settings.
// Query embeddings are cached unless QueryCacheTTL is negative.
func (f *Factory) CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	cfg := EmbeddingConfig{
		APIKey:            settings.APIKey,
		Model:             settings.Model,
		BaseURL:           settings.BaseURL,
		Dimensions:        settings.Dimensions,
		BatchSize:         f.opts.BatchSize,
		Timeout:           f.opts.EmbedTimeout,
		RequestsPerSecond: f.opts.RequestsPerSecond,
	}

	var svc driven.EmbeddingService
	switch settings.Provider {
	case domain.AIProviderOpenAI:
		openai, err := NewOpenAIEmbedding(cfg)
		if err != nil {
			return nil, err
		}
		svc = openai
	case domain.AIProviderOllama:
		svc = NewOllamaEmbedding(cfg)
	default:
		return nil, fmt.Errorf("%w: %s has no embedding adapter", domain.ErrInvalidProvider, settings.Provider)
	}

	if f.opts.QueryCacheTTL < 0 {
		return svc, nil
	}
	return NewCachedEmbedding(svc, f.opts.QueryCacheTTL), nil
}

// CreateLLMService creates an LLM service from settings
func (f *Factory) CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	cfg := LLMConfig{
		APIKey:            settings.APIKey,
		Model:             settings.Model,
		BaseURL:           settings.BaseURL,
		Timeout:           f.opts.GenerationTimeout,
		RequestsPerSecond: f.opts.RequestsPerSecond,
	}

	switch settings.Provider {
	case domain.AIProviderOpenAI:
		return NewOpenAILLM(cfg), nil
	case domain.AIProviderOllama:
		// Ollama serves the OpenAI chat API under /v1
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultOllamaBaseURL
		}
		cfg.BaseURL += "/v1"
		return NewOpenAILLM(cfg), nil
	case domain.AIProviderGemini:
		return NewGeminiLLM(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidProvider, settings.Provider)
	}
}
