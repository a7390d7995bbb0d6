// Package runtime tracks the AI providers a process was started with and
// whether they are currently reachable.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

// Services holds the configured AI services and their availability flags.
// Thread-safe for concurrent access.
type Services struct {
	mu sync.RWMutex

	// Config tracks capability flags
	config *domain.RuntimeConfig

	embeddingService driven.EmbeddingService
	llmService       driven.LLMService
}

// NewServices creates a registry for the given services. Either may be nil
// when the provider is not configured.
func NewServices(config *domain.RuntimeConfig, embedding driven.EmbeddingService, llm driven.LLMService) *Services {
	s := &Services{
		config:           config,
		embeddingService: embedding,
		llmService:       llm,
	}
	config.SetEmbeddingAvailable(embedding != nil)
	config.SetLLMAvailable(llm != nil)
	return s
}

// Config returns the runtime configuration
func (s *Services) Config() *domain.RuntimeConfig {
	return s.config
}

// EmbeddingService returns the embedding service (may be nil)
func (s *Services) EmbeddingService() driven.EmbeddingService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.embeddingService
}

// LLMService returns the LLM service (may be nil)
func (s *Services) LLMService() driven.LLMService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.llmService
}

// Probe checks connectivity of each configured service and updates the
// availability flags. The returned error joins every failed check.
func (s *Services) Probe(ctx context.Context) error {
	s.mu.RLock()
	embedding := s.embeddingService
	llm := s.llmService
	s.mu.RUnlock()

	var errs []error

	if embedding == nil {
		s.config.SetEmbeddingAvailable(false)
		errs = append(errs, fmt.Errorf("embedding: %w", domain.ErrEmbeddingUnavailable))
	} else if err := embedding.HealthCheck(ctx); err != nil {
		s.config.SetEmbeddingAvailable(false)
		errs = append(errs, fmt.Errorf("embedding %s: %w", embedding.Model(), err))
	} else {
		s.config.SetEmbeddingAvailable(true)
	}

	if llm == nil {
		s.config.SetLLMAvailable(false)
		errs = append(errs, fmt.Errorf("llm: %w", domain.ErrGenerationUnavailable))
	} else if err := llm.Ping(ctx); err != nil {
		s.config.SetLLMAvailable(false)
		errs = append(errs, fmt.Errorf("llm %s: %w", llm.Model(), err))
	} else {
		s.config.SetLLMAvailable(true)
	}

	return errors.Join(errs...)
}

// Close shuts down all services
func (s *Services) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.embeddingService != nil {
		errs = append(errs, s.embeddingService.Close())
		s.embeddingService = nil
	}
	if s.llmService != nil {
		errs = append(errs, s.llmService.Close())
		s.llmService = nil
	}

	s.config.SetEmbeddingAvailable(false)
	s.config.SetLLMAvailable(false)

	return errors.Join(errs...)
}
