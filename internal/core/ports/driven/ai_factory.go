package driven

import (
	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// AIServiceFactory turns provider settings into the embedding and generation
// clients used by ingestion and question answering. Both constructors return
// nil, nil when the settings name no usable provider, so callers can run with
// that capability reported as unavailable.
type AIServiceFactory interface {
	CreateEmbeddingService(settings *domain.EmbeddingSettings) (EmbeddingService, error)
	CreateLLMService(settings *domain.LLMSettings) (LLMService, error)
}
