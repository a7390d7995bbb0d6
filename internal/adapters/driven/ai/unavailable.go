package ai

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

// DefaultUnconfiguredDimensions sizes the vector index when no embedding provider is set
const DefaultUnconfiguredDimensions = 1536

var (
	_ driven.EmbeddingService = (*UnavailableEmbedding)(nil)
	_ driven.LLMService       = (*UnavailableLLM)(nil)
)

// UnavailableEmbedding stands in for an unconfigured embedding provider.
// Every call fails with domain.ErrEmbeddingUnavailable.
type UnavailableEmbedding struct {
	dimensions int
}

// NewUnavailableEmbedding reports the given dimensions so the index can still be opened
func NewUnavailableEmbedding(dimensions int) *UnavailableEmbedding {
	if dimensions <= 0 {
		dimensions = DefaultUnconfiguredDimensions
	}
	return &UnavailableEmbedding{dimensions: dimensions}
}

func (u *UnavailableEmbedding) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, errNotConfigured(domain.ErrEmbeddingUnavailable, "embedding")
}

func (u *UnavailableEmbedding) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return nil, errNotConfigured(domain.ErrEmbeddingUnavailable, "embedding")
}

func (u *UnavailableEmbedding) Dimensions() int { return u.dimensions }
func (u *UnavailableEmbedding) Model() string   { return "unconfigured" }

func (u *UnavailableEmbedding) HealthCheck(_ context.Context) error {
	return errNotConfigured(domain.ErrEmbeddingUnavailable, "embedding")
}

func (u *UnavailableEmbedding) Close() error { return nil }

// UnavailableLLM stands in for an unconfigured generation provider.
type UnavailableLLM struct{}

// NewUnavailableLLM creates the stand-in
func NewUnavailableLLM() *UnavailableLLM {
	return &UnavailableLLM{}
}

func (u *UnavailableLLM) Chat(_ context.Context, _ []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	return "", errNotConfigured(domain.ErrGenerationUnavailable, "LLM")
}

func (u *UnavailableLLM) Model() string { return "unconfigured" }

func (u *UnavailableLLM) Ping(_ context.Context) error {
	return errNotConfigured(domain.ErrGenerationUnavailable, "LLM")
}

func (u *UnavailableLLM) Close() error { return nil }

func errNotConfigured(sentinel error, what string) error {
	return fmt.Errorf("%w: no %s provider configured", sentinel, what)
}
