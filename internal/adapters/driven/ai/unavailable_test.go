package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

func TestUnavailableEmbedding(t *testing.T) {
	svc := NewUnavailableEmbedding(0)
	if svc.Dimensions() != DefaultUnconfiguredDimensions {
		t.Errorf("expected %d dimensions, got %d", DefaultUnconfiguredDimensions, svc.Dimensions())
	}
	if NewUnavailableEmbedding(768).Dimensions() != 768 {
		t.Error("expected configured dimensions to be kept")
	}

	ctx := context.Background()
	if _, err := svc.Embed(ctx, []string{"a"}); !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("Embed: expected ErrEmbeddingUnavailable, got %v", err)
	}
	if _, err := svc.EmbedQuery(ctx, "q"); !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("EmbedQuery: expected ErrEmbeddingUnavailable, got %v", err)
	}
	if err := svc.HealthCheck(ctx); !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("HealthCheck: expected ErrEmbeddingUnavailable, got %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestUnavailableLLM(t *testing.T) {
	svc := NewUnavailableLLM()
	ctx := context.Background()

	if _, err := svc.Chat(ctx, nil, driven.ChatOptions{}); !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Errorf("Chat: expected ErrGenerationUnavailable, got %v", err)
	}
	if err := svc.Ping(ctx); !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Errorf("Ping: expected ErrGenerationUnavailable, got %v", err)
	}
	if svc.Model() != "unconfigured" {
		t.Errorf("unexpected model %q", svc.Model())
	}
}
