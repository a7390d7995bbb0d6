package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven/mocks"
)

func TestNewServices(t *testing.T) {
	cfg := domain.NewRuntimeConfig("redis", "redis", "pgvector")
	embedding := mocks.NewMockEmbeddingService()
	llm := mocks.NewMockLLMService("ok")

	s := NewServices(cfg, embedding, llm)

	if s.Config() != cfg {
		t.Error("Config() should return the config passed in")
	}
	if s.EmbeddingService() != embedding {
		t.Error("EmbeddingService() mismatch")
	}
	if s.LLMService() != llm {
		t.Error("LLMService() mismatch")
	}
	if !cfg.CanIngest() || !cfg.CanAnswer() {
		t.Error("configured services should be reported available")
	}
}

func TestNewServices_Unconfigured(t *testing.T) {
	cfg := domain.NewRuntimeConfig("postgres", "postgres", "memory")
	s := NewServices(cfg, nil, nil)

	if s.EmbeddingService() != nil || s.LLMService() != nil {
		t.Error("services should be nil")
	}
	if cfg.CanIngest() || cfg.CanAnswer() {
		t.Error("nothing should be available without services")
	}
}

func TestServices_Probe(t *testing.T) {
	tests := []struct {
		name          string
		embeddingErr  error
		llmErr        error
		wantEmbedding bool
		wantLLM       bool
		wantErr       error
	}{
		{name: "both healthy", wantEmbedding: true, wantLLM: true},
		{
			name:         "embedding down",
			embeddingErr: domain.ErrEmbeddingUnavailable,
			wantLLM:      true,
			wantErr:      domain.ErrEmbeddingUnavailable,
		},
		{
			name:          "llm down",
			llmErr:        domain.ErrGenerationUnavailable,
			wantEmbedding: true,
			wantErr:       domain.ErrGenerationUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.NewRuntimeConfig("redis", "redis", "pgvector")
			embedding := mocks.NewMockEmbeddingService()
			embedding.SetHealthError(tt.embeddingErr)
			llm := mocks.NewMockLLMService("ok")
			llm.SetPingError(tt.llmErr)

			err := NewServices(cfg, embedding, llm).Probe(context.Background())

			if tt.wantErr == nil && err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Probe() error = %v, want %v", err, tt.wantErr)
			}
			if cfg.EmbeddingAvailable() != tt.wantEmbedding {
				t.Errorf("EmbeddingAvailable() = %v, want %v", cfg.EmbeddingAvailable(), tt.wantEmbedding)
			}
			if cfg.LLMAvailable() != tt.wantLLM {
				t.Errorf("LLMAvailable() = %v, want %v", cfg.LLMAvailable(), tt.wantLLM)
			}
		})
	}
}

func TestServices_ProbeRecovers(t *testing.T) {
	cfg := domain.NewRuntimeConfig("redis", "redis", "pgvector")
	embedding := mocks.NewMockEmbeddingService()
	s := NewServices(cfg, embedding, mocks.NewMockLLMService("ok"))

	embedding.SetHealthError(errors.New("connection refused"))
	if err := s.Probe(context.Background()); err == nil {
		t.Fatal("expected health check error")
	}
	if cfg.CanIngest() {
		t.Error("CanIngest() should be false while embedding is down")
	}

	embedding.SetHealthError(nil)
	if err := s.Probe(context.Background()); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if !cfg.CanAnswer() {
		t.Error("CanAnswer() should be true once both services respond")
	}
}

func TestServices_ProbeUnconfigured(t *testing.T) {
	cfg := domain.NewRuntimeConfig("redis", "redis", "memory")
	err := NewServices(cfg, nil, nil).Probe(context.Background())

	if !errors.Is(err, domain.ErrEmbeddingUnavailable) || !errors.Is(err, domain.ErrGenerationUnavailable) {
		t.Errorf("Probe() error = %v, want both unavailable errors", err)
	}
}

func TestServices_Close(t *testing.T) {
	cfg := domain.NewRuntimeConfig("redis", "redis", "pgvector")
	s := NewServices(cfg, mocks.NewMockEmbeddingService(), mocks.NewMockLLMService("ok"))

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if s.EmbeddingService() != nil || s.LLMService() != nil {
		t.Error("services should be cleared after Close")
	}
	if cfg.CanIngest() || cfg.CanAnswer() {
		t.Error("flags should be cleared after Close")
	}
}
