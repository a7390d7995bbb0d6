package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

func TestOllamaEmbedding_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/embed":
			var req ollamaEmbedRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode: %v", err)
			}
			if req.Model != "nomic-embed-text" {
				t.Errorf("unexpected model %s", req.Model)
			}
			var resp ollamaEmbedResponse
			for range req.Input {
				resp.Embeddings = append(resp.Embeddings, []float32{1, 2})
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	emb := NewOllamaEmbedding(EmbeddingConfig{BaseURL: server.URL + "/", Dimensions: 2, BatchSize: 2})

	vectors, err := emb.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 3 {
		t.Errorf("expected 3 vectors, got %d", len(vectors))
	}
	if err := emb.HealthCheck(context.Background()); err != nil {
		t.Errorf("health check failed: %v", err)
	}
}

func TestOllamaEmbedding_ShortResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,2]]}`))
	}))
	defer server.Close()

	emb := NewOllamaEmbedding(EmbeddingConfig{BaseURL: server.URL, Dimensions: 2})
	_, err := emb.Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error for missing embedding")
	}
	if errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Error("malformed response should not be retryable")
	}
}

func TestOllamaEmbedding_Unavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	emb := NewOllamaEmbedding(EmbeddingConfig{BaseURL: server.URL})
	_, err := emb.EmbedQuery(context.Background(), "q")
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}
