package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var conversation = []driven.ChatMessage{
	{Role: driven.ChatRoleSystem, Content: "Answer from the sources."},
	{Role: driven.ChatRoleUser, Content: "earlier question"},
	{Role: driven.ChatRoleAssistant, Content: "earlier answer"},
	{Role: driven.ChatRoleUser, Content: "What is the notice period?"},
}

func TestOpenAILLM_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.Len(t, req.Messages, 4)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "assistant", req.Messages[2].Role)
		assert.Equal(t, 256, req.MaxTokens)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  Thirty days.  "},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	llm := NewOpenAILLM(LLMConfig{APIKey: "sk-test", Model: "gpt-test", BaseURL: server.URL})
	reply, err := llm.Chat(context.Background(), conversation, driven.ChatOptions{MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, "Thirty days.", reply)
	assert.Equal(t, "gpt-test", llm.Model())
}

func TestOpenAILLM_NoKeyOmitsAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "/v1/models", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	llm := NewOpenAILLM(LLMConfig{BaseURL: server.URL + "/v1"})
	assert.NoError(t, llm.Ping(context.Background()))
}

func TestOpenAILLM_Errors(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		body        string
		unavailable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, true},
		{"server error", http.StatusInternalServerError, `oops`, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad"}}`, false},
		{"no choices", http.StatusOK, `{"choices":[]}`, false},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":""},"finish_reason":"length"}]}`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			llm := NewOpenAILLM(LLMConfig{APIKey: "k", BaseURL: server.URL})
			_, err := llm.Chat(context.Background(), conversation, driven.ChatOptions{})
			require.Error(t, err)
			assert.Equal(t, tc.unavailable, errors.Is(err, domain.ErrGenerationUnavailable), err.Error())
		})
	}
}

func TestGeminiLLM_RequiresAPIKey(t *testing.T) {
	_, err := NewGeminiLLM(LLMConfig{})
	assert.Error(t, err)
}

func TestGeminiLLM_Chat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "gm-key", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.SystemInstruction)
		assert.Equal(t, "Answer from the sources.", req.SystemInstruction.Parts[0].Text)
		require.Len(t, req.Contents, 3)
		assert.Equal(t, "user", req.Contents[0].Role)
		assert.Equal(t, "model", req.Contents[1].Role)
		assert.Equal(t, "What is the notice period?", req.Contents[2].Parts[0].Text)
		assert.Nil(t, req.GenerationConfig)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Thirty "},{"text":"days."}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	llm, err := NewGeminiLLM(LLMConfig{APIKey: "gm-key", BaseURL: server.URL})
	require.NoError(t, err)

	reply, err := llm.Chat(context.Background(), conversation, driven.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Thirty days.", reply)
}

func TestGeminiLLM_Blocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer server.Close()

	llm, _ := NewGeminiLLM(LLMConfig{APIKey: "k", BaseURL: server.URL})
	_, err := llm.Chat(context.Background(), conversation, driven.ChatOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
	assert.False(t, errors.Is(err, domain.ErrGenerationUnavailable))
}

func TestGeminiLLM_ResourceExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	llm, _ := NewGeminiLLM(LLMConfig{APIKey: "k", BaseURL: server.URL})
	_, err := llm.Chat(context.Background(), conversation, driven.ChatOptions{})
	assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
}
