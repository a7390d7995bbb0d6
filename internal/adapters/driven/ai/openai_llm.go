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

// Generation defaults
const (
	DefaultOpenAILLMModel    = "gpt-4o-mini"
	DefaultGenerationTimeout = 60 * time.Second
)

var _ driven.LLMService = (*OpenAILLM)(nil)

// LLMConfig configures a generation adapter
type LLMConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	Timeout           time.Duration // per HTTP call
	RequestsPerSecond float64
}

// OpenAILLM implements LLMService against an OpenAI-compatible /chat/completions API.
// Ollama's /v1 endpoint is served by the same adapter without an API key.
type OpenAILLM struct {
	apiKey  string
	model   string
	baseURL string
	client  *restClient
}

type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatCompletionMsg `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

type chatCompletionMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAILLM creates a chat completion client. The API key is optional so
// that keyless OpenAI-compatible servers work.
func NewOpenAILLM(cfg LLMConfig) *OpenAILLM {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAILLMModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerationTimeout
	}
	return &OpenAILLM{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  newRestClient("openai", cfg.Timeout, cfg.RequestsPerSecond, domain.ErrGenerationUnavailable),
	}
}

// Chat sends the conversation and returns the first choice.
func (l *OpenAILLM) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	req := chatCompletionRequest{
		Model:       l.model,
		Messages:    make([]chatCompletionMsg, len(messages)),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	for i, m := range messages {
		req.Messages[i] = chatCompletionMsg{Role: string(m.Role), Content: m.Content}
	}

	var resp chatCompletionResponse
	if err := l.client.do(ctx, http.MethodPost, l.baseURL+"/chat/completions", l.headers(), req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices in response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("openai: empty completion (finish_reason %q)", resp.Choices[0].FinishReason)
	}
	return text, nil
}

func (l *OpenAILLM) Model() string { return l.model }

// Ping lists models, which needs no tokens.
func (l *OpenAILLM) Ping(ctx context.Context) error {
	return l.client.do(ctx, http.MethodGet, l.baseURL+"/models", l.headers(), nil, nil)
}

func (l *OpenAILLM) Close() error {
	l.client.close()
	return nil
}

func (l *OpenAILLM) headers() map[string]string {
	if l.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + l.apiKey}
}
