package ai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

// Gemini defaults
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel   = "gemini-2.0-flash"
)

var _ driven.LLMService = (*GeminiLLM)(nil)

// GeminiLLM implements LLMService with the Gemini generateContent API.
type GeminiLLM struct {
	apiKey  string
	model   string
	baseURL string
	client  *restClient
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// NewGeminiLLM creates a Gemini client.
func NewGeminiLLM(cfg LLMConfig) (*GeminiLLM, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerationTimeout
	}
	return &GeminiLLM{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  newRestClient("gemini", cfg.Timeout, cfg.RequestsPerSecond, domain.ErrGenerationUnavailable),
	}, nil
}

// Chat maps system messages to the system instruction and assistant turns to the "model" role.
func (g *GeminiLLM) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	var req geminiRequest
	var system []string
	for _, m := range messages {
		switch m.Role {
		case driven.ChatRoleSystem:
			system = append(system, m.Content)
		case driven.ChatRoleAssistant:
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}
	if len(system) > 0 {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}
	if opts.Temperature > 0 || opts.MaxTokens > 0 {
		req.GenerationConfig = &geminiGenerationConfig{Temperature: opts.Temperature, MaxOutputTokens: opts.MaxTokens}
	}

	var resp geminiResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	if err := g.client.do(ctx, http.MethodPost, url, g.headers(), req, &resp); err != nil {
		return "", err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates in response")
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("gemini: empty response (finishReason %q)", resp.Candidates[0].FinishReason)
	}
	return text, nil
}

func (g *GeminiLLM) Model() string { return g.model }

// Ping fetches the model metadata.
func (g *GeminiLLM) Ping(ctx context.Context) error {
	return g.client.do(ctx, http.MethodGet, fmt.Sprintf("%s/models/%s", g.baseURL, g.model), g.headers(), nil, nil)
}

func (g *GeminiLLM) Close() error {
	g.client.close()
	return nil
}

func (g *GeminiLLM) headers() map[string]string {
	return map[string]string{"x-goog-api-key": g.apiKey}
}
