package driven

import (
	"context"
)

// ChatRole is the author of a prompt message
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one message of a model prompt
type ChatMessage struct {
	Role    ChatRole
	Content string
}

// ChatOptions tunes a single completion
type ChatOptions struct {
	Temperature float64
	MaxTokens   int
}

// LLMService provides large language model completions for answer generation.
// Transient failures (timeouts, 429, 5xx) are reported as domain.ErrGenerationUnavailable.
type LLMService interface {
	// Chat sends the messages and returns the model's reply text
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)

	// Model returns the model name being used
	Model() string

	// Ping verifies the LLM service is available
	Ping(ctx context.Context) error

	// Close releases resources held by the LLM service
	Close() error
}
