package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.LLMService = (*MockLLMService)(nil)

// MockLLMService records prompts and replies with a fixed answer
type MockLLMService struct {
	mu      sync.Mutex
	Reply   string
	ChatFn  func(ctx context.Context, messages []driven.ChatMessage) (string, error)
	prompts [][]driven.ChatMessage
	pingErr error
}

// NewMockLLMService creates a mock that answers with reply
func NewMockLLMService(reply string) *MockLLMService {
	return &MockLLMService{Reply: reply}
}

func (m *MockLLMService) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, messages)
	fn := m.ChatFn
	reply := m.Reply
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}
	return reply, nil
}

func (m *MockLLMService) Model() string {
	return "mock-llm"
}

func (m *MockLLMService) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func (m *MockLLMService) Close() error {
	return nil
}

// Prompts returns every message list sent to Chat
func (m *MockLLMService) Prompts() [][]driven.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]driven.ChatMessage(nil), m.prompts...)
}

// SetPingError makes Ping fail
func (m *MockLLMService) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}
