package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.ChatStore = (*MockChatStore)(nil)

// MockChatStore is an in-memory ChatStore
type MockChatStore struct {
	mu       sync.RWMutex
	chats    map[string]*domain.ChatSession
	messages map[string][]*domain.Message

	// Optional failure injection
	AddMessageFn func(msg *domain.Message) error
}

// NewMockChatStore creates a new MockChatStore
func NewMockChatStore() *MockChatStore {
	return &MockChatStore{
		chats:    make(map[string]*domain.ChatSession),
		messages: make(map[string][]*domain.Message),
	}
}

func (m *MockChatStore) CreateChat(ctx context.Context, chat *domain.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[chat.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *chat
	m.chats[chat.ID] = &cp
	return nil
}

func (m *MockChatStore) GetChat(ctx context.Context, id string) (*domain.ChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chat, ok := m.chats[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *chat
	return &cp, nil
}

func (m *MockChatStore) ListChats(ctx context.Context, ownerID string, limit, offset int) ([]*domain.ChatSummary, error) {
	m.mu.RLock()
	var out []*domain.ChatSummary
	for id, chat := range m.chats {
		if chat.OwnerID != ownerID {
			continue
		}
		summary := &domain.ChatSummary{ChatSession: *chat, MessageCount: len(m.messages[id])}
		if n := len(m.messages[id]); n > 0 {
			summary.LastMessage = domain.Preview(m.messages[id][n-1].Content, 100)
		}
		out = append(out, summary)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if offset >= len(out) {
		return []*domain.ChatSummary{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockChatStore) UpdateTitle(ctx context.Context, id, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[id]
	if !ok {
		return domain.ErrNotFound
	}
	chat.Title = title
	chat.UpdatedAt = time.Now()
	return nil
}

func (m *MockChatStore) DeleteChat(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.chats, id)
	delete(m.messages, id)
	return nil
}

func (m *MockChatStore) AddMessage(ctx context.Context, msg *domain.Message) error {
	if m.AddMessageFn != nil {
		if err := m.AddMessageFn(msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[msg.ChatID]
	if !ok {
		return domain.ErrNotFound
	}
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], msg)
	chat.UpdatedAt = msg.CreatedAt
	return nil
}

func (m *MockChatStore) ListMessages(ctx context.Context, chatID string) ([]*domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.Message(nil), m.messages[chatID]...), nil
}

func (m *MockChatStore) RecentMessages(ctx context.Context, chatID string, n int) ([]*domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[chatID]
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]*domain.Message(nil), msgs...), nil
}
