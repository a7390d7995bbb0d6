package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// ChatStore handles chat and message persistence (PostgreSQL)
type ChatStore interface {
	// CreateChat stores a new chat session
	CreateChat(ctx context.Context, chat *domain.ChatSession) error

	// GetChat retrieves a chat by ID
	GetChat(ctx context.Context, id string) (*domain.ChatSession, error)

	// ListChats returns an owner's chats, most recently updated first
	ListChats(ctx context.Context, ownerID string, limit, offset int) ([]*domain.ChatSummary, error)

	// UpdateTitle renames a chat
	UpdateTitle(ctx context.Context, id, title string) error

	// DeleteChat removes a chat and its messages
	DeleteChat(ctx context.Context, id string) error

	// AddMessage appends a message and bumps the chat's updated_at
	AddMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns all messages of a chat in creation order
	ListMessages(ctx context.Context, chatID string) ([]*domain.Message, error)

	// RecentMessages returns the last n messages of a chat in creation order
	RecentMessages(ctx context.Context, chatID string, n int) ([]*domain.Message, error)
}
