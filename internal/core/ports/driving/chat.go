package driving

import (
	"context"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// ChatService answers questions inside owner-scoped chat sessions
type ChatService interface {
	// Ask answers question in chatID, creating a chat when chatID is empty
	Ask(ctx context.Context, ownerID, chatID, question string) (*domain.AskResult, error)

	// CreateChat starts an empty chat
	CreateChat(ctx context.Context, ownerID, title string) (*domain.ChatSession, error)

	// ListChats returns the owner's chats, most recent first
	ListChats(ctx context.Context, ownerID string, limit, offset int) ([]*domain.ChatSummary, error)

	// GetChat returns a chat with its messages
	GetChat(ctx context.Context, ownerID, chatID string) (*domain.ChatWithMessages, error)

	// RenameChat sets a chat's title
	RenameChat(ctx context.Context, ownerID, chatID, title string) (*domain.ChatSession, error)

	// DeleteChat removes a chat and its messages
	DeleteChat(ctx context.Context, ownerID, chatID string) error
}
