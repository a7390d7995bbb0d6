package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChatStore = (*ChatStore)(nil)

// lastMessagePreview is the length of the last-message snippet in chat listings
const lastMessagePreview = 100

// ChatStore implements driven.ChatStore using PostgreSQL.
// Message citations are stored as a JSONB snapshot.
type ChatStore struct {
	db *DB
}

// NewChatStore creates a new ChatStore
func NewChatStore(db *DB) *ChatStore {
	return &ChatStore{db: db}
}

// CreateChat stores a new chat session
func (s *ChatStore) CreateChat(ctx context.Context, chat *domain.ChatSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, owner_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, chat.ID, chat.OwnerID, chat.Title, chat.CreatedAt, chat.UpdatedAt)
	if IsUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// GetChat retrieves a chat by ID
func (s *ChatStore) GetChat(ctx context.Context, id string) (*domain.ChatSession, error) {
	var chat domain.ChatSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, created_at, updated_at FROM chats WHERE id = $1
	`, id).Scan(&chat.ID, &chat.OwnerID, &chat.Title, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListChats returns an owner's chats with message counts, most recently updated first
func (s *ChatStore) ListChats(ctx context.Context, ownerID string, limit, offset int) ([]*domain.ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.owner_id, c.title, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id),
			COALESCE((
				SELECT m.content FROM messages m
				WHERE m.chat_id = c.id
				ORDER BY m.created_at DESC, m.id DESC
				LIMIT 1
			), '')
		FROM chats c
		WHERE c.owner_id = $1
		ORDER BY c.updated_at DESC, c.id
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []*domain.ChatSummary{}
	for rows.Next() {
		var cs domain.ChatSummary
		var last string
		err := rows.Scan(&cs.ID, &cs.OwnerID, &cs.Title, &cs.CreatedAt, &cs.UpdatedAt, &cs.MessageCount, &last)
		if err != nil {
			return nil, err
		}
		cs.LastMessage = domain.Preview(last, lastMessagePreview)
		summaries = append(summaries, &cs)
	}
	return summaries, rows.Err()
}

// UpdateTitle renames a chat
func (s *ChatStore) UpdateTitle(ctx context.Context, id, title string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE chats SET title = $1, updated_at = NOW() WHERE id = $2`, title, id)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrNotFound)
}

// DeleteChat removes a chat; its messages go by cascade
func (s *ChatStore) DeleteChat(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrNotFound)
}

// AddMessage appends a message and bumps the chat's updated_at in one transaction
func (s *ChatStore) AddMessage(ctx context.Context, msg *domain.Message) error {
	citations := msg.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = $1 WHERE id = $2`, msg.CreatedAt, msg.ChatID)
		if err != nil {
			return err
		}
		if err := expectOne(result, domain.ErrNotFound); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, chat_id, role, content, citations, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, msg.ID, msg.ChatID, string(msg.Role), msg.Content, citationsJSON, msg.CreatedAt)
		return err
	})
}

// ListMessages returns all messages of a chat in creation order
func (s *ChatStore) ListMessages(ctx context.Context, chatID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, content, citations, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at, id
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns the last n messages of a chat in creation order
func (s *ChatStore) RecentMessages(ctx context.Context, chatID string, n int) ([]*domain.Message, error) {
	if n <= 0 {
		return []*domain.Message{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, content, citations, created_at
		FROM (
			SELECT * FROM messages
			WHERE chat_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at, id
	`, chatID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	messages := []*domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var citationsJSON []byte
		var createdAt time.Time

		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &citationsJSON, &createdAt); err != nil {
			return nil, err
		}
		if len(citationsJSON) > 0 {
			if err := json.Unmarshal(citationsJSON, &msg.Citations); err != nil {
				return nil, fmt.Errorf("decode citations of message %s: %w", msg.ID, err)
			}
		}
		msg.CreatedAt = createdAt
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
