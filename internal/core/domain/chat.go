package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultChatTitle is used until a title is derived or set
const DefaultChatTitle = "New Chat"

// MessageRole identifies the author of a chat message
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ChatSession is a conversation owned by one user
type ChatSession struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewChatSession creates a chat with the given title
func NewChatSession(ownerID, title string) *ChatSession {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultChatTitle
	}
	now := time.Now()
	return &ChatSession{
		ID:        GenerateID(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ChatSummary is a chat list row
type ChatSummary struct {
	ChatSession
	MessageCount int    `json:"message_count"`
	LastMessage  string `json:"last_message,omitempty"`
}

// ChatWithMessages is a chat and its full transcript
type ChatWithMessages struct {
	*ChatSession
	Messages []*Message `json:"messages"`
}

// Citation snapshots a passage that was placed in the prompt
type Citation struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Filename   string  `json:"filename"`
	Relevance  float64 `json:"relevance"`
	Preview    string  `json:"preview"`
}

// Message is an append-only chat turn
type Message struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chat_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Citations []Citation  `json:"citations,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewMessage creates a message stamped now
func NewMessage(chatID string, role MessageRole, content string, citations []Citation) *Message {
	return &Message{
		ID:        GenerateID(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		Citations: citations,
		CreatedAt: time.Now(),
	}
}

// Answer is the generator output for one question
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations"`
	Degraded  bool       `json:"degraded"` // True when the apology text replaced a model answer
}

// AskResult is returned to the caller of an ask
type AskResult struct {
	ChatID           string     `json:"chat_id"`
	UserMessage      *Message   `json:"user_message"`
	AssistantMessage *Message   `json:"assistant_message"`
	Citations        []Citation `json:"citations"`
	Degraded         bool       `json:"degraded"`
}

// Preview returns at most n runes of s, with an ellipsis when shortened
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
