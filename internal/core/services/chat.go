package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driving"
)

// Ensure chatService implements ChatService
var _ driving.ChatService = (*chatService)(nil)

// ApologyText replaces the answer when generation fails
const ApologyText = "I apologize, but I encountered an error while processing your request. Please try again."

const (
	MaxQuestionLen = 4000
	MaxTitleLen    = 200

	defaultChatListLimit = 20
	maxChatListLimit     = 100
)

// ChatConfig wires the chat service
type ChatConfig struct {
	Chats     driven.ChatStore
	Retrieval driving.RetrievalService
	Answers   driving.AnswerService
	Logger    *slog.Logger

	TopK         int
	MinScore     *float64 // Nil defers to the retrieval service
	HistoryTurns int
}

type chatService struct {
	chats        driven.ChatStore
	retrieval    driving.RetrievalService
	answers      driving.AnswerService
	logger       *slog.Logger
	topK         int
	minScore     *float64
	historyTurns int
}

// NewChatService creates the chat service
func NewChatService(cfg ChatConfig) driving.ChatService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	return &chatService{
		chats:        cfg.Chats,
		retrieval:    cfg.Retrieval,
		answers:      cfg.Answers,
		logger:       logger.With("service", "chat"),
		topK:         cfg.TopK,
		minScore:     cfg.MinScore,
		historyTurns: cfg.HistoryTurns,
	}
}

// Ask stores the question, answers it from the owner's documents and stores
// the answer. Retrieval and generation failures degrade rather than fail.
func (s *chatService) Ask(ctx context.Context, ownerID, chatID, question string) (result *domain.AskResult, err error) {
	ctx, span := tracer.Start(ctx, "chat.ask", trace.WithAttributes(
		attribute.String("owner.id", ownerID),
		attribute.String("chat.id", chatID),
	))
	defer func() { endSpan(span, err) }()

	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(question) > MaxQuestionLen {
		return nil, fmt.Errorf("%w: question exceeds %d characters", domain.ErrInvalidInput, MaxQuestionLen)
	}

	var (
		chat    *domain.ChatSession
		history []*domain.Message
	)
	if chatID == "" {
		chat = domain.NewChatSession(ownerID, s.answers.Title(ctx, question))
		if err := s.chats.CreateChat(ctx, chat); err != nil {
			return nil, fmt.Errorf("create chat: %w", err)
		}
	} else {
		chat, err = s.ownedChat(ctx, ownerID, chatID)
		if err != nil {
			return nil, err
		}
		history, err = s.chats.RecentMessages(ctx, chat.ID, s.historyTurns)
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
	}
	span.SetAttributes(attribute.String("chat.id", chat.ID))

	userMsg := domain.NewMessage(chat.ID, domain.MessageRoleUser, question, nil)
	if err := s.chats.AddMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("save question: %w", err)
	}

	passages, err := s.retrieval.Retrieve(ctx, question, domain.RetrieveOptions{
		OwnerID:  ownerID,
		K:        s.topK,
		MinScore: s.minScore,
	})
	if err != nil {
		s.logger.Warn("retrieval failed, answering without context", "chat_id", chat.ID, "error", err)
		passages = nil
	}

	answer, err := s.answers.Generate(ctx, question, passages, history)
	if err != nil {
		s.logger.Error("answer generation failed", "chat_id", chat.ID, "error", err)
		answer = &domain.Answer{Text: ApologyText, Citations: []domain.Citation{}, Degraded: true}
	}

	// The question is already stored, so the answer is saved even if the caller went away
	saveCtx, cancel := settleContext(ctx)
	defer cancel()
	assistantMsg := domain.NewMessage(chat.ID, domain.MessageRoleAssistant, answer.Text, answer.Citations)
	if err := s.chats.AddMessage(saveCtx, assistantMsg); err != nil {
		return nil, fmt.Errorf("save answer: %w", err)
	}

	s.logger.Info("question answered",
		"chat_id", chat.ID,
		"passages", len(passages),
		"citations", len(answer.Citations),
		"degraded", answer.Degraded,
	)
	return &domain.AskResult{
		ChatID:           chat.ID,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Citations:        answer.Citations,
		Degraded:         answer.Degraded,
	}, nil
}

// CreateChat starts an empty chat
func (s *chatService) CreateChat(ctx context.Context, ownerID, title string) (*domain.ChatSession, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return nil, fmt.Errorf("%w: title exceeds %d characters", domain.ErrInvalidInput, MaxTitleLen)
	}
	chat := domain.NewChatSession(ownerID, title)
	if err := s.chats.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// ListChats returns the owner's chats, most recently active first
func (s *chatService) ListChats(ctx context.Context, ownerID string, limit, offset int) ([]*domain.ChatSummary, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if limit <= 0 {
		limit = defaultChatListLimit
	}
	if limit > maxChatListLimit {
		limit = maxChatListLimit
	}
	if offset < 0 {
		offset = 0
	}
	chats, err := s.chats.ListChats(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []*domain.ChatSummary{}
	}
	return chats, nil
}

// GetChat returns a chat with its transcript
func (s *chatService) GetChat(ctx context.Context, ownerID, chatID string) (*domain.ChatWithMessages, error) {
	chat, err := s.ownedChat(ctx, ownerID, chatID)
	if err != nil {
		return nil, err
	}
	messages, err := s.chats.ListMessages(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if messages == nil {
		messages = []*domain.Message{}
	}
	return &domain.ChatWithMessages{ChatSession: chat, Messages: messages}, nil
}

// RenameChat sets a chat's title
func (s *chatService) RenameChat(ctx context.Context, ownerID, chatID, title string) (*domain.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return nil, fmt.Errorf("%w: title exceeds %d characters", domain.ErrInvalidInput, MaxTitleLen)
	}
	if _, err := s.ownedChat(ctx, ownerID, chatID); err != nil {
		return nil, err
	}
	if err := s.chats.UpdateTitle(ctx, chatID, title); err != nil {
		return nil, err
	}
	return s.chats.GetChat(ctx, chatID)
}

// DeleteChat removes a chat and its messages
func (s *chatService) DeleteChat(ctx context.Context, ownerID, chatID string) error {
	if _, err := s.ownedChat(ctx, ownerID, chatID); err != nil {
		return err
	}
	if err := s.chats.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	s.logger.Info("chat deleted", "chat_id", chatID, "owner_id", ownerID)
	return nil
}

// ownedChat hides chats of other owners behind ErrNotFound
func (s *chatService) ownedChat(ctx context.Context, ownerID, chatID string) (*domain.ChatSession, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if chat.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return chat, nil
}
