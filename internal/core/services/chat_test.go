package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/custodia-labs/sercha-ask/internal/chunker"
	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven/mocks"
)

type stubRetrieval struct {
	passages []*domain.RetrievedPassage
	err      error
	opts     []domain.RetrieveOptions
}

func (r *stubRetrieval) Retrieve(ctx context.Context, question string, opts domain.RetrieveOptions) ([]*domain.RetrievedPassage, error) {
	r.opts = append(r.opts, opts)
	return r.passages, r.err
}

type stubAnswers struct {
	text     string
	err      error
	title    string
	history  [][]*domain.Message
	passages [][]*domain.RetrievedPassage
}

func (a *stubAnswers) Generate(ctx context.Context, question string, passages []*domain.RetrievedPassage, history []*domain.Message) (*domain.Answer, error) {
	a.history = append(a.history, history)
	a.passages = append(a.passages, passages)
	if a.err != nil {
		return nil, a.err
	}
	return &domain.Answer{Text: a.text, Citations: citations(passages)}, nil
}

func (a *stubAnswers) Title(ctx context.Context, first string) string {
	if a.title == "" {
		return fallbackTitle(first)
	}
	return a.title
}

type chatFixture struct {
	store     *mocks.MockChatStore
	retrieval *stubRetrieval
	answers   *stubAnswers
	svc       *chatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	f := &chatFixture{
		store:     mocks.NewMockChatStore(),
		retrieval: &stubRetrieval{},
		answers:   &stubAnswers{text: "the answer", title: "Reactor Output"},
	}
	f.svc = NewChatService(ChatConfig{
		Chats:     f.store,
		Retrieval: f.retrieval,
		Answers:   f.answers,
		TopK:      4,
		MinScore:  domain.ScoreThreshold(0.5),
	}).(*chatService)
	return f
}

func TestChatService_AskCreatesChat(t *testing.T) {
	f := newChatFixture(t)
	f.retrieval.passages = []*domain.RetrievedPassage{passage("doc-1", "c-1", "report.pdf", "output rose", 0.9)}

	result, err := f.svc.Ask(context.Background(), "user-1", "", "  How did output change?  ")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if result.ChatID == "" || result.Degraded {
		t.Fatalf("result = %+v", result)
	}
	if result.UserMessage.Content != "How did output change?" {
		t.Errorf("question stored as %q", result.UserMessage.Content)
	}
	if result.AssistantMessage.Content != "the answer" || len(result.Citations) != 1 {
		t.Errorf("assistant = %q with %d citations", result.AssistantMessage.Content, len(result.Citations))
	}
	if result.AssistantMessage.Citations[0].Filename != "report.pdf" {
		t.Error("citations not stored on the assistant message")
	}

	chat, err := f.svc.GetChat(context.Background(), "user-1", result.ChatID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if chat.Title != "Reactor Output" {
		t.Errorf("title = %q", chat.Title)
	}
	if len(chat.Messages) != 2 || chat.Messages[0].Role != domain.MessageRoleUser || chat.Messages[1].Role != domain.MessageRoleAssistant {
		t.Errorf("messages = %v", chat.Messages)
	}

	opts := f.retrieval.opts[0]
	if opts.OwnerID != "user-1" || opts.K != 4 || opts.MinScore == nil || *opts.MinScore != 0.5 {
		t.Errorf("retrieve options = %+v", opts)
	}
}

func TestChatService_AskUsesHistory(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	first, err := f.svc.Ask(ctx, "user-1", "", "first question")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if _, err := f.svc.Ask(ctx, "user-1", first.ChatID, "follow up"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if len(f.answers.history[0]) != 0 {
		t.Errorf("new chat passed %d history messages", len(f.answers.history[0]))
	}
	history := f.answers.history[1]
	if len(history) != 2 || history[0].Content != "first question" {
		t.Fatalf("history = %v, want the first exchange only", history)
	}
}

func TestChatService_AskDegrades(t *testing.T) {
	tests := []struct {
		name         string
		retrieveErr  error
		generateErr  error
		wantDegraded bool
		wantText     string
	}{
		{"retrieval down answers without context", domain.ErrEmbeddingUnavailable, nil, false, "the answer"},
		{"generation down apologises", nil, domain.ErrGenerationUnavailable, true, ApologyText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t)
			f.retrieval.passages = []*domain.RetrievedPassage{passage("doc-1", "c-1", "a.txt", "x", 0.9)}
			f.retrieval.err = tt.retrieveErr
			f.answers.err = tt.generateErr

			result, err := f.svc.Ask(context.Background(), "user-1", "", "question")
			if err != nil {
				t.Fatalf("Ask() error = %v", err)
			}
			if result.Degraded != tt.wantDegraded || result.AssistantMessage.Content != tt.wantText {
				t.Errorf("degraded = %v text = %q", result.Degraded, result.AssistantMessage.Content)
			}
			if tt.retrieveErr != nil && len(f.answers.passages[0]) != 0 {
				t.Error("passages from a failed retrieval reached the generator")
			}
			if result.Citations == nil {
				t.Error("citations should be an empty slice, not nil")
			}

			chat, err := f.svc.GetChat(context.Background(), "user-1", result.ChatID)
			if err != nil {
				t.Fatalf("GetChat() error = %v", err)
			}
			if len(chat.Messages) != 2 {
				t.Errorf("stored %d messages, want question and answer", len(chat.Messages))
			}
		})
	}
}

func TestChatService_AskErrors(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()
	other, err := f.svc.CreateChat(ctx, "user-2", "theirs")
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}

	tests := []struct {
		name     string
		owner    string
		chatID   string
		question string
		wantErr  error
	}{
		{"no owner", "", "", "q", domain.ErrUnauthorized},
		{"blank question", "user-1", "", "  ", domain.ErrInvalidInput},
		{"question too long", "user-1", "", strings.Repeat("q", MaxQuestionLen+1), domain.ErrInvalidInput},
		{"unknown chat", "user-1", "missing", "q", domain.ErrNotFound},
		{"someone else's chat", "user-1", other.ID, "q", domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Ask(ctx, tt.owner, tt.chatID, tt.question); !errors.Is(err, tt.wantErr) {
				t.Errorf("Ask() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChatService_QuestionKeptWhenAnswerFails(t *testing.T) {
	f := newChatFixture(t)
	f.store.AddMessageFn = func(msg *domain.Message) error {
		if msg.Role == domain.MessageRoleAssistant {
			return errors.New("disk full")
		}
		return nil
	}

	if _, err := f.svc.Ask(context.Background(), "user-1", "", "keep me"); err == nil {
		t.Fatal("expected error")
	}
	chats, _ := f.svc.ListChats(context.Background(), "user-1", 0, 0)
	if len(chats) != 1 || chats[0].LastMessage != "keep me" {
		t.Errorf("chats = %v, want the stored question", chats)
	}
}

func TestChatService_CRUD(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	chat, err := f.svc.CreateChat(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("CreateChat() error = %v", err)
	}
	if chat.Title != domain.DefaultChatTitle {
		t.Errorf("title = %q, want default", chat.Title)
	}
	if _, err := f.svc.CreateChat(ctx, "user-1", strings.Repeat("t", MaxTitleLen+1)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("CreateChat(long title) error = %v", err)
	}

	renamed, err := f.svc.RenameChat(ctx, "user-1", chat.ID, "  Budget  ")
	if err != nil {
		t.Fatalf("RenameChat() error = %v", err)
	}
	if renamed.Title != "Budget" {
		t.Errorf("title = %q, want Budget", renamed.Title)
	}
	if _, err := f.svc.RenameChat(ctx, "user-1", chat.ID, " "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("RenameChat(blank) error = %v", err)
	}
	if _, err := f.svc.RenameChat(ctx, "user-2", chat.ID, "mine"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("RenameChat(other owner) error = %v", err)
	}

	empty, err := f.svc.GetChat(ctx, "user-1", chat.ID)
	if err != nil {
		t.Fatalf("GetChat() error = %v", err)
	}
	if empty.Messages == nil {
		t.Error("messages should be an empty slice")
	}

	list, err := f.svc.ListChats(ctx, "user-2", 500, -1)
	if err != nil || list == nil || len(list) != 0 {
		t.Errorf("ListChats(user-2) = %v, %v", list, err)
	}

	if err := f.svc.DeleteChat(ctx, "user-2", chat.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("DeleteChat(other owner) error = %v", err)
	}
	if err := f.svc.DeleteChat(ctx, "user-1", chat.ID); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}
	if _, err := f.svc.GetChat(ctx, "user-1", chat.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetChat(deleted) error = %v", err)
	}
}

// TestAskEndToEnd runs an upload through ingestion and asks about it
func TestAskEndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newIngestionHarness(t)
	h.svc.chunker = chunker.New(1000, 200)

	const fact = "The reactor output rose by ten percent in March."
	h.embedder.SetVector(fact, axis(0))
	h.embedder.SetVector("What happened to reactor output?", []float32{0.9, 0.1, 0, 0, 0, 0, 0, 0})
	h.embedder.SetVector("Unrelated question", axis(5))

	doc := h.ingest(t, "user-1", "report.txt", fact)
	if err := h.svc.Process(ctx, doc.ID, domain.Attempt{Number: 1}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	llm := mocks.NewMockLLMService("It rose by ten percent.")
	chat := NewChatService(ChatConfig{
		Chats: mocks.NewMockChatStore(),
		Retrieval: NewRetrievalService(RetrievalConfig{
			Embedder:  h.embedder,
			Index:     h.index,
			Documents: h.docs,
		}),
		Answers: newTestAnswerService(llm),
	})

	result, err := chat.Ask(ctx, "user-1", "", "What happened to reactor output?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(result.Citations) != 1 || result.Citations[0].DocumentID != doc.ID || result.Citations[0].Filename != "report.txt" {
		t.Fatalf("citations = %+v", result.Citations)
	}

	other, err := chat.Ask(ctx, "user-2", "", "What happened to reactor output?")
	if err != nil {
		t.Fatalf("Ask(user-2) error = %v", err)
	}
	if len(other.Citations) != 0 {
		t.Error("another owner's document was cited")
	}

	unrelated, err := chat.Ask(ctx, "user-1", result.ChatID, "Unrelated question")
	if err != nil {
		t.Fatalf("Ask(unrelated) error = %v", err)
	}
	if len(unrelated.Citations) != 0 {
		t.Error("below-threshold passage was cited")
	}
}
