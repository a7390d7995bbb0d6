package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driving"
)

// Ensure answerService implements AnswerService
var _ driving.AnswerService = (*answerService)(nil)

const (
	DefaultHistoryTurns     = 6
	DefaultCallTimeout      = 60 * time.Second
	DefaultGenerationBudget = 90 * time.Second

	defaultGenerationAttempts = 3
	defaultRetryBase          = 500 * time.Millisecond

	historyPreviewLen  = 500
	citationPreviewLen = 200
	titleFallbackLen   = 60
	titleMaxWords      = 5
	titleMaxLen        = 100
)

const groundedInstruction = `You are a helpful assistant answering questions about the user's uploaded documents.
Use the numbered sources in the context to answer and cite them as [Source n] where you rely on them.
If the sources do not cover the question, say so and answer from general knowledge.
Be accurate and concise. If you do not know something, say so clearly.`

const generalInstruction = `You are a helpful assistant. None of the user's uploaded documents matched this question,
so answer from general knowledge. Be accurate and concise. If you do not know something, say so clearly.`

var errEmptyReply = errors.New("model returned an empty reply")

// AnswerConfig wires the answer generator
type AnswerConfig struct {
	LLM    driven.LLMService
	Logger *slog.Logger

	HistoryTurns int
	CallTimeout  time.Duration // Per model call
	Budget       time.Duration // Across all attempts
	MaxAttempts  int
	RetryBase    time.Duration
	Temperature  float64
	MaxTokens    int
}

type answerService struct {
	llm          driven.LLMService
	logger       *slog.Logger
	historyTurns int
	callTimeout  time.Duration
	budget       time.Duration
	maxAttempts  int
	retryBase    time.Duration
	opts         driven.ChatOptions
}

// NewAnswerService creates the answer generator
func NewAnswerService(cfg AnswerConfig) driving.AnswerService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultGenerationBudget
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultGenerationAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	return &answerService{
		llm:          cfg.LLM,
		logger:       logger.With("service", "answer"),
		historyTurns: cfg.HistoryTurns,
		callTimeout:  cfg.CallTimeout,
		budget:       cfg.Budget,
		maxAttempts:  cfg.MaxAttempts,
		retryBase:    cfg.RetryBase,
		opts:         driven.ChatOptions{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
	}
}

// Generate answers question from passages and recent history
func (s *answerService) Generate(ctx context.Context, question string, passages []*domain.RetrievedPassage, history []*domain.Message) (answer *domain.Answer, err error) {
	ctx, span := tracer.Start(ctx, "answer.generate", trace.WithAttributes(
		attribute.Int("passages", len(passages)),
		attribute.Int("history", len(history)),
	))
	defer func() { endSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	passages = dedupePassages(passages)
	messages := s.buildPrompt(question, passages, history)

	var lastErr error
	attempt := 0
	for attempt < s.maxAttempts {
		attempt++
		reply, err := s.call(ctx, messages)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return &domain.Answer{Text: reply, Citations: citations(passages)}, nil
		}
		lastErr = err

		if !errors.Is(err, errEmptyReply) && !domain.IsRetryable(err) {
			break
		}
		if attempt == s.maxAttempts || ctx.Err() != nil {
			break
		}

		backoff := s.retryBase << (attempt - 1)
		s.logger.Warn("generation failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		if ctx.Err() != nil {
			break
		}
	}

	s.logger.Error("generation failed", "attempts", attempt, "error", lastErr)
	if errors.Is(lastErr, domain.ErrGenerationUnavailable) {
		return nil, fmt.Errorf("generate answer after %d attempts: %w", attempt, lastErr)
	}
	return nil, fmt.Errorf("%w: after %d attempts: %w", domain.ErrGenerationUnavailable, attempt, lastErr)
}

func (s *answerService) call(ctx context.Context, messages []driven.ChatMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	reply, err := s.llm.Chat(ctx, messages, s.opts)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", errEmptyReply
	}
	return reply, nil
}

// buildPrompt lays out instruction, sources, history and question
func (s *answerService) buildPrompt(question string, passages []*domain.RetrievedPassage, history []*domain.Message) []driven.ChatMessage {
	instruction := groundedInstruction
	if len(passages) == 0 {
		instruction = generalInstruction
	}

	var b strings.Builder
	if len(passages) > 0 {
		b.WriteString("Context:\n")
		for i, p := range passages {
			fmt.Fprintf(&b, "\n[Source %d: %s (Relevance: %.2f)]\n", i+1, p.Filename, p.Score)
			b.WriteString(p.Chunk.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(history) > s.historyTurns {
		history = history[len(history)-s.historyTurns:]
	}
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range history {
			speaker := "User"
			if m.Role == domain.MessageRoleAssistant {
				speaker = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, domain.Preview(m.Content, historyPreviewLen))
		}
		b.WriteString("\n")
	}

	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))

	return []driven.ChatMessage{
		{Role: driven.ChatRoleSystem, Content: instruction},
		{Role: driven.ChatRoleUser, Content: b.String()},
	}
}

func dedupePassages(passages []*domain.RetrievedPassage) []*domain.RetrievedPassage {
	seen := make(map[string]bool, len(passages))
	out := make([]*domain.RetrievedPassage, 0, len(passages))
	for _, p := range passages {
		if p == nil || p.Chunk == nil || seen[p.Chunk.ID] {
			continue
		}
		seen[p.Chunk.ID] = true
		out = append(out, p)
	}
	return out
}

// citations snapshots exactly the passages placed in the prompt
func citations(passages []*domain.RetrievedPassage) []domain.Citation {
	out := make([]domain.Citation, 0, len(passages))
	for _, p := range passages {
		out = append(out, domain.Citation{
			DocumentID: p.Chunk.DocumentID,
			ChunkID:    p.Chunk.ID,
			Filename:   p.Filename,
			Relevance:  p.Score,
			Preview:    domain.Preview(p.Chunk.Content, citationPreviewLen),
		})
	}
	return out
}

// Title names a chat after its first message. It never fails: model errors
// fall back to a truncated copy of the message.
func (s *answerService) Title(ctx context.Context, firstMessage string) string {
	fallback := fallbackTitle(firstMessage)
	if fallback == domain.DefaultChatTitle {
		return fallback
	}

	prompt := fmt.Sprintf("Generate a short, descriptive title (%d words max) for a conversation that starts with this message:\n\n%q\n\nRespond with only the title, no quotes or punctuation at the end.",
		titleMaxWords, domain.Preview(firstMessage, historyPreviewLen))

	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	reply, err := s.llm.Chat(ctx, []driven.ChatMessage{{Role: driven.ChatRoleUser, Content: prompt}}, driven.ChatOptions{Temperature: 0.3, MaxTokens: 32})
	if err != nil {
		s.logger.Warn("title generation failed", "error", err)
		return fallback
	}
	if title := cleanTitle(reply); title != "" {
		return title
	}
	return fallback
}

func cleanTitle(reply string) string {
	line := strings.TrimSpace(reply)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if len(line) >= 6 && strings.EqualFold(line[:6], "title:") {
		line = line[6:]
	}
	line = strings.Trim(strings.TrimSpace(line), "\"'`*")
	line = strings.TrimRight(line, ".!?:;, ")

	words := strings.Fields(line)
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	title := strings.Join(words, " ")
	if len([]rune(title)) > titleMaxLen {
		title = string([]rune(title)[:titleMaxLen])
	}
	return title
}

func fallbackTitle(message string) string {
	collapsed := strings.Join(strings.Fields(message), " ")
	if collapsed == "" {
		return domain.DefaultChatTitle
	}
	return domain.Preview(collapsed, titleFallbackLen)
}
