package driving

import (
	"context"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// RetrievalService finds the passages most relevant to a question
type RetrievalService interface {
	// Retrieve returns ranked passages scoped to opts.OwnerID.
	// No match is an empty slice and a nil error.
	Retrieve(ctx context.Context, question string, opts domain.RetrieveOptions) ([]*domain.RetrievedPassage, error)
}

// AnswerService produces grounded answers from passages
type AnswerService interface {
	// Generate answers question from passages and recent history
	Generate(ctx context.Context, question string, passages []*domain.RetrievedPassage, history []*domain.Message) (*domain.Answer, error)

	// Title derives a short chat title from the first question
	Title(ctx context.Context, firstMessage string) string
}
