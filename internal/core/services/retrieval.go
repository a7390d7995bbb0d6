package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driving"
)

// Ensure retrievalService implements RetrievalService
var _ driving.RetrievalService = (*retrievalService)(nil)

// RetrievalConfig wires the retrieval engine
type RetrievalConfig struct {
	Embedder  driven.EmbeddingService
	Index     driven.VectorIndex
	Documents driven.DocumentStore
	Logger    *slog.Logger

	TopK int
	// MinScore is the default threshold. Nil means domain.DefaultMinScore.
	MinScore *float64
}

type retrievalService struct {
	embedder  driven.EmbeddingService
	index     driven.VectorIndex
	documents driven.DocumentStore
	logger    *slog.Logger
	topK      int
	minScore  float64
}

// NewRetrievalService creates the retrieval engine
func NewRetrievalService(cfg RetrievalConfig) driving.RetrievalService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = domain.DefaultTopK
	}
	minScore := domain.DefaultMinScore
	if cfg.MinScore != nil {
		minScore = *cfg.MinScore
	}
	return &retrievalService{
		embedder:  cfg.Embedder,
		index:     cfg.Index,
		documents: cfg.Documents,
		logger:    logger.With("service", "retrieval"),
		topK:      cfg.TopK,
		minScore:  minScore,
	}
}

// Retrieve embeds the question and returns the owner's closest passages,
// best first, each labelled with its source filename.
func (s *retrievalService) Retrieve(ctx context.Context, question string, opts domain.RetrieveOptions) (passages []*domain.RetrievedPassage, err error) {
	ctx, span := tracer.Start(ctx, "retrieval.retrieve", trace.WithAttributes(
		attribute.String("owner.id", opts.OwnerID),
	))
	defer func() { endSpan(span, err) }()

	if opts.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrInvalidInput)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	if opts.K <= 0 {
		opts.K = s.topK
	}
	minScore := s.minScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}

	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		if domain.IsRetryable(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	hits, err := s.index.Query(ctx, vector, driven.VectorQuery{
		OwnerID:     opts.OwnerID,
		DocumentIDs: opts.DocumentIDs,
		K:           opts.K,
		MinScore:    minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	if len(hits) == 0 {
		return []*domain.RetrievedPassage{}, nil
	}

	ids := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, hit := range hits {
		if !seen[hit.Chunk.DocumentID] {
			seen[hit.Chunk.DocumentID] = true
			ids = append(ids, hit.Chunk.DocumentID)
		}
	}
	docs, err := s.documents.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}

	passages = make([]*domain.RetrievedPassage, 0, len(hits))
	for _, hit := range hits {
		doc, ok := docs[hit.Chunk.DocumentID]
		if !ok {
			// Deleted between the index query and the lookup
			continue
		}
		passages = append(passages, &domain.RetrievedPassage{
			Chunk:    hit.Chunk,
			Score:    hit.Score,
			Filename: doc.Filename,
		})
	}

	span.SetAttributes(attribute.Int("passages", len(passages)))
	s.logger.Debug("retrieved passages", "owner_id", opts.OwnerID, "hits", len(hits), "passages", len(passages))
	return passages, nil
}
