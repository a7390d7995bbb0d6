package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// VectorQuery scopes a nearest-neighbour search.
type VectorQuery struct {
	// OwnerID restricts results to one owner (required)
	OwnerID string

	// DocumentIDs further restricts results (optional)
	DocumentIDs []string

	// K is the maximum number of results
	K int

	// MinScore drops results with a lower cosine similarity
	MinScore float64
}

// VectorIndex stores chunk embeddings and answers owner-scoped similarity queries.
type VectorIndex interface {
	// Upsert replaces the full chunk set of a document in one atomic step.
	// On error none of the new chunks are visible and the old set is intact.
	Upsert(ctx context.Context, documentID, ownerID string, chunks []*domain.Chunk) error

	// DeleteByDocument removes every chunk of a document. Idempotent.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Query returns at most K chunks ordered by descending score.
	// Ties are broken by ascending chunk index, then chunk ID.
	Query(ctx context.Context, vector []float32, q VectorQuery) ([]*domain.ScoredChunk, error)

	// CountByDocument returns the number of indexed chunks for a document.
	CountByDocument(ctx context.Context, documentID string) (int, error)

	// Dimensions returns the vector dimension of the index.
	Dimensions() int
}
