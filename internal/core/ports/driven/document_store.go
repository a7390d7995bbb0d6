package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// DocumentStore handles document persistence (PostgreSQL)
type DocumentStore interface {
	// Save creates or updates a document
	Save(ctx context.Context, doc *domain.Document) error

	// Get retrieves a document by ID
	Get(ctx context.Context, id string) (*domain.Document, error)

	// GetMany retrieves documents by ID, keyed by ID. Missing IDs are skipped.
	GetMany(ctx context.Context, ids []string) (map[string]*domain.Document, error)

	// List retrieves a page of an owner's documents, newest first
	List(ctx context.Context, ownerID string, opts domain.ListOptions) (*domain.DocumentList, error)

	// Delete deletes a document
	Delete(ctx context.Context, id string) error

	// Transition moves a document to status `to` only if it is currently in one
	// of `from`. Returns false when the document was not in an allowed state.
	Transition(ctx context.Context, id string, from []domain.DocumentStatus, to domain.DocumentStatus) (bool, error)

	// MarkCompleted records a successful run. Applies only while processing.
	MarkCompleted(ctx context.Context, id string, chunkCount int) error

	// MarkFailed records a failed run. Applies only while processing.
	MarkFailed(ctx context.Context, id string, message string) error

	// ListStale returns documents that have been processing since before cutoff
	ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Document, error)
}

// BlobStore keeps the uploaded bytes of a document until it is deleted
type BlobStore interface {
	Put(ctx context.Context, documentID string, content []byte) error
	Get(ctx context.Context, documentID string) ([]byte, error)
	Delete(ctx context.Context, documentID string) error
}
