package driving

import (
	"context"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// IngestionService accepts uploads and drives them through the indexing pipeline
type IngestionService interface {
	// Ingest stores an upload and schedules it for processing.
	// Returns the pending document without waiting for the pipeline.
	Ingest(ctx context.Context, ownerID, filename string, content []byte) (*domain.Document, error)

	// Process runs the pipeline for one document. Called by workers.
	Process(ctx context.Context, documentID string, attempt domain.Attempt) error

	// Reprocess schedules a completed or failed document for a fresh run
	Reprocess(ctx context.Context, ownerID, documentID string) error

	// Delete removes a document, its chunks and its stored bytes
	Delete(ctx context.Context, ownerID, documentID string) error

	// Get returns a document owned by ownerID
	Get(ctx context.Context, ownerID, documentID string) (*domain.Document, error)

	// List returns a page of an owner's documents
	List(ctx context.Context, ownerID string, opts domain.ListOptions) (*domain.DocumentList, error)

	// RecoverStale resets documents stuck in processing and re-enqueues them
	RecoverStale(ctx context.Context) (int, error)
}
