package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DocumentStore = (*DocumentStore)(nil)

const documentColumns = `id, owner_id, filename, file_type, mime_type, size_bytes, status,
	chunk_count, error_message, created_at, updated_at, processed_at`

// DocumentStore implements driven.DocumentStore using PostgreSQL.
// Status changes are conditional updates so concurrent workers cannot both
// claim or finish the same run.
type DocumentStore struct {
	db *DB
}

// NewDocumentStore creates a new DocumentStore
func NewDocumentStore(db *DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Save creates or updates a document
func (s *DocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	query := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			status = EXCLUDED.status,
			chunk_count = EXCLUDED.chunk_count,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at,
			processed_at = EXCLUDED.processed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.OwnerID,
		doc.Filename,
		string(doc.FileType),
		doc.MimeType,
		doc.SizeBytes,
		string(doc.Status),
		doc.ChunkCount,
		domain.TruncateError(doc.ErrorMessage),
		doc.CreatedAt,
		doc.UpdatedAt,
		NullTime(doc.ProcessedAt),
	)
	return err
}

// Get retrieves a document by ID
func (s *DocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return doc, err
}

// GetMany retrieves documents by ID in one round trip
func (s *DocumentStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.Document, error) {
	docs := make(map[string]*domain.Document, len(ids))
	if len(ids) == 0 {
		return docs, nil
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ANY($1)`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs[doc.ID] = doc
	}
	return docs, rows.Err()
}

// List retrieves a page of an owner's documents, newest first
func (s *DocumentStore) List(ctx context.Context, ownerID string, opts domain.ListOptions) (*domain.DocumentList, error) {
	opts = opts.Normalize()

	var total int
	countQuery := `SELECT COUNT(*) FROM documents WHERE owner_id = $1 AND ($2 = '' OR status = $2)`
	if err := s.db.QueryRowContext(ctx, countQuery, ownerID, string(opts.Status)).Scan(&total); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID, string(opts.Status), opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]*domain.Document, 0, opts.Limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.DocumentList{Documents: docs, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

// Delete deletes a document. Its blob goes with it by cascade.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrNotFound)
}

// Transition moves the document to `to` only from one of the `from` states.
// Returning to pending clears the previous error.
func (s *DocumentStore) Transition(ctx context.Context, id string, from []domain.DocumentStatus, to domain.DocumentStatus) (bool, error) {
	states := make([]string, len(from))
	for i, st := range from {
		states[i] = string(st)
	}

	query := `
		UPDATE documents
		SET status = $1,
			updated_at = NOW(),
			error_message = CASE WHEN $1 = 'pending' THEN '' ELSE error_message END
		WHERE id = $2 AND status = ANY($3)
	`
	result, err := s.db.ExecContext(ctx, query, string(to), id, pq.Array(states))
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkCompleted records a successful run
func (s *DocumentStore) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	query := `
		UPDATE documents
		SET status = 'completed', chunk_count = $1, error_message = '', updated_at = NOW(), processed_at = NOW()
		WHERE id = $2 AND status = 'processing'
	`
	result, err := s.db.ExecContext(ctx, query, chunkCount, id)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrNotFound)
}

// MarkFailed records a failed run; the message is truncated to fit
func (s *DocumentStore) MarkFailed(ctx context.Context, id string, message string) error {
	query := `
		UPDATE documents
		SET status = 'failed', chunk_count = 0, error_message = $1, updated_at = NOW(), processed_at = NOW()
		WHERE id = $2 AND status = 'processing'
	`
	result, err := s.db.ExecContext(ctx, query, domain.TruncateError(message), id)
	if err != nil {
		return err
	}
	return expectOne(result, domain.ErrNotFound)
}

// ListStale returns documents stuck in processing since before cutoff
func (s *DocumentStore) ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at
	`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var processedAt sql.NullTime

	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.Filename,
		&doc.FileType,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.Status,
		&doc.ChunkCount,
		&doc.ErrorMessage,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.ProcessedAt = TimePtr(processedAt)
	return &doc, nil
}
