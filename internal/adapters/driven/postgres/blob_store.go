package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.BlobStore = (*BlobStore)(nil)

// BlobStore keeps uploaded bytes in a bytea column next to the document row,
// so the worker can read them from any host.
type BlobStore struct {
	db *DB
}

// NewBlobStore creates a new BlobStore
func NewBlobStore(db *DB) *BlobStore {
	return &BlobStore{db: db}
}

// Put stores or replaces a document's bytes. The document row must exist.
func (s *BlobStore) Put(ctx context.Context, documentID string, content []byte) error {
	query := `
		INSERT INTO document_blobs (document_id, content)
		VALUES ($1, $2)
		ON CONFLICT (document_id) DO UPDATE SET content = EXCLUDED.content
	`
	_, err := s.db.ExecContext(ctx, query, documentID, content)
	return err
}

// Get returns a document's bytes
func (s *BlobStore) Get(ctx context.Context, documentID string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM document_blobs WHERE document_id = $1`, documentID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return content, err
}

// Delete removes a document's bytes. Idempotent.
func (s *BlobStore) Delete(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM document_blobs WHERE document_id = $1`, documentID)
	return err
}
