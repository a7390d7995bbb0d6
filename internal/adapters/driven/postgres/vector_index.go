package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex stores chunk embeddings in a pgvector column with an HNSW
// cosine index. A document's chunk set is replaced inside one transaction.
//
// Queries are always filtered by owner. On pgvector 0.8+ the HNSW scan runs
// iteratively so the filter cannot starve it of candidates. Older versions
// rank the owner's chunks exactly instead of using the HNSW index.
type VectorIndex struct {
	db            *DB
	dimensions    int
	iterativeScan bool
}

const (
	minEfSearch = 40
	maxEfSearch = 1000
)

// NewVectorIndex creates a VectorIndex for vectors of the given size.
// Call Init before use.
func NewVectorIndex(db *DB, dimensions int) *VectorIndex {
	return &VectorIndex{db: db, dimensions: dimensions}
}

// Init creates the extension, table and indexes, then checks that an existing
// table was created for the same vector size.
func (v *VectorIndex) Init(ctx context.Context) error {
	if v.dimensions <= 0 {
		return fmt.Errorf("vector dimensions must be positive, got %d: %w", v.dimensions, domain.ErrConfiguration)
	}

	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS chunks (
			id          VARCHAR(36) PRIMARY KEY,
			document_id VARCHAR(36) NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			owner_id    VARCHAR(36) NOT NULL,
			chunk_index INTEGER NOT NULL,
			content     TEXT NOT NULL,
			start_char  INTEGER NOT NULL,
			end_char    INTEGER NOT NULL,
			embedding   vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks (document_id);
		CREATE INDEX IF NOT EXISTS idx_chunks_owner ON chunks (owner_id);
		CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops);
	`, v.dimensions)

	if _, err := v.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create chunks table: %w", err)
	}

	existing, err := v.columnDimensions(ctx)
	if err != nil {
		return err
	}
	if existing != v.dimensions {
		return fmt.Errorf("chunks.embedding is vector(%d) but the embedding model produces %d dimensions: %w",
			existing, v.dimensions, domain.ErrConfiguration)
	}

	var version string
	if err := v.db.QueryRowContext(ctx, `SELECT extversion FROM pg_extension WHERE extname = 'vector'`).Scan(&version); err != nil {
		return fmt.Errorf("read pgvector version: %w", err)
	}
	v.iterativeScan = supportsIterativeScan(version)
	return nil
}

// supportsIterativeScan reports whether a pgvector version has hnsw.iterative_scan (0.8.0)
func supportsIterativeScan(version string) bool {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return major > 0 || minor >= 8
}

// efSearch sizes the HNSW candidate list for k results
func efSearch(k int) int {
	return min(max(k*4, minEfSearch), maxEfSearch)
}

// StoredDimensions returns the vector size of an existing chunks table, or 0
// when the table has not been created yet.
func StoredDimensions(ctx context.Context, db *DB) (int, error) {
	var typmod int
	err := db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = to_regclass('chunks') AND attname = 'embedding'
	`).Scan(&typmod)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read embedding column size: %w", err)
	}
	return max(typmod, 0), nil
}

// columnDimensions reads the declared size of chunks.embedding from the catalog.
func (v *VectorIndex) columnDimensions(ctx context.Context) (int, error) {
	var typmod int
	err := v.db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'chunks'::regclass AND attname = 'embedding'
	`).Scan(&typmod)
	if err != nil {
		return 0, fmt.Errorf("read embedding column size: %w", err)
	}
	return typmod, nil
}

// Upsert deletes the document's chunks and inserts the new set in one transaction
func (v *VectorIndex) Upsert(ctx context.Context, documentID, ownerID string, chunks []*domain.Chunk) error {
	for i, c := range chunks {
		if len(c.Embedding) != v.dimensions {
			return fmt.Errorf("upsert chunk %d of %d: embedding has %d dimensions, index has %d: %w",
				i+1, len(chunks), len(c.Embedding), v.dimensions, domain.ErrInvalidInput)
		}
	}

	return v.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("delete old chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (id, document_id, owner_id, chunk_index, content, start_char, end_char, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now()
		for _, c := range chunks {
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			_, err := stmt.ExecContext(ctx,
				c.ID,
				documentID,
				ownerID,
				c.Index,
				c.Content,
				c.StartChar,
				c.EndChar,
				pgvector.NewVector(c.Embedding),
				createdAt,
			)
			if err != nil {
				return fmt.Errorf("insert chunk %d: %w", c.Index, err)
			}
		}
		return nil
	})
}

// DeleteByDocument removes a document's chunks. Idempotent.
func (v *VectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := v.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	return err
}

// Query ranks the owner's chunks by cosine similarity.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, q driven.VectorQuery) ([]*domain.ScoredChunk, error) {
	if q.OwnerID == "" {
		return nil, fmt.Errorf("query: owner is required: %w", domain.ErrInvalidInput)
	}
	if len(vector) != v.dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, index has %d: %w", len(vector), v.dimensions, domain.ErrInvalidInput)
	}
	results := []*domain.ScoredChunk{}
	if q.K <= 0 {
		return results, nil
	}

	docIDs := q.DocumentIDs
	if docIDs == nil {
		docIDs = []string{}
	}
	args := []any{pgvector.NewVector(vector), q.OwnerID, pq.Array(docIDs), q.K, q.MinScore}

	if !v.iterativeScan {
		rows, err := v.db.QueryContext(ctx, exactQuery, args...)
		if err != nil {
			return nil, err
		}
		return scanScored(rows)
	}

	err := v.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SET LOCAL hnsw.iterative_scan = relaxed_order`); err != nil {
			return fmt.Errorf("enable iterative scan: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `SELECT set_config('hnsw.ef_search', $1, true)`, strconv.Itoa(efSearch(q.K))); err != nil {
			return fmt.Errorf("set ef_search: %w", err)
		}
		rows, err := tx.QueryContext(ctx, approximateQuery, args...)
		if err != nil {
			return err
		}
		results, err = scanScored(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	// relaxed_order may return neighbours slightly out of order
	sortScored(results)
	return results, nil
}

const chunkColumns = `id, document_id, owner_id, chunk_index, content, start_char, end_char, created_at`

// approximateQuery walks the HNSW index. The threshold is applied after the
// nearest k are found so it does not stop the index scan early.
const approximateQuery = `
	WITH nearest AS MATERIALIZED (
		SELECT ` + chunkColumns + `, embedding <=> $1 AS distance
		FROM chunks
		WHERE owner_id = $2
			AND (cardinality($3::text[]) = 0 OR document_id = ANY($3::text[]))
		ORDER BY embedding <=> $1
		LIMIT $4
	)
	SELECT ` + chunkColumns + `, 1 - distance AS score
	FROM nearest
	WHERE 1 - distance >= $5
`

// exactQuery ranks by score rather than distance, which keeps the planner on
// the owner index instead of the HNSW index.
const exactQuery = `
	SELECT ` + chunkColumns + `, 1 - (embedding <=> $1) AS score
	FROM chunks
	WHERE owner_id = $2
		AND (cardinality($3::text[]) = 0 OR document_id = ANY($3::text[]))
		AND 1 - (embedding <=> $1) >= $5
	ORDER BY score DESC, chunk_index, id
	LIMIT $4
`

func scanScored(rows *sql.Rows) ([]*domain.ScoredChunk, error) {
	defer rows.Close()

	results := []*domain.ScoredChunk{}
	for rows.Next() {
		var c domain.Chunk
		var score float64
		err := rows.Scan(&c.ID, &c.DocumentID, &c.OwnerID, &c.Index, &c.Content, &c.StartChar, &c.EndChar, &c.CreatedAt, &score)
		if err != nil {
			return nil, err
		}
		results = append(results, &domain.ScoredChunk{Chunk: &c, Score: score})
	}
	return results, rows.Err()
}

// sortScored orders hits best first, then by position for equal scores
func sortScored(hits []*domain.ScoredChunk) {
	slices.SortStableFunc(hits, func(a, b *domain.ScoredChunk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Chunk.Index, b.Chunk.Index); c != 0 {
			return c
		}
		return strings.Compare(a.Chunk.ID, b.Chunk.ID)
	})
}

// CountByDocument returns the number of chunks stored for a document
func (v *VectorIndex) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var n int
	err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (v *VectorIndex) Dimensions() int {
	return v.dimensions
}
