// Package memory holds process-local adapters for tests and single-node
// development. Nothing here survives a restart.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.VectorIndex = (*VectorIndex)(nil)

type indexedChunk struct {
	chunk *domain.Chunk
	norm  float64
}

type documentEntry struct {
	ownerID string
	chunks  []indexedChunk
}

// VectorIndex is an exact brute-force cosine index. A document's chunk set is
// built off to the side and swapped in whole, so readers never see a partial set.
type VectorIndex struct {
	mu         sync.RWMutex
	dimensions int
	documents  map[string]*documentEntry
}

// NewVectorIndex creates an empty index for vectors of the given size.
func NewVectorIndex(dimensions int) *VectorIndex {
	return &VectorIndex{
		dimensions: dimensions,
		documents:  make(map[string]*documentEntry),
	}
}

// Upsert replaces the document's chunks. An invalid chunk anywhere in the set
// rejects the whole call and leaves the previous set in place.
func (v *VectorIndex) Upsert(ctx context.Context, documentID, ownerID string, chunks []*domain.Chunk) error {
	if documentID == "" || ownerID == "" {
		return fmt.Errorf("upsert: document and owner are required: %w", domain.ErrInvalidInput)
	}

	entry := &documentEntry{ownerID: ownerID, chunks: make([]indexedChunk, 0, len(chunks))}
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(c.Embedding) != v.dimensions {
			return fmt.Errorf("upsert chunk %d of %d: embedding has %d dimensions, index has %d: %w",
				i+1, len(chunks), len(c.Embedding), v.dimensions, domain.ErrInvalidInput)
		}
		stored := *c
		stored.DocumentID = documentID
		stored.OwnerID = ownerID
		stored.Embedding = append([]float32(nil), c.Embedding...)
		entry.chunks = append(entry.chunks, indexedChunk{chunk: &stored, norm: norm(stored.Embedding)})
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if len(entry.chunks) == 0 {
		delete(v.documents, documentID)
		return nil
	}
	v.documents[documentID] = entry
	return nil
}

// DeleteByDocument drops a document's chunks.
func (v *VectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.documents, documentID)
	return nil
}

// Query scans every chunk the owner can see.
func (v *VectorIndex) Query(ctx context.Context, vector []float32, q driven.VectorQuery) ([]*domain.ScoredChunk, error) {
	if q.OwnerID == "" {
		return nil, fmt.Errorf("query: owner is required: %w", domain.ErrInvalidInput)
	}
	if len(vector) != v.dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, index has %d: %w", len(vector), v.dimensions, domain.ErrInvalidInput)
	}
	if q.K <= 0 {
		return []*domain.ScoredChunk{}, nil
	}

	var allowed map[string]bool
	if len(q.DocumentIDs) > 0 {
		allowed = make(map[string]bool, len(q.DocumentIDs))
		for _, id := range q.DocumentIDs {
			allowed[id] = true
		}
	}
	qnorm := norm(vector)

	v.mu.RLock()
	var hits []*domain.ScoredChunk
	for docID, entry := range v.documents {
		if entry.ownerID != q.OwnerID || (allowed != nil && !allowed[docID]) {
			continue
		}
		for _, ic := range entry.chunks {
			score := cosine(vector, qnorm, ic.chunk.Embedding, ic.norm)
			if score < q.MinScore {
				continue
			}
			c := *ic.chunk
			hits = append(hits, &domain.ScoredChunk{Chunk: &c, Score: score})
		}
	}
	v.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.Index != b.Chunk.Index {
			return a.Chunk.Index < b.Chunk.Index
		}
		return a.Chunk.ID < b.Chunk.ID
	})
	if len(hits) > q.K {
		hits = hits[:q.K]
	}
	if hits == nil {
		hits = []*domain.ScoredChunk{}
	}
	return hits, nil
}

// CountByDocument returns the number of chunks stored for a document.
func (v *VectorIndex) CountByDocument(ctx context.Context, documentID string) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if entry, ok := v.documents[documentID]; ok {
		return len(entry.chunks), nil
	}
	return 0, nil
}

func (v *VectorIndex) Dimensions() int {
	return v.dimensions
}

// Len returns the total number of chunks across all documents.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n := 0
	for _, entry := range v.documents {
		n += len(entry.chunks)
	}
	return n
}

func norm(vec []float32) float64 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector is all zeros.
func cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}
