package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.DocumentStore = (*MockDocumentStore)(nil)

// MockDocumentStore is an in-memory DocumentStore. Returned documents are
// copies so callers cannot mutate stored state.
type MockDocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*domain.Document

	// Optional failure injection
	SaveFn func(doc *domain.Document) error
}

// NewMockDocumentStore creates a new MockDocumentStore
func NewMockDocumentStore() *MockDocumentStore {
	return &MockDocumentStore{documents: make(map[string]*domain.Document)}
}

func (m *MockDocumentStore) Save(ctx context.Context, doc *domain.Document) error {
	if m.SaveFn != nil {
		if err := m.SaveFn(doc); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.documents[doc.ID] = &cp
	return nil
}

func (m *MockDocumentStore) Get(ctx context.Context, id string) (*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *MockDocumentStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*domain.Document, len(ids))
	for _, id := range ids {
		if doc, ok := m.documents[id]; ok {
			cp := *doc
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *MockDocumentStore) List(ctx context.Context, ownerID string, opts domain.ListOptions) (*domain.DocumentList, error) {
	opts = opts.Normalize()
	m.mu.RLock()
	var docs []*domain.Document
	for _, doc := range m.documents {
		if doc.OwnerID != ownerID {
			continue
		}
		if opts.Status != "" && doc.Status != opts.Status {
			continue
		}
		cp := *doc
		docs = append(docs, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	total := len(docs)
	start := min(opts.Offset, total)
	end := min(start+opts.Limit, total)
	return &domain.DocumentList{
		Documents: docs[start:end],
		Total:     total,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	}, nil
}

func (m *MockDocumentStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.documents, id)
	return nil
}

func (m *MockDocumentStore) Transition(ctx context.Context, id string, from []domain.DocumentStatus, to domain.DocumentStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if doc.Status == s {
			doc.Status = to
			doc.UpdatedAt = time.Now()
			if to == domain.DocumentStatusPending {
				doc.ErrorMessage = ""
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *MockDocumentStore) MarkCompleted(ctx context.Context, id string, chunkCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok || doc.Status != domain.DocumentStatusProcessing {
		return domain.ErrNotFound
	}
	now := time.Now()
	doc.Status = domain.DocumentStatusCompleted
	doc.ChunkCount = chunkCount
	doc.ErrorMessage = ""
	doc.UpdatedAt = now
	doc.ProcessedAt = &now
	return nil
}

func (m *MockDocumentStore) MarkFailed(ctx context.Context, id string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[id]
	if !ok || doc.Status != domain.DocumentStatusProcessing {
		return domain.ErrNotFound
	}
	now := time.Now()
	doc.Status = domain.DocumentStatusFailed
	doc.ChunkCount = 0
	doc.ErrorMessage = domain.TruncateError(message)
	doc.UpdatedAt = now
	doc.ProcessedAt = &now
	return nil
}

func (m *MockDocumentStore) ListStale(ctx context.Context, cutoff time.Time) ([]*domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Document
	for _, doc := range m.documents {
		if doc.Status == domain.DocumentStatusProcessing && doc.UpdatedAt.Before(cutoff) {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SetStatus forces a document into a state (for test setup)
func (m *MockDocumentStore) SetStatus(id string, status domain.DocumentStatus, updatedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.documents[id]; ok {
		doc.Status = status
		doc.UpdatedAt = updatedAt
	}
}

// Len returns the number of stored documents
func (m *MockDocumentStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.documents)
}
