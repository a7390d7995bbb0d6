package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.BlobStore = (*MockBlobStore)(nil)

// MockBlobStore keeps uploaded bytes in memory
type MockBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMockBlobStore creates a new MockBlobStore
func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{blobs: make(map[string][]byte)}
}

func (m *MockBlobStore) Put(ctx context.Context, documentID string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[documentID] = append([]byte(nil), content...)
	return nil
}

func (m *MockBlobStore) Get(ctx context.Context, documentID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (m *MockBlobStore) Delete(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, documentID)
	return nil
}

// Has reports whether bytes are stored for documentID
func (m *MockBlobStore) Has(documentID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[documentID]
	return ok
}
