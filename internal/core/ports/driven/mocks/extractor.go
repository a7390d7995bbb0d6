package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.Extractor = (*MockExtractor)(nil)

// MockExtractor treats every supported file as UTF-8 text unless ExtractFn is set
type MockExtractor struct {
	mu        sync.Mutex
	calls     int
	ExtractFn func(content []byte, fileType domain.FileType) (string, error)
}

// NewMockExtractor creates a new MockExtractor
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

func (m *MockExtractor) Extract(ctx context.Context, content []byte, fileType domain.FileType) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ExtractFn != nil {
		return m.ExtractFn(content, fileType)
	}
	if !m.Supports(fileType) {
		return "", domain.ErrUnsupportedFormat
	}
	return string(content), nil
}

func (m *MockExtractor) Supports(fileType domain.FileType) bool {
	return fileType.IsSupported()
}

// Calls returns the number of Extract calls
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockCommandRunner replays canned output per program name
type MockCommandRunner struct {
	mu    sync.Mutex
	RunFn func(name string, args []string) ([]byte, error)
	calls [][]string
}

func (m *MockCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string{name}, args...))
	m.mu.Unlock()
	if m.RunFn == nil {
		return nil, nil
	}
	return m.RunFn(name, args)
}

// Calls returns every command line executed
func (m *MockCommandRunner) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.calls...)
}
