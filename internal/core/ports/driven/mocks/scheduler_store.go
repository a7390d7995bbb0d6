package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.SchedulerStore = (*MockSchedulerStore)(nil)

// MockSchedulerStore keeps scheduled tasks in a map
type MockSchedulerStore struct {
	mu    sync.Mutex
	tasks map[string]*domain.ScheduledTask
	runs  map[string]int

	GetDueFn     func() ([]*domain.ScheduledTask, error)
	UpdateLastFn func(id, lastError string) error
}

// NewMockSchedulerStore creates a new MockSchedulerStore
func NewMockSchedulerStore() *MockSchedulerStore {
	return &MockSchedulerStore{
		tasks: make(map[string]*domain.ScheduledTask),
		runs:  make(map[string]int),
	}
}

func (m *MockSchedulerStore) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (m *MockSchedulerStore) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.ScheduledTask, 0, len(m.tasks))
	for _, task := range m.tasks {
		cp := *task
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockSchedulerStore) SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

func (m *MockSchedulerStore) GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	if m.GetDueFn != nil {
		return m.GetDueFn()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ScheduledTask
	for _, task := range m.tasks {
		if task.IsDue() {
			cp := *task
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSchedulerStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	if m.UpdateLastFn != nil {
		return m.UpdateLastFn(id, lastError)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	task.UpdateNextRun()
	task.LastError = lastError
	m.runs[id]++
	return nil
}

// SetNextRun moves a task's next run time
func (m *MockSchedulerStore) SetNextRun(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task, ok := m.tasks[id]; ok {
		task.NextRun = at
	}
}

// Runs returns how often UpdateLastRun was recorded for id
func (m *MockSchedulerStore) Runs(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}
