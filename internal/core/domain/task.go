package domain

import (
	"time"

	"github.com/google/uuid"
)

// GenerateID creates a unique random ID.
func GenerateID() string {
	return uuid.NewString()
}

// TaskType identifies the type of background task
type TaskType string

const (
	// TaskTypeIngestDocument runs the ingestion pipeline for one document
	TaskTypeIngestDocument TaskType = "ingest_document"
	// TaskTypeRecoverStale resets documents stuck in processing
	TaskTypeRecoverStale TaskType = "recover_stale"
	// TaskTypePurgeTasks removes old finished tasks
	TaskTypePurgeTasks TaskType = "purge_tasks"
)

// SystemOwner owns maintenance tasks that are not tied to a user
const SystemOwner = "system"

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsFinished returns true for completed and failed tasks
func (s TaskStatus) IsFinished() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task represents a background job to be processed by workers
type Task struct {
	ID      string   `json:"id"`
	Type    TaskType `json:"type"`
	OwnerID string   `json:"owner_id"`

	// Payload contains task-specific data
	// For ingest_document: {"document_id": "..."}
	Payload map[string]string `json:"payload"`

	Status   TaskStatus `json:"status"`
	Priority int        `json:"priority"` // Higher = more urgent

	// Attempts counts started runs, including the current one
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Error       string `json:"error,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ScheduledFor time.Time  `json:"scheduled_for"`
}

// NewTask creates a new task with default values
func NewTask(taskType TaskType, ownerID string, payload map[string]string) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		Type:         taskType,
		OwnerID:      ownerID,
		Payload:      payload,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// NewIngestTask creates a task to ingest one document
func NewIngestTask(ownerID, documentID string) *Task {
	return NewTask(TaskTypeIngestDocument, ownerID, map[string]string{
		"document_id": documentID,
	})
}

// DocumentID extracts the document_id from the payload
func (t *Task) DocumentID() string {
	if t.Payload == nil {
		return ""
	}
	return t.Payload["document_id"]
}

// CanRetry returns true if the task can be retried
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// IsFinalAttempt returns true when a failure of the current run will not be retried
func (t *Task) IsFinalAttempt() bool {
	return !t.CanRetry()
}

// IsReady returns true if the task is ready to be processed
func (t *Task) IsReady() bool {
	return t.Status == TaskStatusPending && !time.Now().Before(t.ScheduledFor)
}

// MarkProcessing updates the task to processing state
func (t *Task) MarkProcessing() {
	now := time.Now()
	t.Status = TaskStatusProcessing
	t.StartedAt = &now
	t.UpdatedAt = now
	t.Attempts++
}

// MarkCompleted updates the task to completed state
func (t *Task) MarkCompleted() {
	now := time.Now()
	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	t.Error = ""
}

// MarkFailed updates the task to failed state
func (t *Task) MarkFailed(err string) {
	t.Status = TaskStatusFailed
	t.UpdatedAt = time.Now()
	t.Error = err
}

// Retry resets the task for retry with exponential backoff
func (t *Task) Retry(err string) {
	now := time.Now()
	t.Status = TaskStatusPending
	t.UpdatedAt = now
	t.Error = err
	t.ScheduledFor = now.Add(RetryBackoff(t.Attempts))
}

// RetryBackoff returns 1s, 2s, 4s, ... capped at 5 minutes
func RetryBackoff(attempts int) time.Duration {
	if attempts > 16 {
		return 5 * time.Minute
	}
	backoff := time.Duration(1<<attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	return backoff
}

// ScheduledTask represents a recurring task configuration
type ScheduledTask struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      TaskType      `json:"type"`
	Interval  time.Duration `json:"interval"`
	Enabled   bool          `json:"enabled"`
	LastRun   *time.Time    `json:"last_run,omitempty"`
	NextRun   time.Time     `json:"next_run"`
	LastError string        `json:"last_error,omitempty"`
}

// NewScheduledTask creates a new scheduled task
func NewScheduledTask(id, name string, taskType TaskType, interval time.Duration) *ScheduledTask {
	return &ScheduledTask{
		ID:       id,
		Name:     name,
		Type:     taskType,
		Interval: interval,
		Enabled:  true,
		NextRun:  time.Now().Add(interval),
	}
}

// IsDue returns true if the scheduled task should be triggered
func (s *ScheduledTask) IsDue() bool {
	return s.Enabled && !time.Now().Before(s.NextRun)
}

// UpdateNextRun calculates the next run time after execution
func (s *ScheduledTask) UpdateNextRun() {
	now := time.Now()
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
}

// DefaultSchedules returns the maintenance schedules every deployment runs
func DefaultSchedules() []*ScheduledTask {
	return []*ScheduledTask{
		NewScheduledTask("recover-stale", "Recover stale ingestion", TaskTypeRecoverStale, 5*time.Minute),
		NewScheduledTask("purge-tasks", "Purge finished tasks", TaskTypePurgeTasks, 24*time.Hour),
	}
}

// Attempt describes the current run of a task
type Attempt struct {
	Number int
	Final  bool // No retry follows a failure of this run
}

// CurrentAttempt returns the attempt a processing task is on
func (t *Task) CurrentAttempt() Attempt {
	return Attempt{Number: t.Attempts, Final: t.IsFinalAttempt()}
}
