package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

func setupQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	q, err := NewQueue(context.Background(), client, Config{ConsumerName: "test-worker"})
	require.NoError(t, err)
	return q, mr
}

func TestNewQueue_GroupAlreadyExists(t *testing.T) {
	q, mr := setupQueue(t)
	require.NotNil(t, q)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	_, err := NewQueue(context.Background(), client, Config{})
	assert.NoError(t, err)
}

func TestNewQueue_RequiresClient(t *testing.T) {
	_, err := NewQueue(context.Background(), nil, Config{})
	assert.Error(t, err)
}

func TestQueue_EnqueueDequeueAck(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	task := domain.NewIngestTask("owner-1", "doc-1")
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "doc-1", got.DocumentID())
	assert.Equal(t, domain.TaskStatusProcessing, got.Status)
	assert.Equal(t, 1, got.Attempts)

	require.NoError(t, q.Ack(ctx, got.ID))

	stored, err := q.GetTask(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, stored.Status)

	next, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestQueue_DequeueEmpty(t *testing.T) {
	q, _ := setupQueue(t)

	task, err := q.DequeueWithTimeout(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestQueue_NackRetriesThenFails(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	task := domain.NewIngestTask("owner-1", "doc-1")
	task.MaxAttempts = 2
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NoError(t, q.Nack(ctx, got.ID, "embedding unavailable"))

	stored, err := q.GetTask(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, stored.Status)
	assert.Equal(t, "embedding unavailable", stored.Error)
	assert.True(t, stored.ScheduledFor.After(time.Now()))

	// Still backing off
	none, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, none)

	// Make the retry due
	_, err = mr.ZAdd(scheduledTasks, 0, got.ID)
	require.NoError(t, err)

	again, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.Attempts)
	assert.True(t, again.IsFinalAttempt())

	require.NoError(t, q.Nack(ctx, again.ID, "still down"))

	stored, err = q.GetTask(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	assert.False(t, mr.Exists(scheduledTasks))
}

func TestQueue_DelayedTaskWaits(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	task := domain.NewIngestTask("owner-1", "doc-1")
	task.ScheduledFor = time.Now().Add(time.Hour)
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, got)

	members, err := mr.ZMembers(scheduledTasks)
	require.NoError(t, err)
	assert.Equal(t, []string{task.ID}, members)
}

func TestQueue_SkipsFinishedTask(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	task := domain.NewIngestTask("owner-1", "doc-1")
	task.MarkCompleted()
	require.NoError(t, q.Enqueue(ctx, task))

	got, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueue_GetTaskNotFound(t *testing.T) {
	q, _ := setupQueue(t)

	_, err := q.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, q.Ack(context.Background(), "missing"), domain.ErrNotFound)
}

func TestQueue_ListStatsPurge(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	a := domain.NewIngestTask("alice", "doc-a")
	b := domain.NewIngestTask("bob", "doc-b")
	sweep := domain.NewTask(domain.TaskTypeRecoverStale, domain.SystemOwner, nil)
	require.NoError(t, q.EnqueueBatch(ctx, []*domain.Task{a, b, sweep}))

	got, err := q.DequeueWithTimeout(ctx, 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NoError(t, q.Ack(ctx, got.ID))

	tasks, err := q.ListTasks(ctx, driven.TaskFilter{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, a.ID, tasks[0].ID)

	tasks, err = q.ListTasks(ctx, driven.TaskFilter{Type: domain.TaskTypeIngestDocument})
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = q.ListTasks(ctx, driven.TaskFilter{Limit: 1, Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.PendingCount)
	assert.Equal(t, int64(1), stats.CompletedCount)

	purged, err := q.PurgeTasks(ctx, 3600)
	require.NoError(t, err)
	assert.Equal(t, 0, purged)

	time.Sleep(5 * time.Millisecond)
	purged, err = q.PurgeTasks(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = q.GetTask(ctx, got.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.CompletedCount)
	assert.Equal(t, int64(2), stats.PendingCount)
}

func TestQueue_Ping(t *testing.T) {
	q, mr := setupQueue(t)
	assert.NoError(t, q.Ping(context.Background()))
	mr.Close()
	assert.Error(t, q.Ping(context.Background()))
	assert.NoError(t, q.Close())
}
