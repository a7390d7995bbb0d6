package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/redis/go-redis/v9"
)

const (
	taskStream     = "sercha-ask:tasks"
	taskGroup      = "sercha-ask:workers"
	scheduledTasks = "sercha-ask:scheduled"
	taskIndex      = "sercha-ask:task-index"
	taskMessages   = "sercha-ask:task-messages" // task ID -> stream message ID while claimed
	taskKeyPrefix  = "sercha-ask:task:"

	consumerPrefix = "worker-"

	// DefaultClaimTimeout is how long a claimed message may sit unacknowledged
	// before another worker takes it over. It must exceed the worker's task timeout.
	DefaultClaimTimeout = 20 * time.Minute

	// DefaultTaskTTL bounds how long a task record survives without a purge
	DefaultTaskTTL = 7 * 24 * time.Hour
)

// Verify interface compliance
var _ driven.TaskQueue = (*Queue)(nil)

// Config configures the Redis queue
type Config struct {
	// ConsumerName must be unique per worker process. Generated when empty.
	ConsumerName string
	ClaimTimeout time.Duration
	TaskTTL      time.Duration
	Logger       *slog.Logger
}

// Queue implements TaskQueue on a Redis Stream with one consumer group.
// Task records live in plain keys; the stream only carries task IDs.
// Delayed tasks (retries) wait in a sorted set until they are due.
type Queue struct {
	client       *redis.Client
	consumerName string
	claimTimeout time.Duration
	taskTTL      time.Duration
	logger       *slog.Logger
}

// NewQueue creates the consumer group if needed and returns the queue
func NewQueue(ctx context.Context, client *redis.Client, cfg Config) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = fmt.Sprintf("%s%d", consumerPrefix, time.Now().UnixNano())
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = DefaultClaimTimeout
	}
	if cfg.TaskTTL <= 0 {
		cfg.TaskTTL = DefaultTaskTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	err := client.XGroupCreateMkStream(ctx, taskStream, taskGroup, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Queue{
		client:       client,
		consumerName: cfg.ConsumerName,
		claimTimeout: cfg.ClaimTimeout,
		taskTTL:      cfg.TaskTTL,
		logger:       cfg.Logger.With("component", "redis-queue"),
	}, nil
}

// Enqueue adds a task to the queue for processing.
func (q *Queue) Enqueue(ctx context.Context, task *domain.Task) error {
	if task == nil {
		return errors.New("task is required")
	}
	return q.EnqueueBatch(ctx, []*domain.Task{task})
}

// EnqueueBatch adds multiple tasks in one MULTI/EXEC.
func (q *Queue) EnqueueBatch(ctx context.Context, tasks []*domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	now := time.Now()
	pipe := q.client.TxPipeline()
	for _, task := range tasks {
		if task == nil {
			continue
		}
		if err := q.storeTask(ctx, pipe, task); err != nil {
			return err
		}
		pipe.SAdd(ctx, taskIndex, task.ID)
		if task.ScheduledFor.After(now) {
			pipe.ZAdd(ctx, scheduledTasks, redis.Z{Score: float64(task.ScheduledFor.UnixMilli()), Member: task.ID})
		} else {
			pipe.XAdd(ctx, streamEntry(task))
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue tasks: %w", err)
	}
	return nil
}

// DequeueWithTimeout claims the next task, waiting up to timeout seconds.
// A timeout of zero or less polls once without blocking.
func (q *Queue) DequeueWithTimeout(ctx context.Context, timeout int) (*domain.Task, error) {
	if err := q.promoteScheduledTasks(ctx); err != nil {
		q.logger.Warn("failed to promote scheduled tasks", "error", err)
	}

	task, err := q.claimAbandonedTask(ctx)
	if err != nil {
		q.logger.Debug("abandoned task claim skipped", "error", err)
	}
	if task != nil {
		return task, nil
	}

	block := time.Duration(-1)
	if timeout > 0 {
		block = time.Duration(timeout) * time.Second
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    taskGroup,
		Consumer: q.consumerName,
		Streams:  []string{taskStream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return q.begin(ctx, streams[0].Messages[0])
}

// begin marks the task behind a stream message as processing. Messages whose
// task is gone or no longer pending are dropped.
func (q *Queue) begin(ctx context.Context, msg redis.XMessage) (*domain.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	task, err := q.GetTask(ctx, taskID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if task == nil || task.Status.IsFinished() {
		q.dropMessage(ctx, msg.ID)
		return nil, nil
	}

	task.MarkProcessing()

	pipe := q.client.TxPipeline()
	if err := q.storeTask(ctx, pipe, task); err != nil {
		return nil, err
	}
	pipe.HSet(ctx, taskMessages, task.ID, msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to mark task processing: %w", err)
	}
	return task, nil
}

// Ack acknowledges successful completion of a task.
func (q *Queue) Ack(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	task.MarkCompleted()
	return q.finish(ctx, task, false)
}

// Nack reschedules the task with backoff while attempts remain, otherwise fails it.
func (q *Queue) Nack(ctx context.Context, taskID string, reason string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	retry := task.CanRetry()
	if retry {
		task.Retry(reason)
	} else {
		task.MarkFailed(reason)
	}
	return q.finish(ctx, task, retry)
}

func (q *Queue) finish(ctx context.Context, task *domain.Task, reschedule bool) error {
	msgID, err := q.client.HGet(ctx, taskMessages, task.ID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get message ID: %w", err)
	}

	pipe := q.client.TxPipeline()
	if msgID != "" {
		pipe.XAck(ctx, taskStream, taskGroup, msgID)
		pipe.XDel(ctx, taskStream, msgID)
	}
	pipe.HDel(ctx, taskMessages, task.ID)
	if err := q.storeTask(ctx, pipe, task); err != nil {
		return err
	}
	if reschedule {
		pipe.ZAdd(ctx, scheduledTasks, redis.Z{Score: float64(task.ScheduledFor.UnixMilli()), Member: task.ID})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to settle task %s: %w", task.ID, err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (q *Queue) GetTask(ctx context.Context, taskID string) (*domain.Task, error) {
	data, err := q.client.Get(ctx, taskKeyPrefix+taskID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return decodeTask(data)
}

// ListTasks returns tasks matching the filter, newest first.
func (q *Queue) ListTasks(ctx context.Context, filter driven.TaskFilter) ([]*domain.Task, error) {
	all, err := q.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	tasks := []*domain.Task{}
	for _, task := range all {
		if filter.OwnerID != "" && task.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Type != "" && task.Type != filter.Type {
			continue
		}
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(tasks) {
			return []*domain.Task{}, nil
		}
		tasks = tasks[filter.Offset:]
	}
	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

// PurgeTasks removes completed/failed tasks last updated before the cutoff.
func (q *Queue) PurgeTasks(ctx context.Context, olderThanSeconds int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)

	all, err := q.loadAll(ctx)
	if err != nil {
		return 0, err
	}

	pipe := q.client.TxPipeline()
	purged := 0
	for _, task := range all {
		if !task.Status.IsFinished() || !task.UpdatedAt.Before(cutoff) {
			continue
		}
		pipe.Del(ctx, taskKeyPrefix+task.ID)
		pipe.SRem(ctx, taskIndex, task.ID)
		purged++
	}
	if purged == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to purge tasks: %w", err)
	}
	return purged, nil
}

// Stats counts tasks by status.
func (q *Queue) Stats(ctx context.Context) (*driven.QueueStats, error) {
	all, err := q.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	stats := &driven.QueueStats{}
	var oldest time.Time
	for _, task := range all {
		switch task.Status {
		case domain.TaskStatusPending:
			stats.PendingCount++
			if oldest.IsZero() || task.CreatedAt.Before(oldest) {
				oldest = task.CreatedAt
			}
		case domain.TaskStatusProcessing:
			stats.ProcessingCount++
		case domain.TaskStatusCompleted:
			stats.CompletedCount++
		case domain.TaskStatusFailed:
			stats.FailedCount++
		}
	}
	if !oldest.IsZero() {
		stats.OldestPendingAge = int64(time.Since(oldest).Seconds())
	}
	return stats, nil
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close is a no-op; the Redis client is shared.
func (q *Queue) Close() error {
	return nil
}

// loadAll reads every indexed task and prunes index entries whose record expired.
func (q *Queue) loadAll(ctx context.Context) ([]*domain.Task, error) {
	ids, err := q.client.SMembers(ctx, taskIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list task index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = taskKeyPrefix + id
	}
	values, err := q.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	tasks := make([]*domain.Task, 0, len(values))
	var gone []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			gone = append(gone, ids[i])
			continue
		}
		task, err := decodeTask([]byte(s))
		if err != nil {
			q.logger.Warn("skipping undecodable task", "task_id", ids[i], "error", err)
			continue
		}
		tasks = append(tasks, task)
	}
	if len(gone) > 0 {
		q.client.SRem(ctx, taskIndex, gone...)
	}
	return tasks, nil
}

// promoteScheduledTasks moves due delayed tasks onto the stream. ZREM decides
// which worker promotes a task when several race.
func (q *Queue) promoteScheduledTasks(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, scheduledTasks, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().UnixMilli()),
	}).Result()
	if err != nil {
		return err
	}

	for _, taskID := range due {
		removed, err := q.client.ZRem(ctx, scheduledTasks, taskID).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		task, err := q.GetTask(ctx, taskID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := q.client.XAdd(ctx, streamEntry(task)).Err(); err != nil {
			return err
		}
	}
	return nil
}

// claimAbandonedTask takes over a message another consumer left unacknowledged
// longer than the claim timeout.
func (q *Queue) claimAbandonedTask(ctx context.Context) (*domain.Task, error) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: taskStream,
		Group:  taskGroup,
		Start:  "-",
		End:    "+",
		Count:  10,
		Idle:   q.claimTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}

	for _, p := range pending {
		claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   taskStream,
			Group:    taskGroup,
			Consumer: q.consumerName,
			MinIdle:  q.claimTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil || len(claimed) == 0 {
			continue
		}

		q.logger.Info("claimed abandoned task", "message_id", p.ID, "previous_consumer", p.Consumer)
		task, err := q.begin(ctx, claimed[0])
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}
	}
	return nil, nil
}

func (q *Queue) storeTask(ctx context.Context, pipe redis.Pipeliner, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task %s: %w", task.ID, err)
	}
	pipe.Set(ctx, taskKeyPrefix+task.ID, data, q.taskTTL)
	return nil
}

func (q *Queue) dropMessage(ctx context.Context, msgID string) {
	q.client.XAck(ctx, taskStream, taskGroup, msgID)
	q.client.XDel(ctx, taskStream, msgID)
}

func streamEntry(task *domain.Task) *redis.XAddArgs {
	return &redis.XAddArgs{
		Stream: taskStream,
		Values: map[string]any{
			"task_id":  task.ID,
			"type":     string(task.Type),
			"owner_id": task.OwnerID,
		},
	}
}

func decodeTask(data []byte) (*domain.Task, error) {
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

func isGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
