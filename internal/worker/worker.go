// Package worker runs queued background tasks: document ingestion and the
// periodic maintenance jobs the scheduler enqueues.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ask/internal/core/services"
)

const (
	// DefaultTaskTimeout bounds a single task run
	DefaultTaskTimeout = 15 * time.Minute

	// DefaultPurgeAfter is the age at which finished tasks are purged
	DefaultPurgeAfter = 7 * 24 * time.Hour

	dequeueErrorBackoff = time.Second
)

var tracer = otel.Tracer("github.com/custodia-labs/sercha-ask/internal/worker")

// Worker processes tasks from the task queue.
type Worker struct {
	taskQueue driven.TaskQueue
	ingestion driving.IngestionService
	scheduler *services.Scheduler
	logger    *slog.Logger

	// Configuration
	concurrency    int
	dequeueTimeout int // seconds
	taskTimeout    time.Duration
	purgeAfter     time.Duration

	// Internal state
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	TaskQueue      driven.TaskQueue
	Ingestion      driving.IngestionService
	Scheduler      *services.Scheduler // Optional; started and stopped with the worker
	Logger         *slog.Logger
	Concurrency    int           // Number of concurrent task processors
	DequeueTimeout int           // Seconds to wait for a task before checking again
	TaskTimeout    time.Duration // Upper bound on one task run
	PurgeAfter     time.Duration // Age of finished tasks removed by purge_tasks
}

// NewWorker creates a new task worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	taskTimeout := cfg.TaskTimeout
	if taskTimeout <= 0 {
		taskTimeout = DefaultTaskTimeout
	}

	purgeAfter := cfg.PurgeAfter
	if purgeAfter <= 0 {
		purgeAfter = DefaultPurgeAfter
	}

	return &Worker{
		taskQueue:      cfg.TaskQueue,
		ingestion:      cfg.Ingestion,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		concurrency:    concurrency,
		dequeueTimeout: dequeueTimeout,
		taskTimeout:    taskTimeout,
		purgeAfter:     purgeAfter,
	}
}

// Start begins the worker loop.
// It runs until Stop is called or context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"concurrency", w.concurrency,
		"dequeue_timeout", w.dequeueTimeout,
		"task_timeout", w.taskTimeout,
	)

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processLoop(ctx, workerID)
		}(i)
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker. Tasks in flight run to completion.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop is the main processing loop for a worker goroutine.
func (w *Worker) processLoop(ctx context.Context, workerID int) {
	logger := w.logger.With("worker_id", workerID)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		task, err := w.taskQueue.DequeueWithTimeout(ctx, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue task", "error", err)
			select {
			case <-ctx.Done():
			case <-w.stopCh:
			case <-time.After(dequeueErrorBackoff):
			}
			continue
		}

		if task == nil {
			continue
		}

		w.processTask(ctx, task, logger)
	}
}

// processTask runs one task and settles it on the queue.
func (w *Worker) processTask(ctx context.Context, task *domain.Task, logger *slog.Logger) {
	logger = logger.With("task_id", task.ID, "task_type", task.Type, "attempt", task.Attempts)
	logger.Info("processing task")

	runCtx, cancel := context.WithTimeout(ctx, w.taskTimeout)
	defer cancel()
	runCtx, span := tracer.Start(runCtx, "worker.task", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.type", string(task.Type)),
		attribute.Int("task.attempt", task.Attempts),
	))

	startTime := time.Now()
	err := w.run(runCtx, task, logger)
	duration := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	// Settle even when the worker is shutting down
	settleCtx, settleCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer settleCancel()

	if err != nil {
		logger.Error("task failed", "duration", duration, "error", err)
		if nackErr := w.taskQueue.Nack(settleCtx, task.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack task", "nack_error", nackErr)
		}
		return
	}

	logger.Info("task completed", "duration", duration)
	if ackErr := w.taskQueue.Ack(settleCtx, task.ID); ackErr != nil {
		logger.Error("failed to ack task", "ack_error", ackErr)
	}
}

// run dispatches on task type. A panic in a handler fails the task instead of the worker.
func (w *Worker) run(ctx context.Context, task *domain.Task, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	switch task.Type {
	case domain.TaskTypeIngestDocument:
		return w.handleIngest(ctx, task)
	case domain.TaskTypeRecoverStale:
		return w.handleRecoverStale(ctx, logger)
	case domain.TaskTypePurgeTasks:
		return w.handlePurge(ctx, logger)
	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

// handleIngest runs the ingestion pipeline for one document.
func (w *Worker) handleIngest(ctx context.Context, task *domain.Task) error {
	documentID := task.DocumentID()
	if documentID == "" {
		return fmt.Errorf("document_id not found in task payload")
	}
	return w.ingestion.Process(ctx, documentID, task.CurrentAttempt())
}

// handleRecoverStale hands documents stuck in processing back to the queue.
func (w *Worker) handleRecoverStale(ctx context.Context, logger *slog.Logger) error {
	n, err := w.ingestion.RecoverStale(ctx)
	if err != nil {
		return err
	}
	logger.Info("stale documents recovered", "count", n)
	return nil
}

// handlePurge removes finished tasks older than the purge age.
func (w *Worker) handlePurge(ctx context.Context, logger *slog.Logger) error {
	n, err := w.taskQueue.PurgeTasks(ctx, int(w.purgeAfter.Seconds()))
	if err != nil {
		return err
	}
	logger.Info("finished tasks purged", "count", n)
	return nil
}

// Health is the worker's health report.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.taskQueue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
