package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driving"
)

var _ driving.MaintenanceService = (*Scheduler)(nil)

// Scheduler manages periodic task scheduling.
// It runs on worker nodes and enqueues tasks based on schedules.
//
// For multi-worker deployments, configure a DistributedLock to prevent
// duplicate task enqueuing across instances.
type Scheduler struct {
	store     driven.SchedulerStore
	taskQueue driven.TaskQueue
	lock      driven.DistributedLock
	logger    *slog.Logger

	// Internal state
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	interval time.Duration

	// Lock configuration
	lockTTL      time.Duration
	lockRequired bool
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Store        driven.SchedulerStore
	TaskQueue    driven.TaskQueue
	Lock         driven.DistributedLock // Optional: distributed lock for multi-instance coordination
	Logger       *slog.Logger
	PollInterval time.Duration // How often to check for due tasks (default: 30s)
	LockTTL      time.Duration // TTL for the distributed lock (default: 60s)
	LockRequired bool          // If true, skip scheduling when lock cannot be acquired (default: true)
}

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.PollInterval
	if interval == 0 {
		interval = 30 * time.Second
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 2 * interval
	}

	// A configured lock is always required
	lockRequired := cfg.LockRequired || cfg.Lock != nil

	return &Scheduler{
		store:        cfg.Store,
		taskQueue:    cfg.TaskQueue,
		lock:         cfg.Lock,
		logger:       logger.With("service", "scheduler"),
		interval:     interval,
		lockTTL:      lockTTL,
		lockRequired: lockRequired,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("scheduler starting", "poll_interval", s.interval)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for the scheduler to finish
	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.checkAndEnqueue(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.checkAndEnqueue(ctx)
		}
	}
}

// checkAndEnqueue enqueues every due maintenance schedule while holding the scheduler lock
func (s *Scheduler) checkAndEnqueue(ctx context.Context) {
	release, ok := s.takeLock(ctx)
	if !ok {
		return
	}
	defer release()

	due, err := s.store.GetDueScheduledTasks(ctx)
	if err != nil {
		s.logger.Error("failed to load due schedules", "error", err)
		return
	}
	for _, scheduled := range due {
		if scheduled.IsDue() {
			s.enqueue(ctx, scheduled)
		}
	}
}

// takeLock reports whether this cycle may run. Without a configured lock every
// cycle runs; a lock backend error skips the cycle only when the lock is required.
func (s *Scheduler) takeLock(ctx context.Context) (release func(), ok bool) {
	noop := func() {}
	if s.lock == nil {
		return noop, true
	}

	acquired, err := s.lock.Acquire(ctx, driven.SchedulerLockName, s.lockTTL)
	switch {
	case err != nil:
		s.logger.Warn("failed to acquire scheduler lock", "error", err)
		return noop, !s.lockRequired
	case !acquired:
		s.logger.Debug("scheduler lock held elsewhere, skipping cycle")
		return noop, false
	}

	return func() {
		if err := s.lock.Release(ctx, driven.SchedulerLockName); err != nil {
			s.logger.Warn("failed to release scheduler lock", "error", err)
		}
	}, true
}

// enqueue pushes one maintenance task and records the run outcome on its schedule
func (s *Scheduler) enqueue(ctx context.Context, scheduled *domain.ScheduledTask) {
	task := s.createTask(scheduled)
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		s.logger.Error("failed to enqueue maintenance task", "schedule", scheduled.ID, "error", err)
		_ = s.store.UpdateLastRun(ctx, scheduled.ID, err.Error())
		return
	}

	s.logger.Info("maintenance task enqueued",
		"schedule", scheduled.ID,
		"task_id", task.ID,
		"task_type", task.Type,
	)
	if err := s.store.UpdateLastRun(ctx, scheduled.ID, ""); err != nil {
		s.logger.Warn("failed to record schedule run", "schedule", scheduled.ID, "error", err)
	}
}

// createTask creates a queue task from a scheduled task.
// Maintenance tasks carry no payload and belong to the system owner.
func (s *Scheduler) createTask(scheduled *domain.ScheduledTask) *domain.Task {
	task := domain.NewTask(scheduled.Type, domain.SystemOwner, nil)
	task.MaxAttempts = 1
	return task
}

// EnsureDefaults saves the built-in maintenance schedules that are missing.
// Existing schedules keep their interval, enabled flag and next run.
func (s *Scheduler) EnsureDefaults(ctx context.Context) error {
	for _, scheduled := range domain.DefaultSchedules() {
		_, err := s.store.GetScheduledTask(ctx, scheduled.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("load schedule %s: %w", scheduled.ID, err)
		}
		if err := s.store.SaveScheduledTask(ctx, scheduled); err != nil {
			return fmt.Errorf("save schedule %s: %w", scheduled.ID, err)
		}
		s.logger.Info("created default schedule", "scheduled_id", scheduled.ID, "interval", scheduled.Interval)
	}
	return nil
}

// GetScheduledTask retrieves a scheduled task by ID.
func (s *Scheduler) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	return s.store.GetScheduledTask(ctx, id)
}

// ListScheduledTasks lists all scheduled tasks.
func (s *Scheduler) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.store.ListScheduledTasks(ctx)
}

// TriggerNow immediately enqueues a scheduled task (ignoring schedule).
func (s *Scheduler) TriggerNow(ctx context.Context, id string) (*domain.Task, error) {
	scheduled, err := s.store.GetScheduledTask(ctx, id)
	if err != nil {
		return nil, err
	}

	task := s.createTask(scheduled)

	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		return nil, err
	}

	s.logger.Info("manually triggered scheduled task",
		"scheduled_id", scheduled.ID,
		"task_id", task.ID,
	)

	return task, nil
}
