package driving

import (
	"context"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// MaintenanceService exposes the recurring maintenance schedules to operators
type MaintenanceService interface {
	ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error)

	// TriggerNow enqueues the schedule's task immediately without moving its next run
	TriggerNow(ctx context.Context, id string) (*domain.Task, error)
}
