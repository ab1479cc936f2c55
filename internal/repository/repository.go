// Package repository provides durable recording of tasks, healing sessions,
// alerts and health results. The control loop only relies on id-keyed upsert
// semantics; the concrete backends are PostgreSQL and Redis.
package repository

import (
	"context"

	"github.com/varkas/aegis/internal/alert"
	"github.com/varkas/aegis/internal/healer"
	"github.com/varkas/aegis/internal/monitor"
	"github.com/varkas/aegis/internal/task"
)

type Repository interface {
	SaveTask(ctx context.Context, t *task.ScheduledTask) error
	LogTaskRun(ctx context.Context, taskID string, attempt int, status string, durationMs int, msgErr string) error
	SaveSession(ctx context.Context, s *healer.Session) error
	SaveAlert(ctx context.Context, a *alert.Alert) error
	SaveHealthResult(ctx context.Context, r monitor.HealthResult) error
	Close() error
}
