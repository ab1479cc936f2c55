package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/varkas/aegis/internal/alert"
	"github.com/varkas/aegis/internal/healer"
	"github.com/varkas/aegis/internal/monitor"
	"github.com/varkas/aegis/internal/task"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(connectionString string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) SaveTask(ctx context.Context, t *task.ScheduledTask) error {
	config, err := json.Marshal(t.ScheduleConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule config: %w", err)
	}

	query := `
		INSERT INTO scheduled_tasks (
			task_id, name, type, schedule_type, schedule_config, priority,
			status, enabled, run_count, success_count, failure_count,
			last_error, created_at, last_run, next_run
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status,
			enabled = EXCLUDED.enabled,
			run_count = EXCLUDED.run_count,
			success_count = EXCLUDED.success_count,
			failure_count = EXCLUDED.failure_count,
			last_error = EXCLUDED.last_error,
			last_run = EXCLUDED.last_run,
			next_run = EXCLUDED.next_run
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		t.ID,
		t.Name,
		t.Type,
		t.ScheduleType,
		config,
		t.Priority,
		t.Status,
		t.Enabled,
		t.RunCount,
		t.SuccessCount,
		t.FailureCount,
		nullString(t.LastError),
		t.CreatedAt,
		nullTime(t.LastRun),
		nullTime(t.NextRun),
	)

	return err
}

func (r *PostgresRepository) LogTaskRun(ctx context.Context, taskID string, attempt int, status string, durationMs int, msgErr string) error {
	query := `
		INSERT INTO task_run_log (
			task_id, attempt_number, status, completed_at, duration_ms, error_message
		) VALUES ($1, $2, $3, NOW(), $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query, taskID, attempt, status, durationMs, nullString(msgErr))
	return err
}

func (r *PostgresRepository) SaveSession(ctx context.Context, s *healer.Session) error {
	actions, err := json.Marshal(s.ActionsExecuted)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}

	query := `
		INSERT INTO healing_sessions (
			session_id, rule_id, trigger_reason, priority, status,
			started_at, completed_at, actions, success, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			actions = EXCLUDED.actions,
			success = EXCLUDED.success,
			error = EXCLUDED.error
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		s.ID,
		s.RuleID,
		s.TriggerReason,
		s.Priority,
		s.Status,
		s.StartedAt,
		nullTime(s.CompletedAt),
		actions,
		s.Success,
		nullString(s.Error),
	)

	return err
}

func (r *PostgresRepository) SaveAlert(ctx context.Context, a *alert.Alert) error {
	query := `
		INSERT INTO alerts (
			alert_id, level, message, source, status,
			created_at, acknowledged_by, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (alert_id) DO UPDATE SET
			status = EXCLUDED.status,
			acknowledged_by = EXCLUDED.acknowledged_by,
			resolved_at = EXCLUDED.resolved_at
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		a.ID,
		a.Level,
		a.Message,
		a.Source,
		a.Status,
		a.CreatedAt,
		nullString(a.AcknowledgedBy),
		nullTime(a.ResolvedAt),
	)

	return err
}

func (r *PostgresRepository) SaveHealthResult(ctx context.Context, res monitor.HealthResult) error {
	query := `
		INSERT INTO health_results (
			probe, status, checked_at, consecutive_failures, error
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		res.Name,
		res.Status,
		res.Timestamp,
		res.ConsecutiveFailures,
		nullString(res.Error),
	)

	return err
}

func (r *PostgresRepository) DB() *sql.DB {
	return r.db
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
