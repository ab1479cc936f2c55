package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varkas/aegis/internal/alert"
	"github.com/varkas/aegis/internal/healer"
	"github.com/varkas/aegis/internal/monitor"
	"github.com/varkas/aegis/internal/task"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := &PostgresRepository{db: db}
	return db, mock, repo
}

func TestNewPostgresRepository_ConnectionFailure(t *testing.T) {
	_, err := NewPostgresRepository("invalid connection string")
	assert.Error(t, err)
}

func TestSaveTask(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	tsk := task.New("backup", "database_backup", task.ScheduleInterval, task.ScheduleConfig{IntervalSeconds: 3600})

	mock.ExpectExec("INSERT INTO scheduled_tasks").
		WithArgs(
			tsk.ID, tsk.Name, tsk.Type, string(tsk.ScheduleType), sqlmock.AnyArg(),
			string(tsk.Priority), string(tsk.Status), tsk.Enabled,
			0, 0, 0, nil, tsk.CreatedAt, nil, nil,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SaveTask(context.Background(), tsk)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveTask_ExecError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO scheduled_tasks").
		WillReturnError(errors.New("connection reset"))

	tsk := task.New("t", "noop", task.ScheduleOnce, task.ScheduleConfig{})
	err := repo.SaveTask(context.Background(), tsk)
	assert.Error(t, err)
}

func TestLogTaskRun(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO task_run_log").
		WithArgs("task-1", 2, "retrying", 1500, "transient failure").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.LogTaskRun(context.Background(), "task-1", 2, "retrying", 1500, "transient failure")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogTaskRun_EmptyErrorIsNull(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("INSERT INTO task_run_log").
		WithArgs("task-1", 1, "completed", 200, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.LogTaskRun(context.Background(), "task-1", 1, "completed", 200, "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSession(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	now := time.Now()
	session := &healer.Session{
		ID:            "session-1",
		RuleID:        "high_memory",
		TriggerReason: "metric memory_usage_percent > 90.00",
		Priority:      1,
		Status:        healer.SessionCompleted,
		StartedAt:     now.Add(-time.Minute),
		CompletedAt:   &now,
		Success:       true,
		ActionsExecuted: []healer.ActionResult{
			{Type: "free_memory", Result: "memory released", Timestamp: now},
		},
	}

	mock.ExpectExec("INSERT INTO healing_sessions").
		WithArgs(
			session.ID, session.RuleID, session.TriggerReason, session.Priority,
			string(session.Status), session.StartedAt, now, sqlmock.AnyArg(),
			true, nil,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SaveSession(context.Background(), session)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAlert(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	a := &alert.Alert{
		ID:        "alert-1",
		Level:     alert.LevelCritical,
		Message:   "disk full",
		Source:    "monitor",
		Status:    alert.StatusActive,
		CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO alerts").
		WithArgs(a.ID, string(a.Level), a.Message, a.Source, string(a.Status), a.CreatedAt, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SaveAlert(context.Background(), a)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveHealthResult(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer func() { _ = db.Close() }()

	res := monitor.HealthResult{
		Name:                "db",
		Status:              monitor.StatusCritical,
		Timestamp:           time.Now(),
		ConsecutiveFailures: 3,
		Error:               "connection refused",
	}

	mock.ExpectExec("INSERT INTO health_results").
		WithArgs(res.Name, string(res.Status), res.Timestamp, 3, res.Error).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SaveHealthResult(context.Background(), res)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, nullString(""))
	assert.Equal(t, "x", nullString("x"))

	assert.Nil(t, nullTime(nil))
	now := time.Now()
	assert.Equal(t, now, nullTime(&now))
}
