package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/varkas/aegis/internal/alert"
	"github.com/varkas/aegis/internal/healer"
	"github.com/varkas/aegis/internal/monitor"
	"github.com/varkas/aegis/internal/task"
)

// RedisRepository records the same documents as the Postgres backend as
// JSON hashes keyed by id, for deployments without a relational store.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(addr string) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRepository{client: client}, nil
}

func (r *RedisRepository) SaveTask(ctx context.Context, t *task.ScheduledTask) error {
	return r.upsert(ctx, "tasks", t.ID, t)
}

func (r *RedisRepository) LogTaskRun(ctx context.Context, taskID string, attempt int, status string, durationMs int, msgErr string) error {
	entry := map[string]any{
		"task_id":        taskID,
		"attempt_number": attempt,
		"status":         status,
		"duration_ms":    durationMs,
		"completed_at":   time.Now(),
	}
	if msgErr != "" {
		entry["error_message"] = msgErr
	}

	id := fmt.Sprintf("%s:%d", taskID, attempt)
	return r.upsert(ctx, "task_runs", id, entry)
}

func (r *RedisRepository) SaveSession(ctx context.Context, s *healer.Session) error {
	return r.upsert(ctx, "healing_sessions", s.ID, s)
}

func (r *RedisRepository) SaveAlert(ctx context.Context, a *alert.Alert) error {
	return r.upsert(ctx, "alerts", a.ID, a)
}

func (r *RedisRepository) SaveHealthResult(ctx context.Context, res monitor.HealthResult) error {
	id := fmt.Sprintf("%s:%d", res.Name, res.Timestamp.UnixNano())
	return r.upsert(ctx, "health_results", id, res)
}

func (r *RedisRepository) upsert(ctx context.Context, table, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return r.client.HSet(ctx, table, id, string(data)).Err()
}

// Get retrieves a raw record for tests and the control surface.
func (r *RedisRepository) Get(ctx context.Context, table, id string) (string, error) {
	return r.client.HGet(ctx, table, id).Result()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}
