// Package task defines the scheduled task domain model shared by the store,
// scheduler and executor. It contains task metadata, status, priority and
// schedule definitions, and serialization helpers.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	Status       string
	Priority     string
	ScheduleType string
)

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusRetrying  Status = "retrying"
)

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

const (
	ScheduleOnce        ScheduleType = "once"
	ScheduleInterval    ScheduleType = "interval"
	ScheduleCron        ScheduleType = "cron"
	ScheduleConditional ScheduleType = "conditional"
)

// ScheduleConfig carries the per-type schedule parameters. Only the fields
// relevant to the task's ScheduleType are consulted.
type ScheduleConfig struct {
	IntervalSeconds int            `json:"interval_seconds,omitempty"`
	CronExpression  string         `json:"cron_expression,omitempty"`
	Condition       string         `json:"condition,omitempty"`
	ConditionParams map[string]any `json:"condition_params,omitempty"`
}

type ScheduledTask struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Type           string         `json:"type"`
	ScheduleType   ScheduleType   `json:"schedule_type"`
	ScheduleConfig ScheduleConfig `json:"schedule_config"`
	Priority       Priority       `json:"priority"`
	MaxRetries     int            `json:"max_retries"`
	RetryDelay     int            `json:"retry_delay_seconds"`
	Timeout        int            `json:"timeout_seconds"`
	Enabled        bool           `json:"enabled"`
	Metadata       map[string]any `json:"metadata,omitempty"`

	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
	RunCount     int        `json:"run_count"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	LastError    string     `json:"last_error,omitempty"`
}

func New(name, taskType string, scheduleType ScheduleType, config ScheduleConfig) *ScheduledTask {
	id := uuid.New().String()
	if name == "" {
		name = fmt.Sprintf("task_%s", id[:8])
	}

	return &ScheduledTask{
		ID:             id,
		Name:           name,
		Type:           taskType,
		ScheduleType:   scheduleType,
		ScheduleConfig: config,
		Priority:       PriorityNormal,
		MaxRetries:     3,
		RetryDelay:     60,
		Timeout:        300,
		Enabled:        true,
		Status:         StatusPending,
		CreatedAt:      time.Now(),
	}
}

// Rank maps a priority to a sortable weight, highest first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	default:
		return 2
	}
}

// Dispatchable reports whether the scheduler may still promote this task.
func (t *ScheduledTask) Dispatchable() bool {
	if !t.Enabled {
		return false
	}
	switch t.Status {
	case StatusPending, StatusScheduled, StatusRetrying:
		return true
	default:
		return false
	}
}

// Due reports whether the task should be promoted to scheduled at the given time.
func (t *ScheduledTask) Due(now time.Time) bool {
	return t.Dispatchable() && t.NextRun != nil && !t.NextRun.After(now)
}

// Clone returns a deep copy that callers can read and marshal without
// holding the store lock.
func (t *ScheduledTask) Clone() *ScheduledTask {
	out := *t

	if t.LastRun != nil {
		lastRun := *t.LastRun
		out.LastRun = &lastRun
	}
	if t.NextRun != nil {
		nextRun := *t.NextRun
		out.NextRun = &nextRun
	}
	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	if t.ScheduleConfig.ConditionParams != nil {
		params := make(map[string]any, len(t.ScheduleConfig.ConditionParams))
		for k, v := range t.ScheduleConfig.ConditionParams {
			params[k] = v
		}
		out.ScheduleConfig.ConditionParams = params
	}

	return &out
}

func (t *ScheduledTask) ToJSON() (string, error) {
	data, err := json.Marshal(t)
	return string(data), err
}

func FromJSON(data string) (*ScheduledTask, error) {
	var t ScheduledTask
	err := json.Unmarshal([]byte(data), &t)
	return &t, err
}
