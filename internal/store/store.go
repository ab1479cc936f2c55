// Package store holds the in-memory registry of scheduled tasks. It is the
// source of truth for schedule metadata and run statistics and is safe for
// concurrent use by the scheduler, executor and API.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/varkas/aegis/internal/task"
)

type TaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*task.ScheduledTask
}

func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*task.ScheduledTask),
	}
}

func (s *TaskStore) Add(t *task.ScheduledTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

// Get returns a copy of the task. Mutations go through Update so the live
// record is only ever touched under the store lock.
func (s *TaskStore) Get(taskID string) (*task.ScheduledTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tasks[taskID]
	if !exists {
		return nil, false
	}

	return t.Clone(), true
}

// Cancel disables a task that is not currently running. A running task keeps
// going until its own timeout; cancel only prevents future dispatches.
func (s *TaskStore) Cancel(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[taskID]
	if !exists || t.Status == task.StatusRunning {
		return false
	}

	t.Status = task.StatusCancelled
	t.Enabled = false
	t.NextRun = nil

	return true
}

func (s *TaskStore) Enable(taskID string, nextRun *time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[taskID]
	if !exists {
		return false
	}

	t.Enabled = true
	t.Status = task.StatusPending
	t.NextRun = nextRun
	t.LastError = ""

	return true
}

func (s *TaskStore) Disable(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[taskID]
	if !exists {
		return false
	}

	t.Enabled = false
	t.NextRun = nil

	return true
}

// Update applies fn to the task under the store lock.
func (s *TaskStore) Update(taskID string, fn func(*task.ScheduledTask)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tasks[taskID]
	if !exists {
		return false
	}
	fn(t)

	return true
}

// List returns copies of every task.
func (s *TaskStore) List() []*task.ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*task.ScheduledTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t.Clone())
	}

	return tasks
}

// Due returns every dispatchable task whose next run is at or before now,
// ordered by priority (critical first) and then by next run ascending.
func (s *TaskStore) Due(now time.Time) []*task.ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*task.ScheduledTask
	for _, t := range s.tasks {
		if t.Due(now) {
			due = append(due, t.Clone())
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Priority.Rank() != due[j].Priority.Rank() {
			return due[i].Priority.Rank() > due[j].Priority.Rank()
		}
		return due[i].NextRun.Before(*due[j].NextRun)
	})

	return due
}

// Scheduled returns every task currently promoted for execution.
func (s *TaskStore) Scheduled() []*task.ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scheduled []*task.ScheduledTask
	for _, t := range s.tasks {
		if t.Status == task.StatusScheduled {
			scheduled = append(scheduled, t.Clone())
		}
	}

	sort.SliceStable(scheduled, func(i, j int) bool {
		return scheduled[i].Priority.Rank() > scheduled[j].Priority.Rank()
	})

	return scheduled
}

// Stats aggregates run statistics over every registered task.
type Stats struct {
	TotalTasks     int     `json:"total_tasks"`
	EnabledTasks   int     `json:"enabled_tasks"`
	RunningTasks   int     `json:"running_tasks"`
	TotalRuns      int     `json:"total_runs"`
	TotalSuccesses int     `json:"total_successes"`
	TotalFailures  int     `json:"total_failures"`
	SuccessRate    float64 `json:"success_rate"`
}

func (s *TaskStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats
	stats.TotalTasks = len(s.tasks)

	for _, t := range s.tasks {
		if t.Enabled {
			stats.EnabledTasks++
		}
		if t.Status == task.StatusRunning {
			stats.RunningTasks++
		}
		stats.TotalRuns += t.RunCount
		stats.TotalSuccesses += t.SuccessCount
		stats.TotalFailures += t.FailureCount
	}

	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(stats.TotalSuccesses) / float64(stats.TotalRuns)
	}

	return stats
}
