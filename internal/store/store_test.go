package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varkas/aegis/internal/task"
)

func newStoredTask(name string, priority task.Priority, nextRun time.Time) *task.ScheduledTask {
	t := task.New(name, "noop", task.ScheduleOnce, task.ScheduleConfig{})
	t.Priority = priority
	t.NextRun = &nextRun
	return t
}

func TestAddAndGet(t *testing.T) {
	s := NewTaskStore()
	tsk := task.New("t", "noop", task.ScheduleOnce, task.ScheduleConfig{})

	s.Add(tsk)

	got, exists := s.Get(tsk.ID)
	require.True(t, exists)
	assert.Equal(t, tsk.ID, got.ID)

	_, exists = s.Get("missing")
	assert.False(t, exists)
}

func TestCancel(t *testing.T) {
	s := NewTaskStore()
	tsk := task.New("t", "noop", task.ScheduleOnce, task.ScheduleConfig{})
	now := time.Now()
	tsk.NextRun = &now
	s.Add(tsk)

	require.True(t, s.Cancel(tsk.ID))

	got, _ := s.Get(tsk.ID)
	assert.Equal(t, task.StatusCancelled, got.Status)
	assert.False(t, got.Enabled)
	assert.Nil(t, got.NextRun)
}

func TestCancel_RunningRefused(t *testing.T) {
	s := NewTaskStore()
	tsk := task.New("t", "noop", task.ScheduleOnce, task.ScheduleConfig{})
	tsk.Status = task.StatusRunning
	s.Add(tsk)

	assert.False(t, s.Cancel(tsk.ID))

	got, _ := s.Get(tsk.ID)
	assert.Equal(t, task.StatusRunning, got.Status)
}

func TestCancel_Missing(t *testing.T) {
	s := NewTaskStore()
	assert.False(t, s.Cancel("missing"))
}

func TestEnableDisable(t *testing.T) {
	s := NewTaskStore()
	tsk := task.New("t", "noop", task.ScheduleInterval, task.ScheduleConfig{IntervalSeconds: 60})
	s.Add(tsk)

	require.True(t, s.Disable(tsk.ID))
	got, _ := s.Get(tsk.ID)
	assert.False(t, got.Enabled)
	assert.Nil(t, got.NextRun)

	next := time.Now().Add(time.Minute)
	require.True(t, s.Enable(tsk.ID, &next))
	got, _ = s.Get(tsk.ID)
	assert.True(t, got.Enabled)
	assert.Equal(t, task.StatusPending, got.Status)
	require.NotNil(t, got.NextRun)
	assert.Equal(t, next, *got.NextRun)
}

func TestUpdate(t *testing.T) {
	s := NewTaskStore()
	tsk := task.New("t", "noop", task.ScheduleOnce, task.ScheduleConfig{})
	s.Add(tsk)

	ok := s.Update(tsk.ID, func(t *task.ScheduledTask) {
		t.Status = task.StatusScheduled
	})
	require.True(t, ok)

	got, _ := s.Get(tsk.ID)
	assert.Equal(t, task.StatusScheduled, got.Status)

	assert.False(t, s.Update("missing", func(*task.ScheduledTask) {}))
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewTaskStore()
	tsk := task.New("t", "noop", task.ScheduleOnce, task.ScheduleConfig{})
	s.Add(tsk)

	got, _ := s.Get(tsk.ID)
	got.Status = task.StatusFailed
	got.Enabled = false
	bad := time.Now().Add(time.Hour)
	got.NextRun = &bad

	fresh, _ := s.Get(tsk.ID)
	assert.Equal(t, task.StatusPending, fresh.Status)
	assert.True(t, fresh.Enabled)
	assert.Nil(t, fresh.NextRun)
}

func TestListReturnsCopies(t *testing.T) {
	s := NewTaskStore()
	tsk := task.New("t", "noop", task.ScheduleOnce, task.ScheduleConfig{})
	tsk.Metadata = map[string]any{"owner": "ops"}
	s.Add(tsk)

	listed := s.List()
	require.Len(t, listed, 1)
	listed[0].Status = task.StatusCancelled
	listed[0].Metadata["owner"] = "hacked"

	fresh, _ := s.Get(tsk.ID)
	assert.Equal(t, task.StatusPending, fresh.Status)
	assert.Equal(t, "ops", fresh.Metadata["owner"])
}

func TestDue_PriorityOrdering(t *testing.T) {
	s := NewTaskStore()
	now := time.Now()

	low := newStoredTask("low", task.PriorityLow, now.Add(-3*time.Minute))
	critical := newStoredTask("critical", task.PriorityCritical, now.Add(-time.Minute))
	normalEarly := newStoredTask("normal_early", task.PriorityNormal, now.Add(-2*time.Minute))
	normalLate := newStoredTask("normal_late", task.PriorityNormal, now.Add(-time.Minute))
	future := newStoredTask("future", task.PriorityCritical, now.Add(time.Hour))

	for _, tsk := range []*task.ScheduledTask{low, critical, normalEarly, normalLate, future} {
		s.Add(tsk)
	}

	due := s.Due(now)
	require.Len(t, due, 4)

	assert.Equal(t, "critical", due[0].Name)
	assert.Equal(t, "normal_early", due[1].Name)
	assert.Equal(t, "normal_late", due[2].Name)
	assert.Equal(t, "low", due[3].Name)
}

func TestDue_SkipsDisabled(t *testing.T) {
	s := NewTaskStore()
	now := time.Now()

	tsk := newStoredTask("t", task.PriorityNormal, now.Add(-time.Minute))
	tsk.Enabled = false
	s.Add(tsk)

	assert.Empty(t, s.Due(now))
}

func TestScheduled(t *testing.T) {
	s := NewTaskStore()
	now := time.Now()

	a := newStoredTask("a", task.PriorityNormal, now)
	a.Status = task.StatusScheduled
	b := newStoredTask("b", task.PriorityCritical, now)
	b.Status = task.StatusScheduled
	c := newStoredTask("c", task.PriorityHigh, now)

	s.Add(a)
	s.Add(b)
	s.Add(c)

	scheduled := s.Scheduled()
	require.Len(t, scheduled, 2)
	assert.Equal(t, "b", scheduled[0].Name)
	assert.Equal(t, "a", scheduled[1].Name)
}

func TestStats(t *testing.T) {
	s := NewTaskStore()

	a := task.New("a", "noop", task.ScheduleOnce, task.ScheduleConfig{})
	a.RunCount = 4
	a.SuccessCount = 3
	a.FailureCount = 1

	b := task.New("b", "noop", task.ScheduleOnce, task.ScheduleConfig{})
	b.Enabled = false
	b.Status = task.StatusRunning
	b.RunCount = 1
	b.SuccessCount = 1

	s.Add(a)
	s.Add(b)

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalTasks)
	assert.Equal(t, 1, stats.EnabledTasks)
	assert.Equal(t, 1, stats.RunningTasks)
	assert.Equal(t, 5, stats.TotalRuns)
	assert.Equal(t, 4, stats.TotalSuccesses)
	assert.Equal(t, 1, stats.TotalFailures)
	assert.InDelta(t, 0.8, stats.SuccessRate, 0.001)
}

func TestStats_Empty(t *testing.T) {
	s := NewTaskStore()

	stats := s.Stats()
	assert.Zero(t, stats.TotalTasks)
	assert.Zero(t, stats.SuccessRate)
}
