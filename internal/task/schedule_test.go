package task

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun_Once(t *testing.T) {
	p := NewPlanner()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tsk := New("t", "noop", ScheduleOnce, ScheduleConfig{})

	next, err := p.NextRun(tsk, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, now, *next)

	tsk.RunCount = 1
	next, err = p.NextRun(tsk, now)
	require.NoError(t, err)
	assert.Nil(t, next, "a once task that has run never runs again")
}

func TestNextRun_Interval(t *testing.T) {
	p := NewPlanner()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tsk := New("t", "noop", ScheduleInterval, ScheduleConfig{IntervalSeconds: 300})

	next, err := p.NextRun(tsk, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, now, *next, "first interval run is immediate")

	last := now.Add(-time.Minute)
	tsk.LastRun = &last

	next, err = p.NextRun(tsk, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, last.Add(5*time.Minute), *next)
}

func TestNextRun_IntervalDefault(t *testing.T) {
	p := NewPlanner()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tsk := New("t", "noop", ScheduleInterval, ScheduleConfig{})
	last := now
	tsk.LastRun = &last

	next, err := p.NextRun(tsk, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, now.Add(time.Hour), *next)
}

func TestNextRun_Cron(t *testing.T) {
	p := NewPlanner()
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	tsk := New("t", "noop", ScheduleCron, ScheduleConfig{CronExpression: "0 2 * * *"})

	next, err := p.NextRun(tsk, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC), *next)
}

func TestNextRun_CronShortExpression(t *testing.T) {
	p := NewPlanner()
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	// "15" pads out to "15 * * * *".
	tsk := New("t", "noop", ScheduleCron, ScheduleConfig{CronExpression: "15"})

	next, err := p.NextRun(tsk, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 6, 1, 13, 15, 0, 0, time.UTC), *next)
}

func TestNextRun_CronInvalidFieldReplaced(t *testing.T) {
	p := NewPlanner()
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	// The broken hour field falls back to "*"; the minute field survives.
	tsk := New("t", "noop", ScheduleCron, ScheduleConfig{CronExpression: "0 nonsense * * *"})

	next, err := p.NextRun(tsk, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC), *next)
}

func TestNextRun_ConditionalFalse(t *testing.T) {
	p := NewPlanner()
	require.NoError(t, p.RegisterCondition("never", func(map[string]any, time.Time) (bool, error) {
		return false, nil
	}))

	tsk := New("t", "noop", ScheduleConditional, ScheduleConfig{Condition: "never"})

	next, err := p.NextRun(tsk, time.Now())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextRun_ConditionalTrue(t *testing.T) {
	p := NewPlanner()
	require.NoError(t, p.RegisterCondition("always", func(map[string]any, time.Time) (bool, error) {
		return true, nil
	}))

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tsk := New("t", "noop", ScheduleConditional, ScheduleConfig{Condition: "always"})

	next, err := p.NextRun(tsk, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, now.Add(conditionalDelay), *next)
}

func TestNextRun_ConditionalUnknown(t *testing.T) {
	p := NewPlanner()

	tsk := New("t", "noop", ScheduleConditional, ScheduleConfig{Condition: "missing"})

	next, err := p.NextRun(tsk, time.Now())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextRun_ConditionalError(t *testing.T) {
	p := NewPlanner()
	require.NoError(t, p.RegisterCondition("broken", func(map[string]any, time.Time) (bool, error) {
		return false, errors.New("boom")
	}))

	tsk := New("t", "noop", ScheduleConditional, ScheduleConfig{Condition: "broken"})

	next, err := p.NextRun(tsk, time.Now())
	assert.Error(t, err)
	assert.Nil(t, next)
}

func TestNextRun_Disabled(t *testing.T) {
	p := NewPlanner()

	tsk := New("t", "noop", ScheduleInterval, ScheduleConfig{IntervalSeconds: 60})
	tsk.Enabled = false

	next, err := p.NextRun(tsk, time.Now())
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextRun_UnknownScheduleType(t *testing.T) {
	p := NewPlanner()

	tsk := New("t", "noop", ScheduleType("lunar"), ScheduleConfig{})

	_, err := p.NextRun(tsk, time.Now())
	assert.Error(t, err)
}

func TestRegisterCondition_Duplicate(t *testing.T) {
	p := NewPlanner()
	fn := func(map[string]any, time.Time) (bool, error) { return true, nil }

	require.NoError(t, p.RegisterCondition("x", fn))
	err := p.RegisterCondition("x", fn)
	assert.ErrorIs(t, err, ErrConditionExists)
}

func TestTimeWindowCondition(t *testing.T) {
	p := NewPlanner()

	inside := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	outside := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

	tsk := New("t", "noop", ScheduleConditional, ScheduleConfig{
		Condition:       "time_window",
		ConditionParams: map[string]any{"start_hour": 9, "end_hour": 17},
	})

	next, err := p.NextRun(tsk, inside)
	require.NoError(t, err)
	assert.NotNil(t, next)

	next, err = p.NextRun(tsk, outside)
	require.NoError(t, err)
	assert.Nil(t, next)
}
