// Package scheduler promotes due tasks to the scheduled state on a fixed
// tick and is the submission surface for new tasks.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/varkas/aegis/internal/metrics"
	"github.com/varkas/aegis/internal/store"
	"github.com/varkas/aegis/internal/task"
)

const (
	DefaultTick = time.Second

	// errBackoffFactor stretches the tick after a loop-level failure so a
	// persistently broken iteration does not spin.
	errBackoffFactor = 5
)

// TaskRecorder persists task state changes.
type TaskRecorder interface {
	SaveTask(ctx context.Context, t *task.ScheduledTask) error
}

type Scheduler struct {
	store    *store.TaskStore
	planner  *task.Planner
	tick     time.Duration
	recorder TaskRecorder
}

func New(s *store.TaskStore, planner *task.Planner, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}

	return &Scheduler{
		store:   s,
		planner: planner,
		tick:    tick,
	}
}

func (s *Scheduler) SetRecorder(r TaskRecorder) {
	s.recorder = r
}

// Schedule computes the task's first run time, stores it and returns its id.
func (s *Scheduler) Schedule(t *task.ScheduledTask) (string, error) {
	next, err := s.planner.NextRun(t, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to schedule task %s: %w", t.Name, err)
	}

	t.NextRun = next
	s.store.Add(t)
	s.persist(t)

	log.Printf("[scheduler] scheduled task %s (%s, %s)", t.Name, t.ID, t.ScheduleType)
	return t.ID, nil
}

func (s *Scheduler) Cancel(taskID string) bool {
	ok := s.store.Cancel(taskID)
	if ok {
		s.persistByID(taskID)
		log.Printf("[scheduler] cancelled task %s", taskID)
	}
	return ok
}

func (s *Scheduler) Enable(taskID string) bool {
	t, exists := s.store.Get(taskID)
	if !exists {
		return false
	}

	// Get returns a copy, so flipping Enabled here only feeds the plan
	// computation; the store is untouched until Enable below.
	t.Enabled = true
	next, err := s.planner.NextRun(t, time.Now())
	if err != nil {
		log.Printf("[scheduler] cannot re-enable task %s: %v", taskID, err)
		return false
	}

	ok := s.store.Enable(taskID, next)
	if ok {
		s.persistByID(taskID)
	}
	return ok
}

func (s *Scheduler) Disable(taskID string) bool {
	ok := s.store.Disable(taskID)
	if ok {
		s.persistByID(taskID)
	}
	return ok
}

func (s *Scheduler) Get(taskID string) (*task.ScheduledTask, bool) {
	return s.store.Get(taskID)
}

// Run ticks until the context is cancelled. A panicking tick is logged and
// the loop resumes after a longer backoff tick.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("[scheduler] started (tick %v)", s.tick)

	timer := time.NewTimer(s.tick)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[scheduler] stopped")
			return
		case <-timer.C:
			delay := s.tick
			if err := s.safeTick(time.Now()); err != nil {
				log.Printf("[scheduler] tick failed: %v", err)
				delay = s.tick * errBackoffFactor
			}
			timer.Reset(delay)
		}
	}
}

func (s *Scheduler) safeTick(now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()

	s.TickOnce(now)
	return nil
}

// TickOnce re-plans idle conditional tasks and promotes everything due.
func (s *Scheduler) TickOnce(now time.Time) {
	s.replanConditional(now)

	for _, t := range s.store.Due(now) {
		if !s.store.Update(t.ID, func(live *task.ScheduledTask) {
			live.Status = task.StatusScheduled
		}) {
			continue
		}
		metrics.RecordTaskScheduled(t.Type, string(t.Priority))
		s.persistByID(t.ID)
	}
}

// replanConditional re-checks conditional tasks whose condition was false on
// earlier ticks (they carry no next-run time until it holds).
func (s *Scheduler) replanConditional(now time.Time) {
	for _, t := range s.store.List() {
		if t.ScheduleType != task.ScheduleConditional || !t.Dispatchable() || t.NextRun != nil {
			continue
		}

		next, err := s.planner.NextRun(t, now)
		if err != nil {
			log.Printf("[scheduler] condition check failed for task %s: %v", t.ID, err)
			continue
		}
		if next != nil {
			s.store.Update(t.ID, func(t *task.ScheduledTask) {
				t.NextRun = next
			})
		}
	}
}

func (s *Scheduler) persist(t *task.ScheduledTask) {
	if s.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.recorder.SaveTask(ctx, t); err != nil {
		log.Printf("[scheduler] failed to persist task %s: %v", t.ID, err)
	}
}

func (s *Scheduler) persistByID(taskID string) {
	if t, exists := s.store.Get(taskID); exists {
		s.persist(t)
	}
}
