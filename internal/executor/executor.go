// Package executor runs scheduled tasks concurrently, applying per-task
// timeouts and the fixed-delay retry policy.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/varkas/aegis/internal/metrics"
	"github.com/varkas/aegis/internal/store"
	"github.com/varkas/aegis/internal/task"
)

const DefaultTick = time.Second

var (
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrTaskTimeout     = errors.New("task timed out")
)

// Handler executes one task run. Handlers should honor ctx; a handler that
// does not is abandoned at its timeout.
type Handler func(ctx context.Context, t *task.ScheduledTask) error

// Registry maps task types to handlers. Registration is validated so an
// unknown type is a typed error at dispatch, never a crash.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

func (r *Registry) Register(taskType string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("task type %s: nil handler", taskType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[taskType]; exists {
		return fmt.Errorf("task type %s already registered", taskType)
	}
	r.handlers[taskType] = handler

	return nil
}

func (r *Registry) Resolve(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, exists := r.handlers[taskType]
	return h, exists
}

// RunRecorder persists task state and per-attempt run log entries.
type RunRecorder interface {
	SaveTask(ctx context.Context, t *task.ScheduledTask) error
	LogTaskRun(ctx context.Context, taskID string, attempt int, status string, durationMs int, msgErr string) error
}

type Executor struct {
	store    *store.TaskStore
	registry *Registry
	planner  *task.Planner
	tick     time.Duration
	recorder RunRecorder
	wg       sync.WaitGroup
}

func New(s *store.TaskStore, registry *Registry, planner *task.Planner, tick time.Duration) *Executor {
	if tick <= 0 {
		tick = DefaultTick
	}

	return &Executor{
		store:    s,
		registry: registry,
		planner:  planner,
		tick:     tick,
	}
}

func (e *Executor) SetRecorder(r RunRecorder) {
	e.recorder = r
}

// Run dispatches until the context is cancelled, then waits for in-flight
// tasks to finish.
func (e *Executor) Run(ctx context.Context) {
	log.Printf("[executor] started (tick %v)", e.tick)

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			log.Printf("[executor] stopped")
			return
		case <-ticker.C:
			e.DispatchOnce(ctx)
		}
	}
}

// DispatchOnce claims every scheduled task in priority order and runs each
// in its own goroutine. Completion order across tasks is unordered.
func (e *Executor) DispatchOnce(ctx context.Context) {
	for _, t := range e.store.Scheduled() {
		claimed := false
		now := time.Now()

		e.store.Update(t.ID, func(t *task.ScheduledTask) {
			if t.Status != task.StatusScheduled {
				return
			}
			t.Status = task.StatusRunning
			t.LastRun = &now
			t.NextRun = nil
			t.RunCount++
			claimed = true
		})

		if !claimed {
			continue
		}

		e.wg.Add(1)
		go func(taskID string) {
			defer e.wg.Done()
			e.execute(ctx, taskID)
		}(t.ID)
	}
}

func (e *Executor) execute(ctx context.Context, taskID string) {
	t, exists := e.store.Get(taskID)
	if !exists {
		return
	}

	log.Printf("[executor] running task %s (%s, attempt %d)", t.Name, t.Type, t.RunCount)

	start := time.Now()
	handler, exists := e.registry.Resolve(t.Type)
	if !exists {
		// Unknown types are permanent failures; retrying cannot fix them.
		e.failPermanently(t, fmt.Sprintf("%v: %s", ErrUnknownTaskType, t.Type), time.Since(start))
		return
	}

	err := e.runHandler(ctx, handler, t)
	duration := time.Since(start)

	if err != nil {
		e.handleFailure(t, err, duration)
		return
	}

	e.handleSuccess(t, duration)
}

// runHandler invokes the handler under the task's timeout, converting
// panics and deadline expiry into ordinary errors.
func (e *Executor) runHandler(ctx context.Context, handler Handler, t *task.ScheduledTask) error {
	timeout := time.Duration(t.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panicked: %v", r)
			}
		}()
		done <- handler(runCtx, t)
	}()

	select {
	case <-runCtx.Done():
		return fmt.Errorf("%w after %v", ErrTaskTimeout, timeout)
	case err := <-done:
		return err
	}
}

func (e *Executor) handleSuccess(t *task.ScheduledTask, duration time.Duration) {
	next, err := e.planner.NextRun(t, time.Now())
	if err != nil {
		log.Printf("[executor] failed to compute next run for %s: %v", t.ID, err)
		next = nil
	}

	e.store.Update(t.ID, func(t *task.ScheduledTask) {
		t.SuccessCount++
		t.LastError = ""
		if next != nil {
			// Repeating tasks re-enter the pending cadence.
			t.Status = task.StatusPending
			t.NextRun = next
		} else {
			t.Status = task.StatusCompleted
			t.NextRun = nil
		}
	})

	metrics.RecordTaskCompleted(t.Type, duration)
	e.record(t, string(task.StatusCompleted), duration, "")

	log.Printf("[executor] task %s completed in %v", t.Name, duration.Round(time.Millisecond))
}

func (e *Executor) handleFailure(t *task.ScheduledTask, runErr error, duration time.Duration) {
	var status task.Status
	var failures int

	e.store.Update(t.ID, func(live *task.ScheduledTask) {
		live.FailureCount++
		live.LastError = runErr.Error()

		if live.FailureCount <= live.MaxRetries {
			retryAt := time.Now().Add(time.Duration(live.RetryDelay) * time.Second)
			live.Status = task.StatusRetrying
			live.NextRun = &retryAt
		} else {
			live.Status = task.StatusFailed
			live.Enabled = false
			live.NextRun = nil
		}
		status = live.Status
		failures = live.FailureCount
	})

	metrics.RecordTaskFailed(t.Type, duration)

	if status == task.StatusRetrying {
		metrics.RecordTaskRetried(t.Type)
		log.Printf("[executor] task %s failed, will retry (%d/%d): %v", t.Name, failures, t.MaxRetries, runErr)
	} else {
		log.Printf("[executor] task %s failed permanently: %v", t.Name, runErr)
	}

	e.record(t, string(status), duration, runErr.Error())
}

func (e *Executor) failPermanently(t *task.ScheduledTask, reason string, duration time.Duration) {
	e.store.Update(t.ID, func(t *task.ScheduledTask) {
		t.FailureCount++
		t.LastError = reason
		t.Status = task.StatusFailed
		t.Enabled = false
		t.NextRun = nil
	})

	metrics.RecordTaskFailed(t.Type, duration)
	e.record(t, string(task.StatusFailed), duration, reason)

	log.Printf("[executor] task %s failed permanently: %s", t.Name, reason)
}

func (e *Executor) record(t *task.ScheduledTask, status string, duration time.Duration, msgErr string) {
	if e.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	current, _ := e.store.Get(t.ID)
	if current == nil {
		current = t
	}

	if err := e.recorder.SaveTask(ctx, current); err != nil {
		log.Printf("[executor] failed to persist task %s: %v", t.ID, err)
	}
	if err := e.recorder.LogTaskRun(ctx, t.ID, current.RunCount, status, int(duration.Milliseconds()), msgErr); err != nil {
		log.Printf("[executor] failed to log run for task %s: %v", t.ID, err)
	}
}
