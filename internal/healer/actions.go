package healer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

var ErrUnknownAction = errors.New("unknown healing action")

const defaultActionTimeout = 30 * time.Second

// ActionHandler runs one remediation action. Handlers must be idempotent:
// the engine may invoke them repeatedly across sessions.
type ActionHandler func(ctx context.Context, params map[string]any) (string, error)

// ActionExecutor resolves actions by name and runs a session's action list
// strictly in order. A failing action is recorded and execution continues to
// the next one; only a handler lookup failure on every action, or a panic in
// the run loop, fails the session itself.
type ActionExecutor struct {
	handlers map[string]ActionHandler
	timeout  time.Duration
}

func NewActionExecutor() *ActionExecutor {
	return &ActionExecutor{
		handlers: make(map[string]ActionHandler),
		timeout:  defaultActionTimeout,
	}
}

func (e *ActionExecutor) SetTimeout(d time.Duration) {
	e.timeout = d
}

// Register adds a handler. Nil handlers and duplicate names are rejected at
// registration time rather than at trigger time.
func (e *ActionExecutor) Register(actionType string, handler ActionHandler) error {
	if handler == nil {
		return fmt.Errorf("action %s: nil handler", actionType)
	}
	if _, exists := e.handlers[actionType]; exists {
		return fmt.Errorf("action %s already registered", actionType)
	}

	e.handlers[actionType] = handler
	return nil
}

func (e *ActionExecutor) Registered(actionType string) bool {
	_, exists := e.handlers[actionType]
	return exists
}

// Run executes the actions sequentially and returns one result per entry.
// The session itself is never touched here; the engine attaches the results
// under its own lock. An error is returned only if the loop itself breaks; a
// per-action failure is captured in the entry and is not fatal.
func (e *ActionExecutor) Run(ctx context.Context, sessionID string, actions []ActionSpec) (results []ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action run loop panicked: %v", r)
		}
	}()

	for _, spec := range actions {
		entry := ActionResult{
			Type:      spec.Type,
			Params:    spec.Params,
			Timestamp: time.Now(),
		}

		handler, exists := e.handlers[spec.Type]
		if !exists {
			entry.Error = fmt.Sprintf("%v: %s", ErrUnknownAction, spec.Type)
			results = append(results, entry)
			log.Printf("[healer] session %s: %s", sessionID, entry.Error)
			continue
		}

		result, actionErr := e.runOne(ctx, handler, spec.Params)
		if actionErr != nil {
			entry.Error = actionErr.Error()
			log.Printf("[healer] session %s: action %s failed: %v", sessionID, spec.Type, actionErr)
		} else {
			entry.Result = result
			log.Printf("[healer] session %s: action %s: %s", sessionID, spec.Type, result)
		}

		results = append(results, entry)
	}

	return results, nil
}

// runOne invokes a single handler under the per-action timeout. A handler
// that ignores its context is abandoned once the timeout expires so a stuck
// action cannot block the rest of the session.
func (e *ActionExecutor) runOne(ctx context.Context, handler ActionHandler, params map[string]any) (string, error) {
	actionCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		result string
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("action panicked: %v", r)}
			}
		}()

		result, err := handler(actionCtx, params)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-actionCtx.Done():
		return "", fmt.Errorf("action timed out after %v", e.timeout)
	case o := <-done:
		return o.result, o.err
	}
}
