package healer

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// ActionResult records the outcome of one executed action within a session.
type ActionResult struct {
	Type      string         `json:"type"`
	Params    map[string]any `json:"params,omitempty"`
	Result    string         `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Session is one execution instance of a rule's action list. It is owned by
// the engine until it reaches a terminal status.
type Session struct {
	ID              string         `json:"id"`
	RuleID          string         `json:"rule_id"`
	TriggerReason   string         `json:"trigger_reason"`
	Priority        int            `json:"priority"`
	Status          SessionStatus  `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	ActionsExecuted []ActionResult `json:"actions_executed"`
	Success         bool           `json:"success"`
	Error           string         `json:"error,omitempty"`
}

func newSession(rule *Rule, reason string) *Session {
	return &Session{
		ID:            uuid.New().String(),
		RuleID:        rule.ID,
		TriggerReason: reason,
		Priority:      rule.Priority,
		Status:        SessionPending,
		StartedAt:     time.Now(),
	}
}

// clone returns a copy safe to read outside the engine lock.
func (s *Session) clone() *Session {
	out := *s
	if s.CompletedAt != nil {
		completed := *s.CompletedAt
		out.CompletedAt = &completed
	}
	out.ActionsExecuted = append([]ActionResult(nil), s.ActionsExecuted...)
	return &out
}
