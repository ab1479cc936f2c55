// Package healer implements the rule-driven auto-healing loop: rules are
// evaluated against metric and health data, and a matching rule opens a
// healing session that runs its remediation actions in order.
package healer

import (
	"time"

	"github.com/varkas/aegis/internal/monitor"
)

type ConditionType string

const (
	ConditionMetricThreshold ConditionType = "metric_threshold"
	ConditionHealthStatus    ConditionType = "health_status"
	ConditionCustom          ConditionType = "custom"
)

// Condition is the typed predicate attached to a rule. Only the fields for
// the condition's type are consulted.
type Condition struct {
	Type ConditionType `json:"type"`

	// metric_threshold
	MetricName      string  `json:"metric_name,omitempty"`
	Operator        string  `json:"operator,omitempty"` // one of > >= < <=
	Threshold       float64 `json:"threshold,omitempty"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`

	// health_status
	ProbeName      string               `json:"probe_name,omitempty"`
	ExpectedStatus monitor.HealthStatus `json:"expected_status,omitempty"`

	// custom
	CustomName string `json:"custom_name,omitempty"`
}

// ActionSpec names one remediation action and its parameters.
type ActionSpec struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

type Rule struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Condition       Condition    `json:"condition"`
	Actions         []ActionSpec `json:"actions"`
	Priority        int          `json:"priority"`
	CooldownSeconds int          `json:"cooldown_seconds"`
	MaxAttempts     int          `json:"max_attempts"`
	Enabled         bool         `json:"enabled"`

	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	TriggerCount  int        `json:"trigger_count"`
	SuccessCount  int        `json:"success_count"`
	FailureCount  int        `json:"failure_count"`
}

// clone returns a copy safe to read outside the engine lock.
func (r *Rule) clone() *Rule {
	out := *r
	if r.LastTriggered != nil {
		triggered := *r.LastTriggered
		out.LastTriggered = &triggered
	}
	out.Actions = append([]ActionSpec(nil), r.Actions...)
	return &out
}

// InCooldown reports whether the rule fired less than its cooldown ago.
func (r *Rule) InCooldown(now time.Time) bool {
	if r.LastTriggered == nil || r.CooldownSeconds <= 0 {
		return false
	}
	return now.Sub(*r.LastTriggered) < time.Duration(r.CooldownSeconds)*time.Second
}
