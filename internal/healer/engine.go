package healer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/varkas/aegis/internal/metrics"
	"github.com/varkas/aegis/internal/monitor"
)

const (
	DefaultEvalInterval = 30 * time.Second

	// thresholdQuorum is the share of window samples that must satisfy a
	// metric condition before it counts as true. Anything below lets a
	// single spike retrigger rules on every tick.
	thresholdQuorum = 0.8

	// attemptWindow bounds MaxAttempts counting.
	attemptWindow = time.Hour

	maxSessionHistory = 500
)

// MetricSource supplies trailing metric windows for threshold conditions.
type MetricSource interface {
	Window(name string, d time.Duration) []monitor.SystemMetric
}

// HealthSource supplies the latest probe results for health conditions.
type HealthSource interface {
	Result(name string) (monitor.HealthResult, bool)
}

// SessionRecorder persists terminal sessions. Implementations must tolerate
// repeated saves of the same session id.
type SessionRecorder interface {
	SaveSession(ctx context.Context, s *Session) error
}

// AlertFunc surfaces an unresolved condition to the alerting layer.
type AlertFunc func(level, message, source string)

// CustomCondition is a pluggable predicate for rules the built-in condition
// types cannot express. Unknown or erroring conditions evaluate to false.
type CustomCondition func() (bool, error)

// Engine evaluates healing rules on a fixed tick and opens at most one
// running session per rule at a time.
type Engine struct {
	metrics  MetricSource
	health   HealthSource
	actions  *ActionExecutor
	interval time.Duration

	recorder SessionRecorder
	alert    AlertFunc

	mu       sync.Mutex
	rules    map[string]*Rule
	running  map[string]bool
	sessions []*Session
	customs  map[string]CustomCondition
	wg       sync.WaitGroup
}

func NewEngine(metrics MetricSource, health HealthSource, actions *ActionExecutor, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultEvalInterval
	}

	return &Engine{
		metrics:  metrics,
		health:   health,
		actions:  actions,
		interval: interval,
		rules:    make(map[string]*Rule),
		running:  make(map[string]bool),
		customs:  make(map[string]CustomCondition),
	}
}

// SetRecorder attaches a persistence collaborator for terminal sessions.
func (e *Engine) SetRecorder(r SessionRecorder) {
	e.recorder = r
}

// SetAlertFunc attaches the alert sink notification hook.
func (e *Engine) SetAlertFunc(fn AlertFunc) {
	e.alert = fn
}

func (e *Engine) AddRule(rule *Rule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule %q: missing id", rule.Name)
	}

	for _, spec := range rule.Actions {
		if !e.actions.Registered(spec.Type) {
			return fmt.Errorf("rule %s: %w: %s", rule.ID, ErrUnknownAction, spec.Type)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s already registered", rule.ID)
	}
	e.rules[rule.ID] = rule

	return nil
}

func (e *Engine) RemoveRule(ruleID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[ruleID]; !exists {
		return false
	}
	delete(e.rules, ruleID)

	return true
}

func (e *Engine) SetRuleEnabled(ruleID string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, exists := e.rules[ruleID]
	if !exists {
		return false
	}
	rule.Enabled = enabled

	return true
}

// RegisterCondition adds a named custom condition.
func (e *Engine) RegisterCondition(name string, fn CustomCondition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.customs[name] = fn
}

// Run evaluates rules until the context is cancelled, then waits for any
// in-flight sessions to finish.
func (e *Engine) Run(ctx context.Context) {
	log.Printf("[healer] started (interval %v)", e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			log.Printf("[healer] stopped")
			return
		case <-ticker.C:
			e.EvaluateOnce(ctx)
		}
	}
}

// EvaluateOnce runs a single evaluation tick over every rule.
func (e *Engine) EvaluateOnce(ctx context.Context) {
	now := time.Now()

	e.mu.Lock()
	candidates := make([]*Rule, 0, len(e.rules))
	for _, rule := range e.rules {
		if rule.Enabled && !rule.InCooldown(now) && !e.running[rule.ID] && !e.attemptsExhaustedLocked(rule, now) {
			candidates = append(candidates, rule)
		}
	}
	e.mu.Unlock()

	for _, rule := range candidates {
		matched, reason := e.evaluate(rule)
		if !matched {
			continue
		}

		if _, err := e.open(ctx, rule, reason); err != nil {
			log.Printf("[healer] rule %s: %v", rule.ID, err)
		}
	}
}

// TriggerManual opens a session for a rule regardless of its condition. The
// cooldown and single-session invariants still apply.
func (e *Engine) TriggerManual(ctx context.Context, ruleID string) (*Session, error) {
	e.mu.Lock()
	rule, exists := e.rules[ruleID]
	e.mu.Unlock()

	if !exists {
		return nil, fmt.Errorf("rule %s not found", ruleID)
	}

	return e.open(ctx, rule, "manual trigger")
}

// evaluate resolves the rule's condition. Evaluation errors are fail-open:
// logged and treated as false so a broken rule can never crash the healer.
func (e *Engine) evaluate(rule *Rule) (matched bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[healer] rule %s evaluation panicked: %v", rule.ID, r)
			matched = false
		}
	}()

	switch rule.Condition.Type {
	case ConditionMetricThreshold:
		return e.evaluateThreshold(rule.Condition)
	case ConditionHealthStatus:
		return e.evaluateHealth(rule.Condition)
	case ConditionCustom:
		return e.evaluateCustom(rule.Condition)
	default:
		return false, ""
	}
}

func (e *Engine) evaluateThreshold(c Condition) (bool, string) {
	window := time.Duration(c.DurationSeconds) * time.Second
	samples := e.metrics.Window(c.MetricName, window)
	if len(samples) == 0 {
		return false, ""
	}

	satisfied := 0
	for _, s := range samples {
		if compare(s.Value, c.Operator, c.Threshold) {
			satisfied++
		}
	}

	ratio := float64(satisfied) / float64(len(samples))
	if ratio < thresholdQuorum {
		return false, ""
	}

	reason := fmt.Sprintf("metric %s %s %.2f for %ds (%d/%d samples)",
		c.MetricName, c.Operator, c.Threshold, c.DurationSeconds, satisfied, len(samples))
	return true, reason
}

func (e *Engine) evaluateHealth(c Condition) (bool, string) {
	result, exists := e.health.Result(c.ProbeName)
	if !exists || result.Status != c.ExpectedStatus {
		return false, ""
	}

	held := time.Since(result.Since)
	if held < time.Duration(c.DurationSeconds)*time.Second {
		return false, ""
	}

	reason := fmt.Sprintf("probe %s has been %s for %v", c.ProbeName, result.Status, held.Round(time.Second))
	return true, reason
}

func (e *Engine) evaluateCustom(c Condition) (bool, string) {
	e.mu.Lock()
	fn, exists := e.customs[c.CustomName]
	e.mu.Unlock()

	if !exists {
		return false, ""
	}

	ok, err := fn()
	if err != nil {
		log.Printf("[healer] custom condition %s: %v", c.CustomName, err)
		return false, ""
	}
	if !ok {
		return false, ""
	}

	return true, fmt.Sprintf("custom condition %s", c.CustomName)
}

func compare(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	default:
		return false
	}
}

// open creates a session for the rule and runs its actions in the
// background. The caller holds no locks. The returned session is a snapshot;
// the live record stays inside the engine until it turns terminal.
func (e *Engine) open(ctx context.Context, rule *Rule, reason string) (*Session, error) {
	now := time.Now()

	e.mu.Lock()

	if e.running[rule.ID] {
		e.mu.Unlock()
		return nil, fmt.Errorf("session already running")
	}
	if rule.InCooldown(now) {
		e.mu.Unlock()
		return nil, fmt.Errorf("in cooldown until %v",
			rule.LastTriggered.Add(time.Duration(rule.CooldownSeconds)*time.Second))
	}

	session := newSession(rule, reason)
	session.Status = SessionRunning

	e.running[rule.ID] = true
	rule.LastTriggered = &now
	rule.TriggerCount++

	e.sessions = append(e.sessions, session)
	if len(e.sessions) > maxSessionHistory {
		e.sessions = e.sessions[len(e.sessions)-maxSessionHistory:]
	}

	actions := rule.Actions
	snapshot := session.clone()
	e.mu.Unlock()

	log.Printf("[healer] rule %s triggered: %s (session %s)", rule.ID, reason, session.ID)
	metrics.RecordRuleTriggered(rule.ID)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runSession(ctx, rule, session, actions)
	}()

	return snapshot, nil
}

func (e *Engine) runSession(ctx context.Context, rule *Rule, session *Session, actions []ActionSpec) {
	results, err := e.actions.Run(ctx, session.ID, actions)

	now := time.Now()

	e.mu.Lock()
	session.ActionsExecuted = results
	session.CompletedAt = &now
	if err != nil {
		session.Status = SessionFailed
		session.Error = err.Error()
		rule.FailureCount++
	} else {
		session.Status = SessionCompleted
		session.Success = true
		rule.SuccessCount++
	}
	delete(e.running, rule.ID)
	terminal := session.clone()
	e.mu.Unlock()

	metrics.RecordSessionCompleted(string(terminal.Status))

	if err != nil && e.alert != nil {
		e.alert("error", fmt.Sprintf("healing session for rule %s failed: %v", rule.Name, err), "healer")
	}

	if e.recorder != nil {
		if saveErr := e.recorder.SaveSession(ctx, terminal); saveErr != nil {
			log.Printf("[healer] failed to persist session %s: %v", terminal.ID, saveErr)
		}
	}

	log.Printf("[healer] session %s %s (%d actions)", terminal.ID, terminal.Status, len(terminal.ActionsExecuted))
}

// attemptsExhaustedLocked counts sessions for the rule inside the trailing
// attempt window.
func (e *Engine) attemptsExhaustedLocked(rule *Rule, now time.Time) bool {
	if rule.MaxAttempts <= 0 {
		return false
	}

	cutoff := now.Add(-attemptWindow)
	attempts := 0
	for _, s := range e.sessions {
		if s.RuleID == rule.ID && s.StartedAt.After(cutoff) {
			attempts++
		}
	}

	return attempts >= rule.MaxAttempts
}

// Rules returns copies of every rule.
func (e *Engine) Rules() []*Rule {
	e.mu.Lock()
	defer e.mu.Unlock()

	rules := make([]*Rule, 0, len(e.rules))
	for _, r := range e.rules {
		rules = append(rules, r.clone())
	}

	return rules
}

func (e *Engine) Rule(ruleID string) (*Rule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, exists := e.rules[ruleID]
	if !exists {
		return nil, false
	}

	return r.clone(), true
}

// Sessions returns copies of up to limit sessions, most recent last. Running
// sessions stay owned by the engine; callers only ever see snapshots.
func (e *Engine) Sessions(limit int) []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	sessions := e.sessions
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[len(sessions)-limit:]
	}

	out := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.clone())
	}

	return out
}

// HealingStats aggregates session outcomes across all rules.
type HealingStats struct {
	TotalSessions  int     `json:"total_sessions"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	Running        int     `json:"running"`
	SuccessRate    float64 `json:"success_rate"`
	ActiveRules    int     `json:"active_rules"`
	TotalRules     int     `json:"total_rules"`
	RecentSessions int     `json:"recent_sessions"`
}

func (e *Engine) Stats() HealingStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stats HealingStats
	stats.TotalSessions = len(e.sessions)
	stats.TotalRules = len(e.rules)

	cutoff := time.Now().Add(-24 * time.Hour)
	for _, s := range e.sessions {
		switch s.Status {
		case SessionCompleted:
			stats.Completed++
		case SessionFailed:
			stats.Failed++
		case SessionRunning:
			stats.Running++
		}
		if s.StartedAt.After(cutoff) {
			stats.RecentSessions++
		}
	}

	for _, r := range e.rules {
		if r.Enabled {
			stats.ActiveRules++
		}
	}

	terminal := stats.Completed + stats.Failed
	if terminal > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(terminal)
	}

	return stats
}
