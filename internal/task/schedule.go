package task

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// conditionalDelay is how far ahead a conditional task is scheduled once its
// condition holds. The scheduler re-checks false conditions on every tick.
const conditionalDelay = 5 * time.Second

const defaultIntervalSeconds = 3600

var ErrConditionExists = errors.New("condition already registered")

// ConditionFunc evaluates a named scheduling condition. A false result means
// the task is not runnable yet; errors are treated the same as false.
type ConditionFunc func(params map[string]any, now time.Time) (bool, error)

// Planner computes next-run times for every schedule type. Cron expressions
// are parsed with a standard 5-field parser; conditions are resolved through
// a named registry so callers can plug in system-state checks.
type Planner struct {
	parser cron.Parser

	mu         sync.RWMutex
	conditions map[string]ConditionFunc
}

func NewPlanner() *Planner {
	p := &Planner{
		parser:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		conditions: make(map[string]ConditionFunc),
	}

	p.conditions["time_window"] = timeWindowCondition

	return p
}

// RegisterCondition adds a named condition. Registering a duplicate name is
// an error so misconfigured rules fail at wiring time.
func (p *Planner) RegisterCondition(name string, fn ConditionFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.conditions[name]; exists {
		return fmt.Errorf("%w: %s", ErrConditionExists, name)
	}
	p.conditions[name] = fn

	return nil
}

// NextRun computes when the task should run next. A nil result with no error
// means the task has nothing left to do (a finished once task, or a
// conditional task whose condition does not currently hold).
func (p *Planner) NextRun(t *ScheduledTask, now time.Time) (*time.Time, error) {
	if !t.Enabled {
		return nil, nil
	}

	switch t.ScheduleType {
	case ScheduleOnce:
		if t.RunCount == 0 {
			return &now, nil
		}
		return nil, nil

	case ScheduleInterval:
		interval := t.ScheduleConfig.IntervalSeconds
		if interval <= 0 {
			interval = defaultIntervalSeconds
		}
		if t.LastRun != nil {
			next := t.LastRun.Add(time.Duration(interval) * time.Second)
			return &next, nil
		}
		return &now, nil

	case ScheduleCron:
		return p.nextCronRun(t.ScheduleConfig.CronExpression, now)

	case ScheduleConditional:
		return p.nextConditionalRun(t.ScheduleConfig, now)

	default:
		return nil, fmt.Errorf("unknown schedule type: %s", t.ScheduleType)
	}
}

func (p *Planner) nextCronRun(expr string, now time.Time) (*time.Time, error) {
	schedule, err := p.parser.Parse(normalizeCronExpr(expr, p.parser))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	next := schedule.Next(now)
	return &next, nil
}

// normalizeCronExpr pads short expressions and replaces individually invalid
// fields with "*" so that partial expressions still resolve to a real
// schedule instead of an arbitrary fallback time.
func normalizeCronExpr(expr string, parser cron.Parser) string {
	fields := strings.Fields(expr)

	for len(fields) < 5 {
		fields = append(fields, "*")
	}
	fields = fields[:5]

	for i, f := range fields {
		probe := []string{"*", "*", "*", "*", "*"}
		probe[i] = f
		if _, err := parser.Parse(strings.Join(probe, " ")); err != nil {
			fields[i] = "*"
		}
	}

	return strings.Join(fields, " ")
}

func (p *Planner) nextConditionalRun(config ScheduleConfig, now time.Time) (*time.Time, error) {
	p.mu.RLock()
	fn, exists := p.conditions[config.Condition]
	p.mu.RUnlock()

	if !exists {
		// Unknown conditions never schedule anything.
		return nil, nil
	}

	ok, err := fn(config.ConditionParams, now)
	if err != nil || !ok {
		return nil, err
	}

	next := now.Add(conditionalDelay)
	return &next, nil
}

// timeWindowCondition holds when the current hour falls inside
// [start_hour, end_hour].
func timeWindowCondition(params map[string]any, now time.Time) (bool, error) {
	start := intParam(params, "start_hour", 0)
	end := intParam(params, "end_hour", 23)

	return start <= now.Hour() && now.Hour() <= end, nil
}

func intParam(params map[string]any, key string, fallback int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
