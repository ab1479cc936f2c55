package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/varkas/aegis/internal/metrics"
)

type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusWarning  HealthStatus = "warning"
	StatusCritical HealthStatus = "critical"
	StatusUnknown  HealthStatus = "unknown"
)

// severity orders statuses for worst-of aggregation.
func (s HealthStatus) severity() int {
	switch s {
	case StatusCritical:
		return 3
	case StatusWarning:
		return 2
	case StatusHealthy:
		return 1
	default:
		return 0
	}
}

// ProbeFunc runs one health check. It may return a non-healthy status to
// signal degradation without an error; an error or a timeout marks the
// probe critical.
type ProbeFunc func(ctx context.Context) (HealthStatus, error)

type HealthResult struct {
	Name                string       `json:"name"`
	Status              HealthStatus `json:"status"`
	Timestamp           time.Time    `json:"timestamp"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	Error               string       `json:"error,omitempty"`

	// Since is when the probe first reported its current status.
	Since time.Time `json:"since"`
}

type probe struct {
	name     string
	fn       ProbeFunc
	interval time.Duration
	timeout  time.Duration
	enabled  bool
}

// ResultRecorder persists probe status transitions.
type ResultRecorder interface {
	SaveHealthResult(ctx context.Context, r HealthResult) error
}

// HealthEvaluator schedules each registered probe independently on its own
// interval so one slow probe never delays another. Results are aggregated
// worst-of.
type HealthEvaluator struct {
	mu       sync.RWMutex
	probes   map[string]*probe
	results  map[string]HealthResult
	recorder ResultRecorder
}

// SetRecorder attaches a persistence collaborator for status transitions.
func (e *HealthEvaluator) SetRecorder(r ResultRecorder) {
	e.recorder = r
}

func NewHealthEvaluator() *HealthEvaluator {
	return &HealthEvaluator{
		probes:  make(map[string]*probe),
		results: make(map[string]HealthResult),
	}
}

func (e *HealthEvaluator) Register(name string, fn ProbeFunc, interval, timeout time.Duration) error {
	if fn == nil {
		return fmt.Errorf("probe %s: nil check function", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.probes[name]; exists {
		return fmt.Errorf("probe %s already registered", name)
	}

	e.probes[name] = &probe{
		name:     name,
		fn:       fn,
		interval: interval,
		timeout:  timeout,
		enabled:  true,
	}
	e.results[name] = HealthResult{
		Name:   name,
		Status: StatusUnknown,
		Since:  time.Now(),
	}

	return nil
}

// Run starts one goroutine per probe and blocks until the context is
// cancelled.
func (e *HealthEvaluator) Run(ctx context.Context) {
	e.mu.RLock()
	probes := make([]*probe, 0, len(e.probes))
	for _, p := range e.probes {
		probes = append(probes, p)
	}
	e.mu.RUnlock()

	log.Printf("[health] started (%d probes)", len(probes))

	var wg sync.WaitGroup
	for _, p := range probes {
		wg.Add(1)
		go func(p *probe) {
			defer wg.Done()
			e.runProbe(ctx, p)
		}(p)
	}

	wg.Wait()
	log.Printf("[health] stopped")
}

func (e *HealthEvaluator) runProbe(ctx context.Context, p *probe) {
	e.RunProbeOnce(ctx, p.name)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunProbeOnce(ctx, p.name)
		}
	}
}

// RunProbeOnce executes a single probe with its timeout and records the
// result. Probe panics are converted into a critical result.
func (e *HealthEvaluator) RunProbeOnce(ctx context.Context, name string) {
	e.mu.RLock()
	p, exists := e.probes[name]
	e.mu.RUnlock()

	if !exists || !p.enabled {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	status, err := runGuarded(probeCtx, p.fn)
	if probeCtx.Err() == context.DeadlineExceeded {
		status, err = StatusCritical, fmt.Errorf("probe timed out after %v", p.timeout)
	}

	e.record(name, status, err)
}

func runGuarded(ctx context.Context, fn ProbeFunc) (HealthStatus, error) {
	type outcome struct {
		status HealthStatus
		err    error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{StatusCritical, fmt.Errorf("probe panicked: %v", r)}
			}
		}()

		s, e := fn(ctx)
		done <- outcome{s, e}
	}()

	select {
	case <-ctx.Done():
		return StatusCritical, ctx.Err()
	case o := <-done:
		return o.status, o.err
	}
}

func (e *HealthEvaluator) record(name string, status HealthStatus, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	prev := e.results[name]

	result := HealthResult{
		Name:      name,
		Status:    status,
		Timestamp: now,
		Since:     prev.Since,
	}

	if err != nil {
		result.Status = StatusCritical
		result.Error = err.Error()
		result.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	}

	changed := result.Status != prev.Status
	if changed {
		result.Since = now
	}

	e.results[name] = result
	metrics.RecordProbeStatus(name, result.Status.severity())

	if changed && e.recorder != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := e.recorder.SaveHealthResult(ctx, result); err != nil {
				log.Printf("[health] failed to persist result for %s: %v", name, err)
			}
		}()
	}

	if result.Status == StatusCritical {
		log.Printf("[health] probe %s critical: %s", name, result.Error)
	}
}

func (e *HealthEvaluator) Enable(name string) bool {
	return e.setEnabled(name, true)
}

func (e *HealthEvaluator) Disable(name string) bool {
	return e.setEnabled(name, false)
}

func (e *HealthEvaluator) setEnabled(name string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, exists := e.probes[name]
	if !exists {
		return false
	}
	p.enabled = enabled

	return true
}

// Result returns the latest result for a single probe.
func (e *HealthEvaluator) Result(name string) (HealthResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, exists := e.results[name]
	return r, exists
}

// Results returns a copy of every probe's latest result.
func (e *HealthEvaluator) Results() map[string]HealthResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]HealthResult, len(e.results))
	for name, r := range e.results {
		out[name] = r
	}

	return out
}

// Overall aggregates enabled probes into a single worst-of status.
func (e *HealthEvaluator) Overall() HealthStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	overall := StatusUnknown
	for name, r := range e.results {
		if p, exists := e.probes[name]; exists && !p.enabled {
			continue
		}
		if r.Status.severity() > overall.severity() {
			overall = r.Status
		}
	}

	return overall
}
