package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/varkas/aegis/internal/monitor"
	"github.com/varkas/aegis/internal/task"
)

// MetricSource is the read side of the sampler the performance monitor
// summarizes.
type MetricSource interface {
	Query(name string, limit int) []monitor.SystemMetric
	Record(m monitor.SystemMetric)
}

// PerfMonitor summarizes recent resource samples and records the averages
// back into the sampler as derived metrics usable by healing rules.
type PerfMonitor struct {
	source MetricSource
}

func NewPerfMonitor(source MetricSource) *PerfMonitor {
	return &PerfMonitor{source: source}
}

func (p *PerfMonitor) PerformanceMonitorHandler(_ context.Context, t *task.ScheduledTask) error {
	if p.source == nil {
		return errors.New("no metric source configured")
	}

	summary := ""
	for _, name := range []string{"cpu_usage_percent", "memory_usage_percent", "disk_usage_percent"} {
		samples := p.source.Query(name, 20)
		if len(samples) == 0 {
			continue
		}

		var sum float64
		for _, s := range samples {
			sum += s.Value
		}
		avg := sum / float64(len(samples))

		p.source.Record(monitor.SystemMetric{
			Name:  name + "_avg",
			Value: avg,
			Type:  monitor.MetricGauge,
		})

		summary += fmt.Sprintf(" %s=%.1f", name, avg)
	}

	if summary == "" {
		return errors.New("no samples available yet")
	}

	log.Printf("[Task %s] performance summary:%s", t.ID, summary)
	return nil
}
