package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	DefaultSampleInterval = 30 * time.Second
	defaultMaxSamples     = 1000
	defaultMaxAge         = 24 * time.Hour
)

// CustomSampler produces extra metrics on every sampling tick.
type CustomSampler func() []SystemMetric

// Sampler periodically collects CPU, memory, disk and load metrics into a
// bounded ring. Reads are snapshots; the sampler never blocks a reader.
type Sampler struct {
	interval time.Duration
	buffer   *ring

	mu      sync.RWMutex
	customs map[string]CustomSampler
}

func NewSampler(interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}

	return &Sampler{
		interval: interval,
		buffer:   newRing(defaultMaxSamples, defaultMaxAge),
		customs:  make(map[string]CustomSampler),
	}
}

// RegisterCustom adds a named sampler invoked on every tick alongside the
// built-in system metrics.
func (s *Sampler) RegisterCustom(name string, fn CustomSampler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customs[name] = fn
}

// Run samples until the context is cancelled. The first sample is taken
// immediately so rules have data before the first full interval elapses.
func (s *Sampler) Run(ctx context.Context) {
	log.Printf("[sampler] started (interval %v)", s.interval)

	s.SampleOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[sampler] stopped")
			return
		case <-ticker.C:
			s.SampleOnce()
		}
	}
}

// SampleOnce collects one batch of samples. Collection errors are logged and
// skipped; a failing gauge never aborts the batch.
func (s *Sampler) SampleOnce() {
	now := time.Now()

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.append("cpu_usage_percent", percents[0], now)
	} else if err != nil {
		log.Printf("[sampler] cpu sample failed: %v", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.append("memory_usage_percent", vm.UsedPercent, now)
	} else {
		log.Printf("[sampler] memory sample failed: %v", err)
	}

	if du, err := disk.Usage("/"); err == nil {
		s.append("disk_usage_percent", du.UsedPercent, now)
	} else {
		log.Printf("[sampler] disk sample failed: %v", err)
	}

	if avg, err := load.Avg(); err == nil {
		s.append("load_average_1m", avg.Load1, now)
	}

	s.mu.RLock()
	customs := make([]CustomSampler, 0, len(s.customs))
	for _, fn := range s.customs {
		customs = append(customs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range customs {
		for _, m := range fn() {
			if m.Timestamp.IsZero() {
				m.Timestamp = now
			}
			if m.Type == "" {
				m.Type = MetricGauge
			}
			s.buffer.Append(m)
		}
	}
}

func (s *Sampler) append(name string, value float64, ts time.Time) {
	s.buffer.Append(SystemMetric{
		Name:      name,
		Value:     value,
		Type:      MetricGauge,
		Timestamp: ts,
	})
}

// Record inserts an externally produced sample.
func (s *Sampler) Record(m SystemMetric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if m.Type == "" {
		m.Type = MetricGauge
	}
	s.buffer.Append(m)
}

// Query returns up to limit samples for a metric, oldest first. An empty
// name returns samples for all metrics.
func (s *Sampler) Query(name string, limit int) []SystemMetric {
	return s.buffer.Snapshot(name, limit)
}

// Window returns all samples for name within the trailing duration.
func (s *Sampler) Window(name string, d time.Duration) []SystemMetric {
	return s.buffer.Window(name, time.Now(), d)
}

// Latest returns the most recent sample for name.
func (s *Sampler) Latest(name string) (SystemMetric, bool) {
	samples := s.buffer.Snapshot(name, 1)
	if len(samples) == 0 {
		return SystemMetric{}, false
	}
	return samples[0], true
}
