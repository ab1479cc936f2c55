package monitor

import (
	"sync"
	"time"
)

// ring is a bounded, time-ordered sample buffer. Oldest samples are evicted
// first, either by count or by age, whichever bound is hit first.
type ring struct {
	mu         sync.RWMutex
	samples    []SystemMetric
	maxSamples int
	maxAge     time.Duration
}

func newRing(maxSamples int, maxAge time.Duration) *ring {
	return &ring{
		maxSamples: maxSamples,
		maxAge:     maxAge,
	}
}

// Append records a sample. Eviction is based on the wall clock, not the
// sample's own timestamp, so a skewed custom metric cannot evict fresh
// samples of other metrics.
func (r *ring) Append(m SystemMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.samples = append(r.samples, m)
	r.evictLocked(time.Now())
}

func (r *ring) evictLocked(now time.Time) {
	if len(r.samples) > r.maxSamples {
		r.samples = r.samples[len(r.samples)-r.maxSamples:]
	}

	cutoff := now.Add(-r.maxAge)
	first := 0
	for first < len(r.samples) && r.samples[first].Timestamp.Before(cutoff) {
		first++
	}
	if first > 0 {
		r.samples = r.samples[first:]
	}
}

// Snapshot returns up to limit samples for the given metric name, oldest
// first. An empty name matches everything; limit <= 0 means no limit. The
// returned slice is a copy, safe to use after further appends.
func (r *ring) Snapshot(name string, limit int) []SystemMetric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []SystemMetric
	for _, m := range r.samples {
		if name == "" || m.Name == name {
			out = append(out, m)
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}

	return append([]SystemMetric(nil), out...)
}

// Window returns all samples for name with timestamps in (now-d, now].
func (r *ring) Window(name string, now time.Time, d time.Duration) []SystemMetric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := now.Add(-d)
	var out []SystemMetric
	for _, m := range r.samples {
		if m.Name == name && m.Timestamp.After(cutoff) && !m.Timestamp.After(now) {
			out = append(out, m)
		}
	}

	return out
}

func (r *ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.samples)
}
