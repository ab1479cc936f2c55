package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAt(name string, value float64, ts time.Time) SystemMetric {
	return SystemMetric{Name: name, Value: value, Type: MetricGauge, Timestamp: ts}
}

func TestRing_CountEviction(t *testing.T) {
	r := newRing(3, time.Hour)
	now := time.Now()

	for i := 0; i < 5; i++ {
		r.Append(sampleAt("m", float64(i), now.Add(time.Duration(i)*time.Second)))
	}

	require.Equal(t, 3, r.Len())

	out := r.Snapshot("m", 0)
	require.Len(t, out, 3)
	assert.Equal(t, 2.0, out[0].Value, "oldest samples are evicted first")
	assert.Equal(t, 4.0, out[2].Value)
}

func TestRing_AgeEviction(t *testing.T) {
	r := newRing(100, time.Minute)
	now := time.Now()

	r.Append(sampleAt("m", 1, now.Add(-2*time.Minute)))
	r.Append(sampleAt("m", 2, now.Add(-30*time.Second)))
	r.Append(sampleAt("m", 3, now))

	out := r.Snapshot("m", 0)
	require.Len(t, out, 2)
	assert.Equal(t, 2.0, out[0].Value)
}

func TestRing_EvictionUsesWallClock(t *testing.T) {
	r := newRing(100, time.Minute)
	now := time.Now()

	r.Append(sampleAt("cpu", 1, now))
	r.Append(sampleAt("custom", 2, now.Add(time.Hour)))

	require.Len(t, r.Snapshot("cpu", 0), 1, "a skewed custom timestamp must not evict fresh samples")
}

func TestRing_SnapshotFiltersAndLimits(t *testing.T) {
	r := newRing(100, time.Hour)
	now := time.Now()

	for i := 0; i < 4; i++ {
		r.Append(sampleAt("cpu", float64(i), now))
		r.Append(sampleAt("mem", float64(i*10), now))
	}

	cpu := r.Snapshot("cpu", 0)
	assert.Len(t, cpu, 4)

	limited := r.Snapshot("cpu", 2)
	require.Len(t, limited, 2)
	assert.Equal(t, 2.0, limited[0].Value, "limit keeps the most recent samples")

	all := r.Snapshot("", 0)
	assert.Len(t, all, 8)
}

func TestRing_Window(t *testing.T) {
	r := newRing(100, time.Hour)
	now := time.Now()

	r.Append(sampleAt("m", 1, now.Add(-10*time.Minute)))
	r.Append(sampleAt("m", 2, now.Add(-3*time.Minute)))
	r.Append(sampleAt("m", 3, now.Add(-time.Minute)))
	r.Append(sampleAt("other", 4, now.Add(-time.Minute)))

	out := r.Window("m", now, 5*time.Minute)
	require.Len(t, out, 2)
	assert.Equal(t, 2.0, out[0].Value)
	assert.Equal(t, 3.0, out[1].Value)
}

func TestRing_SnapshotIsCopy(t *testing.T) {
	r := newRing(100, time.Hour)
	now := time.Now()

	r.Append(sampleAt("m", 1, now))
	out := r.Snapshot("m", 0)

	for i := 0; i < 10; i++ {
		r.Append(sampleAt("m", float64(i), now.Add(time.Duration(i)*time.Second)))
	}

	require.Len(t, out, 1)
	assert.Equal(t, 1.0, out[0].Value)
}

func TestRing_ManyNames(t *testing.T) {
	r := newRing(1000, time.Hour)
	now := time.Now()

	for i := 0; i < 20; i++ {
		r.Append(sampleAt(fmt.Sprintf("m%d", i%4), float64(i), now))
	}

	assert.Len(t, r.Snapshot("m0", 0), 5)
}
