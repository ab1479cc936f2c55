package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureChannel struct {
	mu   sync.Mutex
	name string
	sent []*Alert
	err  error
}

func (c *captureChannel) Name() string { return c.name }

func (c *captureChannel) Send(_ context.Context, a *Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, a)
	return nil
}

func (c *captureChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type fakeAlertRecorder struct {
	mu    sync.Mutex
	saved []*Alert
}

func (f *fakeAlertRecorder) SaveAlert(_ context.Context, a *Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, a)
	return nil
}

func (f *fakeAlertRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func TestRaise(t *testing.T) {
	ch := &captureChannel{name: "capture"}
	s := NewSink(ch)

	a := s.Raise(LevelWarning, "disk filling up", "monitor")
	require.NotNil(t, a)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, LevelWarning, a.Level)
	assert.Equal(t, StatusActive, a.Status)

	require.Eventually(t, func() bool {
		return ch.count() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRaise_Dedup(t *testing.T) {
	ch := &captureChannel{name: "capture"}
	s := NewSink(ch)

	first := s.Raise(LevelError, "db unreachable", "healer")
	second := s.Raise(LevelError, "db unreachable", "healer")

	assert.Equal(t, first.ID, second.ID, "identical unresolved alerts collapse")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, ch.count(), "duplicates are not re-notified")
}

func TestRaise_DedupEscalatesLevel(t *testing.T) {
	ch := &captureChannel{name: "capture"}
	s := NewSink(ch)

	first := s.Raise(LevelInfo, "db unreachable", "healer")

	require.Eventually(t, func() bool {
		return ch.count() == 1
	}, 5*time.Second, 10*time.Millisecond)

	second := s.Raise(LevelCritical, "db unreachable", "healer")
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, LevelCritical, second.Level, "a more severe duplicate escalates the alert")

	require.Eventually(t, func() bool {
		return ch.count() == 2
	}, 5*time.Second, 10*time.Millisecond, "escalation re-notifies the channels")

	third := s.Raise(LevelWarning, "db unreachable", "healer")
	assert.Equal(t, LevelCritical, third.Level, "a less severe duplicate never downgrades")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, ch.count())
}

func TestRaise_DifferentSourcesDoNotCollide(t *testing.T) {
	s := NewSink()

	a := s.Raise(LevelError, "same message", "scheduler")
	b := s.Raise(LevelError, "same message", "healer")

	assert.NotEqual(t, a.ID, b.ID)
}

func TestRaise_AfterResolveFiresAgain(t *testing.T) {
	s := NewSink()

	first := s.Raise(LevelError, "db unreachable", "healer")
	require.True(t, s.Resolve(first.ID))

	second := s.Raise(LevelError, "db unreachable", "healer")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestChannelFailureIsolated(t *testing.T) {
	bad := &captureChannel{name: "bad", err: errors.New("smtp down")}
	good := &captureChannel{name: "good"}
	s := NewSink(bad, good)

	s.Raise(LevelCritical, "service down", "monitor")

	require.Eventually(t, func() bool {
		return good.count() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAcknowledge(t *testing.T) {
	s := NewSink()

	a := s.Raise(LevelWarning, "m", "src")
	require.True(t, s.Acknowledge(a.ID, "oncall"))

	got, _ := s.Get(a.ID)
	assert.Equal(t, StatusAcknowledged, got.Status)
	assert.Equal(t, "oncall", got.AcknowledgedBy)

	assert.False(t, s.Acknowledge(a.ID, "again"), "only active alerts can be acknowledged")
	assert.False(t, s.Acknowledge("missing", "x"))
}

func TestResolve(t *testing.T) {
	s := NewSink()

	a := s.Raise(LevelWarning, "m", "src")
	require.True(t, s.Resolve(a.ID))

	got, _ := s.Get(a.ID)
	assert.Equal(t, StatusResolved, got.Status)
	assert.NotNil(t, got.ResolvedAt)

	assert.False(t, s.Resolve(a.ID), "already resolved")
	assert.False(t, s.Resolve("missing"))
}

func TestList(t *testing.T) {
	s := NewSink()

	a := s.Raise(LevelInfo, "one", "src")
	s.Raise(LevelInfo, "two", "src")
	require.True(t, s.Resolve(a.ID))

	assert.Len(t, s.List(false), 2)

	unresolved := s.List(true)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "two", unresolved[0].Message)
}

func TestRecorderPersistsLifecycle(t *testing.T) {
	rec := &fakeAlertRecorder{}
	s := NewSink()
	s.SetRecorder(rec)

	a := s.Raise(LevelWarning, "m", "src")
	require.True(t, s.Acknowledge(a.ID, "oncall"))
	require.True(t, s.Resolve(a.ID))

	assert.Equal(t, 3, rec.count())
}
