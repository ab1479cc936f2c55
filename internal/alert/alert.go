// Package alert forwards unresolved conditions to notification channels.
// Alerts are deduplicated per source while active so a persistently bad
// metric does not spam every tick.
package alert

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/varkas/aegis/internal/metrics"
)

type (
	Level  string
	Status string
)

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// severity orders levels for dedup escalation.
func (l Level) severity() int {
	switch l {
	case LevelCritical:
		return 4
	case LevelError:
		return 3
	case LevelWarning:
		return 2
	default:
		return 1
	}
}

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
	StatusSuppressed   Status = "suppressed"
)

type Alert struct {
	ID             string     `json:"id"`
	Level          Level      `json:"level"`
	Message        string     `json:"message"`
	Source         string     `json:"source"`
	Status         Status     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Channel delivers an alert to one notification backend.
type Channel interface {
	Name() string
	Send(ctx context.Context, a *Alert) error
}

// Recorder persists alerts; implementations must upsert by id.
type Recorder interface {
	SaveAlert(ctx context.Context, a *Alert) error
}

// Sink collects alerts, deduplicates unresolved ones per (source, message)
// and fans each new alert out to every registered channel. One channel's
// failure never blocks another.
type Sink struct {
	mu       sync.RWMutex
	alerts   map[string]*Alert
	open     map[string]string // dedup key -> alert id
	channels []Channel
	recorder Recorder
}

func NewSink(channels ...Channel) *Sink {
	return &Sink{
		alerts:   make(map[string]*Alert),
		open:     make(map[string]string),
		channels: channels,
	}
}

func (s *Sink) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *Sink) AddChannel(c Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, c)
}

// Raise creates (or refreshes) an alert. If an identical unresolved alert
// already exists, the existing one is returned and no notification is sent,
// unless the new level is more severe: then the alert is escalated and the
// channels are notified again.
func (s *Sink) Raise(level Level, message, source string) *Alert {
	key := source + "|" + message

	s.mu.Lock()

	if id, exists := s.open[key]; exists {
		existing := s.alerts[id]
		if level.severity() <= existing.Level.severity() {
			s.mu.Unlock()
			return existing
		}

		existing.Level = level
		channels := append([]Channel(nil), s.channels...)
		s.mu.Unlock()

		log.Printf("[alert] escalated to %s from %s: %s", level, source, message)
		metrics.RecordAlertRaised(string(level), source)

		for _, ch := range channels {
			go s.dispatch(ch, existing)
		}

		s.persist(existing)

		return existing
	}

	a := &Alert{
		ID:        uuid.New().String(),
		Level:     level,
		Message:   message,
		Source:    source,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}
	s.alerts[a.ID] = a
	s.open[key] = a.ID

	channels := append([]Channel(nil), s.channels...)
	s.mu.Unlock()

	log.Printf("[alert] %s from %s: %s", a.Level, a.Source, a.Message)
	metrics.RecordAlertRaised(string(a.Level), a.Source)

	for _, ch := range channels {
		go s.dispatch(ch, a)
	}

	s.persist(a)

	return a
}

func (s *Sink) dispatch(ch Channel, a *Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ch.Send(ctx, a); err != nil {
		log.Printf("[alert] channel %s failed: %v", ch.Name(), err)
	}
}

func (s *Sink) persist(a *Alert) {
	if s.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.recorder.SaveAlert(ctx, a); err != nil {
		log.Printf("[alert] failed to persist alert %s: %v", a.ID, err)
	}
}

func (s *Sink) Acknowledge(alertID, by string) bool {
	s.mu.Lock()

	a, exists := s.alerts[alertID]
	if !exists || a.Status != StatusActive {
		s.mu.Unlock()
		return false
	}

	a.Status = StatusAcknowledged
	a.AcknowledgedBy = by
	s.mu.Unlock()

	s.persist(a)
	return true
}

// Resolve closes an alert and clears its dedup slot so the condition can
// alert again if it recurs.
func (s *Sink) Resolve(alertID string) bool {
	s.mu.Lock()

	a, exists := s.alerts[alertID]
	if !exists || a.Status == StatusResolved {
		s.mu.Unlock()
		return false
	}

	now := time.Now()
	a.Status = StatusResolved
	a.ResolvedAt = &now
	delete(s.open, a.Source+"|"+a.Message)
	s.mu.Unlock()

	s.persist(a)
	return true
}

func (s *Sink) Get(alertID string) (*Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, exists := s.alerts[alertID]
	return a, exists
}

// List returns all alerts, optionally only unresolved ones.
func (s *Sink) List(unresolvedOnly bool) []*Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Alert
	for _, a := range s.alerts {
		if unresolvedOnly && (a.Status == StatusResolved || a.Status == StatusSuppressed) {
			continue
		}
		out = append(out, a)
	}

	return out
}
