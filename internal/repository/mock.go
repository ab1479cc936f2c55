package repository

import (
	"context"
	"sync"

	"github.com/varkas/aegis/internal/alert"
	"github.com/varkas/aegis/internal/healer"
	"github.com/varkas/aegis/internal/monitor"
	"github.com/varkas/aegis/internal/task"
)

// MockRepository is an in-memory Repository for tests.
type MockRepository struct {
	mu sync.Mutex

	Tasks         map[string]task.ScheduledTask
	Sessions      map[string]healer.Session
	Alerts        map[string]alert.Alert
	HealthResults []monitor.HealthResult
	RunLog        []string

	saveTaskCalls    int
	saveSessionCalls int
	saveAlertCalls   int

	Err error // returned by every method when set
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		Tasks:    make(map[string]task.ScheduledTask),
		Sessions: make(map[string]healer.Session),
		Alerts:   make(map[string]alert.Alert),
	}
}

func (m *MockRepository) SaveTask(_ context.Context, t *task.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveTaskCalls++
	if m.Err != nil {
		return m.Err
	}
	m.Tasks[t.ID] = *t

	return nil
}

func (m *MockRepository) LogTaskRun(_ context.Context, taskID string, _ int, status string, _ int, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.RunLog = append(m.RunLog, taskID+":"+status)

	return nil
}

func (m *MockRepository) SaveSession(_ context.Context, s *healer.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveSessionCalls++
	if m.Err != nil {
		return m.Err
	}
	m.Sessions[s.ID] = *s

	return nil
}

func (m *MockRepository) SaveAlert(_ context.Context, a *alert.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saveAlertCalls++
	if m.Err != nil {
		return m.Err
	}
	m.Alerts[a.ID] = *a

	return nil
}

func (m *MockRepository) SaveHealthResult(_ context.Context, r monitor.HealthResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.HealthResults = append(m.HealthResults, r)

	return nil
}

func (m *MockRepository) Close() error { return nil }

func (m *MockRepository) SaveTaskCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveTaskCalls
}

func (m *MockRepository) SaveSessionCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSessionCalls
}

func (m *MockRepository) SaveAlertCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAlertCalls
}

func (m *MockRepository) TaskStatus(taskID string) (task.Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, exists := m.Tasks[taskID]
	return t.Status, exists
}
