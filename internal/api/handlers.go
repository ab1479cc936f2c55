package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/varkas/aegis/internal/alert"
	"github.com/varkas/aegis/internal/healer"
	"github.com/varkas/aegis/internal/httputil"
	"github.com/varkas/aegis/internal/monitor"
	"github.com/varkas/aegis/internal/scheduler"
	"github.com/varkas/aegis/internal/store"
	"github.com/varkas/aegis/internal/task"
)

type API struct {
	scheduler *scheduler.Scheduler
	store     *store.TaskStore
	sampler   *monitor.Sampler
	health    *monitor.HealthEvaluator
	engine    *healer.Engine
	alerts    *alert.Sink
	mux       *http.ServeMux
}

type CreateTaskRequest struct {
	Name           string              `json:"name"`
	Type           string              `json:"type"`
	ScheduleType   task.ScheduleType   `json:"schedule_type"`
	ScheduleConfig task.ScheduleConfig `json:"schedule_config"`
	Priority       *task.Priority      `json:"priority"`
	MaxRetries     *int                `json:"max_retries"`
	RetryDelay     *int                `json:"retry_delay_seconds"`
	Timeout        *int                `json:"timeout_seconds"`
	Metadata       map[string]any      `json:"metadata"`
}

func NewAPI(sched *scheduler.Scheduler, st *store.TaskStore, sampler *monitor.Sampler, health *monitor.HealthEvaluator, engine *healer.Engine, alerts *alert.Sink) *API {
	api := &API{
		scheduler: sched,
		store:     st,
		sampler:   sampler,
		health:    health,
		engine:    engine,
		alerts:    alerts,
		mux:       http.NewServeMux(),
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/api/tasks", a.handleTasks)
	a.mux.HandleFunc("/api/tasks/", a.handleTaskByID)
	a.mux.HandleFunc("/api/health", a.getHealth)
	a.mux.HandleFunc("/api/metrics/samples", a.getSamples)
	a.mux.HandleFunc("/api/rules", a.listRules)
	a.mux.HandleFunc("/api/rules/", a.handleRuleByID)
	a.mux.HandleFunc("/api/sessions", a.listSessions)
	a.mux.HandleFunc("/api/alerts", a.listAlerts)
	a.mux.HandleFunc("/api/alerts/", a.handleAlertByID)
	a.mux.HandleFunc("/api/stats", a.getStats)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createTask(w, r)
	case http.MethodGet:
		a.listTasks(w, r)
	default:
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	var req CreateTaskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Type == "" {
		httputil.WriteJSONError(w, "Task type is required", http.StatusBadRequest)
		return
	}
	if req.ScheduleType == "" {
		httputil.WriteJSONError(w, "Schedule type is required", http.StatusBadRequest)
		return
	}

	t := task.New(req.Name, req.Type, req.ScheduleType, req.ScheduleConfig)
	if req.Priority != nil {
		t.Priority = *req.Priority
	}
	if req.MaxRetries != nil {
		t.MaxRetries = *req.MaxRetries
	}
	if req.RetryDelay != nil {
		t.RetryDelay = *req.RetryDelay
	}
	if req.Timeout != nil {
		t.Timeout = *req.Timeout
	}
	if req.Metadata != nil {
		t.Metadata = req.Metadata
	}

	if _, err := a.scheduler.Schedule(t); err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, t)
}

func (a *API) listTasks(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, a.store.List())
}

func (a *API) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	parts := strings.Split(rest, "/")
	taskID := parts[0]
	if taskID == "" {
		httputil.WriteJSONError(w, "Task ID is required", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			a.getTask(w, taskID)
		case http.MethodDelete:
			a.cancelTask(w, taskID)
		default:
			httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "enable":
		a.setTaskEnabled(w, taskID, true)
	case "disable":
		a.setTaskEnabled(w, taskID, false)
	case "cancel":
		a.cancelTask(w, taskID)
	default:
		httputil.WriteJSONError(w, "Unknown task action", http.StatusNotFound)
	}
}

func (a *API) getTask(w http.ResponseWriter, taskID string) {
	t, ok := a.scheduler.Get(taskID)
	if !ok {
		httputil.WriteJSONError(w, "Task not found", http.StatusNotFound)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, t)
}

func (a *API) cancelTask(w http.ResponseWriter, taskID string) {
	if !a.scheduler.Cancel(taskID) {
		httputil.WriteJSONError(w, "Task cannot be cancelled", http.StatusConflict)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (a *API) setTaskEnabled(w http.ResponseWriter, taskID string, enabled bool) {
	var ok bool
	if enabled {
		ok = a.scheduler.Enable(taskID)
	} else {
		ok = a.scheduler.Disable(taskID)
	}
	if !ok {
		httputil.WriteJSONError(w, "Task not found", http.StatusNotFound)
		return
	}

	t, _ := a.scheduler.Get(taskID)
	httputil.WriteJSON(w, http.StatusOK, t)
}

func (a *API) getHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"status": a.health.Overall(),
		"probes": a.health.Results(),
	})
}

func (a *API) getSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		httputil.WriteJSONError(w, "Metric name is required", http.StatusBadRequest)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteJSONError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	httputil.WriteJSON(w, http.StatusOK, a.sampler.Query(name, limit))
}

func (a *API) listRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, a.engine.Rules())
}

func (a *API) handleRuleByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/rules/")
	parts := strings.Split(rest, "/")
	ruleID := parts[0]
	if ruleID == "" {
		httputil.WriteJSONError(w, "Rule ID is required", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		rule, ok := a.engine.Rule(ruleID)
		if !ok {
			httputil.WriteJSONError(w, "Rule not found", http.StatusNotFound)
			return
		}

		httputil.WriteJSON(w, http.StatusOK, rule)
		return
	}

	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "trigger":
		session, err := a.engine.TriggerManual(r.Context(), ruleID)
		if err != nil {
			httputil.WriteJSONError(w, err.Error(), http.StatusConflict)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, session)
	case "enable":
		a.setRuleEnabled(w, ruleID, true)
	case "disable":
		a.setRuleEnabled(w, ruleID, false)
	default:
		httputil.WriteJSONError(w, "Unknown rule action", http.StatusNotFound)
	}
}

func (a *API) setRuleEnabled(w http.ResponseWriter, ruleID string, enabled bool) {
	if !a.engine.SetRuleEnabled(ruleID, enabled) {
		httputil.WriteJSONError(w, "Rule not found", http.StatusNotFound)
		return
	}

	rule, _ := a.engine.Rule(ruleID)
	httputil.WriteJSON(w, http.StatusOK, rule)
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httputil.WriteJSONError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	httputil.WriteJSON(w, http.StatusOK, a.engine.Sessions(limit))
}

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	unresolvedOnly := r.URL.Query().Get("unresolved") == "true"
	httputil.WriteJSON(w, http.StatusOK, a.alerts.List(unresolvedOnly))
}

func (a *API) handleAlertByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/alerts/")
	parts := strings.Split(rest, "/")
	alertID := parts[0]
	if alertID == "" {
		httputil.WriteJSONError(w, "Alert ID is required", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		a.getAlert(w, alertID)
		return
	}

	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "ack":
		by := r.URL.Query().Get("by")
		if by == "" {
			by = "api"
		}
		if !a.alerts.Acknowledge(alertID, by) {
			httputil.WriteJSONError(w, "Alert cannot be acknowledged", http.StatusConflict)
			return
		}

		a.getAlert(w, alertID)
	case "resolve":
		if !a.alerts.Resolve(alertID) {
			httputil.WriteJSONError(w, "Alert cannot be resolved", http.StatusConflict)
			return
		}

		a.getAlert(w, alertID)
	default:
		httputil.WriteJSONError(w, "Unknown alert action", http.StatusNotFound)
	}
}

func (a *API) getAlert(w http.ResponseWriter, alertID string) {
	al, ok := a.alerts.Get(alertID)
	if !ok {
		httputil.WriteJSONError(w, "Alert not found", http.StatusNotFound)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, al)
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"tasks":   a.store.Stats(),
		"healing": a.engine.Stats(),
		"health":  a.health.Overall(),
	})
}
