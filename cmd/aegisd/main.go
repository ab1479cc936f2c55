package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/varkas/aegis/internal/alert"
	"github.com/varkas/aegis/internal/api"
	"github.com/varkas/aegis/internal/executor"
	"github.com/varkas/aegis/internal/executor/handlers"
	"github.com/varkas/aegis/internal/healer"
	"github.com/varkas/aegis/internal/healer/remedy"
	"github.com/varkas/aegis/internal/middleware"
	"github.com/varkas/aegis/internal/monitor"
	"github.com/varkas/aegis/internal/repository"
	"github.com/varkas/aegis/internal/scheduler"
	"github.com/varkas/aegis/internal/store"
	"github.com/varkas/aegis/internal/task"
)

func main() {
	var repo repository.Repository

	postgresDSN := os.Getenv("POSTGRES_DSN")
	redisAddr := os.Getenv("REDIS_ADDR")

	switch {
	case postgresDSN != "":
		pg, err := repository.NewPostgresRepository(postgresDSN)
		if err != nil {
			log.Fatal(err)
		}
		repo = pg
		log.Println("Using Postgres persistence")
	case redisAddr != "":
		rd, err := repository.NewRedisRepository(redisAddr)
		if err != nil {
			log.Fatal(err)
		}
		repo = rd
		log.Printf("Using Redis persistence at %s", redisAddr)
	default:
		log.Println("No POSTGRES_DSN or REDIS_ADDR set, running without persistence")
	}

	if repo != nil {
		defer func() {
			if err := repo.Close(); err != nil {
				log.Printf("failed to close repository: %v", err)
			}
		}()
	}

	taskStore := store.NewTaskStore()
	planner := task.NewPlanner()

	sched := scheduler.New(taskStore, planner, durationEnv("SCHEDULER_TICK_SECONDS", time.Second))

	registry := executor.NewRegistry()
	exec := executor.New(taskStore, registry, planner, durationEnv("EXECUTOR_TICK_SECONDS", time.Second))

	sampler := monitor.NewSampler(durationEnv("SAMPLE_INTERVAL_SECONDS", monitor.DefaultSampleInterval))
	health := monitor.NewHealthEvaluator()

	actions := healer.NewActionExecutor()
	if err := remedy.RegisterDefaults(actions, remedy.Hooks{Services: remedy.SystemdController{}}); err != nil {
		log.Fatal(err)
	}

	engine := healer.NewEngine(sampler, health, actions, durationEnv("RULE_TICK_SECONDS", healer.DefaultEvalInterval))

	sink := alert.NewSink(alert.LogChannel{})
	if apiKey := os.Getenv("SENDGRID_API_KEY"); apiKey != "" {
		to := os.Getenv("ALERT_EMAIL_TO")
		if to == "" {
			log.Fatal("ALERT_EMAIL_TO is required when SENDGRID_API_KEY is set")
		}
		sink.AddChannel(alert.NewEmailChannel(apiKey, "Aegis", os.Getenv("ALERT_EMAIL_FROM"), to))
	}
	if url := os.Getenv("ALERT_WEBHOOK_URL"); url != "" {
		sink.AddChannel(alert.NewWebhookChannel(url))
	}

	engine.SetAlertFunc(func(level, message, source string) {
		sink.Raise(alert.Level(level), message, source)
	})

	if repo != nil {
		sched.SetRecorder(repo)
		exec.SetRecorder(repo)
		engine.SetRecorder(repo)
		health.SetRecorder(repo)
		sink.SetRecorder(repo)
	}

	registerTaskHandlers(registry, sampler, repo)
	registerConditions(planner, sampler)
	registerProbes(health, sampler)
	seedRules(engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sched.Run(ctx)
	go exec.Run(ctx)
	go sampler.Run(ctx)
	go health.Run(ctx)
	go engine.Run(ctx)

	apiHandler := api.NewAPI(sched, taskStore, sampler, health, engine, sink)

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.MetricsMiddleware(apiHandler))
	mux.Handle("/metrics", promhttp.Handler())

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

func registerTaskHandlers(registry *executor.Registry, sampler *monitor.Sampler, repo repository.Repository) {
	must(registry.Register("system_health_check", handlers.SystemHealthCheckHandler))
	must(registry.Register("log_cleanup", handlers.LogCleanupHandler))

	perf := handlers.NewPerfMonitor(sampler)
	must(registry.Register("performance_monitor", perf.PerformanceMonitorHandler))

	if pg, ok := repo.(*repository.PostgresRepository); ok {
		backup := handlers.NewBackupRunner(pg.DB())
		must(registry.Register("database_backup", backup.DatabaseBackupHandler))
	}
}

func registerConditions(planner *task.Planner, sampler *monitor.Sampler) {
	// system_load holds while CPU usage stays under max_cpu_percent, so
	// heavy maintenance tasks only run on a quiet machine.
	must(planner.RegisterCondition("system_load", func(params map[string]any, _ time.Time) (bool, error) {
		maxCPU := 70.0
		if v, ok := params["max_cpu_percent"].(float64); ok && v > 0 {
			maxCPU = v
		}

		latest, ok := sampler.Latest("cpu_usage_percent")
		if !ok {
			return false, nil
		}

		return latest.Value < maxCPU, nil
	}))
}

func registerProbes(health *monitor.HealthEvaluator, sampler *monitor.Sampler) {
	gauges := []struct {
		probe    string
		metric   string
		warning  float64
		critical float64
	}{
		{"cpu", "cpu_usage_percent", 80, 95},
		{"memory", "memory_usage_percent", 80, 95},
		{"disk", "disk_usage_percent", 85, 95},
	}

	for _, g := range gauges {
		g := g
		fn := func(_ context.Context) (monitor.HealthStatus, error) {
			latest, ok := sampler.Latest(g.metric)
			if !ok {
				return monitor.StatusUnknown, nil
			}
			switch {
			case latest.Value >= g.critical:
				return monitor.StatusCritical, fmt.Errorf("%s at %.1f%%", g.metric, latest.Value)
			case latest.Value >= g.warning:
				return monitor.StatusWarning, nil
			default:
				return monitor.StatusHealthy, nil
			}
		}

		must(health.Register(g.probe, fn, time.Minute, 10*time.Second))
	}
}

func seedRules(engine *healer.Engine) {
	rules := []*healer.Rule{
		{
			ID:   "high_cpu",
			Name: "High CPU usage",
			Condition: healer.Condition{
				Type:            healer.ConditionMetricThreshold,
				MetricName:      "cpu_usage_percent",
				Operator:        ">",
				Threshold:       80,
				DurationSeconds: 300,
			},
			Actions: []healer.ActionSpec{
				{Type: "scale_resources", Params: map[string]any{"cpu_limit": 2.0, "memory_limit": "4Gi"}},
			},
			Priority:        1,
			CooldownSeconds: 300,
			MaxAttempts:     3,
			Enabled:         true,
		},
		{
			ID:   "high_memory",
			Name: "High memory usage",
			Condition: healer.Condition{
				Type:            healer.ConditionMetricThreshold,
				MetricName:      "memory_usage_percent",
				Operator:        ">",
				Threshold:       90,
				DurationSeconds: 300,
			},
			Actions: []healer.ActionSpec{
				{Type: "free_memory"},
				{Type: "clear_cache", Params: map[string]any{"path": os.TempDir()}},
			},
			Priority:        1,
			CooldownSeconds: 600,
			MaxAttempts:     3,
			Enabled:         true,
		},
		{
			ID:   "disk_pressure",
			Name: "Disk nearly full",
			Condition: healer.Condition{
				Type:            healer.ConditionMetricThreshold,
				MetricName:      "disk_usage_percent",
				Operator:        ">",
				Threshold:       90,
				DurationSeconds: 600,
			},
			Actions: []healer.ActionSpec{
				{Type: "clean_disk", Params: map[string]any{"max_age_hours": 24.0}},
			},
			Priority:        1,
			CooldownSeconds: 3600,
			MaxAttempts:     2,
			Enabled:         true,
		},
		{
			ID:   "memory_probe_critical",
			Name: "Memory probe critical",
			Condition: healer.Condition{
				Type:            healer.ConditionHealthStatus,
				ProbeName:       "memory",
				ExpectedStatus:  monitor.StatusCritical,
				DurationSeconds: 60,
			},
			Actions: []healer.ActionSpec{
				{Type: "free_memory"},
			},
			Priority:        2,
			CooldownSeconds: 300,
			MaxAttempts:     3,
			Enabled:         true,
		},
	}

	for _, r := range rules {
		must(engine.AddRule(r))
	}
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		log.Fatalf("%s: invalid value %q", key, raw)
	}

	return time.Duration(seconds) * time.Second
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
