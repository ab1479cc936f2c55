// Package remedy provides the built-in remediation action handlers for the
// healing engine. Every handler is idempotent and safe to run repeatedly;
// actions touching external systems go through injectable hooks so the
// engine itself stays free of environment assumptions.
package remedy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/varkas/aegis/internal/healer"
)

var ErrNotConfigured = errors.New("no hook configured for action")

// ServiceController restarts a named system service.
type ServiceController interface {
	Restart(ctx context.Context, service string) error
}

// Hooks carries the deployment-specific callbacks for actions the process
// cannot perform on its own. A nil hook makes the corresponding action
// report a per-action error instead of failing registration.
type Hooks struct {
	Services     ServiceController
	RestartAgent func(ctx context.Context) error
	Scale        func(ctx context.Context, params map[string]any) error
	Failover     func(ctx context.Context, params map[string]any) error
}

// RegisterDefaults wires the standard action vocabulary into the executor.
func RegisterDefaults(exec *healer.ActionExecutor, hooks Hooks) error {
	handlers := map[string]healer.ActionHandler{
		"restart_service": restartService(hooks.Services),
		"clear_cache":     clearCache,
		"free_memory":     freeMemory,
		"clean_disk":      cleanDisk,
		"restart_agent":   hookAction("restart_agent", wrapNoParams(hooks.RestartAgent)),
		"scale_resources": hookAction("scale_resources", hooks.Scale),
		"failover":        hookAction("failover", hooks.Failover),
	}

	for name, handler := range handlers {
		if err := exec.Register(name, handler); err != nil {
			return err
		}
	}

	return nil
}

func wrapNoParams(fn func(ctx context.Context) error) func(context.Context, map[string]any) error {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, _ map[string]any) error {
		return fn(ctx)
	}
}

func hookAction(name string, fn func(ctx context.Context, params map[string]any) error) healer.ActionHandler {
	return func(ctx context.Context, params map[string]any) (string, error) {
		if fn == nil {
			return "", fmt.Errorf("%w: %s", ErrNotConfigured, name)
		}
		if err := fn(ctx, params); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s completed", name), nil
	}
}

func restartService(ctl ServiceController) healer.ActionHandler {
	return func(ctx context.Context, params map[string]any) (string, error) {
		if ctl == nil {
			return "", fmt.Errorf("%w: restart_service", ErrNotConfigured)
		}

		service, _ := params["service_name"].(string)
		if service == "" {
			return "", errors.New("missing 'service_name' parameter")
		}

		if err := ctl.Restart(ctx, service); err != nil {
			return "", fmt.Errorf("failed to restart %s: %w", service, err)
		}

		return fmt.Sprintf("service %s restarted", service), nil
	}
}

// freeMemory forces a garbage collection cycle and returns memory to the OS.
func freeMemory(_ context.Context, _ map[string]any) (string, error) {
	before, err := mem.VirtualMemory()

	runtime.GC()
	debug.FreeOSMemory()

	if err != nil {
		return "memory released", nil
	}

	after, afterErr := mem.VirtualMemory()
	if afterErr != nil {
		return "memory released", nil
	}

	return fmt.Sprintf("memory released (%.1f%% -> %.1f%% used)", before.UsedPercent, after.UsedPercent), nil
}

// clearCache removes every entry under the cache directory. Removing an
// already-empty directory is a no-op, which keeps the action idempotent.
func clearCache(ctx context.Context, params map[string]any) (string, error) {
	dir, _ := params["path"].(string)
	if dir == "" {
		return "", errors.New("missing 'path' parameter")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("cache %s already empty", dir), nil
		}
		return "", fmt.Errorf("failed to read cache dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return "", fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}

	return fmt.Sprintf("cleared %d entries from %s", removed, dir), nil
}

// cleanDisk removes regular files older than max_age_hours from a directory.
func cleanDisk(ctx context.Context, params map[string]any) (string, error) {
	dir, _ := params["path"].(string)
	if dir == "" {
		dir = os.TempDir()
	}

	maxAge := 24 * time.Hour
	if hours, ok := params["max_age_hours"].(float64); ok && hours > 0 {
		maxAge = time.Duration(hours * float64(time.Hour))
	}
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", dir, err)
	}

	removed := 0
	var freed int64
	for _, entry := range entries {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			continue
		}
		removed++
		freed += info.Size()
	}

	return fmt.Sprintf("removed %d files (%d bytes) from %s", removed, freed, dir), nil
}

// SystemdController restarts services through systemctl.
type SystemdController struct{}

func (SystemdController) Restart(ctx context.Context, service string) error {
	cmd := exec.CommandContext(ctx, "systemctl", "restart", service)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl restart %s: %w: %s", service, err, out)
	}
	return nil
}
