// Package handlers provides the built-in task handlers for the executor.
// Each handler implements the work for one task type and can be registered
// with the executor's handler registry.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/varkas/aegis/internal/task"
)

// SystemHealthCheckHandler samples the core resource gauges and fails when
// any of them cannot be read, so a broken metrics source surfaces as a
// failing task instead of silently stale data.
func SystemHealthCheckHandler(_ context.Context, t *task.ScheduledTask) error {
	percents, err := cpu.Percent(0, false)
	if err != nil || len(percents) == 0 {
		return fmt.Errorf("failed to read cpu usage: %w", err)
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Errorf("failed to read memory usage: %w", err)
	}

	du, err := disk.Usage("/")
	if err != nil {
		return fmt.Errorf("failed to read disk usage: %w", err)
	}

	log.Printf("[Task %s] health check: cpu %.1f%%, memory %.1f%%, disk %.1f%%",
		t.ID, percents[0], vm.UsedPercent, du.UsedPercent)

	return nil
}

// LogCleanupHandler removes log files older than the configured age.
// Metadata: "path" (required), "max_age_days" (default 7), "pattern"
// (default "*.log").
func LogCleanupHandler(ctx context.Context, t *task.ScheduledTask) error {
	dir, ok := t.Metadata["path"].(string)
	if !ok || dir == "" {
		return errors.New("missing 'path' metadata")
	}

	maxAgeDays := 7.0
	if days, ok := t.Metadata["max_age_days"].(float64); ok && days > 0 {
		maxAgeDays = days
	}

	pattern, ok := t.Metadata["pattern"].(string)
	if !ok || pattern == "" {
		pattern = "*.log"
	}

	cutoff := time.Now().Add(-time.Duration(maxAgeDays * 24 * float64(time.Hour)))

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	removed := 0
	var freed int64
	for _, path := range matches {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil {
			log.Printf("[Task %s] failed to remove %s: %v", t.ID, path, err)
			continue
		}
		removed++
		freed += info.Size()
	}

	log.Printf("[Task %s] log cleanup removed %d files (%d bytes) from %s", t.ID, removed, freed, dir)
	return nil
}

// snapshotName builds a timestamped backup file name.
func snapshotName(prefix string) string {
	ts := time.Now().Format("20060102_150405")
	return strings.ToLower(prefix) + "_" + ts + ".json"
}
