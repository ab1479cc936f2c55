package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/varkas/aegis/internal/task"
)

// BackupRunner dumps repository tables to timestamped JSON snapshots.
type BackupRunner struct {
	db *sql.DB
}

func NewBackupRunner(db *sql.DB) *BackupRunner {
	return &BackupRunner{db: db}
}

// DatabaseBackupHandler exports one table to the output directory.
// Metadata: "table" (default "scheduled_tasks"), "output_path" (default
// "./backups").
func (b *BackupRunner) DatabaseBackupHandler(ctx context.Context, t *task.ScheduledTask) error {
	if b.db == nil {
		return errors.New("no database configured for backup")
	}

	table, ok := t.Metadata["table"].(string)
	if !ok || table == "" {
		table = "scheduled_tasks"
	}
	if !validTableName(table) {
		return fmt.Errorf("invalid table name: %s", table)
	}

	outputPath, ok := t.Metadata["output_path"].(string)
	if !ok || outputPath == "" {
		outputPath = "./backups"
	}

	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create backup dir: %w", err)
	}

	rows, err := b.db.QueryContext(ctx, "SELECT * FROM "+table)
	if err != nil {
		return fmt.Errorf("failed to read table %s: %w", table, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			log.Printf("failed to close rows: %v", err)
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	var records []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return err
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				record[col] = string(b)
			} else {
				record[col] = values[i]
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	file := filepath.Join(outputPath, snapshotName(table))
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	log.Printf("[Task %s] backed up %d rows from %s to %s", t.ID, len(records), table, file)
	return nil
}

func validTableName(name string) bool {
	for _, r := range name {
		if (r < 'a' || r > 'z') && r != '_' {
			return false
		}
	}
	return name != ""
}
