package tasks

import (
	"database/sql"
	"fmt"

	. "github.com/roelfdiedericks/llamar/internal/logging"
)

const schemaVersion = 1

func initSchema(db *sql.DB) error {
	L_debug("tasks: initializing schema", "version", schemaVersion)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		L_warn("tasks: failed to enable WAL mode", "error", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		L_warn("tasks: failed to set busy timeout", "error", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tasks_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create tasks_meta table: %w", err)
	}

	var currentVersion int
	err := db.QueryRow("SELECT value FROM tasks_meta WHERE key = 'schema_version'").Scan(&currentVersion)
	if err == sql.ErrNoRows {
		currentVersion = 0
	} else if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if currentVersion < schemaVersion {
		if err := migrateSchema(db, currentVersion); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}

func migrateSchema(db *sql.DB, fromVersion int) error {
	L_info("tasks: migrating schema", "from", fromVersion, "to", schemaVersion)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if fromVersion < 1 {
		if err := migrateV1(tx); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO tasks_meta (key, value) VALUES ('schema_version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, schemaVersion); err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}

	return tx.Commit()
}

func migrateV1(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			schedule TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'active',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			last_run INTEGER,
			next_run INTEGER,
			run_count INTEGER NOT NULL DEFAULT 0,
			last_result TEXT NOT NULL DEFAULT '',
			last_error TEXT NOT NULL DEFAULT '',
			notification_sink TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("create tasks table: %w", err)
	}

	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, next_run)`); err != nil {
		return fmt.Errorf("create idx_tasks_due: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS task_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			result TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			tokens_used INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
		)
	`); err != nil {
		return fmt.Errorf("create task_runs table: %w", err)
	}

	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_task_runs_task ON task_runs(task_id, started_at)`); err != nil {
		return fmt.Errorf("create idx_task_runs_task: %w", err)
	}

	return nil
}
