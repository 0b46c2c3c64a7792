package storage

import (
	"database/sql"
	"fmt"
)

// traceSchemaVersion is the latest trace store schema version.
const traceSchemaVersion = 1

// migrateTraces ensures the trace store schema exists and is upgraded to
// traceSchemaVersion.
func migrateTraces(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}
	if current >= traceSchemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS traces (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			category TEXT NOT NULL,
			decision TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create traces table: %w", err)
	}

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS trace_archive (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			category TEXT NOT NULL,
			decision TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create trace_archive table: %w", err)
	}

	_, err = tx.Exec(`CREATE INDEX IF NOT EXISTS idx_traces_ts ON traces (ts);`)
	if err != nil {
		return fmt.Errorf("migrate: create ts index: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?);`, traceSchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	return nil
}
