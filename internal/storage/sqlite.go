package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := validateSQLiteFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The bridge has one control thread; a single connection keeps writes serialised.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bridge_state (
  name       TEXT PRIMARY KEY,
  state      JSON NOT NULL DEFAULT '{}',
  updated_at TEXT
);`,
		`CREATE TABLE IF NOT EXISTS job_journal (
  id          TEXT PRIMARY KEY,
  job_id      TEXT NOT NULL,
  printer_id  TEXT NOT NULL,
  outcome     TEXT NOT NULL,
  bytes       INTEGER NOT NULL DEFAULT 0,
  error       TEXT,
  recorded_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS job_journal_recorded_at_idx ON job_journal(recorded_at);`,
		`CREATE INDEX IF NOT EXISTS job_journal_job_id_idx ON job_journal(job_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
