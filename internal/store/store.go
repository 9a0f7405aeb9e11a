// Package store provides the single-writer embedded SQL substrate for
// cognicore: connection setup, the versioned migration runner, and a
// transaction helper used by every repository. Table names are
// contractual (see migrations below) — they are part of the on-disk
// format and must not be renamed casually.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the single SQLite connection pool backing cognicore's state.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at dbPath, ensures the
// migration-history bookkeeping table and base schema exist, and runs
// any outstanding migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // single-writer per spec's concurrency model

	if _, err := db.Exec(baseSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create base schema: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying pool for the repository layer.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside a transaction, committing on success and
// rolling back on any error (including a panic, which is re-raised
// after rollback).
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// NowRFC3339 returns the current instant in the RFC-3339 text form used
// for every stored timestamp.
func NowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

const baseSchema = `
CREATE TABLE IF NOT EXISTS migration_history (
	version INTEGER PRIMARY KEY,
	description TEXT NOT NULL,
	applied_at TEXT NOT NULL,
	rollback_sql TEXT
);

CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	status TEXT NOT NULL DEFAULT 'backlog',
	priority TEXT NOT NULL DEFAULT 'medium',
	tags TEXT NOT NULL DEFAULT '[]',
	start_at TEXT,
	due_at TEXT,
	completed_at TEXT,
	estimated_minutes INTEGER,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_due_at ON tasks(due_at);
`
