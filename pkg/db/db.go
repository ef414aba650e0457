// Package db owns the process-local sqlite file: one handle, schema applied
// at startup, shared by the plan store and the trade journal.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// Database wraps the single sqlite handle.
type Database struct {
	DB *sql.DB
}

// New opens the sqlite file at path, creating parent directories as needed.
// The pool is capped at one connection: sqlite allows a single writer, and
// plan/journal traffic is operator-action rate, so contention is a non-issue
// while a lone connection keeps writes strictly ordered. WAL mode plus a busy
// timeout cover the monitor loop reading while a placement writes.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	handle.SetMaxOpenConns(1)

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Database{DB: handle}, nil
}

// Close releases the underlying handle.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
