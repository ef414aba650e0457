// Package journal keeps an append-only record of trading actions: brackets
// placed, cancellations, rejections, reconnect episodes. It is a diagnostic
// trail, so writes are best-effort from the caller's perspective.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Entry is one journal row.
type Entry struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Journal writes entries into the journal table.
type Journal struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// Record appends an entry and returns its generated id.
func (j *Journal) Record(ctx context.Context, symbol, event, detail string) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO journal (id, symbol, event, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, symbol, event, detail, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("record journal entry: %w", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, symbol, event, COALESCE(detail, ''), created_at
		FROM journal
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Event, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats counts entries per event type.
func (j *Journal) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT event, COUNT(*) FROM journal GROUP BY event
	`)
	if err != nil {
		return nil, fmt.Errorf("query journal stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var event string
		var count int
		if err := rows.Scan(&event, &count); err != nil {
			return nil, fmt.Errorf("scan journal stats: %w", err)
		}
		out[event] = count
	}
	return out, rows.Err()
}
