package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no plan matches a lookup.
var ErrNotFound = errors.New("plan not found")

// Store persists plans as JSON rows keyed by id, with symbol and kind
// columns for lookup. The latest placed plan per symbol drives the duplicate
// guard, so writes happen before any order leaves the process.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save inserts or replaces the plan under the given kind.
func (s *Store) Save(ctx context.Context, p *Plan, kind string) error {
	if p == nil {
		return errors.New("nil plan")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = NowISO()
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO plans (id, symbol, kind, body, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			body = excluded.body
	`, p.ID, p.Symbol, kind, string(body), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

// Latest returns the most recent plan for symbol, any kind.
func (s *Store) Latest(ctx context.Context, symbol string) (*Plan, error) {
	return s.latestByKind(ctx, symbol, "")
}

// LatestDraft returns the most recent draft plan for symbol. Placement
// reads drafts only: a placed copy of an older plan must never be picked
// up and replayed as if it were pending work.
func (s *Store) LatestDraft(ctx context.Context, symbol string) (*Plan, error) {
	return s.latestByKind(ctx, symbol, KindDraft)
}

// LatestPlaced returns the most recent placed plan for symbol, or
// (nil, nil) when the symbol has never been placed. The nil-nil contract
// lets callers distinguish "no prior plan" from a failed lookup.
func (s *Store) LatestPlaced(symbol string) (*Plan, error) {
	return s.latestByKind(context.Background(), symbol, KindPlaced)
}

func (s *Store) latestByKind(ctx context.Context, symbol, kind string) (*Plan, error) {
	query := `SELECT body FROM plans WHERE symbol = ?`
	args := []any{symbol}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT 1`

	var body string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		if kind == KindPlaced {
			return nil, nil
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}

	var p Plan
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &p, nil
}

// List returns up to limit most recent plans across all symbols.
func (s *Store) List(ctx context.Context, limit int) ([]*Plan, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM plans
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var out []*Plan
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		var p Plan
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, fmt.Errorf("decode plan: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
