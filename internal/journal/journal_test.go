package journal

import (
	"context"
	"path/filepath"
	"testing"

	"bracket-core/pkg/db"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return New(database.DB)
}

func TestRecordAndRecent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	id, err := j.Record(ctx, "AAPL", "bracket.placed", "parent=100 take=101 stop=102")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == "" {
		t.Fatal("Record returned empty id")
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Recent returned %d entries, expected 1", len(entries))
	}
	e := entries[0]
	if e.ID != id || e.Symbol != "AAPL" || e.Event != "bracket.placed" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.CreatedAt == "" {
		t.Fatal("entry has empty created_at")
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, event := range []string{"reconnect.started", "reconnect.failed", "reconnect.succeeded"} {
		if _, err := j.Record(ctx, "", event, ""); err != nil {
			t.Fatalf("Record %s: %v", event, err)
		}
	}

	entries, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent returned %d entries, expected limit of 2", len(entries))
	}
	if entries[0].Event != "reconnect.succeeded" {
		t.Fatalf("first entry = %s, expected newest event", entries[0].Event)
	}
	if entries[1].Event != "reconnect.failed" {
		t.Fatalf("second entry = %s, expected second-newest event", entries[1].Event)
	}
}

func TestStatsCountsPerEvent(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for _, ev := range []string{"bracket.placed", "bracket.placed", "bracket.cancelled"} {
		if _, err := j.Record(ctx, "AAPL", ev, ""); err != nil {
			t.Fatalf("Record %s: %v", ev, err)
		}
	}

	stats, err := j.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["bracket.placed"] != 2 || stats["bracket.cancelled"] != 1 {
		t.Fatalf("Stats = %v", stats)
	}
}

func TestRecordAllowsEmptyDetail(t *testing.T) {
	j := newTestJournal(t)

	if _, err := j.Record(context.Background(), "AAPL", "bracket.cancelled", ""); err != nil {
		t.Fatalf("Record with empty detail: %v", err)
	}
	entries, err := j.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if entries[0].Detail != "" {
		t.Fatalf("detail = %q, expected empty", entries[0].Detail)
	}
}
