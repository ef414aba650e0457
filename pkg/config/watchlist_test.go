package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeWatchlist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watchlist.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write watchlist: %v", err)
	}
	return path
}

func TestLoadWatchlistParsesYAML(t *testing.T) {
	path := writeWatchlist(t, `
symbols:
  - symbol: aapl
    primary_exchange: NASDAQ
    block_on_position: false
  - symbol: "9988"
    currency: HKD
    exchange: SEHK
`)

	w, err := LoadWatchlist(path)
	if err != nil {
		t.Fatalf("LoadWatchlist: %v", err)
	}

	aapl := w.Lookup("AAPL")
	if aapl.Currency != "USD" || aapl.Exchange != "SMART" {
		t.Fatalf("AAPL defaults not applied: %+v", aapl)
	}
	if aapl.PrimaryExchange != "NASDAQ" {
		t.Fatalf("AAPL primary exchange = %q", aapl.PrimaryExchange)
	}
	if aapl.BlockOnPosition == nil || *aapl.BlockOnPosition {
		t.Fatalf("AAPL block_on_position = %v, expected explicit false", aapl.BlockOnPosition)
	}

	baba := w.Lookup("9988")
	if baba.Currency != "HKD" || baba.Exchange != "SEHK" {
		t.Fatalf("explicit contract settings lost: %+v", baba)
	}
	if baba.BlockOnPosition != nil {
		t.Fatal("unset block_on_position should stay nil (inherit global)")
	}

	want := []string{"AAPL", "9988"}
	if got := w.Symbols(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Symbols() = %v, expected %v", got, want)
	}
}

func TestLoadWatchlistMissingFileIsEmpty(t *testing.T) {
	w, err := LoadWatchlist(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadWatchlist on missing file: %v", err)
	}
	if got := w.Symbols(); len(got) != 0 {
		t.Fatalf("Symbols() = %v, expected empty", got)
	}
}

func TestLoadWatchlistRejectsBadYAML(t *testing.T) {
	path := writeWatchlist(t, "symbols: [unclosed")
	if _, err := LoadWatchlist(path); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestAddSymbolsMergesWithoutOverride(t *testing.T) {
	path := writeWatchlist(t, `
symbols:
  - symbol: AAPL
    primary_exchange: NASDAQ
`)
	w, err := LoadWatchlist(path)
	if err != nil {
		t.Fatalf("LoadWatchlist: %v", err)
	}

	w.AddSymbols([]string{"aapl", " msft ", ""})

	// The YAML entry wins over the bare env symbol.
	if got := w.Lookup("AAPL"); got.PrimaryExchange != "NASDAQ" {
		t.Fatalf("AddSymbols overwrote YAML entry: %+v", got)
	}
	if got := w.Lookup("MSFT"); got.Currency != "USD" || got.Exchange != "SMART" {
		t.Fatalf("merged symbol missing defaults: %+v", got)
	}
	want := []string{"AAPL", "MSFT"}
	if got := w.Symbols(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Symbols() = %v, expected %v", got, want)
	}
}

func TestLookupUnknownSymbolGetsDefaults(t *testing.T) {
	w, err := LoadWatchlist(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadWatchlist: %v", err)
	}

	got := w.Lookup(" tsla ")
	if got.Symbol != "TSLA" || got.Currency != "USD" || got.Exchange != "SMART" {
		t.Fatalf("Lookup defaults = %+v", got)
	}
}
