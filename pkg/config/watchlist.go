package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SymbolConfig is one watchlist entry in YAML. Currency and exchange fields
// resolve ambiguous tickers (dual listings, non-USD symbols).
type SymbolConfig struct {
	Symbol          string `yaml:"symbol"`
	Currency        string `yaml:"currency"`
	Exchange        string `yaml:"exchange"`
	PrimaryExchange string `yaml:"primary_exchange"`
	// BlockOnPosition overrides the global duplicate-guard position check for
	// this symbol. Nil means inherit the global setting.
	BlockOnPosition *bool `yaml:"block_on_position"`
}

// WatchlistFile is the top-level YAML structure.
type WatchlistFile struct {
	Symbols []SymbolConfig `yaml:"symbols"`
}

// Watchlist maps upper-cased symbols to their contract settings.
type Watchlist struct {
	entries map[string]SymbolConfig
	order   []string
}

// LoadWatchlist reads symbols from a YAML file. A missing file yields an
// empty watchlist, not an error, so the WATCHLIST env var alone is enough.
func LoadWatchlist(path string) (*Watchlist, error) {
	w := &Watchlist{entries: make(map[string]SymbolConfig)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return w, nil
	}
	if err != nil {
		return nil, err
	}

	var file WatchlistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	for _, sc := range file.Symbols {
		w.add(sc)
	}
	return w, nil
}

// AddSymbols merges bare symbols (e.g. from the WATCHLIST env var) that are
// not already present, with default USD/SMART contract settings.
func (w *Watchlist) AddSymbols(symbols []string) {
	for _, s := range symbols {
		w.add(SymbolConfig{Symbol: s})
	}
}

func (w *Watchlist) add(sc SymbolConfig) {
	key := strings.ToUpper(strings.TrimSpace(sc.Symbol))
	if key == "" {
		return
	}
	if _, exists := w.entries[key]; exists {
		return
	}
	sc.Symbol = key
	if sc.Currency == "" {
		sc.Currency = "USD"
	}
	if sc.Exchange == "" {
		sc.Exchange = "SMART"
	}
	w.entries[key] = sc
	w.order = append(w.order, key)
}

// Lookup returns the settings for symbol, with defaults when unknown.
func (w *Watchlist) Lookup(symbol string) SymbolConfig {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	if sc, ok := w.entries[key]; ok {
		return sc
	}
	return SymbolConfig{Symbol: key, Currency: "USD", Exchange: "SMART"}
}

// Symbols returns the watched symbols in declaration order.
func (w *Watchlist) Symbols() []string {
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}
