// Package monitor polls the broker session for live position state and
// evaluates price alert rules. Ticks and fired alerts go out on the event
// bus; delivery to external sinks is someone else's problem.
package monitor

import (
	"context"
	"log"
	"time"

	"bracket-core/internal/events"
	"bracket-core/internal/plan"
	"bracket-core/pkg/broker"
	"bracket-core/pkg/cache"
)

// Monitor polls use shorter timeouts than interactive commands so a slow
// gateway degrades to a skipped tick instead of a stalled loop.
const pollTimeout = 2 * time.Second

// Session is the slice of the gateway session the monitor needs.
type Session interface {
	IsConnected() bool
	FetchOpenOrders(timeout time.Duration) ([]broker.OpenOrderRow, error)
	FetchPositions(timeout time.Duration) ([]broker.PositionRow, error)
	SnapshotPrice(contract broker.Contract, timeout time.Duration) (float64, bool, error)
}

// PlanLoader resolves the latest placed plan per symbol, used for
// R-multiple calculation. A nil-nil return means no placed plan exists.
type PlanLoader interface {
	LatestPlaced(symbol string) (*plan.Plan, error)
}

// ContractResolver maps a symbol to a tradable contract.
type ContractResolver func(symbol string) broker.Contract

// Tick is one observation of a watched symbol.
type Tick struct {
	Symbol     string  `json:"symbol"`
	Last       float64 `json:"last,omitempty"`
	Position   float64 `json:"position"`
	AvgCost    float64 `json:"avg_cost,omitempty"`
	OpenOrders int     `json:"open_orders"`
	RMultiple  float64 `json:"r_multiple,omitempty"`
	HasPlan    bool    `json:"has_plan"`
	At         string  `json:"at"`
}

// Monitor runs the polling loop over a fixed watchlist.
type Monitor struct {
	Session  Session
	Plans    PlanLoader
	Bus      *events.Bus
	Alerts   *AlertBook
	Quotes   *cache.QuoteCache
	Resolve  ContractResolver
	Symbols  []string
	Interval time.Duration
}

// Start launches the loop; it exits when ctx is cancelled. Safe to call with
// an empty watchlist, which degrades to alert-only polling.
func (m *Monitor) Start(ctx context.Context) {
	if m.Session == nil || m.Bus == nil {
		log.Println("monitor: not fully configured; skipping")
		return
	}
	interval := m.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.poll()
			}
		}
	}()
}

func (m *Monitor) poll() {
	if !m.Session.IsConnected() {
		return
	}

	orders, err := m.Session.FetchOpenOrders(pollTimeout)
	if err != nil {
		log.Printf("monitor: open orders poll failed: %v", err)
		return
	}
	positions, err := m.Session.FetchPositions(pollTimeout)
	if err != nil {
		log.Printf("monitor: positions poll failed: %v", err)
		return
	}

	ordersBySymbol := make(map[string]int)
	for _, o := range orders {
		if !broker.IsFinalStatus(o.Status) {
			ordersBySymbol[o.Symbol]++
		}
	}
	posBySymbol := make(map[string]broker.PositionRow)
	for _, p := range positions {
		if p.Quantity != 0 {
			posBySymbol[p.Symbol] = p
		}
	}

	for _, symbol := range m.Symbols {
		tick := Tick{
			Symbol:     symbol,
			OpenOrders: ordersBySymbol[symbol],
			At:         time.Now().UTC().Format(time.RFC3339),
		}
		if pos, ok := posBySymbol[symbol]; ok {
			tick.Position = pos.Quantity
			tick.AvgCost = pos.AvgCost
		}

		if m.Resolve != nil {
			if last, ok, err := m.Session.SnapshotPrice(m.Resolve(symbol), pollTimeout); err == nil && ok {
				tick.Last = last
				if m.Quotes != nil {
					m.Quotes.Set(symbol, last)
				}
				m.fireAlerts(symbol, last)
				m.applyRMultiple(&tick, symbol, last)
			}
		}

		m.Bus.Publish(events.EventMonitorTick, tick)
	}
}

// applyRMultiple computes the position's progress in risk units against the
// latest placed plan: one R equals the entry-to-stop distance.
func (m *Monitor) applyRMultiple(tick *Tick, symbol string, last float64) {
	if m.Plans == nil || tick.Position == 0 {
		return
	}
	p, err := m.Plans.LatestPlaced(symbol)
	if err != nil || p == nil {
		return
	}
	entry := p.Levels.EntryLimit
	riskPerShare := p.Risk.RiskPerShare
	if riskPerShare <= 0 {
		riskPerShare = entry - p.Levels.Stop
		if riskPerShare < 0 {
			riskPerShare = -riskPerShare
		}
	}
	if riskPerShare <= 0 || entry <= 0 {
		return
	}
	tick.HasPlan = true
	if tick.Position > 0 {
		tick.RMultiple = (last - entry) / riskPerShare
	} else {
		tick.RMultiple = (entry - last) / riskPerShare
	}
}

func (m *Monitor) fireAlerts(symbol string, last float64) {
	if m.Alerts == nil {
		return
	}
	for _, fired := range m.Alerts.Evaluate(symbol, last) {
		log.Printf("monitor: price alert fired: %s %s %.4f (last %.4f)",
			fired.Symbol, fired.Direction, fired.Price, last)
		m.Bus.Publish(events.EventPriceAlert, fired)
	}
}
