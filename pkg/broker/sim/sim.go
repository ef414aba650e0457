// Package sim provides an in-process simulated broker wire for paper runs and
// tests. It honors the broker.Wire contract: every request is acknowledged
// asynchronously through the Handler, delivered from a single dispatch
// goroutine, exactly like a real client library's receive loop.
package sim

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"bracket-core/pkg/broker"
)

// Config tunes the simulated venue.
type Config struct {
	StartOrderID   int64
	NetLiquidation float64
	Latency        time.Duration // per-callback delivery delay
	Seed           int64
}

// DefaultConfig returns a deterministic paper setup.
func DefaultConfig() Config {
	return Config{
		StartOrderID:   1,
		NetLiquidation: 100_000,
		Latency:        0,
		Seed:           1,
	}
}

type simOrder struct {
	contract broker.Contract
	leg      broker.OrderLeg
	status   string
}

// Wire is a simulated broker.Wire.
type Wire struct {
	cfg Config

	mu        sync.Mutex
	h         broker.Handler
	connected bool
	nextID    int64
	open      map[int64]*simOrder
	positions []broker.PositionRow
	prices    map[string]float64
	rng       *rand.Rand

	dispatch chan func()
	done     chan struct{}
}

// New creates a disconnected simulated wire.
func New(cfg Config) *Wire {
	if cfg.StartOrderID <= 0 {
		cfg.StartOrderID = 1
	}
	return &Wire{
		cfg:    cfg,
		nextID: cfg.StartOrderID,
		open:   make(map[int64]*simOrder),
		prices: make(map[string]float64),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
}

// SetPrice seeds the snapshot price for a symbol.
func (w *Wire) SetPrice(symbol string, price float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prices[symbol] = price
}

// SetPosition seeds a position row returned by ReqPositions.
func (w *Wire) SetPosition(row broker.PositionRow) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.positions = append(w.positions, row)
}

func (w *Wire) Dial(host string, port, clientID int, h broker.Handler) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.connected {
		return nil
	}
	if h == nil {
		return errors.New("sim: nil handler")
	}
	w.h = h
	w.connected = true
	w.dispatch = make(chan func(), 256)
	w.done = make(chan struct{})

	// Single dispatch goroutine stands in for the client library's receive
	// loop so callbacks never arrive concurrently.
	go func() {
		defer close(w.done)
		for fn := range w.dispatch {
			if w.cfg.Latency > 0 {
				time.Sleep(w.cfg.Latency)
			}
			fn()
		}
		h.ConnectionClosed(nil)
	}()

	log.Printf("sim: connected (host=%s port=%d clientId=%d)", host, port, clientID)
	id := w.nextID
	w.post(func() { h.NextValidID(id) })
	return nil
}

func (w *Wire) Close() error {
	w.mu.Lock()
	if !w.connected {
		w.mu.Unlock()
		return nil
	}
	w.connected = false
	close(w.dispatch)
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		return errors.New("sim: dispatch loop did not exit")
	}
	return nil
}

func (w *Wire) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// post enqueues a callback; silently dropped when disconnected, matching a
// real wire that has lost its socket.
func (w *Wire) post(fn func()) {
	if !w.connected {
		return
	}
	select {
	case w.dispatch <- fn:
	default:
		log.Printf("sim: dispatch queue full, dropping callback")
	}
}

func (w *Wire) PlaceOrder(orderID int64, contract broker.Contract, leg broker.OrderLeg) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return errors.New("sim: not connected")
	}
	if orderID >= w.nextID {
		w.nextID = orderID + 1
	}
	o := &simOrder{contract: contract, leg: leg, status: broker.StatusPreSubmitted}
	w.open[orderID] = o
	h := w.h

	if !leg.Transmit {
		// Held at the broker until the final basket leg transmits.
		w.post(func() { h.OrderStatus(orderID, broker.StatusPreSubmitted, 0, float64(leg.Quantity), 0) })
		return nil
	}

	// Transmitting leg releases the whole basket: itself, its parent, and any
	// sibling referencing the same parent.
	released := []int64{orderID}
	if leg.ParentID != 0 {
		if _, ok := w.open[leg.ParentID]; ok {
			released = append(released, leg.ParentID)
		}
		for id, other := range w.open {
			if id != orderID && other.leg.ParentID == leg.ParentID {
				released = append(released, id)
			}
		}
	}
	for _, id := range released {
		ord := w.open[id]
		ord.status = broker.StatusSubmitted
		qty := float64(ord.leg.Quantity)
		rid := id
		w.post(func() { h.OrderStatus(rid, broker.StatusSubmitted, 0, qty, 0) })
	}
	return nil
}

func (w *Wire) CancelOrder(orderID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return errors.New("sim: not connected")
	}
	h := w.h
	o, ok := w.open[orderID]
	if !ok {
		msg := fmt.Sprintf("Can't find order with id = %d", orderID)
		w.post(func() { h.Error(orderID, broker.CodeOrderNotFound, msg, "") })
		return nil
	}
	o.status = broker.StatusCancelled
	delete(w.open, orderID)
	qty := float64(o.leg.Quantity)
	w.post(func() { h.OrderStatus(orderID, broker.StatusCancelled, 0, qty, 0) })
	return nil
}

func (w *Wire) ReqOpenOrders() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return errors.New("sim: not connected")
	}
	h := w.h
	rows := make([]broker.OpenOrderRow, 0, len(w.open))
	for id, o := range w.open {
		rows = append(rows, broker.OpenOrderRow{
			OrderID:    id,
			Symbol:     o.contract.Symbol,
			Action:     o.leg.Action,
			Kind:       string(o.leg.Kind),
			Quantity:   float64(o.leg.Quantity),
			LimitPrice: o.leg.LimitPrice,
			AuxPrice:   o.leg.AuxPrice,
			Status:     o.status,
			ParentID:   o.leg.ParentID,
		})
	}
	w.post(func() {
		for _, r := range rows {
			h.OpenOrder(r)
		}
		h.OpenOrderEnd()
	})
	return nil
}

func (w *Wire) ReqPositions() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return errors.New("sim: not connected")
	}
	h := w.h
	rows := append([]broker.PositionRow(nil), w.positions...)
	w.post(func() {
		for _, r := range rows {
			h.Position(r)
		}
		h.PositionEnd()
	})
	return nil
}

func (w *Wire) ReqAccountSummary(reqID int64, group, tags string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return errors.New("sim: not connected")
	}
	h := w.h
	value := fmt.Sprintf("%.2f", w.cfg.NetLiquidation)
	w.post(func() {
		h.AccountSummary(reqID, "SIM", "NetLiquidation", value, "USD")
		h.AccountSummaryEnd(reqID)
	})
	return nil
}

func (w *Wire) ReqMktDataSnapshot(reqID int64, contract broker.Contract) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return errors.New("sim: not connected")
	}
	h := w.h
	px, ok := w.prices[contract.Symbol]
	if ok {
		// Small walk so repeated snapshots look alive.
		px *= 1 + (w.rng.Float64()-0.5)*0.001
		w.prices[contract.Symbol] = px
	}
	w.post(func() {
		if ok {
			h.TickPrice(reqID, 4, px)
		}
		h.TickSnapshotEnd(reqID)
	})
	return nil
}

func (w *Wire) CancelMktData(reqID int64) error {
	return nil
}
