package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"bracket-core/internal/events"
	"bracket-core/pkg/broker"
)

var (
	// ErrTimeout means a bounded wait elapsed with no broker response. The
	// session itself stays usable.
	ErrTimeout = errors.New("gateway: timed out waiting for broker response")
	// ErrNotConnected means an operation requiring a live connection ran
	// before Connect succeeded.
	ErrNotConnected = errors.New("gateway: not connected")
)

const (
	// Account summary uses a fixed request ID; tick snapshots allocate from
	// firstTickReqID so the two spaces never overlap order IDs.
	acctSummaryReqID = 9001
	firstTickReqID   = 10001

	disconnectGrace = 2 * time.Second
	placePaceBound  = 2 * time.Second

	// Outbound message pacing; brokers throttle at roughly 50 msg/s.
	paceRate  = 40
	paceBurst = 40
)

// Session owns the connection to the broker and the monotonic order-ID
// counter, and exposes bounded-wait operations over the wire's callbacks.
// Construct one per process and share it by reference. All methods are safe
// for concurrent use from any goroutine, including the wire's receive
// goroutine.
type Session struct {
	wire broker.Wire
	bus  *events.Bus
	reg  *Registry
	pace *rate.Limiter

	idMu        sync.Mutex
	nextOrderID int64
	idAssigned  bool

	errMu     sync.Mutex
	lastError *broker.Error

	ordersMu   sync.Mutex
	openOrders []broker.OpenOrderRow

	posMu     sync.Mutex
	positions []broker.PositionRow

	acctMu      sync.Mutex
	netLiq      float64
	netLiqValid bool

	statusMu    sync.Mutex
	orderStatus map[int64]string

	mktMu      sync.Mutex
	mktPrices  map[int64]float64
	nextReqMu  sync.Mutex
	nextReqID  int64

	connMu   sync.Mutex
	closedCh chan struct{}
}

// NewSession wraps a wire. bus may be nil.
func NewSession(wire broker.Wire, bus *events.Bus) *Session {
	return &Session{
		wire:        wire,
		bus:         bus,
		reg:         NewRegistry(),
		pace:        rate.NewLimiter(rate.Limit(paceRate), paceBurst),
		orderStatus: make(map[int64]string),
		mktPrices:   make(map[int64]float64),
		nextReqID:   firstTickReqID,
	}
}

func (s *Session) publish(e events.Event, payload any) {
	if s.bus != nil {
		s.bus.Publish(e, payload)
	}
}

// IsConnected is the connection predicate consumed by the reconnect
// supervisor.
func (s *Session) IsConnected() bool {
	return s.wire.IsConnected()
}

// Connect opens the transport and blocks until the broker assigns the first
// valid order ID or the timeout elapses. Calling while already connected is a
// no-op. Waiter tables and cached snapshots from a previous connection epoch
// are cleared before dialing.
func (s *Session) Connect(host string, port, clientID int, timeout time.Duration) error {
	if s.wire.IsConnected() {
		return nil
	}
	log.Printf("gateway: connecting to %s:%d clientId=%d", host, port, clientID)

	s.reg.Clear()
	s.resetTables()

	s.connMu.Lock()
	s.closedCh = make(chan struct{})
	s.connMu.Unlock()

	w := s.reg.Register(Key{Kind: KindConnect})
	defer s.reg.Drop(Key{Kind: KindConnect}, w)

	if err := s.wire.Dial(host, port, clientID, &adapter{s: s}); err != nil {
		return fmt.Errorf("gateway: dial: %w", err)
	}
	if !w.Wait(timeout) {
		return fmt.Errorf("%w: first valid order id", ErrTimeout)
	}
	s.publish(events.EventConnected, fmt.Sprintf("%s:%d", host, port))
	return nil
}

// Disconnect closes the transport and waits briefly for the receive loop to
// deliver its final callback. Safe to call when not connected.
func (s *Session) Disconnect() error {
	if !s.wire.IsConnected() {
		return nil
	}
	log.Printf("gateway: disconnecting")

	s.connMu.Lock()
	closed := s.closedCh
	s.connMu.Unlock()

	if err := s.wire.Close(); err != nil {
		return fmt.Errorf("gateway: close: %w", err)
	}
	if closed != nil {
		select {
		case <-closed:
		case <-time.After(disconnectGrace):
			log.Printf("gateway: receive loop did not confirm close within %s", disconnectGrace)
		}
	}
	return nil
}

func (s *Session) resetTables() {
	s.ordersMu.Lock()
	s.openOrders = nil
	s.ordersMu.Unlock()
	s.posMu.Lock()
	s.positions = nil
	s.posMu.Unlock()
	s.acctMu.Lock()
	s.netLiqValid = false
	s.acctMu.Unlock()
	s.statusMu.Lock()
	s.orderStatus = make(map[int64]string)
	s.statusMu.Unlock()
	s.mktMu.Lock()
	s.mktPrices = make(map[int64]float64)
	s.mktMu.Unlock()
	s.errMu.Lock()
	s.lastError = nil
	s.errMu.Unlock()
}

// NextOrderID returns the next broker-assigned order ID and increments the
// counter. Callers must never self-assign IDs. Fails before the first
// successful connect.
func (s *Session) NextOrderID() (int64, error) {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	if !s.idAssigned {
		return 0, fmt.Errorf("%w: no order id assigned yet", ErrNotConnected)
	}
	id := s.nextOrderID
	s.nextOrderID++
	return id, nil
}

// nextTickReqID allocates a request ID for a market data snapshot.
func (s *Session) nextTickReqID() int64 {
	s.nextReqMu.Lock()
	defer s.nextReqMu.Unlock()
	id := s.nextReqID
	s.nextReqID++
	return id
}

// paceOut applies outbound message pacing bounded by the operation timeout.
func (s *Session) paceOut(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.pace.Wait(ctx); err != nil {
		return fmt.Errorf("%w: outbound pacing", ErrTimeout)
	}
	return nil
}

// FetchOpenOrders requests the open-orders snapshot and blocks until the
// broker signals list complete or the timeout elapses.
func (s *Session) FetchOpenOrders(timeout time.Duration) ([]broker.OpenOrderRow, error) {
	if !s.wire.IsConnected() {
		return nil, ErrNotConnected
	}
	s.ordersMu.Lock()
	s.openOrders = nil
	s.ordersMu.Unlock()

	w := s.reg.Register(Key{Kind: KindOpenOrders})
	defer s.reg.Drop(Key{Kind: KindOpenOrders}, w)

	if err := s.paceOut(timeout); err != nil {
		return nil, err
	}
	if err := s.wire.ReqOpenOrders(); err != nil {
		return nil, fmt.Errorf("gateway: request open orders: %w", err)
	}
	if !w.Wait(timeout) {
		return nil, fmt.Errorf("%w: open orders", ErrTimeout)
	}
	s.ordersMu.Lock()
	out := append([]broker.OpenOrderRow(nil), s.openOrders...)
	s.ordersMu.Unlock()
	return out, nil
}

// FetchPositions requests the positions snapshot and blocks until complete or
// timeout.
func (s *Session) FetchPositions(timeout time.Duration) ([]broker.PositionRow, error) {
	if !s.wire.IsConnected() {
		return nil, ErrNotConnected
	}
	s.posMu.Lock()
	s.positions = nil
	s.posMu.Unlock()

	w := s.reg.Register(Key{Kind: KindPositions})
	defer s.reg.Drop(Key{Kind: KindPositions}, w)

	if err := s.paceOut(timeout); err != nil {
		return nil, err
	}
	if err := s.wire.ReqPositions(); err != nil {
		return nil, fmt.Errorf("gateway: request positions: %w", err)
	}
	if !w.Wait(timeout) {
		return nil, fmt.Errorf("%w: positions", ErrTimeout)
	}
	s.posMu.Lock()
	out := append([]broker.PositionRow(nil), s.positions...)
	s.posMu.Unlock()
	return out, nil
}

// NetLiquidation requests the account summary for the net-liquidation tag and
// blocks until delivered or timeout. It fails when the summary-end signal
// arrives without the value.
func (s *Session) NetLiquidation(timeout time.Duration) (float64, error) {
	if !s.wire.IsConnected() {
		return 0, ErrNotConnected
	}
	s.acctMu.Lock()
	s.netLiqValid = false
	s.acctMu.Unlock()

	w := s.reg.Register(Key{Kind: KindAccountSummary})
	defer s.reg.Drop(Key{Kind: KindAccountSummary}, w)

	if err := s.paceOut(timeout); err != nil {
		return 0, err
	}
	if err := s.wire.ReqAccountSummary(acctSummaryReqID, "All", "NetLiquidation"); err != nil {
		return 0, fmt.Errorf("gateway: request account summary: %w", err)
	}
	if !w.Wait(timeout) {
		return 0, fmt.Errorf("%w: account summary", ErrTimeout)
	}
	s.acctMu.Lock()
	defer s.acctMu.Unlock()
	if !s.netLiqValid {
		return 0, errors.New("gateway: NetLiquidation unavailable")
	}
	return s.netLiq, nil
}

// OrderStatusCached returns the last known status for an order ID. Status
// updates are cached independent of active waiters, so callers arriving after
// the callback still see it.
func (s *Session) OrderStatusCached(orderID int64) (string, bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st, ok := s.orderStatus[orderID]
	return st, ok
}

// WaitForOrderStatus blocks until a status callback (or an error callback
// referencing the ID) arrives, or the timeout elapses. A status that arrived
// before the wait began is returned immediately from the cache. The boolean
// reports whether any status is known.
func (s *Session) WaitForOrderStatus(orderID int64, timeout time.Duration) (string, bool) {
	if st, ok := s.OrderStatusCached(orderID); ok {
		return st, true
	}
	k := Key{Kind: KindOrderStatus, ID: orderID}
	w := s.reg.Register(k)
	defer s.reg.Drop(k, w)

	// Re-check after registering: the callback may have landed in between.
	if st, ok := s.OrderStatusCached(orderID); ok {
		return st, true
	}
	w.Wait(timeout)
	return s.OrderStatusCached(orderID)
}

// SnapshotPrice requests a one-shot market data snapshot and returns the first
// positive price, or ok=false when none arrived in time. The underlying
// market-data line is cancelled in all cases so lines are never leaked.
func (s *Session) SnapshotPrice(contract broker.Contract, timeout time.Duration) (price float64, ok bool, err error) {
	if !s.wire.IsConnected() {
		return 0, false, ErrNotConnected
	}
	reqID := s.nextTickReqID()
	k := Key{Kind: KindMktSnapshot, ID: reqID}
	w := s.reg.Register(k)

	defer func() {
		if cerr := s.wire.CancelMktData(reqID); cerr != nil {
			log.Printf("gateway: cancel market data %d: %v", reqID, cerr)
		}
		s.reg.Drop(k, w)
		s.mktMu.Lock()
		delete(s.mktPrices, reqID)
		s.mktMu.Unlock()
	}()

	if err := s.paceOut(timeout); err != nil {
		return 0, false, err
	}
	if err := s.wire.ReqMktDataSnapshot(reqID, contract); err != nil {
		return 0, false, fmt.Errorf("gateway: request snapshot: %w", err)
	}
	w.Wait(timeout)

	s.mktMu.Lock()
	price, ok = s.mktPrices[reqID]
	s.mktMu.Unlock()
	return price, ok, nil
}

// PlaceOrder submits one order leg.
func (s *Session) PlaceOrder(orderID int64, contract broker.Contract, leg broker.OrderLeg) error {
	if !s.wire.IsConnected() {
		return ErrNotConnected
	}
	if err := s.paceOut(placePaceBound); err != nil {
		return err
	}
	if err := s.wire.PlaceOrder(orderID, contract, leg); err != nil {
		return fmt.Errorf("gateway: place order %d: %w", orderID, err)
	}
	s.publish(events.EventOrderSubmitted, events.OrderStatusUpdate{OrderID: orderID, Status: broker.StatusPendingSubmit})
	return nil
}

// CancelOrderSafe issues a best-effort cancel. Failures are logged, not
// returned; cancellation races against the broker's own state transitions.
func (s *Session) CancelOrderSafe(orderID int64) {
	if !s.wire.IsConnected() {
		log.Printf("gateway: cancel %d skipped, not connected", orderID)
		return
	}
	if err := s.wire.CancelOrder(orderID); err != nil {
		log.Printf("gateway: cancel order %d failed: %v", orderID, err)
	}
}

// LastError returns the most recent broker-reported error, or nil.
func (s *Session) LastError() *broker.Error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.lastError == nil {
		return nil
	}
	e := *s.lastError
	return &e
}

// ClearLastError resets the error slot so a freshly-read error is attributable
// to the operation that follows.
func (s *Session) ClearLastError() {
	s.errMu.Lock()
	s.lastError = nil
	s.errMu.Unlock()
}
