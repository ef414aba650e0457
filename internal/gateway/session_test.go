package gateway

import (
	"errors"
	"testing"
	"time"

	"bracket-core/internal/events"
	"bracket-core/pkg/broker"
	"bracket-core/pkg/broker/sim"
)

const testTimeout = 2 * time.Second

func newConnectedSession(t *testing.T, cfg sim.Config) (*Session, *sim.Wire) {
	t.Helper()
	wire := sim.New(cfg)
	s := NewSession(wire, events.NewBus())
	if err := s.Connect("127.0.0.1", 7497, 1, testTimeout); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Disconnect() })
	return s, wire
}

func TestConnectAssignsOrderIDs(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.StartOrderID = 100
	s, _ := newConnectedSession(t, cfg)

	first, err := s.NextOrderID()
	if err != nil {
		t.Fatalf("NextOrderID returned error: %v", err)
	}
	if first != 100 {
		t.Fatalf("first order id=%d, expected 100", first)
	}
	second, _ := s.NextOrderID()
	if second != 101 {
		t.Fatalf("second order id=%d, expected 101", second)
	}
}

func TestNextOrderIDBeforeConnect(t *testing.T) {
	s := NewSession(sim.New(sim.DefaultConfig()), nil)

	if _, err := s.NextOrderID(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	s := NewSession(sim.New(sim.DefaultConfig()), nil)

	if _, err := s.FetchOpenOrders(testTimeout); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("FetchOpenOrders: expected ErrNotConnected, got %v", err)
	}
	if _, err := s.FetchPositions(testTimeout); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("FetchPositions: expected ErrNotConnected, got %v", err)
	}
	if _, err := s.NetLiquidation(testTimeout); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("NetLiquidation: expected ErrNotConnected, got %v", err)
	}
}

func TestFetchOpenOrdersEmptyBook(t *testing.T) {
	s, _ := newConnectedSession(t, sim.DefaultConfig())

	rows, err := s.FetchOpenOrders(testTimeout)
	if err != nil {
		t.Fatalf("FetchOpenOrders returned error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("got %d rows, expected empty book", len(rows))
	}
}

func TestBracketBasketReleasesOnTransmit(t *testing.T) {
	s, _ := newConnectedSession(t, sim.DefaultConfig())
	contract := broker.StockContract("AAPL", "USD", "")

	parentID, _ := s.NextOrderID()
	takeID, _ := s.NextOrderID()
	stopID, _ := s.NextOrderID()

	parent := broker.OrderLeg{Action: broker.SideBuy, Kind: broker.OrderLimit, Quantity: 50, LimitPrice: 100, TIF: broker.TIFDay}
	take := broker.OrderLeg{Action: broker.SideSell, Kind: broker.OrderLimit, Quantity: 50, LimitPrice: 104, TIF: broker.TIFGTC, ParentID: parentID}
	stop := broker.OrderLeg{Action: broker.SideSell, Kind: broker.OrderStop, Quantity: 50, AuxPrice: 98, TIF: broker.TIFGTC, ParentID: parentID, Transmit: true}

	legs := []struct {
		id  int64
		leg broker.OrderLeg
	}{{parentID, parent}, {takeID, take}, {stopID, stop}}
	for _, l := range legs {
		if err := s.PlaceOrder(l.id, contract, l.leg); err != nil {
			t.Fatalf("PlaceOrder(%d) returned error: %v", l.id, err)
		}
	}

	st, ok := s.WaitForOrderStatus(stopID, testTimeout)
	if !ok || st != broker.StatusSubmitted {
		t.Fatalf("stop status=%q ok=%v, expected Submitted", st, ok)
	}

	rows, err := s.FetchOpenOrders(testTimeout)
	if err != nil {
		t.Fatalf("FetchOpenOrders returned error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d open orders, expected 3", len(rows))
	}
	for _, r := range rows {
		if r.Status != broker.StatusSubmitted {
			t.Fatalf("order %d status=%q, expected Submitted after basket release", r.OrderID, r.Status)
		}
	}
}

func TestWaitForOrderStatusServesLateWaitersFromCache(t *testing.T) {
	s, _ := newConnectedSession(t, sim.DefaultConfig())
	contract := broker.StockContract("AAPL", "USD", "")

	id, _ := s.NextOrderID()
	leg := broker.OrderLeg{Action: broker.SideBuy, Kind: broker.OrderLimit, Quantity: 10, LimitPrice: 100, TIF: broker.TIFDay, Transmit: true}
	if err := s.PlaceOrder(id, contract, leg); err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	if st, ok := s.WaitForOrderStatus(id, testTimeout); !ok || st != broker.StatusSubmitted {
		t.Fatalf("first wait: status=%q ok=%v", st, ok)
	}

	// A waiter arriving after the callback must see the cached status at once.
	start := time.Now()
	st, ok := s.WaitForOrderStatus(id, testTimeout)
	if !ok || st != broker.StatusSubmitted {
		t.Fatalf("late wait: status=%q ok=%v", st, ok)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("late wait took %v, expected immediate cache hit", time.Since(start))
	}
}

func TestWaitForOrderStatusUnknownOrder(t *testing.T) {
	s, _ := newConnectedSession(t, sim.DefaultConfig())

	if _, ok := s.WaitForOrderStatus(9999, 50*time.Millisecond); ok {
		t.Fatal("expected no status for unknown order")
	}
}

func TestNetLiquidation(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.NetLiquidation = 250_000
	s, _ := newConnectedSession(t, cfg)

	value, err := s.NetLiquidation(testTimeout)
	if err != nil {
		t.Fatalf("NetLiquidation returned error: %v", err)
	}
	if value != 250_000 {
		t.Fatalf("net liquidation=%v, expected 250000", value)
	}
}

func TestSnapshotPrice(t *testing.T) {
	s, wire := newConnectedSession(t, sim.DefaultConfig())
	wire.SetPrice("AAPL", 187.50)

	price, ok, err := s.SnapshotPrice(broker.StockContract("AAPL", "USD", ""), testTimeout)
	if err != nil {
		t.Fatalf("SnapshotPrice returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected a price for seeded symbol")
	}
	if price < 180 || price > 195 {
		t.Fatalf("price=%v, expected near 187.50", price)
	}
}

func TestSnapshotPriceUnknownSymbol(t *testing.T) {
	s, _ := newConnectedSession(t, sim.DefaultConfig())

	_, ok, err := s.SnapshotPrice(broker.StockContract("ZZZZ", "USD", ""), testTimeout)
	if err != nil {
		t.Fatalf("SnapshotPrice returned error: %v", err)
	}
	if ok {
		t.Fatal("expected no price for unseeded symbol")
	}
}

func TestFetchPositionsSeeded(t *testing.T) {
	s, wire := newConnectedSession(t, sim.DefaultConfig())
	wire.SetPosition(broker.PositionRow{Account: "SIM", Symbol: "AAPL", Quantity: 100, AvgCost: 150})

	rows, err := s.FetchPositions(testTimeout)
	if err != nil {
		t.Fatalf("FetchPositions returned error: %v", err)
	}
	if len(rows) != 1 || rows[0].Symbol != "AAPL" || rows[0].Quantity != 100 {
		t.Fatalf("positions=%+v, expected one AAPL row of 100", rows)
	}
}

func TestCancelUnknownOrderCapturesError(t *testing.T) {
	s, _ := newConnectedSession(t, sim.DefaultConfig())
	s.ClearLastError()

	s.CancelOrderSafe(424242)

	deadline := time.Now().Add(testTimeout)
	for {
		if e := s.LastError(); e != nil {
			if e.Code != broker.CodeOrderNotFound {
				t.Fatalf("captured code=%d, expected %d", e.Code, broker.CodeOrderNotFound)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("error callback for unknown cancel never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDisconnectLeavesSessionReusable(t *testing.T) {
	s, _ := newConnectedSession(t, sim.DefaultConfig())

	if err := s.Disconnect(); err != nil {
		t.Fatalf("Disconnect returned error: %v", err)
	}
	if s.IsConnected() {
		t.Fatal("expected disconnected state")
	}
	if _, err := s.FetchOpenOrders(testTimeout); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after disconnect, got %v", err)
	}
}

// silentWire accepts every request and never calls back, for timeout paths.
type silentWire struct{ connected bool }

func (w *silentWire) Dial(string, int, int, broker.Handler) error {
	w.connected = true
	return nil
}
func (w *silentWire) Close() error        { w.connected = false; return nil }
func (w *silentWire) IsConnected() bool   { return w.connected }
func (w *silentWire) PlaceOrder(int64, broker.Contract, broker.OrderLeg) error { return nil }
func (w *silentWire) CancelOrder(int64) error                                  { return nil }
func (w *silentWire) ReqOpenOrders() error                                     { return nil }
func (w *silentWire) ReqPositions() error                                      { return nil }
func (w *silentWire) ReqAccountSummary(int64, string, string) error            { return nil }
func (w *silentWire) ReqMktDataSnapshot(int64, broker.Contract) error          { return nil }
func (w *silentWire) CancelMktData(int64) error                                { return nil }

func TestConnectTimesOutWithoutOrderID(t *testing.T) {
	s := NewSession(&silentWire{}, nil)

	err := s.Connect("127.0.0.1", 7497, 1, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestBoundedWaitsTimeOutOnSilentBroker(t *testing.T) {
	w := &silentWire{}
	s := NewSession(w, nil)
	_ = s.Connect("127.0.0.1", 7497, 1, 20*time.Millisecond) // times out, wire stays up

	if _, err := s.FetchOpenOrders(50 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("FetchOpenOrders: expected ErrTimeout, got %v", err)
	}
	if _, err := s.FetchPositions(50 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("FetchPositions: expected ErrTimeout, got %v", err)
	}
	if _, err := s.NetLiquidation(50 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("NetLiquidation: expected ErrTimeout, got %v", err)
	}

	// Snapshot timeout is not an error, just no price.
	if _, ok, err := s.SnapshotPrice(broker.StockContract("AAPL", "USD", ""), 50*time.Millisecond); err != nil || ok {
		t.Fatalf("SnapshotPrice: ok=%v err=%v, expected silent miss", ok, err)
	}
}
