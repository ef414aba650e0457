package bracket

import (
	"errors"
	"testing"
	"time"

	"bracket-core/internal/plan"
	"bracket-core/internal/task"
	"bracket-core/pkg/broker"
)

type placedCall struct {
	OrderID  int64
	Contract broker.Contract
	Leg      broker.OrderLeg
}

// fakeSession records submissions and serves canned broker state.
type fakeSession struct {
	orders       []broker.OpenOrderRow
	ordersErr    error
	positions    []broker.PositionRow
	positionsErr error

	nextID int64

	placed   []placedCall
	placeErr error

	status   string
	statusOK bool

	lastErr      *broker.Error
	errCleared   bool
	cancelledIDs []int64
}

func (f *fakeSession) FetchOpenOrders(time.Duration) ([]broker.OpenOrderRow, error) {
	return f.orders, f.ordersErr
}

func (f *fakeSession) FetchPositions(time.Duration) ([]broker.PositionRow, error) {
	return f.positions, f.positionsErr
}

func (f *fakeSession) NextOrderID() (int64, error) {
	f.nextID++
	return f.nextID, nil
}

func (f *fakeSession) PlaceOrder(orderID int64, contract broker.Contract, leg broker.OrderLeg) error {
	if f.placeErr != nil {
		return f.placeErr
	}
	f.placed = append(f.placed, placedCall{OrderID: orderID, Contract: contract, Leg: leg})
	return nil
}

func (f *fakeSession) WaitForOrderStatus(int64, time.Duration) (string, bool) {
	return f.status, f.statusOK
}

func (f *fakeSession) LastError() *broker.Error { return f.lastErr }
func (f *fakeSession) ClearLastError()          { f.errCleared = true }

func (f *fakeSession) CancelOrderSafe(orderID int64) {
	f.cancelledIDs = append(f.cancelledIDs, orderID)
}

type fakeLoader struct {
	plan *plan.Plan
	err  error
}

func (l *fakeLoader) LatestPlaced(string) (*plan.Plan, error) { return l.plan, l.err }

func testPlan() plan.Plan {
	return plan.Plan{
		Symbol: "AAPL",
		Action: "BUY",
		Levels: plan.Levels{EntryLimit: 100, Stop: 98, TakeProfit: 104},
		Risk:   plan.Risk{Qty: 50, RiskPerShare: 2, MaxLoss: 100},
	}
}

func placedPlan(parentID int64) *plan.Plan {
	p := testPlan()
	p.Status.Placed = true
	p.Status.Broker.ParentOrderID = parentID
	return &p
}

func TestPlaceFromPlanSuccess(t *testing.T) {
	s := &fakeSession{status: broker.StatusSubmitted, statusOK: true}
	contract := broker.StockContract("AAPL", "USD", "")

	placed, err := PlaceFromPlan(task.New(nil), s, &fakeLoader{}, contract, testPlan(), false)
	if err != nil {
		t.Fatalf("PlaceFromPlan returned error: %v", err)
	}

	if len(s.placed) != 3 {
		t.Fatalf("placed %d legs, expected 3", len(s.placed))
	}
	if !s.errCleared {
		t.Fatal("expected error slot cleared before submission")
	}

	parent, take, stop := s.placed[0], s.placed[1], s.placed[2]
	if parent.Leg.Transmit || take.Leg.Transmit || !stop.Leg.Transmit {
		t.Fatal("only the stop leg should transmit")
	}
	if take.Leg.ParentID != parent.OrderID || stop.Leg.ParentID != parent.OrderID {
		t.Fatalf("exit legs parent=%d/%d, expected %d", take.Leg.ParentID, stop.Leg.ParentID, parent.OrderID)
	}

	if !placed.Status.Placed {
		t.Fatal("expected returned plan marked placed")
	}
	bs := placed.Status.Broker
	if bs.ParentOrderID != parent.OrderID || bs.TakeOrderID != take.OrderID || bs.StopOrderID != stop.OrderID {
		t.Fatalf("broker status IDs=%+v do not match submissions", bs)
	}
	if bs.LastSubmitAt == "" {
		t.Fatal("expected LastSubmitAt to be set")
	}
}

func TestPlaceFromPlanBlocksOnActiveOrders(t *testing.T) {
	s := &fakeSession{
		orders: []broker.OpenOrderRow{
			{OrderID: 7, Symbol: "AAPL", Status: broker.StatusSubmitted},
		},
	}

	_, err := PlaceFromPlan(task.New(nil), s, &fakeLoader{}, broker.StockContract("AAPL", "USD", ""), testPlan(), false)

	var dup *DuplicateBracketError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateBracketError, got %v", err)
	}
	if len(s.placed) != 0 {
		t.Fatalf("placed %d legs, expected none", len(s.placed))
	}
}

func TestPlaceFromPlanIgnoresFinalStatusOrders(t *testing.T) {
	s := &fakeSession{
		orders: []broker.OpenOrderRow{
			{OrderID: 7, Symbol: "AAPL", Status: broker.StatusFilled},
			{OrderID: 8, Symbol: "AAPL", Status: broker.StatusCancelled},
			{OrderID: 9, Symbol: "MSFT", Status: broker.StatusSubmitted},
		},
		status:   broker.StatusSubmitted,
		statusOK: true,
	}

	if _, err := PlaceFromPlan(task.New(nil), s, &fakeLoader{}, broker.StockContract("AAPL", "USD", ""), testPlan(), false); err != nil {
		t.Fatalf("final-status and other-symbol orders should not block: %v", err)
	}
}

func TestPlaceFromPlanFailsClosedOnQueryError(t *testing.T) {
	s := &fakeSession{ordersErr: errors.New("timeout waiting for broker response")}

	_, err := PlaceFromPlan(task.New(nil), s, &fakeLoader{}, broker.StockContract("AAPL", "USD", ""), testPlan(), false)

	var dup *DuplicateBracketError
	if !errors.As(err, &dup) {
		t.Fatalf("expected fail-closed DuplicateBracketError, got %v", err)
	}
	if len(s.placed) != 0 {
		t.Fatalf("placed %d legs, expected none", len(s.placed))
	}
}

func TestPlaceFromPlanFailsClosedOnGuardStepOne(t *testing.T) {
	// Prior placed plan exists and the verifying query fails: block.
	s := &fakeSession{ordersErr: errors.New("not connected")}
	loader := &fakeLoader{plan: placedPlan(41)}

	_, err := PlaceFromPlan(task.New(nil), s, loader, broker.StockContract("AAPL", "USD", ""), testPlan(), false)

	var dup *DuplicateBracketError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateBracketError, got %v", err)
	}
}

func TestPlaceFromPlanFailsClosedOnPlacedPlanLookupError(t *testing.T) {
	// The placed-plan lookup itself failing is an unverifiable guard: abort
	// before anything reaches the broker.
	s := &fakeSession{status: broker.StatusSubmitted, statusOK: true}
	lookupErr := errors.New("db locked")
	loader := &fakeLoader{err: lookupErr}

	_, err := PlaceFromPlan(task.New(nil), s, loader, broker.StockContract("AAPL", "USD", ""), testPlan(), false)

	if !errors.Is(err, lookupErr) {
		t.Fatalf("expected the lookup error to abort placement, got %v", err)
	}
	if len(s.placed) != 0 {
		t.Fatalf("placed %d legs despite failed guard lookup, expected none", len(s.placed))
	}
}

func TestPlaceFromPlanProceedsWhenPriorPlanClearedFromBook(t *testing.T) {
	// A prior placed plan whose orders are gone from the live book is stale
	// local state, not a duplicate.
	s := &fakeSession{status: broker.StatusSubmitted, statusOK: true}
	loader := &fakeLoader{plan: placedPlan(41)}

	if _, err := PlaceFromPlan(task.New(nil), s, loader, broker.StockContract("AAPL", "USD", ""), testPlan(), false); err != nil {
		t.Fatalf("expected placement to proceed, got %v", err)
	}
	if len(s.placed) != 3 {
		t.Fatalf("placed %d legs, expected 3", len(s.placed))
	}
}

func TestPlaceFromPlanPositionGuard(t *testing.T) {
	s := &fakeSession{
		positions: []broker.PositionRow{{Symbol: "AAPL", Quantity: 100}},
	}

	_, err := PlaceFromPlan(task.New(nil), s, &fakeLoader{}, broker.StockContract("AAPL", "USD", ""), testPlan(), true)

	var dup *DuplicateBracketError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateBracketError, got %v", err)
	}
	if len(s.placed) != 0 {
		t.Fatalf("placed %d legs, expected none", len(s.placed))
	}
}

func TestPlaceFromPlanPositionGuardOffByDefault(t *testing.T) {
	s := &fakeSession{
		positions: []broker.PositionRow{{Symbol: "AAPL", Quantity: 100}},
		status:    broker.StatusSubmitted,
		statusOK:  true,
	}

	if _, err := PlaceFromPlan(task.New(nil), s, &fakeLoader{}, broker.StockContract("AAPL", "USD", ""), testPlan(), false); err != nil {
		t.Fatalf("position should not block when guard is off: %v", err)
	}
}

func TestPlaceFromPlanTranslatesRejection(t *testing.T) {
	s := &fakeSession{
		statusOK: false,
		lastErr:  &broker.Error{ReqID: 3, Code: 201, Message: "Order rejected - reason: insufficient margin"},
	}

	_, err := PlaceFromPlan(task.New(nil), s, &fakeLoader{}, broker.StockContract("AAPL", "USD", ""), testPlan(), false)

	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rej.Code != 201 {
		t.Fatalf("code=%d, expected 201", rej.Code)
	}
}

func TestPlaceFromPlanTerminalStatusWithoutError(t *testing.T) {
	s := &fakeSession{status: broker.StatusInactive, statusOK: true}

	_, err := PlaceFromPlan(task.New(nil), s, &fakeLoader{}, broker.StockContract("AAPL", "USD", ""), testPlan(), false)
	if err == nil {
		t.Fatal("expected error for inactive order status")
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		t.Fatalf("expected generic error without a captured broker error, got RejectionError %v", rej)
	}
}

func TestPlaceFromPlanNoStatusIsNotFailure(t *testing.T) {
	// No status callback within the window and no captured error: treat the
	// submission as accepted.
	s := &fakeSession{statusOK: false}

	placed, err := PlaceFromPlan(task.New(nil), s, &fakeLoader{}, broker.StockContract("AAPL", "USD", ""), testPlan(), false)
	if err != nil {
		t.Fatalf("PlaceFromPlan returned error: %v", err)
	}
	if !placed.Status.Placed {
		t.Fatal("expected plan marked placed")
	}
}

func TestPlaceFromPlanCancelledTokenStopsBetweenLegs(t *testing.T) {
	tok := task.New(nil)
	s := &fakeSession{status: broker.StatusSubmitted, statusOK: true}
	tok.Cancel()

	_, err := PlaceFromPlan(tok, s, &fakeLoader{}, broker.StockContract("AAPL", "USD", ""), testPlan(), false)
	if !errors.Is(err, task.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if len(s.placed) > 1 {
		t.Fatalf("placed %d legs after cancellation, expected at most 1", len(s.placed))
	}
}

func TestPlaceFromPlanRejectsBadPlan(t *testing.T) {
	p := testPlan()
	p.Levels.Stop = 105 // above entry on a BUY
	s := &fakeSession{}

	_, err := PlaceFromPlan(task.New(nil), s, &fakeLoader{}, broker.StockContract("AAPL", "USD", ""), p, false)
	if !errors.Is(err, ErrInvalidBracket) {
		t.Fatalf("expected ErrInvalidBracket, got %v", err)
	}
	if len(s.placed) != 0 {
		t.Fatalf("placed %d legs, expected none", len(s.placed))
	}
}
