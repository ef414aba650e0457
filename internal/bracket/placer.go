package bracket

import (
	"fmt"
	"strings"
	"time"

	"bracket-core/internal/plan"
	"bracket-core/internal/task"
	"bracket-core/pkg/broker"
)

// Session is the slice of the gateway surface the placer and canceller use.
type Session interface {
	FetchOpenOrders(timeout time.Duration) ([]broker.OpenOrderRow, error)
	FetchPositions(timeout time.Duration) ([]broker.PositionRow, error)
	NextOrderID() (int64, error)
	PlaceOrder(orderID int64, contract broker.Contract, leg broker.OrderLeg) error
	WaitForOrderStatus(orderID int64, timeout time.Duration) (string, bool)
	LastError() *broker.Error
	ClearLastError()
	CancelOrderSafe(orderID int64)
}

// PlacedPlanLoader looks up the most recent placed plan for a symbol; nil when
// none exists. Backed by the plan store.
type PlacedPlanLoader interface {
	LatestPlaced(symbol string) (*plan.Plan, error)
}

// DuplicateBracketError is the safety-invariant violation: an active order or
// position already exists for the symbol. It is never bypassed, even when the
// verifying query itself failed (fail closed). Callers must treat it as a
// blocking condition requiring manual intervention.
type DuplicateBracketError struct {
	Symbol string
	Reason string
}

func (e *DuplicateBracketError) Error() string {
	return fmt.Sprintf("duplicate bracket for %s: %s", e.Symbol, e.Reason)
}

// RejectionError carries a broker rejection translated into operator-facing
// text.
type RejectionError struct {
	Code     int
	Info     broker.CodeInfo
	Advanced string
	Status   string
}

const advancedRejectLimit = 300

func (e *RejectionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "broker %s (code %d): %s", e.Info.Title, e.Code, e.Info.Message)
	if e.Info.Hint != "" {
		fmt.Fprintf(&b, "\n\nHint: %s", e.Info.Hint)
	}
	if e.Code == broker.CodePermissionDenied || e.Code == broker.CodeInvalidOrder || e.Code == broker.CodeRoutingError {
		b.WriteString("\n\nTroubleshooting:" +
			"\n- Confirm the gateway is in PAPER mode and API socket clients are enabled." +
			"\n- Confirm the clientId is not used by another app." +
			"\n- Refresh open orders, then retry.")
	}
	lower := strings.ToLower(e.Info.Message)
	if strings.Contains(lower, "canada") || strings.Contains(lower, "canadian") ||
		strings.Contains(lower, "toronto") || strings.Contains(lower, "tse") ||
		strings.Contains(lower, "cad") {
		b.WriteString("\n\nCanadian listing note:" +
			"\nSome account settings/permissions can disallow API orders for certain Canadian listings." +
			"\nTry a US symbol to validate API connectivity, then review trading permissions for CAD products.")
	}
	if e.Advanced != "" {
		adv := e.Advanced
		if len(adv) > advancedRejectLimit {
			adv = adv[:advancedRejectLimit]
		}
		fmt.Fprintf(&b, "\n\nAdvanced reject details (truncated): %s", adv)
	}
	return b.String()
}

func rejectionFromError(err *broker.Error, status string) *RejectionError {
	return &RejectionError{
		Code:     err.Code,
		Info:     broker.FriendlyMessage(err.Code, err.Message),
		Advanced: err.AdvancedReject,
		Status:   status,
	}
}

func hasActiveOrders(orders []broker.OpenOrderRow, symbol string) bool {
	for _, o := range orders {
		if o.Symbol == symbol && !broker.IsFinalStatus(o.Status) {
			return true
		}
	}
	return false
}

func hasOpenPosition(positions []broker.PositionRow, symbol string) bool {
	for _, p := range positions {
		if p.Symbol == symbol && (p.Quantity > 0 || p.Quantity < 0) {
			return true
		}
	}
	return false
}

// planAction resolves a plan's entry side, defaulting to BUY for legacy plans
// without an explicit action.
func planAction(p plan.Plan) broker.Side {
	if strings.EqualFold(p.Action, string(broker.SideSell)) {
		return broker.SideSell
	}
	return broker.SideBuy
}

// PlaceFromPlan turns a plan's levels into a live three-leg bracket.
//
// Guard sequence: a locally-informed pre-check against the last placed plan
// (verified against the live order book), then an authoritative re-check of
// open orders immediately before submission, closing the race where another
// process placed an order since the plan was created. Both checks fail closed:
// a query failure blocks placement rather than risking a double submission.
//
// Confirmation is a best-effort heuristic: only the stop leg's status is
// awaited, and a captured error callback is correlated to the submission
// window by the cleared error slot. A silent per-leg rejection of the parent
// or take-profit would not surface here.
func PlaceFromPlan(tok *task.Token, s Session, loader PlacedPlanLoader, contract broker.Contract, p plan.Plan, blockOnPosition bool) (plan.Plan, error) {
	symbol := p.Symbol

	// Guard step one: prior placed plan with a recorded parent order ID.
	// Fails closed like step two: an unverifiable guard blocks placement.
	if loader != nil {
		recent, err := loader.LatestPlaced(symbol)
		if err != nil {
			return p, fmt.Errorf("placer: latest placed plan lookup for %s: %w", symbol, err)
		}
		if recent != nil && recent.Status.Placed && recent.Status.Broker.ParentOrderID != 0 {
			orders, qerr := s.FetchOpenOrders(timeoutStandard)
			if qerr != nil {
				// Can't verify; still block to be safe.
				return p, &DuplicateBracketError{Symbol: symbol,
					Reason: "recent placed plan detected and open orders could not be verified; refresh/cancel existing orders before placing again"}
			}
			if hasActiveOrders(orders, symbol) {
				return p, &DuplicateBracketError{Symbol: symbol,
					Reason: "active orders already exist; cancel first (no duplicates rule)"}
			}
		}
	}

	// Guard step two: authoritative re-check against the live order book.
	tok.Progress("Checking for existing orders/positions (no-duplicates rule)...")
	orders, err := s.FetchOpenOrders(timeoutStandard)
	if err != nil {
		return p, &DuplicateBracketError{Symbol: symbol,
			Reason: fmt.Sprintf("open orders could not be verified (%v); refusing to place", err)}
	}
	if hasActiveOrders(orders, symbol) {
		return p, &DuplicateBracketError{Symbol: symbol,
			Reason: "active orders already exist; cancel first (no duplicates rule)"}
	}

	if blockOnPosition {
		positions, err := s.FetchPositions(timeoutStandard)
		if err != nil {
			return p, &DuplicateBracketError{Symbol: symbol,
				Reason: fmt.Sprintf("positions could not be verified (%v); refusing to place", err)}
		}
		if hasOpenPosition(positions, symbol) {
			return p, &DuplicateBracketError{Symbol: symbol,
				Reason: "position already exists; close/flatten before placing a new bracket (no duplicates rule)"}
		}
	}

	action := planAction(p)
	legs, err := BuildBracketLegs(action, p.Risk.Qty, p.Levels.EntryLimit, p.Levels.TakeProfit, p.Levels.Stop)
	if err != nil {
		return p, err
	}

	parentID, err := s.NextOrderID()
	if err != nil {
		return p, err
	}
	takeID, err := s.NextOrderID()
	if err != nil {
		return p, err
	}
	stopID, err := s.NextOrderID()
	if err != nil {
		return p, err
	}
	legs.Parent.OrderID = parentID
	legs.Take.OrderID = takeID
	legs.Take.ParentID = parentID
	legs.Stop.OrderID = stopID
	legs.Stop.ParentID = parentID

	// Make any error read after submission attributable to this submission.
	s.ClearLastError()

	tok.Progress("Submitting bracket orders to broker...")
	if err := s.PlaceOrder(parentID, contract, legs.Parent); err != nil {
		return p, err
	}
	if err := tok.Err(); err != nil {
		return p, err
	}
	if err := s.PlaceOrder(takeID, contract, legs.Take); err != nil {
		return p, err
	}
	if err := tok.Err(); err != nil {
		return p, err
	}
	if err := s.PlaceOrder(stopID, contract, legs.Stop); err != nil {
		return p, err
	}

	// Best-effort confirm on the transmitting leg.
	st, ok := s.WaitForOrderStatus(stopID, timeoutOrderStatus)
	if !ok {
		if berr := s.LastError(); berr != nil {
			return p, rejectionFromError(berr, "")
		}
		// No status yet is not failure; the broker may simply be slow to
		// report working status.
	} else if isTerminalFailure(st) {
		if berr := s.LastError(); berr != nil {
			return p, rejectionFromError(berr, st)
		}
		return p, fmt.Errorf("order status indicates failure: %s", st)
	}

	placed := p
	placed.Status.Placed = true
	placed.Status.Broker = plan.BrokerStatus{
		ParentOrderID: parentID,
		TakeOrderID:   takeID,
		StopOrderID:   stopID,
		LastSubmitAt:  plan.NowISO(),
		LastError:     "",
	}
	return placed, nil
}

func isTerminalFailure(status string) bool {
	switch strings.ToLower(status) {
	case "rejected", "inactive":
		return true
	}
	return false
}
