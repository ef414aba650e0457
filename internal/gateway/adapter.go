package gateway

import (
	"log"
	"strconv"

	"bracket-core/internal/events"
	"bracket-core/pkg/broker"
)

// adapter implements broker.Handler. It runs on the wire's receive goroutine
// and only forwards events into the session's lock-guarded tables and the
// correlation registry; it holds no state of its own.
type adapter struct {
	s *Session
}

func (a *adapter) NextValidID(orderID int64) {
	s := a.s
	s.idMu.Lock()
	s.nextOrderID = orderID
	s.idAssigned = true
	s.idMu.Unlock()
	s.reg.Resolve(Key{Kind: KindConnect})
	log.Printf("gateway: next valid order id %d", orderID)
}

func (a *adapter) Error(reqID int64, code int, message, advancedReject string) {
	s := a.s
	if broker.IsWarningCode(code) {
		log.Printf("gateway: broker notice reqId=%d code=%d %s", reqID, code, message)
		return
	}
	s.errMu.Lock()
	s.lastError = &broker.Error{ReqID: reqID, Code: code, Message: message, AdvancedReject: advancedReject}
	s.errMu.Unlock()
	log.Printf("gateway: broker error reqId=%d code=%d %s", reqID, code, message)

	// The error callback is keyed by a generic request ID that for
	// order-related errors happens to equal the order ID. Waking the status
	// waiter on it is a best-effort correlation, not a reliable signal.
	s.reg.Resolve(Key{Kind: KindOrderStatus, ID: reqID})

	if broker.IsConnectivityCode(code) && code != broker.CodeConnectivityRestored {
		s.publish(events.EventConnectionLost, strconv.Itoa(code)+": "+message)
	}
}

func (a *adapter) OrderStatus(orderID int64, status string, filled, remaining, avgFillPrice float64) {
	s := a.s
	s.statusMu.Lock()
	s.orderStatus[orderID] = status
	s.statusMu.Unlock()
	s.reg.Resolve(Key{Kind: KindOrderStatus, ID: orderID})
	s.publish(events.EventOrderStatus, events.OrderStatusUpdate{OrderID: orderID, Status: status, Filled: filled})
}

func (a *adapter) OpenOrder(row broker.OpenOrderRow) {
	s := a.s
	s.ordersMu.Lock()
	s.openOrders = append(s.openOrders, row)
	s.ordersMu.Unlock()
}

func (a *adapter) OpenOrderEnd() {
	a.s.reg.Resolve(Key{Kind: KindOpenOrders})
}

func (a *adapter) Position(row broker.PositionRow) {
	s := a.s
	s.posMu.Lock()
	s.positions = append(s.positions, row)
	s.posMu.Unlock()
}

func (a *adapter) PositionEnd() {
	a.s.reg.Resolve(Key{Kind: KindPositions})
}

func (a *adapter) AccountSummary(reqID int64, account, tag, value, currency string) {
	if reqID != acctSummaryReqID || tag != "NetLiquidation" {
		return
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("gateway: unparseable NetLiquidation %q: %v", value, err)
		return
	}
	s := a.s
	s.acctMu.Lock()
	s.netLiq = v
	s.netLiqValid = true
	s.acctMu.Unlock()
	log.Printf("gateway: NetLiquidation %s %s", value, currency)
}

func (a *adapter) AccountSummaryEnd(reqID int64) {
	if reqID == acctSummaryReqID {
		a.s.reg.Resolve(Key{Kind: KindAccountSummary})
	}
}

func (a *adapter) TickPrice(reqID int64, tickType int, price float64) {
	if price <= 0 {
		return
	}
	s := a.s
	s.mktMu.Lock()
	if _, ok := s.mktPrices[reqID]; !ok {
		s.mktPrices[reqID] = price
	}
	s.mktMu.Unlock()
	s.reg.Resolve(Key{Kind: KindMktSnapshot, ID: reqID})
}

func (a *adapter) TickSnapshotEnd(reqID int64) {
	a.s.reg.Resolve(Key{Kind: KindMktSnapshot, ID: reqID})
}

func (a *adapter) ConnectionClosed(err error) {
	s := a.s
	s.connMu.Lock()
	closed := s.closedCh
	s.closedCh = nil
	s.connMu.Unlock()
	if closed != nil {
		close(closed)
	}
	// Release every bounded wait from this connection epoch.
	s.reg.Clear()
	if err != nil {
		log.Printf("gateway: connection closed: %v", err)
	} else {
		log.Printf("gateway: connection closed")
	}
	s.publish(events.EventConnectionLost, "connection closed")
}
