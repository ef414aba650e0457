package broker

// Wire is the raw asynchronous transport supplied by a brokerage client
// library. All request methods return immediately; results arrive later on the
// Handler passed to Dial, invoked from a single receive goroutine owned by the
// wire.
type Wire interface {
	// Dial opens the transport and starts the receive loop. The handler
	// receives every callback until Close. The first NextValidID callback
	// signals the connection is usable.
	Dial(host string, port int, clientID int, h Handler) error
	// Close tears down the transport. The wire delivers a final
	// ConnectionClosed callback once the receive loop has exited.
	Close() error
	IsConnected() bool

	PlaceOrder(orderID int64, contract Contract, leg OrderLeg) error
	CancelOrder(orderID int64) error
	ReqOpenOrders() error
	ReqPositions() error
	ReqAccountSummary(reqID int64, group, tags string) error
	ReqMktDataSnapshot(reqID int64, contract Contract) error
	CancelMktData(reqID int64) error
}

// Handler receives broker callbacks. Implementations must be safe to call from
// the wire's receive goroutine while other goroutines use the Wire.
type Handler interface {
	NextValidID(orderID int64)
	Error(reqID int64, code int, message, advancedReject string)
	OrderStatus(orderID int64, status string, filled, remaining, avgFillPrice float64)
	OpenOrder(row OpenOrderRow)
	OpenOrderEnd()
	Position(row PositionRow)
	PositionEnd()
	AccountSummary(reqID int64, account, tag, value, currency string)
	AccountSummaryEnd(reqID int64)
	TickPrice(reqID int64, tickType int, price float64)
	TickSnapshotEnd(reqID int64)
	ConnectionClosed(err error)
}
