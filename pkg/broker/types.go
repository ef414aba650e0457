// Package broker defines the wire-level contract between the gateway session
// and a brokerage client library: the raw asynchronous primitives, the callback
// handler they report into, and the shared order/position vocabulary.
package broker

// Side denotes order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the exit side for an entry side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderKind denotes the broker order types used by brackets.
type OrderKind string

const (
	OrderLimit OrderKind = "LMT"
	OrderStop  OrderKind = "STP"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
)

// Broker-reported order status values.
const (
	StatusPendingSubmit = "PendingSubmit"
	StatusPendingCancel = "PendingCancel"
	StatusPreSubmitted  = "PreSubmitted"
	StatusSubmitted     = "Submitted"
	StatusCancelled     = "Cancelled"
	StatusFilled        = "Filled"
	StatusInactive      = "Inactive"
)

// IsFinalStatus reports whether a status is terminal (no longer actionable).
func IsFinalStatus(status string) bool {
	switch status {
	case StatusCancelled, StatusFilled, StatusInactive:
		return true
	}
	return false
}

// Contract identifies a tradeable instrument.
type Contract struct {
	Symbol          string
	SecType         string
	Currency        string
	Exchange        string
	PrimaryExchange string
}

// StockContract builds a smart-routed stock contract.
func StockContract(symbol, currency, primaryExchange string) Contract {
	if currency == "" {
		currency = "USD"
	}
	return Contract{
		Symbol:          symbol,
		SecType:         "STK",
		Currency:        currency,
		Exchange:        "SMART",
		PrimaryExchange: primaryExchange,
	}
}

// OrderLeg is one order of a bracket. The broker order ID is assigned once by
// the gateway session and never reused.
type OrderLeg struct {
	OrderID    int64
	Action     Side
	Kind       OrderKind
	Quantity   int64
	LimitPrice float64 // LMT legs
	AuxPrice   float64 // STP trigger
	TIF        TimeInForce
	ParentID   int64
	Transmit   bool
}

// OpenOrderRow is one row of the broker's open-orders snapshot.
type OpenOrderRow struct {
	OrderID    int64
	Symbol     string
	Action     Side
	Kind       string
	Quantity   float64
	LimitPrice float64
	AuxPrice   float64
	Status     string
	ParentID   int64
}

// PositionRow is one row of the broker's positions snapshot.
type PositionRow struct {
	Account  string
	Symbol   string
	Quantity float64
	AvgCost  float64
	Currency string
}

// Error is the broker's error callback payload. The request ID equals the
// order ID for order-related errors, but not always; correlation on it is
// best-effort.
type Error struct {
	ReqID          int64
	Code           int
	Message        string
	AdvancedReject string
}
