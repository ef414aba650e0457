package events

// Event enumerates high-level topics inside the bracket core.
type Event string

const (
	EventConnected          Event = "connection.up"
	EventConnectionLost     Event = "connection.lost"
	EventReconnectStarted   Event = "reconnect.started"
	EventReconnectFailed    Event = "reconnect.failed"
	EventReconnectSucceeded Event = "reconnect.succeeded"
	EventReconnectExhausted Event = "reconnect.exhausted"
	EventOrderSubmitted     Event = "order.submitted"
	EventOrderStatus        Event = "order.status"
	EventOrderRejected      Event = "order.rejected"
	EventBracketPlaced      Event = "bracket.placed"
	EventBracketCancelled   Event = "bracket.cancelled"
	EventPriceAlert         Event = "price.alert"
	EventMonitorTick        Event = "monitor.tick"
)

// OrderStatusUpdate is the payload for EventOrderStatus.
type OrderStatusUpdate struct {
	OrderID int64   `json:"order_id"`
	Status  string  `json:"status"`
	Filled  float64 `json:"filled"`
}

// BracketPlaced is the payload for EventBracketPlaced.
type BracketPlaced struct {
	Symbol        string `json:"symbol"`
	ParentOrderID int64  `json:"parent_order_id"`
	TakeOrderID   int64  `json:"take_order_id"`
	StopOrderID   int64  `json:"stop_order_id"`
	Quantity      int64  `json:"quantity"`
}

// ReconnectUpdate is the payload for the reconnect lifecycle topics.
type ReconnectUpdate struct {
	Attempt int    `json:"attempt,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
