// Package plan defines the trading plan document and its sqlite-backed store.
// A plan is saved as a draft when proposed and as placed once its bracket is
// live; the placer reads levels and quantity and writes back order IDs.
package plan

import "time"

// Plan kinds.
const (
	KindDraft  = "draft"
	KindPlaced = "placed"
)

// Levels are the computed price levels of a plan.
type Levels struct {
	EntryLimit float64 `json:"entry_limit"`
	Stop       float64 `json:"stop"`
	TakeProfit float64 `json:"take_profit"`
	LastClose  float64 `json:"last_close,omitempty"`
}

// Risk carries the sizing figures behind the quantity.
type Risk struct {
	Qty          int64   `json:"qty"`
	RiskPerShare float64 `json:"risk_per_share,omitempty"`
	MaxLoss      float64 `json:"max_loss,omitempty"`
}

// BrokerStatus records the broker order IDs of a placed bracket.
type BrokerStatus struct {
	ParentOrderID int64  `json:"parent_order_id"`
	TakeOrderID   int64  `json:"take_order_id"`
	StopOrderID   int64  `json:"stop_order_id"`
	LastSubmitAt  string `json:"last_submit_at,omitempty"`
	LastError     string `json:"last_error,omitempty"`
}

// Status is the placement state block of a plan.
type Status struct {
	Placed bool         `json:"placed"`
	Broker BrokerStatus `json:"broker"`
}

// Plan is one draft or placed trading plan.
type Plan struct {
	ID        string `json:"id,omitempty"`
	Symbol    string `json:"symbol"`
	Action    string `json:"action,omitempty"` // BUY or SELL; empty means BUY (legacy plans)
	Direction string `json:"direction,omitempty"`
	Levels    Levels `json:"levels"`
	Risk      Risk   `json:"risk"`
	Status    Status `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
}

// NowISO is the timestamp format used in plan status blocks.
func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
