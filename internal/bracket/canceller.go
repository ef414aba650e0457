package bracket

import (
	"fmt"
	"time"

	"bracket-core/internal/task"
	"bracket-core/pkg/broker"
)

// Cancel retry defaults, overridable per call site.
const (
	CancelMaxRetries = 4
	CancelRetryDelay = time.Second
)

// CancelReport counts what a best-effort cancel pass saw and sent.
type CancelReport struct {
	Attempted      int `json:"attempted"`
	CancelRequests int `json:"cancel_requests"`
}

// CancelOpenBrackets cancels all open (non-final) orders for a symbol with
// refresh/retry. It is explicitly best-effort: the open-orders list may be
// stale and cancelling already-cancelled IDs can error, so cancel failures are
// logged and counted, never raised. It stops early once a refresh shows no
// matching orders.
func CancelOpenBrackets(tok *task.Token, s Session, symbol string, retries int, waitBetween time.Duration) (CancelReport, error) {
	var report CancelReport
	if retries <= 0 {
		retries = CancelMaxRetries
	}
	for i := 0; i < retries; i++ {
		if err := tok.Err(); err != nil {
			return report, err
		}
		tok.Progress(fmt.Sprintf("Cancel pass %d/%d: refreshing open orders...", i+1, retries))

		orders, err := s.FetchOpenOrders(timeoutStandard)
		if err != nil {
			return report, fmt.Errorf("canceller: refresh open orders: %w", err)
		}
		var target []broker.OpenOrderRow
		for _, o := range orders {
			if o.Symbol == symbol && !broker.IsFinalStatus(o.Status) {
				target = append(target, o)
			}
		}
		if len(target) == 0 {
			return report, nil
		}

		tok.Progress(fmt.Sprintf("Found %d active orders for %s. Sending cancel requests...", len(target), symbol))
		for _, o := range target {
			if err := tok.Err(); err != nil {
				return report, err
			}
			report.Attempted++
			s.CancelOrderSafe(o.OrderID)
			report.CancelRequests++
		}
		// No wait after the final pass; the next refresh will never happen.
		if i+1 == retries {
			break
		}
		if err := sleepInterruptible(tok, waitBetween); err != nil {
			return report, err
		}
	}
	return report, nil
}

// sleepInterruptible waits d in short slices so a cancel lands between
// slices instead of after the full delay.
func sleepInterruptible(tok *task.Token, d time.Duration) error {
	const slice = 50 * time.Millisecond
	deadline := time.Now().Add(d)
	for {
		if err := tok.Err(); err != nil {
			return err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining > slice {
			remaining = slice
		}
		time.Sleep(remaining)
	}
}
