package bracket

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"time"

	"bracket-core/internal/task"
	"bracket-core/pkg/broker"
)

// Fallback end-of-day when the configured time string is invalid.
const (
	defaultEODHour   = 15
	defaultEODMinute = 45
)

var timeRe = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)

// ParseTimeString parses a 24-hour HH:MM string into hour and minute.
func ParseTimeString(s string) (hour, minute int, err error) {
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid time format %q: expected HH:MM (e.g. 15:45)", s)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	return hour, minute, nil
}

// JanitorReport describes what a janitor pass decided.
type JanitorReport struct {
	Action     string       `json:"action"` // "none" or "cancel"
	Reason     string       `json:"reason"`
	OpenOrders int          `json:"open_orders,omitempty"`
	Cancel     CancelReport `json:"cancel,omitempty"`
}

// withinEODWindow reports whether now is no more than threshold minutes before
// the given local end-of-day (or already past it).
func withinEODWindow(now time.Time, hour, minute, thresholdMinutes int) bool {
	eod := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	return eod.Sub(now).Minutes() <= float64(thresholdMinutes)
}

// JanitorCheckAndCancel cancels all open orders for a symbol when the local
// clock is within thresholdMinutes of eodLocal (HH:MM, 24-hour). An invalid
// time string falls back to 15:45 and logs the error rather than raising.
func JanitorCheckAndCancel(tok *task.Token, s Session, symbol, eodLocal string, thresholdMinutes int) (JanitorReport, error) {
	now := time.Now()

	hour, minute, err := ParseTimeString(eodLocal)
	if err != nil {
		log.Printf("janitor: %v; using default %02d:%02d", err, defaultEODHour, defaultEODMinute)
		hour, minute = defaultEODHour, defaultEODMinute
	}

	orders, err := s.FetchOpenOrders(timeoutStandard)
	if err != nil {
		return JanitorReport{}, fmt.Errorf("janitor: refresh open orders: %w", err)
	}
	open := 0
	for _, o := range orders {
		if o.Symbol == symbol && !broker.IsFinalStatus(o.Status) {
			open++
		}
	}
	if open == 0 {
		return JanitorReport{Action: "none", Reason: "No open orders for symbol."}, nil
	}

	if withinEODWindow(now, hour, minute, thresholdMinutes) {
		report, err := CancelOpenBrackets(tok, s, symbol, CancelMaxRetries, CancelRetryDelay)
		if err != nil {
			return JanitorReport{}, err
		}
		return JanitorReport{
			Action: "cancel",
			Reason: fmt.Sprintf("Within %d min of EOD (%02d:%02d).", thresholdMinutes, hour, minute),
			Cancel: report,
		}, nil
	}
	return JanitorReport{Action: "none", Reason: "Not near EOD; no auto-cancel.", OpenOrders: open}, nil
}
