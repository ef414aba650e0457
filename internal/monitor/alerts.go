package monitor

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Alert directions.
const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

// ErrAlertNotFound is returned when removing an unknown alert id.
var ErrAlertNotFound = errors.New("alert not found")

// Alert is a one-shot price rule: it fires once when the last trade crosses
// the threshold in the configured direction, then disarms.
type Alert struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction"`
	Price     float64 `json:"price"`
	Note      string  `json:"note,omitempty"`
	Fired     bool    `json:"fired"`
}

// AlertSink is a pluggable delivery target for fired alerts.
type AlertSink interface {
	Send(message string) error
}

// AlertBook holds armed alerts. In-memory only; alerts are cheap to re-arm
// after a restart.
type AlertBook struct {
	mu     sync.Mutex
	alerts map[string]*Alert
}

// NewAlertBook returns an empty book.
func NewAlertBook() *AlertBook {
	return &AlertBook{alerts: make(map[string]*Alert)}
}

// Add arms a new alert and returns it with a generated id.
func (b *AlertBook) Add(symbol, direction string, price float64, note string) (*Alert, error) {
	if direction != DirectionAbove && direction != DirectionBelow {
		return nil, errors.New("direction must be above or below")
	}
	if price <= 0 {
		return nil, errors.New("price must be positive")
	}
	a := &Alert{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Direction: direction,
		Price:     price,
		Note:      note,
	}
	b.mu.Lock()
	b.alerts[a.ID] = a
	b.mu.Unlock()
	out := *a
	return &out, nil
}

// Remove deletes an alert by id.
func (b *AlertBook) Remove(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.alerts[id]; !ok {
		return ErrAlertNotFound
	}
	delete(b.alerts, id)
	return nil
}

// List returns all alerts, armed and fired.
func (b *AlertBook) List() []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Alert, 0, len(b.alerts))
	for _, a := range b.alerts {
		out = append(out, *a)
	}
	return out
}

// Evaluate checks armed alerts for symbol against the last price and returns
// the ones that fired. Each alert fires at most once.
func (b *AlertBook) Evaluate(symbol string, last float64) []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()

	var fired []Alert
	for _, a := range b.alerts {
		if a.Fired || a.Symbol != symbol {
			continue
		}
		hit := (a.Direction == DirectionAbove && last >= a.Price) ||
			(a.Direction == DirectionBelow && last <= a.Price)
		if hit {
			a.Fired = true
			fired = append(fired, *a)
		}
	}
	return fired
}
