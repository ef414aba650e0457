// Package bracket builds, validates, places, and cancels three-leg bracket
// orders (entry + take-profit + stop-loss) through the gateway session.
package bracket

import (
	"errors"
	"fmt"
	"time"

	"bracket-core/pkg/broker"
)

var (
	// ErrInvalidBracket means the caller-supplied price levels are not
	// logically consistent. Raised before any broker interaction.
	ErrInvalidBracket = errors.New("invalid bracket prices")
	// ErrInvalidQuantity means a non-positive quantity was supplied.
	ErrInvalidQuantity = errors.New("invalid quantity")
)

// Bounded-wait timeouts used against the gateway.
const (
	timeoutStandard    = 6 * time.Second
	timeoutOrderStatus = 3 * time.Second
)

// ValidateBracketPrices checks that all three prices are positive and ordered
// correctly for the side: stop < entry < take for BUY, take < entry < stop for
// SELL.
func ValidateBracketPrices(action broker.Side, entry, stop, take float64) error {
	if entry <= 0 || stop <= 0 || take <= 0 {
		return fmt.Errorf("%w: all prices must be positive", ErrInvalidBracket)
	}
	switch action {
	case broker.SideBuy:
		if !(stop < entry && entry < take) {
			return fmt.Errorf("%w: for BUY orders stop (%.2f) < entry (%.2f) < take (%.2f) required",
				ErrInvalidBracket, stop, entry, take)
		}
	case broker.SideSell:
		if !(take < entry && entry < stop) {
			return fmt.Errorf("%w: for SELL orders take (%.2f) < entry (%.2f) < stop (%.2f) required",
				ErrInvalidBracket, take, entry, stop)
		}
	default:
		return fmt.Errorf("%w: action must be BUY or SELL, got %q", ErrInvalidBracket, action)
	}
	return nil
}

// Legs is the three coordinated orders of one bracket, in submission order.
type Legs struct {
	Parent broker.OrderLeg
	Take   broker.OrderLeg
	Stop   broker.OrderLeg
}

// BuildBracketLegs returns three unassigned legs: a DAY limit parent, a GTC
// limit take-profit, and a GTC stop-loss, the exits on the opposite side.
// Only the stop-loss transmits; the broker holds the parent and take-profit
// until it does, so the basket activates atomically. Order IDs and parent
// linkage are wired at placement time.
func BuildBracketLegs(action broker.Side, quantity int64, entry, take, stop float64) (Legs, error) {
	if quantity <= 0 {
		return Legs{}, fmt.Errorf("%w: must be positive, got %d", ErrInvalidQuantity, quantity)
	}
	if err := ValidateBracketPrices(action, entry, stop, take); err != nil {
		return Legs{}, err
	}
	exit := action.Opposite()
	return Legs{
		Parent: broker.OrderLeg{
			Action:     action,
			Kind:       broker.OrderLimit,
			Quantity:   quantity,
			LimitPrice: entry,
			TIF:        broker.TIFDay,
			Transmit:   false,
		},
		Take: broker.OrderLeg{
			Action:     exit,
			Kind:       broker.OrderLimit,
			Quantity:   quantity,
			LimitPrice: take,
			TIF:        broker.TIFGTC,
			Transmit:   false,
		},
		Stop: broker.OrderLeg{
			Action:   exit,
			Kind:     broker.OrderStop,
			Quantity: quantity,
			AuxPrice: stop,
			TIF:      broker.TIFGTC,
			Transmit: true,
		},
	}, nil
}
