// Package quant holds the core data model shared by every subsystem: fixed
// scale decimal arithmetic, monotonic timestamps, trading pairs, candles,
// orders, order books and positions.
package quant

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimal is the fixed-precision signed rational used for every price,
// size, balance and PnL figure in the system. It is a thin alias over
// shopspring/decimal so call sites read like domain code ("quant.Decimal")
// while reusing a battle-tested arbitrary-precision implementation.
type Decimal = decimal.Decimal

// Zero is the additive identity, exported for readability at call sites.
var Zero = decimal.Zero

// RoundingMode names how RoundTo resolves a value that does not fit exactly
// into the target scale. Rounding is always explicit: there is no default.
type RoundingMode int

const (
	// RoundHalfUp rounds 0.5 away from zero.
	RoundHalfUp RoundingMode = iota
	// RoundHalfEven rounds 0.5 to the nearest even digit (banker's rounding).
	RoundHalfEven
	// RoundDown truncates toward zero.
	RoundDown
)

// NewDecimalFromString parses a decimal literal, returning a Validation-flavored
// error on malformed input.
func NewDecimalFromString(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// RoundTo rounds d to scale decimal places using the named mode. Scale may be
// negative (round to a power of ten above the decimal point).
func RoundTo(d Decimal, scale int32, mode RoundingMode) Decimal {
	switch mode {
	case RoundHalfEven:
		return d.RoundBank(scale)
	case RoundDown:
		return d.Truncate(scale)
	default:
		return d.Round(scale)
	}
}

// NewFromInt wraps decimal.NewFromInt so callers outside this package never
// import shopspring/decimal directly.
func NewFromInt(v int64) Decimal {
	return decimal.NewFromInt(v)
}

// NewFromFloat wraps decimal.NewFromFloat. Reserved for the observation
// boundaries named in spec.md §4.1 (signal strength, reporting, and the
// float64-only math (sqrt) needed by the risk/performance statistics).
func NewFromFloat(v float64) Decimal {
	return decimal.NewFromFloat(v)
}
