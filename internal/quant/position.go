package quant

// Position is a signed holding in one trading pair: positive is long,
// negative is short.
type Position struct {
	Pair     TradingPair
	Size     Decimal // signed, base units
	Entry    Decimal
	Leverage Decimal

	LiquidationPrice *Decimal
	MarginUsed       Decimal
	UnrealizedPnL    Decimal
	CumulativeFunding Decimal

	// PeakFavorablePrice tracks the best price seen since entry, in the
	// position's favorable direction, for trailing-stop evaluation
	// (spec.md §4.2).
	PeakFavorablePrice *Decimal
	OpenedAt           Timestamp
}

// IsFlat reports whether the position carries no size.
func (p Position) IsFlat() bool {
	return p.Size.IsZero()
}

// IsLong reports whether the position is net long.
func (p Position) IsLong() bool {
	return p.Size.IsPositive()
}

// IsShort reports whether the position is net short.
func (p Position) IsShort() bool {
	return p.Size.IsNegative()
}

// MarkToMarket returns the position's unrealized PnL against markPrice.
func (p Position) MarkToMarket(markPrice Decimal) Decimal {
	if p.IsFlat() {
		return Zero
	}
	return p.Size.Mul(markPrice.Sub(p.Entry))
}

// SignalType names the direction and intent of a strategy-emitted signal.
type SignalType string

const (
	SignalEntryLong  SignalType = "entry_long"
	SignalEntryShort SignalType = "entry_short"
	SignalExitLong   SignalType = "exit_long"
	SignalExitShort  SignalType = "exit_short"
)

// Signal is a strategy-emitted intent: direction, reference price,
// strength, timestamp and supporting indicator metadata.
type Signal struct {
	Type      SignalType
	Side      OrderSide
	Price     Decimal
	Strength  float64
	Timestamp Timestamp
	Metadata  map[string]Decimal
}
