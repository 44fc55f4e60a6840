package strategy

import "github.com/DaviRain-Su/zigquant-core/internal/quant"

// TrailingStop maintains the peak-favorable price observed since a
// position's entry (spec.md §4.2) and decides whether the current price has
// retraced far enough from that peak, after first crossing the positive
// return offset, to trigger an exit.
type TrailingStop struct {
	descriptor TrailingStopDescriptor
}

// NewTrailingStop constructs a TrailingStop from a strategy's descriptor.
func NewTrailingStop(d TrailingStopDescriptor) *TrailingStop {
	return &TrailingStop{descriptor: d}
}

// UpdatePeak advances position.PeakFavorablePrice given the latest price,
// tracking the best price seen in the position's favorable direction. It is
// a no-op when trailing stop is disabled or the position is flat.
func (ts *TrailingStop) UpdatePeak(position *quant.Position, price quant.Decimal) {
	if !ts.descriptor.Enabled || position.IsFlat() {
		return
	}
	if position.PeakFavorablePrice == nil {
		p := price
		position.PeakFavorablePrice = &p
		return
	}
	if position.IsLong() && price.GreaterThan(*position.PeakFavorablePrice) {
		position.PeakFavorablePrice = &price
	} else if position.IsShort() && price.LessThan(*position.PeakFavorablePrice) {
		position.PeakFavorablePrice = &price
	}
}

// ShouldExit reports whether the trailing stop has triggered: the position
// must first have crossed PositiveOffset return from entry, then retraced
// TrailingDistance from its peak.
func (ts *TrailingStop) ShouldExit(position quant.Position, price quant.Decimal) bool {
	if !ts.descriptor.Enabled || position.IsFlat() || position.PeakFavorablePrice == nil || position.Entry.IsZero() {
		return false
	}

	peakReturn := position.PeakFavorablePrice.Sub(position.Entry).Div(position.Entry)
	if position.IsShort() {
		peakReturn = peakReturn.Neg()
	}
	if peakReturn.LessThan(ts.descriptor.PositiveOffset) {
		return false
	}

	if position.IsLong() {
		retrace := position.PeakFavorablePrice.Sub(price).Div(*position.PeakFavorablePrice)
		return retrace.GreaterThanOrEqual(ts.descriptor.TrailingDistance)
	}
	retrace := price.Sub(*position.PeakFavorablePrice).Div(*position.PeakFavorablePrice)
	return retrace.GreaterThanOrEqual(ts.descriptor.TrailingDistance)
}
