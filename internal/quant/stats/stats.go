// Package stats computes the performance and risk statistics shared by the
// backtest engine and the risk core (spec.md §4.5/§4.6): Sharpe, Sortino,
// Calmar, drawdown and historical VaR, all in Decimal arithmetic so a
// backtest result and a live risk report never drift from rounding
// differences between two numeric stacks.
package stats

import (
	"math"
	"sort"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// Returns computes the per-step simple return series from an equity curve:
// r[i] = (equity[i] - equity[i-1]) / equity[i-1]. The result has one fewer
// element than equity. Returns nil if len(equity) < 2.
func Returns(equity []quant.Decimal) []quant.Decimal {
	if len(equity) < 2 {
		return nil
	}
	out := make([]quant.Decimal, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev.IsZero() {
			out[i-1] = quant.Zero
			continue
		}
		out[i-1] = equity[i].Sub(prev).Div(prev)
	}
	return out
}

func mean(xs []quant.Decimal) quant.Decimal {
	if len(xs) == 0 {
		return quant.Zero
	}
	sum := quant.Zero
	for _, x := range xs {
		sum = sum.Add(x)
	}
	return sum.Div(quant.NewFromInt(int64(len(xs))))
}

// StdDev returns the sample standard deviation of xs (divisor n-1), or Zero
// when fewer than two points are given.
func StdDev(xs []quant.Decimal) quant.Decimal {
	if len(xs) < 2 {
		return quant.Zero
	}
	m := mean(xs)
	sumSq := quant.Zero
	for _, x := range xs {
		d := x.Sub(m)
		sumSq = sumSq.Add(d.Mul(d))
	}
	variance := sumSq.Div(quant.NewFromInt(int64(len(xs) - 1)))
	f, _ := variance.Float64()
	if f < 0 {
		f = 0
	}
	return quant.NewFromFloat(math.Sqrt(f))
}

// downsideDeviation is StdDev restricted to the negative subset of xs,
// against a zero target return (the conventional Sortino denominator).
func downsideDeviation(xs []quant.Decimal) quant.Decimal {
	var negatives []quant.Decimal
	for _, x := range xs {
		if x.IsNegative() {
			negatives = append(negatives, x)
		}
	}
	if len(negatives) == 0 {
		return quant.Zero
	}
	sumSq := quant.Zero
	for _, x := range negatives {
		sumSq = sumSq.Add(x.Mul(x))
	}
	variance := sumSq.Div(quant.NewFromInt(int64(len(xs))))
	f, _ := variance.Float64()
	if f < 0 {
		f = 0
	}
	return quant.NewFromFloat(math.Sqrt(f))
}

// Sharpe returns mean(r)/std(r)*sqrt(annualization). Zero when std(r) is
// zero (constant-series edge case, spec.md scenario #3), never NaN/Inf.
func Sharpe(r []quant.Decimal, annualization float64) quant.Decimal {
	sd := StdDev(r)
	if sd.IsZero() {
		return quant.Zero
	}
	m := mean(r)
	return m.Div(sd).Mul(quant.NewFromFloat(math.Sqrt(annualization)))
}

// Sortino is Sharpe's analogue using downside deviation as the denominator.
func Sortino(r []quant.Decimal, annualization float64) quant.Decimal {
	dd := downsideDeviation(r)
	if dd.IsZero() {
		return quant.Zero
	}
	m := mean(r)
	return m.Div(dd).Mul(quant.NewFromFloat(math.Sqrt(annualization)))
}

// DrawdownReport captures the current and maximum observed drawdown over an
// equity curve plus whether equity is presently recovering from its trough.
type DrawdownReport struct {
	Current      quant.Decimal
	Max          quant.Decimal
	IsRecovering bool
}

// Drawdown walks equity once, tracking the running peak and trough.
// current = (peak-current)/peak; max is the largest current observed;
// is_recovering is true when equity has risen since the last trough.
func Drawdown(equity []quant.Decimal) DrawdownReport {
	if len(equity) == 0 {
		return DrawdownReport{Current: quant.Zero, Max: quant.Zero}
	}
	peak := equity[0]
	maxDD := quant.Zero
	trough := equity[0]
	for _, e := range equity {
		if e.GreaterThan(peak) {
			peak = e
		}
		if e.LessThan(trough) {
			trough = e
		}
		var dd quant.Decimal
		if peak.IsPositive() {
			dd = peak.Sub(e).Div(peak)
		}
		if dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	last := equity[len(equity)-1]
	var current quant.Decimal
	if peak.IsPositive() {
		current = peak.Sub(last).Div(peak)
	}
	return DrawdownReport{
		Current:      current,
		Max:          maxDD,
		IsRecovering: last.GreaterThan(trough),
	}
}

// Calmar is annualizedReturn / maxDrawdown. Zero when maxDrawdown is zero
// (no drawdown observed yet), mirroring Sharpe/Sortino's zero-on-degenerate
// convention rather than returning +Inf.
func Calmar(annualizedReturn, maxDrawdown quant.Decimal) quant.Decimal {
	if maxDrawdown.IsZero() {
		return quant.Zero
	}
	return annualizedReturn.Div(maxDrawdown)
}

// HistoricalVaR returns the historical-method Value at Risk at confidence c
// (e.g. 0.95 or 0.99): sort returns ascending and take the (1-c) quantile,
// reported as a positive loss fraction. Returns Zero when there is no data.
func HistoricalVaR(returns []quant.Decimal, confidence float64) quant.Decimal {
	if len(returns) == 0 {
		return quant.Zero
	}
	sorted := make([]quant.Decimal, len(returns))
	copy(sorted, returns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })

	quantile := 1 - confidence
	idx := int(math.Floor(quantile * float64(len(sorted))))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	v := sorted[idx]
	if v.IsNegative() {
		return v.Neg()
	}
	return quant.Zero
}
