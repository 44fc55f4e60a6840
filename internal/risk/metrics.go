package risk

import (
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/internal/quant/stats"
)

// Report bundles the risk metrics computed over a rolling window of
// realized returns and an equity curve (spec.md §4.6).
type Report struct {
	VaR95    quant.Decimal
	VaR99    quant.Decimal
	Drawdown stats.DrawdownReport
	Sharpe   quant.Decimal
	Sortino  quant.Decimal
	Calmar   quant.Decimal
}

// Window holds a bounded rolling history of realized per-period returns and
// the equity curve they were derived from.
type Window struct {
	maxSize int
	returns []quant.Decimal
	equity  []quant.Decimal
}

// NewWindow constructs a Window retaining at most maxSize observations.
func NewWindow(maxSize int) *Window {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Window{maxSize: maxSize}
}

// Observe appends one equity observation, deriving and retaining its
// implied return when a prior observation exists.
func (w *Window) Observe(equity quant.Decimal) {
	if len(w.equity) > 0 {
		prev := w.equity[len(w.equity)-1]
		if !prev.IsZero() {
			w.returns = append(w.returns, equity.Sub(prev).Div(prev))
			if len(w.returns) > w.maxSize {
				w.returns = w.returns[len(w.returns)-w.maxSize:]
			}
		}
	}
	w.equity = append(w.equity, equity)
	if len(w.equity) > w.maxSize+1 {
		w.equity = w.equity[len(w.equity)-w.maxSize-1:]
	}
}

// Compute produces a Report from the window's current state.
func (w *Window) Compute(annualization float64) Report {
	dd := stats.Drawdown(w.equity)
	var annualizedReturn quant.Decimal
	if len(w.equity) >= 2 && !w.equity[0].IsZero() {
		total := w.equity[len(w.equity)-1].Sub(w.equity[0]).Div(w.equity[0])
		periods := quant.NewFromInt(int64(len(w.equity) - 1))
		if !periods.IsZero() {
			annualizedReturn = total.Div(periods).Mul(quant.NewFromFloat(annualization))
		}
	}
	return Report{
		VaR95:    stats.HistoricalVaR(w.returns, 0.95),
		VaR99:    stats.HistoricalVaR(w.returns, 0.99),
		Drawdown: dd,
		Sharpe:   stats.Sharpe(w.returns, annualization),
		Sortino:  stats.Sortino(w.returns, annualization),
		Calmar:   stats.Calmar(annualizedReturn, dd.Max),
	}
}
