package backtest

import (
	"math"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/internal/quant/stats"
)

// computeMetrics reduces a completed run's trade journal and equity curve to
// the performance figures spec.md §4.5 names, delegating risk statistics to
// internal/quant/stats so a live risk report and a backtest result never
// diverge on the same formulas.
func computeMetrics(initial quant.Decimal, equity []quant.Decimal, trades []Trade, annualization float64) Metrics {
	var totalReturn quant.Decimal
	if !initial.IsZero() && len(equity) > 0 {
		totalReturn = equity[len(equity)-1].Sub(initial).Div(initial)
	}

	var wins, losses int
	sumWins, sumLosses := quant.Zero, quant.Zero
	for _, t := range trades {
		switch {
		case t.RealizedPnL.IsPositive():
			wins++
			sumWins = sumWins.Add(t.RealizedPnL)
		case t.RealizedPnL.IsNegative():
			losses++
			sumLosses = sumLosses.Add(t.RealizedPnL.Abs())
		}
	}

	var winRate quant.Decimal
	if len(trades) > 0 {
		winRate = quant.NewFromInt(int64(wins)).Div(quant.NewFromInt(int64(len(trades))))
	}

	var profitFactor float64
	switch {
	case len(trades) == 0:
		profitFactor = 0
	case sumLosses.IsZero() && sumWins.IsPositive():
		profitFactor = math.Inf(1)
	case sumLosses.IsZero():
		profitFactor = 0
	default:
		profitFactor, _ = sumWins.Div(sumLosses).Float64()
	}

	returns := stats.Returns(equity)
	dd := stats.Drawdown(equity)

	periods := float64(len(equity))
	var annualizedReturn quant.Decimal
	if periods > 0 {
		tr, _ := totalReturn.Float64()
		annualizedReturn = quant.NewFromFloat(tr / periods * annualization)
	}

	return Metrics{
		TotalReturn:  totalReturn,
		WinRate:      winRate,
		ProfitFactor: profitFactor,
		Sharpe:       stats.Sharpe(returns, annualization),
		Sortino:      stats.Sortino(returns, annualization),
		MaxDrawdown:  dd.Max,
		Calmar:       stats.Calmar(annualizedReturn, dd.Max),
	}
}
