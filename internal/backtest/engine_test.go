package backtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DaviRain-Su/zigquant-core/internal/indicators"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/internal/strategy"
)

func pair(t *testing.T) quant.TradingPair {
	t.Helper()
	return quant.TradingPair{Base: "BTC", Quote: "USDT"}
}

func constantSeries(n int, close float64) *quant.Series {
	candles := make([]quant.Candle, n)
	price := quant.NewFromFloat(close)
	for i := range candles {
		candles[i] = quant.Candle{
			Timestamp: quant.Timestamp{UnixMilli: int64(i) * 60_000},
			Open:      price, High: price, Low: price, Close: price,
			Volume: quant.NewFromFloat(1),
		}
	}
	return quant.NewSeries(candles)
}

// TestBacktestConstantSeries mirrors spec scenario #3: 1000 candles at a
// constant close feed a trend-following strategy that can never cross its
// own moving averages, so the run produces zero trades, zero return and no
// drawdown.
func TestBacktestConstantSeries(t *testing.T) {
	series := constantSeries(1000, 100)
	strat := strategy.NewDualMATrend(indicators.NewIndicatorManager(16),
		10, 30, quant.NewFromFloat(0.1), quant.NewFromFloat(0.05))

	req := Request{
		Pair: pair(t), Series: series, Strategy: strat,
		InitialCapital: quant.NewFromFloat(10000),
		CommissionRate: quant.NewFromFloat(0.001),
		SlippagePct:    quant.NewFromFloat(0.0005),
		Annualization:  365,
	}

	result, err := Run(req, nil, nil)
	require.NoError(t, err)
	require.Empty(t, result.Trades)
	require.True(t, result.Metrics.TotalReturn.IsZero())
	require.True(t, result.Metrics.Sharpe.IsZero())
	require.True(t, result.Metrics.MaxDrawdown.IsZero())
	require.Equal(t, float64(0), result.Metrics.ProfitFactor)
}

// trendingSeries rises monotonically for the first half and falls
// monotonically for the second, guaranteeing at least one fast/slow SMA
// crossover in each direction regardless of the exact period chosen.
func trendingSeries(n int) *quant.Series {
	candles := make([]quant.Candle, n)
	price := 100.0
	for i := range candles {
		if i < n/2 {
			price += 1
		} else {
			price -= 1
		}
		p := quant.NewFromFloat(price)
		candles[i] = quant.Candle{
			Timestamp: quant.Timestamp{UnixMilli: int64(i) * 60_000},
			Open:      p, High: p, Low: p, Close: p,
			Volume: quant.NewFromFloat(1),
		}
	}
	return quant.NewSeries(candles)
}

func newTrendReq(t *testing.T) Request {
	t.Helper()
	return Request{
		Pair:           pair(t),
		Series:         trendingSeries(400),
		Strategy:       strategy.NewDualMATrend(indicators.NewIndicatorManager(16), 5, 20, quant.NewFromFloat(0.5), quant.NewFromFloat(0.05)),
		InitialCapital: quant.NewFromFloat(10000),
		CommissionRate: quant.NewFromFloat(0.001),
		SlippagePct:    quant.NewFromFloat(0.0005),
		Annualization:  365,
	}
}

// TestBacktestDeterministic asserts the same inputs run twice produce an
// identical trade journal, equity curve and metrics set — backtests must be
// pure functions of (series, strategy config), never time- or order-
// dependent (spec.md §8).
func TestBacktestDeterministic(t *testing.T) {
	first, err := Run(newTrendReq(t), nil, nil)
	require.NoError(t, err)
	second, err := Run(newTrendReq(t), nil, nil)
	require.NoError(t, err)

	require.Equal(t, len(first.Trades), len(second.Trades))
	for i := range first.Trades {
		require.True(t, first.Trades[i].RealizedPnL.Equal(second.Trades[i].RealizedPnL))
		require.Equal(t, first.Trades[i].EntryIndex, second.Trades[i].EntryIndex)
		require.Equal(t, first.Trades[i].ExitIndex, second.Trades[i].ExitIndex)
	}
	require.True(t, first.Metrics.TotalReturn.Equal(second.Metrics.TotalReturn))
	require.True(t, first.Metrics.Sharpe.Equal(second.Metrics.Sharpe))
	require.NotEmpty(t, first.Trades, "trending series must produce at least one round trip")
}

// TestBacktestInsufficientHistory rejects a series shorter than the
// strategy's declared warm-up window outright, rather than running a
// partial backtest.
func TestBacktestInsufficientHistory(t *testing.T) {
	req := newTrendReq(t)
	req.Series = constantSeries(3, 100)
	_, err := Run(req, nil, nil)
	require.Error(t, err)
}
