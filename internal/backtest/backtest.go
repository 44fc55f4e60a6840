// Package backtest implements the deterministic candle-by-candle replay
// engine of spec.md §4.5: a strategy is driven bar-by-bar over a finite
// candle series, signals fill at the bar's close price adjusted by
// slippage, commission is taken from cash, and the resulting trade journal
// and equity curve are reduced to the standard performance metrics.
package backtest

import (
	"fmt"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/internal/strategy"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
)

// Request is the input to a backtest run (spec.md §4.5).
type Request struct {
	Pair           quant.TradingPair
	Series         *quant.Series
	Strategy       strategy.Strategy
	InitialCapital quant.Decimal
	CommissionRate quant.Decimal
	SlippagePct    quant.Decimal
	Annualization  float64
}

// Trade is one closed round trip recorded in the journal.
type Trade struct {
	EntryIndex  int
	ExitIndex   int
	Side        quant.OrderSide
	Quantity    quant.Decimal
	EntryPrice  quant.Decimal
	ExitPrice   quant.Decimal
	Commission  quant.Decimal
	RealizedPnL quant.Decimal // net of both commissions
	ExitReason  string
}

// Result is the output of Run (spec.md §4.5).
type Result struct {
	Trades      []Trade
	EquityCurve []quant.Decimal
	Metrics     Metrics
}

// Run replays series[startup:] through strategy deterministically, per the
// spec.md §4.5 pseudocode: stoploss and minimal-ROI are evaluated before
// ExitSignal on every bar with an open position; a flat bar consults
// EntrySignal. progress reports (current_index-startup)/(N-startup)
// atomically via onProgress, if non-nil, and cancel is polled once per
// candle.
func Run(req Request, cancel func() bool, onProgress func(fraction float64)) (Result, error) {
	meta := req.Strategy.Metadata()
	n := req.Series.Len()
	startup := meta.StartupCandleCount
	if startup >= n {
		return Result{}, fmt.Errorf("%w: startup_candle_count %d >= series length %d", apperrors.ErrInsufficientHistory, startup, n)
	}
	if err := req.Strategy.Initialize(strategy.Context{Pair: req.Pair}); err != nil {
		return Result{}, err
	}
	if err := req.Strategy.PopulateIndicators(req.Series); err != nil {
		return Result{}, err
	}

	cash := req.InitialCapital
	var position quant.Position
	var entryIndex int
	var entryCommission quant.Decimal
	var trades []Trade
	equity := make([]quant.Decimal, 0, n-startup)

	denom := float64(n - startup)
	for index := startup; index < n; index++ {
		if cancel != nil && cancel() {
			break
		}
		candle := req.Series.At(index)
		close := candle.Close

		if !position.IsFlat() {
			reason, exit := evaluateExit(meta, position, index, entryIndex, candle)
			if !exit {
				sig, err := req.Strategy.ExitSignal(req.Series, position)
				if err != nil {
					return Result{}, err
				}
				if sig != nil {
					exit = true
					reason = "exit_signal"
				}
			}
			if exit {
				exitPrice := slippageAdjustedExit(close, position, req.SlippagePct)
				qty := position.Size.Abs()
				commission := qty.Mul(exitPrice).Mul(req.CommissionRate)
				realized := position.Size.Mul(exitPrice.Sub(position.Entry))
				net := realized.Sub(entryCommission).Sub(commission)
				cash = cash.Add(realized).Sub(commission)

				side := quant.SideSell
				if position.IsShort() {
					side = quant.SideBuy
				}
				trades = append(trades, Trade{
					EntryIndex: entryIndex, ExitIndex: index, Side: side, Quantity: qty,
					EntryPrice: position.Entry, ExitPrice: exitPrice, Commission: commission.Add(entryCommission),
					RealizedPnL: net, ExitReason: reason,
				})
				position = quant.Position{}
			}
		} else {
			sig, err := req.Strategy.EntrySignal(req.Series, index)
			if err != nil {
				return Result{}, err
			}
			if sig != nil {
				qty, err := req.Strategy.PositionSize(*sig, cash)
				if err != nil {
					return Result{}, err
				}
				if qty.IsPositive() {
					entryPrice := slippageAdjustedEntry(close, sig.Side, req.SlippagePct)
					commission := qty.Mul(entryPrice).Mul(req.CommissionRate)
					cash = cash.Sub(commission)
					signed := qty
					if sig.Side == quant.SideSell {
						signed = signed.Neg()
					}
					position = quant.Position{Pair: req.Pair, Size: signed, Entry: entryPrice, OpenedAt: candle.Timestamp}
					entryIndex = index
					entryCommission = commission
				}
			}
		}

		eq := cash.Add(position.MarkToMarket(close))
		equity = append(equity, eq)

		if onProgress != nil && denom > 0 {
			onProgress(float64(index-startup) / denom)
		}
	}

	metrics := computeMetrics(req.InitialCapital, equity, trades, req.Annualization)
	return Result{Trades: trades, EquityCurve: equity, Metrics: metrics}, nil
}

// evaluateExit checks stoploss then minimal-ROI, in that order, ahead of the
// strategy's own ExitSignal (spec.md §4.5: "Stoploss and minimal-ROI from
// metadata are evaluated before the strategy's exit_signal on each bar").
// Returns ("", false) when neither fires, leaving ExitSignal to decide.
func evaluateExit(meta strategy.Metadata, position quant.Position, index, entryIndex int, candle quant.Candle) (string, bool) {
	profitRatio := profitRatio(position, candle.Close)

	if !meta.StoplossFraction.IsZero() && profitRatio.LessThanOrEqual(meta.StoplossFraction.Neg()) {
		return "stoploss", true
	}
	if len(meta.MinimalROI) > 0 {
		elapsedBars := index - entryIndex
		var applicable *strategy.MinimalROIStep
		for i := range meta.MinimalROI {
			step := meta.MinimalROI[i]
			if elapsedBars >= step.ElapsedMinutes && (applicable == nil || step.ElapsedMinutes >= applicable.ElapsedMinutes) {
				s := step
				applicable = &s
			}
		}
		if applicable != nil && profitRatio.GreaterThanOrEqual(applicable.ProfitRatio) {
			return "minimal_roi", true
		}
	}
	return "", false
}

func profitRatio(position quant.Position, close quant.Decimal) quant.Decimal {
	if position.Entry.IsZero() {
		return quant.Zero
	}
	pnl := position.MarkToMarket(close)
	basis := position.Entry.Mul(position.Size.Abs())
	if basis.IsZero() {
		return quant.Zero
	}
	return pnl.Div(basis)
}

// slippageAdjustedEntry applies spec.md §4.5's "buy pays +slippage, sell
// receives -slippage" to an opening fill.
func slippageAdjustedEntry(close quant.Decimal, side quant.OrderSide, slippagePct quant.Decimal) quant.Decimal {
	adj := close.Mul(slippagePct)
	if side == quant.SideBuy {
		return close.Add(adj)
	}
	return close.Sub(adj)
}

// slippageAdjustedExit applies the same rule to a closing fill: closing a
// long is a sell (receives -slippage); closing a short is a buy (pays
// +slippage).
func slippageAdjustedExit(close quant.Decimal, position quant.Position, slippagePct quant.Decimal) quant.Decimal {
	adj := close.Mul(slippagePct)
	if position.IsLong() {
		return close.Sub(adj)
	}
	return close.Add(adj)
}

// Metrics bundles the performance figures spec.md §4.5 names.
type Metrics struct {
	TotalReturn  quant.Decimal
	WinRate      quant.Decimal
	ProfitFactor float64 // float64 to carry the +Inf sentinel (spec.md Open Question c)
	Sharpe       quant.Decimal
	Sortino      quant.Decimal
	MaxDrawdown  quant.Decimal
	Calmar       quant.Decimal
}
