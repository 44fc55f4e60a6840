// Package strategy implements the Strategy capability (spec.md §4.2):
// indicator population, entry/exit signal generation, position sizing and a
// metadata descriptor, plus five concrete strategies and a trailing-stop
// helper. Grounded on the teacher's strategy-as-struct-with-config shape
// (internal/trading/grid/strategy.go, internal/trading/strategy/grid.go):
// each variant here is a plain struct implementing Strategy, not a
// registered/reflective plugin.
package strategy

import (
	"fmt"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
	"github.com/DaviRain-Su/zigquant-core/pkg/logging"
)

// Context carries the per-worker environment a Strategy receives at
// Initialize: the traded pair and a logger. It holds no exchange client
// handle.
type Context struct {
	Pair   quant.TradingPair
	Logger logging.Logger
}

// MinimalROIStep is one (elapsed_minutes, profit_ratio) threshold in a
// strategy's minimal-ROI schedule.
type MinimalROIStep struct {
	ElapsedMinutes int
	ProfitRatio    quant.Decimal
}

// TrailingStopDescriptor configures TrailingStop for a strategy (spec.md
// §4.2: "maintains a peak-favorable price ... triggers ... when price
// retraces by the configured distance from that peak after crossing a
// positive-return offset").
type TrailingStopDescriptor struct {
	Enabled          bool
	PositiveOffset   quant.Decimal // return that must be crossed before arming
	TrailingDistance quant.Decimal // retracement from peak that triggers exit
}

// Metadata describes a strategy variant (spec.md §4.2).
type Metadata struct {
	Name                string
	Version             string
	StrategyType         string
	RecommendedTimeframe string
	StartupCandleCount  int
	MinimalROI          []MinimalROIStep
	StoplossFraction    quant.Decimal
	TrailingStop        *TrailingStopDescriptor
}

// Strategy is the capability every concrete variant implements (spec.md
// §4.2's {initialize, populate_indicators, entry_signal, exit_signal,
// position_size, parameters, metadata} set).
type Strategy interface {
	Initialize(ctx Context) error
	PopulateIndicators(series *quant.Series) error
	EntrySignal(series *quant.Series, index int) (*quant.Signal, error)
	ExitSignal(series *quant.Series, position quant.Position) (*quant.Signal, error)
	PositionSize(signal quant.Signal, accountBalance quant.Decimal) (quant.Decimal, error)
	Parameters() map[string]quant.Decimal
	Metadata() Metadata
}

// checkWarmup returns InsufficientHistory when index has not yet reached
// startupCandleCount, per spec.md §4.2.
func checkWarmup(index, startupCandleCount int) error {
	if index < startupCandleCount {
		return fmt.Errorf("%w: index %d < startup_candle_count %d", apperrors.ErrInsufficientHistory, index, startupCandleCount)
	}
	return nil
}

// clampPositionSize enforces "must return zero or positive; must not exceed
// a strategy-declared maximum fraction of balance" (spec.md §4.2).
func clampPositionSize(quantity, accountBalance, price, maxBalanceFraction quant.Decimal) quant.Decimal {
	if quantity.IsNegative() {
		return quant.Zero
	}
	if price.IsZero() || maxBalanceFraction.IsZero() {
		return quantity
	}
	maxNotional := accountBalance.Mul(maxBalanceFraction)
	maxQty := maxNotional.Div(price)
	if quantity.GreaterThan(maxQty) {
		return maxQty
	}
	return quantity
}
