package strategy

import (
	"github.com/DaviRain-Su/zigquant-core/internal/indicators"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// DualMATrend enters long on a fast-over-slow SMA crossover and exits on
// the reverse cross.
type DualMATrend struct {
	Manager    *indicators.IndicatorManager
	FastPeriod int
	SlowPeriod int
	MaxBalanceFraction quant.Decimal
	StoplossFraction   quant.Decimal

	ctx Context
}

func NewDualMATrend(mgr *indicators.IndicatorManager, fast, slow int, maxBalanceFraction, stoploss quant.Decimal) *DualMATrend {
	return &DualMATrend{Manager: mgr, FastPeriod: fast, SlowPeriod: slow, MaxBalanceFraction: maxBalanceFraction, StoplossFraction: stoploss}
}

func (s *DualMATrend) Initialize(ctx Context) error {
	s.ctx = ctx
	return nil
}

func (s *DualMATrend) fastFP(series *quant.Series) indicators.Fingerprint {
	return indicators.Fingerprint{SeriesID: series.Identity(), Name: "sma_fast", Params: paramsKey(s.FastPeriod)}
}

func (s *DualMATrend) slowFP(series *quant.Series) indicators.Fingerprint {
	return indicators.Fingerprint{SeriesID: series.Identity(), Name: "sma_slow", Params: paramsKey(s.SlowPeriod)}
}

func (s *DualMATrend) PopulateIndicators(series *quant.Series) error {
	s.Manager.Get(s.fastFP(series), series, indicators.SMACompute(s.FastPeriod))
	s.Manager.Get(s.slowFP(series), series, indicators.SMACompute(s.SlowPeriod))
	return nil
}

func (s *DualMATrend) EntrySignal(series *quant.Series, index int) (*quant.Signal, error) {
	if err := checkWarmup(index, s.Metadata().StartupCandleCount); err != nil {
		return nil, err
	}
	fast := s.Manager.Get(s.fastFP(series), series, indicators.SMACompute(s.FastPeriod))
	slow := s.Manager.Get(s.slowFP(series), series, indicators.SMACompute(s.SlowPeriod))
	if index == 0 || fast[index] == nil || slow[index] == nil || fast[index-1] == nil || slow[index-1] == nil {
		return nil, nil
	}

	crossedUp := fast[index-1].LessThanOrEqual(*slow[index-1]) && fast[index].GreaterThan(*slow[index])
	if !crossedUp {
		return nil, nil
	}
	close := series.At(index).Close
	strength := strengthFromSpread(*fast[index], *slow[index])
	return &quant.Signal{
		Type: quant.SignalEntryLong, Side: quant.SideBuy, Price: close,
		Strength: strength, Timestamp: series.At(index).Timestamp,
		Metadata: map[string]quant.Decimal{"sma_fast": *fast[index], "sma_slow": *slow[index]},
	}, nil
}

func (s *DualMATrend) ExitSignal(series *quant.Series, position quant.Position) (*quant.Signal, error) {
	if position.IsFlat() {
		return nil, nil
	}
	index := series.Len() - 1
	fast := s.Manager.Get(s.fastFP(series), series, indicators.SMACompute(s.FastPeriod))
	slow := s.Manager.Get(s.slowFP(series), series, indicators.SMACompute(s.SlowPeriod))
	if index == 0 || fast[index] == nil || slow[index] == nil || fast[index-1] == nil || slow[index-1] == nil {
		return nil, nil
	}
	crossedDown := fast[index-1].GreaterThanOrEqual(*slow[index-1]) && fast[index].LessThan(*slow[index])
	if !crossedDown {
		return nil, nil
	}
	close := series.At(index).Close
	return &quant.Signal{Type: quant.SignalExitLong, Side: quant.SideSell, Price: close, Strength: 1, Timestamp: series.At(index).Timestamp}, nil
}

func (s *DualMATrend) PositionSize(signal quant.Signal, accountBalance quant.Decimal) (quant.Decimal, error) {
	qty := accountBalance.Mul(s.MaxBalanceFraction).Div(signal.Price)
	return clampPositionSize(qty, accountBalance, signal.Price, s.MaxBalanceFraction), nil
}

func (s *DualMATrend) Parameters() map[string]quant.Decimal {
	return map[string]quant.Decimal{
		"fast_period": quant.NewFromInt(int64(s.FastPeriod)),
		"slow_period": quant.NewFromInt(int64(s.SlowPeriod)),
	}
}

func (s *DualMATrend) Metadata() Metadata {
	return Metadata{
		Name: "dual_ma_trend", Version: "1.0", StrategyType: "trend_following",
		RecommendedTimeframe: "1h", StartupCandleCount: s.SlowPeriod + 1,
		StoplossFraction: s.StoplossFraction,
	}
}
