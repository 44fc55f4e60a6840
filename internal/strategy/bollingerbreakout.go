package strategy

import (
	"github.com/DaviRain-Su/zigquant-core/internal/indicators"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// BollingerBreakout enters long on a close breaking above the upper band
// and exits when price reverts to the middle band.
type BollingerBreakout struct {
	Manager    *indicators.IndicatorManager
	Period     int
	K          quant.Decimal
	MaxBalanceFraction quant.Decimal
	StoplossFraction   quant.Decimal
}

func NewBollingerBreakout(mgr *indicators.IndicatorManager, period int, k, maxBalanceFraction, stoploss quant.Decimal) *BollingerBreakout {
	return &BollingerBreakout{Manager: mgr, Period: period, K: k, MaxBalanceFraction: maxBalanceFraction, StoplossFraction: stoploss}
}

func (s *BollingerBreakout) Initialize(Context) error { return nil }

func (s *BollingerBreakout) upperFP(series *quant.Series) indicators.Fingerprint {
	return indicators.Fingerprint{SeriesID: series.Identity(), Name: "bb_upper", Params: paramsKey(s.Period)}
}
func (s *BollingerBreakout) middleFP(series *quant.Series) indicators.Fingerprint {
	return indicators.Fingerprint{SeriesID: series.Identity(), Name: "bb_middle", Params: paramsKey(s.Period)}
}

func (s *BollingerBreakout) PopulateIndicators(series *quant.Series) error {
	s.Manager.Get(s.upperFP(series), series, indicators.BollingerUpperCompute(s.Period, s.K))
	s.Manager.Get(s.middleFP(series), series, indicators.BollingerMiddleCompute(s.Period, s.K))
	return nil
}

func (s *BollingerBreakout) EntrySignal(series *quant.Series, index int) (*quant.Signal, error) {
	if err := checkWarmup(index, s.Metadata().StartupCandleCount); err != nil {
		return nil, err
	}
	upper := s.Manager.Get(s.upperFP(series), series, indicators.BollingerUpperCompute(s.Period, s.K))
	if upper[index] == nil {
		return nil, nil
	}
	close := series.At(index).Close
	if !close.GreaterThan(*upper[index]) {
		return nil, nil
	}
	strength := strengthFromSpread(close, *upper[index])
	return &quant.Signal{
		Type: quant.SignalEntryLong, Side: quant.SideBuy, Price: close,
		Strength: strength, Timestamp: series.At(index).Timestamp,
		Metadata: map[string]quant.Decimal{"bb_upper": *upper[index]},
	}, nil
}

func (s *BollingerBreakout) ExitSignal(series *quant.Series, position quant.Position) (*quant.Signal, error) {
	if position.IsFlat() {
		return nil, nil
	}
	index := series.Len() - 1
	middle := s.Manager.Get(s.middleFP(series), series, indicators.BollingerMiddleCompute(s.Period, s.K))
	if middle[index] == nil {
		return nil, nil
	}
	close := series.At(index).Close
	if close.LessThanOrEqual(*middle[index]) {
		return &quant.Signal{Type: quant.SignalExitLong, Side: quant.SideSell, Price: close, Strength: 1, Timestamp: series.At(index).Timestamp}, nil
	}
	return nil, nil
}

func (s *BollingerBreakout) PositionSize(signal quant.Signal, accountBalance quant.Decimal) (quant.Decimal, error) {
	qty := accountBalance.Mul(s.MaxBalanceFraction).Div(signal.Price)
	return clampPositionSize(qty, accountBalance, signal.Price, s.MaxBalanceFraction), nil
}

func (s *BollingerBreakout) Parameters() map[string]quant.Decimal {
	return map[string]quant.Decimal{"period": quant.NewFromInt(int64(s.Period)), "k": s.K}
}

func (s *BollingerBreakout) Metadata() Metadata {
	return Metadata{
		Name: "bollinger_breakout", Version: "1.0", StrategyType: "breakout",
		RecommendedTimeframe: "1h", StartupCandleCount: s.Period + 1,
		StoplossFraction: s.StoplossFraction,
	}
}
