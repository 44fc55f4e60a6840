package strategy

import (
	"github.com/DaviRain-Su/zigquant-core/internal/indicators"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// RSIReversion enters long when RSI crosses up out of oversold territory
// and exits when RSI crosses back into or past overbought territory.
type RSIReversion struct {
	Manager   *indicators.IndicatorManager
	Period    int
	Oversold  quant.Decimal
	Overbought quant.Decimal
	MaxBalanceFraction quant.Decimal
	StoplossFraction   quant.Decimal
}

func NewRSIReversion(mgr *indicators.IndicatorManager, period int, oversold, overbought, maxBalanceFraction, stoploss quant.Decimal) *RSIReversion {
	return &RSIReversion{Manager: mgr, Period: period, Oversold: oversold, Overbought: overbought, MaxBalanceFraction: maxBalanceFraction, StoplossFraction: stoploss}
}

func (s *RSIReversion) Initialize(Context) error { return nil }

func (s *RSIReversion) fp(series *quant.Series) indicators.Fingerprint {
	return indicators.Fingerprint{SeriesID: series.Identity(), Name: "rsi", Params: paramsKey(s.Period)}
}

func (s *RSIReversion) PopulateIndicators(series *quant.Series) error {
	s.Manager.Get(s.fp(series), series, indicators.RSICompute(s.Period))
	return nil
}

func (s *RSIReversion) EntrySignal(series *quant.Series, index int) (*quant.Signal, error) {
	if err := checkWarmup(index, s.Metadata().StartupCandleCount); err != nil {
		return nil, err
	}
	rsi := s.Manager.Get(s.fp(series), series, indicators.RSICompute(s.Period))
	if index == 0 || rsi[index] == nil || rsi[index-1] == nil {
		return nil, nil
	}
	crossedUpFromOversold := rsi[index-1].LessThanOrEqual(s.Oversold) && rsi[index].GreaterThan(s.Oversold)
	if !crossedUpFromOversold {
		return nil, nil
	}
	close := series.At(index).Close
	f, _ := rsi[index].Float64()
	strength := 1 - f/100
	return &quant.Signal{
		Type: quant.SignalEntryLong, Side: quant.SideBuy, Price: close,
		Strength: strength, Timestamp: series.At(index).Timestamp,
		Metadata: map[string]quant.Decimal{"rsi": *rsi[index]},
	}, nil
}

func (s *RSIReversion) ExitSignal(series *quant.Series, position quant.Position) (*quant.Signal, error) {
	if position.IsFlat() {
		return nil, nil
	}
	index := series.Len() - 1
	rsi := s.Manager.Get(s.fp(series), series, indicators.RSICompute(s.Period))
	if rsi[index] == nil {
		return nil, nil
	}
	if rsi[index].GreaterThanOrEqual(s.Overbought) {
		close := series.At(index).Close
		return &quant.Signal{Type: quant.SignalExitLong, Side: quant.SideSell, Price: close, Strength: 1, Timestamp: series.At(index).Timestamp}, nil
	}
	return nil, nil
}

func (s *RSIReversion) PositionSize(signal quant.Signal, accountBalance quant.Decimal) (quant.Decimal, error) {
	qty := accountBalance.Mul(s.MaxBalanceFraction).Div(signal.Price)
	return clampPositionSize(qty, accountBalance, signal.Price, s.MaxBalanceFraction), nil
}

func (s *RSIReversion) Parameters() map[string]quant.Decimal {
	return map[string]quant.Decimal{"period": quant.NewFromInt(int64(s.Period)), "oversold": s.Oversold, "overbought": s.Overbought}
}

func (s *RSIReversion) Metadata() Metadata {
	return Metadata{
		Name: "rsi_reversion", Version: "1.0", StrategyType: "mean_reversion",
		RecommendedTimeframe: "15m", StartupCandleCount: s.Period + 1,
		StoplossFraction: s.StoplossFraction,
	}
}
