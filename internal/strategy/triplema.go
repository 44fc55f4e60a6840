package strategy

import (
	"github.com/DaviRain-Su/zigquant-core/internal/indicators"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// TripleMA requires three SMAs (fast < mid < slow period) in strictly
// descending value order (fast > mid > slow) to confirm a trend before
// entering, supplementing DualMATrend with an extra confirmation leg.
type TripleMA struct {
	Manager     *indicators.IndicatorManager
	FastPeriod  int
	MidPeriod   int
	SlowPeriod  int
	MaxBalanceFraction quant.Decimal
	StoplossFraction   quant.Decimal
}

func NewTripleMA(mgr *indicators.IndicatorManager, fast, mid, slow int, maxBalanceFraction, stoploss quant.Decimal) *TripleMA {
	return &TripleMA{Manager: mgr, FastPeriod: fast, MidPeriod: mid, SlowPeriod: slow, MaxBalanceFraction: maxBalanceFraction, StoplossFraction: stoploss}
}

func (s *TripleMA) Initialize(Context) error { return nil }

func (s *TripleMA) fp(series *quant.Series, name string, period int) indicators.Fingerprint {
	return indicators.Fingerprint{SeriesID: series.Identity(), Name: name, Params: paramsKey(period)}
}

func (s *TripleMA) PopulateIndicators(series *quant.Series) error {
	s.Manager.Get(s.fp(series, "sma_fast", s.FastPeriod), series, indicators.SMACompute(s.FastPeriod))
	s.Manager.Get(s.fp(series, "sma_mid", s.MidPeriod), series, indicators.SMACompute(s.MidPeriod))
	s.Manager.Get(s.fp(series, "sma_slow", s.SlowPeriod), series, indicators.SMACompute(s.SlowPeriod))
	return nil
}

func (s *TripleMA) values(series *quant.Series, index int) (fast, mid, slow *quant.Decimal) {
	fastCol := s.Manager.Get(s.fp(series, "sma_fast", s.FastPeriod), series, indicators.SMACompute(s.FastPeriod))
	midCol := s.Manager.Get(s.fp(series, "sma_mid", s.MidPeriod), series, indicators.SMACompute(s.MidPeriod))
	slowCol := s.Manager.Get(s.fp(series, "sma_slow", s.SlowPeriod), series, indicators.SMACompute(s.SlowPeriod))
	return fastCol[index], midCol[index], slowCol[index]
}

func (s *TripleMA) EntrySignal(series *quant.Series, index int) (*quant.Signal, error) {
	if err := checkWarmup(index, s.Metadata().StartupCandleCount); err != nil {
		return nil, err
	}
	fast, mid, slow := s.values(series, index)
	if fast == nil || mid == nil || slow == nil {
		return nil, nil
	}
	if !(fast.GreaterThan(*mid) && mid.GreaterThan(*slow)) {
		return nil, nil
	}
	close := series.At(index).Close
	return &quant.Signal{
		Type: quant.SignalEntryLong, Side: quant.SideBuy, Price: close,
		Strength: strengthFromSpread(*fast, *slow), Timestamp: series.At(index).Timestamp,
		Metadata: map[string]quant.Decimal{"sma_fast": *fast, "sma_mid": *mid, "sma_slow": *slow},
	}, nil
}

func (s *TripleMA) ExitSignal(series *quant.Series, position quant.Position) (*quant.Signal, error) {
	if position.IsFlat() {
		return nil, nil
	}
	index := series.Len() - 1
	fast, mid, slow := s.values(series, index)
	if fast == nil || mid == nil || slow == nil {
		return nil, nil
	}
	if fast.LessThan(*mid) || mid.LessThan(*slow) {
		close := series.At(index).Close
		return &quant.Signal{Type: quant.SignalExitLong, Side: quant.SideSell, Price: close, Strength: 1, Timestamp: series.At(index).Timestamp}, nil
	}
	return nil, nil
}

func (s *TripleMA) PositionSize(signal quant.Signal, accountBalance quant.Decimal) (quant.Decimal, error) {
	qty := accountBalance.Mul(s.MaxBalanceFraction).Div(signal.Price)
	return clampPositionSize(qty, accountBalance, signal.Price, s.MaxBalanceFraction), nil
}

func (s *TripleMA) Parameters() map[string]quant.Decimal {
	return map[string]quant.Decimal{
		"fast_period": quant.NewFromInt(int64(s.FastPeriod)),
		"mid_period":  quant.NewFromInt(int64(s.MidPeriod)),
		"slow_period": quant.NewFromInt(int64(s.SlowPeriod)),
	}
}

func (s *TripleMA) Metadata() Metadata {
	return Metadata{
		Name: "triple_ma", Version: "1.0", StrategyType: "trend_following",
		RecommendedTimeframe: "4h", StartupCandleCount: s.SlowPeriod + 1,
		StoplossFraction: s.StoplossFraction,
	}
}
