package strategy

import (
	"github.com/DaviRain-Su/zigquant-core/internal/indicators"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// MACDDivergence enters long on a MACD-line-crosses-above-signal-line event
// and exits on the reverse cross.
type MACDDivergence struct {
	Manager   *indicators.IndicatorManager
	Fast, Slow, Signal int
	MaxBalanceFraction quant.Decimal
	StoplossFraction   quant.Decimal

	cache map[uint64]indicators.MACDResult
}

func NewMACDDivergence(mgr *indicators.IndicatorManager, fast, slow, signal int, maxBalanceFraction, stoploss quant.Decimal) *MACDDivergence {
	return &MACDDivergence{
		Manager: mgr, Fast: fast, Slow: slow, Signal: signal,
		MaxBalanceFraction: maxBalanceFraction, StoplossFraction: stoploss,
		cache: make(map[uint64]indicators.MACDResult),
	}
}

func (s *MACDDivergence) Initialize(Context) error { return nil }

// macd recomputes (or returns the last recomputation for) series. MACD's
// three interdependent columns don't fit the single-Column-per-fingerprint
// IndicatorManager contract cleanly, so this strategy keeps its own
// per-series-identity memo instead of routing through the shared cache;
// PopulateIndicators still seeds it so EntrySignal/ExitSignal never pay for
// the first compute twice in the same tick.
func (s *MACDDivergence) macd(series *quant.Series) indicators.MACDResult {
	if cached, ok := s.cache[series.Identity()]; ok && len(cached.MACD) == series.Len() {
		return cached
	}
	closes := series.Closes(series.Len() - 1)
	res := indicators.MACD(closes, s.Fast, s.Slow, s.Signal)
	s.cache[series.Identity()] = res
	return res
}

func (s *MACDDivergence) PopulateIndicators(series *quant.Series) error {
	s.macd(series)
	return nil
}

func (s *MACDDivergence) EntrySignal(series *quant.Series, index int) (*quant.Signal, error) {
	if err := checkWarmup(index, s.Metadata().StartupCandleCount); err != nil {
		return nil, err
	}
	res := s.macd(series)
	if index == 0 || res.MACD[index] == nil || res.Signal[index] == nil || res.MACD[index-1] == nil || res.Signal[index-1] == nil {
		return nil, nil
	}
	crossedUp := res.MACD[index-1].LessThanOrEqual(*res.Signal[index-1]) && res.MACD[index].GreaterThan(*res.Signal[index])
	if !crossedUp {
		return nil, nil
	}
	close := series.At(index).Close
	return &quant.Signal{
		Type: quant.SignalEntryLong, Side: quant.SideBuy, Price: close,
		Strength: strengthFromSpread(*res.MACD[index], *res.Signal[index]), Timestamp: series.At(index).Timestamp,
		Metadata: map[string]quant.Decimal{"macd": *res.MACD[index], "signal": *res.Signal[index]},
	}, nil
}

func (s *MACDDivergence) ExitSignal(series *quant.Series, position quant.Position) (*quant.Signal, error) {
	if position.IsFlat() {
		return nil, nil
	}
	index := series.Len() - 1
	res := s.macd(series)
	if index == 0 || res.MACD[index] == nil || res.Signal[index] == nil || res.MACD[index-1] == nil || res.Signal[index-1] == nil {
		return nil, nil
	}
	crossedDown := res.MACD[index-1].GreaterThanOrEqual(*res.Signal[index-1]) && res.MACD[index].LessThan(*res.Signal[index])
	if !crossedDown {
		return nil, nil
	}
	close := series.At(index).Close
	return &quant.Signal{Type: quant.SignalExitLong, Side: quant.SideSell, Price: close, Strength: 1, Timestamp: series.At(index).Timestamp}, nil
}

func (s *MACDDivergence) PositionSize(signal quant.Signal, accountBalance quant.Decimal) (quant.Decimal, error) {
	qty := accountBalance.Mul(s.MaxBalanceFraction).Div(signal.Price)
	return clampPositionSize(qty, accountBalance, signal.Price, s.MaxBalanceFraction), nil
}

func (s *MACDDivergence) Parameters() map[string]quant.Decimal {
	return map[string]quant.Decimal{
		"fast": quant.NewFromInt(int64(s.Fast)), "slow": quant.NewFromInt(int64(s.Slow)), "signal": quant.NewFromInt(int64(s.Signal)),
	}
}

func (s *MACDDivergence) Metadata() Metadata {
	return Metadata{
		Name: "macd_divergence", Version: "1.0", StrategyType: "trend_following",
		RecommendedTimeframe: "1h", StartupCandleCount: s.Slow + s.Signal + 1,
		StoplossFraction: s.StoplossFraction,
	}
}
