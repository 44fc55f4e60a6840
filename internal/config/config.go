// Package config loads the configuration envelope consumed by the engine
// manager (spec.md §6): grid, backtest, strategy, risk, and alert settings
// unmarshalled from YAML with every field defaulted and unknown fields
// rejected as a validation error, grounded on the teacher's
// internal/config/config.go.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DaviRain-Su/zigquant-core/internal/backtest"
	"github.com/DaviRain-Su/zigquant-core/internal/grid"
	"github.com/DaviRain-Su/zigquant-core/internal/indicators"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/internal/risk"
	"github.com/DaviRain-Su/zigquant-core/internal/strategy"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
)

// GridConfig is the YAML shape of a grid.Config (spec.md §4.4), decimals and
// durations as strings since yaml.v3 has no native Decimal/Duration codec.
type GridConfig struct {
	Pair                 string `yaml:"pair"`
	Lower                string `yaml:"lower"`
	Upper                string `yaml:"upper"`
	GridCount            int    `yaml:"grid_count"`
	OrderSize            string `yaml:"order_size"`
	TakeProfitPct        string `yaml:"take_profit_pct"`
	MaxPosition          string `yaml:"max_position"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
	Mode                 string `yaml:"mode"`
	RiskEnabled          bool   `yaml:"risk_enabled"`
}

// StrategyConfig names a strategy.Strategy implementation and its
// construction parameters (spec.md §4.2). Name selects the concrete
// implementation at the manager boundary; Fast/SlowPeriod and the fraction
// fields are the dual-moving-average strategy's own parameters.
type StrategyConfig struct {
	Pair                 string `yaml:"pair"`
	Name                 string `yaml:"name"`
	FastPeriod           int    `yaml:"fast_period"`
	SlowPeriod           int    `yaml:"slow_period"`
	StoplossFraction     string `yaml:"stoploss_fraction"`
	MaxBalanceFraction   string `yaml:"max_balance_fraction"`
	OrderSize            string `yaml:"order_size"`
	CheckIntervalSeconds int    `yaml:"check_interval_seconds"`
	RiskEnabled          bool   `yaml:"risk_enabled"`
}

// BacktestConfig is the YAML shape of a backtest.Request (spec.md §4.5).
type BacktestConfig struct {
	Pair           string         `yaml:"pair"`
	InitialCapital string         `yaml:"initial_capital"`
	CommissionRate string         `yaml:"commission_rate"`
	SlippagePct    string         `yaml:"slippage_pct"`
	Annualization  float64        `yaml:"annualization"`
	Strategy       StrategyConfig `yaml:"strategy"`
}

// RiskConfig is spec.md §6's `{ enabled, var_window, max_daily_loss_pct }`.
type RiskConfig struct {
	Enabled         bool   `yaml:"enabled"`
	VarWindow       int    `yaml:"var_window"`
	MaxDailyLossPct string `yaml:"max_daily_loss_pct"`
}

// AlertRuleConfig is one threshold rule recognized by the alert queue.
// Comparison is one of "gt", "gte", "lt", "lte"; a Rule's comparison
// function cannot itself be expressed in YAML, so it is resolved from this
// string at build time.
type AlertRuleConfig struct {
	Metric     string `yaml:"metric"`
	Comparison string `yaml:"comparison"`
	Threshold  string `yaml:"threshold"`
	Level      string `yaml:"level"`
	Title      string `yaml:"title"`
}

// AlertsConfig is spec.md §6's `{ channels, rules }`. "log" is the only
// channel name recognized in this repository (spec.md §1 excludes
// dashboard/logging wire formats beyond this core); any other name is a
// validation error.
type AlertsConfig struct {
	Channels []string          `yaml:"channels"`
	Rules    []AlertRuleConfig `yaml:"rules"`
}

// ConfigEnvelope is the full configuration consumed by the engine manager
// (spec.md §6). Every field has a default (see Default); unknown fields in
// the source YAML are rejected at decode time.
type ConfigEnvelope struct {
	Grid     GridConfig     `yaml:"grid"`
	Backtest BacktestConfig `yaml:"backtest"`
	Strategy StrategyConfig `yaml:"strategy"`
	Risk     RiskConfig     `yaml:"risk"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// Default returns the envelope's recognized defaults, applied field-by-field
// over whatever the source YAML supplies (spec.md §6: "each field has a
// default").
func Default() ConfigEnvelope {
	return ConfigEnvelope{
		Grid: GridConfig{
			Pair: "BTC/USDT", Lower: "0", Upper: "0", GridCount: 10,
			OrderSize: "0", TakeProfitPct: "0.01", MaxPosition: "0",
			CheckIntervalSeconds: 5, Mode: "paper", RiskEnabled: true,
		},
		Strategy: StrategyConfig{
			Pair: "BTC/USDT", Name: "dual_ma_trend", FastPeriod: 10, SlowPeriod: 30,
			StoplossFraction: "0.05", MaxBalanceFraction: "0.1", OrderSize: "0",
			CheckIntervalSeconds: 5, RiskEnabled: true,
		},
		Backtest: BacktestConfig{
			Pair: "BTC/USDT", InitialCapital: "10000", CommissionRate: "0.001",
			SlippagePct: "0.0005", Annualization: 365,
		},
		Risk: RiskConfig{Enabled: true, VarWindow: 250, MaxDailyLossPct: "0.05"},
		Alerts: AlertsConfig{Channels: []string{"log"}},
	}
}

// Load reads path, merges it over Default, and validates the result. Unknown
// fields anywhere in the document are rejected (yaml.v3's KnownFields mode)
// rather than silently ignored, matching spec.md §6's "unknown fields cause
// a validation error at the manager boundary."
func Load(path string) (ConfigEnvelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConfigEnvelope{}, fmt.Errorf("%w: reading %s: %v", apperrors.ErrValidation, path, err)
	}
	return Parse(data)
}

// Parse decodes data over Default and validates it; exported separately from
// Load so tests and in-process callers can supply YAML without a file.
func Parse(data []byte) (ConfigEnvelope, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return ConfigEnvelope{}, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	if err := cfg.Validate(); err != nil {
		return ConfigEnvelope{}, err
	}
	return cfg, nil
}

// Validate rejects envelopes with recognized-but-nonsensical values (an
// invalid grid pair, a grid count below 2, an unknown alert channel name,
// an unrecognized alert rule comparison) — separate from the decode-time
// unknown-field rejection. Decimal strings are not parsed here; an
// unparsable one is rejected by the Build* method that converts it.
func (c ConfigEnvelope) Validate() error {
	if _, err := parsePair(c.Grid.Pair); err != nil {
		return err
	}
	if c.Grid.GridCount < 2 {
		return fmt.Errorf("%w: grid.grid_count must be >= 2, got %d", apperrors.ErrValidation, c.Grid.GridCount)
	}
	for _, ch := range c.Alerts.Channels {
		if ch != "log" {
			return fmt.Errorf("%w: alerts.channels: unrecognized channel %q", apperrors.ErrValidation, ch)
		}
	}
	for _, r := range c.Alerts.Rules {
		if _, err := comparisonFunc(r.Comparison); err != nil {
			return err
		}
	}
	return nil
}

func parsePair(s string) (quant.TradingPair, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return quant.TradingPair{}, fmt.Errorf("%w: invalid pair %q, want BASE/QUOTE", apperrors.ErrValidation, s)
	}
	return quant.TradingPair{Base: parts[0], Quote: parts[1]}, nil
}

func decimalField(name, s string) (quant.Decimal, error) {
	d, err := quant.NewDecimalFromString(s)
	if err != nil {
		return quant.Zero, fmt.Errorf("%w: %s: %v", apperrors.ErrValidation, name, err)
	}
	return d, nil
}

func comparisonFunc(name string) (func(value, threshold quant.Decimal) bool, error) {
	switch name {
	case "gt":
		return func(v, t quant.Decimal) bool { return v.GreaterThan(t) }, nil
	case "gte":
		return func(v, t quant.Decimal) bool { return v.GreaterThanOrEqual(t) }, nil
	case "lt":
		return func(v, t quant.Decimal) bool { return v.LessThan(t) }, nil
	case "lte":
		return func(v, t quant.Decimal) bool { return v.LessThanOrEqual(t) }, nil
	default:
		return nil, fmt.Errorf("%w: alert rule comparison %q must be one of gt,gte,lt,lte", apperrors.ErrValidation, name)
	}
}

// BuildGridConfig translates the YAML-friendly GridConfig into a grid.Config
// the manager can hand to grid.NewWorker.
func (c ConfigEnvelope) BuildGridConfig() (grid.Config, error) {
	pair, err := parsePair(c.Grid.Pair)
	if err != nil {
		return grid.Config{}, err
	}
	lower, err := decimalField("grid.lower", c.Grid.Lower)
	if err != nil {
		return grid.Config{}, err
	}
	upper, err := decimalField("grid.upper", c.Grid.Upper)
	if err != nil {
		return grid.Config{}, err
	}
	orderSize, err := decimalField("grid.order_size", c.Grid.OrderSize)
	if err != nil {
		return grid.Config{}, err
	}
	takeProfit, err := decimalField("grid.take_profit_pct", c.Grid.TakeProfitPct)
	if err != nil {
		return grid.Config{}, err
	}
	maxPosition, err := decimalField("grid.max_position", c.Grid.MaxPosition)
	if err != nil {
		return grid.Config{}, err
	}

	return grid.Config{
		Pair: pair, Lower: lower, Upper: upper, GridCount: c.Grid.GridCount,
		OrderSize: orderSize, TakeProfitPct: takeProfit, MaxPosition: maxPosition,
		CheckInterval: time.Duration(c.Grid.CheckIntervalSeconds) * time.Second,
		Mode:          grid.Mode(c.Grid.Mode), RiskEnabled: c.Grid.RiskEnabled,
	}, nil
}

// BuildRiskWindow constructs the rolling equity window Risk.VarWindow sizes
// (spec.md §4.6).
func (c ConfigEnvelope) BuildRiskWindow() *risk.Window {
	return risk.NewWindow(c.Risk.VarWindow)
}

// BuildMaxDailyLossPct parses Risk.MaxDailyLossPct for risk.NewGate.
func (c ConfigEnvelope) BuildMaxDailyLossPct() (quant.Decimal, error) {
	return decimalField("risk.max_daily_loss_pct", c.Risk.MaxDailyLossPct)
}

// BuildAlertQueue constructs the alert queue's rules from AlertsConfig,
// resolving each rule's string comparison into the risk.Rule function field.
// capacity bounds the queue's retained history.
func (c ConfigEnvelope) BuildAlertQueue(capacity int, channels ...risk.Channel) (*risk.Queue, error) {
	queue := risk.NewQueue(capacity, channels...)
	for _, r := range c.Alerts.Rules {
		cmp, err := comparisonFunc(r.Comparison)
		if err != nil {
			return nil, err
		}
		threshold, err := decimalField("alerts.rules.threshold", r.Threshold)
		if err != nil {
			return nil, err
		}
		queue.AddRule(risk.Rule{
			Metric: r.Metric, Comparison: cmp, Threshold: threshold,
			Level: risk.Level(r.Level), Title: r.Title,
		})
	}
	return queue, nil
}

// indicatorCacheSize bounds each strategy's own IndicatorManager — generous
// enough that a single strategy's SMA/RSI/MACD fingerprints never evict each
// other within one run.
const indicatorCacheSize = 64

// BuildStrategy constructs the named strategy.Strategy implementation from
// sc's parameters. "dual_ma_trend" is the only name wired today; additional
// names extend this switch as more strategies gain config support.
func (sc StrategyConfig) BuildStrategy() (strategy.Strategy, error) {
	stoploss, err := decimalField("strategy.stoploss_fraction", sc.StoplossFraction)
	if err != nil {
		return nil, err
	}
	maxBalanceFraction, err := decimalField("strategy.max_balance_fraction", sc.MaxBalanceFraction)
	if err != nil {
		return nil, err
	}

	switch sc.Name {
	case "dual_ma_trend", "":
		mgr := indicators.NewIndicatorManager(indicatorCacheSize)
		return strategy.NewDualMATrend(mgr, sc.FastPeriod, sc.SlowPeriod, maxBalanceFraction, stoploss), nil
	default:
		return nil, fmt.Errorf("%w: strategy.name: unrecognized strategy %q", apperrors.ErrValidation, sc.Name)
	}
}

// BuildBacktestRequest combines bc's own fields with series to produce a
// backtest.Request. series is supplied by the caller (e.g. loaded from a
// candle store) rather than the config file, matching spec.md §1's exclusion
// of persistence formats from this core.
func (c ConfigEnvelope) BuildBacktestRequest(series *quant.Series) (backtest.Request, error) {
	pair, err := parsePair(c.Backtest.Pair)
	if err != nil {
		return backtest.Request{}, err
	}
	strat, err := c.Backtest.Strategy.BuildStrategy()
	if err != nil {
		return backtest.Request{}, err
	}
	initialCapital, err := decimalField("backtest.initial_capital", c.Backtest.InitialCapital)
	if err != nil {
		return backtest.Request{}, err
	}
	commission, err := decimalField("backtest.commission_rate", c.Backtest.CommissionRate)
	if err != nil {
		return backtest.Request{}, err
	}
	slippage, err := decimalField("backtest.slippage_pct", c.Backtest.SlippagePct)
	if err != nil {
		return backtest.Request{}, err
	}

	return backtest.Request{
		Pair: pair, Series: series, Strategy: strat, InitialCapital: initialCapital,
		CommissionRate: commission, SlippagePct: slippage, Annualization: c.Backtest.Annualization,
	}, nil
}
