package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DaviRain-Su/zigquant-core/internal/grid"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	yaml := []byte(`
grid:
  pair: ETH/USDT
  lower: "1000"
  upper: "2000"
  grid_count: 8
  order_size: "0.1"
`)
	cfg, err := Parse(yaml)
	require.NoError(t, err)
	require.Equal(t, "ETH/USDT", cfg.Grid.Pair)
	require.Equal(t, 8, cfg.Grid.GridCount)
	// untouched fields keep their default
	require.Equal(t, "paper", cfg.Grid.Mode)
	require.Equal(t, 365.0, cfg.Backtest.Annualization)
}

func TestParseRejectsUnknownField(t *testing.T) {
	yaml := []byte(`
grid:
  pair: BTC/USDT
  bogus_field: 1
`)
	_, err := Parse(yaml)
	require.Error(t, err)
}

func TestValidateRejectsBadPair(t *testing.T) {
	cfg := Default()
	cfg.Grid.Pair = "not-a-pair"
	err := cfg.Validate()
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestValidateRejectsUnknownAlertChannel(t *testing.T) {
	cfg := Default()
	cfg.Alerts.Channels = []string{"slack"}
	err := cfg.Validate()
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestBuildGridConfig(t *testing.T) {
	cfg := Default()
	cfg.Grid.Lower = "95"
	cfg.Grid.Upper = "105"
	cfg.Grid.OrderSize = "1"
	cfg.Grid.MaxPosition = "10"

	gc, err := cfg.BuildGridConfig()
	require.NoError(t, err)
	require.Equal(t, "BTC", gc.Pair.Base)
	require.Equal(t, 10, gc.GridCount)
	require.Equal(t, grid.ModePaper, gc.Mode)
	require.True(t, gc.Lower.Equal(quant.NewFromFloat(95)))
}

func TestBuildStrategyUnrecognizedName(t *testing.T) {
	cfg := Default()
	cfg.Strategy.Name = "not_a_real_strategy"
	_, err := cfg.Strategy.BuildStrategy()
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestBuildStrategyDefault(t *testing.T) {
	cfg := Default()
	strat, err := cfg.Strategy.BuildStrategy()
	require.NoError(t, err)
	require.Equal(t, "dual_ma_trend", strat.Metadata().Name)
}

func TestBuildAlertQueueWithRule(t *testing.T) {
	cfg := Default()
	cfg.Alerts.Rules = []AlertRuleConfig{
		{Metric: "daily_realized_pnl", Comparison: "lt", Threshold: "-100", Level: "critical", Title: "daily loss"},
	}
	queue, err := cfg.BuildAlertQueue(16)
	require.NoError(t, err)
	require.NotNil(t, queue)
}

func TestBuildAlertQueueRejectsBadComparison(t *testing.T) {
	cfg := Default()
	cfg.Alerts.Rules = []AlertRuleConfig{
		{Metric: "x", Comparison: "between", Threshold: "1", Level: "warning", Title: "t"},
	}
	_, err := cfg.BuildAlertQueue(16)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}
