package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DaviRain-Su/zigquant-core/internal/backtest"
	"github.com/DaviRain-Su/zigquant-core/internal/exchange"
	"github.com/DaviRain-Su/zigquant-core/internal/grid"
	"github.com/DaviRain-Su/zigquant-core/internal/indicators"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/internal/risk"
	"github.com/DaviRain-Su/zigquant-core/internal/strategy"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
	"github.com/DaviRain-Su/zigquant-core/pkg/logging"
)

func testLogger(t *testing.T) logging.Logger {
	t.Helper()
	l, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return l
}

func pair() quant.TradingPair {
	return quant.TradingPair{Base: "BTC", Quote: "USDT"}
}

func lvl(price float64) quant.Level {
	return quant.Level{Price: quant.NewFromFloat(price), Size: quant.NewFromFloat(50)}
}

func newTestManager(t *testing.T) (*Manager, *exchange.PaperExchange) {
	t.Helper()
	client := exchange.NewPaperExchange([]exchange.Balance{{Asset: "USDT", Free: quant.NewFromFloat(1_000_000)}})
	client.SetQuote(pair(), lvl(99.9), lvl(100.1))

	killSwitch := risk.NewKillSwitch()
	alerts := risk.NewQueue(64)
	riskGate := risk.NewGate(killSwitch, quant.NewFromFloat(0.1), alerts)
	pool := backtest.NewPool(2, 8, testLogger(t))
	t.Cleanup(pool.Stop)

	return New(client, killSwitch, riskGate, alerts, pool, testLogger(t)), client
}

func gridConfig() grid.Config {
	return grid.Config{
		Pair: pair(), Lower: quant.NewFromFloat(95), Upper: quant.NewFromFloat(105),
		GridCount: 5, OrderSize: quant.NewFromFloat(1), TakeProfitPct: quant.NewFromFloat(0.01),
		MaxPosition: quant.NewFromFloat(10), CheckInterval: time.Second, Mode: grid.ModePaper,
	}
}

func TestManagerStartGridDuplicateID(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartGrid(ctx, "g1", gridConfig()))
	err := m.StartGrid(ctx, "g1", gridConfig())
	require.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestManagerGridLifecycle(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartGrid(ctx, "g1", gridConfig()))

	status, err := m.GetGridStatus("g1")
	require.NoError(t, err)
	require.Equal(t, grid.StatusRunning, status)

	require.NoError(t, m.PauseGrid("g1"))
	status, err = m.GetGridStatus("g1")
	require.NoError(t, err)
	require.Equal(t, grid.StatusPaused, status)

	require.NoError(t, m.ResumeGrid("g1"))

	_, err = m.GetGridStats("g1")
	require.NoError(t, err)

	orders, err := m.GetGridOrders("g1")
	require.NoError(t, err)
	require.NotEmpty(t, orders)

	require.Len(t, m.GetAllGridsSummary(), 1)

	cancelled, err := m.StopGrid(ctx, "g1", true)
	require.NoError(t, err)
	require.GreaterOrEqual(t, cancelled, 0)

	_, err = m.GetGridStatus("nonexistent")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestManagerBacktestLifecycle(t *testing.T) {
	m, _ := newTestManager(t)

	candles := make([]quant.Candle, 200)
	price := 100.0
	for i := range candles {
		if i < 100 {
			price += 1
		} else {
			price -= 1
		}
		p := quant.NewFromFloat(price)
		candles[i] = quant.Candle{
			Timestamp: quant.Timestamp{UnixMilli: int64(i) * 60_000},
			Open: p, High: p, Low: p, Close: p, Volume: quant.NewFromFloat(1),
		}
	}
	req := backtest.Request{
		Pair: pair(), Series: quant.NewSeries(candles),
		Strategy:       strategy.NewDualMATrend(indicators.NewIndicatorManager(16), 5, 20, quant.NewFromFloat(0.5), quant.NewFromFloat(0.05)),
		InitialCapital: quant.NewFromFloat(10000), CommissionRate: quant.NewFromFloat(0.001),
		SlippagePct: quant.NewFromFloat(0.0005), Annualization: 365,
	}

	require.NoError(t, m.StartBacktest("bt1", req))
	err := m.StartBacktest("bt1", req)
	require.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	require.Eventually(t, func() bool {
		progress, err := m.GetBacktestProgress("bt1")
		return err == nil && progress >= 0
	}, time.Second, time.Millisecond)

	var result backtest.Result
	require.Eventually(t, func() bool {
		r, err := m.GetBacktestResult("bt1")
		if err != nil {
			return false
		}
		result = r
		return true
	}, 2*time.Second, 5*time.Millisecond)
	require.NotEmpty(t, result.Trades)
}

// TestKillSwitchPropagation exercises spec.md scenario #5: activating the
// kill switch stops every running grid and strategy, and a subsequent start
// attempt is refused until an explicit deactivation.
func TestKillSwitchPropagation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.StartGrid(ctx, "A", gridConfig()))
	require.NoError(t, m.StartGrid(ctx, "B", gridConfig()))

	report, err := m.ActivateKillSwitch(ctx, "manual trip", true, false)
	require.NoError(t, err)
	require.Equal(t, 2, report.GridsStopped)

	statusA, err := m.GetGridStatus("A")
	require.NoError(t, err)
	require.Equal(t, grid.StatusStopped, statusA)

	health := m.GetSystemHealth()
	require.Equal(t, HealthEmergency, health.Status)
	require.True(t, health.KillSwitchActive)
	require.Equal(t, "manual trip", health.KillSwitchReason)

	err = m.StartGrid(ctx, "C", gridConfig())
	require.ErrorIs(t, err, apperrors.ErrKillSwitchActive)

	m.DeactivateKillSwitch()
	require.NoError(t, m.StartGrid(ctx, "C", gridConfig()))
}

func TestSystemHealthHealthyWhenEmpty(t *testing.T) {
	m, _ := newTestManager(t)
	health := m.GetSystemHealth()
	require.Equal(t, HealthHealthy, health.Status)
	require.Equal(t, 0, health.RunningGrids)
	require.Equal(t, 0, health.RunningStrategies)
	require.False(t, health.KillSwitchActive)
}
