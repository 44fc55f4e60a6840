package grid

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DaviRain-Su/zigquant-core/internal/exchange"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
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
	return quant.Level{Price: quant.NewFromFloat(price), Size: quant.NewFromFloat(10)}
}

// noopGate never rejects; used where risk gating is not under test.
type noopGate struct{}

func (noopGate) CheckSubmission(context.Context, string, quant.TradingPair, quant.Decimal, quant.Decimal) error {
	return nil
}

// TestGridReplacementScenario mirrors spec scenario #1: upper=100, lower=90,
// grid_count=11, order_size=1, take_profit_pct=0.01, mid=95 places 5 buys at
// {90..94} and 5 sells at {96..100} (95 itself is skipped as equal to mid).
// A fill of buy@94 replaces with sell@94.94; a fill of sell@96 replaces with
// buy@95.04. Closing both round trips realizes PnL of 1.90.
func TestGridReplacementScenario(t *testing.T) {
	client := exchange.NewPaperExchange(nil)
	client.SetQuote(pair(), lvl(94.99), lvl(95.01))

	cfg := Config{
		Pair: pair(), Lower: quant.NewFromFloat(90), Upper: quant.NewFromFloat(100),
		GridCount: 11, OrderSize: quant.NewFromFloat(1), TakeProfitPct: quant.NewFromFloat(0.01),
		CheckInterval: time.Second, Mode: ModePaper,
	}
	w := NewWorker(cfg, client, noopGate{}, nil, testLogger(t))
	require.NoError(t, w.Start(context.Background()))
	require.Equal(t, StatusRunning, w.CurrentStatus())

	buyLevels := []int{0, 1, 2, 3, 4}
	sellLevels := []int{6, 7, 8, 9, 10}
	for _, l := range buyLevels {
		_, ok := w.OrderAtLevel(l)
		require.True(t, ok, "expected a resting buy at level %d", l)
	}
	for _, l := range sellLevels {
		_, ok := w.OrderAtLevel(l)
		require.True(t, ok, "expected a resting sell at level %d", l)
	}
	_, midPlaced := w.OrderAtLevel(5)
	require.False(t, midPlaced, "must not place an order at the level equal to mid")

	// Fill buy@94 (level 4): replaces with sell@94.94.
	buyOrderID, ok := w.OrderAtLevel(4)
	require.True(t, ok)
	require.NoError(t, w.OnFill(context.Background(), buyOrderID, quant.SideBuy, 4,
		quant.NewFromFloat(94), quant.NewFromFloat(1)))

	replacementID, ok := w.OrderAtLevel(4)
	require.True(t, ok)
	require.NotEqual(t, buyOrderID, replacementID)

	// Fill sell@96 (level 6): replaces with buy@95.04.
	sellOrderID, ok := w.OrderAtLevel(6)
	require.True(t, ok)
	require.NoError(t, w.OnFill(context.Background(), sellOrderID, quant.SideSell, 6,
		quant.NewFromFloat(96), quant.NewFromFloat(1)))

	// Close the round trip at level 4: the replacement sell@94.94 fills.
	require.NoError(t, w.OnFill(context.Background(), replacementID, quant.SideSell, 4,
		quant.NewFromFloat(94.94), quant.NewFromFloat(1)))

	// Close the round trip at level 6: the replacement buy@95.04 fills.
	buyReplacementID, ok := w.OrderAtLevel(6)
	require.True(t, ok)
	require.NoError(t, w.OnFill(context.Background(), buyReplacementID, quant.SideBuy, 6,
		quant.NewFromFloat(95.04), quant.NewFromFloat(1)))

	snap := w.Snapshot()
	require.True(t, snap.RealizedPnL.Equal(quant.NewFromFloat(1.90)), "expected realized pnl 1.90, got %s", snap.RealizedPnL)
	require.Equal(t, 4, snap.TotalTrades)
	require.True(t, snap.Position.IsZero())
}

// TestGridMaxPositionSuppression exercises magnitudeSuppressedLocked
// directly: a replacement that would grow an already-at-max position is
// suppressed, while one that reduces it, or a position still under budget,
// is not.
func TestGridMaxPositionSuppression(t *testing.T) {
	w := &Worker{Config: Config{MaxPosition: quant.NewFromFloat(1)}}

	w.position = quant.NewFromFloat(1)
	require.True(t, w.magnitudeSuppressedLocked(quant.SideBuy), "growing an at-max long must be suppressed")
	require.False(t, w.magnitudeSuppressedLocked(quant.SideSell), "reducing a long must never be suppressed")

	w.position = quant.NewFromFloat(-1)
	require.True(t, w.magnitudeSuppressedLocked(quant.SideSell), "growing an at-max short must be suppressed")
	require.False(t, w.magnitudeSuppressedLocked(quant.SideBuy), "reducing a short must never be suppressed")

	w.position = quant.NewFromFloat(0.5)
	require.False(t, w.magnitudeSuppressedLocked(quant.SideBuy), "position under budget must not be suppressed")
}

// TestGridReplacementSuppressedAtMaxPosition drives the full OnFill path:
// two sell fills (levels 6 and 7, unrelated lots) push the net position to
// -2 against MaxPosition=1. A third, unrelated buy fill (level 3) only
// partially offsets that short, leaving position at -1 — still at budget —
// so its own sell-side replacement, which would grow the short further, is
// suppressed and the level is left empty.
func TestGridReplacementSuppressedAtMaxPosition(t *testing.T) {
	client := exchange.NewPaperExchange(nil)
	client.SetQuote(pair(), lvl(94.99), lvl(95.01))

	cfg := Config{
		Pair: pair(), Lower: quant.NewFromFloat(90), Upper: quant.NewFromFloat(100),
		GridCount: 11, OrderSize: quant.NewFromFloat(1), TakeProfitPct: quant.NewFromFloat(0.01),
		MaxPosition: quant.NewFromFloat(1), CheckInterval: time.Second, Mode: ModePaper,
	}
	w := NewWorker(cfg, client, noopGate{}, nil, testLogger(t))
	require.NoError(t, w.Start(context.Background()))

	sell6, ok := w.OrderAtLevel(6)
	require.True(t, ok)
	require.NoError(t, w.OnFill(context.Background(), sell6, quant.SideSell, 6,
		quant.NewFromFloat(96), quant.NewFromFloat(1)))

	sell7, ok := w.OrderAtLevel(7)
	require.True(t, ok)
	require.NoError(t, w.OnFill(context.Background(), sell7, quant.SideSell, 7,
		quant.NewFromFloat(97), quant.NewFromFloat(1)))
	require.True(t, w.Snapshot().Position.Equal(quant.NewFromFloat(-2)))

	buy3, ok := w.OrderAtLevel(3)
	require.True(t, ok)
	require.NoError(t, w.OnFill(context.Background(), buy3, quant.SideBuy, 3,
		quant.NewFromFloat(93), quant.NewFromFloat(1)))
	require.True(t, w.Snapshot().Position.Equal(quant.NewFromFloat(-1)))

	_, replaced := w.OrderAtLevel(3)
	require.False(t, replaced, "sell-side replacement growing an at-max short must be suppressed")
}

func TestGridPauseStopsFillReplacement(t *testing.T) {
	client := exchange.NewPaperExchange(nil)
	client.SetQuote(pair(), lvl(94.99), lvl(95.01))

	cfg := Config{
		Pair: pair(), Lower: quant.NewFromFloat(90), Upper: quant.NewFromFloat(100),
		GridCount: 11, OrderSize: quant.NewFromFloat(1), TakeProfitPct: quant.NewFromFloat(0.01),
		CheckInterval: time.Second, Mode: ModePaper,
	}
	w := NewWorker(cfg, client, noopGate{}, nil, testLogger(t))
	require.NoError(t, w.Start(context.Background()))
	w.Pause()

	buyOrderID, ok := w.OrderAtLevel(4)
	require.True(t, ok)
	require.NoError(t, w.OnFill(context.Background(), buyOrderID, quant.SideBuy, 4,
		quant.NewFromFloat(94), quant.NewFromFloat(1)))

	_, stillThere := w.OrderAtLevel(4)
	require.True(t, stillThere, "paused worker must not process the fill")

	w.Resume()
	require.NoError(t, w.OnFill(context.Background(), buyOrderID, quant.SideBuy, 4,
		quant.NewFromFloat(94), quant.NewFromFloat(1)))
	_, replaced := w.OrderAtLevel(4)
	require.True(t, replaced)
}

// failingSubmitClient wraps a PaperExchange and fails every SubmitOrder with
// a permanent exchange error, simulating a persistent authentication or
// conformance rejection.
type failingSubmitClient struct {
	*exchange.PaperExchange
}

func (failingSubmitClient) SubmitOrder(context.Context, exchange.OrderRequest) (*quant.Order, error) {
	return nil, fmt.Errorf("%w: %v", apperrors.ErrExchangePermanent, apperrors.ErrAuthenticationFailed)
}

// captureAlertEmitter records every EmitCritical call for assertion.
type captureAlertEmitter struct {
	mu     sync.Mutex
	titles []string
}

func (c *captureAlertEmitter) EmitCritical(_, title, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles = append(c.titles, title)
}

func (c *captureAlertEmitter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.titles)
}

// TestGridFailEscalatesCriticalAlert drives a permanent submission failure
// through Start and asserts the worker transitions to failed and raises a
// critical alert, rather than silently logging the rejected placement.
func TestGridFailEscalatesCriticalAlert(t *testing.T) {
	inner := exchange.NewPaperExchange(nil)
	inner.SetQuote(pair(), lvl(94.99), lvl(95.01))
	client := failingSubmitClient{inner}

	cfg := Config{
		Pair: pair(), Lower: quant.NewFromFloat(90), Upper: quant.NewFromFloat(100),
		GridCount: 11, OrderSize: quant.NewFromFloat(1), TakeProfitPct: quant.NewFromFloat(0.01),
		CheckInterval: time.Second, Mode: ModePaper,
	}
	alerts := &captureAlertEmitter{}
	w := NewWorker(cfg, client, noopGate{}, alerts, testLogger(t))
	require.NoError(t, w.Start(context.Background()))

	require.Equal(t, StatusFailed, w.CurrentStatus())
	require.GreaterOrEqual(t, alerts.count(), 1, "expected at least one critical alert on permanent submission failure")
}

func TestGridStopCancelsRestingOrders(t *testing.T) {
	client := exchange.NewPaperExchange(nil)
	client.SetQuote(pair(), lvl(94.99), lvl(95.01))

	cfg := Config{
		Pair: pair(), Lower: quant.NewFromFloat(90), Upper: quant.NewFromFloat(100),
		GridCount: 11, OrderSize: quant.NewFromFloat(1), TakeProfitPct: quant.NewFromFloat(0.01),
		CheckInterval: time.Second, Mode: ModePaper,
	}
	w := NewWorker(cfg, client, noopGate{}, nil, testLogger(t))
	require.NoError(t, w.Start(context.Background()))

	cancelled, err := w.Stop(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 10, cancelled)
	require.Equal(t, StatusStopped, w.CurrentStatus())
}
