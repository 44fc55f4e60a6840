package stratworker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DaviRain-Su/zigquant-core/internal/exchange"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
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
	return quant.Level{Price: quant.NewFromFloat(price), Size: quant.NewFromFloat(10)}
}

// oneShotStrategy enters long on the first flat tick and exits on the very
// next tick it is consulted while holding a position; used to exercise one
// full round trip deterministically.
type oneShotStrategy struct {
	entered bool
}

func (s *oneShotStrategy) Initialize(strategy.Context) error      { return nil }
func (s *oneShotStrategy) PopulateIndicators(*quant.Series) error { return nil }
func (s *oneShotStrategy) Parameters() map[string]quant.Decimal   { return nil }
func (s *oneShotStrategy) Metadata() strategy.Metadata {
	return strategy.Metadata{Name: "one_shot", StartupCandleCount: 0}
}

func (s *oneShotStrategy) EntrySignal(series *quant.Series, index int) (*quant.Signal, error) {
	if s.entered {
		return nil, nil
	}
	s.entered = true
	return &quant.Signal{Type: quant.SignalEntryLong, Side: quant.SideBuy, Price: series.At(index).Close}, nil
}

func (s *oneShotStrategy) ExitSignal(series *quant.Series, position quant.Position) (*quant.Signal, error) {
	return &quant.Signal{Type: quant.SignalExitLong, Side: quant.SideSell}, nil
}

func (s *oneShotStrategy) PositionSize(quant.Signal, quant.Decimal) (quant.Decimal, error) {
	return quant.NewFromFloat(1), nil
}

func candleFeedAt(prices ...float64) quant.CandleFeed {
	candles := make([]quant.Candle, len(prices))
	for i, p := range prices {
		price := quant.NewFromFloat(p)
		candles[i] = quant.Candle{
			Timestamp: quant.Timestamp{UnixMilli: int64(i) * 60_000},
			Open: price, High: price, Low: price, Close: price,
			Volume: quant.NewFromFloat(1),
		}
	}
	return quant.NewSliceFeed(candles)
}

type noopGate struct{}

func (noopGate) CheckSubmission(context.Context, string, quant.TradingPair, quant.Decimal, quant.Decimal) error {
	return nil
}

// TestStrategyWorkerRoundTrip drives two ticks: the first enters long at
// market (filled synchronously by the paper exchange), the second exits,
// realizing PnL from the price move between the two candles.
func TestStrategyWorkerRoundTrip(t *testing.T) {
	client := exchange.NewPaperExchange([]exchange.Balance{{Asset: "USDT", Free: quant.NewFromFloat(10000)}})
	client.SetQuote(pair(), lvl(99.9), lvl(100.1))

	cfg := Config{Pair: pair(), Strategy: &oneShotStrategy{}, OrderSize: quant.NewFromFloat(1), CheckInterval: time.Second}
	w := NewWorker(cfg, client, candleFeedAt(100, 110), noopGate{}, nil, testLogger(t))
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, w.Tick(context.Background()))
	snap := w.Snapshot()
	require.True(t, snap.Position.IsLong(), "expected an open long after the entry tick")

	client.SetQuote(pair(), lvl(109.9), lvl(110.1))
	require.NoError(t, w.Tick(context.Background()))

	snap = w.Snapshot()
	require.True(t, snap.Position.IsFlat(), "expected the position closed on the exit tick")
	require.Equal(t, 1, snap.TotalTrades)
	require.True(t, snap.RealizedPnL.IsPositive(), "expected a profitable round trip, got %s", snap.RealizedPnL)
}

// TestStrategyWorkerPauseSkipsTick verifies a paused worker does not
// consult the strategy or submit orders.
func TestStrategyWorkerPauseSkipsTick(t *testing.T) {
	client := exchange.NewPaperExchange([]exchange.Balance{{Asset: "USDT", Free: quant.NewFromFloat(10000)}})
	client.SetQuote(pair(), lvl(99.9), lvl(100.1))

	cfg := Config{Pair: pair(), Strategy: &oneShotStrategy{}, OrderSize: quant.NewFromFloat(1), CheckInterval: time.Second}
	w := NewWorker(cfg, client, candleFeedAt(100, 110), noopGate{}, nil, testLogger(t))
	require.NoError(t, w.Start(context.Background()))
	w.Pause()

	require.NoError(t, w.Tick(context.Background()))
	require.True(t, w.Snapshot().Position.IsFlat(), "a paused worker must not open a position")
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

// TestStrategyWorkerFailEscalatesCriticalAlert drives a permanent submission
// failure through Tick and asserts Tick returns the permanent error, the
// worker transitions to failed and raises a critical alert.
func TestStrategyWorkerFailEscalatesCriticalAlert(t *testing.T) {
	inner := exchange.NewPaperExchange([]exchange.Balance{{Asset: "USDT", Free: quant.NewFromFloat(10000)}})
	inner.SetQuote(pair(), lvl(99.9), lvl(100.1))
	client := failingSubmitClient{inner}

	cfg := Config{Pair: pair(), Strategy: &oneShotStrategy{}, OrderSize: quant.NewFromFloat(1), CheckInterval: time.Second}
	alerts := &captureAlertEmitter{}
	w := NewWorker(cfg, client, candleFeedAt(100, 110), noopGate{}, alerts, testLogger(t))
	require.NoError(t, w.Start(context.Background()))

	require.ErrorIs(t, w.Tick(context.Background()), apperrors.ErrExchangePermanent)

	require.Equal(t, StatusFailed, w.CurrentStatus())
	require.GreaterOrEqual(t, alerts.count(), 1, "expected at least one critical alert on permanent submission failure")
}

// TestStrategyWorkerStopWithNoOpenOrder exercises Stop against a worker
// with no resting order (the round trip above fills immediately), which
// must still transition cleanly to stopped.
func TestStrategyWorkerStopWithNoOpenOrder(t *testing.T) {
	client := exchange.NewPaperExchange([]exchange.Balance{{Asset: "USDT", Free: quant.NewFromFloat(10000)}})
	client.SetQuote(pair(), lvl(99.9), lvl(100.1))

	cfg := Config{Pair: pair(), Strategy: &oneShotStrategy{}, OrderSize: quant.NewFromFloat(1), CheckInterval: time.Second}
	w := NewWorker(cfg, client, candleFeedAt(100), noopGate{}, nil, testLogger(t))
	require.NoError(t, w.Start(context.Background()))

	cancelled, err := w.Stop(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, 0, cancelled)
	require.Equal(t, StatusStopped, w.CurrentStatus())
}
