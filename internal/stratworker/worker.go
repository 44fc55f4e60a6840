// Package stratworker runs a live strategy.Strategy against an
// exchange.Client tick by tick (spec.md §4.2's runtime binding and §3's
// StrategyWorkerState): a candle feed cursor advances one bar at a time,
// EntrySignal/ExitSignal drive market submissions gated by the risk module,
// and the worker's state is read through Snapshot, a copy taken under the
// worker's read lock, mirroring internal/grid's worker shape.
package stratworker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DaviRain-Su/zigquant-core/internal/exchange"
	"github.com/DaviRain-Su/zigquant-core/internal/ids"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/internal/strategy"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
	"github.com/DaviRain-Su/zigquant-core/pkg/logging"
)

// Status is a node in the strategy worker's lifecycle, the same partition
// grid.Status uses (spec.md §3).
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
	StatusFailed       Status = "failed"
)

// RiskGate is the capability consulted before every order submission,
// identical in shape to grid.RiskGate so both worker kinds share one
// risk.Gate implementation.
type RiskGate interface {
	CheckSubmission(ctx context.Context, source string, pair quant.TradingPair, dailyRealizedPnL, dayStartEquity quant.Decimal) error
}

// AlertEmitter is the capability used to raise a critical alert when the
// worker transitions to failed, identical in shape to grid.AlertEmitter so
// both worker kinds share one risk.Queue-backed implementation.
type AlertEmitter interface {
	EmitCritical(source, title, message string)
}

// defaultCheckInterval is used when a worker's Config.CheckInterval is not
// set, so the steady-state Tick loop always has a finite cadence.
const defaultCheckInterval = time.Second

// Config is a strategy worker's static configuration.
type Config struct {
	Pair          quant.TradingPair
	Strategy      strategy.Strategy
	OrderSize     quant.Decimal
	CheckInterval time.Duration
	RiskEnabled   bool
}

// Snapshot is the state copy external readers observe (spec.md §5).
type Snapshot struct {
	ID                   string
	Status               Status
	LastSignal           *quant.Signal
	Position             quant.Position
	RealizedPnL          quant.Decimal
	TotalTrades          int
	OrdersRejectedByRisk int
}

// Worker runs one strategy live against a candle feed and an exchange
// client (spec.md §4.2/§4.7).
type Worker struct {
	ID     string
	Config Config

	client   exchange.Client
	feed     quant.CandleFeed
	riskGate RiskGate
	alerts   AlertEmitter
	logger   logging.Logger

	runCtx    context.Context
	cancelRun context.CancelFunc
	loopDone  chan struct{}

	mu             sync.RWMutex
	status         Status
	series         *quant.Series
	position       quant.Position
	dayStartEquity quant.Decimal
	realizedPnL    quant.Decimal
	lastSignal     *quant.Signal
	totalTrades    int
	ordersRejectedByRisk int
	openOrderID    string
	pendingClientOrderID string
	seenFills      map[string]bool
}

// NewWorker constructs an initializing strategy worker over feed and
// subscribes it to the client's order-update stream, so exchange fills
// drive OnFill automatically — exactly once per order, same as
// internal/grid's worker (spec.md §5's fill-ordering/dedup guarantee).
// Initialize and PopulateIndicators on cfg.Strategy are the caller's
// responsibility (same as backtest.Run) before the first Tick. Start spawns
// the worker's own check_interval loop (spec.md §5: "each strategy worker
// owns one logical execution context") that drives Tick independently of
// whatever goroutine called Start.
func NewWorker(cfg Config, client exchange.Client, feed quant.CandleFeed, riskGate RiskGate, alerts AlertEmitter, logger logging.Logger) *Worker {
	w := &Worker{
		ID: ids.NewStrategyID(), Config: cfg, client: client, feed: feed,
		riskGate: riskGate, alerts: alerts, logger: logger, status: StatusInitializing,
		series: quant.NewSeries(nil), seenFills: make(map[string]bool),
	}
	client.SubscribeOrderUpdates(w.handleOrderUpdate)
	return w
}

// handleOrderUpdate is the exchange.OrderUpdateCallback driving OnFill: a
// newly filled order this worker itself submitted triggers OnFill exactly
// once. Matched by ClientOrderID, assigned before SubmitOrder is called,
// because a paper/simulated exchange may fill a market order synchronously
// inside SubmitOrder — before it has returned the exchange-assigned id.
func (w *Worker) handleOrderUpdate(order *quant.Order) {
	if order.Status != quant.StatusFilled || order.AvgFillPrice == nil {
		return
	}
	w.mu.Lock()
	owned := order.ClientOrderID != "" && order.ClientOrderID == w.pendingClientOrderID
	if !owned || w.seenFills[order.ExchangeOrderID] {
		w.mu.Unlock()
		return
	}
	w.seenFills[order.ExchangeOrderID] = true
	w.pendingClientOrderID = ""
	w.openOrderID = ""
	w.mu.Unlock()

	w.OnFill(order.Side, *order.AvgFillPrice, order.FilledQuantity)
}

// Start initializes the bound strategy, transitions to running, and
// launches the worker's own check_interval tick loop.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Config.Strategy.Initialize(strategy.Context{Pair: w.Config.Pair, Logger: w.logger}); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	w.status = StatusRunning
	w.runCtx = runCtx
	w.cancelRun = cancel
	w.loopDone = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop()
	return nil
}

// runLoop is the worker's check_interval steady-state loop (spec.md §5):
// once per tick it calls Tick on the worker's own execution context,
// independent of whatever goroutine originally called Start.
func (w *Worker) runLoop() {
	w.mu.RLock()
	runCtx, done := w.runCtx, w.loopDone
	w.mu.RUnlock()
	defer close(done)

	interval := w.Config.CheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			if err := w.Tick(runCtx); err != nil {
				w.logger.Warn("strategy tick failed", "strategy_id", w.ID, "error", err)
			}
		}
	}
}

// Tick advances the worker by exactly one candle: it pulls the next bar
// from the feed, extends the held series, evaluates the strategy's
// exit-then-entry contract (an open position checks ExitSignal first; a
// flat worker checks EntrySignal), and submits at most one order.
func (w *Worker) Tick(ctx context.Context) error {
	w.mu.Lock()
	if w.status != StatusRunning {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	candle, ok := w.feed.Next()
	if !ok {
		return nil
	}

	w.mu.Lock()
	w.series.Append(candle)
	if err := w.Config.Strategy.PopulateIndicators(w.series); err != nil {
		w.mu.Unlock()
		return err
	}
	index := w.series.Len() - 1
	position := w.position
	w.mu.Unlock()

	if !position.IsFlat() {
		sig, err := w.Config.Strategy.ExitSignal(w.series, position)
		if err != nil {
			return err
		}
		if sig != nil {
			return w.submit(ctx, sig, position.Size.Abs())
		}
		return nil
	}

	sig, err := w.Config.Strategy.EntrySignal(w.series, index)
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientHistory) {
			return nil
		}
		return err
	}
	if sig == nil {
		return nil
	}

	balances, err := w.client.GetBalance(ctx)
	if err != nil {
		return err
	}
	quoteBalance := balanceOf(balances, w.Config.Pair.Quote)
	qty, err := w.Config.Strategy.PositionSize(*sig, quoteBalance)
	if err != nil {
		return err
	}
	if !qty.IsPositive() {
		return nil
	}
	return w.submit(ctx, sig, qty)
}

func balanceOf(balances []exchange.Balance, asset string) quant.Decimal {
	for _, b := range balances {
		if b.Asset == asset {
			return b.Free
		}
	}
	return quant.Zero
}

// submit risk-gates and places a market order for sig, tracking the
// resulting position. Strategy orders execute at market since spec.md §4.2
// only specifies signal side/price/strength, not a resting limit price.
func (w *Worker) submit(ctx context.Context, sig *quant.Signal, qty quant.Decimal) error {
	if w.Config.RiskEnabled {
		w.mu.RLock()
		realized, dayStart := w.realizedPnL, w.dayStartEquity
		w.mu.RUnlock()
		if err := w.riskGate.CheckSubmission(ctx, w.ID, w.Config.Pair, realized, dayStart); err != nil {
			w.mu.Lock()
			w.ordersRejectedByRisk++
			w.mu.Unlock()
			return err
		}
	}

	cid := ids.NewClientOrderID()
	w.mu.Lock()
	w.pendingClientOrderID = cid
	w.mu.Unlock()

	order, err := w.client.SubmitOrder(ctx, exchange.OrderRequest{
		Pair: w.Config.Pair, Side: sig.Side, Type: quant.OrderTypeMarket,
		TIF: quant.TIFIOC, Quantity: qty, ClientOrderID: cid,
	})
	if err != nil {
		w.mu.Lock()
		w.pendingClientOrderID = ""
		w.mu.Unlock()
		if errors.Is(err, apperrors.ErrExchangePermanent) {
			w.failWithAlert(fmt.Sprintf("order submission permanently failed: %v", err))
		}
		return err
	}

	w.mu.Lock()
	w.lastSignal = sig
	// A synchronous paper-exchange fill may already have cleared
	// pendingClientOrderID and applied the fill by the time SubmitOrder
	// returns; only record openOrderID if that has not happened.
	if w.pendingClientOrderID == cid {
		w.openOrderID = order.ExchangeOrderID
	}
	w.mu.Unlock()
	return nil
}

// OnFill applies a fill from the exchange's order-update stream to the held
// position, realizing PnL on a fill that closes or reverses it.
func (w *Worker) OnFill(side quant.OrderSide, fillPrice, qty quant.Decimal) {
	w.mu.Lock()
	defer w.mu.Unlock()

	signed := qty
	if side == quant.SideSell {
		signed = signed.Neg()
	}

	if w.position.IsFlat() {
		w.position = quant.Position{Pair: w.Config.Pair, Size: signed, Entry: fillPrice, OpenedAt: quant.Now()}
		return
	}

	closing := (w.position.IsLong() && side == quant.SideSell) || (w.position.IsShort() && side == quant.SideBuy)
	if closing {
		matched := w.position.Size.Abs()
		if qty.LessThan(matched) {
			matched = qty
		}
		var pnl quant.Decimal
		if side == quant.SideSell {
			pnl = fillPrice.Sub(w.position.Entry).Mul(matched)
		} else {
			pnl = w.position.Entry.Sub(fillPrice).Mul(matched)
		}
		w.realizedPnL = w.realizedPnL.Add(pnl)
		w.totalTrades++
		w.position.Size = w.position.Size.Add(signed)
		if w.position.Size.IsZero() {
			w.position = quant.Position{}
		}
		return
	}

	// Same-direction fill: extends the position at a quantity-weighted
	// average entry price.
	newSize := w.position.Size.Add(signed)
	notional := w.position.Entry.Mul(w.position.Size.Abs()).Add(fillPrice.Mul(qty))
	w.position.Entry = notional.Div(newSize.Abs())
	w.position.Size = newSize
}

// Pause freezes ticking; existing position and open order are left as-is.
func (w *Worker) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusRunning {
		w.status = StatusPaused
	}
}

// Resume returns to ticking.
func (w *Worker) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusPaused {
		w.status = StatusRunning
	}
}

// Fail transitions the worker to failed.
func (w *Worker) Fail(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = StatusFailed
	w.logger.Error("strategy worker failed", "strategy_id", w.ID, "reason", reason)
}

// failWithAlert fails the worker and raises the critical alert spec.md §4.4
// requires alongside the transition to failed, via the AlertEmitter supplied
// at construction.
func (w *Worker) failWithAlert(reason string) {
	w.Fail(reason)
	if w.alerts != nil {
		w.alerts.EmitCritical(w.ID, "strategy worker failed", reason)
	}
}

// Stop cancels the worker's one open order, if any, within a 10s deadline,
// and transitions to stopped regardless of outcome.
func (w *Worker) Stop(ctx context.Context, cancelOrders bool) (int, error) {
	w.mu.Lock()
	w.status = StatusStopping
	orderID := w.openOrderID
	cancelRun, loopDone := w.cancelRun, w.loopDone
	w.mu.Unlock()

	if cancelRun != nil {
		cancelRun()
		select {
		case <-loopDone:
		case <-time.After(5 * time.Second):
			w.logger.Warn("strategy stop: tick loop did not exit within deadline", "strategy_id", w.ID)
		}
	}

	cancelled := 0
	if cancelOrders && orderID != "" {
		cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := w.client.CancelOrder(cancelCtx, orderID); err != nil {
			w.logger.Warn("strategy stop: order could not be cancelled", "strategy_id", w.ID, "order_id", orderID, "error", err)
		} else {
			cancelled++
		}
	}

	w.mu.Lock()
	w.status = StatusStopped
	w.mu.Unlock()
	return cancelled, nil
}

// Snapshot copies the worker's current state under its read lock for
// external readers (spec.md §5). It waits while the worker holds the write
// lock; the read is not lock-free.
func (w *Worker) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Snapshot{
		ID: w.ID, Status: w.status, LastSignal: w.lastSignal, Position: w.position,
		RealizedPnL: w.realizedPnL, TotalTrades: w.totalTrades,
		OrdersRejectedByRisk: w.ordersRejectedByRisk,
	}
}

// CurrentStatus reports the worker's current status.
func (w *Worker) CurrentStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}
