// Package grid implements the grid-trading state machine of spec.md §4.4:
// a worker that places equally spaced price levels inside [lower, upper],
// replaces a filled order with an opposite-side take-profit order whose
// realized PnL is matched against that same level's own open lot, consults
// the risk module before every submission, and tears down on
// stop/pause/failure per the spec's cancellation and backoff rules.
package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DaviRain-Su/zigquant-core/internal/exchange"
	"github.com/DaviRain-Su/zigquant-core/internal/ids"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
	"github.com/DaviRain-Su/zigquant-core/pkg/logging"
)

// Mode names the environment a grid worker trades against.
type Mode string

const (
	ModePaper   Mode = "paper"
	ModeTestnet Mode = "testnet"
	ModeMainnet Mode = "mainnet"
)

// Status is a node in the grid worker's lifecycle (spec.md §3).
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
	StatusStopping     Status = "stopping"
	StatusStopped      Status = "stopped"
	StatusFailed       Status = "failed"
)

// Config is a grid worker's static configuration (spec.md §4.4).
type Config struct {
	Pair          quant.TradingPair
	Lower         quant.Decimal
	Upper         quant.Decimal
	GridCount     int
	OrderSize     quant.Decimal
	TakeProfitPct quant.Decimal
	MaxPosition   quant.Decimal
	CheckInterval time.Duration
	Mode          Mode
	RiskEnabled   bool
}

// levelState is one grid price level's current active order, if any.
type levelState struct {
	Price quant.Decimal
	Side  quant.OrderSide
	OrderID string
}

// inventoryLot is the open leg of one grid level's round trip: the side,
// quantity and price of the fill awaiting its opposite-side replacement fill
// to realize PnL against. Lots are tracked per level, not globally, because
// a level's take-profit replacement always closes that same level's own
// entry — not whichever inventory happens to be oldest across the grid.
type inventoryLot struct {
	Side  quant.OrderSide
	Qty   quant.Decimal
	Price quant.Decimal
}

// RiskGate is the capability consulted before every order submission
// (spec.md §4.4 step 3).
type RiskGate interface {
	CheckSubmission(ctx context.Context, source string, pair quant.TradingPair, dailyRealizedPnL, dayStartEquity quant.Decimal) error
}

// AlertEmitter is the capability used to raise a critical alert when the
// worker transitions to failed (spec.md §4.4's "raises a critical alert").
// Kept to this one method, rather than importing internal/risk's Queue
// directly, so this package stays decoupled from the risk package's
// concrete alert types the same way RiskGate decouples it from risk.Gate.
type AlertEmitter interface {
	EmitCritical(source, title, message string)
}

// fillEventQueueSize bounds the per-worker queue of order updates the
// exchange callback enqueues (spec.md §4.4 steady-state loop: "receive from
// an event stream"). A full queue drops the update and logs a warning
// rather than blocking the exchange's callback goroutine.
const fillEventQueueSize = 256

// defaultCheckInterval is used when a worker's Config.CheckInterval is not
// set, so the steady-state loop always has a finite cadence.
const defaultCheckInterval = time.Second

// Snapshot is a copy of the worker's state for external readers (spec.md
// §5). It is taken under the worker's read lock, so the copy is consistent,
// but a reader and a state update in progress wait on each other.
type Snapshot struct {
	ID                   string
	Status               Status
	LastMarketPrice      *quant.Decimal
	RealizedPnL          quant.Decimal
	UnrealizedPnL        quant.Decimal
	TotalTrades          int
	OrdersRejectedByRisk int
	Position             quant.Decimal
}

// Worker is one running grid (spec.md §4.4).
type Worker struct {
	ID     string
	Config Config

	client     exchange.Client
	riskGate   RiskGate
	alerts     AlertEmitter
	logger     logging.Logger
	dayStartEquity quant.Decimal

	fillEvents chan *quant.Order
	runCtx     context.Context
	cancelRun  context.CancelFunc
	loopDone   chan struct{}

	mu         sync.RWMutex
	status     Status
	levels     map[int]*levelState
	orderToLevel map[string]int
	seenFills  map[string]bool
	levelLots  map[int]*inventoryLot
	position   quant.Decimal
	realizedPnL quant.Decimal
	totalTrades int
	ordersRejectedByRisk int
	lastMarketPrice *quant.Decimal
	startedAt   quant.Timestamp
}

// NewWorker constructs an initializing grid worker, subscribes it to the
// client's order update stream so fills drive opposite-side replacement
// automatically, and launches the worker's own check_interval loop (spec.md
// §4.4/§5: "each grid worker owns one logical execution context") that
// drains queued fills and places replacements on that context rather than
// the exchange's own callback goroutine. Call Start to place the initial
// levels.
func NewWorker(cfg Config, client exchange.Client, riskGate RiskGate, alerts AlertEmitter, logger logging.Logger) *Worker {
	runCtx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		ID: ids.NewGridID(), Config: cfg, client: client, riskGate: riskGate, alerts: alerts, logger: logger,
		status: StatusInitializing, levels: make(map[int]*levelState),
		orderToLevel: make(map[string]int), seenFills: make(map[string]bool),
		levelLots: make(map[int]*inventoryLot),
		fillEvents: make(chan *quant.Order, fillEventQueueSize),
		runCtx: runCtx, cancelRun: cancel, loopDone: make(chan struct{}),
	}
	client.SubscribeOrderUpdates(w.enqueueOrderUpdate)
	go w.runLoop()
	return w
}

// enqueueOrderUpdate is the exchange.OrderUpdateCallback. It only enqueues:
// the exchange may invoke it while holding its own internal lock (e.g.
// PaperExchange.fillLocked), so it must never itself call back into the
// exchange client (submit/cancel) or it would re-enter that lock on the
// same goroutine. Processing, including the opposite-side replacement
// submission, happens on runLoop's own goroutine once a tick drains the
// queue.
func (w *Worker) enqueueOrderUpdate(order *quant.Order) {
	select {
	case w.fillEvents <- order:
	default:
		w.logger.Warn("grid fill queue full, dropping order update", "grid_id", w.ID, "order_id", order.ExchangeOrderID)
	}
}

// runLoop is the worker's check_interval steady-state loop (spec.md §4.4:
// "Poll (or receive from an event stream) the set of order updates since
// last tick"): once per tick it drains every order update enqueued since
// the previous tick and processes each on runCtx, independent of whatever
// goroutine originally delivered it.
func (w *Worker) runLoop() {
	defer close(w.loopDone)
	interval := w.Config.CheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.runCtx.Done():
			w.drainFillEvents()
			return
		case <-ticker.C:
			w.drainFillEvents()
		}
	}
}

func (w *Worker) drainFillEvents() {
	for {
		select {
		case order := <-w.fillEvents:
			w.processOrderUpdate(order)
		default:
			return
		}
	}
}

// processOrderUpdate drives fill-based replacement: a newly filled order
// whose level this worker owns triggers OnFill exactly once.
func (w *Worker) processOrderUpdate(order *quant.Order) {
	if order.Status != quant.StatusFilled || order.AvgFillPrice == nil {
		return
	}
	w.mu.Lock()
	level, owned := w.orderToLevel[order.ExchangeOrderID]
	if !owned || w.seenFills[order.ExchangeOrderID] {
		w.mu.Unlock()
		return
	}
	w.seenFills[order.ExchangeOrderID] = true
	w.mu.Unlock()

	if err := w.OnFill(w.runCtx, order.ExchangeOrderID, order.Side, level, *order.AvgFillPrice, order.FilledQuantity); err != nil {
		w.logger.Warn("grid fill handling failed", "grid_id", w.ID, "order_id", order.ExchangeOrderID, "error", err)
	}
}

// levelPrices computes the N equally spaced levels L_0 < ... < L_{N-1}
// inside [lower, upper] (spec.md §4.4 step 2).
func levelPrices(cfg Config) []quant.Decimal {
	n := cfg.GridCount
	if n < 2 {
		return []quant.Decimal{cfg.Lower}
	}
	step := cfg.Upper.Sub(cfg.Lower).Div(quant.NewFromInt(int64(n - 1)))
	out := make([]quant.Decimal, n)
	for i := 0; i < n; i++ {
		out[i] = cfg.Lower.Add(step.Mul(quant.NewFromInt(int64(i))))
	}
	return out
}

// Start queries the current mid price and places the initial buy/sell
// levels around it (spec.md §4.4 initialization).
func (w *Worker) Start(ctx context.Context) error {
	bid, ask, err := w.client.GetBestBidAsk(ctx, w.Config.Pair)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrNoMarketData, err)
	}
	mid := bid.Price.Add(ask.Price).Div(quant.NewFromInt(2))

	w.mu.Lock()
	w.dayStartEquity = w.Config.OrderSize.Mul(mid).Mul(quant.NewFromInt(int64(w.Config.GridCount)))
	w.mu.Unlock()

	for i, price := range levelPrices(w.Config) {
		var side quant.OrderSide
		switch {
		case price.LessThan(mid):
			side = quant.SideBuy
		case price.GreaterThan(mid):
			side = quant.SideSell
		default:
			continue // spec.md: "Do not place at levels equal to the mid."
		}
		if err := w.placeLevel(ctx, i, price, side); err != nil {
			w.logger.Warn("grid initial placement failed", "grid_id", w.ID, "level", i, "error", err)
		}
	}

	w.mu.Lock()
	if w.status == StatusInitializing {
		w.status = StatusRunning
	}
	w.startedAt = quant.Now()
	w.mu.Unlock()
	return nil
}

func (w *Worker) placeLevel(ctx context.Context, level int, price quant.Decimal, side quant.OrderSide) error {
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

	order, err := w.client.SubmitOrder(ctx, exchange.OrderRequest{
		Pair: w.Config.Pair, Side: side, Type: quant.OrderTypeLimit,
		TIF: quant.TIFGTC, Price: &price, Quantity: w.Config.OrderSize,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrExchangePermanent) {
			w.failWithAlert(fmt.Sprintf("order submission permanently failed: %v", err))
		}
		return err
	}

	w.mu.Lock()
	w.levels[level] = &levelState{Price: price, Side: side, OrderID: order.ExchangeOrderID}
	w.orderToLevel[order.ExchangeOrderID] = level
	w.mu.Unlock()
	return nil
}

// clampToBounds returns the nearest in-bound price when price falls outside
// [lower, upper] (spec.md §4.4 step 2 "place at the nearest in-bound
// level").
func (w *Worker) clampToBounds(price quant.Decimal) quant.Decimal {
	if price.GreaterThan(w.Config.Upper) {
		return w.Config.Upper
	}
	if price.LessThan(w.Config.Lower) {
		return w.Config.Lower
	}
	return price
}

// OnFill processes one fill event for orderID at fillPrice/qty: matches it
// against that level's own open lot for realized PnL, updates position, and
// places the opposite-side take-profit replacement (spec.md §4.4 step 2).
func (w *Worker) OnFill(ctx context.Context, orderID string, side quant.OrderSide, filledLevel int, filledPrice, qty quant.Decimal) error {
	w.mu.Lock()
	if w.status == StatusPaused || w.status == StatusStopping || w.status == StatusStopped {
		w.mu.Unlock()
		return nil
	}
	delete(w.levels, filledLevel)
	delete(w.orderToLevel, orderID)
	w.applyFillLocked(filledLevel, side, filledPrice, qty)
	w.totalTrades++

	var takeProfitPrice quant.Decimal
	var replacementSide quant.OrderSide
	if side == quant.SideBuy {
		replacementSide = quant.SideSell
		takeProfitPrice = filledPrice.Mul(quant.NewFromInt(1).Add(w.Config.TakeProfitPct))
	} else {
		replacementSide = quant.SideBuy
		takeProfitPrice = filledPrice.Mul(quant.NewFromInt(1).Sub(w.Config.TakeProfitPct))
	}
	takeProfitPrice = w.clampToBounds(takeProfitPrice)
	suppressed := w.magnitudeSuppressedLocked(replacementSide)
	w.mu.Unlock()

	if suppressed {
		return nil
	}
	return w.placeLevel(ctx, filledLevel, takeProfitPrice, replacementSide)
}

// magnitudeSuppressedLocked reports whether a new order on the replacement
// side would grow |position| while it already sits at or above MaxPosition
// (spec.md §4.4 step 4). An order that reduces |position| is never
// suppressed. Caller must hold w.mu.
func (w *Worker) magnitudeSuppressedLocked(side quant.OrderSide) bool {
	if w.Config.MaxPosition.IsZero() {
		return false
	}
	increasesMagnitude := (w.position.IsPositive() && side == quant.SideBuy) ||
		(w.position.IsNegative() && side == quant.SideSell) ||
		w.position.IsZero()
	return increasesMagnitude && w.position.Abs().GreaterThanOrEqual(w.Config.MaxPosition)
}

// applyFillLocked updates position and matches this fill against level's own
// open lot, if any, to realize PnL: a fill opposite the lot's side closes it
// (realizing PnL at this fill's price against the lot's entry price); any
// other fill opens or replaces the level's lot. Caller must hold w.mu.
func (w *Worker) applyFillLocked(level int, side quant.OrderSide, price, qty quant.Decimal) {
	signed := qty
	if side == quant.SideSell {
		signed = signed.Neg()
	}
	w.position = w.position.Add(signed)

	lot := w.levelLots[level]
	if lot != nil && lot.Side != side {
		matched := lot.Qty
		if qty.LessThan(matched) {
			matched = qty
		}
		var pnl quant.Decimal
		if side == quant.SideSell {
			pnl = price.Sub(lot.Price).Mul(matched) // closing a long lot with this sell
		} else {
			pnl = lot.Price.Sub(price).Mul(matched) // closing a short lot with this buy
		}
		w.realizedPnL = w.realizedPnL.Add(pnl)
		delete(w.levelLots, level)
		return
	}
	w.levelLots[level] = &inventoryLot{Side: side, Qty: qty, Price: price}
}

// Pause freezes new order submission and fill-driven replacement but
// retains existing orders and state (spec.md §4.4).
func (w *Worker) Pause() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusRunning {
		w.status = StatusPaused
	}
}

// Resume returns to the steady-state loop.
func (w *Worker) Resume() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status == StatusPaused {
		w.status = StatusRunning
	}
}

// Fail transitions the worker to failed (spec.md §4.4 "persistent
// authentication or conformance error") and records the reason.
func (w *Worker) Fail(reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = StatusFailed
	w.logger.Error("grid worker failed", "grid_id", w.ID, "reason", reason)
}

// failWithAlert fails the worker and raises the critical alert spec.md §4.4
// requires alongside the transition to failed, via the AlertEmitter supplied
// at construction.
func (w *Worker) failWithAlert(reason string) {
	w.Fail(reason)
	if w.alerts != nil {
		w.alerts.EmitCritical(w.ID, "grid worker failed", reason)
	}
}

// Stop cancels every active order (collecting but not raising individual
// cancel errors), waits up to a 10s-per-order / 30s-aggregate deadline, and
// transitions to stopped regardless of whether every cancel confirmed
// (spec.md §4.4/§5 Timeouts). Returns the count of orders whose cancel
// call returned without error.
func (w *Worker) Stop(ctx context.Context, cancelOrders bool) (int, error) {
	w.mu.Lock()
	w.status = StatusStopping
	orderIDs := make([]string, 0, len(w.levels))
	for _, l := range w.levels {
		orderIDs = append(orderIDs, l.OrderID)
	}
	w.mu.Unlock()

	w.cancelRun()
	select {
	case <-w.loopDone:
	case <-time.After(5 * time.Second):
		w.logger.Warn("grid stop: run loop did not exit within deadline", "grid_id", w.ID)
	}

	cancelled := 0
	if cancelOrders {
		aggregateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		for _, id := range orderIDs {
			perOrderCtx, perCancel := context.WithTimeout(aggregateCtx, 10*time.Second)
			if err := w.client.CancelOrder(perOrderCtx, id); err != nil {
				w.logger.Warn("grid stop: order could not be cancelled", "grid_id", w.ID, "order_id", id, "error", err)
			} else {
				cancelled++
			}
			perCancel()
			if aggregateCtx.Err() != nil {
				w.logger.Warn("grid stop: aggregate deadline exceeded, remaining orders left unresolved", "grid_id", w.ID)
				break
			}
		}
	}

	w.mu.Lock()
	w.status = StatusStopped
	w.mu.Unlock()
	return cancelled, nil
}

// Snapshot copies the worker's current state under its read lock for
// external reads (spec.md §5).
func (w *Worker) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Snapshot{
		ID: w.ID, Status: w.status, LastMarketPrice: w.lastMarketPrice,
		RealizedPnL: w.realizedPnL, TotalTrades: w.totalTrades,
		OrdersRejectedByRisk: w.ordersRejectedByRisk, Position: w.position,
	}
}

// CurrentStatus reports the worker's current status.
func (w *Worker) CurrentStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// OrderAtLevel returns the order id currently resting at level, if any.
func (w *Worker) OrderAtLevel(level int) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	l, ok := w.levels[level]
	if !ok {
		return "", false
	}
	return l.OrderID, true
}

// Orders returns the order ids of every currently active level.
func (w *Worker) Orders() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.levels))
	for _, l := range w.levels {
		out = append(out, l.OrderID)
	}
	return out
}
