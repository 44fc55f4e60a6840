// Package risk implements the risk metrics, kill-switch and alert queue of
// spec.md §4.6: historical VaR, drawdown, Sharpe/Sortino/Calmar (delegated
// to internal/quant/stats so live risk reporting and backtest metrics never
// diverge), a sticky global kill-switch, and a bounded threshold-triggered
// alert queue.
package risk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
)

// Stoppable is the minimal capability a worker exposes to the kill switch:
// stop it, optionally cancelling orders, and report how many orders were
// cancelled. Grid and strategy workers both implement this.
type Stoppable interface {
	Stop(ctx context.Context, cancelOrders bool) (ordersCancelled int, err error)
}

// PositionCloser closes an open position via a market order, consulted only
// when activate is called with closePositions.
type PositionCloser interface {
	ClosePosition(ctx context.Context, pair quant.TradingPair) error
}

// KillSwitchReport is returned by Activate (spec.md §4.6 step 4).
type KillSwitchReport struct {
	GridsStopped      int
	StrategiesStopped int
	OrdersCancelled   int
	PositionsClosed   int
	Reason            string
}

// KillSwitch is a sticky global flag: once active, it refuses new
// start-operations until an explicit Deactivate call (spec.md §4.6's
// stickiness requirement). The flag itself is observed lock-free; Activate
// and Deactivate serialize under a mutex since they mutate worker state.
type KillSwitch struct {
	active atomic.Bool
	reason atomic.Value // string

	mu sync.Mutex
}

// NewKillSwitch constructs an inactive kill switch.
func NewKillSwitch() *KillSwitch {
	ks := &KillSwitch{}
	ks.reason.Store("")
	return ks
}

// IsActive reports the sticky flag without locking — every worker
// start-operation observes this before any exchange submission.
func (k *KillSwitch) IsActive() bool {
	return k.active.Load()
}

// Reason returns the reason recorded by the most recent Activate call.
func (k *KillSwitch) Reason() string {
	return k.reason.Load().(string)
}

// RefuseIfActive returns KillSwitchActive verbatim when the switch is set,
// for start-operation call sites to check first (spec.md §4.6/§7).
func (k *KillSwitch) RefuseIfActive() error {
	if k.IsActive() {
		return fmt.Errorf("%w: %s", apperrors.ErrKillSwitchActive, k.Reason())
	}
	return nil
}

// Activate sets the sticky flag, stops every running worker (collecting
// cancel counts), optionally closes every open position, and returns a
// report. Workers and positions are supplied by the caller (the engine
// manager owns the registries); KillSwitch itself holds no registry so it
// stays reusable from both the manager and the risk alert pipeline.
func (k *KillSwitch) Activate(ctx context.Context, reason string, cancelOrders, closePositions bool,
	grids, strategies []Stoppable, positions []quant.Position, closer PositionCloser) (KillSwitchReport, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.reason.Store(reason)
	k.active.Store(true)

	report := KillSwitchReport{Reason: reason}
	for _, g := range grids {
		n, err := g.Stop(ctx, cancelOrders)
		if err != nil {
			continue
		}
		report.GridsStopped++
		report.OrdersCancelled += n
	}
	for _, s := range strategies {
		n, err := s.Stop(ctx, cancelOrders)
		if err != nil {
			continue
		}
		report.StrategiesStopped++
		report.OrdersCancelled += n
	}

	if closePositions && closer != nil {
		for _, p := range positions {
			if p.IsFlat() {
				continue
			}
			if err := closer.ClosePosition(ctx, p.Pair); err == nil {
				report.PositionsClosed++
			}
		}
	}

	return report, nil
}

// Deactivate clears the sticky flag, allowing start-operations to resume.
func (k *KillSwitch) Deactivate() {
	k.active.Store(false)
	k.reason.Store("")
}
