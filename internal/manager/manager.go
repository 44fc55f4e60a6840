// Package manager implements the engine manager of spec.md §4.7: the single
// owner of every running grid worker, strategy worker and backtest job,
// enforcing id uniqueness per namespace, propagating the kill switch across
// all of them, and reporting aggregate system health.
//
// Grounded on the teacher's internal/trading/orchestrator/orchestrator.go
// and registry.go: id-to-worker maps guarded by one sync.RWMutex, writer lock
// taken only for registration/removal, reader lock for every query (spec.md
// §5's "single reader-writer discipline").
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/DaviRain-Su/zigquant-core/internal/backtest"
	"github.com/DaviRain-Su/zigquant-core/internal/exchange"
	"github.com/DaviRain-Su/zigquant-core/internal/grid"
	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/internal/risk"
	"github.com/DaviRain-Su/zigquant-core/internal/stratworker"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
	"github.com/DaviRain-Su/zigquant-core/pkg/logging"
	"github.com/DaviRain-Su/zigquant-core/pkg/telemetry"
)

// HealthStatus is the coarse system-health classification of spec.md §4.7.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthEmergency HealthStatus = "emergency"
)

// SystemHealth is the return shape of GetSystemHealth.
type SystemHealth struct {
	Status            HealthStatus
	RunningGrids      int
	RunningStrategies int
	RunningBacktests  int
	KillSwitchActive  bool
	KillSwitchReason  string
}

// ManagerHandle is the small, weak back-reference a worker could hold to its
// owning manager without prolonging the manager's lifetime (spec.md §9
// Design Notes): only the kill-switch atomic and the logger, never a pointer
// back to the Manager itself or its registries. In this repository neither
// grid.Worker nor stratworker.Worker actually holds one — both take their
// RiskGate and logger directly from the manager at construction time and
// never reference the manager afterward — so the cyclic reference the note
// warns about cannot arise. ManagerHandle exists so a future worker kind that
// does need to emit lifecycle events back to the manager has a ready-made,
// non-owning handle to do it with instead of threading a *Manager through.
type ManagerHandle struct {
	killSwitch *risk.KillSwitch
	logger     logging.Logger
}

func (h ManagerHandle) KillSwitchActive() bool { return h.killSwitch.IsActive() }

// StrategyStart bundles the arguments startStrategy needs beyond a bare id:
// a strategy worker only becomes useful paired with a candle feed to tick.
type StrategyStart struct {
	Config stratworker.Config
	Feed   quant.CandleFeed
}

// Manager owns every running grid worker, strategy worker and backtest job
// (spec.md §4.7). Zero value is not usable; construct with New.
type Manager struct {
	client     exchange.Client
	killSwitch *risk.KillSwitch
	riskGate   *risk.Gate
	alerts     *risk.Queue
	backtests  *backtest.Pool
	logger     logging.Logger

	mu         sync.RWMutex
	grids      map[string]*grid.Worker
	strategies map[string]*stratworker.Worker
	btJobs     map[string]*backtest.Job
}

// New constructs a manager bound to client for order submission, and to its
// own kill switch, risk gate, alert queue, and backtest pool.
func New(client exchange.Client, killSwitch *risk.KillSwitch, riskGate *risk.Gate, alerts *risk.Queue, backtests *backtest.Pool, logger logging.Logger) *Manager {
	return &Manager{
		client: client, killSwitch: killSwitch, riskGate: riskGate, alerts: alerts,
		backtests: backtests, logger: logger.WithField("component", "manager"),
		grids: make(map[string]*grid.Worker), strategies: make(map[string]*stratworker.Worker),
		btJobs: make(map[string]*backtest.Job),
	}
}

// alertEmitter adapts *risk.Queue to the grid.AlertEmitter and
// stratworker.AlertEmitter interfaces, so neither worker package needs to
// import internal/risk directly.
type alertEmitter struct{ queue *risk.Queue }

func (a alertEmitter) EmitCritical(source, title, message string) {
	if a.queue == nil {
		return
	}
	a.queue.Emit(source, risk.LevelCritical, title, message)
}

// Handle returns the weak back-reference described on ManagerHandle.
func (m *Manager) Handle() ManagerHandle {
	return ManagerHandle{killSwitch: m.killSwitch, logger: m.logger}
}

// --- Grid operations (spec.md §4.7) ---

// StartGrid constructs and starts a new grid worker under id. Refused while
// the kill switch is active, and on a duplicate id.
func (m *Manager) StartGrid(ctx context.Context, id string, cfg grid.Config) error {
	if err := m.killSwitch.RefuseIfActive(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.grids[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: grid %s", apperrors.ErrAlreadyExists, id)
	}
	w := grid.NewWorker(cfg, m.client, m.riskGate, alertEmitter{m.alerts}, m.logger.WithField("grid_id", id))
	m.grids[id] = w
	m.mu.Unlock()

	if err := w.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.grids, id)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) getGrid(id string) (*grid.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.grids[id]
	if !ok {
		return nil, fmt.Errorf("%w: grid %s", apperrors.ErrNotFound, id)
	}
	return w, nil
}

func (m *Manager) StopGrid(ctx context.Context, id string, cancelOrders bool) (int, error) {
	w, err := m.getGrid(id)
	if err != nil {
		return 0, err
	}
	return w.Stop(ctx, cancelOrders)
}

func (m *Manager) PauseGrid(id string) error {
	w, err := m.getGrid(id)
	if err != nil {
		return err
	}
	w.Pause()
	return nil
}

func (m *Manager) ResumeGrid(id string) error {
	w, err := m.getGrid(id)
	if err != nil {
		return err
	}
	w.Resume()
	return nil
}

func (m *Manager) GetGridStatus(id string) (grid.Status, error) {
	w, err := m.getGrid(id)
	if err != nil {
		return "", err
	}
	return w.CurrentStatus(), nil
}

func (m *Manager) GetGridStats(id string) (grid.Snapshot, error) {
	w, err := m.getGrid(id)
	if err != nil {
		return grid.Snapshot{}, err
	}
	return w.Snapshot(), nil
}

func (m *Manager) GetGridOrders(id string) ([]string, error) {
	w, err := m.getGrid(id)
	if err != nil {
		return nil, err
	}
	return w.Orders(), nil
}

func (m *Manager) GetAllGridsSummary() []grid.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]grid.Snapshot, 0, len(m.grids))
	for _, w := range m.grids {
		out = append(out, w.Snapshot())
	}
	return out
}

// --- Strategy operations (spec.md §4.7) ---

func (m *Manager) StartStrategy(ctx context.Context, id string, start StrategyStart) error {
	if err := m.killSwitch.RefuseIfActive(); err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.strategies[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: strategy %s", apperrors.ErrAlreadyExists, id)
	}
	w := stratworker.NewWorker(start.Config, m.client, start.Feed, m.riskGate, alertEmitter{m.alerts}, m.logger.WithField("strategy_id", id))
	m.strategies[id] = w
	m.mu.Unlock()

	if err := w.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.strategies, id)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Manager) getStrategy(id string) (*stratworker.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.strategies[id]
	if !ok {
		return nil, fmt.Errorf("%w: strategy %s", apperrors.ErrNotFound, id)
	}
	return w, nil
}

func (m *Manager) StopStrategy(ctx context.Context, id string, cancelOrders bool) (int, error) {
	w, err := m.getStrategy(id)
	if err != nil {
		return 0, err
	}
	return w.Stop(ctx, cancelOrders)
}

func (m *Manager) PauseStrategy(id string) error {
	w, err := m.getStrategy(id)
	if err != nil {
		return err
	}
	w.Pause()
	return nil
}

func (m *Manager) ResumeStrategy(id string) error {
	w, err := m.getStrategy(id)
	if err != nil {
		return err
	}
	w.Resume()
	return nil
}

func (m *Manager) GetStrategyStatus(id string) (stratworker.Status, error) {
	w, err := m.getStrategy(id)
	if err != nil {
		return "", err
	}
	return w.CurrentStatus(), nil
}

func (m *Manager) GetStrategyStats(id string) (stratworker.Snapshot, error) {
	w, err := m.getStrategy(id)
	if err != nil {
		return stratworker.Snapshot{}, err
	}
	return w.Snapshot(), nil
}

func (m *Manager) GetAllStrategiesSummary() []stratworker.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]stratworker.Snapshot, 0, len(m.strategies))
	for _, w := range m.strategies {
		out = append(out, w.Snapshot())
	}
	return out
}

// --- Backtest operations (spec.md §4.7) ---

// StartBacktest submits req to the shared pool under the caller-given id.
// The pool assigns its own internal job id (backtest.Job.ID); the manager's
// id namespace is independent of it, matching the manager's own
// id-uniqueness contract rather than the pool's.
func (m *Manager) StartBacktest(id string, req backtest.Request) error {
	m.mu.Lock()
	if _, exists := m.btJobs[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: backtest %s", apperrors.ErrAlreadyExists, id)
	}
	m.mu.Unlock()

	job, err := m.backtests.Submit(req)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.btJobs[id] = job
	m.mu.Unlock()
	return nil
}

func (m *Manager) getBacktest(id string) (*backtest.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.btJobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: backtest %s", apperrors.ErrNotFound, id)
	}
	return job, nil
}

func (m *Manager) CancelBacktest(id string) error {
	job, err := m.getBacktest(id)
	if err != nil {
		return err
	}
	job.Cancel()
	return nil
}

func (m *Manager) GetBacktestProgress(id string) (float64, error) {
	job, err := m.getBacktest(id)
	if err != nil {
		return 0, err
	}
	return job.Progress(), nil
}

func (m *Manager) GetBacktestResult(id string) (backtest.Result, error) {
	job, err := m.getBacktest(id)
	if err != nil {
		return backtest.Result{}, err
	}
	result, runErr, done := job.Result()
	if !done {
		return backtest.Result{}, fmt.Errorf("%w: backtest %s still running", apperrors.ErrValidation, id)
	}
	return result, runErr
}

// --- Kill switch and health (spec.md §4.6, §4.7) ---

// ClosePosition implements risk.PositionCloser by submitting a reduce-only
// market order that flattens pair's current position via the shared client.
func (m *Manager) ClosePosition(ctx context.Context, pair quant.TradingPair) error {
	positions, err := m.client.GetPositions(ctx)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if !p.Pair.Equal(pair) || p.IsFlat() {
			continue
		}
		side := quant.SideSell
		if p.IsShort() {
			side = quant.SideBuy
		}
		_, err := m.client.SubmitOrder(ctx, exchange.OrderRequest{
			Pair: pair, Side: side, Type: quant.OrderTypeMarket, TIF: quant.TIFIOC,
			Quantity: p.Size.Abs(), ReduceOnly: true,
		})
		return err
	}
	return nil
}

// ActivateKillSwitch stops every running grid and strategy worker, optionally
// closing open positions, and returns the aggregate report (spec.md §4.6
// step 4). The sticky flag is set before any worker is stopped so a
// concurrent start-operation observes it immediately (spec.md §5's ordering
// guarantee).
func (m *Manager) ActivateKillSwitch(ctx context.Context, reason string, cancelOrders, closePositions bool) (risk.KillSwitchReport, error) {
	m.mu.RLock()
	grids := make([]risk.Stoppable, 0, len(m.grids))
	for _, w := range m.grids {
		grids = append(grids, w)
	}
	strategies := make([]risk.Stoppable, 0, len(m.strategies))
	for _, w := range m.strategies {
		strategies = append(strategies, w)
	}
	m.mu.RUnlock()

	var positions []quant.Position
	if closePositions {
		ps, err := m.client.GetPositions(ctx)
		if err == nil {
			positions = ps
		}
	}

	report, err := m.killSwitch.Activate(ctx, reason, cancelOrders, closePositions, grids, strategies, positions, m)
	if err == nil {
		m.alerts.Emit("manager", risk.LevelEmergency, "kill switch activated", reason)
	}
	return report, err
}

func (m *Manager) DeactivateKillSwitch() {
	m.killSwitch.Deactivate()
}

// GetSystemHealth classifies overall status per spec.md §4.7: emergency iff
// the kill switch is active, degraded iff any worker has failed, else
// healthy.
func (m *Manager) GetSystemHealth() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	health := SystemHealth{
		KillSwitchActive: m.killSwitch.IsActive(),
		KillSwitchReason: m.killSwitch.Reason(),
	}

	anyFailed := false
	for _, w := range m.grids {
		switch w.CurrentStatus() {
		case grid.StatusRunning:
			health.RunningGrids++
		case grid.StatusFailed:
			anyFailed = true
		}
	}
	for _, w := range m.strategies {
		switch w.CurrentStatus() {
		case stratworker.StatusRunning:
			health.RunningStrategies++
		case stratworker.StatusFailed:
			anyFailed = true
		}
	}
	for _, job := range m.btJobs {
		if job.Status() == backtest.JobRunning || job.Status() == backtest.JobQueued {
			health.RunningBacktests++
		}
	}

	switch {
	case health.KillSwitchActive:
		health.Status = HealthEmergency
	case anyFailed:
		health.Status = HealthDegraded
	default:
		health.Status = HealthHealthy
	}

	metrics := telemetry.GetGlobalMetrics()
	metrics.SetGridsRunning(int64(health.RunningGrids))
	metrics.SetStrategiesRunning(int64(health.RunningStrategies))
	metrics.SetBacktestsRunning(int64(health.RunningBacktests))
	metrics.SetKillSwitchActive(health.KillSwitchActive)

	return health
}

// Shutdown stops every running grid and strategy worker and the backtest
// pool, without tripping the sticky kill switch — ordinary process shutdown
// is not the emergency condition the kill switch models (spec.md §4.6), so a
// subsequent process start must not find the switch latched.
func (m *Manager) Shutdown(ctx context.Context, cancelOrders bool) {
	m.mu.RLock()
	grids := make([]*grid.Worker, 0, len(m.grids))
	for _, w := range m.grids {
		grids = append(grids, w)
	}
	strategies := make([]*stratworker.Worker, 0, len(m.strategies))
	for _, w := range m.strategies {
		strategies = append(strategies, w)
	}
	m.mu.RUnlock()

	for _, w := range grids {
		if _, err := w.Stop(ctx, cancelOrders); err != nil {
			m.logger.Warn("grid worker stop failed during shutdown", "grid_id", w.ID, "error", err)
		}
	}
	for _, w := range strategies {
		if _, err := w.Stop(ctx, cancelOrders); err != nil {
			m.logger.Warn("strategy worker stop failed during shutdown", "strategy_id", w.ID, "error", err)
		}
	}
	m.backtests.Stop()
}
