package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names. The four named in spec.md §6 are kept bit-exact since they
// are keys in the repository's existing Prometheus exposition; the rest are
// this core's own domain instruments, named in the same style.
const (
	MetricUptimeSeconds      = "zigquant_uptime_seconds"
	MetricRequestsTotal      = "zigquant_requests_total"
	MetricExchangeConnected  = "zigquant_exchange_connected"
	MetricPositionsCount     = "zigquant_positions_count"

	MetricPnLRealizedTotal  = "zigquant_pnl_realized_total"
	MetricPnLUnrealized     = "zigquant_pnl_unrealized"
	MetricOrdersActive      = "zigquant_orders_active"
	MetricOrdersPlacedTotal = "zigquant_orders_placed_total"
	MetricOrdersFilledTotal = "zigquant_orders_filled_total"
	MetricOrdersRejectedRisk = "zigquant_orders_rejected_by_risk_total"
	MetricGridsRunning      = "zigquant_grids_running"
	MetricStrategiesRunning = "zigquant_strategies_running"
	MetricBacktestsRunning  = "zigquant_backtests_running"
	MetricKillSwitchActive  = "zigquant_kill_switch_active"
	MetricAlertsByLevel     = "zigquant_alerts_by_level_total"
	MetricLatencyExchangeMs = "zigquant_latency_exchange_ms"
)

// MetricsHolder holds every initialized instrument plus the state backing
// the observable gauges.
type MetricsHolder struct {
	PnLRealizedTotal   metric.Float64Counter
	PnLUnrealized      metric.Float64ObservableGauge
	OrdersActive       metric.Int64ObservableGauge
	OrdersPlacedTotal  metric.Int64Counter
	OrdersFilledTotal  metric.Int64Counter
	OrdersRejectedRisk metric.Int64Counter
	RequestsTotal      metric.Int64Counter
	AlertsByLevel      metric.Int64Counter
	LatencyExchangeMs  metric.Float64Histogram

	UptimeSeconds      metric.Float64ObservableGauge
	ExchangeConnected  metric.Int64ObservableGauge
	PositionsCount     metric.Int64ObservableGauge
	GridsRunning       metric.Int64ObservableGauge
	StrategiesRunning  metric.Int64ObservableGauge
	BacktestsRunning   metric.Int64ObservableGauge
	KillSwitchActive   metric.Int64ObservableGauge

	mu                sync.RWMutex
	startedAt         time.Time
	unrealizedPnLMap  map[string]float64
	activeOrdersMap   map[string]int64
	exchangeConnected map[string]int64
	positionsCount    int64
	gridsRunning      int64
	strategiesRunning int64
	backtestsRunning  int64
	killSwitchActive  int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the process-wide metrics singleton.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			startedAt:         time.Now(),
			unrealizedPnLMap:  make(map[string]float64),
			activeOrdersMap:   make(map[string]int64),
			exchangeConnected: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics creates every instrument against meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	if m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized PnL")); err != nil {
		return err
	}
	if m.OrdersPlacedTotal, err = meter.Int64Counter(MetricOrdersPlacedTotal, metric.WithDescription("Total orders placed")); err != nil {
		return err
	}
	if m.OrdersFilledTotal, err = meter.Int64Counter(MetricOrdersFilledTotal, metric.WithDescription("Total orders filled")); err != nil {
		return err
	}
	if m.OrdersRejectedRisk, err = meter.Int64Counter(MetricOrdersRejectedRisk, metric.WithDescription("Orders rejected by the risk gate")); err != nil {
		return err
	}
	if m.RequestsTotal, err = meter.Int64Counter(MetricRequestsTotal, metric.WithDescription("Total manager API requests")); err != nil {
		return err
	}
	if m.AlertsByLevel, err = meter.Int64Counter(MetricAlertsByLevel, metric.WithDescription("Alerts emitted, by level")); err != nil {
		return err
	}
	if m.LatencyExchangeMs, err = meter.Float64Histogram(MetricLatencyExchangeMs, metric.WithDescription("Exchange client call latency"), metric.WithUnit("ms")); err != nil {
		return err
	}

	if m.UptimeSeconds, err = meter.Float64ObservableGauge(MetricUptimeSeconds, metric.WithDescription("Process uptime in seconds"),
		metric.WithFloat64Callback(func(_ context.Context, obs metric.Float64Observer) error {
			obs.Observe(time.Since(m.startedAt).Seconds())
			return nil
		})); err != nil {
		return err
	}

	if m.PnLUnrealized, err = meter.Float64ObservableGauge(MetricPnLUnrealized, metric.WithDescription("Current unrealized PnL"),
		metric.WithFloat64Callback(func(_ context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.unrealizedPnLMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		})); err != nil {
		return err
	}

	if m.OrdersActive, err = meter.Int64ObservableGauge(MetricOrdersActive, metric.WithDescription("Currently open orders"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for sym, val := range m.activeOrdersMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("symbol", sym)))
			}
			return nil
		})); err != nil {
		return err
	}

	if m.ExchangeConnected, err = meter.Int64ObservableGauge(MetricExchangeConnected, metric.WithDescription("Exchange client connection status (1=connected)"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for name, val := range m.exchangeConnected {
				obs.Observe(val, metric.WithAttributes(attribute.String("exchange", name)))
			}
			return nil
		})); err != nil {
		return err
	}

	if m.PositionsCount, err = meter.Int64ObservableGauge(MetricPositionsCount, metric.WithDescription("Open positions across all workers"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.positionsCount)
			return nil
		})); err != nil {
		return err
	}

	if m.GridsRunning, err = meter.Int64ObservableGauge(MetricGridsRunning, metric.WithDescription("Running grid workers"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.gridsRunning)
			return nil
		})); err != nil {
		return err
	}

	if m.StrategiesRunning, err = meter.Int64ObservableGauge(MetricStrategiesRunning, metric.WithDescription("Running strategy workers"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.strategiesRunning)
			return nil
		})); err != nil {
		return err
	}

	if m.BacktestsRunning, err = meter.Int64ObservableGauge(MetricBacktestsRunning, metric.WithDescription("Running backtest jobs"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.backtestsRunning)
			return nil
		})); err != nil {
		return err
	}

	if m.KillSwitchActive, err = meter.Int64ObservableGauge(MetricKillSwitchActive, metric.WithDescription("Kill switch active (1=active)"),
		metric.WithInt64Callback(func(_ context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.killSwitchActive)
			return nil
		})); err != nil {
		return err
	}

	return nil
}

// Helpers to update observable-gauge state. Safe to call before InitMetrics
// runs (or when telemetry is never set up, e.g. in unit tests): the
// underlying maps/counters are always initialized by GetGlobalMetrics.

func (m *MetricsHolder) SetUnrealizedPnL(symbol string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unrealizedPnLMap[symbol] = value
}

func (m *MetricsHolder) SetActiveOrders(symbol string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeOrdersMap[symbol] = count
}

func (m *MetricsHolder) SetExchangeConnected(exchange string, connected bool) {
	val := int64(0)
	if connected {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exchangeConnected[exchange] = val
}

func (m *MetricsHolder) SetPositionsCount(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positionsCount = n
}

func (m *MetricsHolder) SetGridsRunning(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gridsRunning = n
}

func (m *MetricsHolder) SetStrategiesRunning(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategiesRunning = n
}

func (m *MetricsHolder) SetBacktestsRunning(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backtestsRunning = n
}

func (m *MetricsHolder) SetKillSwitchActive(active bool) {
	val := int64(0)
	if active {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killSwitchActive = val
}
