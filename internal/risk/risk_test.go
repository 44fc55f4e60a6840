package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
)

type fakeWorker struct {
	stopped  bool
	cancelled int
}

func (f *fakeWorker) Stop(_ context.Context, cancelOrders bool) (int, error) {
	f.stopped = true
	if !cancelOrders {
		return 0, nil
	}
	return f.cancelled, nil
}

// TestKillSwitchPropagation mirrors spec scenario #5: starting grid A (10
// open orders) and strategy B (2 open orders), then activating the kill
// switch must stop both and report orders_cancelled=12, and a subsequent
// start attempt must refuse with KillSwitchActive.
func TestKillSwitchPropagation(t *testing.T) {
	ks := NewKillSwitch()
	gridA := &fakeWorker{cancelled: 10}
	strategyB := &fakeWorker{cancelled: 2}

	report, err := ks.Activate(context.Background(), "test", true, false,
		[]Stoppable{gridA}, []Stoppable{strategyB}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.GridsStopped)
	require.Equal(t, 1, report.StrategiesStopped)
	require.Equal(t, 12, report.OrdersCancelled)
	require.True(t, gridA.stopped)
	require.True(t, strategyB.stopped)

	require.True(t, ks.IsActive())
	err = ks.RefuseIfActive()
	require.True(t, errors.Is(err, apperrors.ErrKillSwitchActive))
}

func TestKillSwitchDeactivateClearsFlag(t *testing.T) {
	ks := NewKillSwitch()
	_, _ = ks.Activate(context.Background(), "x", false, false, nil, nil, nil, nil)
	require.True(t, ks.IsActive())
	ks.Deactivate()
	require.False(t, ks.IsActive())
	require.NoError(t, ks.RefuseIfActive())
}

func TestAlertQueueBoundedFIFOAndCounters(t *testing.T) {
	q := NewQueue(3)
	for i := 0; i < 5; i++ {
		q.Emit("test", LevelWarning, "t", "m")
	}
	require.Len(t, q.History(), 3)
	require.Equal(t, int64(5), q.CountByLevel(LevelWarning))
}

func TestWindowDrawdownAndVaR(t *testing.T) {
	w := NewWindow(100)
	for _, v := range []float64{100, 110, 105, 95, 120} {
		w.Observe(quant.NewFromFloat(v))
	}
	report := w.Compute(252)
	require.True(t, report.Drawdown.Max.GreaterThan(quant.Zero))
	require.True(t, report.VaR95.GreaterThanOrEqual(quant.Zero))
}
