package risk

import (
	"context"
	"fmt"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
	"github.com/DaviRain-Su/zigquant-core/pkg/apperrors"
)

// Gate is the risk module grid and strategy workers consult before every
// order submission (spec.md §4.4 step 3). A rejection is counted into the
// caller's stats; a daily-loss rejection is also emitted as an info alert.
// A rejection never transitions the worker (spec.md §7).
type Gate struct {
	killSwitch    *KillSwitch
	maxDailyLossPct quant.Decimal
	alerts        *Queue
}

// NewGate constructs a Gate. maxDailyLossPct of zero disables the
// daily-loss check.
func NewGate(killSwitch *KillSwitch, maxDailyLossPct quant.Decimal, alerts *Queue) *Gate {
	return &Gate{killSwitch: killSwitch, maxDailyLossPct: maxDailyLossPct, alerts: alerts}
}

// CheckSubmission evaluates pair/side/qty against the kill switch and the
// daily-loss budget, given the caller's realized PnL and starting equity for
// the day. An active kill switch yields KillSwitchActive and an exceeded
// daily-loss budget yields RiskRejected; neither is a worker-fatal error.
func (g *Gate) CheckSubmission(ctx context.Context, source string, pair quant.TradingPair, dailyRealizedPnL, dayStartEquity quant.Decimal) error {
	if err := g.killSwitch.RefuseIfActive(); err != nil {
		return err
	}
	if g.maxDailyLossPct.IsZero() || dayStartEquity.IsZero() {
		return nil
	}
	lossRatio := dailyRealizedPnL.Neg().Div(dayStartEquity)
	if lossRatio.GreaterThanOrEqual(g.maxDailyLossPct) {
		if g.alerts != nil {
			g.alerts.Emit(source, LevelInfo, "daily loss budget exceeded", fmt.Sprintf("pair=%s loss_ratio=%s", pair, lossRatio))
		}
		return fmt.Errorf("%w: daily loss ratio %s exceeds budget %s", apperrors.ErrRiskRejected, lossRatio, g.maxDailyLossPct)
	}
	return nil
}
