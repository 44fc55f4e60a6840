package stats

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

func constEquity(n int, v string) []quant.Decimal {
	d, _ := quant.NewDecimalFromString(v)
	out := make([]quant.Decimal, n)
	for i := range out {
		out[i] = d
	}
	return out
}

func TestSharpeZeroOnConstantEquity(t *testing.T) {
	equity := constEquity(1000, "100")
	r := Returns(equity)
	require.True(t, Sharpe(r, 252).IsZero())
	require.True(t, Sortino(r, 252).IsZero())
}

func TestDrawdownZeroOnConstantEquity(t *testing.T) {
	equity := constEquity(1000, "100")
	dd := Drawdown(equity)
	require.True(t, dd.Current.IsZero())
	require.True(t, dd.Max.IsZero())
}

func TestDrawdownPeakTroughRecovery(t *testing.T) {
	vals := []string{"100", "110", "90", "99", "105"}
	var equity []quant.Decimal
	for _, v := range vals {
		d, _ := quant.NewDecimalFromString(v)
		equity = append(equity, d)
	}
	dd := Drawdown(equity)
	// peak=110, trough after peak=90 -> max drawdown (110-90)/110 = 0.1818...
	require.True(t, dd.Max.GreaterThan(quant.Zero))
	require.True(t, dd.IsRecovering)
}

func TestHistoricalVaR(t *testing.T) {
	var returns []quant.Decimal
	for _, v := range []string{"-0.05", "-0.03", "-0.01", "0.01", "0.02", "0.04"} {
		d, _ := quant.NewDecimalFromString(v)
		returns = append(returns, d)
	}
	v95 := HistoricalVaR(returns, 0.95)
	require.True(t, v95.GreaterThanOrEqual(quant.Zero))
}

func TestCalmarZeroWhenNoDrawdown(t *testing.T) {
	annualized, _ := quant.NewDecimalFromString("0.25")
	require.True(t, Calmar(annualized, quant.Zero).IsZero())
}
