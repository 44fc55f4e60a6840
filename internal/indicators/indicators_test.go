package indicators

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

func decimals(vals ...float64) []quant.Decimal {
	out := make([]quant.Decimal, len(vals))
	for i, v := range vals {
		out[i] = quant.NewFromFloat(v)
	}
	return out
}

func TestSMAWarmup(t *testing.T) {
	closes := decimals(1, 2, 3, 4, 5)
	col := SMA(closes, 3)
	require.Nil(t, col[0])
	require.Nil(t, col[1])
	require.NotNil(t, col[2])
	require.True(t, col[2].Equal(quant.NewFromFloat(2)))
	require.True(t, col[4].Equal(quant.NewFromFloat(4)))
}

// TestRSIWarmup mirrors spec scenario #4: period=14, first 14 entries
// undefined, monotone-up series pushes RSI(last) above 70, monotone-down
// below 30, and a constant series after warm-up settles at 50.
func TestRSIWarmup(t *testing.T) {
	period := 14

	up := make([]float64, 40)
	for i := range up {
		up[i] = float64(i + 1)
	}
	upCol := RSI(decimals(up...), period)
	for i := 0; i < period; i++ {
		require.Nil(t, upCol[i])
	}
	last := upCol[len(upCol)-1]
	require.NotNil(t, last)
	require.True(t, last.GreaterThan(quant.NewFromFloat(70)))

	down := make([]float64, 40)
	for i := range down {
		down[i] = float64(len(down) - i)
	}
	downCol := RSI(decimals(down...), period)
	lastDown := downCol[len(downCol)-1]
	require.NotNil(t, lastDown)
	require.True(t, lastDown.LessThan(quant.NewFromFloat(30)))

	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 100
	}
	flatCol := RSI(decimals(flat...), period)
	lastFlat := flatCol[len(flatCol)-1]
	require.NotNil(t, lastFlat)
	require.True(t, lastFlat.Equal(quant.NewFromFloat(50)))
}

func TestMACDColumnsAlign(t *testing.T) {
	vals := make([]float64, 60)
	for i := range vals {
		vals[i] = float64(i) * 0.5
	}
	res := MACD(decimals(vals...), 12, 26, 9)
	require.Len(t, res.MACD, 60)
	require.Len(t, res.Signal, 60)
	require.Len(t, res.Histogram, 60)
	require.NotNil(t, res.Histogram[59])
}

func TestBollingerBandsOrdering(t *testing.T) {
	vals := make([]float64, 30)
	for i := range vals {
		vals[i] = 100 + float64(i%5)
	}
	res := Bollinger(decimals(vals...), 20, quant.NewFromFloat(2))
	for i := 19; i < 30; i++ {
		require.NotNil(t, res.Upper[i])
		require.True(t, res.Upper[i].GreaterThanOrEqual(*res.Middle[i]))
		require.True(t, res.Middle[i].GreaterThanOrEqual(*res.Lower[i]))
	}
}
