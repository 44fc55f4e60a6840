package indicators

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

func seriesOf(vals ...float64) *quant.Series {
	var candles []quant.Candle
	for i, v := range vals {
		d := quant.NewFromFloat(v)
		candles = append(candles, quant.Candle{
			Timestamp: quant.Timestamp{UnixMilli: int64(i)},
			Open:      d, High: d, Low: d, Close: d, Volume: quant.Zero,
		})
	}
	return quant.NewSeries(candles)
}

func TestIndicatorCacheSingleFlight(t *testing.T) {
	mgr := NewIndicatorManager(10)
	series := seriesOf(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	fp := Fingerprint{SeriesID: series.Identity(), Name: "sma", Params: "3"}

	var calls int64
	compute := func(closes []quant.Decimal) quant.Column {
		atomic.AddInt64(&calls, 1)
		return SMA(closes, 3)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mgr.Get(fp, series, compute)
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

// TestIndicatorIncrementalMatchesFullRecompute is the property spec.md §8
// names: extending a series by one candle and recomputing incrementally
// yields the same column prefix as a full recomputation.
func TestIndicatorIncrementalMatchesFullRecompute(t *testing.T) {
	base := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	series := seriesOf(base...)
	mgr := NewIndicatorManager(10)
	fp := Fingerprint{SeriesID: series.Identity(), Name: "sma", Params: "3"}

	col := mgr.Get(fp, series, SMACompute(3))
	require.NotNil(t, col[9])

	newClose := 11.0
	series.Append(quant.Candle{
		Timestamp: quant.Timestamp{UnixMilli: 10},
		Open:      quant.NewFromFloat(newClose), High: quant.NewFromFloat(newClose),
		Low: quant.NewFromFloat(newClose), Close: quant.NewFromFloat(newClose), Volume: quant.Zero,
	})

	extended := mgr.Extend(fp, series, SMACompute(3), SMAExtend(3))

	full := SMA(append(decimals(base...), quant.NewFromFloat(newClose)), 3)

	for i := range full {
		if full[i] == nil {
			require.Nil(t, extended[i])
			continue
		}
		require.NotNil(t, extended[i])
		require.True(t, full[i].Equal(*extended[i]), "index %d: full=%s extended=%s", i, full[i], extended[i])
	}
}
