// Package indicators computes SMA/EMA/RSI/MACD/Bollinger columns over a
// quant.Series and memoizes them behind an IndicatorManager cache keyed by
// fingerprint (spec.md §4.1). All arithmetic is Decimal; floating point is
// only used by the sample-standard-deviation sqrt in Bollinger, matching the
// "conversion to floating point happens only at observation boundaries"
// invariant (the sqrt itself is not representable as an observation, but no
// further Decimal computation derives from a lossy float beyond this step).
package indicators

import (
	"math"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// SMA computes the simple moving average column: the first period-1 entries
// are undefined (nil).
func SMA(closes []quant.Decimal, period int) quant.Column {
	col := make(quant.Column, len(closes))
	if period <= 0 {
		return col
	}
	sum := quant.Zero
	for i, c := range closes {
		sum = sum.Add(c)
		if i >= period {
			sum = sum.Sub(closes[i-period])
		}
		if i >= period-1 {
			v := sum.Div(quant.NewFromInt(int64(period)))
			col[i] = &v
		}
	}
	return col
}

// emaAlpha returns the EMA smoothing factor 2/(period+1).
func emaAlpha(period int) quant.Decimal {
	return quant.NewFromInt(2).Div(quant.NewFromInt(int64(period + 1)))
}

// EMA computes the exponential moving average column, seeded with the SMA
// over the first `period` entries per spec.md §4.1.
func EMA(closes []quant.Decimal, period int) quant.Column {
	col := make(quant.Column, len(closes))
	if period <= 0 || len(closes) < period {
		return col
	}
	alpha := emaAlpha(period)
	oneMinusAlpha := quant.NewFromInt(1).Sub(alpha)

	sum := quant.Zero
	for i := 0; i < period; i++ {
		sum = sum.Add(closes[i])
	}
	seed := sum.Div(quant.NewFromInt(int64(period)))
	col[period-1] = &seed

	prev := seed
	for i := period; i < len(closes); i++ {
		v := closes[i].Mul(alpha).Add(prev.Mul(oneMinusAlpha))
		col[i] = &v
		prev = v
	}
	return col
}

// RSI computes the Wilder-smoothed relative strength index column.
// avg_loss == 0 -> RSI 100; both zero -> RSI 50 (spec.md §4.1).
func RSI(closes []quant.Decimal, period int) quant.Column {
	col := make(quant.Column, len(closes))
	if period <= 0 || len(closes) <= period {
		return col
	}

	gainSum, lossSum := quant.Zero, quant.Zero
	for i := 1; i <= period; i++ {
		delta := closes[i].Sub(closes[i-1])
		if delta.IsPositive() {
			gainSum = gainSum.Add(delta)
		} else if delta.IsNegative() {
			lossSum = lossSum.Add(delta.Neg())
		}
	}
	periodD := quant.NewFromInt(int64(period))
	avgGain := gainSum.Div(periodD)
	avgLoss := lossSum.Div(periodD)
	col[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i].Sub(closes[i-1])
		gain, loss := quant.Zero, quant.Zero
		if delta.IsPositive() {
			gain = delta
		} else if delta.IsNegative() {
			loss = delta.Neg()
		}
		avgGain = avgGain.Mul(periodD.Sub(quant.NewFromInt(1))).Add(gain).Div(periodD)
		avgLoss = avgLoss.Mul(periodD.Sub(quant.NewFromInt(1))).Add(loss).Div(periodD)
		col[i] = rsiValue(avgGain, avgLoss)
	}
	return col
}

func rsiValue(avgGain, avgLoss quant.Decimal) *quant.Decimal {
	var v quant.Decimal
	switch {
	case avgLoss.IsZero() && avgGain.IsZero():
		v = quant.NewFromInt(50)
	case avgLoss.IsZero():
		v = quant.NewFromInt(100)
	default:
		rs := avgGain.Div(avgLoss)
		hundred := quant.NewFromInt(100)
		v = hundred.Sub(hundred.Div(quant.NewFromInt(1).Add(rs)))
	}
	return &v
}

// MACDResult bundles the three columns MACD produces.
type MACDResult struct {
	MACD      quant.Column
	Signal    quant.Column
	Histogram quant.Column
}

// MACD computes the MACD line (fastEMA-slowEMA), its signal line (EMA of the
// MACD line) and the histogram (macd-signal).
func MACD(closes []quant.Decimal, fast, slow, signal int) MACDResult {
	n := len(closes)
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	macdLine := make(quant.Column, n)
	macdValues := make([]quant.Decimal, 0, n)
	macdStart := -1
	for i := 0; i < n; i++ {
		if fastEMA[i] == nil || slowEMA[i] == nil {
			continue
		}
		v := fastEMA[i].Sub(*slowEMA[i])
		macdLine[i] = &v
		if macdStart == -1 {
			macdStart = i
		}
		macdValues = append(macdValues, v)
	}

	signalLine := make(quant.Column, n)
	histogram := make(quant.Column, n)
	if macdStart == -1 || len(macdValues) < signal {
		return MACDResult{MACD: macdLine, Signal: signalLine, Histogram: histogram}
	}

	signalCol := EMA(macdValues, signal)
	for i, sv := range signalCol {
		if sv == nil {
			continue
		}
		idx := macdStart + i
		signalLine[idx] = sv
		h := macdLine[idx].Sub(*sv)
		histogram[idx] = &h
	}
	return MACDResult{MACD: macdLine, Signal: signalLine, Histogram: histogram}
}

// BollingerResult bundles the three columns Bollinger produces.
type BollingerResult struct {
	Upper  quant.Column
	Middle quant.Column
	Lower  quant.Column
}

// Bollinger computes the middle band (SMA), and upper/lower bands at
// middle +/- k*sample-standard-deviation over the trailing window.
func Bollinger(closes []quant.Decimal, period int, k quant.Decimal) BollingerResult {
	n := len(closes)
	middle := SMA(closes, period)
	upper := make(quant.Column, n)
	lower := make(quant.Column, n)

	for i := period - 1; i < n; i++ {
		if middle[i] == nil {
			continue
		}
		window := closes[i-period+1 : i+1]
		sd := sampleStdDev(window, *middle[i])
		band := sd.Mul(k)
		u := middle[i].Add(band)
		l := middle[i].Sub(band)
		upper[i] = &u
		lower[i] = &l
	}
	return BollingerResult{Upper: upper, Middle: middle, Lower: lower}
}

func sampleStdDev(window []quant.Decimal, mean quant.Decimal) quant.Decimal {
	if len(window) < 2 {
		return quant.Zero
	}
	sumSq := quant.Zero
	for _, v := range window {
		d := v.Sub(mean)
		sumSq = sumSq.Add(d.Mul(d))
	}
	variance := sumSq.Div(quant.NewFromInt(int64(len(window) - 1)))
	f, _ := variance.Float64()
	if f < 0 {
		f = 0
	}
	return quant.NewFromFloat(math.Sqrt(f))
}
