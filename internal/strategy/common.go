package strategy

import (
	"fmt"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// paramsKey renders a single integer period as a fingerprint parameter
// string.
func paramsKey(period int) string {
	return fmt.Sprintf("%d", period)
}

// strengthFromSpread maps a fast/slow indicator spread to a [0,1] signal
// strength: float64 conversion here is the "observation boundary" spec.md
// §4.1 permits (Signal.Strength is documented as a plain float64).
func strengthFromSpread(fast, slow quant.Decimal) float64 {
	if slow.IsZero() {
		return 0.5
	}
	spread := fast.Sub(slow).Div(slow).Abs()
	f, _ := spread.Float64()
	if f > 1 {
		f = 1
	}
	if f < 0 {
		f = 0
	}
	return f
}
