package indicators

import "math"

// RSISeries computes Wilder's RSI (alpha 1/period) for every row. Rows before
// period changes are available are NaN.
func RSISeries(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < 2 {
		return out
	}
	ups := make([]float64, len(values))
	downs := make([]float64, len(values))
	ups[0], downs[0] = math.NaN(), math.NaN()
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		ups[i] = math.Max(d, 0)
		downs[i] = math.Max(-d, 0)
	}
	alpha := 1 / float64(period)
	up := ewm(ups, alpha, period)
	down := ewm(downs, alpha, period)
	for i := range out {
		switch {
		case math.IsNaN(up[i]) || math.IsNaN(down[i]):
		case down[i] == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+up[i]/down[i])
		}
	}
	return out
}
