package indicators

import "math"

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// SMASeries returns the rolling mean; the first period-1 rows are NaN.
func SMASeries(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMASeries returns an exponential moving average with alpha 2/(period+1), seeded
// with the first defined input and reported once period inputs have been seen.
// NaN inputs are skipped.
func EMASeries(values []float64, period int) []float64 {
	return ewm(values, 2/float64(period+1), period)
}

// ewm is a recursive exponential average (adjust=false) with a minimum observation count.
func ewm(values []float64, alpha float64, minPeriods int) []float64 {
	out := nanSlice(len(values))
	if alpha <= 0 || alpha > 1 {
		return out
	}
	seen := 0
	avg := math.NaN()
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if seen == 0 {
			avg = v
		} else {
			avg = alpha*v + (1-alpha)*avg
		}
		seen++
		if seen >= minPeriods {
			out[i] = avg
		}
	}
	return out
}

// StdDevSeries returns the rolling population standard deviation.
func StdDevSeries(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(values); i++ {
		win := values[i-period+1 : i+1]
		mean := SMA(win, period)
		sq := 0.0
		for _, v := range win {
			sq += (v - mean) * (v - mean)
		}
		out[i] = math.Sqrt(sq / float64(period))
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
