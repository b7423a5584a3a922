// Package indicators turns a candle window into named indicator series.
package indicators

import (
	"context"
	"math"

	"dca-core/internal/market"
)

// Series names produced by every Bridge.
const (
	Close      = "close"
	EMA9       = "ema_9"
	EMA21      = "ema_21"
	MACD       = "macd"
	MACDSignal = "macd_signal"
	RSI14      = "rsi"
	BBUpper    = "bb_upper"
	BBMiddle   = "bb_middle"
	BBLower    = "bb_lower"
)

// Bridge computes indicator series aligned to the window's index.
type Bridge interface {
	Compute(ctx context.Context, window []market.Candle) (Snapshot, error)
}

// Snapshot holds one value per window row for each named series. Undefined values are NaN.
type Snapshot struct {
	Len    int
	Series map[string][]float64
}

// Value returns series name at row i, or NaN when absent.
func (s Snapshot) Value(name string, i int) float64 {
	v, ok := s.Series[name]
	if !ok || i < 0 || i >= len(v) {
		return math.NaN()
	}
	return v[i]
}

// Latest returns the last row of series name.
func (s Snapshot) Latest(name string) float64 {
	return s.Value(name, s.Len-1)
}

// Has reports whether every named series is present with Len rows.
func (s Snapshot) Has(names ...string) bool {
	for _, n := range names {
		if len(s.Series[n]) != s.Len {
			return false
		}
	}
	return true
}
