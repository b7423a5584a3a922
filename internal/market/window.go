package market

import "errors"

// DefaultWindowSize is the number of confirmed candles kept for evaluation.
const DefaultWindowSize = 50

// ErrStaleCandle is returned when a candle is not newer than the last accepted one.
var ErrStaleCandle = errors.New("market: candle timestamp not after last accepted")

// Window is a fixed-capacity FIFO of confirmed candles with strictly increasing timestamps.
// It is not safe for concurrent use; a single goroutine owns it.
type Window struct {
	candles  []Candle
	capacity int
	last     int64
}

// NewWindow creates an empty window holding at most capacity candles.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{
		candles:  make([]Candle, 0, capacity),
		capacity: capacity,
	}
}

// Append adds c, evicting the oldest candle when full.
func (w *Window) Append(c Candle) error {
	if len(w.candles) > 0 && c.Timestamp <= w.last {
		return ErrStaleCandle
	}
	if len(w.candles) == w.capacity {
		copy(w.candles, w.candles[1:])
		w.candles = w.candles[:w.capacity-1]
	}
	w.candles = append(w.candles, c)
	w.last = c.Timestamp
	return nil
}

// Len returns the number of candles held.
func (w *Window) Len() int { return len(w.candles) }

// Cap returns the window capacity.
func (w *Window) Cap() int { return w.capacity }

// LastTimestamp returns the newest accepted timestamp, or 0 when empty.
func (w *Window) LastTimestamp() int64 { return w.last }

// Last returns the newest candle.
func (w *Window) Last() (Candle, bool) {
	if len(w.candles) == 0 {
		return Candle{}, false
	}
	return w.candles[len(w.candles)-1], true
}

// Snapshot returns a copy of the candles, oldest first.
func (w *Window) Snapshot() []Candle {
	out := make([]Candle, len(w.candles))
	copy(out, w.candles)
	return out
}
