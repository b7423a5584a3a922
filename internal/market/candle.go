package market

import (
	"math"

	marketpkg "dca-core/pkg/market/binance"
)

// Candle is one confirmed OHLCV bar. Timestamp is the bar open time in ms.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Valid reports whether the timestamp is set, every price is finite and positive,
// and volume is finite and non-negative.
func (c Candle) Valid() bool {
	if c.Timestamp <= 0 {
		return false
	}
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	return !math.IsNaN(c.Volume) && !math.IsInf(c.Volume, 0) && c.Volume >= 0
}

// FromKline converts a wire kline into a Candle.
func FromKline(k marketpkg.Kline) Candle {
	return Candle{
		Timestamp: k.OpenTime,
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
	}
}
