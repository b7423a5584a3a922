package indicators

import (
	"context"

	"dca-core/internal/market"
)

// LocalBridge computes EMA(9,21), MACD(12,26,9), RSI(14) and Bollinger(20,2) in process.
type LocalBridge struct{}

func (LocalBridge) Compute(_ context.Context, window []market.Candle) (Snapshot, error) {
	closes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close
	}

	ema12 := EMASeries(closes, 12)
	ema26 := EMASeries(closes, 26)
	macd := nanSlice(len(closes))
	for i := range closes {
		macd[i] = ema12[i] - ema26[i]
	}

	mid := SMASeries(closes, 20)
	std := StdDevSeries(closes, 20)
	upper := nanSlice(len(closes))
	lower := nanSlice(len(closes))
	for i := range closes {
		upper[i] = mid[i] + 2*std[i]
		lower[i] = mid[i] - 2*std[i]
	}

	return Snapshot{
		Len: len(closes),
		Series: map[string][]float64{
			Close:      closes,
			EMA9:       EMASeries(closes, 9),
			EMA21:      EMASeries(closes, 21),
			MACD:       macd,
			MACDSignal: EMASeries(macd, 9),
			RSI14:      RSISeries(closes, 14),
			BBUpper:    upper,
			BBMiddle:   mid,
			BBLower:    lower,
		},
	}, nil
}
