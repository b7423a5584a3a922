package indicators

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"dca-core/internal/market"
)

func closes(vals ...float64) []float64 { return vals }

func TestSMASeries(t *testing.T) {
	got := SMASeries(closes(1, 2, 3, 4, 5), 3)
	require.True(t, math.IsNaN(got[0]))
	require.True(t, math.IsNaN(got[1]))
	require.InDelta(t, 2, got[2], 1e-9)
	require.InDelta(t, 3, got[3], 1e-9)
	require.InDelta(t, 4, got[4], 1e-9)
}

func TestEMASeriesSeededFromFirstValue(t *testing.T) {
	got := EMASeries(closes(10, 10, 10, 20), 3)
	require.True(t, math.IsNaN(got[1]))
	require.InDelta(t, 10, got[2], 1e-9)
	// alpha = 0.5
	require.InDelta(t, 15, got[3], 1e-9)
}

func TestEMASeriesSkipsNaN(t *testing.T) {
	got := EMASeries(closes(math.NaN(), math.NaN(), 4, 4), 2)
	require.True(t, math.IsNaN(got[2]))
	require.InDelta(t, 4, got[3], 1e-9)
}

func TestRSISeries(t *testing.T) {
	up := make([]float64, 20)
	for i := range up {
		up[i] = float64(i + 1)
	}
	got := RSISeries(up, 14)
	require.True(t, math.IsNaN(got[13]))
	require.InDelta(t, 100, got[14], 1e-9)

	flatDown := make([]float64, 20)
	for i := range flatDown {
		flatDown[i] = float64(100 - i)
	}
	got = RSISeries(flatDown, 14)
	require.InDelta(t, 0, got[19], 1e-9)
}

func TestStdDevSeriesIsPopulation(t *testing.T) {
	got := StdDevSeries(closes(2, 4, 4, 4, 5, 5, 7, 9), 8)
	require.InDelta(t, 2, got[7], 1e-9)
}

func window(n int, price func(i int) float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		p := price(i)
		out[i] = market.Candle{Timestamp: int64(i+1) * 60_000, Open: p, High: p, Low: p, Close: p, Volume: 1}
	}
	return out
}

func TestLocalBridgeAlignsSeriesToWindow(t *testing.T) {
	w := window(50, func(i int) float64 { return 100 + float64(i%7) })
	snap, err := LocalBridge{}.Compute(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, 50, snap.Len)
	require.True(t, snap.Has(Close, EMA9, EMA21, MACD, MACDSignal, RSI14, BBUpper, BBMiddle, BBLower))

	require.True(t, math.IsNaN(snap.Value(MACD, 24)))
	require.False(t, math.IsNaN(snap.Value(MACD, 25)))
	require.True(t, math.IsNaN(snap.Value(MACDSignal, 32)))
	require.False(t, math.IsNaN(snap.Latest(MACDSignal)))
	require.Greater(t, snap.Latest(BBUpper), snap.Latest(BBMiddle))
	require.Less(t, snap.Latest(BBLower), snap.Latest(BBMiddle))
	require.Equal(t, w[49].Close, snap.Latest(Close))
}

func TestLocalBridgeFlatMarket(t *testing.T) {
	snap, err := LocalBridge{}.Compute(context.Background(), window(40, func(int) float64 { return 50 }))
	require.NoError(t, err)
	require.InDelta(t, 0, snap.Latest(MACD), 1e-9)
	require.InDelta(t, 50, snap.Latest(EMA9), 1e-9)
	require.InDelta(t, 50, snap.Latest(BBUpper), 1e-9)
	require.InDelta(t, 100, snap.Latest(RSI14), 1e-9)
}

func TestSnapshotValueOutOfRange(t *testing.T) {
	s := Snapshot{Len: 1, Series: map[string][]float64{Close: {1}}}
	require.True(t, math.IsNaN(s.Value(Close, 3)))
	require.True(t, math.IsNaN(s.Latest(RSI14)))
	require.False(t, s.Has(RSI14))
}
