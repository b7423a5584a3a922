package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"dca-core/internal/indicators"
	"dca-core/internal/market"
)

type row struct {
	close, ema9, macd, signal, rsi, mid float64
}

var (
	bullish = row{close: 99, ema9: 99.2, macd: 1.2, signal: 1.0, rsi: 40, mid: 100}
	bearish = row{close: 98, ema9: 99, macd: 0.5, signal: 0.8, rsi: 45, mid: 100}
	neutral = row{close: 101, ema9: 100, macd: 1.2, signal: 1.0, rsi: 60, mid: 100}
)

func build(rows ...row) ([]market.Candle, indicators.Snapshot) {
	n := len(rows)
	window := make([]market.Candle, n)
	s := indicators.Snapshot{Len: n, Series: map[string][]float64{}}
	for _, name := range []string{indicators.Close, indicators.EMA9, indicators.MACD, indicators.MACDSignal, indicators.RSI14, indicators.BBMiddle} {
		s.Series[name] = make([]float64, n)
	}
	for i, r := range rows {
		window[i] = market.Candle{Timestamp: int64(i + 1), Open: r.close, High: r.close, Low: r.close, Close: r.close}
		s.Series[indicators.Close][i] = r.close
		s.Series[indicators.EMA9][i] = r.ema9
		s.Series[indicators.MACD][i] = r.macd
		s.Series[indicators.MACDSignal][i] = r.signal
		s.Series[indicators.RSI14][i] = r.rsi
		s.Series[indicators.BBMiddle][i] = r.mid
	}
	return window, s
}

func repeat(r row, n int) []row {
	out := make([]row, n)
	for i := range out {
		out[i] = r
	}
	return out
}

func TestEvaluateHoldsBelowLookback(t *testing.T) {
	g := NewGenerator(DefaultThresholds())
	for _, n := range []int{0, 1, 25} {
		window, snap := build(repeat(bullish, n)...)
		sig := g.Evaluate(window, snap, 0)
		require.Equal(t, Hold, sig.Action, "n=%d", n)
		require.Empty(t, sig.Conditions)
		require.Zero(t, sig.BuyRows)
	}
}

func TestEvaluateGating(t *testing.T) {
	cases := []struct {
		name string
		last row
		legs int
		want Action
	}{
		{"buy with empty ledger", bullish, 0, Buy},
		{"buy suppressed with open leg", bullish, 1, Hold},
		{"sell with open legs", bearish, 2, Sell},
		{"sell suppressed with empty ledger", bearish, 0, Hold},
		{"neutral", neutral, 0, Hold},
		{"neutral with legs", neutral, 3, Hold},
	}
	g := NewGenerator(DefaultThresholds())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rows := append(repeat(neutral, 29), tc.last)
			window, snap := build(rows...)
			sig := g.Evaluate(window, snap, tc.legs)
			require.Equal(t, tc.want, sig.Action)
			require.Equal(t, tc.last.close, sig.Price)
			require.Equal(t, int64(30), sig.Timestamp)
		})
	}
}

func TestEvaluateConditionsAndRowCounts(t *testing.T) {
	rows := append(repeat(bullish, 10), repeat(bearish, 5)...)
	rows = append(rows, repeat(neutral, 14)...)
	rows = append(rows, bullish)
	window, snap := build(rows...)

	sig := NewGenerator(DefaultThresholds()).Evaluate(window, snap, 1)
	require.Equal(t, Hold, sig.Action)
	require.Equal(t, 11, sig.BuyRows)
	require.Equal(t, 5, sig.SellRows)
	require.True(t, sig.Conditions[CondMACDBullish])
	require.True(t, sig.Conditions[CondEMATrend])
	require.True(t, sig.Conditions[CondRSI])
	require.True(t, sig.Conditions[CondBollinger])
	require.False(t, sig.Conditions[CondMACDBearish])
}

func TestEvaluateOneConditionMissingIsNotBuy(t *testing.T) {
	g := NewGenerator(DefaultThresholds())
	mutations := map[string]func(*row){
		CondMACDBullish: func(r *row) { r.macd = r.signal },
		CondEMATrend:    func(r *row) { r.ema9 = 100 },
		CondRSI:         func(r *row) { r.rsi = 55 },
		CondBollinger:   func(r *row) { r.mid = r.close },
	}
	for name, mutate := range mutations {
		last := bullish
		mutate(&last)
		window, snap := build(append(repeat(neutral, 29), last)...)
		sig := g.Evaluate(window, snap, 0)
		require.Equal(t, Hold, sig.Action, name)
		require.False(t, sig.Conditions[name], name)
	}
}

func TestEvaluateUndefinedIndicatorsNeverMatch(t *testing.T) {
	last := bullish
	last.signal = math.NaN()
	window, snap := build(append(repeat(neutral, 29), last)...)
	sig := NewGenerator(DefaultThresholds()).Evaluate(window, snap, 0)
	require.Equal(t, Hold, sig.Action)
	require.False(t, sig.Conditions[CondMACDBullish])
}

func TestEvaluateIncompleteSnapshot(t *testing.T) {
	window, snap := build(repeat(bullish, 30)...)
	delete(snap.Series, indicators.RSI14)
	sig := NewGenerator(DefaultThresholds()).Evaluate(window, snap, 0)
	require.Equal(t, Hold, sig.Action)
	require.Empty(t, sig.Conditions)
}

func TestDecide(t *testing.T) {
	cases := []struct {
		action Action
		legs   int
		price  float64
		want   Action
	}{
		{Buy, 0, 100, Buy},
		{Buy, 1, 100, Hold},
		{Sell, 1, 100, Sell},
		{Sell, 0, 100, Hold},
		{Hold, 0, 100, Hold},
		{Hold, 2, 100, Hold},
		{Buy, 0, 0, Hold},
	}
	for _, tc := range cases {
		got := Decide(Signal{Action: tc.action}, tc.legs, tc.price)
		if got != tc.want {
			t.Fatalf("Decide(%s, %d, %v) = %s, want %s", tc.action, tc.legs, tc.price, got, tc.want)
		}
	}
}
