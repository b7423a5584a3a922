package strategy

import (
	"log/slog"

	"dca-core/internal/indicators"
	"dca-core/internal/logger"
	"dca-core/internal/market"
)

var required = []string{
	indicators.Close,
	indicators.EMA9,
	indicators.MACD,
	indicators.MACDSignal,
	indicators.RSI14,
	indicators.BBMiddle,
}

// Generator evaluates the latest indicator row into a gated Signal.
type Generator struct {
	th     Thresholds
	logger *slog.Logger
}

func NewGenerator(th Thresholds) *Generator {
	return &Generator{th: th, logger: logger.Component("signal")}
}

// Evaluate derives a Signal from the window and its snapshot. Buy is surfaced only
// with no open legs, Sell only with at least one.
func (g *Generator) Evaluate(window []market.Candle, snap indicators.Snapshot, openLegs int) Signal {
	sig := Signal{Action: Hold, Conditions: map[string]bool{}}
	if n := len(window); n > 0 {
		sig.Price = window[n-1].Close
		sig.Timestamp = window[n-1].Timestamp
	}
	if len(window) < g.th.MinCandles {
		return sig
	}
	if snap.Len != len(window) || !snap.Has(required...) {
		g.logger.Warn("indicator snapshot incomplete", "rows", snap.Len, "window", len(window))
		return sig
	}

	for i := 0; i < snap.Len; i++ {
		r := g.row(snap, i)
		switch {
		case r.sell():
			sig.SellRows++
		case r.buy():
			sig.BuyRows++
		}
	}

	last := g.row(snap, snap.Len-1)
	sig.Conditions = map[string]bool{
		CondMACDBullish:  last.macdUp,
		CondEMATrend:     last.aboveEMA,
		CondRSI:          last.rsiLow,
		CondBollinger:    last.belowMid,
		CondMACDBearish:  last.macdDown,
		CondEMADowntrend: last.belowEMA,
	}

	switch {
	case last.sell():
		if openLegs > 0 {
			sig.Action = Sell
		}
	case last.buy():
		if openLegs == 0 {
			sig.Action = Buy
		}
	}
	return sig
}

type rules struct {
	macdUp, aboveEMA, rsiLow, belowMid bool
	macdDown, belowEMA                 bool
}

func (r rules) buy() bool  { return r.macdUp && r.aboveEMA && r.rsiLow && r.belowMid }
func (r rules) sell() bool { return r.macdDown && r.belowEMA }

// NaN inputs compare false, so undefined rows never match.
func (g *Generator) row(s indicators.Snapshot, i int) rules {
	price := s.Value(indicators.Close, i)
	macd := s.Value(indicators.MACD, i)
	signal := s.Value(indicators.MACDSignal, i)
	ema := s.Value(indicators.EMA9, i)
	return rules{
		macdUp:   macd > signal,
		aboveEMA: price > ema*g.th.EMABuyFactor,
		rsiLow:   s.Value(indicators.RSI14, i) < g.th.RSIMax,
		belowMid: price < s.Value(indicators.BBMiddle, i),
		macdDown: macd < signal,
		belowEMA: price < ema*g.th.EMASellFactor,
	}
}
