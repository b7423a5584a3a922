package strategy

// Action is the trade direction carried by a Signal.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Condition names reported in Signal.Conditions.
const (
	CondMACDBullish  = "MACD > Signal"
	CondEMATrend     = "EMA Trend"
	CondRSI          = "RSI < 55"
	CondBollinger    = "BB Condition"
	CondMACDBearish  = "MACD < Signal"
	CondEMADowntrend = "EMA Downtrend"
)

// Signal is the result of one evaluation. It is never mutated after Evaluate returns.
type Signal struct {
	Action     Action          `json:"action"`
	Conditions map[string]bool `json:"conditions"`
	Price      float64         `json:"price"`
	Timestamp  int64           `json:"timestamp"`
	// Raw rule matches across the whole window, ignoring ledger gating.
	BuyRows  int `json:"buy_rows"`
	SellRows int `json:"sell_rows"`
}

// Thresholds parameterise the buy and sell rules.
type Thresholds struct {
	MinCandles    int     `yaml:"min_candles" json:"min_candles"`
	EMABuyFactor  float64 `yaml:"ema_buy_factor" json:"ema_buy_factor"`
	EMASellFactor float64 `yaml:"ema_sell_factor" json:"ema_sell_factor"`
	RSIMax        float64 `yaml:"rsi_max" json:"rsi_max"`
}

// DefaultThresholds returns the stock rule set. MinCandles matches the slowest MACD leg.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCandles:    26,
		EMABuyFactor:  0.995,
		EMASellFactor: 1.005,
		RSIMax:        55,
	}
}
