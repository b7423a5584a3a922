package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// SignalConfig tunes the entry and exit rules.
type SignalConfig struct {
	MinCandles    int     `yaml:"min_candles"`
	EMABuyFactor  float64 `yaml:"ema_buy_factor"`
	EMASellFactor float64 `yaml:"ema_sell_factor"`
	RSIMax        float64 `yaml:"rsi_max"`
}

func DefaultSignal() SignalConfig {
	return SignalConfig{MinCandles: 26, EMABuyFactor: 0.995, EMASellFactor: 1.005, RSIMax: 55}
}

// LadderConfig overrides the sizing parameters. Nil fields keep the env values.
type LadderConfig struct {
	PriceDeviation  *float64 `yaml:"price_deviation"`
	BaseOrderSize   *float64 `yaml:"base_order_size"`
	OrderMultiplier *float64 `yaml:"order_multiplier"`
	MaxDCAOrders    *int     `yaml:"max_dca_orders"`
	MinNotional     *float64 `yaml:"min_notional"`
}

// StrategyFile is the top-level YAML structure.
type StrategyFile struct {
	Pair     string        `yaml:"pair"`
	Interval string        `yaml:"interval"`
	Signal   *SignalConfig `yaml:"signal"`
	Ladder   LadderConfig  `yaml:"ladder"`
}

// LoadStrategyFile reads strategy overrides from a YAML file.
func LoadStrategyFile(path string) (*StrategyFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file StrategyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// Apply overlays the file on cfg. Zero signal fields keep their defaults.
func (f *StrategyFile) Apply(cfg *Config) {
	if f.Pair != "" {
		cfg.Pair = f.Pair
	}
	if f.Interval != "" {
		cfg.Interval = f.Interval
	}
	if s := f.Signal; s != nil {
		if s.MinCandles > 0 {
			cfg.Signal.MinCandles = s.MinCandles
		}
		if s.EMABuyFactor > 0 {
			cfg.Signal.EMABuyFactor = s.EMABuyFactor
		}
		if s.EMASellFactor > 0 {
			cfg.Signal.EMASellFactor = s.EMASellFactor
		}
		if s.RSIMax > 0 {
			cfg.Signal.RSIMax = s.RSIMax
		}
	}
	l := f.Ladder
	if l.PriceDeviation != nil {
		cfg.PriceDeviation = *l.PriceDeviation
	}
	if l.BaseOrderSize != nil {
		cfg.BaseOrderSize = *l.BaseOrderSize
	}
	if l.OrderMultiplier != nil {
		cfg.OrderMultiplier = *l.OrderMultiplier
	}
	if l.MaxDCAOrders != nil {
		cfg.MaxDCAOrders = *l.MaxDCAOrders
	}
	if l.MinNotional != nil {
		cfg.MinNotional = *l.MinNotional
	}
}
