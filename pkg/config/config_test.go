package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "ETH/USDT", cfg.Pair)
	require.Equal(t, "ETHUSDT", cfg.Symbol())
	require.Equal(t, "5m", cfg.Interval)
	require.Equal(t, 0.02, cfg.PriceDeviation)
	require.Equal(t, 10.0, cfg.BaseOrderSize)
	require.Equal(t, 2.6, cfg.OrderMultiplier)
	require.Equal(t, 4, cfg.MaxDCAOrders)
	require.Equal(t, 10.0, cfg.MinNotional)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, time.Second, cfg.RetryDelay)
	require.Equal(t, 0.00001, cfg.MinOrderSize)
	require.Equal(t, 8, cfg.AmountPrecision)
	require.Equal(t, 2, cfg.PricePrecision)
	require.Equal(t, 50, cfg.WindowSize)
	require.Equal(t, 5*time.Second, cfg.ReconnectInitial)
	require.Equal(t, 60*time.Second, cfg.ReconnectMax)
	require.Equal(t, DefaultSignal(), cfg.Signal)
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TRADING_PAIR", "btc/usdt")
	t.Setenv("MAX_DCA_ORDERS", "6")
	t.Setenv("RETRY_DELAY", "250ms")
	t.Setenv("RECONNECT_INITIAL", "2")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("MAX_RETRIES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "BTC/USDT", cfg.Pair)
	require.Equal(t, 6, cfg.MaxDCAOrders)
	require.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	require.Equal(t, 2*time.Second, cfg.ReconnectInitial)
	require.True(t, cfg.DryRun)
	require.Equal(t, 3, cfg.MaxRetries)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keys.env"), []byte("BINANCE_API_KEY=abc\nBINANCE_API_SECRET=def\n"), 0o600))
	for _, k := range []string{"BINANCE_API_KEY", "BINANCE_API_SECRET"} {
		t.Setenv(k, "") // restores the original value after the test
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "abc", cfg.BinanceAPIKey)
	require.Equal(t, "def", cfg.BinanceAPISecret)
}

func TestStrategyFileOverrides(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "strategy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pair: SOL/USDT
signal:
  rsi_max: 50
ladder:
  price_deviation: 0.03
  max_dca_orders: 3
`), 0o600))
	t.Setenv("STRATEGY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "SOL/USDT", cfg.Pair)
	require.Equal(t, 50.0, cfg.Signal.RSIMax)
	require.Equal(t, 0.995, cfg.Signal.EMABuyFactor)
	require.Equal(t, 0.03, cfg.PriceDeviation)
	require.Equal(t, 3, cfg.MaxDCAOrders)
	require.Equal(t, 10.0, cfg.BaseOrderSize)
}

func TestStrategyFileMissing(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("STRATEGY_FILE", "does-not-exist.yaml")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdir(t, t.TempDir())
	base, err := Load()
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"pair":       func(c *Config) { c.Pair = "ETHUSDT" },
		"multiplier": func(c *Config) { c.OrderMultiplier = 0.5 },
		"legs":       func(c *Config) { c.MaxDCAOrders = 0 },
		"retries":    func(c *Config) { c.MaxRetries = 0 },
		"base size":  func(c *Config) { c.BaseOrderSize = 0 },
		"deviation":  func(c *Config) { c.PriceDeviation = 1.5 },
		"window":     func(c *Config) { c.WindowSize = 10 },
		"reconnect":  func(c *Config) { c.ReconnectMax = time.Second },
		"order size": func(c *Config) { c.MinOrderSize = 0 },
		"commission": func(c *Config) { c.Commission = -1 },
	}
	for name, mutate := range cases {
		c := *base
		mutate(&c)
		require.Error(t, c.Validate(), name)
	}
	require.NoError(t, base.Validate())
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory for the duration of the test and restores it after.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
