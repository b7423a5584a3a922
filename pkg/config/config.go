package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the bot.
type Config struct {
	// Market
	Pair     string // e.g. ETH/USDT
	Interval string

	// Ladder
	PriceDeviation  float64
	BaseOrderSize   float64
	OrderMultiplier float64
	MaxDCAOrders    int
	MinNotional     float64

	// Execution
	MaxRetries      int
	RetryDelay      time.Duration
	MinOrderSize    float64
	AmountPrecision int
	PricePrecision  int
	Commission      float64
	// Loaded for completeness; no exit path uses them.
	TakeProfit float64
	StopLoss   float64

	Signal SignalConfig

	// Stream
	WindowSize       int
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	UseMockFeed      bool

	// Binance
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceRESTURL   string
	BinanceStreamURL string

	// Dry-run simulation
	DryRun               bool
	DryRunInitialBalance float64

	// Journal
	DBPath        string
	LedgerRestore bool

	// Observability
	LogLevel           string
	HTTPAddr           string
	JWTSecret          string
	RedisAddr          string
	RedisPassword      string
	RedisChannelPrefix string

	// Remote indicator worker; empty computes in process.
	IndicatorWorkerAddr string
	StrategyFile        string
}

// Load reads environment variables (optionally via .env or keys.env), applies
// STRATEGY_FILE when set and validates the result.
func Load() (*Config, error) {
	// Ignore errors so the app still starts when the files are missing.
	_ = godotenv.Load()
	_ = godotenv.Load("keys.env")

	cfg := &Config{
		Pair:     strings.ToUpper(getEnv("TRADING_PAIR", "ETH/USDT")),
		Interval: getEnv("CANDLE_INTERVAL", "5m"),

		PriceDeviation:  getEnvFloat("PRICE_DEVIATION", 0.02),
		BaseOrderSize:   getEnvFloat("BASE_ORDER_SIZE", 10),
		OrderMultiplier: getEnvFloat("ORDER_MULTIPLIER", 2.6),
		MaxDCAOrders:    getEnvInt("MAX_DCA_ORDERS", 4),
		MinNotional:     getEnvFloat("MIN_NOTIONAL", 10),

		MaxRetries:      getEnvInt("MAX_RETRIES", 3),
		RetryDelay:      getEnvDuration("RETRY_DELAY", time.Second),
		MinOrderSize:    getEnvFloat("MIN_ORDER_SIZE", 0.00001),
		AmountPrecision: getEnvInt("AMOUNT_PRECISION", 8),
		PricePrecision:  getEnvInt("PRICE_PRECISION", 2),
		Commission:      getEnvFloat("COMMISSION", 0.001),
		TakeProfit:      getEnvFloat("TAKE_PROFIT", 0.055),
		StopLoss:        getEnvFloat("STOP_LOSS", 0.25),

		Signal: DefaultSignal(),

		WindowSize:       getEnvInt("WINDOW_SIZE", 50),
		ReconnectInitial: getEnvDuration("RECONNECT_INITIAL", 5*time.Second),
		ReconnectMax:     getEnvDuration("RECONNECT_MAX", 60*time.Second),
		UseMockFeed:      getEnvBool("USE_MOCK_FEED", false),

		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		BinanceRESTURL:   getEnv("BINANCE_REST_URL", "https://api.binance.us"),
		BinanceStreamURL: getEnv("BINANCE_STREAM_URL", "wss://stream.binance.us:9443/ws"),

		DryRun:               getEnvBool("DRY_RUN", false),
		DryRunInitialBalance: getEnvFloat("DRY_RUN_INITIAL_BALANCE", 1000),

		DBPath:        getEnv("DB_PATH", "./data/dca.db"),
		LedgerRestore: getEnvBool("LEDGER_RESTORE", false),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:          getEnv("JWT_SECRET", "dev-secret"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisChannelPrefix: getEnv("REDIS_CHANNEL_PREFIX", "dca"),

		IndicatorWorkerAddr: os.Getenv("INDICATOR_WORKER_ADDR"),
		StrategyFile:        os.Getenv("STRATEGY_FILE"),
	}

	if cfg.StrategyFile != "" {
		sf, err := LoadStrategyFile(cfg.StrategyFile)
		if err != nil {
			return nil, fmt.Errorf("strategy file: %w", err)
		}
		sf.Apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the ladder or executor cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(strings.Count(c.Pair, "/") == 1 && !strings.HasPrefix(c.Pair, "/") && !strings.HasSuffix(c.Pair, "/"), "TRADING_PAIR must look like BASE/QUOTE, got %q", c.Pair)
	check(c.Interval != "", "CANDLE_INTERVAL is required")
	check(c.PriceDeviation > 0 && c.PriceDeviation < 1, "PRICE_DEVIATION must be in (0,1), got %v", c.PriceDeviation)
	check(c.BaseOrderSize > 0, "BASE_ORDER_SIZE must be positive, got %v", c.BaseOrderSize)
	check(c.OrderMultiplier >= 1, "ORDER_MULTIPLIER must be >= 1, got %v", c.OrderMultiplier)
	check(c.MaxDCAOrders >= 1, "MAX_DCA_ORDERS must be >= 1, got %d", c.MaxDCAOrders)
	check(c.MinNotional >= 0, "MIN_NOTIONAL must not be negative, got %v", c.MinNotional)
	check(c.MaxRetries >= 1, "MAX_RETRIES must be >= 1, got %d", c.MaxRetries)
	check(c.RetryDelay >= 0, "RETRY_DELAY must not be negative")
	check(c.MinOrderSize > 0, "MIN_ORDER_SIZE must be positive, got %v", c.MinOrderSize)
	check(c.AmountPrecision >= 0 && c.AmountPrecision <= 18, "AMOUNT_PRECISION out of range: %d", c.AmountPrecision)
	check(c.PricePrecision >= 0 && c.PricePrecision <= 18, "PRICE_PRECISION out of range: %d", c.PricePrecision)
	check(c.Commission >= 0 && c.Commission < 1, "COMMISSION must be in [0,1), got %v", c.Commission)
	check(c.WindowSize >= c.Signal.MinCandles, "WINDOW_SIZE %d is below the %d candle lookback", c.WindowSize, c.Signal.MinCandles)
	check(c.ReconnectInitial > 0, "RECONNECT_INITIAL must be positive")
	check(c.ReconnectMax >= c.ReconnectInitial, "RECONNECT_MAX must be >= RECONNECT_INITIAL")
	check(c.Signal.MinCandles >= 1, "signal.min_candles must be >= 1")
	return errors.Join(errs...)
}

// Symbol returns the pair in venue form, e.g. ETHUSDT.
func (c *Config) Symbol() string {
	return strings.ReplaceAll(c.Pair, "/", "")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("1s") or bare seconds ("5").
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if s, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(s * float64(time.Second))
	}
	return def
}
