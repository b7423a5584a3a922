// Command health_check probes every collaborator the bot depends on and exits
// non-zero when any of them is unhealthy.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"dca-core/internal/events"
	"dca-core/internal/gateway"
	"dca-core/internal/indicators"
	"dca-core/internal/market"
	"dca-core/pkg/config"
	"dca-core/pkg/db"
	exspot "dca-core/pkg/exchanges/binance/spot"
	marketbinance "dca-core/pkg/market/binance"
)

const (
	healthy   = "HEALTHY"
	degraded  = "DEGRADED"
	unhealthy = "UNHEALTHY"
)

type HealthStatus struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthReport struct {
	Overall  string         `json:"overall"`
	Services []HealthStatus `json:"services"`
}

type check func(ctx context.Context, cfg *config.Config) (string, string)

func main() {
	fmt.Println("dca-core health check")
	fmt.Println("=====================")

	report := HealthReport{Overall: healthy}
	cfg, err := config.Load()
	if err != nil {
		report.Services = append(report.Services, HealthStatus{
			Service: "Configuration", Status: unhealthy, Message: err.Error(), Timestamp: time.Now(),
		})
		finish(report)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	checks := []struct {
		name string
		fn   check
	}{
		{"Configuration", checkConfig},
		{"Journal", checkJournal},
		{"Binance market data", checkMarketData},
		{"Binance account", checkAccount},
		{"Indicator worker", checkIndicatorWorker},
		{"Redis", checkRedis},
		{"Status API", checkAPIServer},
	}
	for _, c := range checks {
		status, msg := c.fn(ctx, cfg)
		report.Services = append(report.Services, HealthStatus{
			Service: c.name, Status: status, Message: msg, Timestamp: time.Now(),
		})
	}
	finish(report)
}

func finish(report HealthReport) {
	for _, svc := range report.Services {
		if svc.Status == unhealthy {
			report.Overall = unhealthy
			break
		} else if svc.Status == degraded {
			report.Overall = degraded
		}
	}

	fmt.Println()
	for _, svc := range report.Services {
		icon := "✓"
		switch svc.Status {
		case unhealthy:
			icon = "✗"
		case degraded:
			icon = "⚠"
		}
		fmt.Printf("%s %-20s %-9s %s\n", icon, svc.Service, svc.Status, svc.Message)
	}
	fmt.Printf("\nOverall Status: %s\n", report.Overall)

	if len(os.Args) > 1 && os.Args[1] == "--json" {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	}
	if report.Overall == unhealthy {
		os.Exit(1)
	}
}

func checkConfig(_ context.Context, cfg *config.Config) (string, string) {
	msg := fmt.Sprintf("pair=%s interval=%s legs=%d dry_run=%v", cfg.Pair, cfg.Interval, cfg.MaxDCAOrders, cfg.DryRun)
	if cfg.JWTSecret == "dev-secret" {
		return degraded, msg + " (JWT_SECRET is the development default)"
	}
	return healthy, msg
}

func checkJournal(ctx context.Context, cfg *config.Config) (string, string) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return unhealthy, err.Error()
	}
	defer database.Close()

	legs, err := database.OpenLegs(ctx, cfg.Symbol())
	if err != nil {
		return unhealthy, fmt.Sprintf("query failed: %v", err)
	}
	return healthy, fmt.Sprintf("%s, %d open legs", cfg.DBPath, len(legs))
}

func checkMarketData(ctx context.Context, cfg *config.Config) (string, string) {
	if cfg.UseMockFeed {
		return healthy, "mock feed"
	}
	client := marketbinance.NewClient(cfg.BinanceRESTURL)
	serverTime, err := client.GetServerTime(ctx)
	if err != nil {
		return unhealthy, fmt.Sprintf("server time: %v", err)
	}
	ticker, err := client.GetTickerPrice(ctx, cfg.Symbol())
	if err != nil {
		return unhealthy, fmt.Sprintf("ticker: %v", err)
	}
	skew := time.Since(time.UnixMilli(serverTime)).Round(time.Millisecond)
	return healthy, fmt.Sprintf("%s=%.2f clock skew %s", ticker.Symbol, ticker.Price, skew)
}

func checkAccount(ctx context.Context, cfg *config.Config) (string, string) {
	if cfg.DryRun || cfg.UseMockFeed {
		return healthy, fmt.Sprintf("paper trading, balance %.2f", cfg.DryRunInitialBalance)
	}
	client := exspot.New(exspot.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		BaseURL:   cfg.BinanceRESTURL,
	})
	if !client.HasCredentials() {
		return unhealthy, "BINANCE_API_KEY / BINANCE_API_SECRET not set"
	}
	if err := client.TimeSync().Sync(ctx); err != nil {
		return unhealthy, fmt.Sprintf("time sync: %v", err)
	}
	info, err := client.GetAccountInfo(ctx)
	if err != nil {
		return unhealthy, err.Error()
	}
	base, quote := gateway.SplitPair(cfg.Pair)
	return healthy, fmt.Sprintf("%s free=%.2f %s free=%.8f", quote, info.Free(quote), base, info.Free(base))
}

func checkIndicatorWorker(ctx context.Context, cfg *config.Config) (string, string) {
	if cfg.IndicatorWorkerAddr == "" {
		return healthy, "in-process indicators"
	}
	bridge, err := indicators.NewRemoteBridge(cfg.IndicatorWorkerAddr)
	if err != nil {
		return unhealthy, err.Error()
	}
	defer bridge.Close()

	feed := &market.MockFeed{StartPrice: 100, Step: 1}
	klines, _ := feed.GetKlines(ctx, cfg.Symbol(), cfg.Interval, cfg.WindowSize)
	window := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		window = append(window, market.FromKline(k))
	}
	snap, err := bridge.Compute(ctx, window)
	if err != nil {
		return unhealthy, fmt.Sprintf("compute: %v", err)
	}
	return healthy, fmt.Sprintf("%s returned %d series", cfg.IndicatorWorkerAddr, len(snap.Series))
}

func checkRedis(ctx context.Context, cfg *config.Config) (string, string) {
	if cfg.RedisAddr == "" {
		return healthy, "disabled"
	}
	sink, err := events.NewRedisSink(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisChannelPrefix)
	if err != nil {
		// The bot keeps running without the redis sink.
		return degraded, err.Error()
	}
	_ = sink.Close()
	return healthy, cfg.RedisAddr
}

func checkAPIServer(ctx context.Context, cfg *config.Config) (string, string) {
	addr := cfg.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return unhealthy, err.Error()
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return degraded, fmt.Sprintf("not reachable: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return degraded, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return healthy, "running"
}
