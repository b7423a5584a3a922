package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dca-core/internal/api"
	"dca-core/internal/engine"
	"dca-core/internal/events"
	"dca-core/internal/gateway"
	"dca-core/internal/indicators"
	"dca-core/internal/logger"
	"dca-core/internal/market"
	"dca-core/internal/monitor"
	"dca-core/internal/order"
	"dca-core/internal/position"
	"dca-core/internal/strategy"
	"dca-core/pkg/config"
	"dca-core/pkg/db"
	"dca-core/pkg/instance"
	marketbinance "dca-core/pkg/market/binance"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	log := logger.Init("dca-core", logger.ParseLevel(cfg.LogLevel))

	// `dca-core token [operator]` prints a bearer token for the status API.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		operator := "operator"
		if len(os.Args) > 2 {
			operator = os.Args[2]
		}
		tok, err := api.IssueToken(operator, cfg.JWTSecret, 24*time.Hour)
		if err != nil {
			log.Error("issue token", "err", err)
			return 1
		}
		fmt.Println(tok)
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instanceID, stable := instance.ID()
	if !stable {
		log.Warn("machine id unavailable, using random instance id")
	}
	symbol := cfg.Symbol()
	if cfg.UseMockFeed && !cfg.DryRun {
		log.Warn("mock feed forces dry run")
		cfg.DryRun = true
	}
	log.Info("starting",
		"version", version,
		"instance", instance.Short(instanceID, 8),
		"pair", cfg.Pair,
		"interval", cfg.Interval,
		"dry_run", cfg.DryRun,
		"mock_feed", cfg.UseMockFeed,
	)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Error("open journal", "path", cfg.DBPath, "err", err)
		return 1
	}
	defer database.Close()

	// Event fan-out: logs, metrics and optionally redis.
	bus := events.NewBus()
	metrics := monitor.NewMetrics()
	sinkCtx, stopSinks := context.WithCancel(context.Background())
	sinksDone := []<-chan struct{}{
		bus.Pipe(sinkCtx, events.LogSink{Logger: logger.Component("events")}, 256),
		bus.Pipe(sinkCtx, metrics, 256),
	}
	if cfg.RedisAddr != "" {
		rs, err := events.NewRedisSink(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisChannelPrefix)
		if err != nil {
			log.Warn("redis sink disabled", "addr", cfg.RedisAddr, "err", err)
		} else {
			defer rs.Close()
			sinksDone = append(sinksDone, bus.Pipe(sinkCtx, rs, 256))
		}
	}
	defer func() {
		stopSinks()
		for _, done := range sinksDone {
			<-done
		}
	}()

	venue, history, live := buildVenue(cfg, symbol)

	var bridge indicators.Bridge = indicators.LocalBridge{}
	bridgeName := "local"
	if cfg.IndicatorWorkerAddr != "" {
		remote, err := indicators.NewRemoteBridge(cfg.IndicatorWorkerAddr)
		if err != nil {
			log.Error("indicator worker", "addr", cfg.IndicatorWorkerAddr, "err", err)
			return 1
		}
		defer remote.Close()
		bridge, bridgeName = remote, "remote"
	}

	stream := market.NewStream(market.StreamConfig{
		Symbol:           symbol,
		Interval:         cfg.Interval,
		ReconnectInitial: cfg.ReconnectInitial,
		ReconnectMax:     cfg.ReconnectMax,
	}, market.NewWindow(cfg.WindowSize), history, live, bus)

	exec := order.NewExecutor(order.Config{
		Symbol:          symbol,
		MaxRetries:      cfg.MaxRetries,
		RetryDelay:      cfg.RetryDelay,
		MinOrderSize:    cfg.MinOrderSize,
		AmountPrecision: int32(cfg.AmountPrecision),
		PricePrecision:  int32(cfg.PricePrecision),
		BuyPriceFactor:  0.9999,
		SellPriceFactor: 1.0001,
	}, venue, bus)
	exec.Journal = database
	exec.InstanceID = instanceID

	orch := engine.New(engine.Config{
		Symbol:        symbol,
		RestoreLedger: cfg.LedgerRestore,
	}, engine.Deps{
		Venue:  venue,
		Feed:   stream,
		Bridge: bridge,
		Signals: strategy.NewGenerator(strategy.Thresholds{
			MinCandles:    cfg.Signal.MinCandles,
			EMABuyFactor:  cfg.Signal.EMABuyFactor,
			EMASellFactor: cfg.Signal.EMASellFactor,
			RSIMax:        cfg.Signal.RSIMax,
		}),
		Ledger: position.NewLedger(cfg.MaxDCAOrders, cfg.PriceDeviation),
		Policy: position.Policy{
			BaseOrderSize: cfg.BaseOrderSize,
			Multiplier:    cfg.OrderMultiplier,
			MinNotional:   cfg.MinNotional,
		},
		Trader:  exec,
		Journal: database,
		Bus:     bus,
		OnCycle: metrics.ObserveCycle,
	})

	server := api.NewServer(orch, database, bus, metrics.Handler(), api.SystemMeta{
		Symbol:     symbol,
		Interval:   cfg.Interval,
		DryRun:     cfg.DryRun,
		MockFeed:   cfg.UseMockFeed,
		Indicators: bridgeName,
		InstanceID: instance.Short(instanceID, 8),
		Version:    version,
	}, cfg.JWTSecret)
	go func() {
		if err := server.Start(cfg.HTTPAddr); err != nil {
			log.Error("http server", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := orch.Run(ctx); err != nil {
		log.Error("pipeline aborted", "err", err)
		if errors.Is(err, engine.ErrSetup) {
			return 3
		}
		return 1
	}
	log.Info("shutdown complete")
	return 0
}

// buildVenue picks the exchange collaborator and market data sources.
func buildVenue(cfg *config.Config, symbol string) (gateway.Exchange, market.HistorySource, market.Subscriber) {
	log := logger.Component("main")
	if cfg.UseMockFeed {
		feed := &market.MockFeed{StartPrice: 2000, Step: 4, Interval: 2 * time.Second}
		paper := gateway.NewPaper(gateway.PaperConfig{
			QuoteBalance: cfg.DryRunInitialBalance,
			FeeRate:      cfg.Commission,
		}, feed, nil)
		return paper, feed, feed
	}

	rest := marketbinance.NewClient(cfg.BinanceRESTURL)
	live := market.BinanceSubscriber{Client: marketbinance.NewStreamClient(cfg.BinanceStreamURL)}
	if cfg.DryRun {
		paper := gateway.NewPaper(gateway.PaperConfig{
			QuoteBalance: cfg.DryRunInitialBalance,
			FeeRate:      cfg.Commission,
		}, rest, func(ctx context.Context, sym string) (float64, error) {
			t, err := rest.GetTickerPrice(ctx, sym)
			return t.Price, err
		})
		log.Info("paper trading against live market data", "symbol", symbol, "balance", cfg.DryRunInitialBalance)
		return paper, rest, live
	}

	bin := gateway.NewBinance(gateway.BinanceConfig{
		RESTURL:   cfg.BinanceRESTURL,
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
	})
	return bin, bin, live
}
