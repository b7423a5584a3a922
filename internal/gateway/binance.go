package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dca-core/internal/logger"
	"dca-core/internal/order"
	"dca-core/pkg/exchanges/binance/spot"
	exchange "dca-core/pkg/exchanges/common"
	marketpkg "dca-core/pkg/market/binance"
)

// Binance is the live exchange: public market data over REST and signed spot orders.
type Binance struct {
	market *marketpkg.Client
	spot   *spot.Client
	logger *slog.Logger
}

type BinanceConfig struct {
	RESTURL   string
	APIKey    string
	APISecret string
}

func NewBinance(cfg BinanceConfig) *Binance {
	return &Binance{
		market: marketpkg.NewClient(cfg.RESTURL),
		spot:   spot.New(spot.Config{APIKey: cfg.APIKey, APISecret: cfg.APISecret, BaseURL: cfg.RESTURL}),
		logger: logger.Component("gateway"),
	}
}

// Setup checks credentials, synchronises the request clock and starts periodic resync.
func (b *Binance) Setup(ctx context.Context) error {
	if !b.spot.HasCredentials() {
		return spot.ErrMissingCredentials
	}
	ts := b.spot.TimeSync()
	if err := ts.Sync(ctx); err != nil {
		return fmt.Errorf("sync server time: %w", err)
	}
	b.logger.Info("exchange ready", "time_offset_ms", ts.Offset())
	ts.Start(ctx)
	return nil
}

func (b *Binance) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]marketpkg.Kline, error) {
	return b.market.GetKlines(ctx, symbol, interval, limit)
}

func (b *Binance) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	t, err := b.market.GetTickerPrice(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return t.Price, nil
}

func (b *Binance) CreateLimitBuy(ctx context.Context, symbol string, amount, price float64) (exchange.OrderResult, error) {
	return b.submit(ctx, exchange.SideBuy, symbol, amount, price)
}

func (b *Binance) CreateLimitSell(ctx context.Context, symbol string, amount, price float64) (exchange.OrderResult, error) {
	return b.submit(ctx, exchange.SideSell, symbol, amount, price)
}

func (b *Binance) submit(ctx context.Context, side exchange.Side, symbol string, amount, price float64) (exchange.OrderResult, error) {
	res, err := b.spot.SubmitOrder(ctx, exchange.OrderRequest{
		Symbol:      symbol,
		Side:        side,
		Type:        exchange.OrderTypeLimit,
		Qty:         amount,
		Price:       price,
		TimeInForce: exchange.TIFGTC,
		ClientID:    order.ClientID(ctx),
	})
	if err != nil {
		return exchange.OrderResult{}, err
	}
	if res.Status == exchange.StatusRejected || res.Status == exchange.StatusExpired {
		return res, errors.New("binance: order " + string(res.Status))
	}
	return res, nil
}
