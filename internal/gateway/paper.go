package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"dca-core/internal/logger"
	"dca-core/internal/market"
	"dca-core/internal/order"
	exchange "dca-core/pkg/exchanges/common"
	marketpkg "dca-core/pkg/market/binance"
)

// PaperConfig configures simulated execution.
type PaperConfig struct {
	QuoteBalance float64
	FeeRate      float64 // 0.001 = 10 bps
}

// PaperFill is one simulated execution.
type PaperFill struct {
	ID       string
	ClientID string
	Symbol   string
	Side     exchange.Side
	Qty      float64
	Price    float64
	Fee      float64
	At       time.Time
}

// Paper fills every limit order immediately at its limit price with cash and
// inventory accounting. Market data comes from a real or mock source.
type Paper struct {
	data  market.HistorySource
	price func(ctx context.Context, symbol string) (float64, error)

	mu      sync.RWMutex
	quote   float64
	base    float64
	feeRate float64
	fills   []PaperFill

	logger *slog.Logger
}

// NewPaper builds a paper exchange over data; ticker prices are read from ticker,
// or from the last kline close when ticker is nil.
func NewPaper(cfg PaperConfig, data market.HistorySource, ticker func(ctx context.Context, symbol string) (float64, error)) *Paper {
	p := &Paper{
		data:    data,
		price:   ticker,
		quote:   cfg.QuoteBalance,
		feeRate: cfg.FeeRate,
		logger:  logger.Component("paper"),
	}
	if p.price == nil {
		p.price = p.lastClose
	}
	return p
}

func (p *Paper) Setup(context.Context) error {
	p.logger.Info("paper exchange ready", "quote_balance", p.quote, "fee_rate", p.feeRate)
	return nil
}

func (p *Paper) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]marketpkg.Kline, error) {
	return p.data.GetKlines(ctx, symbol, interval, limit)
}

func (p *Paper) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	return p.price(ctx, symbol)
}

func (p *Paper) lastClose(ctx context.Context, symbol string) (float64, error) {
	ks, err := p.data.GetKlines(ctx, symbol, "1m", 1)
	if err != nil {
		return 0, err
	}
	if len(ks) == 0 {
		return 0, fmt.Errorf("paper: no price for %s", symbol)
	}
	return ks[len(ks)-1].Close, nil
}

func (p *Paper) CreateLimitBuy(ctx context.Context, symbol string, amount, price float64) (exchange.OrderResult, error) {
	return p.execute(ctx, exchange.SideBuy, symbol, amount, price)
}

func (p *Paper) CreateLimitSell(ctx context.Context, symbol string, amount, price float64) (exchange.OrderResult, error) {
	return p.execute(ctx, exchange.SideSell, symbol, amount, price)
}

func (p *Paper) execute(ctx context.Context, side exchange.Side, symbol string, qty, price float64) (exchange.OrderResult, error) {
	if qty <= 0 || price <= 0 {
		return exchange.OrderResult{}, fmt.Errorf("paper: invalid order qty=%v price=%v", qty, price)
	}
	value := qty * price
	fee := value * p.feeRate

	p.mu.Lock()
	switch side {
	case exchange.SideBuy:
		if value+fee > p.quote {
			p.mu.Unlock()
			return exchange.OrderResult{}, fmt.Errorf("insufficient balance: need %.2f, have %.2f", value+fee, p.quote)
		}
		p.quote -= value + fee
		p.base += qty
	case exchange.SideSell:
		if qty > p.base+1e-12 {
			p.mu.Unlock()
			return exchange.OrderResult{}, fmt.Errorf("insufficient inventory: need %.8f, have %.8f", qty, p.base)
		}
		p.base -= qty
		p.quote += value - fee
	}
	f := PaperFill{
		ID:       uuid.NewString(),
		ClientID: order.ClientID(ctx),
		Symbol:   symbol,
		Side:     side,
		Qty:      qty,
		Price:    price,
		Fee:      fee,
		At:       time.Now(),
	}
	p.fills = append(p.fills, f)
	quote, base := p.quote, p.base
	p.mu.Unlock()

	p.logger.Info("paper fill", "side", side, "symbol", symbol, "qty", qty, "price", price, "fee", fee, "quote_balance", quote, "base_balance", base)
	return exchange.OrderResult{
		ExchangeOrderID: f.ID,
		ClientID:        f.ClientID,
		Status:          exchange.StatusFilled,
		Price:           price,
		ExecutedQty:     qty,
	}, nil
}

// Balances returns the simulated quote and base holdings.
func (p *Paper) Balances() (quote, base float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quote, p.base
}

// Fills returns a copy of the simulated executions.
func (p *Paper) Fills() []PaperFill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PaperFill, len(p.fills))
	copy(out, p.fills)
	return out
}
