package order

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"dca-core/internal/events"
	"dca-core/internal/logger"
	"dca-core/pkg/db"
	exchange "dca-core/pkg/exchanges/common"
)

// Journal persists terminal order states.
type Journal interface {
	CreateOrder(ctx context.Context, o db.Order) error
}

// Config controls sizing, rounding and retry behaviour.
type Config struct {
	Symbol          string
	MaxRetries      int
	RetryDelay      time.Duration
	MinOrderSize    float64
	AmountPrecision int32
	PricePrecision  int32
	BuyPriceFactor  float64
	SellPriceFactor float64
}

// DefaultConfig returns the stock retry and limit-price settings for symbol.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:          symbol,
		MaxRetries:      3,
		RetryDelay:      time.Second,
		MinOrderSize:    0.00001,
		AmountPrecision: 8,
		PricePrecision:  2,
		BuyPriceFactor:  0.9999,
		SellPriceFactor: 1.0001,
	}
}

// Executor places limit orders with bounded retries. It never touches the ledger;
// the caller applies a successful Outcome.
type Executor struct {
	cfg        Config
	ex         Exchange
	Journal    Journal
	Bus        *events.Bus
	InstanceID string

	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

func NewExecutor(cfg Config, ex Exchange, bus *events.Bus) *Executor {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Executor{
		cfg:    cfg,
		ex:     ex,
		Bus:    bus,
		logger: logger.Component("executor"),
		sleep:  sleepCtx,
		now:    time.Now,
	}
}

// Buy spends quote at 0.9999× the current ticker.
func (e *Executor) Buy(ctx context.Context, quote float64) Outcome {
	req := Request{Symbol: e.cfg.Symbol, Side: exchange.SideBuy, QuoteAmount: quote}
	return e.run(ctx, req, func(ctx context.Context, clientID string) (Fill, error) {
		ticker, err := e.ticker(ctx)
		if err != nil {
			return Fill{}, err
		}
		amount := BaseAmount(quote, ticker, e.cfg.MinOrderSize, e.cfg.AmountPrecision)
		price := LimitPrice(ticker, e.cfg.BuyPriceFactor, e.cfg.PricePrecision)
		e.logger.Info("placing limit buy", "price", price, "amount", amount, "client_id", clientID)
		res, err := e.ex.CreateLimitBuy(ctx, e.cfg.Symbol, amount, price)
		if err != nil {
			return Fill{}, err
		}
		return e.fill(clientID, res, ticker, price, amount), nil
	})
}

// Sell places one limit sell for base at 1.0001× the current ticker.
func (e *Executor) Sell(ctx context.Context, base float64) Outcome {
	req := Request{Symbol: e.cfg.Symbol, Side: exchange.SideSell, BaseAmount: base}
	return e.run(ctx, req, func(ctx context.Context, clientID string) (Fill, error) {
		ticker, err := e.ticker(ctx)
		if err != nil {
			return Fill{}, err
		}
		amount := Round(base, e.cfg.AmountPrecision)
		price := LimitPrice(ticker, e.cfg.SellPriceFactor, e.cfg.PricePrecision)
		e.logger.Info("placing limit sell", "price", price, "amount", amount, "client_id", clientID)
		res, err := e.ex.CreateLimitSell(ctx, e.cfg.Symbol, amount, price)
		if err != nil {
			return Fill{}, err
		}
		return e.fill(clientID, res, ticker, price, amount), nil
	})
}

func (e *Executor) ticker(ctx context.Context) (float64, error) {
	p, err := e.ex.FetchTicker(ctx, e.cfg.Symbol)
	if err != nil {
		return 0, fmt.Errorf("fetch ticker: %w", err)
	}
	if p <= 0 {
		return 0, fmt.Errorf("fetch ticker: non-positive price %v", p)
	}
	return p, nil
}

func (e *Executor) fill(clientID string, res exchange.OrderResult, ticker, price, amount float64) Fill {
	f := Fill{
		ClientID:        clientID,
		ExchangeOrderID: res.ExchangeOrderID,
		Status:          res.Status,
		Price:           price,
		Amount:          amount,
		Ticker:          ticker,
		At:              e.now(),
	}
	if res.Price > 0 {
		f.Price = res.Price
	}
	if res.ExecutedQty > 0 {
		f.Amount = res.ExecutedQty
	}
	return f
}

// run drives the retry state machine. A request already sent to the exchange is
// never aborted by ctx; cancellation only stops further attempts.
func (e *Executor) run(ctx context.Context, req Request, place func(context.Context, string) (Fill, error)) Outcome {
	out := Outcome{Request: req}
	side := string(req.Side)
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		out.Attempts = attempt
		clientID := e.clientID()
		fill, err := place(WithClientID(context.WithoutCancel(ctx), clientID), clientID)
		if err == nil {
			out.Status = Succeeded
			out.Fill = fill
			e.Bus.Publish(events.EventOrderAttempt, events.OrderAttempt{Side: side, Attempt: attempt})
			e.finish(ctx, out, clientID)
			return out
		}

		lastErr = err
		e.Bus.Publish(events.EventOrderAttempt, events.OrderAttempt{Side: side, Attempt: attempt, Error: err.Error()})
		e.logger.Warn("order attempt failed", "side", side, "attempt", attempt, "max", e.cfg.MaxRetries, "error", err)

		if attempt == e.cfg.MaxRetries {
			break
		}
		if err := e.sleep(ctx, e.cfg.RetryDelay); err != nil {
			lastErr = fmt.Errorf("%w (retry aborted: %v)", lastErr, err)
			break
		}
	}

	out.Status = Failed
	out.Err = fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, out.Attempts, lastErr)
	e.finish(ctx, out, "")
	return out
}

func (e *Executor) finish(ctx context.Context, out Outcome, clientID string) {
	res := events.OrderResult{
		ClientID: clientID,
		Side:     string(out.Request.Side),
		Status:   string(out.Status),
		Attempts: out.Attempts,
		Price:    out.Fill.Price,
		Amount:   out.Fill.Amount,
	}
	if out.Err != nil {
		res.Error = out.Err.Error()
		e.logger.Error("order failed", "side", res.Side, "attempts", out.Attempts, "error", out.Err)
	} else {
		e.logger.Info("order placed", "side", res.Side, "attempts", out.Attempts, "price", res.Price, "amount", res.Amount, "exchange_id", out.Fill.ExchangeOrderID)
	}
	e.Bus.Publish(events.EventOrderResult, res)

	if e.Journal == nil {
		return
	}
	id := clientID
	if id == "" {
		id = e.clientID()
	}
	qty := out.Request.BaseAmount
	if out.Fill.Amount > 0 {
		qty = out.Fill.Amount
	}
	rec := db.Order{
		ID:         id,
		InstanceID: e.InstanceID,
		Symbol:     out.Request.Symbol,
		Side:       res.Side,
		Price:      out.Fill.Price,
		Qty:        qty,
		Status:     string(out.Status),
		Attempts:   out.Attempts,
		Error:      res.Error,
		CreatedAt:  e.now(),
	}
	if out.OK() {
		rec.FilledQty = out.Fill.Amount
		rec.Status = string(out.Fill.Status)
	}
	if err := e.Journal.CreateOrder(context.WithoutCancel(ctx), rec); err != nil {
		e.logger.Error("journal order", "id", id, "error", err)
	}
}

// clientID is unique per attempt and fits Binance's 36 character limit.
func (e *Executor) clientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if e.InstanceID == "" {
		return "dca-" + id[:24]
	}
	prefix := e.InstanceID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return prefix + "-" + id[:24]
}

// BaseAmount converts quote into base at price, floored at minSize and rounded to places.
func BaseAmount(quote, price, minSize float64, places int32) float64 {
	amt := decimal.NewFromFloat(quote).Div(decimal.NewFromFloat(price))
	amt = decimal.Max(amt, decimal.NewFromFloat(minSize))
	return amt.Round(places).InexactFloat64()
}

// LimitPrice offsets price by factor and rounds to places.
func LimitPrice(price, factor float64, places int32) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(factor)).Round(places).InexactFloat64()
}

func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
