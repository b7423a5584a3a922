// Package engine drives the trading loop: one closed candle in, at most one order out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dca-core/internal/events"
	"dca-core/internal/indicators"
	"dca-core/internal/logger"
	"dca-core/internal/market"
	"dca-core/internal/monitor"
	"dca-core/internal/order"
	"dca-core/internal/position"
	"dca-core/internal/strategy"
	"dca-core/pkg/db"
)

// ErrSetup marks faults that abort the pipeline before the loop starts.
var ErrSetup = errors.New("engine: setup failed")

// Feed produces closed candles in arrival order.
type Feed interface {
	Backfill(ctx context.Context) error
	Run(ctx context.Context, out chan<- market.Update)
}

// Venue is checked once at startup.
type Venue interface {
	Setup(ctx context.Context) error
}

// Trader places the orders for a decision.
type Trader interface {
	Buy(ctx context.Context, quote float64) order.Outcome
	Sell(ctx context.Context, base float64) order.Outcome
}

// LegJournal persists ladder legs so a restart can resume an open ladder.
type LegJournal interface {
	OpenLeg(ctx context.Context, l db.Leg) (int64, error)
	CloseLegs(ctx context.Context, symbol, orderID string, price float64, at time.Time) (int64, error)
	OpenLegs(ctx context.Context, symbol string) ([]db.Leg, error)
}

type Config struct {
	Symbol string
	// QueueSize bounds the channel between the stream and the loop.
	QueueSize int
	// RestoreLedger reloads open legs from the journal during Setup.
	RestoreLedger bool
}

// Deps are the collaborators the Orchestrator wires together. Journal, Bus and
// OnCycle are optional.
type Deps struct {
	Venue   Venue
	Feed    Feed
	Bridge  indicators.Bridge
	Signals *strategy.Generator
	Ledger  *position.Ledger
	Policy  position.Policy
	Trader  Trader
	Journal LegJournal
	Bus     *events.Bus
	OnCycle func(time.Duration)
}

// Orchestrator owns the ledger and processes updates strictly one at a time.
type Orchestrator struct {
	cfg     Config
	d       Deps
	logger  *slog.Logger
	latency *monitor.LatencyHistogram
	now     func() time.Time

	mu     sync.RWMutex
	status Status
}

func New(cfg Config, d Deps) *Orchestrator {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	return &Orchestrator{
		cfg:     cfg,
		d:       d,
		logger:  logger.Component("engine"),
		latency: monitor.NewLatencyHistogram(512),
		now:     time.Now,
		status:  Status{Symbol: cfg.Symbol, Phase: PhaseIdle, MaxLegs: d.Ledger.MaxLegs()},
	}
}

// Setup verifies the venue, restores the ledger if configured and loads history.
func (o *Orchestrator) Setup(ctx context.Context) error {
	o.setPhase(PhaseStarting)
	if o.d.Venue != nil {
		if err := o.d.Venue.Setup(ctx); err != nil {
			return fmt.Errorf("%w: exchange: %w", ErrSetup, err)
		}
	}
	if o.cfg.RestoreLedger && o.d.Journal != nil {
		if err := o.restore(ctx); err != nil {
			return fmt.Errorf("%w: restore ledger: %w", ErrSetup, err)
		}
	}
	if err := o.d.Feed.Backfill(ctx); err != nil {
		return fmt.Errorf("%w: backfill: %w", ErrSetup, err)
	}
	return nil
}

func (o *Orchestrator) restore(ctx context.Context) error {
	rows, err := o.d.Journal.OpenLegs(ctx, o.cfg.Symbol)
	if err != nil {
		return err
	}
	legs := make([]position.Position, 0, len(rows))
	for _, r := range rows {
		legs = append(legs, position.Position{
			EntryPrice:  r.EntryPrice,
			BaseAmount:  r.BaseAmount,
			QuoteAmount: r.QuoteAmount,
			OpenedAt:    r.OpenedAt,
		})
	}
	if err := o.d.Ledger.Restore(legs); err != nil {
		return err
	}
	if len(legs) > 0 {
		o.logger.Info("ledger restored", "legs", len(legs))
	}
	o.publishLedger()
	return nil
}

// Run performs Setup and then consumes the stream until ctx ends. It returns nil
// on a clean stop and an ErrSetup-wrapped error if the pipeline never started.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Setup(ctx); err != nil {
		o.setPhase(PhaseStopped)
		return err
	}
	o.setPhase(PhaseRunning)
	o.logger.Info("trading loop started", "symbol", o.cfg.Symbol)

	updates := make(chan market.Update, o.cfg.QueueSize)
	done := make(chan struct{})
	go func() {
		defer close(done)
		o.d.Feed.Run(ctx, updates)
	}()

	defer func() {
		// Queued updates are discarded once ctx ends.
		for range updates {
		}
		<-done
		o.setPhase(PhaseStopped)
		o.logger.Info("trading loop stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			o.process(ctx, u)
		}
	}
}

// process runs one cycle. Faults inside it are logged and never escape.
func (o *Orchestrator) process(ctx context.Context, u market.Update) {
	start := o.now()
	defer func() {
		d := o.now().Sub(start)
		o.latency.RecordDuration(d)
		if o.d.OnCycle != nil {
			o.d.OnCycle(d)
		}
	}()

	price := u.Candle.Close
	snap, err := o.d.Bridge.Compute(ctx, u.Window)
	if err != nil {
		o.logger.Warn("indicator computation failed, holding", "err", err)
		snap = indicators.Snapshot{}
	}

	legs := o.d.Ledger.Len()
	sig := o.d.Signals.Evaluate(u.Window, snap, legs)
	o.d.Bus.Publish(events.EventSignalEvaluated, events.SignalEvaluated{
		Action:     string(sig.Action),
		Price:      price,
		Conditions: sig.Conditions,
		BuyRows:    sig.BuyRows,
		SellRows:   sig.SellRows,
	})
	if sig.Action != strategy.Hold {
		o.logger.Info("signal", "action", sig.Action, "price", price, "conditions", sig.Conditions)
	}

	action := strategy.Decide(sig, legs, price)
	o.d.Bus.Publish(events.EventDecision, events.Decision{
		Signal: string(sig.Action),
		Action: string(action),
		Legs:   legs,
		Price:  price,
	})
	o.record(u, sig, action)

	switch action {
	case strategy.Buy:
		o.buy(ctx, price)
	case strategy.Sell:
		o.sell(ctx)
	}
}

func (o *Orchestrator) buy(ctx context.Context, price float64) {
	quote, err := o.d.Policy.Next(o.d.Ledger, price)
	if err != nil {
		o.logger.Info("buy skipped", "reason", err, "legs", o.d.Ledger.Len(), "price", price)
		o.d.Bus.Publish(events.EventSizingRejected, events.SizingRejected{
			Reason: err.Error(),
			Legs:   o.d.Ledger.Len(),
			Price:  price,
		})
		return
	}

	out := o.d.Trader.Buy(ctx, quote)
	o.recordOrder(out)
	if !out.OK() {
		o.logger.Error("buy failed", "attempts", out.Attempts, "err", out.Err)
		return
	}

	// The entry is the price the ladder rules were checked against.
	leg := position.Position{
		EntryPrice:  price,
		BaseAmount:  out.Fill.Amount,
		QuoteAmount: quote,
		OpenedAt:    out.Fill.At,
	}
	if err := o.d.Ledger.Add(leg); err != nil {
		// The exchange accepted an order the ledger cannot hold.
		o.logger.Error("filled leg rejected by ledger", "err", err, "client_id", out.Fill.ClientID)
		return
	}
	n := o.d.Ledger.Len()
	if o.d.Journal != nil {
		// The leg row must match the ledger even when a stop arrived mid-order.
		if _, err := o.d.Journal.OpenLeg(context.WithoutCancel(ctx), db.Leg{
			Symbol:      o.cfg.Symbol,
			Seq:         n,
			OrderID:     out.Fill.ClientID,
			EntryPrice:  leg.EntryPrice,
			BaseAmount:  leg.BaseAmount,
			QuoteAmount: leg.QuoteAmount,
			OpenedAt:    leg.OpenedAt,
		}); err != nil {
			o.logger.Error("journal leg failed", "err", err)
		}
	}
	o.d.Bus.Publish(events.EventLegOpened, events.LegOpened{
		Leg:         n,
		EntryPrice:  leg.EntryPrice,
		BaseAmount:  leg.BaseAmount,
		QuoteAmount: leg.QuoteAmount,
	})
	o.logger.Info("leg opened", "leg", n, "entry", leg.EntryPrice, "base", leg.BaseAmount, "quote", leg.QuoteAmount)
	o.publishLedger()
}

func (o *Orchestrator) sell(ctx context.Context) {
	base, _ := position.Totals(o.d.Ledger.Snapshot())
	out := o.d.Trader.Sell(ctx, base)
	o.recordOrder(out)
	if !out.OK() {
		o.logger.Error("sell failed", "attempts", out.Attempts, "err", out.Err)
		return
	}

	closed, err := o.d.Ledger.Close()
	if err != nil {
		o.logger.Error("close ledger", "err", err)
		return
	}
	totalBase, totalQuote := position.Totals(closed)
	profit := position.ProfitPct(closed, out.Fill.Price)
	if o.d.Journal != nil {
		if _, err := o.d.Journal.CloseLegs(context.WithoutCancel(ctx), o.cfg.Symbol, out.Fill.ClientID, out.Fill.Price, out.Fill.At); err != nil {
			o.logger.Error("journal close failed", "err", err)
		}
	}
	o.d.Bus.Publish(events.EventLedgerClosed, events.LedgerClosed{
		Legs:       len(closed),
		TotalBase:  totalBase,
		TotalQuote: totalQuote,
		SellPrice:  out.Fill.Price,
		ProfitPct:  profit,
	})
	o.logger.Info("trade closed",
		"legs", len(closed),
		"base", totalBase,
		"cost", totalQuote,
		"sell_price", out.Fill.Price,
		"profit_pct", profit,
	)
	o.publishLedger()
}
