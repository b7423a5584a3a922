package engine

import (
	"time"

	"dca-core/internal/market"
	"dca-core/internal/monitor"
	"dca-core/internal/order"
	"dca-core/internal/position"
	"dca-core/internal/strategy"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseStopped  Phase = "stopped"
)

// OrderSummary is the last terminal order outcome.
type OrderSummary struct {
	Side     string    `json:"side"`
	Status   string    `json:"status"`
	Attempts int       `json:"attempts"`
	ClientID string    `json:"client_id,omitempty"`
	Price    float64   `json:"price,omitempty"`
	Amount   float64   `json:"amount,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// Status is a point-in-time copy of the loop state for read-only consumers.
type Status struct {
	Symbol     string               `json:"symbol"`
	Phase      Phase                `json:"phase"`
	WindowLen  int                  `json:"window_len"`
	LastCandle *market.Candle       `json:"last_candle,omitempty"`
	LastSignal *strategy.Signal     `json:"last_signal,omitempty"`
	LastAction strategy.Action      `json:"last_action,omitempty"`
	Legs       []position.Position  `json:"legs"`
	MaxLegs    int                  `json:"max_legs"`
	TotalBase  float64              `json:"total_base"`
	TotalQuote float64              `json:"total_quote"`
	LastOrder  *OrderSummary        `json:"last_order,omitempty"`
	Cycles     int64                `json:"cycles"`
	Latency    monitor.LatencyStats `json:"cycle_latency_ms"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Status returns a deep copy safe to hold after the loop moves on.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	st := o.status
	st.Legs = append([]position.Position(nil), o.status.Legs...)
	if o.status.LastCandle != nil {
		c := *o.status.LastCandle
		st.LastCandle = &c
	}
	if o.status.LastSignal != nil {
		sig := *o.status.LastSignal
		sig.Conditions = make(map[string]bool, len(o.status.LastSignal.Conditions))
		for k, v := range o.status.LastSignal.Conditions {
			sig.Conditions[k] = v
		}
		st.LastSignal = &sig
	}
	if o.status.LastOrder != nil {
		lo := *o.status.LastOrder
		st.LastOrder = &lo
	}
	o.mu.RUnlock()
	st.Latency = o.latency.Stats()
	return st
}

// Positions returns a copy of the open legs.
func (o *Orchestrator) Positions() []position.Position {
	return o.Status().Legs
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.status.Phase = p
	o.status.UpdatedAt = o.now()
	o.mu.Unlock()
}

func (o *Orchestrator) record(u market.Update, sig strategy.Signal, action strategy.Action) {
	c := u.Candle
	o.mu.Lock()
	o.status.WindowLen = len(u.Window)
	o.status.LastCandle = &c
	o.status.LastSignal = &sig
	o.status.LastAction = action
	o.status.Cycles++
	o.status.UpdatedAt = o.now()
	o.mu.Unlock()
}

func (o *Orchestrator) recordOrder(out order.Outcome) {
	s := &OrderSummary{
		Side:     string(out.Request.Side),
		Status:   string(out.Status),
		Attempts: out.Attempts,
		ClientID: out.Fill.ClientID,
		Price:    out.Fill.Price,
		Amount:   out.Fill.Amount,
		At:       o.now(),
	}
	if out.Err != nil {
		s.Error = out.Err.Error()
	}
	o.mu.Lock()
	o.status.LastOrder = s
	o.mu.Unlock()
}

// publishLedger must be called from the loop goroutine, which owns the ledger.
func (o *Orchestrator) publishLedger() {
	legs := o.d.Ledger.Snapshot()
	base, quote := position.Totals(legs)
	o.mu.Lock()
	o.status.Legs = legs
	o.status.TotalBase = base
	o.status.TotalQuote = quote
	o.status.UpdatedAt = o.now()
	o.mu.Unlock()
}
