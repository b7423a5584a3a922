package events

import "time"

// Event enumerates the topics emitted by the trading loop.
type Event string

const (
	EventCandleAccepted  Event = "candle.accepted"
	EventReconnect       Event = "stream.reconnect"
	EventSignalEvaluated Event = "signal.evaluated"
	EventDecision        Event = "decision"
	EventSizingRejected  Event = "ladder.rejected"
	EventLegOpened       Event = "ladder.leg_opened"
	EventLedgerClosed    Event = "ladder.closed"
	EventOrderAttempt    Event = "order.attempt"
	EventOrderResult     Event = "order.result"
)

// Envelope wraps a payload with its topic and publish time.
type Envelope struct {
	Type    Event     `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

type CandleAccepted struct {
	Timestamp int64   `json:"timestamp"`
	Close     float64 `json:"close"`
	WindowLen int     `json:"window_len"`
}

type Reconnect struct {
	Failures int           `json:"failures"`
	Delay    time.Duration `json:"delay"`
	Reason   string        `json:"reason"`
}

type SignalEvaluated struct {
	Action     string          `json:"action"`
	Price      float64         `json:"price"`
	Conditions map[string]bool `json:"conditions"`
	BuyRows    int             `json:"buy_rows"`
	SellRows   int             `json:"sell_rows"`
}

type Decision struct {
	Signal string  `json:"signal"`
	Action string  `json:"action"`
	Legs   int     `json:"legs"`
	Price  float64 `json:"price"`
}

type SizingRejected struct {
	Reason string  `json:"reason"`
	Legs   int     `json:"legs"`
	Price  float64 `json:"price"`
}

type LegOpened struct {
	Leg         int     `json:"leg"`
	EntryPrice  float64 `json:"entry_price"`
	BaseAmount  float64 `json:"base_amount"`
	QuoteAmount float64 `json:"quote_amount"`
}

type LedgerClosed struct {
	Legs       int     `json:"legs"`
	TotalBase  float64 `json:"total_base"`
	TotalQuote float64 `json:"total_quote"`
	SellPrice  float64 `json:"sell_price"`
	ProfitPct  float64 `json:"profit_pct"`
}

type OrderAttempt struct {
	Side    string `json:"side"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error,omitempty"`
}

type OrderResult struct {
	ClientID string  `json:"client_id"`
	Side     string  `json:"side"`
	Status   string  `json:"status"`
	Attempts int     `json:"attempts"`
	Price    float64 `json:"price,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Error    string  `json:"error,omitempty"`
}
