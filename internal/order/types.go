package order

import (
	"context"
	"errors"
	"time"

	exchange "dca-core/pkg/exchanges/common"
)

// ErrRetriesExhausted wraps the last exchange error once every attempt has failed.
var ErrRetriesExhausted = errors.New("order: retries exhausted")

// Exchange is the order-side contract of the exchange collaborator.
// Every error it returns is treated as retryable.
type Exchange interface {
	FetchTicker(ctx context.Context, symbol string) (float64, error)
	CreateLimitBuy(ctx context.Context, symbol string, amount, price float64) (exchange.OrderResult, error)
	CreateLimitSell(ctx context.Context, symbol string, amount, price float64) (exchange.OrderResult, error)
}

// Status is the terminal state of an order request.
type Status string

const (
	Succeeded Status = "SUCCEEDED"
	Failed    Status = "FAILED"
)

// Request is one logical order: a quote amount for buys, a base amount for sells.
type Request struct {
	Symbol      string
	Side        exchange.Side
	QuoteAmount float64
	BaseAmount  float64
}

// Fill describes the accepted order of a successful request.
type Fill struct {
	ClientID        string
	ExchangeOrderID string
	Status          exchange.OrderStatus
	Price           float64
	Amount          float64
	Ticker          float64
	At              time.Time
}

// Outcome is the explicit result of a request. Err is set iff Status is Failed.
type Outcome struct {
	Request  Request
	Status   Status
	Attempts int
	Fill     Fill
	Err      error
}

func (o Outcome) OK() bool { return o.Status == Succeeded }

type clientIDKey struct{}

// WithClientID attaches the client order id an Exchange should send with the order.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, id)
}

// ClientID returns the id set by WithClientID, or "".
func ClientID(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}
