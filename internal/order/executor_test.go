package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dca-core/internal/events"
	"dca-core/pkg/db"
	exchange "dca-core/pkg/exchanges/common"
)

type placed struct {
	side          exchange.Side
	amount, price float64
}

type fakeExchange struct {
	mu      sync.Mutex
	price   float64
	fails   []error // consumed one per placement
	tickErr error
	orders  []placed
	calls   int
}

func (f *fakeExchange) FetchTicker(context.Context, string) (float64, error) {
	if f.tickErr != nil {
		return 0, f.tickErr
	}
	return f.price, nil
}

func (f *fakeExchange) place(side exchange.Side, amount, price float64) (exchange.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.fails) > 0 {
		err := f.fails[0]
		f.fails = f.fails[1:]
		if err != nil {
			return exchange.OrderResult{}, err
		}
	}
	f.orders = append(f.orders, placed{side, amount, price})
	return exchange.OrderResult{ExchangeOrderID: "x1", Status: exchange.StatusNew}, nil
}

func (f *fakeExchange) CreateLimitBuy(_ context.Context, _ string, amount, price float64) (exchange.OrderResult, error) {
	return f.place(exchange.SideBuy, amount, price)
}

func (f *fakeExchange) CreateLimitSell(_ context.Context, _ string, amount, price float64) (exchange.OrderResult, error) {
	return f.place(exchange.SideSell, amount, price)
}

type memJournal struct{ orders []db.Order }

func (m *memJournal) CreateOrder(_ context.Context, o db.Order) error {
	m.orders = append(m.orders, o)
	return nil
}

func newTestExecutor(ex Exchange) (*Executor, *[]time.Duration) {
	e := NewExecutor(DefaultConfig("ETHUSDT"), ex, nil)
	var slept []time.Duration
	e.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return e, &slept
}

func TestBuySizingAndLimitPrice(t *testing.T) {
	ex := &fakeExchange{price: 2000}
	e, slept := newTestExecutor(ex)

	out := e.Buy(context.Background(), 10)
	require.True(t, out.OK())
	require.Equal(t, 1, out.Attempts)
	require.Empty(t, *slept)
	require.Equal(t, []placed{{exchange.SideBuy, 0.005, 1999.8}}, ex.orders)
	require.Equal(t, 1999.8, out.Fill.Price)
	require.Equal(t, 0.005, out.Fill.Amount)
	require.Equal(t, 2000.0, out.Fill.Ticker)
}

func TestBuyFloorsAtMinOrderSize(t *testing.T) {
	ex := &fakeExchange{price: 1e9}
	e, _ := newTestExecutor(ex)
	out := e.Buy(context.Background(), 1)
	require.True(t, out.OK())
	require.Equal(t, 0.00001, ex.orders[0].amount)
}

func TestSellLimitPrice(t *testing.T) {
	ex := &fakeExchange{price: 2000}
	e, _ := newTestExecutor(ex)
	out := e.Sell(context.Background(), 0.0123456789)
	require.True(t, out.OK())
	require.Equal(t, []placed{{exchange.SideSell, 0.01234568, 2000.2}}, ex.orders)
}

func TestAtMostMaxRetriesAttempts(t *testing.T) {
	boom := errors.New("exchange down")
	ex := &fakeExchange{price: 2000, fails: []error{boom, boom, boom, boom}}
	e, slept := newTestExecutor(ex)
	journal := &memJournal{}
	e.Journal = journal

	out := e.Buy(context.Background(), 10)
	require.False(t, out.OK())
	require.Equal(t, Failed, out.Status)
	require.Equal(t, 3, out.Attempts)
	require.Equal(t, 3, ex.calls)
	require.ErrorIs(t, out.Err, ErrRetriesExhausted)
	require.ErrorIs(t, out.Err, boom)
	require.Equal(t, []time.Duration{time.Second, time.Second}, *slept)
	require.Empty(t, ex.orders)

	require.Len(t, journal.orders, 1)
	require.Equal(t, "FAILED", journal.orders[0].Status)
	require.Equal(t, 3, journal.orders[0].Attempts)
}

func TestSellSucceedsOnThirdAttempt(t *testing.T) {
	boom := errors.New("timeout")
	ex := &fakeExchange{price: 2000, fails: []error{boom, boom, nil}}
	e, slept := newTestExecutor(ex)

	out := e.Sell(context.Background(), 0.5)
	require.True(t, out.OK())
	require.Equal(t, 3, out.Attempts)
	require.Len(t, ex.orders, 1)
	require.Len(t, *slept, 2)
}

func TestTickerFailureIsRetried(t *testing.T) {
	ex := &fakeExchange{tickErr: errors.New("no ticker")}
	e, _ := newTestExecutor(ex)
	out := e.Buy(context.Background(), 10)
	require.Equal(t, 3, out.Attempts)
	require.ErrorContains(t, out.Err, "no ticker")
}

func TestCancelStopsFurtherAttempts(t *testing.T) {
	boom := errors.New("down")
	ex := &fakeExchange{price: 2000, fails: []error{boom, boom, boom}}
	e, _ := newTestExecutor(ex)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := e.Buy(ctx, 10)
	require.Equal(t, Failed, out.Status)
	require.Equal(t, 1, out.Attempts, "the in-flight attempt runs, no retry follows")
	require.ErrorIs(t, out.Err, boom)
}

func TestEventsPublished(t *testing.T) {
	bus := events.NewBus()
	results, unsub := bus.Subscribe(events.EventOrderResult, 4)
	defer unsub()

	ex := &fakeExchange{price: 100}
	e, _ := newTestExecutor(ex)
	e.Bus = bus
	e.InstanceID = "abcdef0123456789"
	e.Buy(context.Background(), 10)

	env := <-results
	res := env.Payload.(events.OrderResult)
	require.Equal(t, "SUCCEEDED", res.Status)
	require.Equal(t, "BUY", res.Side)
	require.Len(t, res.ClientID, 33)
	require.Equal(t, "abcdef01-", res.ClientID[:9])
}

func TestRounding(t *testing.T) {
	require.Equal(t, 0.33333333, BaseAmount(1, 3, 0.00001, 8))
	require.Equal(t, 99.99, LimitPrice(100, 0.9999, 2))
	require.Equal(t, 100.01, LimitPrice(100, 1.0001, 2))
	require.Equal(t, 1.23, Round(1.2345, 2))
}
