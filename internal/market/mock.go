package market

import (
	"context"
	"math/rand"
	"sync"
	"time"

	marketpkg "dca-core/pkg/market/binance"
)

// MockFeed generates synthetic closed klines for local development. It satisfies
// both HistorySource and Subscriber so the bot can run without network access.
type MockFeed struct {
	StartPrice float64
	Step       float64
	Interval   time.Duration

	mu    sync.Mutex
	price float64
	ts    int64
	rng   *rand.Rand
}

func (m *MockFeed) init() {
	if m.rng != nil {
		return
	}
	if m.StartPrice == 0 {
		m.StartPrice = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.5
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}
	m.price = m.StartPrice
	m.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
}

// next advances the random walk by one bar.
func (m *MockFeed) next() marketpkg.Kline {
	open := m.price
	m.price += (m.rng.Float64()*2 - 1) * m.Step
	if m.price <= 0 {
		m.price = m.Step
	}
	hi, lo := max(open, m.price), min(open, m.price)
	k := marketpkg.Kline{
		OpenTime:  m.ts,
		CloseTime: m.ts + m.Interval.Milliseconds() - 1,
		Open:      open,
		High:      hi + m.Step/4,
		Low:       max(lo-m.Step/4, lo/2),
		Close:     m.price,
		Volume:    1 + m.rng.Float64()*10,
		IsClosed:  true,
	}
	m.ts += m.Interval.Milliseconds()
	return k
}

// GetKlines fabricates limit closed bars ending one interval before now.
func (m *MockFeed) GetKlines(_ context.Context, symbol, interval string, limit int) ([]marketpkg.Kline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	m.ts = time.Now().Add(-time.Duration(limit+1) * m.Interval).UnixMilli()
	out := make([]marketpkg.Kline, 0, limit)
	for i := 0; i < limit; i++ {
		k := m.next()
		k.Symbol, k.Interval = symbol, interval
		out = append(out, k)
	}
	return out, nil
}

// Subscribe emits one closed bar per Interval until ctx is cancelled or the session is closed.
func (m *MockFeed) Subscribe(ctx context.Context, symbol, interval string) (Session, error) {
	m.mu.Lock()
	m.init()
	m.mu.Unlock()

	out := make(chan marketpkg.Kline, 16)
	sess := &mockSession{c: out, done: make(chan struct{})}
	go func() {
		defer close(out)
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sess.done:
				return
			case <-t.C:
				m.mu.Lock()
				k := m.next()
				m.mu.Unlock()
				k.Symbol, k.Interval = symbol, interval
				select {
				case out <- k:
				case <-sess.done:
					return
				}
			}
		}
	}()
	return sess, nil
}

type mockSession struct {
	c    chan marketpkg.Kline
	once sync.Once
	done chan struct{}
}

func (s *mockSession) Klines() <-chan marketpkg.Kline { return s.c }
func (s *mockSession) Err() error                     { return nil }
func (s *mockSession) Close()                         { s.once.Do(func() { close(s.done) }) }
