package market

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	marketpkg "dca-core/pkg/market/binance"
)

type fakeHistory struct {
	klines []marketpkg.Kline
	err    error
	limit  int
}

func (f *fakeHistory) GetKlines(_ context.Context, _, _ string, limit int) ([]marketpkg.Kline, error) {
	f.limit = limit
	return f.klines, f.err
}

type fakeSession struct {
	c   chan marketpkg.Kline
	err error
}

func (s *fakeSession) Klines() <-chan marketpkg.Kline { return s.c }
func (s *fakeSession) Err() error                     { return s.err }
func (s *fakeSession) Close()                         {}

// scriptedSession delivers klines then ends with err.
func scriptedSession(err error, klines ...marketpkg.Kline) *fakeSession {
	c := make(chan marketpkg.Kline, len(klines))
	for _, k := range klines {
		c <- k
	}
	close(c)
	return &fakeSession{c: c, err: err}
}

// openSession never ends on its own.
func openSession() *fakeSession {
	return &fakeSession{c: make(chan marketpkg.Kline)}
}

type dial struct {
	sess Session
	err  error
}

type fakeSubscriber struct {
	mu    sync.Mutex
	dials []dial
	calls int
}

func (f *fakeSubscriber) Subscribe(context.Context, string, string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.dials) == 0 {
		return nil, errors.New("dial refused")
	}
	d := f.dials[0]
	f.dials = f.dials[1:]
	return d.sess, d.err
}

func closedKline(ts int64, close float64) marketpkg.Kline {
	return marketpkg.Kline{OpenTime: ts, Open: close, High: close, Low: close, Close: close, Volume: 1, IsClosed: true}
}

func newTestStream(window *Window, sub Subscriber) *Stream {
	return NewStream(StreamConfig{
		Symbol:           "ETHUSDT",
		Interval:         "5m",
		ReconnectInitial: 5 * time.Second,
		ReconnectMax:     60 * time.Second,
	}, window, &fakeHistory{}, sub, nil)
}

// runUntilSleeps runs the stream, cancelling after n backoff sleeps, and returns
// every update and recorded delay.
func runUntilSleeps(t *testing.T, s *Stream, n int) ([]Update, []time.Duration) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) >= n {
			cancel()
		}
		return ctx.Err()
	}

	out := make(chan Update, 64)
	done := make(chan struct{})
	go func() {
		s.Run(ctx, out)
		close(done)
	}()

	var updates []Update
	for u := range out {
		updates = append(updates, u)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
	return updates, delays
}

func TestStreamBackoffSequenceOnConsecutiveFailures(t *testing.T) {
	s := newTestStream(NewWindow(50), &fakeSubscriber{})
	_, delays := runUntilSleeps(t, s, 7)

	want := []time.Duration{5, 10, 20, 40, 60, 60, 60}
	require.Len(t, delays, len(want))
	for i := range want {
		require.Equal(t, want[i]*time.Second, delays[i], "delay %d", i)
	}
}

func TestStreamBackoffResetsAfterDeliveringSession(t *testing.T) {
	sub := &fakeSubscriber{dials: []dial{
		{err: errors.New("refused")},
		{err: errors.New("refused")},
		{sess: scriptedSession(io.ErrUnexpectedEOF, closedKline(1000, 10))},
	}}
	s := newTestStream(NewWindow(50), sub)
	updates, delays := runUntilSleeps(t, s, 4)

	require.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 5 * time.Second, 10 * time.Second}, delays)
	require.Len(t, updates, 1)
	require.Equal(t, int64(1000), updates[0].Candle.Timestamp)
}

func TestStreamBackoffNotResetBySessionWithOnlyStaleCandles(t *testing.T) {
	sub := &fakeSubscriber{dials: []dial{
		{sess: scriptedSession(io.ErrUnexpectedEOF, closedKline(1000, 10))},
		{sess: scriptedSession(io.ErrUnexpectedEOF, closedKline(1000, 10), closedKline(500, 5))},
		{err: errors.New("refused")},
	}}
	s := newTestStream(NewWindow(50), sub)
	updates, delays := runUntilSleeps(t, s, 3)

	require.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}, delays)
	require.Len(t, updates, 1)
}

func TestStreamDiscardsMalformedCandleWithoutAdvancing(t *testing.T) {
	broken := closedKline(2000, 0)
	broken.Volume = 3
	sub := &fakeSubscriber{dials: []dial{
		{sess: scriptedSession(nil, closedKline(1000, 4), broken, closedKline(2000, 5))},
	}}
	w := NewWindow(50)
	s := newTestStream(w, sub)
	updates, _ := runUntilSleeps(t, s, 1)

	require.Len(t, updates, 2)
	require.Equal(t, int64(2000), updates[1].Candle.Timestamp)
	require.Equal(t, 5.0, updates[1].Candle.Close)
	last, ok := w.Last()
	require.True(t, ok)
	require.Equal(t, 5.0, last.Close)
	require.Equal(t, 2, w.Len())
}

func TestStreamFiltersOpenDuplicateAndOutOfOrderCandles(t *testing.T) {
	open := closedKline(4000, 40)
	open.IsClosed = false
	sub := &fakeSubscriber{dials: []dial{
		{sess: scriptedSession(nil,
			open,
			closedKline(2000, 20),
			closedKline(2000, 21),
			closedKline(1500, 15),
			closedKline(3000, 30),
		)},
		{sess: scriptedSession(nil, closedKline(3000, 31), closedKline(4000, 40))},
	}}
	s := newTestStream(NewWindow(50), sub)
	updates, _ := runUntilSleeps(t, s, 3)

	var got []int64
	for _, u := range updates {
		got = append(got, u.Candle.Timestamp)
	}
	require.Equal(t, []int64{2000, 3000, 4000}, got)
	require.Equal(t, 20.0, updates[0].Candle.Close, "first delivery wins over a duplicate")
	require.Len(t, updates[2].Window, 3)
}

func TestStreamBackfillFillsWindowAndEmitsLatest(t *testing.T) {
	var klines []marketpkg.Kline
	for i := 1; i <= 51; i++ {
		klines = append(klines, closedKline(int64(i)*1000, float64(i)))
	}
	klines[50].IsClosed = false // still-forming bar

	w := NewWindow(50)
	hist := &fakeHistory{klines: klines}
	s := NewStream(StreamConfig{Symbol: "ETHUSDT", Interval: "5m"}, w, hist, &fakeSubscriber{}, nil)
	s.now = func() time.Time { return time.UnixMilli(1_000_000) }

	require.NoError(t, s.Backfill(context.Background()))
	require.Equal(t, 51, hist.limit)
	require.Equal(t, 50, w.Len())
	require.Equal(t, int64(50_000), w.LastTimestamp())

	updates, _ := runUntilSleeps(t, s, 1)
	require.NotEmpty(t, updates)
	require.True(t, updates[0].Historical)
	require.Equal(t, int64(50_000), updates[0].Candle.Timestamp)
	require.Len(t, updates[0].Window, 50)
}

func TestStreamBackfillEmptyIsError(t *testing.T) {
	s := NewStream(StreamConfig{}, NewWindow(50), &fakeHistory{}, &fakeSubscriber{}, nil)
	require.Error(t, s.Backfill(context.Background()))

	s = NewStream(StreamConfig{}, NewWindow(50), &fakeHistory{err: io.EOF}, &fakeSubscriber{}, nil)
	require.ErrorIs(t, s.Backfill(context.Background()), io.EOF)
}

func TestStreamCancellationDoesNotReconnect(t *testing.T) {
	sess := openSession()
	sub := &fakeSubscriber{dials: []dial{{sess: sess}}}
	s := newTestStream(NewWindow(50), sub)

	slept := false
	s.sleep = func(context.Context, time.Duration) error { slept = true; return nil }

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Update)
	done := make(chan struct{})
	go func() {
		s.Run(ctx, out)
		close(done)
	}()

	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return sub.calls == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop on cancel")
	}
	_, ok := <-out
	require.False(t, ok, "out channel closed")
	require.False(t, slept, "no backoff after cancel")
	require.Equal(t, 1, sub.calls)
}
