package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dca-core/internal/events"
	"dca-core/internal/logger"
	marketpkg "dca-core/pkg/market/binance"
)

var errSessionClosed = errors.New("stream session closed by peer")

// HistorySource returns recent klines for the initial backfill.
type HistorySource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]marketpkg.Kline, error)
}

// Session is one live streaming connection.
type Session interface {
	Klines() <-chan marketpkg.Kline
	Err() error
	Close()
}

// Subscriber opens live kline sessions.
type Subscriber interface {
	Subscribe(ctx context.Context, symbol, interval string) (Session, error)
}

// BinanceSubscriber adapts the Binance websocket client to Subscriber.
type BinanceSubscriber struct {
	Client *marketpkg.StreamClient
}

func (b BinanceSubscriber) Subscribe(ctx context.Context, symbol, interval string) (Session, error) {
	sub, err := b.Client.SubscribeKlines(ctx, symbol, interval)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Update is one accepted candle plus an immutable copy of the window after it was appended.
type Update struct {
	Candle     Candle
	Window     []Candle
	Historical bool
}

// StreamConfig controls the feed.
type StreamConfig struct {
	Symbol           string // exchange symbol, e.g. ETHUSDT
	Interval         string // e.g. 5m
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

// Stream keeps the candle window filled from a backfill plus a live feed that
// survives connection loss. The window is owned by the goroutine running Run.
type Stream struct {
	cfg     StreamConfig
	history HistorySource
	live    Subscriber
	window  *Window
	backoff *Backoff
	bus     *events.Bus
	logger  *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewStream(cfg StreamConfig, window *Window, history HistorySource, live Subscriber, bus *events.Bus) *Stream {
	return &Stream{
		cfg:     cfg,
		history: history,
		live:    live,
		window:  window,
		backoff: NewBackoff(cfg.ReconnectInitial, cfg.ReconnectMax),
		bus:     bus,
		logger:  logger.Component("stream"),
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// Backfill seeds the window with closed historical candles. An empty result is an error.
func (s *Stream) Backfill(ctx context.Context) error {
	// One extra bar because the newest REST kline is usually still open.
	klines, err := s.history.GetKlines(ctx, s.cfg.Symbol, s.cfg.Interval, s.window.Cap()+1)
	if err != nil {
		return fmt.Errorf("fetch historical candles: %w", err)
	}
	now := s.now().UnixMilli()
	for _, k := range klines {
		if !k.IsClosed || k.OpenTime > now {
			continue
		}
		c := FromKline(k)
		if !c.Valid() {
			continue
		}
		_ = s.window.Append(c)
	}
	if s.window.Len() == 0 {
		return errors.New("historical backfill returned no closed candles")
	}
	s.logger.Info("historical data loaded", "candles", s.window.Len(), "last_ts", s.window.LastTimestamp())
	return nil
}

// Run streams accepted candles into out until ctx is cancelled, reconnecting with
// backoff on any connection failure. out is closed on return.
func (s *Stream) Run(ctx context.Context, out chan<- Update) {
	defer close(out)

	if last, ok := s.window.Last(); ok {
		if !s.emit(ctx, out, Update{Candle: last, Window: s.window.Snapshot(), Historical: true}) {
			return
		}
	}

	failures := 0
	for {
		delivered, err := s.session(ctx, out)
		if ctx.Err() != nil {
			s.logger.Info("stream stopped")
			return
		}
		if delivered {
			s.backoff.Reset()
			failures = 0
		}
		failures++
		delay := s.backoff.Next()
		reason := ""
		if err != nil {
			reason = err.Error()
		}
		s.logger.Warn("connection lost, reconnecting", "in", delay, "failures", failures, "err", err)
		s.bus.Publish(events.EventReconnect, events.Reconnect{Failures: failures, Delay: delay, Reason: reason})
		if err := s.sleep(ctx, delay); err != nil {
			return
		}
	}
}

// session runs one connection and reports whether it appended any candle to the window.
func (s *Stream) session(ctx context.Context, out chan<- Update) (bool, error) {
	s.logger.Info("connecting", "symbol", s.cfg.Symbol, "interval", s.cfg.Interval)
	sess, err := s.live.Subscribe(ctx, s.cfg.Symbol, s.cfg.Interval)
	if err != nil {
		return false, err
	}
	defer sess.Close()
	s.logger.Info("connected")

	delivered := false
	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()
		case k, ok := <-sess.Klines():
			if !ok {
				if err := sess.Err(); err != nil {
					return delivered, err
				}
				return delivered, errSessionClosed
			}
			if !k.IsClosed {
				continue
			}
			accepted, ok := s.accept(ctx, out, FromKline(k))
			if accepted {
				delivered = true
			}
			if !ok {
				return delivered, ctx.Err()
			}
		}
	}
}

// accept appends c when it is valid and newer than the last accepted candle.
// ok is false only when ctx ended while handing the update downstream.
func (s *Stream) accept(ctx context.Context, out chan<- Update, c Candle) (accepted, ok bool) {
	if !c.Valid() {
		s.logger.Warn("discarding malformed candle", "ts", c.Timestamp)
		return false, true
	}
	if err := s.window.Append(c); err != nil {
		s.logger.Debug("discarding candle", "ts", c.Timestamp, "last_ts", s.window.LastTimestamp())
		return false, true
	}
	s.bus.Publish(events.EventCandleAccepted, events.CandleAccepted{
		Timestamp: c.Timestamp,
		Close:     c.Close,
		WindowLen: s.window.Len(),
	})
	return true, s.emit(ctx, out, Update{Candle: c, Window: s.window.Snapshot()})
}

func (s *Stream) emit(ctx context.Context, out chan<- Update, u Update) bool {
	select {
	case out <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
