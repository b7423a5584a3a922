package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"dca-core/internal/logger"
)

// DefaultStreamURL is the public Binance.US websocket base.
const DefaultStreamURL = "wss://stream.binance.us:9443/ws"

// errNoKline marks stream frames without a "k" object (subscription acks, other event types).
var errNoKline = errors.New("message has no kline")

// StreamClient opens kline streams on Binance public websockets.
type StreamClient struct {
	StreamURL   string
	ReadTimeout time.Duration
	dialer      *websocket.Dialer
	logger      *slog.Logger
}

// NewStreamClient builds a websocket client; empty baseURL uses DefaultStreamURL.
func NewStreamClient(baseURL string) *StreamClient {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	return &StreamClient{
		StreamURL:   strings.TrimRight(baseURL, "/"),
		ReadTimeout: 5 * time.Minute,
		dialer:      websocket.DefaultDialer,
		logger:      logger.Component("binance_ws"),
	}
}

// KlineSubscription is one live websocket session. C closes when the session ends;
// Err then reports why (nil after Close or context cancellation).
type KlineSubscription struct {
	C <-chan Kline

	conn *websocket.Conn
	once sync.Once
	mu   sync.Mutex
	err  error
	done chan struct{}
}

// Klines returns the receive side of the session.
func (s *KlineSubscription) Klines() <-chan Kline { return s.C }

// Err returns the error that terminated the session, if any.
func (s *KlineSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the session with a normal closure frame. Safe to call more than once.
func (s *KlineSubscription) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

func (s *KlineSubscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// SubscribeKlines dials <symbol>@kline_<interval> and streams every parsed kline,
// open or closed, until the connection drops or ctx is cancelled.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string) (*KlineSubscription, error) {
	// Binance requires lowercase symbols for websocket streams
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial binance ws: %w", err)
	}

	out := make(chan Kline, 100)
	sub := &KlineSubscription{C: out, conn: conn, done: make(chan struct{})}

	timeout := c.ReadTimeout
	if timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		conn.SetPingHandler(func(appData string) error {
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
			err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	go func() {
		defer sub.Close()
		defer close(out)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-sub.done:
					// closed by caller or context
				default:
					sub.fail(fmt.Errorf("binance ws read: %w", err))
				}
				return
			}
			if timeout > 0 {
				_ = conn.SetReadDeadline(time.Now().Add(timeout))
			}

			k, err := parseKlineMessage(msg)
			if err != nil {
				if !errors.Is(err, errNoKline) {
					c.logger.Warn("parse kline message", "err", err)
				}
				continue
			}
			select {
			case out <- k:
			case <-sub.done:
				return
			}
		}
	}()

	return sub, nil
}

// parseKlineMessage decodes only the fields we need.
func parseKlineMessage(msg []byte) (Kline, error) {
	var raw struct {
		Data *struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Symbol    string `json:"s"`
			Interval  string `json:"i"`
			Open      any    `json:"o"`
			Close     any    `json:"c"`
			High      any    `json:"h"`
			Low       any    `json:"l"`
			Volume    any    `json:"v"`
			Trades    any    `json:"n"`
			Closed    bool   `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Kline{}, err
	}
	if raw.Data == nil {
		return Kline{}, errNoKline
	}
	d := raw.Data
	k := Kline{
		Symbol:    d.Symbol,
		Interval:  d.Interval,
		OpenTime:  d.StartTime,
		CloseTime: d.CloseTime,
		Trades:    toInt(d.Trades),
		IsClosed:  d.Closed,
	}
	fields := []struct {
		name string
		raw  any
		dst  *float64
	}{
		{"o", d.Open, &k.Open},
		{"c", d.Close, &k.Close},
		{"h", d.High, &k.High},
		{"l", d.Low, &k.Low},
		{"v", d.Volume, &k.Volume},
	}
	for _, f := range fields {
		v, err := parseNumber(f.raw)
		if err != nil {
			return Kline{}, fmt.Errorf("kline field %q: %w", f.name, err)
		}
		*f.dst = v
	}
	return k, nil
}
