package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// LogSink writes every event to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Handle(env Envelope) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelInfo
	switch env.Type {
	case EventCandleAccepted, EventOrderAttempt:
		level = slog.LevelDebug
	case EventReconnect, EventSizingRejected:
		level = slog.LevelWarn
	case EventOrderResult:
		if r, ok := env.Payload.(OrderResult); ok && r.Error != "" {
			level = slog.LevelError
		}
	}
	l.Log(context.Background(), level, string(env.Type), slog.Any("payload", env.Payload))
}

// RedisSink publishes events as JSON on "<prefix>:<event>" channels.
type RedisSink struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisSink connects to addr and verifies the server answers PING.
func NewRedisSink(ctx context.Context, addr, password, prefix string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	if prefix == "" {
		prefix = "dca"
	}
	return &RedisSink{
		client:  client,
		prefix:  prefix,
		timeout: time.Second,
		logger:  slog.Default().With(slog.String("component", "redis_sink")),
	}, nil
}

// Channel returns the pub/sub channel name for an event.
func (s *RedisSink) Channel(e Event) string {
	return s.prefix + ":" + string(e)
}

func (s *RedisSink) Handle(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Warn("marshal event", "type", env.Type, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.Channel(env.Type), data).Err(); err != nil {
		s.logger.Warn("publish event", "type", env.Type, "err", err)
	}
}

// Close releases the redis connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
