package events

import (
	"context"
	"sync"
	"time"
)

// Sink consumes every envelope published on a Bus.
type Sink interface {
	Handle(Envelope)
}

// Bus is a lightweight pub/sub broker using channels.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan Envelope
	all  []chan Envelope
	now  func() time.Time
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan Envelope), now: time.Now}
}

// Subscribe registers a listener for one topic and returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, buffer)
	b.subs[e] = append(b.subs[e], ch)
	return ch, func() { b.remove(ch, e) }
}

// SubscribeAll registers a listener for every topic.
func (b *Bus) SubscribeAll(buffer int) (<-chan Envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Envelope, buffer)
	b.all = append(b.all, ch)
	return ch, func() { b.remove(ch, "") }
}

func (b *Bus) remove(target chan Envelope, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.all
	if e != "" {
		list = b.subs[e]
	}
	for i, c := range list {
		if c == target {
			close(c)
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if e != "" {
		b.subs[e] = list
	} else {
		b.all = list
	}
}

// Publish fans the payload out without blocking; slow subscribers miss events.
// A nil Bus discards everything.
func (b *Bus) Publish(e Event, payload any) {
	if b == nil {
		return
	}
	env := Envelope{Type: e, Time: b.now(), Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- env:
		default:
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- env:
		default:
		}
	}
}

// Pipe drains all events into sink until ctx is cancelled. The returned channel
// closes once the sink goroutine has exited.
func (b *Bus) Pipe(ctx context.Context, sink Sink, buffer int) <-chan struct{} {
	ch, unsub := b.SubscribeAll(buffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				sink.Handle(env)
			}
		}
	}()
	return done
}
