package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferSize is the per-subscriber channel capacity used by NewBroker.
const DefaultBufferSize = 64

// Broker fans events out to channel subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the event
// and the broker counts it as dropped.
type Broker[T any] struct {
	mu         sync.RWMutex
	subs       map[*subscription[T]]struct{}
	closed     bool
	bufferSize int
	dropped    atomic.Uint64
}

type subscription[T any] struct {
	ch     chan Event[T]
	accept func(Event[T]) bool
	stop   func() bool
}

// SubscribeOption customizes one subscription.
type SubscribeOption[T any] func(*subscribeConfig[T])

type subscribeConfig[T any] struct {
	size   int
	accept func(Event[T]) bool
}

// WithBuffer overrides the broker's buffer size for one subscriber.
// Sizes below 1 are ignored.
func WithBuffer[T any](size int) SubscribeOption[T] {
	return func(c *subscribeConfig[T]) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithFilter delivers only events accept returns true for. Rejected events
// do not count as dropped.
func WithFilter[T any](accept func(Event[T]) bool) SubscribeOption[T] {
	return func(c *subscribeConfig[T]) { c.accept = accept }
}

// NewBroker creates a new broker with DefaultBufferSize.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](DefaultBufferSize)
}

// NewBrokerWithBuffer creates a new broker with a custom buffer size.
// Sizes below 1 fall back to DefaultBufferSize.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size < 1 {
		size = DefaultBufferSize
	}
	return &Broker[T]{
		subs:       make(map[*subscription[T]]struct{}),
		bufferSize: size,
	}
}

// Subscribe returns a channel of events published from now on.
// The channel is closed when ctx is cancelled or the broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context, opts ...SubscribeOption[T]) <-chan Event[T] {
	cfg := subscribeConfig[T]{size: b.bufferSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	sub := &subscription[T]{
		ch:     make(chan Event[T], cfg.size),
		accept: cfg.accept,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subs[sub] = struct{}{}
	sub.stop = context.AfterFunc(ctx, func() { b.remove(sub) })
	return sub.ch
}

func (b *Broker[T]) remove(sub *subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.ch)
}

// Publish sends an event to every subscriber that accepts it and returns
// how many received it.
func (b *Broker[T]) Publish(eventType EventType, payload T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	event := Event[T]{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	delivered := 0
	for sub := range b.subs {
		if sub.accept != nil && !sub.accept(event) {
			continue
		}
		select {
		case sub.ch <- event:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	return delivered
}

// Close shuts down the broker and closes every subscriber channel.
// It is safe to call more than once.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.stop()
		close(sub.ch)
	}
	b.subs = nil
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber
// buffer was full.
func (b *Broker[T]) Dropped() uint64 {
	return b.dropped.Load()
}
