package pubsub

import "context"

// Listener wraps a broker subscription so callers can pull events one at a
// time or hand them to a callback.
type Listener[T any] struct {
	ctx context.Context
	ch  <-chan Event[T]
}

// NewListener subscribes to the broker. The subscription ends when ctx is
// cancelled.
func NewListener[T any](ctx context.Context, broker *Broker[T]) *Listener[T] {
	return &Listener[T]{
		ctx: ctx,
		ch:  broker.Subscribe(ctx),
	}
}

// Next blocks until the next event arrives. ok is false once the context is
// cancelled or the broker has closed the channel.
func (l *Listener[T]) Next() (event Event[T], ok bool) {
	select {
	case <-l.ctx.Done():
		return event, false
	case event, ok = <-l.ch:
		return event, ok
	}
}

// Forward calls fn for every event until the subscription ends.
// It is meant to run on its own goroutine.
func (l *Listener[T]) Forward(fn func(Event[T])) {
	for {
		event, ok := l.Next()
		if !ok {
			return
		}
		fn(event)
	}
}
