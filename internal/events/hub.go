package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/svcreg/internal/filter"
	"github.com/zjrosen/svcreg/internal/log"
	"github.com/zjrosen/svcreg/internal/properties"
	"github.com/zjrosen/svcreg/internal/tracing"
)

// Event is delivered to a listener. R is the registry's reference type.
type Event[R any] struct {
	Kind      Kind
	Reference R
	// Properties is the snapshot the event was derived from: the new
	// properties for register and update, the last ones for unregister.
	Properties *properties.Dictionary
	// Previous holds the properties before an update, nil otherwise.
	Previous  *properties.Dictionary
	Timestamp time.Time
}

// Listener receives service events.
type Listener[R any] interface {
	ServiceChanged(ctx context.Context, event Event[R]) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc[R any] func(ctx context.Context, event Event[R]) error

// ServiceChanged calls f.
func (f ListenerFunc[R]) ServiceChanged(ctx context.Context, event Event[R]) error {
	return f(ctx, event)
}

// Mutation describes a registry change to dispatch.
type Mutation[R any] struct {
	Type      MutationType
	Reference R
	Old       *properties.Dictionary
	New       *properties.Dictionary
}

// Failure describes a listener that returned an error or panicked.
type Failure[R any] struct {
	Subscription *Subscription[R]
	Event        Event[R]
	Err          error
	Panicked     bool
}

// FailureHandler is told about every listener failure.
type FailureHandler[R any] func(ctx context.Context, failure Failure[R])

// Subscription is a listener registered with a Hub.
type Subscription[R any] struct {
	id       uint64
	filter   *filter.Filter
	listener Listener[R]
	active   atomic.Bool
	hub      *Hub[R]
}

// ID returns the subscription's position in delivery order.
func (s *Subscription[R]) ID() uint64 { return s.id }

// Filter returns the compiled filter, nil when the subscription matches all.
func (s *Subscription[R]) Filter() *filter.Filter { return s.filter }

// Active reports whether the subscription still receives events.
func (s *Subscription[R]) Active() bool { return s.active.Load() }

// Unsubscribe stops delivery to the listener. Deliveries already running
// on other goroutines finish, but no new event is started once it returns.
// It reports whether this call removed the subscription.
func (s *Subscription[R]) Unsubscribe() bool {
	if !s.active.CompareAndSwap(true, false) {
		return false
	}
	s.hub.remove(s)
	log.Debug(log.CatEvents, "listener unsubscribed", "subscription", s.id)
	return true
}

// Hub holds subscriptions in subscription order and dispatches mutations
// to them. Dispatch reads a copy-on-write snapshot, so listeners may
// subscribe, unsubscribe or mutate the registry while being notified.
type Hub[R any] struct {
	mu        sync.Mutex // serializes writers of subs
	subs      atomic.Pointer[[]*Subscription[R]]
	nextID    atomic.Uint64
	onFailure FailureHandler[R]
	tracer    trace.Tracer
}

// HubOption configures a Hub.
type HubOption[R any] func(*Hub[R])

// WithFailureHandler sets the function told about listener failures.
func WithFailureHandler[R any](fn FailureHandler[R]) HubOption[R] {
	return func(h *Hub[R]) { h.onFailure = fn }
}

// WithTracer records a span per dispatch.
func WithTracer[R any](tracer trace.Tracer) HubOption[R] {
	return func(h *Hub[R]) {
		if tracer != nil {
			h.tracer = tracer
		}
	}
}

// NewHub creates an empty Hub.
func NewHub[R any](opts ...HubOption[R]) *Hub[R] {
	h := &Hub[R]{tracer: tracing.NoopTracer()}
	empty := []*Subscription[R]{}
	h.subs.Store(&empty)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe adds a listener. A nil filter matches every registration.
func (h *Hub[R]) Subscribe(f *filter.Filter, l Listener[R]) *Subscription[R] {
	sub := &Subscription[R]{
		id:       h.nextID.Add(1),
		filter:   f,
		listener: l,
		hub:      h,
	}
	sub.active.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()

	current := *h.subs.Load()
	next := make([]*Subscription[R], len(current), len(current)+1)
	copy(next, current)
	next = append(next, sub)
	h.subs.Store(&next)

	log.Debug(log.CatEvents, "listener subscribed", "subscription", sub.id, "filter", f.String())
	return sub
}

func (h *Hub[R]) remove(sub *Subscription[R]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current := *h.subs.Load()
	i := slices.Index(current, sub)
	if i < 0 {
		return
	}
	next := make([]*Subscription[R], 0, len(current)-1)
	next = append(next, current[:i]...)
	next = append(next, current[i+1:]...)
	h.subs.Store(&next)
}

// Len returns the number of active subscriptions.
func (h *Hub[R]) Len() int {
	return len(*h.subs.Load())
}

// Dispatch derives and delivers the events for m, in subscription order, on
// the calling goroutine. It returns the number of listeners invoked.
func (h *Hub[R]) Dispatch(ctx context.Context, m Mutation[R]) int {
	subs := *h.subs.Load()
	if len(subs) == 0 {
		return 0
	}

	ctx, span := h.tracer.Start(ctx, tracing.SpanDispatch, trace.WithAttributes(
		attribute.String(tracing.AttrMutation, m.Type.String()),
		attribute.Int(tracing.AttrListeners, len(subs)),
	))
	defer span.End()

	now := time.Now()
	delivered := 0
	for _, sub := range subs {
		kind, ok := Derive(m.Type, m.Old, m.New, sub.filter)
		if !ok {
			continue
		}

		event := Event[R]{
			Kind:       kind,
			Reference:  m.Reference,
			Properties: m.New,
			Timestamp:  now,
		}
		switch m.Type {
		case MutationUnregister:
			event.Properties = m.Old
		case MutationUpdate:
			event.Previous = m.Old
		}

		// Unsubscribe may have raced with this dispatch.
		if !sub.active.Load() {
			continue
		}
		delivered++

		if err := deliver(ctx, sub.listener, event); err != nil {
			span.AddEvent(tracing.EventListenerFailed, trace.WithAttributes(
				attribute.Int64(tracing.AttrSubscription, int64(sub.id)),
				attribute.String(tracing.AttrEventKind, kind.String()),
				attribute.String(tracing.AttrErrorMessage, err.Error()),
			))
			if h.onFailure != nil {
				var pe *PanicError
				h.onFailure(ctx, Failure[R]{Subscription: sub, Event: event, Err: err, Panicked: errors.As(err, &pe)})
			}
		}
	}

	span.SetAttributes(attribute.Int(tracing.AttrDelivered, delivered))
	return delivered
}

// PanicError wraps a value recovered from a panicking listener.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("listener panic: %v", e.Value)
}

// deliver invokes the listener, turning a panic into a *PanicError.
func deliver[R any](ctx context.Context, l Listener[R], event Event[R]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return l.ServiceChanged(ctx, event)
}
