package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/svcreg/internal/filter"
	"github.com/zjrosen/svcreg/internal/properties"
	"github.com/zjrosen/svcreg/internal/tracing"
)

// recorder collects events delivered to a listener.
type recorder struct {
	mu     sync.Mutex
	name   string
	events []Event[string]
	log    *[]string
}

func (r *recorder) ServiceChanged(_ context.Context, event Event[string]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if r.log != nil {
		*r.log = append(*r.log, r.name+":"+event.Kind.String())
	}
	return nil
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func props(kv ...any) *properties.Dictionary {
	d := properties.New()
	for i := 0; i+1 < len(kv); i += 2 {
		d.Put(kv[i].(string), kv[i+1])
	}
	return d
}

func TestHub_DispatchLifecycle(t *testing.T) {
	hub := NewHub[string]()
	rec := &recorder{}
	hub.Subscribe(filter.MustCompile("(a=1)"), rec)

	ctx := context.Background()
	p1 := props("a", 1)
	p2 := props("a", 2)

	require.Equal(t, 1, hub.Dispatch(ctx, Mutation[string]{Type: MutationRegister, Reference: "svc", New: p1}))
	require.Equal(t, 1, hub.Dispatch(ctx, Mutation[string]{Type: MutationUpdate, Reference: "svc", Old: p1, New: p1}))
	require.Equal(t, 1, hub.Dispatch(ctx, Mutation[string]{Type: MutationUpdate, Reference: "svc", Old: p1, New: p2}))
	require.Equal(t, 0, hub.Dispatch(ctx, Mutation[string]{Type: MutationUnregister, Reference: "svc", Old: p2}))

	require.Equal(t, []Kind{Registered, Modified, ModifiedEndMatch}, rec.kinds())
}

func TestHub_EventSnapshots(t *testing.T) {
	hub := NewHub[string]()
	rec := &recorder{}
	hub.Subscribe(nil, rec)

	ctx := context.Background()
	old := props("color", "red")
	new := props("color", "blue")

	hub.Dispatch(ctx, Mutation[string]{Type: MutationRegister, Reference: "svc", New: old})
	hub.Dispatch(ctx, Mutation[string]{Type: MutationUpdate, Reference: "svc", Old: old, New: new})
	hub.Dispatch(ctx, Mutation[string]{Type: MutationUnregister, Reference: "svc", Old: new})

	require.Len(t, rec.events, 3)

	registered := rec.events[0]
	require.Equal(t, "svc", registered.Reference)
	require.Same(t, old, registered.Properties)
	require.Nil(t, registered.Previous)
	require.False(t, registered.Timestamp.IsZero())

	modified := rec.events[1]
	require.Same(t, new, modified.Properties)
	require.Same(t, old, modified.Previous)

	unregistering := rec.events[2]
	require.Same(t, new, unregistering.Properties)
	require.Nil(t, unregistering.Previous)
}

func TestHub_DeliversInSubscriptionOrder(t *testing.T) {
	hub := NewHub[string]()
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		hub.Subscribe(nil, &recorder{name: name, log: &order})
	}

	hub.Dispatch(context.Background(), Mutation[string]{Type: MutationRegister, New: props()})

	require.Equal(t, []string{"first:REGISTERED", "second:REGISTERED", "third:REGISTERED"}, order)
}

func TestSubscription_Unsubscribe(t *testing.T) {
	hub := NewHub[string]()
	rec := &recorder{}
	sub := hub.Subscribe(nil, rec)

	require.True(t, sub.Active())
	require.Equal(t, uint64(1), sub.ID())
	require.Nil(t, sub.Filter())
	require.Equal(t, 1, hub.Len())

	require.True(t, sub.Unsubscribe())
	require.False(t, sub.Unsubscribe(), "second call is a no-op")
	require.False(t, sub.Active())
	require.Equal(t, 0, hub.Len())

	require.Equal(t, 0, hub.Dispatch(context.Background(), Mutation[string]{Type: MutationRegister, New: props()}))
	require.Empty(t, rec.kinds())
}

func TestHub_UnsubscribeDuringDispatch(t *testing.T) {
	hub := NewHub[string]()
	later := &recorder{}

	var laterSub *Subscription[string]
	hub.Subscribe(nil, ListenerFunc[string](func(context.Context, Event[string]) error {
		laterSub.Unsubscribe()
		return nil
	}))
	laterSub = hub.Subscribe(nil, later)

	delivered := hub.Dispatch(context.Background(), Mutation[string]{Type: MutationRegister, New: props()})

	require.Equal(t, 1, delivered)
	require.Empty(t, later.kinds(), "listener removed mid-dispatch is skipped")
}

func TestHub_SubscribeDuringDispatch(t *testing.T) {
	hub := NewHub[string]()
	added := &recorder{}

	var once sync.Once
	hub.Subscribe(nil, ListenerFunc[string](func(context.Context, Event[string]) error {
		once.Do(func() { hub.Subscribe(nil, added) })
		return nil
	}))

	ctx := context.Background()
	hub.Dispatch(ctx, Mutation[string]{Type: MutationRegister, New: props()})
	require.Empty(t, added.kinds(), "new subscription sees only later dispatches")

	hub.Dispatch(ctx, Mutation[string]{Type: MutationUpdate, Old: props(), New: props()})
	require.Equal(t, []Kind{Modified}, added.kinds())
	require.Equal(t, 2, hub.Len())
}

func TestHub_ListenerFailuresAreIsolated(t *testing.T) {
	var failures []Failure[string]
	hub := NewHub(WithFailureHandler[string](func(_ context.Context, f Failure[string]) {
		failures = append(failures, f)
	}))

	failing := hub.Subscribe(nil, ListenerFunc[string](func(context.Context, Event[string]) error {
		return errors.New("listener failed")
	}))
	panicking := hub.Subscribe(nil, ListenerFunc[string](func(context.Context, Event[string]) error {
		panic("boom")
	}))
	rec := &recorder{}
	hub.Subscribe(nil, rec)

	delivered := hub.Dispatch(context.Background(), Mutation[string]{Type: MutationRegister, Reference: "svc", New: props()})

	require.Equal(t, 3, delivered)
	require.Equal(t, []Kind{Registered}, rec.kinds())

	require.Len(t, failures, 2)
	require.Same(t, failing, failures[0].Subscription)
	require.False(t, failures[0].Panicked)
	require.EqualError(t, failures[0].Err, "listener failed")
	require.Equal(t, Registered, failures[0].Event.Kind)

	require.Same(t, panicking, failures[1].Subscription)
	require.True(t, failures[1].Panicked)
	var pe *PanicError
	require.ErrorAs(t, failures[1].Err, &pe)
	require.Equal(t, "boom", pe.Value)
	require.EqualError(t, failures[1].Err, "listener panic: boom")
}

func TestHub_NestedDispatch(t *testing.T) {
	hub := NewHub[string]()
	var order []string
	ctx := context.Background()

	nested := false
	hub.Subscribe(nil, ListenerFunc[string](func(ctx context.Context, e Event[string]) error {
		order = append(order, "outer:"+e.Reference)
		if !nested {
			nested = true
			hub.Dispatch(ctx, Mutation[string]{Type: MutationRegister, Reference: "inner", New: props()})
		}
		return nil
	}))
	hub.Subscribe(nil, ListenerFunc[string](func(_ context.Context, e Event[string]) error {
		order = append(order, "second:"+e.Reference)
		return nil
	}))

	hub.Dispatch(ctx, Mutation[string]{Type: MutationRegister, Reference: "outer", New: props()})

	require.Equal(t, []string{
		"outer:outer",
		"outer:inner",
		"second:inner",
		"second:outer",
	}, order)
}

func TestHub_DispatchSpan(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	hub := NewHub(WithTracer[string](tp.Tracer("test")))

	hub.Subscribe(filter.MustCompile("(a=1)"), &recorder{})
	hub.Subscribe(nil, ListenerFunc[string](func(context.Context, Event[string]) error {
		return errors.New("nope")
	}))

	hub.Dispatch(context.Background(), Mutation[string]{Type: MutationRegister, New: props("a", 2)})

	ended := spans.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	require.Equal(t, tracing.SpanDispatch, span.Name())

	attrs := map[string]any{}
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	require.Equal(t, "register", attrs[tracing.AttrMutation])
	require.Equal(t, int64(2), attrs[tracing.AttrListeners])
	require.Equal(t, int64(1), attrs[tracing.AttrDelivered])

	require.Len(t, span.Events(), 1)
	require.Equal(t, tracing.EventListenerFailed, span.Events()[0].Name)
}

func TestHub_NoSubscribersNoSpan(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	hub := NewHub(WithTracer[string](tp.Tracer("test")))

	require.Equal(t, 0, hub.Dispatch(context.Background(), Mutation[string]{Type: MutationRegister, New: props()}))
	require.Empty(t, spans.Ended())
}

func TestHub_ConcurrentSubscribeAndDispatch(t *testing.T) {
	hub := NewHub[string]()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub := hub.Subscribe(nil, &recorder{})
				if j%2 == 0 {
					sub.Unsubscribe()
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Dispatch(ctx, Mutation[string]{Type: MutationRegister, New: props()})
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 8*25, hub.Len())
}
