// Package registry is a concurrent in-process service registry. Publishers
// register services under type names with a property dictionary; consumers
// look them up with filters and subscribe to lifecycle events.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/svcreg/internal/events"
	"github.com/zjrosen/svcreg/internal/filter"
	"github.com/zjrosen/svcreg/internal/log"
	"github.com/zjrosen/svcreg/internal/properties"
	"github.com/zjrosen/svcreg/internal/pubsub"
	"github.com/zjrosen/svcreg/internal/tracing"
)

// Event types specialized to *Reference.
type (
	ServiceEvent = events.Event[*Reference]
	Listener     = events.Listener[*Reference]
	ListenerFunc = events.ListenerFunc[*Reference]
	Subscription = events.Subscription[*Reference]
)

// Registry holds live registrations. All methods are safe for concurrent
// use, and listeners may call back into the registry.
type Registry struct {
	id     string
	nextID atomic.Uint64
	regs   sync.Map // uint64 -> *Reference
	count  atomic.Int64

	hub      *events.Hub[*Reference]
	faults   *pubsub.Broker[Fault]
	faultSeq atomic.Uint64

	authorizer  Authorizer
	reporter    FaultReporter
	filters     *filter.Cache
	tracer      trace.Tracer
	faultBuffer int
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		id:     uuid.NewString(),
		tracer: tracing.NoopTracer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.faults = pubsub.NewBrokerWithBuffer[Fault](r.faultBuffer)
	r.hub = events.NewHub(
		events.WithTracer[*Reference](r.tracer),
		events.WithFailureHandler[*Reference](r.listenerFailed),
	)
	log.Debug(log.CatRegistry, "registry created", "registry", r.id)
	return r
}

// ID returns the registry instance id.
func (r *Registry) ID() string { return r.id }

// Len returns the number of live registrations.
func (r *Registry) Len() int { return int(r.count.Load()) }

// Close ends the fault stream. The registry stays usable.
func (r *Registry) Close() {
	r.faults.Close()
	if r.filters != nil {
		stats := r.filters.Stats()
		log.Debug(log.CatCache, "filter cache", "registry", r.id,
			"hits", stats.Hits, "misses", stats.Misses, "hit_ratio", stats.HitRatio())
	}
}

// Register publishes service under typeNames. props is copied; the copy
// gets objectClass, service.id and service.ranking set by the registry.
// REGISTERED events are delivered before Register returns.
func (r *Registry) Register(ctx context.Context, typeNames []string, props *properties.Dictionary, service any, opts ...RegisterOption) (ref *Reference, err error) {
	ctx, span := r.tracer.Start(ctx, tracing.SpanRegister, trace.WithAttributes(
		attribute.String(tracing.AttrRegistryID, r.id),
		attribute.StringSlice(tracing.AttrServiceTypes, typeNames),
	))
	defer func() { tracing.End(span, err) }()

	if len(typeNames) == 0 {
		return nil, fmt.Errorf("%w: no type names", ErrInvalidArgument)
	}
	if slices.Contains(typeNames, "") {
		return nil, fmt.Errorf("%w: empty type name", ErrInvalidArgument)
	}

	var cfg registerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := r.authorize(ctx, ActionRegister, &Request{TypeNames: slices.Clone(typeNames), Owner: cfg.owner}); err != nil {
		return nil, err
	}

	id := r.nextID.Add(1)
	snap, invalid := normalize(props, id, typeNames)
	ref = &Reference{
		id:        id,
		typeNames: slices.Clone(typeNames),
		service:   service,
		owner:     cfg.owner,
		registry:  r,
	}
	ref.state.Store(snap)
	ref.registered.Store(true)
	t := ref.take(ctx)

	r.regs.Store(id, ref)
	r.count.Add(1)

	span.SetAttributes(
		attribute.Int64(tracing.AttrServiceID, int64(id)),
		attribute.Int(tracing.AttrRanking, snap.ranking),
	)
	log.Debug(log.CatRegistry, "service registered", "id", id, "types", typeNames, "ranking", snap.ranking)

	if invalid {
		r.invalidRanking(ctx, span, ref, props)
	}

	r.dispatch(ctx, t, events.Mutation[*Reference]{
		Type:      events.MutationRegister,
		Reference: ref,
		New:       snap.props,
	})
	return ref, nil
}

// Update replaces the properties of ref. MODIFIED or MODIFIED_ENDMATCH
// events are delivered before Update returns.
func (r *Registry) Update(ctx context.Context, ref *Reference, props *properties.Dictionary) (err error) {
	ctx, span := r.tracer.Start(ctx, tracing.SpanUpdate, trace.WithAttributes(
		attribute.String(tracing.AttrRegistryID, r.id),
	))
	defer func() { tracing.End(span, err) }()

	if err := r.owns(ref); err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64(tracing.AttrServiceID, int64(ref.id)))

	if err := r.authorize(ctx, ActionUpdate, ref.request()); err != nil {
		return err
	}

	ref.mu.Lock()
	if !ref.registered.Load() {
		ref.mu.Unlock()
		return fmt.Errorf("update service %d: %w", ref.id, ErrNotRegistered)
	}
	old := ref.state.Load()
	snap, invalid := normalize(props, ref.id, ref.typeNames)
	ref.state.Store(snap)
	t := ref.take(ctx)
	ref.mu.Unlock()

	span.SetAttributes(attribute.Int(tracing.AttrRanking, snap.ranking))
	log.Debug(log.CatRegistry, "service updated", "id", ref.id, "ranking", snap.ranking)

	if invalid {
		r.invalidRanking(ctx, span, ref, props)
	}

	r.dispatch(ctx, t, events.Mutation[*Reference]{
		Type:      events.MutationUpdate,
		Reference: ref,
		Old:       old.props,
		New:       snap.props,
	})
	return nil
}

// Unregister removes ref. UNREGISTERING events are delivered while the
// service is still visible to lookups; it is removed afterwards. A second
// call fails with ErrNotRegistered.
func (r *Registry) Unregister(ctx context.Context, ref *Reference) (err error) {
	ctx, span := r.tracer.Start(ctx, tracing.SpanUnregister, trace.WithAttributes(
		attribute.String(tracing.AttrRegistryID, r.id),
	))
	defer func() { tracing.End(span, err) }()

	if err := r.owns(ref); err != nil {
		return err
	}
	span.SetAttributes(attribute.Int64(tracing.AttrServiceID, int64(ref.id)))

	if err := r.authorize(ctx, ActionUnregister, ref.request()); err != nil {
		return err
	}

	ref.mu.Lock()
	if !ref.registered.Load() {
		ref.mu.Unlock()
		return fmt.Errorf("unregister service %d: %w", ref.id, ErrNotRegistered)
	}
	ref.registered.Store(false)
	last := ref.state.Load()
	t := ref.take(ctx)
	ref.mu.Unlock()

	r.dispatch(ctx, t, events.Mutation[*Reference]{
		Type:      events.MutationUnregister,
		Reference: ref,
		Old:       last.props,
	})

	r.regs.Delete(ref.id)
	r.count.Add(-1)
	log.Debug(log.CatRegistry, "service unregistered", "id", ref.id)
	return nil
}

// Lookup returns the references registered under typeName whose properties
// match filterText, best first. An empty typeName or filterText matches
// everything.
func (r *Registry) Lookup(ctx context.Context, typeName, filterText string) (refs []*Reference, err error) {
	ctx, span := r.tracer.Start(ctx, tracing.SpanLookup, trace.WithAttributes(
		attribute.String(tracing.AttrRegistryID, r.id),
		attribute.String(tracing.AttrTypeName, typeName),
		attribute.String(tracing.AttrFilter, filterText),
	))
	defer func() { tracing.End(span, err) }()

	f, err := r.compile(ctx, filterText)
	if err != nil {
		return nil, err
	}

	var found []candidate
	r.regs.Range(func(_, value any) bool {
		ref := value.(*Reference)
		if typeName != "" && !slices.Contains(ref.typeNames, typeName) {
			return true
		}
		snap := ref.state.Load()
		if f.Match(snap.props) {
			found = append(found, candidate{ref: ref, ranking: snap.ranking})
		}
		return true
	})

	refs = sortCandidates(found)
	span.SetAttributes(attribute.Int(tracing.AttrResults, len(refs)))
	return refs, nil
}

// GetBest returns the highest priority match of Lookup, or nil when nothing
// matches.
func (r *Registry) GetBest(ctx context.Context, typeName, filterText string) (*Reference, error) {
	refs, err := r.Lookup(ctx, typeName, filterText)
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	return refs[0], nil
}

// Subscribe delivers events for registrations matching filterText to l.
// An empty filterText matches every registration. Events of one
// registration arrive in mutation order. A listener that mutates the
// registry must pass on the context it was given; a mutation made with an
// unrelated context waits for the delivery in progress to finish.
func (r *Registry) Subscribe(filterText string, l Listener) (*Subscription, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: nil listener", ErrInvalidArgument)
	}
	f, err := r.compile(context.Background(), filterText)
	if err != nil {
		return nil, err
	}
	return r.hub.Subscribe(f, l), nil
}

// Unsubscribe stops delivery to sub. It reports whether sub was active.
func (r *Registry) Unsubscribe(sub *Subscription) bool {
	if sub == nil {
		return false
	}
	return sub.Unsubscribe()
}

// Listeners returns the number of active subscriptions.
func (r *Registry) Listeners() int { return r.hub.Len() }

// dispatch delivers m once earlier mutations of the same registration
// have been delivered.
func (r *Registry) dispatch(ctx context.Context, t turn, m events.Mutation[*Reference]) {
	t.wait()
	defer t.release()
	r.hub.Dispatch(context.WithValue(ctx, dispatchKey{r}, struct{}{}), m)
}

func (r *Registry) compile(ctx context.Context, text string) (*filter.Filter, error) {
	if text == "" {
		return nil, nil
	}
	f, err := r.filters.Compile(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return f, nil
}

func (r *Registry) owns(ref *Reference) error {
	if ref == nil {
		return fmt.Errorf("%w: nil reference", ErrInvalidArgument)
	}
	if ref.registry != r {
		return fmt.Errorf("%w: service %d belongs to another registry", ErrInvalidArgument, ref.id)
	}
	return nil
}

func (r *Registry) authorize(ctx context.Context, action Action, req *Request) error {
	if r.authorizer == nil {
		return nil
	}
	if err := r.authorizer.Authorize(ctx, action, req); err != nil {
		log.Info(log.CatRegistry, "mutation denied", "action", action, "service", req.ServiceID, "owner", req.Owner, "error", err)
		return fmt.Errorf("%s: %w: %w", action, ErrPermissionDenied, err)
	}
	return nil
}

func (ref *Reference) request() *Request {
	return &Request{TypeNames: slices.Clone(ref.typeNames), Owner: ref.owner, ServiceID: ref.id}
}

func (r *Registry) invalidRanking(ctx context.Context, span trace.Span, ref *Reference, props *properties.Dictionary) {
	raw, _ := props.Get(PropServiceRanking)
	span.AddEvent(tracing.EventInvalidRanking, trace.WithAttributes(
		attribute.String(tracing.AttrErrorMessage, raw.String()),
	))
	log.Warn(log.CatRegistry, "ignoring invalid service.ranking", "id", ref.id, "value", raw.String(), "kind", raw.Kind())
	r.report(ctx, Fault{
		Kind:      FaultInvalidRanking,
		ServiceID: ref.id,
		Message:   fmt.Sprintf("service.ranking %q is not an integer, using 0", raw.String()),
	})
}

func (r *Registry) listenerFailed(ctx context.Context, f events.Failure[*Reference]) {
	log.Warn(log.CatRegistry, "listener failed",
		"subscription", f.Subscription.ID(),
		"event", f.Event.Kind,
		"service", f.Event.Reference.ID(),
		"panicked", f.Panicked,
		"error", f.Err)
	r.report(ctx, Fault{
		Kind:      FaultListenerFailure,
		ServiceID: f.Event.Reference.ID(),
		Message:   fmt.Sprintf("listener %d failed on %s", f.Subscription.ID(), f.Event.Kind),
		Err:       f.Err,
	})
}
