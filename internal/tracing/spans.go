package tracing

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span names.
const (
	SpanRegister   = "registry.register"
	SpanUpdate     = "registry.update"
	SpanUnregister = "registry.unregister"
	SpanLookup     = "registry.lookup"
	SpanDispatch   = "events.dispatch"
)

// Span attribute keys.
const (
	AttrRegistryID   = "registry.id"
	AttrServiceID    = "service.id"
	AttrServiceTypes = "service.types"
	AttrRanking      = "service.ranking"
	AttrFilter       = "filter"
	AttrTypeName     = "lookup.type"
	AttrResults      = "lookup.results"
	AttrMutation     = "event.mutation"
	AttrListeners    = "event.listeners"
	AttrDelivered    = "event.delivered"
	AttrEventKind    = "event.kind"
	AttrSubscription = "subscription.id"
	AttrErrorMessage = "error.message"
)

// Span event names.
const (
	EventListenerFailed = "listener.failed"
	EventInvalidRanking = "ranking.invalid"
)

// NoopTracer returns a tracer whose spans are discarded.
func NoopTracer() trace.Tracer {
	return noop.NewTracerProvider().Tracer("noop")
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
