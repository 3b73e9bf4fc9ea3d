package registry

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/svcreg/internal/filter"
)

// Action is the operation an Authorizer is asked about.
type Action int

const (
	ActionRegister Action = iota
	ActionUpdate
	ActionUnregister
)

func (a Action) String() string {
	switch a {
	case ActionRegister:
		return "register"
	case ActionUpdate:
		return "update"
	case ActionUnregister:
		return "unregister"
	default:
		return "unknown"
	}
}

// Request describes the registration an action applies to. ServiceID is
// zero for ActionRegister.
type Request struct {
	TypeNames []string
	Owner     string
	ServiceID uint64
}

// Authorizer decides whether a mutation may proceed. Any non-nil error
// aborts the operation with ErrPermissionDenied.
type Authorizer interface {
	Authorize(ctx context.Context, action Action, req *Request) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, action Action, req *Request) error

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, action Action, req *Request) error {
	return f(ctx, action, req)
}

// FaultReporter receives non-fatal anomalies.
type FaultReporter interface {
	Report(ctx context.Context, fault Fault)
}

// Option configures a Registry.
type Option func(*Registry)

// WithAuthorizer checks every Register, Update and Unregister with a.
func WithAuthorizer(a Authorizer) Option {
	return func(r *Registry) { r.authorizer = a }
}

// WithFaultReporter sends every fault to fr in addition to the Faults stream.
func WithFaultReporter(fr FaultReporter) Option {
	return func(r *Registry) { r.reporter = fr }
}

// WithTracer records registry and dispatch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Registry) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithFilterCache compiles Lookup and Subscribe filters through c.
func WithFilterCache(c *filter.Cache) Option {
	return func(r *Registry) { r.filters = c }
}

// WithFaultBuffer sets the per-subscriber buffer of the Faults stream.
func WithFaultBuffer(size int) Option {
	return func(r *Registry) { r.faultBuffer = size }
}

// RegisterOption configures a single registration.
type RegisterOption func(*registerConfig)

type registerConfig struct {
	owner string
}

// WithOwner records who published the service. The owner is passed to the
// Authorizer on every later mutation of the registration.
func WithOwner(owner string) RegisterOption {
	return func(c *registerConfig) { c.owner = owner }
}
