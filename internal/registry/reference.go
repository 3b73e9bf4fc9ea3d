package registry

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zjrosen/svcreg/internal/properties"
)

// Well-known property keys maintained by the registry. Values supplied by
// the publisher for objectClass and service.id are overwritten.
const (
	PropObjectClass    = "objectClass"
	PropServiceID      = "service.id"
	PropServiceRanking = "service.ranking"
)

// snapshot is an immutable view of a registration's properties together
// with the ranking derived from them.
type snapshot struct {
	props   *properties.Dictionary
	ranking int
}

// Reference is the handle to a registration. A registry hands out exactly
// one *Reference per registration, so references compare with ==. It stays
// readable after Unregister, returning the last known properties.
type Reference struct {
	id        uint64
	typeNames []string
	service   any
	owner     string
	registry  *Registry

	mu         sync.Mutex // serializes Update and Unregister
	registered atomic.Bool
	state      atomic.Pointer[snapshot]
	tail       chan struct{} // closed when the last queued delivery ends; guarded by mu
}

// ID returns the registration id, also published as service.id.
func (ref *Reference) ID() uint64 { return ref.id }

// TypeNames returns the type names the service was registered under, in
// registration order.
func (ref *Reference) TypeNames() []string { return slices.Clone(ref.typeNames) }

// Service returns the handle supplied by the publisher.
func (ref *Reference) Service() any { return ref.service }

// Owner returns the owner given with WithOwner.
func (ref *Reference) Owner() string { return ref.owner }

// Ranking returns the current service ranking.
func (ref *Reference) Ranking() int { return ref.state.Load().ranking }

// Registered reports whether the registration is still live.
func (ref *Reference) Registered() bool { return ref.registered.Load() }

// Properties returns a copy of the current properties.
func (ref *Reference) Properties() *properties.Dictionary {
	return ref.state.Load().props.Clone()
}

// Property returns a single property value; keys are case-insensitive.
func (ref *Reference) Property(key string) (properties.Value, bool) {
	return ref.state.Load().props.Get(key)
}

// CompareTo is Compare(ref, other).
func (ref *Reference) CompareTo(other *Reference) int {
	return Compare(ref, other)
}

func (ref *Reference) String() string {
	return fmt.Sprintf("service %d [%s] ranking=%d", ref.id, strings.Join(ref.typeNames, ", "), ref.Ranking())
}

// normalize copies props and stamps the registry-maintained keys. invalid
// reports a service.ranking that is present but unusable; the ranking then
// falls back to 0 and the property is rewritten to match.
func normalize(props *properties.Dictionary, id uint64, typeNames []string) (snap *snapshot, invalid bool) {
	out := props.Clone()
	ranking, invalid := rankingOf(out)

	for _, key := range []string{PropObjectClass, PropServiceID, PropServiceRanking} {
		out.Delete(key)
	}
	out.Put(PropObjectClass, properties.Strings(typeNames...))
	out.Put(PropServiceID, properties.Int(int64(id)))
	out.Put(PropServiceRanking, properties.Int(int64(ranking)))
	return &snapshot{props: out, ranking: ranking}, invalid
}

func rankingOf(props *properties.Dictionary) (ranking int, invalid bool) {
	v, ok := props.Get(PropServiceRanking)
	if !ok || v.IsNull() {
		return 0, false
	}
	n, ok := v.AsInt()
	if !ok || n < math.MinInt32 || n > math.MaxInt32 {
		return 0, true
	}
	return int(n), false
}

// turn is a slot in a reference's delivery queue. Events of one
// registration are delivered in the order its mutations took their turns.
type turn struct {
	prev <-chan struct{}
	done chan struct{}
}

// dispatchKey marks a context passed to listeners of a registry.
type dispatchKey struct{ r *Registry }

// take queues a delivery behind the earlier mutations of ref. It must be
// called with ref.mu held, or before ref is published. Mutations made from inside a listener of the
// same registry are delivered inline and get an empty turn.
func (ref *Reference) take(ctx context.Context) turn {
	if ctx.Value(dispatchKey{ref.registry}) != nil {
		return turn{}
	}
	t := turn{prev: ref.tail, done: make(chan struct{})}
	ref.tail = t.done
	return t
}

func (t turn) wait() {
	if t.prev != nil {
		<-t.prev
	}
}

func (t turn) release() {
	if t.done != nil {
		close(t.done)
	}
}
