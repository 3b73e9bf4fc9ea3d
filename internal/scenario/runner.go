package scenario

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/zjrosen/svcreg/internal/events"
	"github.com/zjrosen/svcreg/internal/log"
	"github.com/zjrosen/svcreg/internal/properties"
	"github.com/zjrosen/svcreg/internal/registry"
)

// Entry is one event seen by one listener.
type Entry struct {
	Seq       int
	Step      int
	Listener  string
	Kind      events.Kind
	Service   string
	ServiceID uint64
	Diff      []DiffLine
}

// LookupResult is the outcome of a lookup step.
type LookupResult struct {
	Step     int
	Type     string
	Filter   string
	Services []string
	Rankings []int
	Err      error
}

// Result is everything a run produced.
type Result struct {
	Name       string
	Transcript []Entry
	Lookups    []LookupResult
	Faults     []registry.Fault
	// Mismatches lists unmet expectations, in step order.
	Mismatches []string
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool { return len(r.Mismatches) == 0 }

// Received returns the event kinds delivered to the named listener.
func (r *Result) Received(listener string) []events.Kind {
	var kinds []events.Kind
	for _, e := range r.Transcript {
		if e.Listener == listener {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

// Option configures a run.
type Option func(*runner)

// WithRegistryOptions passes options to the registry the run creates.
func WithRegistryOptions(opts ...registry.Option) Option {
	return func(r *runner) { r.regOpts = append(r.regOpts, opts...) }
}

// WithDiff records a property diff for every MODIFIED and
// MODIFIED_ENDMATCH event.
func WithDiff(enabled bool) Option {
	return func(r *runner) { r.diff = enabled }
}

// errListener is returned by listeners subscribed with fail set.
var errListener = errors.New("listener configured to fail")

// faultCollector records faults in report order.
type faultCollector struct {
	mu     sync.Mutex
	faults []registry.Fault
}

func (c *faultCollector) Report(_ context.Context, f registry.Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = append(c.faults, f)
}

type subscriber struct {
	sub    *registry.Subscription
	expect []events.Kind
	check  bool
}

type runner struct {
	regOpts []registry.Option
	diff    bool

	reg      *registry.Registry
	faults   *faultCollector
	result   *Result
	step     int
	refs     map[string]*registry.Reference
	subs     map[string]*subscriber
	subOrder []string
}

// Run replays sc against a fresh registry. Step errors that were not
// expected abort the run; unmet expectations are collected in
// Result.Mismatches instead.
func Run(ctx context.Context, sc *Scenario, opts ...Option) (*Result, error) {
	r := &runner{
		faults: &faultCollector{},
		result: &Result{Name: sc.Name},
		refs:   make(map[string]*registry.Reference),
		subs:   make(map[string]*subscriber),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.reg = registry.New(append(r.regOpts, registry.WithFaultReporter(r.faults))...)
	defer r.reg.Close()

	log.Debug(log.CatScenario, "scenario started", "name", sc.Name, "steps", len(sc.Steps))

	for i, step := range sc.Steps {
		r.step = i + 1
		if err := r.apply(ctx, step); err != nil {
			return r.result, fmt.Errorf("step %d (%s): %w", r.step, step.Op(), err)
		}
	}

	r.checkListeners()
	r.result.Faults = slices.Clone(r.faults.faults)

	log.Debug(log.CatScenario, "scenario finished", "name", sc.Name,
		"events", len(r.result.Transcript), "mismatches", len(r.result.Mismatches))
	return r.result, nil
}

func (r *runner) apply(ctx context.Context, step Step) error {
	switch {
	case step.Subscribe != nil:
		return r.subscribe(step.Subscribe)
	case step.Unsubscribe != nil:
		s, ok := r.subs[step.Unsubscribe.ID]
		if !ok {
			return fmt.Errorf("unknown listener %q", step.Unsubscribe.ID)
		}
		r.reg.Unsubscribe(s.sub)
		return nil
	case step.Register != nil:
		return r.register(ctx, step.Register)
	case step.Update != nil:
		ref, err := r.ref(step.Update.ID)
		if err != nil {
			return err
		}
		err = r.reg.Update(ctx, ref, properties.FromMap(step.Update.Properties))
		return r.expectError(err, step.Update.ExpectError)
	case step.Unregister != nil:
		ref, err := r.ref(step.Unregister.ID)
		if err != nil {
			return err
		}
		err = r.reg.Unregister(ctx, ref)
		return r.expectError(err, step.Unregister.ExpectError)
	case step.Lookup != nil:
		return r.lookup(ctx, step.Lookup)
	}
	return nil
}

func (r *runner) subscribe(s *SubscribeStep) error {
	if _, exists := r.subs[s.ID]; exists {
		return fmt.Errorf("listener %q already subscribed", s.ID)
	}

	name, fail := s.ID, s.Fail
	listener := registry.ListenerFunc(func(_ context.Context, e registry.ServiceEvent) error {
		r.record(name, e)
		if fail {
			return errListener
		}
		return nil
	})

	sub, err := r.reg.Subscribe(s.Filter, listener)
	if err != nil {
		return err
	}

	entry := &subscriber{sub: sub, check: s.Expect != nil}
	for _, k := range s.Expect {
		kind, _ := events.ParseKind(k)
		entry.expect = append(entry.expect, kind)
	}
	r.subs[s.ID] = entry
	r.subOrder = append(r.subOrder, s.ID)
	return nil
}

func (r *runner) register(ctx context.Context, s *RegisterStep) error {
	if _, exists := r.refs[s.ID]; exists {
		return fmt.Errorf("service %q already registered", s.ID)
	}

	var opts []registry.RegisterOption
	if s.Owner != "" {
		opts = append(opts, registry.WithOwner(s.Owner))
	}
	ref, err := r.reg.Register(ctx, s.Types, properties.FromMap(s.Properties), s.ID, opts...)
	if err != nil {
		return r.expectError(err, s.ExpectError)
	}
	r.refs[s.ID] = ref
	return r.expectError(nil, s.ExpectError)
}

func (r *runner) lookup(ctx context.Context, s *LookupStep) error {
	refs, err := r.reg.Lookup(ctx, s.Type, s.Filter)
	res := LookupResult{Step: r.step, Type: s.Type, Filter: s.Filter, Err: err}
	for _, ref := range refs {
		res.Services = append(res.Services, r.name(ref))
		res.Rankings = append(res.Rankings, ref.Ranking())
	}
	r.result.Lookups = append(r.result.Lookups, res)

	if err := r.expectError(err, s.ExpectError); err != nil {
		return err
	}
	if s.Expect != nil && !slices.Equal(*s.Expect, res.Services) {
		r.mismatch("lookup %s %s: got [%s], want [%s]", s.Type, s.Filter,
			strings.Join(res.Services, ", "), strings.Join(*s.Expect, ", "))
	}
	return nil
}

func (r *runner) record(listener string, e registry.ServiceEvent) {
	entry := Entry{
		Seq:       len(r.result.Transcript) + 1,
		Step:      r.step,
		Listener:  listener,
		Kind:      e.Kind,
		Service:   r.name(e.Reference),
		ServiceID: e.Reference.ID(),
	}
	if r.diff && e.Previous != nil {
		entry.Diff = Diff(e.Previous, e.Properties)
	}
	r.result.Transcript = append(r.result.Transcript, entry)
}

// name maps a reference back to its scenario name. The service handle is
// the name, so this works for events fired before Register returns.
func (r *runner) name(ref *registry.Reference) string {
	if name, ok := ref.Service().(string); ok {
		return name
	}
	return fmt.Sprintf("#%d", ref.ID())
}

func (r *runner) ref(name string) (*registry.Reference, error) {
	ref, ok := r.refs[name]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", name)
	}
	return ref, nil
}

func (r *runner) expectError(err error, expected bool) error {
	switch {
	case err != nil && !expected:
		return err
	case err == nil && expected:
		r.mismatch("expected an error")
	}
	return nil
}

func (r *runner) checkListeners() {
	for _, id := range r.subOrder {
		s := r.subs[id]
		if !s.check {
			continue
		}
		got := r.result.Received(id)
		if !slices.Equal(got, s.expect) {
			r.result.Mismatches = append(r.result.Mismatches,
				fmt.Sprintf("listener %s: got [%s], want [%s]", id, kindList(got), kindList(s.expect)))
		}
	}
}

func (r *runner) mismatch(format string, args ...any) {
	msg := fmt.Sprintf("step %d: ", r.step) + fmt.Sprintf(format, args...)
	log.Debug(log.CatScenario, "expectation failed", "detail", msg)
	r.result.Mismatches = append(r.result.Mismatches, msg)
}

func kindList(kinds []events.Kind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}
