package registry

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/zjrosen/svcreg/internal/pubsub"
)

// FaultKind classifies a non-fatal anomaly.
type FaultKind int

const (
	// FaultInvalidRanking: service.ranking was present but not an integer.
	FaultInvalidRanking FaultKind = iota + 1
	// FaultListenerFailure: a listener returned an error or panicked.
	FaultListenerFailure
)

func (k FaultKind) String() string {
	switch k {
	case FaultInvalidRanking:
		return "invalid-ranking"
	case FaultListenerFailure:
		return "listener-failure"
	default:
		return "unknown"
	}
}

// Fault is a non-fatal anomaly. Faults never abort the operation that
// raised them.
type Fault struct {
	Seq        uint64
	Kind       FaultKind
	RegistryID string
	ServiceID  uint64
	Message    string
	Err        error
	Time       time.Time
}

func (f Fault) String() string {
	s := fmt.Sprintf("#%d %s service=%d: %s", f.Seq, f.Kind, f.ServiceID, f.Message)
	if f.Err != nil {
		s += ": " + f.Err.Error()
	}
	return s
}

// Faults subscribes to the fault stream, limited to kinds when any are
// given. The channel is closed when ctx is cancelled or the registry is
// closed. A slow reader misses faults rather than blocking the registry.
func (r *Registry) Faults(ctx context.Context, kinds ...FaultKind) <-chan pubsub.Event[Fault] {
	if len(kinds) == 0 {
		return r.faults.Subscribe(ctx)
	}
	return r.faults.Subscribe(ctx, pubsub.WithFilter(func(e pubsub.Event[Fault]) bool {
		return slices.Contains(kinds, e.Payload.Kind)
	}))
}

// report stamps f and fans it out to the reporter and the fault stream.
func (r *Registry) report(ctx context.Context, f Fault) {
	f.Seq = r.faultSeq.Add(1)
	f.RegistryID = r.id
	f.Time = time.Now()

	if r.reporter != nil {
		r.reporter.Report(ctx, f)
	}
	r.faults.Publish(pubsub.FaultEvent, f)
}
