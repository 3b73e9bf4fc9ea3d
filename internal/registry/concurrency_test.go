package registry

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/svcreg/internal/events"
	"github.com/zjrosen/svcreg/internal/properties"
)

// kindsByService records the event kinds seen per registration.
type kindsByService struct {
	mu   sync.Mutex
	byID map[uint64][]events.Kind
}

func (l *kindsByService) ServiceChanged(_ context.Context, e ServiceEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byID == nil {
		l.byID = make(map[uint64][]events.Kind)
	}
	l.byID[e.Reference.ID()] = append(l.byID[e.Reference.ID()], e.Kind)
	return nil
}

func (l *kindsByService) kinds(id uint64) []events.Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.byID[id])
}

func genProps(gen int) *properties.Dictionary {
	return properties.FromMap(map[string]any{"gen": gen, PropServiceRanking: gen})
}

func genOf(d *properties.Dictionary) int64 {
	v, _ := d.Get("gen")
	n, _ := v.AsInt()
	return n
}

func TestUpdateUnregister_RaceResolvesOnce(t *testing.T) {
	reg := New()
	ctx := context.Background()
	seen := &kindsByService{}
	_, err := reg.Subscribe("", seen)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		ref, err := reg.Register(ctx, []string{"Svc"}, ranked(1), nil)
		require.NoError(t, err)

		start := make(chan struct{})
		var updateErr, unregisterErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			updateErr = reg.Update(ctx, ref, ranked(2))
		}()
		go func() {
			defer wg.Done()
			<-start
			unregisterErr = reg.Unregister(ctx, ref)
		}()
		close(start)
		wg.Wait()

		require.NoError(t, unregisterErr)
		if updateErr != nil {
			require.ErrorIs(t, updateErr, ErrNotRegistered)
			require.Equal(t, []events.Kind{events.Registered, events.Unregistering}, seen.kinds(ref.ID()))
		} else {
			require.Equal(t, []events.Kind{events.Registered, events.Modified, events.Unregistering}, seen.kinds(ref.ID()),
				"an update that won the race is delivered before UNREGISTERING")
		}
		require.ErrorIs(t, reg.Update(ctx, ref, ranked(3)), ErrNotRegistered)
	}
	require.Zero(t, reg.Len())
}

func TestLookup_SnapshotsConsistentDuringUpdates(t *testing.T) {
	reg := New()
	ctx := context.Background()
	ref, err := reg.Register(ctx, []string{"Svc"}, genProps(0), nil)
	require.NoError(t, err)

	const writers, updates = 4, 250
	done := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 1; j <= updates; j++ {
				_ = reg.Update(ctx, ref, genProps(w*1000+j))
			}
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			return
		default:
		}

		refs, err := reg.Lookup(ctx, "Svc", "(gen=*)")
		require.NoError(t, err)
		require.Len(t, refs, 1)

		snap := refs[0].state.Load()
		ranking, ok := snap.props.Get(PropServiceRanking)
		require.True(t, ok)
		n, ok := ranking.AsInt()
		require.True(t, ok)
		require.Equal(t, int64(snap.ranking), n)
		require.Equal(t, genOf(snap.props), n)

		props := refs[0].Properties()
		require.Equal(t, genOf(props), int64(mustRanking(t, props)))
	}
}

func mustRanking(t *testing.T, d *properties.Dictionary) int {
	t.Helper()
	v, ok := d.Get(PropServiceRanking)
	require.True(t, ok)
	n, ok := v.AsInt()
	require.True(t, ok)
	return int(n)
}

func TestUpdate_ConcurrentDeliveryFollowsMutationOrder(t *testing.T) {
	reg := New()
	ctx := context.Background()

	type change struct{ prev, cur int64 }
	var mu sync.Mutex
	var changes []change
	_, err := reg.Subscribe("", ListenerFunc(func(_ context.Context, e ServiceEvent) error {
		if e.Kind == events.Modified {
			mu.Lock()
			changes = append(changes, change{prev: genOf(e.Previous), cur: genOf(e.Properties)})
			mu.Unlock()
		}
		return nil
	}))
	require.NoError(t, err)

	ref, err := reg.Register(ctx, []string{"Svc"}, genProps(0), nil)
	require.NoError(t, err)

	const writers, updates = 4, 250
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 1; j <= updates; j++ {
				_ = reg.Update(ctx, ref, genProps(w*1000+j))
			}
		}()
	}
	wg.Wait()

	require.Len(t, changes, writers*updates)
	want := int64(0)
	for i, c := range changes {
		require.Equal(t, want, c.prev, "event %d does not follow the previous delivery", i)
		want = c.cur
	}
	require.Equal(t, want, genOf(ref.Properties()), "last delivery carries the current properties")
}

func TestListener_ReentrantUpdateWhileOthersQueue(t *testing.T) {
	reg := New()
	ctx := context.Background()
	seen := &kindsByService{}

	// Every odd generation is bumped to the next even one from inside the listener.
	_, err := reg.Subscribe("", ListenerFunc(func(ctx context.Context, e ServiceEvent) error {
		if e.Kind == events.Modified {
			if gen := genOf(e.Properties); gen%2 == 1 {
				return reg.Update(ctx, e.Reference, genProps(int(gen)+1))
			}
		}
		return nil
	}))
	require.NoError(t, err)
	_, err = reg.Subscribe("", seen)
	require.NoError(t, err)

	ref, err := reg.Register(ctx, []string{"Svc"}, genProps(0), nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = reg.Update(ctx, ref, genProps(2*(w*100+j)+1))
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen.kinds(ref.ID()), 1+2*4*50)
	require.Zero(t, genOf(ref.Properties())%2)
}
