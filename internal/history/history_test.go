package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/svcreg/internal/events"
	"github.com/zjrosen/svcreg/internal/scenario"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	started := time.Unix(1700000000, 0)

	id1, err := s.Record(ctx, Run{Scenario: "a", Path: "a.yaml", Passed: true, Events: 4, StartedAt: started, Duration: time.Millisecond})
	require.NoError(t, err)
	id2, err := s.Record(ctx, Run{Scenario: "b", Passed: false, Mismatches: []string{"step 2: x", "step 3: y"}, StartedAt: started.Add(time.Second)})
	require.NoError(t, err)
	id3, err := s.Record(ctx, Run{Scenario: "a", Passed: true, StartedAt: started.Add(2 * time.Second)})
	require.NoError(t, err)
	require.Less(t, id1, id2)
	require.Less(t, id2, id3)

	all, err := s.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []int64{id3, id2, id1}, []int64{all[0].ID, all[1].ID, all[2].ID})

	first := all[2]
	require.Equal(t, "a", first.Scenario)
	require.Equal(t, "a.yaml", first.Path)
	require.True(t, first.Passed)
	require.Equal(t, 4, first.Events)
	require.True(t, started.Equal(first.StartedAt))
	require.Equal(t, time.Millisecond, first.Duration)
	require.Empty(t, first.Mismatches)

	require.Equal(t, []string{"step 2: x", "step 3: y"}, all[1].Mismatches)

	onlyA, err := s.Recent(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	require.Equal(t, id3, onlyA[0].ID)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	for i := 0; i < 5; i++ {
		_, err := s.Record(ctx, Run{Scenario: "p", Passed: i%2 == 0, Mismatches: []string{"m"}, StartedAt: time.Now()})
		require.NoError(t, err)
	}

	removed, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), removed)

	runs, err := s.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	var orphans int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mismatches WHERE run_id NOT IN (SELECT id FROM runs)`).Scan(&orphans))
	require.Zero(t, orphans)
}

func TestPrune_NonPositiveKeepsAll(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	for i := 0; i < 3; i++ {
		_, err := s.Record(ctx, Run{Scenario: "all", Passed: true, StartedAt: time.Now()})
		require.NoError(t, err)
	}

	for _, keep := range []int{0, -1} {
		removed, err := s.Prune(ctx, keep)
		require.NoError(t, err)
		require.Zero(t, removed, "keep=%d", keep)
	}

	runs, err := s.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
}

func TestReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Record(ctx, Run{Scenario: "kept", Passed: true, StartedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	runs, err := s.Recent(ctx, "kept", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestClosedStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Record(context.Background(), Run{Scenario: "x"})
	require.ErrorIs(t, err, ErrClosed)
	_, err = s.Recent(context.Background(), "", 1)
	require.ErrorIs(t, err, ErrClosed)
}

func TestFromResult(t *testing.T) {
	res := &scenario.Result{
		Name: "demo",
		Transcript: []scenario.Entry{
			{Listener: "l", Kind: events.Registered},
			{Listener: "l", Kind: events.Unregistering},
		},
		Lookups:    []scenario.LookupResult{{Type: "T"}},
		Mismatches: []string{"step 1: boom"},
	}
	started := time.Now()

	run := FromResult("demo.yaml", res, started, 2*time.Second)
	require.Equal(t, "demo", run.Scenario)
	require.Equal(t, "demo.yaml", run.Path)
	require.False(t, run.Passed)
	require.Equal(t, 2, run.Events)
	require.Equal(t, 1, run.Lookups)
	require.Equal(t, []string{"step 1: boom"}, run.Mismatches)
	require.Equal(t, 2*time.Second, run.Duration)
}
