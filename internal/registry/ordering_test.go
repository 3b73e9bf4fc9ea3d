package registry

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/svcreg/internal/properties"
)

func ranked(ranking any) *properties.Dictionary {
	return properties.FromMap(map[string]any{PropServiceRanking: ranking})
}

func TestCompare(t *testing.T) {
	reg := New()
	ctx := context.Background()

	low, err := reg.Register(ctx, []string{"Svc"}, ranked(1), nil)
	require.NoError(t, err)
	high, err := reg.Register(ctx, []string{"Svc"}, ranked(5), nil)
	require.NoError(t, err)
	tie, err := reg.Register(ctx, []string{"Svc"}, ranked(5), nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		a, b *Reference
		want int
	}{
		{"higher ranking wins", high, low, 1},
		{"lower ranking loses", low, high, -1},
		{"earlier registration wins tie", high, tie, 1},
		{"later registration loses tie", tie, high, -1},
		{"same registration", high, high, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Compare(tt.a, tt.b))
			require.Equal(t, tt.want, tt.a.CompareTo(tt.b))
		})
	}
}

func TestCompare_Int32Extremes(t *testing.T) {
	reg := New()
	ctx := context.Background()

	lowest, err := reg.Register(ctx, []string{"Svc"}, ranked(math.MinInt32), nil)
	require.NoError(t, err)
	highest, err := reg.Register(ctx, []string{"Svc"}, ranked(math.MaxInt32), nil)
	require.NoError(t, err)

	require.Equal(t, math.MinInt32, lowest.Ranking())
	require.Equal(t, math.MaxInt32, highest.Ranking())
	require.Positive(t, highest.CompareTo(lowest))
	require.Negative(t, lowest.CompareTo(highest))

	refs := []*Reference{lowest, highest}
	SortByPriority(refs)
	require.Equal(t, []*Reference{highest, lowest}, refs)
}

func TestSortByPriority_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := New()
		ctx := context.Background()

		rankings := rapid.SliceOfN(rapid.IntRange(-3, 3), 1, 20).Draw(t, "rankings")
		refs := make([]*Reference, 0, len(rankings))
		for _, r := range rankings {
			ref, err := reg.Register(ctx, []string{"Svc"}, ranked(r), nil)
			require.NoError(t, err)
			refs = append(refs, ref)
		}

		perm := rapid.Permutation(refs).Draw(t, "perm")
		SortByPriority(perm)

		for i := 1; i < len(perm); i++ {
			prev, cur := perm[i-1], perm[i]
			require.Positive(t, Compare(prev, cur))
			if prev.Ranking() == cur.Ranking() {
				require.Less(t, prev.ID(), cur.ID())
			} else {
				require.Greater(t, prev.Ranking(), cur.Ranking())
			}
		}

		looked, err := reg.Lookup(ctx, "Svc", "")
		require.NoError(t, err)
		require.Equal(t, perm, looked)
	})
}
