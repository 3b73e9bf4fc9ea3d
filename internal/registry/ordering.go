package registry

import (
	"cmp"
	"slices"
)

// Compare orders two references by priority. It returns a positive number
// when a ranks before b: a higher ranking wins, and at equal ranking the
// smaller id (the earlier registration) wins. The same registration
// compares as 0.
func Compare(a, b *Reference) int {
	if a.id == b.id {
		return 0
	}
	return compareKeys(a.Ranking(), a.id, b.Ranking(), b.id)
}

func compareKeys(rankingA int, idA uint64, rankingB int, idB uint64) int {
	if c := cmp.Compare(rankingA, rankingB); c != 0 {
		return c
	}
	return cmp.Compare(idB, idA)
}

// SortByPriority sorts refs best first.
func SortByPriority(refs []*Reference) {
	slices.SortFunc(refs, func(a, b *Reference) int {
		return Compare(b, a)
	})
}

// candidate pins a reference's ranking for the duration of a sort, so a
// concurrent Update cannot make the comparison inconsistent.
type candidate struct {
	ref     *Reference
	ranking int
}

func sortCandidates(cs []candidate) []*Reference {
	slices.SortFunc(cs, func(a, b candidate) int {
		return compareKeys(b.ranking, b.ref.id, a.ranking, a.ref.id)
	})
	refs := make([]*Reference, len(cs))
	for i, c := range cs {
		refs[i] = c.ref
	}
	return refs
}
