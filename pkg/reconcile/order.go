package reconcile

import (
	"sort"

	"github.com/japaniel/kanjisync/pkg/config"
	"github.com/japaniel/kanjisync/pkg/dictionary"
)

// Order sorts literals for creation. It does not modify its input.
//
//   - frequency: ranked literals ascending by rank, unranked after
//   - vocab: literals in more observations first
//   - first_encountered: lowest contributing note id first
//
// Ties are broken by literal so the result is deterministic.
func Order(mode string, literals []string, idx *Index, dict dictionary.Source) []string {
	out := append([]string(nil), literals...)

	rank := func(lit string) int {
		if dict == nil {
			return 0
		}
		if e, ok := dict.Lookup(lit); ok {
			return e.Frequency
		}
		return 0
	}

	var less func(a, b string) bool
	switch mode {
	case config.ReorderVocab:
		less = func(a, b string) bool {
			ca, cb := idx.Count(a), idx.Count(b)
			if ca != cb {
				return ca > cb
			}
			return a < b
		}
	case config.ReorderFirstEncountered:
		less = func(a, b string) bool {
			fa, fb := idx.FirstSeen(a), idx.FirstSeen(b)
			if fa != fb {
				return fa < fb
			}
			return a < b
		}
	default:
		ranks := make(map[string]int, len(out))
		for _, lit := range out {
			ranks[lit] = rank(lit)
		}
		less = func(a, b string) bool {
			ra, rb := ranks[a], ranks[b]
			switch {
			case ra == rb:
				return a < b
			case ra == 0:
				return false
			case rb == 0:
				return true
			default:
				return ra < rb
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
