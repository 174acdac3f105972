package resolver

import (
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"
)

const (
	maxSuggestions  = 5
	maxEditDistance = 2
)

// Suggest returns up to five qualified names near the misspelled
// name, ranked by string similarity. Candidates within a small edit
// distance come first; stem matches fill remaining slots so that
// plural or inflected queries still land.
func (r *Resolver) Suggest(name string) []string {
	// Compare against the bare final component.
	bare := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		bare = name[i+1:]
	}
	lower := strings.ToLower(bare)
	stem := porter2.Stem(lower)

	type candidate struct {
		qname string
		score float32
	}
	var near []candidate
	var stems []candidate
	seen := map[string]bool{}
	for i := range r.symbols {
		sym := &r.symbols[i]
		if seen[sym.QualifiedName] {
			continue
		}
		seen[sym.QualifiedName] = true
		symLower := strings.ToLower(sym.Name)
		sim, err := edlib.StringsSimilarity(lower, symLower, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if edlib.LevenshteinDistance(lower, symLower) <= maxEditDistance {
			near = append(near, candidate{sym.QualifiedName, sim})
		} else if porter2.Stem(symLower) == stem {
			stems = append(stems, candidate{sym.QualifiedName, sim})
		}
	}
	byScore := func(cs []candidate) {
		sort.Slice(cs, func(i, j int) bool {
			if cs[i].score != cs[j].score {
				return cs[i].score > cs[j].score
			}
			return cs[i].qname < cs[j].qname
		})
	}
	byScore(near)
	byScore(stems)

	var out []string
	for _, c := range append(near, stems...) {
		out = append(out, c.qname)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
