package metadata

import (
	"github.com/agnivade/levenshtein"

	"github.com/vannputh/analytics/internal/normalize"
)

// bestMatch returns the index of the candidate title closest to want by edit
// distance over case-folded forms. Ties go to the earlier candidate, which
// keeps the provider's own relevance order. -1 when there are no candidates.
func bestMatch(want string, candidates []string) int {
	best, bestDist := -1, 0
	w := normalize.Key(want)
	for i, c := range candidates {
		d := levenshtein.ComputeDistance(w, normalize.Key(c))
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
