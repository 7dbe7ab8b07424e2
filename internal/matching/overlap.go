package matching

import (
	"sort"

	"github.com/samber/lo"
)

// Compatibility is the number of interest tags two participants share.
func Compatibility(a, b *Participant) int {
	if len(a.Interests) == 0 || len(b.Interests) == 0 {
		return 0
	}
	return len(lo.Intersect(a.Interests, b.Interests))
}

// SharedInterests returns the tags both participants hold, sorted.
func SharedInterests(a, b *Participant) []string {
	shared := lo.Intersect(a.Interests, b.Interests)
	sort.Strings(shared)
	return shared
}

// OrderByCompatibility arranges candidates so that pairing adjacent entries
// left to right favors higher interest overlap. The first remaining entry
// (in insertion order) is always kept next, followed by the remaining entry
// it shares the most tags with; ties go to the earlier entry. The input
// slice is not modified.
//
// This is O(n²) in the queue length.
func OrderByCompatibility(candidates []*Participant) []*Participant {
	remaining := append([]*Participant(nil), candidates...)
	ordered := make([]*Participant, 0, len(candidates))

	for len(remaining) > 0 {
		head := remaining[0]
		remaining = remaining[1:]
		ordered = append(ordered, head)
		if len(remaining) == 0 {
			break
		}

		best, bestScore := 0, -1
		for i, candidate := range remaining {
			if score := Compatibility(head, candidate); score > bestScore {
				best, bestScore = i, score
			}
		}

		ordered = append(ordered, remaining[best])
		remaining = append(remaining[:best:best], remaining[best+1:]...)
	}

	return ordered
}
