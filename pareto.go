package csa

import (
	"sort"
)

// Reduces labels to the subset not dominated by any other label.
// Of a set of equal labels, the first one is kept. The input is not
// modified.
func ComputeParetoFront[L Label[L]](labels []L) []L {
	return paretoFront(labels, func(a, b L) bool { return a.Dominates(b) })
}

// As ComputeParetoFront, but a label with a walking first leg may
// dominate one that boards. Used once a profile is complete.
func ComputeFinalParetoFront[L Label[L]](labels []L) []L {
	return paretoFront(labels, func(a, b L) bool { return a.DominatesIgnoringFirstLeg(b) })
}

// Pareto front over departure and arrival time only.
//
// Sorts by departure (descending) and arrival (ascending) and keeps
// every label arriving strictly earlier than all labels departing
// at or after it. Gives the same result as the generic algorithm
// with time-only dominance, ties included.
func FastestParetoFront[L TemporalLabel](labels []L) []L {
	sorted := make([]L, len(labels))
	copy(sorted, labels)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Departure() != sorted[j].Departure() {
			return sorted[i].Departure() > sorted[j].Departure()
		}
		return sorted[i].Arrival() < sorted[j].Arrival()
	})

	front := []L{}
	for _, l := range sorted {
		if len(front) == 0 || l.Arrival() < front[len(front)-1].Arrival() {
			front = append(front, l)
		}
	}
	return front
}

// Merges two fronts. Elements of a survive unless dominated by an
// element of b. Elements of b survive unless dominated by a
// surviving element of a. Neither set is compared against itself.
func MergeParetoFrontiers[L Label[L]](a, b []L) []L {
	merged := make([]L, 0, len(a)+len(b))
	for _, x := range a {
		if !dominatedByAny(x, b) {
			merged = append(merged, x)
		}
	}
	survivors := len(merged)
	for _, y := range b {
		if !dominatedByAny(y, merged[:survivors]) {
			merged = append(merged, y)
		}
	}
	return merged
}

func dominatedByAny[L Label[L]](l L, others []L) bool {
	for _, o := range others {
		if o.Dominates(l) {
			return true
		}
	}
	return false
}

// Pops a candidate, drops everything it dominates, and keeps it if
// nothing remaining dominates it. Equal labels dominate each other,
// so only the first of a set of duplicates survives.
func paretoFront[L any](labels []L, dominates func(a, b L) bool) []L {
	remaining := make([]L, len(labels))
	copy(remaining, labels)

	front := []L{}
	for len(remaining) > 0 {
		candidate := remaining[0]
		dominated := false

		kept := remaining[:0]
		for _, other := range remaining[1:] {
			if dominates(candidate, other) {
				continue
			}
			if !dominated && dominates(other, candidate) {
				dominated = true
			}
			kept = append(kept, other)
		}

		if !dominated {
			front = append(front, candidate)
		}
		remaining = kept
	}

	return front
}
