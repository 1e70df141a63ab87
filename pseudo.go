package csa

import (
	"sort"

	"tidbyt.dev/csa/model"
)

// Synthesizes walking transfers from the walk network.
//
// Every arrival at a stop u within [start, end] gives rise to one
// walk from u to each of u's walk neighbors, departing at the arrival
// time. Duplicates (several vehicles arriving at u at the same time)
// are collapsed. The returned connections have
// ArrivalStopNextDepartureTime filled in with respect to conns.
func GeneratePseudoConnections(
	conns []model.Connection,
	walk *model.WalkNetwork,
	transferMargin float64,
	walkSpeed float64,
	start float64,
	end float64,
) []model.Connection {

	type key struct {
		from, to string
		dep      float64
	}

	seen := map[key]bool{}
	pseudo := []model.Connection{}
	for _, c := range conns {
		if c.IsWalk {
			continue
		}
		if c.ArrivalTime < start || c.ArrivalTime > end {
			continue
		}
		for _, n := range walk.Neighbors(c.ArrivalStop) {
			k := key{c.ArrivalStop, n.Stop, c.ArrivalTime}
			if seen[k] {
				continue
			}
			seen[k] = true
			pseudo = append(pseudo, model.NewWalkConnection(
				c.ArrivalStop,
				n.Stop,
				c.ArrivalTime,
				c.ArrivalTime+n.Distance/walkSpeed,
			))
		}
	}

	departures := newDepartureIndex(conns, pseudo)
	for i := range pseudo {
		pseudo[i].ArrivalStopNextDepartureTime = departures.next(
			pseudo[i].ArrivalStop,
			pseudo[i].ArrivalTime+transferMargin,
		)
	}

	return pseudo
}

// Merges real and pseudo connections into a fresh slice sorted by
// decreasing departure time. Neither input is modified.
func MergeConnections(conns []model.Connection, pseudo []model.Connection) []model.Connection {
	all := make([]model.Connection, 0, len(conns)+len(pseudo))
	all = append(all, conns...)
	all = append(all, pseudo...)
	model.SortConnectionsDescending(all)
	return all
}

// Departure times per stop, sorted ascending and deduplicated.
type departureIndex map[string][]float64

func newDepartureIndex(sets ...[]model.Connection) departureIndex {
	idx := departureIndex{}
	for _, conns := range sets {
		for _, c := range conns {
			idx[c.DepartureStop] = append(idx[c.DepartureStop], c.DepartureTime)
		}
	}
	for stop, times := range idx {
		sort.Float64s(times)
		unique := times[:0]
		for _, t := range times {
			if len(unique) == 0 || t != unique[len(unique)-1] {
				unique = append(unique, t)
			}
		}
		idx[stop] = unique
	}
	return idx
}

// First departure from stop at or after t, Inf if there is none.
func (idx departureIndex) next(stop string, t float64) float64 {
	times := idx[stop]
	i := sort.SearchFloat64s(times, t)
	if i == len(times) {
		return model.Inf
	}
	return times[i]
}

// Departure times of a stop in decreasing order.
func (idx departureIndex) descending(stop string) []float64 {
	times := idx[stop]
	desc := make([]float64, len(times))
	for i, t := range times {
		desc[len(times)-1-i] = t
	}
	return desc
}
