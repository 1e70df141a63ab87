package csa

import (
	"github.com/pkg/errors"

	"tidbyt.dev/csa/model"
)

// Profile holds the Pareto-optimal labels of a single stop.
//
// During a scan it accepts updates in decreasing departure time
// order. Once the scan is done it is finalized, folding in the
// labels reachable by first walking to a neighboring stop, after
// which it is read-only.
type Profile[L Label[L]] interface {
	// Adds labels departing at departureTime. All labels must
	// depart at that time. Labels may be empty.
	Update(labels []L, departureTime float64) error

	// Labels available when at this stop at departureTime. A walk
	// to the target is included (departing at
	// connectionArrivalTime) unless firstLegCanBeWalk is false, in
	// which case all labels starting with a walk are excluded.
	Evaluate(departureTime float64, firstLegCanBeWalk bool, connectionArrivalTime float64) []L

	// Labels starting with a walk from this stop, departing at or
	// after departureTime. Unlike Evaluate, these are not pruned by
	// boarding labels.
	EvaluateWalks(departureTime float64) []L

	// Labels that start by boarding a vehicle at this stop.
	RealConnectionLabels() []L

	// Folds in labels of the walk neighbors. neighborBags[i] holds
	// the real connection labels of a neighbor that is
	// walkDurations[i] away; stopPairs[i] is (this stop, neighbor).
	Finalize(neighborBags [][]L, walkDurations []float64, stopPairs [][2]string) error

	FinalOptimalLabels() ([]L, error)
	WalkToTargetDuration() float64
	Finalized() bool
}

// Walk from a stop to its closest target.
type targetWalk struct {
	stop     string
	target   string
	duration float64
}

// Label for walking straight to the target, if the target is
// reachable on foot at all.
func walkToTargetLabel[L Label[L]](w targetWalk, departure float64) (L, bool) {
	var zero L
	if w.duration == model.Inf {
		return zero, false
	}
	var walk *model.Connection
	if w.stop != w.target {
		c := model.NewWalkConnection(w.stop, w.target, departure, departure+w.duration)
		walk = &c
	}
	return zero.DirectWalk(departure, w.duration, walk), true
}

// Final labels of a profile: real connection labels plus labels of
// neighbors shifted by the walk, reduced to those faster than walking
// straight to the target.
func finalLabels[L Label[L]](
	realLabels []L,
	neighborBags [][]L,
	walkDurations []float64,
	stopPairs [][2]string,
	walkToTarget float64,
) ([]L, error) {
	if len(neighborBags) != len(walkDurations) || len(neighborBags) != len(stopPairs) {
		return nil, errors.Errorf(
			"finalize: %d neighbor bags, %d walk durations, %d stop pairs",
			len(neighborBags), len(walkDurations), len(stopPairs),
		)
	}

	candidates := make([]L, 0, len(realLabels))
	candidates = append(candidates, realLabels...)
	for i, bag := range neighborBags {
		for _, l := range bag {
			walk := model.NewWalkConnection(
				stopPairs[i][0],
				stopPairs[i][1],
				l.Departure()-walkDurations[i],
				l.Departure(),
			)
			candidates = append(candidates, l.WithWalkAdded(&walk))
		}
	}

	final := []L{}
	for _, l := range ComputeFinalParetoFront(candidates) {
		if l.Duration() < walkToTarget {
			final = append(final, l)
		}
	}
	return final, nil
}

// Single criterion profile. Keeps labels in decreasing departure
// order and evaluates to the earliest arrival.
type SimpleProfile struct {
	walk         targetWalk
	labels       []TimeLabel
	walks        []TimeLabel
	minDeparture float64

	real      []TimeLabel
	final     []TimeLabel
	finalized bool
}

func NewSimpleProfile(stop string, target string, walkToTarget float64) *SimpleProfile {
	return &SimpleProfile{
		walk:         targetWalk{stop, target, walkToTarget},
		minDeparture: model.Inf,
	}
}

func (p *SimpleProfile) Update(labels []TimeLabel, departureTime float64) error {
	if p.finalized {
		return ErrAlreadyFinalized
	}
	if departureTime > p.minDeparture {
		return errors.Wrapf(ErrOutOfOrder, "update at %g after %g", departureTime, p.minDeparture)
	}
	p.minDeparture = departureTime

	for _, l := range labels {
		if l.DepartureTime != departureTime {
			return errors.Errorf("label %v does not depart at %g", l, departureTime)
		}
		p.labels = insertLabel(p.labels, l)
		if l.FirstLegIsWalk {
			p.walks = insertLabel(p.walks, l)
		}
	}

	return nil
}

// Adds l to labels unless dominated, dropping the labels it
// dominates.
func insertLabel(labels []TimeLabel, l TimeLabel) []TimeLabel {
	for _, e := range labels {
		if e.Dominates(l) {
			return labels
		}
	}

	kept := labels[:0]
	for _, e := range labels {
		if !l.Dominates(e) {
			kept = append(kept, e)
		}
	}
	return append(kept, l)
}

// Returns at most one label: the one arriving first.
func (p *SimpleProfile) Evaluate(departureTime float64, firstLegCanBeWalk bool, connectionArrivalTime float64) []TimeLabel {
	var best TimeLabel
	found := false

	for _, l := range p.labels {
		if l.DepartureTime < departureTime {
			break
		}
		if !firstLegCanBeWalk && l.FirstLegIsWalk {
			continue
		}
		if !found || l.ArrivalTimeTarget < best.ArrivalTimeTarget {
			best, found = l, true
		}
	}

	if firstLegCanBeWalk {
		if w, ok := walkToTargetLabel[TimeLabel](p.walk, connectionArrivalTime); ok {
			if !found || w.ArrivalTimeTarget < best.ArrivalTimeTarget {
				best, found = w, true
			}
		}
	}

	if !found {
		return nil
	}
	return []TimeLabel{best}
}

// Returns at most one label: the walk arriving first.
func (p *SimpleProfile) EvaluateWalks(departureTime float64) []TimeLabel {
	var best TimeLabel
	found := false
	for _, l := range p.walks {
		if l.DepartureTime < departureTime {
			continue
		}
		if !found || l.ArrivalTimeTarget < best.ArrivalTimeTarget {
			best, found = l, true
		}
	}
	if !found {
		return nil
	}
	return []TimeLabel{best}
}

// Earliest arrival at the target when at this stop at departureTime.
func (p *SimpleProfile) EarliestArrival(departureTime float64) float64 {
	return MinArrival(p.Evaluate(departureTime, true, departureTime))
}

func (p *SimpleProfile) RealConnectionLabels() []TimeLabel {
	if p.real == nil {
		labels := []TimeLabel{}
		for _, l := range p.labels {
			if !l.FirstLegIsWalk {
				labels = append(labels, l)
			}
		}
		p.real = ComputeFinalParetoFront(labels)
	}
	return p.real
}

func (p *SimpleProfile) Finalize(neighborBags [][]TimeLabel, walkDurations []float64, stopPairs [][2]string) error {
	if p.finalized {
		return ErrAlreadyFinalized
	}
	final, err := finalLabels(p.RealConnectionLabels(), neighborBags, walkDurations, stopPairs, p.walk.duration)
	if err != nil {
		return err
	}
	p.final = final
	p.finalized = true
	return nil
}

func (p *SimpleProfile) FinalOptimalLabels() ([]TimeLabel, error) {
	if !p.finalized {
		return nil, ErrNotFinalized
	}
	return p.final, nil
}

func (p *SimpleProfile) WalkToTargetDuration() float64 { return p.walk.duration }
func (p *SimpleProfile) Finalized() bool               { return p.finalized }
