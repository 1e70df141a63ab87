package csa

import (
	"sort"

	"github.com/pkg/errors"
)

// Multi-criteria profile with one bucket of labels per departure time
// of the stop.
//
// Buckets are filled in decreasing departure time order. Each bucket
// holds the Pareto front of everything available when departing at
// that bucket's time: the labels of the bucket itself plus those
// carried over from later buckets. Carried over labels keep their
// original departure time; they are only compared as if departing at
// the bucket's time.
type MultiObjectiveProfile[L Label[L]] struct {
	walk           targetWalk
	departureTimes []float64
	index          map[float64]int
	buckets        [][]L
	current        int

	// Per bucket, the front of labels starting with a walk. Kept
	// apart from buckets, where boarding labels may dominate walks
	// that a margin-constrained transfer could still use.
	walks [][]L

	real      []L
	final     []L
	finalized bool
}

// departureTimes are all times at which a connection (real or pseudo)
// leaves the stop.
func NewMultiObjectiveProfile[L Label[L]](
	stop string,
	target string,
	walkToTarget float64,
	departureTimes []float64,
) *MultiObjectiveProfile[L] {
	times := make([]float64, len(departureTimes))
	copy(times, departureTimes)
	sort.Sort(sort.Reverse(sort.Float64Slice(times)))

	unique := times[:0]
	for _, t := range times {
		if len(unique) == 0 || t != unique[len(unique)-1] {
			unique = append(unique, t)
		}
	}

	index := make(map[float64]int, len(unique))
	for i, t := range unique {
		index[t] = i
	}

	return &MultiObjectiveProfile[L]{
		walk:           targetWalk{stop, target, walkToTarget},
		departureTimes: unique,
		index:          index,
		buckets:        make([][]L, len(unique)),
		current:        -1,
		walks:          make([][]L, len(unique)),
	}
}

func (p *MultiObjectiveProfile[L]) Update(labels []L, departureTime float64) error {
	if p.finalized {
		return ErrAlreadyFinalized
	}

	idx, ok := p.index[departureTime]
	if !ok {
		return errors.Wrapf(ErrUnknownDepartureTime, "%g at %s", departureTime, p.walk.stop)
	}
	if idx < p.current {
		return errors.Wrapf(
			ErrOutOfOrder,
			"update at %g after %g (%s)",
			departureTime, p.departureTimes[p.current], p.walk.stop,
		)
	}
	if idx > p.current+1 {
		return errors.Wrapf(
			ErrSkippedBucket,
			"update at %g skips %g (%s)",
			departureTime, p.departureTimes[p.current+1], p.walk.stop,
		)
	}

	candidates := make([]L, 0, len(labels)+1)
	walkCandidates := []L{}
	for _, l := range labels {
		if l.Departure() != departureTime {
			return errors.Errorf("label %v does not depart at %g", l, departureTime)
		}
		candidates = append(candidates, l)
		if l.FirstLegWalk() {
			walkCandidates = append(walkCandidates, l)
		}
	}
	if w, ok := walkToTargetLabel[L](p.walk, departureTime); ok {
		candidates = append(candidates, w)
	}

	prev := idx - 1
	if idx == p.current {
		prev = idx
	}
	var existing, existingWalks []L
	if prev >= 0 {
		existing, existingWalks = p.buckets[prev], p.walks[prev]
	}

	bucket := mergeBucket(ComputeParetoFront(candidates), existing, departureTime)
	p.walks[idx] = mergeBucket(ComputeParetoFront(walkCandidates), existingWalks, departureTime)
	p.buckets[idx] = bucket
	p.current = idx
	return nil
}

func (p *MultiObjectiveProfile[L]) Evaluate(departureTime float64, firstLegCanBeWalk bool, connectionArrivalTime float64) []L {
	var walk []L
	if firstLegCanBeWalk {
		if w, ok := walkToTargetLabel[L](p.walk, connectionArrivalTime); ok {
			walk = []L{w}
		}
	}

	labels := walk
	if idx, ok := p.index[departureTime]; ok {
		labels = MergeParetoFrontiers(p.buckets[idx], walk)
	}

	if firstLegCanBeWalk {
		return labels
	}

	boarding := make([]L, 0, len(labels))
	for _, l := range labels {
		if !l.FirstLegWalk() {
			boarding = append(boarding, l)
		}
	}
	return boarding
}

// Labels starting with a walk from this stop, departing at or after
// departureTime.
func (p *MultiObjectiveProfile[L]) EvaluateWalks(departureTime float64) []L {
	// departureTimes are in decreasing order
	i := sort.Search(len(p.departureTimes), func(i int) bool {
		return p.departureTimes[i] < departureTime
	}) - 1
	if i < 0 || i > p.current {
		return nil
	}
	return p.walks[i]
}

func (p *MultiObjectiveProfile[L]) RealConnectionLabels() []L {
	if p.real == nil {
		labels := []L{}
		for _, bucket := range p.buckets {
			for _, l := range bucket {
				if !l.FirstLegWalk() {
					labels = append(labels, l)
				}
			}
		}
		p.real = ComputeFinalParetoFront(labels)
	}
	return p.real
}

func (p *MultiObjectiveProfile[L]) Finalize(neighborBags [][]L, walkDurations []float64, stopPairs [][2]string) error {
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

func (p *MultiObjectiveProfile[L]) FinalOptimalLabels() ([]L, error) {
	if !p.finalized {
		return nil, ErrNotFinalized
	}
	return p.final, nil
}

// Departure times of the stop, latest first.
func (p *MultiObjectiveProfile[L]) DepartureTimes() []float64 {
	return p.departureTimes
}

func (p *MultiObjectiveProfile[L]) WalkToTargetDuration() float64 { return p.walk.duration }
func (p *MultiObjectiveProfile[L]) Finalized() bool               { return p.finalized }

// Front of candidates (all departing at departureTime) and existing,
// with existing labels compared as if departing at departureTime.
// Existing labels keep their own departure time.
func mergeBucket[L Label[L]](candidates, existing []L, departureTime float64) []L {
	shifted := make([]L, len(existing))
	for i, l := range existing {
		shifted[i] = l.WithDeparture(departureTime)
	}

	bucket := make([]L, 0, len(candidates)+len(existing))
	for _, c := range candidates {
		if !dominatedByAny(c, shifted) {
			bucket = append(bucket, c)
		}
	}
	added := len(bucket)
	for i, l := range existing {
		if !dominatedByAny(shifted[i], bucket[:added]) {
			bucket = append(bucket, l)
		}
	}
	return bucket
}

var _ Profile[TimeLabel] = (*SimpleProfile)(nil)
var _ Profile[*JourneyLabel] = (*MultiObjectiveProfile[*JourneyLabel])(nil)
var _ Profile[BoardingsLabel] = (*MultiObjectiveProfile[BoardingsLabel])(nil)
