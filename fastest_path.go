package csa

import (
	"sort"

	"github.com/pkg/errors"

	"tidbyt.dev/csa/model"
)

// The part of a label needed to analyze a profile over a window.
type TemporalLabel interface {
	Departure() float64
	Arrival() float64
	Duration() float64
	Boardings() int
}

// Label dimension carried as a block property.
type Dimension string

const (
	DimensionBoardings Dimension = "n_boardings"
)

func (d Dimension) value(l TemporalLabel) float64 {
	switch d {
	case DimensionBoardings:
		return float64(l.Boardings())
	}
	return 0
}

type fastestPathOptions struct {
	walkDuration float64
	dimensions   []Dimension
}

type FastestPathOption func(*fastestPathOptions)

// Time it takes to walk to the target. Journeys slower than this are
// cut off. Defaults to Inf.
func WithWalkDuration(cutoff float64) FastestPathOption {
	return func(o *fastestPathOptions) { o.walkDuration = cutoff }
}

// Dimensions to attach as properties of the temporal distance blocks.
func WithDimensions(dimensions ...Dimension) FastestPathOption {
	return func(o *fastestPathOptions) { o.dimensions = dimensions }
}

// FastestPathAnalyzer projects the final labels of a stop onto a
// departure time window (start, end], keeping the fastest way of
// getting to the target for each moment in the window.
type FastestPathAnalyzer[L TemporalLabel] struct {
	start        float64
	end          float64
	walkDuration float64
	dimensions   []Dimension

	// Increasing departure. The last one may depart after end.
	labels  []L
	hasNext bool
}

func NewFastestPathAnalyzer[L TemporalLabel](
	labels []L,
	start float64,
	end float64,
	options ...FastestPathOption,
) (*FastestPathAnalyzer[L], error) {
	opts := fastestPathOptions{walkDuration: model.Inf}
	for _, o := range options {
		o(&opts)
	}

	a := &FastestPathAnalyzer[L]{
		start:        start,
		end:          end,
		walkDuration: opts.walkDuration,
		dimensions:   opts.dimensions,
	}

	within := []L{}
	for _, l := range labels {
		if start < l.Departure() && l.Departure() <= end {
			within = append(within, l)
		}
	}
	front := FastestParetoFront(within)

	// Front is in decreasing departure order.
	if len(front) == 0 || front[0].Departure() < end {
		var next L
		found := false
		for _, l := range labels {
			if l.Departure() <= end {
				continue
			}
			if !found ||
				l.Arrival() < next.Arrival() ||
				(l.Arrival() == next.Arrival() && l.Departure() > next.Departure()) {
				next, found = l, true
			}
		}
		if found {
			front = FastestParetoFront(append(front, next))
		}
	}

	sort.SliceStable(front, func(i, j int) bool {
		return front[i].Departure() < front[j].Departure()
	})
	for i := 1; i < len(front); i++ {
		if front[i].Arrival() < front[i-1].Arrival() {
			return nil, errors.Wrapf(
				ErrNonMonotonicArrivals,
				"departing %g arrives %g, departing %g arrives %g",
				front[i-1].Departure(), front[i-1].Arrival(),
				front[i].Departure(), front[i].Arrival(),
			)
		}
	}

	a.labels = front
	a.hasNext = len(front) > 0 && front[len(front)-1].Departure() > end
	return a, nil
}

// Fastest path labels in increasing departure order. The first label
// departing after the window is included only if requested.
func (a *FastestPathAnalyzer[L]) FastestPathLabels(includeNextOutside bool) []L {
	if a.hasNext && !includeNextOutside {
		return a.labels[:len(a.labels)-1]
	}
	return a.labels
}

// Fastest path labels (including the one after the window) that beat
// walking, or tie with it.
func (a *FastestPathAnalyzer[L]) LabelsFasterThanWalk() []L {
	faster := []L{}
	for _, l := range a.labels {
		if l.Duration() <= a.walkDuration {
			faster = append(faster, l)
		}
	}
	return faster
}

// Splits the window into the time spent waiting before each fastest
// path label departs, and the time for which walking is the better
// option. ok is false if the window extends past the last label that
// beats walking, in which case the split is undefined.
func (a *FastestPathAnalyzer[L]) PreJourneyWaitingTimes() (waits []float64, walkTime float64, ok bool) {
	faster := a.LabelsFasterThanWalk()
	if len(faster) == 0 {
		return []float64{}, a.end - a.start, true
	}
	if faster[len(faster)-1].Departure() < a.end {
		return nil, 0, false
	}

	waits = make([]float64, 0, len(faster))
	total := 0.0
	prev := a.start
	for _, l := range faster {
		// Arriving at the stop any earlier, walking would be faster.
		earliest := max(prev, l.Departure()-(a.walkDuration-l.Duration()))
		wait := max(0, min(l.Departure(), a.end)-earliest)
		waits = append(waits, wait)
		total += wait
		prev = l.Departure()
	}

	return waits, (a.end - a.start) - total, true
}

// Temporal distance to the target over the window, as contiguous
// blocks. Blocks are flat at the walk duration wherever walking is
// faster, and otherwise slope down towards the departure of the next
// fastest path label.
func (a *FastestPathAnalyzer[L]) TemporalDistanceBlocks() []ProfileBlock {
	cutoff := a.walkDuration
	blocks := []ProfileBlock{}

	prev := a.start
	for _, l := range a.labels {
		if prev >= a.end {
			break
		}

		blockEnd := min(l.Departure(), a.end)
		distanceStart := l.Duration() + (l.Departure() - prev)

		if distanceStart > cutoff {
			split := min(l.Departure()-(cutoff-l.Duration()), blockEnd)
			blocks = append(blocks, ProfileBlock{
				Start:         prev,
				End:           split,
				DistanceStart: cutoff,
				DistanceEnd:   cutoff,
			})
			if split < blockEnd {
				blocks = append(blocks, ProfileBlock{
					Start:         split,
					End:           blockEnd,
					DistanceStart: l.Duration() + (l.Departure() - split),
					DistanceEnd:   l.Duration() + (l.Departure() - blockEnd),
					Properties:    a.properties(l),
				})
			}
		} else {
			blocks = append(blocks, ProfileBlock{
				Start:         prev,
				End:           blockEnd,
				DistanceStart: distanceStart,
				DistanceEnd:   l.Duration() + (l.Departure() - blockEnd),
				Properties:    a.properties(l),
			})
		}

		prev = blockEnd
	}

	if prev < a.end {
		blocks = append(blocks, ProfileBlock{
			Start:         prev,
			End:           a.end,
			DistanceStart: cutoff,
			DistanceEnd:   cutoff,
		})
	}

	return blocks
}

func (a *FastestPathAnalyzer[L]) properties(l L) map[string]float64 {
	if len(a.dimensions) == 0 {
		return nil
	}
	props := make(map[string]float64, len(a.dimensions))
	for _, d := range a.dimensions {
		props[string(d)] = d.value(l)
	}
	return props
}

func (a *FastestPathAnalyzer[L]) TemporalDistanceAnalyzer() (*ProfileBlockAnalyzer, error) {
	return NewProfileBlockAnalyzer(a.TemporalDistanceBlocks())
}

// Analyzer for a label property over the window. Where walking is
// faster the property is valueCutoff, and where there is no journey
// at all it is valueNoNext.
func (a *FastestPathAnalyzer[L]) PropertyAnalyzer(
	name string,
	valueNoNext float64,
	valueCutoff float64,
) (*ProfileBlockAnalyzer, error) {
	blocks := []ProfileBlock{}
	for _, b := range a.TemporalDistanceBlocks() {
		var value float64
		if b.IsFlat() {
			if b.DistanceEnd == a.walkDuration {
				value = valueCutoff
			} else {
				value = valueNoNext
			}
		} else {
			v, ok := b.Properties[name]
			if !ok {
				return nil, errors.Errorf("block %v has no property %q", b, name)
			}
			value = v
		}
		blocks = append(blocks, ProfileBlock{
			Start:         b.Start,
			End:           b.End,
			DistanceStart: value,
			DistanceEnd:   value,
		})
	}
	return NewProfileBlockAnalyzer(blocks)
}

func (a *FastestPathAnalyzer[L]) WalkDuration() float64 { return a.walkDuration }
func (a *FastestPathAnalyzer[L]) Start() float64        { return a.start }
func (a *FastestPathAnalyzer[L]) End() float64          { return a.end }
