package csa

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/pkg/errors"
)

// Tolerance when checking the CDF against the blocks it was built
// from.
const cdfTolerance = 1e-4

// ProfileBlock is a piece of a piecewise linear function over the
// departure time interval [Start, End), going from DistanceStart to
// DistanceEnd.
type ProfileBlock struct {
	Start         float64
	End           float64
	DistanceStart float64
	DistanceEnd   float64
	Properties    map[string]float64
}

func (b ProfileBlock) Width() float64 { return b.End - b.Start }
func (b ProfileBlock) Mean() float64  { return 0.5 * (b.DistanceStart + b.DistanceEnd) }
func (b ProfileBlock) Area() float64  { return b.Width() * b.Mean() }
func (b ProfileBlock) Min() float64   { return min(b.DistanceStart, b.DistanceEnd) }
func (b ProfileBlock) Max() float64   { return max(b.DistanceStart, b.DistanceEnd) }
func (b ProfileBlock) IsFlat() bool   { return b.DistanceStart == b.DistanceEnd }

func (b ProfileBlock) Interpolate(t float64) float64 {
	if b.IsFlat() {
		return b.DistanceStart
	}
	p := (t - b.Start) / b.Width()
	return (1-p)*b.DistanceStart + p*b.DistanceEnd
}

func (b ProfileBlock) String() string {
	return fmt.Sprintf("[%g, %g) %g->%g %v", b.Start, b.End, b.DistanceStart, b.DistanceEnd, b.Properties)
}

type profileBlockOptions struct {
	cutoff    float64
	hasCutoff bool
}

type ProfileBlockOption func(*profileBlockOptions)

// Caps all distances at cutoff, splitting blocks that cross it.
func WithCutoffDistance(cutoff float64) ProfileBlockOption {
	return func(o *profileBlockOptions) {
		o.cutoff = cutoff
		o.hasCutoff = true
	}
}

// ProfileBlockAnalyzer computes statistics of a distance function
// given as contiguous blocks, such as the temporal distance from a
// stop to the target over a departure time window.
type ProfileBlockAnalyzer struct {
	blocks []ProfileBlock
	start  float64
	end    float64
}

func NewProfileBlockAnalyzer(blocks []ProfileBlock, options ...ProfileBlockOption) (*ProfileBlockAnalyzer, error) {
	opts := profileBlockOptions{}
	for _, o := range options {
		o(&opts)
	}

	if len(blocks) == 0 {
		return nil, errors.Wrap(ErrInvalidBlocks, "no blocks")
	}
	for i, b := range blocks {
		if !(b.Start < b.End) {
			return nil, errors.Wrapf(ErrInvalidBlocks, "block %d has no width: %s", i, b)
		}
		if b.DistanceStart < b.DistanceEnd {
			return nil, errors.Wrapf(ErrInvalidBlocks, "block %d increases: %s", i, b)
		}
		if i > 0 && blocks[i-1].End != b.Start {
			return nil, errors.Wrapf(ErrInvalidBlocks, "gap between blocks %d and %d", i-1, i)
		}
	}

	copied := make([]ProfileBlock, len(blocks))
	copy(copied, blocks)
	if opts.hasCutoff {
		copied = applyCutoff(copied, opts.cutoff)
	}

	return &ProfileBlockAnalyzer{
		blocks: copied,
		start:  copied[0].Start,
		end:    copied[len(copied)-1].End,
	}, nil
}

func applyCutoff(blocks []ProfileBlock, cutoff float64) []ProfileBlock {
	capped := make([]ProfileBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Max() <= cutoff {
			capped = append(capped, b)
			continue
		}

		if b.IsFlat() || b.DistanceEnd >= cutoff || math.IsInf(b.DistanceStart, 1) {
			capped = append(capped, ProfileBlock{
				Start:         b.Start,
				End:           b.End,
				DistanceStart: cutoff,
				DistanceEnd:   cutoff,
			})
			continue
		}

		split := b.Start + (b.DistanceStart-cutoff)/(b.DistanceStart-b.DistanceEnd)*b.Width()
		capped = append(capped,
			ProfileBlock{
				Start:         b.Start,
				End:           split,
				DistanceStart: cutoff,
				DistanceEnd:   cutoff,
			},
			ProfileBlock{
				Start:         split,
				End:           b.End,
				DistanceStart: cutoff,
				DistanceEnd:   b.DistanceEnd,
				Properties:    b.Properties,
			},
		)
	}
	return capped
}

func (a *ProfileBlockAnalyzer) Blocks() []ProfileBlock { return a.blocks }
func (a *ProfileBlockAnalyzer) Start() float64         { return a.start }
func (a *ProfileBlockAnalyzer) End() float64           { return a.end }

func (a *ProfileBlockAnalyzer) Mean() float64 {
	area := 0.0
	for _, b := range a.blocks {
		area += b.Area()
	}
	return area / (a.end - a.start)
}

func (a *ProfileBlockAnalyzer) Min() float64 {
	m := math.Inf(1)
	for _, b := range a.blocks {
		m = min(m, b.Min())
	}
	return m
}

func (a *ProfileBlockAnalyzer) Max() float64 {
	m := math.Inf(-1)
	for _, b := range a.blocks {
		m = max(m, b.Max())
	}
	return m
}

// Largest distance that is not Inf. ok is false if there is none.
func (a *ProfileBlockAnalyzer) LargestFiniteDistance() (largest float64, ok bool) {
	for _, b := range a.blocks {
		for _, d := range []float64{b.DistanceStart, b.DistanceEnd} {
			if math.IsInf(d, 1) {
				continue
			}
			if !ok || d > largest {
				largest, ok = d, true
			}
		}
	}
	return largest, ok
}

// Distance at time t, which must be within the analyzed interval.
func (a *ProfileBlockAnalyzer) Interpolate(t float64) (float64, error) {
	if t < a.start || t > a.end {
		return 0, errors.Errorf("%g outside [%g, %g]", t, a.start, a.end)
	}
	for _, b := range a.blocks {
		if b.End >= t {
			return b.Interpolate(t), nil
		}
	}
	return a.blocks[len(a.blocks)-1].DistanceEnd, nil
}

// Median distance. Inf if less than half of the interval has a
// finite distance.
func (a *ProfileBlockAnalyzer) Median() float64 {
	points, cdf, err := a.TemporalDistanceCDF()
	if err != nil || len(points) == 0 {
		return math.Inf(1)
	}

	left := sort.Search(len(cdf), func(i int) bool { return cdf[i] >= 0.5 })
	right := sort.Search(len(cdf), func(i int) bool { return cdf[i] > 0.5 })

	if left == len(cdf) {
		return math.Inf(1)
	}
	if left != right {
		return points[left]
	}

	dy := cdf[right] - cdf[right-1]
	dx := points[right] - points[right-1]
	return (0.5-cdf[right-1])/dy*dx + points[right-1]
}

// Cumulative distribution of distance values over the interval.
// Flat blocks are point masses, which show up as repeated points.
// Mass at Inf is part of the normalization but has no point, so the
// last value is below 1 if some of the interval is unreachable.
func (a *ProfileBlockAnalyzer) TemporalDistanceCDF() (points []float64, cdf []float64, err error) {
	unique := map[float64]bool{}
	for _, b := range a.blocks {
		if !math.IsInf(b.DistanceStart, 1) {
			unique[b.DistanceStart] = true
			unique[b.DistanceEnd] = true
		}
	}
	points = make([]float64, 0, len(unique))
	for d := range unique {
		points = append(points, d)
	}
	sort.Float64s(points)

	if len(points) == 0 {
		return []float64{}, []float64{}, nil
	}

	density := make([]float64, len(points)-1)
	peaks := map[float64]float64{}
	peakTotal := 0.0
	for _, b := range a.blocks {
		if b.IsFlat() {
			peaks[b.DistanceEnd] += b.Width()
			peakTotal += b.Width()
			continue
		}
		if math.IsInf(b.DistanceStart, 1) {
			continue
		}
		from := sort.SearchFloat64s(points, b.DistanceEnd)
		to := sort.SearchFloat64s(points, b.DistanceStart)
		for i := from; i < to; i++ {
			density[i] += b.Width() / (b.DistanceStart - b.DistanceEnd)
		}
	}

	cdf = make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cdf[i] = cdf[i-1] + (points[i]-points[i-1])*density[i-1]
	}

	expected := (a.end - a.start) - peakTotal
	if math.Abs(cdf[len(cdf)-1]-expected) > cdfTolerance {
		return nil, nil, errors.Errorf(
			"distribution has mass %g, expected %g",
			cdf[len(cdf)-1], expected,
		)
	}

	locations := make([]float64, 0, len(peaks))
	for d := range peaks {
		if !math.IsInf(d, 1) {
			locations = append(locations, d)
		}
	}
	sort.Float64s(locations)

	for _, d := range locations {
		i := sort.SearchFloat64s(points, d)
		points = slices.Insert(points, i, d)
		cdf = slices.Insert(cdf, i, cdf[i])
		for j := i + 1; j < len(cdf); j++ {
			cdf[j] += peaks[d]
		}
	}

	total := cdf[len(cdf)-1] + peaks[math.Inf(1)]
	for i := range cdf {
		cdf[i] /= total
	}

	return points, cdf, nil
}

// Density of distance values between points, with point masses
// reported separately.
func (a *ProfileBlockAnalyzer) TemporalDistancePDF() (
	points []float64,
	densities []float64,
	peaks map[float64]float64,
	err error,
) {
	cdfPoints, cdf, err := a.TemporalDistanceCDF()
	if err != nil {
		return nil, nil, nil, err
	}

	peaks = map[float64]float64{}
	if len(cdfPoints) == 0 {
		return []float64{}, []float64{}, peaks, nil
	}

	points = []float64{cdfPoints[0]}
	densities = []float64{}
	for i := 0; i+1 < len(cdfPoints); i++ {
		width := cdfPoints[i+1] - cdfPoints[i]
		mass := cdf[i+1] - cdf[i]
		if width == 0 {
			peaks[cdfPoints[i]] = mass
			continue
		}
		points = append(points, cdfPoints[i+1])
		densities = append(densities, mass/width)
	}

	return points, densities, peaks, nil
}

type BlockSummary struct {
	Min    float64
	Max    float64
	Mean   float64
	Median float64
}

func (a *ProfileBlockAnalyzer) Summary() BlockSummary {
	return BlockSummary{
		Min:    a.Min(),
		Max:    a.Max(),
		Mean:   a.Mean(),
		Median: a.Median(),
	}
}
