package csa

import (
	"math"
	"sort"
)

// Statistics of a stop's profile over a departure time window.
// Trip durations are NaN when there are no trips in the window.
type ProfileSummary struct {
	ParetoOptimalTrips int
	MinTripDuration    float64
	MaxTripDuration    float64
	MeanTripDuration   float64
	MedianTripDuration float64

	MinTemporalDistance    float64
	MaxTemporalDistance    float64
	MeanTemporalDistance   float64
	MedianTemporalDistance float64

	LargestFiniteTemporalDistance float64
	HasFiniteTemporalDistance     bool
}

func SummarizeProfile[L TemporalLabel](
	labels []L,
	start float64,
	end float64,
	walkDuration float64,
) (ProfileSummary, error) {
	fpa, err := NewFastestPathAnalyzer(labels, start, end, WithWalkDuration(walkDuration))
	if err != nil {
		return ProfileSummary{}, err
	}

	trips := fpa.FastestPathLabels(false)
	durations := make([]float64, 0, len(trips))
	for _, l := range trips {
		durations = append(durations, l.Duration())
	}

	summary := ProfileSummary{
		ParetoOptimalTrips: len(trips),
		MinTripDuration:    math.NaN(),
		MaxTripDuration:    math.NaN(),
		MeanTripDuration:   math.NaN(),
		MedianTripDuration: math.NaN(),
	}
	if len(durations) > 0 {
		sort.Float64s(durations)
		total := 0.0
		for _, d := range durations {
			total += d
		}
		summary.MinTripDuration = durations[0]
		summary.MaxTripDuration = durations[len(durations)-1]
		summary.MeanTripDuration = total / float64(len(durations))
		summary.MedianTripDuration = median(durations)
	}

	if !(start < end) {
		return summary, nil
	}

	tda, err := fpa.TemporalDistanceAnalyzer()
	if err != nil {
		return ProfileSummary{}, err
	}
	summary.MinTemporalDistance = tda.Min()
	summary.MaxTemporalDistance = tda.Max()
	summary.MeanTemporalDistance = tda.Mean()
	summary.MedianTemporalDistance = tda.Median()
	summary.LargestFiniteTemporalDistance, summary.HasFiniteTemporalDistance = tda.LargestFiniteDistance()

	return summary, nil
}

// Median of sorted values.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return 0.5 * (sorted[n/2-1] + sorted[n/2])
}
