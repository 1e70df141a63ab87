package csa_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/csa"
)

func TestSummarizeProfile(t *testing.T) {
	summary, err := csa.SummarizeProfile(threeTrips(), 0, 11, math.Inf(1))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.ParetoOptimalTrips)
	assert.Equal(t, 2.0, summary.MinTripDuration)
	assert.Equal(t, 14.0, summary.MaxTripDuration)
	assert.Equal(t, 8.0, summary.MeanTripDuration)
	assert.Equal(t, 8.0, summary.MedianTripDuration)

	assert.Equal(t, 2.0, summary.MinTemporalDistance)
	assert.Equal(t, 16.0, summary.MaxTemporalDistance)
	assert.InDelta(t, 8.5, summary.MeanTemporalDistance, 1e-9)
	assert.InDelta(t, 7.5, summary.MedianTemporalDistance, 1e-9)
	assert.True(t, summary.HasFiniteTemporalDistance)
	assert.Equal(t, 16.0, summary.LargestFiniteTemporalDistance)
}

func TestSummarizeProfileNoTrips(t *testing.T) {
	summary, err := csa.SummarizeProfile([]csa.TimeLabel{}, 0, 10, 5)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.ParetoOptimalTrips)
	assert.True(t, math.IsNaN(summary.MinTripDuration))
	assert.True(t, math.IsNaN(summary.MedianTripDuration))

	assert.Equal(t, 5.0, summary.MinTemporalDistance)
	assert.Equal(t, 5.0, summary.MaxTemporalDistance)
	assert.Equal(t, 5.0, summary.MeanTemporalDistance)
	assert.Equal(t, 5.0, summary.MedianTemporalDistance)
}

func TestSummarizeProfileEmptyWindow(t *testing.T) {
	summary, err := csa.SummarizeProfile(threeTrips(), 5, 5, math.Inf(1))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ParetoOptimalTrips)
	assert.False(t, summary.HasFiniteTemporalDistance)
}
