package csa_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/csa"
	"tidbyt.dev/csa/model"
)

func TestJourneyWithWalk(t *testing.T) {
	atTarget := (*csa.JourneyLabel)(nil).DirectWalk(35, 0, nil)

	c3 := model.NewConnection("3", "4", 32, 35, "trip_4", 1)
	c4 := model.NewConnection("2", "3", 25, 30, "trip_3", 1)
	walk := model.NewWalkConnection("1", "2", 5, 25)

	label := atTarget.Extend(&c3, true).Extend(&c4, true).WithWalkAdded(&walk)
	j := csa.NewJourney(label)

	require.Equal(t, 3, len(j.Connections()))
	require.Equal(t, 3, len(j.Legs()))
	assert.True(t, j.Legs()[0].IsWalk)
	assert.Equal(t, "trip_3", j.Legs()[1].TripID)
	assert.Equal(t, "trip_4", j.Legs()[2].TripID)

	assert.Equal(t, "1", j.Origin())
	assert.Equal(t, "4", j.Destination())
	assert.Equal(t, 5.0, j.DepartureTime())
	assert.Equal(t, 35.0, j.ArrivalTime())
	assert.Equal(t, 30.0, j.TravelTime())
	assert.Equal(t, 2, j.Boardings())
	assert.Equal(t, 1, j.Transfers())
	assert.Equal(t, []float64{0, 2}, j.WaitingTimes())
	assert.Equal(t, 2.0, j.TotalWaitingTime())
	assert.Equal(t, 20.0, j.WalkDuration())
	assert.Equal(t, 8.0, j.InVehicleDuration())
	assert.Equal(t, []string{"1", "2", "3", "4"}, j.Stops())
	assert.Equal(t, [][2]string{{"3", "3"}}, j.TransferStopPairs())
	assert.Equal(t, label.NBoardings, j.Boardings())
}

func TestJourneyStayAboard(t *testing.T) {
	atTarget := (*csa.JourneyLabel)(nil).DirectWalk(20, 0, nil)

	second := model.NewConnection("b", "c", 10, 20, "t", 2)
	first := model.NewConnection("a", "b", 0, 10, "t", 1)

	label := atTarget.Extend(&second, true).Extend(&first, false)
	j := csa.NewJourney(label)

	require.Equal(t, 2, len(j.Connections()))
	require.Equal(t, 1, len(j.Legs()))

	leg := j.Legs()[0]
	assert.Equal(t, "a", leg.DepartureStop)
	assert.Equal(t, "c", leg.ArrivalStop)
	assert.Equal(t, 0.0, leg.DepartureTime)
	assert.Equal(t, 20.0, leg.ArrivalTime)
	assert.Equal(t, 1, leg.FirstSeq)
	assert.Equal(t, 2, leg.LastSeq)

	assert.Equal(t, 1, j.Boardings())
	assert.Equal(t, 0, j.Transfers())
	assert.Equal(t, []float64{}, j.WaitingTimes())
	assert.Equal(t, [][2]string{}, j.TransferStopPairs())
}

func TestJourneyWalkTransfer(t *testing.T) {
	atTarget := (*csa.JourneyLabel)(nil).DirectWalk(60, 0, nil)

	ride2 := model.NewConnection("y", "z", 40, 60, "t2", 1)
	walk := model.NewWalkConnection("x", "y", 25, 35)
	ride1 := model.NewConnection("w", "x", 10, 20, "t1", 1)

	label := atTarget.Extend(&ride2, true).Extend(&walk, false).Extend(&ride1, true)
	j := csa.NewJourney(label)

	assert.Equal(t, 2, j.Boardings())
	assert.Equal(t, [][2]string{{"x", "y"}}, j.TransferStopPairs())
	assert.Equal(t, []float64{5, 5}, j.WaitingTimes())
	assert.Equal(t, []string{"w", "x", "y", "z"}, j.Stops())
}

func TestJourneyAtTarget(t *testing.T) {
	j := csa.NewJourney((*csa.JourneyLabel)(nil).DirectWalk(10, 0, nil))

	assert.Empty(t, j.Legs())
	assert.Equal(t, "", j.Origin())
	assert.Equal(t, "", j.Destination())
	assert.Equal(t, 0, j.Boardings())
	assert.Equal(t, 0.0, j.TravelTime())
	assert.Equal(t, []string{}, j.Stops())
}
