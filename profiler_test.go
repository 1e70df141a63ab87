package csa_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/csa"
	"tidbyt.dev/csa/model"
)

// Small network exercising transfers, walks and trade-offs between
// travel time and boardings. Target is stop 4.
func regressionNetwork() ([]model.Connection, *model.WalkNetwork) {
	conns := []model.Connection{
		model.NewConnection("2", "4", 40, 50, "trip_6", 1),
		model.NewConnection("1", "3", 32, 40, "trip_5", 1),
		model.NewConnection("3", "4", 32, 35, "trip_4", 1),
		model.NewConnection("2", "3", 25, 30, "trip_3", 1),
		model.NewConnection("1", "2", 10, 20, "trip_2", 1),
		model.NewConnection("0", "1", 0, 10, "trip_1", 1),
	}
	walk := model.NewWalkNetwork(
		model.WalkEdge{From: "1", To: "2", Distance: 20},
		model.WalkEdge{From: "3", To: "4", Distance: 15},
	)
	return conns, walk
}

func finalLabels[L csa.Label[L]](t *testing.T, p *csa.Profiler[L], stop string) []L {
	t.Helper()
	labels, err := p.FinalLabels(stop)
	require.NoError(t, err)
	return labels
}

func assertLabels[L csa.Label[L]](t *testing.T, expected []L, actual []L) {
	t.Helper()
	require.Equal(t, len(expected), len(actual), "expected %v, got %v", expected, actual)
	for _, e := range expected {
		found := false
		for _, a := range actual {
			if e.Equal(a) {
				found = true
			}
		}
		assert.True(t, found, "%v missing from %v", e, actual)
	}
}

func TestProfilerRegressionTimeOnly(t *testing.T) {
	conns, walk := regressionNetwork()

	p := csa.NewProfiler[csa.TimeLabel](
		conns, walk, []string{"4"},
		csa.WithWalkSpeed(1),
		csa.WithTimeWindow(0, 50),
	)
	require.NoError(t, p.Run())

	assertLabels(t, []csa.TimeLabel{
		{DepartureTime: 10, ArrivalTimeTarget: 35},
		{DepartureTime: 20, ArrivalTimeTarget: 50, FirstLegIsWalk: true},
		{DepartureTime: 32, ArrivalTimeTarget: 55},
	}, finalLabels(t, p, "1"))

	assertLabels(t, []csa.TimeLabel{
		{DepartureTime: 40, ArrivalTimeTarget: 50},
		{DepartureTime: 25, ArrivalTimeTarget: 35},
	}, finalLabels(t, p, "2"))

	assertLabels(t, []csa.TimeLabel{
		{DepartureTime: 32, ArrivalTimeTarget: 35},
	}, finalLabels(t, p, "3"))

	assertLabels(t, []csa.TimeLabel{
		{DepartureTime: 0, ArrivalTimeTarget: 35},
	}, finalLabels(t, p, "0"))

	assert.Empty(t, finalLabels(t, p, "4"))

	// Caller's connections untouched
	assert.Equal(t, model.Inf, conns[0].ArrivalStopNextDepartureTime)
}

func TestProfilerRegressionBoardings(t *testing.T) {
	conns, walk := regressionNetwork()

	p := csa.NewProfiler[csa.BoardingsLabel](
		conns, walk, []string{"4"},
		csa.WithWalkSpeed(1),
		csa.WithTimeWindow(0, 50),
	)
	require.NoError(t, p.Run())

	// Fewer boardings make slower alternatives worth keeping, e.g.
	// walking to 2 and riding trip_3 only.
	assertLabels(t, []csa.BoardingsLabel{
		{DepartureTime: 32, ArrivalTimeTarget: 55, NBoardings: 1},
		{DepartureTime: 20, ArrivalTimeTarget: 50, NBoardings: 1, FirstLegIsWalk: true},
		{DepartureTime: 10, ArrivalTimeTarget: 35, NBoardings: 3},
		{DepartureTime: 10, ArrivalTimeTarget: 45, NBoardings: 2},
		{DepartureTime: 5, ArrivalTimeTarget: 35, NBoardings: 2, FirstLegIsWalk: true},
		{DepartureTime: 5, ArrivalTimeTarget: 45, NBoardings: 1, FirstLegIsWalk: true},
	}, finalLabels(t, p, "1"))

	assertLabels(t, []csa.BoardingsLabel{
		{DepartureTime: 40, ArrivalTimeTarget: 50, NBoardings: 1},
		{DepartureTime: 25, ArrivalTimeTarget: 35, NBoardings: 2},
		{DepartureTime: 25, ArrivalTimeTarget: 45, NBoardings: 1},
	}, finalLabels(t, p, "2"))

	assertLabels(t, []csa.BoardingsLabel{
		{DepartureTime: 32, ArrivalTimeTarget: 35, NBoardings: 1},
	}, finalLabels(t, p, "3"))
}

func TestProfilerJourneyLabelsReconstruct(t *testing.T) {
	conns, walk := regressionNetwork()

	p := csa.NewProfiler[*csa.JourneyLabel](
		conns, walk, []string{"4"},
		csa.WithWalkSpeed(1),
		csa.WithTimeWindow(0, 50),
	)
	require.NoError(t, p.Run())

	labels := finalLabels(t, p, "1")
	require.NotEmpty(t, labels)

	for _, l := range labels {
		j := csa.NewJourney(l)
		legs := j.Connections()
		require.NotEmpty(t, legs)
		assert.Equal(t, "1", legs[0].DepartureStop)
		assert.Equal(t, "4", legs[len(legs)-1].ArrivalStop)
		assert.Equal(t, l.DepartureTime, legs[0].DepartureTime)
		assert.Equal(t, l.ArrivalTimeTarget, legs[len(legs)-1].ArrivalTime)

		for i := 1; i < len(legs); i++ {
			assert.Equal(t, legs[i-1].ArrivalStop, legs[i].DepartureStop)
			assert.LessOrEqual(t, legs[i-1].ArrivalTime, legs[i].DepartureTime)
		}
		assert.Equal(t, l.NBoardings, j.Boardings())
	}
}

func TestProfilerWalkFasterThanTrip(t *testing.T) {
	conns := []model.Connection{
		model.NewConnection("0", "1", 0, 10, "trip", 1),
	}
	walk := model.NewWalkNetwork(model.WalkEdge{From: "0", To: "1", Distance: 1})

	p := csa.NewProfiler[csa.TimeLabel](conns, walk, []string{"1"}, csa.WithWalkSpeed(2))
	require.NoError(t, p.Run())

	profile := p.StopProfiles()["0"]
	require.NotNil(t, profile)
	assert.Equal(t, 0.5, profile.WalkToTargetDuration())
	assert.Equal(t, 0.5, csa.MinArrival(profile.Evaluate(0, true, 0)))

	assert.Empty(t, finalLabels(t, p, "0"))
}

func TestProfilerTransferMargin(t *testing.T) {
	conns := []model.Connection{
		model.NewConnection("1", "2", 50, 60, "trip_1", 2),
		model.NewConnection("0", "1", 40, 50, "trip_1", 1),
		model.NewConnection("3", "1", 40, 50, "trip_2", 1),
	}

	for _, tc := range []struct {
		margin float64
		stop0  int
		stop1  int
		stop3  int
	}{
		{0, 1, 1, 1},
		{1, 1, 1, 0},
	} {
		p := csa.NewProfiler[csa.BoardingsLabel](
			conns, nil, []string{"2"},
			csa.WithTransferMargin(tc.margin),
		)
		require.NoError(t, p.Run())

		assert.Len(t, finalLabels(t, p, "0"), tc.stop0, "margin %g", tc.margin)
		assert.Len(t, finalLabels(t, p, "1"), tc.stop1, "margin %g", tc.margin)
		assert.Len(t, finalLabels(t, p, "3"), tc.stop3, "margin %g", tc.margin)

		// Staying aboard is a single boarding
		assertLabels(t, []csa.BoardingsLabel{
			{DepartureTime: 40, ArrivalTimeTarget: 60, NBoardings: 1},
		}, finalLabels(t, p, "0"))
	}
}

// A walk between two trips. The margin is only charged before
// boarding the second trip, not before the walk.
func TestProfilerTransferMarginWalk(t *testing.T) {
	conns := []model.Connection{
		model.NewConnection("2", "3", 20, 30, "trip_b", 1),
		model.NewConnection("0", "1", 0, 10, "trip_a", 1),
	}
	walk := model.NewWalkNetwork(model.WalkEdge{From: "1", To: "2", Distance: 5})

	for _, tc := range []struct {
		margin    float64
		reachable bool
	}{
		{0, true},
		{1, true},
		{2, true},
		{5, true},
		{6, false},
	} {
		options := []csa.ProfilerOption{
			csa.WithTransferMargin(tc.margin),
			csa.WithWalkSpeed(1),
		}

		journeys := csa.NewProfiler[*csa.JourneyLabel](conns, walk, []string{"3"}, options...)
		require.NoError(t, journeys.Run())
		boardings := csa.NewProfiler[csa.BoardingsLabel](conns, walk, []string{"3"}, options...)
		require.NoError(t, boardings.Run())
		simple := csa.NewProfiler[csa.TimeLabel](conns, walk, []string{"3"}, append(options, csa.WithSimpleProfiles())...)
		require.NoError(t, simple.Run())

		if !tc.reachable {
			assert.Empty(t, finalLabels(t, journeys, "0"), "margin %g", tc.margin)
			assert.Empty(t, finalLabels(t, boardings, "0"), "margin %g", tc.margin)
			assert.Empty(t, finalLabels(t, simple, "0"), "margin %g", tc.margin)
			continue
		}

		assertLabels(t, []csa.BoardingsLabel{
			{DepartureTime: 0, ArrivalTimeTarget: 30, NBoardings: 2},
		}, finalLabels(t, boardings, "0"))
		assertLabels(t, []csa.TimeLabel{
			{DepartureTime: 0, ArrivalTimeTarget: 30},
		}, finalLabels(t, simple, "0"))

		labels := finalLabels(t, journeys, "0")
		require.Equal(t, 1, len(labels), "margin %g", tc.margin)
		legs := csa.NewJourney(labels[0]).Legs()
		require.Equal(t, 3, len(legs))
		assert.Equal(t, "trip_a", legs[0].TripID)
		assert.True(t, legs[1].IsWalk)
		assert.Equal(t, 10.0, legs[1].DepartureTime)
		assert.Equal(t, 15.0, legs[1].ArrivalTime)
		assert.Equal(t, "trip_b", legs[2].TripID)
	}
}

func TestProfilerPseudoConnections(t *testing.T) {
	conns := []model.Connection{
		model.NewConnection("2", "3", 42, 50, "trip_5", 1),
		model.NewConnection("0", "1", 10, 20, "trip_6", 1),
	}
	walk := model.NewWalkNetwork(model.WalkEdge{From: "1", To: "2", Distance: 20})

	p := csa.NewProfiler[*csa.JourneyLabel](
		conns, walk, []string{"3"},
		csa.WithWalkSpeed(1),
		csa.WithTimeWindow(0, 50),
	)
	require.NoError(t, p.Run())

	var pseudo []model.Connection
	for _, c := range p.Connections() {
		if c.IsWalk {
			pseudo = append(pseudo, c)
		}
	}
	require.Equal(t, 1, len(pseudo))
	assert.Equal(t, "1", pseudo[0].DepartureStop)
	assert.Equal(t, "2", pseudo[0].ArrivalStop)
	assert.Equal(t, 20.0, pseudo[0].DepartureTime)
	assert.Equal(t, 40.0, pseudo[0].ArrivalTime)
	assert.Equal(t, 42.0, pseudo[0].ArrivalStopNextDepartureTime)

	profiles := p.StopProfiles()
	for stop, expected := range map[string][]float64{
		"0": {10},
		"1": {20},
		"2": {42},
		"3": {},
	} {
		mp, ok := profiles[stop].(*csa.MultiObjectiveProfile[*csa.JourneyLabel])
		require.True(t, ok)
		assert.Equal(t, expected, mp.DepartureTimes(), stop)
	}

	// 0 -> 1 by vehicle, walk to 2, vehicle to 3
	labels := finalLabels(t, p, "0")
	require.Equal(t, 1, len(labels))
	assert.Equal(t, 10.0, labels[0].DepartureTime)
	assert.Equal(t, 50.0, labels[0].ArrivalTimeTarget)
	assert.Equal(t, 2, labels[0].NBoardings)
	assert.Equal(t, 38.0, labels[0].MovementDuration)
}

func TestProfilerNoDoubleWalk(t *testing.T) {
	// 0 -> 1 by vehicle, walk to 2, walk to 3 (target) is not allowed
	conns := []model.Connection{
		model.NewConnection("0", "1", 0, 10, "trip", 1),
	}
	walk := model.NewWalkNetwork(
		model.WalkEdge{From: "1", To: "2", Distance: 10},
		model.WalkEdge{From: "2", To: "3", Distance: 10},
	)

	p := csa.NewProfiler[csa.TimeLabel](
		conns, walk, []string{"3"},
		csa.WithWalkSpeed(1),
		csa.WithTimeWindow(0, 100),
	)
	require.NoError(t, p.Run())

	assert.Empty(t, finalLabels(t, p, "0"))
	assert.Equal(t, model.Inf, p.StopProfiles()["1"].WalkToTargetDuration())
	assert.Equal(t, 10.0, p.StopProfiles()["2"].WalkToTargetDuration())
}

func TestProfilerMultipleTargets(t *testing.T) {
	conns := []model.Connection{
		model.NewConnection("0", "a", 0, 30, "slow", 1),
		model.NewConnection("0", "b", 0, 10, "fast", 1),
	}
	walk := model.NewWalkNetwork(
		model.WalkEdge{From: "c", To: "a", Distance: 5},
		model.WalkEdge{From: "c", To: "b", Distance: 8},
	)

	p := csa.NewProfiler[csa.TimeLabel](conns, walk, []string{"a", "b"}, csa.WithWalkSpeed(1))
	require.NoError(t, p.Run())

	assertLabels(t, []csa.TimeLabel{
		{DepartureTime: 0, ArrivalTimeTarget: 10},
	}, finalLabels(t, p, "0"))

	assert.Equal(t, 5.0, p.StopProfiles()["c"].WalkToTargetDuration())
	assert.Equal(t, 0.0, p.StopProfiles()["a"].WalkToTargetDuration())
}

func TestProfilerSimpleProfiles(t *testing.T) {
	conns, walk := regressionNetwork()

	p := csa.NewProfiler[csa.TimeLabel](
		conns, walk, []string{"4"},
		csa.WithWalkSpeed(1),
		csa.WithTimeWindow(0, 50),
		csa.WithSimpleProfiles(),
	)
	require.NoError(t, p.Run())

	simple, ok := p.StopProfiles()["1"].(*csa.SimpleProfile)
	require.True(t, ok)
	assert.Equal(t, 35.0, simple.EarliestArrival(0))
	assert.Equal(t, 35.0, simple.EarliestArrival(10))
	assert.Equal(t, 55.0, simple.EarliestArrival(11))
	assert.Equal(t, model.Inf, simple.EarliestArrival(33))

	assertLabels(t, []csa.TimeLabel{
		{DepartureTime: 10, ArrivalTimeTarget: 35},
		{DepartureTime: 20, ArrivalTimeTarget: 50, FirstLegIsWalk: true},
		{DepartureTime: 32, ArrivalTimeTarget: 55},
	}, finalLabels(t, p, "1"))

	q := csa.NewProfiler[csa.BoardingsLabel](conns, walk, []string{"4"}, csa.WithSimpleProfiles())
	assert.Error(t, q.Run())
}

func TestProfilerOutOfOrder(t *testing.T) {
	conns := []model.Connection{
		model.NewConnection("0", "1", 0, 10, "a", 1),
		model.NewConnection("1", "2", 10, 20, "b", 1),
	}

	p := csa.NewProfiler[csa.TimeLabel](conns, nil, []string{"2"})
	err := p.Run()
	assert.ErrorIs(t, err, csa.ErrOutOfOrder)

	_, err = p.FinalLabels("0")
	assert.Error(t, err)
}

func TestProfilerRunOnce(t *testing.T) {
	conns, walk := regressionNetwork()

	p := csa.NewProfiler[csa.TimeLabel](conns, walk, []string{"4"})

	_, err := p.FinalLabels("1")
	assert.ErrorIs(t, err, csa.ErrNotRun)

	require.NoError(t, p.Run())
	assert.ErrorIs(t, p.Run(), csa.ErrAlreadyRun)
}

func TestProfilerCanceled(t *testing.T) {
	conns, walk := regressionNetwork()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := csa.NewProfiler[csa.TimeLabel](conns, walk, []string{"4"})
	err := p.RunContext(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type recordingObserver struct {
	connections int
	pseudo      int
	finished    bool
	err         error
	profiles    int
	labels      int
}

func (o *recordingObserver) RunStarted(connections, pseudo int) {
	o.connections = connections
	o.pseudo = pseudo
}

func (o *recordingObserver) RunFinished(elapsed time.Duration, err error) {
	o.finished = true
	o.err = err
}

func (o *recordingObserver) ProfileFinalized(labels int) {
	o.profiles++
	o.labels += labels
}

func TestProfilerObserver(t *testing.T) {
	conns, walk := regressionNetwork()

	o := &recordingObserver{}
	p := csa.NewProfiler[csa.TimeLabel](
		conns, walk, []string{"4"},
		csa.WithWalkSpeed(1),
		csa.WithTimeWindow(0, 50),
		csa.WithObserver(o),
	)
	require.NoError(t, p.Run())

	assert.Equal(t, 6, o.connections)
	assert.Equal(t, 6, o.pseudo)
	assert.True(t, o.finished)
	assert.NoError(t, o.err)
	assert.Equal(t, 5, o.profiles)
	assert.Equal(t, 7, o.labels)
}
