package csa_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/csa"
	"tidbyt.dev/csa/metrics"
	"tidbyt.dev/csa/model"
	"tidbyt.dev/csa/parse"
	"tidbyt.dev/csa/publish"
	"tidbyt.dev/csa/storage"
	"tidbyt.dev/csa/testutil"
)

type MockNetworkServer struct {
	Networks map[string][]byte
	Requests []string
	Server   *httptest.Server
}

func (m *MockNetworkServer) handler(w http.ResponseWriter, r *http.Request) {
	m.Requests = append(m.Requests, r.URL.Path)
	if network, found := m.Networks[r.URL.Path]; found {
		w.Write(network)
	} else {
		w.WriteHeader(http.StatusNotFound)
	}
}

func networkServerFixture(t *testing.T) *MockNetworkServer {
	m := &MockNetworkServer{
		Networks: map[string][]byte{},
		Requests: []string{},
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handler))
	t.Cleanup(m.Server.Close)
	return m
}

// From a, trip_2 reaches t directly while trip_1 + trip_3 arrive
// earlier with a transfer at b.
func managerNetworkFiles() map[string][]string {
	return testutil.NetworkFiles([]string{
		"a,b,10,20,trip_1,1",
		"b,t,22,30,trip_3,1",
		"a,t,10,40,trip_2,1",
	}, nil)
}

func fixedTime() time.Time {
	return time.Date(2019, 1, 7, 12, 0, 0, 0, time.UTC)
}

func newTestManager(s storage.Storage) *csa.Manager {
	m := csa.NewManager(s)
	m.TimeNow = fixedTime
	return m
}

func expectedJourneysToT() []*storage.Journey {
	return []*storage.Journey{
		{
			ID:            1,
			Origin:        "a",
			Destination:   "t",
			DepartureTime: 10,
			ArrivalTime:   30,
			Boardings:     2,
			FastestPath:   true,
			Legs: []storage.Leg{
				{DepartureStop: "a", ArrivalStop: "b", DepartureTime: 10, ArrivalTime: 20, TripID: "trip_1", Seq: 1},
				{DepartureStop: "b", ArrivalStop: "t", DepartureTime: 22, ArrivalTime: 30, TripID: "trip_3", Seq: 1},
			},
		},
		{
			ID:            2,
			Origin:        "a",
			Destination:   "t",
			DepartureTime: 10,
			ArrivalTime:   40,
			Boardings:     1,
			FastestPath:   false,
			Legs: []storage.Leg{
				{DepartureStop: "a", ArrivalStop: "t", DepartureTime: 10, ArrivalTime: 40, TripID: "trip_2", Seq: 1},
			},
		},
		{
			ID:            3,
			Origin:        "b",
			Destination:   "t",
			DepartureTime: 22,
			ArrivalTime:   30,
			Boardings:     1,
			FastestPath:   true,
			Legs: []storage.Leg{
				{DepartureStop: "b", ArrivalStop: "t", DepartureTime: 22, ArrivalTime: 30, TripID: "trip_3", Seq: 1},
			},
		},
	}
}

func TestManagerLoadNetworkURL(t *testing.T) {
	server := networkServerFixture(t)
	server.Networks["/network.zip"] = testutil.BuildZip(t, managerNetworkFiles())

	m := newTestManager(storage.NewMemoryStorage())

	network, err := m.LoadNetwork(context.Background(), server.Server.URL+"/network.zip", nil, parse.Options{})
	require.NoError(t, err)
	assert.Equal(t, server.Server.URL+"/network.zip", network.Source)
	assert.Len(t, network.Hash, 64)
	assert.Equal(t, []model.Connection{
		model.NewConnection("b", "t", 22, 30, "trip_3", 1),
		model.NewConnection("a", "b", 10, 20, "trip_1", 1),
		model.NewConnection("a", "t", 10, 40, "trip_2", 1),
	}, network.Connections)

	// Second load hits the download cache
	again, err := m.LoadNetwork(context.Background(), server.Server.URL+"/network.zip", nil, parse.Options{})
	require.NoError(t, err)
	assert.Equal(t, network.Hash, again.Hash)
	assert.Equal(t, []string{"/network.zip"}, server.Requests)

	_, err = m.LoadNetwork(context.Background(), server.Server.URL+"/missing.zip", nil, parse.Options{})
	assert.Error(t, err)

	// Broken archive
	server.Networks["/broken.zip"] = []byte("not a zip")
	_, err = m.LoadNetwork(context.Background(), server.Server.URL+"/broken.zip", nil, parse.Options{})
	assert.Error(t, err)
}

func TestManagerLoadNetworkFileAndDir(t *testing.T) {
	m := newTestManager(storage.NewMemoryStorage())

	buf := testutil.BuildZip(t, managerNetworkFiles())
	path := filepath.Join(t.TempDir(), "network.zip")
	require.NoError(t, os.WriteFile(path, buf, 0644))

	fromFile, err := m.LoadNetwork(context.Background(), path, nil, parse.Options{})
	require.NoError(t, err)
	assert.Len(t, fromFile.Connections, 3)

	dir := testutil.BuildDir(t, managerNetworkFiles())
	fromDir, err := m.LoadNetwork(context.Background(), dir, nil, parse.Options{})
	require.NoError(t, err)
	assert.Equal(t, fromFile.Connections, fromDir.Connections)
	assert.Len(t, fromDir.Hash, 64)

	// Same content, same hash
	dir2 := testutil.BuildDir(t, managerNetworkFiles())
	fromDir2, err := m.LoadNetwork(context.Background(), dir2, nil, parse.Options{})
	require.NoError(t, err)
	assert.Equal(t, fromDir.Hash, fromDir2.Hash)

	_, err = m.LoadNetwork(context.Background(), filepath.Join(dir, "nope"), nil, parse.Options{})
	assert.Error(t, err)
}

func TestManagerRoute(t *testing.T) {
	for _, backend := range []string{"memory", "sqlite", "sqlite-file"} {
		t.Run(backend, func(t *testing.T) {
			s := testutil.BuildStorage(t, backend)
			m := newTestManager(s)
			collector := metrics.NewCollector(0, csa.DefaultWalkSpeed)
			m.Observer = collector
			publisher := publish.NewMemoryPublisher("csa.journeys")
			m.Publisher = publisher

			network := &csa.LoadedNetwork{
				Network: testutil.BuildNetwork(t, []string{
					"a,b,10,20,trip_1,1",
					"b,t,22,30,trip_3,1",
					"a,t,10,40,trip_2,1",
				}, nil),
				Source: "fixture",
				Hash:   "0123456789abcdef",
			}

			run, err := m.Route(context.Background(), network, csa.RouteRequest{
				Targets: []string{"t", "b"},
				Workers: 2,
			})
			require.NoError(t, err)

			assert.Equal(t, &storage.RunMetadata{
				ID:             "0123456789ab-" + "1546862400000000000",
				NetworkHash:    "0123456789abcdef",
				NetworkURL:     "fixture",
				CreatedAt:      fixedTime(),
				Targets:        []string{"t", "b"},
				TransferMargin: 0,
				WalkSpeed:      csa.DefaultWalkSpeed,
				WindowStart:    10,
				WindowEnd:      22,
				Journeys:       4,
			}, run)

			runs, err := m.Runs("0123456789abcdef")
			require.NoError(t, err)
			assert.Equal(t, []*storage.RunMetadata{run}, runs)

			journeys, err := m.Journeys(run.ID, storage.JourneyFilter{Destination: "t"})
			require.NoError(t, err)
			assert.Equal(t, expectedJourneysToT(), journeys)

			journeys, err = m.Journeys(run.ID, storage.JourneyFilter{Destination: "b"})
			require.NoError(t, err)
			assert.Equal(t, []*storage.Journey{{
				ID:            4,
				Origin:        "a",
				Destination:   "b",
				DepartureTime: 10,
				ArrivalTime:   20,
				Boardings:     1,
				FastestPath:   true,
				Legs: []storage.Leg{
					{DepartureStop: "a", ArrivalStop: "b", DepartureTime: 10, ArrivalTime: 20, TripID: "trip_1", Seq: 1},
				},
			}}, journeys)

			journeys, err = m.Journeys(run.ID, storage.JourneyFilter{FastestPathOnly: true})
			require.NoError(t, err)
			assert.Len(t, journeys, 3)

			// Published after being written, IDs included
			messages := publisher.Messages()
			require.Len(t, messages, 4)
			assert.Equal(t, publish.NewMessage(run.ID, expectedJourneysToT()[0]), messages[0])
			assert.Equal(t, 4, messages[3].JourneyID)
			assert.Equal(t, "csa.journeys."+run.ID+".a.b", publisher.Subjects()[3])

			assert.Equal(t, 2.0, promtestutil.ToFloat64(collector.RunsStarted))
			assert.Equal(t, 0.0, promtestutil.ToFloat64(collector.RunsFailed))
			assert.Equal(t, 4.0, promtestutil.ToFloat64(collector.JourneysWritten))

			require.NoError(t, m.DeleteRun(run.ID))
			runs, err = m.Runs("")
			require.NoError(t, err)
			assert.Empty(t, runs)
		})
	}
}

func TestManagerRouteParameters(t *testing.T) {
	m := newTestManager(storage.NewMemoryStorage())
	network := csa.NewLoadedNetwork("fixture", []model.Connection{
		model.NewConnection("a", "b", 10, 20, "trip_1", 1),
		model.NewConnection("b", "t", 22, 30, "trip_3", 1),
		model.NewConnection("a", "t", 10, 40, "trip_2", 1),
	}, nil)

	// A 5 second margin rules out the transfer at b
	run, err := m.Route(context.Background(), network, csa.RouteRequest{
		RunID:          "margin",
		Targets:        []string{"t"},
		TransferMargin: 5,
		WalkSpeed:      1,
		WindowStart:    0,
		WindowEnd:      100,
	})
	require.NoError(t, err)
	assert.Equal(t, "margin", run.ID)
	assert.Equal(t, 5.0, run.TransferMargin)
	assert.Equal(t, 1.0, run.WalkSpeed)
	assert.Equal(t, 0.0, run.WindowStart)
	assert.Equal(t, 100.0, run.WindowEnd)
	assert.Equal(t, "", run.NetworkHash)

	journeys, err := m.Journeys("margin", storage.JourneyFilter{Origin: "a"})
	require.NoError(t, err)
	require.Len(t, journeys, 1)
	assert.Equal(t, 40.0, journeys[0].ArrivalTime)
	assert.Equal(t, "trip_2", journeys[0].Legs[0].TripID)
	assert.True(t, journeys[0].FastestPath)
}

func TestManagerRouteWalking(t *testing.T) {
	m := newTestManager(storage.NewMemoryStorage())
	network := csa.NewLoadedNetwork(
		"fixture",
		[]model.Connection{model.NewConnection("a", "b", 10, 20, "trip_1", 1)},
		model.NewWalkNetwork(model.WalkEdge{From: "b", To: "t", Distance: 15}),
	)

	_, err := m.Route(context.Background(), network, csa.RouteRequest{
		RunID:     "walk",
		Targets:   []string{"t"},
		WalkSpeed: 1.5,
	})
	require.NoError(t, err)

	journeys, err := m.Journeys("walk", storage.JourneyFilter{Origin: "a"})
	require.NoError(t, err)
	require.Len(t, journeys, 1)
	assert.Equal(t, 10.0, journeys[0].DepartureTime)
	assert.Equal(t, 30.0, journeys[0].ArrivalTime)
	assert.Equal(t, 1, journeys[0].Boardings)
	assert.Equal(t, []storage.Leg{
		{DepartureStop: "a", ArrivalStop: "b", DepartureTime: 10, ArrivalTime: 20, TripID: "trip_1", Seq: 1},
		{DepartureStop: "b", ArrivalStop: "t", DepartureTime: 20, ArrivalTime: 30, TripID: model.WalkTripID, Seq: model.WalkSeq},
	}, journeys[0].Legs)
}

func TestManagerRouteErrors(t *testing.T) {
	s := storage.NewMemoryStorage()
	m := newTestManager(s)
	network := csa.NewLoadedNetwork("fixture", []model.Connection{
		model.NewConnection("a", "b", 10, 20, "trip_1", 1),
	}, nil)

	_, err := m.Route(context.Background(), network, csa.RouteRequest{})
	assert.ErrorIs(t, err, csa.ErrNoTargets)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Route(ctx, network, csa.RouteRequest{RunID: "canceled", Targets: []string{"b"}})
	assert.Error(t, err)

	// Nothing persisted for the failed run
	runs, err := m.Runs("")
	require.NoError(t, err)
	assert.Empty(t, runs)
	_, err = m.Journeys("canceled", storage.JourneyFilter{})
	assert.Error(t, err)
}

func TestManagerProfile(t *testing.T) {
	m := newTestManager(storage.NewMemoryStorage())
	network := csa.NewLoadedNetwork("fixture", []model.Connection{
		model.NewConnection("a", "b", 10, 20, "trip_1", 1),
		model.NewConnection("b", "t", 22, 30, "trip_3", 1),
		model.NewConnection("a", "t", 10, 40, "trip_2", 1),
	}, nil)

	summary, labels, err := m.Profile(context.Background(), network, csa.ProfileRequest{
		Origin:      "a",
		Target:      "t",
		WindowStart: 0,
		WindowEnd:   10,
	})
	require.NoError(t, err)

	assert.Equal(t, []csa.TimeLabel{{DepartureTime: 10, ArrivalTimeTarget: 30}}, labels)
	assert.Equal(t, 1, summary.ParetoOptimalTrips)
	assert.Equal(t, 20.0, summary.MinTripDuration)
	assert.Equal(t, 20.0, summary.MedianTripDuration)
	assert.Equal(t, 20.0, summary.MinTemporalDistance)
	assert.Equal(t, 30.0, summary.MaxTemporalDistance)
	assert.InDelta(t, 25.0, summary.MeanTemporalDistance, 1e-9)
	assert.InDelta(t, 25.0, summary.MedianTemporalDistance, 1e-9)
	assert.True(t, summary.HasFiniteTemporalDistance)
	assert.Equal(t, 30.0, summary.LargestFiniteTemporalDistance)

	_, _, err = m.Profile(context.Background(), network, csa.ProfileRequest{Origin: "nowhere", Target: "t"})
	assert.ErrorIs(t, err, csa.ErrUnknownStop)

	_, _, err = m.Profile(context.Background(), network, csa.ProfileRequest{Origin: "a"})
	assert.ErrorIs(t, err, csa.ErrNoTargets)
}
