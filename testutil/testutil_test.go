package testutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/csa/model"
	"tidbyt.dev/csa/parse"
	"tidbyt.dev/csa/storage"
	"tidbyt.dev/csa/testutil"
)

func TestBuildNetwork(t *testing.T) {
	network := testutil.BuildNetwork(t,
		[]string{
			"a,b,10,20,trip_1,1",
			"b,c,20,30,trip_1,2",
		},
		[]string{"b,d,30"},
	)

	assert.Equal(t, []model.Connection{
		model.NewConnection("b", "c", 20, 30, "trip_1", 2),
		model.NewConnection("a", "b", 10, 20, "trip_1", 1),
	}, network.Connections)
	assert.Equal(t, []model.WalkEdge{{From: "b", To: "d", Distance: 30}}, network.Walk.Edges())
}

func TestBuildDir(t *testing.T) {
	dir := testutil.BuildDir(t, testutil.NetworkFiles([]string{"a,b,10,20,trip_1,1"}, nil))

	network, err := parse.ParseNetworkDir(dir, parse.Options{})
	require.NoError(t, err)
	assert.Len(t, network.Connections, 1)
	assert.Equal(t, 0, network.Walk.NumEdges())
}

func TestBuildStorage(t *testing.T) {
	for _, backend := range []string{"memory", "sqlite", "sqlite-file"} {
		s := testutil.BuildStorage(t, backend)
		runs, err := s.ListRuns(storage.ListRunsFilter{})
		require.NoError(t, err, backend)
		assert.Empty(t, runs, backend)
	}
}
