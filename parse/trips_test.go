package parse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/csa/model"
)

func TestParseTrips(t *testing.T) {
	routes := map[string]model.Route{"r": {ID: "r", ShortName: "R", Type: model.RouteTypeBus}}
	services := map[string]bool{"s": true}

	for _, tc := range []struct {
		name     string
		content  string
		expected map[string]model.Trip
		err      bool
	}{
		{
			"minimal",
			`
trip_id,route_id,service_id
t1,r,s
t2,r,s`,
			map[string]model.Trip{
				"t1": {ID: "t1", RouteID: "r", ServiceID: "s"},
				"t2": {ID: "t2", RouteID: "r", ServiceID: "s"},
			},
			false,
		},

		{
			"unknown route",
			`
trip_id,route_id,service_id
t,x,s`,
			nil,
			true,
		},

		{
			"unknown service",
			`
trip_id,route_id,service_id
t,r,x`,
			nil,
			true,
		},

		{
			"repeated trip_id",
			`
trip_id,route_id,service_id
t,r,s
t,r,s`,
			nil,
			true,
		},

		{
			"reserved trip_id",
			`
trip_id,route_id,service_id
__walk__,r,s`,
			nil,
			true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			trips, err := ParseTrips(bytes.NewBufferString(tc.content), routes, services)
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, trips)
		})
	}
}
