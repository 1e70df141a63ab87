package parse

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/csa/model"
)

func TestParseRoutes(t *testing.T) {
	for _, tc := range []struct {
		name     string
		content  string
		expected map[string]model.Route
		err      bool
	}{
		{
			"minimal",
			`
route_id,route_short_name,route_type
r,R,3`,
			map[string]model.Route{
				"r": {ID: "r", ShortName: "R", Type: model.RouteTypeBus},
			},
			false,
		},

		{
			"long name only",
			`
route_id,route_long_name,route_type
r,Red Line,1
m,Monorail,12`,
			map[string]model.Route{
				"r": {ID: "r", ShortName: "Red Line", Type: model.RouteTypeSubway},
				"m": {ID: "m", ShortName: "Monorail", Type: model.RouteTypeMonorail},
			},
			false,
		},

		{
			"no name",
			`
route_id,route_type
r,3`,
			nil,
			true,
		},

		{
			"invalid route_type",
			`
route_id,route_short_name,route_type
r,R,9`,
			nil,
			true,
		},

		{
			"non-integer route_type",
			`
route_id,route_short_name,route_type
r,R,bus`,
			nil,
			true,
		},

		{
			"repeated route_id",
			`
route_id,route_short_name,route_type
r,R,3
r,S,3`,
			nil,
			true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			routes, err := ParseRoutes(bytes.NewBufferString(tc.content))
			if tc.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, routes)
		})
	}
}
