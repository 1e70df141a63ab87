package parse

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"tidbyt.dev/csa/model"
)

// A row of a temporal network export: one vehicle hop between two
// consecutive stops of a trip. Times are seconds.
type ConnectionCSV struct {
	From          string  `csv:"from_stop_I"`
	To            string  `csv:"to_stop_I"`
	DepartureTime float64 `csv:"dep_time_ut"`
	ArrivalTime   float64 `csv:"arr_time_ut"`
	TripID        string  `csv:"trip_I"`
	Seq           int     `csv:"seq"`
	RouteType     string  `csv:"route_type"`
}

// Parses connections.csv. Rows with a route_type outside of
// routeTypes are skipped, unless routeTypes is empty. Rows without
// a route_type are always kept.
func ParseConnections(data io.Reader, routeTypes []model.RouteType) ([]model.Connection, error) {
	wanted := map[model.RouteType]bool{}
	for _, t := range routeTypes {
		wanted[t] = true
	}

	conns := []model.Connection{}

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(c *ConnectionCSV) error {
		i += 1
		if c.From == "" || c.To == "" {
			return fmt.Errorf("missing stop (row %d)", i+1)
		}
		if c.TripID == "" {
			return fmt.Errorf("missing trip_I (row %d)", i+1)
		}
		if c.TripID == model.WalkTripID {
			return fmt.Errorf("reserved trip_I '%s' (row %d)", c.TripID, i+1)
		}
		if c.ArrivalTime < c.DepartureTime {
			return fmt.Errorf("arrives before departing (row %d)", i+1)
		}

		if c.RouteType != "" && len(wanted) > 0 {
			routeType, err := strconv.Atoi(c.RouteType)
			if err != nil {
				return errors.Wrapf(err, "parsing route_type (row %d)", i+1)
			}
			if !wanted[model.RouteType(routeType)] {
				return nil
			}
		}

		conns = append(conns, model.NewConnection(
			c.From, c.To,
			c.DepartureTime, c.ArrivalTime,
			c.TripID, c.Seq,
		))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling connections csv")
	}

	return conns, nil
}
