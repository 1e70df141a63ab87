package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/csa/model"
)

type TripCSV struct {
	ID        string `csv:"trip_id"`
	RouteID   string `csv:"route_id"`
	ServiceID string `csv:"service_id"`
}

func ParseTrips(
	data io.Reader,
	routes map[string]model.Route,
	services map[string]bool,
) (map[string]model.Trip, error) {
	tripCsv := []*TripCSV{}
	if err := gocsv.Unmarshal(data, &tripCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling trips csv: %w", err)
	}

	trips := map[string]model.Trip{}
	for _, t := range tripCsv {
		if t.ID == "" {
			return nil, fmt.Errorf("empty trip_id")
		}
		if t.ID == model.WalkTripID {
			return nil, fmt.Errorf("reserved trip_id '%s'", t.ID)
		}
		if _, found := trips[t.ID]; found {
			return nil, fmt.Errorf("repeated trip_id '%s'", t.ID)
		}
		if t.RouteID == "" {
			return nil, fmt.Errorf("empty route_id")
		}

		if _, found := routes[t.RouteID]; !found {
			return nil, fmt.Errorf("unknown route_id '%s'", t.RouteID)
		}
		if !services[t.ServiceID] {
			return nil, fmt.Errorf("unknown service_id '%s'", t.ServiceID)
		}

		trips[t.ID] = model.Trip{
			ID:        t.ID,
			RouteID:   t.RouteID,
			ServiceID: t.ServiceID,
		}
	}

	return trips, nil
}
