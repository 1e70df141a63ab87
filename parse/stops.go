package parse

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"tidbyt.dev/csa/model"
)

type StopCSV struct {
	ID           string  `csv:"stop_id"`
	Name         string  `csv:"stop_name"`
	Lat          float64 `csv:"stop_lat"`
	Lon          float64 `csv:"stop_lon"`
	LocationType int8    `csv:"location_type"`
}

// GTFS location types where name and coordinates are optional.
const (
	locationTypeGenericNode  = 3
	locationTypeBoardingArea = 4
)

func ParseStops(data io.Reader) ([]model.Stop, error) {
	stopCsv := []*StopCSV{}
	if err := gocsv.Unmarshal(data, &stopCsv); err != nil {
		return nil, fmt.Errorf("unmarshaling stops csv: %w", err)
	}

	stopIDs := map[string]bool{}
	stops := make([]model.Stop, 0, len(stopCsv))
	for _, st := range stopCsv {
		if st.ID == "" {
			return nil, fmt.Errorf("empty stop_id")
		}
		if stopIDs[st.ID] {
			return nil, fmt.Errorf("repeated stop_id '%s'", st.ID)
		}
		stopIDs[st.ID] = true

		if st.LocationType != locationTypeGenericNode && st.LocationType != locationTypeBoardingArea {
			if st.Name == "" {
				return nil, fmt.Errorf("empty stop_name for stop_id '%s'", st.ID)
			}
			if st.Lat == 0 || st.Lon == 0 {
				return nil, fmt.Errorf("empty stop_lat or stop_lon for stop_id '%s'", st.ID)
			}
		}

		stops = append(stops, model.Stop{
			ID:   st.ID,
			Name: st.Name,
			Lat:  st.Lat,
			Lon:  st.Lon,
		})
	}

	return stops, nil
}
