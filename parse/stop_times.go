package parse

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"tidbyt.dev/csa/model"
)

type StopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  uint32 `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
}

// Parses HH:MM:SS into seconds. Hours may exceed 23.
func parseStopTimeTime(s string) (float64, error) {
	split := strings.Split(s, ":")
	if len(split) != 3 {
		return 0, fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	hms := [3]int{}
	for i, str := range split {
		j, err := strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			return 0, fmt.Errorf("non-integer in '%s' pos %d", s, i)
		}
		hms[i] = j
	}

	if hms[0] < 0 || hms[0] > 99 {
		return 0, fmt.Errorf("invalid hour in '%s'", s)
	}

	if hms[1] < 0 || hms[1] > 59 {
		return 0, fmt.Errorf("invalid minute in '%s'", s)
	}

	if hms[2] < 0 || hms[2] > 59 {
		return 0, fmt.Errorf("invalid second in '%s'", s)
	}

	return float64(hms[0]*3600 + hms[1]*60 + hms[2]), nil
}

// Parses stop_times, sorted by trip and stop_sequence.
func ParseStopTimes(
	data io.Reader,
	trips map[string]model.Trip,
	stops map[string]bool,
) ([]model.StopTime, error) {

	stopTimes := []model.StopTime{}

	stopSeq := map[string]map[uint32]bool{}

	i := -1
	err := gocsv.UnmarshalToCallbackWithError(data, func(st *StopTimeCSV) error {
		i += 1
		if _, found := trips[st.TripID]; !found {
			return fmt.Errorf("unknown trip_id: '%s' (row %d)", st.TripID, i+1)
		}
		if st.StopID == "" {
			return fmt.Errorf("missing stop_id (row %d)", i+1)
		}
		if !stops[st.StopID] {
			return fmt.Errorf("unknown stop_id: '%s' (row %d)", st.StopID, i+1)
		}

		arrivalTime, err := parseStopTimeTime(st.ArrivalTime)
		if err != nil {
			return errors.Wrapf(err, "parsing arrival_time (row %d)", i+1)
		}

		departureTime, err := parseStopTimeTime(st.DepartureTime)
		if err != nil {
			return errors.Wrapf(err, "parsing departure_time (row %d)", i+1)
		}

		if departureTime < arrivalTime {
			return fmt.Errorf("departure_time before arrival_time (row %d)", i+1)
		}

		if stopSeq[st.TripID] == nil {
			stopSeq[st.TripID] = map[uint32]bool{}
		}
		if stopSeq[st.TripID][st.StopSequence] {
			return fmt.Errorf("duplicate stop_sequence %d for trip_id '%s'", st.StopSequence, st.TripID)
		}
		stopSeq[st.TripID][st.StopSequence] = true

		stopTimes = append(stopTimes, model.StopTime{
			TripID:       st.TripID,
			StopID:       st.StopID,
			StopSequence: st.StopSequence,
			Arrival:      arrivalTime,
			Departure:    departureTime,
		})

		return nil
	})

	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling stop_times csv")
	}

	sortStopTimes(stopTimes)

	return stopTimes, nil
}

func sortStopTimes(stopTimes []model.StopTime) {
	sort.SliceStable(stopTimes, func(i, j int) bool {
		cmp := strings.Compare(
			stopTimes[i].TripID,
			stopTimes[j].TripID,
		)

		if cmp < 0 {
			return true
		}
		if cmp == 0 {
			return stopTimes[i].StopSequence < stopTimes[j].StopSequence
		}
		return false
	})
}

// Turns each pair of consecutive stop_times of a trip into a
// connection. The connection's Seq is the stop_sequence of its
// departure.
func ConnectionsFromStopTimes(stopTimes []model.StopTime) ([]model.Connection, error) {
	sorted := make([]model.StopTime, len(stopTimes))
	copy(sorted, stopTimes)
	sortStopTimes(sorted)

	conns := []model.Connection{}
	for i := 0; i+1 < len(sorted); i++ {
		from, to := sorted[i], sorted[i+1]
		if from.TripID != to.TripID {
			continue
		}
		if to.Arrival < from.Departure {
			return nil, errors.Errorf(
				"trip '%s' arrives at stop_sequence %d before departing %d",
				from.TripID, to.StopSequence, from.StopSequence,
			)
		}
		conns = append(conns, model.NewConnection(
			from.StopID,
			to.StopID,
			from.Departure,
			to.Arrival,
			from.TripID,
			int(from.StopSequence),
		))
	}

	return conns, nil
}
