package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"

	"tidbyt.dev/csa/model"
)

type Options struct {
	// Service day as YYYYMMDD. When set, only trips running on
	// this day are included. Ignored for connections.csv.
	ServiceDate string

	// If non-empty, only connections on routes of these types
	// are included.
	RouteTypes []model.RouteType

	// When there's no walk_edges.csv, stops within this many
	// meters of each other become walk neighbors. Zero disables.
	MaxWalkDistance float64
}

// A network ready for routing.
type Network struct {
	Timezone string
	Stops    []model.Stop

	// Sorted by decreasing departure time.
	Connections []model.Connection
	Walk        *model.WalkNetwork
}

var networkFiles = []string{
	"connections.csv",
	"walk_edges.csv",
	"agency.txt",
	"routes.txt",
	"stops.txt",
	"trips.txt",
	"stop_times.txt",
	"calendar.txt",
	"calendar_dates.txt",
}

// Parses a zip archive holding either a GTFS feed or a
// connections.csv, optionally with walk_edges.csv.
func ParseNetwork(buf []byte, opts Options) (*Network, error) {
	file := map[string]io.ReadCloser{}
	defer func() {
		for _, rc := range file {
			rc.Close()
		}
	}()

	r, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		// There should not be any subdirectories. But, some
		// agencies don't care.
		if f.FileInfo().IsDir() {
			continue
		}
		path := strings.Split(f.Name, "/")
		fName := path[len(path)-1]

		if !isNetworkFile(fName) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}

		file[fName] = rc
	}

	return parseFiles(file, opts)
}

// Like ParseNetwork, but reads the files from a directory.
func ParseNetworkDir(dir string, opts Options) (*Network, error) {
	file := map[string]io.ReadCloser{}
	defer func() {
		for _, rc := range file {
			rc.Close()
		}
	}()

	for _, name := range networkFiles {
		f, err := os.Open(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		file[name] = f
	}

	return parseFiles(file, opts)
}

func isNetworkFile(name string) bool {
	for _, n := range networkFiles {
		if n == name {
			return true
		}
	}
	return false
}

func parseFiles(file map[string]io.ReadCloser, opts Options) (*Network, error) {
	// LazyCSVReader required (at least) to survive sloppy use of
	// quotes. The BOM reader strips unicode BOMs if present.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})

	network := &Network{Stops: []model.Stop{}}

	if file["agency.txt"] != nil {
		tz, err := ParseAgency(file["agency.txt"])
		if err != nil {
			return nil, fmt.Errorf("parsing agency.txt: %w", err)
		}
		network.Timezone = tz
	}

	stopIDs := map[string]bool{}
	if file["stops.txt"] != nil {
		stops, err := ParseStops(file["stops.txt"])
		if err != nil {
			return nil, fmt.Errorf("parsing stops.txt: %w", err)
		}
		network.Stops = stops
		for _, s := range stops {
			stopIDs[s.ID] = true
		}
	}

	var err error
	if file["connections.csv"] != nil {
		network.Connections, err = ParseConnections(file["connections.csv"], opts.RouteTypes)
		if err != nil {
			return nil, fmt.Errorf("parsing connections.csv: %w", err)
		}
	} else {
		network.Connections, err = parseSchedule(file, stopIDs, opts)
		if err != nil {
			return nil, err
		}
	}
	model.SortConnectionsDescending(network.Connections)

	switch {
	case file["walk_edges.csv"] != nil:
		network.Walk, err = ParseWalkEdges(file["walk_edges.csv"])
		if err != nil {
			return nil, fmt.Errorf("parsing walk_edges.csv: %w", err)
		}
	case opts.MaxWalkDistance > 0:
		network.Walk = model.WalkNetworkFromStops(network.Stops, opts.MaxWalkDistance)
	default:
		network.Walk = model.NewWalkNetwork()
	}

	return network, nil
}

// Builds connections from a GTFS schedule.
func parseSchedule(file map[string]io.ReadCloser, stopIDs map[string]bool, opts Options) ([]model.Connection, error) {
	if file["calendar.txt"] == nil && file["calendar_dates.txt"] == nil {
		return nil, fmt.Errorf("missing calendar.txt and calendar_dates.txt")
	}
	for _, required := range []string{"routes.txt", "stops.txt", "trips.txt", "stop_times.txt"} {
		if file[required] == nil {
			return nil, fmt.Errorf("missing %s", required)
		}
	}

	routes, err := ParseRoutes(file["routes.txt"])
	if err != nil {
		return nil, fmt.Errorf("parsing routes.txt: %w", err)
	}

	calendars := []model.Calendar{}
	if file["calendar.txt"] != nil {
		calendars, err = ParseCalendar(file["calendar.txt"])
		if err != nil {
			return nil, fmt.Errorf("parsing calendar.txt: %w", err)
		}
	}
	calendarDates := []model.CalendarDate{}
	if file["calendar_dates.txt"] != nil {
		calendarDates, err = ParseCalendarDates(file["calendar_dates.txt"])
		if err != nil {
			return nil, fmt.Errorf("parsing calendar_dates.txt: %w", err)
		}
	}

	services := map[string]bool{}
	for _, c := range calendars {
		services[c.ServiceID] = true
	}
	for _, cd := range calendarDates {
		services[cd.ServiceID] = true
	}

	trips, err := ParseTrips(file["trips.txt"], routes, services)
	if err != nil {
		return nil, fmt.Errorf("parsing trips.txt: %w", err)
	}

	stopTimes, err := ParseStopTimes(file["stop_times.txt"], trips, stopIDs)
	if err != nil {
		return nil, fmt.Errorf("parsing stop_times.txt: %w", err)
	}

	// Drop trips not running on the service date, or on routes
	// of unwanted types.
	var active map[string]bool
	if opts.ServiceDate != "" {
		active, err = ActiveServices(calendars, calendarDates, opts.ServiceDate)
		if err != nil {
			return nil, fmt.Errorf("computing active services: %w", err)
		}
	}
	routeTypes := map[model.RouteType]bool{}
	for _, t := range opts.RouteTypes {
		routeTypes[t] = true
	}

	included := stopTimes[:0]
	for _, st := range stopTimes {
		trip := trips[st.TripID]
		if active != nil && !active[trip.ServiceID] {
			continue
		}
		if len(routeTypes) > 0 && !routeTypes[routes[trip.RouteID].Type] {
			continue
		}
		included = append(included, st)
	}

	conns, err := ConnectionsFromStopTimes(included)
	if err != nil {
		return nil, fmt.Errorf("building connections: %w", err)
	}

	return conns, nil
}
