package storage

import (
	"time"
)

// Storage persists the journeys found by routing runs. Each run has
// a metadata record, and its journeys are accessed via a
// JourneyReader/JourneyWriter pair.
type Storage interface {
	// Retrieves all run metadata records matching the given
	// filter, most recent first.
	ListRuns(filter ListRunsFilter) ([]*RunMetadata, error)

	// Writes a RunMetadata record. If a record with the same ID
	// exists, it is updated.
	WriteRunMetadata(run *RunMetadata) error

	// Deletes a run's metadata and journeys.
	DeleteRun(id string) error

	// Gets a reader for the journeys of the given run.
	GetReader(run string) (JourneyReader, error)

	// Gets a writer for the journeys of the given run. Any
	// journeys previously written for the run are discarded.
	GetWriter(run string) (JourneyWriter, error)
}

type ListRunsFilter struct {
	// If set, only include runs over the network with this hash.
	NetworkHash string
}

// Parameters and bookkeeping of a routing run.
type RunMetadata struct {
	ID             string
	NetworkHash    string
	NetworkURL     string
	CreatedAt      time.Time
	Targets        []string
	TransferMargin float64
	WalkSpeed      float64
	WindowStart    float64
	WindowEnd      float64
	Journeys       int
}

// A Pareto-optimal journey from Origin to Destination. FastestPath
// is set if the journey is also optimal when only departure and
// arrival time are considered.
type Journey struct {
	ID            int
	Origin        string
	Destination   string
	DepartureTime float64
	ArrivalTime   float64
	Boardings     int
	FastestPath   bool
	Legs          []Leg
}

// A vehicle ride or a walk. Walks carry the walk trip ID.
type Leg struct {
	DepartureStop string
	ArrivalStop   string
	DepartureTime float64
	ArrivalTime   float64
	TripID        string
	Seq           int
}

// Writes journeys for a single run.
//
// Runs can produce lots of journeys, so BeginJourneys() and
// EndJourneys() are called before and after all calls to
// WriteJourney(), allowing transactions/batching/whathaveyou.
type JourneyWriter interface {
	BeginJourneys() error

	// Writes a journey and its legs. Journey IDs are assigned
	// by the writer, in order of writing, starting at 1.
	WriteJourney(journey *Journey) error

	EndJourneys() error
	Close() error
}

type JourneyReader interface {
	// Journeys matching the filter, ordered by origin,
	// destination, departure time and ID. Legs are included.
	Journeys(filter JourneyFilter) ([]*Journey, error)
}

// Filter for Journeys()
type JourneyFilter struct {
	Origin      string
	Destination string

	// Only include journeys that are on the fastest path.
	FastestPathOnly bool
}
