package model

import (
	"fmt"
	"math"
	"sort"
)

// Holds all external facing types and constants.

// Unreachable arrival times and durations.
var Inf = math.Inf(1)

const (
	// Trip ID and sequence number carried by walking connections.
	WalkTripID = "__walk__"
	WalkSeq    = -1
)

// A single directed hop between two stops. Either a scheduled
// vehicle leg, or a synthetic walk between two stops that are
// neighbors in the walk network.
//
// Times are seconds on an arbitrary but shared axis, typically
// seconds since midnight of the service day.
type Connection struct {
	DepartureStop string
	ArrivalStop   string
	DepartureTime float64
	ArrivalTime   float64
	TripID        string
	Seq           int
	IsWalk        bool

	// Earliest departure from ArrivalStop that can be reached
	// after arriving with this connection, transfer margin
	// included. Inf if there is none.
	ArrivalStopNextDepartureTime float64
}

// Creates a vehicle connection.
func NewConnection(from, to string, dep, arr float64, tripID string, seq int) Connection {
	return Connection{
		DepartureStop:                from,
		ArrivalStop:                  to,
		DepartureTime:                dep,
		ArrivalTime:                  arr,
		TripID:                       tripID,
		Seq:                          seq,
		ArrivalStopNextDepartureTime: Inf,
	}
}

// Creates a walking connection.
func NewWalkConnection(from, to string, dep, arr float64) Connection {
	return Connection{
		DepartureStop:                from,
		ArrivalStop:                  to,
		DepartureTime:                dep,
		ArrivalTime:                  arr,
		TripID:                       WalkTripID,
		Seq:                          WalkSeq,
		IsWalk:                       true,
		ArrivalStopNextDepartureTime: Inf,
	}
}

func (c *Connection) Duration() float64 {
	return c.ArrivalTime - c.DepartureTime
}

// Time spent at the arrival stop before the next possible
// departure.
func (c *Connection) WaitingTime() float64 {
	return c.ArrivalStopNextDepartureTime - c.ArrivalTime
}

func (c Connection) String() string {
	return fmt.Sprintf(
		"<%s->%s %g-%g trip=%s seq=%d walk=%t next=%g>",
		c.DepartureStop, c.ArrivalStop,
		c.DepartureTime, c.ArrivalTime,
		c.TripID, c.Seq, c.IsWalk,
		c.ArrivalStopNextDepartureTime,
	)
}

// Sorts connections by decreasing departure time. Ties are broken by
// trip and sequence, so the order is deterministic.
func SortConnectionsDescending(conns []Connection) {
	sort.SliceStable(conns, func(i, j int) bool {
		if conns[i].DepartureTime != conns[j].DepartureTime {
			return conns[i].DepartureTime > conns[j].DepartureTime
		}
		if conns[i].TripID != conns[j].TripID {
			return conns[i].TripID < conns[j].TripID
		}
		return conns[i].Seq > conns[j].Seq
	})
}

type Stop struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

type RouteType int16

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCable      RouteType = 5
	RouteTypeAerialLift RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

type Route struct {
	ID        string
	ShortName string
	Type      RouteType
}

type Trip struct {
	ID        string
	RouteID   string
	ServiceID string
}

// Arrival and Departure are seconds since noon minus 12h of the
// service day, so they may exceed 24h.
type StopTime struct {
	TripID       string
	StopID       string
	StopSequence uint32
	Arrival      float64
	Departure    float64
}

type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

type ExceptionType int8

const (
	ExceptionTypeAdded   ExceptionType = 1
	ExceptionTypeRemoved ExceptionType = 2
)

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType ExceptionType
}

// Undirected walking edge, distance in meters.
type WalkEdge struct {
	From     string
	To       string
	Distance float64
}

type WalkNeighbor struct {
	Stop     string
	Distance float64
}

// Undirected pedestrian graph between stops.
type WalkNetwork struct {
	adjacency map[string][]WalkNeighbor
	edges     int
}

func NewWalkNetwork(edges ...WalkEdge) *WalkNetwork {
	w := &WalkNetwork{adjacency: map[string][]WalkNeighbor{}}
	for _, e := range edges {
		w.AddEdge(e.From, e.To, e.Distance)
	}
	return w
}

// Adds an edge. If the edge already exists, the shorter distance is
// kept. Self loops are ignored.
func (w *WalkNetwork) AddEdge(from, to string, distance float64) {
	if from == to {
		return
	}
	if w.adjacency == nil {
		w.adjacency = map[string][]WalkNeighbor{}
	}
	if w.update(from, to, distance) {
		w.update(to, from, distance)
		return
	}
	w.adjacency[from] = append(w.adjacency[from], WalkNeighbor{to, distance})
	w.adjacency[to] = append(w.adjacency[to], WalkNeighbor{from, distance})
	w.edges++
}

func (w *WalkNetwork) update(from, to string, distance float64) bool {
	for i, n := range w.adjacency[from] {
		if n.Stop == to {
			if distance < n.Distance {
				w.adjacency[from][i].Distance = distance
			}
			return true
		}
	}
	return false
}

// Neighbors of a stop, in insertion order. Safe on a nil network.
func (w *WalkNetwork) Neighbors(stop string) []WalkNeighbor {
	if w == nil {
		return nil
	}
	return w.adjacency[stop]
}

// Walking distance between two stops, if they are adjacent.
func (w *WalkNetwork) Distance(from, to string) (float64, bool) {
	for _, n := range w.Neighbors(from) {
		if n.Stop == to {
			return n.Distance, true
		}
	}
	return 0, false
}

func (w *WalkNetwork) Stops() []string {
	if w == nil {
		return nil
	}
	stops := make([]string, 0, len(w.adjacency))
	for s := range w.adjacency {
		stops = append(stops, s)
	}
	sort.Strings(stops)
	return stops
}

func (w *WalkNetwork) NumEdges() int {
	if w == nil {
		return 0
	}
	return w.edges
}

// All edges, each reported once with From < To.
func (w *WalkNetwork) Edges() []WalkEdge {
	edges := []WalkEdge{}
	for _, from := range w.Stops() {
		for _, n := range w.adjacency[from] {
			if from < n.Stop {
				edges = append(edges, WalkEdge{from, n.Stop, n.Distance})
			}
		}
	}
	return edges
}
