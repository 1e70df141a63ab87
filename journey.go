package csa

import (
	"tidbyt.dev/csa/model"
)

// A leg is a maximal run of connections on the same trip, or a single
// walk.
type Leg struct {
	DepartureStop string
	ArrivalStop   string
	DepartureTime float64
	ArrivalTime   float64
	TripID        string
	IsWalk        bool

	// Sequence numbers of the first and last connection.
	FirstSeq int
	LastSeq  int
}

func (l Leg) Duration() float64 {
	return l.ArrivalTime - l.DepartureTime
}

// Journey is the itinerary described by a JourneyLabel, recovered by
// following its chain of previous labels.
type Journey struct {
	label       *JourneyLabel
	connections []model.Connection
	legs        []Leg
}

func NewJourney(label *JourneyLabel) *Journey {
	connections := []model.Connection{}
	for l := label; l != nil; l = l.Previous {
		if l.Connection != nil {
			connections = append(connections, *l.Connection)
		}
	}

	legs := []Leg{}
	for _, c := range connections {
		if n := len(legs); n > 0 && !c.IsWalk && !legs[n-1].IsWalk && legs[n-1].TripID == c.TripID {
			legs[n-1].ArrivalStop = c.ArrivalStop
			legs[n-1].ArrivalTime = c.ArrivalTime
			legs[n-1].LastSeq = c.Seq
			continue
		}
		legs = append(legs, Leg{
			DepartureStop: c.DepartureStop,
			ArrivalStop:   c.ArrivalStop,
			DepartureTime: c.DepartureTime,
			ArrivalTime:   c.ArrivalTime,
			TripID:        c.TripID,
			IsWalk:        c.IsWalk,
			FirstSeq:      c.Seq,
			LastSeq:       c.Seq,
		})
	}

	return &Journey{
		label:       label,
		connections: connections,
		legs:        legs,
	}
}

func (j *Journey) Label() *JourneyLabel { return j.label }

// Connections in travel order.
func (j *Journey) Connections() []model.Connection { return j.connections }

func (j *Journey) Legs() []Leg { return j.legs }

func (j *Journey) DepartureTime() float64 { return j.label.DepartureTime }
func (j *Journey) ArrivalTime() float64   { return j.label.ArrivalTimeTarget }
func (j *Journey) TravelTime() float64    { return j.label.Duration() }

// Origin stop. Empty for the trivial journey at a target.
func (j *Journey) Origin() string {
	if len(j.legs) == 0 {
		return ""
	}
	return j.legs[0].DepartureStop
}

func (j *Journey) Destination() string {
	if len(j.legs) == 0 {
		return ""
	}
	return j.legs[len(j.legs)-1].ArrivalStop
}

// Number of vehicles boarded.
func (j *Journey) Boardings() int {
	n := 0
	for _, l := range j.legs {
		if !l.IsWalk {
			n++
		}
	}
	return n
}

func (j *Journey) Transfers() int {
	return max(0, j.Boardings()-1)
}

// Time spent waiting at stops between consecutive legs.
func (j *Journey) WaitingTimes() []float64 {
	waits := []float64{}
	for i := 1; i < len(j.legs); i++ {
		waits = append(waits, j.legs[i].DepartureTime-j.legs[i-1].ArrivalTime)
	}
	return waits
}

func (j *Journey) TotalWaitingTime() float64 {
	total := 0.0
	for _, w := range j.WaitingTimes() {
		total += w
	}
	return total
}

func (j *Journey) WalkDuration() float64 {
	total := 0.0
	for _, l := range j.legs {
		if l.IsWalk {
			total += l.Duration()
		}
	}
	return total
}

func (j *Journey) InVehicleDuration() float64 {
	total := 0.0
	for _, l := range j.legs {
		if !l.IsWalk {
			total += l.Duration()
		}
	}
	return total
}

// Stops visited at leg boundaries, origin first.
func (j *Journey) Stops() []string {
	if len(j.legs) == 0 {
		return []string{}
	}
	stops := []string{j.legs[0].DepartureStop}
	for _, l := range j.legs {
		stops = append(stops, l.ArrivalStop)
	}
	return stops
}

// (alight, board) stop pairs of each transfer between vehicles. The
// stops differ when the transfer involves a walk.
func (j *Journey) TransferStopPairs() [][2]string {
	pairs := [][2]string{}
	alight := ""
	for _, l := range j.legs {
		if l.IsWalk {
			continue
		}
		if alight != "" {
			pairs = append(pairs, [2]string{alight, l.DepartureStop})
		}
		alight = l.ArrivalStop
	}
	return pairs
}
