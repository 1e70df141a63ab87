package csa

import (
	"fmt"

	"tidbyt.dev/csa/model"
)

// Label is a (departure time, arrival time at target, ...) tuple
// describing one way of reaching the target from a stop. L is the
// concrete label type, so that dominance and the copy operations
// stay type safe.
//
// Dominance is non-strict in every dimension: equal labels dominate
// each other, which is what lets duplicates collapse.
type Label[L any] interface {
	Departure() float64
	Arrival() float64
	Duration() float64
	Boardings() int
	FirstLegWalk() bool

	// Dominance as used during the scan. A label whose first leg
	// is a walk never dominates one that boards a vehicle.
	Dominates(other L) bool

	// Dominance used when finalizing profiles, ignoring the first
	// leg flag.
	DominatesIgnoringFirstLeg(other L) bool

	// Structural equality, ignoring back-pointers.
	Equal(other L) bool

	WithDeparture(departure float64) L
	WithArrival(arrival float64) L

	// Label for boarding or walking c and continuing as this
	// label does from c's arrival stop.
	Extend(c *model.Connection, boarding bool) L

	// Label for walking to the departure stop of this label.
	WithWalkAdded(walk *model.Connection) L

	// Label for walking directly to the target. Called on the
	// zero value. walk may be nil when the stop is a target.
	DirectWalk(departure, duration float64, walk *model.Connection) L
}

// Departure and arrival only.
type TimeLabel struct {
	DepartureTime     float64
	ArrivalTimeTarget float64
	FirstLegIsWalk    bool
}

func (l TimeLabel) Departure() float64     { return l.DepartureTime }
func (l TimeLabel) Arrival() float64       { return l.ArrivalTimeTarget }
func (l TimeLabel) Duration() float64      { return l.ArrivalTimeTarget - l.DepartureTime }
func (l TimeLabel) Boardings() int         { return 0 }
func (l TimeLabel) FirstLegWalk() bool     { return l.FirstLegIsWalk }
func (l TimeLabel) Equal(o TimeLabel) bool { return l == o }

func (l TimeLabel) Dominates(o TimeLabel) bool {
	return firstLegOK(l.FirstLegIsWalk, o.FirstLegIsWalk) && l.DominatesIgnoringFirstLeg(o)
}

func (l TimeLabel) DominatesIgnoringFirstLeg(o TimeLabel) bool {
	return l.DepartureTime >= o.DepartureTime && l.ArrivalTimeTarget <= o.ArrivalTimeTarget
}

func (l TimeLabel) WithDeparture(t float64) TimeLabel {
	l.DepartureTime = t
	return l
}

func (l TimeLabel) WithArrival(t float64) TimeLabel {
	l.ArrivalTimeTarget = t
	return l
}

func (l TimeLabel) Extend(c *model.Connection, boarding bool) TimeLabel {
	return TimeLabel{c.DepartureTime, l.ArrivalTimeTarget, c.IsWalk}
}

func (l TimeLabel) WithWalkAdded(walk *model.Connection) TimeLabel {
	return TimeLabel{walk.DepartureTime, l.ArrivalTimeTarget, true}
}

func (TimeLabel) DirectWalk(departure, duration float64, _ *model.Connection) TimeLabel {
	return TimeLabel{departure, departure + duration, true}
}

func (l TimeLabel) String() string {
	return fmt.Sprintf("(%g, %g%s)", l.DepartureTime, l.ArrivalTimeTarget, walkSuffix(l.FirstLegIsWalk))
}

// Adds the number of vehicles boarded.
type BoardingsLabel struct {
	DepartureTime     float64
	ArrivalTimeTarget float64
	NBoardings        int
	FirstLegIsWalk    bool
}

func (l BoardingsLabel) Departure() float64          { return l.DepartureTime }
func (l BoardingsLabel) Arrival() float64            { return l.ArrivalTimeTarget }
func (l BoardingsLabel) Duration() float64           { return l.ArrivalTimeTarget - l.DepartureTime }
func (l BoardingsLabel) Boardings() int              { return l.NBoardings }
func (l BoardingsLabel) FirstLegWalk() bool          { return l.FirstLegIsWalk }
func (l BoardingsLabel) Equal(o BoardingsLabel) bool { return l == o }

func (l BoardingsLabel) Dominates(o BoardingsLabel) bool {
	return firstLegOK(l.FirstLegIsWalk, o.FirstLegIsWalk) && l.DominatesIgnoringFirstLeg(o)
}

func (l BoardingsLabel) DominatesIgnoringFirstLeg(o BoardingsLabel) bool {
	return l.DepartureTime >= o.DepartureTime &&
		l.ArrivalTimeTarget <= o.ArrivalTimeTarget &&
		l.NBoardings <= o.NBoardings
}

func (l BoardingsLabel) WithDeparture(t float64) BoardingsLabel {
	l.DepartureTime = t
	return l
}

func (l BoardingsLabel) WithArrival(t float64) BoardingsLabel {
	l.ArrivalTimeTarget = t
	return l
}

func (l BoardingsLabel) Extend(c *model.Connection, boarding bool) BoardingsLabel {
	n := l.NBoardings
	if boarding {
		n++
	}
	return BoardingsLabel{c.DepartureTime, l.ArrivalTimeTarget, n, c.IsWalk}
}

func (l BoardingsLabel) WithWalkAdded(walk *model.Connection) BoardingsLabel {
	return BoardingsLabel{walk.DepartureTime, l.ArrivalTimeTarget, l.NBoardings, true}
}

func (BoardingsLabel) DirectWalk(departure, duration float64, _ *model.Connection) BoardingsLabel {
	return BoardingsLabel{departure, departure + duration, 0, true}
}

func (l BoardingsLabel) String() string {
	return fmt.Sprintf(
		"(%g, %g, %d%s)",
		l.DepartureTime, l.ArrivalTimeTarget, l.NBoardings, walkSuffix(l.FirstLegIsWalk),
	)
}

// Full journey label. Tracks time spent moving (in vehicles or on
// foot) as an additional criterion, and links back to the connection
// that produced it and the label it continues with, so the journey
// can be reconstructed.
//
// Labels are immutable once created. Previous always points to a
// label created earlier in the scan, so the chains never form
// cycles.
type JourneyLabel struct {
	DepartureTime     float64
	ArrivalTimeTarget float64
	NBoardings        int
	MovementDuration  float64
	FirstLegIsWalk    bool

	Connection *model.Connection
	Previous   *JourneyLabel
}

func (l *JourneyLabel) Departure() float64 { return l.DepartureTime }
func (l *JourneyLabel) Arrival() float64   { return l.ArrivalTimeTarget }
func (l *JourneyLabel) Duration() float64  { return l.ArrivalTimeTarget - l.DepartureTime }
func (l *JourneyLabel) Boardings() int     { return l.NBoardings }
func (l *JourneyLabel) FirstLegWalk() bool { return l.FirstLegIsWalk }

func (l *JourneyLabel) Equal(o *JourneyLabel) bool {
	return l.DepartureTime == o.DepartureTime &&
		l.ArrivalTimeTarget == o.ArrivalTimeTarget &&
		l.NBoardings == o.NBoardings &&
		l.MovementDuration == o.MovementDuration &&
		l.FirstLegIsWalk == o.FirstLegIsWalk
}

func (l *JourneyLabel) Dominates(o *JourneyLabel) bool {
	return firstLegOK(l.FirstLegIsWalk, o.FirstLegIsWalk) && l.DominatesIgnoringFirstLeg(o)
}

func (l *JourneyLabel) DominatesIgnoringFirstLeg(o *JourneyLabel) bool {
	return l.DepartureTime >= o.DepartureTime &&
		l.ArrivalTimeTarget <= o.ArrivalTimeTarget &&
		l.NBoardings <= o.NBoardings &&
		l.MovementDuration <= o.MovementDuration
}

func (l *JourneyLabel) WithDeparture(t float64) *JourneyLabel {
	c := *l
	c.DepartureTime = t
	return &c
}

func (l *JourneyLabel) WithArrival(t float64) *JourneyLabel {
	c := *l
	c.ArrivalTimeTarget = t
	return &c
}

func (l *JourneyLabel) Extend(c *model.Connection, boarding bool) *JourneyLabel {
	n := l.NBoardings
	if boarding {
		n++
	}
	return &JourneyLabel{
		DepartureTime:     c.DepartureTime,
		ArrivalTimeTarget: l.ArrivalTimeTarget,
		NBoardings:        n,
		MovementDuration:  l.MovementDuration + c.Duration(),
		FirstLegIsWalk:    c.IsWalk,
		Connection:        c,
		Previous:          l,
	}
}

func (l *JourneyLabel) WithWalkAdded(walk *model.Connection) *JourneyLabel {
	return &JourneyLabel{
		DepartureTime:     walk.DepartureTime,
		ArrivalTimeTarget: l.ArrivalTimeTarget,
		NBoardings:        l.NBoardings,
		MovementDuration:  l.MovementDuration + walk.Duration(),
		FirstLegIsWalk:    true,
		Connection:        walk,
		Previous:          l,
	}
}

func (*JourneyLabel) DirectWalk(departure, duration float64, walk *model.Connection) *JourneyLabel {
	return &JourneyLabel{
		DepartureTime:     departure,
		ArrivalTimeTarget: departure + duration,
		MovementDuration:  duration,
		FirstLegIsWalk:    true,
		Connection:        walk,
	}
}

func (l *JourneyLabel) String() string {
	return fmt.Sprintf(
		"(%g, %g, %d, %g%s)",
		l.DepartureTime, l.ArrivalTimeTarget, l.NBoardings, l.MovementDuration, walkSuffix(l.FirstLegIsWalk),
	)
}

// A label whose first leg is a walk must not dominate one that
// boards, or walks could be chained.
func firstLegOK(aWalk, bWalk bool) bool {
	return !aWalk || bWalk
}

func walkSuffix(walk bool) string {
	if walk {
		return ", walk"
	}
	return ""
}

// Smallest arrival time among labels, Inf if there are none.
func MinArrival[L Label[L]](labels []L) float64 {
	best := model.Inf
	for _, l := range labels {
		if l.Arrival() < best {
			best = l.Arrival()
		}
	}
	return best
}
