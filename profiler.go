package csa

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"tidbyt.dev/csa/model"
)

const (
	DefaultWalkSpeed      = 1.5 // meters per second
	DefaultTransferMargin = 0.0

	// How often the scan checks for cancellation.
	cancelCheckInterval = 4096
)

// Observer is notified of profiler progress. Used for metrics.
type Observer interface {
	RunStarted(connections int, pseudoConnections int)
	RunFinished(elapsed time.Duration, err error)
	ProfileFinalized(labels int)
}

type nopObserver struct{}

func (nopObserver) RunStarted(int, int)              {}
func (nopObserver) RunFinished(time.Duration, error) {}
func (nopObserver) ProfileFinalized(int)             {}

type profilerOptions struct {
	transferMargin float64
	walkSpeed      float64
	start          float64
	end            float64
	windowSet      bool
	simple         bool
	logger         *slog.Logger
	observer       Observer
}

type ProfilerOption func(*profilerOptions)

// Minimum time between arriving at a stop and boarding a different
// vehicle there. Walks leave on arrival; the margin applies where
// they end.
func WithTransferMargin(seconds float64) ProfilerOption {
	return func(o *profilerOptions) { o.transferMargin = seconds }
}

// Walking speed in meters per second.
func WithWalkSpeed(metersPerSecond float64) ProfilerOption {
	return func(o *profilerOptions) { o.walkSpeed = metersPerSecond }
}

// Limits the arrivals for which walking transfers are generated.
// Defaults to the departure range of the connections.
func WithTimeWindow(start, end float64) ProfilerOption {
	return func(o *profilerOptions) {
		o.start = start
		o.end = end
		o.windowSet = true
	}
}

// Use single criterion profiles. Only valid with TimeLabel.
func WithSimpleProfiles() ProfilerOption {
	return func(o *profilerOptions) { o.simple = true }
}

func WithLogger(logger *slog.Logger) ProfilerOption {
	return func(o *profilerOptions) { o.logger = logger }
}

func WithObserver(observer Observer) ProfilerOption {
	return func(o *profilerOptions) { o.observer = observer }
}

type profilerState int

const (
	stateIdle profilerState = iota
	stateRunning
	stateDone
)

// Profiler computes, for every stop, the Pareto-optimal ways of
// reaching a set of target stops.
//
// Connections are scanned once, latest departure first. Each
// connection is extended with the labels available at its arrival
// stop and with the labels of staying aboard its trip, and the result
// is added to the profile of its departure stop.
type Profiler[L Label[L]] struct {
	opts    profilerOptions
	conns   []model.Connection
	walk    *model.WalkNetwork
	targets []string

	scanned  []model.Connection
	profiles map[string]Profile[L]
	trips    map[string][]L
	state    profilerState
}

// Sets up a profiler. conns must be sorted by decreasing departure
// time, which is verified when the profiler is run. The slice is not
// modified.
func NewProfiler[L Label[L]](
	conns []model.Connection,
	walk *model.WalkNetwork,
	targets []string,
	options ...ProfilerOption,
) *Profiler[L] {
	opts := profilerOptions{
		transferMargin: DefaultTransferMargin,
		walkSpeed:      DefaultWalkSpeed,
		logger:         slog.New(slog.DiscardHandler),
		observer:       nopObserver{},
	}
	for _, o := range options {
		o(&opts)
	}

	if walk == nil {
		walk = model.NewWalkNetwork()
	}

	return &Profiler[L]{
		opts:    opts,
		conns:   conns,
		walk:    walk,
		targets: targets,
	}
}

func (p *Profiler[L]) Run() error {
	return p.RunContext(context.Background())
}

// Runs the scan. A profiler can only be run once, and must be
// discarded if the run fails.
func (p *Profiler[L]) RunContext(ctx context.Context) error {
	if p.state != stateIdle {
		return ErrAlreadyRun
	}
	p.state = stateRunning

	started := time.Now()
	err := p.run(ctx)
	p.opts.observer.RunFinished(time.Since(started), err)
	p.state = stateDone

	if err != nil {
		p.opts.logger.Error("profiler run failed", "error", err)
		return err
	}

	p.opts.logger.Debug(
		"profiler run complete",
		"connections", len(p.scanned),
		"stops", len(p.profiles),
		"elapsed", time.Since(started),
	)
	return nil
}

func (p *Profiler[L]) run(ctx context.Context) error {
	for i := 1; i < len(p.conns); i++ {
		if p.conns[i].DepartureTime > p.conns[i-1].DepartureTime {
			return errors.Wrapf(ErrOutOfOrder, "connection %d %s", i, p.conns[i])
		}
	}

	if p.opts.walkSpeed <= 0 {
		return errors.Errorf("walk speed must be positive, got %g", p.opts.walkSpeed)
	}

	start, end := p.opts.start, p.opts.end
	if !p.opts.windowSet {
		start, end = departureRange(p.conns)
	}

	vehicle := make([]model.Connection, len(p.conns))
	copy(vehicle, p.conns)

	pseudo := GeneratePseudoConnections(vehicle, p.walk, p.opts.transferMargin, p.opts.walkSpeed, start, end)
	departures := newDepartureIndex(vehicle, pseudo)
	for i := range vehicle {
		vehicle[i].ArrivalStopNextDepartureTime = departures.next(
			vehicle[i].ArrivalStop,
			vehicle[i].ArrivalTime+p.opts.transferMargin,
		)
	}
	p.scanned = MergeConnections(vehicle, pseudo)

	p.opts.observer.RunStarted(len(vehicle), len(pseudo))
	p.opts.logger.Debug(
		"starting scan",
		"connections", len(vehicle),
		"pseudo_connections", len(pseudo),
		"window_start", start,
		"window_end", end,
	)

	if err := p.createProfiles(departures); err != nil {
		return err
	}

	p.trips = map[string][]L{}
	for i := range p.scanned {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "scan interrupted")
			}
		}
		if err := p.scan(&p.scanned[i]); err != nil {
			return err
		}
	}

	return p.finalize()
}

func (p *Profiler[L]) scan(c *model.Connection) error {
	boarding := !c.IsWalk

	// A walk cannot be followed by another walk, so walking
	// connections only continue with labels that board.
	profile := p.profiles[c.ArrivalStop]
	available := profile.Evaluate(
		c.ArrivalStopNextDepartureTime,
		!c.IsWalk,
		c.ArrivalTime,
	)

	// The transfer margin is charged where a walk ends, so walks
	// can leave as soon as the vehicle arrives.
	if !c.IsWalk && c.ArrivalStopNextDepartureTime > c.ArrivalTime {
		available = MergeParetoFrontiers(available, profile.EvaluateWalks(c.ArrivalTime))
	}
	transfer := make([]L, 0, len(available))
	for _, l := range available {
		transfer = append(transfer, l.Extend(c, boarding))
	}
	labels := ComputeParetoFront(transfer)

	if !c.IsWalk {
		onTrip := p.trips[c.TripID]
		stay := make([]L, 0, len(onTrip))
		for _, l := range onTrip {
			stay = append(stay, l.Extend(c, false))
		}
		labels = MergeParetoFrontiers(labels, stay)
		if len(labels) > 0 {
			p.trips[c.TripID] = labels
		}
	}

	err := p.profiles[c.DepartureStop].Update(labels, c.DepartureTime)
	if err != nil {
		return errors.Wrapf(err, "updating %s with %s", c.DepartureStop, c)
	}
	return nil
}

func (p *Profiler[L]) createProfiles(departures departureIndex) error {
	stops := map[string]bool{}
	for _, c := range p.scanned {
		stops[c.DepartureStop] = true
		stops[c.ArrivalStop] = true
	}
	for _, s := range p.walk.Stops() {
		stops[s] = true
	}

	isTarget := map[string]bool{}
	for _, t := range p.targets {
		isTarget[t] = true
		stops[t] = true
	}

	p.profiles = make(map[string]Profile[L], len(stops))
	for stop := range stops {
		target, duration := stop, 0.0
		if !isTarget[stop] {
			target, duration = p.nearestTarget(stop, isTarget)
		}

		if p.opts.simple {
			profile, ok := any(NewSimpleProfile(stop, target, duration)).(Profile[L])
			if !ok {
				return errors.New("simple profiles require TimeLabel")
			}
			p.profiles[stop] = profile
			continue
		}

		p.profiles[stop] = NewMultiObjectiveProfile[L](stop, target, duration, departures.descending(stop))
	}

	return nil
}

// Closest target in the walk network, and the time it takes to walk
// there. Inf if no target is a neighbor.
func (p *Profiler[L]) nearestTarget(stop string, isTarget map[string]bool) (string, float64) {
	target, duration := "", model.Inf
	for _, n := range p.walk.Neighbors(stop) {
		if !isTarget[n.Stop] {
			continue
		}
		d := n.Distance / p.opts.walkSpeed
		if d < duration || (d == duration && n.Stop < target) {
			target, duration = n.Stop, d
		}
	}
	return target, duration
}

func (p *Profiler[L]) finalize() error {
	stops := make([]string, 0, len(p.profiles))
	for stop := range p.profiles {
		stops = append(stops, stop)
	}
	sort.Strings(stops)

	for _, stop := range stops {
		neighbors := p.walk.Neighbors(stop)
		bags := make([][]L, 0, len(neighbors))
		durations := make([]float64, 0, len(neighbors))
		pairs := make([][2]string, 0, len(neighbors))
		for _, n := range neighbors {
			bags = append(bags, p.profiles[n.Stop].RealConnectionLabels())
			durations = append(durations, n.Distance/p.opts.walkSpeed)
			pairs = append(pairs, [2]string{stop, n.Stop})
		}

		profile := p.profiles[stop]
		if err := profile.Finalize(bags, durations, pairs); err != nil {
			return errors.Wrapf(err, "finalizing %s", stop)
		}
		final, _ := profile.FinalOptimalLabels()
		p.opts.observer.ProfileFinalized(len(final))
	}

	return nil
}

// Profiles per stop, once run.
func (p *Profiler[L]) StopProfiles() map[string]Profile[L] {
	return p.profiles
}

// Final labels of a stop. Returns ErrNotRun until a run has completed.
func (p *Profiler[L]) FinalLabels(stop string) ([]L, error) {
	if p.state != stateDone || p.profiles == nil {
		return nil, ErrNotRun
	}
	profile, ok := p.profiles[stop]
	if !ok {
		return []L{}, nil
	}
	return profile.FinalOptimalLabels()
}

// The scanned connections, pseudo connections included, in scan
// order.
func (p *Profiler[L]) Connections() []model.Connection {
	return p.scanned
}

func (p *Profiler[L]) Targets() []string {
	return p.targets
}

func (p *Profiler[L]) TransferMargin() float64 { return p.opts.transferMargin }
func (p *Profiler[L]) WalkSpeed() float64      { return p.opts.walkSpeed }

func departureRange(conns []model.Connection) (float64, float64) {
	if len(conns) == 0 {
		return 0, 0
	}
	// Sorted descending
	return conns[len(conns)-1].DepartureTime, conns[0].DepartureTime
}
