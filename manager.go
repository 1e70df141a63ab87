package csa

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"tidbyt.dev/csa/downloader"
	"tidbyt.dev/csa/logging"
	"tidbyt.dev/csa/model"
	"tidbyt.dev/csa/parse"
	"tidbyt.dev/csa/publish"
	"tidbyt.dev/csa/storage"
)

const (
	DefaultNetworkTimeout  = 60 * time.Second
	DefaultNetworkMaxSize  = 800 << 20 // 800 MB
	DefaultNetworkCacheTTL = 12 * time.Hour
	DefaultWorkers         = 4
)

var (
	ErrNoTargets   = errors.New("no targets")
	ErrUnknownStop = errors.New("unknown stop")
)

// Manager loads networks, runs the profiler for sets of targets and
// persists the resulting journeys.
type Manager struct {
	NetworkTimeout  time.Duration
	NetworkMaxSize  int
	NetworkCacheTTL time.Duration
	Downloader      downloader.Downloader

	Logger   *slog.Logger
	Observer Observer

	// Optional. Journeys are published after they've been
	// written.
	Publisher publish.Publisher

	TimeNow func() time.Time

	storage storage.Storage
}

// Creates a new Manager on top of the given storage.
//
// Downloads are cached in memory by default.
func NewManager(s storage.Storage) *Manager {
	return &Manager{
		NetworkTimeout:  DefaultNetworkTimeout,
		NetworkMaxSize:  DefaultNetworkMaxSize,
		NetworkCacheTTL: DefaultNetworkCacheTTL,
		Downloader:      downloader.NewMemoryDownloader(),

		Logger:   slog.New(slog.DiscardHandler),
		Observer: nopObserver{},
		TimeNow:  time.Now,

		storage: s,
	}
}

// A parsed network and where it came from.
type LoadedNetwork struct {
	*parse.Network

	Source string
	Hash   string
}

// Loads a network from an http(s) URL, a zip archive or a directory.
// Headers are only used for downloads.
func (m *Manager) LoadNetwork(
	ctx context.Context,
	source string,
	headers map[string]string,
	opts parse.Options,
) (*LoadedNetwork, error) {

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		archive, err := m.Downloader.Fetch(ctx, source, headers, downloader.FetchOptions{
			Cache:    true,
			CacheTTL: m.NetworkCacheTTL,
			Timeout:  m.NetworkTimeout,
			MaxSize:  m.NetworkMaxSize,
		})
		if err != nil {
			return nil, fmt.Errorf("downloading network: %w", err)
		}
		if archive.Cached {
			m.Logger.Debug("network archive cached", "source", source, "retrieved_at", archive.RetrievedAt)
		}
		return m.parseArchive(source, archive.Body, archive.Hash, opts)
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("loading network: %w", err)
	}

	if !info.IsDir() {
		body, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("reading network: %w", err)
		}
		return m.parseArchive(source, body, downloader.HashBytes(body), opts)
	}

	hash, err := hashDir(source)
	if err != nil {
		return nil, fmt.Errorf("hashing network: %w", err)
	}
	network, err := parse.ParseNetworkDir(source, opts)
	if err != nil {
		return nil, fmt.Errorf("parsing network: %w", err)
	}
	m.logLoaded(source, hash, network)

	return &LoadedNetwork{Network: network, Source: source, Hash: hash}, nil
}

func (m *Manager) parseArchive(source string, body []byte, hash string, opts parse.Options) (*LoadedNetwork, error) {
	network, err := parse.ParseNetwork(body, opts)
	if err != nil {
		return nil, fmt.Errorf("parsing network: %w", err)
	}
	m.logLoaded(source, hash, network)

	return &LoadedNetwork{Network: network, Source: source, Hash: hash}, nil
}

func (m *Manager) logLoaded(source, hash string, network *parse.Network) {
	m.Logger.Info(
		"network loaded",
		"source", source,
		"hash", hash,
		"connections", len(network.Connections),
		"walk_edges", network.Walk.NumEdges(),
	)
}

// Hash of the regular files in a directory, by name and content.
func hashDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00", e.Name())
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

type RouteRequest struct {
	// Generated from the network hash if empty.
	RunID string

	// Each target is routed to independently.
	Targets []string

	TransferMargin float64
	WalkSpeed      float64

	// If both are zero, the departure range of the network's
	// connections is used.
	WindowStart float64
	WindowEnd   float64

	// Number of targets routed concurrently.
	Workers int
}

func (r RouteRequest) profilerOptions() []ProfilerOption {
	options := []ProfilerOption{
		WithTransferMargin(r.TransferMargin),
	}
	if r.WalkSpeed != 0 {
		options = append(options, WithWalkSpeed(r.WalkSpeed))
	}
	if r.WindowStart != 0 || r.WindowEnd != 0 {
		options = append(options, WithTimeWindow(r.WindowStart, r.WindowEnd))
	}
	return options
}

// Computes the Pareto-optimal journeys from every stop to each of the
// requested targets, and persists them as a run.
//
// Targets are profiled in parallel, one profiler each. Journeys are
// written once all targets are done, so a failed run leaves no
// journeys behind.
func (m *Manager) Route(ctx context.Context, network *LoadedNetwork, req RouteRequest) (*storage.RunMetadata, error) {
	if len(req.Targets) == 0 {
		return nil, ErrNoTargets
	}

	started := m.TimeNow()
	runID := req.RunID
	if runID == "" {
		runID = generateRunID(network.Hash, started)
	}
	logger := m.Logger.With("run", runID)

	workers := req.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	results := make([][]*storage.Journey, len(req.Targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, target := range req.Targets {
		g.Go(func() error {
			journeys, err := m.routeTarget(gctx, network, target, req, logger)
			if err != nil {
				return errors.Wrapf(err, "routing to %s", target)
			}
			results[i] = journeys
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.LogError(logger, "routing failed", err)
		return nil, err
	}

	n, err := m.writeJourneys(runID, results)
	if err != nil {
		return nil, fmt.Errorf("writing journeys: %w", err)
	}

	start, end := req.WindowStart, req.WindowEnd
	if start == 0 && end == 0 {
		start, end = departureRange(network.Connections)
	}
	walkSpeed := req.WalkSpeed
	if walkSpeed == 0 {
		walkSpeed = DefaultWalkSpeed
	}

	metadata := &storage.RunMetadata{
		ID:             runID,
		NetworkHash:    network.Hash,
		NetworkURL:     network.Source,
		CreatedAt:      started.UTC(),
		Targets:        append([]string{}, req.Targets...),
		TransferMargin: req.TransferMargin,
		WalkSpeed:      walkSpeed,
		WindowStart:    start,
		WindowEnd:      end,
		Journeys:       n,
	}
	if err := m.storage.WriteRunMetadata(metadata); err != nil {
		return nil, fmt.Errorf("writing run metadata: %w", err)
	}

	if m.Publisher != nil {
		if err := m.publish(ctx, runID, results); err != nil {
			return nil, fmt.Errorf("publishing journeys: %w", err)
		}
	}

	logging.LogOperation(
		logger,
		"run complete",
		slog.Int("targets", len(req.Targets)),
		slog.Int("journeys", n),
		slog.Duration("duration", m.TimeNow().Sub(started)),
	)

	return metadata, nil
}

func generateRunID(hash string, t time.Time) string {
	prefix := "run"
	if len(hash) >= 12 {
		prefix = hash[:12]
	}
	return fmt.Sprintf("%s-%d", prefix, t.UnixNano())
}

func (m *Manager) routeTarget(
	ctx context.Context,
	network *LoadedNetwork,
	target string,
	req RouteRequest,
	logger *slog.Logger,
) ([]*storage.Journey, error) {

	options := append(
		req.profilerOptions(),
		WithLogger(logger.With("target", target)),
		WithObserver(m.Observer),
	)
	p := NewProfiler[*JourneyLabel](network.Connections, network.Walk, []string{target}, options...)
	if err := p.RunContext(ctx); err != nil {
		return nil, err
	}

	origins := make([]string, 0, len(p.StopProfiles()))
	for stop := range p.StopProfiles() {
		if stop != target {
			origins = append(origins, stop)
		}
	}
	sort.Strings(origins)

	journeys := []*storage.Journey{}
	for _, origin := range origins {
		labels, err := p.FinalLabels(origin)
		if err != nil {
			return nil, err
		}
		journeys = append(journeys, journeysFromLabels(origin, target, labels)...)
	}

	return journeys, nil
}

// Converts the final labels of an origin to storage journeys, sorted
// by departure time. A journey is flagged as a fastest path if it's
// on the departure/arrival time Pareto front.
func journeysFromLabels(origin, target string, labels []*JourneyLabel) []*storage.Journey {
	fastest := map[*JourneyLabel]bool{}
	for _, l := range FastestParetoFront(labels) {
		fastest[l] = true
	}

	sorted := append([]*JourneyLabel{}, labels...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.DepartureTime != b.DepartureTime {
			return a.DepartureTime < b.DepartureTime
		}
		if a.ArrivalTimeTarget != b.ArrivalTimeTarget {
			return a.ArrivalTimeTarget < b.ArrivalTimeTarget
		}
		return a.NBoardings < b.NBoardings
	})

	journeys := make([]*storage.Journey, 0, len(sorted))
	for _, l := range sorted {
		legs := []storage.Leg{}
		for _, leg := range NewJourney(l).Legs() {
			legs = append(legs, storage.Leg{
				DepartureStop: leg.DepartureStop,
				ArrivalStop:   leg.ArrivalStop,
				DepartureTime: leg.DepartureTime,
				ArrivalTime:   leg.ArrivalTime,
				TripID:        leg.TripID,
				Seq:           leg.FirstSeq,
			})
		}
		journeys = append(journeys, &storage.Journey{
			Origin:        origin,
			Destination:   target,
			DepartureTime: l.DepartureTime,
			ArrivalTime:   l.ArrivalTimeTarget,
			Boardings:     l.NBoardings,
			FastestPath:   fastest[l],
			Legs:          legs,
		})
	}

	return journeys
}

type journeyCounter interface {
	JourneysWrittenAdd(n int)
}

func (m *Manager) writeJourneys(runID string, results [][]*storage.Journey) (int, error) {
	writer, err := m.storage.GetWriter(runID)
	if err != nil {
		return 0, fmt.Errorf("getting writer: %w", err)
	}
	defer logging.SafeCloseWithLogging(writer, m.Logger, "journey writer")

	if err := writer.BeginJourneys(); err != nil {
		return 0, err
	}
	n := 0
	for _, journeys := range results {
		for _, j := range journeys {
			if err := writer.WriteJourney(j); err != nil {
				return 0, err
			}
			n++
		}
	}
	if err := writer.EndJourneys(); err != nil {
		return 0, err
	}

	if c, ok := m.Observer.(journeyCounter); ok {
		c.JourneysWrittenAdd(n)
	}

	return n, nil
}

func (m *Manager) publish(ctx context.Context, runID string, results [][]*storage.Journey) error {
	for _, journeys := range results {
		for _, j := range journeys {
			if err := m.Publisher.PublishJourney(ctx, runID, j); err != nil {
				return err
			}
		}
	}
	return nil
}

type ProfileRequest struct {
	Origin string
	Target string

	TransferMargin float64
	WalkSpeed      float64

	// If both are zero, the departure range of the network's
	// connections is used.
	WindowStart float64
	WindowEnd   float64
}

// Time-only profile of a single origin/target pair, with summary
// statistics over the window.
func (m *Manager) Profile(ctx context.Context, network *LoadedNetwork, req ProfileRequest) (ProfileSummary, []TimeLabel, error) {
	if req.Target == "" {
		return ProfileSummary{}, nil, ErrNoTargets
	}
	if !network.hasStop(req.Origin) {
		return ProfileSummary{}, nil, errors.Wrapf(ErrUnknownStop, "origin %s", req.Origin)
	}

	rr := RouteRequest{
		TransferMargin: req.TransferMargin,
		WalkSpeed:      req.WalkSpeed,
		WindowStart:    req.WindowStart,
		WindowEnd:      req.WindowEnd,
	}
	options := append(
		rr.profilerOptions(),
		WithSimpleProfiles(),
		WithLogger(m.Logger.With("target", req.Target)),
		WithObserver(m.Observer),
	)
	p := NewProfiler[TimeLabel](network.Connections, network.Walk, []string{req.Target}, options...)
	if err := p.RunContext(ctx); err != nil {
		return ProfileSummary{}, nil, err
	}

	labels, err := p.FinalLabels(req.Origin)
	if err != nil {
		return ProfileSummary{}, nil, err
	}

	start, end := req.WindowStart, req.WindowEnd
	if start == 0 && end == 0 {
		start, end = departureRange(network.Connections)
	}

	walkDuration := math.Inf(1)
	if req.Origin == req.Target {
		walkDuration = 0
	} else if d, ok := network.Walk.Distance(req.Origin, req.Target); ok {
		walkDuration = d / p.WalkSpeed()
	}

	summary, err := SummarizeProfile(labels, start, end, walkDuration)
	if err != nil {
		return ProfileSummary{}, nil, err
	}

	return summary, labels, nil
}

func (n *LoadedNetwork) hasStop(stop string) bool {
	for _, s := range n.Stops {
		if s.ID == stop {
			return true
		}
	}
	for _, c := range n.Connections {
		if c.DepartureStop == stop || c.ArrivalStop == stop {
			return true
		}
	}
	for _, s := range n.Walk.Stops() {
		if s == stop {
			return true
		}
	}
	return false
}

// Runs in storage, most recent first. If networkHash is non-empty,
// only runs over that network are included.
func (m *Manager) Runs(networkHash string) ([]*storage.RunMetadata, error) {
	return m.storage.ListRuns(storage.ListRunsFilter{NetworkHash: networkHash})
}

func (m *Manager) Journeys(runID string, filter storage.JourneyFilter) ([]*storage.Journey, error) {
	reader, err := m.storage.GetReader(runID)
	if err != nil {
		return nil, fmt.Errorf("getting reader: %w", err)
	}
	return reader.Journeys(filter)
}

func (m *Manager) DeleteRun(runID string) error {
	return m.storage.DeleteRun(runID)
}

// A network built from connections and walk edges already in memory.
func NewLoadedNetwork(source string, conns []model.Connection, walk *model.WalkNetwork) *LoadedNetwork {
	sorted := append([]model.Connection{}, conns...)
	model.SortConnectionsDescending(sorted)
	if walk == nil {
		walk = model.NewWalkNetwork()
	}
	return &LoadedNetwork{
		Network: &parse.Network{
			Timezone:    "UTC",
			Stops:       []model.Stop{},
			Connections: sorted,
			Walk:        walk,
		},
		Source: source,
	}
}
