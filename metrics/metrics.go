package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the router's prometheus metrics. It implements the
// profiler's Observer and the publisher's metrics hooks.
type Collector struct {
	reg *prometheus.Registry

	RunsStarted       prometheus.Counter
	RunsFailed        prometheus.Counter
	RunDuration       prometheus.Histogram
	Connections       prometheus.Histogram
	PseudoConnections prometheus.Histogram
	ProfileLabels     prometheus.Histogram

	JourneysWritten prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	TransferMargin prometheus.Gauge // seconds
	WalkSpeed      prometheus.Gauge // meters per second
}

func NewCollector(transferMargin float64, walkSpeed float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RunsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "csa_runs_started_total",
			Help: "Total profiler runs started.",
		}),
		RunsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "csa_runs_failed_total",
			Help: "Total profiler runs that returned an error.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "csa_run_duration_seconds",
			Help:    "Duration of profiler runs.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 18),
		}),
		Connections: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "csa_run_connections",
			Help:    "Number of connections scanned per run.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 12),
		}),
		PseudoConnections: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "csa_run_pseudo_connections",
			Help:    "Number of walking pseudo connections generated per run.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 12),
		}),
		ProfileLabels: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "csa_profile_labels",
			Help:    "Number of final labels per stop profile.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		JourneysWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "csa_journeys_written_total",
			Help: "Total journeys written to storage.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "csa_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "csa_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "csa_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "csa_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		TransferMargin: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "csa_transfer_margin_seconds",
			Help: "Configured transfer margin.",
		}),
		WalkSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "csa_walk_speed_meters_per_second",
			Help: "Configured walking speed.",
		}),
	}

	reg.MustRegister(
		c.RunsStarted, c.RunsFailed, c.RunDuration,
		c.Connections, c.PseudoConnections, c.ProfileLabels,
		c.JourneysWritten,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.TransferMargin, c.WalkSpeed,
	)

	c.TransferMargin.Set(transferMargin)
	c.WalkSpeed.Set(walkSpeed)

	return c
}

func (c *Collector) RunStarted(connections int, pseudoConnections int) {
	c.RunsStarted.Inc()
	c.Connections.Observe(float64(connections))
	c.PseudoConnections.Observe(float64(pseudoConnections))
}

func (c *Collector) RunFinished(elapsed time.Duration, err error) {
	c.RunDuration.Observe(elapsed.Seconds())
	if err != nil {
		c.RunsFailed.Inc()
	}
}

func (c *Collector) ProfileFinalized(labels int) {
	c.ProfileLabels.Observe(float64(labels))
}

func (c *Collector) JourneysWrittenAdd(n int) {
	c.JourneysWritten.Add(float64(n))
}

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", addr)
	return srv
}
