package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"tidbyt.dev/csa/storage"
)

const DefaultSubjectPrefix = "csa.journeys"

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	logger      *slog.Logger
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

type NATSOptions struct {
	Prefix      string
	LogSubjects bool
	Logger      *slog.Logger
	Metrics     PublisherMetrics
}

func NewNATSPublisher(url string, opts NATSOptions) (*NATSPublisher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	m := opts.Metrics

	nc, err := nats.Connect(url,
		nats.Name("csa-router"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}

	return &NATSPublisher{
		nc:          nc,
		prefix:      prefix,
		logSubjects: opts.LogSubjects,
		logger:      logger,
		metrics:     m,
	}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

func (p *NATSPublisher) PublishJourney(ctx context.Context, runID string, journey *storage.Journey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := Subject(p.prefix, runID, journey)
	b, err := json.Marshal(NewMessage(runID, journey))
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.logger.Debug("nats publish", "subject", subject)
	}

	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}
