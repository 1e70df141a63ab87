package publish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/csa/storage"
)

// NATS tests require a running server at this URL.
const (
	NATSURL = "" // "nats://127.0.0.1:4222"
)

func fixtureJourney() *storage.Journey {
	return &storage.Journey{
		ID:            3,
		Origin:        "stop.1",
		Destination:   "Central Station",
		DepartureTime: 10,
		ArrivalTime:   35,
		Boardings:     1,
		FastestPath:   true,
		Legs: []storage.Leg{
			{DepartureStop: "stop.1", ArrivalStop: "Central Station", DepartureTime: 10, ArrivalTime: 35, TripID: "t1", Seq: 4},
		},
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "csa.journeys.run_1.stop_1.Central_Station", Subject("csa.journeys", "run.1", fixtureJourney()))
	assert.Equal(t, "p._.a.b", Subject("p", " ", &storage.Journey{Origin: "a", Destination: "b"}))
	assert.Equal(t, "p.r.a_b.c_d", Subject("p", "r", &storage.Journey{Origin: "a*b", Destination: "c>d"}))
}

func TestMemoryPublisher(t *testing.T) {
	p := NewMemoryPublisher(DefaultSubjectPrefix)
	defer p.Close()

	require.NoError(t, p.PublishJourney(context.Background(), "r", fixtureJourney()))

	assert.Equal(t, []string{"csa.journeys.r.stop_1.Central_Station"}, p.Subjects())
	assert.Equal(t, []Message{{
		RunID:         "r",
		JourneyID:     3,
		Origin:        "stop.1",
		Destination:   "Central Station",
		DepartureTime: 10,
		ArrivalTime:   35,
		Boardings:     1,
		FastestPath:   true,
		Legs: []MessageLeg{
			{DepartureStop: "stop.1", ArrivalStop: "Central Station", DepartureTime: 10, ArrivalTime: 35, TripID: "t1", Seq: 4},
		},
	}}, p.Messages())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.PublishJourney(ctx, "r", fixtureJourney()))
	assert.Len(t, p.Messages(), 1)
}

func TestMessageJSON(t *testing.T) {
	b, err := json.Marshal(NewMessage("r", &storage.Journey{Origin: "a", Destination: "b"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"runId": "r",
		"journeyId": 0,
		"origin": "a",
		"destination": "b",
		"departureTime": 0,
		"arrivalTime": 0,
		"boardings": 0,
		"fastestPath": false,
		"legs": []
	}`, string(b))
}

type countingMetrics struct {
	published int
	errs      int
	connected bool
}

func (m *countingMetrics) NATSPublishedInc()            { m.published++ }
func (m *countingMetrics) NATSPublishErrInc()           { m.errs++ }
func (m *countingMetrics) PublishObserve(time.Duration) {}
func (m *countingMetrics) NATSSetConnected(c bool)      { m.connected = c }

func TestNATSPublisher(t *testing.T) {
	if NATSURL == "" {
		t.Skip("NATSURL not set")
	}

	nc, err := nats.Connect(NATSURL)
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync(DefaultSubjectPrefix + ".test.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	m := &countingMetrics{}
	p, err := NewNATSPublisher(NATSURL, NATSOptions{Metrics: m})
	require.NoError(t, err)
	assert.True(t, m.connected)

	require.NoError(t, p.PublishJourney(context.Background(), "test", fixtureJourney()))
	p.Close()

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "csa.journeys.test.stop_1.Central_Station", msg.Subject)

	var decoded Message
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, NewMessage("test", fixtureJourney()), decoded)
	assert.Equal(t, 1, m.published)
	assert.Equal(t, 0, m.errs)
}
