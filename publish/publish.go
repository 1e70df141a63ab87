package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"tidbyt.dev/csa/storage"
)

// Publisher announces journeys found by a routing run.
type Publisher interface {
	PublishJourney(ctx context.Context, runID string, journey *storage.Journey) error
	Close()
}

// Message is the JSON payload published for each journey.
type Message struct {
	RunID         string       `json:"runId"`
	JourneyID     int          `json:"journeyId"`
	Origin        string       `json:"origin"`
	Destination   string       `json:"destination"`
	DepartureTime float64      `json:"departureTime"`
	ArrivalTime   float64      `json:"arrivalTime"`
	Boardings     int          `json:"boardings"`
	FastestPath   bool         `json:"fastestPath"`
	Legs          []MessageLeg `json:"legs"`
}

type MessageLeg struct {
	DepartureStop string  `json:"departureStop"`
	ArrivalStop   string  `json:"arrivalStop"`
	DepartureTime float64 `json:"departureTime"`
	ArrivalTime   float64 `json:"arrivalTime"`
	TripID        string  `json:"tripId"`
	Seq           int     `json:"seq"`
}

func NewMessage(runID string, j *storage.Journey) Message {
	legs := make([]MessageLeg, 0, len(j.Legs))
	for _, l := range j.Legs {
		legs = append(legs, MessageLeg{
			DepartureStop: l.DepartureStop,
			ArrivalStop:   l.ArrivalStop,
			DepartureTime: l.DepartureTime,
			ArrivalTime:   l.ArrivalTime,
			TripID:        l.TripID,
			Seq:           l.Seq,
		})
	}
	return Message{
		RunID:         runID,
		JourneyID:     j.ID,
		Origin:        j.Origin,
		Destination:   j.Destination,
		DepartureTime: j.DepartureTime,
		ArrivalTime:   j.ArrivalTime,
		Boardings:     j.Boardings,
		FastestPath:   j.FastestPath,
		Legs:          legs,
	}
}

// Subject a journey is published on:
// <prefix>.<run>.<origin>.<destination>
func Subject(prefix, runID string, j *storage.Journey) string {
	return fmt.Sprintf(
		"%s.%s.%s.%s",
		prefix,
		subjectToken(runID),
		subjectToken(j.Origin),
		subjectToken(j.Destination),
	)
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}

// Records published messages. For tests, and for running without a
// broker.
type MemoryPublisher struct {
	Prefix string

	mutex    sync.Mutex
	subjects []string
	messages []Message
}

func NewMemoryPublisher(prefix string) *MemoryPublisher {
	return &MemoryPublisher{Prefix: prefix}
}

func (p *MemoryPublisher) PublishJourney(ctx context.Context, runID string, journey *storage.Journey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Round trip through JSON so consumers see what NATS would
	// carry.
	b, err := json.Marshal(NewMessage(runID, journey))
	if err != nil {
		return err
	}
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		return err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.subjects = append(p.subjects, Subject(p.Prefix, runID, journey))
	p.messages = append(p.messages, msg)
	return nil
}

func (p *MemoryPublisher) Close() {}

func (p *MemoryPublisher) Subjects() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]string{}, p.subjects...)
}

func (p *MemoryPublisher) Messages() []Message {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]Message{}, p.messages...)
}
