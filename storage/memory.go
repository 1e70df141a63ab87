package storage

import (
	"fmt"
	"sort"
	"sync"
)

// In memory implementation of Storage below

type MemoryStorage struct {
	Runs     map[string]*MemoryStorageRun
	Metadata map[string]*RunMetadata

	mutex sync.Mutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		Runs:     map[string]*MemoryStorageRun{},
		Metadata: map[string]*RunMetadata{},
	}
}

func (s *MemoryStorage) ListRuns(filter ListRunsFilter) ([]*RunMetadata, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	runs := []*RunMetadata{}
	for _, metadata := range s.Metadata {
		if filter.NetworkHash != "" && metadata.NetworkHash != filter.NetworkHash {
			continue
		}
		copied := *metadata
		copied.Targets = append([]string{}, metadata.Targets...)
		runs = append(runs, &copied)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
	return runs, nil
}

func (s *MemoryStorage) WriteRunMetadata(run *RunMetadata) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	copied := *run
	copied.Targets = append([]string{}, run.Targets...)
	s.Metadata[run.ID] = &copied
	return nil
}

func (s *MemoryStorage) DeleteRun(id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.Metadata[id]; !found {
		return fmt.Errorf("run %s not found", id)
	}
	delete(s.Metadata, id)
	delete(s.Runs, id)
	return nil
}

func (s *MemoryStorage) GetReader(run string) (JourneyReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, ok := s.Runs[run]
	if !ok {
		return nil, fmt.Errorf("run %s not found", run)
	}
	return r, nil
}

func (s *MemoryStorage) GetWriter(run string) (JourneyWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r := &MemoryStorageRun{}
	s.Runs[run] = r
	return r, nil
}

type MemoryStorageRun struct {
	journeys []*Journey
	mutex    sync.Mutex
}

func (r *MemoryStorageRun) BeginJourneys() error { return nil }
func (r *MemoryStorageRun) EndJourneys() error   { return nil }
func (r *MemoryStorageRun) Close() error         { return nil }

func (r *MemoryStorageRun) WriteJourney(journey *Journey) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	journey.ID = len(r.journeys) + 1
	copied := *journey
	copied.Legs = append([]Leg{}, journey.Legs...)
	r.journeys = append(r.journeys, &copied)
	return nil
}

func (r *MemoryStorageRun) Journeys(filter JourneyFilter) ([]*Journey, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	journeys := []*Journey{}
	for _, j := range r.journeys {
		if filter.Origin != "" && j.Origin != filter.Origin {
			continue
		}
		if filter.Destination != "" && j.Destination != filter.Destination {
			continue
		}
		if filter.FastestPathOnly && !j.FastestPath {
			continue
		}
		copied := *j
		copied.Legs = append([]Leg{}, j.Legs...)
		journeys = append(journeys, &copied)
	}

	sortJourneys(journeys)

	return journeys, nil
}

func sortJourneys(journeys []*Journey) {
	sort.SliceStable(journeys, func(i, j int) bool {
		a, b := journeys[i], journeys[j]
		if a.Origin != b.Origin {
			return a.Origin < b.Origin
		}
		if a.Destination != b.Destination {
			return a.Destination < b.Destination
		}
		if a.DepartureTime != b.DepartureTime {
			return a.DepartureTime < b.DepartureTime
		}
		return a.ID < b.ID
	})
}
