package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

const (
	PSQLJourneyBatchSize = 5000
)

type PSQLStorage struct {
	db *sql.DB
}

type PSQLJourneyWriter struct {
	id         string
	db         *sql.DB
	journeyBuf []*Journey
	nextID     int
}

type PSQLJourneyReader struct {
	id string
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS run;
DROP TABLE IF EXISTS journeys;
DROP TABLE IF EXISTS legs;
`)
		if err != nil {
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS run (
    id TEXT NOT NULL,
    network_hash TEXT NOT NULL,
    network_url TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    targets TEXT[] NOT NULL,
    transfer_margin DOUBLE PRECISION NOT NULL,
    walk_speed DOUBLE PRECISION NOT NULL,
    window_start DOUBLE PRECISION NOT NULL,
    window_end DOUBLE PRECISION NOT NULL,
    journeys INTEGER NOT NULL,
    PRIMARY KEY (id)
);

CREATE TABLE IF NOT EXISTS journeys (
    run_id TEXT NOT NULL,
    journey_id INTEGER NOT NULL,
    origin TEXT NOT NULL,
    destination TEXT NOT NULL,
    departure_time DOUBLE PRECISION NOT NULL,
    arrival_time DOUBLE PRECISION NOT NULL,
    n_boardings INTEGER NOT NULL,
    fastest_path BOOLEAN NOT NULL,
    PRIMARY KEY (run_id, journey_id)
);
CREATE INDEX IF NOT EXISTS journeys_origin_destination ON journeys (run_id, origin, destination);

CREATE TABLE IF NOT EXISTS legs (
    run_id TEXT NOT NULL,
    journey_id INTEGER NOT NULL,
    leg_index INTEGER NOT NULL,
    departure_stop TEXT NOT NULL,
    arrival_stop TEXT NOT NULL,
    departure_time DOUBLE PRECISION NOT NULL,
    arrival_time DOUBLE PRECISION NOT NULL,
    trip_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    PRIMARY KEY (run_id, journey_id, leg_index)
);`)
	if err != nil {
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{
		db: db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListRuns(filter ListRunsFilter) ([]*RunMetadata, error) {
	query := `
SELECT
    id,
    network_hash,
    network_url,
    created_at,
    targets,
    transfer_margin,
    walk_speed,
    window_start,
    window_end,
    journeys
FROM run`

	params := []interface{}{}
	if filter.NetworkHash != "" {
		query += " WHERE network_hash = $1"
		params = append(params, filter.NetworkHash)
	}

	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunMetadata{}
	for rows.Next() {
		var run RunMetadata
		targets := pq.StringArray{}
		err := rows.Scan(
			&run.ID,
			&run.NetworkHash,
			&run.NetworkURL,
			&run.CreatedAt,
			&targets,
			&run.TransferMargin,
			&run.WalkSpeed,
			&run.WindowStart,
			&run.WindowEnd,
			&run.Journeys,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.CreatedAt = run.CreatedAt.UTC()
		run.Targets = []string(targets)
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

func (s *PSQLStorage) WriteRunMetadata(run *RunMetadata) error {
	_, err := s.db.Exec(`
INSERT INTO run (
    id,
    network_hash,
    network_url,
    created_at,
    targets,
    transfer_margin,
    walk_speed,
    window_start,
    window_end,
    journeys
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    network_hash = excluded.network_hash,
    network_url = excluded.network_url,
    created_at = excluded.created_at,
    targets = excluded.targets,
    transfer_margin = excluded.transfer_margin,
    walk_speed = excluded.walk_speed,
    window_start = excluded.window_start,
    window_end = excluded.window_end,
    journeys = excluded.journeys
`,
		run.ID,
		run.NetworkHash,
		run.NetworkURL,
		run.CreatedAt.UTC(),
		pq.Array(nonNilTargets(run.Targets)),
		run.TransferMargin,
		run.WalkSpeed,
		run.WindowStart,
		run.WindowEnd,
		run.Journeys,
	)
	if err != nil {
		return fmt.Errorf("writing run metadata: %w", err)
	}
	return nil
}

func (s *PSQLStorage) DeleteRun(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM run WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}

	for _, table := range []string{"journeys", "legs"} {
		_, err = tx.Exec(`DELETE FROM `+table+` WHERE run_id = $1`, id)
		if err != nil {
			return fmt.Errorf("deleting %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *PSQLStorage) GetReader(id string) (JourneyReader, error) {
	return &PSQLJourneyReader{
		id: id,
		db: s.db,
	}, nil
}

func (s *PSQLStorage) GetWriter(id string) (JourneyWriter, error) {
	// In case run already exists, delete all records
	for _, table := range []string{"journeys", "legs"} {
		_, err := s.db.Exec(`DELETE FROM `+table+` WHERE run_id = $1`, id)
		if err != nil {
			return nil, fmt.Errorf("deleting %s records: %s", table, err)
		}
	}

	return &PSQLJourneyWriter{
		id:     id,
		db:     s.db,
		nextID: 1,
	}, nil
}

func (w *PSQLJourneyWriter) BeginJourneys() error {
	return nil
}

func (w *PSQLJourneyWriter) WriteJourney(journey *Journey) error {
	journey.ID = w.nextID
	w.nextID++

	copied := *journey
	w.journeyBuf = append(w.journeyBuf, &copied)

	if len(w.journeyBuf) >= PSQLJourneyBatchSize {
		err := w.flushJourneys()
		if err != nil {
			return fmt.Errorf("flushing journeys: %w", err)
		}
	}

	return nil
}

func (w *PSQLJourneyWriter) EndJourneys() error {
	if len(w.journeyBuf) > 0 {
		err := w.flushJourneys()
		if err != nil {
			return fmt.Errorf("flushing journeys: %w", err)
		}
	}
	return nil
}

func (w *PSQLJourneyWriter) flushJourneys() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	journeyStmt, err := tx.Prepare(pq.CopyIn(
		"journeys", "run_id", "journey_id", "origin", "destination",
		"departure_time", "arrival_time", "n_boardings", "fastest_path",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer journeyStmt.Close()

	for _, j := range w.journeyBuf {
		_, err = journeyStmt.Exec(
			w.id,
			j.ID,
			j.Origin,
			j.Destination,
			j.DepartureTime,
			j.ArrivalTime,
			j.Boardings,
			j.FastestPath,
		)
		if err != nil {
			return fmt.Errorf("COPY journey: %w", err)
		}
	}

	_, err = journeyStmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	legStmt, err := tx.Prepare(pq.CopyIn(
		"legs", "run_id", "journey_id", "leg_index", "departure_stop", "arrival_stop",
		"departure_time", "arrival_time", "trip_id", "seq",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer legStmt.Close()

	for _, j := range w.journeyBuf {
		for i, leg := range j.Legs {
			_, err = legStmt.Exec(
				w.id,
				j.ID,
				i,
				leg.DepartureStop,
				leg.ArrivalStop,
				leg.DepartureTime,
				leg.ArrivalTime,
				leg.TripID,
				leg.Seq,
			)
			if err != nil {
				return fmt.Errorf("COPY leg: %w", err)
			}
		}
	}

	_, err = legStmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.journeyBuf = nil

	return nil
}

func (w *PSQLJourneyWriter) Close() error {
	_, err := w.db.Exec(`ANALYZE journeys, legs`)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	return nil
}

func (r *PSQLJourneyReader) Journeys(filter JourneyFilter) ([]*Journey, error) {
	conditions := []string{"j.run_id = $1"}
	params := []interface{}{r.id}
	if filter.Origin != "" {
		params = append(params, filter.Origin)
		conditions = append(conditions, fmt.Sprintf("j.origin = $%d", len(params)))
	}
	if filter.Destination != "" {
		params = append(params, filter.Destination)
		conditions = append(conditions, fmt.Sprintf("j.destination = $%d", len(params)))
	}
	if filter.FastestPathOnly {
		conditions = append(conditions, "j.fastest_path")
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	rows, err := r.db.Query(`
SELECT
    j.journey_id,
    j.origin,
    j.destination,
    j.departure_time,
    j.arrival_time,
    j.n_boardings,
    j.fastest_path
FROM journeys j`+where+`
ORDER BY j.origin, j.destination, j.departure_time, j.journey_id`, params...)
	if err != nil {
		return nil, fmt.Errorf("querying journeys: %w", err)
	}
	defer rows.Close()

	journeys := []*Journey{}
	byID := map[int]*Journey{}
	for rows.Next() {
		j := &Journey{Legs: []Leg{}}
		err := rows.Scan(
			&j.ID,
			&j.Origin,
			&j.Destination,
			&j.DepartureTime,
			&j.ArrivalTime,
			&j.Boardings,
			&j.FastestPath,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning journey: %w", err)
		}
		journeys = append(journeys, j)
		byID[j.ID] = j
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journeys: %w", err)
	}

	legRows, err := r.db.Query(`
SELECT
    l.journey_id,
    l.departure_stop,
    l.arrival_stop,
    l.departure_time,
    l.arrival_time,
    l.trip_id,
    l.seq
FROM legs l
JOIN journeys j ON j.run_id = l.run_id AND j.journey_id = l.journey_id`+where+`
ORDER BY l.journey_id, l.leg_index`, params...)
	if err != nil {
		return nil, fmt.Errorf("querying legs: %w", err)
	}
	defer legRows.Close()

	for legRows.Next() {
		var id int
		var leg Leg
		err := legRows.Scan(
			&id,
			&leg.DepartureStop,
			&leg.ArrivalStop,
			&leg.DepartureTime,
			&leg.ArrivalTime,
			&leg.TripID,
			&leg.Seq,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning leg: %w", err)
		}
		if j, found := byID[id]; found {
			j.Legs = append(j.Legs, leg)
		}
	}

	return journeys, legRows.Err()
}
