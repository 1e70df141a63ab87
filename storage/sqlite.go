package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

// SQLite backed Storage. Run metadata lives in one database, and
// each run's journeys in a database of their own.
type SQLiteStorage struct {
	SQLiteConfig

	runDB *sql.DB
	runs  map[string]*sql.DB
	mutex sync.Mutex
}

type SQLiteJourneyWriter struct {
	db          *sql.DB
	tx          *sql.Tx
	journeyStmt *sql.Stmt
	legStmt     *sql.Stmt
	nextID      int
}

type SQLiteJourneyReader struct {
	db *sql.DB
}

func openSQLite(sourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if sourceName == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = directory + "/csa.db"
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS run (
    id TEXT NOT NULL,
    network_hash TEXT NOT NULL,
    network_url TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    targets TEXT NOT NULL,
    transfer_margin REAL NOT NULL,
    walk_speed REAL NOT NULL,
    window_start REAL NOT NULL,
    window_end REAL NOT NULL,
    journeys INTEGER NOT NULL,
PRIMARY KEY (id)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating run table: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		runDB: db,
		runs:  map[string]*sql.DB{},
	}, nil
}

func (s *SQLiteStorage) ListRuns(filter ListRunsFilter) ([]*RunMetadata, error) {
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
		query += " WHERE network_hash = ?"
		params = append(params, filter.NetworkHash)
	}

	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.runDB.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunMetadata{}
	for rows.Next() {
		var run RunMetadata
		var targets string
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
		err = json.Unmarshal([]byte(targets), &run.Targets)
		if err != nil {
			return nil, fmt.Errorf("decoding targets: %w", err)
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

func (s *SQLiteStorage) WriteRunMetadata(run *RunMetadata) error {
	targets, err := json.Marshal(nonNilTargets(run.Targets))
	if err != nil {
		return fmt.Errorf("encoding targets: %w", err)
	}

	_, err = s.runDB.Exec(`
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
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		string(targets),
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

func nonNilTargets(targets []string) []string {
	if targets == nil {
		return []string{}
	}
	return targets
}

func (s *SQLiteStorage) DeleteRun(id string) error {
	res, err := s.runDB.Exec(`DELETE FROM run WHERE id = ?`, id)
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

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if db, found := s.runs[id]; found {
		db.Close()
		delete(s.runs, id)
	}
	if s.OnDisk {
		err = os.Remove(s.runPath(id))
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing run database: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStorage) runPath(id string) string {
	return s.Directory + "/" + id + ".db"
}

func (s *SQLiteStorage) GetReader(runID string) (JourneyReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	db, found := s.runs[runID]
	if found {
		return &SQLiteJourneyReader{db: db}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("run %s does not exist", runID)
	}

	sourceName := s.runPath(runID)
	if _, err := os.Stat(sourceName); os.IsNotExist(err) {
		return nil, fmt.Errorf("run %s does not exist at %s", runID, sourceName)
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	s.runs[runID] = db

	return &SQLiteJourneyReader{db: db}, nil
}

func (s *SQLiteStorage) GetWriter(runID string) (JourneyWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if db, found := s.runs[runID]; found {
		db.Close()
		delete(s.runs, runID)
	}

	sourceName := ":memory:"
	if s.OnDisk {
		sourceName = s.runPath(runID)
		// delete file if it exists
		if _, err := os.Stat(sourceName); err == nil {
			err := os.Remove(sourceName)
			if err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := openSQLite(sourceName)
	if err != nil {
		return nil, err
	}

	for name, query := range map[string]string{
		"journeys": `
CREATE TABLE journeys (
    journey_id INTEGER PRIMARY KEY,
    origin TEXT NOT NULL,
    destination TEXT NOT NULL,
    departure_time REAL NOT NULL,
    arrival_time REAL NOT NULL,
    n_boardings INTEGER NOT NULL,
    fastest_path INTEGER NOT NULL
);
CREATE INDEX journeys_origin_destination ON journeys (origin, destination);
`,
		"legs": `
CREATE TABLE legs (
    journey_id INTEGER NOT NULL,
    leg_index INTEGER NOT NULL,
    departure_stop TEXT NOT NULL,
    arrival_stop TEXT NOT NULL,
    departure_time REAL NOT NULL,
    arrival_time REAL NOT NULL,
    trip_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
PRIMARY KEY (journey_id, leg_index)
);`,
	} {
		_, err = db.Exec(query)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating %s table: %s", name, err)
		}
	}

	s.runs[runID] = db

	return &SQLiteJourneyWriter{
		db:     db,
		nextID: 1,
	}, nil
}

func (w *SQLiteJourneyWriter) BeginJourneys() error {
	// transaction with prepared statements.
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning journey insert transaction: %w", err)
	}

	w.journeyStmt, err = w.tx.Prepare(`
INSERT INTO journeys (journey_id, origin, destination, departure_time, arrival_time, n_boardings, fastest_path)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		w.abort()
		return fmt.Errorf("preparing journey insert: %w", err)
	}

	w.legStmt, err = w.tx.Prepare(`
INSERT INTO legs (journey_id, leg_index, departure_stop, arrival_stop, departure_time, arrival_time, trip_id, seq)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		w.abort()
		return fmt.Errorf("preparing leg insert: %w", err)
	}

	return nil
}

func (w *SQLiteJourneyWriter) abort() {
	if w.journeyStmt != nil {
		w.journeyStmt.Close()
	}
	if w.legStmt != nil {
		w.legStmt.Close()
	}
	if w.tx != nil {
		w.tx.Rollback()
	}
	w.tx, w.journeyStmt, w.legStmt = nil, nil, nil
}

func (w *SQLiteJourneyWriter) WriteJourney(journey *Journey) error {
	if w.tx == nil {
		return fmt.Errorf("journey written outside BeginJourneys/EndJourneys")
	}

	id := w.nextID
	_, err := w.journeyStmt.Exec(
		id,
		journey.Origin,
		journey.Destination,
		journey.DepartureTime,
		journey.ArrivalTime,
		journey.Boardings,
		journey.FastestPath,
	)
	if err != nil {
		w.abort()
		return fmt.Errorf("inserting journey: %w", err)
	}

	for i, leg := range journey.Legs {
		_, err = w.legStmt.Exec(
			id,
			i,
			leg.DepartureStop,
			leg.ArrivalStop,
			leg.DepartureTime,
			leg.ArrivalTime,
			leg.TripID,
			leg.Seq,
		)
		if err != nil {
			w.abort()
			return fmt.Errorf("inserting leg: %w", err)
		}
	}

	journey.ID = id
	w.nextID++

	return nil
}

func (w *SQLiteJourneyWriter) EndJourneys() error {
	if w.tx == nil {
		return fmt.Errorf("no journey transaction")
	}

	// commit transaction and clean up
	w.journeyStmt.Close()
	w.legStmt.Close()
	err := w.tx.Commit()
	w.tx, w.journeyStmt, w.legStmt = nil, nil, nil
	if err != nil {
		return fmt.Errorf("committing journey insert transaction: %w", err)
	}

	return nil
}

func (w *SQLiteJourneyWriter) Close() error {
	if w.tx != nil {
		w.abort()
	}

	_, err := w.db.Exec(`ANALYZE;`)
	if err != nil {
		return fmt.Errorf("analyzing database: %s", err)
	}

	return nil
}

func (r *SQLiteJourneyReader) Journeys(filter JourneyFilter) ([]*Journey, error) {
	conditions := []string{}
	params := []interface{}{}
	if filter.Origin != "" {
		conditions = append(conditions, "j.origin = ?")
		params = append(params, filter.Origin)
	}
	if filter.Destination != "" {
		conditions = append(conditions, "j.destination = ?")
		params = append(params, filter.Destination)
	}
	if filter.FastestPathOnly {
		conditions = append(conditions, "j.fastest_path = 1")
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

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
JOIN journeys j ON j.journey_id = l.journey_id`+where+`
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
