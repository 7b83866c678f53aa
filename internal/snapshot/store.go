package snapshot

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/quillaja/kessler/internal/body"
	"github.com/quillaja/kessler/internal/cascade"
)

// ErrNotFound is returned when no snapshot matches a query.
var ErrNotFound = errors.New("snapshot not found")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	run_id      TEXT,
	step        INTEGER,
	taken       TIMESTAMP,
	time        REAL,
	next_event  INTEGER,
	phase       INTEGER,
	collisions  INTEGER,
	level       INTEGER,
	debris_gen  INTEGER,
	started_at  REAL,
	PRIMARY KEY (run_id, step));

CREATE TABLE IF NOT EXISTS bodies (
	run_id       TEXT,
	step         INTEGER,
	id           INTEGER, -- body id
	kind         INTEGER,
	x            REAL,
	y            REAL,
	z            REAL,
	vx           REAL,
	vy           REAL,
	vz           REAL,
	mass         REAL,
	radius       REAL,
	epoch        REAL,
	band         TEXT,
	inclination  REAL,
	event        INTEGER,
	generation   INTEGER,
	immune_until REAL,
	pinned       INTEGER);

CREATE INDEX IF NOT EXISTS idx_step ON bodies (run_id, step, id);
`

const (
	insertSnapshot = `INSERT INTO snapshots VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	insertBody     = `INSERT INTO bodies VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	querySnapshot  = `SELECT taken, time, next_event, phase, collisions, level, debris_gen, started_at
		FROM snapshots WHERE run_id = ? AND step = ?;`
	queryBodies = `SELECT id, kind, x, y, z, vx, vy, vz, mass, radius, epoch,
		band, inclination, event, generation, immune_until, pinned
		FROM bodies WHERE run_id = ? AND step = ? ORDER BY id ASC;`
	querySteps = `SELECT step FROM snapshots WHERE run_id = ? ORDER BY step ASC;`
)

// Store records snapshots in an SQLite database.
//
// SQLite allows a single writer, so a Recorder feeding a Store should use one
// worker.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database in filename.
func Open(filename string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+filename+"?_journal_mode=WAL&_synchronous=OFF")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (st *Store) Close() error { return st.db.Close() }

// Save writes s in one transaction.
func (st *Store) Save(s *Snapshot) (err error) {
	tx, err := st.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	c := s.Cascade
	_, err = tx.Exec(insertSnapshot, s.RunID.String(), int64(s.Step), s.Taken, s.Time, int64(s.NextEvent),
		int(c.Phase), c.CollisionCount, c.Level, c.DebrisGenerated, c.StartedAt)
	if err != nil {
		return fmt.Errorf("insert snapshot %d: %w", s.Step, err)
	}

	stmt, err := tx.Prepare(insertBody)
	if err != nil {
		return err
	}
	defer stmt.Close()

	pinned := make(map[body.ID]bool, len(s.Pinned))
	for _, id := range s.Pinned {
		pinned[id] = true
	}
	for i := range s.Bodies {
		b := &s.Bodies[i]
		var (
			band        string
			inclination float64
			event       uint64
			generation  int
			immuneUntil float64
		)
		switch v := b.Variant.(type) {
		case body.SatelliteInfo:
			band, inclination = v.Band, v.InclinationDeg
		case body.DebrisInfo:
			event, generation, immuneUntil = v.Event, v.Generation, v.ImmuneUntil
		}
		_, err = stmt.Exec(
			s.RunID.String(), int64(s.Step), int64(b.ID), int(b.Kind()),
			b.Position[0], b.Position[1], b.Position[2],
			b.Velocity[0], b.Velocity[1], b.Velocity[2],
			b.Mass, b.Radius, b.Epoch,
			band, inclination, int64(event), generation, immuneUntil,
			pinned[b.ID])
		if err != nil {
			return fmt.Errorf("insert body %d: %w", b.ID, err)
		}
	}
	return tx.Commit()
}

// Load reads the snapshot of run at step.
func (st *Store) Load(run uuid.UUID, step uint64) (*Snapshot, error) {
	s := &Snapshot{RunID: run, Step: step}
	var (
		nextEvent int64
		phase     int
	)
	row := st.db.QueryRow(querySnapshot, run.String(), int64(step))
	err := row.Scan(&s.Taken, &s.Time, &nextEvent, &phase,
		&s.Cascade.CollisionCount, &s.Cascade.Level, &s.Cascade.DebrisGenerated, &s.Cascade.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s step %d: %w", run, step, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s.NextEvent = uint64(nextEvent)
	s.Cascade.Phase = cascade.Phase(phase)

	rows, err := st.db.Query(queryBodies, run.String(), int64(step))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			b           body.Body
			id, event   int64
			kind        int
			band        string
			inclination float64
			generation  int
			immuneUntil float64
			pinned      bool
		)
		err := rows.Scan(&id, &kind,
			&b.Position[0], &b.Position[1], &b.Position[2],
			&b.Velocity[0], &b.Velocity[1], &b.Velocity[2],
			&b.Mass, &b.Radius, &b.Epoch,
			&band, &inclination, &event, &generation, &immuneUntil, &pinned)
		if err != nil {
			return nil, err
		}
		b.ID = body.ID(id)
		switch body.Kind(kind) {
		case body.Satellite:
			b.Variant = body.SatelliteInfo{Band: band, InclinationDeg: inclination}
		case body.Debris:
			b.Variant = body.DebrisInfo{Event: uint64(event), Generation: generation, ImmuneUntil: immuneUntil}
		default:
			return nil, fmt.Errorf("body %d kind %d: %w", id, kind, ErrCorrupt)
		}
		s.Bodies = append(s.Bodies, b)
		if pinned {
			s.Pinned = append(s.Pinned, b.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Steps lists the recorded steps of run in ascending order.
func (st *Store) Steps(run uuid.UUID) ([]uint64, error) {
	rows, err := st.db.Query(querySteps, run.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []uint64
	for rows.Next() {
		var step int64
		if err := rows.Scan(&step); err != nil {
			return nil, err
		}
		steps = append(steps, uint64(step))
	}
	return steps, rows.Err()
}
