// Package sqlite persists estimation runs: the ego trajectory, per-object
// state samples and step diagnostics, keyed by a run UUID. The schema is
// managed by embedded golang-migrate migrations.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/fgtrack.report/internal/monitoring"
	"github.com/banshee-data/fgtrack.report/internal/pose"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var logf = monitoring.Prefixed("storage")

// DB wraps a run database handle.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the run database at path and applies any
// pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	db := &DB{DB: sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Closing m would close the underlying DB connection, so we don't.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version. Returns 0, false, nil
// when no migrations have run yet.
func (db *DB) SchemaVersion() (version uint, dirty bool, err error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, false, err
	}
	driver, err := migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	if err != nil {
		return 0, false, err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Run describes one recorded estimation run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero until FinishRun
	Config     string
	Steps      int
}

// BeginRun registers a new run and returns its id. config is the serialized
// tuning used for the run, kept for reproducibility.
func (db *DB) BeginRun(config string) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO runs (run_id, started_at, config) VALUES (?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), config,
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	logf("run %s started", id)
	return id, nil
}

// FinishRun stamps the run's end time and final step count.
func (db *DB) FinishRun(runID string, steps int) error {
	res, err := db.Exec(
		`UPDATE runs SET finished_at = ?, steps = ? WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), steps, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: unknown run", runID)
	}
	return nil
}

// Runs lists all recorded runs, most recent first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(
		`SELECT run_id, started_at, COALESCE(finished_at, ''), config, steps
		 FROM runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Config, &r.Steps); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: bad started_at: %w", r.ID, err)
		}
		if finished != "" {
			if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
				return nil, fmt.Errorf("run %s: bad finished_at: %w", r.ID, err)
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TrajectoryPoint is one keyframe pose of the ego trajectory.
type TrajectoryPoint struct {
	KeyframeID int
	Stamp      float64
	Pose       pose.Pose
}

// SaveTrajectory upserts keyframe poses for a run. Existing keyframe rows are
// overwritten, so re-saving after a loop closure rewrites the stored path.
func (db *DB) SaveTrajectory(runID string, pts []TrajectoryPoint) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("save trajectory: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO trajectory (run_id, keyframe_id, stamp, x, y, z, qw, qx, qy, qz)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, keyframe_id) DO UPDATE SET
		   stamp = excluded.stamp,
		   x = excluded.x, y = excluded.y, z = excluded.z,
		   qw = excluded.qw, qx = excluded.qx, qy = excluded.qy, qz = excluded.qz`,
	)
	if err != nil {
		return fmt.Errorf("save trajectory: %w", err)
	}
	defer stmt.Close()

	for _, p := range pts {
		_, err := stmt.Exec(runID, p.KeyframeID, p.Stamp,
			p.Pose.T.X, p.Pose.T.Y, p.Pose.T.Z,
			p.Pose.R.W, p.Pose.R.X, p.Pose.R.Y, p.Pose.R.Z)
		if err != nil {
			return fmt.Errorf("save trajectory keyframe %d: %w", p.KeyframeID, err)
		}
	}
	return tx.Commit()
}

// Trajectory returns the run's keyframe poses ordered by keyframe id.
func (db *DB) Trajectory(runID string) ([]TrajectoryPoint, error) {
	rows, err := db.Query(
		`SELECT keyframe_id, stamp, x, y, z, qw, qx, qy, qz
		 FROM trajectory WHERE run_id = ? ORDER BY keyframe_id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("load trajectory: %w", err)
	}
	defer rows.Close()

	var pts []TrajectoryPoint
	for rows.Next() {
		var p TrajectoryPoint
		err := rows.Scan(&p.KeyframeID, &p.Stamp,
			&p.Pose.T.X, &p.Pose.T.Y, &p.Pose.T.Z,
			&p.Pose.R.W, &p.Pose.R.X, &p.Pose.R.Y, &p.Pose.R.Z)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// ObjectSample is one tracked-object state at a step.
type ObjectSample struct {
	Stamp         float64
	ObjectIndex   int
	TrackingIndex int
	Pose          pose.Pose
	Velocity      pose.Pose // per-second body-frame motion
	Confidence    float64
	Tight         bool
	TrackScore    int
	LostCount     int
}

// InsertObjectSamples appends object states observed at one step.
func (db *DB) InsertObjectSamples(runID string, samples []ObjectSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("insert object samples: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO object_states
		   (run_id, stamp, object_index, tracking_index,
		    x, y, z, qw, qx, qy, qz,
		    vx, vy, vz, vyaw,
		    confidence, tight, track_score, lost_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("insert object samples: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		_, _, vyaw := s.Velocity.R.Euler()
		_, err := stmt.Exec(runID, s.Stamp, s.ObjectIndex, s.TrackingIndex,
			s.Pose.T.X, s.Pose.T.Y, s.Pose.T.Z,
			s.Pose.R.W, s.Pose.R.X, s.Pose.R.Y, s.Pose.R.Z,
			s.Velocity.T.X, s.Velocity.T.Y, s.Velocity.T.Z, vyaw,
			s.Confidence, s.Tight, s.TrackScore, s.LostCount)
		if err != nil {
			return fmt.Errorf("insert object %d sample: %w", s.ObjectIndex, err)
		}
	}
	return tx.Commit()
}

// ObjectSeries returns each object's samples ordered by stamp, keyed by
// object index.
func (db *DB) ObjectSeries(runID string) (map[int][]ObjectSample, error) {
	rows, err := db.Query(
		`SELECT stamp, object_index, tracking_index,
		        x, y, z, qw, qx, qy, qz,
		        vx, vy, vz, vyaw,
		        confidence, tight, track_score, lost_count
		 FROM object_states WHERE run_id = ? ORDER BY object_index, stamp`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("load object series: %w", err)
	}
	defer rows.Close()

	series := make(map[int][]ObjectSample)
	for rows.Next() {
		var s ObjectSample
		var vyaw float64
		err := rows.Scan(&s.Stamp, &s.ObjectIndex, &s.TrackingIndex,
			&s.Pose.T.X, &s.Pose.T.Y, &s.Pose.T.Z,
			&s.Pose.R.W, &s.Pose.R.X, &s.Pose.R.Y, &s.Pose.R.Z,
			&s.Velocity.T.X, &s.Velocity.T.Y, &s.Velocity.T.Z, &vyaw,
			&s.Confidence, &s.Tight, &s.TrackScore, &s.LostCount)
		if err != nil {
			return nil, err
		}
		s.Velocity.R = pose.QuatFromEuler(0, 0, vyaw)
		series[s.ObjectIndex] = append(series[s.ObjectIndex], s)
	}
	return series, rows.Err()
}

// StepRecord is the per-step diagnostic row.
type StepRecord struct {
	Stamp      float64
	Keyframe   bool
	KeyframeID int
	LoopClosed bool
	Degenerate bool
	Detections int
	Matched    int
	Births     int
	Retired    int
	TightCount int
	ElapsedMS  float64
}

// InsertStep appends one step diagnostic record.
func (db *DB) InsertStep(runID string, rec StepRecord) error {
	_, err := db.Exec(
		`INSERT INTO steps
		   (run_id, stamp, keyframe, keyframe_id, loop_closed, degenerate,
		    detections, matched, births, retired, tight_count, elapsed_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Stamp, rec.Keyframe, rec.KeyframeID, rec.LoopClosed,
		rec.Degenerate, rec.Detections, rec.Matched, rec.Births, rec.Retired,
		rec.TightCount, rec.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("insert step at %.3f: %w", rec.Stamp, err)
	}
	return nil
}

// StepRecords returns the run's step diagnostics ordered by stamp.
func (db *DB) StepRecords(runID string) ([]StepRecord, error) {
	rows, err := db.Query(
		`SELECT stamp, keyframe, keyframe_id, loop_closed, degenerate,
		        detections, matched, births, retired, tight_count, elapsed_ms
		 FROM steps WHERE run_id = ? ORDER BY stamp`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	defer rows.Close()

	var recs []StepRecord
	for rows.Next() {
		var r StepRecord
		err := rows.Scan(&r.Stamp, &r.Keyframe, &r.KeyframeID, &r.LoopClosed,
			&r.Degenerate, &r.Detections, &r.Matched, &r.Births, &r.Retired,
			&r.TightCount, &r.ElapsedMS)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
