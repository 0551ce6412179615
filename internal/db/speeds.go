package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/flow.report/internal/flow"
	"github.com/banshee-data/flow.report/internal/trajectory"
)

// SpeedStore persists speed series against the projected points of a run.
// Undefined displacements and speeds are stored as NULL.
type SpeedStore struct {
	db *DB
}

// Speeds returns the speed store of db.
func (db *DB) Speeds() *SpeedStore { return &SpeedStore{db: db} }

// ErrPointMismatch is returned when a speed series does not belong to the
// points stored for a run.
var ErrPointMismatch = errors.New("speed samples do not match stored points")

// Save replaces the speed series of a run. samples[i] belongs to point i
// of the run and must carry the same filename and instant.
func (s *SpeedStore) Save(runID string, samples []flow.SpeedSample) error {
	points, err := s.db.Projections().Points(runID)
	if err != nil {
		return err
	}
	if len(samples) > len(points) {
		return fmt.Errorf("%w: run %s has %d points, got %d speed samples", ErrPointMismatch, runID, len(points), len(samples))
	}
	for i, sample := range samples {
		p := points[i]
		if sample.Point.Filename != p.Filename || !sample.Point.Timestamp.Equal(p.Timestamp) {
			return fmt.Errorf("%w: run %s seq %d is %s at %s, got %s at %s", ErrPointMismatch, runID, i,
				p.Filename, p.Timestamp.Format(time.RFC3339Nano),
				sample.Point.Filename, sample.Point.Timestamp.UTC().Format(time.RFC3339Nano))
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM speed_samples WHERE run_id = ?`, runID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO speed_samples (run_id, seq, displacement_m, speed_mpy) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, sample := range samples {
		if _, err := stmt.Exec(runID, i, nullable(sample.Displacement), nullable(sample.Speed)); err != nil {
			return fmt.Errorf("failed to insert speed %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// ForRun returns every point of a run with its stored speed. Points with
// no stored speed have nil displacement and speed.
func (s *SpeedStore) ForRun(runID string) ([]flow.SpeedSample, error) {
	rows, err := s.db.Query(`
		SELECT p.filename, p.timestamp_unix_nanos, p.x, p.y, p.z, sp.displacement_m, sp.speed_mpy
		FROM projected_points p
		LEFT JOIN speed_samples sp ON sp.run_id = p.run_id AND sp.seq = p.seq
		WHERE p.run_id = ?
		ORDER BY p.seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []flow.SpeedSample
	for rows.Next() {
		var (
			p           trajectory.ProjectedPoint
			nanos       int64
			v           r3.Vector
			disp, speed sql.NullFloat64
		)
		if err := rows.Scan(&p.Filename, &nanos, &v.X, &v.Y, &v.Z, &disp, &speed); err != nil {
			return nil, err
		}
		p.Timestamp = time.Unix(0, nanos).UTC()
		p.Position = v
		out = append(out, flow.SpeedSample{Point: p, Displacement: fromNullable(disp), Speed: fromNullable(speed)})
	}
	return out, rows.Err()
}

// Latest returns the speed series of the newest run of a track.
func (s *SpeedStore) Latest(trackID string) (ProjectionRun, []flow.SpeedSample, error) {
	run, err := s.db.Projections().LatestRun(trackID)
	if err != nil {
		return ProjectionRun{}, nil, err
	}
	samples, err := s.ForRun(run.ID)
	if err != nil {
		return ProjectionRun{}, nil, err
	}
	return run, samples, nil
}

// AllLatest returns the latest speed series of every track that has a
// projection, ordered by track ID.
func (s *SpeedStore) AllLatest() ([]flow.Series, error) {
	tracks, err := s.db.Tracks().List()
	if err != nil {
		return nil, err
	}
	var series []flow.Series
	for _, t := range tracks {
		run, err := s.db.Projections().LatestRun(t.ID)
		if errors.Is(err, ErrNoProjection) {
			continue
		}
		if err != nil {
			return nil, err
		}
		samples, err := s.ForRun(run.ID)
		if err != nil {
			return nil, err
		}
		series = append(series, flow.Series{ID: t.ID, Samples: samples})
	}
	return series, nil
}
