package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/banshee-data/flow.report/internal/trajectory"
)

// ErrNoProjection is returned when a track has no projection run.
var ErrNoProjection = errors.New("track has no projection")

// ProjectionRun records one projection of a track onto the terrain.
type ProjectionRun struct {
	ID          string          `json:"run_id"`
	TrackID     string          `json:"track_id"`
	CreatedUnix int64           `json:"created_unix"`
	Params      json.RawMessage `json:"params"`
	Projected   int             `json:"projected"`
	Dropped     int             `json:"dropped"`
}

// ProjectionStore persists projection runs and their points.
type ProjectionStore struct {
	db *DB
}

// Projections returns the projection store of db.
func (db *DB) Projections() *ProjectionStore { return &ProjectionStore{db: db} }

// Save stores a projected track as a new run. params records the settings
// the run was produced with and may be nil. The track must already be stored.
func (s *ProjectionStore) Save(track trajectory.ProjectedTrack, params interface{}) (ProjectionRun, error) {
	if err := s.db.Tracks().exists(track.ID); err != nil {
		return ProjectionRun{}, err
	}
	paramsJSON := []byte("{}")
	if params != nil {
		var err error
		if paramsJSON, err = json.Marshal(params); err != nil {
			return ProjectionRun{}, fmt.Errorf("failed to encode params: %w", err)
		}
	}
	run := ProjectionRun{
		ID:          uuid.NewString(),
		TrackID:     track.ID,
		CreatedUnix: s.db.nowUnix(),
		Params:      paramsJSON,
		Projected:   len(track.Points),
		Dropped:     len(track.Dropped),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ProjectionRun{}, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO projection_runs (run_id, track_id, created_unix, params_json, projected, dropped) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.TrackID, run.CreatedUnix, string(run.Params), run.Projected, run.Dropped,
	); err != nil {
		return ProjectionRun{}, fmt.Errorf("failed to insert projection run: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO projected_points (run_id, seq, filename, timestamp_unix_nanos, x, y, z) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return ProjectionRun{}, err
	}
	defer stmt.Close()
	for i, p := range track.Points {
		if _, err := stmt.Exec(run.ID, i, p.Filename, p.Timestamp.UnixNano(), p.Position.X, p.Position.Y, p.Position.Z); err != nil {
			return ProjectionRun{}, fmt.Errorf("failed to insert point %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return ProjectionRun{}, err
	}
	return run, nil
}

// Runs lists the projection runs of a track, newest first.
func (s *ProjectionStore) Runs(trackID string) ([]ProjectionRun, error) {
	if err := s.db.Tracks().exists(trackID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT run_id, track_id, created_unix, params_json, projected, dropped
		FROM projection_runs WHERE track_id = ?
		ORDER BY created_unix DESC, rowid DESC`, trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ProjectionRun
	for rows.Next() {
		var (
			run    ProjectionRun
			params string
		)
		if err := rows.Scan(&run.ID, &run.TrackID, &run.CreatedUnix, &params, &run.Projected, &run.Dropped); err != nil {
			return nil, err
		}
		run.Params = json.RawMessage(params)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest projection run of a track.
func (s *ProjectionStore) LatestRun(trackID string) (ProjectionRun, error) {
	runs, err := s.Runs(trackID)
	if err != nil {
		return ProjectionRun{}, err
	}
	if len(runs) == 0 {
		return ProjectionRun{}, fmt.Errorf("%w: %s", ErrNoProjection, trackID)
	}
	return runs[0], nil
}

// Points returns the points of a run in sample order, timestamps in UTC.
func (s *ProjectionStore) Points(runID string) ([]trajectory.ProjectedPoint, error) {
	rows, err := s.db.Query(`SELECT filename, timestamp_unix_nanos, x, y, z FROM projected_points WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []trajectory.ProjectedPoint
	for rows.Next() {
		var (
			p     trajectory.ProjectedPoint
			nanos int64
			v     r3.Vector
		)
		if err := rows.Scan(&p.Filename, &nanos, &v.X, &v.Y, &v.Z); err != nil {
			return nil, err
		}
		p.Timestamp = time.Unix(0, nanos).UTC()
		p.Position = v
		points = append(points, p)
	}
	return points, rows.Err()
}

// Latest returns the newest run of a track with its points.
func (s *ProjectionStore) Latest(trackID string) (ProjectionRun, []trajectory.ProjectedPoint, error) {
	run, err := s.LatestRun(trackID)
	if err != nil {
		return ProjectionRun{}, nil, err
	}
	points, err := s.Points(run.ID)
	if err != nil {
		return ProjectionRun{}, nil, err
	}
	return run, points, nil
}
