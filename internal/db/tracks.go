package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/flow.report/internal/trajectory"
)

// TrackSummary describes one stored track.
type TrackSummary struct {
	ID          string    `json:"track_id"`
	Source      string    `json:"source"`
	Samples     int       `json:"samples"`
	FirstSample time.Time `json:"first_sample"`
	LastSample  time.Time `json:"last_sample"`
	UpdatedUnix int64     `json:"updated_unix"`
}

// TrackStore persists tracked pixel samples.
type TrackStore struct {
	db *DB
}

// Tracks returns the track store of db.
func (db *DB) Tracks() *TrackStore { return &TrackStore{db: db} }

// Save stores track, replacing any samples already stored under its ID.
// Projection runs of the track are kept.
func (s *TrackStore) Save(track trajectory.Track, source string) error {
	if track.ID == "" {
		return fmt.Errorf("track id is required")
	}
	now := s.db.nowUnix()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO tracks (track_id, source, created_unix, updated_unix) VALUES (?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET source = excluded.source, updated_unix = excluded.updated_unix`,
		track.ID, source, now, now,
	); err != nil {
		return fmt.Errorf("failed to upsert track: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM track_samples WHERE track_id = ?`, track.ID); err != nil {
		return fmt.Errorf("failed to clear samples: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO track_samples (track_id, seq, filename, timestamp_unix_nanos, pixel_x, pixel_y) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, sample := range track.Samples {
		if _, err := stmt.Exec(track.ID, i, sample.Filename, sample.Timestamp.UnixNano(), sample.X, sample.Y); err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Get returns the stored track in sample order. Timestamps are returned in UTC.
func (s *TrackStore) Get(id string) (trajectory.Track, error) {
	if err := s.exists(id); err != nil {
		return trajectory.Track{}, err
	}

	rows, err := s.db.Query(`SELECT filename, timestamp_unix_nanos, pixel_x, pixel_y FROM track_samples WHERE track_id = ? ORDER BY seq`, id)
	if err != nil {
		return trajectory.Track{}, err
	}
	defer rows.Close()

	track := trajectory.Track{ID: id}
	for rows.Next() {
		var (
			sample trajectory.TrackedSample
			nanos  int64
		)
		if err := rows.Scan(&sample.Filename, &nanos, &sample.X, &sample.Y); err != nil {
			return trajectory.Track{}, err
		}
		sample.Timestamp = time.Unix(0, nanos).UTC()
		track.Samples = append(track.Samples, sample)
	}
	return track, rows.Err()
}

// List summarises every stored track, ordered by ID.
func (s *TrackStore) List() ([]TrackSummary, error) {
	rows, err := s.db.Query(`
		SELECT t.track_id, t.source, t.updated_unix,
		       COUNT(ts.seq), MIN(ts.timestamp_unix_nanos), MAX(ts.timestamp_unix_nanos)
		FROM tracks t
		LEFT JOIN track_samples ts ON ts.track_id = t.track_id
		GROUP BY t.track_id
		ORDER BY t.track_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackSummary
	for rows.Next() {
		var (
			ts          TrackSummary
			first, last sql.NullInt64
		)
		if err := rows.Scan(&ts.ID, &ts.Source, &ts.UpdatedUnix, &ts.Samples, &first, &last); err != nil {
			return nil, err
		}
		if first.Valid {
			ts.FirstSample = time.Unix(0, first.Int64).UTC()
			ts.LastSample = time.Unix(0, last.Int64).UTC()
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// Delete removes a track with its samples and projection runs.
func (s *TrackStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM tracks WHERE track_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	return nil
}

// exists reports whether id is stored.
func (s *TrackStore) exists(id string) error {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM tracks WHERE track_id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrTrackNotFound, id)
	}
	return err
}
