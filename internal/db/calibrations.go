package db

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/flow.report/internal/posecal"
)

// Calibration is a stored pose recovery between two images.
type Calibration struct {
	ID             string     `json:"calibration_id"`
	CreatedUnix    int64      `json:"created_unix"`
	ReferenceImage string     `json:"reference_image"`
	ShiftedImage   string     `json:"shifted_image"`
	RollDeg        float64    `json:"roll_deg"`
	PitchDeg       float64    `json:"pitch_deg"`
	YawDeg         float64    `json:"yaw_deg"`
	Matches        int        `json:"matches"`
	Inliers        int        `json:"inliers"`
	Candidates     int        `json:"candidates"`
	Homography     [9]float64 `json:"homography"`
}

// CalibrationStore persists pose recoveries.
type CalibrationStore struct {
	db *DB
}

// Calibrations returns the calibration store of db.
func (db *DB) Calibrations() *CalibrationStore { return &CalibrationStore{db: db} }

// Save records res for the image pair and returns the stored calibration.
func (s *CalibrationStore) Save(refImage, shiftedImage string, res *posecal.Result) (Calibration, error) {
	if res == nil {
		return Calibration{}, fmt.Errorf("nil pose result")
	}
	c := Calibration{
		ID:             uuid.NewString(),
		CreatedUnix:    s.db.nowUnix(),
		ReferenceImage: refImage,
		ShiftedImage:   shiftedImage,
		RollDeg:        res.Roll,
		PitchDeg:       res.Pitch,
		YawDeg:         res.Yaw,
		Matches:        res.Matches,
		Inliers:        res.Inliers,
		Candidates:     res.Candidates,
		Homography:     res.Homography,
	}
	h, err := json.Marshal(c.Homography)
	if err != nil {
		return Calibration{}, err
	}
	_, err = s.db.Exec(`
		INSERT INTO calibrations (calibration_id, created_unix, reference_image, shifted_image,
			roll_deg, pitch_deg, yaw_deg, matches, inliers, candidates, homography_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CreatedUnix, c.ReferenceImage, c.ShiftedImage,
		c.RollDeg, c.PitchDeg, c.YawDeg, c.Matches, c.Inliers, c.Candidates, string(h),
	)
	if err != nil {
		return Calibration{}, fmt.Errorf("failed to insert calibration: %w", err)
	}
	return c, nil
}

// List returns stored calibrations, newest first, at most limit rows when
// limit is positive.
func (s *CalibrationStore) List(limit int) ([]Calibration, error) {
	query := `
		SELECT calibration_id, created_unix, reference_image, shifted_image,
			roll_deg, pitch_deg, yaw_deg, matches, inliers, candidates, homography_json
		FROM calibrations ORDER BY created_unix DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Calibration
	for rows.Next() {
		var (
			c Calibration
			h string
		)
		if err := rows.Scan(&c.ID, &c.CreatedUnix, &c.ReferenceImage, &c.ShiftedImage,
			&c.RollDeg, &c.PitchDeg, &c.YawDeg, &c.Matches, &c.Inliers, &c.Candidates, &h); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(h), &c.Homography); err != nil {
			return nil, fmt.Errorf("calibration %s: bad homography: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
