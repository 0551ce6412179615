package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/flow.report/internal/camera"
	"github.com/banshee-data/flow.report/internal/flow"
	"github.com/banshee-data/flow.report/internal/posecal"
	"github.com/banshee-data/flow.report/internal/terrain"
	"github.com/banshee-data/flow.report/internal/units"
)

// DefaultConfigPath is the path to the canonical survey defaults file.
const DefaultConfigPath = "config/survey.defaults.json"

// SurveyConfig describes one timelapse survey: the camera, the reference
// line speeds are measured along, the ray-march settings and the pose
// recovery settings. Fields omitted from the JSON fall back to the
// defaults returned by the Get* methods.
type SurveyConfig struct {
	// Camera position in the projected CRS of the DEM, metres.
	CameraX *float64 `json:"camera_x,omitempty"`
	CameraY *float64 `json:"camera_y,omitempty"`
	CameraZ *float64 `json:"camera_z,omitempty"`

	// Base orientation, degrees.
	YawDeg   *float64 `json:"yaw_deg,omitempty"`
	PitchDeg *float64 `json:"pitch_deg,omitempty"`
	RollDeg  *float64 `json:"roll_deg,omitempty"`

	// Intrinsics
	FocalLengthMM  *float64 `json:"focal_length_mm,omitempty"`
	SensorWidthMM  *float64 `json:"sensor_width_mm,omitempty"`
	SensorHeightMM *float64 `json:"sensor_height_mm,omitempty"`
	ImageWidth     *int     `json:"image_width,omitempty"`
	ImageHeight    *int     `json:"image_height,omitempty"`

	// Reference line, projected CRS.
	ReferenceStartX *float64 `json:"reference_start_x,omitempty"`
	ReferenceStartY *float64 `json:"reference_start_y,omitempty"`
	ReferenceEndX   *float64 `json:"reference_end_x,omitempty"`
	ReferenceEndY   *float64 `json:"reference_end_y,omitempty"`

	// Ray march
	MaxDistance      *float64 `json:"max_distance,omitempty"`
	Step             *float64 `json:"step,omitempty"`
	RefineIterations *int     `json:"refine_iterations,omitempty"`
	OutOfBounds      *string  `json:"out_of_bounds,omitempty"` // "continue" or "stop"

	// Pose recovery
	MatchRatio          *float64 `json:"match_ratio,omitempty"`
	MinMatches          *int     `json:"min_matches,omitempty"`
	RANSACThreshold     *float64 `json:"ransac_threshold,omitempty"`
	RANSACMaxIterations *int     `json:"ransac_max_iterations,omitempty"`
	RANSACConfidence    *float64 `json:"ransac_confidence,omitempty"`
	MaxConditionNumber  *float64 `json:"max_condition_number,omitempty"`
	CandidateSelector   *string  `json:"candidate_selector,omitempty"`

	// Site
	Timezone *string `json:"timezone,omitempty"`
	DEMPath  *string `json:"dem_path,omitempty"`
	Workers  *int    `json:"workers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySurveyConfig returns a SurveyConfig with all fields set to nil.
func EmptySurveyConfig() *SurveyConfig {
	return &SurveyConfig{}
}

// DefaultSurveyConfig returns the survey of the original deployment with
// every field set.
func DefaultSurveyConfig() *SurveyConfig {
	return &SurveyConfig{
		CameraX:             ptrFloat64(887045),
		CameraY:             ptrFloat64(6540858),
		CameraZ:             ptrFloat64(1373),
		YawDeg:              ptrFloat64(135),
		PitchDeg:            ptrFloat64(0),
		RollDeg:             ptrFloat64(0),
		FocalLengthMM:       ptrFloat64(34),
		SensorWidthMM:       ptrFloat64(22.3),
		SensorHeightMM:      ptrFloat64(14.9),
		ImageWidth:          ptrInt(1920),
		ImageHeight:         ptrInt(1440),
		ReferenceStartX:     ptrFloat64(887712.188),
		ReferenceStartY:     ptrFloat64(6540636.079),
		ReferenceEndX:       ptrFloat64(886806.161),
		ReferenceEndY:       ptrFloat64(6540336.018),
		MaxDistance:         ptrFloat64(5000),
		Step:                ptrFloat64(0.5),
		RefineIterations:    ptrInt(0),
		OutOfBounds:         ptrString("continue"),
		MatchRatio:          ptrFloat64(0.3),
		MinMatches:          ptrInt(10),
		RANSACThreshold:     ptrFloat64(3.0),
		RANSACMaxIterations: ptrInt(2000),
		RANSACConfidence:    ptrFloat64(0.995),
		MaxConditionNumber:  ptrFloat64(1e7),
		CandidateSelector:   ptrString(posecal.SelectorFirst),
		Timezone:            ptrString("UTC"),
		Workers:             ptrInt(4),
	}
}

// LoadSurveyConfig loads a SurveyConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Omitted fields
// keep nil and resolve through the Get* defaults.
func LoadSurveyConfig(path string) (*SurveyConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySurveyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the current directory
// or a parent. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *SurveyConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadSurveyConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that are set. Cross-field checks that need
// defaults go through the Get* accessors.
func (c *SurveyConfig) Validate() error {
	if _, err := c.Intrinsics(); err != nil {
		return err
	}
	if _, err := c.ReferenceDirection(); err != nil {
		return err
	}
	if c.MaxDistance != nil && !(*c.MaxDistance > 0) {
		return fmt.Errorf("max_distance must be positive, got %f", *c.MaxDistance)
	}
	if c.Step != nil && !(*c.Step > 0) {
		return fmt.Errorf("step must be positive, got %f", *c.Step)
	}
	if c.RefineIterations != nil && *c.RefineIterations < 0 {
		return fmt.Errorf("refine_iterations must not be negative, got %d", *c.RefineIterations)
	}
	if _, err := terrain.ParseOutOfBoundsPolicy(c.GetOutOfBounds()); err != nil {
		return err
	}
	if c.MatchRatio != nil && (*c.MatchRatio <= 0 || *c.MatchRatio > 1) {
		return fmt.Errorf("match_ratio must be in (0, 1], got %f", *c.MatchRatio)
	}
	if c.MinMatches != nil && *c.MinMatches < 4 {
		return fmt.Errorf("min_matches must be at least 4 to fit a homography, got %d", *c.MinMatches)
	}
	if c.RANSACThreshold != nil && !(*c.RANSACThreshold > 0) {
		return fmt.Errorf("ransac_threshold must be positive, got %f", *c.RANSACThreshold)
	}
	if c.RANSACMaxIterations != nil && *c.RANSACMaxIterations < 1 {
		return fmt.Errorf("ransac_max_iterations must be at least 1, got %d", *c.RANSACMaxIterations)
	}
	if c.RANSACConfidence != nil && (*c.RANSACConfidence <= 0 || *c.RANSACConfidence >= 1) {
		return fmt.Errorf("ransac_confidence must be in (0, 1), got %f", *c.RANSACConfidence)
	}
	if c.MaxConditionNumber != nil && !(*c.MaxConditionNumber > 1) {
		return fmt.Errorf("max_condition_number must exceed 1, got %f", *c.MaxConditionNumber)
	}
	if _, err := posecal.SelectorByName(c.GetCandidateSelector()); err != nil {
		return err
	}
	if tz := c.GetTimezone(); !units.IsTimezoneValid(tz) {
		return fmt.Errorf("invalid timezone %q", tz)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	return nil
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func getString(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}

var defaults = DefaultSurveyConfig()

// GetCameraPosition returns the camera centre.
func (c *SurveyConfig) GetCameraPosition() r3.Vector {
	return r3.Vector{
		X: getFloat(c.CameraX, *defaults.CameraX),
		Y: getFloat(c.CameraY, *defaults.CameraY),
		Z: getFloat(c.CameraZ, *defaults.CameraZ),
	}
}

// GetPose returns the camera pose.
func (c *SurveyConfig) GetPose() camera.Pose {
	return camera.Pose{
		Position: c.GetCameraPosition(),
		Yaw:      getFloat(c.YawDeg, *defaults.YawDeg),
		Pitch:    getFloat(c.PitchDeg, *defaults.PitchDeg),
		Roll:     getFloat(c.RollDeg, *defaults.RollDeg),
	}
}

// Intrinsics returns the validated camera intrinsics.
func (c *SurveyConfig) Intrinsics() (camera.Intrinsics, error) {
	in := camera.Intrinsics{
		FocalLengthMM:  getFloat(c.FocalLengthMM, *defaults.FocalLengthMM),
		SensorWidthMM:  getFloat(c.SensorWidthMM, *defaults.SensorWidthMM),
		SensorHeightMM: getFloat(c.SensorHeightMM, *defaults.SensorHeightMM),
		ImageWidth:     getInt(c.ImageWidth, *defaults.ImageWidth),
		ImageHeight:    getInt(c.ImageHeight, *defaults.ImageHeight),
	}
	if err := in.Validate(); err != nil {
		return camera.Intrinsics{}, err
	}
	return in, nil
}

// Camera builds the configured camera.
func (c *SurveyConfig) Camera() (*camera.Camera, error) {
	in, err := c.Intrinsics()
	if err != nil {
		return nil, err
	}
	return camera.NewCamera(in, c.GetPose())
}

// ReferenceDirection builds the configured reference direction.
func (c *SurveyConfig) ReferenceDirection() (flow.ReferenceDirection, error) {
	start := r2.Point{
		X: getFloat(c.ReferenceStartX, *defaults.ReferenceStartX),
		Y: getFloat(c.ReferenceStartY, *defaults.ReferenceStartY),
	}
	end := r2.Point{
		X: getFloat(c.ReferenceEndX, *defaults.ReferenceEndX),
		Y: getFloat(c.ReferenceEndY, *defaults.ReferenceEndY),
	}
	return flow.NewReferenceDirection(start, end)
}

// GetOutOfBounds returns the out-of-bounds policy name.
func (c *SurveyConfig) GetOutOfBounds() string {
	return getString(c.OutOfBounds, *defaults.OutOfBounds)
}

// IntersectorConfig returns the ray-march settings.
func (c *SurveyConfig) IntersectorConfig() (terrain.IntersectorConfig, error) {
	policy, err := terrain.ParseOutOfBoundsPolicy(c.GetOutOfBounds())
	if err != nil {
		return terrain.IntersectorConfig{}, err
	}
	return terrain.IntersectorConfig{
		MaxDistance:      getFloat(c.MaxDistance, *defaults.MaxDistance),
		Step:             getFloat(c.Step, *defaults.Step),
		RefineIterations: getInt(c.RefineIterations, *defaults.RefineIterations),
		OutOfBounds:      policy,
	}, nil
}

// GetCandidateSelector returns the candidate selector name.
func (c *SurveyConfig) GetCandidateSelector() string {
	return getString(c.CandidateSelector, *defaults.CandidateSelector)
}

// PoseConfig returns the pose recovery settings.
func (c *SurveyConfig) PoseConfig() (posecal.Config, error) {
	sel, err := posecal.SelectorByName(c.GetCandidateSelector())
	if err != nil {
		return posecal.Config{}, err
	}
	ransac := posecal.DefaultRANSACOptions()
	ransac.Threshold = getFloat(c.RANSACThreshold, *defaults.RANSACThreshold)
	ransac.MaxIterations = getInt(c.RANSACMaxIterations, *defaults.RANSACMaxIterations)
	ransac.Confidence = getFloat(c.RANSACConfidence, *defaults.RANSACConfidence)
	return posecal.Config{
		Ratio:              getFloat(c.MatchRatio, *defaults.MatchRatio),
		MinMatches:         getInt(c.MinMatches, *defaults.MinMatches),
		RANSAC:             ransac,
		MaxConditionNumber: getFloat(c.MaxConditionNumber, *defaults.MaxConditionNumber),
		Selector:           sel,
	}, nil
}

// GetTimezone returns the site timezone name.
func (c *SurveyConfig) GetTimezone() string {
	return getString(c.Timezone, *defaults.Timezone)
}

// GetDEMPath returns the DEM path, empty when unset.
func (c *SurveyConfig) GetDEMPath() string {
	return getString(c.DEMPath, "")
}

// GetWorkers returns the projection worker count.
func (c *SurveyConfig) GetWorkers() int {
	return getInt(c.Workers, *defaults.Workers)
}
