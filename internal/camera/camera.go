// Package camera implements the pinhole camera model used to turn clicked
// pixel coordinates into world-frame rays.
//
// World frame: X east, Y north (grid north of the projected CRS), Z up.
// Yaw is measured clockwise from +Y, pitch is positive looking down. Roll is
// carried for completeness but does not rotate the ray; the model treats
// horizontal and vertical pixel offsets as independent yaw and pitch
// increments, which is accurate for the near-level cameras it was built for.
package camera

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// ErrInvalidIntrinsics is returned when a sensor, image or focal dimension is
// not a positive finite number.
var ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")

// Intrinsics describes the lens and sensor.
type Intrinsics struct {
	FocalLengthMM  float64 `json:"focal_length_mm"`
	SensorWidthMM  float64 `json:"sensor_width_mm"`
	SensorHeightMM float64 `json:"sensor_height_mm"`
	ImageWidth     int     `json:"image_width"`
	ImageHeight    int     `json:"image_height"`
}

// Validate checks that every dimension is positive.
func (in Intrinsics) Validate() error {
	check := func(name string, v float64) error {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidIntrinsics, name, v)
		}
		return nil
	}
	if err := check("focal_length_mm", in.FocalLengthMM); err != nil {
		return err
	}
	if err := check("sensor_width_mm", in.SensorWidthMM); err != nil {
		return err
	}
	if err := check("sensor_height_mm", in.SensorHeightMM); err != nil {
		return err
	}
	if err := check("image_width", float64(in.ImageWidth)); err != nil {
		return err
	}
	return check("image_height", float64(in.ImageHeight))
}

// Fx is the horizontal focal length in pixels.
func (in Intrinsics) Fx() float64 {
	return in.FocalLengthMM / in.SensorWidthMM * float64(in.ImageWidth)
}

// Fy is the vertical focal length in pixels.
func (in Intrinsics) Fy() float64 {
	return in.FocalLengthMM / in.SensorHeightMM * float64(in.ImageHeight)
}

// Cx is the principal point column: the image centre.
func (in Intrinsics) Cx() float64 { return float64(in.ImageWidth) / 2 }

// Cy is the principal point row: the image centre.
func (in Intrinsics) Cy() float64 { return float64(in.ImageHeight) / 2 }

// PixelPitchX is the sensor width of one pixel column in millimetres.
func (in Intrinsics) PixelPitchX() float64 {
	return in.SensorWidthMM / float64(in.ImageWidth)
}

// PixelPitchY is the sensor height of one pixel row in millimetres.
func (in Intrinsics) PixelPitchY() float64 {
	return in.SensorHeightMM / float64(in.ImageHeight)
}

// Matrix returns the 3x3 calibration matrix K in row-major order.
func (in Intrinsics) Matrix() [9]float64 {
	return [9]float64{
		in.Fx(), 0, in.Cx(),
		0, in.Fy(), in.Cy(),
		0, 0, 1,
	}
}

// Pose is the camera position and orientation. Angles are in degrees.
type Pose struct {
	Position r3.Vector `json:"position"`
	Yaw      float64   `json:"yaw_deg"`
	Pitch    float64   `json:"pitch_deg"`
	Roll     float64   `json:"roll_deg"`
}

// Normalized returns the pose with yaw in [0, 360) and pitch and roll in
// (-180, 180].
func (p Pose) Normalized() Pose {
	p.Yaw = wrap360(p.Yaw)
	p.Pitch = wrap180(p.Pitch)
	p.Roll = wrap180(p.Roll)
	return p
}

func wrap360(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	if d == 360 {
		d = 0
	}
	return d
}

func wrap180(deg float64) float64 {
	d := wrap360(deg)
	if d > 180 {
		d -= 360
	}
	return d
}

// Camera combines intrinsics with a normalised pose.
type Camera struct {
	intr Intrinsics
	pose Pose
}

// NewCamera validates the intrinsics and normalises the pose.
func NewCamera(intr Intrinsics, pose Pose) (*Camera, error) {
	if err := intr.Validate(); err != nil {
		return nil, err
	}
	return &Camera{intr: intr, pose: pose.Normalized()}, nil
}

// Intrinsics returns the camera intrinsics.
func (c *Camera) Intrinsics() Intrinsics { return c.intr }

// Pose returns the normalised camera pose.
func (c *Camera) Pose() Pose { return c.pose }

// Position returns the camera centre in world coordinates.
func (c *Camera) Position() r3.Vector { return c.pose.Position }

// PixelToRay returns the unit world-frame direction of the ray through pixel
// (px, py). Pixels outside the image are accepted and extrapolated.
func (c *Camera) PixelToRay(px, py float64) r3.Vector {
	xmm := (px - c.intr.Cx()) * c.intr.PixelPitchX()
	ymm := (py - c.intr.Cy()) * c.intr.PixelPitchY()

	yaw := c.pose.Yaw + degrees(math.Atan2(xmm, c.intr.FocalLengthMM))
	pitch := c.pose.Pitch + degrees(math.Atan2(ymm, c.intr.FocalLengthMM))
	return Direction(yaw, pitch)
}

// Direction returns the unit vector for a yaw/pitch pair in degrees.
func Direction(yawDeg, pitchDeg float64) r3.Vector {
	y, p := radians(yawDeg), radians(pitchDeg)
	return r3.Vector{
		X: math.Cos(p) * math.Sin(y),
		Y: math.Cos(p) * math.Cos(y),
		Z: -math.Sin(p),
	}
}

// WorldToPixel inverts PixelToRay for a world point. ok is false when the
// point coincides with the camera centre or its angular offset from the
// optical axis reaches 90 degrees in either direction.
func (c *Camera) WorldToPixel(p r3.Vector) (px, py float64, ok bool) {
	d := p.Sub(c.pose.Position)
	if d.Norm() == 0 {
		return 0, 0, false
	}
	horiz := math.Hypot(d.X, d.Y)
	yaw := degrees(math.Atan2(d.X, d.Y))
	pitch := degrees(math.Atan2(-d.Z, horiz))

	dYaw := wrap180(yaw - c.pose.Yaw)
	dPitch := wrap180(pitch - c.pose.Pitch)
	if math.Abs(dYaw) >= 90 || math.Abs(dPitch) >= 90 {
		return 0, 0, false
	}

	xmm := math.Tan(radians(dYaw)) * c.intr.FocalLengthMM
	ymm := math.Tan(radians(dPitch)) * c.intr.FocalLengthMM
	return xmm/c.intr.PixelPitchX() + c.intr.Cx(), ymm/c.intr.PixelPitchY() + c.intr.Cy(), true
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
func radians(deg float64) float64 { return deg * math.Pi / 180 }
