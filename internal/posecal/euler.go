package posecal

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// gimbalTolerance is how close |R[0][2]| may get to 1 before the x-y-z
// decomposition pins the z angle to zero.
const gimbalTolerance = 1e-9

// EulerXYZ decomposes R = Rx(roll)*Ry(pitch)*Rz(yaw), the intrinsic x-y-z
// convention, and returns the angles in degrees. Pitch lies in [-90, 90].
// At gimbal lock (pitch = +-90) yaw is reported as 0 and the combined
// rotation is assigned to roll.
func EulerXYZ(r mat.Matrix) (roll, pitch, yaw float64) {
	r02 := math.Max(-1, math.Min(1, r.At(0, 2)))
	pitch = math.Asin(r02)
	if math.Abs(r02) < 1-gimbalTolerance {
		roll = math.Atan2(-r.At(1, 2), r.At(2, 2))
		yaw = math.Atan2(-r.At(0, 1), r.At(0, 0))
	} else {
		roll = math.Atan2(r.At(2, 1), r.At(1, 1))
		yaw = 0
	}
	return deg(roll), deg(pitch), deg(yaw)
}

// RotationXYZ builds Rx(roll)*Ry(pitch)*Rz(yaw) from angles in degrees.
func RotationXYZ(roll, pitch, yaw float64) *mat.Dense {
	a, b, c := rad(roll), rad(pitch), rad(yaw)
	ca, sa := math.Cos(a), math.Sin(a)
	cb, sb := math.Cos(b), math.Sin(b)
	cc, sc := math.Cos(c), math.Sin(c)
	return mat.NewDense(3, 3, []float64{
		cb * cc, -cb * sc, sb,
		ca*sc + sa*sb*cc, ca*cc - sa*sb*sc, -sa * cb,
		sa*sc - ca*sb*cc, sa*cc + ca*sb*sc, ca * cb,
	})
}

func deg(r float64) float64 { return r * 180 / math.Pi }
func rad(d float64) float64 { return d * math.Pi / 180 }
