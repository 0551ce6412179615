package posecal

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/flow.report/internal/camera"
)

// pureRotationTolerance is the singular value spread below which a
// normalised homography is treated as a pure rotation.
const pureRotationTolerance = 1e-6

// Candidate is one physically admissible {R, T/d, N} solution of
// H = R + (T/d) N^T in the reference camera frame.
type Candidate struct {
	R *mat.Dense
	// T is the translation divided by the plane distance. Zero for a pure rotation.
	T r3.Vector
	// N is the unit plane normal. Zero for a pure rotation.
	N r3.Vector
}

// CalibrationMatrix returns K for the given intrinsics.
func CalibrationMatrix(intr camera.Intrinsics) *mat.Dense {
	k := intr.Matrix()
	return mat.NewDense(3, 3, k[:])
}

// Decompose splits a pixel-space homography into rotation candidates using
// the SVD method. It returns four candidates in the general case and a
// single candidate when the homography is a pure rotation.
func Decompose(h mat.Matrix, k *mat.Dense) ([]Candidate, error) {
	var kInv mat.Dense
	if err := kInv.Inverse(k); err != nil {
		return nil, fmt.Errorf("invert calibration matrix: %w", err)
	}
	var hn mat.Dense
	hn.Product(&kInv, h, k)

	var svd mat.SVD
	if ok := svd.Factorize(&hn, mat.SVDFull); !ok {
		return nil, fmt.Errorf("%w: svd did not converge", ErrDegenerateHomography)
	}
	s := svd.Values(nil)
	if s[1] <= 0 {
		return nil, fmt.Errorf("%w: rank deficient", ErrDegenerateHomography)
	}
	hn.Scale(1/s[1], &hn)
	if mat.Det(&hn) < 0 {
		hn.Scale(-1, &hn)
	}
	s1, s3 := s[0]/s[1], s[2]/s[1]

	if s1-s3 < pureRotationTolerance {
		return []Candidate{{R: nearestRotation(&hn)}}, nil
	}

	var v mat.Dense
	svd.VTo(&v)
	v1, v2, v3 := column(&v, 0), column(&v, 1), column(&v, 2)

	s1sq, s3sq := s1*s1, s3*s3
	a := math.Sqrt(math.Max(0, 1-s3sq))
	b := math.Sqrt(math.Max(0, s1sq-1))
	den := math.Sqrt(s1sq - s3sq)
	u1 := v1.Mul(a).Add(v3.Mul(b)).Mul(1 / den)
	u2 := v1.Mul(a).Sub(v3.Mul(b)).Mul(1 / den)

	first := solve(&hn, v2, u1)
	second := solve(&hn, v2, u2)
	return []Candidate{
		first,
		second,
		{R: first.R, T: first.T.Mul(-1), N: first.N.Mul(-1)},
		{R: second.R, T: second.T.Mul(-1), N: second.N.Mul(-1)},
	}, nil
}

// solve builds R from the orthonormal frames {v2, u, v2 x u} and their
// images under h, then recovers N and T.
func solve(h *mat.Dense, v2, u r3.Vector) Candidate {
	hv2, hu := apply(h, v2), apply(h, u)
	n := v2.Cross(u)

	uFrame := frame(v2, u, n)
	wFrame := frame(hv2, hu, hv2.Cross(hu))

	var r mat.Dense
	r.Mul(wFrame, uFrame.T())

	var hr mat.Dense
	hr.Sub(h, &r)
	t := apply(&hr, n)
	return Candidate{R: &r, T: t, N: n}
}

// nearestRotation projects m onto SO(3) in the Frobenius sense.
func nearestRotation(m mat.Matrix) *mat.Dense {
	var svd mat.SVD
	svd.Factorize(m, mat.SVDFull)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return &r
}

func column(m mat.Matrix, j int) r3.Vector {
	return r3.Vector{X: m.At(0, j), Y: m.At(1, j), Z: m.At(2, j)}
}

func apply(m mat.Matrix, v r3.Vector) r3.Vector {
	return r3.Vector{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

// frame stacks three vectors as the columns of a 3x3 matrix.
func frame(a, b, c r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		a.X, b.X, c.X,
		a.Y, b.Y, c.Y,
		a.Z, b.Z, c.Z,
	})
}
