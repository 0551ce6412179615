package posecal

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateHomography is returned when no well-conditioned homography
// can be fitted to the correspondences.
var ErrDegenerateHomography = errors.New("degenerate homography")

// RANSACOptions configures robust homography estimation.
type RANSACOptions struct {
	// Threshold is the maximum reprojection error, in pixels, for an inlier.
	Threshold float64
	// MaxIterations caps the number of random samples.
	MaxIterations int
	// Confidence is the target probability of drawing one outlier-free sample.
	Confidence float64
	// Seed makes the sampling reproducible.
	Seed int64
}

// DefaultRANSACOptions returns a 3 px threshold, 2000 iterations and 0.995 confidence.
func DefaultRANSACOptions() RANSACOptions {
	return RANSACOptions{
		Threshold:     3.0,
		MaxIterations: 2000,
		Confidence:    0.995,
		Seed:          1,
	}
}

// Correspondence is a matched point pair: Src in the reference image, Dst in
// the shifted image.
type Correspondence struct {
	Src, Dst r2.Point
}

// EstimateHomography fits H with Dst ~ H*Src. It samples minimal four-point
// sets, scores them by forward reprojection error, and refits on the inliers
// of the best sample. The returned mask marks inliers of the final matrix.
func EstimateHomography(pairs []Correspondence, opts RANSACOptions) (*mat.Dense, []bool, error) {
	n := len(pairs)
	if n < 4 {
		return nil, nil, fmt.Errorf("%w: need at least 4 correspondences, got %d", ErrDegenerateHomography, n)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	var (
		best      *mat.Dense
		bestCount int
		sample    = make([]Correspondence, 4)
	)
	iterations := opts.MaxIterations
	if n == 4 {
		iterations = 1
	}
	for i := 0; i < iterations; i++ {
		idx := sampleIndices(rng, n, 4)
		for k, j := range idx {
			sample[k] = pairs[j]
		}
		if hasCollinearTriple(sample) {
			continue
		}
		h, err := fitDLT(sample)
		if err != nil {
			continue
		}
		_, count := inlierMask(h, pairs, opts.Threshold)
		if count > bestCount {
			best, bestCount = h, count
			if need := requiredIterations(opts.Confidence, float64(count)/float64(n), 4); need < iterations {
				iterations = need
			}
		}
	}
	if best == nil {
		return nil, nil, fmt.Errorf("%w: every sample was collinear or singular", ErrDegenerateHomography)
	}

	mask, _ := inlierMask(best, pairs, opts.Threshold)
	inliers := make([]Correspondence, 0, bestCount)
	for i, in := range mask {
		if in {
			inliers = append(inliers, pairs[i])
		}
	}
	if refit, err := fitDLT(inliers); err == nil {
		if refitMask, count := inlierMask(refit, pairs, opts.Threshold); count >= bestCount {
			return refit, refitMask, nil
		}
	}
	return best, mask, nil
}

// requiredIterations is the standard RANSAC stopping bound for inlier ratio w.
func requiredIterations(confidence, w float64, sampleSize int) int {
	pGood := math.Pow(w, float64(sampleSize))
	if pGood >= 1 {
		return 0
	}
	if pGood <= 0 {
		return math.MaxInt32
	}
	num := math.Log(1 - confidence)
	den := math.Log(1 - pGood)
	if den >= 0 {
		return math.MaxInt32
	}
	return int(math.Ceil(num / den))
}

func sampleIndices(rng *rand.Rand, n, k int) []int {
	idx := make([]int, 0, k)
	for len(idx) < k {
		j := rng.Intn(n)
		dup := false
		for _, e := range idx {
			if e == j {
				dup = true
				break
			}
		}
		if !dup {
			idx = append(idx, j)
		}
	}
	return idx
}

func hasCollinearTriple(s []Correspondence) bool {
	for _, pts := range [][]r2.Point{
		{s[0].Src, s[1].Src, s[2].Src, s[3].Src},
		{s[0].Dst, s[1].Dst, s[2].Dst, s[3].Dst},
	} {
		for a := 0; a < 4; a++ {
			for b := a + 1; b < 4; b++ {
				for c := b + 1; c < 4; c++ {
					u, v := pts[b].Sub(pts[a]), pts[c].Sub(pts[a])
					if math.Abs(u.Cross(v)) <= 1e-9*u.Norm()*v.Norm() {
						return true
					}
				}
			}
		}
	}
	return false
}

// Project maps p through h. ok is false when p maps to infinity.
func Project(h mat.Matrix, p r2.Point) (r2.Point, bool) {
	x := h.At(0, 0)*p.X + h.At(0, 1)*p.Y + h.At(0, 2)
	y := h.At(1, 0)*p.X + h.At(1, 1)*p.Y + h.At(1, 2)
	w := h.At(2, 0)*p.X + h.At(2, 1)*p.Y + h.At(2, 2)
	if math.Abs(w) < 1e-12 {
		return r2.Point{}, false
	}
	return r2.Point{X: x / w, Y: y / w}, true
}

func inlierMask(h *mat.Dense, pairs []Correspondence, threshold float64) ([]bool, int) {
	mask := make([]bool, len(pairs))
	count := 0
	for i, c := range pairs {
		p, ok := Project(h, c.Src)
		if ok && p.Sub(c.Dst).Norm() <= threshold {
			mask[i] = true
			count++
		}
	}
	return mask, count
}

// normalizer returns the similarity that moves the centroid of pts to the
// origin and scales their mean distance from it to sqrt(2), and its inverse.
func normalizer(pts []r2.Point) (t, tInv *mat.Dense, err error) {
	var c r2.Point
	for _, p := range pts {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(pts)))
	var mean float64
	for _, p := range pts {
		mean += p.Sub(c).Norm()
	}
	mean /= float64(len(pts))
	if mean == 0 || math.IsNaN(mean) || math.IsInf(mean, 0) {
		return nil, nil, fmt.Errorf("%w: coincident points", ErrDegenerateHomography)
	}
	s := math.Sqrt2 / mean
	t = mat.NewDense(3, 3, []float64{
		s, 0, -s * c.X,
		0, s, -s * c.Y,
		0, 0, 1,
	})
	tInv = mat.NewDense(3, 3, []float64{
		1 / s, 0, c.X,
		0, 1 / s, c.Y,
		0, 0, 1,
	})
	return t, tInv, nil
}

// fitDLT solves the normalised direct linear transform for pairs by taking
// the right singular vector of the smallest singular value.
func fitDLT(pairs []Correspondence) (*mat.Dense, error) {
	if len(pairs) < 4 {
		return nil, fmt.Errorf("%w: need at least 4 correspondences, got %d", ErrDegenerateHomography, len(pairs))
	}
	src := make([]r2.Point, len(pairs))
	dst := make([]r2.Point, len(pairs))
	for i, c := range pairs {
		src[i], dst[i] = c.Src, c.Dst
	}
	ts, _, err := normalizer(src)
	if err != nil {
		return nil, err
	}
	td, tdInv, err := normalizer(dst)
	if err != nil {
		return nil, err
	}

	a := mat.NewDense(2*len(pairs), 9, nil)
	for i := range pairs {
		s, _ := Project(ts, src[i])
		d, _ := Project(td, dst[i])
		a.SetRow(2*i, []float64{-s.X, -s.Y, -1, 0, 0, 0, d.X * s.X, d.X * s.Y, d.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -s.X, -s.Y, -1, d.Y * s.X, d.Y * s.Y, d.Y})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFullV); !ok {
		return nil, fmt.Errorf("%w: svd did not converge", ErrDegenerateHomography)
	}
	var v mat.Dense
	svd.VTo(&v)
	hn := mat.NewDense(3, 3, mat.Col(nil, 8, &v))

	var h mat.Dense
	h.Product(tdInv, hn, ts)
	if err := normalizeScale(&h); err != nil {
		return nil, err
	}
	return &h, nil
}

// normalizeScale fixes the projective scale so that h[2][2] == 1, or unit
// Frobenius norm when h[2][2] vanishes.
func normalizeScale(h *mat.Dense) error {
	scale := h.At(2, 2)
	if math.Abs(scale) < 1e-12 {
		scale = mat.Norm(h, 2)
	}
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return fmt.Errorf("%w: zero matrix", ErrDegenerateHomography)
	}
	h.Scale(1/scale, h)
	for _, v := range h.RawMatrix().Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite entry", ErrDegenerateHomography)
		}
	}
	return nil
}

// CheckConditioning rejects homographies whose singular value spread
// sigma1/sigma3 exceeds maxCondition.
func CheckConditioning(h mat.Matrix, maxCondition float64) error {
	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDNone); !ok {
		return fmt.Errorf("%w: svd did not converge", ErrDegenerateHomography)
	}
	s := svd.Values(nil)
	if s[2] <= 0 || math.IsNaN(s[0]) {
		return fmt.Errorf("%w: singular matrix", ErrDegenerateHomography)
	}
	if cond := s[0] / s[2]; cond > maxCondition {
		return fmt.Errorf("%w: condition number %.3g exceeds %.3g", ErrDegenerateHomography, cond, maxCondition)
	}
	return nil
}
