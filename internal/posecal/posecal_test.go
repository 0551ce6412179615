package posecal

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/flow.report/internal/camera"
	"github.com/banshee-data/flow.report/internal/monitoring"
)

var testIntrinsics = camera.Intrinsics{
	FocalLengthMM:  34,
	SensorWidthMM:  22.3,
	SensorHeightMM: 14.9,
	ImageWidth:     1920,
	ImageHeight:    1440,
}

func init() {
	monitoring.SetLogger(nil)
}

// syntheticFeatures scatters n features over the image with random
// descriptors and maps them through h into the shifted image.
func syntheticFeatures(t *testing.T, n int, h mat.Matrix, seed int64) (ref, shifted []Feature) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		p := r2.Point{X: 50 + rng.Float64()*1820, Y: 50 + rng.Float64()*1340}
		q, ok := Project(h, p)
		require.True(t, ok)
		desc := make([]float64, 32)
		for j := range desc {
			desc[j] = rng.Float64() * 100
		}
		ref = append(ref, Feature{X: p.X, Y: p.Y, Descriptor: desc})
		shifted = append(shifted, Feature{X: q.X, Y: q.Y, Descriptor: append([]float64(nil), desc...)})
	}
	return ref, shifted
}

// rotationHomography returns K*R*K^-1 for the given x-y-z angles.
func rotationHomography(t *testing.T, roll, pitch, yaw float64) *mat.Dense {
	t.Helper()
	k := CalibrationMatrix(testIntrinsics)
	var kInv mat.Dense
	require.NoError(t, kInv.Inverse(k))
	var h mat.Dense
	h.Product(k, RotationXYZ(roll, pitch, yaw), &kInv)
	return &h
}

func assertRotation(t *testing.T, want, got mat.Matrix, tol float64) {
	t.Helper()
	assert.True(t, mat.EqualApprox(want, got, tol), "rotation mismatch:\nwant %v\ngot  %v",
		mat.Formatted(want), mat.Formatted(got))
}

func TestMatchFeatures_RatioTest(t *testing.T) {
	ref := []Feature{
		{Descriptor: []float64{0, 0}},
		{Descriptor: []float64{10, 10}},
	}
	shifted := []Feature{
		{Descriptor: []float64{0, 0.1}}, // clear nearest for ref[0]
		{Descriptor: []float64{5, 5}},
		{Descriptor: []float64{9, 9}}, // ambiguous for ref[1]
		{Descriptor: []float64{11, 11}},
	}

	got, err := MatchFeatures(ref, shifted, 0.3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Ref)
	assert.Equal(t, 0, got[0].Shifted)
	assert.InDelta(t, 0.1, got[0].Distance, 1e-12)

	// A looser ratio accepts the ambiguous match too.
	got, err = MatchFeatures(ref, shifted, 1.01)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMatchFeatures_Edges(t *testing.T) {
	one := []Feature{{Descriptor: []float64{1}}}
	got, err := MatchFeatures(one, one, 0.9)
	assert.NoError(t, err)
	assert.Empty(t, got, "a single candidate cannot pass the ratio test")

	_, err = MatchFeatures(one, []Feature{{Descriptor: []float64{1}}, {Descriptor: []float64{1, 2}}}, 0.9)
	assert.Error(t, err)
}

func TestEstimateHomography_Exact(t *testing.T) {
	want := mat.NewDense(3, 3, []float64{
		1.02, 0.01, 15,
		-0.02, 0.98, -8,
		1e-5, -2e-5, 1,
	})
	ref, shifted := syntheticFeatures(t, 40, want, 7)
	pairs := make([]Correspondence, len(ref))
	for i := range ref {
		pairs[i] = Correspondence{Src: r2.Point{X: ref[i].X, Y: ref[i].Y}, Dst: r2.Point{X: shifted[i].X, Y: shifted[i].Y}}
	}

	h, mask, err := EstimateHomography(pairs, DefaultRANSACOptions())
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(want, h, 1e-6))
	for _, in := range mask {
		assert.True(t, in)
	}
}

func TestEstimateHomography_Outliers(t *testing.T) {
	want := rotationHomography(t, 0.5, -1, 2)
	ref, shifted := syntheticFeatures(t, 60, want, 3)
	pairs := make([]Correspondence, len(ref))
	for i := range ref {
		pairs[i] = Correspondence{Src: r2.Point{X: ref[i].X, Y: ref[i].Y}, Dst: r2.Point{X: shifted[i].X, Y: shifted[i].Y}}
	}
	// Corrupt a quarter of the destinations.
	for i := 0; i < 15; i++ {
		pairs[i].Dst = pairs[i].Dst.Add(r2.Point{X: 200 + float64(i)*7, Y: -150})
	}

	h, mask, err := EstimateHomography(pairs, DefaultRANSACOptions())
	require.NoError(t, err)

	inliers := 0
	for i, in := range mask {
		if in {
			inliers++
		}
		if i < 15 {
			assert.False(t, in, "pair %d is an outlier", i)
		}
	}
	assert.Equal(t, 45, inliers)

	var scaled mat.Dense
	scaled.Scale(1/want.At(2, 2), want)
	assert.True(t, mat.EqualApprox(&scaled, h, 1e-6))
}

func TestEstimateHomography_Degenerate(t *testing.T) {
	_, _, err := EstimateHomography([]Correspondence{{}, {}, {}}, DefaultRANSACOptions())
	assert.True(t, errors.Is(err, ErrDegenerateHomography))

	var line []Correspondence
	for i := 0; i < 10; i++ {
		p := r2.Point{X: float64(i), Y: 2 * float64(i)}
		line = append(line, Correspondence{Src: p, Dst: p})
	}
	_, _, err = EstimateHomography(line, DefaultRANSACOptions())
	assert.True(t, errors.Is(err, ErrDegenerateHomography))
}

func TestCheckConditioning(t *testing.T) {
	assert.NoError(t, CheckConditioning(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), 1e7))

	nearSingular := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1e-9})
	err := CheckConditioning(nearSingular, 1e7)
	assert.True(t, errors.Is(err, ErrDegenerateHomography))

	singular := mat.NewDense(3, 3, []float64{1, 2, 3, 2, 4, 6, 0, 0, 1})
	assert.Error(t, CheckConditioning(singular, 1e7))
}

func TestEulerXYZ_RoundTrip(t *testing.T) {
	tests := []struct {
		roll, pitch, yaw float64
	}{
		{0, 0, 0},
		{10, 20, 30},
		{-45, 5, 170},
		{1.5, -0.25, -3},
		{179, -60, -179},
	}
	for _, tt := range tests {
		r := RotationXYZ(tt.roll, tt.pitch, tt.yaw)
		roll, pitch, yaw := EulerXYZ(r)
		assert.InDelta(t, tt.roll, roll, 1e-9)
		assert.InDelta(t, tt.pitch, pitch, 1e-9)
		assert.InDelta(t, tt.yaw, yaw, 1e-9)
	}
}

func TestEulerXYZ_GimbalLock(t *testing.T) {
	r := RotationXYZ(30, 90, 0)
	roll, pitch, yaw := EulerXYZ(r)
	assert.InDelta(t, 90.0, pitch, 1e-6)
	assert.Equal(t, 0.0, yaw)
	assertRotation(t, r, RotationXYZ(roll, pitch, yaw), 1e-9)
}

func TestDecompose_PureRotation(t *testing.T) {
	h := rotationHomography(t, 1, -2, 3)
	h.Scale(4.2, h)

	cands, err := Decompose(h, CalibrationMatrix(testIntrinsics))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assertRotation(t, RotationXYZ(1, -2, 3), cands[0].R, 1e-9)
	assert.Equal(t, r3.Vector{}, cands[0].T)
}

func TestDecompose_PlanarScene(t *testing.T) {
	wantR := RotationXYZ(2, -3, 1.5)
	wantN := r3.Vector{X: 0.1, Y: -0.3, Z: 1}.Normalize()
	wantT := r3.Vector{X: 0.2, Y: 0.05, Z: 0.1}

	// H = K (R + T N^T) K^-1, up to scale.
	var tn mat.Dense
	tn.Outer(1, mat.NewVecDense(3, []float64{wantT.X, wantT.Y, wantT.Z}), mat.NewVecDense(3, []float64{wantN.X, wantN.Y, wantN.Z}))
	var euclid mat.Dense
	euclid.Add(wantR, &tn)
	k := CalibrationMatrix(testIntrinsics)
	var kInv mat.Dense
	require.NoError(t, kInv.Inverse(k))
	var h mat.Dense
	h.Product(k, &euclid, &kInv)
	h.Scale(0.37, &h)

	cands, err := Decompose(&h, k)
	require.NoError(t, err)
	require.Len(t, cands, 4)

	found := false
	for _, c := range cands {
		assert.InDelta(t, 1.0, mat.Det(c.R), 1e-9, "candidate is a proper rotation")
		if mat.EqualApprox(wantR, c.R, 1e-6) && c.N.Sub(wantN).Norm() < 1e-6 {
			assert.InDelta(t, 0, c.T.Sub(wantT).Norm(), 1e-6)
			found = true
		}
	}
	assert.True(t, found, "true decomposition is among the candidates")

	facing := SelectFacingNormal(cands)
	assert.Greater(t, facing.N.Z, 0.0)
}

func TestSelectorByName(t *testing.T) {
	cands := []Candidate{{N: r3.Vector{Z: -1}}, {N: r3.Vector{Z: 0.5}}, {N: r3.Vector{Z: 0.9}}}

	sel, err := SelectorByName("")
	require.NoError(t, err)
	assert.Equal(t, -1.0, sel(cands).N.Z)

	sel, err = SelectorByName(SelectorFacingNormal)
	require.NoError(t, err)
	assert.Equal(t, 0.9, sel(cands).N.Z)

	_, err = SelectorByName("random")
	assert.Error(t, err)
}

func TestRecover_SelfMatch(t *testing.T) {
	ref, _ := syntheticFeatures(t, 50, mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), 11)

	res, err := Recover(ref, ref, testIntrinsics, DefaultConfig())
	require.NoError(t, err)
	assert.InDelta(t, 0, res.Roll, 1e-6)
	assert.InDelta(t, 0, res.Pitch, 1e-6)
	assert.InDelta(t, 0, res.Yaw, 1e-6)
	assert.Equal(t, 50, res.Matches)
	assert.Equal(t, 50, res.Inliers)
	assert.Equal(t, 1, res.Candidates)
}

func TestRecover_Rotation(t *testing.T) {
	h := rotationHomography(t, 0.4, -1.2, 0.8)
	ref, shifted := syntheticFeatures(t, 80, h, 5)

	res, err := Recover(ref, shifted, testIntrinsics, DefaultConfig())
	require.NoError(t, err)
	assert.InDelta(t, 0.4, res.Roll, 1e-4)
	assert.InDelta(t, -1.2, res.Pitch, 1e-4)
	assert.InDelta(t, 0.8, res.Yaw, 1e-4)
}

func TestRecover_InsufficientMatches(t *testing.T) {
	ref, shifted := syntheticFeatures(t, 9, mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), 2)

	res, err := Recover(ref, shifted, testIntrinsics, DefaultConfig())
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientMatches))

	var ime *InsufficientMatchesError
	require.True(t, errors.As(err, &ime))
	assert.Equal(t, 9, ime.Found)
	assert.Equal(t, 10, ime.Required)
	assert.Contains(t, err.Error(), "only 9 matches")
}

func TestRecover_ExactlyMinimum(t *testing.T) {
	ref, _ := syntheticFeatures(t, 10, mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), 4)
	_, err := Recover(ref, ref, testIntrinsics, DefaultConfig())
	assert.NoError(t, err)
}

func TestRecover_InvalidIntrinsics(t *testing.T) {
	_, err := Recover(nil, nil, camera.Intrinsics{}, DefaultConfig())
	assert.True(t, errors.Is(err, camera.ErrInvalidIntrinsics))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", outcome(nil))
	assert.Equal(t, "insufficient_matches", outcome(&InsufficientMatchesError{}))
	assert.Equal(t, "degenerate", outcome(ErrDegenerateHomography))
	assert.Equal(t, "error", outcome(errors.New("boom")))
}

type fakeExtractor map[string][]Feature

func (f fakeExtractor) Extract(path string) ([]Feature, error) {
	feats, ok := f[path]
	if !ok {
		return nil, errors.New("no such image")
	}
	return feats, nil
}

func TestRecoverFromFiles(t *testing.T) {
	ref, shifted := syntheticFeatures(t, 40, rotationHomography(t, 0, 0, 1), 9)
	ex := fakeExtractor{"ref.jpg": ref, "shift.jpg": shifted}

	res, err := RecoverFromFiles(ex, "ref.jpg", "shift.jpg", testIntrinsics, DefaultConfig())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.Yaw, 1e-4)

	_, err = RecoverFromFiles(ex, "ref.jpg", "missing.jpg", testIntrinsics, DefaultConfig())
	assert.Error(t, err)
}

func TestMatchDistanceIsEuclidean(t *testing.T) {
	got, err := MatchFeatures(
		[]Feature{{Descriptor: []float64{0, 0}}},
		[]Feature{{Descriptor: []float64{3, 4}}, {Descriptor: []float64{30, 40}}},
		0.5,
	)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5.0, got[0].Distance)
	assert.False(t, math.IsNaN(got[0].Distance))
}
