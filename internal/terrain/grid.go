// Package terrain provides the elevation surface and the ray marcher that
// intersects camera rays with it.
package terrain

import (
	"errors"
	"fmt"
	"math"
)

// Surface answers elevation queries in world coordinates. Implementations
// must be safe for concurrent readers.
type Surface interface {
	// Elevation returns the ground elevation at (x, y). ok is false outside
	// the grid or on a no-data cell.
	Elevation(x, y float64) (z float64, ok bool)
	// Contains reports whether (x, y) lies inside the surface bounds,
	// edges included.
	Contains(x, y float64) bool
	// Bounds returns the surface extent.
	Bounds() Bounds
}

// Bounds is an axis-aligned world extent.
type Bounds struct {
	Left, Bottom, Right, Top float64
}

// Contains reports whether (x, y) lies inside b. All four edges are inclusive.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.Left && x <= b.Right && y >= b.Bottom && y <= b.Top
}

// Width returns the east-west extent.
func (b Bounds) Width() float64 { return b.Right - b.Left }

// Height returns the north-south extent.
func (b Bounds) Height() float64 { return b.Top - b.Bottom }

// GeoTransform maps cell indices to world coordinates for a north-up raster:
// x = OriginX + col*PixelWidth, y = OriginY + row*PixelHeight. OriginX/OriginY
// is the outer corner of cell (0, 0); PixelHeight is negative.
type GeoTransform struct {
	OriginX     float64
	OriginY     float64
	PixelWidth  float64
	PixelHeight float64
}

// Grid is an immutable row-major elevation raster. Row 0 is the northern edge.
type Grid struct {
	rows, cols int
	values     []float64
	transform  GeoTransform
	noData     *float64
	bounds     Bounds
}

var errGridShape = errors.New("invalid grid shape")

// NewGrid builds a grid from row-major values. noData may be nil when the
// raster has no sentinel; NaN cells are always treated as no-data.
func NewGrid(rows, cols int, values []float64, gt GeoTransform, noData *float64) (*Grid, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", errGridShape, rows, cols)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%w: expected %d values, got %d", errGridShape, rows*cols, len(values))
	}
	if !(gt.PixelWidth > 0) || !(gt.PixelHeight < 0) {
		return nil, fmt.Errorf("%w: north-up raster needs positive pixel width and negative pixel height, got %v, %v",
			errGridShape, gt.PixelWidth, gt.PixelHeight)
	}

	g := &Grid{
		rows:      rows,
		cols:      cols,
		values:    append([]float64(nil), values...),
		transform: gt,
		bounds: Bounds{
			Left:   gt.OriginX,
			Top:    gt.OriginY,
			Right:  gt.OriginX + float64(cols)*gt.PixelWidth,
			Bottom: gt.OriginY + float64(rows)*gt.PixelHeight,
		},
	}
	if noData != nil {
		v := *noData
		g.noData = &v
	}
	return g, nil
}

// NewFlatGrid returns a grid of constant elevation covering b with square cells.
func NewFlatGrid(b Bounds, cellSize, elevation float64) (*Grid, error) {
	return NewPlaneGrid(b, cellSize, func(x, y float64) float64 { return elevation })
}

// NewPlaneGrid samples f at the centre of every cell covering b.
func NewPlaneGrid(b Bounds, cellSize float64, f func(x, y float64) float64) (*Grid, error) {
	if !(cellSize > 0) {
		return nil, fmt.Errorf("%w: cell size %v", errGridShape, cellSize)
	}
	cols := int(math.Ceil(b.Width() / cellSize))
	rows := int(math.Ceil(b.Height() / cellSize))
	values := make([]float64, 0, rows*cols)
	for r := 0; r < rows; r++ {
		y := b.Top - (float64(r)+0.5)*cellSize
		for c := 0; c < cols; c++ {
			x := b.Left + (float64(c)+0.5)*cellSize
			values = append(values, f(x, y))
		}
	}
	gt := GeoTransform{OriginX: b.Left, OriginY: b.Top, PixelWidth: cellSize, PixelHeight: -cellSize}
	return NewGrid(rows, cols, values, gt, nil)
}

// Rows returns the number of raster rows.
func (g *Grid) Rows() int { return g.rows }

// Cols returns the number of raster columns.
func (g *Grid) Cols() int { return g.cols }

// Transform returns the grid geotransform.
func (g *Grid) Transform() GeoTransform { return g.transform }

// NoData returns the no-data sentinel, if any.
func (g *Grid) NoData() (float64, bool) {
	if g.noData == nil {
		return 0, false
	}
	return *g.noData, true
}

// Bounds returns the grid extent.
func (g *Grid) Bounds() Bounds { return g.bounds }

// Contains reports whether (x, y) is inside the grid bounds, edges included.
func (g *Grid) Contains(x, y float64) bool { return g.bounds.Contains(x, y) }

// Index returns the cell containing (x, y), flooring both fractional indices.
// The indices may be out of range; callers check with InRange.
func (g *Grid) Index(x, y float64) (row, col int) {
	col = int(math.Floor((x - g.transform.OriginX) / g.transform.PixelWidth))
	row = int(math.Floor((y - g.transform.OriginY) / g.transform.PixelHeight))
	return row, col
}

// InRange reports whether (row, col) addresses a cell of the grid.
func (g *Grid) InRange(row, col int) bool {
	return row >= 0 && row < g.rows && col >= 0 && col < g.cols
}

// At returns the raw value of a cell and whether it holds data.
func (g *Grid) At(row, col int) (float64, bool) {
	if !g.InRange(row, col) {
		return 0, false
	}
	v := g.values[row*g.cols+col]
	if math.IsNaN(v) || (g.noData != nil && v == *g.noData) {
		return v, false
	}
	return v, true
}

// Elevation returns the elevation of the cell containing (x, y). Points on
// the right or bottom edge are inside the bounds but index past the last
// cell, so they report no elevation.
func (g *Grid) Elevation(x, y float64) (float64, bool) {
	if !g.Contains(x, y) {
		return 0, false
	}
	return g.At(g.Index(x, y))
}

// Range returns the minimum and maximum valid elevations. ok is false when
// the grid holds no data at all.
func (g *Grid) Range() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for r := 0; r < g.rows; r++ {
		for c := 0; c < g.cols; c++ {
			v, valid := g.At(r, c)
			if !valid {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			ok = true
		}
	}
	return lo, hi, ok
}
