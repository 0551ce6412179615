package terrain

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/flow.report/internal/fsutil"
)

// maxASCIIGridCells bounds the allocation made from an untrusted header.
const maxASCIIGridCells = 200_000_000

// ReadASCIIGrid parses an ESRI ASCII grid. The header keys are
// case-insensitive; xllcenter/yllcenter are converted to corner origins.
func ReadASCIIGrid(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<26)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{}
	var first string
	for sc.Scan() {
		tok := sc.Text()
		key := strings.ToLower(tok)
		if !isHeaderKey(key) {
			first = tok
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("asc header: missing value for %s", tok)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("asc header %s: %w", tok, err)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read asc: %w", err)
	}

	for _, k := range []string{"ncols", "nrows", "cellsize"} {
		if _, ok := header[k]; !ok {
			return nil, fmt.Errorf("asc header: missing %s", k)
		}
	}
	nc, nr, cell := header["ncols"], header["nrows"], header["cellsize"]
	if nc != math.Trunc(nc) || nr != math.Trunc(nr) {
		return nil, fmt.Errorf("asc header: non-integer size %gx%g", nr, nc)
	}
	if nc <= 0 || nr <= 0 || nr*nc > maxASCIIGridCells {
		return nil, fmt.Errorf("asc header: unsupported size %gx%g", nr, nc)
	}
	cols, rows := int(nc), int(nr)

	var left, bottom float64
	switch {
	case has(header, "xllcorner"):
		left = header["xllcorner"]
	case has(header, "xllcenter"):
		left = header["xllcenter"] - cell/2
	default:
		return nil, fmt.Errorf("asc header: missing xllcorner")
	}
	switch {
	case has(header, "yllcorner"):
		bottom = header["yllcorner"]
	case has(header, "yllcenter"):
		bottom = header["yllcenter"] - cell/2
	default:
		return nil, fmt.Errorf("asc header: missing yllcorner")
	}

	values := make([]float64, 0, rows*cols)
	appendValue := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("asc cell %d: %w", len(values), err)
		}
		values = append(values, v)
		return nil
	}
	if first != "" {
		if err := appendValue(first); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		if len(values) == rows*cols {
			return nil, fmt.Errorf("asc body: more than %d values", rows*cols)
		}
		if err := appendValue(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read asc: %w", err)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("asc body: expected %d values, got %d", rows*cols, len(values))
	}

	var noData *float64
	if v, ok := header["nodata_value"]; ok {
		noData = &v
	}
	gt := GeoTransform{
		OriginX:     left,
		OriginY:     bottom + float64(rows)*cell,
		PixelWidth:  cell,
		PixelHeight: -cell,
	}
	return NewGrid(rows, cols, values, gt, noData)
}

// LoadASCIIGrid opens path on fsys and parses it.
func LoadASCIIGrid(fsys fsutil.FileSystem, path string) (*Grid, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dem %s: %w", path, err)
	}
	defer f.Close()

	g, err := ReadASCIIGrid(f)
	if err != nil {
		return nil, fmt.Errorf("parse dem %s: %w", path, err)
	}
	return g, nil
}

func isHeaderKey(k string) bool {
	switch k {
	case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter", "cellsize", "nodata_value":
		return true
	}
	return false
}

func has(m map[string]float64, k string) bool {
	_, ok := m[k]
	return ok
}
