package raster

import (
	"errors"
	"fmt"
	"math"
)

// ErrGeometryMismatch is returned when two grids do not share extent,
// resolution and cell alignment.
var ErrGeometryMismatch = errors.New("raster: geometry mismatch")

// geometryTolerance is the allowed bound disagreement, as a fraction of the
// cell size.
const geometryTolerance = 1e-9

// MaxCells bounds the number of cells in a single grid.
const MaxCells = 1 << 30

// Geometry describes the extent and shape of a grid. Resolution is derived
// from the bounds and the row/column counts.
type Geometry struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
	Rows  int     `json:"rows"`
	Cols  int     `json:"cols"`
}

// NSRes returns the north-south cell size.
func (g Geometry) NSRes() float64 { return (g.North - g.South) / float64(g.Rows) }

// EWRes returns the east-west cell size.
func (g Geometry) EWRes() float64 { return (g.East - g.West) / float64(g.Cols) }

// Cells returns the number of cells covered by the geometry.
func (g Geometry) Cells() int { return g.Rows * g.Cols }

// Validate checks the geometry is non-degenerate.
func (g Geometry) Validate() error {
	if g.Rows <= 0 || g.Cols <= 0 {
		return fmt.Errorf("rows and cols must be positive, got %dx%d", g.Rows, g.Cols)
	}
	if g.Rows > MaxCells/g.Cols {
		return fmt.Errorf("%dx%d grid exceeds %d cells", g.Rows, g.Cols, MaxCells)
	}
	if !(g.North > g.South) {
		return fmt.Errorf("north (%g) must be greater than south (%g)", g.North, g.South)
	}
	if !(g.East > g.West) {
		return fmt.Errorf("east (%g) must be greater than west (%g)", g.East, g.West)
	}
	return nil
}

// Matches reports whether two geometries describe the same cell lattice.
func (g Geometry) Matches(o Geometry) bool {
	if g.Rows != o.Rows || g.Cols != o.Cols {
		return false
	}
	nsTol := math.Abs(g.NSRes()) * geometryTolerance
	ewTol := math.Abs(g.EWRes()) * geometryTolerance
	return math.Abs(g.North-o.North) <= nsTol &&
		math.Abs(g.South-o.South) <= nsTol &&
		math.Abs(g.East-o.East) <= ewTol &&
		math.Abs(g.West-o.West) <= ewTol
}

func (g Geometry) String() string {
	return fmt.Sprintf("n=%g s=%g e=%g w=%g rows=%d cols=%d", g.North, g.South, g.East, g.West, g.Rows, g.Cols)
}

// CheckGeometry returns an error wrapping ErrGeometryMismatch when a and b
// differ.
func CheckGeometry(a, b Geometry) error {
	if a.Matches(b) {
		return nil
	}
	return fmt.Errorf("%w: [%s] vs [%s]", ErrGeometryMismatch, a, b)
}

// Null returns the no-data marker.
func Null() float64 { return math.NaN() }

// IsNull reports whether v is the no-data marker.
func IsNull(v float64) bool { return math.IsNaN(v) }

// Grid is a 2-D block of samples. Cells are stored row-major, row 0 is the
// northern edge.
type Grid struct {
	Geometry Geometry
	Cells    []float64
}

// NewGrid returns a grid with every cell null.
func NewGrid(geom Geometry) *Grid {
	cells := make([]float64, geom.Cells())
	for i := range cells {
		cells[i] = math.NaN()
	}
	return &Grid{Geometry: geom, Cells: cells}
}

// FromCells wraps existing samples. The slice is not copied.
func FromCells(geom Geometry, cells []float64) (*Grid, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if len(cells) != geom.Cells() {
		return nil, fmt.Errorf("expected %d cells for %dx%d grid, got %d", geom.Cells(), geom.Rows, geom.Cols, len(cells))
	}
	return &Grid{Geometry: geom, Cells: cells}, nil
}

func (g *Grid) index(row, col int) int { return row*g.Geometry.Cols + col }

// Get returns the sample at row, col.
func (g *Grid) Get(row, col int) float64 { return g.Cells[g.index(row, col)] }

// Set stores v at row, col.
func (g *Grid) Set(row, col int, v float64) { g.Cells[g.index(row, col)] = v }

// SetNull marks row, col as no-data.
func (g *Grid) SetNull(row, col int) { g.Cells[g.index(row, col)] = math.NaN() }

// Defined returns the number of non-null cells.
func (g *Grid) Defined() int {
	n := 0
	for _, v := range g.Cells {
		if !IsNull(v) {
			n++
		}
	}
	return n
}

// Values returns the non-null samples in row-major order.
func (g *Grid) Values() []float64 {
	out := make([]float64, 0, len(g.Cells))
	for _, v := range g.Cells {
		if !IsNull(v) {
			out = append(out, v)
		}
	}
	return out
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	cells := make([]float64, len(g.Cells))
	copy(cells, g.Cells)
	return &Grid{Geometry: g.Geometry, Cells: cells}
}
