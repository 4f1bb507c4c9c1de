// Package testutil provides shared test utilities and fixtures.
//
// Grids in tests are small and written out cell by cell; N stands for a
// null cell in those literals.
package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/raster"
)

// N is the null cell marker for grid literals.
var N = raster.Null()

// GridOpts compares grids treating NaN as equal to NaN and allowing for
// floating point rounding.
var GridOpts = cmp.Options{
	cmpopts.EquateNaNs(),
	cmpopts.EquateApprox(0, 1e-9),
}

// Geometry returns a unit-cell geometry anchored at the origin.
func Geometry(rows, cols int) raster.Geometry {
	return raster.Geometry{
		North: float64(rows),
		South: 0,
		East:  float64(cols),
		West:  0,
		Rows:  rows,
		Cols:  cols,
	}
}

// Grid builds a grid from rows of cells, north row first.
func Grid(t testing.TB, rows ...[]float64) *raster.Grid {
	t.Helper()
	if len(rows) == 0 {
		t.Fatal("testutil.Grid needs at least one row")
	}
	cells := make([]float64, 0, len(rows)*len(rows[0]))
	for i, row := range rows {
		if len(row) != len(rows[0]) {
			t.Fatalf("row %d has %d cells, want %d", i, len(row), len(rows[0]))
		}
		cells = append(cells, row...)
	}
	g, err := raster.FromCells(Geometry(len(rows), len(rows[0])), cells)
	if err != nil {
		t.Fatalf("failed to build grid: %v", err)
	}
	return g
}

// Constant builds a rows x cols grid with every cell set to v.
func Constant(t testing.TB, rows, cols int, v float64) *raster.Grid {
	t.Helper()
	g := raster.NewGrid(Geometry(rows, cols))
	for i := range g.Cells {
		g.Cells[i] = v
	}
	return g
}

// Put stores g in eng under name, overwriting any existing grid.
func Put(t testing.TB, eng *engine.Engine, name string, g *raster.Grid) {
	t.Helper()
	if err := eng.PutGrid(context.Background(), name, g, true); err != nil {
		t.Fatalf("PutGrid(%s) failed: %v", name, err)
	}
}

// AssertGridEqual fails the test when the grids differ in geometry or cells.
func AssertGridEqual(t testing.TB, want, got *raster.Grid) {
	t.Helper()
	if diff := cmp.Diff(want, got, GridOpts); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
}

// AssertCells fails the test when the named grid's cells differ from want.
func AssertCells(t testing.TB, eng *engine.Engine, name string, want []float64) {
	t.Helper()
	g, err := eng.Grid(context.Background(), name)
	if err != nil {
		t.Fatalf("Grid(%s) failed: %v", name, err)
	}
	if diff := cmp.Diff(want, g.Cells, GridOpts); diff != "" {
		t.Errorf("%s cells mismatch (-want +got):\n%s", name, diff)
	}
}

// GridsWithPrefix returns every grid in eng whose name starts with prefix.
func GridsWithPrefix(t testing.TB, eng *engine.Engine, prefix string) []string {
	t.Helper()
	names, err := eng.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var matched []string
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			matched = append(matched, name)
		}
	}
	return matched
}

// AssertNoGridsWithPrefix fails the test if any grid name starts with prefix.
func AssertNoGridsWithPrefix(t testing.TB, eng *engine.Engine, prefix string) {
	t.Helper()
	if left := GridsWithPrefix(t, eng, prefix); len(left) > 0 {
		t.Errorf("grids with prefix %q left behind: %v", prefix, left)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}
