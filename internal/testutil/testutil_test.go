package testutil

import (
	"context"
	"testing"

	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/monitoring"
	"github.com/banshee-data/dem-blend/internal/raster"
)

func TestGridBuildsRowMajor(t *testing.T) {
	g := Grid(t,
		[]float64{1, 2, 3},
		[]float64{4, N, 6},
	)

	if g.Geometry.Rows != 2 || g.Geometry.Cols != 3 {
		t.Fatalf("geometry = %v, want 2x3", g.Geometry)
	}
	if g.Get(0, 2) != 3 || g.Get(1, 0) != 4 {
		t.Errorf("unexpected layout: %v", g.Cells)
	}
	if !raster.IsNull(g.Get(1, 1)) {
		t.Error("expected N to build a null cell")
	}
}

func TestConstant(t *testing.T) {
	g := Constant(t, 2, 2, 7)
	AssertGridEqual(t, Grid(t, []float64{7, 7}, []float64{7, 7}), g)
}

func TestAssertGridEqualTreatsNullsAsEqual(t *testing.T) {
	a := Grid(t, []float64{1, N})
	b := Grid(t, []float64{1 + 1e-12, N})
	AssertGridEqual(t, a, b)
}

func TestPutAndPrefixHelpers(t *testing.T) {
	t.Cleanup(monitoring.Mute())
	eng := engine.NewMemory()

	Put(t, eng, "dem_a", Grid(t, []float64{1, 2}))
	Put(t, eng, "tmp_mask_0001", Grid(t, []float64{1, N}))

	AssertCells(t, eng, "dem_a", []float64{1, 2})

	if got := GridsWithPrefix(t, eng, "tmp_"); len(got) != 1 || got[0] != "tmp_mask_0001" {
		t.Errorf("GridsWithPrefix = %v", got)
	}

	AssertNoError(t, eng.RemoveGrids(context.Background(), []string{"tmp_mask_0001"}, false))
	AssertNoGridsWithPrefix(t, eng, "tmp_")
}
