package blend

import (
	"context"
	"fmt"

	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/raster"
	"github.com/banshee-data/dem-blend/internal/raster/algebra"
)

// Overlap is the intermediate mask marking cells where both inputs are
// defined: 1 inside the overlap, null outside.
type Overlap struct {
	Mask  string
	Cells int
}

// Empty reports whether the overlap has no defined cell.
func (o Overlap) Empty() bool { return o.Cells == 0 }

// inside is true on overlap cells and false, never null, elsewhere.
func (o Overlap) inside() algebra.Expr {
	return algebra.Defined(algebra.Ref(o.Mask))
}

// CheckGeometry returns an error wrapping ErrGeometryMismatch when a and b
// do not share extent and resolution.
func CheckGeometry(ctx context.Context, eng engine.RasterEngine, a, b string) error {
	ga, err := eng.Geometry(ctx, a)
	if err != nil {
		return engineErr("geometry "+a, err)
	}
	gb, err := eng.Geometry(ctx, b)
	if err != nil {
		return engineErr("geometry "+b, err)
	}
	if err := raster.CheckGeometry(ga, gb); err != nil {
		return fmt.Errorf("%s vs %s: %w", a, b, err)
	}
	return nil
}

// BuildOverlapMask evaluates the overlap of a and b into an intermediate
// registered with temps and counts its cells. The result does not depend
// on argument order.
func BuildOverlapMask(ctx context.Context, eng engine.RasterEngine, temps *TempSet, a, b string) (Overlap, error) {
	if err := CheckGeometry(ctx, eng, a, b); err != nil {
		return Overlap{}, err
	}

	mask := temps.Name("overlap_mask")
	expr := algebra.If(algebra.BothDefined(algebra.Ref(a), algebra.Ref(b)), algebra.Const(1), algebra.Null())
	if err := eng.EvaluateAlgebra(ctx, expr, mask, true); err != nil {
		return Overlap{}, engineErr("overlap mask", err)
	}
	temps.Register(mask)

	stats, err := eng.ComputeStatistics(ctx, mask, engine.StatsOptions{})
	if err != nil {
		return Overlap{}, engineErr("overlap statistics", err)
	}
	return Overlap{Mask: mask, Cells: stats.N}, nil
}
