package blend

import (
	"context"

	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/raster/algebra"
)

// CompositeSimple patches shifted over base: shifted wherever it is
// defined, base elsewhere.
func CompositeSimple(ctx context.Context, eng engine.RasterEngine, temps *TempSet, shifted, base string) (string, error) {
	s := algebra.Ref(shifted)
	return evaluate(ctx, eng, temps, "composite", algebra.If(algebra.Defined(s), s, algebra.Ref(base)))
}

// CompositeSymmetric takes ref inside the overlap and whichever input is
// defined outside it. The inputs are used unshifted.
func CompositeSymmetric(ctx context.Context, eng engine.RasterEngine, temps *TempSet, a, b string, ov Overlap, ref string) (string, error) {
	ra := algebra.Ref(a)
	outside := algebra.If(algebra.Defined(ra), ra, algebra.Ref(b))
	return evaluate(ctx, eng, temps, "composite", algebra.If(ov.inside(), algebra.Ref(ref), outside))
}
