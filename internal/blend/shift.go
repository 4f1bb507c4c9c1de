package blend

import (
	"context"

	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/raster/algebra"
)

// ApplyShift evaluates src + offset into an intermediate named after role
// and returns its name. Null cells stay null.
func ApplyShift(ctx context.Context, eng engine.RasterEngine, temps *TempSet, src string, offset float64, role string) (string, error) {
	return evaluate(ctx, eng, temps, role, algebra.Add(algebra.Ref(src), algebra.Const(offset)))
}
