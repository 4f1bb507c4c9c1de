package algebra

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/dem-blend/internal/raster"
)

// ErrNoOperands is returned when an expression references no grid, so the
// output geometry cannot be determined.
var ErrNoOperands = errors.New("algebra: expression references no grids")

// Lookup resolves a grid name to its data.
type Lookup func(name string) (*raster.Grid, error)

// Evaluate computes e over every cell. All referenced grids must share one
// geometry, which becomes the geometry of the result. The context is checked
// once per row.
func Evaluate(ctx context.Context, e Expr, lookup Lookup) (*raster.Grid, error) {
	if e == nil {
		return nil, fmt.Errorf("algebra: nil expression")
	}
	names := Refs(e)
	if len(names) == 0 {
		return nil, ErrNoOperands
	}

	grids := make(map[string]*raster.Grid, len(names))
	var geom raster.Geometry
	for i, name := range names {
		g, err := lookup(name)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			geom = g.Geometry
		} else if err := raster.CheckGeometry(geom, g.Geometry); err != nil {
			return nil, fmt.Errorf("operand %q: %w", name, err)
		}
		grids[name] = g
	}

	fn := e.bind(grids)
	out := raster.NewGrid(geom)
	cols := geom.Cols
	for row := 0; row < geom.Rows; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		base := row * cols
		for col := 0; col < cols; col++ {
			out.Cells[base+col] = fn(base + col)
		}
	}
	return out, nil
}
