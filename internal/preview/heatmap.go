// Package preview renders grids as PNG heat maps for quick inspection.
package preview

import (
	"bytes"
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/dem-blend/internal/fsutil"
	"github.com/banshee-data/dem-blend/internal/raster"
	"github.com/banshee-data/dem-blend/internal/raster/univar"
)

// ErrEmptyGrid is returned when a grid has no defined cell to draw.
var ErrEmptyGrid = errors.New("preview: grid has no defined cells")

// pngDPI is the resolution vgimg uses when writing PNG.
const pngDPI = 96

// Options controls the rendered image.
type Options struct {
	WidthPx  int
	HeightPx int
	Title    string
	Colors   int
}

func (o Options) withDefaults() Options {
	if o.WidthPx <= 0 {
		o.WidthPx = 800
	}
	if o.HeightPx <= 0 {
		o.HeightPx = 600
	}
	if o.Colors <= 1 {
		o.Colors = 256
	}
	return o
}

func pixels(n int) vg.Length {
	return vg.Length(n) * vg.Inch / pngDPI
}

// gridXYZ adapts a raster grid to plotter.GridXYZ. Plot rows run south to
// north, grid rows north to south.
type gridXYZ struct {
	g *raster.Grid
}

func (x gridXYZ) Dims() (c, r int) { return x.g.Geometry.Cols, x.g.Geometry.Rows }

func (x gridXYZ) Z(c, r int) float64 {
	return x.g.Get(x.g.Geometry.Rows-1-r, c)
}

func (x gridXYZ) X(c int) float64 {
	geom := x.g.Geometry
	return geom.West + (float64(c)+0.5)*geom.EWRes()
}

func (x gridXYZ) Y(r int) float64 {
	geom := x.g.Geometry
	return geom.South + (float64(r)+0.5)*geom.NSRes()
}

// Render draws g and returns the PNG bytes. Null cells are left blank.
func Render(g *raster.Grid, opts Options) ([]byte, error) {
	opts = opts.withDefaults()

	stats := univar.Compute(g, univar.Options{})
	if stats.N == 0 {
		return nil, ErrEmptyGrid
	}
	lo, hi := stats.Min, stats.Max
	if hi == lo {
		hi = lo + 1
	}

	cm := moreland.ExtendedBlackBody()
	cm.SetMin(0)
	cm.SetMax(1)
	hm := plotter.NewHeatMap(gridXYZ{g: g}, cm.Palette(opts.Colors))
	hm.Min, hm.Max = lo, hi

	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = fmt.Sprintf("%gm .. %gm", stats.Min, stats.Max)
	}
	p.X.Label.Text = "Easting"
	p.Y.Label.Text = "Northing"
	p.Add(hm)

	wt, err := p.WriterTo(pixels(opts.WidthPx), pixels(opts.HeightPx), "png")
	if err != nil {
		return nil, fmt.Errorf("preview: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("preview: write png: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders g to path on fsys, creating parent directories.
func Write(fsys fsutil.FileSystem, path string, g *raster.Grid, opts Options) error {
	data, err := Render(g, opts)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAll(fsys, path, data)
}
