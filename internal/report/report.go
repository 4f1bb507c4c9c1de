// Package report renders an HTML diagnostic page for a pair of grids: the
// distribution of their differences over the overlap, and how the mean
// difference varies from north to south.
package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/dem-blend/internal/blend"
	"github.com/banshee-data/dem-blend/internal/fsutil"
	"github.com/banshee-data/dem-blend/internal/raster"
	"github.com/banshee-data/dem-blend/internal/raster/algebra"
	"github.com/banshee-data/dem-blend/internal/raster/univar"
)

// Options controls the report.
type Options struct {
	Bins       int
	AssetsHost string // empty uses the go-echarts CDN
}

// Bin is one histogram bucket covering [Lo, Hi).
type Bin struct {
	Lo, Hi float64
	Count  int
}

// Summary describes the differences b - a over the overlap.
type Summary struct {
	Cells  int
	Median float64
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Bins   []Bin
	// RowMeans holds the mean difference of each grid row with overlap,
	// keyed by row index.
	RowMeans map[int]float64
}

// Differences evaluates b - a where both are defined, null elsewhere.
func Differences(ctx context.Context, a, b *raster.Grid) (*raster.Grid, error) {
	grids := map[string]*raster.Grid{"a": a, "b": b}
	lookup := func(name string) (*raster.Grid, error) { return grids[name], nil }
	ra, rb := algebra.Ref("a"), algebra.Ref("b")
	return algebra.Evaluate(ctx, algebra.If(algebra.BothDefined(ra, rb), algebra.Sub(rb, ra), algebra.Null()), lookup)
}

// Histogram splits sorted values into n equal-width bins spanning their
// range.
func Histogram(sorted []float64, n int) []Bin {
	if len(sorted) == 0 || n <= 0 {
		return nil
	}
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	dividers := floats.Span(make([]float64, n+1), lo, hi)
	// The top divider is exclusive; nudge it so the maximum is counted.
	dividers[n] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	bins := make([]Bin, n)
	for i := range bins {
		bins[i] = Bin{Lo: dividers[i], Hi: dividers[i+1], Count: int(counts[i])}
	}
	return bins
}

// Summarize computes the difference statistics of a and b.
func Summarize(ctx context.Context, a, b *raster.Grid, bins int) (Summary, error) {
	diff, err := Differences(ctx, a, b)
	if err != nil {
		return Summary{}, err
	}
	st := univar.Compute(diff, univar.Options{Extended: true})
	if st.N == 0 {
		return Summary{}, blend.ErrNoOverlap
	}

	values := diff.Values()
	sort.Float64s(values)

	rowMeans := make(map[int]float64)
	cols := diff.Geometry.Cols
	for row := 0; row < diff.Geometry.Rows; row++ {
		var sum float64
		var n int
		for _, v := range diff.Cells[row*cols : (row+1)*cols] {
			if !raster.IsNull(v) {
				sum += v
				n++
			}
		}
		if n > 0 {
			rowMeans[row] = sum / float64(n)
		}
	}

	return Summary{
		Cells:    st.N,
		Median:   st.Median,
		Mean:     st.Mean,
		StdDev:   st.StdDev,
		Min:      st.Min,
		Max:      st.Max,
		Bins:     Histogram(values, bins),
		RowMeans: rowMeans,
	}, nil
}

func initOpts(title, host string) opts.Initialization {
	o := opts.Initialization{PageTitle: title, Width: "100%", Height: "480px"}
	if host != "" {
		o.AssetsHost = host
	}
	return o
}

// Render writes the report page for grids nameA and nameB to w.
func Render(ctx context.Context, w io.Writer, nameA, nameB string, a, b *raster.Grid, o Options) (Summary, error) {
	if o.Bins <= 0 {
		o.Bins = 40
	}
	sum, err := Summarize(ctx, a, b, o.Bins)
	if err != nil {
		return Summary{}, err
	}
	title := fmt.Sprintf("%s - %s", nameB, nameA)

	x := make([]string, len(sum.Bins))
	y := make([]opts.BarData, len(sum.Bins))
	for i, bin := range sum.Bins {
		x[i] = fmt.Sprintf("%.3f", (bin.Lo+bin.Hi)/2)
		y[i] = opts.BarData{Value: bin.Count}
	}
	hist := charts.NewBar()
	hist.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts("Overlap differences", o.AssetsHost)),
		charts.WithTitleOpts(opts.Title{
			Title: "Overlap differences " + title,
			Subtitle: fmt.Sprintf("cells=%d median=%.4f mean=%.4f stddev=%.4f",
				sum.Cells, sum.Median, sum.Mean, sum.StdDev),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Difference (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Cells"}),
	)
	hist.SetXAxis(x).AddSeries("cells", y)

	rows := make([]int, 0, len(sum.RowMeans))
	for row := range sum.RowMeans {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	rx := make([]string, len(rows))
	ry := make([]opts.LineData, len(rows))
	for i, row := range rows {
		rx[i] = fmt.Sprintf("%d", row)
		ry[i] = opts.LineData{Value: sum.RowMeans[row]}
	}
	profile := charts.NewLine()
	profile.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts("Row profile", o.AssetsHost)),
		charts.WithTitleOpts(opts.Title{Title: "Mean difference by row " + title, Subtitle: "row 0 is the northern edge"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Row", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Difference (m)"}),
	)
	profile.SetXAxis(rx).AddSeries("mean", ry)

	page := components.NewPage()
	if o.AssetsHost != "" {
		page.SetAssetsHost(o.AssetsHost)
	}
	page.AddCharts(hist, profile)
	if err := page.Render(w); err != nil {
		return Summary{}, fmt.Errorf("report: render: %w", err)
	}
	return sum, nil
}

// Write renders the report to path on fsys.
func Write(ctx context.Context, fsys fsutil.FileSystem, path, nameA, nameB string, a, b *raster.Grid, o Options) (Summary, error) {
	var buf bytes.Buffer
	sum, err := Render(ctx, &buf, nameA, nameB, a, b, o)
	if err != nil {
		return Summary{}, err
	}
	if err := fsutil.WriteFileAll(fsys, path, buf.Bytes()); err != nil {
		return Summary{}, err
	}
	return sum, nil
}
