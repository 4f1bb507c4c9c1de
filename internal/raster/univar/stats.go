// Package univar computes univariate statistics over the defined cells of a
// grid, the way r.univar does.
package univar

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/dem-blend/internal/raster"
)

// Options controls which statistics are computed.
type Options struct {
	// Extended adds quartiles and median, which need a sorted copy of the
	// values.
	Extended bool
}

// Statistics summarises the non-null cells of a grid. When N is zero every
// float field is NaN.
type Statistics struct {
	N         int
	NullCells int
	Cells     int

	Min       float64
	Max       float64
	Range     float64
	Mean      float64
	MeanOfAbs float64
	Variance  float64
	StdDev    float64
	CoeffVar  float64
	Sum       float64

	Extended      bool
	FirstQuartile float64
	Median        float64
	ThirdQuartile float64
}

// Compute returns statistics for g.
func Compute(g *raster.Grid, opts Options) Statistics {
	values := g.Values()
	s := Statistics{
		N:         len(values),
		Cells:     len(g.Cells),
		NullCells: len(g.Cells) - len(values),
		Extended:  opts.Extended,
	}
	if s.N == 0 {
		nan := math.NaN()
		s.Min, s.Max, s.Range, s.Mean, s.MeanOfAbs = nan, nan, nan, nan, nan
		s.Variance, s.StdDev, s.CoeffVar, s.Sum = nan, nan, nan, nan
		s.FirstQuartile, s.Median, s.ThirdQuartile = nan, nan, nan
		return s
	}

	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	s.Range = s.Max - s.Min
	s.Sum = floats.Sum(values)
	s.Mean = stat.Mean(values, nil)
	// r.univar reports the population variance
	s.Variance = stat.PopVariance(values, nil)
	s.StdDev = math.Sqrt(s.Variance)
	s.CoeffVar = 100 * s.StdDev / s.Mean

	abs := 0.0
	for _, v := range values {
		abs += math.Abs(v)
	}
	s.MeanOfAbs = abs / float64(s.N)

	if opts.Extended {
		sorted := make([]float64, len(values))
		copy(sorted, values)
		sort.Float64s(sorted)
		s.FirstQuartile = stat.Quantile(0.25, stat.Empirical, sorted, nil)
		s.ThirdQuartile = stat.Quantile(0.75, stat.Empirical, sorted, nil)
		s.Median = Median(sorted)
	}
	return s
}

// Median returns the median of an ascending slice. An even count yields the
// mean of the two middle values. Empty input yields NaN.
func Median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Get returns a statistic by its r.univar key ("mean", "median", ...).
func (s Statistics) Get(key string) (float64, bool) {
	v, ok := s.Map()[key]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Map renders the statistics as the key=value mapping printed by
// r.univar -g (and -e when extended).
func (s Statistics) Map() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	m := map[string]string{
		"n":           strconv.Itoa(s.N),
		"null_cells":  strconv.Itoa(s.NullCells),
		"cells":       strconv.Itoa(s.Cells),
		"min":         f(s.Min),
		"max":         f(s.Max),
		"range":       f(s.Range),
		"mean":        f(s.Mean),
		"mean_of_abs": f(s.MeanOfAbs),
		"stddev":      f(s.StdDev),
		"variance":    f(s.Variance),
		"coeff_var":   f(s.CoeffVar),
		"sum":         f(s.Sum),
	}
	if s.Extended {
		m["first_quartile"] = f(s.FirstQuartile)
		m["median"] = f(s.Median)
		m["third_quartile"] = f(s.ThirdQuartile)
	}
	return m
}

// Keys returns the map keys in r.univar print order.
func (s Statistics) Keys() []string {
	keys := []string{"n", "null_cells", "cells", "min", "max", "range", "mean", "mean_of_abs", "stddev", "variance", "coeff_var", "sum"}
	if s.Extended {
		keys = append(keys, "first_quartile", "median", "third_quartile")
	}
	return keys
}
