package blend

import (
	"context"
	"fmt"

	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/raster/algebra"
)

// Statistic selects how a difference field is reduced to one offset.
type Statistic string

const (
	Median Statistic = "median"
	Mean   Statistic = "mean"
)

// ParseStatistic accepts "median" or "mean".
func ParseStatistic(s string) (Statistic, error) {
	switch st := Statistic(s); st {
	case Median, Mean:
		return st, nil
	}
	return "", fmt.Errorf("unknown statistic %q", s)
}

// Estimator selects where the simple-mode offset is measured.
type Estimator string

const (
	// EstimatorOverlap takes the statistic of base - A over the overlap.
	EstimatorOverlap Estimator = "overlap"
	// EstimatorGlobal takes stat(base) - stat(A), each over its whole grid.
	EstimatorGlobal Estimator = "global"
)

// ParseEstimator accepts "overlap" or "global".
func ParseEstimator(s string) (Estimator, error) {
	switch e := Estimator(s); e {
	case EstimatorOverlap, EstimatorGlobal:
		return e, nil
	}
	return "", fmt.Errorf("unknown estimator %q", s)
}

// reduce computes stat over the defined cells of name. A grid with no
// defined cells is an empty overlap, never a zero offset.
func reduce(ctx context.Context, eng engine.RasterEngine, name string, stat Statistic) (float64, error) {
	s, err := eng.ComputeStatistics(ctx, name, engine.StatsOptions{Extended: stat == Median})
	if err != nil {
		return 0, engineErr("statistics "+name, err)
	}
	if s.N == 0 {
		return 0, fmt.Errorf("%s: %w", name, ErrNoOverlap)
	}
	if stat == Median {
		return s.Median, nil
	}
	return s.Mean, nil
}

func evaluate(ctx context.Context, eng engine.RasterEngine, temps *TempSet, role string, expr algebra.Expr) (string, error) {
	name := temps.Name(role)
	if err := eng.EvaluateAlgebra(ctx, expr, name, true); err != nil {
		return "", engineErr(role, err)
	}
	temps.Register(name)
	return name, nil
}

// EstimateReferenceOffset returns the offset that moves a onto ref:
// stat(ref - a) over the overlap.
func EstimateReferenceOffset(ctx context.Context, eng engine.RasterEngine, temps *TempSet, a, ref string, ov Overlap, stat Statistic) (float64, error) {
	if ov.Empty() {
		return 0, ErrNoOverlap
	}
	diff, err := evaluate(ctx, eng, temps, "diff",
		algebra.If(ov.inside(), algebra.Sub(algebra.Ref(ref), algebra.Ref(a)), algebra.Null()))
	if err != nil {
		return 0, err
	}
	return reduce(ctx, eng, diff, stat)
}

// EstimateGlobalOffset returns stat(ref) - stat(a), each taken over the
// whole grid. The overlap must still be non-empty.
func EstimateGlobalOffset(ctx context.Context, eng engine.RasterEngine, a, ref string, ov Overlap, stat Statistic) (float64, error) {
	if ov.Empty() {
		return 0, ErrNoOverlap
	}
	sa, err := reduce(ctx, eng, a, stat)
	if err != nil {
		return 0, err
	}
	sr, err := reduce(ctx, eng, ref, stat)
	if err != nil {
		return 0, err
	}
	return sr - sa, nil
}

// SymmetricOffsets holds the overlap mean reference and the offset of
// each input to it.
type SymmetricOffsets struct {
	Reference string
	OffsetA   float64
	OffsetB   float64
}

// EstimateSymmetricOffsets builds ref = (a+b)/2 over the overlap and
// returns stat(ref - a) and stat(ref - b).
func EstimateSymmetricOffsets(ctx context.Context, eng engine.RasterEngine, temps *TempSet, a, b string, ov Overlap, stat Statistic) (SymmetricOffsets, error) {
	if ov.Empty() {
		return SymmetricOffsets{}, ErrNoOverlap
	}
	ref, err := evaluate(ctx, eng, temps, "reference",
		algebra.If(ov.inside(), algebra.Mean2(algebra.Ref(a), algebra.Ref(b)), algebra.Null()))
	if err != nil {
		return SymmetricOffsets{}, err
	}

	out := SymmetricOffsets{Reference: ref}
	for _, side := range []struct {
		role   string
		input  string
		offset *float64
	}{
		{"diff_a", a, &out.OffsetA},
		{"diff_b", b, &out.OffsetB},
	} {
		diff, err := evaluate(ctx, eng, temps, side.role,
			algebra.If(ov.inside(), algebra.Sub(algebra.Ref(ref), algebra.Ref(side.input)), algebra.Null()))
		if err != nil {
			return SymmetricOffsets{}, err
		}
		if *side.offset, err = reduce(ctx, eng, diff, stat); err != nil {
			return SymmetricOffsets{}, err
		}
	}
	return out, nil
}
