package blend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dem-blend/internal/config"
	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/monitoring"
	"github.com/banshee-data/dem-blend/internal/raster"
	"github.com/banshee-data/dem-blend/internal/raster/algebra"
	"github.com/banshee-data/dem-blend/internal/testutil"
	"github.com/banshee-data/dem-blend/internal/timeutil"
)

const N = -9999 // placeholder replaced by null in cells()

// cells converts a literal using N into grid cells.
func cells(vs ...float64) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		if v == N {
			out[i] = raster.Null()
		} else {
			out[i] = v
		}
	}
	return out
}

// newEngine stores the classic 10/12 pair: a covers the west two columns
// at 10, b the east two columns at 12, overlapping in the middle column.
func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	t.Cleanup(monitoring.Mute())
	eng := engine.NewMemory()
	testutil.Put(t, eng, "a", testutil.Grid(t,
		[]float64{10, 10, testutil.N},
		[]float64{10, 10, testutil.N},
	))
	testutil.Put(t, eng, "b", testutil.Grid(t,
		[]float64{testutil.N, 12, 12},
		[]float64{testutil.N, 12, 12},
	))
	return eng
}

// faultyEngine fails the n-th EvaluateAlgebra call, or every RemoveGrids
// call when failRemove is set.
type faultyEngine struct {
	*engine.Engine
	failEvalAt int
	evals      int
	failRemove bool
	err        error
}

func (f *faultyEngine) EvaluateAlgebra(ctx context.Context, expr algebra.Expr, output string, overwrite bool) error {
	f.evals++
	if f.failEvalAt > 0 && f.evals == f.failEvalAt {
		return f.err
	}
	return f.Engine.EvaluateAlgebra(ctx, expr, output, overwrite)
}

func (f *faultyEngine) RemoveGrids(ctx context.Context, names []string, force bool) error {
	if f.failRemove {
		return f.err
	}
	return f.Engine.RemoveGrids(ctx, names, force)
}

type memoryRecorder struct {
	runs []Run
}

func (m *memoryRecorder) RecordRun(_ context.Context, run Run) error {
	m.runs = append(m.runs, run)
	return nil
}

func TestSimpleBlendScenario(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	res, err := New(eng, DefaultOptions()).Simple(ctx, "a", "b", "merged")
	require.NoError(t, err)

	assert.Equal(t, ModeSimple, res.Mode)
	assert.Equal(t, "merged", res.Output)
	assert.Equal(t, 2, res.OverlapCells)
	assert.InDelta(t, 2.0, res.OffsetA, 1e-12)
	assert.Zero(t, res.OffsetB)
	assert.Equal(t, Median, res.Statistic)
	assert.Equal(t, EstimatorOverlap, res.Estimator)
	assert.NotEmpty(t, res.RunID)

	testutil.AssertCells(t, eng, "merged", cells(12, 12, 12, 12, 12, 12))
	testutil.AssertNoGridsWithPrefix(t, eng, config.DefaultTempPrefix)
}

func TestSymmetricBlendScenario(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	res, err := New(eng, DefaultOptions()).Symmetric(ctx, "a", "b", "merged")
	require.NoError(t, err)

	assert.Equal(t, ModeSymmetric, res.Mode)
	assert.Equal(t, Mean, res.Statistic)
	assert.Equal(t, 2, res.OverlapCells)
	assert.InDelta(t, 1.0, res.OffsetA, 1e-12)
	assert.InDelta(t, -1.0, res.OffsetB, 1e-12)

	// A-only cells keep 10, B-only cells keep 12, the overlap takes the mean.
	testutil.AssertCells(t, eng, "merged", cells(10, 11, 12, 10, 11, 12))
	testutil.AssertNoGridsWithPrefix(t, eng, config.DefaultTempPrefix)
}

func TestSimplePatchPriority(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	testutil.Put(t, eng, "patch", testutil.Grid(t,
		[]float64{1, 2, testutil.N},
		[]float64{4, testutil.N, 6},
	))
	testutil.Put(t, eng, "base", testutil.Grid(t,
		[]float64{10, 20, 30},
		[]float64{40, 50, 60},
	))

	res, err := New(eng, DefaultOptions()).Simple(ctx, "patch", "base", "out")
	require.NoError(t, err)

	// Differences 9, 18, 36, 54: the median of an even count is the mean
	// of the middle pair.
	assert.InDelta(t, 27.0, res.OffsetA, 1e-12)
	testutil.AssertCells(t, eng, "out", cells(28, 29, 30, 31, 50, 33))
}

func TestSimpleMedianResistsOutliers(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	testutil.Put(t, eng, "low", testutil.Grid(t, []float64{0, 0, 0}))
	testutil.Put(t, eng, "high", testutil.Grid(t, []float64{1, 1, 100}))

	res, err := New(eng, DefaultOptions()).Simple(ctx, "low", "high", "median_out")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.OffsetA, 1e-12)

	res, err = New(eng, Options{SimpleStatistic: Mean}).Simple(ctx, "low", "high", "mean_out")
	require.NoError(t, err)
	assert.InDelta(t, 34.0, res.OffsetA, 1e-12)
}

func TestSimpleGlobalEstimator(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	testutil.Put(t, eng, "a1", testutil.Grid(t, []float64{10, 20, testutil.N}))
	testutil.Put(t, eng, "b1", testutil.Grid(t, []float64{12, testutil.N, 30}))

	res, err := New(eng, Options{SimpleEstimator: EstimatorGlobal}).Simple(ctx, "a1", "b1", "out")
	require.NoError(t, err)

	// median(b1) - median(a1) = 21 - 15.
	assert.InDelta(t, 6.0, res.OffsetA, 1e-12)
	assert.Equal(t, EstimatorGlobal, res.Estimator)
	testutil.AssertCells(t, eng, "out", cells(16, 26, 30))
}

func TestSymmetricExhaustive(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	testutil.Put(t, eng, "west", testutil.Grid(t,
		[]float64{1, testutil.N, 3},
		[]float64{testutil.N, testutil.N, 6},
	))
	testutil.Put(t, eng, "east", testutil.Grid(t,
		[]float64{testutil.N, testutil.N, 5},
		[]float64{7, testutil.N, 8},
	))

	res, err := New(eng, DefaultOptions()).Symmetric(ctx, "west", "east", "out")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.OffsetA, 1e-12)
	assert.InDelta(t, -1.0, res.OffsetB, 1e-12)

	out, err := eng.Grid(ctx, "out")
	require.NoError(t, err)
	west, _ := eng.Grid(ctx, "west")
	east, _ := eng.Grid(ctx, "east")
	for i, v := range out.Cells {
		either := !raster.IsNull(west.Cells[i]) || !raster.IsNull(east.Cells[i])
		assert.Equal(t, either, !raster.IsNull(v), "cell %d", i)
	}
	testutil.AssertCells(t, eng, "out", cells(1, N, 4, 7, N, 7))
}

func TestNoOverlapFailsCleanly(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	testutil.Put(t, eng, "left", testutil.Grid(t, []float64{1, testutil.N}))
	testutil.Put(t, eng, "right", testutil.Grid(t, []float64{testutil.N, 2}))

	for _, mode := range []Mode{ModeSimple, ModeSymmetric} {
		t.Run(string(mode), func(t *testing.T) {
			res, err := New(eng, DefaultOptions()).Blend(ctx, mode, "left", "right", "out")
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrNoOverlap)
			assert.Equal(t, StatusNoOverlap, StatusOf(err))

			testutil.AssertNoGridsWithPrefix(t, eng, config.DefaultTempPrefix)
			assert.Empty(t, testutil.GridsWithPrefix(t, eng, "out"))
		})
	}
}

func TestGeometryMismatchBeforeIntermediates(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	testutil.Put(t, eng, "small", testutil.Grid(t, []float64{1, 2}))
	faulty := &faultyEngine{Engine: eng}

	_, err := New(faulty, DefaultOptions()).Simple(ctx, "a", "small", "out")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeometryMismatch)
	assert.ErrorIs(t, err, raster.ErrGeometryMismatch)
	assert.Equal(t, StatusGeometryMismatch, StatusOf(err))
	assert.Zero(t, faulty.evals, "no expression may run before the geometry check")
}

func TestEngineFailureReleasesIntermediates(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	modes := []struct {
		mode  Mode
		evals int
	}{
		{ModeSimple, 4},
		{ModeSymmetric, 7},
	}
	for _, m := range modes {
		t.Run(string(m.mode), func(t *testing.T) {
			clean := &faultyEngine{Engine: newEngine(t)}
			_, err := New(clean, DefaultOptions()).Blend(ctx, m.mode, "a", "b", "out")
			require.NoError(t, err)
			require.Equal(t, m.evals, clean.evals)

			// Fail each evaluation step in turn, the output step included; the
			// namespace must stay clean.
			for step := 1; step <= clean.evals; step++ {
				eng := newEngine(t)
				faulty := &faultyEngine{Engine: eng, failEvalAt: step, err: boom}

				_, err := New(faulty, DefaultOptions()).Blend(ctx, m.mode, "a", "b", "out")
				require.Error(t, err, "step %d", step)
				assert.ErrorIs(t, err, boom)
				assert.Equal(t, step, faulty.evals, "no evaluation may follow a failure")

				var engErr *EngineError
				require.ErrorAs(t, err, &engErr)
				assert.NotEmpty(t, engErr.Op)
				assert.Equal(t, StatusEngineFailure, StatusOf(err))

				testutil.AssertNoGridsWithPrefix(t, eng, config.DefaultTempPrefix)
				assert.Empty(t, testutil.GridsWithPrefix(t, eng, "out"))
			}
		})
	}
}

func TestSymmetricNearFloatLimit(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	testutil.Put(t, eng, "high_a", testutil.Grid(t, []float64{1e308, 1e308, testutil.N}))
	testutil.Put(t, eng, "high_b", testutil.Grid(t, []float64{testutil.N, 1e308, 1e308}))

	res, err := New(eng, DefaultOptions()).Symmetric(ctx, "high_a", "high_b", "out")
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.OffsetA)
	assert.Equal(t, 0.0, res.OffsetB)
	testutil.AssertCells(t, eng, "out", cells(1e308, 1e308, 1e308))
}

func TestEngineErrorKeepsSentinel(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	_, err := New(eng, DefaultOptions()).Simple(ctx, "a", "missing", "out")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrGridNotFound)

	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Contains(t, engErr.Error(), "missing")
}

func TestOutputExistsWithoutOverwrite(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	testutil.Put(t, eng, "merged", testutil.Constant(t, 2, 3, 0))

	_, err := New(eng, DefaultOptions()).Simple(ctx, "a", "b", "merged")
	assert.ErrorIs(t, err, engine.ErrGridExists)
	testutil.AssertCells(t, eng, "merged", cells(0, 0, 0, 0, 0, 0))
	testutil.AssertNoGridsWithPrefix(t, eng, config.DefaultTempPrefix)

	_, err = New(eng, Options{Overwrite: true}).Simple(ctx, "a", "b", "merged")
	require.NoError(t, err)
	testutil.AssertCells(t, eng, "merged", cells(12, 12, 12, 12, 12, 12))
}

func TestReleaseFailureIsReported(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	boom := errors.New("locked")
	faulty := &faultyEngine{Engine: eng, failRemove: true, err: boom}

	res, err := New(faulty, DefaultOptions()).Simple(ctx, "a", "b", "merged")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)

	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, "release", engErr.Op)
}

func TestCancelledContextStillCleansUp(t *testing.T) {
	eng := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(eng, DefaultOptions()).Symmetric(ctx, "a", "b", "out")
	assert.ErrorIs(t, err, context.Canceled)
	testutil.AssertNoGridsWithPrefix(t, eng, config.DefaultTempPrefix)
}

func TestInvalidNames(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	b := New(eng, DefaultOptions())

	for _, tc := range []struct{ a, other, out string }{
		{"a b", "b", "out"},
		{"a", "", "out"},
		{"a", "b", "out; rm"},
	} {
		_, err := b.Simple(ctx, tc.a, tc.other, tc.out)
		assert.ErrorIs(t, err, ErrInvalidName, "%+v", tc)
		assert.Equal(t, StatusInvalidName, StatusOf(err))
	}
}

func TestRunsAreRecorded(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	testutil.Put(t, eng, "left", testutil.Grid(t, []float64{1, testutil.N}))
	testutil.Put(t, eng, "right", testutil.Grid(t, []float64{testutil.N, 2}))

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	clock.SetStep(time.Second)
	rec := &memoryRecorder{}

	b := New(eng, DefaultOptions())
	b.SetClock(clock)
	b.SetRecorder(rec)

	res, err := b.Symmetric(ctx, "a", "b", "merged")
	require.NoError(t, err)
	_, err = b.Simple(ctx, "left", "right", "nothing")
	require.ErrorIs(t, err, ErrNoOverlap)

	require.Len(t, rec.runs, 2)

	ok := rec.runs[0]
	assert.Equal(t, res.RunID, ok.RunID)
	assert.Equal(t, StatusOK, ok.Status)
	assert.Equal(t, ModeSymmetric, ok.Mode)
	assert.Equal(t, "a", ok.InputA)
	assert.Equal(t, "b", ok.InputB)
	assert.Equal(t, "merged", ok.Output)
	assert.InDelta(t, 1.0, ok.OffsetA, 1e-12)
	assert.InDelta(t, -1.0, ok.OffsetB, 1e-12)
	assert.Equal(t, 2, ok.OverlapCells)
	assert.Empty(t, ok.Error)
	assert.Equal(t, start, ok.StartedAt)
	assert.Equal(t, time.Second, ok.FinishedAt.Sub(ok.StartedAt))

	failed := rec.runs[1]
	assert.Equal(t, StatusNoOverlap, failed.Status)
	assert.Equal(t, EstimatorOverlap, failed.Estimator)
	assert.Contains(t, failed.Error, "do not overlap")
	assert.NotEqual(t, ok.RunID, failed.RunID)
}

func TestBlendDispatch(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	_, err := New(eng, DefaultOptions()).Blend(ctx, Mode("feather"), "a", "b", "out")
	assert.Error(t, err)

	mode, err := ParseMode("symmetric")
	require.NoError(t, err)
	res, err := New(eng, DefaultOptions()).Blend(ctx, mode, "a", "b", "out")
	require.NoError(t, err)
	assert.Equal(t, ModeSymmetric, res.Mode)

	_, err = ParseMode("average")
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultBlendConfig()
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, DefaultOptions(), opts)

	mean, global, prefix := "mean", "global", "scratch_"
	cfg.SimpleStatistic = &mean
	cfg.SimpleEstimator = &global
	cfg.TempPrefix = &prefix
	opts = OptionsFromConfig(cfg)
	assert.Equal(t, Mean, opts.SimpleStatistic)
	assert.Equal(t, EstimatorGlobal, opts.SimpleEstimator)
	assert.Equal(t, "scratch_", New(engine.NewMemory(), opts).Options().TempPrefix)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{ErrNoOverlap, StatusNoOverlap},
		{&EngineError{Op: "diff", Err: raster.ErrGeometryMismatch}, StatusGeometryMismatch},
		{&EngineError{Op: "diff", Err: errors.New("io")}, StatusEngineFailure},
		{ErrInvalidName, StatusInvalidName},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), "%v", tt.err)
	}
}
