package blend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/dem-blend/internal/config"
	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/monitoring"
	"github.com/banshee-data/dem-blend/internal/security"
	"github.com/banshee-data/dem-blend/internal/timeutil"
)

// Mode selects the blend algorithm.
type Mode string

const (
	ModeSimple    Mode = "simple"
	ModeSymmetric Mode = "symmetric"
)

// ParseMode accepts "simple" or "symmetric".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSimple, ModeSymmetric:
		return m, nil
	}
	return "", fmt.Errorf("unknown blend mode %q", s)
}

// Options configures a Blender.
type Options struct {
	SimpleStatistic    Statistic
	SymmetricStatistic Statistic
	SimpleEstimator    Estimator
	TempPrefix         string
	Overwrite          bool
}

// DefaultOptions returns median/overlap for simple mode, mean for
// symmetric mode, and the default temp prefix.
func DefaultOptions() Options {
	return Options{
		SimpleStatistic:    Median,
		SymmetricStatistic: Mean,
		SimpleEstimator:    EstimatorOverlap,
		TempPrefix:         config.DefaultTempPrefix,
	}
}

// OptionsFromConfig converts a validated BlendConfig.
func OptionsFromConfig(cfg *config.BlendConfig) Options {
	return Options{
		SimpleStatistic:    Statistic(cfg.GetSimpleStatistic()),
		SymmetricStatistic: Statistic(cfg.GetSymmetricStatistic()),
		SimpleEstimator:    Estimator(cfg.GetSimpleEstimator()),
		TempPrefix:         cfg.GetTempPrefix(),
		Overwrite:          cfg.GetOverwrite(),
	}
}

// Result describes a completed blend.
type Result struct {
	RunID        string
	Mode         Mode
	Output       string
	OffsetA      float64
	OffsetB      float64
	OverlapCells int
	Estimator    Estimator
	Statistic    Statistic
}

// Run is the history record of one blend attempt, successful or not.
type Run struct {
	RunID        string
	Mode         Mode
	InputA       string
	InputB       string
	Output       string
	Estimator    Estimator
	Statistic    Statistic
	OffsetA      float64
	OffsetB      float64
	OverlapCells int
	Status       Status
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Recorder persists blend runs.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// Blender runs blends against a RasterEngine.
type Blender struct {
	eng      engine.RasterEngine
	opts     Options
	recorder Recorder
	clock    timeutil.Clock
}

// New returns a Blender. Zero-valued fields in opts take their defaults.
func New(eng engine.RasterEngine, opts Options) *Blender {
	def := DefaultOptions()
	if opts.SimpleStatistic == "" {
		opts.SimpleStatistic = def.SimpleStatistic
	}
	if opts.SymmetricStatistic == "" {
		opts.SymmetricStatistic = def.SymmetricStatistic
	}
	if opts.SimpleEstimator == "" {
		opts.SimpleEstimator = def.SimpleEstimator
	}
	if opts.TempPrefix == "" {
		opts.TempPrefix = def.TempPrefix
	}
	return &Blender{eng: eng, opts: opts, clock: timeutil.RealClock{}}
}

// SetRecorder makes the Blender record every run. nil disables recording.
func (b *Blender) SetRecorder(r Recorder) { b.recorder = r }

// SetClock replaces the clock used for run timestamps.
func (b *Blender) SetClock(c timeutil.Clock) { b.clock = c }

// Options returns the effective options.
func (b *Blender) Options() Options { return b.opts }

// Blend dispatches to Simple or Symmetric. In simple mode second is the
// base grid.
func (b *Blender) Blend(ctx context.Context, mode Mode, first, second, output string) (*Result, error) {
	switch mode {
	case ModeSimple:
		return b.Simple(ctx, first, second, output)
	case ModeSymmetric:
		return b.Symmetric(ctx, first, second, output)
	}
	return nil, fmt.Errorf("unknown blend mode %q", mode)
}

// Simple shifts a onto base by the offset measured over their overlap and
// patches it over base. Cells where a is defined take shifted a.
func (b *Blender) Simple(ctx context.Context, a, base, output string) (*Result, error) {
	run := b.begin(ModeSimple, a, base, output, b.opts.SimpleStatistic)
	run.Estimator = b.opts.SimpleEstimator
	return b.finish(ctx, run, func(ctx context.Context, temps *TempSet, res *Result) (string, error) {
		ov, err := b.overlap(ctx, temps, run, a, base)
		if err != nil {
			return "", err
		}
		res.OverlapCells = ov.Cells

		var offset float64
		if b.opts.SimpleEstimator == EstimatorGlobal {
			offset, err = EstimateGlobalOffset(ctx, b.eng, a, base, ov, b.opts.SimpleStatistic)
		} else {
			offset, err = EstimateReferenceOffset(ctx, b.eng, temps, a, base, ov, b.opts.SimpleStatistic)
		}
		if err != nil {
			return "", err
		}
		res.OffsetA = offset
		monitoring.Logf("[blend] run=%s step=estimate offset=%g", run.RunID, offset)

		shifted, err := ApplyShift(ctx, b.eng, temps, a, offset, "shifted_a")
		if err != nil {
			return "", err
		}
		return CompositeSimple(ctx, b.eng, temps, shifted, base)
	})
}

// Symmetric averages a and b over their overlap and keeps each input
// unchanged outside it. The offsets of a and b to the overlap mean are
// reported; the shifted grids are computed but never feed the output.
func (b *Blender) Symmetric(ctx context.Context, a, other, output string) (*Result, error) {
	run := b.begin(ModeSymmetric, a, other, output, b.opts.SymmetricStatistic)
	return b.finish(ctx, run, func(ctx context.Context, temps *TempSet, res *Result) (string, error) {
		ov, err := b.overlap(ctx, temps, run, a, other)
		if err != nil {
			return "", err
		}
		res.OverlapCells = ov.Cells

		offs, err := EstimateSymmetricOffsets(ctx, b.eng, temps, a, other, ov, b.opts.SymmetricStatistic)
		if err != nil {
			return "", err
		}
		res.OffsetA, res.OffsetB = offs.OffsetA, offs.OffsetB
		monitoring.Logf("[blend] run=%s step=estimate offset_a=%g offset_b=%g", run.RunID, offs.OffsetA, offs.OffsetB)

		if _, err := ApplyShift(ctx, b.eng, temps, a, offs.OffsetA, "shifted_a"); err != nil {
			return "", err
		}
		if _, err := ApplyShift(ctx, b.eng, temps, other, offs.OffsetB, "shifted_b"); err != nil {
			return "", err
		}
		return CompositeSymmetric(ctx, b.eng, temps, a, other, ov, offs.Reference)
	})
}

func (b *Blender) begin(mode Mode, a, second, output string, stat Statistic) *Run {
	return &Run{
		RunID:     uuid.NewString(),
		Mode:      mode,
		InputA:    a,
		InputB:    second,
		Output:    output,
		Statistic: stat,
		StartedAt: b.clock.Now(),
	}
}

func (b *Blender) overlap(ctx context.Context, temps *TempSet, run *Run, a, other string) (Overlap, error) {
	ov, err := BuildOverlapMask(ctx, b.eng, temps, a, other)
	if err != nil {
		return Overlap{}, err
	}
	monitoring.Logf("[blend] run=%s step=overlap cells=%d", run.RunID, ov.Cells)
	if ov.Empty() {
		return Overlap{}, fmt.Errorf("%s and %s: %w", a, other, ErrNoOverlap)
	}
	return ov, nil
}

// steps computes the composite into an intermediate and returns its name.
type steps func(ctx context.Context, temps *TempSet, res *Result) (string, error)

// finish validates names and geometry, runs the steps inside a TempSet,
// copies the composite to the output, releases every intermediate and
// records the run.
func (b *Blender) finish(ctx context.Context, run *Run, fn steps) (res *Result, err error) {
	monitoring.Logf("[blend] run=%s mode=%s a=%s b=%s output=%s", run.RunID, run.Mode, run.InputA, run.InputB, run.Output)
	defer func() {
		b.record(ctx, run, err)
	}()

	for _, name := range []string{run.InputA, run.InputB, run.Output} {
		if verr := security.ValidateGridName(name); verr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidName, verr)
		}
	}
	if err := CheckGeometry(ctx, b.eng, run.InputA, run.InputB); err != nil {
		return nil, err
	}

	temps := NewTempSet(b.eng, b.opts.TempPrefix)
	defer func() {
		// Cleanup must run even when ctx is already cancelled.
		if rerr := temps.Release(context.WithoutCancel(ctx)); rerr != nil {
			monitoring.Logf("[blend] run=%s release failed: %v", run.RunID, rerr)
			if err == nil {
				res, err = nil, rerr
			}
		}
	}()

	out := &Result{
		RunID:     run.RunID,
		Mode:      run.Mode,
		Output:    run.Output,
		Estimator: run.Estimator,
		Statistic: run.Statistic,
	}
	composite, err := fn(ctx, temps, out)
	run.OffsetA, run.OffsetB, run.OverlapCells = out.OffsetA, out.OffsetB, out.OverlapCells
	if err != nil {
		return nil, err
	}
	if err := b.eng.CopyGrid(ctx, composite, run.Output, b.opts.Overwrite); err != nil {
		return nil, engineErr("copy output", err)
	}
	monitoring.Logf("[blend] run=%s step=output name=%s", run.RunID, run.Output)
	return out, nil
}

func (b *Blender) record(ctx context.Context, run *Run, err error) {
	run.FinishedAt = b.clock.Now()
	run.Status = StatusOf(err)
	if err != nil {
		run.Error = err.Error()
	}
	if b.recorder == nil {
		return
	}
	if rerr := b.recorder.RecordRun(context.WithoutCancel(ctx), *run); rerr != nil {
		monitoring.Logf("[blend] run=%s failed to record history: %v", run.RunID, rerr)
	}
}
