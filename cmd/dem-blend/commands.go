package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/dem-blend/internal/blend"
	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/preview"
	"github.com/banshee-data/dem-blend/internal/raster/gridio"
	"github.com/banshee-data/dem-blend/internal/report"
	"github.com/banshee-data/dem-blend/internal/security"
)

type handler func(ctx context.Context, a *app, args []string) error

var commands = map[string]handler{
	"import":  cmdImport,
	"export":  cmdExport,
	"blend":   cmdBlend,
	"stats":   cmdStats,
	"list":    cmdList,
	"remove":  cmdRemove,
	"preview": cmdPreview,
	"report":  cmdReport,
	"history": cmdHistory,
}

// parseArgs parses flags that may appear before, between or after
// positional arguments and returns the positionals in order.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func expectArgs(name string, got []string, want int, usage string) error {
	if len(got) != want {
		return fmt.Errorf("%s: expected %d argument(s): %s", name, want, usage)
	}
	return nil
}

func cmdImport(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("import")
	name := fs.String("name", "", "Grid name (defaults to the document name or file name)")
	overwrite := fs.Bool("overwrite", false, "Replace an existing grid")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := expectArgs("import", pos, 1, "<file.json>"); err != nil {
		return err
	}

	doc, err := gridio.Read(a.fsys, pos[0])
	if err != nil {
		return err
	}
	g, err := doc.Grid()
	if err != nil {
		return fmt.Errorf("import %s: %w", pos[0], err)
	}

	gridName := *name
	if gridName == "" {
		gridName = doc.Name
	}
	if gridName == "" {
		gridName = strings.TrimSuffix(filepath.Base(pos[0]), filepath.Ext(pos[0]))
	}
	if err := security.ValidateGridName(gridName); err != nil {
		return err
	}
	if err := a.eng.PutGrid(ctx, gridName, g, *overwrite || a.cfg.GetOverwrite()); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Imported %s (%s, %d defined cells)\n", gridName, g.Geometry, g.Defined())
	return nil
}

func cmdExport(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("export")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := expectArgs("export", pos, 2, "<grid> <file.json>"); err != nil {
		return err
	}
	name, path := pos[0], pos[1]
	if err := security.ValidateOutputPath(path, nil); err != nil {
		return err
	}

	g, err := a.eng.Grid(ctx, name)
	if err != nil {
		return err
	}
	if err := gridio.Write(a.fsys, path, gridio.FromGrid(name, g)); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Exported %s to %s\n", name, path)
	return nil
}

func cmdBlend(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("blend: expected a mode: simple or symmetric")
	}
	mode, err := blend.ParseMode(args[0])
	if err != nil {
		return err
	}

	fs := a.flagSet("blend " + args[0])
	first := fs.String("a", "", "First input grid (shifted in simple mode)")
	base := fs.String("base", "", "Base grid for simple mode")
	second := fs.String("b", "", "Second input grid for symmetric mode")
	output := fs.String("output", "", "Output grid name")
	overwrite := fs.Bool("overwrite", false, "Replace an existing output grid")
	statistic := fs.String("statistic", "", "median or mean")
	estimator := fs.String("estimator", "", "overlap or global (simple mode)")
	pos, err := parseArgs(fs, args[1:])
	if err != nil {
		return err
	}
	if len(pos) > 0 {
		return fmt.Errorf("blend: unexpected arguments %v", pos)
	}

	other := *second
	if mode == blend.ModeSimple {
		other = *base
	}
	if *first == "" || other == "" || *output == "" {
		if mode == blend.ModeSimple {
			return fmt.Errorf("blend simple: -a, -base and -output are required")
		}
		return fmt.Errorf("blend symmetric: -a, -b and -output are required")
	}

	opts := blend.OptionsFromConfig(a.cfg)
	if *overwrite {
		opts.Overwrite = true
	}
	if *statistic != "" {
		s, err := blend.ParseStatistic(*statistic)
		if err != nil {
			return err
		}
		if mode == blend.ModeSimple {
			opts.SimpleStatistic = s
		} else {
			opts.SymmetricStatistic = s
		}
	}
	if *estimator != "" {
		e, err := blend.ParseEstimator(*estimator)
		if err != nil {
			return err
		}
		opts.SimpleEstimator = e
	}

	b := blend.New(a.eng, opts)
	if a.cfg.GetRecordHistory() {
		b.SetRecorder(a.db)
	}
	res, err := b.Blend(ctx, mode, *first, other, *output)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Blended %s and %s into %s (%s, run %s)\n", *first, other, res.Output, res.Mode, res.RunID)
	fmt.Fprintf(a.out, "  overlap cells: %d\n", res.OverlapCells)
	fmt.Fprintf(a.out, "  statistic: %s\n", res.Statistic)
	if mode == blend.ModeSimple {
		fmt.Fprintf(a.out, "  estimator: %s\n", res.Estimator)
		fmt.Fprintf(a.out, "  offset %s: %g\n", *first, res.OffsetA)
	} else {
		fmt.Fprintf(a.out, "  offset %s: %g\n", *first, res.OffsetA)
		fmt.Fprintf(a.out, "  offset %s: %g\n", other, res.OffsetB)
	}
	return nil
}

func cmdStats(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("stats")
	extended := fs.Bool("e", false, "Include quartiles and median")
	shell := fs.Bool("g", false, "Print key=value pairs")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := expectArgs("stats", pos, 1, "<grid>"); err != nil {
		return err
	}

	st, err := a.eng.ComputeStatistics(ctx, pos[0], engine.StatsOptions{Extended: *extended})
	if err != nil {
		return err
	}
	values := st.Map()
	if *shell {
		for _, key := range st.Keys() {
			fmt.Fprintf(a.out, "%s=%s\n", key, values[key])
		}
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "grid:\t%s\n", pos[0])
	for _, key := range st.Keys() {
		fmt.Fprintf(tw, "%s:\t%s\n", strings.ReplaceAll(key, "_", " "), values[key])
	}
	return tw.Flush()
}

func cmdList(ctx context.Context, a *app, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("list: unexpected arguments %v", args)
	}
	names, err := a.eng.List(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(a.out, name)
	}
	return nil
}

func cmdRemove(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("remove: expected at least one grid name")
	}
	if err := a.eng.RemoveGrids(ctx, args, false); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Removed %s\n", strings.Join(args, ", "))
	return nil
}

func cmdPreview(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("preview")
	width := fs.Int("width", a.cfg.GetPreviewWidthPx(), "Image width in pixels")
	height := fs.Int("height", a.cfg.GetPreviewHeightPx(), "Image height in pixels")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := expectArgs("preview", pos, 2, "<grid> <out.png>"); err != nil {
		return err
	}
	name, path := pos[0], pos[1]
	if err := security.ValidateOutputPath(path, nil); err != nil {
		return err
	}

	g, err := a.eng.Grid(ctx, name)
	if err != nil {
		return err
	}
	if err := preview.Write(a.fsys, path, g, preview.Options{WidthPx: *width, HeightPx: *height, Title: name}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Wrote %s\n", path)
	return nil
}

func cmdReport(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("report")
	bins := fs.Int("bins", a.cfg.GetReportBins(), "Histogram bins")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := expectArgs("report", pos, 3, "<a> <b> <out.html>"); err != nil {
		return err
	}
	nameA, nameB, path := pos[0], pos[1], pos[2]
	if err := security.ValidateOutputPath(path, nil); err != nil {
		return err
	}

	ga, err := a.eng.Grid(ctx, nameA)
	if err != nil {
		return err
	}
	gb, err := a.eng.Grid(ctx, nameB)
	if err != nil {
		return err
	}
	sum, err := report.Write(ctx, a.fsys, path, nameA, nameB, ga, gb, report.Options{Bins: *bins})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Wrote %s (%d overlap cells, median difference %g)\n", path, sum.Cells, sum.Median)
	return nil
}

func cmdHistory(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("history")
	limit := fs.Int("limit", 20, "Number of runs to show (0 for all)")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) > 0 {
		return fmt.Errorf("history: unexpected arguments %v", pos)
	}

	runs, err := a.db.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.out, "No blend runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRUN\tMODE\tINPUTS\tOUTPUT\tOFFSET_A\tOFFSET_B\tCELLS\tSTATUS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s,%s\t%s\t%g\t%g\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.RunID[:min(8, len(r.RunID))], r.Mode,
			r.InputA, r.InputB, r.Output, r.OffsetA, r.OffsetB, r.OverlapCells, r.Status)
	}
	return tw.Flush()
}
