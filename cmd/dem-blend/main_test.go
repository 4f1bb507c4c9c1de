package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dem-blend/internal/fsutil"
	"github.com/banshee-data/dem-blend/internal/raster/gridio"
)

type cli struct {
	t    *testing.T
	dir  string
	args []string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	return &cli{t: t, dir: dir, args: []string{"-db", filepath.Join(dir, "grids.db")}}
}

func (c *cli) run(args ...string) (string, error) {
	var out bytes.Buffer
	err := run(context.Background(), append(append([]string{}, c.args...), args...), &out)
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func (c *cli) path(name string) string { return filepath.Join(c.dir, name) }

// writeGrid writes a unit-cell JSON document; nil marks a null cell.
func (c *cli) writeGrid(file, name string, rows ...[]any) string {
	c.t.Helper()
	doc := map[string]any{
		"name": name, "north": len(rows), "south": 0, "east": len(rows[0]), "west": 0,
		"rows": len(rows), "cols": len(rows[0]), "cells": rows,
	}
	data, err := json.Marshal(doc)
	require.NoError(c.t, err)
	path := c.path(file)
	require.NoError(c.t, os.WriteFile(path, data, 0o644))
	return path
}

func (c *cli) seed() {
	c.t.Helper()
	c.mustRun("import", c.writeGrid("a.json", "dem_a", []any{10, 10, nil}, []any{10, 10, nil}))
	c.mustRun("import", c.writeGrid("b.json", "dem_b", []any{nil, 12, 12}, []any{nil, 12, 12}))
}

func TestVersionAndHelp(t *testing.T) {
	c := newCLI(t)
	assert.Contains(t, c.mustRun("version"), "dem-blend")
	assert.Contains(t, c.mustRun("help"), "Commands:")
	_, err := os.Stat(c.path("grids.db"))
	assert.True(t, os.IsNotExist(err), "version and help must not create the database")
}

func TestUnknownCommand(t *testing.T) {
	c := newCLI(t)
	out, err := c.run("frobnicate")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, out, "Unknown command: frobnicate")

	_, err = c.run()
	assert.ErrorIs(t, err, errUsage)
}

func TestImportListExport(t *testing.T) {
	c := newCLI(t)
	c.seed()
	c.mustRun("import", "-name", "renamed", c.path("a.json"))

	assert.Equal(t, "dem_a\ndem_b\nrenamed\n", c.mustRun("list"))

	_, err := c.run("import", c.path("a.json"))
	assert.Error(t, err, "import must not replace without -overwrite")
	c.mustRun("import", c.path("a.json"), "-overwrite")

	out := c.path("exported/a.json")
	c.mustRun("export", "dem_a", out)
	doc, err := gridio.Read(fsutil.OSFileSystem{}, out)
	require.NoError(t, err)
	assert.Equal(t, "dem_a", doc.Name)
	assert.Nil(t, doc.Cells[0][2])
	require.NotNil(t, doc.Cells[1][1])
	assert.Equal(t, 10.0, *doc.Cells[1][1])
}

func TestImportRejectsBadName(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("import", "-name", "1bad", c.writeGrid("x.json", "", []any{1}))
	assert.Error(t, err)
}

func TestImportRejectsOversizedGeometry(t *testing.T) {
	c := newCLI(t)
	path := c.path("huge.json")
	doc := `{"name":"huge","north":1,"south":0,"east":1,"west":0,"rows":1,"cols":4611686018427387904,"cells":[[1]]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := c.run("import", path)
	assert.Error(t, err)
	assert.Empty(t, c.mustRun("list"))
}

func TestBlendSimple(t *testing.T) {
	c := newCLI(t)
	c.seed()

	out := c.mustRun("blend", "simple", "-a", "dem_a", "-base", "dem_b", "-output", "merged")
	assert.Contains(t, out, "offset dem_a: 2")
	assert.Contains(t, out, "overlap cells: 2")

	stats := c.mustRun("stats", "merged", "-g")
	assert.Contains(t, stats, "n=6\n")
	assert.Contains(t, stats, "min=12\n")
	assert.Contains(t, stats, "max=12\n")

	assert.Equal(t, "dem_a\ndem_b\nmerged\n", c.mustRun("list"), "no intermediates may remain")

	_, err := c.run("blend", "simple", "-a", "dem_a", "-base", "dem_b", "-output", "merged")
	assert.Error(t, err, "existing output needs -overwrite")
	c.mustRun("blend", "simple", "-a", "dem_a", "-base", "dem_b", "-output", "merged", "-overwrite", "-statistic", "mean")
}

func TestBlendSymmetric(t *testing.T) {
	c := newCLI(t)
	c.seed()

	out := c.mustRun("blend", "symmetric", "-a", "dem_a", "-b", "dem_b", "-output", "merged")
	assert.Contains(t, out, "offset dem_a: 1")
	assert.Contains(t, out, "offset dem_b: -1")

	stats := c.mustRun("stats", "-e", "-g", "merged")
	assert.Contains(t, stats, "mean=11\n")
	assert.Contains(t, stats, "median=11\n")

	history := c.mustRun("history")
	assert.Contains(t, history, "symmetric")
	assert.Contains(t, history, "ok")
}

func TestBlendUsageErrors(t *testing.T) {
	c := newCLI(t)
	c.seed()

	for _, args := range [][]string{
		{"blend"},
		{"blend", "diagonal"},
		{"blend", "simple", "-a", "dem_a", "-output", "x"},
		{"blend", "symmetric", "-a", "dem_a", "-base", "dem_b", "-output", "x"},
		{"blend", "simple", "-a", "dem_a", "-base", "dem_b", "-output", "x", "-statistic", "mode"},
		{"blend", "simple", "-a", "dem_a", "-base", "dem_b", "-output", "x", "extra"},
	} {
		_, err := c.run(args...)
		assert.Error(t, err, strings.Join(args, " "))
	}
}

func TestBlendNoOverlapRecorded(t *testing.T) {
	c := newCLI(t)
	c.mustRun("import", c.writeGrid("l.json", "left", []any{1, nil}))
	c.mustRun("import", c.writeGrid("r.json", "right", []any{nil, 2}))

	_, err := c.run("blend", "simple", "-a", "left", "-base", "right", "-output", "merged")
	assert.Error(t, err)
	assert.Equal(t, "left\nright\n", c.mustRun("list"))
	assert.Contains(t, c.mustRun("history", "-limit", "1"), "no_overlap")
}

func TestConfigDisablesHistory(t *testing.T) {
	c := newCLI(t)
	cfgPath := c.path("blend.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"record_history": false, "symmetric_statistic": "median"}`), 0o644))
	c.args = append(c.args, "-config", cfgPath)
	c.seed()

	out := c.mustRun("blend", "symmetric", "-a", "dem_a", "-b", "dem_b", "-output", "merged")
	assert.Contains(t, out, "statistic: median")
	assert.Contains(t, c.mustRun("history"), "No blend runs recorded")
}

func TestBadConfig(t *testing.T) {
	c := newCLI(t)
	cfgPath := c.path("blend.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"simple_statistic": "mode"}`), 0o644))
	c.args = append(c.args, "-config", cfgPath)
	_, err := c.run("list")
	assert.Error(t, err)
}

func TestStatsHumanReadable(t *testing.T) {
	c := newCLI(t)
	c.seed()
	out := c.mustRun("stats", "dem_a")
	assert.Contains(t, out, "grid:")
	assert.Contains(t, out, "null cells:")
	assert.NotContains(t, out, "median")

	_, err := c.run("stats", "ghost")
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	c := newCLI(t)
	c.seed()
	c.mustRun("remove", "dem_a")
	assert.Equal(t, "dem_b\n", c.mustRun("list"))

	_, err := c.run("remove", "dem_a")
	assert.Error(t, err)
	_, err = c.run("remove")
	assert.Error(t, err)
}

func TestPreviewAndReport(t *testing.T) {
	c := newCLI(t)
	c.seed()

	png := c.path("out/a.png")
	c.mustRun("preview", "-width", "200", "-height", "150", "dem_a", png)
	info, err := os.Stat(png)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	html := c.path("out/ab.html")
	out := c.mustRun("report", "dem_a", "dem_b", html, "-bins", "5")
	assert.Contains(t, out, "2 overlap cells")
	data, err := os.ReadFile(html)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dem_b - dem_a")
}

func TestMigrateCommand(t *testing.T) {
	c := newCLI(t)
	out := c.mustRun("migrate", "status")
	assert.Contains(t, out, "behind")
	out = c.mustRun("migrate", "up")
	assert.Contains(t, out, "applied successfully")

	_, err := c.run("migrate")
	assert.Error(t, err)
}

func TestParseArgsInterspersed(t *testing.T) {
	a := &app{out: &bytes.Buffer{}}
	fs := a.flagSet("x")
	name := fs.String("name", "", "")
	force := fs.Bool("force", false, "")

	pos, err := parseArgs(fs, []string{"one", "-name", "n", "two", "-force"})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, pos)
	assert.Equal(t, "n", *name)
	assert.True(t, *force)
}

func TestVerboseLogsBlendSteps(t *testing.T) {
	c := newCLI(t)
	c.seed()

	var logs bytes.Buffer
	prevOut := log.Writer()
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(prevOut) })

	c.mustRun("-v", "blend", "symmetric", "-a", "dem_a", "-b", "dem_b", "-output", "merged")
	assert.Contains(t, logs.String(), "[blend] run=")
	assert.Contains(t, logs.String(), "step=output")
}
