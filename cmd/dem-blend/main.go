// Command dem-blend blends overlapping elevation grids held in a SQLite
// grid location.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/dem-blend/internal/config"
	"github.com/banshee-data/dem-blend/internal/db"
	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/fsutil"
	"github.com/banshee-data/dem-blend/internal/monitoring"
	"github.com/banshee-data/dem-blend/internal/version"
)

// errUsage is returned after usage text has been printed for a bad
// invocation.
var errUsage = errors.New("invalid usage")

// app carries the state shared by every subcommand.
type app struct {
	out  io.Writer
	cfg  *config.BlendConfig
	db   *db.DB
	eng  *engine.Engine
	fsys fsutil.FileSystem
}

func main() {
	log.SetFlags(0)
	err := run(context.Background(), os.Args[1:], os.Stdout)
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		log.Fatalf("dem-blend: %v", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("dem-blend", flag.ContinueOnError)
	fs.SetOutput(out)
	dbPath := fs.String("db", "dem-blend.db", "Path to the SQLite grid location")
	configPath := fs.String("config", "", "Path to a JSON blend config file")
	verbose := fs.Bool("v", false, "Log every blend step")
	fs.Usage = func() { printUsage(out) }
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *verbose {
		prev := monitoring.SetLogger(monitoring.WriterLogger(log.Writer(), "dem-blend "))
		defer monitoring.SetLogger(prev)
	} else {
		defer monitoring.Mute()()
	}

	if fs.NArg() < 1 {
		printUsage(out)
		return errUsage
	}
	command, rest := fs.Arg(0), fs.Args()[1:]

	switch command {
	case "version":
		fmt.Fprintln(out, version.String())
		return nil
	case "help":
		printUsage(out)
		return nil
	case "migrate":
		database, err := db.OpenDB(*dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		return db.RunMigrateCommand(out, database, rest)
	}

	handler, ok := commands[command]
	if !ok {
		fmt.Fprintf(out, "Unknown command: %s\n\n", command)
		printUsage(out)
		return errUsage
	}

	cfg := config.EmptyBlendConfig()
	if *configPath != "" {
		loaded, err := config.LoadBlendConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open grid location: %w", err)
	}
	defer database.Close()

	a := &app{
		out:  out,
		cfg:  cfg,
		db:   database,
		eng:  engine.New(database),
		fsys: fsutil.OSFileSystem{},
	}
	return handler(ctx, a, rest)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `dem-blend - blend overlapping elevation grids

Usage: dem-blend [-db path] [-config file.json] [-v] <command> [options]

Commands:
  import <file.json> [-name n] [-overwrite]      Load a JSON grid document
  export <grid> <file.json>                      Write a grid as a JSON document
  blend simple -a A -base B -output O            Shift A onto B and patch it over B
  blend symmetric -a A -b B -output O            Average A and B over their overlap
  stats <grid> [-e] [-g]                         Univariate statistics
  list                                           List grids
  remove <grid>...                               Remove grids
  preview <grid> <out.png>                       Render a heat map
  report <a> <b> <out.html>                      Chart the differences over the overlap
  history [-limit n]                             Show recent blend runs
  migrate up|down|status                         Manage the database schema
  version                                        Show version
  help                                           Show this help message

Blend options:
  -overwrite          Replace an existing output grid
  -statistic s        median or mean (overrides the config file)
  -estimator e        overlap or global, simple mode only
`)
}
