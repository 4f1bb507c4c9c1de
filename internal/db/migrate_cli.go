package db

import (
	"fmt"
	"io"
)

// RunMigrateCommand handles the 'migrate' subcommand against the embedded
// migrations and writes a report to w.
func RunMigrateCommand(w io.Writer, database *DB, args []string) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("migrate: missing action")
	}

	migrations, err := getMigrationsFS()
	if err != nil {
		return fmt.Errorf("failed to get migrations filesystem: %w", err)
	}

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ All migrations applied successfully")
		return printVersion(w, database)

	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(w, "✓ Migration rolled back successfully")
		return printVersion(w, database)

	case "status":
		version, dirty, err := database.MigrateVersion(migrations)
		if err != nil {
			return fmt.Errorf("failed to get migration status: %w", err)
		}
		latest, err := LatestMigrationVersion(migrations)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "=== Migration Status ===")
		fmt.Fprintf(w, "Current version: %d\n", version)
		fmt.Fprintf(w, "Latest available: %d\n", latest)
		fmt.Fprintf(w, "Dirty: %v\n", dirty)
		switch {
		case dirty:
			fmt.Fprintln(w, "⚠️  Database is in a dirty state. A migration failed mid-execution.")
		case version < latest:
			fmt.Fprintf(w, "⚠️  Database is %d version(s) behind. Run 'dem-blend migrate up' to update.\n", latest-version)
		default:
			fmt.Fprintln(w, "✓ Database is up to date!")
		}
		return nil

	case "help":
		PrintMigrateHelp(w)
		return nil

	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("unknown migrate action: %s", action)
	}
}

func printVersion(w io.Writer, database *DB) error {
	migrations, err := getMigrationsFS()
	if err != nil {
		return err
	}
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Current version: %d (dirty: %v)\n", version, dirty)
	return nil
}

// PrintMigrateHelp displays the help message for the migrate command
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprintln(w, "Database Migration Commands")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: dem-blend [-db path] migrate <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  up              Apply all pending migrations")
	fmt.Fprintln(w, "  down            Rollback one migration")
	fmt.Fprintln(w, "  status          Show current migration status and version")
	fmt.Fprintln(w, "  help            Show this help message")
}
