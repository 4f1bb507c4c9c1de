// Package db is the persistent grid location: a SQLite database holding
// named grids and the history of blend runs. *DB implements engine.Store
// and blend.Recorder.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/dem-blend/internal/timeutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connection pragmas, applied by the driver to every pooled connection.
const pragmas = "_pragma=journal_mode(WAL)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=temp_store(MEMORY)"

type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// getMigrationsFS returns the embedded migrations rooted at their
// directory.
func getMigrationsFS() (fs.FS, error) {
	return fs.Sub(migrationsFS, "migrations")
}

// OpenDB opens the database at path with pragmas applied but without
// touching the schema. Use it for the migrate subcommand.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?"+pragmas)
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{DB: sqlDB, clock: timeutil.RealClock{}}, nil
}

// NewDB opens the database at path and applies every pending migration.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migrations, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the clock used for grid update timestamps.
func (db *DB) SetClock(c timeutil.Clock) {
	db.clock = c
}
