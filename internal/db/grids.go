package db

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/raster"
)

// encodeCells gob-encodes cells and gzips the result. NaN survives the
// round trip bit for bit.
func encodeCells(cells []float64) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(zw).Encode(cells); err != nil {
		return nil, fmt.Errorf("failed to encode cells: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress cells: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeCells(data []byte, want int) ([]float64, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress cells: %w", err)
	}
	defer zr.Close()

	var cells []float64
	if err := gob.NewDecoder(zr).Decode(&cells); err != nil {
		return nil, fmt.Errorf("failed to decode cells: %w", err)
	}
	if len(cells) != want {
		return nil, fmt.Errorf("stored grid has %d cells, geometry needs %d", len(cells), want)
	}
	return cells, nil
}

// SaveGrid inserts or replaces the grid stored under name.
func (db *DB) SaveGrid(ctx context.Context, name string, g *raster.Grid) error {
	blob, err := encodeCells(g.Cells)
	if err != nil {
		return err
	}
	geom := g.Geometry
	_, err = db.ExecContext(ctx, `
		INSERT INTO grids (name, rows, cols, north, south, east, west, cells, updated_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			rows = excluded.rows,
			cols = excluded.cols,
			north = excluded.north,
			south = excluded.south,
			east = excluded.east,
			west = excluded.west,
			cells = excluded.cells,
			updated_unix_nanos = excluded.updated_unix_nanos`,
		name, geom.Rows, geom.Cols, geom.North, geom.South, geom.East, geom.West, blob,
		db.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save grid %s: %w", name, err)
	}
	return nil
}

// LoadGeometry reads the geometry of a grid without decoding its cells.
func (db *DB) LoadGeometry(ctx context.Context, name string) (raster.Geometry, error) {
	var geom raster.Geometry
	err := db.QueryRowContext(ctx,
		`SELECT rows, cols, north, south, east, west FROM grids WHERE name = ?`, name,
	).Scan(&geom.Rows, &geom.Cols, &geom.North, &geom.South, &geom.East, &geom.West)
	if errors.Is(err, sql.ErrNoRows) {
		return raster.Geometry{}, fmt.Errorf("%w: %s", engine.ErrGridNotFound, name)
	}
	if err != nil {
		return raster.Geometry{}, fmt.Errorf("failed to load geometry of %s: %w", name, err)
	}
	return geom, nil
}

// LoadGrid reads the grid stored under name.
func (db *DB) LoadGrid(ctx context.Context, name string) (*raster.Grid, error) {
	var (
		geom raster.Geometry
		blob []byte
	)
	err := db.QueryRowContext(ctx,
		`SELECT rows, cols, north, south, east, west, cells FROM grids WHERE name = ?`, name,
	).Scan(&geom.Rows, &geom.Cols, &geom.North, &geom.South, &geom.East, &geom.West, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", engine.ErrGridNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load grid %s: %w", name, err)
	}

	cells, err := decodeCells(blob, geom.Cells())
	if err != nil {
		return nil, fmt.Errorf("grid %s: %w", name, err)
	}
	return raster.FromCells(geom, cells)
}

// DeleteGrid removes the grid stored under name.
func (db *DB) DeleteGrid(ctx context.Context, name string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM grids WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete grid %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrGridNotFound, name)
	}
	return nil
}

// ListGrids returns every stored grid name in ascending order.
func (db *DB) ListGrids(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM grids ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

var (
	_ engine.Store         = (*DB)(nil)
	_ engine.GeometryStore = (*DB)(nil)
)
