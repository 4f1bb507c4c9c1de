package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/dem-blend/internal/blend"
)

// RecordRun stores one blend run.
func (db *DB) RecordRun(ctx context.Context, run blend.Run) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO blend_runs (
			run_id, mode, input_a, input_b, output, estimator, statistic,
			offset_a, offset_b, overlap_cells, status, error,
			started_unix_nanos, finished_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, string(run.Mode), run.InputA, run.InputB, run.Output,
		string(run.Estimator), string(run.Statistic),
		run.OffsetA, run.OffsetB, run.OverlapCells, string(run.Status), run.Error,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]blend.Run, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, mode, input_a, input_b, output, estimator, statistic,
			offset_a, offset_b, overlap_cells, status, error,
			started_unix_nanos, finished_unix_nanos
		FROM blend_runs
		ORDER BY started_unix_nanos DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []blend.Run
	for rows.Next() {
		var (
			run                   blend.Run
			mode, estimator, stat string
			status                string
			started, finished     int64
		)
		if err := rows.Scan(
			&run.RunID, &mode, &run.InputA, &run.InputB, &run.Output, &estimator, &stat,
			&run.OffsetA, &run.OffsetB, &run.OverlapCells, &status, &run.Error,
			&started, &finished,
		); err != nil {
			return nil, err
		}
		run.Mode = blend.Mode(mode)
		run.Estimator = blend.Estimator(estimator)
		run.Statistic = blend.Statistic(stat)
		run.Status = blend.Status(status)
		run.StartedAt = time.Unix(0, started).UTC()
		run.FinishedAt = time.Unix(0, finished).UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

var _ blend.Recorder = (*DB)(nil)
