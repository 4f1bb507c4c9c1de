package blend

import (
	"errors"
	"fmt"

	"github.com/banshee-data/dem-blend/internal/raster"
)

var (
	// ErrNoOverlap is returned when the inputs share no defined cell.
	ErrNoOverlap = errors.New("blend: inputs do not overlap")
	// ErrGeometryMismatch is returned when the inputs differ in extent or
	// resolution. It is the same value as raster.ErrGeometryMismatch.
	ErrGeometryMismatch = raster.ErrGeometryMismatch
	// ErrInvalidName is returned for grid names the engine cannot accept.
	ErrInvalidName = errors.New("blend: invalid grid name")
)

// EngineError reports a raster engine failure during one step of a blend.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("blend: %s: %v", e.Op, e.Err)
}

// Unwrap returns the engine's error unchanged.
func (e *EngineError) Unwrap() error { return e.Err }

func engineErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}

// Status classifies how a blend ended, for the run history.
type Status string

const (
	StatusOK               Status = "ok"
	StatusNoOverlap        Status = "no_overlap"
	StatusGeometryMismatch Status = "geometry_mismatch"
	StatusInvalidName      Status = "invalid_name"
	StatusEngineFailure    Status = "engine_failure"
)

// StatusOf maps a blend error to its Status.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNoOverlap):
		return StatusNoOverlap
	case errors.Is(err, ErrGeometryMismatch):
		return StatusGeometryMismatch
	case errors.Is(err, ErrInvalidName):
		return StatusInvalidName
	default:
		return StatusEngineFailure
	}
}
