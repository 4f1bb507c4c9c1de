package blend

import (
	"context"

	"github.com/google/uuid"

	"github.com/banshee-data/dem-blend/internal/engine"
	"github.com/banshee-data/dem-blend/internal/monitoring"
)

// TempSet tracks the intermediate grids of one blend invocation. Names
// carry a random suffix so concurrent invocations on one engine never
// collide. A TempSet is not safe for concurrent use.
type TempSet struct {
	eng    engine.RasterEngine
	prefix string
	suffix string
	names  []string
}

// NewTempSet returns an empty set whose names start with prefix.
func NewTempSet(eng engine.RasterEngine, prefix string) *TempSet {
	return &TempSet{
		eng:    eng,
		prefix: prefix,
		suffix: uuid.NewString()[:8],
	}
}

// Name derives the intermediate name for role. It does not register it.
func (t *TempSet) Name(role string) string {
	return t.prefix + role + "_" + t.suffix
}

// Register records name for removal. Call it once the grid exists.
func (t *TempSet) Register(name string) {
	for _, n := range t.names {
		if n == name {
			return
		}
	}
	t.names = append(t.names, name)
}

// Names returns the registered names in registration order.
func (t *TempSet) Names() []string {
	return append([]string(nil), t.names...)
}

// Release removes every registered grid, ignoring names that are already
// gone. On success the set is emptied, so repeated calls are no-ops.
func (t *TempSet) Release(ctx context.Context) error {
	if len(t.names) == 0 {
		return nil
	}
	if err := t.eng.RemoveGrids(ctx, t.names, true); err != nil {
		return engineErr("release", err)
	}
	monitoring.Logf("[blend] released %d intermediates (%s)", len(t.names), t.suffix)
	t.names = nil
	return nil
}
