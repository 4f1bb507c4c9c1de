// Package engine owns named grids and evaluates raster algebra and
// statistics over them.
//
// Engine is the only RasterEngine implementation. It delegates persistence
// to a Store: MemoryStore for tests and one-shot runs, db.DB for a
// persistent SQLite location.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/dem-blend/internal/monitoring"
	"github.com/banshee-data/dem-blend/internal/raster"
	"github.com/banshee-data/dem-blend/internal/raster/algebra"
	"github.com/banshee-data/dem-blend/internal/raster/univar"
	"github.com/banshee-data/dem-blend/internal/security"
)

var (
	// ErrGridNotFound is returned when a named grid does not exist.
	ErrGridNotFound = errors.New("grid not found")
	// ErrGridExists is returned when writing over a grid without overwrite.
	ErrGridExists = errors.New("grid already exists")
	// ErrInvalidExpression is returned for expressions that cannot be evaluated.
	ErrInvalidExpression = errors.New("invalid expression")
)

// StatsOptions controls ComputeStatistics.
type StatsOptions = univar.Options

// RasterEngine is the set of operations the blend core needs.
type RasterEngine interface {
	// EvaluateAlgebra evaluates expr cell-wise and stores the result as output.
	EvaluateAlgebra(ctx context.Context, expr algebra.Expr, output string, overwrite bool) error
	// ComputeStatistics returns univariate statistics over a grid.
	ComputeStatistics(ctx context.Context, name string, opts StatsOptions) (univar.Statistics, error)
	// CopyGrid materialises src under dst.
	CopyGrid(ctx context.Context, src, dst string, overwrite bool) error
	// RemoveGrids deletes the named grids. With force, missing names are ignored.
	RemoveGrids(ctx context.Context, names []string, force bool) error
	// Geometry returns the geometry of a grid without loading its cells.
	Geometry(ctx context.Context, name string) (raster.Geometry, error)
}

// Store persists grids by name. Implemented by MemoryStore and db.DB.
// LoadGrid and DeleteGrid wrap ErrGridNotFound for missing names; ListGrids
// returns names in ascending order.
type Store interface {
	LoadGrid(ctx context.Context, name string) (*raster.Grid, error)
	SaveGrid(ctx context.Context, name string, g *raster.Grid) error
	DeleteGrid(ctx context.Context, name string) error
	ListGrids(ctx context.Context) ([]string, error)
}

// GeometryStore is an optional Store extension that reads geometry without
// decoding cells.
type GeometryStore interface {
	LoadGeometry(ctx context.Context, name string) (raster.Geometry, error)
}

// Engine implements RasterEngine over a Store. Operations are serialised by
// a mutex; each one runs to completion before the next starts.
type Engine struct {
	mu    sync.Mutex
	store Store
}

// New returns an engine over store.
func New(store Store) *Engine {
	return &Engine{store: store}
}

// NewMemory returns an engine over a fresh MemoryStore.
func NewMemory() *Engine {
	return New(NewMemoryStore())
}

func (e *Engine) exists(ctx context.Context, name string) (bool, error) {
	names, err := e.store.ListGrids(ctx)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(names, name)
	return i < len(names) && names[i] == name, nil
}

func (e *Engine) save(ctx context.Context, name string, g *raster.Grid, overwrite bool) error {
	if err := security.ValidateGridName(name); err != nil {
		return err
	}
	if !overwrite {
		found, err := e.exists(ctx, name)
		if err != nil {
			return err
		}
		if found {
			return fmt.Errorf("%w: %s", ErrGridExists, name)
		}
	}
	return e.store.SaveGrid(ctx, name, g)
}

// PutGrid stores g under name.
func (e *Engine) PutGrid(ctx context.Context, name string, g *raster.Grid, overwrite bool) error {
	if err := g.Geometry.Validate(); err != nil {
		return fmt.Errorf("grid %s: %w", name, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.save(ctx, name, g, overwrite)
}

// Grid returns a copy of the named grid.
func (e *Engine) Grid(ctx context.Context, name string) (*raster.Grid, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, err := e.store.LoadGrid(ctx, name)
	if err != nil {
		return nil, err
	}
	return g.Clone(), nil
}

// List returns every grid name in ascending order.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ListGrids(ctx)
}

// EvaluateAlgebra implements RasterEngine.
func (e *Engine) EvaluateAlgebra(ctx context.Context, expr algebra.Expr, output string, overwrite bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	lookup := func(name string) (*raster.Grid, error) { return e.store.LoadGrid(ctx, name) }
	g, err := algebra.Evaluate(ctx, expr, lookup)
	if err != nil {
		if errors.Is(err, algebra.ErrNoOperands) {
			return fmt.Errorf("%w: %v", ErrInvalidExpression, err)
		}
		return err
	}
	monitoring.Logf("[engine] %s = %s", output, expr)
	return e.save(ctx, output, g, overwrite)
}

// ComputeStatistics implements RasterEngine.
func (e *Engine) ComputeStatistics(ctx context.Context, name string, opts StatsOptions) (univar.Statistics, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, err := e.store.LoadGrid(ctx, name)
	if err != nil {
		return univar.Statistics{}, err
	}
	return univar.Compute(g, opts), nil
}

// CopyGrid implements RasterEngine.
func (e *Engine) CopyGrid(ctx context.Context, src, dst string, overwrite bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, err := e.store.LoadGrid(ctx, src)
	if err != nil {
		return err
	}
	return e.save(ctx, dst, g.Clone(), overwrite)
}

// RemoveGrids implements RasterEngine. Every name is attempted; the first
// error is returned.
func (e *Engine) RemoveGrids(ctx context.Context, names []string, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var first error
	for _, name := range names {
		err := e.store.DeleteGrid(ctx, name)
		if err == nil || (force && errors.Is(err, ErrGridNotFound)) {
			continue
		}
		if first == nil {
			first = err
		}
	}
	return first
}

// Geometry implements RasterEngine.
func (e *Engine) Geometry(ctx context.Context, name string) (raster.Geometry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gs, ok := e.store.(GeometryStore); ok {
		return gs.LoadGeometry(ctx, name)
	}
	g, err := e.store.LoadGrid(ctx, name)
	if err != nil {
		return raster.Geometry{}, err
	}
	return g.Geometry, nil
}
