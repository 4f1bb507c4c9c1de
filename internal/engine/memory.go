package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/dem-blend/internal/raster"
)

// MemoryStore keeps grids in a map. Grids are copied on the way in and out
// so callers never share cells with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	grids map[string]*raster.Grid
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grids: make(map[string]*raster.Grid)}
}

// LoadGrid implements Store.
func (m *MemoryStore) LoadGrid(_ context.Context, name string) (*raster.Grid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grids[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGridNotFound, name)
	}
	return g.Clone(), nil
}

// SaveGrid implements Store.
func (m *MemoryStore) SaveGrid(_ context.Context, name string, g *raster.Grid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grids[name] = g.Clone()
	return nil
}

// DeleteGrid implements Store.
func (m *MemoryStore) DeleteGrid(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.grids[name]; !ok {
		return fmt.Errorf("%w: %s", ErrGridNotFound, name)
	}
	delete(m.grids, name)
	return nil
}

// ListGrids implements Store.
func (m *MemoryStore) ListGrids(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.grids))
	for name := range m.grids {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
