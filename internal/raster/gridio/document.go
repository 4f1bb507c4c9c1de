// Package gridio reads and writes the JSON grid document used to move grids
// in and out of an engine. Null cells are encoded as JSON null.
package gridio

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/dem-blend/internal/fsutil"
	"github.com/banshee-data/dem-blend/internal/raster"
)

// maxDocumentSize bounds the documents accepted by Read (256MB).
const maxDocumentSize = 256 * 1024 * 1024

// maxDocumentCells is the most cells a document within maxDocumentSize can
// spell out; every cell takes at least a digit and a separator.
const maxDocumentCells = maxDocumentSize / 2

// Document is the serialised form of a named grid.
type Document struct {
	Name string `json:"name,omitempty"`
	raster.Geometry
	Cells [][]*float64 `json:"cells"`
}

// FromGrid converts a grid into a document.
func FromGrid(name string, g *raster.Grid) *Document {
	geom := g.Geometry
	doc := &Document{Name: name, Geometry: geom, Cells: make([][]*float64, geom.Rows)}
	for r := 0; r < geom.Rows; r++ {
		row := make([]*float64, geom.Cols)
		for c := 0; c < geom.Cols; c++ {
			if v := g.Get(r, c); !raster.IsNull(v) {
				row[c] = &v
			}
		}
		doc.Cells[r] = row
	}
	return doc
}

// Grid validates the document and converts it into a grid.
func (d *Document) Grid() (*raster.Grid, error) {
	if err := d.Geometry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid geometry: %w", err)
	}
	if d.Rows > maxDocumentCells/d.Cols {
		return nil, fmt.Errorf("%dx%d grid exceeds %d document cells", d.Rows, d.Cols, maxDocumentCells)
	}
	if len(d.Cells) != d.Rows {
		return nil, fmt.Errorf("expected %d rows, got %d", d.Rows, len(d.Cells))
	}
	for r, row := range d.Cells {
		if len(row) != d.Cols {
			return nil, fmt.Errorf("row %d: expected %d cols, got %d", r, d.Cols, len(row))
		}
	}

	g := raster.NewGrid(d.Geometry)
	for r, row := range d.Cells {
		for c, v := range row {
			if v != nil {
				g.Set(r, c, *v)
			}
		}
	}
	return g, nil
}

// Decode parses a document.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse grid JSON: %w", err)
	}
	return &doc, nil
}

// Read loads a document from path.
func Read(fsys fsutil.FileSystem, path string) (*Document, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat grid file: %w", err)
	}
	if info.Size() > maxDocumentSize {
		return nil, fmt.Errorf("grid file too large: %d bytes (max %d)", info.Size(), maxDocumentSize)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid file: %w", err)
	}
	return Decode(data)
}

// Write stores a document at path, creating parent directories.
func Write(fsys fsutil.FileSystem, path string, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode grid JSON: %w", err)
	}
	return fsutil.WriteFileAll(fsys, path, data)
}
