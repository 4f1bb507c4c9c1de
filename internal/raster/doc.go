// Package raster owns the grid data model shared by every other layer.
//
// A Grid is a row-major block of float64 elevation samples over a fixed
// Geometry. A cell is null (no-data) when it holds NaN; use Null and IsNull
// rather than comparing against math.NaN directly.
//
// No storage or evaluation code lives here. The engine package evaluates
// algebra over named grids, and the db package persists them.
package raster
