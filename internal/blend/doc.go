// Package blend merges two overlapping elevation grids into one seamless
// grid.
//
// A blend measures the vertical offset between the inputs over the cells
// where both are defined, shifts by that offset, and composites the result
// so that the output is defined wherever either input is. Two modes exist:
//
//   - Simple: the base grid is the reference. A is shifted by
//     median(base - A) over the overlap and patched into the base; A wins
//     wherever it is defined.
//   - Symmetric: the overlap mean (A+B)/2 is the reference. Inside the
//     overlap the output is that mean; outside it each input is copied
//     unchanged. The per-input offsets to the reference are reported.
//
// Every intermediate grid a blend creates belongs to a TempSet and is
// removed before the blend returns, on success and on every failure path.
package blend
