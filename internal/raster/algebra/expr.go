// Package algebra builds and evaluates cell-wise raster expressions.
//
// Expressions are trees of operators over grid references and constants.
// They are built with the constructor functions in this package instead of
// being interpolated into strings, so a grid name can never change the shape
// of an expression. String renders the r.mapcalc-style form for logs.
//
// Null semantics follow r.mapcalc: arithmetic, comparison and logic
// operators return null when any operand is null; IsNull never returns null;
// If returns null when its condition is null.
package algebra

import (
	"strconv"
	"strings"

	"github.com/banshee-data/dem-blend/internal/raster"
)

// Expr is a node of a cell-wise expression.
type Expr interface {
	String() string
	children() []Expr
	bind(grids map[string]*raster.Grid) cellFunc
}

type cellFunc func(i int) float64

// Ref references a named grid.
func Ref(name string) Expr { return ref{name: name} }

// Const is a scalar applied to every cell.
func Const(v float64) Expr { return constant{v: v} }

// Null is the no-data constant, null() in r.mapcalc.
func Null() Expr { return constant{v: raster.Null()} }

// Add returns a + b.
func Add(a, b Expr) Expr { return arith{op: '+', a: a, b: b} }

// Sub returns a - b.
func Sub(a, b Expr) Expr { return arith{op: '-', a: a, b: b} }

// Mul returns a * b.
func Mul(a, b Expr) Expr { return arith{op: '*', a: a, b: b} }

// Div returns a / b. Division by zero yields null.
func Div(a, b Expr) Expr { return arith{op: '/', a: a, b: b} }

// IsNull is 1 where e is null and 0 elsewhere.
func IsNull(e Expr) Expr { return isNull{e: e} }

// Not is logical negation.
func Not(e Expr) Expr { return not{e: e} }

// And is logical conjunction.
func And(a, b Expr) Expr { return logic{op: "&&", a: a, b: b} }

// Or is logical disjunction.
func Or(a, b Expr) Expr { return logic{op: "||", a: a, b: b} }

// If selects then where cond is non-zero and otherwise where cond is zero.
func If(cond, then, otherwise Expr) Expr { return ifExpr{cond: cond, then: then, otherwise: otherwise} }

// Defined is 1 where e is not null, !isnull(e).
func Defined(e Expr) Expr { return Not(IsNull(e)) }

// BothDefined is 1 where both a and b are not null.
func BothDefined(a, b Expr) Expr { return And(Defined(a), Defined(b)) }

// Mean2 is the pairwise average a/2 + b/2, which stays finite for finite
// inputs near the float64 limit.
func Mean2(a, b Expr) Expr { return Add(Div(a, Const(2)), Div(b, Const(2))) }

// Refs returns the distinct grid names referenced by e, in first-seen order.
func Refs(e Expr) []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(Expr)
	walk = func(n Expr) {
		if r, ok := n.(ref); ok {
			if _, dup := seen[r.name]; !dup {
				seen[r.name] = struct{}{}
				out = append(out, r.name)
			}
		}
		for _, c := range n.children() {
			walk(c)
		}
	}
	walk(e)
	return out
}

type ref struct{ name string }

func (r ref) String() string   { return r.name }
func (r ref) children() []Expr { return nil }
func (r ref) bind(grids map[string]*raster.Grid) cellFunc {
	cells := grids[r.name].Cells
	return func(i int) float64 { return cells[i] }
}

type constant struct{ v float64 }

func (c constant) String() string {
	if raster.IsNull(c.v) {
		return "null()"
	}
	return strconv.FormatFloat(c.v, 'g', -1, 64)
}
func (c constant) children() []Expr { return nil }
func (c constant) bind(map[string]*raster.Grid) cellFunc {
	v := c.v
	return func(int) float64 { return v }
}

type arith struct {
	op   byte
	a, b Expr
}

func (x arith) String() string   { return "(" + x.a.String() + " " + string(x.op) + " " + x.b.String() + ")" }
func (x arith) children() []Expr { return []Expr{x.a, x.b} }
func (x arith) bind(grids map[string]*raster.Grid) cellFunc {
	a, b := x.a.bind(grids), x.b.bind(grids)
	var apply func(l, r float64) float64
	switch x.op {
	case '+':
		apply = func(l, r float64) float64 { return l + r }
	case '-':
		apply = func(l, r float64) float64 { return l - r }
	case '*':
		apply = func(l, r float64) float64 { return l * r }
	default:
		apply = func(l, r float64) float64 {
			if r == 0 {
				return raster.Null()
			}
			return l / r
		}
	}
	return func(i int) float64 {
		l, r := a(i), b(i)
		if raster.IsNull(l) || raster.IsNull(r) {
			return raster.Null()
		}
		return apply(l, r)
	}
}

type isNull struct{ e Expr }

func (x isNull) String() string   { return "isnull(" + x.e.String() + ")" }
func (x isNull) children() []Expr { return []Expr{x.e} }
func (x isNull) bind(grids map[string]*raster.Grid) cellFunc {
	e := x.e.bind(grids)
	return func(i int) float64 {
		if raster.IsNull(e(i)) {
			return 1
		}
		return 0
	}
}

type not struct{ e Expr }

func (x not) String() string {
	if inner, ok := x.e.(isNull); ok {
		return "!" + inner.String()
	}
	return "!(" + x.e.String() + ")"
}
func (x not) children() []Expr { return []Expr{x.e} }
func (x not) bind(grids map[string]*raster.Grid) cellFunc {
	e := x.e.bind(grids)
	return func(i int) float64 {
		v := e(i)
		switch {
		case raster.IsNull(v):
			return v
		case v == 0:
			return 1
		default:
			return 0
		}
	}
}

type logic struct {
	op   string
	a, b Expr
}

func (x logic) String() string   { return x.a.String() + " " + x.op + " " + x.b.String() }
func (x logic) children() []Expr { return []Expr{x.a, x.b} }
func (x logic) bind(grids map[string]*raster.Grid) cellFunc {
	a, b := x.a.bind(grids), x.b.bind(grids)
	or := x.op == "||"
	return func(i int) float64 {
		l, r := a(i), b(i)
		if raster.IsNull(l) || raster.IsNull(r) {
			return raster.Null()
		}
		var truth bool
		if or {
			truth = l != 0 || r != 0
		} else {
			truth = l != 0 && r != 0
		}
		if truth {
			return 1
		}
		return 0
	}
}

type ifExpr struct {
	cond, then, otherwise Expr
}

func (x ifExpr) String() string {
	var b strings.Builder
	b.WriteString("if(")
	b.WriteString(x.cond.String())
	b.WriteString(", ")
	b.WriteString(x.then.String())
	b.WriteString(", ")
	b.WriteString(x.otherwise.String())
	b.WriteString(")")
	return b.String()
}
func (x ifExpr) children() []Expr { return []Expr{x.cond, x.then, x.otherwise} }
func (x ifExpr) bind(grids map[string]*raster.Grid) cellFunc {
	cond, then, otherwise := x.cond.bind(grids), x.then.bind(grids), x.otherwise.bind(grids)
	return func(i int) float64 {
		c := cond(i)
		switch {
		case raster.IsNull(c):
			return c
		case c != 0:
			return then(i)
		default:
			return otherwise(i)
		}
	}
}
