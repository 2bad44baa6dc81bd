// Copyright 2019 eBay Inc.
// Primary authors: Simon Fell, Diego Ongaro,
//                  Raymond Kroeker, and Sathish Kandasamy.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package algebra

import (
	"fmt"
	"strings"

	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/util/cmp"
)

// Expr is a value expression, used in FILTER conditions, left join conditions
// and BIND. It is a sum type; see ImplementExpr for the list of types.
// Expressions are never modified once built; rewrites produce new values.
type Expr interface {
	cmp.Key
	String() string
	anExpr()
}

// Term is the subset of expressions that may appear in a statement pattern
// position: a Variable or a Constant.
type Term interface {
	Expr
	aTerm()
}

// ImplementExpr is a list of types that implement Expr.
// This serves as documentation and as a compile-time check.
var ImplementExpr = []Expr{
	new(Variable),
	new(Constant),
	new(Compare),
	new(And),
	new(Or),
	new(Not),
	new(Bound),
	new(SameTerm),
}

// Variable is a named query variable, like ?s.
type Variable struct {
	Name string
}

// Constant is a fixed RDF term.
type Constant struct {
	Value rdf.Term
}

// Var is shorthand for &Variable{Name: name}.
func Var(name string) *Variable {
	return &Variable{Name: name}
}

// Const is shorthand for &Constant{Value: t}.
func Const(t rdf.Term) *Constant {
	return &Constant{Value: t}
}

// True and False are the boolean constants produced by constant folding.
var (
	True  = &Constant{Value: rdf.Boolean(true)}
	False = &Constant{Value: rdf.Boolean(false)}
)

// CompareOp is a comparison operator.
type CompareOp int

// Comparison operators.
const (
	OpEqual CompareOp = iota + 1
	OpNotEqual
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
)

var compareOpText = map[CompareOp]string{
	OpEqual:          "=",
	OpNotEqual:       "!=",
	OpLess:           "<",
	OpLessOrEqual:    "<=",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
}

func (op CompareOp) String() string {
	if s, ok := compareOpText[op]; ok {
		return s
	}
	return fmt.Sprintf("CompareOp(%d)", int(op))
}

// Mirror returns the operator to use when the operands are swapped, so that
// a op b == b op.Mirror() a.
func (op CompareOp) Mirror() CompareOp {
	switch op {
	case OpLess:
		return OpGreater
	case OpLessOrEqual:
		return OpGreaterOrEqual
	case OpGreater:
		return OpLess
	case OpGreaterOrEqual:
		return OpLessOrEqual
	}
	return op
}

// Negate returns the operator for NOT (a op b).
func (op CompareOp) Negate() CompareOp {
	switch op {
	case OpEqual:
		return OpNotEqual
	case OpNotEqual:
		return OpEqual
	case OpLess:
		return OpGreaterOrEqual
	case OpLessOrEqual:
		return OpGreater
	case OpGreater:
		return OpLessOrEqual
	case OpGreaterOrEqual:
		return OpLess
	}
	return op
}

// Compare is a binary comparison.
type Compare struct {
	Op          CompareOp
	Left, Right Expr
}

// And is a logical conjunction.
type And struct {
	Left, Right Expr
}

// Or is a logical disjunction.
type Or struct {
	Left, Right Expr
}

// Not is a logical negation.
type Not struct {
	Arg Expr
}

// Bound tests whether a variable has a value.
type Bound struct {
	Var *Variable
}

// SameTerm tests two terms for RDF term equality.
type SameTerm struct {
	Left, Right Expr
}

func (*Variable) anExpr() {}
func (*Constant) anExpr() {}
func (*Compare) anExpr()  {}
func (*And) anExpr()      {}
func (*Or) anExpr()       {}
func (*Not) anExpr()      {}
func (*Bound) anExpr()    {}
func (*SameTerm) anExpr() {}

func (*Variable) aTerm() {}
func (*Constant) aTerm() {}

func (v *Variable) String() string { return "?" + v.Name }

// Key implements cmp.Key.
func (v *Variable) Key(b *strings.Builder) {
	b.WriteByte('?')
	b.WriteString(v.Name)
}

func (c *Constant) String() string { return c.Value.String() }

// Key implements cmp.Key.
func (c *Constant) Key(b *strings.Builder) {
	c.Value.Key(b)
}

func (e *Compare) String() string { return cmp.GetKey(e) }

// Key implements cmp.Key.
func (e *Compare) Key(b *strings.Builder) {
	b.WriteByte('(')
	e.Left.Key(b)
	b.WriteByte(' ')
	b.WriteString(e.Op.String())
	b.WriteByte(' ')
	e.Right.Key(b)
	b.WriteByte(')')
}

func (e *And) String() string { return cmp.GetKey(e) }

// Key implements cmp.Key.
func (e *And) Key(b *strings.Builder) {
	b.WriteByte('(')
	e.Left.Key(b)
	b.WriteString(" && ")
	e.Right.Key(b)
	b.WriteByte(')')
}

func (e *Or) String() string { return cmp.GetKey(e) }

// Key implements cmp.Key.
func (e *Or) Key(b *strings.Builder) {
	b.WriteByte('(')
	e.Left.Key(b)
	b.WriteString(" || ")
	e.Right.Key(b)
	b.WriteByte(')')
}

func (e *Not) String() string { return cmp.GetKey(e) }

// Key implements cmp.Key.
func (e *Not) Key(b *strings.Builder) {
	b.WriteString("!")
	e.Arg.Key(b)
}

func (e *Bound) String() string { return cmp.GetKey(e) }

// Key implements cmp.Key.
func (e *Bound) Key(b *strings.Builder) {
	b.WriteString("BOUND(")
	e.Var.Key(b)
	b.WriteByte(')')
}

func (e *SameTerm) String() string { return cmp.GetKey(e) }

// Key implements cmp.Key.
func (e *SameTerm) Key(b *strings.Builder) {
	b.WriteString("sameTerm(")
	e.Left.Key(b)
	b.WriteString(", ")
	e.Right.Key(b)
	b.WriteByte(')')
}

// Conjuncts splits a chain of And expressions into its operands.
func Conjuncts(e Expr) []Expr {
	if and, ok := e.(*And); ok {
		return append(Conjuncts(and.Left), Conjuncts(and.Right)...)
	}
	return []Expr{e}
}

// Conjunction joins exprs with And. It returns nil for no expressions.
func Conjunction(exprs ...Expr) Expr {
	if len(exprs) == 0 {
		return nil
	}
	res := exprs[0]
	for _, e := range exprs[1:] {
		res = &And{Left: res, Right: e}
	}
	return res
}

// ExprVars returns the sorted, de-duplicated names of the variables used in e.
func ExprVars(e Expr) []string {
	var names []string
	var walk func(Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case *Variable:
			names = append(names, e.Name)
		case *Constant:
		case *Compare:
			walk(e.Left)
			walk(e.Right)
		case *And:
			walk(e.Left)
			walk(e.Right)
		case *Or:
			walk(e.Left)
			walk(e.Right)
		case *Not:
			walk(e.Arg)
		case *Bound:
			walk(e.Var)
		case *SameTerm:
			walk(e.Left)
			walk(e.Right)
		default:
			panic(fmt.Sprintf("ExprVars: unexpected expression type %T", e))
		}
	}
	if e != nil {
		walk(e)
	}
	return sortedUnique(names)
}

// MapExpr rebuilds e bottom-up, replacing each sub-expression with fn's
// result.
func MapExpr(e Expr, fn func(Expr) Expr) Expr {
	switch t := e.(type) {
	case *Variable, *Constant:
		return fn(e)
	case *Compare:
		return fn(&Compare{Op: t.Op, Left: MapExpr(t.Left, fn), Right: MapExpr(t.Right, fn)})
	case *And:
		return fn(&And{Left: MapExpr(t.Left, fn), Right: MapExpr(t.Right, fn)})
	case *Or:
		return fn(&Or{Left: MapExpr(t.Left, fn), Right: MapExpr(t.Right, fn)})
	case *Not:
		return fn(&Not{Arg: MapExpr(t.Arg, fn)})
	case *Bound:
		return fn(&Bound{Var: t.Var})
	case *SameTerm:
		return fn(&SameTerm{Left: MapExpr(t.Left, fn), Right: MapExpr(t.Right, fn)})
	}
	panic(fmt.Sprintf("MapExpr: unexpected expression type %T", e))
}
