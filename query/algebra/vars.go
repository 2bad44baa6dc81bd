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
	"sort"

	"github.com/ebay/fedx/query/binding"
)

func sortedUnique(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	out := names[:1]
	for _, n := range names[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}

// PatternVars returns the names of the variables in the pattern's positions.
func PatternVars(p *StatementPattern) []string {
	var names []string
	for _, t := range []Term{p.Subject, p.Predicate, p.Object} {
		if v, ok := t.(*Variable); ok {
			names = append(names, v.Name)
		}
	}
	return sortedUnique(names)
}

// Vars returns the sorted names of all variables that may be bound in the
// solutions of n.
func Vars(n Node) []string {
	var names []string
	switch n := n.(type) {
	case *StatementPattern:
		return PatternVars(n)
	case *ExclusiveGroup:
		for _, p := range n.Patterns {
			names = append(names, PatternVars(p)...)
		}
		return sortedUnique(names)
	case *Projection:
		return intersect(n.Vars, Vars(n.Arg))
	case *Extend:
		return sortedUnique(append(Vars(n.Arg), n.Var))
	}
	for _, c := range Children(n) {
		names = append(names, Vars(c)...)
	}
	return sortedUnique(names)
}

// CertainVars returns the sorted names of the variables bound in every
// solution of n.
func CertainVars(n Node) []string {
	switch n := n.(type) {
	case *StatementPattern, *ExclusiveGroup:
		return Vars(n)
	case *Join:
		var names []string
		for _, a := range n.Args {
			names = append(names, CertainVars(a)...)
		}
		return sortedUnique(names)
	case *IndependentGroup:
		var names []string
		for _, a := range n.Parts {
			names = append(names, CertainVars(a)...)
		}
		return sortedUnique(names)
	case *LeftJoin:
		return CertainVars(n.Left)
	case *Union:
		if len(n.Args) == 0 {
			return nil
		}
		res := CertainVars(n.Args[0])
		for _, a := range n.Args[1:] {
			res = intersect(res, CertainVars(a))
		}
		return res
	case *Filter:
		return CertainVars(n.Arg)
	case *Extend:
		return sortedUnique(append(CertainVars(n.Arg), n.Var))
	case *Projection:
		return intersect(n.Vars, CertainVars(n.Arg))
	case *Distinct:
		return CertainVars(n.Arg)
	case *Slice:
		return CertainVars(n.Arg)
	case *Empty, *SingletonSet:
		return nil
	}
	panic(fmt.Sprintf("CertainVars: unexpected node type %T", n))
}

// intersect returns the sorted names present in both a and b.
func intersect(a, b []string) []string {
	var res []string
	for _, x := range a {
		for _, y := range b {
			if x == y {
				res = append(res, x)
				break
			}
		}
	}
	return sortedUnique(res)
}

// SharedVars returns the sorted names present in both a and b.
func SharedVars(a, b []string) []string {
	return intersect(a, b)
}

// Substitute returns a copy of n in which every variable bound in b is
// replaced by its value. Projections keep substituted names so that callers
// merging b back into results still see them.
func Substitute(n Node, b binding.Set) Node {
	if b.Len() == 0 {
		return Clone(n)
	}
	term := func(t Term) Term {
		if v, ok := t.(*Variable); ok {
			if val, ok := b.Get(v.Name); ok {
				return Const(val)
			}
		}
		return t
	}
	pattern := func(p *StatementPattern) *StatementPattern {
		c := WithChildren(p, nil).(*StatementPattern)
		c.Subject, c.Predicate, c.Object = term(p.Subject), term(p.Predicate), term(p.Object)
		return c
	}
	return MustTransform(n, func(n Node) Node {
		switch n := n.(type) {
		case *StatementPattern:
			return pattern(n)
		case *ExclusiveGroup:
			for i, p := range n.Patterns {
				n.Patterns[i] = pattern(p)
			}
			for i, f := range n.Filters {
				n.Filters[i] = SubstituteExpr(f, b)
			}
			if n.Prepared != nil {
				n.Prepared = Substitute(n.Prepared, b)
			}
			n.Text = ""
			return n
		case *Filter:
			n.Condition = SubstituteExpr(n.Condition, b)
		case *LeftJoin:
			if n.Condition != nil {
				n.Condition = SubstituteExpr(n.Condition, b)
			}
		case *Extend:
			n.Expr = SubstituteExpr(n.Expr, b)
		}
		return n
	})
}

// SubstituteExpr replaces every variable bound in b by its value. BOUND(?x)
// becomes true when ?x is bound in b.
func SubstituteExpr(e Expr, b binding.Set) Expr {
	return MapExpr(e, func(e Expr) Expr {
		switch e := e.(type) {
		case *Variable:
			if val, ok := b.Get(e.Name); ok {
				return Const(val)
			}
		case *Bound:
			if b.Has(e.Var.Name) {
				return True
			}
		}
		return e
	})
}

// RenameVars returns a copy of n with every variable renamed by fn.
func RenameVars(n Node, fn func(string) string) Node {
	term := func(t Term) Term {
		if v, ok := t.(*Variable); ok {
			return Var(fn(v.Name))
		}
		return t
	}
	expr := func(e Expr) Expr {
		if e == nil {
			return nil
		}
		return MapExpr(e, func(e Expr) Expr {
			switch e := e.(type) {
			case *Variable:
				return Var(fn(e.Name))
			case *Bound:
				return &Bound{Var: Var(fn(e.Var.Name))}
			}
			return e
		})
	}
	pattern := func(p *StatementPattern) *StatementPattern {
		c := WithChildren(p, nil).(*StatementPattern)
		c.Subject, c.Predicate, c.Object = term(p.Subject), term(p.Predicate), term(p.Object)
		return c
	}
	return MustTransform(n, func(n Node) Node {
		switch n := n.(type) {
		case *StatementPattern:
			return pattern(n)
		case *ExclusiveGroup:
			for i, p := range n.Patterns {
				n.Patterns[i] = pattern(p)
			}
			for i, f := range n.Filters {
				n.Filters[i] = expr(f)
			}
			if n.Prepared != nil {
				n.Prepared = RenameVars(n.Prepared, fn)
			}
			n.Text = ""
		case *Filter:
			n.Condition = expr(n.Condition)
		case *LeftJoin:
			n.Condition = expr(n.Condition)
		case *Extend:
			n.Var = fn(n.Var)
			n.Expr = expr(n.Expr)
		case *Projection:
			for i, v := range n.Vars {
				n.Vars[i] = fn(v)
			}
		}
		return n
	})
}
