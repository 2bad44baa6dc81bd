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

package optimizer

import (
	"context"

	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/binding"
)

func isTrue(e algebra.Expr) bool {
	c, ok := e.(*algebra.Constant)
	return ok && c.Value == algebra.True.Value
}

func isFalse(e algebra.Expr) bool {
	c, ok := e.(*algebra.Constant)
	return ok && c.Value == algebra.False.Value
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func containsAll(names []string, subset []string) bool {
	for _, n := range subset {
		if !contains(names, n) {
			return false
		}
	}
	return true
}

// foldExpr evaluates the constant sub-expressions of e and simplifies the
// logical operators around boolean constants. vars are the variables that
// may be bound where e is evaluated: BOUND of anything else is false.
// Sub-expressions that fail to evaluate are kept, since an error is not the
// same as false inside || and &&.
func foldExpr(e algebra.Expr, vars []string) algebra.Expr {
	return algebra.MapExpr(e, func(e algebra.Expr) algebra.Expr {
		switch t := e.(type) {
		case *algebra.Constant, *algebra.Variable:
			return e
		case *algebra.Bound:
			if !contains(vars, t.Var.Name) {
				return algebra.False
			}
			return e
		case *algebra.And:
			switch {
			case isFalse(t.Left) || isFalse(t.Right):
				return algebra.False
			case isTrue(t.Left):
				return t.Right
			case isTrue(t.Right):
				return t.Left
			}
		case *algebra.Or:
			switch {
			case isTrue(t.Left) || isTrue(t.Right):
				return algebra.True
			case isFalse(t.Left):
				return t.Right
			case isFalse(t.Right):
				return t.Left
			}
		}
		if algebra.IsConstant(e) {
			if v, err := algebra.Eval(e, binding.Set{}); err == nil {
				return algebra.Const(v)
			}
		}
		return e
	})
}

// foldConstants folds filter, optional and BIND expressions. Filters that
// are always true disappear and those that are always false become Empty.
func foldConstants(_ context.Context, p *plan) error {
	p.root = algebra.MustTransform(p.root, func(n algebra.Node) algebra.Node {
		switch n := n.(type) {
		case *algebra.Filter:
			n.Condition = foldExpr(n.Condition, algebra.Vars(n.Arg))
			switch {
			case isTrue(n.Condition):
				return n.Arg
			case isFalse(n.Condition):
				return &algebra.Empty{}
			}
		case *algebra.LeftJoin:
			if n.Condition != nil {
				vars := append(algebra.Vars(n.Left), algebra.Vars(n.Right)...)
				n.Condition = foldExpr(n.Condition, vars)
				switch {
				case isTrue(n.Condition):
					n.Condition = nil
				case isFalse(n.Condition):
					n.Right, n.Condition = &algebra.Empty{}, nil
				}
			}
		case *algebra.Extend:
			n.Expr = foldExpr(n.Expr, algebra.Vars(n.Arg))
		}
		return n
	})
	return nil
}

// normalizeCondition puts variables on the left of comparisons and removes
// negations where an equivalent comparison exists. It is only valid for
// filter conditions, where only the effective boolean value matters.
func normalizeCondition(e algebra.Expr) algebra.Expr {
	return algebra.MapExpr(e, func(e algebra.Expr) algebra.Expr {
		switch t := e.(type) {
		case *algebra.Compare:
			_, lconst := t.Left.(*algebra.Constant)
			_, rvar := t.Right.(*algebra.Variable)
			if lconst && rvar {
				return &algebra.Compare{Op: t.Op.Mirror(), Left: t.Right, Right: t.Left}
			}
		case *algebra.SameTerm:
			_, lconst := t.Left.(*algebra.Constant)
			_, rvar := t.Right.(*algebra.Variable)
			if lconst && rvar {
				return &algebra.SameTerm{Left: t.Right, Right: t.Left}
			}
		case *algebra.Not:
			switch arg := t.Arg.(type) {
			case *algebra.Not:
				return arg.Arg
			case *algebra.Compare:
				return &algebra.Compare{Op: arg.Op.Negate(), Left: arg.Left, Right: arg.Right}
			}
		}
		return e
	})
}

func normalizeComparisons(_ context.Context, p *plan) error {
	p.root = algebra.MustTransform(p.root, func(n algebra.Node) algebra.Node {
		switch n := n.(type) {
		case *algebra.Filter:
			n.Condition = normalizeCondition(n.Condition)
		case *algebra.LeftJoin:
			if n.Condition != nil {
				n.Condition = normalizeCondition(n.Condition)
			}
		}
		return n
	})
	return nil
}

// pushFilter places cond as deep as possible above n: into the argument of
// a join that binds all of cond's variables, into every branch of a union,
// and below BINDs and optionals that don't affect it.
func pushFilter(cond algebra.Expr, n algebra.Node) algebra.Node {
	vars := algebra.ExprVars(cond)
	if len(vars) == 0 {
		return &algebra.Filter{Condition: cond, Arg: n}
	}
	switch n := n.(type) {
	case *algebra.Join:
		for i, arg := range n.Args {
			if containsAll(algebra.CertainVars(arg), vars) {
				args := append([]algebra.Node(nil), n.Args...)
				args[i] = pushFilter(cond, arg)
				return &algebra.Join{Args: args}
			}
		}
	case *algebra.Union:
		args := make([]algebra.Node, len(n.Args))
		for i, arg := range n.Args {
			args[i] = pushFilter(cond, arg)
		}
		return &algebra.Union{Args: args}
	case *algebra.Extend:
		if !contains(vars, n.Var) && containsAll(algebra.CertainVars(n.Arg), vars) {
			return &algebra.Extend{Arg: pushFilter(cond, n.Arg), Var: n.Var, Expr: n.Expr}
		}
	case *algebra.LeftJoin:
		if containsAll(algebra.CertainVars(n.Left), vars) {
			return &algebra.LeftJoin{Left: pushFilter(cond, n.Left), Right: n.Right, Condition: n.Condition}
		}
	case *algebra.Filter:
		return &algebra.Filter{Condition: n.Condition, Arg: pushFilter(cond, n.Arg)}
	}
	return &algebra.Filter{Condition: cond, Arg: n}
}

// splitConjunctions turns FILTER(a && b) into separate filters on a and b,
// then pushes each one down the tree as far as it can go.
func splitConjunctions(_ context.Context, p *plan) error {
	p.root = algebra.MustTransform(p.root, func(n algebra.Node) algebra.Node {
		f, ok := n.(*algebra.Filter)
		if !ok {
			return n
		}
		res := f.Arg
		for _, cond := range algebra.Conjuncts(f.Condition) {
			res = pushFilter(cond, res)
		}
		return res
	})
	return nil
}

// sameTermOnCertainVar returns true if e is sameTerm(?x, const) where ?x is
// bound in every solution of arg.
func sameTermOnCertainVar(e algebra.Expr, arg algebra.Node) (*algebra.Variable, *algebra.Constant, bool) {
	st, ok := e.(*algebra.SameTerm)
	if !ok {
		return nil, nil, false
	}
	v, ok := st.Left.(*algebra.Variable)
	if !ok {
		return nil, nil, false
	}
	c, ok := st.Right.(*algebra.Constant)
	if !ok || !contains(algebra.CertainVars(arg), v.Name) {
		return nil, nil, false
	}
	return v, c, true
}

// rewriteDisjunctions rewrites FILTER(sameTerm(?x, c) || b) into a union of
// the sameTerm branch, which the next pass binds to c, and the remaining
// solutions filtered by b. The sameTerm operand never fails, so the second
// branch excludes exactly the solutions of the first.
func rewriteDisjunctions(_ context.Context, p *plan) error {
	p.root = algebra.MustTransform(p.root, func(n algebra.Node) algebra.Node {
		f, ok := n.(*algebra.Filter)
		if !ok {
			return n
		}
		or, ok := f.Condition.(*algebra.Or)
		if !ok {
			return n
		}
		same, other := or.Left, or.Right
		if _, _, ok := sameTermOnCertainVar(same, f.Arg); !ok {
			same, other = other, same
			if _, _, ok := sameTermOnCertainVar(same, f.Arg); !ok {
				return n
			}
		}
		return &algebra.Union{Args: []algebra.Node{
			&algebra.Filter{Condition: same, Arg: f.Arg},
			&algebra.Filter{
				Condition: &algebra.And{Left: &algebra.Not{Arg: same}, Right: other},
				Arg:       algebra.Clone(f.Arg),
			},
		}}
	})
	return nil
}

// hasScope returns true if n contains a sub-select or binds name with BIND.
// Substituting a value for name below such nodes would change their meaning.
func hasScope(n algebra.Node, name string) bool {
	found := false
	algebra.Walk(n, func(n algebra.Node) bool {
		switch n := n.(type) {
		case *algebra.Projection, *algebra.Distinct, *algebra.Slice:
			found = true
		case *algebra.Extend:
			if n.Var == name {
				found = true
			}
		}
		return !found
	})
	return found
}

// eliminateSameTerm replaces FILTER(sameTerm(?x, c)) over a tree that always
// binds ?x by the tree with c substituted for ?x, followed by BIND(c AS ?x).
// FILTER(sameTerm(?x, ?x)) on such a tree is dropped.
func eliminateSameTerm(_ context.Context, p *plan) error {
	p.root = algebra.MustTransform(p.root, func(n algebra.Node) algebra.Node {
		f, ok := n.(*algebra.Filter)
		if !ok {
			return n
		}
		if st, ok := f.Condition.(*algebra.SameTerm); ok {
			l, lok := st.Left.(*algebra.Variable)
			r, rok := st.Right.(*algebra.Variable)
			if lok && rok && l.Name == r.Name && contains(algebra.CertainVars(f.Arg), l.Name) {
				return f.Arg
			}
		}
		v, c, ok := sameTermOnCertainVar(f.Condition, f.Arg)
		if !ok || hasScope(f.Arg, v.Name) {
			return n
		}
		b := binding.New(binding.Pair{Name: v.Name, Value: c.Value})
		return &algebra.Extend{
			Arg:  algebra.Substitute(f.Arg, b),
			Var:  v.Name,
			Expr: c,
		}
	})
	return nil
}

// simplify removes nodes that have no effect and propagates Empty upwards.
func simplify(n algebra.Node) algebra.Node {
	return algebra.MustTransform(n, func(n algebra.Node) algebra.Node {
		switch n := n.(type) {
		case *algebra.Join:
			var args []algebra.Node
			for _, arg := range n.Args {
				switch arg := arg.(type) {
				case *algebra.Empty:
					return arg
				case *algebra.SingletonSet:
				case *algebra.Join:
					args = append(args, arg.Args...)
				default:
					args = append(args, arg)
				}
			}
			switch len(args) {
			case 0:
				return &algebra.SingletonSet{}
			case 1:
				return args[0]
			}
			return &algebra.Join{Args: args}
		case *algebra.Union:
			var args []algebra.Node
			for _, arg := range n.Args {
				switch arg := arg.(type) {
				case *algebra.Empty:
				case *algebra.Union:
					args = append(args, arg.Args...)
				default:
					args = append(args, arg)
				}
			}
			switch len(args) {
			case 0:
				return &algebra.Empty{}
			case 1:
				return args[0]
			}
			return &algebra.Union{Args: args}
		case *algebra.IndependentGroup:
			for _, part := range n.Parts {
				if _, empty := part.(*algebra.Empty); empty {
					return part
				}
			}
			if len(n.Parts) == 1 {
				return n.Parts[0]
			}
		case *algebra.Filter:
			if isEmpty(n.Arg) || isFalse(n.Condition) {
				return &algebra.Empty{}
			}
			if isTrue(n.Condition) {
				return n.Arg
			}
		case *algebra.LeftJoin:
			if isEmpty(n.Left) {
				return n.Left
			}
			if isEmpty(n.Right) {
				return n.Left
			}
		case *algebra.Slice:
			if isEmpty(n.Arg) || n.Limit == 0 {
				return &algebra.Empty{}
			}
			if n.Offset == 0 && n.Limit < 0 {
				return n.Arg
			}
		case *algebra.Extend:
			if isEmpty(n.Arg) {
				return n.Arg
			}
		case *algebra.Projection:
			if isEmpty(n.Arg) {
				return n.Arg
			}
		case *algebra.Distinct:
			if isEmpty(n.Arg) {
				return n.Arg
			}
			if _, ok := n.Arg.(*algebra.Distinct); ok {
				return n.Arg
			}
		}
		return n
	})
}

func isEmpty(n algebra.Node) bool {
	_, ok := n.(*algebra.Empty)
	return ok
}

func prune(_ context.Context, p *plan) error {
	p.root = simplify(p.root)
	return nil
}

// pruneOwned simplifies the tree after grouping: groups that ended up with a
// single pattern and no filters become that pattern again.
func pruneOwned(_ context.Context, p *plan) error {
	p.root = simplify(algebra.MustTransform(p.root, func(n algebra.Node) algebra.Node {
		if g, ok := n.(*algebra.ExclusiveGroup); ok && len(g.Patterns) == 1 && len(g.Filters) == 0 {
			return g.Patterns[0]
		}
		return n
	}))
	return nil
}
