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
)

// Children returns the direct child nodes of n. Statement patterns inside an
// ExclusiveGroup are not children: a group is a leaf of the tree.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *StatementPattern, *Empty, *SingletonSet, *ExclusiveGroup:
		return nil
	case *Join:
		return n.Args
	case *Union:
		return n.Args
	case *IndependentGroup:
		return n.Parts
	case *LeftJoin:
		return []Node{n.Left, n.Right}
	case *Filter:
		return []Node{n.Arg}
	case *Extend:
		return []Node{n.Arg}
	case *Projection:
		return []Node{n.Arg}
	case *Distinct:
		return []Node{n.Arg}
	case *Slice:
		return []Node{n.Arg}
	}
	panic(fmt.Sprintf("Children: unexpected node type %T", n))
}

// WithChildren returns a shallow copy of n with its children replaced. The
// length of children must match Children(n).
func WithChildren(n Node, children []Node) Node {
	switch n := n.(type) {
	case *StatementPattern:
		c := *n
		c.Owners = append([]string(nil), n.Owners...)
		return &c
	case *Empty:
		return &Empty{}
	case *SingletonSet:
		return &SingletonSet{}
	case *ExclusiveGroup:
		c := *n
		c.Patterns = make([]*StatementPattern, len(n.Patterns))
		for i, p := range n.Patterns {
			c.Patterns[i] = WithChildren(p, nil).(*StatementPattern)
		}
		c.Filters = append([]Expr(nil), n.Filters...)
		if n.Prepared != nil {
			c.Prepared = Clone(n.Prepared)
		}
		return &c
	case *Join:
		return &Join{Args: append([]Node(nil), children...)}
	case *Union:
		return &Union{Args: append([]Node(nil), children...)}
	case *IndependentGroup:
		return &IndependentGroup{Owner: n.Owner, Parts: append([]Node(nil), children...)}
	case *LeftJoin:
		return &LeftJoin{Left: children[0], Right: children[1], Condition: n.Condition}
	case *Filter:
		return &Filter{Condition: n.Condition, Arg: children[0]}
	case *Extend:
		return &Extend{Arg: children[0], Var: n.Var, Expr: n.Expr}
	case *Projection:
		return &Projection{Vars: append([]string(nil), n.Vars...), Arg: children[0]}
	case *Distinct:
		return &Distinct{Arg: children[0]}
	case *Slice:
		return &Slice{Offset: n.Offset, Limit: n.Limit, Arg: children[0]}
	}
	panic(fmt.Sprintf("WithChildren: unexpected node type %T", n))
}

// Clone returns a deep copy of the tree rooted at n. Expressions are
// immutable and are shared.
func Clone(n Node) Node {
	children := Children(n)
	if len(children) == 0 {
		return WithChildren(n, nil)
	}
	cloned := make([]Node, len(children))
	for i, c := range children {
		cloned[i] = Clone(c)
	}
	return WithChildren(n, cloned)
}

// Transform rewrites the tree bottom-up. fn is called on every node after its
// children have been transformed, and its result replaces that node. The
// input tree is not modified.
func Transform(n Node, fn func(Node) (Node, error)) (Node, error) {
	children := Children(n)
	next := make([]Node, len(children))
	for i, c := range children {
		t, err := Transform(c, fn)
		if err != nil {
			return nil, err
		}
		next[i] = t
	}
	return fn(WithChildren(n, next))
}

// MustTransform is like Transform for callbacks that cannot fail.
func MustTransform(n Node, fn func(Node) Node) Node {
	res, _ := Transform(n, func(n Node) (Node, error) {
		return fn(n), nil
	})
	return res
}

// Walk calls fn on every node in pre-order. If fn returns false, the node's
// children are skipped.
func Walk(n Node, fn func(Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}

// Patterns returns every statement pattern in the tree, including those
// inside exclusive groups, in pre-order.
func Patterns(n Node) []*StatementPattern {
	var res []*StatementPattern
	Walk(n, func(n Node) bool {
		switch n := n.(type) {
		case *StatementPattern:
			res = append(res, n)
		case *ExclusiveGroup:
			res = append(res, n.Patterns...)
		}
		return true
	})
	return res
}
