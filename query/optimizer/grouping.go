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
)

// exclusiveOwner returns the member that alone answers n, if there is one.
func exclusiveOwner(n algebra.Node) (string, bool) {
	switch n := n.(type) {
	case *algebra.StatementPattern:
		return n.Exclusive()
	case *algebra.ExclusiveGroup:
		return n.Owner, true
	}
	return "", false
}

// absorbFilter moves a filter into the exclusive group, or exclusive pattern,
// below it that binds all of the filter's variables. The member then applies
// the filter itself.
func absorbFilter(f *algebra.Filter) algebra.Node {
	vars := algebra.ExprVars(f.Condition)
	if len(vars) == 0 {
		return f
	}
	into := func(n algebra.Node) (algebra.Node, bool) {
		owner, ok := exclusiveOwner(n)
		if !ok || !containsAll(algebra.Vars(n), vars) {
			return nil, false
		}
		switch n := n.(type) {
		case *algebra.StatementPattern:
			return &algebra.ExclusiveGroup{
				Owner:    owner,
				Patterns: []*algebra.StatementPattern{n},
				Filters:  []algebra.Expr{f.Condition},
			}, true
		case *algebra.ExclusiveGroup:
			g := algebra.WithChildren(n, nil).(*algebra.ExclusiveGroup)
			g.Filters = append(g.Filters, f.Condition)
			g.Prepared, g.Text = nil, ""
			return g, true
		}
		return nil, false
	}
	if res, ok := into(f.Arg); ok {
		return res
	}
	if j, ok := f.Arg.(*algebra.Join); ok {
		for i, arg := range j.Args {
			if res, ok := into(arg); ok {
				args := append([]algebra.Node(nil), j.Args...)
				args[i] = res
				return &algebra.Join{Args: args}
			}
		}
	}
	return f
}

// mergeExclusive combines nodes owned by owner into one group.
func mergeExclusive(owner string, nodes []algebra.Node) *algebra.ExclusiveGroup {
	g := &algebra.ExclusiveGroup{Owner: owner}
	for _, n := range nodes {
		switch n := n.(type) {
		case *algebra.StatementPattern:
			g.Patterns = append(g.Patterns, n)
		case *algebra.ExclusiveGroup:
			g.Patterns = append(g.Patterns, n.Patterns...)
			g.Filters = append(g.Filters, n.Filters...)
		}
	}
	return g
}

// components partitions nodes into sets connected by shared variables. The
// sets and their members keep the input order.
func components(nodes []algebra.Node) [][]algebra.Node {
	parent := make([]int, len(nodes))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			if len(algebra.SharedVars(algebra.Vars(nodes[i]), algebra.Vars(nodes[j]))) > 0 {
				parent[find(j)] = find(i)
			}
		}
	}
	var res [][]algebra.Node
	index := make(map[int]int)
	for i, n := range nodes {
		root := find(i)
		idx, ok := index[root]
		if !ok {
			idx = len(res)
			index[root] = idx
			res = append(res, nil)
		}
		res[idx] = append(res[idx], n)
	}
	return res
}

// groupJoin merges the join arguments owned by the same single member. Each
// set of such arguments connected by shared variables becomes one exclusive
// group. If a member ends up with two or more groups that share no variables
// with the rest of the join, they form an independent group, sent as one
// request.
func groupJoin(j *algebra.Join) algebra.Node {
	byOwner := make(map[string][]int)
	for i, arg := range j.Args {
		if owner, ok := exclusiveOwner(arg); ok {
			byOwner[owner] = append(byOwner[owner], i)
		}
	}
	replaced := make(map[int][]algebra.Node)
	skip := make(map[int]bool)
	for owner, indexes := range byOwner {
		if len(indexes) < 2 {
			continue
		}
		nodes := make([]algebra.Node, len(indexes))
		mine := make(map[int]bool, len(indexes))
		for k, i := range indexes {
			nodes[k] = j.Args[i]
			mine[i] = true
			skip[i] = true
		}
		var outside []string
		for i, arg := range j.Args {
			if !mine[i] {
				outside = append(outside, algebra.Vars(arg)...)
			}
		}
		var grouped, independent []algebra.Node
		for _, comp := range components(nodes) {
			var n algebra.Node = comp[0]
			if len(comp) > 1 {
				n = mergeExclusive(owner, comp)
				metrics.groups.WithLabelValues("exclusive").Inc()
			}
			if len(algebra.SharedVars(algebra.Vars(n), outside)) == 0 {
				independent = append(independent, n)
			} else {
				grouped = append(grouped, n)
			}
		}
		if len(independent) >= 2 {
			grouped = append(grouped, &algebra.IndependentGroup{Owner: owner, Parts: independent})
			metrics.groups.WithLabelValues("independent").Inc()
		} else {
			grouped = append(grouped, independent...)
		}
		replaced[indexes[0]] = grouped
	}
	if len(replaced) == 0 {
		return j
	}
	var args []algebra.Node
	for i, arg := range j.Args {
		if nodes, ok := replaced[i]; ok {
			args = append(args, nodes...)
		} else if !skip[i] {
			args = append(args, arg)
		}
	}
	if len(args) == 1 {
		return args[0]
	}
	return &algebra.Join{Args: args}
}

// groupBySource marks the patterns that need duplicate elimination across
// members, then groups exclusively owned patterns and the filters on them.
func groupBySource(_ context.Context, p *plan) error {
	fed := p.opt.fed
	p.root = algebra.MustTransform(p.root, func(n algebra.Node) algebra.Node {
		switch n := n.(type) {
		case *algebra.StatementPattern:
			local := false
			if c, ok := n.Predicate.(*algebra.Constant); ok {
				local = fed.IsLocalProperty(c.Value)
			}
			n.Distinct = len(n.Owners) > 1 && !fed.Distinct() && !local
			return n
		case *algebra.Filter:
			return absorbFilter(n)
		case *algebra.Join:
			return groupJoin(n)
		}
		return n
	})
	return nil
}

// prepareGroups fixes the request sent for each exclusive group.
func prepareGroups(_ context.Context, p *plan) error {
	p.root = algebra.MustTransform(p.root, func(n algebra.Node) algebra.Node {
		if g, ok := n.(*algebra.ExclusiveGroup); ok {
			g.Prepared = nil
			g.Prepared = g.Prepare()
			g.Text = algebra.RenderSelect(g.Prepared, nil, false)
		}
		return n
	})
	return nil
}
