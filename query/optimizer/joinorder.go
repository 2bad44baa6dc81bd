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
	"math"

	"github.com/ebay/fedx/query/algebra"
)

// Relative result sizes of a statement pattern for each unbound position.
// An unbound subject widens the result the most.
const (
	freeSubjectFactor   = 10
	freePredicateFactor = 3
	freeObjectFactor    = 5
	// A group is answered by one request and joined inside the member.
	groupFactor = 0.5
	// Filters typically remove some solutions.
	filterFactor = 0.5
)

func isFree(t algebra.Term, bound map[string]bool) bool {
	v, ok := t.(*algebra.Variable)
	return ok && !bound[v.Name]
}

func patternCost(p *algebra.StatementPattern, bound map[string]bool) float64 {
	cost := 1.0
	if isFree(p.Subject, bound) {
		cost *= freeSubjectFactor
	}
	if isFree(p.Predicate, bound) {
		cost *= freePredicateFactor
	}
	if isFree(p.Object, bound) {
		cost *= freeObjectFactor
	}
	if len(p.Owners) > 1 {
		cost *= float64(len(p.Owners))
	}
	return cost
}

// estimate returns a rough, relative size of the results of n when the
// variables in bound already have values.
func estimate(n algebra.Node, bound map[string]bool) float64 {
	switch n := n.(type) {
	case *algebra.StatementPattern:
		return patternCost(n, bound)
	case *algebra.ExclusiveGroup:
		cost := math.Inf(1)
		for _, p := range n.Patterns {
			cost = math.Min(cost, patternCost(p, bound))
		}
		return cost * groupFactor
	case *algebra.IndependentGroup:
		cost := 1.0
		for _, part := range n.Parts {
			cost *= estimate(part, bound)
		}
		return cost * groupFactor
	case *algebra.Join:
		cost := math.Inf(1)
		for _, arg := range n.Args {
			cost = math.Min(cost, estimate(arg, bound))
		}
		return cost
	case *algebra.Union:
		cost := 0.0
		for _, arg := range n.Args {
			cost += estimate(arg, bound)
		}
		return cost
	case *algebra.Filter:
		return estimate(n.Arg, bound) * filterFactor
	case *algebra.LeftJoin:
		return estimate(n.Left, bound)
	case *algebra.Extend:
		return estimate(n.Arg, bound)
	case *algebra.Projection:
		return estimate(n.Arg, bound)
	case *algebra.Distinct:
		return estimate(n.Arg, bound)
	case *algebra.Slice:
		cost := estimate(n.Arg, bound)
		if n.Limit >= 0 {
			cost = math.Min(cost, float64(n.Limit))
		}
		return cost
	case *algebra.Empty:
		return 0
	case *algebra.SingletonSet:
		return 1
	}
	return math.Inf(1)
}

func sharesVars(n algebra.Node, bound map[string]bool) bool {
	for _, v := range algebra.Vars(n) {
		if bound[v] {
			return true
		}
	}
	return false
}

// orderArgs orders join arguments greedily: the cheapest argument first, then
// repeatedly the cheapest argument connected to the variables bound so far,
// so that cross products are only formed when nothing else is left. Ties
// keep the original order.
func orderArgs(args []algebra.Node) []algebra.Node {
	remaining := append([]algebra.Node(nil), args...)
	res := make([]algebra.Node, 0, len(args))
	bound := make(map[string]bool)
	for len(remaining) > 0 {
		best, bestConnected := -1, false
		bestCost := math.Inf(1)
		for i, arg := range remaining {
			connected := len(res) > 0 && sharesVars(arg, bound)
			cost := estimate(arg, bound)
			better := best < 0 ||
				(connected && !bestConnected) ||
				(connected == bestConnected && cost < bestCost)
			if better {
				best, bestConnected, bestCost = i, connected, cost
			}
		}
		arg := remaining[best]
		res = append(res, arg)
		remaining = append(remaining[:best], remaining[best+1:]...)
		for _, v := range algebra.CertainVars(arg) {
			bound[v] = true
		}
	}
	return res
}

func orderJoins(_ context.Context, p *plan) error {
	p.root = algebra.MustTransform(p.root, func(n algebra.Node) algebra.Node {
		if j, ok := n.(*algebra.Join); ok {
			j.Args = orderArgs(j.Args)
		}
		return n
	})
	return nil
}
