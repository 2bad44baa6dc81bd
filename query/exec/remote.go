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

package exec

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/util/errors"
	"github.com/ebay/fedx/util/tracing"
)

// owners returns the members to send p to. A pattern without owners was not
// through source selection and goes to every member.
func (e evaluation) owners(p *algebra.StatementPattern) []string {
	if len(p.Owners) == 0 {
		return e.fed.MemberIDs()
	}
	return p.Owners
}

// send evaluates n on one member. The member's connection is released once
// the returned results are exhausted or closed.
func (e evaluation) send(ctx context.Context, strategy, owner string, n algebra.Node, inputs int) (iter.Iterator, error) {
	m, ok := e.fed.Member(owner)
	if !ok {
		return nil, fedxerr.Newf(fedxerr.QueryEvaluation, "evaluate", "plan refers to unknown member %q", owner)
	}
	conn, release, err := m.Borrow(ctx)
	if err != nil {
		return nil, fedxerr.WrapMember(fedxerr.MemberFailure, "evaluate", owner, err)
	}
	// The query may have been abandoned while the connection was acquired.
	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}
	clock := e.events.Clock()
	event := RequestCompletedEvent{
		Strategy:  strategy,
		Member:    owner,
		Node:      n,
		Inputs:    inputs,
		StartedAt: clock.Now(),
	}
	metrics.requests.WithLabelValues(strategy).Inc()
	span, ctx := tracing.StartSpan(ctx, "member request", metrics.requestSeconds)
	span.SetTag("member", owner)
	span.SetTag("strategy", strategy)
	res, err := conn.Evaluate(ctx, source.Query{
		Node:            n,
		Dataset:         e.dataset,
		IncludeInferred: e.inferred,
	})
	if err != nil {
		release()
		err = fedxerr.WrapMember(fedxerr.MemberFailure, "evaluate", owner, err)
		tracing.FinishWithError(span, err)
		event.EndedAt = clock.Now()
		event.Err = err
		e.events.RequestCompleted(event)
		return nil, err
	}
	var readErr error
	next := func() (binding.Set, bool, error) {
		if res.Next() {
			event.Results++
			return res.Binding(), true, nil
		}
		readErr = fedxerr.WrapMember(fedxerr.MemberFailure, "evaluate", owner, res.Err())
		return binding.Set{}, false, readErr
	}
	closed := func() error {
		err := res.Close()
		release()
		event.EndedAt = clock.Now()
		event.Err = errors.Any(readErr, err)
		tracing.FinishWithError(span, event.Err)
		e.events.RequestCompleted(event)
		return err
	}
	return iter.Func(next, closed), nil
}

// extending returns the results of res that are compatible with b, merged
// with b.
func extending(res iter.Iterator, b binding.Set) iter.Iterator {
	if b.Len() == 0 {
		return res
	}
	return iter.Map(res, func(row binding.Set) (binding.Set, bool, error) {
		if !b.Compatible(row) {
			return row, false, nil
		}
		return b.Merge(row), true, nil
	})
}

// scan evaluates a pattern on its owners with the values of b substituted.
// The owners' results are de-duplicated if the pattern asks for it.
func (e evaluation) scan(ctx context.Context, p *algebra.StatementPattern, b binding.Set) (iter.Iterator, error) {
	owners := e.owners(p)
	n := algebra.Substitute(p, b)
	res := iter.LazyUnion(len(owners), func(i int) (iter.Iterator, error) {
		return e.send(ctx, "scan", owners[i], n, 1)
	})
	if p.Distinct {
		res = iter.Distinct(res)
	}
	return extending(res, b), nil
}

// bindAndSend evaluates n on owner with the values of b substituted.
func (e evaluation) bindAndSend(ctx context.Context, strategy, owner string, n algebra.Node, b binding.Set) (iter.Iterator, error) {
	res, err := e.send(ctx, strategy, owner, algebra.Substitute(n, b), 1)
	if err != nil {
		return nil, err
	}
	return extending(res, b), nil
}

// instantiate substitutes the values of b into n. If no variable is left,
// the result only needs to say whether n matches, so it is limited to one
// solution.
func instantiate(n algebra.Node, b binding.Set) algebra.Node {
	inst := algebra.Substitute(n, b)
	if len(algebra.Vars(inst)) == 0 {
		return &algebra.Slice{Limit: 1, Arg: inst}
	}
	return inst
}

func indexExpr(i int) algebra.Expr {
	return algebra.Const(rdf.Integer(int64(i)))
}

// boundRequest returns the tree sent for one bound join batch: right
// instantiated with each of lefts, each branch binding iter.IndexVar to the
// position of its left solution.
func boundRequest(right algebra.Node, lefts []binding.Set) algebra.Node {
	args := make([]algebra.Node, len(lefts))
	for i, l := range lefts {
		args[i] = &algebra.Extend{Arg: instantiate(right, l), Var: iter.IndexVar, Expr: indexExpr(i)}
	}
	if len(args) == 1 {
		return args[0]
	}
	return &algebra.Union{Args: args}
}

// boundBatch evaluates right, a statement pattern or an exclusive group, for
// a batch of left solutions in one request per owner. Its results are the
// left solutions joined with their matches.
func (e evaluation) boundBatch(ctx context.Context, strategy string, right algebra.Node, lefts []binding.Set) (iter.Iterator, error) {
	var owners []string
	var node algebra.Node
	distinct := false
	switch r := right.(type) {
	case *algebra.StatementPattern:
		owners, node, distinct = e.owners(r), r, r.Distinct
	case *algebra.ExclusiveGroup:
		owners, node = []string{r.Owner}, r.Prepare()
	default:
		return nil, fmt.Errorf("bound join over unexpected node type %T", right)
	}
	metrics.batchSize.Observe(float64(len(lefts)))
	req := boundRequest(node, lefts)
	res := iter.LazyUnion(len(owners), func(i int) (iter.Iterator, error) {
		return e.send(ctx, strategy, owners[i], req, len(lefts))
	})
	if distinct {
		res = iter.Distinct(res)
	}
	return iter.BoundJoinResults(res, lefts), nil
}

// partSuffix is appended to the variables of the k-th part of an independent
// group in a combined request.
func partSuffix(k int) string {
	return "__p" + strconv.Itoa(k)
}

func prepared(n algebra.Node) algebra.Node {
	if g, ok := n.(*algebra.ExclusiveGroup); ok {
		return g.Prepare()
	}
	return n
}

// independentRequest returns the tree sent for the parts of g, instantiated
// with each of lefts. The variables of each part carry the part's suffix,
// including the index variable.
func independentRequest(g *algebra.IndependentGroup, lefts []binding.Set) algebra.Node {
	args := make([]algebra.Node, 0, len(lefts)*len(g.Parts))
	for i, l := range lefts {
		for k, part := range g.Parts {
			suffix := partSuffix(k)
			inst := algebra.RenameVars(instantiate(prepared(part), l), func(v string) string {
				return v + suffix
			})
			args = append(args, &algebra.Extend{Arg: inst, Var: iter.IndexVar + suffix, Expr: indexExpr(i)})
		}
	}
	if len(args) == 1 {
		return args[0]
	}
	return &algebra.Union{Args: args}
}

// splitPart finds the part a result row of an independent group request
// belongs to and the left solution it was instantiated with. It returns the
// row with the part's suffix removed. Every variable of the row must carry
// the same suffix.
func splitPart(row binding.Set, parts, lefts int) (part, left int, res binding.Set, err error) {
	part = -1
	prefix := iter.IndexVar + "__p"
	for _, name := range row.Names() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		k, err := strconv.Atoi(name[len(prefix):])
		if err != nil || k < 0 || k >= parts {
			return 0, 0, res, fmt.Errorf("result has invalid part index variable ?%s", name)
		}
		if part >= 0 && part != k {
			return 0, 0, res, fmt.Errorf("result mixes parts %d and %d: %v", part, k, row)
		}
		part = k
	}
	if part < 0 {
		return 0, 0, res, fmt.Errorf("result is missing its part index: %v", row)
	}
	suffix := partSuffix(part)
	left, err = iter.BindingIndex(row, iter.IndexVar+suffix, lefts)
	if err != nil {
		return 0, 0, res, err
	}
	pairs := make([]binding.Pair, 0, row.Len())
	for _, p := range row.Pairs() {
		if p.Name == iter.IndexVar+suffix {
			continue
		}
		if !strings.HasSuffix(p.Name, suffix) {
			return 0, 0, res, fmt.Errorf("result of part %d binds ?%s of another part", part, p.Name)
		}
		pairs = append(pairs, binding.Pair{Name: strings.TrimSuffix(p.Name, suffix), Value: p.Value})
	}
	return part, left, binding.New(pairs...), nil
}

// independentBatch evaluates the parts of g for a batch of left solutions in
// one request to g's owner. The results are split by part and left solution,
// and each left solution is joined with the cross product of its parts'
// results.
func (e evaluation) independentBatch(ctx context.Context, strategy string, g *algebra.IndependentGroup, lefts []binding.Set) (iter.Iterator, error) {
	metrics.batchSize.Observe(float64(len(lefts)))
	res, err := e.send(ctx, strategy, g.Owner, independentRequest(g, lefts), len(lefts))
	if err != nil {
		return nil, err
	}
	rows, err := iter.Collect(res)
	if err != nil {
		return nil, err
	}
	byLeft := make([][][]binding.Set, len(lefts))
	for i := range byLeft {
		byLeft[i] = make([][]binding.Set, len(g.Parts))
	}
	for _, row := range rows {
		part, left, rest, err := splitPart(row, len(g.Parts), len(lefts))
		if err != nil {
			return nil, fedxerr.WrapMember(fedxerr.QueryEvaluation, "independent group", g.Owner, err)
		}
		byLeft[left][part] = append(byLeft[left][part], rest)
	}
	var out []binding.Set
	for i, l := range lefts {
		combined := []binding.Set{l}
		for _, solutions := range byLeft[i] {
			var next []binding.Set
			for _, c := range combined {
				for _, s := range solutions {
					if c.Compatible(s) {
						next = append(next, c.Merge(s))
					}
				}
			}
			combined = next
		}
		out = append(out, combined...)
	}
	return iter.Slice(out...), nil
}
