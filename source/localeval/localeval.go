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

// Package localeval evaluates query trees on top of a store's statement scans.
// Local stores (memstore, sqlstore) use it to implement Evaluate and
// HasStatements. Joins are evaluated as nested loops that push each solution
// of the left side into the right side as bindings.
package localeval

import (
	"context"
	"fmt"

	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
)

// Store is the statement access a local store provides.
type Store interface {
	GetStatements(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) (source.StatementIterator, error)
}

// Evaluate returns the solutions of q against store. Every solution includes
// q.Bindings, except for names dropped by a projection.
func Evaluate(ctx context.Context, store Store, q source.Query) (iter.Iterator, error) {
	e := evaluator{ctx: ctx, store: store}
	if q.Dataset != nil {
		e.contexts = q.Dataset.DefaultGraphs
	}
	return e.eval(q.Node, q.Bindings)
}

// HasStatements returns true if q has at least one solution.
func HasStatements(ctx context.Context, store Store, q source.Query) (bool, error) {
	res, err := Evaluate(ctx, store, q)
	if err != nil {
		return false, err
	}
	found := res.Next()
	err = res.Err()
	if closeErr := res.Close(); err == nil {
		err = closeErr
	}
	return found, err
}

type evaluator struct {
	ctx      context.Context
	store    Store
	contexts []rdf.Term
}

func (e *evaluator) eval(n algebra.Node, b binding.Set) (iter.Iterator, error) {
	switch n := n.(type) {
	case *algebra.StatementPattern:
		return e.pattern(n, b)
	case *algebra.ExclusiveGroup:
		return e.eval(n.Prepare(), b)
	case *algebra.Join:
		return e.join(n.Args, b)
	case *algebra.IndependentGroup:
		return e.join(n.Parts, b)
	case *algebra.LeftJoin:
		return e.leftJoin(n, b)
	case *algebra.Union:
		return iter.LazyUnion(len(n.Args), func(i int) (iter.Iterator, error) {
			return e.eval(n.Args[i], b)
		}), nil
	case *algebra.Filter:
		inner, err := e.eval(n.Arg, b)
		if err != nil {
			return nil, err
		}
		return iter.Filter(inner, func(row binding.Set) (bool, error) {
			return accepts(n.Condition, row), nil
		}), nil
	case *algebra.Extend:
		inner, err := e.eval(n.Arg, b)
		if err != nil {
			return nil, err
		}
		return iter.Map(inner, func(row binding.Set) (binding.Set, bool, error) {
			v, err := algebra.Eval(n.Expr, row)
			if err != nil {
				// An expression error leaves the variable unbound.
				return row, true, nil
			}
			if cur, ok := row.Get(n.Var); ok {
				return row, cur == v, nil
			}
			return row.Add(n.Var, v), true, nil
		}), nil
	case *algebra.Projection:
		inner, err := e.eval(n.Arg, b)
		if err != nil {
			return nil, err
		}
		keep := append(append([]string(nil), n.Vars...), b.Names()...)
		return iter.Map(inner, func(row binding.Set) (binding.Set, bool, error) {
			return row.Retain(keep...), true, nil
		}), nil
	case *algebra.Distinct:
		inner, err := e.eval(n.Arg, b)
		if err != nil {
			return nil, err
		}
		return iter.Distinct(inner), nil
	case *algebra.Slice:
		inner, err := e.eval(n.Arg, b)
		if err != nil {
			return nil, err
		}
		return iter.Limit(inner, n.Offset, n.Limit), nil
	case *algebra.Empty:
		return iter.Empty(), nil
	case *algebra.SingletonSet:
		return iter.Single(b), nil
	}
	panic(fmt.Sprintf("localeval: unexpected node type %T", n))
}

// accepts returns true if cond evaluates to true. Evaluation errors reject
// the solution.
func accepts(cond algebra.Expr, row binding.Set) bool {
	ok, err := algebra.EvalBool(cond, row)
	return err == nil && ok
}

func (e *evaluator) join(args []algebra.Node, b binding.Set) (iter.Iterator, error) {
	if len(args) == 0 {
		return iter.Single(b), nil
	}
	res, err := e.eval(args[0], b)
	if err != nil {
		return nil, err
	}
	for _, arg := range args[1:] {
		arg := arg
		res = iter.FlatMap(res, func(row binding.Set) (iter.Iterator, error) {
			return e.eval(arg, row)
		})
	}
	return res, nil
}

func (e *evaluator) leftJoin(n *algebra.LeftJoin, b binding.Set) (iter.Iterator, error) {
	left, err := e.eval(n.Left, b)
	if err != nil {
		return nil, err
	}
	return iter.FlatMap(left, func(row binding.Set) (iter.Iterator, error) {
		right, err := e.eval(n.Right, row)
		if err != nil {
			return nil, err
		}
		var matches []binding.Set
		for right.Next() {
			if n.Condition == nil || accepts(n.Condition, right.Binding()) {
				matches = append(matches, right.Binding())
			}
		}
		err = right.Err()
		if closeErr := right.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return iter.Single(row), nil
		}
		return iter.Slice(matches...), nil
	}), nil
}

// slot is one position of a statement pattern: either a fixed term or a
// variable still to be bound.
type slot struct {
	term rdf.Term
	name string
}

func resolve(t algebra.Term, b binding.Set) slot {
	switch t := t.(type) {
	case *algebra.Constant:
		return slot{term: t.Value}
	case *algebra.Variable:
		if v, ok := b.Get(t.Name); ok {
			return slot{term: v}
		}
		return slot{name: t.Name}
	}
	panic(fmt.Sprintf("localeval: unexpected term type %T", t))
}

func (e *evaluator) pattern(p *algebra.StatementPattern, b binding.Set) (iter.Iterator, error) {
	slots := [3]slot{resolve(p.Subject, b), resolve(p.Predicate, b), resolve(p.Object, b)}
	// Literals can't be subjects and only IRIs can be predicates.
	if slots[0].name == "" && slots[0].term.IsLiteral() || slots[1].name == "" && !slots[1].term.IsIRI() {
		return iter.Empty(), nil
	}
	sts, err := e.store.GetStatements(e.ctx, slots[0].term, slots[1].term, slots[2].term, e.contexts...)
	if err != nil {
		return nil, err
	}
	next := func() (binding.Set, bool, error) {
		for sts.Next() {
			if err := e.ctx.Err(); err != nil {
				return binding.Set{}, false, err
			}
			st := sts.Statement()
			if row, ok := bindStatement(slots, st, b); ok {
				return row, true, nil
			}
		}
		return binding.Set{}, false, sts.Err()
	}
	return iter.Func(next, sts.Close), nil
}

// bindStatement extends b with the values st gives to the pattern's unbound
// variables. It returns false if a variable repeated in the pattern would get
// two different values.
func bindStatement(slots [3]slot, st rdf.Statement, b binding.Set) (binding.Set, bool) {
	values := [3]rdf.Term{st.Subject, st.Predicate, st.Object}
	row := b
	for i, s := range slots {
		if s.name == "" {
			continue
		}
		if cur, ok := row.Get(s.name); ok {
			if cur != values[i] {
				return binding.Set{}, false
			}
			continue
		}
		row = row.Add(s.name, values[i])
	}
	return row, true
}
