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

	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/query/sched"
	"github.com/ebay/fedx/util/errors"
	log "github.com/sirupsen/logrus"
)

type strategy int

const (
	// One request per batch of left solutions, for a statement pattern or an
	// exclusive group.
	boundJoin strategy = iota
	// One combined request per batch of left solutions.
	independentJoin
	// The right side is evaluated once, then matched to blocks of left
	// solutions.
	hashJoin
	// The right side is evaluated once per left solution.
	nestedLoopJoin
)

// chooseStrategy picks the join strategy from the shape of the right side.
// Sub-selects and unions are evaluated on their own, as instantiating them
// per left solution would send a request per solution for every branch.
func chooseStrategy(right algebra.Node) strategy {
	switch right.(type) {
	case *algebra.StatementPattern, *algebra.ExclusiveGroup:
		return boundJoin
	case *algebra.IndependentGroup:
		return independentJoin
	case *algebra.Union, *algebra.Projection, *algebra.Distinct, *algebra.Slice:
		return hashJoin
	}
	return nestedLoopJoin
}

func (s strategy) name(sync bool) string {
	var name string
	switch s {
	case boundJoin:
		name = "bound join"
	case independentJoin:
		name = "independent group"
	case hashJoin:
		return "hash join"
	default:
		name = "join"
	}
	if sync {
		return "synchronous " + name
	}
	return "controlled " + name
}

// join evaluates the arguments of n left to right, joining each with the
// solutions of those before it.
func (e evaluation) join(ctx context.Context, n *algebra.Join, b binding.Set) iter.Iterator {
	if len(n.Args) == 0 {
		return iter.Single(b)
	}
	res := e.eval(ctx, n.Args[0], b)
	bound := append(b.Names(), algebra.CertainVars(n.Args[0])...)
	for _, right := range n.Args[1:] {
		res = e.joinWith(ctx, res, right, bound, b)
		bound = append(bound, algebra.CertainVars(right)...)
	}
	return res
}

// joinWith joins the solutions of left with right. bound lists the variables
// every left solution binds.
func (e evaluation) joinWith(ctx context.Context, left iter.Iterator, right algebra.Node, bound []string, b binding.Set) iter.Iterator {
	s := chooseStrategy(right)
	// Local-only sub-plans don't benefit from the workers.
	sync := e.sync || len(algebra.Patterns(right)) == 0
	name := s.name(sync)
	metrics.joins.WithLabelValues(name).Inc()
	switch s {
	case boundJoin:
		batches := e.newBatcher(left)
		return e.batched(ctx, name, left, batches, sync, func(ctx context.Context, lefts []binding.Set) (iter.Iterator, error) {
			return e.synchronous().boundBatch(ctx, name, right, lefts)
		})
	case independentJoin:
		g := right.(*algebra.IndependentGroup)
		batches := e.newBatcher(left)
		return e.batched(ctx, name, left, batches, sync, func(ctx context.Context, lefts []binding.Set) (iter.Iterator, error) {
			return e.synchronous().independentBatch(ctx, name, g, lefts)
		})
	case hashJoin:
		joinVars := algebra.SharedVars(bound, algebra.CertainVars(right))
		return e.hashJoin(ctx, left, e.eval(ctx, right, b), joinVars)
	}
	eval := func(ctx context.Context, l binding.Set) (iter.Iterator, error) {
		return e.synchronous().eval(ctx, right, l), nil
	}
	if sync {
		return iter.FlatMap(left, func(l binding.Set) (iter.Iterator, error) {
			return eval(ctx, l)
		})
	}
	return e.perSolution(name, left, eval)
}

// leftJoin evaluates the right side of n once per left solution, keeping the
// left solutions that have no match.
func (e evaluation) leftJoin(ctx context.Context, left iter.Iterator, n *algebra.LeftJoin) iter.Iterator {
	sync := e.sync || len(algebra.Patterns(n.Right)) == 0
	name := "optional"
	if sync {
		name = "synchronous " + name
	} else {
		name = "controlled " + name
	}
	metrics.joins.WithLabelValues(name).Inc()
	eval := func(ctx context.Context, l binding.Set) (iter.Iterator, error) {
		return optional(l, e.synchronous().eval(ctx, n.Right, l), n.Condition), nil
	}
	if sync {
		return iter.FlatMap(left, func(l binding.Set) (iter.Iterator, error) {
			return eval(ctx, l)
		})
	}
	return e.perSolution(name, left, eval)
}

// optional returns the solutions of right that satisfy cond, or l alone if
// there are none.
func optional(l binding.Set, right iter.Iterator, cond algebra.Expr) iter.Iterator {
	matched, done := false, false
	next := func() (binding.Set, bool, error) {
		if done {
			return binding.Set{}, false, nil
		}
		for right.Next() {
			row := right.Binding()
			if cond != nil && !accepts(cond, row) {
				continue
			}
			matched = true
			return row, true, nil
		}
		if err := right.Err(); err != nil {
			return binding.Set{}, false, err
		}
		done = true
		if !matched {
			return l, true, nil
		}
		return binding.Set{}, false, nil
	}
	return iter.Func(next, right.Close)
}

// batched joins the solutions of left in batches, evaluating each batch with
// eval. Synchronous batches are evaluated one after the other under ctx as
// results are pulled, stopping once ctx is done; otherwise each batch is a
// task on the scheduler.
func (e evaluation) batched(ctx context.Context, name string, left iter.Iterator, batches *batcher, sync bool,
	eval func(context.Context, []binding.Set) (iter.Iterator, error)) iter.Iterator {
	if !sync {
		return e.controlled(name, left, func() (sched.TaskFunc, bool, error) {
			lefts, err := batches.next()
			if err != nil || len(lefts) == 0 {
				return nil, false, err
			}
			return func(ctx context.Context) (iter.Iterator, error) {
				return eval(ctx, lefts)
			}, true, nil
		})
	}
	var cur iter.Iterator
	next := func() (binding.Set, bool, error) {
		for {
			if cur != nil {
				if cur.Next() {
					return cur.Binding(), true, nil
				}
				err := errors.Any(cur.Err(), cur.Close())
				cur = nil
				if err != nil {
					return binding.Set{}, false, err
				}
			}
			if err := ctx.Err(); err != nil {
				return binding.Set{}, false, err
			}
			lefts, err := batches.next()
			if err != nil || len(lefts) == 0 {
				return binding.Set{}, false, err
			}
			cur, err = eval(ctx, lefts)
			if err != nil {
				return binding.Set{}, false, err
			}
		}
	}
	closeAll := func() error {
		var err error
		if cur != nil {
			err = cur.Close()
			cur = nil
		}
		return errors.Any(err, left.Close())
	}
	return iter.Func(next, closeAll)
}

// perSolution schedules one task per left solution.
func (e evaluation) perSolution(name string, left iter.Iterator,
	eval func(context.Context, binding.Set) (iter.Iterator, error)) iter.Iterator {
	return e.controlled(name, left, func() (sched.TaskFunc, bool, error) {
		if !left.Next() {
			return nil, false, left.Err()
		}
		l := left.Binding()
		return func(ctx context.Context) (iter.Iterator, error) {
			return eval(ctx, l)
		}, true, nil
	})
}

// controlled runs a parallel join. A driver goroutine calls next until it
// reports the end, scheduling every task it returns in a new group. It then
// closes left and waits for the group's tasks. The join's results are
// delivered in task completion order.
func (e evaluation) controlled(name string, left iter.Iterator, next func() (sched.TaskFunc, bool, error)) iter.Iterator {
	g := e.execution.NewGroup(queueCapacity)
	e.drivers.Add(1)
	go func() {
		defer e.drivers.Done()
		var err error
		scheduled := 0
		for g.Context().Err() == nil {
			task, ok, nextErr := next()
			if nextErr != nil || !ok {
				err = nextErr
				break
			}
			e.sched.Schedule(g, task)
			scheduled++
		}
		if closeErr := left.Close(); err == nil && g.Context().Err() == nil {
			err = closeErr
		}
		if err != nil {
			g.Fail(err)
		}
		e.sched.InformFinish(g)
		err = g.Wait()
		log.WithFields(log.Fields{
			"execution": e.execution.ID(),
			"join":      name,
			"tasks":     scheduled,
			"error":     err,
		}).Debug("Join driver done")
	}()
	return g.Results()
}
