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
	"sync"

	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/query/sched"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/util/errors"
	"github.com/ebay/fedx/util/tracing"
	opentracing "github.com/opentracing/opentracing-go"
	log "github.com/sirupsen/logrus"
)

// queueCapacity is the number of results a parallel join buffers before its
// workers block.
const queueCapacity = 1024

// An Executor evaluates plans against one federation. It is safe for
// concurrent use.
type Executor struct {
	fed    *federation.Federation
	events Events
}

// New returns an Executor for fed. events may be nil.
func New(fed *federation.Federation, events Events) *Executor {
	if events == nil {
		events = ignoreEvents{}
	}
	return &Executor{fed: fed, events: events}
}

// Query is a plan to execute.
type Query struct {
	// Plan is the optimized tree. It is not modified.
	Plan algebra.Node
	// Dataset restricts the graphs queried, if not nil.
	Dataset *rdf.Dataset
	// Bindings is the input solution every result extends.
	Bindings binding.Set
	// IncludeInferred is passed on to the members.
	IncludeInferred bool
}

// Execute starts evaluating q and returns its results. The query runs until
// its results are exhausted or closed, ctx is canceled, or the federation's
// maximum execution time passes. The caller must close the results.
func (x *Executor) Execute(ctx context.Context, q Query) (iter.Iterator, error) {
	s, err := x.fed.Scheduler()
	if err != nil {
		return nil, err
	}
	settings := x.fed.Settings()
	span, ctx := opentracing.StartSpanFromContext(ctx, "execute")
	execution := s.NewExecution(ctx, settings.MaxExecutionTime)
	span.SetTag("execution", execution.ID())
	tracing.UpdateMetric(span, metrics.executeSeconds)
	run := &run{
		fed:       x.fed,
		events:    x.events,
		settings:  settings,
		sched:     s,
		execution: execution,
		dataset:   q.Dataset,
		inferred:  q.IncludeInferred,
	}
	metrics.executions.Inc()
	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{
			"execution": execution.ID(),
			"plan":      q.Plan.String(),
		}).Debug("Executing plan")
	}
	e := evaluation{run: run}
	return &queryResults{
		Iterator: e.eval(execution.Context(), q.Plan, q.Bindings),
		run:      run,
		span:     span,
	}, nil
}

// run is the state shared by all the parts of one execution.
type run struct {
	fed       *federation.Federation
	events    Events
	settings  federation.Settings
	sched     *sched.Scheduler
	execution *sched.Execution
	dataset   *rdf.Dataset
	inferred  bool
	// drivers tracks the goroutines driving parallel joins.
	drivers sync.WaitGroup
}

// evaluation evaluates plan nodes. Within a scheduled task it is synchronous:
// joins there run on the calling goroutine instead of the scheduler.
type evaluation struct {
	*run
	sync bool
}

// synchronous returns an evaluation that does not use the scheduler.
func (e evaluation) synchronous() evaluation {
	return evaluation{run: e.run, sync: true}
}

// eval returns the solutions of n that extend b. Nothing is evaluated until
// the first call to Next.
func (e evaluation) eval(ctx context.Context, n algebra.Node, b binding.Set) iter.Iterator {
	switch n := n.(type) {
	case *algebra.StatementPattern:
		return iter.Lazy(func() (iter.Iterator, error) {
			return e.scan(ctx, n, b)
		})
	case *algebra.ExclusiveGroup:
		return iter.Lazy(func() (iter.Iterator, error) {
			return e.bindAndSend(ctx, "scan", n.Owner, n.Prepare(), b)
		})
	case *algebra.IndependentGroup:
		return iter.Lazy(func() (iter.Iterator, error) {
			return e.independentBatch(ctx, "scan", n, []binding.Set{b})
		})
	case *algebra.Join:
		return e.join(ctx, n, b)
	case *algebra.LeftJoin:
		return e.leftJoin(ctx, e.eval(ctx, n.Left, b), n)
	case *algebra.Union:
		return iter.LazyUnion(len(n.Args), func(i int) (iter.Iterator, error) {
			return e.eval(ctx, n.Args[i], b), nil
		})
	case *algebra.Filter:
		return iter.Filter(e.eval(ctx, n.Arg, b), func(row binding.Set) (bool, error) {
			return accepts(n.Condition, row), nil
		})
	case *algebra.Extend:
		return iter.Map(e.eval(ctx, n.Arg, b), func(row binding.Set) (binding.Set, bool, error) {
			return extend(n, row)
		})
	case *algebra.Projection:
		keep := append(append([]string(nil), n.Vars...), b.Names()...)
		return iter.Map(e.eval(ctx, n.Arg, b), func(row binding.Set) (binding.Set, bool, error) {
			return row.Retain(keep...), true, nil
		})
	case *algebra.Distinct:
		return iter.Distinct(e.eval(ctx, n.Arg, b))
	case *algebra.Slice:
		return iter.Limit(e.eval(ctx, n.Arg, b), n.Offset, n.Limit)
	case *algebra.Empty:
		return iter.Empty()
	case *algebra.SingletonSet:
		return iter.Single(b)
	}
	log.Panicf("exec: unexpected node type %T", n)
	return nil
}

// accepts returns true if cond evaluates to true. Evaluation errors reject
// the solution.
func accepts(cond algebra.Expr, row binding.Set) bool {
	ok, err := algebra.EvalBool(cond, row)
	return err == nil && ok
}

// extend binds n's variable in row. An expression error leaves it unbound; a
// conflicting existing value drops the row.
func extend(n *algebra.Extend, row binding.Set) (binding.Set, bool, error) {
	v, err := algebra.Eval(n.Expr, row)
	if err != nil {
		return row, true, nil
	}
	if cur, ok := row.Get(n.Var); ok {
		return row, cur == v, nil
	}
	return row.Add(n.Var, v), true, nil
}

// queryResults are the results of Execute. Closing them ends the execution.
type queryResults struct {
	iter.Iterator
	run    *run
	span   opentracing.Span
	closed bool
	err    error
}

func (r *queryResults) Err() error {
	err := r.Iterator.Err()
	if err == nil {
		return nil
	}
	exec := r.run.execution
	if !exec.Deadline().IsZero() && exec.Remaining() <= 0 {
		return fedxerr.Wrap(fedxerr.SchedulerTimeout, "execute", err)
	}
	return fedxerr.Wrap(fedxerr.QueryEvaluation, "execute", err)
}

// Close cancels whatever is still outstanding and waits for the join drivers
// to release their inputs.
func (r *queryResults) Close() error {
	if r.closed {
		return r.err
	}
	r.closed = true
	iterErr := r.Err()
	r.run.execution.Close()
	r.err = r.Iterator.Close()
	r.run.drivers.Wait()
	tracing.FinishWithError(r.span, errors.Any(iterErr, r.err))
	if r.err != nil {
		r.err = fedxerr.Wrap(fedxerr.ResourceLeakGuard, "close", r.err)
	}
	return r.err
}
