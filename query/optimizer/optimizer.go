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

// Package optimizer rewrites a parsed query into a plan for the federation.
// The rewrite is a fixed sequence of passes over a private copy of the tree:
// generic simplifications first, then source selection, which annotates every
// statement pattern with the members that can answer it, then grouping of
// patterns by owner and a final join ordering.
package optimizer

import (
	"context"

	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/util/tracing"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// An Optimizer plans queries for one federation. It caches source selection
// results across queries and is safe for concurrent use.
type Optimizer struct {
	fed     *federation.Federation
	sources *sourceSelector
}

// New returns an Optimizer for fed.
func New(fed *federation.Federation) *Optimizer {
	return &Optimizer{
		fed:     fed,
		sources: newSourceSelector(fed),
	}
}

// Invalidate drops all cached source selection results. It must be called
// after the members' data changes.
func (o *Optimizer) Invalidate() {
	o.sources.invalidate()
}

// Request is a query to plan.
type Request struct {
	// Root is the parsed tree. It is not modified.
	Root algebra.Node
	// Dataset restricts the graphs queried, if not nil.
	Dataset *rdf.Dataset
	// Bindings are values for some of the query's variables, bound into the
	// plan by the first pass.
	Bindings binding.Set
}

// plan is the state passed through the passes.
type plan struct {
	opt      *Optimizer
	root     algebra.Node
	dataset  *rdf.Dataset
	bindings binding.Set
}

// A pass is a named rewrite of the plan. Passes are idempotent.
type pass struct {
	name string
	run  func(context.Context, *plan) error
}

// passes run in this order. Join ordering runs twice: source selection and
// grouping change the cost estimates.
var passes = []pass{
	{"bind input bindings", bindInputs},
	{"fold constants", foldConstants},
	{"normalize comparisons", normalizeComparisons},
	{"split conjunctive filters", splitConjunctions},
	{"rewrite disjunctive filters", rewriteDisjunctions},
	{"eliminate sameTerm filters", eliminateSameTerm},
	{"prune", prune},
	{"order joins", orderJoins},
	{"eliminate empty patterns", selectSources},
	{"group by source", groupBySource},
	{"prune owned", pruneOwned},
	{"reorder joins", orderJoins},
	{"prepare groups", prepareGroups},
}

// Optimize returns the plan for req. A failing source selection probe does
// not fail the query: the pattern is assigned to every member instead.
// Optimize only fails if ctx is done.
func (o *Optimizer) Optimize(ctx context.Context, req Request) (algebra.Node, error) {
	span, ctx := tracing.StartSpan(ctx, "optimize", metrics.optimizeSeconds)
	root, err := o.optimize(ctx, req)
	tracing.FinishWithError(span, err)
	return root, err
}

func (o *Optimizer) optimize(ctx context.Context, req Request) (algebra.Node, error) {
	p := &plan{
		opt:      o,
		root:     algebra.Clone(req.Root),
		dataset:  req.Dataset,
		bindings: req.Bindings,
	}
	for _, pass := range passes {
		if err := ctx.Err(); err != nil {
			return nil, fedxerr.Wrap(fedxerr.QueryEvaluation, "optimize", err)
		}
		metric := metrics.passSeconds.WithLabelValues(pass.name).(prometheus.Summary)
		span, pctx := tracing.StartSpan(ctx, pass.name, metric)
		err := pass.run(pctx, p)
		tracing.FinishWithError(span, err)
		if err != nil {
			return nil, fedxerr.Wrap(fedxerr.QueryEvaluation, "optimize", err)
		}
		if log.IsLevelEnabled(log.DebugLevel) {
			log.WithFields(log.Fields{
				"pass": pass.name,
				"plan": p.root.String(),
			}).Debug("Optimizer pass done")
		}
	}
	return p.root, nil
}

func bindInputs(_ context.Context, p *plan) error {
	p.root = algebra.Substitute(p.root, p.bindings)
	return nil
}
