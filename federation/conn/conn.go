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

// Package conn is the entry point for using a federation: an Engine plans
// and runs queries, and a Conn is one client's session, carrying its
// transaction and the member connections its writes go through.
package conn

import (
	"context"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/query/exec"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/query/optimizer"
	"github.com/ebay/fedx/query/parser"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/util/errors"
	"github.com/ebay/fedx/util/tracing"
	log "github.com/sirupsen/logrus"
)

// An Engine evaluates queries against one federation. The source selection
// cache is shared by all the connections of an Engine.
type Engine struct {
	fed  *federation.Federation
	opt  *optimizer.Optimizer
	exec *exec.Executor
}

// New returns an Engine for fed, which must be initialized before queries
// are run. events may be nil.
func New(fed *federation.Federation, events exec.Events) *Engine {
	return &Engine{
		fed:  fed,
		opt:  optimizer.New(fed),
		exec: exec.New(fed, events),
	}
}

// Federation returns the federation the engine evaluates against.
func (e *Engine) Federation() *federation.Federation {
	return e.fed
}

// Connect returns a new connection. Its statements are placed starting at
// the next writable member in turn.
func (e *Engine) Connect() *Conn {
	c := &Conn{
		engine:     e,
		writeStart: e.fed.NextWriteStart(),
	}
	c.locked.conns = make(map[string]source.Conn)
	metrics.openConns.Inc()
	return c
}

// A Conn is a session on the federation. Reads may be called concurrently;
// writes are serialized. Close must be called when done.
type Conn struct {
	engine *Engine
	// The index into the federation's writable members where statement
	// placement starts.
	writeStart int

	// lock serializes writes and protects 'locked'.
	lock   sync.Mutex
	locked struct {
		// Write connections to the members, opened on first use.
		conns  map[string]source.Conn
		inTx   bool
		closed bool
	}
}

// Request is a query to evaluate.
type Request struct {
	// Query is the SPARQL text.
	Query string
	// Dataset restricts the graphs queried, if not nil.
	Dataset *rdf.Dataset
	// Bindings are values for some of the query's variables.
	Bindings binding.Set
	// IncludeInferred is passed on to the members.
	IncludeInferred bool
}

// Results are the solutions of a query.
type Results struct {
	iter.Iterator
	// Form is the kind of the query. An ASK query has a solution if the
	// answer is true.
	Form algebra.Form
	// Vars lists the projected variables in order.
	Vars []string
}

func (c *Conn) checkOpen() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.locked.closed {
		return fedxerr.Newf(fedxerr.QueryEvaluation, "conn", "connection is closed")
	}
	return nil
}

// plan parses and optimizes the query of req.
func (c *Conn) plan(ctx context.Context, req Request) (*algebra.Query, algebra.Node, error) {
	if err := c.checkOpen(); err != nil {
		return nil, nil, err
	}
	q, err := parser.Parse(req.Query)
	if err != nil {
		return nil, nil, fedxerr.Wrap(fedxerr.QueryEvaluation, "parse", err)
	}
	root, err := c.engine.opt.Optimize(ctx, optimizer.Request{
		Root:     q.Root,
		Dataset:  req.Dataset,
		Bindings: req.Bindings,
	})
	if err != nil {
		return nil, nil, err
	}
	return q, root, nil
}

// Evaluate starts the query and returns its results, which the caller must
// close.
func (c *Conn) Evaluate(ctx context.Context, req Request) (*Results, error) {
	span, ctx := tracing.StartSpan(ctx, "evaluate", metrics.planSeconds)
	q, root, err := c.plan(ctx, req)
	tracing.FinishWithError(span, err)
	if err != nil {
		metrics.queries.WithLabelValues("failed").Inc()
		return nil, err
	}
	res, err := c.engine.exec.Execute(ctx, exec.Query{
		Plan:            root,
		Dataset:         req.Dataset,
		Bindings:        req.Bindings,
		IncludeInferred: req.IncludeInferred,
	})
	if err != nil {
		metrics.queries.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.queries.WithLabelValues("started").Inc()
	return &Results{Iterator: res, Form: q.Form, Vars: q.Projection}, nil
}

// Explain returns an indented rendering of the plan the query would be
// evaluated with.
func (c *Conn) Explain(ctx context.Context, req Request) (string, error) {
	root, err := c.Plan(ctx, req)
	if err != nil {
		return "", err
	}
	return algebra.Format(root), nil
}

// Plan returns the optimized tree the query would be evaluated with.
func (c *Conn) Plan(ctx context.Context, req Request) (algebra.Node, error) {
	_, root, err := c.plan(ctx, req)
	return root, err
}

// Statements returns the statements matching the pattern from every member.
// Unless the federation is distinct, statements held by several members are
// returned once.
func (c *Conn) Statements(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) (source.StatementIterator, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	fed := c.engine.fed
	members := fed.Members()
	if !fed.Distinct() && fed.IsLocalProperty(pred) {
		// Every member holds the same statements.
		members = members[:1]
	}
	dedup := !fed.Distinct() && len(members) > 1
	var seen map[uint64][]rdf.Statement
	if dedup {
		seen = make(map[uint64][]rdf.Statement)
	}
	i := -1
	var cur source.StatementIterator
	var release func()
	closeCur := func() error {
		if cur == nil {
			return nil
		}
		err := cur.Close()
		release()
		cur, release = nil, nil
		return err
	}
	next := func() (rdf.Statement, bool, error) {
		for {
			if cur != nil {
				for cur.Next() {
					st := cur.Statement()
					if !dedup || add(seen, st) {
						return st, true, nil
					}
				}
				id := members[i].ID
				err := errors.Any(cur.Err(), closeCur())
				if err != nil {
					return rdf.Statement{}, false, fedxerr.WrapMember(fedxerr.MemberFailure, "getStatements", id, err)
				}
			}
			i++
			if i >= len(members) {
				return rdf.Statement{}, false, nil
			}
			conn, rel, err := members[i].Borrow(ctx)
			if err != nil {
				return rdf.Statement{}, false, err
			}
			sts, err := conn.GetStatements(ctx, subj, pred, obj, contexts...)
			if err != nil {
				rel()
				return rdf.Statement{}, false, fedxerr.WrapMember(fedxerr.MemberFailure, "getStatements", members[i].ID, err)
			}
			cur, release = sts, rel
		}
	}
	return source.FuncStatements(next, closeCur), nil
}

// add records st and returns true if it had not been seen before.
func add(seen map[uint64][]rdf.Statement, st rdf.Statement) bool {
	h := xxhash.Sum64String(st.String())
	for _, prev := range seen[h] {
		if prev == st {
			return false
		}
	}
	seen[h] = append(seen[h], st)
	return true
}

// Namespaces returns the namespaces declared on the members. When members
// declare the same prefix, the first member's name wins.
func (c *Conn) Namespaces(ctx context.Context) ([]rdf.Namespace, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	var res []rdf.Namespace
	seen := make(map[string]bool)
	for _, m := range c.engine.fed.Members() {
		conn, release, err := m.Borrow(ctx)
		if err != nil {
			return nil, err
		}
		nss, err := conn.Namespaces(ctx)
		release()
		if err != nil {
			return nil, fedxerr.WrapMember(fedxerr.MemberFailure, "namespaces", m.ID, err)
		}
		for _, ns := range nss {
			if !seen[ns.Prefix] {
				seen[ns.Prefix] = true
				res = append(res, ns)
			}
		}
	}
	return res, nil
}

// Namespace returns the name of prefix from the first member that declares
// it, or "" if none does.
func (c *Conn) Namespace(ctx context.Context, prefix string) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	for _, m := range c.engine.fed.Members() {
		conn, release, err := m.Borrow(ctx)
		if err != nil {
			return "", err
		}
		name, err := conn.Namespace(ctx, prefix)
		release()
		if err != nil {
			return "", fedxerr.WrapMember(fedxerr.MemberFailure, "namespace", m.ID, err)
		}
		if name != "" {
			return name, nil
		}
	}
	return "", nil
}

// Close rolls back an open transaction and closes the member connections.
// The Conn can't be used afterwards.
func (c *Conn) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.locked.closed {
		return nil
	}
	c.locked.closed = true
	metrics.openConns.Dec()
	var err error
	for id, conn := range c.locked.conns {
		if cerr := conn.Close(); cerr != nil {
			log.WithFields(log.Fields{
				"member": id,
				"error":  cerr,
			}).Warn("Error closing member write connection")
			if err == nil {
				err = fedxerr.WrapMember(fedxerr.MemberFailure, "close", id, cerr)
			}
		}
	}
	if c.locked.inTx {
		// Closing the member connections rolled back their work.
		c.engine.opt.Invalidate()
	}
	c.locked.conns = nil
	c.locked.inTx = false
	return err
}

func (c *Conn) String() string {
	return fmt.Sprintf("Conn(writeStart=%d)", c.writeStart)
}
