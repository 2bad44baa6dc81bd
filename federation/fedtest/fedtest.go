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

// Package fedtest builds federations of in-memory members for unit tests.
// Every member is wrapped in a Repo that counts the requests it receives and
// can inject failures or delays.
package fedtest

import (
	"context"
	"sync"
	"testing"

	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/source/memstore"
	"github.com/ebay/fedx/util/clocks"
	"github.com/stretchr/testify/require"
)

// Operation names counted by a Repo.
const (
	OpOpen      = "open"
	OpClose     = "close"
	OpScan      = "getStatements"
	OpEvaluate  = "evaluate"
	OpProbe     = "hasStatements"
	OpBegin     = "begin"
	OpCommit    = "commit"
	OpRollback  = "rollback"
	OpAdd       = "add"
	OpRemove    = "remove"
	OpNamespace = "namespace"
)

// A Repo wraps a repository, counting the operations on its connections.
type Repo struct {
	source.Repository

	// Hook, if set, is called before every operation, possibly concurrently.
	// If it returns an error, the operation fails with it.
	Hook func(ctx context.Context, op string) error

	lock   sync.Mutex
	counts map[string]int
}

// Wrap returns a counting Repo around repo.
func Wrap(repo source.Repository) *Repo {
	return &Repo{Repository: repo, counts: make(map[string]int)}
}

// Count returns the number of times op was called.
func (r *Repo) Count(op string) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.counts[op]
}

// Requests returns the number of read requests: scans, evaluations and
// probes.
func (r *Repo) Requests() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.counts[OpScan] + r.counts[OpEvaluate] + r.counts[OpProbe]
}

// Reset zeroes the counts.
func (r *Repo) Reset() {
	r.lock.Lock()
	r.counts = make(map[string]int)
	r.lock.Unlock()
}

func (r *Repo) record(ctx context.Context, op string) error {
	r.lock.Lock()
	r.counts[op]++
	r.lock.Unlock()
	if r.Hook != nil {
		return r.Hook(ctx, op)
	}
	return nil
}

// Open implements source.Repository.
func (r *Repo) Open(ctx context.Context) (source.Conn, error) {
	if err := r.record(ctx, OpOpen); err != nil {
		return nil, err
	}
	c, err := r.Repository.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &conn{Conn: c, repo: r}, nil
}

type conn struct {
	source.Conn
	repo *Repo
}

func (c *conn) GetStatements(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) (source.StatementIterator, error) {
	if err := c.repo.record(ctx, OpScan); err != nil {
		return nil, err
	}
	return c.Conn.GetStatements(ctx, subj, pred, obj, contexts...)
}

func (c *conn) Evaluate(ctx context.Context, q source.Query) (iter.Iterator, error) {
	if err := c.repo.record(ctx, OpEvaluate); err != nil {
		return nil, err
	}
	return c.Conn.Evaluate(ctx, q)
}

func (c *conn) HasStatements(ctx context.Context, q source.Query) (bool, error) {
	if err := c.repo.record(ctx, OpProbe); err != nil {
		return false, err
	}
	return c.Conn.HasStatements(ctx, q)
}

func (c *conn) Begin(ctx context.Context) error {
	if err := c.repo.record(ctx, OpBegin); err != nil {
		return err
	}
	return c.Conn.Begin(ctx)
}

func (c *conn) Commit(ctx context.Context) error {
	if err := c.repo.record(ctx, OpCommit); err != nil {
		return err
	}
	return c.Conn.Commit(ctx)
}

func (c *conn) Rollback(ctx context.Context) error {
	if err := c.repo.record(ctx, OpRollback); err != nil {
		return err
	}
	return c.Conn.Rollback(ctx)
}

func (c *conn) Add(ctx context.Context, st rdf.Statement) error {
	if err := c.repo.record(ctx, OpAdd); err != nil {
		return err
	}
	return c.Conn.Add(ctx, st)
}

func (c *conn) Remove(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) error {
	if err := c.repo.record(ctx, OpRemove); err != nil {
		return err
	}
	return c.Conn.Remove(ctx, subj, pred, obj, contexts...)
}

func (c *conn) SetNamespace(ctx context.Context, prefix, name string) error {
	if err := c.repo.record(ctx, OpNamespace); err != nil {
		return err
	}
	return c.Conn.SetNamespace(ctx, prefix, name)
}

func (c *conn) RemoveNamespace(ctx context.Context, prefix string) error {
	if err := c.repo.record(ctx, OpNamespace); err != nil {
		return err
	}
	return c.Conn.RemoveNamespace(ctx, prefix)
}

func (c *conn) ClearNamespaces(ctx context.Context) error {
	if err := c.repo.record(ctx, OpNamespace); err != nil {
		return err
	}
	return c.Conn.ClearNamespaces(ctx)
}

func (c *conn) Close() error {
	c.repo.record(context.Background(), OpClose)
	return c.Conn.Close()
}

// MemberSpec describes one member of a test federation.
type MemberSpec struct {
	ID       string
	Kind     federation.Kind
	Writable bool
	Managed  bool
	// Statements loaded into the member's store.
	Statements []rdf.Statement
	// Accept is passed to memstore.Options.
	Accept func(rdf.Statement) error
}

// Fixture is an initialized federation and its members' stores.
type Fixture struct {
	Fed    *federation.Federation
	Stores []*memstore.Store
	Repos  []*Repo
	Clock  *clocks.Mock
}

// Settings returns federation settings suitable for tests: the defaults with
// a mock clock and a small worker pool.
func Settings() federation.Settings {
	s := federation.DefaultSettings()
	s.Workers = 4
	s.Clock = clocks.NewMock()
	return s
}

// New builds and initializes a federation of memstore members. It is shut
// down when the test ends. If settings.Clock is a *clocks.Mock, it is
// available as Fixture.Clock.
func New(t testing.TB, settings federation.Settings, specs ...MemberSpec) *Fixture {
	f := &Fixture{}
	f.Clock, _ = settings.Clock.(*clocks.Mock)
	members := make([]*federation.Member, len(specs))
	for i, spec := range specs {
		store := memstore.New(memstore.Options{Accept: spec.Accept})
		store.Load(spec.Statements...)
		repo := Wrap(store)
		f.Stores = append(f.Stores, store)
		f.Repos = append(f.Repos, repo)
		members[i] = federation.NewMember(federation.MemberInfo{
			ID:       spec.ID,
			Kind:     spec.Kind,
			Writable: spec.Writable,
			Managed:  spec.Managed,
		}, repo)
	}
	fed, err := federation.New(members, settings)
	require.NoError(t, err)
	require.NoError(t, fed.Init(context.Background()))
	t.Cleanup(func() { fed.Shutdown() })
	f.Fed = fed
	return f
}

// Requests returns the total number of read requests received by all the
// members.
func (f *Fixture) Requests() int {
	n := 0
	for _, r := range f.Repos {
		n += r.Requests()
	}
	return n
}

// Reset zeroes the counts of all the members.
func (f *Fixture) Reset() {
	for _, r := range f.Repos {
		r.Reset()
	}
}

// IRI returns an IRI in the http://example.com/ namespace.
func IRI(local string) rdf.Term {
	return rdf.IRI("http://example.com/" + local)
}

// Triple returns a statement of three IRIs in the http://example.com/
// namespace.
func Triple(s, p, o string) rdf.Statement {
	return rdf.Statement{Subject: IRI(s), Predicate: IRI(p), Object: IRI(o)}
}
