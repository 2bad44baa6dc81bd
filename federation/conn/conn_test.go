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

package conn

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/federation/fedtest"
	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prologue = "PREFIX ex: <http://example.com/>\n"

func writable(ids ...string) []fedtest.MemberSpec {
	specs := make([]fedtest.MemberSpec, len(ids))
	for i, id := range ids {
		specs[i] = fedtest.MemberSpec{ID: id, Writable: true}
	}
	return specs
}

func newEngine(t *testing.T, settings federation.Settings, specs ...fedtest.MemberSpec) (*Engine, *fedtest.Fixture) {
	fix := fedtest.New(t, settings, specs...)
	return New(fix.Fed, nil), fix
}

func count(t *testing.T, c *Conn, query string) int {
	t.Helper()
	res, err := c.Evaluate(context.Background(), Request{Query: prologue + query})
	require.NoError(t, err)
	n, err := iter.Drain(res)
	require.NoError(t, err)
	return n
}

func Test_PlacementIsRoundRobin(t *testing.T) {
	ctx := context.Background()
	engine, fix := newEngine(t, fedtest.Settings(), writable("a", "b", "c")...)
	for i := 0; i < 6; i++ {
		c := engine.Connect()
		require.NoError(t, c.AddStatement(ctx, fedtest.Triple(fmt.Sprintf("s%d", i), "p", "o")))
		require.NoError(t, c.Close())
	}
	for i, store := range fix.Stores {
		assert.Equal(t, 2, store.Len(), "member %d", i)
	}
}

func Test_RejectedStatementMovesOn(t *testing.T) {
	ctx := context.Background()
	specs := writable("a", "b", "c")
	specs[1].Accept = func(rdf.Statement) error {
		return errors.New("b takes nothing")
	}
	engine, fix := newEngine(t, fedtest.Settings(), specs...)
	conns := []*Conn{engine.Connect(), engine.Connect(), engine.Connect()}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	// The second connection starts at b, which rejects, so c gets it.
	require.NoError(t, conns[1].AddStatement(ctx, fedtest.Triple("alice", "knows", "bob")))
	assert.Equal(t, 0, fix.Stores[0].Len())
	assert.Equal(t, 0, fix.Stores[1].Len())
	assert.Equal(t, 1, fix.Stores[2].Len())
	assert.Equal(t, 1, fix.Repos[1].Count(fedtest.OpAdd))

	require.NoError(t, conns[0].AddStatement(ctx, fedtest.Triple("alice", "knows", "carol")))
	assert.Equal(t, 1, fix.Stores[0].Len())
	assert.Equal(t, 1, fix.Repos[1].Count(fedtest.OpAdd))
}

func Test_EveryMemberRejects(t *testing.T) {
	specs := writable("a", "b")
	for i := range specs {
		id := specs[i].ID
		specs[i].Accept = func(rdf.Statement) error {
			return fmt.Errorf("%s is full", id)
		}
	}
	engine, fix := newEngine(t, fedtest.Settings(), specs...)
	engine.Connect().Close()
	c := engine.Connect()
	defer c.Close()
	err := c.AddStatement(context.Background(), fedtest.Triple("alice", "knows", "bob"))
	require.Error(t, err)
	assert.True(t, fedxerr.Is(err, fedxerr.WriteRejected))
	// The first rejection is reported: this connection started at b.
	assert.Contains(t, err.Error(), "b is full")
	assert.True(t, errors.Is(err, source.ErrRejected))
	assert.Equal(t, 1, fix.Repos[0].Count(fedtest.OpAdd))
	assert.Equal(t, 1, fix.Repos[1].Count(fedtest.OpAdd))
}

func Test_ReadOnly(t *testing.T) {
	ctx := context.Background()
	settings := fedtest.Settings()
	settings.ReadOnly = true
	engine, fix := newEngine(t, settings, writable("a")...)
	c := engine.Connect()
	defer c.Close()
	for name, op := range map[string]func() error{
		"add":          func() error { return c.AddStatement(ctx, fedtest.Triple("a", "b", "c")) },
		"remove":       func() error { return c.RemoveStatements(ctx, rdf.Term{}, rdf.Term{}, rdf.Term{}) },
		"begin":        func() error { return c.Begin(ctx) },
		"setNamespace": func() error { return c.SetNamespace(ctx, "ex", "http://example.com/") },
	} {
		err := op()
		assert.True(t, fedxerr.Is(err, fedxerr.WriteRejected), "%s: %v", name, err)
	}
	assert.Zero(t, fix.Repos[0].Count(fedtest.OpOpen))
}

func Test_EchoAttemptsEveryMember(t *testing.T) {
	ctx := context.Background()
	engine, fix := newEngine(t, fedtest.Settings(), writable("a", "b", "c")...)
	fix.Repos[0].Hook = func(ctx context.Context, op string) error {
		if op == fedtest.OpNamespace {
			return errors.New("a is confused")
		}
		return nil
	}
	fix.Repos[1].Hook = func(ctx context.Context, op string) error {
		if op == fedtest.OpNamespace {
			return &source.StorageError{Op: "write", Err: errors.New("b's disk is full")}
		}
		return nil
	}
	c := engine.Connect()
	defer c.Close()
	err := c.SetNamespace(ctx, "ex", "http://example.com/")
	require.Error(t, err)
	// The storage failure wins over the earlier runtime failure.
	assert.Contains(t, err.Error(), "b's disk is full")
	assert.True(t, fedxerr.Is(err, fedxerr.MemberFailure))
	for i, repo := range fix.Repos {
		assert.Equal(t, 1, repo.Count(fedtest.OpNamespace), "member %d", i)
	}
	name, err := c.Namespace(ctx, "ex")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/", name)
}

func Test_Transaction(t *testing.T) {
	ctx := context.Background()
	engine, fix := newEngine(t, fedtest.Settings(), writable("a", "b")...)
	c := engine.Connect()
	defer c.Close()

	require.NoError(t, c.Begin(ctx))
	assert.Error(t, c.Begin(ctx))
	require.NoError(t, c.AddStatement(ctx, fedtest.Triple("alice", "knows", "bob")))
	require.NoError(t, c.Rollback(ctx))
	assert.Equal(t, 0, fix.Stores[0].Len()+fix.Stores[1].Len())

	require.NoError(t, c.Begin(ctx))
	require.NoError(t, c.AddStatement(ctx, fedtest.Triple("alice", "knows", "bob")))
	require.NoError(t, c.Commit(ctx))
	assert.Equal(t, 1, fix.Stores[0].Len()+fix.Stores[1].Len())
	for i, repo := range fix.Repos {
		assert.Equal(t, 2, repo.Count(fedtest.OpBegin), "member %d", i)
		assert.Equal(t, 1, repo.Count(fedtest.OpCommit), "member %d", i)
		assert.Equal(t, 1, repo.Count(fedtest.OpRollback), "member %d", i)
	}
	assert.Error(t, c.Commit(ctx))
}

func Test_BeginFailureRollsBackOtherMembers(t *testing.T) {
	ctx := context.Background()
	engine, fix := newEngine(t, fedtest.Settings(), writable("a", "b")...)
	fix.Repos[1].Hook = func(ctx context.Context, op string) error {
		if op == fedtest.OpBegin {
			return errors.New("b cannot begin")
		}
		return nil
	}
	c := engine.Connect()
	err := c.Begin(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b cannot begin")
	assert.Equal(t, 1, fix.Repos[0].Count(fedtest.OpRollback))
	assert.Equal(t, 0, fix.Repos[1].Count(fedtest.OpRollback))
	assert.Error(t, c.Commit(ctx))

	// With no transaction open, an acknowledged write is applied at once
	// and survives the connection.
	require.NoError(t, c.AddStatement(ctx, fedtest.Triple("alice", "knows", "bob")))
	assert.Equal(t, 1, fix.Stores[0].Len()+fix.Stores[1].Len())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, fix.Stores[0].Len()+fix.Stores[1].Len())
}

func Test_WritesInvalidateSourceSelection(t *testing.T) {
	ctx := context.Background()
	engine, _ := newEngine(t, fedtest.Settings(), writable("a", "b")...)
	c := engine.Connect()
	defer c.Close()
	query := "SELECT * WHERE { ?x ex:knows ?y }"
	assert.Equal(t, 0, count(t, c, query))
	require.NoError(t, c.AddStatement(ctx, fedtest.Triple("alice", "knows", "bob")))
	assert.Equal(t, 1, count(t, c, query))
	require.NoError(t, c.RemoveStatements(ctx, rdf.Term{}, fedtest.IRI("knows"), rdf.Term{}))
	assert.Equal(t, 0, count(t, c, query))
}

func Test_Evaluate(t *testing.T) {
	engine, _ := newEngine(t, fedtest.Settings(),
		fedtest.MemberSpec{ID: "a", Statements: []rdf.Statement{
			fedtest.Triple("alice", "knows", "bob"),
		}},
		fedtest.MemberSpec{ID: "b", Statements: []rdf.Statement{
			fedtest.Triple("bob", "name", "bobName"),
		}})
	c := engine.Connect()
	defer c.Close()
	ctx := context.Background()

	res, err := c.Evaluate(ctx, Request{Query: prologue + "SELECT ?n WHERE { ex:alice ex:knows ?f . ?f ex:name ?n }"})
	require.NoError(t, err)
	assert.Equal(t, []string{"n"}, res.Vars)
	assert.Equal(t, algebra.FormSelect, res.Form)
	rows, err := iter.Collect(res)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	n, _ := rows[0].Get("n")
	assert.Equal(t, fedtest.IRI("bobName"), n)

	res, err = c.Evaluate(ctx, Request{Query: prologue + "ASK { ex:alice ex:knows ex:carol }"})
	require.NoError(t, err)
	assert.Equal(t, algebra.FormAsk, res.Form)
	rows, err = iter.Collect(res)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = c.Evaluate(ctx, Request{Query: "SELECT WHERE"})
	assert.True(t, fedxerr.Is(err, fedxerr.QueryEvaluation), "got %v", err)

	plan, err := c.Explain(ctx, Request{Query: prologue + "SELECT * WHERE { ?x ex:knows ?y }"})
	require.NoError(t, err)
	assert.Contains(t, plan, "http://example.com/knows")
}

func Test_Statements(t *testing.T) {
	shared := fedtest.Triple("alice", "knows", "bob")
	for _, distinct := range []bool{false, true} {
		t.Run(fmt.Sprintf("distinct_%v", distinct), func(t *testing.T) {
			settings := fedtest.Settings()
			settings.Distinct = distinct
			engine, _ := newEngine(t, settings,
				fedtest.MemberSpec{ID: "a", Statements: []rdf.Statement{shared, fedtest.Triple("alice", "knows", "carol")}},
				fedtest.MemberSpec{ID: "b", Statements: []rdf.Statement{shared}})
			c := engine.Connect()
			defer c.Close()
			sts, err := c.Statements(context.Background(), fedtest.IRI("alice"), rdf.Term{}, rdf.Term{})
			require.NoError(t, err)
			all, err := source.CollectStatements(sts)
			require.NoError(t, err)
			if distinct {
				assert.Len(t, all, 3)
			} else {
				assert.Len(t, all, 2)
			}
		})
	}
}

func Test_Namespaces(t *testing.T) {
	ctx := context.Background()
	engine, fix := newEngine(t, fedtest.Settings(),
		fedtest.MemberSpec{ID: "a", Writable: true},
		fedtest.MemberSpec{ID: "b"})
	c := engine.Connect()
	defer c.Close()
	require.NoError(t, c.SetNamespace(ctx, "ex", "http://example.com/"))
	// Read-only members aren't written to.
	assert.Zero(t, fix.Repos[1].Count(fedtest.OpNamespace))
	nss, err := c.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Namespace{{Prefix: "ex", Name: "http://example.com/"}}, nss)
	require.NoError(t, c.RemoveNamespace(ctx, "ex"))
	name, err := c.Namespace(ctx, "ex")
	require.NoError(t, err)
	assert.Equal(t, "", name)
	require.NoError(t, c.ClearNamespaces(ctx))
}

func Test_ClosedConn(t *testing.T) {
	engine, _ := newEngine(t, fedtest.Settings(), writable("a")...)
	c := engine.Connect()
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	ctx := context.Background()
	assert.Error(t, c.AddStatement(ctx, fedtest.Triple("a", "b", "c")))
	_, err := c.Evaluate(ctx, Request{Query: "SELECT * WHERE { ?s ?p ?o }"})
	assert.Error(t, err)
	_, err = c.Namespaces(ctx)
	assert.Error(t, err)
}
