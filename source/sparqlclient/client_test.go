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

package sparqlclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/query/parser"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/rdf/sparqljson"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/source/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iri(s string) rdf.Term { return rdf.IRI("http://ex/" + s) }

// endpoint is a SPARQL endpoint over a memstore that records the requests
// it receives.
type endpoint struct {
	store *memstore.Store

	lock    sync.Mutex
	queries []string
	updates []string
}

func (e *endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if u := r.PostForm.Get("update"); u != "" {
		e.lock.Lock()
		e.updates = append(e.updates, u)
		e.lock.Unlock()
		w.WriteHeader(http.StatusNoContent)
		return
	}
	text := r.PostForm.Get("query")
	e.lock.Lock()
	e.queries = append(e.queries, text)
	e.lock.Unlock()
	q, err := parser.Parse(text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := e.store.Evaluate(r.Context(), source.Query{Node: q.Root})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", sparqljson.ContentType)
	if q.Form == algebra.FormAsk {
		found := res.Next()
		res.Close()
		sparqljson.WriteBoolean(w, found)
		return
	}
	enc := sparqljson.NewWriter(w, q.Projection)
	for res.Next() {
		enc.Write(res.Binding())
	}
	res.Close()
	enc.Close()
}

func setup(t *testing.T) (*endpoint, source.Conn) {
	e := &endpoint{store: memstore.New(memstore.Options{})}
	e.store.Load(
		rdf.Statement{Subject: iri("alice"), Predicate: iri("knows"), Object: iri("bob")},
		rdf.Statement{Subject: iri("bob"), Predicate: iri("knows"), Object: iri("carol")},
		rdf.Statement{Subject: iri("alice"), Predicate: iri("name"), Object: rdf.LangString("Alice", "en")},
	)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	client, err := New(Options{Endpoint: srv.URL + "/sparql", RequestsPerSecond: 1000})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	c, err := client.Open(context.Background())
	require.NoError(t, err)
	return e, c
}

func Test_New(t *testing.T) {
	_, err := New(Options{Endpoint: "not a url"})
	assert.Error(t, err)
	c, err := New(Options{Endpoint: "http://localhost:1/sparql"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:1/sparql", c.Endpoint())
	assert.Equal(t, c.opts.Endpoint, c.opts.UpdateEndpoint)
}

func Test_Evaluate(t *testing.T) {
	e, c := setup(t)
	ctx := context.Background()
	node := &algebra.Join{Args: []algebra.Node{
		&algebra.StatementPattern{Subject: algebra.Var("a"), Predicate: algebra.Const(iri("knows")), Object: algebra.Var("b")},
		&algebra.StatementPattern{Subject: algebra.Var("b"), Predicate: algebra.Const(iri("knows")), Object: algebra.Var("c")},
	}}
	it, err := c.Evaluate(ctx, source.Query{Node: node})
	require.NoError(t, err)
	res, err := iter.Collect(it)
	require.NoError(t, err)
	assert.Equal(t, []binding.Set{binding.New(
		binding.Pair{Name: "a", Value: iri("alice")},
		binding.Pair{Name: "b", Value: iri("bob")},
		binding.Pair{Name: "c", Value: iri("carol")},
	)}, res)
	assert.Equal(t, []string{
		"SELECT ?a ?b ?c WHERE { ?a <http://ex/knows> ?b . ?b <http://ex/knows> ?c . }",
	}, e.queries)

	b := binding.New(binding.Pair{Name: "a", Value: iri("bob")})
	it, err = c.Evaluate(ctx, source.Query{Node: node.Args[0], Bindings: b})
	require.NoError(t, err)
	res, err = iter.Collect(it)
	require.NoError(t, err)
	assert.Equal(t, []binding.Set{b.Add("b", iri("carol"))}, res)
	assert.Equal(t, "SELECT ?b WHERE { <http://ex/bob> <http://ex/knows> ?b . }", e.queries[1])
}

func Test_HasStatements(t *testing.T) {
	e, c := setup(t)
	p := &algebra.StatementPattern{Subject: algebra.Var("s"), Predicate: algebra.Const(iri("name")), Object: algebra.Var("o")}
	ok, err := c.HasStatements(context.Background(), source.Query{Node: p})
	assert.NoError(t, err)
	assert.True(t, ok)
	p.Predicate = algebra.Const(iri("age"))
	ok, err = c.HasStatements(context.Background(), source.Query{Node: p})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "ASK { ?s <http://ex/age> ?o . }", e.queries[1])
}

func Test_GetStatements(t *testing.T) {
	_, c := setup(t)
	it, err := c.GetStatements(context.Background(), iri("alice"), rdf.Term{}, rdf.Term{})
	require.NoError(t, err)
	res, err := source.CollectStatements(it)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []rdf.Statement{
		{Subject: iri("alice"), Predicate: iri("knows"), Object: iri("bob")},
		{Subject: iri("alice"), Predicate: iri("name"), Object: rdf.LangString("Alice", "en")},
	}, res)
}

func Test_Updates(t *testing.T) {
	e, c := setup(t)
	ctx := context.Background()
	st := rdf.Statement{Subject: iri("a"), Predicate: iri("p"), Object: rdf.String("x")}
	assert.NoError(t, c.Add(ctx, st))
	require.NoError(t, c.Begin(ctx))
	assert.NoError(t, c.Add(ctx, rdf.Statement{Subject: iri("a"), Predicate: iri("p"), Object: iri("b"), Context: iri("g")}))
	assert.NoError(t, c.Remove(ctx, iri("a"), rdf.Term{}, rdf.Term{}))
	assert.Len(t, e.updates, 1, "writes in a transaction wait for Commit")
	assert.NoError(t, c.Commit(ctx))
	assert.Equal(t, []string{
		`INSERT DATA { <http://ex/a> <http://ex/p> "x" . }`,
		"INSERT DATA { GRAPH <http://ex/g> { <http://ex/a> <http://ex/p> <http://ex/b> . } } ;\n" +
			"DELETE WHERE { <http://ex/a> ?p ?o . }",
	}, e.updates)

	require.NoError(t, c.Begin(ctx))
	assert.NoError(t, c.Remove(ctx, rdf.Term{}, rdf.Term{}, rdf.Term{}))
	assert.NoError(t, c.Rollback(ctx))
	assert.Len(t, e.updates, 2)

	err := c.Add(ctx, rdf.Statement{Subject: rdf.String("x"), Predicate: iri("p"), Object: iri("o")})
	assert.ErrorIs(t, err, source.ErrRejected)
}

func Test_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	client, err := New(Options{Endpoint: srv.URL})
	require.NoError(t, err)
	c, err := client.Open(context.Background())
	require.NoError(t, err)
	_, err = c.Evaluate(context.Background(), source.Query{Node: &algebra.SingletonSet{}})
	assert.EqualError(t, err, "endpoint returned 503 Service Unavailable: overloaded")
	assert.NoError(t, c.Close())
	_, err = c.Evaluate(context.Background(), source.Query{Node: &algebra.SingletonSet{}})
	assert.Equal(t, errClosed, err)
}

func Test_Namespaces(t *testing.T) {
	_, c := setup(t)
	ctx := context.Background()
	assert.NoError(t, c.SetNamespace(ctx, "ex", "http://ex/"))
	ns, err := c.Namespaces(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []rdf.Namespace{{Prefix: "ex", Name: "http://ex/"}}, ns)
	assert.NoError(t, c.RemoveNamespace(ctx, "ex"))
	name, err := c.Namespace(ctx, "ex")
	assert.NoError(t, err)
	assert.Empty(t, name)
}
