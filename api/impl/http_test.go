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

package impl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/ebay/fedx/config"
	"github.com/ebay/fedx/federation/conn"
	"github.com/ebay/fedx/federation/fedtest"
	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/rdf/sparqljson"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/util/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prologue = "PREFIX ex: <http://example.com/>\n"

func newServer(t *testing.T, specs ...fedtest.MemberSpec) (*Server, *fedtest.Fixture) {
	fix := fedtest.New(t, fedtest.Settings(), specs...)
	cfg := &config.Fedx{API: &config.API{HTTPAddress: "localhost:0"}}
	return New(cfg, conn.New(fix.Fed, nil)), fix
}

func knows() []fedtest.MemberSpec {
	return []fedtest.MemberSpec{
		{ID: "a", Writable: true, Statements: []rdf.Statement{
			fedtest.Triple("alice", "knows", "bob"),
			fedtest.Triple("alice", "knows", "carol"),
		}},
		{ID: "b", Writable: true, Statements: []rdf.Statement{
			fedtest.Triple("alice", "knows", "dave"),
		}},
	}
}

func do(t *testing.T, s *Server, method, target string, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

func queryURL(path, query string, params ...string) string {
	v := url.Values{"query": {prologue + query}}
	for i := 0; i+1 < len(params); i += 2 {
		v.Add(params[i], params[i+1])
	}
	return path + "?" + v.Encode()
}

func Test_QuerySelect(t *testing.T) {
	s, _ := newServer(t, knows()...)
	w := do(t, s, "GET", queryURL("/query", "SELECT ?o WHERE { ex:alice ex:knows ?o }"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, sparqljson.ContentType, w.Header().Get("Content-Type"))
	res, err := sparqljson.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, []string{"o"}, res.Vars)
	var objects []string
	for _, b := range res.Bindings {
		o, ok := b.Get("o")
		require.True(t, ok)
		objects = append(objects, o.String())
	}
	assert.ElementsMatch(t, []string{
		"<http://example.com/bob>",
		"<http://example.com/carol>",
		"<http://example.com/dave>",
	}, objects)
}

func Test_QueryPostBody(t *testing.T) {
	s, _ := newServer(t, knows()...)
	w := do(t, s, "POST", "/query", prologue+"SELECT ?o WHERE { ex:alice ex:knows ?o }",
		"Content-Type", "application/sparql-query")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res, err := sparqljson.Decode(w.Body)
	require.NoError(t, err)
	assert.Len(t, res.Bindings, 3)
}

func Test_QueryBinding(t *testing.T) {
	s, _ := newServer(t, knows()...)
	w := do(t, s, "GET", queryURL("/query", "SELECT ?s ?o WHERE { ?s ex:knows ?o }",
		"$o", "<http://example.com/dave>"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res, err := sparqljson.Decode(w.Body)
	require.NoError(t, err)
	require.Len(t, res.Bindings, 1)
	subj, _ := res.Bindings[0].Get("s")
	assert.Equal(t, fedtest.IRI("alice"), subj)
}

func Test_QueryAsk(t *testing.T) {
	s, _ := newServer(t, knows()...)
	tests := []struct {
		query  string
		answer bool
	}{
		{"ASK { ex:alice ex:knows ex:dave }", true},
		{"ASK { ex:alice ex:knows ex:erin }", false},
	}
	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			w := do(t, s, "GET", queryURL("/query", test.query), "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			res, err := sparqljson.Decode(w.Body)
			require.NoError(t, err)
			require.NotNil(t, res.Boolean)
			assert.Equal(t, test.answer, *res.Boolean)
		})
	}
}

func Test_QueryErrors(t *testing.T) {
	s, fix := newServer(t, knows()...)
	fix.Repos[1].Hook = func(ctx context.Context, op string) error {
		if op == fedtest.OpEvaluate || op == fedtest.OpScan {
			return &source.StorageError{Err: errors.New("disk on fire")}
		}
		return nil
	}
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing query", "/query", http.StatusBadRequest},
		{"bad syntax", queryURL("/query", "SELECT WHERE {"), http.StatusBadRequest},
		{"bad infer", queryURL("/query", "ASK { ?s ?p ?o }", "infer", "maybe"), http.StatusBadRequest},
		{"bad binding", queryURL("/query", "ASK { ?s ?p ?o }", "$s", "<unterminated"), http.StatusBadRequest},
		{"member failure", queryURL("/query", "SELECT ?o WHERE { ex:alice ex:knows ?o }"), http.StatusBadGateway},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := do(t, s, "GET", test.target, "")
			assert.Equal(t, test.status, w.Code, w.Body.String())
		})
	}
}

func Test_Explain(t *testing.T) {
	s, _ := newServer(t, knows()...)
	w := do(t, s, "GET", queryURL("/explain", "SELECT ?o WHERE { ex:alice ex:knows ?o }"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "http://example.com/knows")
}

func Test_Statements(t *testing.T) {
	s, fix := newServer(t, knows()...)
	w := do(t, s, "GET", "/statements?subj="+url.QueryEscape("<http://example.com/alice>"), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[
		["<http://example.com/alice>", "<http://example.com/knows>", "<http://example.com/bob>"],
		["<http://example.com/alice>", "<http://example.com/knows>", "<http://example.com/carol>"],
		["<http://example.com/alice>", "<http://example.com/knows>", "<http://example.com/dave>"]
	]`, w.Body.String())

	w = do(t, s, "POST", "/statements", `[
		["<http://example.com/erin>", "<http://example.com/knows>", "<http://example.com/frank>"],
		["<http://example.com/erin>", "<http://example.com/age>", "\"33\"", "<http://example.com/g>"]
	]`)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.Equal(t, 5, fix.Stores[0].Len()+fix.Stores[1].Len())

	w = do(t, s, "DELETE", "/statements?pred="+url.QueryEscape("<http://example.com/knows>"), "")
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	assert.Equal(t, 1, fix.Stores[0].Len()+fix.Stores[1].Len())

	w = do(t, s, "GET", "/statements", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[["<http://example.com/erin>", "<http://example.com/age>", "\"33\"", "<http://example.com/g>"]]`,
		w.Body.String())
}

func Test_AddStatementsErrors(t *testing.T) {
	s, _ := newServer(t, knows()...)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `nope`},
		{"too few terms", `[["<http://example.com/a>", "<http://example.com/b>"]]`},
		{"bad term", `[["<http://example.com/a>", "<http://example.com/b>", "\"open]]`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w := do(t, s, "POST", "/statements", test.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func Test_AddStatementsReadOnly(t *testing.T) {
	settings := fedtest.Settings()
	settings.ReadOnly = true
	fix := fedtest.New(t, settings, knows()...)
	s := New(&config.Fedx{API: &config.API{}}, conn.New(fix.Fed, nil))
	w := do(t, s, "POST", "/statements",
		`[["<http://example.com/a>", "<http://example.com/b>", "<http://example.com/c>"]]`)
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func Test_Namespaces(t *testing.T) {
	s, _ := newServer(t, knows()...)
	w := do(t, s, "PUT", "/namespaces/ex", "http://example.com/")
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = do(t, s, "GET", "/namespaces/ex", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://example.com/", w.Body.String())

	w = do(t, s, "GET", "/namespaces", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"prefix": "ex", "name": "http://example.com/"}]`, w.Body.String())

	w = do(t, s, "DELETE", "/namespaces/ex", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, s, "GET", "/namespaces/ex", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, "PUT", "/namespaces/ex", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	do(t, s, "PUT", "/namespaces/foaf", "http://xmlns.com/foaf/0.1/")
	w = do(t, s, "DELETE", "/namespaces", "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, s, "GET", "/namespaces", "")
	assert.JSONEq(t, `[]`, w.Body.String())
}

func Test_statusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{errors.New("boom"), http.StatusInternalServerError},
		{web.NewError(http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{fedxerr.Newf(fedxerr.QueryEvaluation, "parse", "bad"), http.StatusBadRequest},
		{fedxerr.Newf(fedxerr.WriteRejected, "add", "full"), http.StatusConflict},
		{fedxerr.Newf(fedxerr.SchedulerTimeout, "evaluate", "late"), http.StatusGatewayTimeout},
		{fedxerr.Newf(fedxerr.MemberFailure, "evaluate", "down"), http.StatusBadGateway},
		{fedxerr.Newf(fedxerr.QueryEvaluation, "evaluate", "odd"), http.StatusInternalServerError},
	}
	for _, test := range tests {
		t.Run(test.err.Error(), func(t *testing.T) {
			assert.Equal(t, test.status, statusOf(test.err))
		})
	}
}
