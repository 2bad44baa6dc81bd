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

package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func iri(s string) rdf.Term { return rdf.IRI("http://ex/" + s) }

func st(s, p, o string) rdf.Statement {
	return rdf.Statement{Subject: iri(s), Predicate: iri(p), Object: iri(o)}
}

var fixture = []rdf.Statement{
	st("alice", "knows", "bob"),
	st("alice", "knows", "carol"),
	st("bob", "knows", "carol"),
	st("alice", "likes", "bob"),
	{Subject: iri("alice"), Predicate: iri("knows"), Object: iri("bob"), Context: iri("g1")},
}

func Test_GetStatements(t *testing.T) {
	s := New(Options{})
	s.Load(fixture...)
	assert.Equal(t, 5, s.Len())
	z := rdf.Term{}
	tests := []struct {
		name     string
		s, p, o  rdf.Term
		contexts []rdf.Term
		exp      int
	}{
		{"all", z, z, z, nil, 5},
		{"s", iri("alice"), z, z, nil, 4},
		{"sp", iri("alice"), iri("knows"), z, nil, 3},
		{"spo", iri("alice"), iri("knows"), iri("bob"), nil, 2},
		{"so", iri("alice"), z, iri("bob"), nil, 3},
		{"p", z, iri("knows"), z, nil, 4},
		{"po", z, iri("knows"), iri("carol"), nil, 2},
		{"o", z, z, iri("carol"), nil, 2},
		{"none", iri("carol"), z, z, nil, 0},
		{"context", z, z, z, []rdf.Term{iri("g1")}, 1},
		{"default graph", iri("alice"), iri("knows"), iri("bob"), []rdf.Term{{}}, 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			it, err := s.GetStatements(context.Background(), test.s, test.p, test.o, test.contexts...)
			require.NoError(t, err)
			res, err := source.CollectStatements(it)
			assert.NoError(t, err)
			assert.Len(t, res, test.exp)
			for _, r := range res {
				assert.True(t, r.Matches(test.s, test.p, test.o, test.contexts...))
			}
		})
	}
}

func Test_AutoCommit(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})
	c, err := s.Open(ctx)
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Add(ctx, st("a", "p", "b")))
	assert.NoError(t, c.Add(ctx, st("a", "p", "b")))
	assert.Equal(t, 1, s.Len())
	assert.NoError(t, c.Remove(ctx, iri("a"), rdf.Term{}, rdf.Term{}))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, errNoTxn, c.Commit(ctx))
}

func Test_Transaction(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})
	s.Load(st("a", "p", "old"))
	c, err := s.Open(ctx)
	require.NoError(t, err)
	defer c.Close()
	other, err := s.Open(ctx)
	require.NoError(t, err)
	defer other.Close()

	count := func(c source.Conn) int {
		it, err := c.GetStatements(ctx, iri("a"), rdf.Term{}, rdf.Term{})
		require.NoError(t, err)
		res, err := source.CollectStatements(it)
		require.NoError(t, err)
		return len(res)
	}
	require.NoError(t, c.Begin(ctx))
	assert.Error(t, c.Begin(ctx))
	assert.NoError(t, c.Add(ctx, st("a", "p", "new")))
	assert.NoError(t, c.Remove(ctx, iri("a"), iri("p"), iri("old")))
	assert.NoError(t, c.Add(ctx, st("a", "p", "newer")))
	assert.Equal(t, 2, count(c), "a transaction sees its own writes")
	assert.Equal(t, 1, count(other), "others don't")
	assert.NoError(t, c.Commit(ctx))
	assert.Equal(t, 2, count(other))

	require.NoError(t, c.Begin(ctx))
	assert.NoError(t, c.Remove(ctx, rdf.Term{}, rdf.Term{}, rdf.Term{}))
	assert.Equal(t, 0, count(c))
	assert.NoError(t, c.Rollback(ctx))
	assert.Equal(t, 2, count(c))
}

func Test_AddRejected(t *testing.T) {
	ctx := context.Background()
	s := New(Options{Accept: func(st rdf.Statement) error {
		if st.Object.IsLiteral() {
			return errors.New("literals not supported")
		}
		return nil
	}})
	c, err := s.Open(ctx)
	require.NoError(t, err)
	defer c.Close()
	lit := rdf.Statement{Subject: iri("a"), Predicate: iri("name"), Object: rdf.String("A")}
	err = c.Add(ctx, lit)
	assert.True(t, errors.Is(err, source.ErrRejected))
	assert.Contains(t, err.Error(), "literals not supported")
	err = c.Add(ctx, rdf.Statement{Subject: rdf.String("x"), Predicate: iri("p"), Object: iri("o")})
	assert.True(t, errors.Is(err, source.ErrRejected))
	assert.NoError(t, c.Add(ctx, st("a", "p", "b")))
	assert.Equal(t, 1, s.Len())
}

func Test_Namespaces(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})
	c, err := s.Open(ctx)
	require.NoError(t, err)
	assert.NoError(t, c.SetNamespace(ctx, "foaf", "http://xmlns.com/foaf/0.1/"))
	assert.NoError(t, c.SetNamespace(ctx, "ex", "http://ex/"))
	ns, err := c.Namespaces(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []rdf.Namespace{
		{Prefix: "ex", Name: "http://ex/"},
		{Prefix: "foaf", Name: "http://xmlns.com/foaf/0.1/"},
	}, ns)
	name, err := c.Namespace(ctx, "ex")
	assert.NoError(t, err)
	assert.Equal(t, "http://ex/", name)
	assert.NoError(t, c.RemoveNamespace(ctx, "ex"))
	name, err = c.Namespace(ctx, "ex")
	assert.NoError(t, err)
	assert.Equal(t, "", name)
	assert.NoError(t, c.ClearNamespaces(ctx))
	ns, err = c.Namespaces(ctx)
	assert.NoError(t, err)
	assert.Empty(t, ns)

	assert.NoError(t, c.Close())
	assert.Equal(t, ErrClosed, c.SetNamespace(ctx, "a", "b"))
}

func Test_Close(t *testing.T) {
	s := New(Options{})
	s.Load(fixture...)
	assert.NoError(t, s.Close())
	_, err := s.Open(context.Background())
	assert.Equal(t, ErrClosed, err)
	_, err = s.GetStatements(context.Background(), rdf.Term{}, rdf.Term{}, rdf.Term{})
	assert.Equal(t, ErrClosed, err)
}
