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

// Package source defines how the federation talks to one member store.
//
// A TripleSource answers the read requests the optimizer and the join
// strategies issue: statement scans, sub-query evaluation and existence
// probes. A Conn adds the write and namespace operations, and a Repository
// hands out Conns. The implementations live in the sub-packages: memstore
// and sqlstore are local stores, sparqlclient talks to a remote SPARQL
// endpoint.
package source

import (
	"context"

	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/rdf"
)

// Query is a sub-query sent to one member.
type Query struct {
	// Node is the tree to evaluate.
	Node algebra.Node
	// Bindings are values for some of Node's variables. Every solution
	// returned is compatible with them.
	Bindings binding.Set
	// Dataset restricts the graphs evaluated; nil means the member's default.
	Dataset *rdf.Dataset
	// IncludeInferred asks the member to include inferred statements, if
	// it has any.
	IncludeInferred bool
}

// TripleSource is the read side of a member.
type TripleSource interface {
	// GetStatements returns the statements matching the pattern. A zero term
	// matches anything. If contexts are given, only statements in one of
	// those graphs match.
	GetStatements(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) (StatementIterator, error)
	// Evaluate returns the solutions of q.
	Evaluate(ctx context.Context, q Query) (iter.Iterator, error)
	// HasStatements returns true if q has at least one solution. It is used
	// for source selection probes and should be cheap.
	HasStatements(ctx context.Context, q Query) (bool, error)
}

// Conn is a connection to a member, able to read and write.
type Conn interface {
	TripleSource

	// Begin starts a transaction. Until Commit or Rollback, writes are only
	// visible through this Conn. Without Begin, each write commits on its own.
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Add adds a statement. It returns a *RejectedError if the member does not
	// accept statements of that shape.
	Add(ctx context.Context, st rdf.Statement) error
	// Remove removes the statements matching the pattern.
	Remove(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) error

	Namespaces(ctx context.Context) ([]rdf.Namespace, error)
	// Namespace returns the name of the prefix, or "" if it is not declared.
	Namespace(ctx context.Context, prefix string) (string, error)
	SetNamespace(ctx context.Context, prefix, name string) error
	RemoveNamespace(ctx context.Context, prefix string) error
	ClearNamespaces(ctx context.Context) error

	// Close releases the connection. An open transaction is rolled back.
	Close() error
}

// Repository opens connections to a member.
type Repository interface {
	Open(ctx context.Context) (Conn, error)
	// Close releases the repository's resources. Conns opened from it must
	// not be used afterwards.
	Close() error
}
