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
	"errors"
	"strings"

	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
)

// conn is a source.Conn on a Client. Writes made in a transaction are sent
// as one update request at Commit.
type conn struct {
	client  *Client
	inTxn   bool
	pending []string
	closed  bool
}

var errClosed = errors.New("sparqlclient: connection closed")

func (c *conn) GetStatements(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) (source.StatementIterator, error) {
	if c.closed {
		return nil, errClosed
	}
	return c.client.getStatements(ctx, subj, pred, obj, contexts)
}

func (c *conn) Evaluate(ctx context.Context, q source.Query) (iter.Iterator, error) {
	if c.closed {
		return nil, errClosed
	}
	return c.client.evaluate(ctx, q)
}

func (c *conn) HasStatements(ctx context.Context, q source.Query) (bool, error) {
	if c.closed {
		return false, errClosed
	}
	return c.client.hasStatements(ctx, q)
}

func (c *conn) Begin(ctx context.Context) error {
	if c.closed {
		return errClosed
	}
	if c.inTxn {
		return errors.New("sparqlclient: transaction already in progress")
	}
	c.inTxn = true
	return nil
}

func (c *conn) Commit(ctx context.Context) error {
	if !c.inTxn {
		return errors.New("sparqlclient: no transaction in progress")
	}
	ops := c.pending
	c.pending = nil
	c.inTxn = false
	if len(ops) == 0 {
		return nil
	}
	return c.client.update(ctx, strings.Join(ops, " ;\n"))
}

func (c *conn) Rollback(ctx context.Context) error {
	if !c.inTxn {
		return errors.New("sparqlclient: no transaction in progress")
	}
	c.pending = nil
	c.inTxn = false
	return nil
}

func (c *conn) send(ctx context.Context, ops ...string) error {
	if c.closed {
		return errClosed
	}
	if c.inTxn {
		c.pending = append(c.pending, ops...)
		return nil
	}
	return c.client.update(ctx, strings.Join(ops, " ;\n"))
}

func (c *conn) Add(ctx context.Context, st rdf.Statement) error {
	if !st.Subject.IsResource() || !st.Predicate.IsIRI() || st.Object.IsZero() {
		return &source.RejectedError{Statement: st, Reason: "malformed statement"}
	}
	return c.send(ctx, updateData(st))
}

func (c *conn) Remove(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) error {
	return c.send(ctx, deleteWhere(subj, pred, obj, contexts)...)
}

func (c *conn) Namespaces(ctx context.Context) ([]rdf.Namespace, error) {
	return c.client.namespaceList(), nil
}

func (c *conn) Namespace(ctx context.Context, prefix string) (string, error) {
	c.client.lock.Lock()
	defer c.client.lock.Unlock()
	return c.client.namespaces[prefix], nil
}

func (c *conn) SetNamespace(ctx context.Context, prefix, name string) error {
	c.client.lock.Lock()
	defer c.client.lock.Unlock()
	c.client.namespaces[prefix] = name
	return nil
}

func (c *conn) RemoveNamespace(ctx context.Context, prefix string) error {
	c.client.lock.Lock()
	defer c.client.lock.Unlock()
	delete(c.client.namespaces, prefix)
	return nil
}

func (c *conn) ClearNamespaces(ctx context.Context) error {
	c.client.lock.Lock()
	defer c.client.lock.Unlock()
	c.client.namespaces = make(map[string]string)
	return nil
}

func (c *conn) Close() error {
	c.closed = true
	c.pending = nil
	c.inTxn = false
	return nil
}
