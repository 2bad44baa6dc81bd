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
	"sort"
	"sync"

	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/source/localeval"
)

// errNoTxn is returned by Commit and Rollback without a Begin.
var errNoTxn = errors.New("memstore: no transaction in progress")

// change is a pending write of a transaction: either the statement 'add' or
// the removal of everything matching 'remove'.
type change struct {
	add    *rdf.Statement
	remove *pattern
}

type pattern struct {
	subj, pred, obj rdf.Term
	contexts        []rdf.Term
}

func (p *pattern) matches(st rdf.Statement) bool {
	return st.Matches(p.subj, p.pred, p.obj, p.contexts...)
}

// conn is a source.Conn on a Store. Writes made in a transaction are kept in
// 'pending' and applied under the store's lock at Commit; reads in the
// transaction see them.
type conn struct {
	store *Store

	lock    sync.Mutex
	inTxn   bool
	pending []change
	closed  bool
}

func (c *conn) check() error {
	if c.closed {
		return ErrClosed
	}
	return nil
}

func (c *conn) GetStatements(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) (source.StatementIterator, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.check(); err != nil {
		return nil, err
	}
	c.store.lock.RLock()
	res := c.store.scan(subj, pred, obj, contexts)
	c.store.lock.RUnlock()
	if len(c.pending) == 0 {
		return source.Statements(res...), nil
	}
	want := pattern{subj: subj, pred: pred, obj: obj, contexts: contexts}
	for _, ch := range c.pending {
		switch {
		case ch.add != nil:
			if want.matches(*ch.add) && !containsStatement(res, *ch.add) {
				res = append(res, *ch.add)
			}
		case ch.remove != nil:
			kept := res[:0:0]
			for _, st := range res {
				if !ch.remove.matches(st) {
					kept = append(kept, st)
				}
			}
			res = kept
		}
	}
	return source.Statements(res...), nil
}

func containsStatement(sts []rdf.Statement, st rdf.Statement) bool {
	for _, x := range sts {
		if x == st {
			return true
		}
	}
	return false
}

func (c *conn) Evaluate(ctx context.Context, q source.Query) (iter.Iterator, error) {
	return localeval.Evaluate(ctx, c, q)
}

func (c *conn) HasStatements(ctx context.Context, q source.Query) (bool, error) {
	return localeval.HasStatements(ctx, c, q)
}

func (c *conn) Begin(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	if c.inTxn {
		return errors.New("memstore: transaction already in progress")
	}
	c.inTxn = true
	return nil
}

func (c *conn) Commit(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	if !c.inTxn {
		return errNoTxn
	}
	c.store.apply(c.pending)
	c.pending = nil
	c.inTxn = false
	return nil
}

func (c *conn) Rollback(ctx context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.check(); err != nil {
		return err
	}
	if !c.inTxn {
		return errNoTxn
	}
	c.pending = nil
	c.inTxn = false
	return nil
}

// write applies ch now, or queues it if a transaction is open.
func (c *conn) write(ch change) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.inTxn {
		c.pending = append(c.pending, ch)
		return nil
	}
	c.store.apply([]change{ch})
	return nil
}

func (c *conn) Add(ctx context.Context, st rdf.Statement) error {
	if st.Subject.IsLiteral() || !st.Predicate.IsIRI() || st.Object.IsZero() {
		return &source.RejectedError{Statement: st, Reason: "malformed statement"}
	}
	if accept := c.store.opts.Accept; accept != nil {
		if err := accept(st); err != nil {
			return &source.RejectedError{Statement: st, Reason: err.Error()}
		}
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.write(change{add: &st})
}

func (c *conn) Remove(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.write(change{remove: &pattern{subj: subj, pred: pred, obj: obj, contexts: contexts}})
}

// Namespace operations are not transactional: they apply immediately.

func (c *conn) Namespaces(ctx context.Context) ([]rdf.Namespace, error) {
	if err := c.checkLocked(); err != nil {
		return nil, err
	}
	s := c.store
	s.lock.RLock()
	defer s.lock.RUnlock()
	res := make([]rdf.Namespace, 0, len(s.namespaces))
	for prefix, name := range s.namespaces {
		res = append(res, rdf.Namespace{Prefix: prefix, Name: name})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Prefix < res[j].Prefix })
	return res, nil
}

func (c *conn) Namespace(ctx context.Context, prefix string) (string, error) {
	if err := c.checkLocked(); err != nil {
		return "", err
	}
	s := c.store
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.namespaces[prefix], nil
}

func (c *conn) SetNamespace(ctx context.Context, prefix, name string) error {
	if err := c.checkLocked(); err != nil {
		return err
	}
	s := c.store
	s.lock.Lock()
	defer s.lock.Unlock()
	s.namespaces[prefix] = name
	return nil
}

func (c *conn) RemoveNamespace(ctx context.Context, prefix string) error {
	if err := c.checkLocked(); err != nil {
		return err
	}
	s := c.store
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.namespaces, prefix)
	return nil
}

func (c *conn) ClearNamespaces(ctx context.Context) error {
	if err := c.checkLocked(); err != nil {
		return err
	}
	s := c.store
	s.lock.Lock()
	defer s.lock.Unlock()
	s.namespaces = make(map[string]string)
	return nil
}

func (c *conn) checkLocked() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.check()
}

func (c *conn) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.closed = true
	c.pending = nil
	c.inTxn = false
	return nil
}

// apply makes the changes visible to every reader at once.
func (s *Store) apply(changes []change) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, ch := range changes {
		switch {
		case ch.add != nil:
			if !s.has(*ch.add) {
				s.insert(*ch.add)
			}
		case ch.remove != nil:
			p := ch.remove
			for _, st := range s.scan(p.subj, p.pred, p.obj, p.contexts) {
				s.delete(st)
			}
		}
	}
}
