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

// Package memstore is an in-memory member store. Statements are held in three
// B-tree indexes (subject, predicate and object first) so that any pattern
// with a bound position is a range scan.
package memstore

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/source/localeval"
	"github.com/google/btree"
)

// ErrClosed is returned by operations on a closed Store or Conn.
var ErrClosed = errors.New("memstore: closed")

// Options configure a Store.
type Options struct {
	// Accept, if set, is called for every statement added. A non-nil result
	// rejects the statement: Conn.Add then returns a *source.RejectedError
	// with the error's text as the reason.
	Accept func(rdf.Statement) error
}

// Store is an in-memory repository. It is safe for concurrent use.
type Store struct {
	opts Options

	lock       sync.RWMutex
	indexes    [numIndexes]*btree.BTree
	namespaces map[string]string
	closed     bool
}

// New returns an empty Store.
func New(opts Options) *Store {
	s := &Store{
		opts:       opts,
		namespaces: make(map[string]string),
	}
	for i := range s.indexes {
		s.indexes[i] = btree.New(16)
	}
	return s
}

// indexOrder lists the statement positions (0 = subject, 1 = predicate,
// 2 = object) in the order each index keys them.
var indexOrder = [numIndexes][3]int{
	spo: {0, 1, 2},
	pos: {1, 2, 0},
	osp: {2, 0, 1},
}

const (
	spo = iota
	pos
	osp
	numIndexes
)

type item struct {
	key string
	st  rdf.Statement
}

func (a item) Less(b btree.Item) bool {
	return a.key < b.(item).key
}

func terms(st rdf.Statement) [3]rdf.Term {
	return [3]rdf.Term{st.Subject, st.Predicate, st.Object}
}

// keyPrefix writes the first n terms in the order of index idx, each
// followed by a separator.
func keyPrefix(idx int, t [3]rdf.Term, n int) string {
	var b strings.Builder
	for _, p := range indexOrder[idx][:n] {
		t[p].Key(&b)
		b.WriteByte(0)
	}
	return b.String()
}

// itemKey is the full key of st in index idx: the three terms followed by
// the context.
func itemKey(idx int, st rdf.Statement) string {
	var b strings.Builder
	b.WriteString(keyPrefix(idx, terms(st), 3))
	st.Context.Key(&b)
	return b.String()
}

// chooseIndex returns the index and the number of leading positions bound
// for a scan with the given bound positions.
func chooseIndex(t [3]rdf.Term) (idx int, n int) {
	s, p, o := !t[0].IsZero(), !t[1].IsZero(), !t[2].IsZero()
	switch {
	case s && p && o:
		return spo, 3
	case s && p:
		return spo, 2
	case s && o:
		return osp, 2
	case s:
		return spo, 1
	case p && o:
		return pos, 2
	case p:
		return pos, 1
	case o:
		return osp, 1
	}
	return spo, 0
}

// scan returns the committed statements matching the pattern. The caller
// must hold the lock.
func (s *Store) scan(subj, pred, obj rdf.Term, contexts []rdf.Term) []rdf.Statement {
	t := [3]rdf.Term{subj, pred, obj}
	idx, n := chooseIndex(t)
	prefix := keyPrefix(idx, t, n)
	var res []rdf.Statement
	s.indexes[idx].AscendGreaterOrEqual(item{key: prefix}, func(i btree.Item) bool {
		it := i.(item)
		if !strings.HasPrefix(it.key, prefix) {
			return false
		}
		if it.st.Matches(subj, pred, obj, contexts...) {
			res = append(res, it.st)
		}
		return true
	})
	return res
}

func (s *Store) has(st rdf.Statement) bool {
	return s.indexes[spo].Has(item{key: itemKey(spo, st)})
}

func (s *Store) insert(st rdf.Statement) {
	for idx := range s.indexes {
		s.indexes[idx].ReplaceOrInsert(item{key: itemKey(idx, st), st: st})
	}
}

func (s *Store) delete(st rdf.Statement) {
	for idx := range s.indexes {
		s.indexes[idx].Delete(item{key: itemKey(idx, st)})
	}
}

// Len returns the number of committed statements.
func (s *Store) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.indexes[spo].Len()
}

// Load adds statements directly, bypassing Options.Accept. It is meant for
// seeding stores.
func (s *Store) Load(sts ...rdf.Statement) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, st := range sts {
		s.insert(st)
	}
}

// GetStatements implements source.TripleSource over the committed
// statements.
func (s *Store) GetStatements(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) (source.StatementIterator, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return source.Statements(s.scan(subj, pred, obj, contexts)...), nil
}

// Evaluate implements source.TripleSource.
func (s *Store) Evaluate(ctx context.Context, q source.Query) (iter.Iterator, error) {
	return localeval.Evaluate(ctx, s, q)
}

// HasStatements implements source.TripleSource.
func (s *Store) HasStatements(ctx context.Context, q source.Query) (bool, error) {
	return localeval.HasStatements(ctx, s, q)
}

// Open implements source.Repository.
func (s *Store) Open(ctx context.Context) (source.Conn, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return &conn{store: s}, nil
}

// Close implements source.Repository. The statements are discarded.
func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	for i := range s.indexes {
		s.indexes[i] = btree.New(16)
	}
	return nil
}
