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

package source

import (
	"github.com/ebay/fedx/rdf"
)

// StatementIterator is a single-pass stream of statements, with the same
// contract as iter.Iterator: call Next until it returns false, then check
// Err. Close must be called and is idempotent.
type StatementIterator interface {
	Next() bool
	Statement() rdf.Statement
	Err() error
	Close() error
}

// Statements returns a StatementIterator over a slice.
func Statements(sts ...rdf.Statement) StatementIterator {
	return &sliceStatements{items: sts, pos: -1}
}

type sliceStatements struct {
	items []rdf.Statement
	pos   int
}

func (it *sliceStatements) Next() bool {
	if it.pos+1 >= len(it.items) {
		it.pos = len(it.items)
		return false
	}
	it.pos++
	return true
}

func (it *sliceStatements) Statement() rdf.Statement {
	if it.pos < 0 || it.pos >= len(it.items) {
		return rdf.Statement{}
	}
	return it.items[it.pos]
}

func (it *sliceStatements) Err() error   { return nil }
func (it *sliceStatements) Close() error { it.pos = len(it.items); return nil }

// FuncStatements adapts a pull function to a StatementIterator. next returns
// the next statement, false at the end, or an error. close, if not nil, is
// called once.
func FuncStatements(next func() (rdf.Statement, bool, error), close func() error) StatementIterator {
	return &funcStatements{next: next, close: close}
}

type funcStatements struct {
	next   func() (rdf.Statement, bool, error)
	close  func() error
	cur    rdf.Statement
	err    error
	done   bool
	closed bool
}

func (it *funcStatements) Next() bool {
	if it.done {
		return false
	}
	st, ok, err := it.next()
	if err != nil || !ok {
		it.err = err
		it.done = true
		it.cur = rdf.Statement{}
		return false
	}
	it.cur = st
	return true
}

func (it *funcStatements) Statement() rdf.Statement { return it.cur }
func (it *funcStatements) Err() error               { return it.err }

func (it *funcStatements) Close() error {
	it.done = true
	if it.closed {
		return nil
	}
	it.closed = true
	if it.close != nil {
		return it.close()
	}
	return nil
}

// CollectStatements reads every statement and closes it.
func CollectStatements(it StatementIterator) ([]rdf.Statement, error) {
	var res []rdf.Statement
	for it.Next() {
		res = append(res, it.Statement())
	}
	err := it.Err()
	if closeErr := it.Close(); err == nil {
		err = closeErr
	}
	return res, err
}
