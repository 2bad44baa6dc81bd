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

// Package iter defines the streaming result iteration used throughout query
// evaluation: a single-pass, pull-based sequence of binding sets.
//
// Iterators are not safe for concurrent use, except for Queue, whose
// producer side may be used from many goroutines. Every Iterator must be
// closed exactly once by its consumer; Close is idempotent so that error paths
// may close defensively. Closing an iterator closes everything it wraps.
package iter

import (
	"sync"

	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/util/errors"
)

// Iterator is a lazily evaluated sequence of binding sets.
type Iterator interface {
	// Next advances to the next binding set. It returns false when the
	// sequence is exhausted or has failed; Err distinguishes the two. Next may
	// block while the underlying source is evaluated.
	Next() bool
	// Binding returns the binding set Next advanced to.
	Binding() binding.Set
	// Err returns the error that ended the sequence, if any.
	Err() error
	// Close releases the iterator's resources, and those of any iterator or
	// connection it wraps. It returns the first error encountered while doing
	// so. Close is idempotent.
	Close() error
}

// closeOnce makes a close function idempotent. The first call's result is
// returned by every call.
type closeOnce struct {
	once sync.Once
	err  error
}

func (c *closeOnce) do(close func() error) error {
	c.once.Do(func() {
		c.err = close()
	})
	return c.err
}

type sliceIter struct {
	items []binding.Set
	pos   int
	cur   binding.Set
}

// Slice returns an iterator over the given binding sets.
func Slice(items ...binding.Set) Iterator {
	return &sliceIter{items: items}
}

// Empty returns an iterator with no results.
func Empty() Iterator {
	return &sliceIter{}
}

// Single returns an iterator with the single result b.
func Single(b binding.Set) Iterator {
	return &sliceIter{items: []binding.Set{b}}
}

func (it *sliceIter) Next() bool {
	if it.pos >= len(it.items) {
		it.cur = binding.Set{}
		return false
	}
	it.cur = it.items[it.pos]
	it.pos++
	return true
}

func (it *sliceIter) Binding() binding.Set { return it.cur }
func (it *sliceIter) Err() error           { return nil }

func (it *sliceIter) Close() error {
	it.pos = len(it.items)
	return nil
}

type errIter struct {
	err error
}

// Error returns an iterator that fails immediately with err.
func Error(err error) Iterator {
	return &errIter{err: err}
}

func (it *errIter) Next() bool           { return false }
func (it *errIter) Binding() binding.Set { return binding.Set{} }
func (it *errIter) Err() error           { return it.err }
func (it *errIter) Close() error         { return nil }

// FuncIter adapts a pull function to an Iterator. next returns the next
// binding set, false at the end of the sequence, or an error. close is
// called once, when the iterator is closed; it may be nil.
type FuncIter struct {
	next   func() (binding.Set, bool, error)
	close  func() error
	closer closeOnce
	cur    binding.Set
	err    error
	done   bool
}

// Func returns a FuncIter.
func Func(next func() (binding.Set, bool, error), close func() error) *FuncIter {
	return &FuncIter{next: next, close: close}
}

// Next implements Iterator.Next.
func (it *FuncIter) Next() bool {
	if it.done {
		return false
	}
	b, ok, err := it.next()
	if err != nil || !ok {
		it.done = true
		it.err = err
		it.cur = binding.Set{}
		return false
	}
	it.cur = b
	return true
}

// Binding implements Iterator.Binding.
func (it *FuncIter) Binding() binding.Set { return it.cur }

// Err implements Iterator.Err.
func (it *FuncIter) Err() error { return it.err }

// Close implements Iterator.Close.
func (it *FuncIter) Close() error {
	it.done = true
	return it.closer.do(func() error {
		if it.close == nil {
			return nil
		}
		return it.close()
	})
}

// Collect reads all of it and closes it. It returns the results read, and the
// first of the iteration error and the close error.
func Collect(it Iterator) ([]binding.Set, error) {
	var res []binding.Set
	for it.Next() {
		res = append(res, it.Binding())
	}
	err := errors.Any(it.Err(), it.Close())
	return res, err
}

// Drain reads and discards the rest of it, then closes it. It returns the
// number of results discarded.
func Drain(it Iterator) (int, error) {
	n := 0
	for it.Next() {
		n++
	}
	return n, errors.Any(it.Err(), it.Close())
}

type lazyIter struct {
	open   func() (Iterator, error)
	inner  Iterator
	err    error
	closed bool
	closer closeOnce
}

// Lazy returns an iterator that calls open on the first call to Next. If
// open fails, the iteration fails with its error. If the iterator is closed
// before Next is called, open is never called.
func Lazy(open func() (Iterator, error)) Iterator {
	return &lazyIter{open: open}
}

func (it *lazyIter) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	if it.inner == nil {
		inner, err := it.open()
		if err != nil {
			it.err = err
			return false
		}
		it.inner = inner
	}
	return it.inner.Next()
}

func (it *lazyIter) Binding() binding.Set {
	if it.inner == nil {
		return binding.Set{}
	}
	return it.inner.Binding()
}

func (it *lazyIter) Err() error {
	if it.err != nil {
		return it.err
	}
	if it.inner == nil {
		return nil
	}
	return it.inner.Err()
}

func (it *lazyIter) Close() error {
	it.closed = true
	return it.closer.do(func() error {
		if it.inner == nil {
			return nil
		}
		return it.inner.Close()
	})
}

// WrapErr wraps an inner iterator's error into the federation error type at a
// component boundary, recording 'op' as the failed operation.
func WrapErr(op string, err error) error {
	return fedxerr.Wrap(fedxerr.QueryEvaluation, op, err)
}
