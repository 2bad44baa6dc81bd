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

package iter

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/util/cmp"
	"github.com/ebay/fedx/util/errors"
)

// decorator holds what most single-input decorators share: the wrapped
// iterator, the current result and the terminal error.
type decorator struct {
	inner  Iterator
	cur    binding.Set
	err    error
	done   bool
	closer closeOnce
	// op names the decorator in wrapped errors.
	op string
}

// finish ends the iteration. The inner iterator is closed eagerly so that
// remote resources are released as soon as the stream runs dry.
func (d *decorator) finish(err error) bool {
	if !d.done {
		d.done = true
		if err == nil {
			err = d.inner.Err()
		}
		d.err = WrapErr(d.op, err)
		if closeErr := d.close(); d.err == nil {
			d.err = closeErr
		}
	}
	d.cur = binding.Set{}
	return false
}

func (d *decorator) close() error {
	return d.closer.do(d.inner.Close)
}

func (d *decorator) Binding() binding.Set { return d.cur }
func (d *decorator) Err() error           { return d.err }

func (d *decorator) Close() error {
	d.done = true
	return d.close()
}

type filterIter struct {
	decorator
	pred func(binding.Set) (bool, error)
}

// Filter returns an iterator over the results of inner for which pred
// returns true. An error from pred ends the iteration.
func Filter(inner Iterator, pred func(binding.Set) (bool, error)) Iterator {
	return &filterIter{decorator: decorator{inner: inner, op: "filter"}, pred: pred}
}

func (it *filterIter) Next() bool {
	if it.done {
		return false
	}
	for it.inner.Next() {
		b := it.inner.Binding()
		ok, err := it.pred(b)
		if err != nil {
			return it.finish(err)
		}
		if ok {
			it.cur = b
			return true
		}
	}
	return it.finish(nil)
}

type mapIter struct {
	decorator
	fn func(binding.Set) (binding.Set, bool, error)
}

// Map returns an iterator over fn applied to the results of inner. fn may
// drop a result by returning false. An error from fn ends the iteration.
func Map(inner Iterator, fn func(binding.Set) (binding.Set, bool, error)) Iterator {
	return &mapIter{decorator: decorator{inner: inner, op: "map"}, fn: fn}
}

func (it *mapIter) Next() bool {
	if it.done {
		return false
	}
	for it.inner.Next() {
		b, ok, err := it.fn(it.inner.Binding())
		if err != nil {
			return it.finish(err)
		}
		if ok {
			it.cur = b
			return true
		}
	}
	return it.finish(nil)
}

type distinctIter struct {
	decorator
	// seen maps the hash of a binding set's key to the sets with that hash.
	seen map[uint64][]binding.Set
}

// Distinct returns an iterator over the results of inner with duplicate
// binding sets removed. It keeps every distinct result in memory.
func Distinct(inner Iterator) Iterator {
	return &distinctIter{
		decorator: decorator{inner: inner, op: "distinct"},
		seen:      make(map[uint64][]binding.Set),
	}
}

func (it *distinctIter) Next() bool {
	if it.done {
		return false
	}
	for it.inner.Next() {
		b := it.inner.Binding()
		if it.add(b) {
			it.cur = b
			return true
		}
	}
	it.seen = nil
	return it.finish(nil)
}

// add records b and returns true if it had not been seen before.
func (it *distinctIter) add(b binding.Set) bool {
	h := xxhash.Sum64String(cmp.GetKey(b))
	for _, prev := range it.seen[h] {
		if prev.Equal(b) {
			return false
		}
	}
	it.seen[h] = append(it.seen[h], b)
	return true
}

type sliceModIter struct {
	decorator
	offset  int64
	limit   int64
	emitted int64
}

// Limit returns an iterator that skips the first 'offset' results of inner
// and then returns at most 'limit' results. A negative limit means no limit.
// inner is closed as soon as the limit is reached.
func Limit(inner Iterator, offset, limit int64) Iterator {
	return &sliceModIter{decorator: decorator{inner: inner, op: "slice"}, offset: offset, limit: limit}
}

func (it *sliceModIter) Next() bool {
	if it.done {
		return false
	}
	if it.limit >= 0 && it.emitted >= it.limit {
		return it.finish(nil)
	}
	for it.offset > 0 {
		if !it.inner.Next() {
			return it.finish(nil)
		}
		it.offset--
	}
	if !it.inner.Next() {
		return it.finish(nil)
	}
	it.emitted++
	it.cur = it.inner.Binding()
	return true
}

type closeDependentIter struct {
	decorator
}

// CloseDependent returns an iterator over the results of inner that calls
// release once inner is exhausted or closed. It is used to give back a
// borrowed connection as soon as the results read from it are consumed.
func CloseDependent(inner Iterator, release func() error) Iterator {
	wrapped := closeFunc{Iterator: inner, close: func() error {
		return errors.Any(inner.Close(), release())
	}}
	return &closeDependentIter{decorator: decorator{inner: wrapped, op: "read"}}
}

// closeFunc overrides the Close method of an Iterator.
type closeFunc struct {
	Iterator
	close func() error
}

func (c closeFunc) Close() error { return c.close() }

func (it *closeDependentIter) Next() bool {
	if it.done {
		return false
	}
	if it.inner.Next() {
		it.cur = it.inner.Binding()
		return true
	}
	return it.finish(nil)
}

type unionIter struct {
	open func(i int) (Iterator, error)
	n    int
	// next is the number of iterators opened so far.
	next   int
	cur    Iterator
	err    error
	done   bool
	closer closeOnce
	// all is set by Union. Close also closes the ones not yet reached.
	all []Iterator
}

// Union returns an iterator over the results of each of the given
// iterators in turn. Closing it closes all of them, including those not yet
// read.
func Union(its ...Iterator) Iterator {
	return &unionIter{
		n:   len(its),
		all: its,
		open: func(i int) (Iterator, error) {
			return its[i], nil
		},
	}
}

// LazyUnion returns an iterator over the results of open(0), open(1), ...,
// open(n-1) in turn. Each iterator is opened only once the previous one is
// exhausted, and closed before the next is opened.
func LazyUnion(n int, open func(i int) (Iterator, error)) Iterator {
	return &unionIter{n: n, open: open}
}

func (it *unionIter) Next() bool {
	for !it.done {
		if it.cur == nil {
			if it.next >= it.n {
				it.done = true
				return false
			}
			cur, err := it.open(it.next)
			it.next++
			if err != nil {
				it.err = WrapErr("union", err)
				it.done = true
				return false
			}
			it.cur = cur
		}
		if it.cur.Next() {
			return true
		}
		err := errors.Any(it.cur.Err(), it.cur.Close())
		it.cur = nil
		if err != nil {
			it.err = WrapErr("union", err)
			it.done = true
			return false
		}
	}
	return false
}

func (it *unionIter) Binding() binding.Set {
	if it.cur == nil {
		return binding.Set{}
	}
	return it.cur.Binding()
}

func (it *unionIter) Err() error { return it.err }

func (it *unionIter) Close() error {
	it.done = true
	return it.closer.do(func() error {
		var errs []error
		if it.cur != nil {
			errs = append(errs, it.cur.Close())
			it.cur = nil
		}
		if it.next < len(it.all) {
			for _, pending := range it.all[it.next:] {
				errs = append(errs, pending.Close())
			}
		}
		return errors.Any(errs...)
	})
}

// IndexVar is the variable a bound join adds to each instantiated pattern so
// that the remote results can be attributed to the left binding they came
// from.
const IndexVar = "__index"

type boundJoinIter struct {
	decorator
	lefts []binding.Set
}

// BoundJoinResults returns an iterator that converts the results of a bound
// join request back into joined binding sets. Each result of inner must bind
// IndexVar to the integer position in 'lefts' of its originating left
// binding; the result is that left binding merged with the result's other
// variables. Results that conflict with their left binding are dropped.
func BoundJoinResults(inner Iterator, lefts []binding.Set) Iterator {
	return &boundJoinIter{decorator: decorator{inner: inner, op: "bound join"}, lefts: lefts}
}

func (it *boundJoinIter) Next() bool {
	if it.done {
		return false
	}
	for it.inner.Next() {
		row := it.inner.Binding()
		idx, err := BindingIndex(row, IndexVar, len(it.lefts))
		if err != nil {
			return it.finish(err)
		}
		right := row.Without(IndexVar)
		left := it.lefts[idx]
		if !left.Compatible(right) {
			continue
		}
		it.cur = left.Merge(right)
		return true
	}
	return it.finish(nil)
}

// BindingIndex returns the integer bound to 'name' in b, checking that it is
// in [0, n).
func BindingIndex(b binding.Set, name string, n int) (int, error) {
	t, ok := b.Get(name)
	if !ok {
		return 0, fmt.Errorf("result is missing ?%s: %v", name, b)
	}
	idx, err := strconv.Atoi(t.Value)
	if err != nil || t.Kind != rdf.KindLiteral {
		return 0, fmt.Errorf("result has invalid ?%s: %v", name, t)
	}
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("result has out of range ?%s %d (batch of %d)", name, idx, n)
	}
	return idx, nil
}

// FlatMap calls open for each result of outer and returns the concatenation
// of the iterators it opens, each read to its end before the next result of
// outer is pulled. Closing the returned iterator closes outer and the
// current inner iterator.
func FlatMap(outer Iterator, open func(binding.Set) (Iterator, error)) Iterator {
	var inner Iterator
	next := func() (binding.Set, bool, error) {
		for {
			if inner != nil {
				if inner.Next() {
					return inner.Binding(), true, nil
				}
				err := errors.Any(inner.Err(), inner.Close())
				inner = nil
				if err != nil {
					return binding.Set{}, false, err
				}
			}
			if !outer.Next() {
				return binding.Set{}, false, outer.Err()
			}
			it, err := open(outer.Binding())
			if err != nil {
				return binding.Set{}, false, err
			}
			inner = it
		}
	}
	close := func() error {
		var err error
		if inner != nil {
			err = inner.Close()
			inner = nil
		}
		return errors.Any(err, outer.Close())
	}
	return Func(next, close)
}
