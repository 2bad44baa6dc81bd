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
	"context"
	"sync"

	"github.com/ebay/fedx/query/binding"
)

// Queue is an Iterator fed by producers running on other goroutines. Its
// consumer side (the Iterator methods) must be used from a single goroutine;
// Push and Finish may be called concurrently from any number of producers.
//
// Results are delivered in the order they are pushed. The first error passed
// to Finish ends the iteration immediately, discarding buffered results.
type Queue struct {
	ctx      context.Context
	capacity int
	onClose  func()

	lock     sync.Mutex
	items    []binding.Set
	err      error
	finished bool
	closed   bool

	// notEmpty receives a value when a result is pushed or the queue is
	// finished.
	notEmpty chan struct{}
	// notFull receives a value when a result is consumed.
	notFull chan struct{}
	// closedCh is closed when the consumer closes the queue.
	closedCh chan struct{}
	// finishedCh is closed by the first call to Finish.
	finishedCh chan struct{}

	cur    binding.Set
	closer closeOnce
}

// NewQueue returns an empty Queue. Push blocks while 'capacity' results are
// buffered; a capacity <= 0 means unbounded. If ctx is done, Next stops with
// context.Cause(ctx) as the error. onClose, if not nil, is called once when
// the consumer closes the queue, and is used to cancel the producers.
func NewQueue(ctx context.Context, capacity int, onClose func()) *Queue {
	return &Queue{
		ctx:      ctx,
		capacity: capacity,
		onClose:  onClose,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		closedCh: make(chan struct{}),

		finishedCh: make(chan struct{}),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Push adds a result to the queue, blocking while the queue is full. It
// returns false if the consumer has closed the queue, the queue has
// finished, or the queue's context is done; the producer should then stop.
func (q *Queue) Push(b binding.Set) bool {
	for {
		q.lock.Lock()
		if q.closed || q.finished {
			q.lock.Unlock()
			return false
		}
		if q.capacity <= 0 || len(q.items) < q.capacity {
			q.items = append(q.items, b)
			q.lock.Unlock()
			signal(q.notEmpty)
			return true
		}
		q.lock.Unlock()
		select {
		case <-q.notFull:
		case <-q.closedCh:
			return false
		case <-q.finishedCh:
			return false
		case <-q.ctx.Done():
			return false
		}
	}
}

// PushAll reads it to the end, pushing every result, and closes it. It
// returns its error, or false in 'ok' if the queue stopped accepting
// results first.
func (q *Queue) PushAll(it Iterator) (ok bool, err error) {
	ok = true
	for it.Next() {
		if !q.Push(it.Binding()) {
			ok = false
			break
		}
	}
	if ok {
		err = it.Err()
	}
	if closeErr := it.Close(); err == nil {
		err = closeErr
	}
	return ok, err
}

// Finish marks the end of the results. A non-nil err fails the iteration;
// only the first error is kept. Calls after the first non-nil error, or
// after a successful Finish, have no effect except to record an error.
func (q *Queue) Finish(err error) {
	q.lock.Lock()
	if err != nil && q.err == nil {
		q.err = err
		q.items = nil
	}
	if !q.finished {
		q.finished = true
		close(q.finishedCh)
	}
	q.lock.Unlock()
	signal(q.notEmpty)
}

// Next implements Iterator.Next.
func (q *Queue) Next() bool {
	for {
		q.lock.Lock()
		if q.closed || q.err != nil {
			q.lock.Unlock()
			q.cur = binding.Set{}
			return false
		}
		if len(q.items) > 0 {
			q.cur = q.items[0]
			q.items[0] = binding.Set{}
			q.items = q.items[1:]
			q.lock.Unlock()
			signal(q.notFull)
			return true
		}
		if q.finished {
			q.lock.Unlock()
			q.cur = binding.Set{}
			return false
		}
		q.lock.Unlock()
		select {
		case <-q.notEmpty:
		case <-q.ctx.Done():
			q.Finish(context.Cause(q.ctx))
		}
	}
}

// Binding implements Iterator.Binding.
func (q *Queue) Binding() binding.Set { return q.cur }

// Err implements Iterator.Err. It returns the error given to Finish, or the
// context's cause, unwrapped; the owner of the queue classifies it.
func (q *Queue) Err() error {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.err
}

// Close implements Iterator.Close. Closing the queue discards buffered
// results, unblocks producers and calls the onClose function.
func (q *Queue) Close() error {
	return q.closer.do(func() error {
		q.lock.Lock()
		q.closed = true
		q.items = nil
		q.lock.Unlock()
		close(q.closedCh)
		if q.onClose != nil {
			q.onClose()
		}
		return nil
	})
}
