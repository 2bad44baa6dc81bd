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

// Package sched is the controlled worker scheduler: a bounded-concurrency,
// FIFO task runner used by the parallel join strategies. Each task produces a
// stream of binding sets rather than a single value; a worker drains the
// task's stream into the result queue of the group the task belongs to.
//
// An Execution is created per top-level query. It carries the query deadline
// and indexes the Groups it spawned by id. A Group is created per parallel
// join: it counts outstanding tasks, owns the join's result queue and records
// the first task failure. Tasks refer to their execution and group by id only,
// so an abandoned execution can be collected while its tasks sit in the queue.
package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/util/clocks"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
)

// TaskFunc is the work of one task: it evaluates a sub-query and returns its
// results. ctx is canceled when the task's group is canceled or the query's
// deadline passes.
type TaskFunc func(ctx context.Context) (iter.Iterator, error)

// Scheduler runs tasks with at most a fixed number running concurrently.
// Waiting tasks start in the order they were scheduled.
type Scheduler struct {
	clock clocks.Source
	pool  *ants.Pool
	// executions indexes the live executions by id.
	executions *xsync.MapOf[string, *Execution]

	lock sync.Mutex
	// Signaled when pending grows or closed is set.
	cond    *sync.Cond
	pending []task
	closed  bool

	dispatcherDone func()
}

type task struct {
	exec   string
	group  uint64
	run    TaskFunc
	queued time.Time
}

// New returns a Scheduler running at most 'workers' tasks at once. The clock
// is used for query deadlines. Close must be called to stop it.
func New(workers int, clock clocks.Source) (*Scheduler, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("scheduler needs at least one worker, got %d", workers)
	}
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(v any) {
		log.WithField("panic", v).Error("Scheduler worker panic")
	}))
	if err != nil {
		return nil, fmt.Errorf("unable to create worker pool: %v", err)
	}
	s := &Scheduler{
		clock:      clock,
		pool:       pool,
		executions: xsync.NewMapOf[string, *Execution](),
	}
	s.cond = sync.NewCond(&s.lock)
	s.dispatcherDone = goDispatch(s)
	metrics.workers.Set(float64(workers))
	return s, nil
}

func goDispatch(s *Scheduler) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.dispatch()
	}()
	return func() { <-done }
}

// Workers returns the maximum number of concurrently running tasks.
func (s *Scheduler) Workers() int {
	return s.pool.Cap()
}

// Close stops the scheduler. Tasks that have not started are skipped as
// canceled; running tasks are not waited for.
func (s *Scheduler) Close() {
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return
	}
	s.closed = true
	s.cond.Broadcast()
	s.lock.Unlock()
	// Release wakes a dispatcher blocked in Submit.
	s.pool.Release()
	s.dispatcherDone()
}

func (s *Scheduler) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

// Schedule adds a task for group g to the end of the queue. It panics if
// InformFinish has already been called for g.
func (s *Scheduler) Schedule(g *Group, run TaskFunc) {
	g.taskAdded()
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		g.taskDone(fedxerr.New(fedxerr.QueryEvaluation, "schedule", fmt.Errorf("scheduler is closed")))
		return
	}
	s.pending = append(s.pending, task{
		exec:   g.exec.id,
		group:  g.id,
		run:    run,
		queued: s.clock.Now(),
	})
	metrics.queued.Inc()
	s.cond.Signal()
	s.lock.Unlock()
}

// InformFinish tells the scheduler that no more tasks will be scheduled for
// g. Once g's outstanding tasks complete, its result stream ends and its
// bookkeeping is released.
func (s *Scheduler) InformFinish(g *Group) {
	g.informFinish()
}

// dispatch hands queued tasks to the pool in FIFO order. Submit blocks while
// all workers are busy, which is what keeps the order strict.
func (s *Scheduler) dispatch() {
	for {
		s.lock.Lock()
		for len(s.pending) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			pending := s.pending
			s.pending = nil
			s.lock.Unlock()
			for _, t := range pending {
				metrics.queued.Dec()
				s.skip(t, "scheduler closed")
			}
			return
		}
		t := s.pending[0]
		s.pending[0] = task{}
		s.pending = s.pending[1:]
		s.lock.Unlock()
		metrics.queued.Dec()
		err := s.pool.Submit(func() { s.run(t) })
		switch {
		case err == nil:
		case errors.Is(err, ants.ErrPoolClosed) || s.isClosed():
			s.skip(t, "scheduler closed")
		default:
			s.fail(t, fedxerr.New(fedxerr.QueryEvaluation, "schedule", err))
		}
	}
}

func (s *Scheduler) lookup(t task) *Group {
	exec, ok := s.executions.Load(t.exec)
	if !ok {
		return nil
	}
	return exec.group(t.group)
}

func (s *Scheduler) skip(t task, reason string) {
	metrics.skipped.WithLabelValues(reason).Inc()
	if g := s.lookup(t); g != nil {
		g.taskDone(nil)
	}
}

func (s *Scheduler) fail(t task, err error) {
	if g := s.lookup(t); g != nil {
		g.taskDone(err)
	}
}

// run executes a task on a worker goroutine.
func (s *Scheduler) run(t task) {
	g := s.lookup(t)
	if g == nil {
		metrics.skipped.WithLabelValues("execution closed").Inc()
		return
	}
	if g.ctx.Err() != nil {
		s.skip(t, "canceled")
		return
	}
	if g.exec.deadlinePassed() {
		// Expired before starting: dropped, not failed.
		s.skip(t, "deadline passed")
		return
	}
	metrics.queueWait.Observe(s.clock.Now().Sub(t.queued).Seconds())
	metrics.running.Inc()
	start := s.clock.Now()
	err := runTask(g, t.run)
	metrics.running.Dec()
	metrics.taskSeconds.Observe(s.clock.Now().Sub(start).Seconds())
	if err != nil {
		switch {
		case g.exec.deadlinePassed():
			metrics.timeouts.Inc()
			err = fedxerr.New(fedxerr.SchedulerTimeout, "task", err)
		case g.ctx.Err() != nil:
			// The group was already canceled or failed.
			err = nil
		}
	}
	g.taskDone(err)
}

// runTask evaluates the task and drains its results into g's queue. It
// returns nil if the queue stopped accepting results because the group was
// canceled or closed by its consumer.
func runTask(g *Group, run TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fedxerr.Newf(fedxerr.QueryEvaluation, "task", "task panicked: %v", r)
		}
	}()
	results, err := run(g.ctx)
	if err != nil {
		return err
	}
	accepted, err := g.queue.PushAll(results)
	if !accepted {
		if g.exec.deadlinePassed() {
			return context.DeadlineExceeded
		}
		return nil
	}
	return err
}

// Execution is the scheduling context of one top-level query: its deadline,
// its cancellation and the groups of tasks it spawned.
type Execution struct {
	id    string
	sched *Scheduler
	// ctx is canceled by Close, by the parent context or once the deadline
	// passes.
	ctx      context.Context
	cancel   context.CancelFunc
	expired  func() bool
	deadline time.Time

	lock      sync.Mutex
	groups    map[uint64]*Group
	nextGroup uint64
	closed    bool
}

// NewExecution starts the scheduling context of a query that may run for at
// most maxTime; maxTime <= 0 means no limit. Close must be called when the
// query is done.
func (s *Scheduler) NewExecution(ctx context.Context, maxTime time.Duration) *Execution {
	var deadline time.Time
	if maxTime > 0 {
		deadline = s.clock.Now().Add(maxTime)
	}
	e := &Execution{
		id:       uuid.NewString(),
		sched:    s,
		deadline: deadline,
		groups:   make(map[uint64]*Group),
	}
	e.ctx, e.cancel, e.expired = clocks.WithDeadline(ctx, s.clock, deadline)
	s.executions.Store(e.id, e)
	metrics.executions.Inc()
	return e
}

// ID returns the unique id of the execution, used in logs.
func (e *Execution) ID() string {
	return e.id
}

// Context returns the context of the execution. It is canceled when the
// execution is closed or its deadline passes.
func (e *Execution) Context() context.Context {
	return e.ctx
}

// Deadline returns the time by which the query must finish, or the zero time
// if it has no limit.
func (e *Execution) Deadline() time.Time {
	return e.deadline
}

// Remaining returns the time left before the deadline.
func (e *Execution) Remaining() time.Duration {
	return clocks.Remaining(e.sched.clock, e.deadline)
}

// deadlinePassed returns true if the query ran out of time.
func (e *Execution) deadlinePassed() bool {
	if e.expired() {
		return true
	}
	return !e.deadline.IsZero() && !e.sched.clock.Now().Before(e.deadline)
}

// Close cancels every outstanding task of the execution and releases its
// bookkeeping. It is idempotent.
func (e *Execution) Close() {
	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		return
	}
	e.closed = true
	groups := e.groups
	e.groups = nil
	e.lock.Unlock()
	e.cancel()
	for _, g := range groups {
		g.Cancel()
	}
	e.sched.executions.Delete(e.id)
	metrics.executions.Dec()
}

func (e *Execution) group(id uint64) *Group {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.groups[id]
}

func (e *Execution) release(g *Group) {
	e.lock.Lock()
	delete(e.groups, g.id)
	e.lock.Unlock()
}

// NewGroup creates a group of tasks whose results are delivered to one
// stream. At most 'capacity' results are buffered before workers block;
// capacity <= 0 means unbounded.
func (e *Execution) NewGroup(capacity int) *Group {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.nextGroup++
	ctx, cancel := context.WithCancelCause(e.ctx)
	g := &Group{
		id:     e.nextGroup,
		exec:   e,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	g.queue = iter.NewQueue(ctx, capacity, g.Cancel)
	if e.closed {
		cancel(context.Canceled)
	} else {
		e.groups[g.id] = g
	}
	return g
}

// Group tracks the tasks of one parallel join.
type Group struct {
	id     uint64
	exec   *Execution
	ctx    context.Context
	cancel context.CancelCauseFunc
	queue  *iter.Queue

	lock        sync.Mutex
	outstanding int
	finishing   bool
	err         error
	// done is closed once finishing is set and outstanding drops to 0.
	done chan struct{}
}

// Context returns the group's context, which is canceled when the group is.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Results returns the group's result stream. Results arrive in task
// completion order. Closing it cancels the group's outstanding tasks.
func (g *Group) Results() iter.Iterator {
	return &results{Queue: g.queue, group: g, exec: g.exec}
}

// Outstanding returns the number of tasks scheduled that haven't completed.
func (g *Group) Outstanding() int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.outstanding
}

// Err returns the first task failure, if any.
func (g *Group) Err() error {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.err
}

// Fail records err as the group's failure if it's the first, cancels the
// remaining tasks and ends the result stream with err.
func (g *Group) Fail(err error) {
	g.lock.Lock()
	first := g.err == nil
	if first {
		g.err = err
	}
	g.lock.Unlock()
	if first {
		g.queue.Finish(err)
		g.cancel(err)
	}
}

// Cancel cancels the group's tasks: those not yet started are skipped and
// running ones see their context canceled. It is idempotent.
func (g *Group) Cancel() {
	g.cancel(context.Canceled)
}

// Wait blocks until every scheduled task has completed after InformFinish,
// or the group is canceled, or the query's deadline passes. It returns the
// first task failure, a SchedulerTimeout error if the deadline passed first,
// or nil.
func (g *Group) Wait() error {
	select {
	case <-g.done:
		return g.Err()
	case <-g.ctx.Done():
		if g.exec.deadlinePassed() {
			err := fedxerr.New(fedxerr.SchedulerTimeout, "wait",
				fmt.Errorf("query exceeded its maximum execution time with %d tasks outstanding", g.Outstanding()))
			g.Fail(err)
			return g.Err()
		}
		return g.Err()
	}
}

func (g *Group) taskAdded() {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.finishing {
		panic("sched: task scheduled after InformFinish")
	}
	g.outstanding++
}

func (g *Group) taskDone(err error) {
	if err != nil {
		g.Fail(err)
	}
	g.lock.Lock()
	g.outstanding--
	finished := g.finishing && g.outstanding == 0
	g.lock.Unlock()
	if finished {
		g.finish()
	}
}

func (g *Group) informFinish() {
	g.lock.Lock()
	if g.finishing {
		g.lock.Unlock()
		return
	}
	g.finishing = true
	finished := g.outstanding == 0
	g.lock.Unlock()
	if finished {
		g.finish()
	}
}

func (g *Group) finish() {
	g.queue.Finish(nil)
	close(g.done)
	g.exec.release(g)
}

// results classifies the errors of a group's queue.
type results struct {
	*iter.Queue
	group *Group
	exec  *Execution
}

// Close cancels the group before closing the queue, so that no further task
// starts once the consumer has gone.
func (r *results) Close() error {
	r.group.Cancel()
	return r.Queue.Close()
}

func (r *results) Err() error {
	err := r.Queue.Err()
	if err == nil {
		return nil
	}
	if r.exec.deadlinePassed() {
		return fedxerr.Wrap(fedxerr.SchedulerTimeout, "evaluate", err)
	}
	return fedxerr.Wrap(fedxerr.QueryEvaluation, "evaluate", err)
}
