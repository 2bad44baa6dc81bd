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

// Package parallel is a utility package for running parallel/concurrent tasks.
// It is used to fan out work across federation members.
package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Invoke runs the given callbacks concurrently in a child of 'ctx'. If any of
// the callbacks returns an error, Invoke cancels this child context, waits for
// the remaining callbacks to complete, and returns the first error.
func Invoke(ctx context.Context, calls ...func(ctx context.Context) error) error {
	return InvokeN(ctx, len(calls), 0,
		func(ctx context.Context, i int) error {
			return calls[i](ctx)
		})
}

// InvokeN runs the given callback 'n' times, with i=0, i=1, ..., i=n-1, in a
// child of 'ctx'. If any of the callbacks returns an error, InvokeN cancels
// the child context, waits for the running callbacks to complete, and returns
// the first error.
//
// With limit <= 0 all the callbacks are started at once. Otherwise at most
// 'limit' callbacks run concurrently, and callbacks that have not started
// when the child context is canceled are skipped.
func InvokeN(ctx context.Context, n int, limit int, call func(ctx context.Context, i int) error) error {
	group, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		group.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		i := i
		if limit > 0 && ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			if limit > 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			return call(ctx, i)
		})
	}
	return group.Wait()
}

// Map calls fn for each of 'in' concurrently, with at most 'limit' calls
// running at once, and returns the results in input order. It returns the
// first error, if any.
func Map[In, Out any](ctx context.Context, in []In, limit int,
	fn func(ctx context.Context, item In) (Out, error)) ([]Out, error) {

	res := make([]Out, len(in))
	err := InvokeN(ctx, len(in), limit, func(ctx context.Context, i int) error {
		out, err := fn(ctx, in[i])
		res[i] = out
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Go is like the 'go' keyword but returns a function that blocks until the
// goroutine exits. It's safe to call the returned wait function multiple
// times.
func Go(run func()) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		run()
	}()
	return func() {
		<-done
	}
}

// GoCaptureError is like Go, but the wait function returns the error that
// 'run' returned. Every call to wait reports the same result.
func GoCaptureError(run func() error) (wait func() error) {
	var err error
	waitDone := Go(func() {
		err = run()
	})
	return func() error {
		waitDone()
		return err
	}
}
