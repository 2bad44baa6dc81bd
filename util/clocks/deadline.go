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

package clocks

import (
	"context"
	"time"
)

// WithDeadline returns a child of ctx that is canceled once 'source' reaches
// 'deadline', or when the returned cancel function is called. Unlike
// context.WithDeadline, the deadline follows the given Source, so a Mock can
// expire it. When the deadline passes, context.Cause of the child is
// context.DeadlineExceeded. A zero deadline means no deadline.
//
// Expired reports whether the context was canceled because the deadline
// passed.
func WithDeadline(ctx context.Context, source Source, deadline Time) (
	child context.Context, cancel context.CancelFunc, expired func() bool) {

	child, cancelCause := context.WithCancelCause(ctx)
	cancelChild := func() { cancelCause(nil) }
	if deadline.IsZero() {
		return child, cancelChild, func() bool { return false }
	}
	passed := make(chan struct{})
	alarm := source.NewAlarm()
	alarm.Set(deadline)
	go func() {
		select {
		case <-alarm.WaitCh():
			close(passed)
			cancelCause(context.DeadlineExceeded)
		case <-child.Done():
		}
		alarm.Stop()
	}()
	expired = func() bool {
		select {
		case <-passed:
			return true
		default:
			return false
		}
	}
	return child, cancelChild, expired
}

// Remaining returns how long until 'deadline' according to 'source', or a
// negative duration if it has passed. A zero deadline returns the maximum
// duration.
func Remaining(source Source, deadline Time) time.Duration {
	if deadline.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return deadline.Sub(source.Now())
}
