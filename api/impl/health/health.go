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

// Package health periodically checks that the members of a federation answer
// and caches the latest report.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/util/clocks"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// How often to check the members when they were all healthy.
	checkInterval = time.Minute
	// How often to check the members when some were not.
	recheckInterval = 10 * time.Second
	// How long a single member may take to answer.
	probeTimeout = 5 * time.Second
)

// An alias for the normal clock. This is swapped out for some unit tests.
var clock = clocks.Wall

// Status is the outcome of checking one member.
type Status struct {
	Member  string    `json:"member"`
	Healthy bool      `json:"healthy"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Report is the outcome of checking every member, in member order.
type Report []Status

// Healthy returns true if every member answered.
func (r Report) Healthy() bool {
	for _, s := range r {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// CheckFunc checks the members. It returns a non-nil error only if nothing
// could be checked, such as when ctx ends.
type CheckFunc func(ctx context.Context) (Report, error)

// A Checker periodically checks the members and caches the report.
type Checker struct {
	// Same as passed to NewChecker.
	check CheckFunc
	// ready is closed once the first check completes. If ready is closed,
	// latest is not nil.
	ready chan struct{}
	// Protects changes to 'latest' (not the value).
	mutex  sync.Mutex
	latest Report
}

// NewChecker constructs a new Checker. The caller should subsequently call
// Run.
func NewChecker(check CheckFunc) *Checker {
	return &Checker{
		check: check,
		ready: make(chan struct{}),
	}
}

// Last blocks until a report is available, then returns the latest one. The
// returned report is shared and must not be modified. Otherwise, Last returns
// a context error.
func (c *Checker) Last(ctx context.Context) (Report, error) {
	select {
	case <-c.ready:
		return c.getLatest(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// getLatest returns the latest report without blocking. It returns nil if no
// check has completed yet.
func (c *Checker) getLatest() Report {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.latest
}

// Run is a long-running blocking call that periodically checks the members.
// It exits once ctx is closed.
func (c *Checker) Run(ctx context.Context) {
	for ctx.Err() == nil {
		report, err := c.check(ctx)
		if err != nil {
			logrus.WithError(err).Warn("Checking member health failed")
			sleepUntil(ctx, clock.Now().Add(recheckInterval))
			continue
		}
		if report == nil {
			report = Report{}
		}
		for _, s := range report {
			healthy := 0.0
			if s.Healthy {
				healthy = 1
			}
			metrics.memberHealthy.WithLabelValues(s.Member).Set(healthy)
		}

		c.mutex.Lock()
		if c.latest == nil {
			close(c.ready)
		}
		c.latest = report
		c.mutex.Unlock()

		interval := checkInterval
		if !report.Healthy() {
			interval = recheckInterval
		}
		nextAt := clock.Now().Add(interval)
		logrus.WithFields(logrus.Fields{
			"healthy": report.Healthy(),
			"next":    nextAt,
		}).Debug("Checked member health")
		sleepUntil(ctx, nextAt)
	}
}

func sleepUntil(ctx context.Context, wake clocks.Time) {
	alarm := clock.NewAlarm()
	defer alarm.Stop()
	alarm.Set(wake)
	select {
	case <-alarm.WaitCh():
	case <-ctx.Done():
	}
}

// ProbeMembers returns a CheckFunc that asks every member of fed for its
// namespaces, all at once.
func ProbeMembers(fed *federation.Federation) CheckFunc {
	return func(ctx context.Context) (Report, error) {
		members := fed.Members()
		report := make(Report, len(members))
		group, groupCtx := errgroup.WithContext(ctx)
		for i, m := range members {
			i, m := i, m
			group.Go(func() error {
				err := probe(groupCtx, m)
				report[i] = Status{
					Member:  m.ID,
					Healthy: err == nil,
					At:      clock.Now(),
				}
				if err != nil {
					report[i].Error = err.Error()
				}
				return nil
			})
		}
		group.Wait()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return report, nil
	}
}

func probe(ctx context.Context, m *federation.Member) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	conn, release, err := m.Borrow(ctx)
	if err != nil {
		return err
	}
	defer release()
	_, err = conn.Namespaces(ctx)
	return err
}
