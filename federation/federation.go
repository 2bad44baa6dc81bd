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

// Package federation holds the registry of member stores that together form
// one logical dataset, along with the settings and the worker scheduler shared
// by every query evaluated against them.
package federation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/query/sched"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/util/clocks"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Settings are the federation-wide options.
type Settings struct {
	// If true, members share no data and results are never de-duplicated
	// across members.
	Distinct bool
	// If true, writes and namespace changes are rejected.
	ReadOnly bool
	// Predicate IRI prefixes whose statements are identical on every member.
	LocalPropertySpace []string

	// The number of scheduler workers.
	Workers int
	// The time a query may run; <= 0 means no limit.
	MaxExecutionTime time.Duration
	// Bound joins send InitialBoundJoinBlockSize left bindings per request
	// until more than BoundJoinRampThreshold have been seen, then
	// BoundJoinBlockSize.
	BoundJoinBlockSize        int
	InitialBoundJoinBlockSize int
	BoundJoinRampThreshold    int
	// Hash joins read the left side in blocks of HashJoinInitialBlockSize
	// growing to HashJoinMaxBlockSize.
	HashJoinInitialBlockSize int
	HashJoinMaxBlockSize     int
	// The time allowed for one source selection probe.
	SourceSelectionTimeout time.Duration

	// Clock is used for query deadlines. Defaults to clocks.Wall.
	Clock clocks.Source
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Workers:                   25,
		MaxExecutionTime:          60 * time.Second,
		BoundJoinBlockSize:        15,
		InitialBoundJoinBlockSize: 3,
		BoundJoinRampThreshold:    10,
		HashJoinInitialBlockSize:  10,
		HashJoinMaxBlockSize:      100,
		SourceSelectionTimeout:    5 * time.Second,
		Clock:                     clocks.Wall,
	}
}

// A Federation is an ordered set of members presented as one dataset. The
// member list is fixed at construction. Init must be called before use and
// Shutdown at the end; a federation that was shut down stays shut down.
type Federation struct {
	members    []*Member
	byID       map[string]*Member
	settings   Settings
	localProps *PrefixHashSet

	// Advanced each time a connection picks its write member.
	writeCursor atomic.Uint64

	lock sync.Mutex
	// Protected by 'lock'.
	locked struct {
		state State
		sched *sched.Scheduler
	}
}

// New returns an uninitialized federation of the given members.
func New(members []*Member, settings Settings) (*Federation, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("a federation needs at least one member")
	}
	if settings.Workers <= 0 {
		return nil, fmt.Errorf("a federation needs at least one worker, got %d", settings.Workers)
	}
	if settings.Clock == nil {
		settings.Clock = clocks.Wall
	}
	f := &Federation{
		members:    append([]*Member(nil), members...),
		byID:       make(map[string]*Member, len(members)),
		settings:   settings,
		localProps: NewPrefixHashSet(settings.LocalPropertySpace),
	}
	for _, m := range members {
		if _, dup := f.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate member id %q", m.ID)
		}
		f.byID[m.ID] = m
	}
	return f, nil
}

// Members returns the members in configuration order. The caller must not
// modify the returned slice.
func (f *Federation) Members() []*Member {
	return f.members
}

// Member returns the member with the given id.
func (f *Federation) Member(id string) (*Member, bool) {
	m, ok := f.byID[id]
	return m, ok
}

// MemberIDs returns the ids of all the members, in order.
func (f *Federation) MemberIDs() []string {
	ids := make([]string, len(f.members))
	for i, m := range f.members {
		ids[i] = m.ID
	}
	return ids
}

// WritableMembers returns the members that accept statements, in order.
func (f *Federation) WritableMembers() []*Member {
	var res []*Member
	for _, m := range f.members {
		if m.Writable {
			res = append(res, m)
		}
	}
	return res
}

// Settings returns the federation's settings.
func (f *Federation) Settings() Settings {
	return f.settings
}

// Distinct returns true if the members are known to share no data.
func (f *Federation) Distinct() bool {
	return f.settings.Distinct
}

// ReadOnly returns true if the federation rejects writes.
func (f *Federation) ReadOnly() bool {
	return f.settings.ReadOnly
}

// IsLocalProperty returns true if pred is an IRI in the local property space:
// its statements are identical on every member.
func (f *Federation) IsLocalProperty(pred rdf.Term) bool {
	return pred.IsIRI() && f.localProps.Match(pred.Value)
}

// NextWriteStart returns the index into WritableMembers() at which a new
// connection starts placing statements. Successive calls cycle through the
// writable members in order.
func (f *Federation) NextWriteStart() int {
	n := len(f.WritableMembers())
	if n == 0 {
		return 0
	}
	return int((f.writeCursor.Add(1) - 1) % uint64(n))
}

// State returns the lifecycle state of the federation.
func (f *Federation) State() State {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.locked.state
}

// Scheduler returns the worker scheduler. It returns an error unless the
// federation is initialized.
func (f *Federation) Scheduler() (*sched.Scheduler, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.locked.state != Initialized {
		return nil, fedxerr.Newf(fedxerr.QueryEvaluation, "scheduler",
			"federation is %v", f.locked.state)
	}
	return f.locked.sched, nil
}

// Init initializes all the members in parallel and starts the scheduler. If
// any member fails, the members that did initialize are shut down again and
// the federation is left uninitialized.
func (f *Federation) Init(ctx context.Context) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	switch f.locked.state {
	case Initialized:
		return nil
	case ShutDown:
		return fedxerr.Newf(fedxerr.QueryEvaluation, "init", "federation is shut down")
	}
	s, err := sched.New(f.settings.Workers, f.settings.Clock)
	if err != nil {
		return err
	}
	wg, gctx := errgroup.WithContext(ctx)
	for _, m := range f.members {
		m := m
		wg.Go(func() error {
			return m.Init(gctx)
		})
	}
	if err := wg.Wait(); err != nil {
		s.Close()
		for _, m := range f.members {
			if m.State() == Initialized {
				m.lock.Lock()
				f.resetLocked(m)
				m.lock.Unlock()
			}
		}
		return err
	}
	f.locked.sched = s
	f.locked.state = Initialized
	log.WithFields(log.Fields{
		"members":  len(f.members),
		"writable": len(f.WritableMembers()),
		"workers":  f.settings.Workers,
		"distinct": f.settings.Distinct,
	}).Info("Federation initialized")
	return nil
}

// resetLocked undoes a member's Init after a sibling failed, so that a later
// Init can try again. It must be called with m.lock held.
func (f *Federation) resetLocked(m *Member) {
	if m.locked.managed != nil {
		m.locked.managed.Close()
		m.locked.managed = nil
	}
	m.locked.state = Uninitialized
}

// Shutdown stops the scheduler and shuts down every member in parallel. It
// returns the first error; all members are shut down regardless.
func (f *Federation) Shutdown() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.locked.state == ShutDown {
		return nil
	}
	f.locked.state = ShutDown
	if f.locked.sched != nil {
		f.locked.sched.Close()
		f.locked.sched = nil
	}
	var wg errgroup.Group
	for _, m := range f.members {
		m := m
		wg.Go(m.Shutdown)
	}
	err := wg.Wait()
	log.WithField("error", err).Info("Federation shut down")
	return err
}
