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

package federation

import (
	"context"
	"fmt"
	"sync"

	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/source"
	log "github.com/sirupsen/logrus"
)

// Kind classifies a member by where its data lives.
type Kind int

// Kind values.
const (
	// Local members are stores in this process.
	Local Kind = iota
	// Remote members are reached over the network.
	Remote
)

func (k Kind) String() string {
	switch k {
	case Local:
		return "local"
	case Remote:
		return "remote"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// State is the lifecycle state of a member or a federation. It only moves
// forward: a shut down member is never initialized again.
type State int

// State values.
const (
	Uninitialized State = iota
	Initialized
	ShutDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case ShutDown:
		return "shut down"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MemberInfo describes a member.
type MemberInfo struct {
	// ID is unique within a federation. It is the owner name used in plans.
	ID string
	// Name is for humans.
	Name string
	// Address is the endpoint URL or file of the member, if it has one.
	Address  string
	Kind     Kind
	Writable bool
	// Managed selects one long-lived read connection, shared by all
	// borrowers, instead of a fresh connection per Borrow.
	Managed bool
}

// A Member is one store of the federation. The Member owns its repository
// and, for managed members, the shared connection.
type Member struct {
	MemberInfo
	repo source.Repository

	lock sync.Mutex
	// Protected by 'lock'.
	locked struct {
		state State
		// The managed connection, opened by Init. Nil unless Managed.
		managed source.Conn
	}
}

// NewMember returns an uninitialized member reading from repo.
func NewMember(info MemberInfo, repo source.Repository) *Member {
	if info.Name == "" {
		info.Name = info.ID
	}
	return &Member{MemberInfo: info, repo: repo}
}

func (m *Member) String() string {
	return fmt.Sprintf("%s (%s)", m.ID, m.Kind)
}

// State returns the lifecycle state of the member.
func (m *Member) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.locked.state
}

// Init prepares the member for use. For managed members, it opens the shared
// connection. Init on an initialized member does nothing.
func (m *Member) Init(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	switch m.locked.state {
	case Initialized:
		return nil
	case ShutDown:
		return fedxerr.WrapMember(fedxerr.MemberFailure, "init", m.ID,
			fmt.Errorf("member is shut down"))
	}
	if m.Managed {
		conn, err := m.repo.Open(ctx)
		if err != nil {
			return fedxerr.WrapMember(fedxerr.MemberFailure, "init", m.ID, err)
		}
		m.locked.managed = conn
	}
	m.locked.state = Initialized
	return nil
}

// Shutdown closes the managed connection and the repository. The member
// can't be used afterwards.
func (m *Member) Shutdown() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.locked.state == ShutDown {
		return nil
	}
	m.locked.state = ShutDown
	var err error
	if m.locked.managed != nil {
		err = m.locked.managed.Close()
		m.locked.managed = nil
	}
	if cerr := m.repo.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fedxerr.WrapMember(fedxerr.MemberFailure, "shutdown", m.ID, err)
	}
	return nil
}

func noRelease() {}

// Borrow returns a connection for reading. The caller must call release
// exactly once when done with the connection, and must not close it itself:
// for managed members the connection is shared and only Shutdown closes it.
func (m *Member) Borrow(ctx context.Context) (conn source.Conn, release func(), err error) {
	m.lock.Lock()
	state, managed := m.locked.state, m.locked.managed
	m.lock.Unlock()
	if state != Initialized {
		return nil, nil, fedxerr.WrapMember(fedxerr.MemberFailure, "borrow", m.ID,
			fmt.Errorf("member is %v", state))
	}
	metrics.borrowed.WithLabelValues(m.ID).Inc()
	if managed != nil {
		return managed, noRelease, nil
	}
	conn, err = m.repo.Open(ctx)
	if err != nil {
		return nil, nil, fedxerr.WrapMember(fedxerr.MemberFailure, "borrow", m.ID, err)
	}
	metrics.openConns.WithLabelValues(m.ID).Inc()
	var once sync.Once
	release = func() {
		once.Do(func() {
			metrics.openConns.WithLabelValues(m.ID).Dec()
			if err := conn.Close(); err != nil {
				log.WithFields(log.Fields{
					"member": m.ID,
					"error":  err,
				}).Warn("Error closing member connection")
			}
		})
	}
	return conn, release, nil
}

// Open returns a fresh connection owned by the caller, used for writes and
// transactions. The caller must close it.
func (m *Member) Open(ctx context.Context) (source.Conn, error) {
	if state := m.State(); state != Initialized {
		return nil, fedxerr.WrapMember(fedxerr.MemberFailure, "open", m.ID,
			fmt.Errorf("member is %v", state))
	}
	conn, err := m.repo.Open(ctx)
	if err != nil {
		return nil, fedxerr.WrapMember(fedxerr.MemberFailure, "open", m.ID, err)
	}
	return conn, nil
}
