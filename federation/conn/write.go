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

package conn

import (
	"context"
	goerrors "errors"
	"fmt"

	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	log "github.com/sirupsen/logrus"
)

// startWrite locks c for a write and returns the writable members. The
// caller must unlock c.lock if it returns nil error.
func (c *Conn) startWrite(op string) ([]*federation.Member, error) {
	fed := c.engine.fed
	if fed.ReadOnly() {
		return nil, fedxerr.Newf(fedxerr.WriteRejected, op, "federation is read-only")
	}
	members := fed.WritableMembers()
	if len(members) == 0 {
		return nil, fedxerr.Newf(fedxerr.WriteRejected, op, "federation has no writable members")
	}
	c.lock.Lock()
	if c.locked.closed {
		c.lock.Unlock()
		return nil, fedxerr.Newf(fedxerr.QueryEvaluation, op, "connection is closed")
	}
	metrics.writes.WithLabelValues(op).Inc()
	return members, nil
}

// memberConnLocked returns the write connection to m, opening it if needed.
// It must be called with c.lock held.
func (c *Conn) memberConnLocked(ctx context.Context, m *federation.Member) (source.Conn, error) {
	if conn, ok := c.locked.conns[m.ID]; ok {
		return conn, nil
	}
	conn, err := m.Open(ctx)
	if err != nil {
		return nil, err
	}
	c.locked.conns[m.ID] = conn
	return conn, nil
}

// echoLocked calls fn for each of members, even after some fail. It returns
// the members fn succeeded on. Once all have been attempted, the first
// storage failure is returned; otherwise the first other failure is returned.
// It must be called with c.lock held.
func (c *Conn) echoLocked(ctx context.Context, op string, members []*federation.Member,
	fn func(source.Conn) error) ([]*federation.Member, error) {
	var storageErr, runtimeErr error
	ok := make([]*federation.Member, 0, len(members))
	for _, m := range members {
		err := c.echoOne(ctx, m, fn)
		if err == nil {
			ok = append(ok, m)
			continue
		}
		log.WithFields(log.Fields{
			"op":     op,
			"member": m.ID,
			"error":  err,
		}).Warn("Member failed write operation")
		metrics.echoFailures.WithLabelValues(op).Inc()
		switch {
		case source.IsStorage(err):
			if storageErr == nil {
				storageErr = fedxerr.WrapMember(fedxerr.MemberFailure, op, m.ID, err)
			}
		case runtimeErr == nil:
			runtimeErr = fedxerr.WrapMember(fedxerr.QueryEvaluation, op, m.ID, err)
		}
	}
	if storageErr != nil {
		return ok, storageErr
	}
	return ok, runtimeErr
}

func (c *Conn) echoOne(ctx context.Context, m *federation.Member, fn func(source.Conn) error) (err error) {
	conn, err := c.memberConnLocked(ctx, m)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("member %s panicked: %v", m.ID, r)
		}
	}()
	return fn(conn)
}

// echo runs a write operation on every writable member.
func (c *Conn) echo(ctx context.Context, op string, fn func(source.Conn) error) error {
	members, err := c.startWrite(op)
	if err != nil {
		return err
	}
	defer c.lock.Unlock()
	_, err = c.echoLocked(ctx, op, members, fn)
	return err
}

// Begin starts a transaction on every writable member. If any member fails to
// begin, the transactions started on the others are rolled back.
func (c *Conn) Begin(ctx context.Context) error {
	members, err := c.startWrite("begin")
	if err != nil {
		return err
	}
	defer c.lock.Unlock()
	if c.locked.inTx {
		return fedxerr.Newf(fedxerr.QueryEvaluation, "begin", "a transaction is already active")
	}
	began, err := c.echoLocked(ctx, "begin", members, func(conn source.Conn) error {
		return conn.Begin(ctx)
	})
	if err != nil {
		if len(began) > 0 {
			// Rollback failures are only logged; the begin error is reported.
			c.echoLocked(ctx, "rollback", began, func(conn source.Conn) error {
				return conn.Rollback(ctx)
			})
		}
		return err
	}
	c.locked.inTx = true
	return nil
}

// Commit commits the transaction on every writable member.
func (c *Conn) Commit(ctx context.Context) error {
	return c.endTx(ctx, "commit", source.Conn.Commit)
}

// Rollback abandons the transaction on every writable member.
func (c *Conn) Rollback(ctx context.Context) error {
	return c.endTx(ctx, "rollback", source.Conn.Rollback)
}

func (c *Conn) endTx(ctx context.Context, op string, fn func(source.Conn, context.Context) error) error {
	members, err := c.startWrite(op)
	if err != nil {
		return err
	}
	defer c.lock.Unlock()
	if !c.locked.inTx {
		return fedxerr.Newf(fedxerr.QueryEvaluation, op, "no transaction is active")
	}
	c.locked.inTx = false
	_, err = c.echoLocked(ctx, op, members, func(conn source.Conn) error {
		return fn(conn, ctx)
	})
	c.engine.opt.Invalidate()
	return err
}

// AddStatement adds st to one writable member. Connections place their
// statements starting at different members in turn. If a member rejects the
// statement, the following members are tried; if they all reject it, the
// first rejection is returned.
func (c *Conn) AddStatement(ctx context.Context, st rdf.Statement) error {
	members, err := c.startWrite("add")
	if err != nil {
		return err
	}
	defer c.lock.Unlock()
	var rejection error
	for i := range members {
		m := members[(c.writeStart+i)%len(members)]
		conn, err := c.memberConnLocked(ctx, m)
		if err != nil {
			return err
		}
		err = conn.Add(ctx, st)
		if err == nil {
			if !c.locked.inTx {
				c.engine.opt.Invalidate()
			}
			return nil
		}
		if !goerrors.Is(err, source.ErrRejected) {
			return fedxerr.WrapMember(fedxerr.MemberFailure, "add", m.ID, err)
		}
		metrics.rejections.Inc()
		log.WithFields(log.Fields{
			"member":    m.ID,
			"statement": st,
			"error":     err,
		}).Debug("Member rejected statement, trying the next")
		if rejection == nil {
			rejection = fedxerr.WrapMember(fedxerr.WriteRejected, "add", m.ID, err)
		}
	}
	return rejection
}

// RemoveStatements removes the statements matching the pattern from every
// writable member.
func (c *Conn) RemoveStatements(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) error {
	err := c.echo(ctx, "remove", func(conn source.Conn) error {
		return conn.Remove(ctx, subj, pred, obj, contexts...)
	})
	c.lock.Lock()
	if !c.locked.inTx {
		c.engine.opt.Invalidate()
	}
	c.lock.Unlock()
	return err
}

// SetNamespace declares prefix on every writable member.
func (c *Conn) SetNamespace(ctx context.Context, prefix, name string) error {
	return c.echo(ctx, "setNamespace", func(conn source.Conn) error {
		return conn.SetNamespace(ctx, prefix, name)
	})
}

// RemoveNamespace removes prefix from every writable member.
func (c *Conn) RemoveNamespace(ctx context.Context, prefix string) error {
	return c.echo(ctx, "removeNamespace", func(conn source.Conn) error {
		return conn.RemoveNamespace(ctx, prefix)
	})
}

// ClearNamespaces removes every namespace from every writable member.
func (c *Conn) ClearNamespaces(ctx context.Context) error {
	return c.echo(ctx, "clearNamespaces", func(conn source.Conn) error {
		return conn.ClearNamespaces(ctx)
	})
}
