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

// Package sqlstore is a member store kept in a SQLite database. Terms are
// stored in their N-Triples form, one row per statement; transactions are
// SQL transactions.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/source/localeval"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS statements (
	subject   TEXT NOT NULL,
	predicate TEXT NOT NULL,
	object    TEXT NOT NULL,
	context   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (subject, predicate, object, context)
);
CREATE INDEX IF NOT EXISTS statements_po ON statements (predicate, object);
CREATE INDEX IF NOT EXISTS statements_o ON statements (object);
CREATE TABLE IF NOT EXISTS namespaces (
	prefix TEXT PRIMARY KEY,
	name   TEXT NOT NULL
);
`

// Store is a SQLite backed repository.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path. The path ":memory:" gives a
// private in-memory database; it is limited to a single connection, so an
// open transaction blocks the store's other connections.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create schema in %s: %w", path, err)
	}
	log.WithField("path", path).Debug("Opened sqlite store")
	return &Store{db: db, path: path}, nil
}

// Open implements source.Repository.
func (s *Store) Open(ctx context.Context) (source.Conn, error) {
	return &conn{db: s.db}, nil
}

// Close implements source.Repository.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load adds statements in one transaction, applying the same checks as
// Conn.Add. It is meant for seeding stores.
func (s *Store) Load(ctx context.Context, sts ...rdf.Statement) error {
	c := &conn{db: s.db}
	if err := c.Begin(ctx); err != nil {
		return err
	}
	for _, st := range sts {
		if err := c.Add(ctx, st); err != nil {
			c.Rollback(ctx)
			return err
		}
	}
	return c.Commit(ctx)
}

// querier is the subset of *sql.DB and *sql.Tx used by conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// conn is a source.Conn. Without a transaction every statement runs in its
// own implicit SQL transaction.
type conn struct {
	db     *sql.DB
	tx     *sql.Tx
	closed bool
}

func (c *conn) q() (querier, error) {
	if c.closed {
		return nil, fmt.Errorf("sqlstore: connection closed")
	}
	if c.tx != nil {
		return c.tx, nil
	}
	return c.db, nil
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &source.StorageError{Op: op, Err: err}
}

// termText is the stored form of a term. The zero term (the default graph)
// is stored as the empty string.
func termText(t rdf.Term) string {
	if t.IsZero() {
		return ""
	}
	return t.String()
}

func parseTerm(s string) (rdf.Term, error) {
	if s == "" {
		return rdf.Term{}, nil
	}
	return rdf.ParseTerm(s)
}

// where returns the WHERE clause and arguments for a statement pattern.
func where(subj, pred, obj rdf.Term, contexts []rdf.Term) (string, []interface{}) {
	var conds []string
	var args []interface{}
	for _, c := range []struct {
		col  string
		term rdf.Term
	}{{"subject", subj}, {"predicate", pred}, {"object", obj}} {
		if !c.term.IsZero() {
			conds = append(conds, c.col+" = ?")
			args = append(args, termText(c.term))
		}
	}
	if len(contexts) > 0 {
		marks := make([]string, len(contexts))
		for i, ctx := range contexts {
			marks[i] = "?"
			args = append(args, termText(ctx))
		}
		conds = append(conds, "context IN ("+strings.Join(marks, ", ")+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (c *conn) GetStatements(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) (source.StatementIterator, error) {
	q, err := c.q()
	if err != nil {
		return nil, err
	}
	cond, args := where(subj, pred, obj, contexts)
	rows, err := q.QueryContext(ctx, "SELECT subject, predicate, object, context FROM statements"+cond, args...)
	if err != nil {
		return nil, storageErr("get statements", err)
	}
	defer rows.Close()
	// The rows are read eagerly: evaluating a join issues the next scan
	// while this one is still being consumed, and a single-connection
	// database can't have both open.
	var res []rdf.Statement
	for rows.Next() {
		var cols [4]string
		if err := rows.Scan(&cols[0], &cols[1], &cols[2], &cols[3]); err != nil {
			return nil, storageErr("get statements", err)
		}
		var terms [4]rdf.Term
		for i, col := range cols {
			t, err := parseTerm(col)
			if err != nil {
				return nil, storageErr("get statements", fmt.Errorf("corrupt term %q: %w", col, err))
			}
			terms[i] = t
		}
		res = append(res, rdf.Statement{Subject: terms[0], Predicate: terms[1], Object: terms[2], Context: terms[3]})
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get statements", err)
	}
	return source.Statements(res...), nil
}

func (c *conn) Evaluate(ctx context.Context, q source.Query) (iter.Iterator, error) {
	return localeval.Evaluate(ctx, c, q)
}

func (c *conn) HasStatements(ctx context.Context, q source.Query) (bool, error) {
	return localeval.HasStatements(ctx, c, q)
}

func (c *conn) Begin(ctx context.Context) error {
	if c.closed {
		return fmt.Errorf("sqlstore: connection closed")
	}
	if c.tx != nil {
		return fmt.Errorf("sqlstore: transaction already in progress")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	c.tx = tx
	return nil
}

func (c *conn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return fmt.Errorf("sqlstore: no transaction in progress")
	}
	err := c.tx.Commit()
	c.tx = nil
	return storageErr("commit", err)
}

func (c *conn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return fmt.Errorf("sqlstore: no transaction in progress")
	}
	err := c.tx.Rollback()
	c.tx = nil
	return storageErr("rollback", err)
}

func (c *conn) Add(ctx context.Context, st rdf.Statement) error {
	switch {
	case !st.Subject.IsResource():
		return &source.RejectedError{Statement: st, Reason: "subject must be an IRI or blank node"}
	case !st.Predicate.IsIRI():
		return &source.RejectedError{Statement: st, Reason: "predicate must be an IRI"}
	case st.Object.IsZero():
		return &source.RejectedError{Statement: st, Reason: "missing object"}
	}
	q, err := c.q()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		"INSERT OR IGNORE INTO statements (subject, predicate, object, context) VALUES (?, ?, ?, ?)",
		termText(st.Subject), termText(st.Predicate), termText(st.Object), termText(st.Context))
	return storageErr("add", err)
}

func (c *conn) Remove(ctx context.Context, subj, pred, obj rdf.Term, contexts ...rdf.Term) error {
	q, err := c.q()
	if err != nil {
		return err
	}
	cond, args := where(subj, pred, obj, contexts)
	_, err = q.ExecContext(ctx, "DELETE FROM statements"+cond, args...)
	return storageErr("remove", err)
}

func (c *conn) Namespaces(ctx context.Context) ([]rdf.Namespace, error) {
	q, err := c.q()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, "SELECT prefix, name FROM namespaces ORDER BY prefix")
	if err != nil {
		return nil, storageErr("namespaces", err)
	}
	defer rows.Close()
	var res []rdf.Namespace
	for rows.Next() {
		var ns rdf.Namespace
		if err := rows.Scan(&ns.Prefix, &ns.Name); err != nil {
			return nil, storageErr("namespaces", err)
		}
		res = append(res, ns)
	}
	return res, storageErr("namespaces", rows.Err())
}

func (c *conn) Namespace(ctx context.Context, prefix string) (string, error) {
	q, err := c.q()
	if err != nil {
		return "", err
	}
	var name string
	err = q.QueryRowContext(ctx, "SELECT name FROM namespaces WHERE prefix = ?", prefix).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return name, storageErr("namespace", err)
}

func (c *conn) SetNamespace(ctx context.Context, prefix, name string) error {
	q, err := c.q()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO namespaces (prefix, name) VALUES (?, ?) ON CONFLICT (prefix) DO UPDATE SET name = excluded.name",
		prefix, name)
	return storageErr("set namespace", err)
}

func (c *conn) RemoveNamespace(ctx context.Context, prefix string) error {
	q, err := c.q()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, "DELETE FROM namespaces WHERE prefix = ?", prefix)
	return storageErr("remove namespace", err)
}

func (c *conn) ClearNamespaces(ctx context.Context) error {
	q, err := c.q()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, "DELETE FROM namespaces")
	return storageErr("clear namespaces", err)
}

func (c *conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.tx != nil {
		err := c.tx.Rollback()
		c.tx = nil
		return storageErr("rollback", err)
	}
	return nil
}
