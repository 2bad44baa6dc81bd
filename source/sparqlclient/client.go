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

// Package sparqlclient is a member adapter for a remote SPARQL endpoint. It
// speaks the SPARQL 1.1 protocol: queries and updates are POSTed as forms and
// SELECT/ASK results are read as SPARQL JSON.
package sparqlclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/rdf/sparqljson"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/util/tracing"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Options configure a Client.
type Options struct {
	// Endpoint is the query URL.
	Endpoint string
	// UpdateEndpoint is the update URL. If empty, Endpoint is used.
	UpdateEndpoint string
	// RequestsPerSecond limits the rate of requests; 0 means unlimited.
	RequestsPerSecond float64
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client is a source.Repository for a remote endpoint. It is safe for
// concurrent use.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter

	// The protocol has no namespace operations; declarations are kept here.
	lock       sync.Mutex
	namespaces map[string]string
}

// New returns a Client for the endpoint.
func New(opts Options) (*Client, error) {
	if _, err := url.ParseRequestURI(opts.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid SPARQL endpoint %q: %v", opts.Endpoint, err)
	}
	if opts.UpdateEndpoint == "" {
		opts.UpdateEndpoint = opts.Endpoint
	}
	c := &Client{
		opts:       opts,
		http:       opts.HTTPClient,
		limiter:    rate.NewLimiter(rate.Inf, 1),
		namespaces: make(map[string]string),
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

// Endpoint returns the query URL.
func (c *Client) Endpoint() string {
	return c.opts.Endpoint
}

// Open implements source.Repository.
func (c *Client) Open(ctx context.Context) (source.Conn, error) {
	return &conn{client: c}, nil
}

// Close implements source.Repository.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// post sends a form to the endpoint and returns the response body for a 2xx
// status. The caller must close the body.
func (c *Client) post(ctx context.Context, kind, endpoint, param, text string) (io.ReadCloser, error) {
	metric := metrics.requestSeconds.WithLabelValues(kind).(prometheus.Summary)
	span, ctx := tracing.StartSpan(ctx, "sparql "+kind, metric)
	span.SetTag("endpoint", endpoint)
	span.SetTag("sparql", text)
	body, err := c.doPost(ctx, endpoint, param, text)
	tracing.FinishWithError(span, err)
	metrics.requests.WithLabelValues(kind).Inc()
	if err != nil {
		metrics.failures.WithLabelValues(kind).Inc()
		log.WithFields(log.Fields{
			"endpoint": endpoint,
			"kind":     kind,
			"error":    err,
		}).Debug("SPARQL request failed")
	}
	return body, err
}

func (c *Client) doPost(ctx context.Context, endpoint, param, text string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	form := url.Values{param: {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", sparqljson.ContentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp.Body, nil
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint returned %d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// query runs a SELECT or ASK query and decodes the results.
func (c *Client) query(ctx context.Context, kind, text string) (*sparqljson.Results, error) {
	body, err := c.post(ctx, kind, c.opts.Endpoint, "query", text)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return sparqljson.Decode(body)
}

// update runs a SPARQL Update request.
func (c *Client) update(ctx context.Context, text string) error {
	body, err := c.post(ctx, "update", c.opts.UpdateEndpoint, "update", text)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, body)
	return body.Close()
}

// withDataset adds FROM and FROM NAMED clauses to a rendered query.
func withDataset(text string, ds *rdf.Dataset) string {
	if ds == nil || len(ds.DefaultGraphs)+len(ds.NamedGraphs) == 0 {
		return text
	}
	var b strings.Builder
	for _, g := range ds.DefaultGraphs {
		if !g.IsZero() {
			fmt.Fprintf(&b, "FROM %s ", g)
		}
	}
	for _, g := range ds.NamedGraphs {
		fmt.Fprintf(&b, "FROM NAMED %s ", g)
	}
	idx := strings.Index(text, "WHERE {")
	if idx < 0 {
		idx = strings.Index(text, "{")
	}
	return text[:idx] + b.String() + text[idx:]
}

// evaluate sends q as a SELECT query. Solutions are merged with q.Bindings,
// which were substituted into the query text.
func (c *Client) evaluate(ctx context.Context, q source.Query) (iter.Iterator, error) {
	node := algebra.Substitute(q.Node, q.Bindings)
	text := withDataset(algebra.RenderSelect(node, nil, false), q.Dataset)
	res, err := c.query(ctx, "select", text)
	if err != nil {
		return nil, err
	}
	if q.Bindings.Len() > 0 {
		rows := res.Bindings[:0]
		for _, row := range res.Bindings {
			if row.Compatible(q.Bindings) {
				rows = append(rows, row.Merge(q.Bindings))
			}
		}
		res.Bindings = rows
	}
	return iter.Slice(res.Bindings...), nil
}

func (c *Client) hasStatements(ctx context.Context, q source.Query) (bool, error) {
	node := algebra.Substitute(q.Node, q.Bindings)
	res, err := c.query(ctx, "ask", withDataset(algebra.RenderAsk(node), q.Dataset))
	if err != nil {
		return false, err
	}
	if res.Boolean == nil {
		return false, fmt.Errorf("endpoint returned no boolean for ASK")
	}
	return *res.Boolean, nil
}

// statementPattern returns the pattern for a GetStatements call, with
// variables ?s ?p ?o in place of zero terms.
func statementPattern(subj, pred, obj rdf.Term) *algebra.StatementPattern {
	term := func(t rdf.Term, name string) algebra.Term {
		if t.IsZero() {
			return algebra.Var(name)
		}
		return algebra.Const(t)
	}
	return &algebra.StatementPattern{
		Subject:   term(subj, "s"),
		Predicate: term(pred, "p"),
		Object:    term(obj, "o"),
	}
}

func (c *Client) getStatements(ctx context.Context, subj, pred, obj rdf.Term, contexts []rdf.Term) (source.StatementIterator, error) {
	p := statementPattern(subj, pred, obj)
	res, err := c.evaluate(ctx, source.Query{
		Node:    p,
		Dataset: &rdf.Dataset{DefaultGraphs: contexts},
	})
	if err != nil {
		return nil, err
	}
	rows, err := iter.Collect(res)
	if err != nil {
		return nil, err
	}
	sts := make([]rdf.Statement, len(rows))
	for i, row := range rows {
		get := func(t rdf.Term, name string) rdf.Term {
			if !t.IsZero() {
				return t
			}
			v, _ := row.Get(name)
			return v
		}
		sts[i] = rdf.Statement{Subject: get(subj, "s"), Predicate: get(pred, "p"), Object: get(obj, "o")}
	}
	return source.Statements(sts...), nil
}

func (c *Client) namespaceList() []rdf.Namespace {
	c.lock.Lock()
	defer c.lock.Unlock()
	res := make([]rdf.Namespace, 0, len(c.namespaces))
	for p, n := range c.namespaces {
		res = append(res, rdf.Namespace{Prefix: p, Name: n})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Prefix < res[j].Prefix })
	return res
}

// updateData renders an INSERT DATA operation for st.
func updateData(st rdf.Statement) string {
	triple := fmt.Sprintf("%s %s %s .", st.Subject, st.Predicate, st.Object)
	if !st.Context.IsZero() {
		return fmt.Sprintf("INSERT DATA { GRAPH %s { %s } }", st.Context, triple)
	}
	return fmt.Sprintf("INSERT DATA { %s }", triple)
}

// deleteWhere renders a DELETE WHERE operation for a pattern.
func deleteWhere(subj, pred, obj rdf.Term, contexts []rdf.Term) []string {
	p := statementPattern(subj, pred, obj)
	triple := fmt.Sprintf("%s %s %s .", p.Subject, p.Predicate, p.Object)
	if len(contexts) == 0 {
		return []string{fmt.Sprintf("DELETE WHERE { %s }", triple)}
	}
	var ops []string
	for _, g := range contexts {
		if g.IsZero() {
			ops = append(ops, fmt.Sprintf("DELETE WHERE { %s }", triple))
		} else {
			ops = append(ops, fmt.Sprintf("DELETE WHERE { GRAPH %s { %s } }", g, triple))
		}
	}
	return ops
}
