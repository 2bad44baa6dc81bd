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

package impl

import (
	"io"
	"mime"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/ebay/fedx/federation/conn"
	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/rdf/sparqljson"
	"github.com/ebay/fedx/util/tracing"
	"github.com/ebay/fedx/util/web"
	"github.com/julienschmidt/httprouter"
	log "github.com/sirupsen/logrus"
)

const (
	// The largest query or statements body accepted.
	maxBodyBytes = 4 << 20
	// Results are flushed to the client after this many solutions.
	flushEvery = 100
	// The media type of SPARQL query bodies.
	sparqlQueryType = "application/sparql-query"
)

// queryRequest extracts a query from r using the SPARQL protocol: the query
// is either the body of a POST with the sparql-query media type, or the
// 'query' parameter. 'default-graph-uri' and 'named-graph-uri' restrict the
// dataset, 'infer' controls inferred statements, and any parameter named
// '$var' binds var to an N-Triples term.
func queryRequest(r *http.Request) (conn.Request, error) {
	var req conn.Request
	if r.Method == http.MethodPost {
		mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mt == sparqlQueryType {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				return req, web.NewError(http.StatusBadRequest, "unable to read query: %v", err)
			}
			req.Query = string(body)
		}
	}
	if err := r.ParseForm(); err != nil {
		return req, web.NewError(http.StatusBadRequest, "unable to parse parameters: %v", err)
	}
	if req.Query == "" {
		req.Query = r.Form.Get("query")
	}
	if strings.TrimSpace(req.Query) == "" {
		return req, web.NewError(http.StatusBadRequest, "query parameter is required")
	}
	defaults, named := r.Form["default-graph-uri"], r.Form["named-graph-uri"]
	if len(defaults)+len(named) > 0 {
		req.Dataset = new(rdf.Dataset)
		for _, g := range defaults {
			req.Dataset.DefaultGraphs = append(req.Dataset.DefaultGraphs, rdf.IRI(g))
		}
		for _, g := range named {
			req.Dataset.NamedGraphs = append(req.Dataset.NamedGraphs, rdf.IRI(g))
		}
	}
	req.IncludeInferred = true
	if infer := r.Form.Get("infer"); infer != "" {
		v, err := strconv.ParseBool(infer)
		if err != nil {
			return req, web.NewError(http.StatusBadRequest, "invalid infer parameter: %v", err)
		}
		req.IncludeInferred = v
	}
	var names []string
	for name := range r.Form {
		if strings.HasPrefix(name, "$") && len(name) > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	pairs := make([]binding.Pair, 0, len(names))
	for _, name := range names {
		t, err := rdf.ParseTerm(r.Form.Get(name))
		if err != nil {
			return req, web.NewError(http.StatusBadRequest, "invalid binding for %s: %v", name, err)
		}
		pairs = append(pairs, binding.Pair{Name: name[1:], Value: t})
	}
	req.Bindings = binding.New(pairs...)
	return req, nil
}

// trackingWriter notes whether any of the response body was written.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *trackingWriter) Write(p []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(p)
}

func (w *trackingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// query evaluates a query and streams its results.
func (s *Server) query(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	span, ctx := tracing.StartSpan(r.Context(), "query", metrics.querySeconds)
	defer span.Finish()
	req, err := queryRequest(r)
	if err != nil {
		web.Write(w, err)
		return
	}
	c := s.engine.Connect()
	defer c.Close()
	res, err := c.Evaluate(ctx, req)
	if err != nil {
		metrics.queries.WithLabelValues("failed").Inc()
		writeError(w, err)
		return
	}
	defer res.Close()

	if res.Form == algebra.FormAsk {
		answer := res.Next()
		if err := res.Err(); err != nil {
			metrics.queries.WithLabelValues("failed").Inc()
			writeError(w, err)
			return
		}
		metrics.queries.WithLabelValues("ok").Inc()
		w.Header().Set("Content-Type", sparqljson.ContentType)
		sparqljson.WriteBoolean(w, answer)
		return
	}

	tw := &trackingWriter{ResponseWriter: w}
	tw.Header().Set("Content-Type", sparqljson.ContentType)
	out := sparqljson.NewWriter(tw, res.Vars)
	rows := 0
	for res.Next() {
		if err := out.Write(res.Binding()); err != nil {
			log.WithError(err).Debug("Client went away during query results")
			return
		}
		rows++
		if rows%flushEvery == 0 {
			out.Flush()
			tw.Flush()
		}
	}
	metrics.solutions.Observe(float64(rows))
	if err := res.Err(); err != nil {
		metrics.queries.WithLabelValues("failed").Inc()
		if !tw.wrote {
			writeError(w, err)
			return
		}
		// The status has gone out already; cut the response short so the
		// client sees it is incomplete.
		log.WithFields(log.Fields{
			"error": err,
			"rows":  rows,
		}).Warn("Query failed after results were sent")
		panic(http.ErrAbortHandler)
	}
	metrics.queries.WithLabelValues("ok").Inc()
	out.Close()
}

// explain returns the plan a query would be evaluated with.
func (s *Server) explain(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	req, err := queryRequest(r)
	if err != nil {
		web.Write(w, err)
		return
	}
	c := s.engine.Connect()
	defer c.Close()
	plan, err := c.Explain(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	web.Write(w, plan+"\n")
}
