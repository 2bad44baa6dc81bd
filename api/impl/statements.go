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
	"encoding/json"
	"io"
	"net/http"

	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/util/web"
	"github.com/julienschmidt/httprouter"
)

// pattern holds the optional terms of a statement pattern given as the
// 'subj', 'pred', 'obj' and 'context' parameters in N-Triples syntax.
type pattern struct {
	subj, pred, obj rdf.Term
	contexts        []rdf.Term
}

func patternOf(r *http.Request) (pattern, error) {
	var p pattern
	if err := r.ParseForm(); err != nil {
		return p, web.NewError(http.StatusBadRequest, "unable to parse parameters: %v", err)
	}
	parse := func(name string, dest *rdf.Term) error {
		v := r.Form.Get(name)
		if v == "" {
			return nil
		}
		t, err := rdf.ParseTerm(v)
		if err != nil {
			return web.NewError(http.StatusBadRequest, "invalid %s: %v", name, err)
		}
		*dest = t
		return nil
	}
	for _, f := range []struct {
		name string
		dest *rdf.Term
	}{{"subj", &p.subj}, {"pred", &p.pred}, {"obj", &p.obj}} {
		if err := parse(f.name, f.dest); err != nil {
			return p, err
		}
	}
	for _, v := range r.Form["context"] {
		t, err := rdf.ParseTerm(v)
		if err != nil {
			return p, web.NewError(http.StatusBadRequest, "invalid context: %v", err)
		}
		p.contexts = append(p.contexts, t)
	}
	return p, nil
}

// statementTerms returns st as its N-Triples terms: three, or four when st is
// in a named graph.
func statementTerms(st rdf.Statement) []string {
	terms := []string{st.Subject.String(), st.Predicate.String(), st.Object.String()}
	if !st.Context.IsZero() {
		terms = append(terms, st.Context.String())
	}
	return terms
}

// parseStatements decodes a JSON array of statements, each an array of three
// or four N-Triples terms.
func parseStatements(body io.Reader) ([]rdf.Statement, error) {
	var raw [][]string
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		return nil, web.NewError(http.StatusBadRequest, "unable to parse statements: %v", err)
	}
	sts := make([]rdf.Statement, len(raw))
	for i, terms := range raw {
		if len(terms) != 3 && len(terms) != 4 {
			return nil, web.NewError(http.StatusBadRequest,
				"statement %d: expected 3 or 4 terms, got %d", i, len(terms))
		}
		parsed := make([]rdf.Term, len(terms))
		for j, t := range terms {
			var err error
			parsed[j], err = rdf.ParseTerm(t)
			if err != nil {
				return nil, web.NewError(http.StatusBadRequest, "statement %d: %v", i, err)
			}
		}
		sts[i] = rdf.Statement{Subject: parsed[0], Predicate: parsed[1], Object: parsed[2]}
		if len(parsed) == 4 {
			sts[i].Context = parsed[3]
		}
	}
	return sts, nil
}

func (s *Server) getStatements(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p, err := patternOf(r)
	if err != nil {
		web.Write(w, err)
		return
	}
	c := s.engine.Connect()
	defer c.Close()
	it, err := c.Statements(r.Context(), p.subj, p.pred, p.obj, p.contexts...)
	if err != nil {
		writeError(w, err)
		return
	}
	sts, err := source.CollectStatements(it)
	if err != nil {
		writeError(w, err)
		return
	}
	res := make([][]string, len(sts))
	for i, st := range sts {
		res[i] = statementTerms(st)
	}
	web.WriteJSON(w, http.StatusOK, res)
}

// addStatements places each statement of the body on one member. The
// statements are added in one transaction: if any is rejected, none are kept.
func (s *Server) addStatements(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sts, err := parseStatements(r.Body)
	if err != nil {
		web.Write(w, err)
		return
	}
	ctx := r.Context()
	c := s.engine.Connect()
	defer c.Close()
	if err := c.Begin(ctx); err != nil {
		writeError(w, err)
		return
	}
	for _, st := range sts {
		if err := c.AddStatement(ctx, st); err != nil {
			c.Rollback(ctx)
			writeError(w, err)
			return
		}
	}
	if err := c.Commit(ctx); err != nil {
		writeError(w, err)
		return
	}
	metrics.statementsAdded.Add(float64(len(sts)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeStatements(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	p, err := patternOf(r)
	if err != nil {
		web.Write(w, err)
		return
	}
	c := s.engine.Connect()
	defer c.Close()
	if err := c.RemoveStatements(r.Context(), p.subj, p.pred, p.obj, p.contexts...); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) namespaces(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c := s.engine.Connect()
	defer c.Close()
	nss, err := c.Namespaces(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if nss == nil {
		nss = []rdf.Namespace{}
	}
	web.WriteJSON(w, http.StatusOK, nss)
}

func (s *Server) namespace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	c := s.engine.Connect()
	defer c.Close()
	prefix := ps.ByName("prefix")
	name, err := c.Namespace(r.Context(), prefix)
	if err != nil {
		writeError(w, err)
		return
	}
	if name == "" {
		web.WriteError(w, http.StatusNotFound, "namespace %s is not declared", prefix)
		return
	}
	web.Write(w, name)
}

// setNamespace declares the prefix with the name given as the request body.
func (s *Server) setNamespace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		web.WriteError(w, http.StatusBadRequest, "unable to read namespace: %v", err)
		return
	}
	name := string(body)
	if name == "" {
		web.WriteError(w, http.StatusBadRequest, "namespace name is required")
		return
	}
	c := s.engine.Connect()
	defer c.Close()
	if err := c.SetNamespace(r.Context(), ps.ByName("prefix"), name); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeNamespace(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	c := s.engine.Connect()
	defer c.Close()
	if err := c.RemoveNamespace(r.Context(), ps.ByName("prefix")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearNamespaces(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	c := s.engine.Connect()
	defer c.Close()
	if err := c.ClearNamespaces(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
