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

// Package sparqljson reads and writes the SPARQL 1.1 Query Results JSON
// format (application/sparql-results+json).
package sparqljson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/rdf"
)

// ContentType is the media type of the format.
const ContentType = "application/sparql-results+json"

// Term is the JSON form of an RDF term.
type Term struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

// FromTerm converts an RDF term to its JSON form. Simple literals and
// language-tagged literals omit their implied datatype.
func FromTerm(t rdf.Term) Term {
	switch t.Kind {
	case rdf.KindIRI:
		return Term{Type: "uri", Value: t.Value}
	case rdf.KindBlank:
		return Term{Type: "bnode", Value: t.Value}
	case rdf.KindLiteral:
		res := Term{Type: "literal", Value: t.Value, Lang: t.Lang}
		if t.Datatype != rdf.XSDString && t.Datatype != rdf.RDFLangStr {
			res.Datatype = t.Datatype
		}
		return res
	}
	panic(fmt.Sprintf("sparqljson: cannot encode %v term", t.Kind))
}

// RDF converts the JSON form back to an RDF term.
func (t Term) RDF() (rdf.Term, error) {
	switch t.Type {
	case "uri":
		return rdf.IRI(t.Value), nil
	case "bnode":
		return rdf.Blank(t.Value), nil
	case "literal", "typed-literal":
		if t.Lang != "" {
			return rdf.LangString(t.Value, t.Lang), nil
		}
		return rdf.Typed(t.Value, t.Datatype), nil
	}
	return rdf.Term{}, fmt.Errorf("unknown term type %q", t.Type)
}

type head struct {
	Vars []string `json:"vars,omitempty"`
}

type document struct {
	Head    head  `json:"head"`
	Boolean *bool `json:"boolean,omitempty"`
	Results *struct {
		Bindings []map[string]Term `json:"bindings"`
	} `json:"results,omitempty"`
}

// Results is a decoded results document. Boolean is set for ASK results;
// Vars and Bindings for SELECT results.
type Results struct {
	Vars     []string
	Bindings []binding.Set
	Boolean  *bool
}

// Decode reads a whole results document.
func Decode(r io.Reader) (*Results, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid SPARQL JSON results: %w", err)
	}
	res := &Results{Vars: doc.Head.Vars, Boolean: doc.Boolean}
	if doc.Results == nil {
		if doc.Boolean == nil {
			return nil, fmt.Errorf("invalid SPARQL JSON results: neither results nor boolean present")
		}
		return res, nil
	}
	res.Bindings = make([]binding.Set, len(doc.Results.Bindings))
	for i, row := range doc.Results.Bindings {
		pairs := make([]binding.Pair, 0, len(row))
		for name, jt := range row {
			t, err := jt.RDF()
			if err != nil {
				return nil, fmt.Errorf("invalid SPARQL JSON results: ?%s in row %d: %w", name, i, err)
			}
			pairs = append(pairs, binding.Pair{Name: name, Value: t})
		}
		res.Bindings[i] = binding.New(pairs...)
	}
	return res, nil
}

// Writer streams SELECT results. Rows are written as they are given; Close
// finishes the document.
type Writer struct {
	w     *bufio.Writer
	rows  int
	err   error
	vars  []string
	begun bool
}

// NewWriter returns a Writer for results projecting vars.
func NewWriter(w io.Writer, vars []string) *Writer {
	return &Writer{w: bufio.NewWriter(w), vars: vars}
}

func (w *Writer) begin() {
	if w.begun {
		return
	}
	w.begun = true
	h, err := json.Marshal(head{Vars: append([]string{}, w.vars...)})
	if err != nil {
		w.err = err
		return
	}
	_, w.err = fmt.Fprintf(w.w, `{"head":%s,"results":{"bindings":[`, h)
}

// Write writes one solution. Names not among the Writer's vars are omitted.
func (w *Writer) Write(b binding.Set) error {
	w.begin()
	if w.err != nil {
		return w.err
	}
	row := make(map[string]Term, len(w.vars))
	for _, v := range w.vars {
		if t, ok := b.Get(v); ok {
			row[v] = FromTerm(t)
		}
	}
	enc, err := json.Marshal(row)
	if err != nil {
		w.err = err
		return err
	}
	if w.rows > 0 {
		w.w.WriteByte(',')
	}
	w.rows++
	_, w.err = w.w.Write(enc)
	return w.err
}

// Flush sends what has been written so far to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// Close finishes the document. It does not close the underlying writer.
func (w *Writer) Close() error {
	w.begin()
	if w.err != nil {
		return w.err
	}
	if _, err := w.w.WriteString("]}}\n"); err != nil {
		return err
	}
	return w.w.Flush()
}

// WriteBoolean writes an ASK result document.
func WriteBoolean(w io.Writer, value bool) error {
	return json.NewEncoder(w).Encode(document{Boolean: &value})
}
