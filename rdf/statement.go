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

package rdf

import (
	"fmt"
	"strconv"
	"strings"
)

// Statement is an RDF triple, optionally in a named graph (Context). The zero
// Context is the default graph.
type Statement struct {
	Subject   Term
	Predicate Term
	Object    Term
	Context   Term
}

// String returns the N-Quads form of the statement, without the trailing
// newline.
func (s Statement) String() string {
	var b strings.Builder
	s.Subject.Key(&b)
	b.WriteByte(' ')
	s.Predicate.Key(&b)
	b.WriteByte(' ')
	s.Object.Key(&b)
	if !s.Context.IsZero() {
		b.WriteByte(' ')
		s.Context.Key(&b)
	}
	b.WriteString(" .")
	return b.String()
}

// Matches returns true if every non-zero term in the pattern equals the
// corresponding term of s. A zero context in the pattern matches any graph.
func (s Statement) Matches(subj, pred, obj Term, contexts ...Term) bool {
	if !subj.IsZero() && subj != s.Subject {
		return false
	}
	if !pred.IsZero() && pred != s.Predicate {
		return false
	}
	if !obj.IsZero() && obj != s.Object {
		return false
	}
	if len(contexts) == 0 {
		return true
	}
	for _, c := range contexts {
		if c == s.Context {
			return true
		}
	}
	return false
}

// Namespace is a prefix declaration held by a store.
type Namespace struct {
	Prefix string `json:"prefix"`
	Name   string `json:"name"`
}

// Dataset restricts query evaluation to the given graphs. A nil *Dataset
// means the store's default dataset.
type Dataset struct {
	DefaultGraphs []Term
	NamedGraphs   []Term
}

// ParseTerm parses a single term in N-Triples syntax: <iri>, _:label, or a
// quoted literal with an optional @lang or ^^<datatype> suffix.
func ParseTerm(in string) (Term, error) {
	in = strings.TrimSpace(in)
	switch {
	case strings.HasPrefix(in, "<"):
		if !strings.HasSuffix(in, ">") || len(in) < 2 {
			return Term{}, fmt.Errorf("unterminated IRI: %s", in)
		}
		return IRI(in[1 : len(in)-1]), nil
	case strings.HasPrefix(in, "_:"):
		if len(in) == 2 {
			return Term{}, fmt.Errorf("empty blank node label")
		}
		return Blank(in[2:]), nil
	case strings.HasPrefix(in, `"`):
		end := closingQuote(in)
		if end < 0 {
			return Term{}, fmt.Errorf("unterminated literal: %s", in)
		}
		value, err := strconv.Unquote(in[:end+1])
		if err != nil {
			return Term{}, fmt.Errorf("invalid literal %s: %v", in, err)
		}
		rest := in[end+1:]
		switch {
		case rest == "":
			return String(value), nil
		case strings.HasPrefix(rest, "@") && len(rest) > 1:
			return LangString(value, rest[1:]), nil
		case strings.HasPrefix(rest, "^^<") && strings.HasSuffix(rest, ">"):
			return Typed(value, rest[3:len(rest)-1]), nil
		}
		return Term{}, fmt.Errorf("invalid literal suffix: %s", rest)
	}
	return Term{}, fmt.Errorf("unable to parse term: %q", in)
}

// closingQuote returns the index of the quote that terminates the literal
// starting at in[0], or -1.
func closingQuote(in string) int {
	for i := 1; i < len(in); i++ {
		switch in[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}
