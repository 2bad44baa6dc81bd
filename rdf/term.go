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

// Package rdf defines the RDF values exchanged between the federation and its
// members: terms, statements, namespaces and datasets.
package rdf

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Kind identifies the type of a Term.
type Kind uint8

// Kinds of terms. The zero Kind is reserved for the zero Term, which is used
// as a wildcard in statement lookups.
const (
	KindNone Kind = iota
	KindIRI
	KindBlank
	KindLiteral
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindIRI:
		return "iri"
	case KindBlank:
		return "blank"
	case KindLiteral:
		return "literal"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// XSD datatype IRIs.
const (
	XSDString  = "http://www.w3.org/2001/XMLSchema#string"
	XSDBoolean = "http://www.w3.org/2001/XMLSchema#boolean"
	XSDInteger = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDecimal = "http://www.w3.org/2001/XMLSchema#decimal"
	XSDDouble  = "http://www.w3.org/2001/XMLSchema#double"
	RDFLangStr = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
	RDFType    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
)

// Term is an RDF term. Terms are comparable values and can be used as map
// keys. A literal's Datatype is always set (to XSDString for simple literals
// and RDFLangStr for language-tagged ones).
type Term struct {
	Kind     Kind
	Value    string
	Lang     string
	Datatype string
}

// IRI returns an IRI term.
func IRI(value string) Term {
	return Term{Kind: KindIRI, Value: value}
}

// Blank returns a blank node term with the given label.
func Blank(label string) Term {
	return Term{Kind: KindBlank, Value: label}
}

// String returns a simple xsd:string literal.
func String(value string) Term {
	return Term{Kind: KindLiteral, Value: value, Datatype: XSDString}
}

// LangString returns a language-tagged literal. The tag is lower-cased.
func LangString(value, lang string) Term {
	return Term{Kind: KindLiteral, Value: value, Lang: strings.ToLower(lang), Datatype: RDFLangStr}
}

// Typed returns a literal with the given datatype IRI.
func Typed(value, datatype string) Term {
	if datatype == "" {
		datatype = XSDString
	}
	return Term{Kind: KindLiteral, Value: value, Datatype: datatype}
}

// Integer returns an xsd:integer literal.
func Integer(v int64) Term {
	return Typed(strconv.FormatInt(v, 10), XSDInteger)
}

// Boolean returns an xsd:boolean literal.
func Boolean(v bool) Term {
	return Typed(strconv.FormatBool(v), XSDBoolean)
}

// IsZero returns true for the zero Term.
func (t Term) IsZero() bool {
	return t.Kind == KindNone
}

// IsIRI returns true if t is an IRI.
func (t Term) IsIRI() bool { return t.Kind == KindIRI }

// IsLiteral returns true if t is a literal.
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// IsResource returns true for IRIs and blank nodes, which are the terms
// allowed in the subject position.
func (t Term) IsResource() bool {
	return t.Kind == KindIRI || t.Kind == KindBlank
}

// IsNumeric returns true if t is a literal with a numeric XSD datatype.
func (t Term) IsNumeric() bool {
	if t.Kind != KindLiteral {
		return false
	}
	switch t.Datatype {
	case XSDInteger, XSDDecimal, XSDDouble:
		return true
	}
	return false
}

// Number returns the numeric value of a numeric literal as an exact rational.
func (t Term) Number() (*big.Rat, bool) {
	if !t.IsNumeric() {
		return nil, false
	}
	r, ok := new(big.Rat).SetString(strings.TrimSpace(t.Value))
	return r, ok
}

// Bool returns the effective boolean value of t, following the SPARQL rules
// for booleans, numerics and strings. The second return value is false if t
// has no effective boolean value.
func (t Term) Bool() (bool, bool) {
	if t.Kind != KindLiteral {
		return false, false
	}
	switch t.Datatype {
	case XSDBoolean:
		v, err := strconv.ParseBool(t.Value)
		return v, err == nil
	case XSDString, RDFLangStr:
		return t.Value != "", true
	}
	if n, ok := t.Number(); ok {
		return n.Sign() != 0, true
	}
	return false, false
}

// String returns the N-Triples form of the term.
func (t Term) String() string {
	var b strings.Builder
	t.Key(&b)
	return b.String()
}

// Key writes the N-Triples form of the term to b. It is the term's identity.
func (t Term) Key(b *strings.Builder) {
	switch t.Kind {
	case KindNone:
		b.WriteString("*")
	case KindIRI:
		b.WriteByte('<')
		b.WriteString(t.Value)
		b.WriteByte('>')
	case KindBlank:
		b.WriteString("_:")
		b.WriteString(t.Value)
	case KindLiteral:
		b.WriteString(strconv.Quote(t.Value))
		switch {
		case t.Lang != "":
			b.WriteByte('@')
			b.WriteString(t.Lang)
		case t.Datatype != "" && t.Datatype != XSDString:
			b.WriteString("^^<")
			b.WriteString(t.Datatype)
			b.WriteByte('>')
		}
	}
}

// Compare orders terms: the zero Term first, then blank nodes, IRIs and
// literals. Numeric literals compare by value among themselves; everything
// else compares lexically.
func Compare(a, b Term) int {
	if a.Kind != b.Kind {
		return kindOrder(a.Kind) - kindOrder(b.Kind)
	}
	if a.Kind == KindLiteral {
		if an, ok := a.Number(); ok {
			if bn, ok := b.Number(); ok {
				if c := an.Cmp(bn); c != 0 {
					return c
				}
			}
		}
	}
	if c := strings.Compare(a.Value, b.Value); c != 0 {
		return c
	}
	if c := strings.Compare(a.Datatype, b.Datatype); c != 0 {
		return c
	}
	return strings.Compare(a.Lang, b.Lang)
}

func kindOrder(k Kind) int {
	switch k {
	case KindBlank:
		return 1
	case KindIRI:
		return 2
	case KindLiteral:
		return 3
	}
	return 0
}
