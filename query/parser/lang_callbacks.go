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

package parser

import (
	"fmt"

	"github.com/ebay/fedx/query/algebra"
	"github.com/vektah/goparsify"
)

// The parser builds a small syntax tree first; prefixed names can only be
// resolved against the prologue once the whole query has been read. See
// translate.go for the conversion into algebra.

type iriRef struct{ value string }

type prefixedName struct{ prefix, local string }

type variable struct{ name string }

type blankNode struct{ label string }

type numKind int

const (
	numInteger numKind = iota
	numDecimal
	numDouble
)

type numberLit struct {
	lexical string
	kind    numKind
}

type boolLit struct{ value bool }

type stringLit struct {
	value string
	lang  string
	// datatype is nil, an *iriRef or a *prefixedName.
	datatype interface{}
}

// rdfType is the 'a' shorthand in the predicate position.
type rdfType struct{}

type triple struct {
	s, p, o interface{}
}

// group is a group graph pattern: a sequence of elements, each one of
// []triple, *filterElem, *optionalElem or *unionElem.
type group struct {
	elems []interface{}
}

type filterElem struct{ cond *expr }

type optionalElem struct{ group *group }

// unionElem is one or more groups joined by UNION. A single group is a
// nested group.
type unionElem struct{ groups []*group }

type exprOp int

const (
	exprTerm exprOp = iota
	exprCompare
	exprAnd
	exprOr
	exprNot
	exprBound
	exprSameTerm
)

type expr struct {
	op   exprOp
	cmp  algebra.CompareOp
	args []*expr
	// term is set for exprTerm and exprBound.
	term interface{}
}

type prefixDecl struct {
	prefix string
	iri    string
}

type query struct {
	prefixes []prefixDecl
	ask      bool
	distinct bool
	vars     []string // nil for SELECT *
	where    *group
	limit    *uint64
	offset   *uint64
}

// child is a helper to generate a goparsify Map function that will grab a child
// result at a specific index and set it as the result for this node. This is
// useful for picking out the interesting part of a Seq().
func child(idx int) func(*goparsify.Result) {
	return func(n *goparsify.Result) {
		n.Result = n.Child[idx].Result
	}
}

func stringLiteral(n *goparsify.Result) {
	lit := &stringLit{value: n.Child[0].Token}
	switch t := n.Child[1].Result.(type) {
	case nil:
	case string:
		lit.lang = t
	default:
		lit.datatype = t
	}
	n.Result = lit
}

func propertyList(subject interface{}, n *goparsify.Result) []triple {
	var res []triple
	for _, verbObjects := range n.Child {
		verb := verbObjects.Child[0].Result
		for _, obj := range verbObjects.Child[1].Child {
			res = append(res, triple{s: subject, p: verb, o: obj.Result})
		}
	}
	return res
}

func triplesBlock(n *goparsify.Result) {
	n.Result = propertyList(n.Child[0].Result, &n.Child[1])
}

func groupGraphPattern(n *goparsify.Result) {
	g := &group{}
	for _, elem := range n.Child[1].Child {
		g.elems = append(g.elems, elem.Result)
	}
	n.Result = g
}

func unionGroups(n *goparsify.Result) {
	u := &unionElem{}
	for _, g := range n.Child {
		u.groups = append(u.groups, g.Result.(*group))
	}
	n.Result = u
}

// foldBinary folds the results of a Many(x, sep) into a left-deep tree of op.
func foldBinary(op exprOp) func(*goparsify.Result) {
	return func(n *goparsify.Result) {
		res := n.Child[0].Result.(*expr)
		for _, c := range n.Child[1:] {
			res = &expr{op: op, args: []*expr{res, c.Result.(*expr)}}
		}
		n.Result = res
	}
}

func relational(n *goparsify.Result) {
	left := n.Child[0].Result.(*expr)
	if n.Child[1].Result == nil {
		n.Result = left
		return
	}
	rest := n.Child[1]
	n.Result = &expr{
		op:   exprCompare,
		cmp:  rest.Child[0].Result.(algebra.CompareOp),
		args: []*expr{left, rest.Child[1].Result.(*expr)},
	}
}

func compareOp(op algebra.CompareOp) func(*goparsify.Result) {
	return func(n *goparsify.Result) {
		n.Result = op
	}
}

func selectQuery(n *goparsify.Result) {
	q := &query{
		distinct: n.Child[1].Token != "",
		where:    n.Child[3].Result.(*group),
	}
	if vars, ok := n.Child[2].Result.([]string); ok {
		q.vars = vars
	}
	if n.Child[4].Result != nil {
		lo := n.Child[4].Result.([2]*uint64)
		q.limit, q.offset = lo[0], lo[1]
	}
	n.Result = q
}

func selectVars(n *goparsify.Result) {
	if n.Token == "*" {
		n.Result = nil
		return
	}
	vars := make([]string, len(n.Child))
	for i, c := range n.Child {
		vars[i] = c.Result.(*variable).name
	}
	n.Result = vars
}

func limitOffset(n *goparsify.Result) {
	var res [2]*uint64
	for _, c := range n.Child {
		switch v := c.Result.(type) {
		case limitClause:
			x := uint64(v)
			res[0] = &x
		case offsetClause:
			x := uint64(v)
			res[1] = &x
		case nil:
		default:
			panic(fmt.Sprintf("unexpected solution modifier %T", v))
		}
	}
	n.Result = res
}

type limitClause uint64

type offsetClause uint64
