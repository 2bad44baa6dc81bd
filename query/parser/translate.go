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
	"strings"

	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/util/unicode"
)

// blankVarPrefix starts the names of the variables that stand in for blank
// nodes in patterns. SELECT * does not project them.
const blankVarPrefix = "__bnode_"

// translator resolves prefixed names and turns the syntax tree into algebra,
// following the SPARQL group graph pattern translation rules.
type translator struct {
	prefixes map[string]string
}

func (q *query) toAlgebra() (*algebra.Query, error) {
	t := &translator{prefixes: make(map[string]string, len(q.prefixes))}
	for _, p := range q.prefixes {
		t.prefixes[p.prefix] = unicode.Normalize(p.iri)
	}
	root, err := t.group(q.where)
	if err != nil {
		return nil, err
	}
	res := &algebra.Query{Form: algebra.FormSelect}
	if q.ask {
		res.Form = algebra.FormAsk
		res.Root = &algebra.Slice{Offset: 0, Limit: 1, Arg: root}
		return res, nil
	}
	if q.vars == nil {
		for _, v := range algebra.Vars(root) {
			if !strings.HasPrefix(v, blankVarPrefix) {
				res.Projection = append(res.Projection, v)
			}
		}
	} else {
		res.Projection = q.vars
		root = &algebra.Projection{Vars: append([]string(nil), q.vars...), Arg: root}
	}
	if q.distinct {
		root = &algebra.Distinct{Arg: root}
	}
	if q.limit != nil || q.offset != nil {
		s := &algebra.Slice{Limit: -1, Arg: root}
		if q.limit != nil {
			s.Limit = int64(*q.limit)
		}
		if q.offset != nil {
			s.Offset = int64(*q.offset)
		}
		root = s
	}
	res.Root = root
	return res, nil
}

func (t *translator) group(g *group) (algebra.Node, error) {
	var current algebra.Node
	var filters []algebra.Expr
	for _, elem := range g.elems {
		switch e := elem.(type) {
		case []triple:
			for _, tr := range e {
				p, err := t.pattern(tr)
				if err != nil {
					return nil, err
				}
				current = join(current, p)
			}
		case *filterElem:
			cond, err := t.expr(e.cond)
			if err != nil {
				return nil, err
			}
			filters = append(filters, cond)
		case *optionalElem:
			right, err := t.group(e.group)
			if err != nil {
				return nil, err
			}
			if current == nil {
				current = &algebra.SingletonSet{}
			}
			lj := &algebra.LeftJoin{Left: current, Right: right}
			if f, ok := right.(*algebra.Filter); ok {
				lj.Right, lj.Condition = f.Arg, f.Condition
			}
			current = lj
		case *unionElem:
			args := make([]algebra.Node, len(e.groups))
			for i, g := range e.groups {
				n, err := t.group(g)
				if err != nil {
					return nil, err
				}
				args[i] = n
			}
			if len(args) == 1 {
				current = join(current, args[0])
			} else {
				current = join(current, &algebra.Union{Args: args})
			}
		default:
			panic(fmt.Sprintf("unexpected group element %T", elem))
		}
	}
	if current == nil {
		current = &algebra.SingletonSet{}
	}
	if len(filters) > 0 {
		current = &algebra.Filter{Condition: algebra.Conjunction(filters...), Arg: current}
	}
	return current, nil
}

func join(left, right algebra.Node) algebra.Node {
	if left == nil {
		return right
	}
	if j, ok := left.(*algebra.Join); ok {
		return &algebra.Join{Args: append(j.Args, right)}
	}
	return &algebra.Join{Args: []algebra.Node{left, right}}
}

func (t *translator) pattern(tr triple) (*algebra.StatementPattern, error) {
	s, err := t.term(tr.s)
	if err != nil {
		return nil, err
	}
	p, err := t.term(tr.p)
	if err != nil {
		return nil, err
	}
	o, err := t.term(tr.o)
	if err != nil {
		return nil, err
	}
	return &algebra.StatementPattern{Subject: s, Predicate: p, Object: o}, nil
}

func (t *translator) iri(v interface{}) (string, error) {
	switch v := v.(type) {
	case *iriRef:
		return unicode.Normalize(v.value), nil
	case *prefixedName:
		ns, ok := t.prefixes[v.prefix]
		if !ok {
			return "", fmt.Errorf("undeclared prefix '%s:'", v.prefix)
		}
		return ns + unicode.Normalize(v.local), nil
	}
	return "", fmt.Errorf("expected an IRI, got %T", v)
}

func (t *translator) term(v interface{}) (algebra.Term, error) {
	switch v := v.(type) {
	case *variable:
		return algebra.Var(v.name), nil
	case *blankNode:
		// Blank nodes in patterns behave as variables that are not projected.
		return algebra.Var(blankVarPrefix + v.label), nil
	case *rdfType:
		return algebra.Const(rdf.IRI(rdf.RDFType)), nil
	case *iriRef, *prefixedName:
		iri, err := t.iri(v)
		if err != nil {
			return nil, err
		}
		return algebra.Const(rdf.IRI(iri)), nil
	case *numberLit:
		dt := rdf.XSDInteger
		switch v.kind {
		case numDecimal:
			dt = rdf.XSDDecimal
		case numDouble:
			dt = rdf.XSDDouble
		}
		return algebra.Const(rdf.Typed(v.lexical, dt)), nil
	case *boolLit:
		return algebra.Const(rdf.Boolean(v.value)), nil
	case *stringLit:
		value := unicode.Normalize(v.value)
		switch {
		case v.lang != "":
			return algebra.Const(rdf.LangString(value, v.lang)), nil
		case v.datatype != nil:
			dt, err := t.iri(v.datatype)
			if err != nil {
				return nil, err
			}
			return algebra.Const(rdf.Typed(value, dt)), nil
		}
		return algebra.Const(rdf.String(value)), nil
	}
	return nil, fmt.Errorf("unexpected term %T", v)
}

func (t *translator) expr(e *expr) (algebra.Expr, error) {
	args := make([]algebra.Expr, len(e.args))
	for i, a := range e.args {
		x, err := t.expr(a)
		if err != nil {
			return nil, err
		}
		args[i] = x
	}
	switch e.op {
	case exprTerm:
		return t.term(e.term)
	case exprBound:
		return &algebra.Bound{Var: algebra.Var(e.term.(*variable).name)}, nil
	case exprCompare:
		return &algebra.Compare{Op: e.cmp, Left: args[0], Right: args[1]}, nil
	case exprAnd:
		return &algebra.And{Left: args[0], Right: args[1]}, nil
	case exprOr:
		return &algebra.Or{Left: args[0], Right: args[1]}, nil
	case exprNot:
		return &algebra.Not{Arg: args[0]}, nil
	case exprSameTerm:
		return &algebra.SameTerm{Left: args[0], Right: args[1]}, nil
	}
	panic(fmt.Sprintf("unexpected expression op %v", e.op))
}
