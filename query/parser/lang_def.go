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
	"strings"

	"github.com/ebay/fedx/query/algebra"
	p "github.com/vektah/goparsify"
)

// queryRoot is the parser function called by Parse. It extracts the query in
// its entirety: the prologue followed by a SELECT or ASK query.
var queryRoot p.Parser

func init() {
	// If you need to debug what the parser is doing, build with -tags debug;
	// see parser_debug.go.

	iri := p.Any(iriRefToken, prefixedNameToken)

	lang := langTagToken.Map(func(n *p.Result) {
		n.Result = n.Token
	})
	datatype := p.Seq("^^", iri).Map(child(1))
	literalString := p.Seq(p.StringLit(`"'`), p.Maybe(p.Any(lang, datatype))).Map(stringLiteral)
	literalBool := p.Any(keyword("true"), keyword("false")).Map(func(n *p.Result) {
		n.Result = &boolLit{value: strings.EqualFold(n.Token, "true")}
	})
	literal := p.Any(literalString, numberToken, literalBool)

	graphTerm := p.Any(variableToken, blankNodeToken, iri, literal)
	verb := p.Any(variableToken, iri, keyword("a").Map(func(n *p.Result) {
		n.Result = &rdfType{}
	}))
	objectList := repeatOneOrMore(graphTerm, ",")
	verbObjects := p.Seq(verb, objectList)
	// a trailing ';' is allowed by SPARQL
	propertyListNotEmpty := p.Seq(repeatOneOrMore(verbObjects, ";"), p.Maybe(";")).Map(child(0))
	triples := p.Seq(graphTerm, propertyListNotEmpty).Map(triplesBlock)

	// Expressions, lowest precedence first.
	var expression p.Parser
	bracketted := p.Seq("(", &expression, ")").Map(child(1))
	bound := p.Seq(keyword("BOUND"), "(", variableToken, ")").Map(func(n *p.Result) {
		n.Result = &expr{op: exprBound, term: n.Child[2].Result}
	})
	sameTerm := p.Seq(keyword("sameTerm"), "(", &expression, ",", &expression, ")").Map(func(n *p.Result) {
		n.Result = &expr{op: exprSameTerm, args: []*expr{n.Child[2].Result.(*expr), n.Child[4].Result.(*expr)}}
	})
	termExpr := p.Any(variableToken, iri, literal).Map(func(n *p.Result) {
		n.Result = &expr{op: exprTerm, term: n.Result}
	})
	primary := p.Any(bracketted, bound, sameTerm, termExpr)
	var unary p.Parser
	not := p.Seq("!", &unary).Map(func(n *p.Result) {
		n.Result = &expr{op: exprNot, args: []*expr{n.Child[1].Result.(*expr)}}
	})
	unary = p.Any(not, primary)
	comparison := p.Any(
		p.Exact("!=").Map(compareOp(algebra.OpNotEqual)),
		p.Exact("<=").Map(compareOp(algebra.OpLessOrEqual)),
		p.Exact(">=").Map(compareOp(algebra.OpGreaterOrEqual)),
		p.Exact("=").Map(compareOp(algebra.OpEqual)),
		p.Exact("<").Map(compareOp(algebra.OpLess)),
		p.Exact(">").Map(compareOp(algebra.OpGreater)),
	)
	relationalExpr := p.Seq(unary, p.Maybe(p.Seq(comparison, unary))).Map(relational)
	andExpr := repeatOneOrMore(relationalExpr, "&&").Map(foldBinary(exprAnd))
	expression = repeatOneOrMore(andExpr, "||").Map(foldBinary(exprOr))

	constraint := p.Any(bracketted, bound, sameTerm)
	filter := p.Seq(keyword("FILTER"), p.Cut(), constraint).Map(func(n *p.Result) {
		n.Result = &filterElem{cond: n.Child[2].Result.(*expr)}
	})

	var groupPattern p.Parser
	optional := p.Seq(keyword("OPTIONAL"), p.Cut(), &groupPattern).Map(func(n *p.Result) {
		n.Result = &optionalElem{group: n.Child[2].Result.(*group)}
	})
	union := repeatOneOrMore(&groupPattern, keyword("UNION")).Map(unionGroups)
	element := p.Seq(p.Any(filter, optional, union, triples), p.Maybe(".")).Map(child(0))
	groupPattern = p.Seq("{", repeatZeroOrMore(element), "}").Map(groupGraphPattern)

	whereClause := p.Seq(p.Maybe(keyword("WHERE")), &groupPattern).Map(child(1))

	limit := p.Seq(keyword("LIMIT"), p.Cut(), uint64Literal()).Map(func(n *p.Result) {
		n.Result = limitClause(n.Child[2].Result.(uint64))
	})
	offset := p.Seq(keyword("OFFSET"), p.Cut(), uint64Literal()).Map(func(n *p.Result) {
		n.Result = offsetClause(n.Child[2].Result.(uint64))
	})
	limitOffsetClauses := p.Any(
		p.Seq(limit, p.Maybe(offset)),
		p.Seq(offset, p.Maybe(limit))).Map(limitOffset)

	selectClause := p.Any("*", repeatOneOrMore(variableToken)).Map(selectVars)
	selectQ := p.Seq(keyword("SELECT"), p.Maybe(keyword("DISTINCT")), selectClause,
		whereClause, p.Maybe(limitOffsetClauses)).Map(selectQuery)
	askQ := p.Seq(keyword("ASK"), whereClause).Map(func(n *p.Result) {
		n.Result = &query{ask: true, where: n.Child[1].Result.(*group)}
	})

	prefix := p.Seq(keyword("PREFIX"), p.Cut(), prefixedNameToken, iriRefToken).Map(func(n *p.Result) {
		pn := n.Child[2].Result.(*prefixedName)
		n.Result = prefixDecl{prefix: pn.prefix, iri: n.Child[3].Result.(*iriRef).value}
	})
	root := p.Seq(repeatZeroOrMore(prefix), p.Any(selectQ, askQ)).Map(func(n *p.Result) {
		q := n.Child[1].Result.(*query)
		for _, c := range n.Child[0].Child {
			q.prefixes = append(q.prefixes, c.Result.(prefixDecl))
		}
		n.Result = q
	})
	queryRoot = withWhitespace(sparqlWS, root)
}
