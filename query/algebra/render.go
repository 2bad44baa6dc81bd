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

package algebra

import (
	"fmt"
	"strings"
)

// RenderSelect renders n as a SPARQL SELECT query projecting vars. If vars
// is empty, every variable of n is projected, or * when n has none.
func RenderSelect(n Node, vars []string, distinct bool) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if distinct {
		b.WriteString("DISTINCT ")
	}
	if len(vars) == 0 {
		vars = Vars(n)
	}
	if len(vars) == 0 {
		b.WriteString("*")
	}
	for i, v := range vars {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('?')
		b.WriteString(v)
	}
	b.WriteString(" WHERE { ")
	renderGroup(&b, n)
	b.WriteString("}")
	return b.String()
}

// RenderAsk renders n as a SPARQL ASK query.
func RenderAsk(n Node) string {
	var b strings.Builder
	b.WriteString("ASK { ")
	renderGroup(&b, n)
	b.WriteString("}")
	return b.String()
}

// RenderQuery renders a full query, applying its projection and modifiers.
func RenderQuery(q *Query) string {
	if q.Form == FormAsk {
		return RenderAsk(q.Root)
	}
	return RenderSelect(q.Root, q.Projection, false)
}

// renderGroup writes the elements of a group graph pattern for n, each
// followed by a space.
func renderGroup(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case *StatementPattern:
		renderPattern(b, n)
	case *ExclusiveGroup:
		for _, p := range n.Patterns {
			renderPattern(b, p)
		}
		for _, f := range n.Filters {
			renderFilter(b, f)
		}
	case *Join:
		for _, a := range n.Args {
			renderNested(b, a)
		}
	case *IndependentGroup:
		for _, a := range n.Parts {
			renderNested(b, a)
		}
	case *LeftJoin:
		renderNested(b, n.Left)
		b.WriteString("OPTIONAL { ")
		renderGroup(b, n.Right)
		if n.Condition != nil {
			renderFilter(b, n.Condition)
		}
		b.WriteString("} ")
	case *Union:
		if len(n.Args) == 0 {
			b.WriteString("FILTER(false) ")
			return
		}
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString("UNION ")
			}
			b.WriteString("{ ")
			renderGroup(b, a)
			b.WriteString("} ")
		}
	case *Filter:
		b.WriteString("{ ")
		renderGroup(b, n.Arg)
		renderFilter(b, n.Condition)
		b.WriteString("} ")
	case *Extend:
		b.WriteString("{ ")
		renderGroup(b, n.Arg)
		fmt.Fprintf(b, "BIND(%s AS ?%s) ", renderExpr(n.Expr), n.Var)
		b.WriteString("} ")
	case *Projection, *Distinct, *Slice:
		b.WriteString("{ ")
		renderSubSelect(b, n)
		b.WriteString("} ")
	case *Empty:
		b.WriteString("FILTER(false) ")
	case *SingletonSet:
	default:
		panic(fmt.Sprintf("renderGroup: unexpected node type %T", n))
	}
}

// renderNested writes n as an element of an enclosing group. Joins flatten
// into the enclosing group; unions need their own braces.
func renderNested(b *strings.Builder, n Node) {
	if _, ok := n.(*Union); ok {
		b.WriteString("{ ")
		renderGroup(b, n)
		b.WriteString("} ")
		return
	}
	renderGroup(b, n)
}

func renderSubSelect(b *strings.Builder, n Node) {
	var offset, limit int64 = 0, -1
	if s, ok := n.(*Slice); ok {
		offset, limit = s.Offset, s.Limit
		n = s.Arg
	}
	distinct := false
	if d, ok := n.(*Distinct); ok {
		distinct = true
		n = d.Arg
	}
	var vars []string
	if p, ok := n.(*Projection); ok {
		vars = p.Vars
		n = p.Arg
	}
	b.WriteString(RenderSelect(n, vars, distinct))
	if limit >= 0 {
		fmt.Fprintf(b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(b, " OFFSET %d", offset)
	}
	b.WriteByte(' ')
}

func renderPattern(b *strings.Builder, p *StatementPattern) {
	b.WriteString(p.Subject.String())
	b.WriteByte(' ')
	b.WriteString(p.Predicate.String())
	b.WriteByte(' ')
	b.WriteString(p.Object.String())
	b.WriteString(" . ")
}

func renderFilter(b *strings.Builder, e Expr) {
	b.WriteString("FILTER(")
	b.WriteString(renderExpr(e))
	b.WriteString(") ")
}

func renderExpr(e Expr) string {
	switch e := e.(type) {
	case *Variable, *Constant:
		return e.String()
	case *Compare:
		return fmt.Sprintf("(%s %s %s)", renderExpr(e.Left), e.Op, renderExpr(e.Right))
	case *And:
		return fmt.Sprintf("(%s && %s)", renderExpr(e.Left), renderExpr(e.Right))
	case *Or:
		return fmt.Sprintf("(%s || %s)", renderExpr(e.Left), renderExpr(e.Right))
	case *Not:
		return fmt.Sprintf("!(%s)", renderExpr(e.Arg))
	case *Bound:
		return fmt.Sprintf("BOUND(%s)", e.Var)
	case *SameTerm:
		return fmt.Sprintf("sameTerm(%s, %s)", renderExpr(e.Left), renderExpr(e.Right))
	}
	panic(fmt.Sprintf("renderExpr: unexpected expression type %T", e))
}
