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

// Package algebra defines the query tree that flows from the parser through
// the optimizer to the executor. Nodes form a sum type: see ImplementNode for
// the list of node types. Each evaluation clones the parsed tree before
// rewriting it, and rewrites build new nodes instead of mutating shared ones.
package algebra

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ebay/fedx/util/cmp"
)

// Node is a node in the query tree.
type Node interface {
	cmp.Key
	String() string
	aNode()
}

// ImplementNode is a list of types that implement Node.
// This serves as documentation and as a compile-time check.
var ImplementNode = []Node{
	new(StatementPattern),
	new(Join),
	new(LeftJoin),
	new(Union),
	new(Filter),
	new(Extend),
	new(Projection),
	new(Distinct),
	new(Slice),
	new(Empty),
	new(SingletonSet),
	new(ExclusiveGroup),
	new(IndependentGroup),
}

// StatementPattern is a triple pattern. Before source selection, Owners is
// empty, which means every member must be consulted. After source selection,
// Owners lists the ids of the members that can contribute, in federation
// order; a pattern with exactly one owner is exclusive to that member.
type StatementPattern struct {
	Subject   Term
	Predicate Term
	Object    Term
	Owners    []string
	// Distinct is set when results gathered from several owners need
	// cross-member duplicate elimination.
	Distinct bool
}

// Exclusive returns the single owner of the pattern, if there is one.
func (p *StatementPattern) Exclusive() (string, bool) {
	if len(p.Owners) == 1 {
		return p.Owners[0], true
	}
	return "", false
}

// Join is an n-ary inner join, evaluated left to right.
type Join struct {
	Args []Node
}

// LeftJoin is an OPTIONAL: every Left solution is kept, extended by the
// compatible Right solutions that satisfy Condition (which may be nil).
type LeftJoin struct {
	Left      Node
	Right     Node
	Condition Expr
}

// Union concatenates the solutions of its arguments.
type Union struct {
	Args []Node
}

// Filter removes solutions of Arg for which Condition is not true.
type Filter struct {
	Condition Expr
	Arg       Node
}

// Extend binds Var to the value of Expr in each solution of Arg.
type Extend struct {
	Arg  Node
	Var  string
	Expr Expr
}

// Projection keeps only Vars in each solution of Arg.
type Projection struct {
	Vars []string
	Arg  Node
}

// Distinct removes duplicate solutions.
type Distinct struct {
	Arg Node
}

// Slice skips Offset solutions and then returns at most Limit solutions. A
// negative Limit means no limit.
type Slice struct {
	Offset int64
	Limit  int64
	Arg    Node
}

// Empty produces no solutions. The optimizer uses it to mark sub-plans that
// cannot contribute.
type Empty struct{}

// SingletonSet produces exactly one solution: the input bindings.
type SingletonSet struct{}

// ExclusiveGroup is a run of statement patterns that are all owned by the
// single member Owner, together with the filters that only reference their
// variables. The group is sent to the owner as one request.
type ExclusiveGroup struct {
	Owner    string
	Patterns []*StatementPattern
	Filters  []Expr
	// Prepared is the tree sent to the owner; it is set by the optimizer's
	// final pass and rebuilt by Prepare when missing.
	Prepared Node
	// Text is the SPARQL rendering of Prepared, kept for logging and
	// explain output.
	Text string
}

// Prepare returns the tree to send to the group's owner.
func (g *ExclusiveGroup) Prepare() Node {
	if g.Prepared != nil {
		return g.Prepared
	}
	args := make([]Node, len(g.Patterns))
	for i, p := range g.Patterns {
		args[i] = p
	}
	var n Node = &Join{Args: args}
	if len(args) == 1 {
		n = args[0]
	}
	if len(g.Filters) > 0 {
		n = &Filter{Condition: Conjunction(g.Filters...), Arg: n}
	}
	return n
}

// IndependentGroup is a set of parts, all owned by Owner, that share no
// variables with each other. The parts are sent to the owner as one combined
// request and their solutions are recombined afterwards.
type IndependentGroup struct {
	Owner string
	Parts []Node
}

func (*StatementPattern) aNode() {}
func (*Join) aNode()             {}
func (*LeftJoin) aNode()         {}
func (*Union) aNode()            {}
func (*Filter) aNode()           {}
func (*Extend) aNode()           {}
func (*Projection) aNode()       {}
func (*Distinct) aNode()         {}
func (*Slice) aNode()            {}
func (*Empty) aNode()            {}
func (*SingletonSet) aNode()     {}
func (*ExclusiveGroup) aNode()   {}
func (*IndependentGroup) aNode() {}

func (n *StatementPattern) String() string { return cmp.GetKey(n) }

// Key implements cmp.Key.
func (n *StatementPattern) Key(b *strings.Builder) {
	b.WriteString("Pattern(")
	n.Subject.Key(b)
	b.WriteByte(' ')
	n.Predicate.Key(b)
	b.WriteByte(' ')
	n.Object.Key(b)
	if len(n.Owners) > 0 {
		b.WriteString(" @")
		b.WriteString(strings.Join(n.Owners, ","))
	}
	if n.Distinct {
		b.WriteString(" distinct")
	}
	b.WriteByte(')')
}

func (n *Join) String() string { return cmp.GetKey(n) }

// Key implements cmp.Key.
func (n *Join) Key(b *strings.Builder) {
	keyArgs(b, "Join", n.Args)
}

func (n *LeftJoin) String() string { return cmp.GetKey(n) }

// Key implements cmp.Key.
func (n *LeftJoin) Key(b *strings.Builder) {
	b.WriteString("LeftJoin(")
	n.Left.Key(b)
	b.WriteString(", ")
	n.Right.Key(b)
	if n.Condition != nil {
		b.WriteString(" ON ")
		n.Condition.Key(b)
	}
	b.WriteByte(')')
}

func (n *Union) String() string { return cmp.GetKey(n) }

// Key implements cmp.Key.
func (n *Union) Key(b *strings.Builder) {
	keyArgs(b, "Union", n.Args)
}

func (n *Filter) String() string { return cmp.GetKey(n) }

// Key implements cmp.Key.
func (n *Filter) Key(b *strings.Builder) {
	b.WriteString("Filter(")
	n.Condition.Key(b)
	b.WriteString(", ")
	n.Arg.Key(b)
	b.WriteByte(')')
}

func (n *Extend) String() string { return cmp.GetKey(n) }

// Key implements cmp.Key.
func (n *Extend) Key(b *strings.Builder) {
	b.WriteString("Extend(?")
	b.WriteString(n.Var)
	b.WriteString(" := ")
	n.Expr.Key(b)
	b.WriteString(", ")
	n.Arg.Key(b)
	b.WriteByte(')')
}

func (n *Projection) String() string { return cmp.GetKey(n) }

// Key implements cmp.Key.
func (n *Projection) Key(b *strings.Builder) {
	b.WriteString("Projection(")
	for _, v := range n.Vars {
		b.WriteByte('?')
		b.WriteString(v)
		b.WriteByte(' ')
	}
	n.Arg.Key(b)
	b.WriteByte(')')
}

func (n *Distinct) String() string { return cmp.GetKey(n) }

// Key implements cmp.Key.
func (n *Distinct) Key(b *strings.Builder) {
	b.WriteString("Distinct(")
	n.Arg.Key(b)
	b.WriteByte(')')
}

func (n *Slice) String() string { return cmp.GetKey(n) }

// Key implements cmp.Key.
func (n *Slice) Key(b *strings.Builder) {
	b.WriteString("Slice(")
	b.WriteString(strconv.FormatInt(n.Offset, 10))
	b.WriteByte(',')
	b.WriteString(strconv.FormatInt(n.Limit, 10))
	b.WriteString(", ")
	n.Arg.Key(b)
	b.WriteByte(')')
}

func (n *Empty) String() string { return "Empty" }

// Key implements cmp.Key.
func (n *Empty) Key(b *strings.Builder) { b.WriteString("Empty") }

func (n *SingletonSet) String() string { return "Singleton" }

// Key implements cmp.Key.
func (n *SingletonSet) Key(b *strings.Builder) { b.WriteString("Singleton") }

func (n *ExclusiveGroup) String() string { return cmp.GetKey(n) }

// Key implements cmp.Key.
func (n *ExclusiveGroup) Key(b *strings.Builder) {
	b.WriteString("ExclusiveGroup@")
	b.WriteString(n.Owner)
	b.WriteByte('(')
	for i, p := range n.Patterns {
		if i > 0 {
			b.WriteString(", ")
		}
		p.Key(b)
	}
	for _, f := range n.Filters {
		b.WriteString(" FILTER ")
		f.Key(b)
	}
	b.WriteByte(')')
}

func (n *IndependentGroup) String() string { return cmp.GetKey(n) }

// Key implements cmp.Key.
func (n *IndependentGroup) Key(b *strings.Builder) {
	keyArgs(b, "IndependentGroup@"+n.Owner, n.Parts)
}

func keyArgs(b *strings.Builder, name string, args []Node) {
	b.WriteString(name)
	b.WriteByte('(')
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		a.Key(b)
	}
	b.WriteByte(')')
}

// Format returns a multi-line, indented rendering of the tree, used for
// debug logs and explain output.
func Format(n Node) string {
	var b strings.Builder
	format(&b, n, 0)
	return b.String()
}

func format(b *strings.Builder, n Node, depth int) {
	indent := strings.Repeat("  ", depth)
	b.WriteString(indent)
	switch n := n.(type) {
	case *StatementPattern, *Empty, *SingletonSet, *ExclusiveGroup:
		n.Key(b)
		b.WriteByte('\n')
	case *Join:
		b.WriteString("Join\n")
		formatArgs(b, n.Args, depth)
	case *Union:
		b.WriteString("Union\n")
		formatArgs(b, n.Args, depth)
	case *IndependentGroup:
		fmt.Fprintf(b, "IndependentGroup@%s\n", n.Owner)
		formatArgs(b, n.Parts, depth)
	case *LeftJoin:
		b.WriteString("LeftJoin")
		if n.Condition != nil {
			b.WriteString(" ON ")
			n.Condition.Key(b)
		}
		b.WriteByte('\n')
		format(b, n.Left, depth+1)
		format(b, n.Right, depth+1)
	case *Filter:
		b.WriteString("Filter ")
		n.Condition.Key(b)
		b.WriteByte('\n')
		format(b, n.Arg, depth+1)
	case *Extend:
		fmt.Fprintf(b, "Extend ?%s := %s\n", n.Var, n.Expr)
		format(b, n.Arg, depth+1)
	case *Projection:
		fmt.Fprintf(b, "Projection %v\n", n.Vars)
		format(b, n.Arg, depth+1)
	case *Distinct:
		b.WriteString("Distinct\n")
		format(b, n.Arg, depth+1)
	case *Slice:
		fmt.Fprintf(b, "Slice offset=%d limit=%d\n", n.Offset, n.Limit)
		format(b, n.Arg, depth+1)
	default:
		panic(fmt.Sprintf("Format: unexpected node type %T", n))
	}
}

func formatArgs(b *strings.Builder, args []Node, depth int) {
	for _, a := range args {
		format(b, a, depth+1)
	}
}
