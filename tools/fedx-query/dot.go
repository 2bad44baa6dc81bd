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

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ebay/fedx/query/algebra"
)

// writeDot writes the plan tree as a Graphviz spec, one box per node with
// edges to its children.
func writeDot(w io.Writer, root algebra.Node) {
	fmt.Fprintln(w, "digraph plan {")
	fmt.Fprintln(w, "  node [shape=box fontname=\"Helvetica\"];")
	next := 0
	var visit func(n algebra.Node) int
	visit = func(n algebra.Node) int {
		id := next
		next++
		fmt.Fprintf(w, "  n%d [label=%s];\n", id, strconv.Quote(label(n)))
		for _, c := range algebra.Children(n) {
			child := visit(c)
			fmt.Fprintf(w, "  n%d -> n%d;\n", id, child)
		}
		return id
	}
	visit(root)
	fmt.Fprintln(w, "}")
}

// label returns the description of n alone, without its children.
func label(n algebra.Node) string {
	first := algebra.Format(n)
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	return first
}
