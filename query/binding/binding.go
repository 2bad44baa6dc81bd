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

// Package binding defines the binding set: one solution of a query, mapping
// variable names to RDF terms.
package binding

import (
	"sort"
	"strings"

	"github.com/ebay/fedx/rdf"
)

// Set is an immutable mapping from variable name to term. The zero Set is
// empty and ready to use. Operations that change a Set return a new one and
// leave the receiver untouched, so Sets can be shared freely between
// goroutines.
type Set struct {
	// pairs is sorted by name, with unique names.
	pairs []Pair
}

// Pair is one variable assignment in a Set.
type Pair struct {
	Name  string
	Value rdf.Term
}

// New returns a Set containing the given pairs. Later pairs win when names
// repeat.
func New(pairs ...Pair) Set {
	if len(pairs) == 0 {
		return Set{}
	}
	sorted := make([]Pair, len(pairs))
	copy(sorted, pairs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	out := sorted[:0]
	for _, p := range sorted {
		if len(out) > 0 && out[len(out)-1].Name == p.Name {
			out[len(out)-1] = p
			continue
		}
		out = append(out, p)
	}
	return Set{pairs: out}
}

// FromMap returns a Set containing the entries of m.
func FromMap(m map[string]rdf.Term) Set {
	pairs := make([]Pair, 0, len(m))
	for name, v := range m {
		pairs = append(pairs, Pair{Name: name, Value: v})
	}
	return New(pairs...)
}

// Len returns the number of bound variables.
func (s Set) Len() int {
	return len(s.pairs)
}

// Pairs returns the assignments in name order. The caller must not modify the
// returned slice.
func (s Set) Pairs() []Pair {
	return s.pairs
}

// Names returns the bound variable names in sorted order.
func (s Set) Names() []string {
	names := make([]string, len(s.pairs))
	for i, p := range s.pairs {
		names[i] = p.Name
	}
	return names
}

func (s Set) find(name string) (int, bool) {
	i := sort.Search(len(s.pairs), func(i int) bool {
		return s.pairs[i].Name >= name
	})
	return i, i < len(s.pairs) && s.pairs[i].Name == name
}

// Get returns the value bound to name.
func (s Set) Get(name string) (rdf.Term, bool) {
	i, ok := s.find(name)
	if !ok {
		return rdf.Term{}, false
	}
	return s.pairs[i].Value, true
}

// Has returns true if name is bound.
func (s Set) Has(name string) bool {
	_, ok := s.find(name)
	return ok
}

// Add returns a copy of s with name bound to v, replacing any existing value.
func (s Set) Add(name string, v rdf.Term) Set {
	i, ok := s.find(name)
	if ok {
		if s.pairs[i].Value == v {
			return s
		}
		res := make([]Pair, len(s.pairs))
		copy(res, s.pairs)
		res[i].Value = v
		return Set{pairs: res}
	}
	res := make([]Pair, 0, len(s.pairs)+1)
	res = append(res, s.pairs[:i]...)
	res = append(res, Pair{Name: name, Value: v})
	res = append(res, s.pairs[i:]...)
	return Set{pairs: res}
}

// Merge returns the union of s and other. Where both bind a name, the value
// from s is kept; use Compatible first when that matters.
func (s Set) Merge(other Set) Set {
	if len(other.pairs) == 0 {
		return s
	}
	if len(s.pairs) == 0 {
		return other
	}
	res := make([]Pair, 0, len(s.pairs)+len(other.pairs))
	i, j := 0, 0
	for i < len(s.pairs) && j < len(other.pairs) {
		a, b := s.pairs[i], other.pairs[j]
		switch {
		case a.Name < b.Name:
			res = append(res, a)
			i++
		case a.Name > b.Name:
			res = append(res, b)
			j++
		default:
			res = append(res, a)
			i++
			j++
		}
	}
	res = append(res, s.pairs[i:]...)
	res = append(res, other.pairs[j:]...)
	return Set{pairs: res}
}

// Compatible returns true if every name bound in both s and other has the same
// value in each.
func (s Set) Compatible(other Set) bool {
	i, j := 0, 0
	for i < len(s.pairs) && j < len(other.pairs) {
		a, b := s.pairs[i], other.pairs[j]
		switch {
		case a.Name < b.Name:
			i++
		case a.Name > b.Name:
			j++
		default:
			if a.Value != b.Value {
				return false
			}
			i++
			j++
		}
	}
	return true
}

// Retain returns a copy of s holding only the given names.
func (s Set) Retain(names ...string) Set {
	res := make([]Pair, 0, len(names))
	for _, p := range s.pairs {
		for _, n := range names {
			if p.Name == n {
				res = append(res, p)
				break
			}
		}
	}
	return Set{pairs: res}
}

// Without returns a copy of s with the given names removed.
func (s Set) Without(names ...string) Set {
	res := make([]Pair, 0, len(s.pairs))
outer:
	for _, p := range s.pairs {
		for _, n := range names {
			if p.Name == n {
				continue outer
			}
		}
		res = append(res, p)
	}
	return Set{pairs: res}
}

// Equal returns true if s and other bind the same names to the same values.
func (s Set) Equal(other Set) bool {
	if len(s.pairs) != len(other.pairs) {
		return false
	}
	for i := range s.pairs {
		if s.pairs[i] != other.pairs[i] {
			return false
		}
	}
	return true
}

// Key writes the identity of the set to b. Equal sets have equal keys.
func (s Set) Key(b *strings.Builder) {
	b.WriteByte('{')
	for i, p := range s.pairs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('?')
		b.WriteString(p.Name)
		b.WriteByte('=')
		p.Value.Key(b)
	}
	b.WriteByte('}')
}

// String returns a human-readable form of the set, such as
// {?s=<http://a> ?o="x"}.
func (s Set) String() string {
	var b strings.Builder
	s.Key(&b)
	return b.String()
}
