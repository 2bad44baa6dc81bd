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

package binding

import (
	"testing"

	"github.com/ebay/fedx/rdf"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var (
	alice = rdf.IRI("http://example.org/alice")
	bob   = rdf.IRI("http://example.org/bob")
	name  = rdf.String("Alice")
)

func Test_NewSortsAndDedups(t *testing.T) {
	s := New(Pair{"s", alice}, Pair{"o", name}, Pair{"s", bob})
	assert.Equal(t, []string{"o", "s"}, s.Names())
	v, ok := s.Get("s")
	assert.True(t, ok)
	assert.Equal(t, bob, v)
	_, ok = s.Get("p")
	assert.False(t, ok)
	assert.Equal(t, `{?o="Alice" ?s=<http://example.org/bob>}`, s.String())
}

func Test_AddIsCopyOnWrite(t *testing.T) {
	s := New(Pair{"s", alice})
	s2 := s.Add("o", name)
	s3 := s2.Add("s", bob)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s2.Len())
	v, _ := s2.Get("s")
	assert.Equal(t, alice, v)
	v, _ = s3.Get("s")
	assert.Equal(t, bob, v)
	assert.True(t, s2.Add("s", alice).Equal(s2))
}

func Test_MergeAndCompatible(t *testing.T) {
	left := New(Pair{"s", alice}, Pair{"x", name})
	right := New(Pair{"s", alice}, Pair{"o", bob})
	assert.True(t, left.Compatible(right))
	merged := left.Merge(right)
	assert.Equal(t, []string{"o", "s", "x"}, merged.Names())
	assert.False(t, left.Compatible(New(Pair{"s", bob})))
	assert.True(t, Set{}.Merge(left).Equal(left))
	assert.True(t, left.Merge(Set{}).Equal(left))
}

func Test_RetainWithout(t *testing.T) {
	s := New(Pair{"a", alice}, Pair{"b", bob}, Pair{"c", name})
	assert.Equal(t, []string{"a", "c"}, s.Retain("c", "a", "zz").Names())
	assert.Equal(t, []string{"b"}, s.Without("a", "c").Names())
	assert.Equal(t, 3, s.Len())
}

func genSet() *rapid.Generator[Set] {
	return rapid.Custom(func(t *rapid.T) Set {
		m := rapid.MapOfN(
			rapid.SampledFrom([]string{"a", "b", "c", "d"}),
			rapid.SampledFrom([]rdf.Term{alice, bob, name}),
			0, 4).Draw(t, "m")
		return FromMap(m)
	})
}

func Test_MergeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genSet().Draw(t, "a")
		b := genSet().Draw(t, "b")
		m := a.Merge(b)
		for _, p := range a.Pairs() {
			v, ok := m.Get(p.Name)
			if !ok || v != p.Value {
				t.Fatalf("merge lost %v", p)
			}
		}
		for _, p := range b.Pairs() {
			if !m.Has(p.Name) {
				t.Fatalf("merge lost name %v", p.Name)
			}
		}
		if a.Compatible(b) && !m.Equal(b.Merge(a)) {
			t.Fatalf("merge of compatible sets is not commutative: %v %v", a, b)
		}
	})
}
