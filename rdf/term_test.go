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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_TermString(t *testing.T) {
	tests := []struct {
		term Term
		exp  string
	}{
		{IRI("http://example.org/a"), "<http://example.org/a>"},
		{Blank("b0"), "_:b0"},
		{String("hello"), `"hello"`},
		{String(`say "hi"`), `"say \"hi\""`},
		{LangString("chat", "FR"), `"chat"@fr`},
		{Integer(42), `"42"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{Term{}, "*"},
	}
	for _, test := range tests {
		t.Run(test.exp, func(t *testing.T) {
			assert.Equal(t, test.exp, test.term.String())
		})
	}
}

func Test_ParseTermRoundTrip(t *testing.T) {
	terms := []Term{
		IRI("http://example.org/a"),
		Blank("x1"),
		String("tab\there"),
		LangString("bonjour", "fr"),
		Typed("1.5", XSDDecimal),
		Boolean(true),
	}
	for _, term := range terms {
		parsed, err := ParseTerm(term.String())
		require.NoError(t, err, term.String())
		assert.Equal(t, term, parsed)
	}
}

func Test_ParseTermErrors(t *testing.T) {
	for _, in := range []string{"", "<http://a", "_:", `"open`, `"x"@`, `"x"^^xsd:int`, "plain"} {
		_, err := ParseTerm(in)
		assert.Error(t, err, in)
	}
}

func Test_Compare(t *testing.T) {
	assert.True(t, Compare(Integer(9), Integer(10)) < 0)
	assert.True(t, Compare(Typed("2.0", XSDDecimal), Integer(2)) != 0, "same value, different datatype")
	assert.Equal(t, 0, Compare(IRI("a"), IRI("a")))
	assert.True(t, Compare(Blank("z"), IRI("a")) < 0)
	assert.True(t, Compare(IRI("z"), String("a")) < 0)
	assert.True(t, Compare(Term{}, Blank("a")) < 0)
}

func Test_Bool(t *testing.T) {
	v, ok := Boolean(false).Bool()
	assert.True(t, ok)
	assert.False(t, v)
	v, ok = Integer(3).Bool()
	assert.True(t, ok)
	assert.True(t, v)
	v, ok = String("").Bool()
	assert.True(t, ok)
	assert.False(t, v)
	_, ok = IRI("x").Bool()
	assert.False(t, ok)
}

func Test_StatementMatches(t *testing.T) {
	st := Statement{Subject: IRI("s"), Predicate: IRI("p"), Object: String("o"), Context: IRI("g")}
	assert.True(t, st.Matches(Term{}, Term{}, Term{}))
	assert.True(t, st.Matches(IRI("s"), Term{}, String("o")))
	assert.False(t, st.Matches(IRI("x"), Term{}, Term{}))
	assert.True(t, st.Matches(Term{}, Term{}, Term{}, IRI("h"), IRI("g")))
	assert.False(t, st.Matches(Term{}, Term{}, Term{}, IRI("h")))
	assert.Equal(t, `<s> <p> "o" <g> .`, st.String())
}
