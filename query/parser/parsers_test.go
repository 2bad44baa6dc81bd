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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vektah/goparsify"
)

func Test_WithWhitespace(t *testing.T) {
	ws := func(update *bool) func(*goparsify.State) {
		return func(*goparsify.State) {
			*update = true
		}
	}
	var wsBobCalled, wsAliceCalled bool
	p := goparsify.Any(withWhitespace(ws(&wsAliceCalled), "Alice"), withWhitespace(ws(&wsBobCalled), "Bob"))
	goparsify.Run(p, "Eve")
	assert.True(t, wsBobCalled)
	assert.True(t, wsAliceCalled)
}

func Test_SparqlWS(t *testing.T) {
	trimLeft := func(in string) string {
		s := goparsify.State{Input: in}
		sparqlWS(&s)
		return in[s.Pos:]
	}
	assert.Equal(t, "", trimLeft(" \t\r\n \t"))
	assert.Equal(t, "bob ", trimLeft("bob "))
	assert.Equal(t, "hello", trimLeft("# hello word\n\thello"))
	assert.Equal(t, "hello", trimLeft("\t# hello word\r\n    hello"))
	assert.Equal(t, "", trimLeft("#"))
	assert.Equal(t, "", trimLeft("#\n"))
}

func Test_Keyword(t *testing.T) {
	parse := func(p goparsify.Parser, input string, expToken string, expError string) {
		res, err := goparsify.Run(p.Map(func(n *goparsify.Result) {
			n.Result = n.Token
		}), input, sparqlWS)
		if expError == "" {
			assert.NoError(t, err)
			assert.Equal(t, expToken, res)
		} else {
			assert.EqualError(t, err, expError)
		}
	}
	parse(keyword("SELECT"), "select", "select", "")
	parse(keyword("SELECT"), "SELECT", "SELECT", "")
	parse(keyword("Distinct"), "dIsTiNcT", "dIsTiNcT", "")
	parse(keyword("WHERE"), "   \t WHERE", "WHERE", "")
	parse(keyword("SELECT"), "ASK", "", "offset 0: expected SELECT")
	parse(keyword("WHERE"), "WHEREx", "", "offset 0: expected WHERE")
	parse(keyword("a"), "a:b", "", "offset 0: expected a")
}

func Test_Tokens(t *testing.T) {
	tests := []struct {
		name   string
		parser goparsify.Parser
		in     string
		exp    interface{}
	}{
		{"iri", iriRefToken, "<http://ex/a>", &iriRef{value: "http://ex/a"}},
		{"prefixed", prefixedNameToken, "foaf:name", &prefixedName{prefix: "foaf", local: "name"}},
		{"empty prefix", prefixedNameToken, ":x", &prefixedName{prefix: "", local: "x"}},
		{"empty local", prefixedNameToken, "ex:", &prefixedName{prefix: "ex", local: ""}},
		{"dotted local", prefixedNameToken, "ex:a.b", &prefixedName{prefix: "ex", local: "a.b"}},
		{"variable", variableToken, "?name", &variable{name: "name"}},
		{"dollar variable", variableToken, "$v1", &variable{name: "v1"}},
		{"blank", blankNodeToken, "_:b0", &blankNode{label: "b0"}},
		{"integer", numberToken, "42", &numberLit{lexical: "42", kind: numInteger}},
		{"negative decimal", numberToken, "-1.5", &numberLit{lexical: "-1.5", kind: numDecimal}},
		{"double", numberToken, "1e3", &numberLit{lexical: "1e3", kind: numDouble}},
		{"uint64", uint64Literal(), "1234", uint64(1234)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			res, err := goparsify.Run(test.parser, test.in, sparqlWS)
			assert.NoError(t, err)
			assert.Equal(t, test.exp, res)
		})
	}
}

func Test_TokenErrors(t *testing.T) {
	_, err := goparsify.Run(iriRefToken, "<http://ex/a b>", sparqlWS)
	assert.EqualError(t, err, "offset 0: expected IRI")
	_, err = goparsify.Run(variableToken, "?", sparqlWS)
	assert.EqualError(t, err, "offset 0: expected variable")
	_, err = goparsify.Run(prefixedNameToken, "name", sparqlWS)
	assert.EqualError(t, err, "offset 0: expected prefixed name")
	_, err = goparsify.Run(numberToken, "1.", sparqlWS)
	assert.EqualError(t, err, "left unparsed: .")
}
