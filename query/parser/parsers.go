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
	"strconv"
	"strings"

	"github.com/vektah/goparsify"
)

// repeatZeroOrMore matches zero or more parsers and returns the value as
// .Child[n]. An optional separator can be provided and that value will be
// consumed but not returned. Only one separator can be provided.
//
// This and repeatOneOrMore exist because the difference between Some & Many is
// not obvious from the name.
func repeatZeroOrMore(p goparsify.Parserish, sep ...goparsify.Parserish) goparsify.Parser {
	return goparsify.Some(p, sep...)
}

// repeatOneOrMore matches one or more parsers and returns the value as
// .Child[n]. An optional separator can be provided and that value will be
// consumed but not returned. Only one separator can be provided.
func repeatOneOrMore(p goparsify.Parserish, sep ...goparsify.Parserish) goparsify.Parser {
	return goparsify.Many(p, sep...)
}

// withWhitespace will set Auto Whitespace to 'ws' for parser and all its
// children. The original Whitespace settting will be restored once 'parser'
// returns.
func withWhitespace(ws goparsify.VoidParser, parserish goparsify.Parserish) goparsify.Parser {
	parser := goparsify.Parsify(parserish)
	return func(ps *goparsify.State, node *goparsify.Result) {
		oldWS := ps.WS
		ps.WS = ws
		parser(ps, node)
		ps.WS = oldWS
	}
}

// sparqlWS is a goparsify Whitespace parser that understands SPARQLs whitespace
// rules. Whitespace chars are ' ' \t \r \n only. # starts a comment which runs
// to the end of the line
func sparqlWS(s *goparsify.State) {
	for s.Pos < len(s.Input) {
		switch s.Input[s.Pos] {
		case ' ', '\t', '\r', '\n':
			s.Pos++
		case '#':
			s.Pos++
			for s.Pos < len(s.Input) {
				c := s.Input[s.Pos]
				s.Pos++
				if c == '\n' || c == '\r' {
					break
				}
			}
		default:
			return
		}
	}
}

func isNameChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c >= 0x80
}

// keyword returns a parser that matches the supplied word ignoring case. The
// word must not be directly followed by another name character, so that
// "a" does not match the start of "abc:x".
func keyword(word string) goparsify.Parser {
	lenMatch := len(word)
	return goparsify.NewParser("i/"+word+"/", func(s *goparsify.State, r *goparsify.Result) {
		s.WS(s)
		in := s.Get()
		if len(in) < lenMatch || !strings.EqualFold(word, in[:lenMatch]) {
			s.ErrorHere(word)
			return
		}
		if len(in) > lenMatch && (isNameChar(in[lenMatch]) || in[lenMatch] == ':') {
			s.ErrorHere(word)
			return
		}
		s.Advance(lenMatch)
		r.Token = in[:lenMatch]
	})
}

// scanToken returns a parser that skips whitespace and then consumes the
// longest prefix accepted by scan. scan returns the length of the token, or
// 0 if there is none, and may set r.Result.
func scanToken(description string, scan func(in string, r *goparsify.Result) int) goparsify.Parser {
	return goparsify.NewParser(description, func(s *goparsify.State, r *goparsify.Result) {
		s.WS(s)
		in := s.Get()
		n := scan(in, r)
		if n <= 0 {
			s.ErrorHere(description)
			return
		}
		r.Token = in[:n]
		s.Advance(n)
	})
}

// iriRefToken matches <...>.
var iriRefToken = scanToken("IRI", func(in string, r *goparsify.Result) int {
	if len(in) < 2 || in[0] != '<' {
		return 0
	}
	for i := 1; i < len(in); i++ {
		switch in[i] {
		case '>':
			r.Result = &iriRef{value: in[1:i]}
			return i + 1
		case ' ', '\t', '\n', '\r', '<', '"', '{', '}', '|', '^', '`':
			return 0
		}
	}
	return 0
})

// prefixedNameToken matches prefix:local, where either part may be empty.
var prefixedNameToken = scanToken("prefixed name", func(in string, r *goparsify.Result) int {
	i := 0
	for i < len(in) && (isNameChar(in[i]) || (i > 0 && (in[i] == '-' || in[i] == '.'))) {
		i++
	}
	// a prefix can't end in '.'
	for i > 0 && in[i-1] == '.' {
		i--
	}
	if i >= len(in) || in[i] != ':' {
		return 0
	}
	colon := i
	i++
	for i < len(in) && (isNameChar(in[i]) || in[i] == '-' || in[i] == '.' || in[i] == '%') {
		i++
	}
	for i > colon+1 && in[i-1] == '.' {
		i--
	}
	r.Result = &prefixedName{prefix: in[:colon], local: in[colon+1 : i]}
	return i
})

// variableToken matches ?name or $name.
var variableToken = scanToken("variable", func(in string, r *goparsify.Result) int {
	if len(in) < 2 || (in[0] != '?' && in[0] != '$') {
		return 0
	}
	i := 1
	for i < len(in) && isNameChar(in[i]) {
		i++
	}
	if i == 1 {
		return 0
	}
	r.Result = &variable{name: in[1:i]}
	return i
})

// blankNodeToken matches _:label.
var blankNodeToken = scanToken("blank node", func(in string, r *goparsify.Result) int {
	if !strings.HasPrefix(in, "_:") {
		return 0
	}
	i := 2
	for i < len(in) && (isNameChar(in[i]) || in[i] == '-') {
		i++
	}
	if i == 2 {
		return 0
	}
	r.Result = &blankNode{label: in[2:i]}
	return i
})

// numberToken matches an integer, decimal or double, keeping its lexical
// form.
var numberToken = scanToken("number", func(in string, r *goparsify.Result) int {
	i := 0
	if i < len(in) && (in[i] == '+' || in[i] == '-') {
		i++
	}
	digits := func() int {
		start := i
		for i < len(in) && in[i] >= '0' && in[i] <= '9' {
			i++
		}
		return i - start
	}
	kind := numInteger
	n := digits()
	if i < len(in) && in[i] == '.' && i+1 < len(in) && in[i+1] >= '0' && in[i+1] <= '9' {
		i++
		n += digits()
		kind = numDecimal
	}
	if n == 0 {
		return 0
	}
	if i < len(in) && (in[i] == 'e' || in[i] == 'E') {
		save := i
		i++
		if i < len(in) && (in[i] == '+' || in[i] == '-') {
			i++
		}
		if digits() == 0 {
			i = save
		} else {
			kind = numDouble
		}
	}
	r.Result = &numberLit{lexical: in[:i], kind: kind}
	return i
})

// langTagToken matches @en or @en-GB immediately after a string literal.
var langTagToken = goparsify.NewParser("language tag", func(s *goparsify.State, r *goparsify.Result) {
	in := s.Get()
	if len(in) < 2 || in[0] != '@' {
		s.ErrorHere("language tag")
		return
	}
	i := 1
	for i < len(in) && (isNameChar(in[i]) || in[i] == '-') {
		i++
	}
	if i == 1 {
		s.ErrorHere("language tag")
		return
	}
	r.Token = in[1:i]
	s.Advance(i)
})

// uint64Literal parses a uint64 in base 10 from state.
func uint64Literal() goparsify.Parser {
	return goparsify.NewParser("uint64Literal", func(ps *goparsify.State, node *goparsify.Result) {
		ps.WS(ps)
		maxPos := ps.Pos
		len := len(ps.Input)
		for maxPos < len && ps.Input[maxPos] >= '0' && ps.Input[maxPos] <= '9' {
			maxPos++
		}
		if maxPos == ps.Pos {
			ps.ErrorHere("number")
			return
		}
		var err error
		node.Result, err = strconv.ParseUint(ps.Input[ps.Pos:maxPos], 10, 64)
		if err != nil {
			ps.ErrorHere("number")
			return
		}
		ps.Pos = maxPos
	})
}
