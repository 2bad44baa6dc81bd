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
	"unicode"
	"unicode/utf8"

	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/util/cmp"
	log "github.com/sirupsen/logrus"
	"github.com/vektah/goparsify"
)

// MustParse parses a query and panics if an error occurs. It simplifies
// variable initialization and is primarily meant for writing unit tests.
func MustParse(in string) *algebra.Query {
	query, err := Parse(in)
	if err != nil {
		panic(fmt.Sprintf("unable to parse query: '%s': %v", strings.Replace(in, "\n", "\\n", -1), err))
	}
	return query
}

// Parse parses a SELECT or ASK query and translates it into an algebra
// tree. Parse errors are returned as *ParseError; errors found while
// translating (such as an undeclared prefix) are returned as plain errors.
func Parse(in string) (*algebra.Query, error) {
	result, err := parse("query", in, queryRoot)
	if err != nil {
		return nil, err
	}
	q, ok := result.Result.(*query)
	if !ok {
		return nil, fmt.Errorf("invalid result type: %T", result.Result)
	}
	return q.toAlgebra()
}

// parse runs parser over in. If it's unable to fully parse the input a
// ParseError will be returned that includes the position of where it parsed
// to, and what the problem is.
func parse(typ string, in string, parser goparsify.Parser) (*goparsify.Result, error) {
	state := goparsify.NewState(in)
	state.WS = goparsify.NoWhitespace
	sparqlWS(state)

	result := &goparsify.Result{}
	parser(state, result)
	if state.Errored() {
		line, col := coordinates(in, state.Error.Pos())
		exp := strings.TrimPrefix(fmt.Sprintf("%q", expectedText(&state.Error)), `"`)
		exp = strings.TrimSuffix(exp, `"`)
		return nil, &ParseError{
			ParseType: typ,
			Input:     in,
			Offset:    state.Error.Pos(),
			Line:      line,
			Column:    col,
			Details:   "expected " + exp,
		}
	}
	// consume tail whitespace and check for unparsed text
	sparqlWS(state)
	unparsed := state.Get()
	if unparsed != "" {
		line, col := coordinates(in, state.Pos)
		return nil, &ParseError{
			ParseType: typ,
			Input:     in,
			Offset:    state.Pos,
			Line:      line,
			Column:    col,
			Details:   fmt.Sprintf("unparsed text: '%s'", strings.TrimRightFunc(unparsed, unicode.IsSpace)),
		}
	}
	return result, nil
}

// ParseError captures more detailed information about a parsing error, and
// where it occurred.
type ParseError struct {
	// query, term, etc.
	ParseType string
	// The input string to the parser which resulted in this error.
	Input string
	// Offset is the byte offset into 'Input' at which the error occurred.
	Offset int
	// Line is the line number in 'Input' at which the error occurred.
	Line int
	// Column is the column (in runes) into the indicated Line that the error
	// occurred. Line & Column represent the same point in 'Input' as 'Offset'.
	Column int
	// The specific parser error that occurred.
	Details string
}

func (p *ParseError) Error() string {
	return fmt.Sprintf("unable to parse %s: line %d column %d: %s",
		p.ParseType, p.Line, p.Column, p.Details)
}

// coordinates returns the line & column of the supplied offset in the string
// 'input'. Offset is in bytes, the returned column value is in runes.
func coordinates(input string, atOffset int) (line, col int) {
	// Trailing whitespace is not a place people expect errors to be reported.
	input = strings.TrimRightFunc(input, unicode.IsSpace)
	atOffset = cmp.MinInt(atOffset, len(input))

	lines := strings.Split(input, "\n")
	current := 0
	line = 1
	for _, l := range lines {
		if current+len(l) >= atOffset {
			col = utf8.RuneCountInString(l[:atOffset-current]) + 1
			return line, col
		}
		line++
		current += len(l) + 1 // the \n
	}
	panic(fmt.Sprintf("shouldn't get here. Input was '%s' atOffset: %d", input, atOffset))
}

// expectedText extracts from the supplied goparsify Error the expected text
// i.e. the error from an unmatched parser. This relies on the format of the
// error message generated by goparsify.
func expectedText(e *goparsify.Error) string {
	msg := e.Error()
	expectedIdx := strings.Index(msg, "expected")
	if expectedIdx == -1 {
		log.WithField("err", msg).
			Warn("Got goparsify error with missing 'expected' string")
		return msg
	}
	return msg[expectedIdx+len("expected")+1:]
}
