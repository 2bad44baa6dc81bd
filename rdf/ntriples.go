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
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseStatement parses one N-Triples or N-Quads line, with or without the
// terminating '.'.
func ParseStatement(line string) (Statement, error) {
	rest := strings.TrimSpace(line)
	rest = strings.TrimSpace(strings.TrimSuffix(rest, "."))
	var terms []Term
	for rest != "" {
		end, err := termEnd(rest)
		if err != nil {
			return Statement{}, err
		}
		t, err := ParseTerm(rest[:end])
		if err != nil {
			return Statement{}, err
		}
		terms = append(terms, t)
		rest = strings.TrimSpace(rest[end:])
	}
	switch len(terms) {
	case 3:
		return Statement{Subject: terms[0], Predicate: terms[1], Object: terms[2]}, nil
	case 4:
		return Statement{Subject: terms[0], Predicate: terms[1], Object: terms[2], Context: terms[3]}, nil
	}
	return Statement{}, fmt.Errorf("expected 3 or 4 terms, got %d: %s", len(terms), line)
}

// termEnd returns the length of the term at the start of in.
func termEnd(in string) (int, error) {
	switch {
	case strings.HasPrefix(in, "<"):
		i := strings.IndexByte(in, '>')
		if i < 0 {
			return 0, fmt.Errorf("unterminated IRI: %s", in)
		}
		return i + 1, nil
	case strings.HasPrefix(in, `"`):
		end := closingQuote(in)
		if end < 0 {
			return 0, fmt.Errorf("unterminated literal: %s", in)
		}
		rest := in[end+1:]
		switch {
		case strings.HasPrefix(rest, "^^<"):
			i := strings.IndexByte(rest, '>')
			if i < 0 {
				return 0, fmt.Errorf("unterminated datatype: %s", in)
			}
			return end + 1 + i + 1, nil
		case strings.HasPrefix(rest, "@"):
			i := strings.IndexAny(rest, " \t")
			if i < 0 {
				return len(in), nil
			}
			return end + 1 + i, nil
		}
		return end + 1, nil
	}
	i := strings.IndexAny(in, " \t")
	if i < 0 {
		return len(in), nil
	}
	return i, nil
}

// ReadNTriples reads statements in N-Triples (or N-Quads) syntax, one per
// line. Blank lines and comments are skipped.
func ReadNTriples(r io.Reader) ([]Statement, error) {
	var res []Statement
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		st, err := ParseStatement(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", lineNo, err)
		}
		res = append(res, st)
	}
	return res, scanner.Err()
}
