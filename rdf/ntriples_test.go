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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ReadNTriples(t *testing.T) {
	in := `# people
<http://ex/alice> <http://ex/name> "Alice Smith"@en .
<http://ex/alice> <http://ex/age> "30"^^<http://www.w3.org/2001/XMLSchema#integer> .

_:b1 <http://ex/says> "a \"quoted\" word" <http://ex/graph> .
`
	sts, err := ReadNTriples(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, sts, 3)
	assert.Equal(t, LangString("Alice Smith", "en"), sts[0].Object)
	assert.Equal(t, Typed("30", XSDInteger), sts[1].Object)
	assert.Equal(t, Blank("b1"), sts[2].Subject)
	assert.Equal(t, String(`a "quoted" word`), sts[2].Object)
	assert.Equal(t, IRI("http://ex/graph"), sts[2].Context)
}

func Test_ParseStatementErrors(t *testing.T) {
	for _, line := range []string{
		`<http://ex/a> <http://ex/b> .`,
		`<http://ex/a> <http://ex/b> "open .`,
		`<http://ex/a <http://ex/b> <http://ex/c> .`,
		`<http://ex/a> <http://ex/b> <http://ex/c> <http://ex/d> <http://ex/e> .`,
	} {
		_, err := ParseStatement(line)
		assert.Error(t, err, line)
	}
}
