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

package cmp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type word string

func (w word) Key(b *strings.Builder) {
	b.WriteString(string(w))
}

func Test_GetKey(t *testing.T) {
	assert.Equal(t, "alice", GetKey(word("alice")))
	assert.Equal(t, "", GetKey(word("")))
}

func Test_JoinKeys(t *testing.T) {
	assert.Equal(t, "a, b, c", JoinKeys(", ", word("a"), word("b"), word("c")))
	assert.Equal(t, "", JoinKeys(", "))
}

func Test_MinMaxInt(t *testing.T) {
	assert.Equal(t, -1, MinInt(-1, 0))
	assert.Equal(t, 3, MinInt(3, 3))
	assert.Equal(t, 7, MaxInt(7, 2))
	assert.Equal(t, 2, MaxInt(-5, 2))
}
