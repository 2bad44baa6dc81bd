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

package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Any(t *testing.T) {
	e1 := fmt.Errorf("one")
	e2 := fmt.Errorf("two")
	assert.NoError(t, Any())
	assert.NoError(t, Any(nil, nil))
	assert.Equal(t, e1, Any(nil, e1, e2))
	assert.Equal(t, e2, Any(e2, e1))
}
