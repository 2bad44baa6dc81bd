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

package fedxerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Wrap(t *testing.T) {
	assert.NoError(t, Wrap(MemberFailure, "evaluate", nil))

	root := fmt.Errorf("connection refused")
	err := Wrap(MemberFailure, "evaluate", root)
	assert.True(t, Is(err, MemberFailure))
	assert.True(t, errors.Is(err, root))
	assert.EqualError(t, err, "fedx: member failure during evaluate: connection refused")

	// The first classification wins.
	again := Wrap(QueryEvaluation, "join", fmt.Errorf("outer: %w", err))
	k, ok := KindOf(again)
	assert.True(t, ok)
	assert.Equal(t, MemberFailure, k)
}

func Test_WrapMember(t *testing.T) {
	err := WrapMember(SchedulerTimeout, "task", "m2", context.DeadlineExceeded)
	assert.EqualError(t, err, "fedx: scheduler timeout during task (member m2): context deadline exceeded")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func Test_KindOf(t *testing.T) {
	_, ok := KindOf(fmt.Errorf("plain"))
	assert.False(t, ok)
	assert.False(t, Is(nil, MemberFailure))
	assert.Equal(t, "write rejected", WriteRejected.String())
	assert.Equal(t, "Kind(42)", Kind(42).String())
}
