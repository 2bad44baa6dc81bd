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

package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ebay/fedx/federation/fedtest"
	"github.com/ebay/fedx/util/clocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_getLatest(t *testing.T) {
	assert := assert.New(t)
	checker := NewChecker(nil)
	assert.Nil(checker.getLatest())
	checker.latest = Report{{Member: "a", Healthy: true}}
	close(checker.ready)
	assert.Len(checker.getLatest(), 1)
}

// Tests Last before any check has completed.
func Test_Last_notReady(t *testing.T) {
	assert := assert.New(t)
	checker := NewChecker(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	report, err := checker.Last(ctx)
	assert.Nil(report)
	assert.Equal(ctx.Err(), err)
}

func Test_Report_Healthy(t *testing.T) {
	assert := assert.New(t)
	assert.True(Report{}.Healthy())
	assert.True(Report{{Member: "a", Healthy: true}}.Healthy())
	assert.False(Report{{Member: "a", Healthy: true}, {Member: "b"}}.Healthy())
}

func Test_Run_ok(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	check := func(ctx context.Context) (Report, error) {
		cancel()
		return Report{{Member: "a", Healthy: true}}, nil
	}
	checker := NewChecker(check)
	checker.Run(ctx)
	report, err := checker.Last(context.Background())
	assert.NoError(err)
	assert.True(report.Healthy())
}

// Tests behavior of Run when the check itself fails.
func Test_Run_error(t *testing.T) {
	assert := assert.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The mock clock advances quickly so that the retry doesn't wait a full
	// interval.
	mockClock := clocks.NewMock()
	clock = mockClock
	defer func() {
		clock = clocks.Wall
	}()
	go func() {
		for ctx.Err() == nil {
			mockClock.Advance(recheckInterval)
			time.Sleep(10 * time.Microsecond)
		}
	}()

	checks := 0
	check := func(ctx context.Context) (Report, error) {
		checks++
		switch checks {
		case 1:
			return nil, errors.New("ants in pants")
		case 2:
			cancel()
			return Report{{Member: "a"}}, nil
		}
		panic("called too much")
	}
	checker := NewChecker(check)
	checker.Run(ctx)
	report, err := checker.Last(context.Background())
	assert.NoError(err)
	assert.False(report.Healthy())
	assert.Equal(2, checks)
}

func Test_ProbeMembers(t *testing.T) {
	f := fedtest.New(t, fedtest.Settings(),
		fedtest.MemberSpec{ID: "a"},
		fedtest.MemberSpec{ID: "b"},
	)
	f.Repos[1].Hook = func(ctx context.Context, op string) error {
		if op == fedtest.OpOpen {
			return errors.New("b is down")
		}
		return nil
	}
	report, err := ProbeMembers(f.Fed)(context.Background())
	require.NoError(t, err)
	require.Len(t, report, 2)
	assert.Equal(t, "a", report[0].Member)
	assert.True(t, report[0].Healthy)
	assert.Equal(t, "b", report[1].Member)
	assert.False(t, report[1].Healthy)
	assert.Contains(t, report[1].Error, "b is down")
	assert.False(t, report.Healthy())
}

func Test_ProbeMembers_canceled(t *testing.T) {
	f := fedtest.New(t, fedtest.Settings(), fedtest.MemberSpec{ID: "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ProbeMembers(f.Fed)(ctx)
	assert.Equal(t, context.Canceled, err)
}
