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

package profiling

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_CPUProfile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "cpu.pprof")
	ctx, cancel := context.WithCancel(context.Background())
	done, err := CPUProfile(ctx, name, time.Hour)
	require.NoError(t, err)

	// A second profile can't start while the first runs.
	_, err = CPUProfile(ctx, filepath.Join(t.TempDir(), "other.pprof"), time.Hour)
	assert.Error(t, err)

	cancel()
	<-done
	info, err := os.Stat(name)
	require.NoError(t, err)
	assert.True(t, info.Size() > 0)
}

func Test_CPUProfile_duration(t *testing.T) {
	name := filepath.Join(t.TempDir(), "cpu.pprof")
	done, err := CPUProfile(context.Background(), name, time.Millisecond)
	require.NoError(t, err)
	<-done
}

func Test_CPUProfile_badPath(t *testing.T) {
	_, err := CPUProfile(context.Background(), filepath.Join(t.TempDir(), "missing", "cpu.pprof"), time.Second)
	assert.Error(t, err)
}
