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

package memberfactory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ebay/fedx/config"
	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewFederation(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "people.nt")
	require.NoError(t, os.WriteFile(file, []byte(
		"<http://ex/alice> <http://ex/knows> <http://ex/bob> .\n"+
			"<http://ex/bob> <http://ex/name> \"Bob\" .\n"), 0644))
	cfg := &config.Fedx{
		Members: []config.Member{
			{ID: "mem", Type: config.MemberMemory, Files: []string{file}},
			{ID: "db", Type: config.MemberSQLite, Address: ":memory:", Writable: true},
			{ID: "remote", Type: config.MemberSPARQL, Address: "http://localhost:1/sparql", ManagedConnection: true},
		},
		Distinct: true,
		Execution: config.Execution{
			Workers:          3,
			MaxExecutionTime: config.Duration(time.Second),
		},
	}
	ctx := context.Background()
	fed, err := NewFederation(ctx, cfg)
	require.NoError(t, err)
	defer fed.Shutdown()
	assert.Equal(t, []string{"mem", "db", "remote"}, fed.MemberIDs())
	remote, _ := fed.Member("remote")
	assert.Equal(t, federation.Remote, remote.Kind)
	assert.True(t, remote.Managed)
	db, _ := fed.Member("db")
	assert.Equal(t, federation.Local, db.Kind)
	assert.Len(t, fed.WritableMembers(), 1)
	assert.True(t, fed.Distinct())
	assert.Equal(t, 3, fed.Settings().Workers)

	mem, _ := fed.Member("mem")
	require.NoError(t, mem.Init(ctx))
	conn, release, err := mem.Borrow(ctx)
	require.NoError(t, err)
	defer release()
	sts, err := conn.GetStatements(ctx, rdf.IRI("http://ex/bob"), rdf.IRI("http://ex/name"), rdf.Term{})
	require.NoError(t, err)
	all, err := source.CollectStatements(sts)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, rdf.String("Bob"), all[0].Object)
}

func Test_UnsupportedType(t *testing.T) {
	_, err := NewFederation(context.Background(), &config.Fedx{
		Members: []config.Member{{ID: "x", Type: "gopher"}},
	})
	assert.EqualError(t, err, "member type not supported: gopher")
}

func Test_MissingFile(t *testing.T) {
	_, err := NewMember(context.Background(), &config.Member{
		ID:    "mem",
		Type:  config.MemberMemory,
		Files: []string{filepath.Join(t.TempDir(), "nope.nt")},
	})
	assert.Error(t, err)
}

func Test_Settings(t *testing.T) {
	s := Settings(&config.Fedx{})
	assert.Equal(t, federation.DefaultSettings().BoundJoinBlockSize, s.BoundJoinBlockSize)
	assert.Equal(t, 60*time.Second, s.MaxExecutionTime)

	s = Settings(&config.Fedx{
		ReadOnly:           true,
		LocalPropertySpace: []string{"http://www.w3.org/"},
		Execution: config.Execution{
			MaxExecutionTime:          config.Duration(-1),
			BoundJoinBlockSize:        20,
			InitialBoundJoinBlockSize: 5,
			BoundJoinRampThreshold:    7,
			HashJoinBlockSizes:        config.BlockSizes{Initial: 8, Max: 64},
			SourceSelectionTimeout:    config.Duration(time.Second),
		},
	})
	assert.True(t, s.ReadOnly)
	assert.Equal(t, []string{"http://www.w3.org/"}, s.LocalPropertySpace)
	assert.Zero(t, s.MaxExecutionTime)
	assert.Equal(t, 20, s.BoundJoinBlockSize)
	assert.Equal(t, 5, s.InitialBoundJoinBlockSize)
	assert.Equal(t, 7, s.BoundJoinRampThreshold)
	assert.Equal(t, 8, s.HashJoinInitialBlockSize)
	assert.Equal(t, 64, s.HashJoinMaxBlockSize)
	assert.Equal(t, time.Second, s.SourceSelectionTimeout)
}
