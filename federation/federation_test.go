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

package federation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/federation/fedtest"
	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_New(t *testing.T) {
	settings := fedtest.Settings()
	_, err := federation.New(nil, settings)
	assert.EqualError(t, err, "a federation needs at least one member")

	a := federation.NewMember(federation.MemberInfo{ID: "a"}, memstore.New(memstore.Options{}))
	_, err = federation.New([]*federation.Member{a, a}, settings)
	assert.EqualError(t, err, `duplicate member id "a"`)

	settings.Workers = 0
	_, err = federation.New([]*federation.Member{a}, settings)
	assert.Error(t, err)
}

func Test_Accessors(t *testing.T) {
	settings := fedtest.Settings()
	settings.LocalPropertySpace = []string{"http://www.w3.org/2000/01/rdf-schema#"}
	f := fedtest.New(t, settings,
		fedtest.MemberSpec{ID: "a", Writable: true},
		fedtest.MemberSpec{ID: "b", Kind: federation.Remote},
		fedtest.MemberSpec{ID: "c", Writable: true},
	)
	fed := f.Fed
	assert.Equal(t, []string{"a", "b", "c"}, fed.MemberIDs())
	m, ok := fed.Member("b")
	require.True(t, ok)
	assert.Equal(t, "b", m.Name)
	assert.Equal(t, "b (remote)", m.String())
	_, ok = fed.Member("z")
	assert.False(t, ok)
	writable := fed.WritableMembers()
	require.Len(t, writable, 2)
	assert.Equal(t, "a", writable[0].ID)
	assert.Equal(t, "c", writable[1].ID)
	assert.True(t, fed.IsLocalProperty(rdf.IRI("http://www.w3.org/2000/01/rdf-schema#label")))
	assert.False(t, fed.IsLocalProperty(fedtest.IRI("label")))
	assert.False(t, fed.IsLocalProperty(rdf.String("http://www.w3.org/2000/01/rdf-schema#label")))
	assert.False(t, fed.Distinct())
	assert.False(t, fed.ReadOnly())
}

func Test_NextWriteStart(t *testing.T) {
	f := fedtest.New(t, fedtest.Settings(),
		fedtest.MemberSpec{ID: "a", Writable: true},
		fedtest.MemberSpec{ID: "b"},
		fedtest.MemberSpec{ID: "c", Writable: true},
		fedtest.MemberSpec{ID: "d", Writable: true},
	)
	var starts []int
	for i := 0; i < 7; i++ {
		starts = append(starts, f.Fed.NextWriteStart())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, starts)
}

func Test_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := fedtest.New(t, fedtest.Settings(),
		fedtest.MemberSpec{ID: "managed", Managed: true},
		fedtest.MemberSpec{ID: "fresh"},
	)
	fed := f.Fed
	assert.Equal(t, federation.Initialized, fed.State())
	assert.NoError(t, fed.Init(ctx), "Init twice is fine")
	s, err := fed.Scheduler()
	require.NoError(t, err)
	assert.Equal(t, 4, s.Workers())
	assert.Equal(t, 1, f.Repos[0].Count(fedtest.OpOpen), "managed connection opened by Init")

	assert.NoError(t, fed.Shutdown())
	assert.Equal(t, federation.ShutDown, fed.State())
	for _, m := range fed.Members() {
		assert.Equal(t, federation.ShutDown, m.State())
	}
	assert.Equal(t, 1, f.Repos[0].Count(fedtest.OpClose))
	assert.NoError(t, fed.Shutdown())

	err = fed.Init(ctx)
	assert.EqualError(t, err, "fedx: query evaluation during init: federation is shut down")
	_, err = fed.Scheduler()
	assert.Error(t, err)
	_, _, err = fed.Members()[1].Borrow(ctx)
	assert.True(t, fedxerr.Is(err, fedxerr.MemberFailure))
	assert.Error(t, fed.Members()[0].Init(ctx), "members are never resurrected")
}

func Test_InitFailure(t *testing.T) {
	ctx := context.Background()
	good := fedtest.Wrap(memstore.New(memstore.Options{}))
	bad := fedtest.Wrap(memstore.New(memstore.Options{}))
	bad.Hook = func(ctx context.Context, op string) error {
		return errors.New("connection refused")
	}
	fed, err := federation.New([]*federation.Member{
		federation.NewMember(federation.MemberInfo{ID: "good", Managed: true}, good),
		federation.NewMember(federation.MemberInfo{ID: "bad", Managed: true}, bad),
	}, fedtest.Settings())
	require.NoError(t, err)
	err = fed.Init(ctx)
	assert.True(t, fedxerr.Is(err, fedxerr.MemberFailure))
	assert.Contains(t, err.Error(), "(member bad)")
	assert.Equal(t, federation.Uninitialized, fed.State())
	for _, m := range fed.Members() {
		assert.Equal(t, federation.Uninitialized, m.State())
	}

	bad.Hook = nil
	assert.NoError(t, fed.Init(ctx))
	assert.NoError(t, fed.Shutdown())
}

func Test_Borrow(t *testing.T) {
	ctx := context.Background()
	f := fedtest.New(t, fedtest.Settings(),
		fedtest.MemberSpec{ID: "managed", Managed: true, Statements: []rdf.Statement{fedtest.Triple("a", "p", "b")}},
		fedtest.MemberSpec{ID: "fresh", Statements: []rdf.Statement{fedtest.Triple("a", "p", "c")}},
	)
	managed, fresh := f.Fed.Members()[0], f.Fed.Members()[1]

	t.Run("managed", func(t *testing.T) {
		c1, release1, err := managed.Borrow(ctx)
		require.NoError(t, err)
		c2, release2, err := managed.Borrow(ctx)
		require.NoError(t, err)
		assert.True(t, c1 == c2, "managed members share one connection")
		release1()
		release2()
		assert.Equal(t, 1, f.Repos[0].Count(fedtest.OpOpen))
		assert.Equal(t, 0, f.Repos[0].Count(fedtest.OpClose))
	})

	t.Run("fresh", func(t *testing.T) {
		c, release, err := fresh.Borrow(ctx)
		require.NoError(t, err)
		it, err := c.GetStatements(ctx, fedtest.IRI("a"), rdf.Term{}, rdf.Term{})
		require.NoError(t, err)
		assert.True(t, it.Next())
		assert.Equal(t, fedtest.IRI("c"), it.Statement().Object)
		it.Close()
		release()
		release()
		assert.Equal(t, 1, f.Repos[1].Count(fedtest.OpOpen))
		assert.Equal(t, 1, f.Repos[1].Count(fedtest.OpClose), "release closes once")
	})
}

func Test_KindAndStateStrings(t *testing.T) {
	assert.Equal(t, "local", federation.Local.String())
	assert.Equal(t, "Kind(7)", federation.Kind(7).String())
	assert.Equal(t, "shut down", federation.ShutDown.String())
	assert.Equal(t, "State(9)", federation.State(9).String())
}
