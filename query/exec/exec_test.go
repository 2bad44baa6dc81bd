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

package exec

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/federation/fedtest"
	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/query/optimizer"
	"github.com/ebay/fedx/query/parser"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/util/clocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const prologue = "PREFIX ex: <http://example.com/>\n"

// start plans and starts query on the fixture's federation.
func start(t *testing.T, fix *fedtest.Fixture, query string) iter.Iterator {
	t.Helper()
	q := parser.MustParse(prologue + query)
	plan, err := optimizer.New(fix.Fed).Optimize(context.Background(), optimizer.Request{Root: q.Root})
	require.NoError(t, err)
	res, err := New(fix.Fed, nil).Execute(context.Background(), Query{Plan: plan})
	require.NoError(t, err)
	return res
}

// execute returns the results of query as sorted strings.
func execute(t *testing.T, fix *fedtest.Fixture, query string) []string {
	t.Helper()
	rows, err := iter.Collect(start(t, fix, query))
	require.NoError(t, err)
	return sortedStrings(rows)
}

func sortedStrings(rows []binding.Set) []string {
	res := make([]string, len(rows))
	for i, row := range rows {
		res[i] = row.String()
	}
	sort.Strings(res)
	return res
}

// friends returns a federation where member a says s knows p0..p(n-1) and
// member b names each of them.
func friends(t *testing.T, settings federation.Settings, n int) *fedtest.Fixture {
	var knows, names []rdf.Statement
	for i := 0; i < n; i++ {
		p := fmt.Sprintf("p%d", i)
		knows = append(knows, fedtest.Triple("s", "knows", p))
		names = append(names, fedtest.Triple(p, "name", "n"+p))
	}
	return fedtest.New(t, settings,
		fedtest.MemberSpec{ID: "a", Statements: knows},
		fedtest.MemberSpec{ID: "b", Statements: names})
}

func Test_BoundJoin(t *testing.T) {
	tests := []struct {
		lefts    int
		requests int
	}{
		{lefts: 1, requests: 1},
		{lefts: 3, requests: 1},
		// 3 3 3 2
		{lefts: 11, requests: 4},
		// 3 3 3 3, then 15 at a time
		{lefts: 250, requests: 20},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("lefts_%d", test.lefts), func(t *testing.T) {
			fix := friends(t, fedtest.Settings(), test.lefts)
			rows, err := iter.Collect(start(t, fix, "SELECT * WHERE { ex:s ex:knows ?p . ?p ex:name ?n }"))
			require.NoError(t, err)
			require.Len(t, rows, test.lefts)
			for _, row := range rows {
				p, _ := row.Get("p")
				n, _ := row.Get("n")
				assert.Equal(t, "http://example.com/n"+p.Value[len("http://example.com/"):], n.Value)
				assert.False(t, row.Has(iter.IndexVar))
			}
			assert.Equal(t, test.requests, fix.Repos[1].Count(fedtest.OpEvaluate))
		})
	}
}

func Test_BoundJoinBatchSizes(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		lefts := rapid.IntRange(1, 60).Draw(rt, "lefts")
		settings := fedtest.Settings()
		settings.BoundJoinBlockSize = rapid.IntRange(1, 20).Draw(rt, "size")
		settings.InitialBoundJoinBlockSize = rapid.IntRange(1, settings.BoundJoinBlockSize).Draw(rt, "initial")
		settings.BoundJoinRampThreshold = rapid.IntRange(0, 30).Draw(rt, "threshold")

		fix := friends(t, settings, lefts)
		rows, err := iter.Collect(start(t, fix, "SELECT * WHERE { ex:s ex:knows ?p . ?p ex:name ?n }"))
		require.NoError(rt, err)
		require.Len(rt, rows, lefts)
		seen := make(map[string]bool, lefts)
		for _, row := range rows {
			p, _ := row.Get("p")
			n, _ := row.Get("n")
			id := p.Value[len("http://example.com/"):]
			assert.Equal(rt, "http://example.com/n"+id, n.Value, "row %v", row)
			assert.False(rt, row.Has(iter.IndexVar))
			assert.False(rt, seen[id], "left %v joined twice", id)
			seen[id] = true
		}
		requests := 0
		for read := 0; read < lefts; requests++ {
			if read <= settings.BoundJoinRampThreshold {
				read += settings.InitialBoundJoinBlockSize
			} else {
				read += settings.BoundJoinBlockSize
			}
		}
		assert.Equal(rt, requests, fix.Repos[1].Count(fedtest.OpEvaluate))
	})
}

func Test_DistinctAcrossOwners(t *testing.T) {
	statements := []rdf.Statement{fedtest.Triple("alice", "knows", "bob")}
	for _, distinct := range []bool{false, true} {
		t.Run(fmt.Sprintf("distinct_%v", distinct), func(t *testing.T) {
			settings := fedtest.Settings()
			settings.Distinct = distinct
			fix := fedtest.New(t, settings,
				fedtest.MemberSpec{ID: "a", Statements: statements},
				fedtest.MemberSpec{ID: "b", Statements: statements})
			rows := execute(t, fix, "SELECT * WHERE { ?s ex:knows ?o }")
			if distinct {
				// The federation promises the members don't overlap.
				assert.Len(t, rows, 2)
			} else {
				assert.Equal(t, []string{"{?o=<http://example.com/bob> ?s=<http://example.com/alice>}"}, rows)
			}
		})
	}
}

func Test_EmptyPlanSendsNothing(t *testing.T) {
	fix := friends(t, fedtest.Settings(), 3)
	assert.Empty(t, execute(t, fix, "SELECT * WHERE { ?s ex:unknown ?o . ?s ex:knows ?p }"))
	assert.Zero(t, fix.Repos[0].Count(fedtest.OpEvaluate))
	assert.Zero(t, fix.Repos[1].Count(fedtest.OpEvaluate))
}

func Test_ExclusiveGroupIsOneRequest(t *testing.T) {
	fix := fedtest.New(t, fedtest.Settings(),
		fedtest.MemberSpec{ID: "a", Statements: []rdf.Statement{
			fedtest.Triple("alice", "knows", "bob"),
			fedtest.Triple("bob", "name", "bobName"),
			fedtest.Triple("alice", "knows", "carol"),
		}},
		fedtest.MemberSpec{ID: "b", Statements: []rdf.Statement{
			fedtest.Triple("alice", "age", "thirty"),
		}})
	rows := execute(t, fix, "SELECT ?y ?n WHERE { ?x ex:knows ?y . ?y ex:name ?n }")
	assert.Equal(t, []string{"{?n=<http://example.com/bobName> ?y=<http://example.com/bob>}"}, rows)
	assert.Equal(t, 1, fix.Repos[0].Count(fedtest.OpEvaluate))
	assert.Zero(t, fix.Repos[1].Count(fedtest.OpEvaluate))
}

func Test_IndependentGroupJoin(t *testing.T) {
	fix := fedtest.New(t, fedtest.Settings(),
		fedtest.MemberSpec{ID: "a", Statements: []rdf.Statement{
			fedtest.Triple("alice", "knows", "bob"),
			fedtest.Triple("carol", "knows", "dave"),
			fedtest.Triple("alice", "likes", "tea"),
		}},
		fedtest.MemberSpec{ID: "b", Statements: []rdf.Statement{
			fedtest.Triple("alice", "age", "thirty"),
		}})
	rows := execute(t, fix, "SELECT * WHERE { ex:alice ex:age ?a . ?x ex:knows ?y . ?p ex:likes ?d }")
	assert.Equal(t, []string{
		"{?a=<http://example.com/thirty> ?d=<http://example.com/tea> ?p=<http://example.com/alice> ?x=<http://example.com/alice> ?y=<http://example.com/bob>}",
		"{?a=<http://example.com/thirty> ?d=<http://example.com/tea> ?p=<http://example.com/alice> ?x=<http://example.com/carol> ?y=<http://example.com/dave>}",
	}, rows)
	// Both parts go to a in a single request.
	assert.Equal(t, 1, fix.Repos[0].Count(fedtest.OpEvaluate))
}

func Test_LeftJoin(t *testing.T) {
	fix := fedtest.New(t, fedtest.Settings(),
		fedtest.MemberSpec{ID: "a", Statements: []rdf.Statement{
			fedtest.Triple("alice", "knows", "bob"),
			fedtest.Triple("alice", "knows", "carol"),
		}},
		fedtest.MemberSpec{ID: "b", Statements: []rdf.Statement{
			fedtest.Triple("bob", "name", "bobName"),
		}})
	rows := execute(t, fix, "SELECT * WHERE { ?x ex:knows ?y OPTIONAL { ?y ex:name ?n } }")
	assert.Equal(t, []string{
		"{?n=<http://example.com/bobName> ?x=<http://example.com/alice> ?y=<http://example.com/bob>}",
		"{?x=<http://example.com/alice> ?y=<http://example.com/carol>}",
	}, rows)
}

func Test_JoinWithUnion(t *testing.T) {
	fix := fedtest.New(t, fedtest.Settings(),
		fedtest.MemberSpec{ID: "a", Statements: []rdf.Statement{
			fedtest.Triple("alice", "knows", "bob"),
			fedtest.Triple("alice", "knows", "carol"),
			fedtest.Triple("alice", "knows", "dave"),
		}},
		fedtest.MemberSpec{ID: "b", Statements: []rdf.Statement{
			fedtest.Triple("bob", "name", "bobName"),
			fedtest.Triple("carol", "nick", "cc"),
			fedtest.Triple("erin", "nick", "ee"),
		}})
	rows := execute(t, fix, "SELECT ?y ?n WHERE { ex:alice ex:knows ?y . { ?y ex:name ?n } UNION { ?y ex:nick ?n } }")
	assert.Equal(t, []string{
		"{?n=<http://example.com/bobName> ?y=<http://example.com/bob>}",
		"{?n=<http://example.com/cc> ?y=<http://example.com/carol>}",
	}, rows)
}

func Test_CloseStopsScheduling(t *testing.T) {
	settings := fedtest.Settings()
	settings.Workers = 1
	fix := friends(t, settings, 100)
	started := make(chan struct{}, 1)
	evaluations := 0
	fix.Repos[1].Hook = func(ctx context.Context, op string) error {
		if op != fedtest.OpEvaluate {
			return nil
		}
		// Only one worker, so calls don't overlap.
		evaluations++
		if evaluations == 1 {
			return nil
		}
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	}
	res := start(t, fix, "SELECT * WHERE { ex:s ex:knows ?p . ?p ex:name ?n }")
	require.True(t, res.Next(), "error: %v", res.Err())
	<-started
	require.NoError(t, res.Close())
	assert.Equal(t, 2, fix.Repos[1].Count(fedtest.OpEvaluate))
}

func Test_MaxExecutionTime(t *testing.T) {
	settings := fedtest.Settings()
	settings.MaxExecutionTime = time.Second
	fix := friends(t, settings, 5)
	fix.Repos[1].Hook = func(ctx context.Context, op string) error {
		if op != fedtest.OpEvaluate {
			return nil
		}
		fix.Clock.Advance(2 * time.Second)
		<-ctx.Done()
		return ctx.Err()
	}
	_, err := iter.Collect(start(t, fix, "SELECT * WHERE { ex:s ex:knows ?p . ?p ex:name ?n }"))
	require.Error(t, err)
	assert.True(t, fedxerr.Is(err, fedxerr.SchedulerTimeout), "got %v", err)
}

func Test_MemberFailure(t *testing.T) {
	fix := friends(t, fedtest.Settings(), 5)
	fix.Repos[1].Hook = func(ctx context.Context, op string) error {
		if op == fedtest.OpEvaluate {
			return fmt.Errorf("member b is down")
		}
		return nil
	}
	_, err := iter.Collect(start(t, fix, "SELECT * WHERE { ex:s ex:knows ?p . ?p ex:name ?n }"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "member b is down")
}

func Test_Batcher(t *testing.T) {
	e := evaluation{run: &run{settings: federation.DefaultSettings()}}
	rows := make([]binding.Set, 40)
	for i := range rows {
		rows[i] = binding.New(binding.Pair{Name: "i", Value: rdf.Integer(int64(i))})
	}
	b := e.newBatcher(iter.Slice(rows...))
	var sizes []int
	for {
		batch, err := b.next()
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{3, 3, 3, 3, 15, 13}, sizes)
}

func Test_HashJoin(t *testing.T) {
	e := evaluation{run: &run{settings: federation.Settings{
		HashJoinInitialBlockSize: 2,
		HashJoinMaxBlockSize:     4,
	}}}
	set := func(pairs ...string) binding.Set {
		var res []binding.Pair
		for i := 0; i < len(pairs); i += 2 {
			res = append(res, binding.Pair{Name: pairs[i], Value: fedtest.IRI(pairs[i+1])})
		}
		return binding.New(res...)
	}
	var lefts []binding.Set
	for i := 0; i < 9; i++ {
		lefts = append(lefts, set("x", fmt.Sprintf("x%d", i%3), "l", fmt.Sprintf("l%d", i)))
	}
	rights := []binding.Set{
		set("x", "x0", "r", "a"),
		set("x", "x2", "r", "b"),
		set("x", "x9", "r", "c"),
		// No join value: matches every left.
		set("r", "d"),
	}
	res := e.hashJoin(context.Background(), iter.Slice(lefts...), iter.Slice(rights...), []string{"x"})
	rows, err := iter.Collect(res)
	require.NoError(t, err)
	// x0 and x2 each match 3 lefts, and the unbound right matches all 9.
	assert.Len(t, rows, 3+3+9)
	for _, row := range rows {
		r, _ := row.Get("r")
		x, _ := row.Get("x")
		switch r.Value {
		case fedtest.IRI("a").Value:
			assert.Equal(t, fedtest.IRI("x0"), x)
		case fedtest.IRI("b").Value:
			assert.Equal(t, fedtest.IRI("x2"), x)
		}
	}
}

func Test_hashJoinerKey(t *testing.T) {
	h := &hashJoiner{joinVars: []string{"x", "y"}}
	set := func(x, y string) binding.Set {
		pairs := []binding.Pair{{Name: "x", Value: fedtest.IRI(x)}}
		if y != "" {
			pairs = append(pairs, binding.Pair{Name: "y", Value: fedtest.IRI(y)})
		}
		return binding.New(pairs...)
	}
	k1, ok := h.key(set("a", "b"))
	require.True(t, ok)
	k2, ok := h.key(set("a", "b"))
	require.True(t, ok)
	assert.Equal(t, k1, k2)
	k3, ok := h.key(set("ab", ""))
	assert.False(t, ok)
	assert.Zero(t, k3)
	k4, _ := h.key(set("b", "a"))
	assert.NotEqual(t, k1, k4)

	// Left solutions sharing a bucket still only join when compatible.
	r := set("a", "b")
	h.block = map[uint64][]binding.Set{k1: {set("a", "b"), set("c", "d")}}
	h.matches(r)
	require.Len(t, h.pending, 1)
	assert.True(t, r.Equal(h.pending[0]), "got %v", h.pending[0])
}

func Test_SynchronousBatchesStopWithContext(t *testing.T) {
	e := evaluation{run: &run{settings: federation.DefaultSettings()}}
	rows := make([]binding.Set, 10)
	for i := range rows {
		rows[i] = binding.New(binding.Pair{Name: "i", Value: rdf.Integer(int64(i))})
	}
	ctx, cancel := context.WithCancel(context.Background())
	left := iter.Slice(rows...)
	batches := 0
	res := e.batched(ctx, "synchronous bound join", left, e.newBatcher(left), true,
		func(ctx context.Context, lefts []binding.Set) (iter.Iterator, error) {
			batches++
			return iter.Slice(lefts...), nil
		})
	require.True(t, res.Next())
	cancel()
	for res.Next() {
	}
	assert.ErrorIs(t, res.Err(), context.Canceled)
	assert.NoError(t, res.Close())
	// The first batch of 3 was already evaluated; no more were started.
	assert.Equal(t, 1, batches)
}

func Test_SplitPart(t *testing.T) {
	v := fedtest.IRI("v")
	idx := func(i int64) rdf.Term { return rdf.Integer(i) }
	tests := []struct {
		name   string
		row    binding.Set
		part   int
		left   int
		result binding.Set
		err    string
	}{
		{
			name: "ok",
			row: binding.New(
				binding.Pair{Name: "x__p1", Value: v},
				binding.Pair{Name: iter.IndexVar + "__p1", Value: idx(2)}),
			part:   1,
			left:   2,
			result: binding.New(binding.Pair{Name: "x", Value: v}),
		},
		{
			name: "mixed parts",
			row: binding.New(
				binding.Pair{Name: iter.IndexVar + "__p0", Value: idx(0)},
				binding.Pair{Name: iter.IndexVar + "__p1", Value: idx(0)}),
			err: "mixes parts",
		},
		{
			name: "foreign variable",
			row: binding.New(
				binding.Pair{Name: "x__p0", Value: v},
				binding.Pair{Name: iter.IndexVar + "__p1", Value: idx(0)}),
			err: "another part",
		},
		{
			name: "no index",
			row:  binding.New(binding.Pair{Name: "x__p0", Value: v}),
			err:  "missing its part index",
		},
		{
			name: "part out of range",
			row:  binding.New(binding.Pair{Name: iter.IndexVar + "__p7", Value: idx(0)}),
			err:  "invalid part index",
		},
		{
			name: "left out of range",
			row:  binding.New(binding.Pair{Name: iter.IndexVar + "__p0", Value: idx(5)}),
			err:  "out of range",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			part, left, res, err := splitPart(test.row, 2, 3)
			if test.err != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), test.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.part, part)
			assert.Equal(t, test.left, left)
			assert.True(t, test.result.Equal(res), "got %v", res)
		})
	}
}

func Test_Events(t *testing.T) {
	fix := friends(t, fedtest.Settings(), 4)
	events := &recordingEvents{}
	q := parser.MustParse(prologue + "SELECT * WHERE { ex:s ex:knows ?p . ?p ex:name ?n }")
	plan, err := optimizer.New(fix.Fed).Optimize(context.Background(), optimizer.Request{Root: q.Root})
	require.NoError(t, err)
	res, err := New(fix.Fed, events).Execute(context.Background(), Query{Plan: plan})
	require.NoError(t, err)
	n, err := iter.Drain(res)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	events.lock.Lock()
	defer events.lock.Unlock()
	inputs := map[string]int{}
	for _, ev := range events.completed {
		assert.NoError(t, ev.Err)
		inputs[ev.Member] += ev.Inputs
	}
	assert.Equal(t, 1, inputs["a"])
	assert.Equal(t, 4, inputs["b"])
}

type recordingEvents struct {
	lock      sync.Mutex
	completed []RequestCompletedEvent
}

func (r *recordingEvents) RequestCompleted(event RequestCompletedEvent) {
	r.lock.Lock()
	r.completed = append(r.completed, event)
	r.lock.Unlock()
}

func (r *recordingEvents) Clock() clocks.Source {
	return clocks.Wall
}
