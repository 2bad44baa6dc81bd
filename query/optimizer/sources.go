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

package optimizer

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/fedxerr"
	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/util/clocks"
	"github.com/ebay/fedx/util/parallel"
	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// sourceSelector decides which members can contribute to a statement
// pattern. It asks each member with an existence probe and caches the
// answers; concurrent identical probes share one request.
type sourceSelector struct {
	fed *federation.Federation
	// Keyed by member ID and probeKey. The value is the probe's answer.
	cache  *xsync.MapOf[string, bool]
	flight singleflight.Group
	// Incremented by invalidate. Probes started before an invalidation don't
	// store their answers.
	lock       sync.Mutex
	generation uint64
}

func newSourceSelector(fed *federation.Federation) *sourceSelector {
	return &sourceSelector{
		fed:   fed,
		cache: xsync.NewMapOf[string, bool](),
	}
}

func (s *sourceSelector) invalidate() {
	s.lock.Lock()
	s.generation++
	s.cache.Clear()
	s.lock.Unlock()
}

// probeKey identifies a pattern up to the names of its variables, together
// with the dataset it is evaluated over.
func probeKey(p *algebra.StatementPattern, dataset *rdf.Dataset) string {
	var b strings.Builder
	vars := make(map[string]int, 3)
	for _, t := range []algebra.Term{p.Subject, p.Predicate, p.Object} {
		switch t := t.(type) {
		case *algebra.Variable:
			idx, ok := vars[t.Name]
			if !ok {
				idx = len(vars)
				vars[t.Name] = idx
			}
			b.WriteString("?")
			b.WriteString(strconv.Itoa(idx))
		case *algebra.Constant:
			t.Value.Key(&b)
		}
		b.WriteByte(' ')
	}
	if dataset != nil {
		for _, g := range dataset.DefaultGraphs {
			b.WriteString("from ")
			g.Key(&b)
			b.WriteByte(' ')
		}
		for _, g := range dataset.NamedGraphs {
			b.WriteString("named ")
			g.Key(&b)
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// probe returns true if member has statements matching p.
func (s *sourceSelector) probe(ctx context.Context, m *federation.Member, p *algebra.StatementPattern, dataset *rdf.Dataset) (bool, error) {
	key := m.ID + "\x00" + probeKey(p, dataset)
	if found, ok := s.cache.Load(key); ok {
		metrics.probeCacheHits.Inc()
		return found, nil
	}
	s.lock.Lock()
	gen := s.generation
	s.lock.Unlock()
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		metrics.probes.WithLabelValues(m.ID).Inc()
		settings := s.fed.Settings()
		deadline := settings.Clock.Now().Add(settings.SourceSelectionTimeout)
		ctx, cancel, _ := clocks.WithDeadline(ctx, settings.Clock, deadline)
		defer cancel()
		conn, release, err := m.Borrow(ctx)
		if err != nil {
			return false, err
		}
		defer release()
		found, err := conn.HasStatements(ctx, source.Query{
			Node:    &algebra.StatementPattern{Subject: p.Subject, Predicate: p.Predicate, Object: p.Object},
			Dataset: dataset,
		})
		if err != nil {
			return false, err
		}
		s.lock.Lock()
		if gen == s.generation {
			s.cache.Store(key, found)
		}
		s.lock.Unlock()
		return found, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// owners returns the IDs of the members that can contribute to p, in
// federation order. Patterns on a local property are answered by the first
// member alone. If a probe fails, every member is returned.
func (s *sourceSelector) owners(ctx context.Context, p *algebra.StatementPattern, dataset *rdf.Dataset) ([]string, error) {
	members := s.fed.Members()
	if c, ok := p.Predicate.(*algebra.Constant); ok && s.fed.IsLocalProperty(c.Value) {
		members = members[:1]
	}
	found := make([]bool, len(members))
	errs := make([]error, len(members))
	parallel.InvokeN(ctx, len(members), 0, func(ctx context.Context, i int) error {
		found[i], errs[i] = s.probe(ctx, members[i], p, dataset)
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var res []string
	for i, m := range members {
		if errs[i] != nil {
			metrics.fallbacks.Inc()
			log.WithFields(log.Fields{
				"member":  m.ID,
				"pattern": p.String(),
				"error":   fedxerr.WrapMember(fedxerr.OptimizerFallback, "source selection", m.ID, errs[i]),
			}).Warn("Source selection probe failed, assigning pattern to all members")
			return s.fed.MemberIDs(), nil
		}
		if found[i] {
			res = append(res, m.ID)
		}
	}
	return res, nil
}

// selectSources sets the owners of every statement pattern and replaces the
// patterns no member can match with Empty.
func selectSources(ctx context.Context, p *plan) error {
	type entry struct {
		pattern *algebra.StatementPattern
		owners  []string
	}
	var entries []*entry
	byKey := make(map[string]*entry)
	for _, sp := range algebra.Patterns(p.root) {
		key := probeKey(sp, nil)
		if _, ok := byKey[key]; !ok {
			e := &entry{pattern: sp}
			byKey[key] = e
			entries = append(entries, e)
		}
	}
	limit := p.opt.fed.Settings().Workers
	err := parallel.InvokeN(ctx, len(entries), limit, func(ctx context.Context, i int) error {
		owners, err := p.opt.sources.owners(ctx, entries[i].pattern, p.dataset)
		entries[i].owners = owners
		return err
	})
	if err != nil {
		return err
	}
	p.root = algebra.MustTransform(p.root, func(n algebra.Node) algebra.Node {
		sp, ok := n.(*algebra.StatementPattern)
		if !ok {
			return n
		}
		owners := byKey[probeKey(sp, nil)].owners
		if len(owners) == 0 {
			metrics.emptyPatterns.Inc()
			return &algebra.Empty{}
		}
		sp.Owners = owners
		return sp
	})
	return nil
}
