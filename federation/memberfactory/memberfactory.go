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

// Package memberfactory constructs federation members and federations from
// the configuration. Users of this package don't need to know which store
// implementation backs each member.
package memberfactory

import (
	"context"
	"fmt"
	"os"

	"github.com/ebay/fedx/config"
	"github.com/ebay/fedx/federation"
	"github.com/ebay/fedx/rdf"
	"github.com/ebay/fedx/source"
	"github.com/ebay/fedx/source/memstore"
	"github.com/ebay/fedx/source/sparqlclient"
	"github.com/ebay/fedx/source/sqlstore"
	log "github.com/sirupsen/logrus"
)

// All of the member implementations are registered here. The map key is the
// same as config.Member.Type.
var impls = map[string]memberImpl{
	config.MemberMemory: {kind: federation.Local, open: openMemory},
	config.MemberSQLite: {kind: federation.Local, open: openSQLite},
	config.MemberSPARQL: {kind: federation.Remote, open: openSPARQL},
}

// A single implementation of a member store.
type memberImpl struct {
	kind federation.Kind
	open func(ctx context.Context, cfg *config.Member) (source.Repository, error)
}

// NewMember returns an uninitialized member as defined by the configuration.
func NewMember(ctx context.Context, cfg *config.Member) (*federation.Member, error) {
	impl, ok := impls[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("member type not supported: %v", cfg.Type)
	}
	repo, err := impl.open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to open member %s: %v", cfg.ID, err)
	}
	return federation.NewMember(federation.MemberInfo{
		ID:       cfg.ID,
		Name:     cfg.Name,
		Address:  cfg.Address,
		Kind:     impl.kind,
		Writable: cfg.Writable,
		Managed:  cfg.ManagedConnection,
	}, repo), nil
}

// Settings returns the federation settings described by cfg. Unset fields
// take the defaults.
func Settings(cfg *config.Fedx) federation.Settings {
	s := federation.DefaultSettings()
	s.Distinct = cfg.Distinct
	s.ReadOnly = cfg.ReadOnly
	s.LocalPropertySpace = cfg.LocalPropertySpace
	exec := cfg.Execution
	if exec.Workers > 0 {
		s.Workers = exec.Workers
	}
	switch {
	case exec.MaxExecutionTime < 0:
		s.MaxExecutionTime = 0
	case exec.MaxExecutionTime > 0:
		s.MaxExecutionTime = exec.MaxExecutionTime.Std()
	}
	if exec.BoundJoinBlockSize > 0 {
		s.BoundJoinBlockSize = exec.BoundJoinBlockSize
	}
	if exec.InitialBoundJoinBlockSize > 0 {
		s.InitialBoundJoinBlockSize = exec.InitialBoundJoinBlockSize
	}
	if exec.BoundJoinRampThreshold > 0 {
		s.BoundJoinRampThreshold = exec.BoundJoinRampThreshold
	}
	if exec.HashJoinBlockSizes.Initial > 0 {
		s.HashJoinInitialBlockSize = exec.HashJoinBlockSizes.Initial
	}
	if exec.HashJoinBlockSizes.Max > 0 {
		s.HashJoinMaxBlockSize = exec.HashJoinBlockSizes.Max
	}
	if exec.SourceSelectionTimeout > 0 {
		s.SourceSelectionTimeout = exec.SourceSelectionTimeout.Std()
	}
	return s
}

// NewFederation returns an uninitialized federation as defined by the
// configuration. If it fails, the members opened so far are closed.
func NewFederation(ctx context.Context, cfg *config.Fedx) (*federation.Federation, error) {
	members := make([]*federation.Member, 0, len(cfg.Members))
	cleanup := func() {
		for _, m := range members {
			if err := m.Shutdown(); err != nil {
				log.WithFields(log.Fields{
					"member": m.ID,
					"error":  err,
				}).Warn("Error closing member after failed federation setup")
			}
		}
	}
	for i := range cfg.Members {
		m, err := NewMember(ctx, &cfg.Members[i])
		if err != nil {
			cleanup()
			return nil, err
		}
		members = append(members, m)
	}
	fed, err := federation.New(members, Settings(cfg))
	if err != nil {
		cleanup()
		return nil, err
	}
	return fed, nil
}

func openMemory(ctx context.Context, cfg *config.Member) (source.Repository, error) {
	store := memstore.New(memstore.Options{})
	for _, file := range cfg.Files {
		sts, err := readFile(file)
		if err != nil {
			return nil, err
		}
		store.Load(sts...)
		log.WithFields(log.Fields{
			"member":     cfg.ID,
			"file":       file,
			"statements": len(sts),
		}).Info("Loaded statements into memory member")
	}
	return store, nil
}

func readFile(name string) ([]rdf.Statement, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sts, err := rdf.ReadNTriples(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", name, err)
	}
	return sts, nil
}

func openSQLite(ctx context.Context, cfg *config.Member) (source.Repository, error) {
	store, err := sqlstore.Open(cfg.Address)
	if err != nil {
		return nil, err
	}
	for _, file := range cfg.Files {
		sts, err := readFile(file)
		if err == nil {
			err = store.Load(ctx, sts...)
		}
		if err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

func openSPARQL(ctx context.Context, cfg *config.Member) (source.Repository, error) {
	return sparqlclient.New(sparqlclient.Options{
		Endpoint:          cfg.Address,
		UpdateEndpoint:    cfg.UpdateAddress,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
}
