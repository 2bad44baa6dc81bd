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

package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ebay/fedx/util/errors"
)

// Default values applied by Load for unset Execution fields.
const (
	DefaultWorkers                   = 25
	DefaultMaxExecutionTime          = 60 * time.Second
	DefaultBoundJoinBlockSize        = 15
	DefaultInitialBoundJoinBlockSize = 3
	DefaultBoundJoinRampThreshold    = 10
	DefaultHashJoinInitialBlockSize  = 10
	DefaultHashJoinMaxBlockSize      = 100
	DefaultSourceSelectionTimeout    = 5 * time.Second
)

// Load parses the configuration from the given JSON file. Upon success, it
// returns a non-nil, validated configuration with defaults filled in.
// Otherwise, it returns an error, which already includes the filename.
func Load(filename string) (*Fedx, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cfg, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("loading %v: %v", filename, err)
	}
	return cfg, nil
}

// Decode reads a configuration from r, validates it and fills in defaults.
func Decode(r io.Reader) (*Fedx, error) {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	cfg := new(Fedx)
	// This **Fedx double-pointer is required to detect an invalid input of
	// "null".
	err := decoder.Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("error decoding JSON value: %v", err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("resulted in nil config")
	}
	if decoder.More() {
		return nil, fmt.Errorf("found unexpected data after config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Validate checks the configuration for errors that defaults can't fix.
func (cfg *Fedx) Validate() error {
	if len(cfg.Members) == 0 {
		return fmt.Errorf("at least one member is required")
	}
	seen := make(map[string]bool, len(cfg.Members))
	for i, m := range cfg.Members {
		if m.ID == "" {
			return fmt.Errorf("member %d: id is required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("member %d: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
		switch m.Type {
		case MemberMemory:
		case MemberSPARQL, MemberSQLite:
			if m.Address == "" {
				return fmt.Errorf("member %q: address is required for type %q", m.ID, m.Type)
			}
		default:
			return fmt.Errorf("member %q: unknown type %q", m.ID, m.Type)
		}
		if m.RequestsPerSecond < 0 {
			return fmt.Errorf("member %q: requestsPerSecond must not be negative", m.ID)
		}
	}
	for _, p := range cfg.LocalPropertySpace {
		if p == "" {
			return fmt.Errorf("localPropertySpace must not contain empty prefixes")
		}
	}
	e := &cfg.Execution
	if e.Workers < 0 || e.BoundJoinBlockSize < 0 || e.InitialBoundJoinBlockSize < 0 ||
		e.BoundJoinRampThreshold < 0 || e.HashJoinBlockSizes.Initial < 0 || e.HashJoinBlockSizes.Max < 0 {
		return fmt.Errorf("execution sizes must not be negative")
	}
	if cfg.Tracing != nil && cfg.Tracing.Type != "jaeger" {
		return fmt.Errorf("unknown tracing type %q", cfg.Tracing.Type)
	}
	return nil
}

// ApplyDefaults fills in unset fields.
func (cfg *Fedx) ApplyDefaults() {
	for i := range cfg.Members {
		if cfg.Members[i].Name == "" {
			cfg.Members[i].Name = cfg.Members[i].ID
		}
	}
	e := &cfg.Execution
	setInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	setInt(&e.Workers, DefaultWorkers)
	setInt(&e.BoundJoinBlockSize, DefaultBoundJoinBlockSize)
	setInt(&e.InitialBoundJoinBlockSize, DefaultInitialBoundJoinBlockSize)
	setInt(&e.BoundJoinRampThreshold, DefaultBoundJoinRampThreshold)
	setInt(&e.HashJoinBlockSizes.Initial, DefaultHashJoinInitialBlockSize)
	setInt(&e.HashJoinBlockSizes.Max, DefaultHashJoinMaxBlockSize)
	if e.HashJoinBlockSizes.Max < e.HashJoinBlockSizes.Initial {
		e.HashJoinBlockSizes.Max = e.HashJoinBlockSizes.Initial
	}
	if e.MaxExecutionTime == 0 {
		e.MaxExecutionTime = Duration(DefaultMaxExecutionTime)
	}
	if e.SourceSelectionTimeout == 0 {
		e.SourceSelectionTimeout = Duration(DefaultSourceSelectionTimeout)
	}
}

// Write marshalls the configuration as JSON to the given file. It truncates the
// file if it already exists. It returns nil upon success. Otherwise, it returns
// an error, which already includes the filename.
func Write(cfg *Fedx, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	writer := bufio.NewWriter(f)
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "\t")
	err = errors.Any(
		encoder.Encode(cfg),
		writer.Flush(),
		f.Close(),
	)
	if err != nil {
		return fmt.Errorf("failed to write %v: %v", filename, err)
	}
	return nil
}
