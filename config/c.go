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

// Package config contains the configuration for a federation server. The
// configuration is typically loaded from a JSON file on disk.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Fedx describes the configuration of one federation: its members and the
// settings shared by every query evaluated against them.
type Fedx struct {
	// The federation members, in order. Required; member IDs must be unique.
	Members []Member `json:"members"`

	// If true, the members are known to share no data, so results from
	// different members never need duplicate elimination.
	Distinct bool `json:"distinct"`

	// If true, all write and namespace operations are rejected.
	ReadOnly bool `json:"readOnly"`

	// IRI prefixes of predicates whose statements are present identically on
	// every member. Patterns with such predicates are neither fanned out for
	// duplicate elimination nor probed more than necessary.
	LocalPropertySpace []string `json:"localPropertySpace,omitempty"`

	// Query evaluation settings. Defaults apply to anything left unset.
	Execution Execution `json:"execution"`

	// If non-nil, the configuration for distributed tracing (OpenTracing). If
	// nil, the server will not collect traces.
	Tracing *Tracing `json:"tracing,omitempty"`

	// Configuration for API servers. Ignored by the command line tools.
	API *API `json:"api,omitempty"`
}

// Member types.
const (
	MemberMemory = "memory"
	MemberSPARQL = "sparql"
	MemberSQLite = "sqlite"
)

// Member describes one federation member.
type Member struct {
	// A unique, short identifier for the member. Required.
	ID string `json:"id"`

	// A human readable name. Defaults to the ID.
	Name string `json:"name,omitempty"`

	// One of "memory", "sparql" or "sqlite". Required.
	Type string `json:"type"`

	// For "sparql", the query endpoint URL. For "sqlite", the database file
	// name (":memory:" is allowed). Ignored for "memory".
	Address string `json:"address,omitempty"`

	// For "sparql", the SPARQL Update endpoint URL. Defaults to Address.
	UpdateAddress string `json:"updateAddress,omitempty"`

	// If true, statements may be added to this member.
	Writable bool `json:"writable"`

	// If true, one long-lived connection is shared by all readers of this
	// member. If false, a fresh connection is opened per request.
	ManagedConnection bool `json:"managedConnection"`

	// For "sparql", the maximum number of requests per second sent to the
	// endpoint. 0 means unlimited.
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty"`

	// For "memory" and "sqlite", N-Triples files loaded into the store at
	// startup.
	Files []string `json:"files,omitempty"`
}

// Execution contains the query evaluation settings.
type Execution struct {
	// The maximum number of scheduler tasks running at once. Default 25.
	Workers int `json:"workers"`

	// The maximum time a query may run, shared by all its sub-evaluations.
	// 0 means the default of 60s; negative means no limit.
	MaxExecutionTime Duration `json:"maxExecutionTime"`

	// The number of left bindings per bound join request once the ramp
	// threshold has been passed. Default 15.
	BoundJoinBlockSize int `json:"boundJoinBlockSize"`

	// The number of left bindings per bound join request until more than
	// BoundJoinRampThreshold bindings have been seen. Default 3.
	InitialBoundJoinBlockSize int `json:"initialBoundJoinBlockSize"`

	// Default 10.
	BoundJoinRampThreshold int `json:"boundJoinRampThreshold"`

	// Block sizes used by the hash join for the left side. Default 10 and 100.
	HashJoinBlockSizes BlockSizes `json:"hashJoinBlockSizes"`

	// The time allowed for each source selection probe. Default 5s.
	SourceSelectionTimeout Duration `json:"sourceSelectionTimeout"`
}

// BlockSizes describes a block size that starts small and grows.
type BlockSizes struct {
	Initial int `json:"initial"`
	Max     int `json:"max"`
}

// Tracing contains configuration related to distributed execution tracing.
type Tracing struct {
	// Must be "jaeger" (for now).
	Type string `json:"type"`

	// The URL of a Jaeger collector accepting jaeger.thrift over HTTP, such as
	// "http://localhost:14268/api/traces".
	CollectorEndpoint string `json:"collectorEndpoint"`

	// The probability of sampling a trace, between 0 and 1. Default 1.
	SampleRate *float64 `json:"sampleRate,omitempty"`
}

// API contains configuration specific to the API servers.
type API struct {
	// The host:port or :port on which to serve HTTP requests. Required.
	HTTPAddress string `json:"httpAddress"`
}

// Duration is a time.Duration that is encoded in JSON as a string such as
// "1m30s".
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string such as \"30s\": %v", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
