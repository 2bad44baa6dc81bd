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
	"time"

	"github.com/ebay/fedx/query/algebra"
	"github.com/ebay/fedx/util/clocks"
)

// Events receives callbacks about the progress of the query execution.
// Methods in the interface can be called concurrently by the execution engine,
// implementations of this interface must be concurrent safe.
type Events interface {
	// RequestCompleted is called when a request to a member has finished
	// (even in error cases). The event parameter contains a summary of
	// information about the request.
	RequestCompleted(event RequestCompletedEvent)
	// Clocks will be called to obtain a time source that can be used for timing
	// the execution.
	Clock() clocks.Source
}

// RequestCompletedEvent contains the collected data about a single request
// sent to a member. All these fields are populated by exec before it calls the
// RequestCompleted method.
type RequestCompletedEvent struct {
	// The join strategy, or "scan" for a pattern evaluated on its own.
	Strategy string
	// The member the request was sent to.
	Member string
	// The tree sent to the member.
	Node algebra.Node
	// The number of left solutions the request carried; 1 for requests that
	// are not batched.
	Inputs int
	// When the request was sent.
	StartedAt time.Time
	// When the results were read or the request was abandoned.
	EndedAt time.Time
	// The number of results read.
	Results int
	// if set, the request failed with an error.
	Err error
}

// ignoreEvents is an implementation of Events that ignores the callbacks.
type ignoreEvents struct {
}

func (ignoreEvents) RequestCompleted(event RequestCompletedEvent) {
}

func (ignoreEvents) Clock() clocks.Source {
	return clocks.Wall
}
