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

// Package exec evaluates a plan built by the optimizer against the members of
// a federation. The Execute method takes a plan and returns a stream of
// binding sets.
//
// Each node of the plan is evaluated relative to an input binding set. Joins
// pick a strategy from the shape of their right side: a statement pattern or
// an exclusive group is answered by bound joins, which send batches of left
// solutions to the owning member in one request; an independent group is
// sent as one combined request per batch and split again locally; a sub-select
// or a union is evaluated once and hash joined in blocks; anything else is
// evaluated once per left solution.
//
// At the top of the plan these joins run their requests on the federation's
// scheduler and deliver results in completion order. The requests themselves
// evaluate their sub-plans synchronously, so a scheduler worker never waits
// on another worker. Closing the result stream of Execute cancels every
// outstanding request of the query and returns once the join drivers have
// released what they hold.
package exec
