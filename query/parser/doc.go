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

// Package parser implements a parser combinator for the SPARQL subset the
// federation evaluates: PREFIX declarations, SELECT and ASK queries over
// basic graph patterns with FILTER, OPTIONAL, UNION and nested groups, and
// LIMIT/OFFSET. The parsed query is translated into a query/algebra tree,
// which the optimizer then rewrites into a source-aware plan.
//
// https://en.wikipedia.org/wiki/Parser_combinator
package parser
