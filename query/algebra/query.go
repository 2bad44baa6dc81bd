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

package algebra

// Form is the kind of query.
type Form int

// Query forms.
const (
	FormSelect Form = iota
	FormAsk
)

// Query is a parsed query. Root already includes the solution modifiers
// (Projection, Distinct, Slice); Projection repeats the selected variable
// names for result serialization.
type Query struct {
	Form       Form
	Projection []string
	Root       Node
}

// Clone returns a deep copy of q.
func (q *Query) Clone() *Query {
	return &Query{
		Form:       q.Form,
		Projection: append([]string(nil), q.Projection...),
		Root:       Clone(q.Root),
	}
}
