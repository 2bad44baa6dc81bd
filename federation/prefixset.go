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

package federation

import "strings"

// PrefixHashSet tests whether a string starts with one of a fixed set of
// prefixes using one map lookup. Every prefix is split at the length of the
// shortest one: the head is the map key and the rest is kept as a suffix
// candidate for that head.
//
// A nil *PrefixHashSet is empty and matches nothing.
type PrefixHashSet struct {
	length int
	heads  map[string][]string
}

// NewPrefixHashSet builds the index. It returns nil if prefixes is empty.
func NewPrefixHashSet(prefixes []string) *PrefixHashSet {
	if len(prefixes) == 0 {
		return nil
	}
	length := len(prefixes[0])
	for _, p := range prefixes[1:] {
		if len(p) < length {
			length = len(p)
		}
	}
	s := &PrefixHashSet{
		length: length,
		heads:  make(map[string][]string, len(prefixes)),
	}
	for _, p := range prefixes {
		head := p[:length]
		s.heads[head] = append(s.heads[head], p[length:])
	}
	return s
}

// Match returns true if value starts with one of the prefixes.
func (s *PrefixHashSet) Match(value string) bool {
	if s == nil || len(value) < s.length {
		return false
	}
	suffixes, found := s.heads[value[:s.length]]
	if !found {
		return false
	}
	rest := value[s.length:]
	for _, suffix := range suffixes {
		if strings.HasPrefix(rest, suffix) {
			return true
		}
	}
	return false
}

// Len returns the number of prefixes in the set.
func (s *PrefixHashSet) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, suffixes := range s.heads {
		n += len(suffixes)
	}
	return n
}
