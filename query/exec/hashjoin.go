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
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/ebay/fedx/query/binding"
	"github.com/ebay/fedx/query/iter"
	"github.com/ebay/fedx/util/errors"
)

// batcher reads the left side of a bound join in batches. The first batches
// are small so that the first results come back quickly; once more than
// threshold solutions have been read, batches are full size.
type batcher struct {
	left      iter.Iterator
	initial   int
	size      int
	threshold int
	seen      int
}

func (e evaluation) newBatcher(left iter.Iterator) *batcher {
	b := &batcher{
		left:      left,
		initial:   e.settings.InitialBoundJoinBlockSize,
		size:      e.settings.BoundJoinBlockSize,
		threshold: e.settings.BoundJoinRampThreshold,
	}
	if b.size <= 0 {
		b.size = 1
	}
	if b.initial <= 0 || b.initial > b.size {
		b.initial = b.size
	}
	return b
}

// next returns the next batch, or an empty batch once left is exhausted.
func (b *batcher) next() ([]binding.Set, error) {
	n := b.size
	if b.seen <= b.threshold {
		n = b.initial
	}
	batch := make([]binding.Set, 0, n)
	for len(batch) < n && b.left.Next() {
		batch = append(batch, b.left.Binding())
	}
	b.seen += len(batch)
	if len(batch) < n {
		if err := b.left.Err(); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// hashJoin joins left and right on joinVars. The right side is read once and
// kept; the left side is read in blocks, starting at the federation's initial
// hash join block size and doubling up to its maximum. Each block is hashed
// on its join values, then the right solutions are matched against it.
func (e evaluation) hashJoin(ctx context.Context, left, right iter.Iterator, joinVars []string) iter.Iterator {
	h := &hashJoiner{
		ctx:       ctx,
		left:      left,
		right:     right,
		joinVars:  joinVars,
		blockSize: e.settings.HashJoinInitialBlockSize,
		maxBlock:  e.settings.HashJoinMaxBlockSize,
	}
	if h.maxBlock <= 0 {
		h.maxBlock = 1
	}
	if h.blockSize <= 0 || h.blockSize > h.maxBlock {
		h.blockSize = h.maxBlock
	}
	return iter.Func(h.next, h.close)
}

type hashJoiner struct {
	ctx      context.Context
	left     iter.Iterator
	right    iter.Iterator
	joinVars []string
	// cached holds the right solutions read so far; rightDone is set once
	// right is exhausted.
	cached    []binding.Set
	rightDone bool

	blockSize int
	maxBlock  int
	// block maps hashed join keys to the left solutions of the current block
	// that bind every join variable. loose holds those that don't. Solutions
	// sharing a hash are told apart by the compatibility check in matches.
	block    map[uint64][]binding.Set
	loose    []binding.Set
	inBlock  bool
	leftDone bool
	// pos is the index of the next right solution to match.
	pos     int
	pending []binding.Set
}

// key returns the hashed join key of b, or false if b leaves a join variable
// unbound.
func (h *hashJoiner) key(b binding.Set) (uint64, bool) {
	var k strings.Builder
	for _, v := range h.joinVars {
		t, ok := b.Get(v)
		if !ok {
			return 0, false
		}
		t.Key(&k)
		k.WriteByte(0)
	}
	return xxhash.Sum64String(k.String()), true
}

// rightAt returns the i-th right solution, reading it on first use.
func (h *hashJoiner) rightAt(i int) (binding.Set, bool, error) {
	for i >= len(h.cached) {
		if h.rightDone {
			return binding.Set{}, false, nil
		}
		if !h.right.Next() {
			h.rightDone = true
			return binding.Set{}, false, h.right.Err()
		}
		h.cached = append(h.cached, h.right.Binding())
	}
	return h.cached[i], true, nil
}

// readBlock hashes the next block of left solutions. It returns false once
// the left side is exhausted.
func (h *hashJoiner) readBlock() (bool, error) {
	if h.leftDone {
		return false, nil
	}
	h.block = make(map[uint64][]binding.Set, h.blockSize)
	h.loose = h.loose[:0]
	n := 0
	for n < h.blockSize && h.left.Next() {
		l := h.left.Binding()
		if k, ok := h.key(l); ok {
			h.block[k] = append(h.block[k], l)
		} else {
			h.loose = append(h.loose, l)
		}
		n++
	}
	if n < h.blockSize {
		h.leftDone = true
		if err := h.left.Err(); err != nil {
			return false, err
		}
	}
	h.blockSize *= 2
	if h.blockSize > h.maxBlock {
		h.blockSize = h.maxBlock
	}
	h.pos = 0
	return n > 0, nil
}

func (h *hashJoiner) matches(r binding.Set) {
	join := func(l binding.Set) {
		if l.Compatible(r) {
			h.pending = append(h.pending, l.Merge(r))
		}
	}
	if k, ok := h.key(r); ok {
		for _, l := range h.block[k] {
			join(l)
		}
	} else {
		for _, ls := range h.block {
			for _, l := range ls {
				join(l)
			}
		}
	}
	for _, l := range h.loose {
		join(l)
	}
}

func (h *hashJoiner) next() (binding.Set, bool, error) {
	for {
		if len(h.pending) > 0 {
			b := h.pending[0]
			h.pending = h.pending[1:]
			return b, true, nil
		}
		if err := h.ctx.Err(); err != nil {
			return binding.Set{}, false, err
		}
		if !h.inBlock {
			ok, err := h.readBlock()
			if err != nil || !ok {
				return binding.Set{}, false, err
			}
			h.inBlock = true
		}
		r, ok, err := h.rightAt(h.pos)
		if err != nil {
			return binding.Set{}, false, err
		}
		if !ok {
			h.inBlock = false
			continue
		}
		h.pos++
		h.matches(r)
	}
}

func (h *hashJoiner) close() error {
	return errors.Any(h.left.Close(), h.right.Close())
}
