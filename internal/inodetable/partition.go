// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package inodetable is a sharded, open-addressed concurrent map from inode
// number to *Inode. It is not synchronized internally; callers lock through
// InodeTable, which owns one mutex per partition.
package inodetable

// minCapacity is the smallest size a partition grows to once it needs to
// allocate. Partitions start empty to avoid allocating for inode numbers
// that land in a partition nothing ever populates.
const minCapacity = 1 << 5

// maxCapacity bounds a single partition so that the top bits of the hash
// used to choose a partition never overlap with the bits a partition's own
// open addressing consumes; that keeps resizing one partition independent
// of every other.
const maxCapacity = (1 << 48) - 1

// hashMask strips the occupancy bits (present, tombstone) out of a stored
// hash, leaving the 48 bits actually used for probing.
const hashMask = 0x0000FFFFFFFFFFFF

// tombstone marks a slot that once held an entry but has since been
// removed; probing must keep scanning past it, unlike a slot that was
// always empty.
const tombstone = 0x0001000000000000

// present marks a slot as currently holding a live entry.
const present = 0x1000000000000000

// partition is one shard of the table: open addressing with quadratic
// probing over parallel slices, guarded by the caller's mutex.
type partition struct {
	hashes []uint64
	keys   []uint64
	values []*Inode
	length int
}

func newPartition(capacity int) *partition {
	if capacity > 0 {
		capacity = nextPow2(capacity)
	}
	return &partition{
		hashes: make([]uint64, capacity),
		keys:   make([]uint64, capacity),
		values: make([]*Inode, capacity),
	}
}

func (p *partition) isPresent(i int) bool {
	return p.hashes[i]&present != 0
}

func (p *partition) isDeleted(i int) bool {
	return !p.isPresent(i) && p.hashes[i]&tombstone != 0
}

// lookup returns the slot index holding key, probing from hash's bucket.
func (p *partition) lookup(hash, key uint64) (int, bool) {
	capacity := len(p.hashes)
	if capacity == 0 {
		return 0, false
	}
	mask := uint64(capacity - 1)
	hash &= hashMask
	i := hash & mask
	var j uint64
	for {
		if p.isPresent(int(i)) && p.keys[i] == key {
			return int(i), true
		}
		if !p.isPresent(int(i)) && !p.isDeleted(int(i)) {
			// Key would have landed here had it ever been inserted.
			return 0, false
		}
		if i == mask {
			return 0, false
		}
		j++
		i = (i + j) & mask
	}
}

// put inserts or overwrites key => value, growing the table as needed, and
// returns the previous value if one existed.
func (p *partition) put(key uint64, value *Inode, hash uint64) (*Inode, bool) {
	// A tombstone earlier in key's probe sequence must not shadow a live
	// entry for key further along it.
	if i, ok := p.lookup(hash, key); ok {
		old := p.values[i]
		p.values[i] = value
		return old, true
	}
	if len(p.hashes) == 0 {
		p.resize()
	}
	for {
		capacity := len(p.hashes)
		mask := uint64(capacity - 1)
		h := hash & hashMask
		i := h & mask
		var j uint64
		for {
			if !p.isPresent(int(i)) {
				p.hashes[i] = h | present
				p.keys[i] = key
				p.values[i] = value
				p.length++
				return nil, false
			}
			if p.keys[i] == key {
				old := p.values[i]
				p.values[i] = value
				return old, true
			}
			if i == mask {
				break
			}
			j++
			i = (i + j) & mask
		}
		p.resize()
	}
}

func (p *partition) remove(hash, key uint64) (*Inode, bool) {
	i, ok := p.lookup(hash, key)
	if !ok {
		return nil, false
	}
	old := p.values[i]
	p.hashes[i] = tombstone
	p.keys[i] = 0
	p.values[i] = nil
	p.length--
	return old, true
}

func (p *partition) resize() {
	newCapacity := len(p.hashes) * 2
	if newCapacity < minCapacity {
		newCapacity = minCapacity
	}
	if uint64(newCapacity) > maxCapacity {
		panic("inodetable: partition capacity exceeds maximum")
	}

	grown := newPartition(newCapacity)
	p.foreachPresent(func(i int) {
		grown.put(p.keys[i], p.values[i], p.hashes[i])
	})
	p.hashes = grown.hashes
	p.keys = grown.keys
	p.values = grown.values
}

func (p *partition) foreachPresent(f func(i int)) {
	seen := 0
	for i := 0; i < len(p.hashes) && seen < p.length; i++ {
		if p.isPresent(i) {
			seen++
			f(i)
		}
	}
}

func (p *partition) clear() {
	for i := range p.hashes {
		p.hashes[i] = 0
		p.keys[i] = 0
		p.values[i] = nil
	}
	p.length = 0
}

// iterAdvance returns the next present (key, value) at or after *idx,
// advancing *idx past it so the caller can pass it straight back in.
func (p *partition) iterAdvance(idx *int) (uint64, *Inode, bool) {
	for i := *idx; i < len(p.hashes); i++ {
		if p.isPresent(i) {
			*idx = i + 1
			return p.keys[i], p.values[i], true
		}
	}
	*idx = len(p.hashes)
	return 0, nil, false
}

func nextPow2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
