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

package inodetable

import "sync"

// defaultConcurrency is the partition count used when New is called with a
// non-positive value, matching the corpus's own default level of expected
// concurrency.
const defaultConcurrency = 16

// InodeTable is a concurrent map from inode number to *Inode, sharded by
// the top bits of a dispersed hash of the key so lookups, inserts, and
// removes for different inodes rarely contend on the same mutex.
type InodeTable struct {
	partitions []*shard
	shift      uint64
	mask       uint64
}

type shard struct {
	mu sync.Mutex
	*partition
}

// New returns an InodeTable with at least concurrency partitions (rounded
// up to a power of two). concurrency <= 0 uses defaultConcurrency.
func New(concurrency int) *InodeTable {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	n := nextPow2(concurrency)

	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{partition: newPartition(0)}
	}

	var shift uint64
	if n > 1 {
		shift = 64 - uint64(trailingZeros(n))
	}

	return &InodeTable{partitions: shards, shift: shift, mask: uint64(n - 1)}
}

func trailingZeros(n int) int {
	z := 0
	for n&1 == 0 {
		n >>= 1
		z++
	}
	return z
}

func (t *InodeTable) shardFor(hash uint64) *shard {
	idx := (hash >> t.shift) & t.mask
	return t.partitions[idx]
}

// hashIno disperses an inode number's bits across the word so that
// sequentially allocated inodes (which InodeCounter hands out) still land
// in different partitions instead of piling into partition 0.
func hashIno(ino uint64) uint64 {
	h := ino
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

// Lookup returns the inode stored for ino, if any.
func (t *InodeTable) Lookup(ino uint64) (*Inode, bool) {
	h := hashIno(ino)
	s := t.shardFor(h)
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.lookup(h, ino)
	if !ok {
		return nil, false
	}
	return s.values[idx], true
}

// Insert maps ino to inode, returning any previous value.
func (t *InodeTable) Insert(ino uint64, inode *Inode) (previous *Inode, replaced bool) {
	h := hashIno(ino)
	s := t.shardFor(h)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ino, inode, h)
}

// Remove deletes ino's mapping, if any, returning the removed value.
func (t *InodeTable) Remove(ino uint64) (*Inode, bool) {
	h := hashIno(ino)
	s := t.shardFor(h)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(h, ino)
}

// Clear empties every partition.
func (t *InodeTable) Clear() {
	for _, s := range t.partitions {
		s.mu.Lock()
		s.clear()
		s.mu.Unlock()
	}
}

// ForEach calls f for every mapping, stopping early if f returns false.
// Like the corpus's own iterator, this does not provide a consistent
// snapshot across partitions: entries inserted or removed concurrently
// with the scan may or may not be observed.
func (t *InodeTable) ForEach(f func(ino uint64, inode *Inode) bool) {
	for _, s := range t.partitions {
		s.mu.Lock()
		idx := 0
		for {
			ino, inode, ok := s.iterAdvance(&idx)
			if !ok {
				break
			}
			if !f(ino, inode) {
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()
	}
}

// Len reports the number of entries currently stored. It locks and
// unlocks each partition in turn, so the result may be stale by the time
// it is returned under concurrent modification.
func (t *InodeTable) Len() int {
	n := 0
	for _, s := range t.partitions {
		s.mu.Lock()
		n += s.length
		s.mu.Unlock()
	}
	return n
}
