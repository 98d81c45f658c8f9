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

import (
	"fmt"
	"sync"
)

// FirstDynamicInode is the first inode number InodeCounter hands out.
// FUSE reserves 1 for the mount root; envfs reserves 2 for itself.
const FirstDynamicInode = 3

// Inode is a single resolved-executable entry handed back to the kernel as
// a symlink, keyed by an allocated inode number.
type Inode struct {
	Ino          uint64
	Name         string
	Path         string
	RequesterPID int
	FallbackPath bool

	mu      sync.Mutex
	nlookup uint64
}

// NewInode builds an Inode with a zero lookup count; the caller is
// expected to call IncLookup once for the LookUpInode reply that produced
// it, matching the kernel's own accounting.
func NewInode(ino uint64, name, path string, requesterPID int, fallbackPath bool) *Inode {
	return &Inode{Ino: ino, Name: name, Path: path, RequesterPID: requesterPID, FallbackPath: fallbackPath}
}

// IncLookup bumps the kernel lookup count by one.
func (n *Inode) IncLookup() {
	n.mu.Lock()
	n.nlookup++
	n.mu.Unlock()
}

// DecLookup subtracts count (a Forget call may coalesce several lookups)
// and reports whether the count has reached zero, in which case the
// caller must evict the inode from the table. It panics if count exceeds
// the current lookup count, which means the kernel and envfs disagree
// about outstanding references.
func (n *Inode) DecLookup(count uint64) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if count > n.nlookup {
		panic(fmt.Sprintf("inode %d: forget count %d exceeds lookup count %d", n.Ino, count, n.nlookup))
	}
	n.nlookup -= count
	return n.nlookup == 0
}

// Lookup returns the current kernel lookup count.
func (n *Inode) Lookup() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nlookup
}

// InodeCounter allocates (ino, generation) pairs for newly resolved
// executables. When the counter wraps back to FirstDynamicInode it bumps
// generation, so a kernel request carrying a stale (ino, generation) pair
// from before the wrap can be recognized as stale (spec's ESTALE case).
type InodeCounter struct {
	mu         sync.Mutex
	next       uint64
	generation uint64
}

// NewInodeCounter returns a counter starting at FirstDynamicInode,
// generation 0.
func NewInodeCounter() *InodeCounter {
	return &InodeCounter{next: FirstDynamicInode}
}

// Next allocates the next (ino, generation) pair.
func (c *InodeCounter) Next() (ino, generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next == 0 {
		c.next = FirstDynamicInode
		c.generation++
	}
	ino = c.next
	generation = c.generation
	c.next++
	return ino, generation
}

// Generation returns the counter's current generation, for pairing with an
// ino already handed out.
func (c *InodeCounter) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}
