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
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertIsFound(t *testing.T) {
	tbl := New(4)
	_, ok := tbl.Lookup(10)
	require.False(t, ok)

	tbl.Insert(10, NewInode(10, "foo", "/bin/foo", 1234, false))
	got, ok := tbl.Lookup(10)
	require.True(t, ok)
	require.Equal(t, "foo", got.Name)

	_, ok = tbl.Lookup(11)
	require.False(t, ok)
}

func TestInsertReplace(t *testing.T) {
	tbl := New(4)
	tbl.Insert(1, NewInode(1, "old", "/bin/old", 1, false))
	prev, replaced := tbl.Insert(1, NewInode(1, "new", "/bin/new", 1, false))
	require.True(t, replaced)
	require.Equal(t, "old", prev.Name)

	got, ok := tbl.Lookup(1)
	require.True(t, ok)
	require.Equal(t, "new", got.Name)
}

func TestInsertLots(t *testing.T) {
	tbl := New(4)
	const n = 2000
	for i := uint64(0); i < n; i++ {
		if i%2 == 0 {
			tbl.Insert(i, NewInode(i, "x", "/bin/x", 0, false))
		}
	}
	for i := uint64(0); i < n; i++ {
		got, ok := tbl.Lookup(i)
		if i%2 == 0 {
			require.True(t, ok)
			require.Equal(t, i, got.Ino)
		} else {
			require.False(t, ok)
		}
	}
}

func TestRemove(t *testing.T) {
	tbl := New(4)
	tbl.Insert(1, NewInode(1, "one", "", 0, false))
	tbl.Insert(2, NewInode(2, "two", "", 0, false))
	tbl.Insert(3, NewInode(3, "three", "", 0, false))

	removed, ok := tbl.Remove(2)
	require.True(t, ok)
	require.Equal(t, "two", removed.Name)

	_, ok = tbl.Lookup(2)
	require.False(t, ok)

	got, ok := tbl.Lookup(1)
	require.True(t, ok)
	require.Equal(t, "one", got.Name)
}

func TestRemoveThenReinsert(t *testing.T) {
	tbl := New(4)
	const n = 200
	for i := uint64(0); i < n; i++ {
		tbl.Insert(i, NewInode(i, "a", "", 0, false))
	}
	for i := uint64(0); i < n; i++ {
		if i%2 == 0 {
			_, ok := tbl.Remove(i)
			require.True(t, ok)
		}
	}
	for i := uint64(0); i < n; i++ {
		if i%4 == 0 {
			tbl.Insert(i, NewInode(i, "b", "", 0, false))
		}
	}
	for i := uint64(0); i < n; i++ {
		got, ok := tbl.Lookup(i)
		switch {
		case i%4 == 0:
			require.True(t, ok)
			require.Equal(t, "b", got.Name)
		case i%2 == 0:
			require.False(t, ok)
		default:
			require.True(t, ok)
			require.Equal(t, "a", got.Name)
		}
	}
}

func TestClear(t *testing.T) {
	tbl := New(4)
	for i := uint64(0); i < 50; i++ {
		tbl.Insert(i, NewInode(i, "x", "", 0, false))
	}
	tbl.Clear()
	require.Equal(t, 0, tbl.Len())
	for i := uint64(0); i < 50; i++ {
		_, ok := tbl.Lookup(i)
		require.False(t, ok)
	}
}

func TestForEachVisitsEverything(t *testing.T) {
	tbl := New(4)
	want := map[uint64]bool{}
	for i := uint64(0); i < 100; i++ {
		tbl.Insert(i, NewInode(i, "x", "", 0, false))
		want[i] = true
	}
	got := map[uint64]bool{}
	tbl.ForEach(func(ino uint64, _ *Inode) bool {
		got[ino] = true
		return true
	})
	require.Equal(t, want, got)
}

func TestConcurrentLookupInsertNoDuplication(t *testing.T) {
	tbl := New(8)
	const n = 5000

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := uint64(0); i < n; i++ {
			tbl.Insert(i, NewInode(i, "x", "", 0, false))
		}
	}()
	go func() {
		defer wg.Done()
		for i := uint64(0); i < n; i++ {
			tbl.Lookup(i)
		}
	}()
	wg.Wait()

	seen := map[uint64]int{}
	tbl.ForEach(func(ino uint64, _ *Inode) bool {
		seen[ino]++
		return true
	})
	for ino, count := range seen {
		require.Equalf(t, 1, count, "ino %d observed %d times", ino, count)
	}
	require.Equal(t, n, int64Len(seen))
}

func int64Len(m map[uint64]int) int { return len(m) }

func TestInodeCounterWraps(t *testing.T) {
	c := &InodeCounter{next: 0}
	ino, gen := c.Next()
	require.Equal(t, uint64(FirstDynamicInode), ino)
	require.Equal(t, uint64(1), gen)
}

func TestInodeCounterSequential(t *testing.T) {
	c := NewInodeCounter()
	ino1, gen1 := c.Next()
	ino2, gen2 := c.Next()
	require.Equal(t, uint64(FirstDynamicInode), ino1)
	require.Equal(t, ino1+1, ino2)
	require.Equal(t, gen1, gen2)
}

func TestInodeLookupCounting(t *testing.T) {
	n := NewInode(5, "foo", "/bin/foo", 1, false)
	n.IncLookup()
	n.IncLookup()
	require.Equal(t, uint64(2), n.Lookup())

	require.False(t, n.DecLookup(1))
	require.Equal(t, uint64(1), n.Lookup())

	require.True(t, n.DecLookup(1))
	require.Equal(t, uint64(0), n.Lookup())

	require.Panics(t, func() { n.DecLookup(5) })
}
