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

package envfs

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/require"

	"github.com/Mic92/envfs/internal/inodetable"
	"github.com/Mic92/envfs/internal/resolve"
	"github.com/Mic92/envfs/internal/syscallclass"
	"github.com/Mic92/envfs/metrics"
)

// scrapeMetrics renders reg's current state in Prometheus exposition
// format, the only way a package outside metrics can inspect a counter's
// value without reaching into its unexported fields.
func scrapeMetrics(reg *metrics.Registry) string {
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}

// newExecutable creates a real, independently-discoverable executable file
// in a fresh temp directory so pathresolve's real unix.Access(X_OK) check
// has something deterministic to find, instead of depending on whatever
// binaries happen to exist on the machine running the tests.
func newExecutable(t *testing.T, name string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return dir, path
}

// hitEngine resolves name by reporting execve on amd64 with PATH=dir;
// pidFromContext returns 0 for a plain context.Background(), so the fakes
// ignore the pid argument entirely rather than branch on it.
func hitEngine(dir string) *resolve.Engine {
	return resolve.NewWithReaders(
		syscallclass.NewForArch("amd64"),
		func(int) (map[string]string, error) { return map[string]string{"PATH": dir}, nil },
		func(int) ([]uint64, error) { return []uint64{59}, nil }, // amd64 execve
		func(int, uint64) (map[string]string, error) { return nil, syscall.ENOSYS },
	)
}

// missEngine never resolves anything: readEnvironment always fails, which
// makes Engine.Resolve bail out before it ever looks at fallbackPaths.
func missEngine() *resolve.Engine {
	return resolve.NewWithReaders(
		syscallclass.NewForArch("amd64"),
		func(int) (map[string]string, error) { return nil, syscall.ENOENT },
		func(int) ([]uint64, error) { return nil, syscall.ENOENT },
		func(int, uint64) (map[string]string, error) { return nil, syscall.ENOENT },
	)
}

func newTestFileSystem(engine *resolve.Engine, reg *metrics.Registry) (*FileSystem, *timeutil.SimulatedClock) {
	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(engine, nil, nil, clock, reg), clock
}

func TestLookUpInodeRejectsNonRootParent(t *testing.T) {
	fs, _ := newTestFileSystem(missEngine(), nil)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.InodeID(42), Name: "widget"}
	require.Equal(t, syscall.ENOENT, fs.LookUpInode(context.Background(), op))
}

func TestLookUpInodeMintsInodeOnResolutionHit(t *testing.T) {
	dir, path := newExecutable(t, "widget")
	reg := metrics.NewRegistry()
	fs, clock := newTestFileSystem(hitEngine(dir), reg)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "widget"}
	require.NoError(t, fs.LookUpInode(context.Background(), op))

	require.Equal(t, fuseops.InodeID(inodetable.FirstDynamicInode), op.Entry.Child)
	require.NotZero(t, op.Entry.Attributes.Mode&os.ModeSymlink)
	require.Equal(t, clock.Now(), op.Entry.EntryExpiration)
	require.Equal(t, clock.Now().Add(ttl), op.Entry.AttributesExpiration)
	require.Contains(t, scrapeMetrics(reg), `envfs_lookup_result_count{result="hit"} 1`)

	in, ok := fs.inodes.Lookup(uint64(op.Entry.Child))
	require.True(t, ok)
	require.Equal(t, path, in.Path)
}

func TestLookUpInodeReturnsENOENTOnResolutionMiss(t *testing.T) {
	reg := metrics.NewRegistry()
	fs, _ := newTestFileSystem(missEngine(), reg)

	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "nonexistent"}
	require.Equal(t, syscall.ENOENT, fs.LookUpInode(context.Background(), op))
	require.Contains(t, scrapeMetrics(reg), `envfs_lookup_result_count{result="miss"} 1`)
}

func TestGetInodeAttributesRoot(t *testing.T) {
	fs, clock := newTestFileSystem(missEngine(), nil)

	op := &fuseops.GetInodeAttributesOp{Inode: fuseops.RootInodeID}
	require.NoError(t, fs.GetInodeAttributes(context.Background(), op))
	require.Equal(t, clock.Now().Add(ttl), op.AttributesExpiration)
}

func TestGetInodeAttributesUnknownInodeIsStale(t *testing.T) {
	fs, _ := newTestFileSystem(missEngine(), nil)

	op := &fuseops.GetInodeAttributesOp{Inode: fuseops.InodeID(999)}
	require.Equal(t, syscall.ESTALE, fs.GetInodeAttributes(context.Background(), op))
}

func TestGetInodeAttributesKnownInode(t *testing.T) {
	fs, clock := newTestFileSystem(missEngine(), nil)
	in := inodetable.NewInode(inodetable.FirstDynamicInode, "widget", "/bin/widget", 0, false)
	fs.inodes.Insert(in.Ino, in)

	op := &fuseops.GetInodeAttributesOp{Inode: fuseops.InodeID(in.Ino)}
	require.NoError(t, fs.GetInodeAttributes(context.Background(), op))
	require.Equal(t, clock.Now().Add(ttl), op.AttributesExpiration)
}

func TestReadSymlinkUnknownInodeIsStale(t *testing.T) {
	fs, _ := newTestFileSystem(missEngine(), nil)

	op := &fuseops.ReadSymlinkOp{Inode: fuseops.InodeID(999)}
	require.Equal(t, syscall.ESTALE, fs.ReadSymlink(context.Background(), op))
}

func TestReadSymlinkSameCallerServesStoredPath(t *testing.T) {
	fs, _ := newTestFileSystem(missEngine(), nil)
	in := inodetable.NewInode(inodetable.FirstDynamicInode, "widget", "/bin/widget", 0, false)
	fs.inodes.Insert(in.Ino, in)

	op := &fuseops.ReadSymlinkOp{Inode: fuseops.InodeID(in.Ino)}
	require.NoError(t, fs.ReadSymlink(context.Background(), op))
	require.Equal(t, "/bin/widget", op.Target)
}

func TestReadSymlinkDifferentCallerReResolves(t *testing.T) {
	dir, path := newExecutable(t, "widget")
	fs, _ := newTestFileSystem(hitEngine(dir), nil)
	// RequesterPID 1234 never matches pidFromContext(context.Background()) == 0,
	// forcing the re-resolve branch regardless of which pid minted the inode.
	in := inodetable.NewInode(inodetable.FirstDynamicInode, "widget", "/bin/widget", 1234, false)
	fs.inodes.Insert(in.Ino, in)

	op := &fuseops.ReadSymlinkOp{Inode: fuseops.InodeID(in.Ino)}
	require.NoError(t, fs.ReadSymlink(context.Background(), op))
	require.Equal(t, path, op.Target)
}

func TestReadSymlinkDifferentCallerMissReturnsENOENT(t *testing.T) {
	fs, _ := newTestFileSystem(missEngine(), nil)
	in := inodetable.NewInode(inodetable.FirstDynamicInode, "widget", "/bin/widget", 1234, false)
	fs.inodes.Insert(in.Ino, in)

	op := &fuseops.ReadSymlinkOp{Inode: fuseops.InodeID(in.Ino)}
	require.Equal(t, syscall.ENOENT, fs.ReadSymlink(context.Background(), op))
}

func TestReadDirListsDotEntriesByOffset(t *testing.T) {
	fs, _ := newTestFileSystem(missEngine(), nil)

	op := &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Offset: 0, Dst: make([]byte, 4096)}
	require.NoError(t, fs.ReadDir(context.Background(), op))
	require.Positive(t, op.BytesRead)

	op = &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Offset: 2, Dst: make([]byte, 4096)}
	require.NoError(t, fs.ReadDir(context.Background(), op))
	require.Zero(t, op.BytesRead)
}

func TestReadDirRejectsNonRootInode(t *testing.T) {
	fs, _ := newTestFileSystem(missEngine(), nil)

	op := &fuseops.ReadDirOp{Inode: fuseops.InodeID(999)}
	require.Equal(t, syscall.ENOENT, fs.ReadDir(context.Background(), op))
}

func TestForgetInodeEvictsOnZeroLookupCount(t *testing.T) {
	reg := metrics.NewRegistry()
	fs, _ := newTestFileSystem(missEngine(), reg)
	in := inodetable.NewInode(inodetable.FirstDynamicInode, "widget", "/bin/widget", 0, false)
	in.IncLookup()
	in.IncLookup()
	fs.inodes.Insert(in.Ino, in)

	require.NoError(t, fs.ForgetInode(context.Background(), &fuseops.ForgetInodeOp{Inode: fuseops.InodeID(in.Ino), N: 1}))
	_, ok := fs.inodes.Lookup(in.Ino)
	require.True(t, ok, "one outstanding lookup should keep the inode alive")

	require.NoError(t, fs.ForgetInode(context.Background(), &fuseops.ForgetInodeOp{Inode: fuseops.InodeID(in.Ino), N: 1}))
	_, ok = fs.inodes.Lookup(in.Ino)
	require.False(t, ok, "the last Forget should evict the inode")

	require.Contains(t, scrapeMetrics(reg), "envfs_forget_count 2")
}

func TestForgetInodeUnknownIsANoOp(t *testing.T) {
	fs, _ := newTestFileSystem(missEngine(), nil)
	require.NoError(t, fs.ForgetInode(context.Background(), &fuseops.ForgetInodeOp{Inode: fuseops.InodeID(999), N: 1}))
}

func TestDestroyClearsEveryInode(t *testing.T) {
	fs, _ := newTestFileSystem(missEngine(), nil)
	fs.inodes.Insert(10, inodetable.NewInode(10, "a", "/bin/a", 0, false))
	fs.inodes.Insert(11, inodetable.NewInode(11, "b", "/bin/b", 0, false))

	fs.Destroy()
	require.Equal(t, 0, fs.inodes.Len())
}

func TestStatFSReturnsPlaceholderAccounting(t *testing.T) {
	fs, _ := newTestFileSystem(missEngine(), nil)
	fs.inodes.Insert(10, inodetable.NewInode(10, "a", "/bin/a", 0, false))

	op := &fuseops.StatFSOp{}
	require.NoError(t, fs.StatFS(context.Background(), op))
	require.EqualValues(t, statfsBlockSize, op.BlockSize)
	require.Equal(t, uint64(inodetable.FirstDynamicInode)+1, op.Inodes)
}

func TestGetXattrAlwaysReturnsNoData(t *testing.T) {
	fs, _ := newTestFileSystem(missEngine(), nil)
	require.Equal(t, syscall.ENODATA, fs.GetXattr(context.Background(), &fuseops.GetXattrOp{}))
}
