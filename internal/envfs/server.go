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
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/sync/errgroup"

	"github.com/Mic92/envfs/internal/perms"
	"github.com/Mic92/envfs/metrics"
)

// dispatcher implements fuse.Server by pulling ops off one Connection from
// a fixed pool of goroutines, each handling one op to completion before
// reading the next. fuseutil.NewFileSystemServer spawns an unbounded
// goroutine per op instead; its dispatch (fileSystemServer.handleOp) is
// unexported, so it can't be reused to get a bounded pool, and the type
// switch below reimplements it directly against the op types envfs serves.
type dispatcher struct {
	fs      *FileSystem
	workers int
	metrics *metrics.Registry
}

// NewServer wraps fs as a fuse.Server with a fixed-size worker pool
// instead of the library's default per-op goroutine spawn. workers <= 0
// uses perms.WorkerCount(). reg may be nil, in which case op latency and
// error counts simply aren't recorded.
func NewServer(fs *FileSystem, workers int, reg *metrics.Registry) fuse.Server {
	if workers <= 0 {
		workers = perms.WorkerCount()
	}
	return &dispatcher{fs: fs, workers: workers, metrics: reg}
}

// ServeOps reads and handles ops from c until the connection is closed,
// then tears fs down the way a Destroy op would on a library version that
// dispatched one.
func (d *dispatcher) ServeOps(c *fuse.Connection) {
	var g errgroup.Group
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				ctx, op, err := c.ReadOp()
				if err != nil {
					return nil
				}
				d.handleOp(ctx, op.(fuseops.Op))
			}
		})
	}
	_ = g.Wait()
	d.fs.Destroy()
}

// handleOp dispatches op to the FileSystem method that serves it and
// responds with the result, recording op latency and error counts along
// the way. Ops envfs doesn't implement get ENOSYS, the same reply
// fuseutil.NotImplementedFileSystem gives for any op it doesn't override.
func (d *dispatcher) handleOp(ctx context.Context, op fuseops.Op) {
	start := time.Now()
	name, err := d.dispatch(ctx, op)

	if d.metrics != nil {
		d.metrics.RecordOp(name, start, err)
	}
	op.Respond(err)
}

func (d *dispatcher) dispatch(ctx context.Context, op fuseops.Op) (name string, err error) {
	switch typed := op.(type) {
	case *fuseops.LookUpInodeOp:
		return "LookUpInode", d.fs.LookUpInode(ctx, typed)
	case *fuseops.GetInodeAttributesOp:
		return "GetInodeAttributes", d.fs.GetInodeAttributes(ctx, typed)
	case *fuseops.ReadSymlinkOp:
		return "ReadSymlink", d.fs.ReadSymlink(ctx, typed)
	case *fuseops.ReadDirOp:
		return "ReadDir", d.fs.ReadDir(ctx, typed)
	case *fuseops.ForgetInodeOp:
		return "ForgetInode", d.fs.ForgetInode(ctx, typed)
	case *fuseops.StatFSOp:
		return "StatFS", d.fs.StatFS(ctx, typed)
	case *fuseops.GetXattrOp:
		return "GetXattr", d.fs.GetXattr(ctx, typed)
	case *fuseops.InitOp:
		return "Init", nil
	default:
		return "Unimplemented", fuse.ENOSYS
	}
}
