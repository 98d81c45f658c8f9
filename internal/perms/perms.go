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

// Package perms handles the process-wide resource limits envfs needs
// before it starts serving: a raised open-file limit (every served
// symlink read can briefly hold /proc/<pid>/{environ,syscall,mem} open)
// and the worker-pool size for the FUSE dispatcher.
package perms

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// TargetNoFile is the open-file limit envfs asks for on startup.
const TargetNoFile = 1_048_576

// RaiseFileLimit raises RLIMIT_NOFILE's soft limit to TargetNoFile,
// capped at whatever the hard limit allows.
func RaiseFileLimit() error {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return fmt.Errorf("query RLIMIT_NOFILE: %w", err)
	}

	target := uint64(TargetNoFile)
	if limit.Max < target {
		target = limit.Max
	}
	if limit.Cur >= target {
		return nil
	}

	limit.Cur = target
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return fmt.Errorf("raise RLIMIT_NOFILE to %d: %w", target, err)
	}
	return nil
}

// WorkerCount returns the default FUSE dispatcher pool size: half the
// available CPUs, never fewer than one.
func WorkerCount() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}
