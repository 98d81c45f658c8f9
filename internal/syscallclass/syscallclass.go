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

// Package syscallclass decides, from a raw syscall number, whether an
// envfs lookup may legitimately resolve a path for the calling syscall.
package syscallclass

import "runtime"

// ENVFSResolveAlwaysVar is the caller-environment escape hatch that bypasses
// the syscall allow-list entirely (spec §4.3).
const ENVFSResolveAlwaysVar = "ENVFS_RESOLVE_ALWAYS"

// numbers is the per-architecture table of execve/execveat/open/openat
// syscall numbers. Architectures not listed here only support openat, per
// spec §4.3.
type numbers struct {
	execve   uint64
	execveat uint64
	open     uint64 // 0 means "not supported on this arch"
	hasOpen  bool
	openat   uint64
}

// Syscall numbers below are the stable Linux ABI numbers for each listed
// architecture; see arch/<arch>/include/asm/unistd*.h in the kernel source.
var table = map[string]numbers{
	"amd64": {execve: 59, execveat: 322, open: 2, hasOpen: true, openat: 257},
	"arm":   {execve: 11, execveat: 387, open: 5, hasOpen: true, openat: 322},
	"arm64": {execve: 221, execveat: 281, hasOpen: false, openat: 56},
	"ppc":   {execve: 11, execveat: 362, open: 5, hasOpen: true, openat: 286},
	"ppc64": {execve: 11, execveat: 362, open: 5, hasOpen: true, openat: 286},
	"ppc64le": {execve: 11, execveat: 362, open: 5, hasOpen: true, openat: 286},
	"sparc64": {execve: 59, execveat: 344, open: 5, hasOpen: true, openat: 356},
	"mips":    {execve: 4011, execveat: 4356, open: 4005, hasOpen: true, openat: 4288},
	"mipsle":  {execve: 4011, execveat: 4356, open: 4005, hasOpen: true, openat: 4288},
	"mips64":  {execve: 5057, execveat: 5316, open: 5002, hasOpen: true, openat: 5247},
	"mips64le": {execve: 5057, execveat: 5316, open: 5002, hasOpen: true, openat: 5247},
	"s390x":   {execve: 11, execveat: 354, open: 5, hasOpen: true, openat: 288},
	"riscv64": {execve: 221, execveat: 281, hasOpen: false, openat: 56},
}

// Classifier answers syscall-classification questions for the host
// architecture. The zero value uses runtime.GOARCH.
type Classifier struct {
	arch string
}

// New returns a Classifier for the running binary's architecture.
func New() *Classifier {
	return &Classifier{arch: runtime.GOARCH}
}

// NewForArch returns a Classifier for an explicit architecture, for testing
// cross-architecture behavior without cross-compiling.
func NewForArch(arch string) *Classifier {
	return &Classifier{arch: arch}
}

func (c *Classifier) numbers() numbers {
	if n, ok := table[c.arch]; ok {
		return n
	}
	// Unlisted architectures borrow amd64's numbers but, having no bare
	// open syscall, only match openat.
	n := table["amd64"]
	n.hasOpen = false
	return n
}

// IsExecve reports whether n is this architecture's execve or execveat.
func (c *Classifier) IsExecve(n uint64) bool {
	t := c.numbers()
	return n == t.execve || n == t.execveat
}

// IsExecveat reports whether n is specifically execveat (as opposed to
// execve), which determines which argument register holds envp.
func (c *Classifier) IsExecveat(n uint64) bool {
	return n == c.numbers().execveat
}

// IsAllowed reports whether resolution may proceed for syscall n given the
// caller's environment: true for open/openat (where open exists on this
// arch), for execve/execveat, or when ENVFS_RESOLVE_ALWAYS is set.
func (c *Classifier) IsAllowed(n uint64, env map[string]string) bool {
	if c.IsExecve(n) {
		return true
	}

	t := c.numbers()
	if n == t.openat {
		return true
	}
	if t.hasOpen && n == t.open {
		return true
	}

	_, ok := env[ENVFSResolveAlwaysVar]
	return ok
}
