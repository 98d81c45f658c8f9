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

// Package resolve orchestrates procfs, syscallclass, and pathresolve into
// the single decision envfs makes on every lookup: given a calling pid and
// the name the kernel is looking up, what (if anything) should the symlink
// point at.
package resolve

import (
	"github.com/Mic92/envfs/internal/pathresolve"
	"github.com/Mic92/envfs/internal/procfs"
	"github.com/Mic92/envfs/internal/syscallclass"
)

// minExecveArgs is the number of /proc/<pid>/syscall fields execve needs
// before its envp register (args[3]) can be read: syscall number plus three
// argument registers.
const minExecveArgs = 4

// execveEnvpArgIndex is the register position of execve's third argument
// (envp) in the fields returned by ReadSyscallArgs.
const execveEnvpArgIndex = 3

// Engine decides, for a given pid and requested executable name, which
// path (if any) envfs should hand back as the resolved symlink target.
// The three procfs readers are plain function values, defaulted to the
// real /proc readers by New, so tests can substitute fakes without
// spawning real traced processes.
type Engine struct {
	classifier *syscallclass.Classifier

	readEnvironment func(pid int) (map[string]string, error)
	readSyscallArgs func(pid int) ([]uint64, error)
	readEnvFromMem  func(pid int, envpAddr uint64) (map[string]string, error)
}

// New returns an Engine using classifier for syscall-number decisions and
// the real /proc readers.
func New(classifier *syscallclass.Classifier) *Engine {
	return &Engine{
		classifier:      classifier,
		readEnvironment: procfs.ReadEnvironment,
		readSyscallArgs: procfs.ReadSyscallArgs,
		readEnvFromMem:  procfs.ReadEnvFromMem,
	}
}

// NewWithReaders builds an Engine against fake /proc readers instead of
// the real filesystem, letting callers outside this package (notably
// internal/envfs's tests) exercise Resolve's decision logic without a
// real traced process to read.
func NewWithReaders(
	classifier *syscallclass.Classifier,
	readEnvironment func(pid int) (map[string]string, error),
	readSyscallArgs func(pid int) ([]uint64, error),
	readEnvFromMem func(pid int, envpAddr uint64) (map[string]string, error),
) *Engine {
	return &Engine{
		classifier:      classifier,
		readEnvironment: readEnvironment,
		readSyscallArgs: readSyscallArgs,
		readEnvFromMem:  readEnvFromMem,
	}
}

// Resolve implements the six-step decision: read the caller's environment
// and in-flight syscall, decide whether this syscall may legitimately
// trigger resolution, special-case execve by re-reading the child's
// about-to-become-live environment out of its own memory, and otherwise
// fall back to PATH search using the pre-execve environment plus the
// fixed fallback directories.
func (e *Engine) Resolve(pid int, name string, fallbackPaths, mountpoints []string) (pathresolve.Result, bool) {
	env, err := e.readEnvironment(pid)
	if err != nil {
		return pathresolve.Result{}, false
	}

	args, err := e.readSyscallArgs(pid)
	if err != nil || len(args) == 0 {
		return pathresolve.Result{}, false
	}

	syscallNum := args[0]
	allowedSyscall := e.classifier.IsAllowed(syscallNum, env)

	// execve is always allowed and handled specially: the kernel has
	// already built the new process's envp by the time the syscall
	// entry trap fires, so we read it straight out of the caller's
	// memory rather than trusting the (about to be replaced)
	// /proc/<pid>/environ. This branch never consults fallbackPaths -
	// fallback-path resolution only ever happens on the step below,
	// independent of the triggering syscall.
	//
	// execveat's envp sits at argument index 4, not 3, but
	// original_source/src/fs.rs:278 only special-cases plain execve -
	// execveat falls through to the generic /proc/<pid>/environ path
	// below like any other allowed syscall. Left unhandled here on
	// purpose, matching that behavior rather than "fixing" it.
	if e.classifier.IsExecve(syscallNum) && !e.classifier.IsExecveat(syscallNum) && len(args) >= minExecveArgs {
		envpAddr := args[execveEnvpArgIndex]
		if memEnv, err := e.readEnvFromMem(pid, envpAddr); err == nil {
			if pathVal, ok := memEnv["PATH"]; ok {
				if res, ok := pathresolve.Resolve(pathVal, name, nil, mountpoints); ok {
					return res, true
				}
			}
		}
	}

	var pathEnv string
	if allowedSyscall {
		pathEnv = env["PATH"]
	}

	return pathresolve.Resolve(pathEnv, name, fallbackPaths, mountpoints)
}
