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

package procfs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// nonexistentPid is picked well above /proc/sys/kernel/pid_max on every
// Linux configuration this runs on, so /proc/<nonexistentPid>/* reliably
// doesn't exist.
const nonexistentPid = 1 << 30

func TestReadEnvironmentOwnProcess(t *testing.T) {
	env, err := ReadEnvironment(os.Getpid())
	require.NoError(t, err)
	for k := range env {
		require.NotEmpty(t, k)
	}
}

func TestReadEnvironmentNonexistentPid(t *testing.T) {
	_, err := ReadEnvironment(nonexistentPid)
	require.Error(t, err)
	var ioErr *IoError
	require.ErrorAs(t, err, &ioErr)
}

func TestReadSyscallArgsNonexistentPid(t *testing.T) {
	_, err := ReadSyscallArgs(nonexistentPid)
	require.Error(t, err)
	var ioErr *IoError
	require.ErrorAs(t, err, &ioErr)
}

func TestReadEnvFromMemNonexistentPid(t *testing.T) {
	_, err := ReadEnvFromMem(nonexistentPid, 0)
	require.Error(t, err)
}

func TestIoErrorUnwrap(t *testing.T) {
	inner := os.ErrNotExist
	e := &IoError{Op: "read", Path: "/proc/1/environ", Err: inner}
	require.ErrorIs(t, e, inner)
	require.Contains(t, e.Error(), "/proc/1/environ")
}

func TestParseErrorUnwrap(t *testing.T) {
	inner := os.ErrInvalid
	e := &ParseError{Path: "/proc/1/syscall", Err: inner}
	require.ErrorIs(t, e, inner)
	require.Contains(t, e.Error(), "/proc/1/syscall")
}

func TestPermissionErrorUnwrap(t *testing.T) {
	inner := os.ErrPermission
	e := &PermissionError{Path: "/proc/1/mem", Err: inner}
	require.ErrorIs(t, e, inner)
	require.Contains(t, e.Error(), "/proc/1/mem")
}
