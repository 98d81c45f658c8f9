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

package syscallclass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsExecveRecognizesBothForms(t *testing.T) {
	c := NewForArch("amd64")
	require.True(t, c.IsExecve(59))
	require.True(t, c.IsExecve(322))
	require.False(t, c.IsExecve(257))
}

func TestIsExecveatOnlyMatchesExecveat(t *testing.T) {
	c := NewForArch("amd64")
	require.True(t, c.IsExecveat(322))
	require.False(t, c.IsExecveat(59))
}

func TestIsAllowedOpenAndOpenat(t *testing.T) {
	c := NewForArch("amd64")
	require.True(t, c.IsAllowed(2, nil), "open(2) is allowed on architectures that have it")
	require.True(t, c.IsAllowed(257, nil), "openat is always allowed")
	require.True(t, c.IsAllowed(59, nil), "execve is always allowed")
}

func TestIsAllowedArm64HasNoOpenSyscall(t *testing.T) {
	c := NewForArch("arm64")
	require.False(t, c.IsAllowed(2, nil), "arm64 has no bare open syscall to match against")
	require.True(t, c.IsAllowed(56, nil), "openat is still allowed on arm64")
}

func TestIsAllowedResolveAlwaysEscapeHatch(t *testing.T) {
	c := NewForArch("arm64")
	require.False(t, c.IsAllowed(999, nil))
	require.True(t, c.IsAllowed(999, map[string]string{ENVFSResolveAlwaysVar: "1"}))
}

func TestNewUsesRuntimeArch(t *testing.T) {
	require.NotNil(t, New())
}

func TestNewForArchUnknownFallsBackToAmd64Numbers(t *testing.T) {
	c := NewForArch("made-up-arch")
	require.True(t, c.IsExecve(59), "unknown architectures fall back to amd64's syscall table")
}
