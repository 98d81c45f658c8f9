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

package mount

import (
	"fmt"
	"os"
	"os/exec"
)

// Set tracks every directory envfs is currently being served at - the
// primary mountpoint plus any bind-mounted copies of it - so
// pathresolve.Resolve can recognize and skip them when they show up on a
// searched PATH.
type Set struct {
	mountpoints []string
}

// NewSet returns a Set seeded with the primary mountpoint.
func NewSet(mountpoint string) *Set {
	return &Set{mountpoints: []string{mountpoint}}
}

// Mountpoints returns every directory currently served, for handing to
// pathresolve.Resolve.
func (s *Set) Mountpoints() []string {
	out := make([]string, len(s.mountpoints))
	copy(out, s.mountpoints)
	return out
}

// BindMount creates dir if needed and bind-mounts the primary mountpoint
// onto it, so a program whose PATH contains dir also sees envfs's
// symlinks there. dir is added to the set regardless of whether this call
// created the mount or dir was already one, matching "-o bind-mount=DIR"
// being safely repeatable.
func (s *Set) BindMount(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	primary := s.mountpoints[0]
	cmd := exec.Command("mount", "--bind", primary, dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("mount --bind %s %s: %w: %s", primary, dir, err, out)
	}

	s.mountpoints = append(s.mountpoints, dir)
	return nil
}
