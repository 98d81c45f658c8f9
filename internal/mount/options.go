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

// Package mount parses envfs's mount(8)-style "-o" options and sets up the
// bind mounts that let envfs serve itself onto multiple PATH directories
// from one running daemon.
package mount

import "strings"

// ParseOptions splits a single "-o" argument (which may itself carry
// several comma-separated key[=value] options, the way mount(8) accepts
// them) and records each into dst.
func ParseOptions(dst map[string]string, s string) {
	for _, option := range strings.Split(s, ",") {
		if option == "" {
			continue
		}

		key, value, hasValue := strings.Cut(option, "=")
		if !hasValue {
			dst[key] = ""
			continue
		}
		dst[key] = value
	}
}

// ignoredOptions are standard mount(8) options that make sense on the
// mount(8) command line but that envfs itself has no use for; they're
// accepted (not rejected) so generic fstab entries and wrapper scripts
// keep working, but they don't change envfs's behavior.
var ignoredOptions = map[string]bool{
	"ro":      true,
	"rw":      true,
	"nofail":  true,
	"remount": true,
}

// IsIgnored reports whether a parsed option name is one of the
// recognized-but-no-op mount(8) options.
func IsIgnored(name string) bool {
	return ignoredOptions[name]
}
