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
	"bytes"
	"fmt"
	"os"
)

// ReadEnvironment parses /proc/<pid>/environ into a KEY=VALUE map. Entries
// without an '=' are skipped. An empty but well-formed file yields an empty
// map, never an error.
func ReadEnvironment(pid int) (map[string]string, error) {
	path := fmt.Sprintf("/proc/%d/environ", pid)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IoError{Op: "read", Path: path, Err: err}
	}

	env := make(map[string]string)
	for _, entry := range bytes.Split(data, []byte{0}) {
		if len(entry) == 0 {
			continue
		}
		idx := bytes.IndexByte(entry, '=')
		if idx < 0 {
			continue
		}
		env[string(entry[:idx])] = string(entry[idx+1:])
	}

	return env, nil
}
