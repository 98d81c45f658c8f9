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
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// maxRunningRetries bounds the "running\n" retry loop in ReadSyscallArgs.
// The kernel reports this when the target task is briefly between
// syscalls; an unbounded loop here would be a hazard (spec §9), so we cap
// retries and give up rather than spin forever.
const maxRunningRetries = 4

const runningSpinDelay = time.Millisecond

// ReadSyscallArgs reads /proc/<pid>/syscall and returns the syscall number
// followed by its register arguments. Element 0 is the decimal syscall
// number; the rest are hex register values (0x-prefixed in the kernel's
// output, stripped here).
func ReadSyscallArgs(pid int) ([]uint64, error) {
	path := fmt.Sprintf("/proc/%d/syscall", pid)

	var line string
	for attempt := 0; ; attempt++ {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &IoError{Op: "read", Path: path, Err: err}
		}

		line = string(data)
		if line != "running\n" {
			break
		}

		if attempt >= maxRunningRetries {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("task never left 'running' state after %d attempts", maxRunningRetries+1)}
		}
		time.Sleep(runningSpinDelay)
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("empty syscall line")}
	}

	args := make([]uint64, 0, len(fields))
	for i, f := range fields {
		if i == 0 {
			n, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return nil, &ParseError{Path: path, Err: fmt.Errorf("syscall number %q: %w", f, err)}
			}
			args = append(args, n)
			continue
		}

		if len(f) < 2 || f[:2] != "0x" {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("register %q missing 0x prefix", f)}
		}
		v, err := strconv.ParseUint(f[2:], 16, 64)
		if err != nil {
			return nil, &ParseError{Path: path, Err: fmt.Errorf("register %q: %w", f, err)}
		}
		args = append(args, v)
	}

	return args, nil
}
