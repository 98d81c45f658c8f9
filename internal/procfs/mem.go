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
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
)

// ReadEnvFromMem walks a NULL-terminated envp pointer array at envpAddr in
// pid's address space and dereferences each pointer into a KEY=VALUE pair.
// This only succeeds if the caller shares pid's uid or holds CAP_SYS_PTRACE;
// EPERM/EACCES surface as *PermissionError.
func ReadEnvFromMem(pid int, envpAddr uint64) (map[string]string, error) {
	path := fmt.Sprintf("/proc/%d/mem", pid)

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if isPermissionErr(err) {
			return nil, &PermissionError{Path: path, Err: err}
		}
		return nil, &IoError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	pointers, err := readPointerArray(f, envpAddr)
	if err != nil {
		if isPermissionErr(err) {
			return nil, &PermissionError{Path: path, Err: err}
		}
		return nil, &IoError{Op: "read", Path: path, Err: err}
	}

	env := make(map[string]string, len(pointers))
	for _, p := range pointers {
		entry, err := readCString(f, p)
		if err != nil {
			if isPermissionErr(err) {
				return nil, &PermissionError{Path: path, Err: err}
			}
			return nil, &IoError{Op: "read", Path: path, Err: err}
		}

		idx := bytes.IndexByte(entry, '=')
		if idx < 0 {
			env[string(entry)] = ""
			continue
		}
		env[string(entry[:idx])] = string(entry[idx+1:])
	}

	return env, nil
}

func readPointerArray(f *os.File, addr uint64) ([]uint64, error) {
	if _, err := f.Seek(int64(addr), io.SeekStart); err != nil {
		return nil, err
	}

	var pointers []uint64
	for {
		buf := make([]byte, 8)
		n, err := io.ReadFull(f, buf)
		if n < 4 {
			// Short read on the pointer array is treated as end-of-list.
			return pointers, nil
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, err
		}

		p := binary.NativeEndian.Uint64(buf)
		if p == 0 {
			return pointers, nil
		}
		pointers = append(pointers, p)
	}
}

func readCString(f *os.File, addr uint64) ([]byte, error) {
	if _, err := f.Seek(int64(addr), io.SeekStart); err != nil {
		return nil, err
	}

	r := bufio.NewReader(f)
	s, err := r.ReadBytes(0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return s, nil
}

func isPermissionErr(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPERM || errno == syscall.EACCES
	}
	return false
}
