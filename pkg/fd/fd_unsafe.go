// Copyright 2026 The bufhand Authors.
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

package fd

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Ioctl issues ioctl(2) request req on f with arg as the in/out argument
// buffer, retrying on EINTR. It returns the syscall's non-negative result,
// which some requests use to return a new descriptor.
func (f *FD) Ioctl(req uint32, arg []byte) (int, error) {
	var argp unsafe.Pointer
	if len(arg) > 0 {
		argp = unsafe.Pointer(&arg[0])
	}
	for {
		r, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(f.FD()), uintptr(req), uintptr(argp))
		if e == unix.EINTR {
			continue
		}
		if e != 0 {
			return -1, e
		}
		return int(r), nil
	}
}
