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

package memutil

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// MapShared maps the first size bytes of fd with MAP_SHARED and the given
// protection. The mapping is released with UnmapSlice.
func MapShared(fd int, size uint64, prot int) ([]byte, error) {
	if size == 0 {
		return nil, unix.EINVAL
	}
	addr, _, e := unix.Syscall6(unix.SYS_MMAP, 0, uintptr(size), uintptr(prot), unix.MAP_SHARED, uintptr(fd), 0)
	if e != 0 {
		return nil, e
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)), nil
}

// UnmapSlice unmaps a mapping returned by MapShared.
func UnmapSlice(slice []byte) error {
	if cap(slice) == 0 {
		return nil
	}
	ptr := unsafe.SliceData(slice)
	if _, _, e := unix.RawSyscall(unix.SYS_MUNMAP, uintptr(unsafe.Pointer(ptr)), uintptr(cap(slice)), 0); e != 0 {
		return e
	}
	return nil
}
