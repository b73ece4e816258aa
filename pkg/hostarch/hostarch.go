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

// Package hostarch describes properties of the host memory layout that the
// buffer code depends on.
package hostarch

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// ByteOrder is the byte order of the host. Wire formats exchanged between
// peers on the same architecture are encoded with it.
var ByteOrder binary.ByteOrder = binary.NativeEndian

// getpagesize is overridden in tests.
var getpagesize = unix.Getpagesize

// CheckPageSize returns an error if the host page size is not PageSize.
// Builds for 64K pages are selected with the pagesize_64k tag on arm64.
func CheckPageSize() error {
	if size := getpagesize(); size != PageSize {
		return fmt.Errorf("host page size is %d bytes, this build supports %d", size, PageSize)
	}
	return nil
}

// PageRoundDown returns v rounded down to the nearest page boundary.
func PageRoundDown(v uint64) uint64 {
	return v &^ (PageSize - 1)
}

// PageRoundUp returns v rounded up to the nearest page boundary. ok is true
// iff rounding up did not wrap around.
func PageRoundUp(v uint64) (addr uint64, ok bool) {
	addr = PageRoundDown(v + PageSize - 1)
	ok = addr >= v
	return
}

// IsPageAligned returns true if v is a multiple of the page size.
func IsPageAligned(v uint64) bool {
	return v&(PageSize-1) == 0
}

// Pages returns the number of whole pages spanned by length. ok is false if
// length is not page aligned.
func Pages(length uint64) (pages uint64, ok bool) {
	if !IsPageAligned(length) {
		return 0, false
	}
	return length >> PageShift, true
}
