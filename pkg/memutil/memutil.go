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

// Package memutil provides utilities for working with shared memory files.
package memutil

import (
	"fmt"

	"golang.org/x/sys/unix"

	"bufhand.dev/bufhand/pkg/abi/linux"
)

// CreateMemFD creates a memfd file and returns the fd.
func CreateMemFD(name string, flags int) (int, error) {
	fd, err := unix.MemfdCreate(name, flags)
	if err != nil {
		return -1, fmt.Errorf("memfd_create(%q, %#x): %w", name, flags, err)
	}
	return fd, nil
}

// AddSeals applies seals to a memfd created with MFD_ALLOW_SEALING. Seals
// are permanent for the life of the file.
func AddSeals(fd int, seals int) error {
	if _, err := unix.FcntlInt(uintptr(fd), linux.F_ADD_SEALS, seals); err != nil {
		return fmt.Errorf("fcntl(F_ADD_SEALS, %#x): %w", seals, err)
	}
	return nil
}

// Seals returns the seals currently applied to fd.
func Seals(fd int) (int, error) {
	seals, err := unix.FcntlInt(uintptr(fd), linux.F_GET_SEALS, 0)
	if err != nil {
		return 0, fmt.Errorf("fcntl(F_GET_SEALS): %w", err)
	}
	return seals, nil
}
