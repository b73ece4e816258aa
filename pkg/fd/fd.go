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

// Package fd provides types for working with file descriptors.
package fd

import (
	"fmt"
	"io"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// FD owns a host file descriptor, such as a dma-buf or a device node.
//
// Unlike os.File, FD can give up ownership with Release, which also drops
// its finalizer, and it never puts the descriptor in non-blocking mode.
//
// Reads and writes retry when interrupted by a signal. Write loops until all
// bytes are written, stopping early with a short count and no error only if
// the descriptor reports EAGAIN.
type FD struct {
	// fd is accessed atomically so Close and Release can swap it.
	fd atomic.Int64
}

var _ io.ReadWriteCloser = (*FD)(nil)

// New creates a new FD.
//
// New takes ownership of fd.
func New(fd int) *FD {
	f := &FD{}
	if fd < 0 {
		f.fd.Store(-1)
		return f
	}
	f.fd.Store(int64(fd))
	runtime.SetFinalizer(f, (*FD).Close)
	return f
}

// Open is equivalent to open(2).
func Open(path string, openmode int, perm uint32) (*FD, error) {
	f, err := unix.Open(path, openmode|unix.O_LARGEFILE, perm)
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

// Read implements io.Reader.
func (f *FD) Read(b []byte) (int, error) {
	for {
		c, err := unix.Read(f.FD(), b)
		if err == unix.EINTR {
			continue
		}
		if c < 0 {
			c = 0
		}
		if c == 0 && len(b) > 0 && err == nil {
			return 0, io.EOF
		}
		return c, err
	}
}

// Write implements io.Writer.
func (f *FD) Write(b []byte) (int, error) {
	var err error
	remaining := len(b)
	for remaining > 0 {
		var n int
		n, err = unix.Write(f.FD(), b[len(b)-remaining:])
		if n > 0 {
			remaining -= n
			continue
		}
		if err == nil {
			// Nothing guarantees a retry would make progress.
			panic(fmt.Sprintf("unix.Write returned %d with no error", n))
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			// Non-fatal: report a short count.
			err = nil
		}
		break
	}
	return len(b) - remaining, err
}

// Close closes the file descriptor contained in the FD.
//
// Close is safe to call multiple times, but will return an error after the
// first call.
//
// Concurrently calling Close and any other method is undefined.
func (f *FD) Close() error {
	runtime.SetFinalizer(f, nil)
	return unix.Close(int(f.fd.Swap(-1)))
}

// Release relinquishes ownership of the contained file descriptor.
//
// Concurrently calling Release and any other method is undefined.
func (f *FD) Release() int {
	runtime.SetFinalizer(f, nil)
	return int(f.fd.Swap(-1))
}

// FD returns the file descriptor owned by FD. FD retains ownership.
func (f *FD) FD() int {
	return int(f.fd.Load())
}

// Valid returns true if f still owns a descriptor.
func (f *FD) Valid() bool {
	return f.fd.Load() >= 0
}

// Size returns the size reported by fstat(2).
func (f *FD) Size() (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(f.FD(), &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}
