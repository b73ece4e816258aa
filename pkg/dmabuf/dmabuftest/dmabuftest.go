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

// Package dmabuftest provides a dmabuf.Facility that works without
// /dev/udmabuf, for tests.
package dmabuftest

import (
	"golang.org/x/sys/unix"

	"bufhand.dev/bufhand/pkg/abi/linux"
	"bufhand.dev/bufhand/pkg/dmabuf"
	"bufhand.dev/bufhand/pkg/memutil"
)

// CopyFacility emulates udmabuf by copying every item into a fresh memfd.
// The result has the layout of a real dma-buf over the same ranges but does
// not share their memory.
type CopyFacility struct {
	// OpenErr and CreateErr, if set, are returned by Open and CreateList.
	OpenErr   error
	CreateErr error

	// Opened and Closed count calls to Open and Close.
	Opened int
	Closed int

	// Items is the last list passed to CreateList.
	Items []linux.UdmabufCreateItem
}

var _ dmabuf.Facility = (*CopyFacility)(nil)

// Open implements dmabuf.Facility.Open.
func (f *CopyFacility) Open() (dmabuf.Device, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.Opened++
	return f, nil
}

// Close implements dmabuf.Device.Close.
func (f *CopyFacility) Close() error {
	f.Closed++
	return nil
}

// CreateList implements dmabuf.Device.CreateList.
func (f *CopyFacility) CreateList(flags uint32, items []linux.UdmabufCreateItem) (int, error) {
	if f.CreateErr != nil {
		return -1, f.CreateErr
	}
	f.Items = append([]linux.UdmabufCreateItem(nil), items...)
	var total uint64
	for _, it := range items {
		total += it.Size
	}
	out, err := memutil.CreateMemFD("copy-facility", linux.MFD_CLOEXEC)
	if err != nil {
		return -1, err
	}
	if err := unix.Ftruncate(out, int64(total)); err != nil {
		unix.Close(out)
		return -1, err
	}
	var off int64
	for _, it := range items {
		buf := make([]byte, it.Size)
		if _, err := unix.Pread(int(it.Memfd), buf, int64(it.Offset)); err != nil {
			unix.Close(out)
			return -1, err
		}
		if _, err := unix.Pwrite(out, buf, off); err != nil {
			unix.Close(out)
			return -1, err
		}
		off += int64(it.Size)
	}
	return out, nil
}
