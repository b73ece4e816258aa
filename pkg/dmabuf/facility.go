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

package dmabuf

import (
	"fmt"

	"golang.org/x/sys/unix"

	"bufhand.dev/bufhand/pkg/abi/linux"
	"bufhand.dev/bufhand/pkg/fd"
)

// DefaultUdmabufPath is the udmabuf device node.
const DefaultUdmabufPath = "/dev/udmabuf"

// Facility opens the kernel facility that turns memfd ranges into a dma-buf.
type Facility interface {
	Open() (Device, error)
}

// Device is an open Facility.
type Device interface {
	// CreateList creates one dma-buf spanning items, in order, and returns
	// its descriptor. The caller owns the returned descriptor.
	CreateList(flags uint32, items []linux.UdmabufCreateItem) (int, error)

	// Close closes the device. Buffers already created stay valid.
	Close() error
}

// UdmabufFacility is the udmabuf device.
type UdmabufFacility struct {
	// Path is the device node. Empty means DefaultUdmabufPath.
	Path string
}

// Open implements Facility.Open.
func (f UdmabufFacility) Open() (Device, error) {
	path := f.Path
	if path == "" {
		path = DefaultUdmabufPath
	}
	dev, err := fd.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &udmabufDevice{dev: dev}, nil
}

type udmabufDevice struct {
	dev *fd.FD
}

// CreateList implements Device.CreateList.
func (d *udmabufDevice) CreateList(flags uint32, items []linux.UdmabufCreateItem) (int, error) {
	req := linux.UdmabufCreateList{Flags: flags, Items: items}
	dmaFD, err := d.dev.Ioctl(linux.UDMABUF_CREATE_LIST, req.Bytes())
	if err != nil {
		return -1, fmt.Errorf("ioctl UDMABUF_CREATE_LIST (%d items): %w", len(items), err)
	}
	return dmaFD, nil
}

// Close implements Device.Close.
func (d *udmabufDevice) Close() error {
	return d.dev.Close()
}
