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

// Package gnttab converts dma-bufs to and from Xen grant references through
// the gntdev device.
//
// A Table is process-wide state: open it once, pass it to whatever needs it
// and close it at shutdown.
package gnttab

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"bufhand.dev/bufhand/pkg/abi/linux"
	"bufhand.dev/bufhand/pkg/fd"
)

// DefaultPath is the gntdev device node.
const DefaultPath = "/dev/xen/gntdev"

// Table converts between local dma-bufs and grant references.
type Table interface {
	// ImportToRefs grants domid access to the pages of dmaFD and returns
	// one reference per page, in page order.
	ImportToRefs(domid uint32, dmaFD int, pages uint32) ([]uint32, error)

	// ExportFromRefs maps the pages granted by domid and returns a new
	// local dma-buf descriptor owned by the caller.
	ExportFromRefs(domid uint32, flags uint32, refs []uint32) (int, error)

	// ReleaseImport revokes the grants created by ImportToRefs for dmaFD.
	ReleaseImport(dmaFD int) error

	// Close releases the table.
	Close() error
}

// Device is a Table backed by /dev/xen/gntdev.
type Device struct {
	// mu serializes ioctls on dev.
	mu  sync.Mutex
	dev *fd.FD
}

var _ Table = (*Device)(nil)

// Open opens the grant device at path. Empty means DefaultPath.
func Open(path string) (*Device, error) {
	if path == "" {
		path = DefaultPath
	}
	dev, err := fd.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{dev: dev}, nil
}

func (d *Device) ioctl(name string, req uint32, arg []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.dev.Ioctl(req, arg); err != nil {
		return fmt.Errorf("ioctl %s: %w", name, err)
	}
	return nil
}

// ImportToRefs implements Table.ImportToRefs.
func (d *Device) ImportToRefs(domid uint32, dmaFD int, pages uint32) ([]uint32, error) {
	req := linux.GntdevDmabufImpToRefs{
		FD:    uint32(dmaFD),
		Domid: domid,
		Refs:  make([]uint32, pages),
	}
	buf := make([]byte, req.SizeBytes())
	req.MarshalBytes(buf)
	if err := d.ioctl("IOCTL_GNTDEV_DMABUF_IMP_TO_REFS", linux.IOCTL_GNTDEV_DMABUF_IMP_TO_REFS, buf); err != nil {
		return nil, err
	}
	req.UnmarshalBytes(buf)
	return req.Refs, nil
}

// ExportFromRefs implements Table.ExportFromRefs.
func (d *Device) ExportFromRefs(domid uint32, flags uint32, refs []uint32) (int, error) {
	req := linux.GntdevDmabufExpFromRefs{
		Flags: flags,
		Domid: domid,
		Refs:  refs,
	}
	buf := make([]byte, req.SizeBytes())
	req.MarshalBytes(buf)
	if err := d.ioctl("IOCTL_GNTDEV_DMABUF_EXP_FROM_REFS", linux.IOCTL_GNTDEV_DMABUF_EXP_FROM_REFS, buf); err != nil {
		return -1, err
	}
	req.UnmarshalBytes(buf)
	return int(req.FD), nil
}

// ReleaseImport implements Table.ReleaseImport.
func (d *Device) ReleaseImport(dmaFD int) error {
	req := linux.GntdevDmabufImpRelease{FD: uint32(dmaFD)}
	buf := make([]byte, req.SizeBytes())
	req.MarshalBytes(buf)
	return d.ioctl("IOCTL_GNTDEV_DMABUF_IMP_RELEASE", linux.IOCTL_GNTDEV_DMABUF_IMP_RELEASE, buf)
}

// Close implements Table.Close.
func (d *Device) Close() error {
	return d.dev.Close()
}
