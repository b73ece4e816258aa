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
	"golang.org/x/sys/unix"

	"bufhand.dev/bufhand/pkg/abi/linux"
	"bufhand.dev/bufhand/pkg/cleanup"
	"bufhand.dev/bufhand/pkg/errors/handofferr"
	"bufhand.dev/bufhand/pkg/fd"
	"bufhand.dev/bufhand/pkg/log"
	"bufhand.dev/bufhand/pkg/memutil"
)

// Buffer is a dma-buf built from an ordered list of ranges.
type Buffer struct {
	file   *fd.FD
	size   uint64
	ranges []*Range
}

// FD returns the dma-buf descriptor. The buffer retains ownership.
func (b *Buffer) FD() int {
	return b.file.FD()
}

// Size returns the total length of the buffer, the sum of its range lengths.
func (b *Buffer) Size() uint64 {
	return b.size
}

// Ranges returns the ranges backing the buffer, in buffer order.
func (b *Buffer) Ranges() []*Range {
	return b.ranges
}

// RangeOffset returns the offset within the buffer of the first byte of
// range i.
func (b *Buffer) RangeOffset(i int) uint64 {
	var off uint64
	for _, r := range b.ranges[:i] {
		off += r.Len()
	}
	return off
}

// Map maps the whole buffer shared with protection prot. The caller unmaps
// it with memutil.UnmapSlice.
func (b *Buffer) Map(prot int) ([]byte, error) {
	m, err := memutil.MapShared(b.FD(), b.size, prot)
	if err != nil {
		return nil, handofferr.New(handofferr.Map, "mmap dma-buf", err)
	}
	return m, nil
}

// Close closes the dma-buf descriptor only. The ranges stay alive until
// Destroy.
func (b *Buffer) Close() error {
	if !b.file.Valid() {
		return nil
	}
	return b.file.Close()
}

// Destroy closes the dma-buf descriptor and destroys every range.
func (b *Buffer) Destroy() {
	b.Close()
	for _, r := range b.ranges {
		r.Destroy()
	}
}

// BufferSize returns the length of the dma-buf (or any file) referred to by
// fd.
func BufferSize(fd int) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return uint64(st.Size), nil
}

// Assembler combines ranges into a Buffer.
type Assembler struct {
	// Allocator creates ranges for Create. Nil means MemfdAllocator.
	Allocator Allocator

	// Facility creates the dma-buf. Nil means UdmabufFacility at the
	// default path.
	Facility Facility

	// Flags are passed to the facility. Zero means
	// UDMABUF_FLAGS_CLOEXEC.
	Flags uint32

	// Logger receives progress messages. Nil means the global logger.
	Logger log.Logger
}

func (a *Assembler) logger() log.Logger {
	if a.Logger == nil {
		return log.Log()
	}
	return a.Logger
}

// Create allocates one range per spec, in order, and assembles them.
//
// Allocation is all-or-nothing: if any range fails, the ranges already
// created are destroyed and the allocation error is returned.
func (a *Assembler) Create(specs []RangeSpec) (*Buffer, error) {
	alloc := a.Allocator
	if alloc == nil {
		alloc = MemfdAllocator{}
	}
	var cu cleanup.Cleanup
	defer cu.Clean()
	ranges := make([]*Range, 0, len(specs))
	for i, s := range specs {
		r, err := alloc.CreateRange(s.Name, s.Length, s.Fill)
		if err != nil {
			a.logger().Warningf("Failed to create range %d, destroying %d ranges: %v", i, len(ranges), err)
			return nil, err
		}
		cu.Add(r.Destroy)
		a.logger().Debugf("range[%d] %d bytes, memfd %d", i, r.Len(), r.FD())
		ranges = append(ranges, r)
	}

	// Assemble owns the ranges from here on.
	cu.Release()
	return a.Assemble(ranges)
}

// Assemble creates one dma-buf spanning ranges, in order.
//
// On success the returned Buffer holds the ranges. On failure every range
// is destroyed.
func (a *Assembler) Assemble(ranges []*Range) (*Buffer, error) {
	if len(ranges) == 0 {
		return nil, handofferr.Newf(handofferr.Creation, "assemble", "no ranges")
	}

	cu := cleanup.Make(func() { destroyAll(ranges) })
	defer cu.Clean()

	fac := a.Facility
	if fac == nil {
		fac = UdmabufFacility{}
	}
	dev, err := fac.Open()
	if err != nil {
		return nil, handofferr.New(handofferr.Facility, "open facility", err)
	}
	defer dev.Close()

	flags := a.Flags
	if flags == 0 {
		flags = linux.UDMABUF_FLAGS_CLOEXEC
	}
	items := make([]linux.UdmabufCreateItem, len(ranges))
	var size uint64
	for i, r := range ranges {
		items[i] = linux.UdmabufCreateItem{
			Memfd:  uint32(r.FD()),
			Offset: 0,
			Size:   r.Len(),
		}
		size += r.Len()
	}

	dmaFD, err := dev.CreateList(flags, items)
	if err != nil {
		return nil, handofferr.New(handofferr.Creation, "create dma-buf", err)
	}
	cu.Release()

	a.logger().Infof("Created dma-buf FD %d spanning %d ranges (%d bytes).", dmaFD, len(ranges), size)
	return &Buffer{file: fd.New(dmaFD), size: size, ranges: ranges}, nil
}

func destroyAll(ranges []*Range) {
	for _, r := range ranges {
		r.Destroy()
	}
}
