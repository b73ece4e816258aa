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

// Package dmabuf builds dma-buf objects out of sealed shared-memory ranges.
//
// A Range is a memfd of fixed length whose size is sealed after it is
// filled. An Assembler concatenates ranges, in order, into a single dma-buf
// through the udmabuf facility. The resulting Buffer owns the dma-buf
// descriptor and, until destroyed, the ranges backing it.
package dmabuf

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"bufhand.dev/bufhand/pkg/abi/linux"
	"bufhand.dev/bufhand/pkg/cleanup"
	"bufhand.dev/bufhand/pkg/errors/handofferr"
	"bufhand.dev/bufhand/pkg/fd"
	"bufhand.dev/bufhand/pkg/hostarch"
	"bufhand.dev/bufhand/pkg/memutil"
)

// DefaultRangeName is the memfd name used for ranges.
const DefaultRangeName = "udmabuf-range"

// FillMode selects how a new range is initialized.
type FillMode int

const (
	// Uniform writes the marker byte over the whole range.
	Uniform FillMode = iota

	// Diagnostic writes the marker byte over the whole range, then a
	// one-line description of the range at offset 0.
	Diagnostic
)

// String implements fmt.Stringer.
func (m FillMode) String() string {
	switch m {
	case Uniform:
		return "uniform"
	case Diagnostic:
		return "diagnostic"
	default:
		return fmt.Sprintf("FillMode(%d)", int(m))
	}
}

// ParseFillMode parses the names returned by FillMode.String.
func ParseFillMode(s string) (FillMode, error) {
	switch s {
	case "uniform":
		return Uniform, nil
	case "diagnostic":
		return Diagnostic, nil
	default:
		return 0, fmt.Errorf("invalid fill mode %q, must be 'uniform' or 'diagnostic'", s)
	}
}

// Fill describes the initial contents of a range.
type Fill struct {
	Mode FillMode

	// Marker is the byte written over the range.
	Marker byte

	// ID identifies the range in the Diagnostic line.
	ID int

	// Time is reported in the Diagnostic line. Zero means now.
	Time time.Time
}

// apply writes the fill into m.
func (f Fill) apply(m []byte) {
	for i := range m {
		m[i] = f.Marker
	}
	if f.Mode != Diagnostic {
		return
	}
	t := f.Time
	if t.IsZero() {
		t = time.Now()
	}
	copy(m, fmt.Sprintf("range[%d] %d bytes created at %ds\n", f.ID, len(m), t.Unix()))
}

// Range is a sealed shared-memory range.
type Range struct {
	name   string
	length uint64
	file   *fd.FD

	// mapping is the live mapping created by Map, if any.
	mapping []byte
}

// Allocator creates ranges.
type Allocator interface {
	// CreateRange creates a range of length bytes named name and
	// initialized with fill.
	CreateRange(name string, length uint64, fill Fill) (*Range, error)
}

// MemfdAllocator is an Allocator backed by memfd_create(2).
type MemfdAllocator struct{}

// CreateRange implements Allocator.CreateRange.
func (MemfdAllocator) CreateRange(name string, length uint64, fill Fill) (*Range, error) {
	return CreateRange(name, length, fill)
}

// CreateRange creates a memfd of length bytes, writes fill into it and seals
// it against growing and shrinking.
//
// length must be a positive multiple of the page size. On failure nothing is
// left open.
func CreateRange(name string, length uint64, fill Fill) (*Range, error) {
	if err := hostarch.CheckPageSize(); err != nil {
		return nil, handofferr.New(handofferr.Size, "create range", err)
	}
	if length == 0 || !hostarch.IsPageAligned(length) {
		return nil, handofferr.Newf(handofferr.Size, "create range", "length %d is not a positive multiple of %d", length, hostarch.PageSize)
	}

	memfd, err := memutil.CreateMemFD(name, linux.MFD_CLOEXEC|linux.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, handofferr.New(handofferr.Allocation, "memfd_create", err)
	}
	r := &Range{name: name, length: length, file: fd.New(memfd)}
	cu := cleanup.Make(r.Destroy)
	defer cu.Clean()

	if err := unix.Ftruncate(memfd, int64(length)); err != nil {
		return nil, handofferr.New(handofferr.Resize, "ftruncate", err)
	}

	m, err := r.Map(unix.PROT_READ | unix.PROT_WRITE)
	if err != nil {
		return nil, err
	}
	fill.apply(m)
	if err := r.Unmap(); err != nil {
		return nil, err
	}

	if err := memutil.AddSeals(memfd, linux.SealsFixedSize); err != nil {
		return nil, handofferr.New(handofferr.Seal, "fcntl", err)
	}

	cu.Release()
	return r, nil
}

// Name returns the memfd name of the range.
func (r *Range) Name() string {
	return r.name
}

// Len returns the length of the range in bytes.
func (r *Range) Len() uint64 {
	return r.length
}

// FD returns the memfd. The range retains ownership.
func (r *Range) FD() int {
	return r.file.FD()
}

// Valid returns true until the range is destroyed.
func (r *Range) Valid() bool {
	return r.file.Valid()
}

// Map maps the whole range shared with protection prot. The range keeps at
// most one mapping; calling Map again returns the existing one.
func (r *Range) Map(prot int) ([]byte, error) {
	if r.mapping != nil {
		return r.mapping, nil
	}
	if !r.Valid() {
		return nil, handofferr.New(handofferr.Map, "mmap", unix.EBADF)
	}
	m, err := memutil.MapShared(r.FD(), r.length, prot)
	if err != nil {
		return nil, handofferr.New(handofferr.Map, "mmap", err)
	}
	r.mapping = m
	return m, nil
}

// Unmap removes the mapping created by Map, if any.
func (r *Range) Unmap() error {
	if r.mapping == nil {
		return nil
	}
	if err := memutil.UnmapSlice(r.mapping); err != nil {
		return handofferr.New(handofferr.Map, "munmap", err)
	}
	r.mapping = nil
	return nil
}

// Seals returns the seals applied to the memfd.
func (r *Range) Seals() (int, error) {
	return memutil.Seals(r.FD())
}

// Destroy unmaps the range if it is mapped and closes the memfd. It is safe
// to call more than once.
func (r *Range) Destroy() {
	if r.mapping != nil {
		memutil.UnmapSlice(r.mapping)
		r.mapping = nil
	}
	if r.file.Valid() {
		r.file.Close()
	}
}

// RangeSpec describes one range to create.
type RangeSpec struct {
	Name   string
	Length uint64
	Fill   Fill
}

// UniformRanges returns count specs of pages pages each, with markers 1
// through count and the given fill mode.
func UniformRanges(count int, pages uint64, mode FillMode) []RangeSpec {
	specs := make([]RangeSpec, count)
	for i := range specs {
		specs[i] = RangeSpec{
			Name:   DefaultRangeName,
			Length: pages * hostarch.PageSize,
			Fill:   Fill{Mode: mode, Marker: byte(i + 1), ID: i},
		}
	}
	return specs
}
