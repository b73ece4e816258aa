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

package dmabuf_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"bufhand.dev/bufhand/pkg/abi/linux"
	"bufhand.dev/bufhand/pkg/dmabuf"
	"bufhand.dev/bufhand/pkg/dmabuf/dmabuftest"
	"bufhand.dev/bufhand/pkg/errors/handofferr"
	"bufhand.dev/bufhand/pkg/hostarch"
	"bufhand.dev/bufhand/pkg/memutil"
	"bufhand.dev/bufhand/pkg/test/testutil"
)

// failingAllocator fails the call with index failAt and records every range
// it handed out.
type failingAllocator struct {
	failAt  int
	calls   int
	created []*dmabuf.Range
}

var errInjected = errors.New("injected failure")

func (a *failingAllocator) CreateRange(name string, length uint64, fill dmabuf.Fill) (*dmabuf.Range, error) {
	defer func() { a.calls++ }()
	if a.calls == a.failAt {
		return nil, handofferr.New(handofferr.Allocation, "memfd_create", errInjected)
	}
	r, err := dmabuf.CreateRange(name, length, fill)
	if err == nil {
		a.created = append(a.created, r)
	}
	return r, err
}

func mustMap(t *testing.T, b *dmabuf.Buffer) []byte {
	t.Helper()
	m, err := b.Map(unix.PROT_READ)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	t.Cleanup(func() { memutil.UnmapSlice(m) })
	return m
}

func TestCreateRange(t *testing.T) {
	length := uint64(4 * hostarch.PageSize)
	r, err := dmabuf.CreateRange(dmabuf.DefaultRangeName, length, dmabuf.Fill{Marker: 7})
	if err != nil {
		t.Fatalf("CreateRange: %v", err)
	}
	defer r.Destroy()

	if r.Len() != length {
		t.Errorf("Len() = %d, want %d", r.Len(), length)
	}
	seals, err := r.Seals()
	if err != nil {
		t.Fatalf("Seals: %v", err)
	}
	if seals&linux.SealsFixedSize != linux.SealsFixedSize {
		t.Errorf("Seals() = %#x, want %#x set", seals, linux.SealsFixedSize)
	}
	if err := unix.Ftruncate(r.FD(), int64(2*length)); !errors.Is(err, unix.EPERM) {
		t.Errorf("growing a sealed range: got %v, want EPERM", err)
	}
	if err := unix.Ftruncate(r.FD(), int64(hostarch.PageSize)); !errors.Is(err, unix.EPERM) {
		t.Errorf("shrinking a sealed range: got %v, want EPERM", err)
	}

	m, err := r.Map(unix.PROT_READ)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	for i, b := range m {
		if b != 7 {
			t.Fatalf("byte %d = %d, want 7", i, b)
		}
	}
	if err := r.Unmap(); err != nil {
		t.Errorf("Unmap: %v", err)
	}
}

func TestCreateRangeSize(t *testing.T) {
	for _, length := range []uint64{0, 100, hostarch.PageSize + 1} {
		t.Run(fmt.Sprint(length), func(t *testing.T) {
			r, err := dmabuf.CreateRange(dmabuf.DefaultRangeName, length, dmabuf.Fill{})
			if err == nil {
				r.Destroy()
				t.Fatalf("CreateRange(%d) succeeded", length)
			}
			if !errors.Is(err, handofferr.ErrSize) {
				t.Errorf("CreateRange(%d): got %v, want a size error", length, err)
			}
		})
	}
}

func TestDestroyIdempotent(t *testing.T) {
	r, err := dmabuf.CreateRange(dmabuf.DefaultRangeName, hostarch.PageSize, dmabuf.Fill{Marker: 1})
	if err != nil {
		t.Fatalf("CreateRange: %v", err)
	}
	if _, err := r.Map(unix.PROT_READ); err != nil {
		t.Fatalf("Map: %v", err)
	}
	r.Destroy()
	r.Destroy()
	if r.Valid() {
		t.Errorf("range still valid after Destroy")
	}
	if _, err := r.Map(unix.PROT_READ); !errors.Is(err, handofferr.ErrMap) {
		t.Errorf("Map after Destroy: got %v, want a map error", err)
	}
}

func TestDiagnosticFill(t *testing.T) {
	length := uint64(4 * hostarch.PageSize)
	created := time.Unix(1700000000, 0)
	r, err := dmabuf.CreateRange(dmabuf.DefaultRangeName, length, dmabuf.Fill{Mode: dmabuf.Diagnostic, Marker: 3, ID: 2, Time: created})
	if err != nil {
		t.Fatalf("CreateRange: %v", err)
	}
	defer r.Destroy()

	m, err := r.Map(unix.PROT_READ)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	want := fmt.Sprintf("range[2] %d bytes created at 1700000000s\n", length)
	if got := string(m[:len(want)]); got != want {
		t.Errorf("header = %q, want %q", got, want)
	}
	if m[len(want)] != 3 || m[length-1] != 3 {
		t.Errorf("marker not written after header")
	}
}

func TestParseFillMode(t *testing.T) {
	for _, m := range []dmabuf.FillMode{dmabuf.Uniform, dmabuf.Diagnostic} {
		got, err := dmabuf.ParseFillMode(m.String())
		if err != nil || got != m {
			t.Errorf("ParseFillMode(%q) = %v, %v; want %v, nil", m.String(), got, err, m)
		}
	}
	if _, err := dmabuf.ParseFillMode("random"); err == nil {
		t.Errorf("ParseFillMode(random) succeeded")
	}
}

func TestAssembleConcatenates(t *testing.T) {
	fac := &dmabuftest.CopyFacility{}
	a := &dmabuf.Assembler{Facility: fac}
	specs := dmabuf.UniformRanges(4, 4, dmabuf.Uniform)
	b, err := a.Create(specs)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer b.Destroy()

	rangeLen := uint64(4 * hostarch.PageSize)
	if want := 4 * rangeLen; b.Size() != want {
		t.Errorf("Size() = %d, want %d", b.Size(), want)
	}
	if fac.Opened != 1 || fac.Closed != 1 {
		t.Errorf("facility opened %d, closed %d times; want 1, 1", fac.Opened, fac.Closed)
	}
	for i, it := range fac.Items {
		if it.Memfd != uint32(b.Ranges()[i].FD()) || it.Offset != 0 || it.Size != rangeLen {
			t.Errorf("item %d = %+v, want memfd %d offset 0 size %d", i, it, b.Ranges()[i].FD(), rangeLen)
		}
	}

	m := mustMap(t, b)
	for i := range b.Ranges() {
		off := b.RangeOffset(i)
		if off != uint64(i)*rangeLen {
			t.Errorf("RangeOffset(%d) = %d, want %d", i, off, uint64(i)*rangeLen)
		}
		if m[off] != byte(i+1) || m[off+rangeLen-1] != byte(i+1) {
			t.Errorf("range %d: bytes %d and %d = %d, %d; want %d", i, off, off+rangeLen-1, m[off], m[off+rangeLen-1], i+1)
		}
	}
	size, err := dmabuf.BufferSize(b.FD())
	if err != nil || size != b.Size() {
		t.Errorf("BufferSize = %d, %v; want %d, nil", size, err, b.Size())
	}
}

func TestCreateAllocationFailure(t *testing.T) {
	const count = 4
	for failAt := 0; failAt < count; failAt++ {
		t.Run(fmt.Sprintf("fail%d", failAt), func(t *testing.T) {
			alloc := &failingAllocator{failAt: failAt}
			fac := &dmabuftest.CopyFacility{}
			a := &dmabuf.Assembler{Allocator: alloc, Facility: fac}
			b, err := a.Create(dmabuf.UniformRanges(count, 1, dmabuf.Uniform))
			if err == nil {
				b.Destroy()
				t.Fatalf("Create succeeded")
			}
			if !errors.Is(err, errInjected) || !errors.Is(err, handofferr.ErrAllocation) {
				t.Errorf("Create: got %v, want the injected allocation error", err)
			}
			if len(alloc.created) != failAt {
				t.Errorf("created %d ranges before failing, want %d", len(alloc.created), failAt)
			}
			for i, r := range alloc.created {
				if r.Valid() {
					t.Errorf("range %d still live after failed Create", i)
				}
			}
			if fac.Opened != 0 {
				t.Errorf("facility opened after allocation failure")
			}
		})
	}
}

func TestAssembleFailureDestroysRanges(t *testing.T) {
	for _, tc := range []struct {
		name string
		fac  *dmabuftest.CopyFacility
		want error
	}{
		{"open", &dmabuftest.CopyFacility{OpenErr: unix.ENOENT}, handofferr.ErrFacility},
		{"create", &dmabuftest.CopyFacility{CreateErr: unix.EINVAL}, handofferr.ErrCreation},
	} {
		t.Run(tc.name, func(t *testing.T) {
			alloc := &failingAllocator{failAt: -1}
			a := &dmabuf.Assembler{Allocator: alloc, Facility: tc.fac}
			if _, err := a.Create(dmabuf.UniformRanges(3, 1, dmabuf.Uniform)); !errors.Is(err, tc.want) {
				t.Fatalf("Create: got %v, want %v", err, tc.want)
			}
			if len(alloc.created) != 3 {
				t.Fatalf("created %d ranges, want 3", len(alloc.created))
			}
			for i, r := range alloc.created {
				if r.Valid() {
					t.Errorf("range %d still live", i)
				}
			}
		})
	}
}

func TestAssembleEmpty(t *testing.T) {
	a := &dmabuf.Assembler{Facility: &dmabuftest.CopyFacility{}}
	if _, err := a.Assemble(nil); !errors.Is(err, handofferr.ErrCreation) {
		t.Errorf("Assemble(nil): got %v, want a creation error", err)
	}
}

func TestErrorNamesPhase(t *testing.T) {
	a := &dmabuf.Assembler{Facility: &dmabuftest.CopyFacility{OpenErr: unix.ENOENT}}
	r, err := dmabuf.CreateRange(dmabuf.DefaultRangeName, hostarch.PageSize, dmabuf.Fill{})
	if err != nil {
		t.Fatalf("CreateRange: %v", err)
	}
	_, err = a.Assemble([]*dmabuf.Range{r})
	if err == nil || !strings.HasPrefix(err.Error(), "assembly: ") {
		t.Errorf("error %q does not name the assembly phase", err)
	}
	if !errors.Is(err, unix.ENOENT) {
		t.Errorf("error %v does not wrap ENOENT", err)
	}
}

func TestUdmabuf(t *testing.T) {
	testutil.RequireDevice(t, dmabuf.DefaultUdmabufPath)

	a := &dmabuf.Assembler{}
	b, err := a.Create(dmabuf.UniformRanges(4, 4, dmabuf.Uniform))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer b.Destroy()

	size, err := dmabuf.BufferSize(b.FD())
	if err != nil {
		t.Fatalf("BufferSize: %v", err)
	}
	if size != 16*hostarch.PageSize {
		t.Errorf("BufferSize = %d, want %d", size, 16*hostarch.PageSize)
	}
	m := mustMap(t, b)
	for i := 0; i < 4; i++ {
		if got := m[uint64(i)*4*hostarch.PageSize]; got != byte(i+1) {
			t.Errorf("marker of range %d = %d, want %d", i, got, i+1)
		}
	}
}
