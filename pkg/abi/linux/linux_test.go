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

package linux

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"bufhand.dev/bufhand/pkg/hostarch"
)

func TestIoctlNumbers(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  uint32
		want uint32
	}{
		{"UDMABUF_CREATE_LIST", UDMABUF_CREATE_LIST, 0x40087543},
		{"IOCTL_GNTDEV_DMABUF_EXP_FROM_REFS", IOCTL_GNTDEV_DMABUF_EXP_FROM_REFS, 0x00144709},
		{"IOCTL_GNTDEV_DMABUF_IMP_TO_REFS", IOCTL_GNTDEV_DMABUF_IMP_TO_REFS, 0x0014470b},
		{"IOCTL_GNTDEV_DMABUF_IMP_RELEASE", IOCTL_GNTDEV_DMABUF_IMP_RELEASE, 0x0008470c},
	} {
		if tc.got != tc.want {
			t.Errorf("%s = %#08x, want %#08x", tc.name, tc.got, tc.want)
		}
	}
	if got := IOC_NR(UDMABUF_CREATE_LIST); got != 0x43 {
		t.Errorf("IOC_NR(UDMABUF_CREATE_LIST) = %#x, want 0x43", got)
	}
	if got := IOC_SIZE(UDMABUF_CREATE_LIST); got != SizeOfUdmabufCreateListHead {
		t.Errorf("IOC_SIZE(UDMABUF_CREATE_LIST) = %d, want %d", got, SizeOfUdmabufCreateListHead)
	}
}

func TestUdmabufCreateListLayout(t *testing.T) {
	l := UdmabufCreateList{
		Flags: UDMABUF_FLAGS_CLOEXEC,
		Items: []UdmabufCreateItem{
			{Memfd: 3, Offset: 0, Size: 4 * hostarch.PageSize},
			{Memfd: 7, Offset: 0, Size: 8 * hostarch.PageSize},
		},
	}
	buf := l.Bytes()
	if got, want := len(buf), 8+2*24; got != want {
		t.Fatalf("len(Bytes()) = %d, want %d", got, want)
	}
	if got := hostarch.ByteOrder.Uint32(buf[0:4]); got != UDMABUF_FLAGS_CLOEXEC {
		t.Errorf("flags = %#x, want %#x", got, UDMABUF_FLAGS_CLOEXEC)
	}
	if got := hostarch.ByteOrder.Uint32(buf[4:8]); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}

	var items []UdmabufCreateItem
	rest := buf[8:]
	for len(rest) > 0 {
		var it UdmabufCreateItem
		rest = it.UnmarshalBytes(rest)
		items = append(items, it)
	}
	if diff := cmp.Diff(l.Items, items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestGntdevImpToRefsRoundTrip(t *testing.T) {
	req := GntdevDmabufImpToRefs{FD: 9, Domid: 3, Refs: make([]uint32, 4)}
	buf := make([]byte, req.SizeBytes())
	req.MarshalBytes(buf)
	if got := hostarch.ByteOrder.Uint32(buf[4:8]); got != 4 {
		t.Errorf("count = %d, want 4", got)
	}

	// Simulate the kernel filling in the references.
	for i := 0; i < 4; i++ {
		hostarch.ByteOrder.PutUint32(buf[16+4*i:], uint32(0x100+i))
	}
	req.UnmarshalBytes(buf)
	if diff := cmp.Diff([]uint32{0x100, 0x101, 0x102, 0x103}, req.Refs); diff != "" {
		t.Errorf("refs mismatch (-want +got):\n%s", diff)
	}
}

func TestGntdevExpFromRefsMinimumSize(t *testing.T) {
	req := GntdevDmabufExpFromRefs{}
	if got := req.SizeBytes(); got != 20 {
		t.Errorf("SizeBytes() with no refs = %d, want 20", got)
	}
	req.Refs = []uint32{1, 2, 3}
	buf := make([]byte, req.SizeBytes())
	req.MarshalBytes(buf)
	hostarch.ByteOrder.PutUint32(buf[8:12], 42)
	req.UnmarshalBytes(buf)
	if req.FD != 42 {
		t.Errorf("FD = %d, want 42", req.FD)
	}
}
