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
	"bufhand.dev/bufhand/pkg/hostarch"
)

// Flags for udmabuf creation, from uapi/linux/udmabuf.h.
const (
	UDMABUF_FLAGS_CLOEXEC = 0x01
)

// Sizes of the udmabuf request structures.
const (
	SizeOfUdmabufCreateItem     = 24
	SizeOfUdmabufCreateListHead = 8
)

// ioctl(2) requests provided by uapi/linux/udmabuf.h.
var (
	UDMABUF_CREATE_LIST = IOW('u', 0x43, SizeOfUdmabufCreateListHead)
)

// UdmabufCreateItem is struct udmabuf_create_item, one entry of a
// udmabuf_create_list.
type UdmabufCreateItem struct {
	Memfd  uint32
	Pad    uint32
	Offset uint64
	Size   uint64
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (*UdmabufCreateItem) SizeBytes() int {
	return SizeOfUdmabufCreateItem
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (u *UdmabufCreateItem) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], u.Memfd)
	dst = dst[4:]
	// Padding: dst[:sizeof(uint32)] ~= uint32(0)
	hostarch.ByteOrder.PutUint32(dst[:4], 0)
	dst = dst[4:]
	hostarch.ByteOrder.PutUint64(dst[:8], u.Offset)
	dst = dst[8:]
	hostarch.ByteOrder.PutUint64(dst[:8], u.Size)
	return dst[8:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (u *UdmabufCreateItem) UnmarshalBytes(src []byte) []byte {
	u.Memfd = hostarch.ByteOrder.Uint32(src[:4])
	src = src[4:]
	// Padding: var _ uint32 ~= src[:sizeof(uint32)]
	src = src[4:]
	u.Offset = hostarch.ByteOrder.Uint64(src[:8])
	src = src[8:]
	u.Size = hostarch.ByteOrder.Uint64(src[:8])
	return src[8:]
}

// UdmabufCreateList is struct udmabuf_create_list with its flexible
// trailing array of items.
type UdmabufCreateList struct {
	Flags uint32
	Items []UdmabufCreateItem
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (l *UdmabufCreateList) SizeBytes() int {
	return SizeOfUdmabufCreateListHead + len(l.Items)*SizeOfUdmabufCreateItem
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
//
// The count field is derived from len(l.Items).
func (l *UdmabufCreateList) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], l.Flags)
	dst = dst[4:]
	hostarch.ByteOrder.PutUint32(dst[:4], uint32(len(l.Items)))
	dst = dst[4:]
	for i := range l.Items {
		dst = l.Items[i].MarshalBytes(dst)
	}
	return dst
}

// Bytes returns the marshalled request.
func (l *UdmabufCreateList) Bytes() []byte {
	buf := make([]byte, l.SizeBytes())
	l.MarshalBytes(buf)
	return buf
}
