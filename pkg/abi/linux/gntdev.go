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

// Flags for IOCTL_GNTDEV_DMABUF_EXP_FROM_REFS, from uapi/xen/gntdev.h.
const (
	GNTDEV_DMA_FLAG_WC       = 1 << 0
	GNTDEV_DMA_FLAG_COHERENT = 1 << 1
)

// Sizes of the fixed part of the gntdev dma-buf request structures. The
// kernel declares the trailing reference array as refs[1], so the C
// sizeof includes one reference.
const (
	SizeOfGntdevDmabufExpFromRefsHead  = 16
	SizeOfGntdevDmabufImpToRefsHead    = 16
	SizeOfGntdevDmabufImpRelease       = 8
	sizeOfGntdevDmabufExpFromRefsCType = SizeOfGntdevDmabufExpFromRefsHead + 4
	sizeOfGntdevDmabufImpToRefsCType   = SizeOfGntdevDmabufImpToRefsHead + 4
)

// ioctl(2) requests provided by uapi/xen/gntdev.h.
var (
	IOCTL_GNTDEV_DMABUF_EXP_FROM_REFS     = IOC(_IOC_NONE, 'G', 9, sizeOfGntdevDmabufExpFromRefsCType)
	IOCTL_GNTDEV_DMABUF_IMP_TO_REFS       = IOC(_IOC_NONE, 'G', 11, sizeOfGntdevDmabufImpToRefsCType)
	IOCTL_GNTDEV_DMABUF_IMP_RELEASE       = IOC(_IOC_NONE, 'G', 12, SizeOfGntdevDmabufImpRelease)
)

func refsSizeBytes(n int) int {
	// The kernel always reads at least the C sizeof of the request.
	if n < 1 {
		n = 1
	}
	return 4 * n
}

func marshalRefs(dst []byte, refs []uint32) []byte {
	for _, r := range refs {
		hostarch.ByteOrder.PutUint32(dst[:4], r)
		dst = dst[4:]
	}
	return dst
}

func unmarshalRefs(src []byte, refs []uint32) []byte {
	for i := range refs {
		refs[i] = hostarch.ByteOrder.Uint32(src[:4])
		src = src[4:]
	}
	return src
}

// GntdevDmabufExpFromRefs is struct ioctl_gntdev_dmabuf_exp_from_refs. It
// asks the grant device to map foreign grant references and export them as
// a local dma-buf.
type GntdevDmabufExpFromRefs struct {
	// Flags is a combination of GNTDEV_DMA_FLAG_*.
	Flags uint32

	// FD is an output: the exported dma-buf.
	FD uint32

	// Domid is the domain that granted Refs.
	Domid uint32

	// Refs are the grant references, in page order. Count is len(Refs).
	Refs []uint32
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (e *GntdevDmabufExpFromRefs) SizeBytes() int {
	return SizeOfGntdevDmabufExpFromRefsHead + refsSizeBytes(len(e.Refs))
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (e *GntdevDmabufExpFromRefs) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], e.Flags)
	dst = dst[4:]
	hostarch.ByteOrder.PutUint32(dst[:4], uint32(len(e.Refs)))
	dst = dst[4:]
	hostarch.ByteOrder.PutUint32(dst[:4], e.FD)
	dst = dst[4:]
	hostarch.ByteOrder.PutUint32(dst[:4], e.Domid)
	dst = dst[4:]
	return marshalRefs(dst, e.Refs)
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
//
// Only the output field FD is read back; the references are inputs.
func (e *GntdevDmabufExpFromRefs) UnmarshalBytes(src []byte) []byte {
	e.FD = hostarch.ByteOrder.Uint32(src[8:12])
	return src[SizeOfGntdevDmabufExpFromRefsHead:]
}

// GntdevDmabufImpToRefs is struct ioctl_gntdev_dmabuf_imp_to_refs. It asks
// the grant device to import a local dma-buf and grant its pages to a
// foreign domain.
type GntdevDmabufImpToRefs struct {
	// FD is the dma-buf to import.
	FD uint32

	// Domid is the domain that is granted access.
	Domid uint32

	// Refs receives the grant references. Count is len(Refs), and the
	// caller sizes it to the number of pages of the dma-buf.
	Refs []uint32
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (i *GntdevDmabufImpToRefs) SizeBytes() int {
	return SizeOfGntdevDmabufImpToRefsHead + refsSizeBytes(len(i.Refs))
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (i *GntdevDmabufImpToRefs) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], i.FD)
	dst = dst[4:]
	hostarch.ByteOrder.PutUint32(dst[:4], uint32(len(i.Refs)))
	dst = dst[4:]
	hostarch.ByteOrder.PutUint32(dst[:4], i.Domid)
	dst = dst[4:]
	// Reserved, must be zero.
	hostarch.ByteOrder.PutUint32(dst[:4], 0)
	dst = dst[4:]
	return marshalRefs(dst, i.Refs)
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
//
// Only the output references are read back, into the existing Refs slice.
func (i *GntdevDmabufImpToRefs) UnmarshalBytes(src []byte) []byte {
	return unmarshalRefs(src[SizeOfGntdevDmabufImpToRefsHead:], i.Refs)
}

// GntdevDmabufImpRelease is struct ioctl_gntdev_dmabuf_imp_release.
type GntdevDmabufImpRelease struct {
	FD uint32
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (*GntdevDmabufImpRelease) SizeBytes() int {
	return SizeOfGntdevDmabufImpRelease
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (r *GntdevDmabufImpRelease) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], r.FD)
	dst = dst[4:]
	// Reserved, must be zero.
	hostarch.ByteOrder.PutUint32(dst[:4], 0)
	return dst[4:]
}
