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

package handoff

import (
	"errors"
	"fmt"
	"io"

	"bufhand.dev/bufhand/pkg/binary"
	"bufhand.dev/bufhand/pkg/errors/handofferr"
	"bufhand.dev/bufhand/pkg/fd"
	"bufhand.dev/bufhand/pkg/hostarch"
)

// DefaultMaxRefs bounds the reference count accepted from a peer.
const DefaultMaxRefs = 1 << 20

// sizeOfCount is the size of the count header.
const sizeOfCount = 4

// GrantRefs is the set of grant references that gives a peer domain access
// to a buffer, one reference per page in page order.
//
// On the wire it is a native-endian uint32 count followed by count
// native-endian uint32 references.
type GrantRefs struct {
	Refs []uint32
}

// Count returns the number of references.
func (g *GrantRefs) Count() uint32 {
	return uint32(len(g.Refs))
}

// SizeBytes returns the encoded size, 4+4*Count bytes.
func (g *GrantRefs) SizeBytes() int {
	return sizeOfCount + 4*len(g.Refs)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (g *GrantRefs) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, g.SizeBytes())
	buf = binary.AppendUint32(buf, hostarch.ByteOrder, g.Count())
	return binary.AppendUint32s(buf, hostarch.ByteOrder, g.Refs), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. data must hold
// exactly one encoded set.
func (g *GrantRefs) UnmarshalBinary(data []byte) error {
	if len(data) < sizeOfCount {
		return handofferr.Newf(handofferr.Protocol, "decode grant references", "header is %d bytes, want %d", len(data), sizeOfCount)
	}
	count := hostarch.ByteOrder.Uint32(data)
	payload := data[sizeOfCount:]
	if uint64(len(payload)) != 4*uint64(count) {
		return handofferr.Newf(handofferr.Protocol, "decode grant references", "%d references need %d bytes, got %d", count, 4*uint64(count), len(payload))
	}
	g.Refs = make([]uint32, count)
	binary.Uint32s(g.Refs, hostarch.ByteOrder, payload)
	return nil
}

// ReadGrantRefs reads one set from r: the count header, then the
// references. A stream that ends early is a protocol error, never a
// truncated set. Counts of zero or above limit are rejected before the
// payload is read.
func ReadGrantRefs(r io.Reader, limit uint32) (*GrantRefs, error) {
	var hdr [sizeOfCount]byte
	if _, err := fd.ReadFull(r, hdr[:]); err != nil {
		return nil, readError("read grant reference count", err)
	}
	count := hostarch.ByteOrder.Uint32(hdr[:])
	if count == 0 {
		return nil, handofferr.Newf(handofferr.Protocol, "read grant reference count", "peer sent zero references")
	}
	if count > limit {
		return nil, handofferr.Newf(handofferr.Protocol, "read grant reference count", "peer sent %d references, limit is %d", count, limit)
	}

	payload := make([]byte, 4*int(count))
	if _, err := fd.ReadFull(r, payload); err != nil {
		return nil, readError("read grant references", err)
	}
	g := &GrantRefs{Refs: make([]uint32, count)}
	binary.Uint32s(g.Refs, hostarch.ByteOrder, payload)
	return g, nil
}

// readError classifies a failed exact read: running out of stream is a
// protocol error, anything else a transport error.
func readError(op string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return handofferr.New(handofferr.Protocol, op, fmt.Errorf("stream ended early: %w", err))
	}
	return handofferr.New(handofferr.Transport, op, err)
}

// WriteGrantRefs writes refs to w as one encoded set. Anything short of a
// complete write is a transport error.
func WriteGrantRefs(w io.Writer, refs []uint32) error {
	g := GrantRefs{Refs: refs}
	buf, _ := g.MarshalBinary()
	if _, err := fd.WriteFull(w, buf); err != nil {
		return handofferr.New(handofferr.Transport, "write grant references", err)
	}
	return nil
}
