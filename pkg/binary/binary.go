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

// Package binary translates between fixed-width unsigned integers and their
// binary representation.
package binary

import (
	"encoding/binary"
	"fmt"
)

// AppendUint32 appends the binary representation of a uint32 to buf.
func AppendUint32(buf []byte, order binary.ByteOrder, num uint32) []byte {
	buf = append(buf, make([]byte, 4)...)
	order.PutUint32(buf[len(buf)-4:], num)
	return buf
}

// AppendUint32s appends the binary representation of each element of nums
// to buf, in order.
func AppendUint32s(buf []byte, order binary.ByteOrder, nums []uint32) []byte {
	for _, n := range nums {
		buf = AppendUint32(buf, order, n)
	}
	return buf
}

// Uint32s decodes len(dst) uint32 values from src.
//
// src must be exactly 4*len(dst) bytes long.
func Uint32s(dst []uint32, order binary.ByteOrder, src []byte) {
	if len(src) != 4*len(dst) {
		panic(fmt.Sprintf("buffer is %d bytes, want %d", len(src), 4*len(dst)))
	}
	for i := range dst {
		dst[i] = order.Uint32(src[4*i:])
	}
}
