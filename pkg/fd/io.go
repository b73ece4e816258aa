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

package fd

import (
	"errors"
	"fmt"
	"io"
)

// ErrShortWrite is returned by WriteFull when the writer stopped early
// without reporting an error, e.g. because the descriptor would block.
var ErrShortWrite = errors.New("short write")

// ReadFull reads exactly len(buf) bytes from r.
//
// Interruptions are retried by the underlying reader and partial reads are
// looped to completion. If fewer than len(buf) bytes are available before
// end of stream, the count read so far is returned with
// io.ErrUnexpectedEOF (or io.EOF if nothing was read).
func ReadFull(r io.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}

// WriteFull writes all of buf to w, looping over partial writes.
//
// A writer that returns a short count with no error (the descriptor would
// block) ends the loop: the short count is returned with ErrShortWrite so
// callers that need all-or-nothing semantics can treat it as fatal.
func WriteFull(w io.Writer, buf []byte) (int, error) {
	var written int
	for written < len(buf) {
		n, err := w.Write(buf[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, written, len(buf))
		}
	}
	return written, nil
}
