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
	"fmt"
	"io"
	"time"

	"bufhand.dev/bufhand/pkg/errors/handofferr"
	"bufhand.dev/bufhand/pkg/fd"
)

// ackPayload is the byte a receiver sends once it has mapped the buffer.
const ackPayload = 'K'

// DefaultGrace is how long a sender waits for the receiver when no
// acknowledgment is expected.
const DefaultGrace = 2 * time.Second

// SendAck tells the sender that the buffer has been mapped and that it may
// tear down its view.
func SendAck(w io.Writer) error {
	if _, err := fd.WriteFull(w, []byte{ackPayload}); err != nil {
		return handofferr.New(handofferr.Transport, "send ack", err)
	}
	return nil
}

// AwaitRelease blocks until the sender may tear down its view of a handed
// off buffer. With ack set it waits for the receiver's acknowledgment on r;
// otherwise it waits for grace.
func AwaitRelease(r io.Reader, grace time.Duration, ack bool) error {
	if !ack {
		time.Sleep(grace)
		return nil
	}
	var b [1]byte
	if _, err := fd.ReadFull(r, b[:]); err != nil {
		return handofferr.New(handofferr.Transport, "await ack", err)
	}
	if b[0] != ackPayload {
		return handofferr.New(handofferr.Protocol, "await ack", fmt.Errorf("got %q, want %q", b[0], ackPayload))
	}
	return nil
}
