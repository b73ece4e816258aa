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

// Package handoff moves access to a dma-buf from one party to another.
//
// A local handoff passes the descriptor itself over a unix socket. A remote
// handoff converts the buffer to Xen grant references, sends those over any
// byte stream and converts them back to a dma-buf on the receiving side.
// Either way the receiver ends up with its own descriptor for the same
// memory; the sender's descriptor stays valid until it closes it.
package handoff

import (
	"fmt"

	"bufhand.dev/bufhand/pkg/errors/handofferr"
	"bufhand.dev/bufhand/pkg/fd"
	"bufhand.dev/bufhand/pkg/unet"
)

// fdPayload is the single data byte that carries a passed descriptor.
const fdPayload = 'A'

// maxPassedFDs sizes the receive control buffer so that a peer sending too
// many descriptors is detected instead of silently truncated.
const maxPassedFDs = 8

// SendFD sends dmaFD over s as one payload byte plus one SCM_RIGHTS
// descriptor. The caller keeps ownership of dmaFD. Failures are not retried.
func SendFD(s *unet.Socket, dmaFD int) error {
	w := s.Writer()
	w.PackFDs(dmaFD)
	n, err := w.WriteVec([][]byte{{fdPayload}})
	if err != nil {
		return handofferr.New(handofferr.Transport, "send descriptor", err)
	}
	if n != 1 {
		return handofferr.Newf(handofferr.Transport, "send descriptor", "sent %d bytes, want 1", n)
	}
	return nil
}

// ReceiveFD receives exactly one descriptor from s and returns it. The
// caller owns the returned FD, which is distinct from the sender's.
//
// A message carrying no descriptor, more than one, or control data of any
// other kind is a protocol error; every descriptor that did arrive is
// closed.
func ReceiveFD(s *unet.Socket) (*fd.FD, error) {
	r := s.Reader()
	r.EnableFDs(maxPassedFDs)
	var payload [1]byte
	if _, err := r.ReadVec([][]byte{payload[:]}); err != nil {
		r.CloseFDs()
		return nil, handofferr.New(handofferr.Transport, "receive descriptor", err)
	}

	if r.ControlTruncated {
		r.CloseFDs()
		return nil, handofferr.New(handofferr.Protocol, "receive descriptor", unet.ErrControlTruncated)
	}
	rights := r.Rights()
	fds, err := r.ExtractFDs()
	if err != nil || rights != 1 || len(fds) != 1 {
		for _, f := range fds {
			fd.New(f).Close()
		}
		if err == nil {
			err = fmt.Errorf("got %d descriptors in %d SCM_RIGHTS messages, want exactly 1", len(fds), rights)
		}
		return nil, handofferr.New(handofferr.Protocol, "receive descriptor", err)
	}
	return fd.New(fds[0]), nil
}
