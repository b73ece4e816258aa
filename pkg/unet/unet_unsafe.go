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

package unet

import (
	"io"
	"unsafe"

	"golang.org/x/sys/unix"
)

// newMsghdr describes bufs and the control buffer control to recvmsg or
// sendmsg. Empty buffers are skipped. It returns the total length of bufs.
//
// The returned header points into bufs, control and iovecs.
func newMsghdr(bufs [][]byte, control []byte, iovecs []unix.Iovec) (*unix.Msghdr, int) {
	var length int
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		iov := unix.Iovec{Base: &b[0]}
		iov.SetLen(len(b))
		iovecs = append(iovecs, iov)
		length += len(b)
	}
	msg := new(unix.Msghdr)
	if len(iovecs) != 0 {
		msg.Iov = &iovecs[0]
		msg.SetIovlen(len(iovecs))
	}
	if len(control) != 0 {
		msg.Control = &control[0]
		msg.SetControllen(len(control))
	}
	return msg, length
}

// msgSyscall runs recvmsg or sendmsg on fd, retrying on EINTR.
func msgSyscall(trap uintptr, fd int, msg *unix.Msghdr, flags int) (int, error) {
	if fd < 0 {
		return 0, unix.EBADF
	}
	for {
		n, _, e := unix.Syscall(trap, uintptr(fd), uintptr(unsafe.Pointer(msg)), uintptr(flags))
		switch e {
		case 0:
			return int(n), nil
		case unix.EINTR:
		default:
			return 0, e
		}
	}
}

// ReadVec reads into bufs and, if ControlMessage has room, ancillary data.
// It returns after a single successful recvmsg, which need not fill bufs.
//
// On return ControlMessage is cut to the received length and
// ControlTruncated reports whether the kernel dropped any of it.
func (r *SocketReader) ReadVec(bufs [][]byte) (int, error) {
	msg, length := newMsghdr(bufs, r.ControlMessage, make([]unix.Iovec, 0, 2))
	n, err := msgSyscall(unix.SYS_RECVMSG, r.socket.FD(), msg, unix.MSG_TRUNC|unix.MSG_CMSG_CLOEXEC)
	if err != nil {
		return 0, err
	}
	if int(msg.Controllen) < len(r.ControlMessage) {
		r.ControlMessage = r.ControlMessage[:msg.Controllen]
	}
	r.ControlTruncated = msg.Flags&unix.MSG_CTRUNC != 0

	// A stream peer that has shut down reads as zero bytes.
	if n == 0 {
		return 0, io.EOF
	}
	if n > length {
		return length, errMessageTruncated
	}
	return n, nil
}

// WriteVec writes bufs and ControlMessage with a single sendmsg, which need
// not send all of bufs.
func (w *SocketWriter) WriteVec(bufs [][]byte) (int, error) {
	msg, _ := newMsghdr(bufs, w.ControlMessage, make([]unix.Iovec, 0, 2))
	return msgSyscall(unix.SYS_SENDMSG, w.socket.FD(), msg, unix.MSG_NOSIGNAL)
}
