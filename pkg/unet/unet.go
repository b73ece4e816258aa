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

// Package unet provides a minimal net package based on Unix Domain Sockets.
//
// Sockets are always blocking. Unlike the net package, unet exposes the
// ancillary data of each message so that file descriptors can be passed
// alongside the payload.
package unet

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// errMessageTruncated indicates that data was lost because the provided
// buffer was too small.
var errMessageTruncated = errors.New("message truncated")

// ErrControlTruncated indicates that the kernel dropped ancillary data
// because the control buffer was too small.
var ErrControlTruncated = errors.New("control message truncated")

// socketType returns the appropriate type.
func socketType(packet bool) int {
	if packet {
		return unix.SOCK_SEQPACKET
	}
	return unix.SOCK_STREAM
}

// socket creates a new host socket.
func socket(packet bool) (int, error) {
	// Make a new socket.
	fd, err := unix.Socket(unix.AF_UNIX, socketType(packet)|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, err
	}

	return fd, nil
}

// Socket is a connected unix domain socket.
type Socket struct {
	// fd is the socket fd, or -1 once closed.
	fd atomic.Int32
}

// NewSocket returns a socket from an existing FD.
//
// NewSocket takes ownership of fd.
func NewSocket(fd int) (*Socket, error) {
	s := &Socket{}
	s.fd.Store(int32(fd))
	return s, nil
}

// FD returns the FD for this Socket.
//
// The returned FD cannot be used safely if there may be concurrent callers to
// Close or Release.
//
// Use Release to take ownership of the FD.
func (s *Socket) FD() int {
	return int(s.fd.Load())
}

// Close closes the socket.
func (s *Socket) Close() error {
	fd := s.fd.Swap(-1)
	if fd < 0 {
		return unix.EBADF
	}
	return unix.Close(int(fd))
}

// Release releases ownership of the socket FD.
//
// Any concurrent or future callers of Socket methods will receive EBADF.
func (s *Socket) Release() (int, error) {
	fd := s.fd.Swap(-1)
	if fd < 0 {
		return -1, unix.EBADF
	}
	return int(fd), nil
}

// Shutdown closes the socket for read and write.
func (s *Socket) Shutdown() error {
	fd := s.FD()
	if fd < 0 {
		return unix.EBADF
	}
	return unix.Shutdown(fd, unix.SHUT_RDWR)
}

// Read implements io.Reader.Read.
func (s *Socket) Read(p []byte) (int, error) {
	r := s.Reader()
	return r.ReadVec([][]byte{p})
}

// Write implements io.Writer.Write.
func (s *Socket) Write(p []byte) (int, error) {
	w := s.Writer()
	return w.WriteVec([][]byte{p})
}

// Reader returns a reader for this socket.
func (s *Socket) Reader() SocketReader {
	return SocketReader{socket: s}
}

// Writer returns a writer for this socket.
func (s *Socket) Writer() SocketWriter {
	return SocketWriter{socket: s}
}

// SocketReader wraps an individual receive operation.
//
// This may be used for doing vectorized reads and/or sending additional
// control messages (e.g. FDs). The normal entrypoint is ReadVec.
//
// One of ExtractFDs or DisposeFDs must be called if EnableFDs is used.
type SocketReader struct {
	socket *Socket
	ControlMessage

	// ControlTruncated is set by ReadVec when the kernel reported
	// MSG_CTRUNC. Descriptors that did arrive are still in ControlMessage
	// and must be disposed of.
	ControlTruncated bool
}

// SocketWriter wraps an individual send operation.
//
// The normal entrypoint is WriteVec.
type SocketWriter struct {
	socket *Socket
	ControlMessage
}

// Connect connects to a stream server at the given path.
func Connect(addr string, packet bool) (*Socket, error) {
	fd, err := socket(packet)
	if err != nil {
		return nil, err
	}

	// Connect the socket.
	usa := &unix.SockaddrUnix{Name: addr}
	for {
		err = unix.Connect(fd, usa)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	return NewSocket(fd)
}

// ControlMessage wraps around a byte array and provides functions for parsing
// as a Unix Domain Socket control message.
type ControlMessage []byte

// EnableFDs enables receiving FDs via control message.
//
// This guarantees only a MINIMUM number of FDs received. You may receive MORE
// than this due to the way FDs are packed. To be specific, the number of
// receivable buffers will be rounded up to the nearest even number.
//
// This must be called prior to ReadVec if you want to receive FDs.
func (c *ControlMessage) EnableFDs(count int) {
	*c = make([]byte, unix.CmsgSpace(count*4))
}

// ExtractFDs returns the list of FDs in the control message.
//
// Descriptors are collected from every SCM_RIGHTS message even when an
// error is returned, so the caller can always close them. A message of any
// other type yields an error.
func (c *ControlMessage) ExtractFDs() ([]int, error) {
	msgs, err := unix.ParseSocketControlMessage(*c)
	if err != nil {
		return nil, err
	}
	var (
		fds      []int
		firstErr error
	)
	for _, msg := range msgs {
		thisFds, err := unix.ParseUnixRights(&msg)
		if err != nil {
			// Different control message.
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, fd := range thisFds {
			if fd >= 0 {
				fds = append(fds, fd)
			}
		}
	}
	return fds, firstErr
}

// Rights returns the number of SCM_RIGHTS messages in the control message.
func (c *ControlMessage) Rights() int {
	msgs, err := unix.ParseSocketControlMessage(*c)
	if err != nil {
		return 0
	}
	n := 0
	for _, msg := range msgs {
		if msg.Header.Level == unix.SOL_SOCKET && msg.Header.Type == unix.SCM_RIGHTS {
			n++
		}
	}
	return n
}

// CloseFDs closes the list of FDs in the control message.
//
// Either this or ExtractFDs should be used after EnableFDs.
func (c *ControlMessage) CloseFDs() {
	fds, _ := c.ExtractFDs()
	for _, fd := range fds {
		if fd >= 0 {
			unix.Close(fd)
		}
	}
}

// PackFDs packs the given list of FDs in the control message.
//
// This must be used prior to WriteVec.
func (c *ControlMessage) PackFDs(fds ...int) {
	*c = ControlMessage(unix.UnixRights(fds...))
}

// UnpackFDs clears the control message.
func (c *ControlMessage) UnpackFDs() {
	*c = nil
}

// ServerSocket is a bound unix domain socket.
type ServerSocket struct {
	// socket is the bound socket.
	socket *Socket

	// bound indicates that bind was called.
	bound bool
}

// NewServerSocket returns a socket from an existing FD.
func NewServerSocket(fd int) (*ServerSocket, error) {
	s, err := NewSocket(fd)
	if err != nil {
		return nil, err
	}
	return &ServerSocket{socket: s}, nil
}

// Bind creates and binds a new socket.
func Bind(addr string, packet bool) (*ServerSocket, error) {
	fd, err := socket(packet)
	if err != nil {
		return nil, err
	}

	// Do the bind.
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: addr}); err != nil {
		unix.Close(fd)
		return nil, err
	}

	ss, err := NewServerSocket(fd)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	ss.bound = true
	return ss, nil
}

// BindAndListen creates, binds and listens on a new socket.
func BindAndListen(addr string, packet bool) (*ServerSocket, error) {
	s, err := Bind(addr, packet)
	if err != nil {
		return nil, err
	}

	// Start listening.
	if err := s.Listen(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Listen starts listening on the socket.
func (s *ServerSocket) Listen() error {
	return unix.Listen(s.socket.FD(), 128)
}

// Accept accepts a new connection.
//
// This is always blocking.
//
// Preconditions:
//   - ServerSocket is listening (Listen called).
func (s *ServerSocket) Accept() (*Socket, error) {
	for {
		nfd, _, err := unix.Accept4(s.socket.FD(), unix.SOCK_CLOEXEC)
		switch err {
		case nil:
			return NewSocket(nfd)
		case unix.EINTR, unix.ECONNABORTED:
			continue
		default:
			return nil, err
		}
	}
}

// Close closes the server socket.
//
// This must only be called once.
func (s *ServerSocket) Close() error {
	return s.socket.Close()
}

// FD returns the socket's file descriptor.
//
// See Socket.FD.
func (s *ServerSocket) FD() int {
	return s.socket.FD()
}

// SocketPair creates a pair of connected sockets.
func SocketPair(packet bool) (*Socket, *Socket, error) {
	// Make a new pair.
	fds, err := unix.Socketpair(unix.AF_UNIX, socketType(packet)|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}

	// host.Socket takes ownership of the FD, so don't close them.
	a, err := NewSocket(fds[0])
	if err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := NewSocket(fds[1])
	if err != nil {
		a.Close()
		unix.Close(fds[1])
		return nil, nil, err
	}

	return a, b, nil
}
