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

package channel

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"github.com/linuxkit/virtsock/pkg/vsock"
	"golang.org/x/sys/unix"

	"bufhand.dev/bufhand/pkg/log"
)

// vmaddrCIDAny is VMADDR_CID_ANY.
const vmaddrCIDAny = 0xffffffff

// connChannel is a channel over a net.Conn.
type connChannel struct {
	net.Conn
}

func dialTCP(ctx context.Context, target string) (Channel, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, err
	}
	return connChannel{conn}, nil
}

// reuseAddr sets SO_REUSEADDR on a listening socket before bind.
func reuseAddr(network, address string, c syscall.RawConn) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return serr
}

func listenTCP(ctx context.Context, target string) (Channel, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	l, err := lc.Listen(ctx, "tcp", target)
	if err != nil {
		return nil, err
	}
	log.Infof("Waiting for a peer on tcpd:%s", l.Addr())
	return acceptOne(ctx, l)
}

func dialVsock(target string) (Channel, error) {
	cid, port, err := parseCIDPort(target, false)
	if err != nil {
		return nil, err
	}
	conn, err := vsock.Dial(cid, port)
	if err != nil {
		return nil, fmt.Errorf("vsock dial %d:%d: %w", cid, port, err)
	}
	return connChannel{conn}, nil
}

func listenVsock(ctx context.Context, target string) (Channel, error) {
	cid, port, err := parseCIDPort(target, true)
	if err != nil {
		return nil, err
	}
	l, err := vsock.Listen(cid, port)
	if err != nil {
		return nil, fmt.Errorf("vsock listen %d:%d: %w", cid, port, err)
	}
	log.Infof("Waiting for a peer on vsockd:%s", target)
	return acceptOne(ctx, l)
}

// acceptOne accepts a single connection from l and closes l. It gives up
// when ctx is done.
func acceptOne(ctx context.Context, l net.Listener) (Channel, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-done:
		}
	}()
	conn, err := l.Accept()
	l.Close()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return connChannel{conn}, nil
}
