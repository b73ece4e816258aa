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
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"bufhand.dev/bufhand/pkg/log"
	"bufhand.dev/bufhand/pkg/unet"
)

// lockSuffix names the lock file guarding a listening socket path.
const lockSuffix = ".lock"

// UnixChannel is a channel over a connected unix stream socket.
type UnixChannel struct {
	sock *unet.Socket

	// path and unlock are set when this end created the socket path.
	path   string
	unlock func() error
}

// Socket returns the underlying socket, for passing descriptors.
func (c *UnixChannel) Socket() *unet.Socket {
	return c.sock
}

// Read implements io.Reader.Read.
func (c *UnixChannel) Read(p []byte) (int, error) {
	return c.sock.Read(p)
}

// Write implements io.Writer.Write.
func (c *UnixChannel) Write(p []byte) (int, error) {
	return c.sock.Write(p)
}

// Close closes the socket and, on the listening side, removes the socket
// path and its lock file.
func (c *UnixChannel) Close() error {
	err := c.sock.Close()
	if c.path != "" {
		if rerr := os.Remove(c.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
			err = rerr
		}
		c.path = ""
	}
	if c.unlock != nil {
		if uerr := c.unlock(); uerr != nil && err == nil {
			err = uerr
		}
		c.unlock = nil
	}
	return err
}

// dialUnix connects to path. If nobody is listening there, it listens
// instead, so either end of a local handoff can start first.
func dialUnix(ctx context.Context, path string) (*UnixChannel, error) {
	s, err := unet.Connect(path, false)
	if err == nil {
		return &UnixChannel{sock: s}, nil
	}
	log.Debugf("Connect to %q failed (%v), listening instead", path, err)
	return listenUnix(ctx, path)
}

// lockPath takes an exclusive lock on path's lock file without blocking.
// The returned func removes the lock file and releases the lock.
func lockPath(path string) (func() error, error) {
	l := flock.NewFlock(path + lockSuffix)
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("error acquiring lock on %q: %w", l.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%q is locked by another listener", l.Path())
	}
	return func() error {
		rerr := os.Remove(l.Path())
		if err := l.Unlock(); err != nil {
			return err
		}
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			return rerr
		}
		return nil
	}, nil
}

// listenUnix replaces any stale socket at path, listens and accepts one
// peer.
func listenUnix(ctx context.Context, path string) (*UnixChannel, error) {
	unlock, err := lockPath(path)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		unlock()
		return nil, fmt.Errorf("removing stale socket %q: %w", path, err)
	}
	ss, err := unet.BindAndListen(path, false)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("listening on %q: %w", path, err)
	}
	defer ss.Close()
	log.Infof("Waiting for a peer on unix:%s", path)

	s, err := acceptUnix(ctx, ss)
	if err != nil {
		os.Remove(path)
		unlock()
		return nil, fmt.Errorf("accepting on %q: %w", path, err)
	}
	return &UnixChannel{sock: s, path: path, unlock: unlock}, nil
}

// acceptUnix accepts one connection, giving up when ctx is done.
func acceptUnix(ctx context.Context, ss *unet.ServerSocket) (*unet.Socket, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			// Wakes up the blocked accept.
			unix.Shutdown(ss.FD(), unix.SHUT_RDWR)
		case <-done:
		}
	}()
	s, err := ss.Accept()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return s, err
}
