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

// Package channel opens the byte streams that buffers are handed off over.
//
// A channel is named by a descriptor of the form "<transport>:<target>":
//
//	unix:<path>        connect to a unix socket, listening if nobody is there
//	unixd:<path>       listen on a unix socket and accept one peer
//	tcp:<host:port>    connect over TCP
//	tcpd:<host:port>   listen on TCP and accept one peer
//	vsock:<cid:port>   connect over AF_VSOCK
//	vsockd:<cid:port>  listen on AF_VSOCK and accept one peer; cid may be "any"
//
// Only unix channels can carry descriptors.
package channel

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Transport identifies how a channel is established.
type Transport int

// Transports.
const (
	UnixClient Transport = iota
	UnixListen
	TCPClient
	TCPListen
	VsockClient
	VsockListen
)

var prefixes = map[string]Transport{
	"unix":   UnixClient,
	"unixd":  UnixListen,
	"tcp":    TCPClient,
	"tcpd":   TCPListen,
	"vsock":  VsockClient,
	"vsockd": VsockListen,
}

// String returns the descriptor prefix of t.
func (t Transport) String() string {
	for p, v := range prefixes {
		if v == t {
			return p
		}
	}
	return fmt.Sprintf("Transport(%d)", int(t))
}

// Address is a parsed channel descriptor.
type Address struct {
	Transport Transport
	Target    string
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return a.Transport.String() + ":" + a.Target
}

// Parse parses a channel descriptor.
func Parse(descriptor string) (Address, error) {
	prefix, target, ok := strings.Cut(descriptor, ":")
	if !ok {
		return Address{}, fmt.Errorf("channel %q: missing transport prefix", descriptor)
	}
	t, ok := prefixes[prefix]
	if !ok {
		return Address{}, fmt.Errorf("channel %q: unknown transport %q", descriptor, prefix)
	}
	if t == TCPClient || t == TCPListen {
		// Accept URL-ish "tcp://host:port".
		target = strings.TrimLeft(target, "/")
	}
	if target == "" {
		return Address{}, fmt.Errorf("channel %q: empty target", descriptor)
	}
	return Address{Transport: t, Target: target}, nil
}

// Channel is an established byte stream.
type Channel interface {
	io.ReadWriteCloser
}

// Open parses descriptor and establishes the channel. Listening transports
// block until one peer connects or ctx is done.
func Open(ctx context.Context, descriptor string) (Channel, error) {
	addr, err := Parse(descriptor)
	if err != nil {
		return nil, err
	}
	return OpenAddress(ctx, addr)
}

// OpenAddress is like Open for an already parsed address.
func OpenAddress(ctx context.Context, addr Address) (Channel, error) {
	switch addr.Transport {
	case UnixClient:
		return dialUnix(ctx, addr.Target)
	case UnixListen:
		return listenUnix(ctx, addr.Target)
	case TCPClient:
		return dialTCP(ctx, addr.Target)
	case TCPListen:
		return listenTCP(ctx, addr.Target)
	case VsockClient:
		return dialVsock(addr.Target)
	case VsockListen:
		return listenVsock(ctx, addr.Target)
	default:
		return nil, fmt.Errorf("unknown transport %v", addr.Transport)
	}
}

// parseCIDPort parses "cid:port". cid may be "any" if allowAny is set.
func parseCIDPort(target string, allowAny bool) (uint32, uint32, error) {
	c, p, ok := strings.Cut(target, ":")
	if !ok {
		return 0, 0, fmt.Errorf("vsock address %q: want cid:port", target)
	}
	var cid uint64
	if c == "any" {
		if !allowAny {
			return 0, 0, fmt.Errorf("vsock address %q: cannot connect to any cid", target)
		}
		cid = vmaddrCIDAny
	} else {
		var err error
		if cid, err = strconv.ParseUint(c, 0, 32); err != nil {
			return 0, 0, fmt.Errorf("vsock address %q: cid: %w", target, err)
		}
	}
	port, err := strconv.ParseUint(p, 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("vsock address %q: port: %w", target, err)
	}
	return uint32(cid), uint32(port), nil
}
