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

// Package cmd holds implementations of the bufhand commands.
package cmd

import (
	"context"
	"fmt"
	"strconv"

	"bufhand.dev/bufhand/pkg/channel"
	"bufhand.dev/bufhand/pkg/errors/handofferr"
	"bufhand.dev/bufhand/pkg/unet"
)

// peer is where a buffer goes to or comes from.
type peer struct {
	// addr is the channel descriptor.
	addr channel.Address

	// remote selects the grant-reference handoff with domain domid.
	// Otherwise the descriptor itself is passed.
	remote bool
	domid  uint32
}

func (p peer) String() string {
	if p.remote {
		return fmt.Sprintf("%s (domain %d)", p.addr, p.domid)
	}
	return p.addr.String()
}

// parsePeer parses the "<address> [vmid]" arguments shared by send and
// receive. The vmid accepts the same bases as strtoul(3) with base 0.
func parsePeer(args []string) (peer, error) {
	if len(args) < 1 || len(args) > 2 {
		return peer{}, fmt.Errorf("want <address> [vmid], got %d arguments", len(args))
	}
	addr, err := channel.Parse(args[0])
	if err != nil {
		return peer{}, err
	}
	p := peer{addr: addr}
	if len(args) == 2 {
		domid, err := strconv.ParseUint(args[1], 0, 32)
		if err != nil {
			return peer{}, fmt.Errorf("invalid vmid %q: %w", args[1], err)
		}
		p.remote = true
		p.domid = uint32(domid)
	}
	return p, nil
}

// open establishes the channel to p. Local handoffs need a unix socket.
func (p peer) open(ctx context.Context) (channel.Channel, *unet.Socket, error) {
	ch, err := channel.OpenAddress(ctx, p.addr)
	if err != nil {
		return nil, nil, handofferr.New(handofferr.Transport, "open channel", err)
	}
	if p.remote {
		return ch, nil, nil
	}
	uc, ok := ch.(*channel.UnixChannel)
	if !ok {
		ch.Close()
		return nil, nil, handofferr.Newf(handofferr.Transport, "open channel", "passing a descriptor needs a unix channel, got %s", p.addr)
	}
	return ch, uc.Socket(), nil
}
