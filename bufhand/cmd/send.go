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

package cmd

import (
	"context"

	"github.com/google/subcommands"

	"bufhand.dev/bufhand/bufhand/cmd/util"
	"bufhand.dev/bufhand/bufhand/config"
	"bufhand.dev/bufhand/bufhand/flag"
	"bufhand.dev/bufhand/pkg/channel"
	"bufhand.dev/bufhand/pkg/dmabuf"
	"bufhand.dev/bufhand/pkg/errors/handofferr"
	"bufhand.dev/bufhand/pkg/gnttab"
	"bufhand.dev/bufhand/pkg/handoff"
	"bufhand.dev/bufhand/pkg/log"
	"bufhand.dev/bufhand/pkg/unet"
)

// Send implements subcommands.Command for the "send" command.
type Send struct {
	// facility and grants replace the devices named by the config when
	// set.
	facility dmabuf.Facility
	grants   gnttab.Table
}

// Name implements subcommands.Command.Name.
func (*Send) Name() string {
	return "send"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Send) Synopsis() string {
	return "build a dma-buf and hand it off to a peer"
}

// Usage implements subcommands.Command.Usage.
func (*Send) Usage() string {
	return `send [flags] <address> [vmid] - build a dma-buf from sealed ranges and hand it off.

Without vmid the descriptor is passed over a unix socket. With vmid the
buffer is granted to that Xen domain and the grant references are sent.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Send) SetFlags(f *flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (s *Send) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	p, err := parsePeer(f.Args())
	if err != nil {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := s.run(ctx, conf, p); err != nil {
		util.Fatalf("send to %s: %v", p, err)
	}
	return subcommands.ExitSuccess
}

func (s *Send) run(ctx context.Context, conf *config.Config, p peer) error {
	buf, err := s.build(conf)
	if err != nil {
		return err
	}
	defer buf.Destroy()

	ch, sock, err := p.open(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()
	return s.transfer(conf, p, buf, ch, sock)
}

// build assembles the buffer described by conf.
func (s *Send) build(conf *config.Config) (*dmabuf.Buffer, error) {
	fac := s.facility
	if fac == nil {
		fac = dmabuf.UdmabufFacility{Path: conf.UdmabufDevice}
	}
	a := dmabuf.Assembler{Facility: fac}
	return a.Create(conf.RangeSpecs())
}

// transfer hands buf to the peer over ch and waits for the peer to let go
// of it. sock is only used for local handoffs.
func (s *Send) transfer(conf *config.Config, p peer, buf *dmabuf.Buffer, ch channel.Channel, sock *unet.Socket) error {
	if !p.remote {
		if err := handoff.SendFD(sock, buf.FD()); err != nil {
			return err
		}
		log.Infof("Sent dma-buf FD %d (%d bytes) to %s", buf.FD(), buf.Size(), p)
	} else {
		grants := s.grants
		if grants == nil {
			dev, err := gnttab.Open(conf.GntdevDevice)
			if err != nil {
				return handofferr.New(handofferr.Grant, "open grant table", err)
			}
			defer dev.Close()
			grants = dev
		}
		rm := handoff.Remote{Grants: grants, MaxRefs: uint32(conf.MaxRefs)}
		if _, err := rm.Send(ch, p.domid, buf.FD()); err != nil {
			return err
		}
		defer func() {
			if err := grants.ReleaseImport(buf.FD()); err != nil {
				log.Warningf("Releasing grants of dma-buf FD %d: %v", buf.FD(), err)
			}
		}()
	}

	if err := handoff.AwaitRelease(ch, conf.Grace, conf.Ack); err != nil {
		log.Warningf("Peer did not acknowledge the buffer: %v", err)
	}
	return nil
}
