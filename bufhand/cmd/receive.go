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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"

	"bufhand.dev/bufhand/bufhand/cmd/util"
	"bufhand.dev/bufhand/bufhand/config"
	"bufhand.dev/bufhand/bufhand/flag"
	"bufhand.dev/bufhand/pkg/channel"
	"bufhand.dev/bufhand/pkg/dmabuf"
	"bufhand.dev/bufhand/pkg/errors/handofferr"
	"bufhand.dev/bufhand/pkg/fd"
	"bufhand.dev/bufhand/pkg/gnttab"
	"bufhand.dev/bufhand/pkg/handoff"
	"bufhand.dev/bufhand/pkg/log"
	"bufhand.dev/bufhand/pkg/memutil"
	"bufhand.dev/bufhand/pkg/unet"
)

// Receive implements subcommands.Command for the "receive" command.
type Receive struct {
	// grants replaces the grant device named by the config when set.
	grants gnttab.Table

	// out receives the byte dump. Nil means stdout.
	out io.Writer
}

// Name implements subcommands.Command.Name.
func (*Receive) Name() string {
	return "receive"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Receive) Synopsis() string {
	return "receive a dma-buf from a peer and dump its contents"
}

// Usage implements subcommands.Command.Usage.
func (*Receive) Usage() string {
	return `receive [flags] <address> [vmid] - receive a dma-buf and dump one byte per stride.

Without vmid a descriptor is expected over a unix socket. With vmid grant
references from that Xen domain are read and mapped locally.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Receive) SetFlags(f *flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (r *Receive) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	p, err := parsePeer(f.Args())
	if err != nil {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := r.run(ctx, conf, p); err != nil {
		util.Fatalf("receive from %s: %v", p, err)
	}
	return subcommands.ExitSuccess
}

func (r *Receive) run(ctx context.Context, conf *config.Config, p peer) error {
	ch, sock, err := p.open(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()
	return r.transfer(conf, p, ch, sock)
}

// transfer receives one buffer over ch, dumps it and acknowledges it if
// conf asks for that. sock is only used for local handoffs.
func (r *Receive) transfer(conf *config.Config, p peer, ch channel.Channel, sock *unet.Socket) error {
	var (
		dmaFD *fd.FD
		err   error
	)
	if !p.remote {
		dmaFD, err = handoff.ReceiveFD(sock)
	} else {
		grants := r.grants
		if grants == nil {
			dev, err := gnttab.Open(conf.GntdevDevice)
			if err != nil {
				return handofferr.New(handofferr.Grant, "open grant table", err)
			}
			defer dev.Close()
			grants = dev
		}
		rm := handoff.Remote{
			Grants:  grants,
			Flags:   uint32(conf.DmabufFlags),
			MaxRefs: uint32(conf.MaxRefs),
		}
		dmaFD, err = rm.Receive(ch, p.domid)
	}
	if err != nil {
		return err
	}
	defer dmaFD.Close()
	log.Infof("Received dma-buf FD %d from %s", dmaFD.FD(), p)

	if err := r.inspect(conf, dmaFD); err != nil {
		return err
	}
	if conf.Ack {
		if err := handoff.SendAck(ch); err != nil {
			return err
		}
	}
	return nil
}

// inspect maps the buffer and writes one byte per conf.DumpStride bytes.
func (r *Receive) inspect(conf *config.Config, dmaFD *fd.FD) error {
	out := r.out
	if out == nil {
		out = os.Stdout
	}
	if conf.ProbeRead {
		var c [1]byte
		n, err := dmaFD.Read(c[:])
		if err != nil {
			log.Warningf("Probe read of dma-buf FD %d: %v", dmaFD.FD(), err)
		} else if n == 1 {
			fmt.Fprintf(out, "c=%d\n", c[0])
		}
	}

	size := conf.Layout.Size()
	actual, err := dmabuf.BufferSize(dmaFD.FD())
	switch {
	case err != nil:
		log.Warningf("Sizing dma-buf FD %d: %v, assuming %d bytes", dmaFD.FD(), err, size)
	case actual != 0 && actual != size:
		log.Warningf("dma-buf FD %d holds %d bytes, layout expects %d", dmaFD.FD(), actual, size)
		size = actual
	}
	if size == 0 {
		return handofferr.Newf(handofferr.Map, "map dma-buf", "dma-buf FD %d is empty", dmaFD.FD())
	}

	m, err := memutil.MapShared(dmaFD.FD(), size, unix.PROT_READ)
	if err != nil {
		return handofferr.New(handofferr.Map, "map dma-buf", fmt.Errorf("mapping %d bytes of dma-buf FD %d: %w", size, dmaFD.FD(), err))
	}
	defer memutil.UnmapSlice(m)
	log.Debugf("Mapped dma-buf FD %d at %p", dmaFD.FD(), &m[0])

	return dump(out, m, int(conf.DumpStride))
}

// dump writes every stride-th byte of m in hex on a single line.
func dump(out io.Writer, m []byte, stride int) error {
	if stride <= 0 {
		stride = 1
	}
	w := bufio.NewWriter(out)
	for i := 0; i < len(m); i += stride {
		fmt.Fprintf(w, "%x ", m[i])
	}
	w.WriteByte('\n')
	return w.Flush()
}
