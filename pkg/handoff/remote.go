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
	"io"
	"time"

	"bufhand.dev/bufhand/pkg/dmabuf"
	"bufhand.dev/bufhand/pkg/errors/handofferr"
	"bufhand.dev/bufhand/pkg/fd"
	"bufhand.dev/bufhand/pkg/gnttab"
	"bufhand.dev/bufhand/pkg/hostarch"
	"bufhand.dev/bufhand/pkg/log"
)

// refDumpEvery limits how often individual references are logged.
const refDumpEvery = 100 * time.Millisecond

// refDumpBurst is the number of references logged back to back before the
// limit applies.
const refDumpBurst = 16

// Remote hands off dma-bufs to and from another domain through grant
// references.
type Remote struct {
	// Grants converts buffers to and from references.
	Grants gnttab.Table

	// Flags are passed to ExportFromRefs on the receiving side, a
	// combination of linux.GNTDEV_DMA_FLAG_*.
	Flags uint32

	// MaxRefs bounds the reference count accepted from a peer. Zero means
	// DefaultMaxRefs.
	MaxRefs uint32

	// Logger receives progress messages. Nil means the global logger.
	Logger log.Logger
}

func (rm *Remote) logger() log.Logger {
	if rm.Logger == nil {
		return log.Log()
	}
	return rm.Logger
}

func (rm *Remote) dumpRefs(refs []uint32) {
	l := rm.logger()
	if !l.IsLogging(log.Debug) {
		return
	}
	l.Debugf("num_refs=%d", len(refs))
	rl := log.BurstLimitedLogger(l, refDumpEvery, refDumpBurst)
	for i, ref := range refs {
		rl.Debugf("refs[%d] = %x", i, ref)
	}
	rl.Flush(log.Debug)
}

// Send grants domid access to every page of dmaFD and writes the resulting
// references to w.
//
// The buffer length must be a positive multiple of the page size. The
// returned set is the one written; the caller releases the grants with
// Grants.ReleaseImport(dmaFD) once the peer is done.
func (rm *Remote) Send(w io.Writer, domid uint32, dmaFD int) (*GrantRefs, error) {
	if err := hostarch.CheckPageSize(); err != nil {
		return nil, handofferr.New(handofferr.Size, "grant dma-buf", err)
	}
	size, err := dmabuf.BufferSize(dmaFD)
	if err != nil {
		return nil, handofferr.New(handofferr.Size, "stat dma-buf", err)
	}
	pages, ok := hostarch.Pages(size)
	if !ok || pages == 0 || pages > uint64(^uint32(0)) {
		return nil, handofferr.Newf(handofferr.Size, "stat dma-buf", "length %d is not a positive multiple of %d", size, hostarch.PageSize)
	}

	refs, err := rm.Grants.ImportToRefs(domid, dmaFD, uint32(pages))
	if err != nil {
		return nil, handofferr.New(handofferr.Grant, "import dma-buf to refs", err)
	}
	rm.dumpRefs(refs)

	if err := WriteGrantRefs(w, refs); err != nil {
		if rerr := rm.Grants.ReleaseImport(dmaFD); rerr != nil {
			rm.logger().Warningf("Releasing grants of dma-buf FD %d: %v", dmaFD, rerr)
		}
		return nil, err
	}
	rm.logger().Infof("Granted %d pages of dma-buf FD %d to domain %d.", len(refs), dmaFD, domid)
	return &GrantRefs{Refs: refs}, nil
}

// Receive reads one reference set from r and maps the pages domid granted
// into a new local dma-buf, owned by the caller.
func (rm *Remote) Receive(r io.Reader, domid uint32) (*fd.FD, error) {
	limit := rm.MaxRefs
	if limit == 0 {
		limit = DefaultMaxRefs
	}
	g, err := ReadGrantRefs(r, limit)
	if err != nil {
		return nil, err
	}
	rm.dumpRefs(g.Refs)

	dmaFD, err := rm.Grants.ExportFromRefs(domid, rm.Flags, g.Refs)
	if err != nil {
		return nil, handofferr.New(handofferr.Grant, "export dma-buf from refs", err)
	}
	rm.logger().Infof("Mapped %d pages granted by domain %d as dma-buf FD %d.", g.Count(), domid, dmaFD)
	return fd.New(dmaFD), nil
}
