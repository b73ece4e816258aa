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
	"errors"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"bufhand.dev/bufhand/pkg/abi/linux"
	"bufhand.dev/bufhand/pkg/errors/handofferr"
	"bufhand.dev/bufhand/pkg/hostarch"
	"bufhand.dev/bufhand/pkg/memutil"
	"bufhand.dev/bufhand/pkg/test/testutil"
	"bufhand.dev/bufhand/pkg/unet"
)

const (
	exampleRanges     = 4
	exampleRangePages = 4
	exampleRangeLen   = exampleRangePages * hostarch.PageSize
	exampleSize       = exampleRanges * exampleRangeLen
)

// exampleBuffer returns a memfd laid out like a dma-buf over four ranges of
// four pages, range i filled with i+1.
func exampleBuffer(t *testing.T) int {
	t.Helper()
	memfd, err := memutil.CreateMemFD("handoff-test", linux.MFD_CLOEXEC)
	if err != nil {
		t.Fatalf("CreateMemFD: %v", err)
	}
	t.Cleanup(func() { unix.Close(memfd) })
	if err := unix.Ftruncate(memfd, exampleSize); err != nil {
		t.Fatalf("Ftruncate: %v", err)
	}
	m, err := memutil.MapShared(memfd, exampleSize, unix.PROT_READ|unix.PROT_WRITE)
	if err != nil {
		t.Fatalf("MapShared: %v", err)
	}
	defer memutil.UnmapSlice(m)
	for i := range m {
		m[i] = byte(i/exampleRangeLen + 1)
	}
	return memfd
}

// checkExample verifies the range markers of a buffer built by
// exampleBuffer.
func checkExample(t *testing.T, dmaFD int) {
	t.Helper()
	m, err := memutil.MapShared(dmaFD, exampleSize, unix.PROT_READ)
	if err != nil {
		t.Fatalf("MapShared: %v", err)
	}
	defer memutil.UnmapSlice(m)
	for i := 0; i < exampleRanges; i++ {
		off := i * exampleRangeLen
		if m[off] != byte(i+1) || m[off+exampleRangeLen-1] != byte(i+1) {
			t.Errorf("range %d at offset %d: got %d, want %d", i, off, m[off], i+1)
		}
	}
}

func socketPair(t *testing.T) (*unet.Socket, *unet.Socket) {
	t.Helper()
	a, b, err := unet.SocketPair(false)
	if err != nil {
		t.Fatalf("SocketPair: %v", err)
	}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestLocalRoundTrip(t *testing.T) {
	src := exampleBuffer(t)
	a, b := socketPair(t)

	if err := SendFD(a, src); err != nil {
		t.Fatalf("SendFD: %v", err)
	}
	got, err := ReceiveFD(b)
	if err != nil {
		t.Fatalf("ReceiveFD: %v", err)
	}
	defer got.Close()

	if got.FD() == src {
		t.Errorf("received descriptor %d equals the sender's", got.FD())
	}
	size, err := got.Size()
	if err != nil || size != exampleSize {
		t.Errorf("received size = %d, %v; want %d, nil", size, err, exampleSize)
	}
	checkExample(t, got.FD())

	// Both descriptors name the same memory.
	w, err := memutil.MapShared(src, exampleSize, unix.PROT_READ|unix.PROT_WRITE)
	if err != nil {
		t.Fatalf("MapShared: %v", err)
	}
	defer memutil.UnmapSlice(w)
	w[1] = 0xee
	r, err := memutil.MapShared(got.FD(), exampleSize, unix.PROT_READ)
	if err != nil {
		t.Fatalf("MapShared: %v", err)
	}
	defer memutil.UnmapSlice(r)
	if r[1] != 0xee {
		t.Errorf("write through the sender's mapping not visible to the receiver")
	}
}

func pipeFDs(t *testing.T, n int) []int {
	t.Helper()
	var fds []int
	for len(fds) < n {
		var p [2]int
		if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
			t.Fatalf("Pipe2: %v", err)
		}
		fds = append(fds, p[0], p[1])
	}
	t.Cleanup(func() {
		for _, fd := range fds {
			unix.Close(fd)
		}
	})
	return fds[:n]
}

func TestReceiveFDRejects(t *testing.T) {
	for _, tc := range []struct {
		name  string
		fds   int
		creds bool
	}{
		{name: "none", fds: 0},
		{name: "two", fds: 2},
		{name: "too many", fds: maxPassedFDs + 4},
		{name: "credentials", fds: 1, creds: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a, b := socketPair(t)
			w := a.Writer()
			if tc.fds > 0 {
				w.PackFDs(pipeFDs(t, tc.fds)...)
			}
			if tc.creds {
				if err := unix.SetsockoptInt(b.FD(), unix.SOL_SOCKET, unix.SO_PASSCRED, 1); err != nil {
					t.Fatalf("SetsockoptInt(SO_PASSCRED): %v", err)
				}
				creds := unix.UnixCredentials(&unix.Ucred{
					Pid: int32(os.Getpid()),
					Uid: uint32(os.Getuid()),
					Gid: uint32(os.Getgid()),
				})
				w.ControlMessage = append(unet.ControlMessage(creds), w.ControlMessage...)
			}
			if _, err := w.WriteVec([][]byte{{fdPayload}}); err != nil {
				t.Fatalf("WriteVec: %v", err)
			}

			// Warm up anything the runtime opens lazily.
			if _, err := testutil.OpenFDs(); err != nil {
				t.Fatalf("OpenFDs: %v", err)
			}
			before, _ := testutil.OpenFDs()
			f, err := ReceiveFD(b)
			if err == nil {
				f.Close()
				t.Fatalf("ReceiveFD succeeded with %d descriptors", tc.fds)
			}
			if !errors.Is(err, handofferr.ErrProtocol) {
				t.Errorf("ReceiveFD: got %v, want a protocol error", err)
			}
			if after, _ := testutil.OpenFDs(); after != before {
				t.Errorf("open descriptors went from %d to %d, received descriptors leaked", before, after)
			}
		})
	}
}

func TestReceiveFDClosed(t *testing.T) {
	a, b := socketPair(t)
	a.Close()
	if _, err := ReceiveFD(b); !errors.Is(err, handofferr.ErrTransport) {
		t.Errorf("ReceiveFD from a closed peer: got %v, want a transport error", err)
	}
}

func TestSendFDClosed(t *testing.T) {
	a, b := socketPair(t)
	b.Close()
	if err := SendFD(a, exampleBuffer(t)); !errors.Is(err, handofferr.ErrTransport) {
		t.Errorf("SendFD to a closed peer: got %v, want a transport error", err)
	}
}
