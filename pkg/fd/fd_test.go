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

package fd

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"golang.org/x/sys/unix"
)

func newPipe(t *testing.T) (*FD, *FD) {
	t.Helper()
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe2: %v", err)
	}
	r, w := New(p[0]), New(p[1])
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestReadWrite(t *testing.T) {
	r, w := newPipe(t)
	want := []byte("hello, buffer")
	if n, err := WriteFull(w, want); err != nil || n != len(want) {
		t.Fatalf("WriteFull() = %d, %v, want %d, nil", n, err, len(want))
	}
	got := make([]byte, len(want))
	if n, err := ReadFull(r, got); err != nil || n != len(want) {
		t.Fatalf("ReadFull() = %d, %v, want %d, nil", n, err, len(want))
	}
	if !bytes.Equal(got, want) {
		t.Errorf("ReadFull() read %q, want %q", got, want)
	}
}

func TestReadFullShort(t *testing.T) {
	r, w := newPipe(t)
	if _, err := WriteFull(w, []byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteFull: %v", err)
	}
	w.Close()

	buf := make([]byte, 8)
	n, err := ReadFull(r, buf)
	if n != 3 || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadFull() = %d, %v, want 3, %v", n, err, io.ErrUnexpectedEOF)
	}
}

func TestWriteWouldBlock(t *testing.T) {
	_, w := newPipe(t)
	if err := unix.SetNonblock(w.FD(), true); err != nil {
		t.Fatalf("SetNonblock: %v", err)
	}
	// Larger than any default pipe buffer.
	big := make([]byte, 4<<20)
	n, err := w.Write(big)
	if err != nil {
		t.Fatalf("Write() returned error %v, want short count", err)
	}
	if n == 0 || n >= len(big) {
		t.Fatalf("Write() = %d, want a short count", n)
	}
	if _, err := WriteFull(w, big); !errors.Is(err, ErrShortWrite) {
		t.Errorf("WriteFull() error = %v, want %v", err, ErrShortWrite)
	}
}

func TestCloseAndRelease(t *testing.T) {
	r, w := newPipe(t)
	if !r.Valid() {
		t.Fatalf("fresh FD is not valid")
	}
	raw := w.Release()
	if w.Valid() || w.FD() != -1 {
		t.Errorf("released FD still valid: %d", w.FD())
	}
	unix.Close(raw)

	if err := r.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := r.Close(); err == nil {
		t.Errorf("second Close succeeded")
	}
}

func TestSize(t *testing.T) {
	mfd, err := unix.MemfdCreate("fd-size-test", unix.MFD_CLOEXEC)
	if err != nil {
		t.Skipf("memfd_create unavailable: %v", err)
	}
	f := New(mfd)
	defer f.Close()
	if err := unix.Ftruncate(f.FD(), 8192); err != nil {
		t.Fatalf("ftruncate: %v", err)
	}
	if got, err := f.Size(); err != nil || got != 8192 {
		t.Errorf("Size() = %d, %v, want 8192", got, err)
	}
}
